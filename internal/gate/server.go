// Package gate implements the Gate engine (spec §4.C): the fixed
// well-known front door (port 9500) through which clients discover a
// title's lobby address and manage their per-game handle list before
// ever speaking the lobby protocol.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/iwango/iwango-server/internal/protocol"
	"github.com/iwango/iwango-server/internal/store"
	"github.com/iwango/iwango-server/internal/title"
)

// Server accepts and serves gate connections. One Server per process;
// the gate protocol is stateless per-request so, unlike the lobby
// engine, no single-owner event loop is needed — each connection's
// handler talks to the Store directly, and the Store serializes
// persistence itself.
type Server struct {
	bindAddress string
	catalog     *title.Catalog
	handler     *Handler

	mu       sync.Mutex
	listener net.Listener
}

// NewServer constructs a gate Server.
func NewServer(bindAddress string, catalog *title.Catalog, st store.Store) *Server {
	return &Server{
		bindAddress: bindAddress,
		catalog:     catalog,
		handler:     NewHandler(catalog, st),
	}
}

// Run listens on bindAddress:port and serves connections until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context, port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.bindAddress, port))
	if err != nil {
		return fmt.Errorf("listening on gate port %d: %w", port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is cancelled, matching the
// accept-loop shape of internal/login/server.go's Serve/acceptLoop.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			slog.Warn("gate accept failed", "error", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

// Addr returns the listener's address, mainly for tests.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	buf := make([]byte, 64*1024)
	for {
		frame, err := protocol.ReadGateFrame(conn, buf)
		if err != nil {
			return
		}

		// A failed request may still carry an error reply (e.g. ERROR1
		// on a store failure); it is sent after the failure is logged.
		reply, err := s.handler.Handle(ctx, frame)
		if err != nil {
			slog.Warn("gate request failed", "error", err, "remote", conn.RemoteAddr())
		}
		for _, r := range reply {
			if err := protocol.WriteGateFrame(conn, r.Opcode, r.Payload); err != nil {
				slog.Warn("writing gate reply", "error", err)
				return
			}
		}
	}
}
