// Package lobby implements the Lobby/Team domain's command dispatcher
// and connection manager (spec §4.D/E/F): one Server per Title, owning
// every Lobby, Team, and Player that belongs to that title.
//
// Per spec §5, all domain mutation for a title happens on a single
// cooperative event-loop goroutine — Server.loop. Reader goroutines (one
// per connection) only decode frames and hand them to the loop as a
// closure over commandCh; writer goroutines (one per connection) only
// drain an already-encoded send queue. No mutex ever guards the domain
// graph itself.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/iwango/iwango-server/internal/domain"
	"github.com/iwango/iwango-server/internal/notify"
	"github.com/iwango/iwango-server/internal/protocol"
	"github.com/iwango/iwango-server/internal/store"
	"github.com/iwango/iwango-server/internal/title"
)

// Server is the single-title Lobby/Team engine.
type Server struct {
	title *title.Title
	store store.Store
	sink  *notify.Sink

	sendQueueSize int
	writeTimeout  time.Duration
	idleTimeout   time.Duration
	writePool     *bytePool
	readBufSize   int

	// commandCh serializes every piece of domain mutation onto one
	// goroutine (loop). Reader goroutines never touch lobbies/players
	// directly; they only submit a closure here.
	commandCh chan func(ctx context.Context)

	lobbies map[string]*domain.Lobby
	players map[string]*domain.Player

	handler *Handler
}

// NewServer builds a Server for one Title.
func NewServer(t *title.Title, st store.Store, sink *notify.Sink, sendQueueSize int, writeTimeout, idleTimeout time.Duration) *Server {
	s := &Server{
		title:         t,
		store:         st,
		sink:          sink,
		sendQueueSize: sendQueueSize,
		writeTimeout:  writeTimeout,
		idleTimeout:   idleTimeout,
		writePool:     newBytePool(4096),
		readBufSize:   65536,
		commandCh:     make(chan func(ctx context.Context), 256),
		lobbies:       make(map[string]*domain.Lobby),
		players:       make(map[string]*domain.Player),
	}
	s.handler = NewHandler(s)
	return s
}

// Run accepts connections on ln and runs the command loop until ctx is
// cancelled. Both the accept loop and the command loop run concurrently
// under the caller's errgroup; Run blocks until both have stopped.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.loop(ctx)
	}()

	err := s.acceptLoop(ctx, ln)

	s.submit(func(context.Context) {}) // wake loop so it observes ctx.Done()
	wg.Wait()
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			slog.Warn("lobby accept failed", "title", s.title.Token, "error", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConnection(ctx, c)
		}()
	}
}

func (s *Server) handleConnection(ctx context.Context, nc net.Conn) {
	conn := newConn(nc, s.title.Encoding, s.sendQueueSize, s.writeTimeout, s.idleTimeout, s.writePool)
	defer conn.CloseAsync()

	// Unblock the read on shutdown: a read in progress never sees ctx.
	go func() {
		select {
		case <-ctx.Done():
			conn.CloseAsync()
		case <-conn.closeCh:
		}
	}()

	go conn.writePump()

	readBuf := s.writePool.Get(s.readBufSize)
	defer s.writePool.Put(readBuf)

	conn.readLoop(ctx, readBuf, func(frame protocol.LobbyFrame) {
		s.submit(func(ctx context.Context) {
			s.handler.Dispatch(ctx, conn, frame)
		})
	})

	// Connection closed: tear the player down on the owning loop.
	done := make(chan struct{})
	s.submit(func(ctx context.Context) {
		defer close(done)
		if conn.player != nil {
			s.handler.teardownPlayer(ctx, conn.player)
		}
	})
	// Once ctx is cancelled the loop may already have stopped and will
	// never run the teardown, so do not wait for it then.
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// submit enqueues a unit of domain work onto the single command loop.
// Blocks if the loop is backed up; this is the event loop's natural
// back-pressure (spec §5: the loop, not a lock, is the serialization
// point).
func (s *Server) submit(fn func(ctx context.Context)) {
	s.commandCh <- fn
}

// loop is the single goroutine that owns every Lobby/Team/Player for
// this title. It runs until ctx is cancelled and the channel drains.
func (s *Server) loop(ctx context.Context) {
	for {
		select {
		case fn := <-s.commandCh:
			fn(ctx)
		case <-ctx.Done():
			// Drain remaining teardown work without blocking forever.
			for {
				select {
				case fn := <-s.commandCh:
					fn(ctx)
				default:
					return
				}
			}
		}
	}
}

// ensureLobby returns the named lobby, creating it as ephemeral if it
// doesn't exist yet (spec §4.D ENTR_LOBBY "create if missing"). created
// reports whether this call is what created it — the caller only acks
// ENTR_LOBBY with 0x2A on creation, staying silent when joining an
// already-existing lobby.
func (s *Server) ensureLobby(name string, capacity int) (l *domain.Lobby, created bool) {
	if l, ok := s.lobbies[name]; ok {
		return l, false
	}
	l = domain.NewLobby(name, capacity, true)
	s.lobbies[name] = l
	return l, true
}

// gcLobbyIfEmpty removes an ephemeral lobby once its last member leaves
// (spec §4.D "ephemeral lobby GC").
func (s *Server) gcLobbyIfEmpty(l *domain.Lobby) {
	if l.Ephemeral && len(l.Members) == 0 {
		delete(s.lobbies, l.Name)
	}
}

var errUnknownOpcode = fmt.Errorf("unknown opcode")
