package lobby

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iwango/iwango-server/internal/domain"
	"github.com/iwango/iwango-server/internal/protocol"
)

// Conn is one connected lobby client (spec §4.F Connection manager).
// Reads happen on the connection's own handler goroutine; writes are
// queued onto sendCh and flushed by a dedicated writePump goroutine, the
// same split internal/gameserver/client.go uses so a slow reader never
// blocks a write, and vice versa.
type Conn struct {
	conn    net.Conn
	encoding protocol.TextEncoding

	seq     atomic.Uint32
	sendCh  chan []byte
	closeCh chan struct{}
	closeOnce sync.Once
	writeTimeout time.Duration

	idleTimeout time.Duration
	idleTimer   *time.Timer

	writePool *bytePool

	player *domain.Player // set once LOGIN succeeds

	// extraMemBuf stages a REGIST_EXTRAUSERMEM_START/TRANSFER/END upload
	// until END commits it to the store.
	extraMemBuf []byte
}

func newConn(c net.Conn, encoding protocol.TextEncoding, queueSize int, writeTimeout, idleTimeout time.Duration, writePool *bytePool) *Conn {
	conn := &Conn{
		conn:         c,
		encoding:     encoding,
		sendCh:       make(chan []byte, queueSize),
		closeCh:      make(chan struct{}),
		writeTimeout: writeTimeout,
		idleTimeout:  idleTimeout,
		writePool:    writePool,
	}
	if idleTimeout > 0 {
		conn.idleTimer = time.AfterFunc(idleTimeout, conn.CloseAsync)
	}
	return conn
}

// touch resets the idle timer; called whenever a frame is read.
func (c *Conn) touch() {
	if c.idleTimer != nil {
		c.idleTimer.Reset(c.idleTimeout)
	}
}

// Send encodes and non-blocking-enqueues a lobby frame. If the send
// queue is full the connection is dropped — a slow/stuck client must not
// be allowed to back-pressure the whole title's event loop (spec §4.F).
func (c *Conn) Send(opcode uint16, payload []byte) {
	seq := uint16(c.seq.Add(1))
	framed := encodeLobbyFrame(seq, opcode, payload)

	select {
	case c.sendCh <- framed:
	default:
		slog.Warn("send queue full, disconnecting", "remote", c.conn.RemoteAddr())
		c.CloseAsync()
	}
}

// SendText encodes s through the connection's title-specific text
// encoding (ASCII or full-width) before framing it, for opcodes whose
// payload is client-displayed text rather than raw binary.
func (c *Conn) SendText(opcode uint16, s string) {
	c.Send(opcode, c.encoding.Encode(s))
}

func encodeLobbyFrame(seq, opcode uint16, payload []byte) []byte {
	buf := make([]byte, 0, 10+len(payload))
	var hdr [10]byte
	total := 8 + len(payload)
	hdr[0], hdr[1] = byte(total), byte(total>>8)
	hdr[4], hdr[5] = byte(seq), byte(seq>>8)
	hdr[8], hdr[9] = byte(opcode), byte(opcode>>8)
	buf = append(buf, hdr[:]...)
	buf = append(buf, payload...)
	return buf
}

// writePump drains sendCh and writes frames to the socket, batching
// multiple queued frames into one net.Buffers Write when more than one
// is ready — the same coalescing idiom as
// internal/gameserver/client.go's writePump.
func (c *Conn) writePump() {
	for {
		select {
		case <-c.closeCh:
			return
		case first := <-c.sendCh:
			batch := net.Buffers{first}
		drain:
			for {
				select {
				case next := <-c.sendCh:
					batch = append(batch, next)
				default:
					break drain
				}
			}

			if c.writeTimeout > 0 {
				_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			}
			if _, err := batch.WriteTo(c.conn); err != nil {
				slog.Debug("write failed, closing connection", "error", err, "remote", c.conn.RemoteAddr())
				c.CloseAsync()
				return
			}
		}
	}
}

// CloseAsync closes the connection exactly once; safe to call from any
// goroutine (reader, writer, idle timer).
func (c *Conn) CloseAsync() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		_ = c.conn.Close()
		if c.idleTimer != nil {
			c.idleTimer.Stop()
		}
	})
}

// readLoop reads frames until the connection closes, handing each to
// handle. Runs on its own goroutine; handle is expected to forward
// mutation work onto the owning Server's single command goroutine.
func (c *Conn) readLoop(ctx context.Context, readBuf []byte, handle func(frame protocol.LobbyFrame)) {
	for {
		select {
		case <-c.closeCh:
			return
		case <-ctx.Done():
			c.CloseAsync()
			return
		default:
		}

		frame, err := protocol.ReadLobbyFrame(c.conn, readBuf)
		if err != nil {
			c.CloseAsync()
			return
		}
		c.touch()
		handle(frame)
	}
}
