package lobby

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/iwango/iwango-server/internal/config"
	"github.com/iwango/iwango-server/internal/constants"
	"github.com/iwango/iwango-server/internal/notify"
	"github.com/iwango/iwango-server/internal/protocol"
	"github.com/iwango/iwango-server/internal/store"
	"github.com/iwango/iwango-server/internal/title"
)

func TestServerRunRoundTripsLogin(t *testing.T) {
	cat, err := title.NewCatalog([]config.TitleConfig{
		{Token: "dayt", Name: "Daytona USA", BindAddress: "127.0.0.1", Port: 0, AdvertiseHost: "127.0.0.1", AdvertisePort: 9501, Capacity: 64},
	})
	if err != nil {
		t.Fatalf("building catalog: %v", err)
	}
	tt, _ := cat.ByToken("dayt")

	s := NewServer(tt, store.NewMemStore(), notify.New("", 0, 0, 0), 16, time.Second, 0)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := protocol.WriteLobbyFrame(conn, 1, constants.OpLogin, []byte("alice")); err != nil {
		t.Fatalf("writing login frame: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	frame, err := protocol.ReadLobbyFrame(conn, buf)
	if err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	if frame.Opcode != constants.ReplyLogin {
		t.Fatalf("reply opcode = 0x%x, want ReplyLogin", frame.Opcode)
	}
}
