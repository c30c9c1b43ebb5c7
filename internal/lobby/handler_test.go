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

func newTestServer(t *testing.T) (*Server, func()) {
	t.Helper()
	cat, err := title.NewCatalog([]config.TitleConfig{
		{Token: "dayt", Name: "Daytona USA", BindAddress: "127.0.0.1", Port: 9501, AdvertiseHost: "127.0.0.1", AdvertisePort: 9501, Capacity: 64},
	})
	if err != nil {
		t.Fatalf("building catalog: %v", err)
	}
	tt, _ := cat.ByToken("dayt")

	s := NewServer(tt, store.NewMemStore(), notify.New("", 0, 0, 0), 16, time.Second, 0)
	return s, func() {}
}

func newTestConn(t *testing.T, s *Server) (*Conn, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })
	c := newConn(server, s.title.Encoding, s.sendQueueSize, s.writeTimeout, s.idleTimeout, s.writePool)
	t.Cleanup(c.CloseAsync)
	go c.writePump()
	return c, client
}

func TestLoginCreatesPlayer(t *testing.T) {
	s, _ := newTestServer(t)
	c, _ := newTestConn(t, s)

	s.handler.login(context.Background(), c, "alice")
	if c.player == nil {
		t.Fatal("login did not set c.player")
	}
	if _, ok := s.players["alice"]; !ok {
		t.Fatal("login did not register player in server directory")
	}
}

func TestEntrLobbyThenLeaveLobbyGCsEphemeralLobby(t *testing.T) {
	s, _ := newTestServer(t)
	c, _ := newTestConn(t, s)

	s.handler.login(context.Background(), c, "alice")
	s.handler.entrLobby(context.Background(), c, "room1 16")

	if _, ok := s.lobbies["room1"]; !ok {
		t.Fatal("ENTR_LOBBY did not create the lobby")
	}
	if c.player.Lobby == nil {
		t.Fatal("player not attached to lobby")
	}

	s.handler.leaveLobby(context.Background(), c, "")
	if _, ok := s.lobbies["room1"]; ok {
		t.Fatal("ephemeral lobby was not garbage-collected after last member left")
	}
}

func TestCreateJoinAndLeaveTeamPromotesHost(t *testing.T) {
	s, _ := newTestServer(t)
	host, _ := newTestConn(t, s)
	member, _ := newTestConn(t, s)

	s.handler.login(context.Background(), host, "host")
	s.handler.entrLobby(context.Background(), host, "room1 16")
	s.handler.login(context.Background(), member, "member")
	s.handler.entrLobby(context.Background(), member, "room1 16")

	s.handler.createTeam(context.Background(), host, "teamA 4")
	s.handler.joinTeam(context.Background(), member, "teamA")

	team, ok := host.player.Lobby.GetTeam("teamA")
	if !ok {
		t.Fatal("team was not created")
	}
	if len(team.Members) != 2 {
		t.Fatalf("team has %d members, want 2", len(team.Members))
	}

	s.handler.leaveTeam(context.Background(), host, "")
	if !team.IsHost(member.player) {
		t.Fatal("host was not promoted to the remaining member")
	}
}

func TestTeardownPlayerIsIdempotent(t *testing.T) {
	s, _ := newTestServer(t)
	c, _ := newTestConn(t, s)

	s.handler.login(context.Background(), c, "alice")
	s.handler.entrLobby(context.Background(), c, "room1 16")

	p := c.player
	s.handler.teardownPlayer(context.Background(), p)
	if _, ok := s.players["alice"]; ok {
		t.Fatal("player directory entry survived teardown")
	}
	if _, ok := s.lobbies["room1"]; ok {
		t.Fatal("lobby was not garbage-collected after teardown")
	}

	// A second teardown call must be a no-op, not a panic.
	s.handler.teardownPlayer(context.Background(), p)
}

func TestDispatchUnknownOpcodeDoesNotPanic(t *testing.T) {
	s, _ := newTestServer(t)
	c, _ := newTestConn(t, s)

	s.handler.Dispatch(context.Background(), c, protocol.LobbyFrame{Opcode: 0x9999, Payload: nil})
}

func TestDispatchRoutesLoginOpcode(t *testing.T) {
	s, _ := newTestServer(t)
	c, _ := newTestConn(t, s)

	s.handler.Dispatch(context.Background(), c, protocol.LobbyFrame{Opcode: constants.OpLogin, Payload: []byte("bob")})
	if c.player == nil || c.player.Name != "bob" {
		t.Fatalf("LOGIN via Dispatch did not set player, got %+v", c.player)
	}
}
