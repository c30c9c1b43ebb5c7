package lobby

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/iwango/iwango-server/internal/constants"
	"github.com/iwango/iwango-server/internal/domain"
	"github.com/iwango/iwango-server/internal/protocol"
)

// loginTimestamp formats the current time the way the LOGIN reply's
// trailing field expects it (original_source/packet_processor.cpp's
// loginCommand: a bare "HHMM" clock reading).
func loginTimestamp() string {
	return time.Now().UTC().Format("1504")
}

// Handler is the single table mapping opcodes to handlers (spec §4.D/E),
// generalized from original_source/packet_processor.cpp's
// CommandHandlers unordered_map. Every handler here runs exclusively on
// the owning Server's command loop goroutine.
type Handler struct {
	s     *Server
	table map[uint16]func(ctx context.Context, c *Conn, payload string)
}

// NewHandler builds the opcode dispatch table for server s.
func NewHandler(s *Server) *Handler {
	h := &Handler{s: s}
	h.table = map[uint16]func(context.Context, *Conn, string){
		constants.OpLogin:                     h.login,
		constants.OpLogin2:                    h.login2,
		constants.OpSendLog:                   h.sendLog,
		constants.OpEntrLobby:                 h.entrLobby,
		constants.OpDisconnect:                h.disconnect,
		constants.OpGetLobbies:                h.getLobbies,
		constants.OpGetGames:                  h.getGames,
		constants.OpSelectGame:                h.selectGame,
		constants.OpPing:                      h.ping,
		constants.OpSearch:                    h.search,
		constants.OpGetLicense:                h.nullCommand,
		constants.OpReconnect:                 h.reconnect,
		constants.OpLaunchGameAck:             h.nullCommand,
		constants.OpGetTeams:                  h.getTeams,
		constants.OpRefreshPlayers:            h.refreshPlayers,
		constants.OpChatLobby:                 h.chatLobby,
		constants.OpSharedMemPlayer:           h.sharedMemPlayer,
		constants.OpSharedMemTeam:             h.sharedMemTeam,
		constants.OpLeaveTeam:                 h.leaveTeam,
		constants.OpLaunchRequest:             h.launchRequest,
		constants.OpChatTeam:                  h.chatTeam,
		constants.OpCreateTeam:                h.createTeam,
		constants.OpJoinTeam:                  h.joinTeam,
		constants.OpSendCtcpMsg:               h.sendCtcpMsg,
		constants.OpExtraUserMemAck:           h.nullCommand,
		constants.OpGetExtraUserMem:           h.getExtraUserMem,
		constants.OpRegistExtraUserMemStart:    h.registExtraUserMemStart,
		constants.OpRegistExtraUserMemTransfer: h.registExtraUserMemTransfer,
		constants.OpRegistExtraUserMemEnd:      h.registExtraUserMemEnd,
		constants.OpLeaveLobby:                h.leaveLobby,
		constants.OpLaunchGame:                h.launchGame,
	}
	return h
}

// Dispatch looks the frame's opcode up in the table and runs it. Unknown
// opcodes are logged and ignored (spec §7 UNKNOWN_OPCODE), matching
// packet_processor.cpp's WARN-and-continue behavior for opcodes it
// doesn't recognize (e.g. the still-undocumented gate 0x3F6/0x3FF and
// lobby 0x1C/0x1D, DESIGN.md "Open questions resolved").
func (h *Handler) Dispatch(ctx context.Context, c *Conn, frame protocol.LobbyFrame) {
	fn, ok := h.table[frame.Opcode]
	if !ok {
		slog.Warn("unknown lobby opcode", "opcode", fmt.Sprintf("0x%x", frame.Opcode), "title", h.s.title.Token)
		return
	}
	fn(ctx, c, c.encoding.Decode(frame.Payload))
}

func (h *Handler) login(ctx context.Context, c *Conn, payload string) {
	name := strings.TrimSpace(payload)
	if name == "" {
		slog.Warn("LOGIN with empty name", "title", h.s.title.Token)
		return
	}

	if existing, ok := h.s.players[name]; ok {
		// A stale session under this name: suppress its cancel
		// broadcast by clearing its name before disconnecting it,
		// mirroring packet_processor.cpp's loginCommand.
		delete(h.s.players, existing.Name)
		existing.Name = ""
		h.teardownPlayer(ctx, existing)
	}

	host, portStr, err := net.SplitHostPort(c.conn.RemoteAddr().String())
	if err != nil {
		host = c.conn.RemoteAddr().String()
		portStr = "0"
	}
	port, _ := strconv.Atoi(portStr)

	p := domain.NewPlayer(name, net.ParseIP(host), uint16(port), c)
	h.s.players[name] = p
	c.player = p

	timestamp := fmt.Sprintf("0100 0102 %s", loginTimestamp())
	c.SendText(constants.ReplyLogin, timestamp)
}

// login2 sends the three-frame LOGIN2 acknowledgement (spec §4.D;
// original_source/packet_processor.cpp login2Command): a license grant,
// the title's message of the day, then a bare ack. The second frame's
// opcode is the client's own PING opcode — spec.md's table names it
// literally as "0x0A <motd>", so this reuse is intentional, unlike
// ping()'s.
func (h *Handler) login2(ctx context.Context, c *Conn, payload string) {
	c.SendText(constants.OpGetLicense, "LOB 999 999 AAA AAA")
	c.SendText(constants.OpPing, h.s.title.MOTD)
	c.Send(constants.ReplyLogin2Ack, nil)
}

func (h *Handler) sendLog(ctx context.Context, c *Conn, payload string) {
	c.Send(constants.OpSendLog, nil)
}

func (h *Handler) entrLobby(ctx context.Context, c *Conn, payload string) {
	p := c.player
	if p == nil {
		return
	}
	fields := strings.Fields(payload)
	if len(fields) < 2 {
		return
	}
	name := fields[0]
	capacity, _ := strconv.Atoi(fields[1])

	l, created := h.s.ensureLobby(name, capacity)
	if l.Full() {
		c.Send(constants.ReplyLobbyFull, nil)
		return
	}

	l.AddPlayer(p)
	if created {
		c.SendText(constants.ReplyLobbyJoinCreated, name)
	}

	if h.s.sink != nil {
		h.s.sink.NotifyLobbyJoined(ctx, h.s.title.Name, p.Name, l.Name, memberNames(l))
	}
}

func (h *Handler) leaveLobby(ctx context.Context, c *Conn, payload string) {
	p := c.player
	if p == nil || p.Lobby == nil {
		return
	}
	l := p.Lobby
	empty := l.RemovePlayer(p)
	h.s.gcLobbyIfEmpty(l)
	_ = empty
}

func (h *Handler) getLobbies(ctx context.Context, c *Conn, payload string) {
	for _, l := range h.s.lobbies {
		sharedMem := "#"
		if l.HasSharedMem {
			sharedMem = string(l.SharedMem[:])
		}
		line := fmt.Sprintf("%s %d %d %d %s #%s", l.Name, len(l.Members), l.Capacity, l.Flags, sharedMem, h.s.title.Name)
		c.SendText(constants.OpGetLobbies, line)
	}
	c.Send(constants.ReplyPlayerListEnd, nil)
}

func (h *Handler) getGames(ctx context.Context, c *Conn, payload string) {
	c.SendText(constants.OpGetGames, h.s.title.Name)
}

func (h *Handler) selectGame(ctx context.Context, c *Conn, payload string) {
	c.Send(constants.OpSelectGame, nil)
}

func (h *Handler) reconnect(ctx context.Context, c *Conn, payload string) {
	c.Send(constants.OpReconnect, nil)
}

func (h *Handler) ping(ctx context.Context, c *Conn, payload string) {
	c.Send(constants.ReplyPing, nil)
}

func (h *Handler) nullCommand(ctx context.Context, c *Conn, payload string) {}

func (h *Handler) disconnect(ctx context.Context, c *Conn, payload string) {
	c.Send(constants.ReplyDisconnected, nil)
	c.Send(constants.ReplyDisconnectAck, nil)
	if c.player != nil {
		h.teardownPlayer(ctx, c.player)
	}
	c.CloseAsync()
}

func (h *Handler) refreshPlayers(ctx context.Context, c *Conn, payload string) {
	p := c.player
	if p == nil || p.Lobby == nil {
		c.Send(constants.ReplyPlayerListEnd, nil)
		return
	}

	name := strings.TrimSpace(payload)
	if name == "" {
		for _, m := range p.Lobby.Members {
			c.Send(constants.OpRefreshPlayers, m.SendDataPacket(h.s.title.Name))
		}
	} else if m := findPlayer(p.Lobby.Members, name); m != nil {
		c.Send(constants.OpRefreshPlayers, m.SendDataPacket(h.s.title.Name))
	}
	c.Send(constants.ReplyPlayerListEnd, nil)
}

func (h *Handler) getTeams(ctx context.Context, c *Conn, payload string) {
	p := c.player
	if p == nil || p.Lobby == nil {
		c.Send(constants.ReplyPlayerListEnd, nil)
		return
	}
	for _, t := range p.Lobby.TeamList() {
		sharedMem := "#"
		if t.HasSharedMem {
			sharedMem = string(t.SharedMem[:])
		}
		var members strings.Builder
		for _, m := range t.Members {
			marker := "#"
			if t.IsHost(m) {
				marker = "*"
			}
			fmt.Fprintf(&members, " %s%s", marker, m.Name)
		}
		line := fmt.Sprintf("%s %d %d %d %s%s %s", t.Name, len(t.Members), t.Capacity, t.Flags, sharedMem, members.String(), h.s.title.Name)
		c.SendText(constants.OpGetTeams, line)
	}
	c.Send(constants.ReplyPlayerListEnd, nil)
}

func (h *Handler) createTeam(ctx context.Context, c *Conn, payload string) {
	p := c.player
	if p == nil || p.Lobby == nil {
		return
	}
	fields := strings.Fields(payload)
	if len(fields) < 2 {
		return
	}
	name := fields[0]
	capacity, _ := strconv.Atoi(fields[1])

	if _, ok := p.Lobby.CreateTeam(name, capacity, p); !ok {
		c.Send(constants.ReplyTeamNameInUse, nil)
		return
	}
	c.SendText(constants.OpCreateTeam, name)
}

// joinTeam adds the caller to an existing team. A missing or full team
// is refused silently — NOT_FOUND and CAPACITY_EXHAUSTED both log and
// send no reply for team joins (spec §7).
func (h *Handler) joinTeam(ctx context.Context, c *Conn, payload string) {
	p := c.player
	if p == nil || p.Lobby == nil {
		return
	}
	name := strings.TrimSpace(payload)
	t, ok := p.Lobby.GetTeam(name)
	if !ok {
		slog.Warn("JOIN_TEAM: team not found", "team", name, "title", h.s.title.Token)
		return
	}
	if t.Full() {
		slog.Warn("JOIN_TEAM: team full", "team", name, "title", h.s.title.Token)
		return
	}

	t.AddPlayer(p)
	h.broadcastTeamText(t, constants.ReplyTeamMemberJoined, strings.Join(t.MemberNames(), " "))
}

func (h *Handler) leaveTeam(ctx context.Context, c *Conn, payload string) {
	p := c.player
	if p == nil || p.Team == nil {
		return
	}
	t := p.Team
	newHost, empty := t.RemovePlayer(p)

	if empty {
		t.Lobby.DeleteTeam(t.Name)
	} else {
		h.broadcastTeamText(t, constants.ReplyTeamMemberLeft, p.Name)
		if newHost != nil {
			h.broadcastTeamText(t, constants.ReplyTeamMemberLeft, "*"+newHost.Name)
		}
	}
}

func (h *Handler) chatLobby(ctx context.Context, c *Conn, payload string) {
	p := c.player
	if p == nil || p.Lobby == nil {
		return
	}
	msg := h.s.title.Encoding.Encode(p.Name + " " + afterFirstSpace(payload))
	for _, m := range p.Lobby.Members {
		m.Send(constants.ReplyChatLobby, msg)
	}
}

func (h *Handler) chatTeam(ctx context.Context, c *Conn, payload string) {
	p := c.player
	if p == nil || p.Team == nil {
		return
	}
	h.broadcastTeamText(p.Team, constants.ReplyChatTeam, p.Name+" "+afterFirstSpace(payload))
}

func (h *Handler) sendCtcpMsg(ctx context.Context, c *Conn, payload string) {
	p := c.player
	if p == nil {
		return
	}
	fields := strings.SplitN(payload, " ", 2)
	if len(fields) < 2 {
		return
	}
	target, ok := h.s.players[fields[0]]
	if !ok {
		return
	}
	target.Send(constants.ReplyCtcpMsg, h.s.title.Encoding.Encode(p.Name+" "+fields[1]))
}

func (h *Handler) sharedMemPlayer(ctx context.Context, c *Conn, payload string) {
	p := c.player
	if p == nil {
		return
	}
	if !p.SetSharedMem([]byte(payload)) {
		slog.Warn("SHAREDMEM_PLAYER: invalid size", "player", p.Name, "size", len(payload))
		return
	}
	if p.Team != nil {
		pkt := createSharedMemPacket([]byte(payload), p.Name)
		for _, m := range p.Team.Members {
			m.Send(constants.ReplySharedMemPlayer, pkt)
		}
	}
}

func (h *Handler) sharedMemTeam(ctx context.Context, c *Conn, payload string) {
	p := c.player
	if p == nil || p.Team == nil {
		return
	}
	t := p.Team
	copy(t.SharedMem[:], payload)
	t.HasSharedMem = true
	pkt := createSharedMemPacket([]byte(payload), t.Name)
	broadcastTeam(t, constants.ReplySharedMemTeam, pkt)
}

func (h *Handler) search(ctx context.Context, c *Conn, payload string) {
	p := c.player
	if p == nil {
		return
	}
	lobbyPart := "#"
	if p.Lobby != nil {
		lobbyPart = "!" + p.Lobby.Name
	}
	line := fmt.Sprintf("%s !%s %s", p.Name, h.s.title.Name, lobbyPart)
	c.SendText(constants.OpSearch, line)
	c.SendText(constants.ReplySearchTrailer, "1")
}

// extraMemChunkSize is the largest slice of a blob one 0x51 frame
// carries (original_source/models.cpp Player::getExtraMem: chunksz =
// min(length, 200)).
const extraMemChunkSize = 200

// getExtraUserMem streams a player's extra-user-memory blob back as
// 0x50 (begin), one 0x51 per ≤200-byte chunk (payload: 2-byte
// little-endian chunk index then the raw bytes), then 0x52 (end) —
// spec §4.D; original_source/models.cpp Player::getExtraMem.
func (h *Handler) getExtraUserMem(ctx context.Context, c *Conn, payload string) {
	p := c.player
	fields := strings.Fields(payload)
	if p == nil || len(fields) != 3 {
		if c.player != nil {
			h.teardownPlayer(ctx, c.player)
		}
		c.CloseAsync()
		return
	}

	targetName := fields[0]
	offset, errOff := strconv.Atoi(fields[1])
	length, errLen := strconv.Atoi(fields[2])
	if errOff != nil || errLen != nil || offset < 0 || length < 0 {
		return
	}
	if _, ok := h.s.players[targetName]; !ok {
		slog.Warn("GET_EXTRAUSERMEM: player not found", "player", targetName, "title", h.s.title.Token)
		return
	}

	data, err := h.s.store.GetBlob(ctx, targetName, h.s.title.Token, offset, length)
	if err != nil {
		data = make([]byte, length)
	}

	c.Send(constants.ReplyExtraMemBegin, nil)
	for idx, off := uint16(0), 0; off < len(data); idx, off = idx+1, off+extraMemChunkSize {
		end := min(off+extraMemChunkSize, len(data))
		chunk := make([]byte, 2+end-off)
		binary.LittleEndian.PutUint16(chunk[:2], idx)
		copy(chunk[2:], data[off:end])
		c.Send(constants.ReplyExtraMemChunk, chunk)
	}
	c.Send(constants.ReplyExtraMemEnd, nil)
}

func (h *Handler) registExtraUserMemStart(ctx context.Context, c *Conn, payload string) {
	size, _ := strconv.Atoi(strings.TrimSpace(payload))
	if size < 0 {
		size = 0
	}
	c.extraMemBuf = make([]byte, size)
	c.Send(constants.ReplyExtraMemAck, nil)
}

func (h *Handler) registExtraUserMemTransfer(ctx context.Context, c *Conn, payload string) {
	fields := strings.SplitN(payload, " ", 2)
	if len(fields) < 2 {
		return
	}
	offset, _ := strconv.Atoi(fields[0])
	chunk := []byte(fields[1])
	if offset >= 0 && offset+len(chunk) <= len(c.extraMemBuf) {
		copy(c.extraMemBuf[offset:], chunk)
	}
	c.Send(constants.ReplyExtraMemAck, nil)
}

func (h *Handler) registExtraUserMemEnd(ctx context.Context, c *Conn, payload string) {
	p := c.player
	if p == nil {
		return
	}
	if err := h.s.store.PutBlob(ctx, p.Name, h.s.title.Token, 0, c.extraMemBuf); err != nil {
		slog.Warn("storing extra user memory", "error", err)
	}
	c.extraMemBuf = nil
	c.Send(constants.ReplyExtraMemAck, nil)
}

func (h *Handler) launchRequest(ctx context.Context, c *Conn, payload string) {
	p := c.player
	if p == nil || p.Team == nil {
		return
	}
	line := fmt.Sprintf("%s %d", h.s.title.AdvertiseHost, h.s.title.AdvertisePort)
	h.broadcastTeamText(p.Team, constants.ReplyGameServer, line)
}

func (h *Handler) launchGame(ctx context.Context, c *Conn, payload string) {
	p := c.player
	if p == nil || p.Team == nil {
		return
	}
	t := p.Team
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d", len(t.Members))
	for _, m := range t.Members {
		fmt.Fprintf(&sb, " *%s %s", m.Name, m.IP.String())
	}
	h.broadcastTeamText(t, constants.ReplyLaunchGame, sb.String())

	if h.s.sink != nil {
		h.s.sink.NotifyGameLaunched(ctx, h.s.title.Name, p.Name, t.Name, t.MemberNames())
	}
}

// teardownPlayer tears all of a disconnecting player's back-references
// in a fixed order — Team, then Lobby, then the title's player directory
// — before releasing it (spec §9). Idempotent: a player with no
// team/lobby simply skips those steps. A player whose name was cleared
// (a session displaced by a new LOGIN) sends no leave broadcast.
func (h *Handler) teardownPlayer(ctx context.Context, p *domain.Player) {
	if p.Disconnected() {
		return
	}
	p.MarkDisconnected()

	if p.Team != nil {
		t := p.Team
		newHost, empty := t.RemovePlayer(p)
		if empty {
			t.Lobby.DeleteTeam(t.Name)
		} else {
			if p.Name != "" {
				h.broadcastTeamText(t, constants.ReplyTeamMemberLeft, p.Name)
			}
			if newHost != nil {
				h.broadcastTeamText(t, constants.ReplyTeamMemberLeft, "*"+newHost.Name)
			}
		}
	}

	if p.Lobby != nil {
		l := p.Lobby
		l.RemovePlayer(p)
		h.s.gcLobbyIfEmpty(l)
	}

	if h.s.players[p.Name] == p {
		delete(h.s.players, p.Name)
	}
}

// broadcastTeam fans a raw, already-encoded payload out to every member
// of t — used for binary records (shared-mem blobs) that don't go
// through the title's text encoding.
func broadcastTeam(t *domain.Team, opcode uint16, payload []byte) {
	for _, m := range t.Members {
		m.Send(opcode, payload)
	}
}

// broadcastTeamText encodes s once through the title's text encoding and
// fans it out to every member of t — all connections under one title
// share the same encoding, so there is no need to re-encode per member.
func (h *Handler) broadcastTeamText(t *domain.Team, opcode uint16, s string) {
	payload := h.s.title.Encoding.Encode(s)
	for _, m := range t.Members {
		m.Send(opcode, payload)
	}
}

func memberNames(l *domain.Lobby) []string {
	names := make([]string, len(l.Members))
	for i, m := range l.Members {
		names[i] = m.Name
	}
	return names
}

func findPlayer(players []*domain.Player, name string) *domain.Player {
	for _, p := range players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// afterFirstSpace returns everything after the first space, or the whole
// string if there is none — original_source/packet_processor.cpp's
// chatLobbyCommand discards only the leading token (an unused channel
// marker) and broadcasts the remainder verbatim.
func afterFirstSpace(s string) string {
	if idx := strings.IndexByte(s, ' '); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

// createSharedMemPacket builds the length-prefixed-string-plus-raw-bytes
// broadcast record original_source/models.h's
// Packet::createSharedMemPacket produces: a single length byte, the name,
// then the raw shared-memory bytes.
func createSharedMemPacket(sharedMem []byte, name string) []byte {
	buf := make([]byte, 0, 1+len(name)+len(sharedMem))
	buf = append(buf, byte(len(name)))
	buf = append(buf, name...)
	buf = append(buf, sharedMem...)
	return buf
}
