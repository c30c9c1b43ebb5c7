// Package domain implements the matchmaking graph: Player, Lobby, and
// Team (spec §3), with the back-references each holds to the others.
// None of these types synchronize internally — spec §5 requires every
// mutation of this graph to run on the single command-processing
// goroutine its owning Title-Server runs (internal/lobby.Server); these
// types are plain structs mutated only from there.
package domain

import (
	"fmt"
	"net"
	"strings"
)

// SharedMemSize is the fixed width of a player's or team's shared-memory
// blob (spec §3; original_source/models.h Player::sharedMem).
const SharedMemSize = 30

// Sender delivers an encoded frame to the connection behind a Player.
// internal/lobby's connection implements this; domain stays free of
// socket/goroutine concerns.
type Sender interface {
	Send(opcode uint16, payload []byte)
}

// Player is one connected, logged-in client (spec §3 Player).
type Player struct {
	Name      string
	IP        net.IP
	Port      uint16
	Flags     uint32
	SharedMem [SharedMemSize]byte

	// Lobby and Team are non-owning back-references: a Player never
	// outlives the Lobby/Team it points at because removal always
	// clears these before the owning collection forgets the player.
	Lobby *Lobby
	Team  *Team

	conn        Sender
	disconnected bool
}

// NewPlayer constructs a Player bound to the connection that will
// deliver frames to it.
func NewPlayer(name string, ip net.IP, port uint16, conn Sender) *Player {
	return &Player{Name: name, IP: ip, Port: port, conn: conn}
}

// Send delivers a frame to this player's connection. A no-op once the
// player has disconnected, matching the original's "disconnect
// suppresses further sends" behavior.
func (p *Player) Send(opcode uint16, payload []byte) {
	if p.disconnected || p.conn == nil {
		return
	}
	p.conn.Send(opcode, payload)
}

// Disconnected reports whether MarkDisconnected has already run for this
// player; DISCONNECT and IDLE_TIMEOUT teardown is idempotent.
func (p *Player) Disconnected() bool { return p.disconnected }

// MarkDisconnected flips the one-shot disconnected flag. Teardown order
// (Team, then Lobby, then directory) is the caller's responsibility
// (spec §9): this only stops further sends.
func (p *Player) MarkDisconnected() { p.disconnected = true }

// IPUint32 returns the IPv4 address as a big-endian uint32, the form the
// wire protocol's player records use.
func (p *Player) IPUint32() uint32 {
	ip4 := p.IP.To4()
	if ip4 == nil {
		return 0
	}
	return uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3])
}

// SendDataPacket builds the broadcast record describing this player for
// REFRESH_PLAYERS replies (spec §4.D "Player broadcast record format";
// original_source/models.cpp Player::getSendDataPacket): a length-prefixed
// "<lobby-or-#> <*?name> <flags> <*team-or-#> *<title>" string, a
// constant marker byte, the 30-byte shared memory block, and the 4-byte
// big-endian IPv4 address. gameName is the owning title's advertised
// name, since a Player carries no back-reference to its Title.
func (p *Player) SendDataPacket(gameName string) []byte {
	var ss strings.Builder
	if p.Lobby != nil {
		ss.WriteString(p.Lobby.Name)
	} else {
		ss.WriteByte('#')
	}
	ss.WriteByte(' ')
	if p.Team != nil && p.Team.IsHost(p) {
		ss.WriteByte('*')
	}
	fmt.Fprintf(&ss, "%s %d ", p.Name, p.Flags)
	if p.Team != nil {
		ss.WriteByte('*')
		ss.WriteString(p.Team.Name)
	} else {
		ss.WriteByte('#')
	}
	fmt.Fprintf(&ss, " *%s", gameName)

	strData := []byte(ss.String())
	buf := make([]byte, 0, 1+len(strData)+1+SharedMemSize+4)
	buf = append(buf, byte(len(strData)))
	buf = append(buf, strData...)
	buf = append(buf, 0x01)
	buf = append(buf, p.SharedMem[:]...)
	ipVal := p.IPUint32()
	buf = append(buf, byte(ipVal>>24), byte(ipVal>>16), byte(ipVal>>8), byte(ipVal))
	return buf
}

// SetSharedMem overwrites the player's shared-memory block. Any payload
// whose length isn't exactly SharedMemSize is rejected
// (original_source/models.cpp Player::setSharedMem); the caller decides
// whether to log and is only responsible for the team fan-out on
// success.
func (p *Player) SetSharedMem(data []byte) bool {
	if len(data) != SharedMemSize {
		return false
	}
	copy(p.SharedMem[:], data)
	return true
}
