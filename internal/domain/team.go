package domain

// Team is a named sub-roster within a Lobby (spec §3 Team;
// original_source/models.h Team). The Lobby owns its Teams; a Team holds
// a non-owning back-reference to its parent Lobby and non-owning
// references to its member Players.
type Team struct {
	Name      string
	Capacity  int
	Flags     uint32
	HasSharedMem bool
	SharedMem [SharedMemSize]byte

	Lobby   *Lobby
	Host    *Player
	Members []*Player
}

// NewTeam creates an empty team owned by lobby, with creator as host.
func NewTeam(lobby *Lobby, name string, capacity int, creator *Player) *Team {
	t := &Team{
		Name:     name,
		Capacity: capacity,
		Lobby:    lobby,
		Host:     creator,
		Members:  []*Player{creator},
	}
	creator.Team = t
	return t
}

// Full reports whether the team is at capacity.
func (t *Team) Full() bool { return t.Capacity > 0 && len(t.Members) >= t.Capacity }

// IsHost reports whether p is the team's current host.
func (t *Team) IsHost(p *Player) bool { return t.Host == p }

// AddPlayer appends a member and marks it as belonging to this team.
// Capacity and duplicate checks are the caller's responsibility (they
// carry request-specific error codes per spec §7).
func (t *Team) AddPlayer(p *Player) {
	t.Members = append(t.Members, p)
	p.Team = t
}

// RemovePlayer removes p from the roster. If p was host and teammates
// remain, leadership passes to the next member in join order
// (original_source/models.h Team::removePlayer host-promotion,
// mirrored structurally on internal/model/party.go's RemoveMember). It
// returns the new host (nil if none promoted) and whether the team is
// now empty and should be deleted by the caller (Lobby.DeleteTeam).
func (t *Team) RemovePlayer(p *Player) (newHost *Player, empty bool) {
	for i, m := range t.Members {
		if m == p {
			t.Members = append(t.Members[:i], t.Members[i+1:]...)
			break
		}
	}
	p.Team = nil

	if len(t.Members) == 0 {
		t.Host = nil
		return nil, true
	}
	if t.Host == p {
		t.Host = t.Members[0]
		return t.Host, false
	}
	return nil, false
}

// MemberNames returns the members' names in roster order; the team-join
// broadcast space-joins them (spec §4.D).
func (t *Team) MemberNames() []string {
	names := make([]string, len(t.Members))
	for i, m := range t.Members {
		names[i] = m.Name
	}
	return names
}
