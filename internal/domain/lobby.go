package domain

// Lobby is a named room players gather in before forming Teams (spec §3
// Lobby; original_source/models.h Lobby). A Lobby owns its Players and
// Teams outright; Players and Teams only hold non-owning back-references
// to it.
type Lobby struct {
	Name         string
	Capacity     int
	Flags        uint32
	HasSharedMem bool
	SharedMem    [SharedMemSize]byte
	GameName     string

	// Ephemeral lobbies were created on demand by ENTR_LOBBY and are
	// garbage-collected once their last member leaves (spec §4.D
	// "ephemeral lobby GC"). Non-ephemeral lobbies (pre-configured,
	// permanent) are never GC'd even when empty.
	Ephemeral bool

	Members []*Player
	Teams   map[string]*Team
}

// NewLobby creates an empty lobby.
func NewLobby(name string, capacity int, ephemeral bool) *Lobby {
	return &Lobby{
		Name:      name,
		Capacity:  capacity,
		Ephemeral: ephemeral,
		Teams:     make(map[string]*Team),
	}
}

// Full reports whether the lobby is at capacity.
func (l *Lobby) Full() bool { return l.Capacity > 0 && len(l.Members) >= l.Capacity }

// AddPlayer appends a member and marks it as belonging to this lobby.
func (l *Lobby) AddPlayer(p *Player) {
	l.Members = append(l.Members, p)
	p.Lobby = l
}

// RemovePlayer removes p from the roster and clears its back-reference.
// Returns true if the lobby is now empty (the caller GCs ephemeral
// lobbies on this signal, spec §4.D/§9).
func (l *Lobby) RemovePlayer(p *Player) (empty bool) {
	for i, m := range l.Members {
		if m == p {
			l.Members = append(l.Members[:i], l.Members[i+1:]...)
			break
		}
	}
	p.Lobby = nil
	return len(l.Members) == 0
}

// CreateTeam registers a new team under this lobby. Returns false if a
// team with that name already exists.
func (l *Lobby) CreateTeam(name string, capacity int, creator *Player) (*Team, bool) {
	if _, exists := l.Teams[name]; exists {
		return nil, false
	}
	t := NewTeam(l, name, capacity, creator)
	l.Teams[name] = t
	return t, true
}

// GetTeam looks a team up by name.
func (l *Lobby) GetTeam(name string) (*Team, bool) {
	t, ok := l.Teams[name]
	return t, ok
}

// DeleteTeam removes a team from the lobby (called once Team.RemovePlayer
// reports the team is empty).
func (l *Lobby) DeleteTeam(name string) {
	delete(l.Teams, name)
}

// TeamList returns every team currently registered in join order is not
// guaranteed; callers needing a stable order should sort by name.
func (l *Lobby) TeamList() []*Team {
	out := make([]*Team, 0, len(l.Teams))
	for _, t := range l.Teams {
		out = append(out, t)
	}
	return out
}
