package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemStore is an in-memory Store used by handler/domain tests that don't
// need a real database.
type MemStore struct {
	mu      sync.Mutex
	handles map[string]Handle // key: game+"\x00"+handle
	rows    map[string]Handle // key: userName+"\x00"+game+"\x00"+index
	blobs   map[string][]byte // key: userName+"\x00"+game
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		handles: make(map[string]Handle),
		rows:    make(map[string]Handle),
		blobs:   make(map[string][]byte),
	}
}

func handleKey(game, handle string) string   { return game + "\x00" + handle }
func rowKey(user, game string, idx int) string {
	return fmt.Sprintf("%s\x00%s\x00%d", user, game, idx)
}
func blobKey(user, game string) string { return user + "\x00" + game }

func (m *MemStore) CreateHandle(_ context.Context, h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rk := rowKey(h.UserName, h.Game, h.HandleIndex)
	if _, exists := m.rows[rk]; exists {
		return ErrAlreadyExists
	}
	hk := handleKey(h.Game, h.Handle)
	if _, exists := m.handles[hk]; exists {
		return ErrAlreadyExists
	}

	m.rows[rk] = h
	m.handles[hk] = h
	return nil
}

func (m *MemStore) ReplaceHandle(_ context.Context, h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rk := rowKey(h.UserName, h.Game, h.HandleIndex)
	old, exists := m.rows[rk]
	if !exists {
		return ErrNotFound
	}
	hk := handleKey(h.Game, h.Handle)
	if existing, ok := m.handles[hk]; ok && (existing.UserName != h.UserName || existing.HandleIndex != h.HandleIndex) {
		return ErrAlreadyExists
	}

	delete(m.handles, handleKey(old.Game, old.Handle))
	m.rows[rk] = h
	m.handles[hk] = h
	return nil
}

func (m *MemStore) DeleteHandle(_ context.Context, userName, game string, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rk := rowKey(userName, game, index)
	h, exists := m.rows[rk]
	if !exists {
		return ErrNotFound
	}
	delete(m.rows, rk)
	delete(m.handles, handleKey(h.Game, h.Handle))

	// Shift every handle above index down by one so the list stays dense.
	var toShift []Handle
	for _, row := range m.rows {
		if row.UserName == userName && row.Game == game && row.HandleIndex > index {
			toShift = append(toShift, row)
		}
	}
	// Lowest index first, so each row moves into a slot already vacated.
	sort.Slice(toShift, func(i, j int) bool { return toShift[i].HandleIndex < toShift[j].HandleIndex })
	for _, row := range toShift {
		delete(m.rows, rowKey(row.UserName, row.Game, row.HandleIndex))
		row.HandleIndex--
		m.rows[rowKey(row.UserName, row.Game, row.HandleIndex)] = row
		m.handles[handleKey(row.Game, row.Handle)] = row
	}
	return nil
}

func (m *MemStore) ListHandles(ctx context.Context, userName, game, def string) ([]Handle, error) {
	m.mu.Lock()
	var out []Handle
	for _, h := range m.rows {
		if h.UserName == userName && h.Game == game {
			out = append(out, h)
		}
	}
	m.mu.Unlock()

	if len(out) == 0 && def != "" {
		h := Handle{UserName: userName, Game: game, HandleIndex: 0, Handle: def}
		if err := m.CreateHandle(ctx, h); err != nil {
			return nil, err
		}
		out = []Handle{h}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].HandleIndex < out[j].HandleIndex })
	return out, nil
}

func (m *MemStore) GetBlob(_ context.Context, userName, game string, offset, length int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.blobs[blobKey(userName, game)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, length)
	copy(out, data[min(offset, len(data)):min(offset+length, len(data))])
	return out, nil
}

func (m *MemStore) PutBlob(_ context.Context, userName, game string, offset int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := blobKey(userName, game)
	need := offset + len(data)
	if need > MaxBlobSize {
		need = MaxBlobSize
	}
	blob := m.blobs[key]
	if len(blob) < need {
		grown := make([]byte, need)
		copy(grown, blob)
		blob = grown
	}
	copy(blob[offset:], data)
	m.blobs[key] = blob
	return nil
}

func (m *MemStore) Close() {}
