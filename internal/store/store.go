// Package store implements the persistence component (spec §4.B):
// per-game handle directories and opaque extra-user-memory blobs backed
// by PostgreSQL.
package store

import (
	"context"
	"errors"
)

// Sentinel errors returned by Store methods; callers compare with
// errors.Is. These map onto the ALREADY_EXISTS/NOT_FOUND taxonomy of
// spec §7.
var (
	ErrAlreadyExists = errors.New("store: already exists")
	ErrNotFound       = errors.New("store: not found")
)

// MaxBlobSize is the largest extra-user-memory blob a PutBlob write may
// grow to (spec §4.B; original_source/models.cpp Player::startExtraMem
// asserts offset+length <= 0x2000).
const MaxBlobSize = 0x2000

// Handle is one row of USER_HANDLE: a user's Nth handle for a game.
type Handle struct {
	UserName    string
	Game        string
	HandleIndex int
	Handle      string
}

// Store is the persistence interface the gate engine and lobby engines
// depend on. A single PostgreSQL-backed implementation is provided in
// postgres.go; the interface exists so handlers can be tested against an
// in-memory fake without a database.
type Store interface {
	// CreateHandle inserts a new handle for (userName, game, index).
	// Returns ErrAlreadyExists if the game already has this handle text
	// assigned to any user (at any index), or if (userName, game, index)
	// is already occupied.
	CreateHandle(ctx context.Context, h Handle) error

	// ReplaceHandle overwrites an existing (userName, game, index) row's
	// handle text. Returns ErrAlreadyExists if the new text is already
	// held by any other row in the same game (another user's, or this
	// user's at a different index), ErrNotFound if the row doesn't exist.
	ReplaceHandle(ctx context.Context, h Handle) error

	// DeleteHandle removes (userName, game, index), then shifts every
	// remaining handle with a higher index down by one so the user's
	// handle list stays dense and 0-based. Returns ErrNotFound if it
	// doesn't exist.
	DeleteHandle(ctx context.Context, userName, game string, index int) error

	// ListHandles returns every handle a user has registered for a game,
	// ordered by HandleIndex. If the user has none and def is non-empty,
	// a handle equal to def is created at index 0 and returned as the
	// user's sole handle.
	ListHandles(ctx context.Context, userName, game, def string) ([]Handle, error)

	// GetBlob returns up to length bytes of the extra-user-memory blob
	// for (userName, game) starting at offset. Returns ErrNotFound if no
	// blob has been registered; a read past the stored length is
	// zero-filled rather than truncated.
	GetBlob(ctx context.Context, userName, game string, offset, length int) ([]byte, error)

	// PutBlob overwrites the extra-user-memory blob for (userName, game)
	// starting at offset, growing the blob (zero-filling any gap) as
	// needed. The combined offset+len(data) is capped at MaxBlobSize.
	PutBlob(ctx context.Context, userName, game string, offset int, data []byte) error

	// Close releases the underlying connection pool.
	Close()
}
