package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// PostgresStore is the Store implementation backed by pgxpool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// New opens a pgxpool connection to dsn and verifies it with a ping.
func New(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Pool exposes the underlying pool, mainly so RunMigrations and tests can
// share one connection.
func (s *PostgresStore) Pool() *pgxpool.Pool { return s.pool }

// Close releases the connection pool.
func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) CreateHandle(ctx context.Context, h Handle) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_handle (user_name, game, handle_index, handle)
		VALUES ($1, $2, $3, $4)
	`, h.UserName, h.Game, h.HandleIndex, h.Handle)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("inserting handle: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReplaceHandle(ctx context.Context, h Handle) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE user_handle SET handle = $4
		WHERE user_name = $1 AND game = $2 AND handle_index = $3
	`, h.UserName, h.Game, h.HandleIndex, h.Handle)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("replacing handle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteHandle removes (userName, game, index) and shifts every handle
// above it down by one index, in a single transaction so a crash never
// leaves the list sparse (spec §4.B).
func (s *PostgresStore) DeleteHandle(ctx context.Context, userName, game string, index int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning delete-handle transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		DELETE FROM user_handle WHERE user_name = $1 AND game = $2 AND handle_index = $3
	`, userName, game, index)
	if err != nil {
		return fmt.Errorf("deleting handle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(ctx, `
		UPDATE user_handle SET handle_index = handle_index - 1
		WHERE user_name = $1 AND game = $2 AND handle_index > $3
	`, userName, game, index); err != nil {
		return fmt.Errorf("reindexing handles: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing delete-handle transaction: %w", err)
	}
	return nil
}

// ListHandles returns every handle (userName, game) has registered. If
// there are none and def is non-empty, a handle equal to def is created
// at index 0 and returned (spec §4.B "default handle fallback").
func (s *PostgresStore) ListHandles(ctx context.Context, userName, game, def string) ([]Handle, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_name, game, handle_index, handle FROM user_handle
		WHERE user_name = $1 AND game = $2
		ORDER BY handle_index
	`, userName, game)
	if err != nil {
		return nil, fmt.Errorf("querying handles: %w", err)
	}

	var out []Handle
	for rows.Next() {
		var h Handle
		if err := rows.Scan(&h.UserName, &h.Game, &h.HandleIndex, &h.Handle); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning handle row: %w", err)
		}
		out = append(out, h)
	}
	rerr := rows.Err()
	rows.Close()
	if rerr != nil {
		return nil, fmt.Errorf("iterating handle rows: %w", rerr)
	}

	if len(out) == 0 && def != "" {
		h := Handle{UserName: userName, Game: game, HandleIndex: 0, Handle: def}
		if err := s.CreateHandle(ctx, h); err != nil {
			return nil, fmt.Errorf("creating default handle: %w", err)
		}
		out = []Handle{h}
	}
	return out, nil
}

// GetBlob reads up to length bytes of the stored blob starting at
// offset, zero-filling any span past the blob's stored length.
func (s *PostgresStore) GetBlob(ctx context.Context, userName, game string, offset, length int) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT extramem FROM user_extramem WHERE user_name = $1 AND game = $2
	`, userName, game).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying blob: %w", err)
	}

	out := make([]byte, length)
	copy(out, data[min(offset, len(data)):min(offset+length, len(data))])
	return out, nil
}

// PutBlob overwrites the stored blob starting at offset, growing it
// (zero-filling any gap) as needed, capped at MaxBlobSize.
func (s *PostgresStore) PutBlob(ctx context.Context, userName, game string, offset int, data []byte) error {
	var existing []byte
	err := s.pool.QueryRow(ctx, `
		SELECT extramem FROM user_extramem WHERE user_name = $1 AND game = $2
	`, userName, game).Scan(&existing)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("querying blob: %w", err)
	}

	need := offset + len(data)
	if need > MaxBlobSize {
		need = MaxBlobSize
	}
	if len(existing) < need {
		grown := make([]byte, need)
		copy(grown, existing)
		existing = grown
	}
	copy(existing[offset:], data)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO user_extramem (user_name, game, extramem)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_name, game) DO UPDATE SET extramem = EXCLUDED.extramem
	`, userName, game, existing)
	if err != nil {
		return fmt.Errorf("upserting blob: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}
