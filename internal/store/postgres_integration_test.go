//go:build integration

package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestStore spins up a disposable Postgres container, runs the
// migrations against it, and returns a connected PostgresStore. Grounded
// on internal/db/testhelpers_test.go's container-per-TestMain pattern,
// scoped per-test here since Store has no other package-level state to
// share.
func newTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("iwango_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp")),
	)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	if err := RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	s, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("connecting store: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestPostgresStoreHandleLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	h := Handle{UserName: "alice", Game: "dayt", HandleIndex: 1, Handle: "Racer1"}
	if err := s.CreateHandle(ctx, h); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := Handle{UserName: "bob", Game: "dayt", HandleIndex: 1, Handle: "Racer1"}
	if err := s.CreateHandle(ctx, dup); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	h.Handle = "Racer1x"
	if err := s.ReplaceHandle(ctx, h); err != nil {
		t.Fatalf("replace: %v", err)
	}

	handles, err := s.ListHandles(ctx, "alice", "dayt", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(handles) != 1 || handles[0].Handle != "Racer1x" {
		t.Fatalf("unexpected handles: %+v", handles)
	}

	if err := s.DeleteHandle(ctx, "alice", "dayt", 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteHandle(ctx, "alice", "dayt", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestPostgresStoreDeleteHandleShiftsIndices(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, name := range []string{"A", "B", "C", "D"} {
		h := Handle{UserName: "alice", Game: "dayt", HandleIndex: i, Handle: name}
		if err := s.CreateHandle(ctx, h); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	if err := s.DeleteHandle(ctx, "alice", "dayt", 1); err != nil {
		t.Fatalf("delete: %v", err)
	}

	handles, err := s.ListHandles(ctx, "alice", "dayt", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := map[int]string{0: "A", 1: "C", 2: "D"}
	if len(handles) != len(want) {
		t.Fatalf("got %d handles, want %d", len(handles), len(want))
	}
	for _, h := range handles {
		if want[h.HandleIndex] != h.Handle {
			t.Fatalf("index %d = %q, want %q", h.HandleIndex, h.Handle, want[h.HandleIndex])
		}
	}
}

func TestPostgresStoreListHandlesDefaultFallback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	handles, err := s.ListHandles(ctx, "alice", "dayt", "DefaultName")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(handles) != 1 || handles[0].HandleIndex != 0 || handles[0].Handle != "DefaultName" {
		t.Fatalf("unexpected default fallback: %+v", handles)
	}
}

func TestPostgresStoreBlobUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.PutBlob(ctx, "alice", "dayt", 0, []byte("one")); err != nil {
		t.Fatalf("put 1: %v", err)
	}
	if err := s.PutBlob(ctx, "alice", "dayt", 0, []byte("two")); err != nil {
		t.Fatalf("put 2: %v", err)
	}

	got, err := s.GetBlob(ctx, "alice", "dayt", 0, 3)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "two" {
		t.Fatalf("got %q, want %q", got, fmt.Sprint("two"))
	}
}

func TestPostgresStoreGetBlobWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.PutBlob(ctx, "alice", "dayt", 2, []byte{0xAA, 0xBB}); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.GetBlob(ctx, "alice", "dayt", 0, 4)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := []byte{0x00, 0x00, 0xAA, 0xBB}
	if string(got) != string(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
