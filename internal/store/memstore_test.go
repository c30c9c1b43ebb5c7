package store

import (
	"context"
	"errors"
	"testing"
)

func TestMemStoreCreateHandleAlreadyExists(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	h := Handle{UserName: "alice", Game: "dayt", HandleIndex: 1, Handle: "Racer1"}
	if err := s.CreateHandle(ctx, h); err != nil {
		t.Fatalf("first create: %v", err)
	}

	dup := Handle{UserName: "bob", Game: "dayt", HandleIndex: 1, Handle: "Racer1"}
	err := s.CreateHandle(ctx, dup)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestMemStoreReplaceHandleNotFound(t *testing.T) {
	s := NewMemStore()
	err := s.ReplaceHandle(context.Background(), Handle{UserName: "alice", Game: "dayt", HandleIndex: 1, Handle: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStoreListHandlesOrder(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		h := Handle{UserName: "alice", Game: "dayt", HandleIndex: i, Handle: "H" + string(rune('0'+i))}
		if err := s.CreateHandle(ctx, h); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	handles, err := s.ListHandles(ctx, "alice", "dayt", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(handles) != 3 {
		t.Fatalf("got %d handles, want 3", len(handles))
	}
	for i, h := range handles {
		if h.HandleIndex != i+1 {
			t.Fatalf("handles[%d].HandleIndex = %d, want %d", i, h.HandleIndex, i+1)
		}
	}
}

func TestMemStoreListHandlesDefaultFallback(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	handles, err := s.ListHandles(ctx, "alice", "dayt", "DefaultName")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(handles) != 1 || handles[0].HandleIndex != 0 || handles[0].Handle != "DefaultName" {
		t.Fatalf("unexpected default fallback: %+v", handles)
	}

	again, err := s.ListHandles(ctx, "alice", "dayt", "DefaultName")
	if err != nil {
		t.Fatalf("list again: %v", err)
	}
	if len(again) != 1 {
		t.Fatalf("default handle was recreated, got %+v", again)
	}
}

func TestMemStoreDeleteHandleShiftsIndices(t *testing.T) {
	s := NewMemStore()
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

func TestMemStoreBlobRoundTrip(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if _, err := s.GetBlob(ctx, "alice", "dayt", 0, 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before put, got %v", err)
	}

	data := []byte{0x01, 0x02, 0x03}
	if err := s.PutBlob(ctx, "alice", "dayt", 0, data); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.GetBlob(ctx, "alice", "dayt", 0, 3)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("got %v, want %v", got, data)
	}
}

func TestMemStorePutBlobGrowsWithOffset(t *testing.T) {
	s := NewMemStore()
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
