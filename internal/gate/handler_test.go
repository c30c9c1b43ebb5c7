package gate

import (
	"context"
	"testing"

	"github.com/iwango/iwango-server/internal/config"
	"github.com/iwango/iwango-server/internal/constants"
	"github.com/iwango/iwango-server/internal/protocol"
	"github.com/iwango/iwango-server/internal/store"
	"github.com/iwango/iwango-server/internal/title"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	cat, err := title.NewCatalog([]config.TitleConfig{
		{Token: "dayt", Name: "Daytona USA", AdvertiseHost: "127.0.0.1", AdvertisePort: 9501},
	})
	if err != nil {
		t.Fatalf("building catalog: %v", err)
	}
	return NewHandler(cat, store.NewMemStore())
}

func frame(payload string) protocol.GateFrame {
	return protocol.GateFrame{Payload: []byte(payload)}
}

func TestRequestFilterAnswersWithAdvertisement(t *testing.T) {
	h := newTestHandler(t)
	replies, err := h.Handle(context.Background(), frame("REQUEST_FILTER dayt"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(replies) != 3 {
		t.Fatalf("got %d replies, want 3", len(replies))
	}
	if replies[0].Opcode != constants.GateReplyFilterBegin || replies[2].Opcode != constants.GateReplyFilterEnd {
		t.Fatalf("unexpected envelope opcodes: %+v", replies)
	}
	if string(replies[1].Payload) != "DCNet 127.0.0.1 9501 1" {
		t.Fatalf("unexpected advertisement: %q", replies[1].Payload)
	}
}

func TestHandleAddThenDuplicateIsAlreadyExists(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	replies, err := h.Handle(ctx, frame("HANDLE_ADD alice dayt 1 Racer1"))
	if err != nil {
		t.Fatalf("handle add: %v", err)
	}
	if replies[0].Opcode != constants.GateReplyHandleAdded {
		t.Fatalf("opcode = %x, want handle-added", replies[0].Opcode)
	}

	replies, err = h.Handle(ctx, frame("HANDLE_ADD bob dayt 1 Racer1"))
	if err != nil {
		t.Fatalf("handle dup add: %v", err)
	}
	if replies[0].Opcode != constants.GateReplyNameInUse1 {
		t.Fatalf("opcode = %x, want name-in-use", replies[0].Opcode)
	}
}

func TestHandleListGetSynthetic(t *testing.T) {
	h := newTestHandler(t)
	replies, err := h.Handle(context.Background(), frame("HANDLE_LIST_GET flycast1 dayt"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if replies[0].Opcode != constants.GateReplyHandleList {
		t.Fatalf("opcode = %x, want handle-list", replies[0].Opcode)
	}
	if string(replies[0].Payload) != "1Player1" {
		t.Fatalf("unexpected synthetic reply: %q", replies[0].Payload)
	}

	replies2, err := h.Handle(context.Background(), frame("HANDLE_LIST_GET flycast2 dayt"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if string(replies2[0].Payload) != "1Player2" {
		t.Fatalf("second synthetic query should get a distinct handle, got %q", replies2[0].Payload)
	}
}

func TestHandleListGetDefaultFallback(t *testing.T) {
	h := newTestHandler(t)
	replies, err := h.Handle(context.Background(), frame("HANDLE_LIST_GET alice dayt"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if replies[0].Opcode != constants.GateReplyHandleList {
		t.Fatalf("opcode = %x, want handle-list", replies[0].Opcode)
	}
	if string(replies[0].Payload) != "1alice.us" {
		t.Fatalf("unexpected default-handle reply: %q", replies[0].Payload)
	}
}

func TestSanitizeAppendsDefaultSuffix(t *testing.T) {
	if got := sanitize("Racer1"); got != "Racer1.us" {
		t.Fatalf("got %q, want Racer1.us", got)
	}
	if got := sanitize("Racer1.jp"); got != "Racer1.jp" {
		t.Fatalf("existing suffix should be left alone, got %q", got)
	}
}
