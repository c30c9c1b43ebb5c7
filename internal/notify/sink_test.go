package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestSinkDisabledWithoutURL(t *testing.T) {
	s := New("", 5, time.Minute, time.Second)
	// Should not panic or block; there's nothing listening.
	s.NotifyLobbyJoined(context.Background(), "dayt", "alice", "main", []string{"alice"})
}

func TestSinkPostsToWebhook(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := New(server.URL, 5, time.Minute, time.Second)
	s.NotifyLobbyJoined(context.Background(), "dayt", "alice", "main", []string{"alice"})

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&calls) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("got %d calls, want 1", calls)
	}
}

func TestSinkRateLimitsLobbyJoins(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := New(server.URL, 5, time.Hour, time.Second)
	s.NotifyLobbyJoined(context.Background(), "dayt", "alice", "main", nil)
	s.NotifyLobbyJoined(context.Background(), "dayt", "bob", "main", nil)

	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("got %d calls, want 1 (second should be rate-limited)", calls)
	}
}
