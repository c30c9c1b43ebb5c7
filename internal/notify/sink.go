// Package notify implements the bounded webhook notification sink (spec
// §4.G): a best-effort, rate-limited fan-out of lobby-join and
// game-launch events to an external webhook. Per spec §1 the webhook
// HTTP client itself is an out-of-scope external collaborator; this
// package owns only the bounded-concurrency and rate-limiting logic
// around it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Event is one notification payload, shaped after
// original_source/discord.h's discordLobbyJoined/discordGameCreated
// calls: a title name, a username, a room name, and its current member
// list.
type Event struct {
	Kind    string   `json:"kind"` // "lobby_joined" or "game_launched"
	Title   string   `json:"title"`
	User    string   `json:"user"`
	Room    string   `json:"room"`
	Members []string `json:"members"`
}

// Sink fans events out to a webhook URL with at most MaxConcurrent POSTs
// in flight at once (excess events are dropped, not queued — spec §4.G
// describes a best-effort notifier, not a durable one) and rate-limits
// "lobby_joined" events per (title, room) pair.
type Sink struct {
	url            string
	client         *http.Client
	sem            chan struct{}
	requestTimeout time.Duration

	mu       sync.Mutex
	lastJoin map[string]time.Time
	joinRate time.Duration
}

// New builds a Sink. If url is empty the sink is disabled: Notify
// becomes a no-op so the rest of the system doesn't need a nil check.
func New(url string, maxConcurrent int, joinRate, requestTimeout time.Duration) *Sink {
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	return &Sink{
		url:            url,
		client:         &http.Client{Timeout: requestTimeout},
		sem:            make(chan struct{}, maxConcurrent),
		requestTimeout: requestTimeout,
		lastJoin:       make(map[string]time.Time),
		joinRate:       joinRate,
	}
}

// NotifyLobbyJoined reports a player joining a lobby, rate-limited to
// once per joinRate interval per (title, room).
func (s *Sink) NotifyLobbyJoined(ctx context.Context, title, user, room string, members []string) {
	if s == nil || s.url == "" {
		return
	}

	key := title + "\x00" + room
	s.mu.Lock()
	last, seen := s.lastJoin[key]
	if seen && time.Since(last) < s.joinRate {
		s.mu.Unlock()
		return
	}
	s.lastJoin[key] = time.Now()
	s.mu.Unlock()

	s.dispatch(ctx, Event{Kind: "lobby_joined", Title: title, User: user, Room: room, Members: members})
}

// NotifyGameLaunched reports a team launching into a game, supplemented
// from original_source/discord.h's discordGameCreated (not rate-limited;
// launches are inherently infrequent relative to lobby joins).
func (s *Sink) NotifyGameLaunched(ctx context.Context, title, user, room string, members []string) {
	if s == nil || s.url == "" {
		return
	}
	s.dispatch(ctx, Event{Kind: "game_launched", Title: title, User: user, Room: room, Members: members})
}

// dispatch drops the event rather than blocking once MaxConcurrent POSTs
// are already outstanding.
func (s *Sink) dispatch(ctx context.Context, ev Event) {
	select {
	case s.sem <- struct{}{}:
	default:
		slog.Warn("notification sink saturated, dropping event", "kind", ev.Kind, "title", ev.Title)
		return
	}

	go func() {
		defer func() { <-s.sem }()

		reqCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()

		body, err := json.Marshal(ev)
		if err != nil {
			slog.Error("marshaling notification event", "error", err)
			return
		}

		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			slog.Error("building notification request", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			slog.Warn("posting notification", "error", err, "kind", ev.Kind)
			return
		}
		_ = resp.Body.Close()
		if resp.StatusCode >= 300 {
			slog.Warn("notification webhook returned non-2xx", "status", resp.StatusCode, "kind", ev.Kind)
		}
	}()
}
