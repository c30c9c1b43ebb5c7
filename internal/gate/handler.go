package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/iwango/iwango-server/internal/constants"
	"github.com/iwango/iwango-server/internal/protocol"
	"github.com/iwango/iwango-server/internal/store"
	"github.com/iwango/iwango-server/internal/title"
)

// Reply is one frame the gate engine sends back in response to a
// request; a single request can produce several (REQUEST_FILTER brackets
// its answer between a begin and end marker, spec §4.C).
type Reply struct {
	Opcode  uint16
	Payload []byte
}

// Handler implements the Gate engine's request table (spec §4.C):
// REQUEST_FILTER, HANDLE_LIST_GET, HANDLE_ADD, HANDLE_REPLACE,
// HANDLE_DELETE, dispatched on the first space-separated token of the
// frame payload — the same dispatch shape as
// original_source/gate_server.cpp's processRequest.
type Handler struct {
	catalog *title.Catalog
	store   store.Store

	mu                sync.Mutex
	syntheticAssigned map[string]map[int]bool // game -> assigned Player<N> slots
}

// NewHandler builds a gate Handler.
func NewHandler(catalog *title.Catalog, st store.Store) *Handler {
	return &Handler{
		catalog:           catalog,
		store:             st,
		syntheticAssigned: make(map[string]map[int]bool),
	}
}

// assignSyntheticHandle picks the lowest unused Player<N> (1..99) for
// game and marks it taken (spec §4.C: synthetic users "receive a
// server-assigned unused Player<N>"). Handler.Handle runs on one
// goroutine per connection, so this is mutex-guarded.
func (h *Handler) assignSyntheticHandle(game string) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	used := h.syntheticAssigned[game]
	if used == nil {
		used = make(map[int]bool)
		h.syntheticAssigned[game] = used
	}
	for n := 1; n <= 99; n++ {
		if !used[n] {
			used[n] = true
			return fmt.Sprintf("Player%d", n)
		}
	}
	return "Player99"
}

// syntheticUsers are gate identities with no persisted handle list: the
// Gate engine answers their HANDLE_LIST_GET with a single-entry list
// holding a server-assigned Player<N> (spec §4.C).
var syntheticUsers = map[string]bool{
	constants.SyntheticUserFlycast1: true,
	constants.SyntheticUserFlycast2: true,
	constants.SyntheticUserDream:    true,
}

// Handle dispatches one gate frame and returns the reply frames to send.
func (h *Handler) Handle(ctx context.Context, frame protocol.GateFrame) ([]Reply, error) {
	text := string(frame.Payload)
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("malformed gate request: empty payload")
	}

	switch tokens[0] {
	case constants.GateRequestFilter:
		return h.requestFilter(tokens)
	case constants.GateHandleListGet:
		return h.handleListGet(ctx, tokens)
	case constants.GateHandleAdd:
		return h.handleAdd(ctx, tokens)
	case constants.GateHandleReplace:
		return h.handleReplace(ctx, tokens)
	case constants.GateHandleDelete:
		return h.handleDelete(ctx, tokens)
	default:
		return nil, fmt.Errorf("unknown gate opcode %q", tokens[0])
	}
}

// requestFilter answers with the requested title's lobby advertisement:
// REQUEST_FILTER <token>. Grounded on gate_server.cpp's three-frame
// begin/DCNet-entry/end envelope.
func (h *Handler) requestFilter(tokens []string) ([]Reply, error) {
	if len(tokens) < 2 {
		return nil, fmt.Errorf("bad REQUEST_FILTER arguments")
	}
	t, ok := h.catalog.ByToken(tokens[1])
	if !ok {
		return nil, fmt.Errorf("unknown title token %q", tokens[1])
	}

	entry := fmt.Sprintf("DCNet %s %d 1", t.AdvertiseHost, t.AdvertisePort)
	return []Reply{
		{Opcode: constants.GateReplyFilterBegin},
		{Opcode: constants.GateReplyFilterEntry, Payload: []byte(entry)},
		{Opcode: constants.GateReplyFilterEnd},
	}, nil
}

// handleListGet answers HANDLE_LIST_GET <user> <game> with the user's
// registered handles for that game: the reply payload concatenates
// "<1-based-index><handle>" per entry, space-joined (spec §4.C, e.g.
// "1A 2C 3D"). If the user has none, a default handle is created and
// returned as the sole entry. Synthetic users have no persisted
// handles at all; each query hands them a fresh server-assigned
// Player<N> instead of echoing their own name.
func (h *Handler) handleListGet(ctx context.Context, tokens []string) ([]Reply, error) {
	if len(tokens) < 3 {
		return nil, fmt.Errorf("bad HANDLE_LIST_GET arguments")
	}
	user, game := tokens[1], tokens[2]

	if syntheticUsers[user] {
		handle := h.assignSyntheticHandle(game)
		return []Reply{{Opcode: constants.GateReplyHandleList, Payload: []byte("1" + handle)}}, nil
	}

	handles, err := h.store.ListHandles(ctx, user, game, sanitize(user))
	if err != nil {
		return nil, fmt.Errorf("listing handles: %w", err)
	}

	var sb strings.Builder
	for i, hh := range handles {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%d%s", hh.HandleIndex+1, hh.Handle)
	}
	return []Reply{{Opcode: constants.GateReplyHandleList, Payload: []byte(sb.String())}}, nil
}

// handleAdd implements HANDLE_ADD <user> <game> <index> <handle>.
func (h *Handler) handleAdd(ctx context.Context, tokens []string) ([]Reply, error) {
	hh, err := parseHandleTokens(tokens)
	if err != nil {
		return nil, err
	}
	hh.Handle = sanitize(hh.Handle)

	err = h.store.CreateHandle(ctx, hh)
	switch {
	case err == nil:
		return []Reply{{Opcode: constants.GateReplyHandleAdded}}, nil
	case errors.Is(err, store.ErrAlreadyExists):
		return []Reply{{Opcode: constants.GateReplyNameInUse1}}, nil
	default:
		return []Reply{{Opcode: constants.GateReplyError1}}, fmt.Errorf("creating handle: %w", err)
	}
}

// handleReplace implements HANDLE_REPLACE <user> <game> <index> <handle>.
func (h *Handler) handleReplace(ctx context.Context, tokens []string) ([]Reply, error) {
	hh, err := parseHandleTokens(tokens)
	if err != nil {
		return nil, err
	}
	hh.Handle = sanitize(hh.Handle)

	err = h.store.ReplaceHandle(ctx, hh)
	switch {
	case err == nil:
		return []Reply{{Opcode: constants.GateReplyHandleReplaced}}, nil
	case errors.Is(err, store.ErrAlreadyExists):
		return []Reply{{Opcode: constants.GateReplyNameInUse2}}, nil
	case errors.Is(err, store.ErrNotFound):
		return []Reply{{Opcode: constants.GateReplyError1}}, nil
	default:
		return []Reply{{Opcode: constants.GateReplyError1}}, fmt.Errorf("replacing handle: %w", err)
	}
}

// handleDelete implements HANDLE_DELETE <user> <game> <index>.
func (h *Handler) handleDelete(ctx context.Context, tokens []string) ([]Reply, error) {
	if len(tokens) < 4 {
		return nil, fmt.Errorf("bad HANDLE_DELETE arguments")
	}
	user, game := tokens[1], tokens[2]
	index, err := parseIndex(tokens[3])
	if err != nil {
		return nil, err
	}

	err = h.store.DeleteHandle(ctx, user, game, index)
	switch {
	case err == nil:
		return []Reply{{Opcode: constants.GateReplyHandleDeleted}}, nil
	case errors.Is(err, store.ErrNotFound):
		return []Reply{{Opcode: constants.GateReplyError1}}, nil
	default:
		return []Reply{{Opcode: constants.GateReplyError1}}, fmt.Errorf("deleting handle: %w", err)
	}
}

func parseHandleTokens(tokens []string) (store.Handle, error) {
	if len(tokens) < 5 {
		return store.Handle{}, fmt.Errorf("bad handle request arguments")
	}
	index, err := parseIndex(tokens[3])
	if err != nil {
		return store.Handle{}, err
	}
	return store.Handle{
		UserName:    tokens[1],
		Game:        tokens[2],
		HandleIndex: index,
		Handle:      tokens[4],
	}, nil
}

func parseIndex(s string) (int, error) {
	var index int
	if _, err := fmt.Sscanf(s, "%d", &index); err != nil {
		return 0, fmt.Errorf("bad handle index %q: %w", s, err)
	}
	return index, nil
}

// sanitize applies the default handle-naming convention: a bare handle
// with no game-specific suffix gets a ".us" suffix appended, following
// the flagship title's convention observed in gate_server.cpp. Handles
// are NFC-normalized first so two byte-distinct encodings of the same
// visible name (e.g. a precomposed accent vs. a combining one) collide
// on the same persisted row instead of silently coexisting.
func sanitize(handle string) string {
	handle = norm.NFC.String(strings.TrimSpace(handle))
	if handle == "" || strings.Contains(handle, ".") {
		return handle
	}
	return handle + ".us"
}
