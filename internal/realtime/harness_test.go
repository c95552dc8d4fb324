package realtime_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/plank/internal/domain"
	"github.com/gosuda/plank/internal/permission"
	"github.com/gosuda/plank/internal/realtime"
)

// event is an Envelope as a client decodes it.
type event struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	BoardID   string          `json:"board_id"`
	ActorID   string          `json:"actor_id"`
	Seq       uint64          `json:"seq"`
	TS        time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
	raw       []byte
}

type harness struct {
	store    *memStore
	registry *realtime.Registry
	router   *realtime.Router
	board    uuid.UUID
}

func newHarness(t *testing.T, opts ...realtime.RouterOption) *harness {
	t.Helper()

	store := newMemStore()
	registry := realtime.NewRegistry()
	t.Cleanup(registry.Close)

	return &harness{
		store:    store,
		registry: registry,
		router:   realtime.NewRouter(store, permission.NewGuard(store.Boards()), registry, opts...),
		board:    store.addBoard("roadmap"),
	}
}

// connect registers a connection for a new user holding role on the harness
// board. An empty role grants nothing.
func (h *harness) connect(t *testing.T, name string, role domain.Role) *realtime.Conn {
	t.Helper()
	return h.connectAs(t, domain.Identity{UserID: uuid.New(), Username: name}, role, 64)
}

func (h *harness) connectAs(t *testing.T, id domain.Identity, role domain.Role, buffer int) *realtime.Conn {
	t.Helper()

	if role != "" {
		h.store.grant(h.board, id.UserID, role)
	}
	conn := realtime.NewConn(id, buffer, nil)
	require.NoError(t, h.registry.Add(conn))
	return conn
}

func (h *harness) do(conn *realtime.Conn, requestID string, intent realtime.Intent) {
	h.router.Handle(context.Background(), conn, requestID, intent)
}

// join puts conn in the harness board's room and discards the resulting events.
func (h *harness) join(t *testing.T, conns ...*realtime.Conn) {
	t.Helper()
	for _, c := range conns {
		h.do(c, "", &realtime.JoinRoom{BoardID: h.board})
		room, ok := h.registry.RoomOf(c.ID)
		require.True(t, ok)
		require.Equal(t, h.board, room)
	}
	for _, c := range conns {
		drain(c)
	}
}

// drain returns every queued envelope without blocking.
func drain(c *realtime.Conn) []event {
	var out []event
	for {
		select {
		case data := <-c.Outbound():
			var ev event
			if err := json.Unmarshal(data, &ev); err != nil {
				panic(err)
			}
			ev.raw = data
			out = append(out, ev)
		default:
			return out
		}
	}
}

func only(t *testing.T, c *realtime.Conn, eventType string) event {
	t.Helper()
	events := drain(c)
	require.Len(t, events, 1, "events: %v", types(events))
	require.Equal(t, eventType, events[0].Type)
	return events[0]
}

func types(events []event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func decode[T any](t *testing.T, ev event) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(ev.Payload, &v))
	return v
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

// awaitUntil reads envelopes from c until one satisfies done, and returns
// everything read. It fails the test if that takes too long.
func awaitUntil(t *testing.T, c *realtime.Conn, done func(event) bool) []event {
	t.Helper()

	var out []event
	deadline := time.After(2 * time.Second)
	for {
		select {
		case data := <-c.Outbound():
			var ev event
			require.NoError(t, json.Unmarshal(data, &ev))
			ev.raw = data
			out = append(out, ev)
			if done(ev) {
				return out
			}
		case <-deadline:
			t.Fatalf("condition not met, got events %v", types(out))
			return nil
		}
	}
}

// await reads exactly n envelopes from c.
func await(t *testing.T, c *realtime.Conn, n int) []event {
	t.Helper()
	var out []event
	return awaitUntil(t, c, func(ev event) bool {
		out = append(out, ev)
		return len(out) == n
	})
}
