package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/plank/internal/domain"
	"github.com/gosuda/plank/internal/permission"
)

// DataStore abstracts the repository accessor pattern. *postgres.Store satisfies it.
type DataStore interface {
	Boards() domain.BoardRepository
	Columns() domain.ColumnRepository
	Cards() domain.CardRepository
}

// Authorizer checks a user's right to an operation. *permission.Guard satisfies it.
type Authorizer interface {
	Authorize(ctx context.Context, userID, boardID uuid.UUID, op permission.Operation) error
}

// BoardLocker serializes a board's mutations across every instance sharing
// the store. *postgres.Store satisfies it.
type BoardLocker interface {
	LockBoard(ctx context.Context, boardID uuid.UUID) (unlock func(), err error)
}

// Router applies intents and fans the resulting events out to board rooms.
// Every intent that touches a board runs inside that board's serializer, so
// all members observe the board's events in the order they were applied.
type Router struct {
	store    DataStore
	guard    Authorizer
	registry *Registry
	serial   *serializer
	locker   BoardLocker
	relay    *Relay
	timeout  time.Duration
	now      func() time.Time

	clockMu sync.Mutex
	seq     uint64
	lastTS  time.Time
}

type RouterOption func(*Router)

// WithRelay routes every board event through relay, and relay delivers the
// events it receives through this router.
func WithRelay(relay *Relay) RouterOption {
	return func(r *Router) {
		r.relay = relay
		relay.sink = r.deliverRelayed
	}
}

// WithBoardLocker makes mutations hold locker's board lock as well as the
// in-process one.
func WithBoardLocker(locker BoardLocker) RouterOption {
	return func(r *Router) { r.locker = locker }
}

// WithIntentTimeout bounds how long one intent may hold its board.
func WithIntentTimeout(d time.Duration) RouterOption {
	return func(r *Router) { r.timeout = d }
}

// WithClock replaces the event timestamp source.
func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) { r.now = now }
}

func NewRouter(store DataStore, guard Authorizer, registry *Registry, opts ...RouterOption) *Router {
	r := &Router{
		store:    store,
		guard:    guard,
		registry: registry,
		serial:   newSerializer(),
		timeout:  5 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle applies one intent on behalf of conn. Failures are reported to conn
// alone as an error envelope carrying requestID.
func (r *Router) Handle(ctx context.Context, conn *Conn, requestID string, intent Intent) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := r.dispatch(ctx, conn, requestID, intent); err != nil {
		r.Reject(conn, requestID, err)
		return
	}

	log.Debug().
		Str("conn_id", conn.ID).
		Str("user_id", conn.Identity.UserID.String()).
		Str("intent", intent.Type()).
		Dur("took", time.Since(start)).
		Msg("intent applied")
}

func (r *Router) dispatch(ctx context.Context, conn *Conn, requestID string, intent Intent) error {
	switch in := intent.(type) {
	case *JoinRoom:
		return r.joinRoom(ctx, conn, requestID, in)
	case *LeaveRoom:
		return r.leaveRoom(conn, in)
	case *CreateCard:
		return r.createCard(ctx, conn, requestID, in)
	case *MoveCard:
		return r.moveCard(ctx, conn, requestID, in)
	case *UpdateCard:
		return r.updateCard(ctx, conn, requestID, in)
	case *DeleteCard:
		return r.deleteCard(ctx, conn, requestID, in)
	case *CreateColumn:
		return r.createColumn(ctx, conn, requestID, in)
	case *UpdateColumn:
		return r.updateColumn(ctx, conn, requestID, in)
	case *MoveColumn:
		return r.moveColumn(ctx, conn, requestID, in)
	case *DeleteColumn:
		return r.deleteColumn(ctx, conn, requestID, in)
	default:
		return fmt.Errorf("realtime.Router.dispatch: unhandled intent %T: %w", intent, domain.ErrBadRequest)
	}
}

// Reject sends an error envelope to conn only.
func (r *Router) Reject(conn *Conn, requestID string, err error) {
	payload := errorPayload(err)

	ev := log.Debug()
	if payload.Code == CodeUnavailable {
		ev = log.Error()
	}
	ev.Err(err).
		Str("conn_id", conn.ID).
		Str("user_id", conn.Identity.UserID.String()).
		Str("code", payload.Code).
		Msg("intent rejected")

	r.reply(conn, requestID, uuid.Nil, EventError, payload)
}

// exclusive runs a mutation of boardID under the board's serializer and, when
// configured, its cross-instance lock, so sibling reads and the writes based
// on them are never interleaved with another mutation of the same board.
func (r *Router) exclusive(ctx context.Context, boardID uuid.UUID, fn func() error) error {
	return r.serial.Do(boardID, func() error {
		if r.locker == nil {
			return fn()
		}
		unlock, err := r.locker.LockBoard(ctx, boardID)
		if err != nil {
			return storeErr("realtime.Router.exclusive", err)
		}
		defer unlock()
		return fn()
	})
}

func (r *Router) authorize(ctx context.Context, conn *Conn, boardID uuid.UUID, action permission.Action, entity domain.EntityKind) error {
	return r.guard.Authorize(ctx, conn.Identity.UserID, boardID, permission.Operation{Action: action, Entity: entity})
}

// stamp issues the next sequence number and a timestamp no earlier than any
// previously issued one.
func (r *Router) stamp() (uint64, time.Time) {
	r.clockMu.Lock()
	defer r.clockMu.Unlock()

	now := r.now().UTC()
	if now.Before(r.lastTS) {
		now = r.lastTS
	}
	r.lastTS = now
	r.seq++
	return r.seq, now
}

func (r *Router) encode(eventType, requestID string, boardID uuid.UUID, actorID string, payload any) ([]byte, error) {
	seq, ts := r.stamp()
	env := Envelope{
		Type:      eventType,
		RequestID: requestID,
		ActorID:   actorID,
		Seq:       seq,
		TS:        ts,
		Payload:   payload,
	}
	if boardID != uuid.Nil {
		env.BoardID = boardID.String()
	}
	return json.Marshal(env)
}

// emit broadcasts an event to boardID's room. When actor is not in that room
// it receives the event directly so it still sees the outcome of its intent.
// Callers hold the board's serializer.
func (r *Router) emit(boardID uuid.UUID, actor *Conn, requestID, eventType string, payload any) {
	var actorID string
	if actor != nil {
		actorID = actor.Identity.UserID.String()
	}

	if r.relay != nil {
		r.emitRelayed(boardID, actor, requestID, eventType, actorID, payload)
		return
	}

	data, err := r.encode(eventType, requestID, boardID, actorID, payload)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("realtime: encode event")
		return
	}

	n := r.registry.Broadcast(boardID, data, "")
	if actor != nil && !r.inRoom(actor, boardID) {
		actor.Send(data)
	}

	log.Debug().
		Str("board_id", boardID.String()).
		Str("event", eventType).
		Int("recipients", n).
		Msg("event broadcast")
}

// emitRelayed publishes the event for every instance, this one included, to
// deliver. Only a requester outside the room is served directly.
func (r *Router) emitRelayed(boardID uuid.UUID, actor *Conn, requestID, eventType, actorID string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("realtime: encode event")
		return
	}

	err = r.relay.Publish(boardID, relayMessage{
		Type:      eventType,
		RequestID: requestID,
		ActorID:   actorID,
		Payload:   raw,
	})
	if err != nil {
		// Local members will not get the event through the bus; have them
		// reload. Other instances notice the gap on the next message.
		log.Error().Err(err).Str("board_id", boardID.String()).Str("event", eventType).Msg("realtime: relay publish failed")
		r.broadcastResync(boardID)
	}

	if actor != nil && !r.inRoom(actor, boardID) {
		if data, err := r.encode(eventType, requestID, boardID, actorID, raw); err == nil {
			actor.Send(data)
		}
	}
}

// deliverRelayed stamps an event that came off the bus and broadcasts it to
// the local room, after a resync notice when the stream had a gap.
func (r *Router) deliverRelayed(boardID uuid.UUID, msg relayMessage, gap bool) {
	_ = r.serial.Do(boardID, func() error {
		if gap {
			log.Warn().Str("board_id", boardID.String()).Str("origin", msg.Origin).Msg("realtime: relayed events missing")
			r.broadcastResync(boardID)
		}

		data, err := r.encode(msg.Type, msg.RequestID, boardID, msg.ActorID, msg.Payload)
		if err != nil {
			log.Error().Err(err).Str("event", msg.Type).Msg("realtime: encode relayed event")
			return nil
		}
		r.registry.Broadcast(boardID, data, "")
		return nil
	})
}

func (r *Router) broadcastResync(boardID uuid.UUID) {
	data, err := r.encode(EventBoardResync, "", boardID, "", ResyncPayload{BoardID: boardID})
	if err != nil {
		log.Error().Err(err).Msg("realtime: encode resync")
		return
	}
	r.registry.Broadcast(boardID, data, "")
}

func (r *Router) inRoom(conn *Conn, boardID uuid.UUID) bool {
	room, ok := r.registry.RoomOf(conn.ID)
	return ok && room == boardID
}

// reply sends an envelope to conn alone.
func (r *Router) reply(conn *Conn, requestID string, boardID uuid.UUID, eventType string, payload any) {
	data, err := r.encode(eventType, requestID, boardID, "", payload)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("realtime: encode reply")
		return
	}
	conn.Send(data)
}

// storeErr classifies a storage failure. Missing rows stay not-found;
// everything else, deadlines included, becomes unavailable.
func storeErr(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
}
