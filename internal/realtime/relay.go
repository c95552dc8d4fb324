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
	"golang.org/x/sync/errgroup"
)

// BoardBus carries board events between server instances. *redis.PubSub satisfies it.
type BoardBus interface {
	PublishBoard(ctx context.Context, boardID uuid.UUID, payload []byte) error
	SubscribeBoards(ctx context.Context, handle func(boardID uuid.UUID, payload []byte)) error
}

// relayMessage is an unstamped board event. Counter numbers the origin's
// messages for one board, so a receiver can tell when one went missing.
type relayMessage struct {
	Origin    string          `json:"origin"`
	Counter   uint64          `json:"counter"`
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	ActorID   string          `json:"actor_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type inbound struct {
	boardID uuid.UUID
	msg     relayMessage
}

type stream struct {
	origin  string
	boardID uuid.UUID
}

// relaySink applies an event received from the bus. gap reports that earlier
// events from the same origin and board never arrived.
type relaySink func(boardID uuid.UUID, msg relayMessage, gap bool)

const defaultPublishTimeout = 2 * time.Second

// Relay puts every board event on a shared bus, the events of this instance
// included, so instances sharing rooms deliver one board's events in the
// order the bus carried them. Mutations publish while holding the board's
// cross-instance lock, which makes that order the order they were applied.
type Relay struct {
	bus     BoardBus
	origin  string
	timeout time.Duration
	inbox   chan inbound
	sink    relaySink

	mu   sync.Mutex
	sent map[uuid.UUID]uint64
	// TODO: expire streams of origins that stopped publishing; a restarted
	// instance comes back under a new origin.
	seen map[stream]uint64
}

func NewRelay(bus BoardBus, inboxSize int) *Relay {
	if inboxSize < 1 {
		inboxSize = 1024
	}
	return &Relay{
		bus:     bus,
		origin:  uuid.NewString(),
		timeout: defaultPublishTimeout,
		inbox:   make(chan inbound, inboxSize),
		sent:    make(map[uuid.UUID]uint64),
		seen:    make(map[stream]uint64),
	}
}

// Publish numbers msg and sends it on boardID's channel. A failed publish
// still consumes its number, so receivers see the gap on the next message.
func (rl *Relay) Publish(boardID uuid.UUID, msg relayMessage) error {
	rl.mu.Lock()
	rl.sent[boardID]++
	msg.Counter = rl.sent[boardID]
	rl.mu.Unlock()

	msg.Origin = rl.origin
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("realtime.Relay.Publish: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), rl.timeout)
	defer cancel()
	if err := rl.bus.PublishBoard(ctx, boardID, data); err != nil {
		return fmt.Errorf("realtime.Relay.Publish: %w", err)
	}
	return nil
}

// Run delivers events from the bus until ctx is cancelled. The router given
// this relay through WithRelay applies them.
func (rl *Relay) Run(ctx context.Context) error {
	if rl.sink == nil {
		return errors.New("realtime.Relay.Run: relay is not attached to a router")
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case in := <-rl.inbox:
				gap, ok := rl.track(in)
				if !ok {
					continue
				}
				rl.sink(in.boardID, in.msg, gap)
			}
		}
	})

	g.Go(func() error {
		err := rl.bus.SubscribeBoards(ctx, func(boardID uuid.UUID, payload []byte) {
			var msg relayMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				log.Warn().Err(err).Str("board_id", boardID.String()).Msg("relay: malformed message")
				return
			}
			select {
			case rl.inbox <- inbound{boardID: boardID, msg: msg}:
			case <-ctx.Done():
			}
		})
		if err != nil {
			return fmt.Errorf("realtime.Relay.Run: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// track records msg's counter. It reports false for a message already seen
// and gap when earlier messages of the stream are missing.
func (rl *Relay) track(in inbound) (gap, ok bool) {
	key := stream{origin: in.msg.Origin, boardID: in.boardID}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	last, known := rl.seen[key]
	if known && in.msg.Counter <= last {
		return false, false
	}
	rl.seen[key] = in.msg.Counter
	return known && in.msg.Counter > last+1, true
}
