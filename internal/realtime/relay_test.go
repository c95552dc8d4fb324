package realtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/plank/internal/domain"
	"github.com/gosuda/plank/internal/realtime"
)

// loopBus delivers every published message to all subscribers, the publisher
// included, like a Redis channel does.
type loopBus struct {
	mu       sync.Mutex
	handlers []func(uuid.UUID, []byte)
	ready    chan struct{}
	want     int
}

func newLoopBus(subscribers int) *loopBus {
	return &loopBus{ready: make(chan struct{}), want: subscribers}
}

func (b *loopBus) PublishBoard(_ context.Context, boardID uuid.UUID, payload []byte) error {
	b.mu.Lock()
	handlers := append([]func(uuid.UUID, []byte){}, b.handlers...)
	b.mu.Unlock()

	for _, h := range handlers {
		h(boardID, payload)
	}
	return nil
}

func (b *loopBus) SubscribeBoards(ctx context.Context, handle func(uuid.UUID, []byte)) error {
	b.mu.Lock()
	b.handlers = append(b.handlers, handle)
	if len(b.handlers) == b.want {
		close(b.ready)
	}
	b.mu.Unlock()

	<-ctx.Done()
	return nil
}

// flakyBus fails a set number of publishes before delegating to loopBus.
type flakyBus struct {
	*loopBus
	mu       sync.Mutex
	failures int
}

func (b *flakyBus) failNext() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
}

func (b *flakyBus) PublishBoard(ctx context.Context, boardID uuid.UUID, payload []byte) error {
	b.mu.Lock()
	if b.failures > 0 {
		b.failures--
		b.mu.Unlock()
		return errors.New("connection reset by peer")
	}
	b.mu.Unlock()
	return b.loopBus.PublishBoard(ctx, boardID, payload)
}

// relayedBoard runs the board fixture on two instances joined by bus.
func relayedBoard(t *testing.T, bus realtime.BoardBus, ready <-chan struct{}) (*board, *instance) {
	t.Helper()

	relayOne := realtime.NewRelay(bus, 16)
	relayTwo := realtime.NewRelay(bus, 16)
	one := newBoard(t, realtime.WithRelay(relayOne))
	two := newInstance(t, one.store, realtime.WithRelay(relayTwo))

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 2)
	go func() { errs <- relayOne.Run(ctx) }()
	go func() { errs <- relayTwo.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		for range 2 {
			assert.NoError(t, <-errs)
		}
	})
	<-ready

	return one, two
}

// joinBoth puts alice (instance one) and bob (instance two) in the board's
// room and waits until both instances have delivered bob's arrival.
func joinBoth(t *testing.T, one *board, two *instance, alice, bob *realtime.Conn) []event {
	t.Helper()

	bobJoined := func(ev event) bool {
		return ev.Type == realtime.EventMemberJoined &&
			decode[realtime.MemberPayload](t, ev).UserID == bob.Identity.UserID
	}

	one.do(alice, "", &realtime.JoinRoom{BoardID: one.board})
	two.router.Handle(context.Background(), bob, "", &realtime.JoinRoom{BoardID: one.board})

	awaitUntil(t, alice, bobJoined)
	return awaitUntil(t, bob, bobJoined)
}

func TestRelay_DeliversBoardEventsOnEveryInstance(t *testing.T) {
	t.Parallel()

	bus := newLoopBus(2)
	one, two := relayedBoard(t, bus, bus.ready)
	alice := one.connect(t, "alice", domain.RoleMember)
	bob := two.connect(t, one.store, one.board, "bob", domain.RoleMember)
	seenByBob := joinBoth(t, one, two, alice, bob)

	one.do(alice, "m1", &realtime.MoveCard{CardID: one.a, TargetColumnID: one.done, TargetPosition: intPtr(0)})
	two.router.Handle(context.Background(), bob, "m2", &realtime.MoveCard{CardID: one.b, TargetColumnID: one.done, TargetPosition: intPtr(0)})

	atAlice := await(t, alice, 2)
	atBob := await(t, bob, 2)
	assert.Equal(t, []string{realtime.EventCardMoved, realtime.EventCardMoved}, types(atAlice))
	assert.Equal(t, types(atAlice), types(atBob))
	for i := range atAlice {
		assert.Equal(t, atAlice[i].RequestID, atBob[i].RequestID)
		assert.Equal(t, atAlice[i].ActorID, atBob[i].ActorID)
		assert.JSONEq(t, string(atAlice[i].Payload), string(atBob[i].Payload))
	}
	assert.Equal(t, "m1", atAlice[0].RequestID)
	assert.Equal(t, alice.Identity.UserID.String(), atBob[0].ActorID)
	assert.Equal(t, []string{"b", "a"}, one.store.cardTitles(one.done))

	// Each instance stamps with its own clock, so every member sees seq
	// strictly increase.
	seenByBob = append(seenByBob, atBob...)
	for i := 1; i < len(seenByBob); i++ {
		assert.Greater(t, seenByBob[i].Seq, seenByBob[i-1].Seq)
		assert.False(t, seenByBob[i].TS.Before(seenByBob[i-1].TS))
	}

	// No instance delivers an event twice.
	assert.Never(t, func() bool {
		return len(alice.Outbound()) > 0 || len(bob.Outbound()) > 0
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestRelay_RequesterOutsideRoomStillServed(t *testing.T) {
	t.Parallel()

	bus := newLoopBus(2)
	one, two := relayedBoard(t, bus, bus.ready)
	alice := one.connect(t, "alice", domain.RoleMember)
	bob := two.connect(t, one.store, one.board, "bob", domain.RoleMember)
	one.do(alice, "", &realtime.JoinRoom{BoardID: one.board})
	awaitUntil(t, alice, func(ev event) bool { return ev.Type == realtime.EventMemberJoined })

	two.router.Handle(context.Background(), bob, "c1", &realtime.CreateCard{BoardID: one.board, ColumnID: one.done, Title: "remote"})

	direct := only(t, bob, realtime.EventCardCreated)
	assert.Equal(t, "c1", direct.RequestID)

	relayed := await(t, alice, 1)[0]
	assert.Equal(t, realtime.EventCardCreated, relayed.Type)
	assert.JSONEq(t, string(direct.Payload), string(relayed.Payload))
}

func TestRelay_MissedPublishTriggersResync(t *testing.T) {
	t.Parallel()

	bus := &flakyBus{loopBus: newLoopBus(2)}
	one, two := relayedBoard(t, bus, bus.ready)
	alice := one.connect(t, "alice", domain.RoleMember)
	bob := two.connect(t, one.store, one.board, "bob", domain.RoleMember)
	joinBoth(t, one, two, alice, bob)

	bus.failNext()
	one.do(alice, "", &realtime.MoveCard{CardID: one.a, TargetColumnID: one.done, TargetPosition: intPtr(0)})

	// The move is stored; the local room is told to reload at once.
	assert.Equal(t, []string{"a"}, one.store.cardTitles(one.done))
	resync := only(t, alice, realtime.EventBoardResync)
	assert.Equal(t, one.board, decode[realtime.ResyncPayload](t, resync).BoardID)
	assert.Never(t, func() bool { return len(bob.Outbound()) > 0 }, 50*time.Millisecond, 10*time.Millisecond)

	// The next event exposes the gap on every instance.
	one.do(alice, "", &realtime.MoveCard{CardID: one.b, TargetColumnID: one.done, TargetPosition: intPtr(0)})

	want := []string{realtime.EventBoardResync, realtime.EventCardMoved}
	assert.Equal(t, want, types(await(t, bob, 2)))
	assert.Equal(t, want, types(await(t, alice, 2)))
}

func TestRelay_RunNeedsRouter(t *testing.T) {
	t.Parallel()

	relay := realtime.NewRelay(newLoopBus(1), 1)
	err := relay.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not attached")
}
