package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/brackethq/calcutta/go/internal/auction/engine"
	"github.com/brackethq/calcutta/go/internal/auction/events"
)

// fakeEngine records advance calls.
type fakeEngine struct {
	mu    sync.Mutex
	calls []uuid.UUID
}

func (f *fakeEngine) AdvanceAuction(_ context.Context, poolID uuid.UUID) (*engine.AdvanceResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, poolID)
	return &engine.AdvanceResult{}, nil
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// newTestOrchestrator builds an orchestrator without a NATS connection;
// tests drive HandleAuctionEvent directly.
func newTestOrchestrator(eng AuctionEngine, clock clockwork.Clock) *Orchestrator {
	return &Orchestrator{
		engine:        eng,
		clock:         clock,
		instanceID:    "test",
		numWorkers:    1,
		workCh:        make(chan uuid.UUID, 8),
		inFlight:      make(map[uuid.UUID]bool),
		activeTimers:  make(map[uuid.UUID]clockwork.Timer),
		lastScheduled: make(map[uuid.UUID]time.Time),
	}
}

func (o *Orchestrator) timerCount() int {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()
	return len(o.activeTimers)
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	assert.Nil(t, err)
	return b
}

// expectEnqueue waits for an expiry to land on the work channel.
func expectEnqueue(t *testing.T, o *Orchestrator, want uuid.UUID) {
	t.Helper()
	select {
	case got := <-o.workCh:
		check.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatal("expected expiry on work channel")
	}
}

// expectNoEnqueue asserts nothing lands on the work channel for a moment.
func expectNoEnqueue(t *testing.T, o *Orchestrator) {
	t.Helper()
	select {
	case got := <-o.workCh:
		t.Fatalf("unexpected expiry for pool %s", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestItemActivated_ArmsTimer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fc := clockwork.NewFakeClock()
	o := newTestOrchestrator(&fakeEngine{}, fc)
	poolID := uuid.New()

	payload := mustMarshal(t, events.ItemActivatedPayload{
		TimeoutAt: fc.Now().Add(30 * time.Second),
	})
	assert.Nil(t, o.HandleAuctionEvent(ctx, events.TypeItemActivated, poolID, payload))
	check.Equal(t, 1, o.timerCount())

	fc.Advance(29 * time.Second)
	expectNoEnqueue(t, o)

	fc.Advance(time.Second)
	expectEnqueue(t, o, poolID)
}

func TestNewBid_ReplacesTimer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fc := clockwork.NewFakeClock()
	o := newTestOrchestrator(&fakeEngine{}, fc)
	poolID := uuid.New()

	activated := mustMarshal(t, events.ItemActivatedPayload{
		TimeoutAt: fc.Now().Add(30 * time.Second),
	})
	assert.Nil(t, o.HandleAuctionEvent(ctx, events.TypeItemActivated, poolID, activated))

	// A bid 10s in pushes the deadline out.
	fc.Advance(10 * time.Second)
	bid := mustMarshal(t, events.NewBidPayload{
		TimeoutAt: fc.Now().Add(30 * time.Second),
	})
	assert.Nil(t, o.HandleAuctionEvent(ctx, events.TypeNewBid, poolID, bid))
	check.Equal(t, 1, o.timerCount())

	// The original deadline passes without firing.
	fc.Advance(25 * time.Second)
	expectNoEnqueue(t, o)

	// The reset deadline fires exactly once.
	fc.Advance(5 * time.Second)
	expectEnqueue(t, o, poolID)
	expectNoEnqueue(t, o)
}

func TestReplayedDeadline_IsIgnored(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fc := clockwork.NewFakeClock()
	o := newTestOrchestrator(&fakeEngine{}, fc)
	poolID := uuid.New()

	deadline := fc.Now().Add(30 * time.Second)
	activated := mustMarshal(t, events.ItemActivatedPayload{TimeoutAt: deadline})
	assert.Nil(t, o.HandleAuctionEvent(ctx, events.TypeItemActivated, poolID, activated))
	assert.Nil(t, o.HandleAuctionEvent(ctx, events.TypeItemActivated, poolID, activated))
	check.Equal(t, 1, o.timerCount())

	fc.Advance(30 * time.Second)
	expectEnqueue(t, o, poolID)
	expectNoEnqueue(t, o)
}

func TestPause_CancelsTimer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fc := clockwork.NewFakeClock()
	o := newTestOrchestrator(&fakeEngine{}, fc)
	poolID := uuid.New()

	activated := mustMarshal(t, events.ItemActivatedPayload{
		TimeoutAt: fc.Now().Add(30 * time.Second),
	})
	assert.Nil(t, o.HandleAuctionEvent(ctx, events.TypeItemActivated, poolID, activated))

	assert.Nil(t, o.HandleAuctionEvent(ctx, events.TypeAuctionPaused, poolID, mustMarshal(t, events.AuctionPausedPayload{})))
	check.Equal(t, 0, o.timerCount())

	// The dead deadline never fires.
	fc.Advance(time.Minute)
	expectNoEnqueue(t, o)
}

func TestResume_SchedulesRemainingWindow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fc := clockwork.NewFakeClock()
	o := newTestOrchestrator(&fakeEngine{}, fc)
	poolID := uuid.New()

	// Pause banked 20s of a 30s window; resume carries the shorter deadline.
	resumed := mustMarshal(t, events.AuctionResumedPayload{
		TimeoutAt: fc.Now().Add(20 * time.Second),
	})
	assert.Nil(t, o.HandleAuctionEvent(ctx, events.TypeAuctionResumed, poolID, resumed))

	fc.Advance(19 * time.Second)
	expectNoEnqueue(t, o)
	fc.Advance(time.Second)
	expectEnqueue(t, o, poolID)
}

func TestPastDeadline_EnqueuesImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fc := clockwork.NewFakeClock()
	o := newTestOrchestrator(&fakeEngine{}, fc)
	poolID := uuid.New()

	// Startup replay: the deadline expired while the orchestrator was down.
	activated := mustMarshal(t, events.ItemActivatedPayload{
		TimeoutAt: fc.Now().Add(-10 * time.Second),
	})
	assert.Nil(t, o.HandleAuctionEvent(ctx, events.TypeItemActivated, poolID, activated))
	expectEnqueue(t, o, poolID)
}

func TestCompleted_CleansUp(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fc := clockwork.NewFakeClock()
	o := newTestOrchestrator(&fakeEngine{}, fc)
	poolID := uuid.New()

	activated := mustMarshal(t, events.ItemActivatedPayload{
		TimeoutAt: fc.Now().Add(30 * time.Second),
	})
	assert.Nil(t, o.HandleAuctionEvent(ctx, events.TypeItemActivated, poolID, activated))

	assert.Nil(t, o.HandleAuctionEvent(ctx, events.TypeAuctionCompleted, poolID, mustMarshal(t, events.AuctionCompletedPayload{})))
	check.Equal(t, 0, o.timerCount())
	fc.Advance(time.Minute)
	expectNoEnqueue(t, o)
}

func TestHandleTimeout_CallsEngine(t *testing.T) {
	ctx := context.Background()
	eng := &fakeEngine{}
	o := newTestOrchestrator(eng, clockwork.NewFakeClock())
	poolID := uuid.New()

	assert.Nil(t, o.handleTimeout(ctx, poolID))
	check.Equal(t, 1, eng.callCount())
	check.Equal(t, poolID, eng.calls[0])
}

func TestEventsWithoutTimerAction(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(&fakeEngine{}, clockwork.NewFakeClock())
	poolID := uuid.New()

	for _, eventType := range []string{
		events.TypeAuctionStarted,
		events.TypeItemSold,
		events.TypeItemUnsold,
		events.TypeQueueReordered,
		events.TypePayoutPosted,
		events.TypeBalanceUpdated,
		"SomethingUnknown",
	} {
		check.Nil(t, o.HandleAuctionEvent(ctx, eventType, poolID, []byte(`{}`)))
	}
	check.Equal(t, 0, o.timerCount())
}
