package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/peterldowns/testy/check"

	"github.com/brackethq/calcutta/go/internal/auction/events"
)

func marshalPayload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return b
}

func TestDeadlineTracker_FollowsCountdown(t *testing.T) {
	dt := newDeadlineTracker()
	poolID := uuid.New()
	itemID := uuid.New().String()

	activatedAt := time.Now().Add(30 * time.Second).UTC()
	dt.observe(poolID, EventTypeItemActivated, marshalPayload(t, events.ItemActivatedPayload{
		ItemID:    itemID,
		TimeoutAt: activatedAt,
	}))

	snap := dt.snapshot()
	check.Equal(t, 1, len(snap))
	check.Equal(t, itemID, snap[poolID].itemID)
	check.True(t, snap[poolID].timeoutAt.Equal(activatedAt))

	// A bid pushes the deadline forward.
	bumped := activatedAt.Add(15 * time.Second)
	dt.observe(poolID, EventTypeNewBid, marshalPayload(t, events.NewBidPayload{
		ItemID:    itemID,
		TimeoutAt: bumped,
	}))
	check.True(t, dt.snapshot()[poolID].timeoutAt.Equal(bumped))

	// The sale ends the countdown.
	dt.observe(poolID, EventTypeItemSold, nil)
	check.Equal(t, 0, len(dt.snapshot()))
}

func TestDeadlineTracker_PauseAndResume(t *testing.T) {
	dt := newDeadlineTracker()
	poolID := uuid.New()
	itemID := uuid.New().String()

	dt.observe(poolID, EventTypeItemActivated, marshalPayload(t, events.ItemActivatedPayload{
		ItemID:    itemID,
		TimeoutAt: time.Now().Add(30 * time.Second),
	}))

	dt.observe(poolID, EventTypeAuctionPaused, nil)
	check.Equal(t, 0, len(dt.snapshot()))

	// A resume with no live countdown on record is ignored.
	resumeAt := time.Now().Add(20 * time.Second).UTC()
	dt.observe(poolID, EventTypeAuctionResumed, marshalPayload(t, events.AuctionResumedPayload{
		TimeoutAt: resumeAt,
	}))
	check.Equal(t, 0, len(dt.snapshot()))

	// After reactivation, resume updates only the deadline.
	dt.observe(poolID, EventTypeItemActivated, marshalPayload(t, events.ItemActivatedPayload{
		ItemID:    itemID,
		TimeoutAt: time.Now().Add(5 * time.Second),
	}))
	dt.observe(poolID, EventTypeAuctionResumed, marshalPayload(t, events.AuctionResumedPayload{
		TimeoutAt: resumeAt,
	}))
	snap := dt.snapshot()
	check.Equal(t, itemID, snap[poolID].itemID)
	check.True(t, snap[poolID].timeoutAt.Equal(resumeAt))
}

func TestDeadlineTracker_IsolatesPools(t *testing.T) {
	dt := newDeadlineTracker()
	poolA := uuid.New()
	poolB := uuid.New()

	dt.observe(poolA, EventTypeItemActivated, marshalPayload(t, events.ItemActivatedPayload{
		ItemID:    uuid.New().String(),
		TimeoutAt: time.Now().Add(30 * time.Second),
	}))
	dt.observe(poolB, EventTypeItemActivated, marshalPayload(t, events.ItemActivatedPayload{
		ItemID:    uuid.New().String(),
		TimeoutAt: time.Now().Add(30 * time.Second),
	}))

	dt.observe(poolA, EventTypeAuctionCompleted, nil)

	snap := dt.snapshot()
	check.Equal(t, 1, len(snap))
	_, ok := snap[poolB]
	check.True(t, ok)
}
