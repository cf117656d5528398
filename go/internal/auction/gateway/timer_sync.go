package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/brackethq/calcutta/go/internal/auction/events"
)

// Countdown strategy: events carry the authoritative deadline and clients
// count down on their own; the server timeout is authoritative for closing
// the item. TimerTick is a coarse periodic resync for drifting clients.
const timerSyncInterval = 10 * time.Second

// deadlineTracker remembers the latest known deadline per pool, fed from
// the event stream.
type deadlineTracker struct {
	mu        sync.Mutex
	deadlines map[uuid.UUID]deadlineInfo
}

type deadlineInfo struct {
	itemID    string
	timeoutAt time.Time
}

func newDeadlineTracker() *deadlineTracker {
	return &deadlineTracker{deadlines: make(map[uuid.UUID]deadlineInfo)}
}

// observe updates the tracked deadline from a broadcast event.
func (dt *deadlineTracker) observe(poolID uuid.UUID, eventType EventType, payload json.RawMessage) {
	switch eventType {
	case EventTypeItemActivated:
		var p events.ItemActivatedPayload
		if err := json.Unmarshal(payload, &p); err == nil {
			dt.set(poolID, p.ItemID, p.TimeoutAt)
		}
	case EventTypeNewBid:
		var p events.NewBidPayload
		if err := json.Unmarshal(payload, &p); err == nil {
			dt.set(poolID, p.ItemID, p.TimeoutAt)
		}
	case EventTypeAuctionResumed:
		var p events.AuctionResumedPayload
		if err := json.Unmarshal(payload, &p); err == nil {
			dt.mu.Lock()
			if info, ok := dt.deadlines[poolID]; ok {
				info.timeoutAt = p.TimeoutAt
				dt.deadlines[poolID] = info
			}
			dt.mu.Unlock()
		}
	case EventTypeAuctionPaused, EventTypeItemSold, EventTypeItemUnsold, EventTypeAuctionCompleted:
		dt.clear(poolID)
	}
}

func (dt *deadlineTracker) set(poolID uuid.UUID, itemID string, timeoutAt time.Time) {
	dt.mu.Lock()
	dt.deadlines[poolID] = deadlineInfo{itemID: itemID, timeoutAt: timeoutAt}
	dt.mu.Unlock()
}

func (dt *deadlineTracker) clear(poolID uuid.UUID) {
	dt.mu.Lock()
	delete(dt.deadlines, poolID)
	dt.mu.Unlock()
}

func (dt *deadlineTracker) snapshot() map[uuid.UUID]deadlineInfo {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	out := make(map[uuid.UUID]deadlineInfo, len(dt.deadlines))
	for k, v := range dt.deadlines {
		out[k] = v
	}
	return out
}

// runTimerSync periodically broadcasts TimerTick to pools with a live
// countdown and at least one connected client.
func (ec *EventConsumer) runTimerSync(ctx context.Context) {
	ticker := time.NewTicker(timerSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			for poolID, info := range ec.deadlines.snapshot() {
				remaining := info.timeoutAt.Sub(now)
				if remaining <= 0 {
					continue
				}

				payload, err := json.Marshal(events.TimerTickPayload{
					PoolID:       poolID.String(),
					ItemID:       info.itemID,
					RemainingSec: int(remaining.Round(time.Second) / time.Second),
					TimeoutAt:    info.timeoutAt,
				})
				if err != nil {
					log.Error().Err(err).Msg("failed to marshal timer tick")
					continue
				}

				ec.connectionManager.BroadcastToPool(poolID, &AuctionEvent{
					ID:        uuid.New().String(),
					PoolID:    poolID.String(),
					Type:      EventTypeTimerTick,
					Timestamp: now,
					Data:      payload,
				})
			}
		}
	}
}
