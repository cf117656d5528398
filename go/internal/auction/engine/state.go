package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/brackethq/calcutta/go/internal/models"
	"github.com/brackethq/calcutta/go/internal/store"
)

// Snapshot windows: clients joining mid-auction see the upcoming slice of
// the queue and the most recent results, not the whole history.
const (
	snapshotPendingLimit = 10
	snapshotClosedLimit  = 10
)

// AuctionState is a point-in-time view of one pool's auction, shaped for
// clients joining mid-auction.
type AuctionState struct {
	Pool        *models.Pool         `json:"pool"`
	Current     *models.AuctionItem  `json:"current,omitempty"`
	CurrentBids []models.Bid         `json:"current_bids,omitempty"`
	Remaining   time.Duration        `json:"remaining"`
	Pending     []models.AuctionItem `json:"pending"`
	Closed      []models.AuctionItem `json:"closed"`
}

// Snapshot assembles the auction state from plain reads. It is advisory:
// the authoritative ordering is whatever the pool-locked transactions
// committed.
func (e *Engine) Snapshot(ctx context.Context, poolID uuid.UUID) (*AuctionState, error) {
	s := e.stores.View()

	p, err := s.Pools.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}

	items, err := s.Items.ListItems(ctx, poolID)
	if err != nil {
		return nil, err
	}

	state := &AuctionState{Pool: p}
	for i := range items {
		it := items[i]
		switch it.Status {
		case models.ItemStatusActive:
			state.Current = &it
		case models.ItemStatusPending:
			if len(state.Pending) < snapshotPendingLimit {
				state.Pending = append(state.Pending, it)
			}
		default:
			state.Closed = append(state.Closed, it)
		}
	}
	// Items close in queue order, so the tail holds the latest results.
	if len(state.Closed) > snapshotClosedLimit {
		state.Closed = state.Closed[len(state.Closed)-snapshotClosedLimit:]
	}

	if state.Current != nil {
		bids, err := s.Items.ListBids(ctx, state.Current.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		state.CurrentBids = bids
	}

	if p.ClosesAt != nil && !p.Paused {
		if remaining := p.ClosesAt.Sub(e.clock.Now()); remaining > 0 {
			state.Remaining = remaining
		}
	}
	if p.Paused && p.PausedRemaining != nil {
		state.Remaining = *p.PausedRemaining
	}

	return state, nil
}
