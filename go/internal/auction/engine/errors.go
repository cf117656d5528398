package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/brackethq/calcutta/go/internal/models"
)

var (
	// ErrItemNotActive is returned when a bid targets an item that is not
	// on the block.
	ErrItemNotActive = errors.New("engine: item is not active")

	// ErrNoActiveItem is returned when an operation needs an item on the
	// block and none is.
	ErrNoActiveItem = errors.New("engine: no active item")

	// ErrInsufficientBudget is returned when a bid exceeds the bidder's
	// remaining budget.
	ErrInsufficientBudget = errors.New("engine: insufficient budget")

	// ErrAuctionPaused is returned when a bid arrives while the auction is
	// paused.
	ErrAuctionPaused = errors.New("engine: auction is paused")

	// ErrNotCommissioner is returned when a member without commissioner
	// rights calls a commissioner operation.
	ErrNotCommissioner = errors.New("engine: not the commissioner")
)

// BidTooLowError reports a rejected bid together with the minimum the
// bidder would have to offer.
type BidTooLowError struct {
	Min decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("engine: bid too low, minimum is %s", e.Min)
}

// InvalidStateError reports an operation attempted against a pool in the
// wrong lifecycle phase.
type InvalidStateError struct {
	Op     string
	Status models.PoolStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("engine: cannot %s in pool status %s", e.Op, e.Status)
}
