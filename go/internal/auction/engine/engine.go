// Package engine implements the live auction state machine: bidding with
// soft-close windows, atomic sale settlement and queue progression.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/brackethq/calcutta/go/internal/auction/events"
	"github.com/brackethq/calcutta/go/internal/ledger"
	"github.com/brackethq/calcutta/go/internal/models"
	"github.com/brackethq/calcutta/go/internal/store"
)

// Config holds engine tuning knobs.
type Config struct {
	// BidWindow is the soft-close countdown. Every accepted bid resets the
	// active item's deadline to now + BidWindow.
	BidWindow time.Duration

	// MinIncrement is the least amount a new bid must add over the
	// standing high bid.
	MinIncrement decimal.Decimal
}

// DefaultConfig returns the standard auction timing.
func DefaultConfig() Config {
	return Config{
		BidWindow:    30 * time.Second,
		MinIncrement: decimal.NewFromInt(1),
	}
}

// ChargeCapturer settles pending charges after the sale commits.
type ChargeCapturer interface {
	CaptureCharge(ctx context.Context, txn *models.Transaction) error
}

// Notifier alerts the commissioner about conditions needing a human.
type Notifier interface {
	PaymentFailed(ctx context.Context, poolID, commissionerID uuid.UUID, txn *models.Transaction)
}

// BidResult reports an accepted bid and the reset deadline.
type BidResult struct {
	Bid      *models.Bid
	Item     *models.AuctionItem
	ClosesAt time.Time
}

// AdvanceResult reports what closing the current item produced.
type AdvanceResult struct {
	Sold      *models.AuctionItem
	Unsold    *models.AuctionItem
	Next      *models.AuctionItem
	ClosesAt  *time.Time
	Completed bool
}

// Engine drives a pool's auction. All mutating operations lock the pool
// row first, so bids, timer expiries and commissioner actions on one pool
// apply strictly one at a time.
type Engine struct {
	stores   TxRunner
	capturer ChargeCapturer
	notifier Notifier
	clock    clockwork.Clock
	cfg      Config
}

// New creates an Engine.
func New(stores TxRunner, capturer ChargeCapturer, notifier Notifier, clock clockwork.Clock, cfg Config) *Engine {
	if cfg.BidWindow <= 0 {
		cfg.BidWindow = DefaultConfig().BidWindow
	}
	if cfg.MinIncrement.Sign() <= 0 {
		cfg.MinIncrement = DefaultConfig().MinIncrement
	}
	return &Engine{
		stores:   stores,
		capturer: capturer,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
	}
}

// BidWindow exposes the configured soft-close window.
func (e *Engine) BidWindow() time.Duration {
	return e.cfg.BidWindow
}

// StartAuction moves an OPEN pool to LIVE and puts the first queued item on
// the block. Commissioner only.
func (e *Engine) StartAuction(ctx context.Context, poolID, actorID uuid.UUID) (*AdvanceResult, error) {
	var result AdvanceResult

	err := e.stores.InTx(ctx, func(s Stores) error {
		p, err := s.Pools.GetPoolForUpdate(ctx, poolID)
		if err != nil {
			return err
		}
		if err := e.requireCommissioner(ctx, s, poolID, actorID); err != nil {
			return err
		}
		if p.Status != models.PoolStatusOpen && p.Status != models.PoolStatusDraft {
			return &InvalidStateError{Op: "start auction", Status: p.Status}
		}

		counts, err := s.Items.CountByStatus(ctx, poolID)
		if err != nil {
			return err
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		if total == 0 {
			return errors.New("engine: auction queue is empty")
		}

		if err := s.Pools.UpdatePoolStatus(ctx, poolID, models.PoolStatusLive); err != nil {
			return err
		}

		now := e.clock.Now()
		if err := s.Outbox.InsertPoolEvent(ctx, poolID, events.TypeAuctionStarted, events.AuctionStartedPayload{
			PoolID:     poolID.String(),
			StartedAt:  now,
			TotalItems: total,
		}); err != nil {
			return err
		}

		next, closesAt, err := e.activateNext(ctx, s, poolID)
		if err != nil {
			return err
		}
		result.Next = next
		result.ClosesAt = closesAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("pool_id", poolID.String()).
		Msg("auction started")

	return &result, nil
}

// PlaceBid validates and records a bid on the pool's active item, resetting
// the soft-close window.
func (e *Engine) PlaceBid(ctx context.Context, poolID, bidderID uuid.UUID, amount decimal.Decimal) (*BidResult, error) {
	var result BidResult

	err := e.stores.InTx(ctx, func(s Stores) error {
		p, err := s.Pools.GetPoolForUpdate(ctx, poolID)
		if err != nil {
			return err
		}
		if p.Status != models.PoolStatusLive {
			return &InvalidStateError{Op: "bid", Status: p.Status}
		}
		if p.Paused {
			return ErrAuctionPaused
		}

		it, err := s.Items.GetActiveItem(ctx, poolID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNoActiveItem
			}
			return err
		}

		minBid := it.StartingBid
		if it.CurrentBid != nil {
			minBid = it.CurrentBid.Add(e.cfg.MinIncrement)
		}
		if amount.LessThan(minBid) {
			return &BidTooLowError{Min: minBid}
		}

		member, err := s.Pools.GetMember(ctx, poolID, bidderID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errors.New("engine: bidder is not a pool member")
			}
			return err
		}
		if member.RemainingBudget != nil && amount.GreaterThan(*member.RemainingBudget) {
			return ErrInsufficientBudget
		}

		bid, err := s.Items.CreateBid(ctx, it.ID, bidderID, amount)
		if err != nil {
			return err
		}
		applied, err := s.Items.ApplyBid(ctx, it.ID, bidderID, amount)
		if err != nil {
			return err
		}
		if !applied {
			// Lost a race with finalization despite the pool lock. Treat
			// as if the item had already closed.
			return ErrItemNotActive
		}

		now := e.clock.Now()
		closesAt := now.Add(e.cfg.BidWindow)
		if err := s.Pools.SetClosesAt(ctx, poolID, closesAt); err != nil {
			return err
		}

		if err := s.Outbox.InsertPoolEvent(ctx, poolID, events.TypeNewBid, events.NewBidPayload{
			ItemID:     it.ID.String(),
			BidderID:   bidderID.String(),
			Amount:     amount,
			MinNextBid: amount.Add(e.cfg.MinIncrement),
			BidAt:      now,
			TimeoutAt:  closesAt,
		}); err != nil {
			return err
		}

		it.CurrentBid = &amount
		it.CurrentBidderID = &bidderID
		result.Bid = bid
		result.Item = it
		result.ClosesAt = closesAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("pool_id", poolID.String()).
		Str("bidder_id", bidderID.String()).
		Str("amount", amount.String()).
		Msg("bid accepted")

	return &result, nil
}

// AdvanceAuction closes the active item, selling it to the high bidder or
// marking it unsold, then puts the next item on the block. It is called by
// the orchestrator on timer expiry. Concurrent and replayed calls are safe:
// the durable closes_at is re-checked under the pool lock, so an expiry
// racing a just-accepted bid, or a duplicate delivery arriving after the
// next item activated, finds the window still open and does nothing.
func (e *Engine) AdvanceAuction(ctx context.Context, poolID uuid.UUID) (*AdvanceResult, error) {
	return e.advance(ctx, poolID, false)
}

func (e *Engine) advance(ctx context.Context, poolID uuid.UUID, force bool) (*AdvanceResult, error) {
	var (
		result  AdvanceResult
		pending *models.Transaction
	)

	err := e.stores.InTx(ctx, func(s Stores) error {
		p, err := s.Pools.GetPoolForUpdate(ctx, poolID)
		if err != nil {
			return err
		}
		if p.Status != models.PoolStatusLive {
			return &InvalidStateError{Op: "advance auction", Status: p.Status}
		}
		if p.Paused {
			// Expiry fired racing a pause. The pause wins.
			return nil
		}
		if !force && (p.ClosesAt == nil || e.clock.Now().Before(*p.ClosesAt)) {
			// The window this expiry was armed for is gone: a later bid
			// extended it, or the item already closed and the next one
			// opened a fresh window. Stale expiries are no-ops.
			return nil
		}

		it, err := s.Items.GetActiveItem(ctx, poolID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		now := e.clock.Now()
		if it != nil {
			if it.CurrentBid != nil {
				txn, err := e.settleSale(ctx, s, p, it, now)
				if err != nil {
					return err
				}
				if txn == nil {
					// Another worker already finalized this item.
					return nil
				}
				pending = txn
				result.Sold = it
			} else {
				done, err := s.Items.FinalizeUnsold(ctx, it.ID, now)
				if err != nil {
					return err
				}
				if !done {
					return nil
				}
				if err := s.Outbox.InsertPoolEvent(ctx, poolID, events.TypeItemUnsold, events.ItemUnsoldPayload{
					ItemID:   it.ID.String(),
					TeamID:   it.TeamID.String(),
					ClosedAt: now,
				}); err != nil {
					return err
				}
				result.Unsold = it
			}
		}

		next, closesAt, err := e.activateNext(ctx, s, poolID)
		if err != nil {
			return err
		}
		if next == nil {
			if err := e.completeAuction(ctx, s, poolID, now); err != nil {
				return err
			}
			result.Completed = true
			return nil
		}
		result.Next = next
		result.ClosesAt = closesAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	if pending != nil {
		e.capture(ctx, poolID, pending)
	}

	return &result, nil
}

// SellNow is the commissioner's hammer: it closes the active item
// immediately without waiting for the countdown.
func (e *Engine) SellNow(ctx context.Context, poolID, actorID uuid.UUID) (*AdvanceResult, error) {
	if err := e.checkCommissioner(ctx, poolID, actorID); err != nil {
		return nil, err
	}
	return e.advance(ctx, poolID, true)
}

// PauseAuction freezes the countdown, banking the remaining window.
// Commissioner only.
func (e *Engine) PauseAuction(ctx context.Context, poolID, actorID uuid.UUID, reason string) error {
	err := e.stores.InTx(ctx, func(s Stores) error {
		p, err := s.Pools.GetPoolForUpdate(ctx, poolID)
		if err != nil {
			return err
		}
		if err := e.requireCommissioner(ctx, s, poolID, actorID); err != nil {
			return err
		}
		if p.Status != models.PoolStatusLive {
			return &InvalidStateError{Op: "pause", Status: p.Status}
		}
		if p.Paused {
			return nil
		}

		now := e.clock.Now()
		remaining := e.cfg.BidWindow
		if p.ClosesAt != nil {
			remaining = p.ClosesAt.Sub(now)
			if remaining < 0 {
				remaining = 0
			}
		}

		if err := s.Pools.MarkPaused(ctx, poolID, remaining); err != nil {
			return err
		}

		return s.Outbox.InsertPoolEvent(ctx, poolID, events.TypeAuctionPaused, events.AuctionPausedPayload{
			PoolID:       poolID.String(),
			PausedAt:     now,
			RemainingSec: int(remaining.Round(time.Second) / time.Second),
			Reason:       reason,
		})
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("pool_id", poolID.String()).
		Str("reason", reason).
		Msg("auction paused")

	return nil
}

// ResumeAuction restarts the countdown with the remaining window from the
// pause, not a fresh one. Commissioner only.
func (e *Engine) ResumeAuction(ctx context.Context, poolID, actorID uuid.UUID) (*time.Time, error) {
	var closesAt *time.Time

	err := e.stores.InTx(ctx, func(s Stores) error {
		p, err := s.Pools.GetPoolForUpdate(ctx, poolID)
		if err != nil {
			return err
		}
		if err := e.requireCommissioner(ctx, s, poolID, actorID); err != nil {
			return err
		}
		if p.Status != models.PoolStatusLive || !p.Paused {
			return &InvalidStateError{Op: "resume", Status: p.Status}
		}

		remaining := e.cfg.BidWindow
		if p.PausedRemaining != nil {
			remaining = *p.PausedRemaining
		}

		now := e.clock.Now()
		deadline := now.Add(remaining)
		if err := s.Pools.SetClosesAt(ctx, poolID, deadline); err != nil {
			return err
		}
		closesAt = &deadline

		return s.Outbox.InsertPoolEvent(ctx, poolID, events.TypeAuctionResumed, events.AuctionResumedPayload{
			PoolID:    poolID.String(),
			ResumedAt: now,
			TimeoutAt: deadline,
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("pool_id", poolID.String()).
		Msg("auction resumed")

	return closesAt, nil
}

// ReorderQueue rewrites the order of the PENDING items. Commissioner only.
func (e *Engine) ReorderQueue(ctx context.Context, poolID, actorID uuid.UUID, itemIDs []uuid.UUID) error {
	err := e.stores.InTx(ctx, func(s Stores) error {
		if _, err := s.Pools.GetPoolForUpdate(ctx, poolID); err != nil {
			return err
		}
		if err := e.requireCommissioner(ctx, s, poolID, actorID); err != nil {
			return err
		}

		if err := s.Items.ReorderPending(ctx, poolID, itemIDs); err != nil {
			return err
		}

		ids := make([]string, len(itemIDs))
		for i, id := range itemIDs {
			ids[i] = id.String()
		}
		return s.Outbox.InsertPoolEvent(ctx, poolID, events.TypeQueueReordered, events.QueueReorderedPayload{
			PoolID:  poolID.String(),
			ItemIDs: ids,
		})
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("pool_id", poolID.String()).
		Int("items", len(itemIDs)).
		Msg("auction queue reordered")

	return nil
}

// settleSale finalizes a sold item and applies every side effect of the
// sale in the surrounding transaction. It returns the pending charge, or
// nil when the item was already finalized.
func (e *Engine) settleSale(ctx context.Context, s Stores, p *models.Pool, it *models.AuctionItem, now time.Time) (*models.Transaction, error) {
	winnerID := *it.CurrentBidderID
	price := *it.CurrentBid

	done, err := s.Items.FinalizeSold(ctx, it.ID, winnerID, price, now)
	if err != nil {
		return nil, err
	}
	if !done {
		return nil, nil
	}

	if err := s.Items.MarkWinningBid(ctx, it.ID, winnerID, price); err != nil {
		return nil, err
	}

	if _, err := s.Market.CreateOwnership(ctx, models.Ownership{
		ItemID:        it.ID,
		UserID:        winnerID,
		Percentage:    decimal.NewFromInt(100),
		PurchasePrice: price,
		Source:        models.OwnershipSourceAuction,
	}); err != nil {
		return nil, err
	}

	totalPot, err := s.Pools.AddToPot(ctx, p.ID, price)
	if err != nil {
		return nil, err
	}

	requireBudget := p.Settings.BudgetEnabled
	if err := s.Pools.ApplyPurchase(ctx, p.ID, winnerID, price, requireBudget); err != nil {
		return nil, err
	}

	itemID := it.ID
	txn, err := s.Ledger.CreateTransaction(ctx, ledger.CreateTransactionRequest{
		UserID: winnerID,
		PoolID: p.ID,
		ItemID: &itemID,
		Type:   models.TransactionTypeCharge,
		Amount: price,
	}, models.TransactionStatusPending)
	if err != nil {
		return nil, err
	}

	if err := s.Outbox.InsertPoolEvent(ctx, p.ID, events.TypeItemSold, events.ItemSoldPayload{
		ItemID:     it.ID.String(),
		TeamID:     it.TeamID.String(),
		WinnerID:   winnerID.String(),
		WinningBid: price,
		TotalPot:   totalPot,
		SoldAt:     now,
	}); err != nil {
		return nil, err
	}

	it.Status = models.ItemStatusSold
	it.WinnerID = &winnerID
	it.WinningBid = &price
	return txn, nil
}

// activateNext promotes the next queued item and arms the countdown.
// Returns nil when the queue is exhausted.
func (e *Engine) activateNext(ctx context.Context, s Stores, poolID uuid.UUID) (*models.AuctionItem, *time.Time, error) {
	now := e.clock.Now()
	next, err := s.Items.ActivateNext(ctx, poolID, now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	closesAt := now.Add(e.cfg.BidWindow)
	if err := s.Pools.SetClosesAt(ctx, poolID, closesAt); err != nil {
		return nil, nil, err
	}

	if err := s.Outbox.InsertPoolEvent(ctx, poolID, events.TypeItemActivated, events.ItemActivatedPayload{
		ItemID:       next.ID.String(),
		TeamID:       next.TeamID.String(),
		Order:        next.Order,
		StartingBid:  next.StartingBid,
		ActivatedAt:  now,
		TimeoutAt:    closesAt,
		BidWindowSec: int(e.cfg.BidWindow / time.Second),
	}); err != nil {
		return nil, nil, err
	}

	return next, &closesAt, nil
}

// completeAuction closes out a pool whose queue is exhausted and hands the
// pool to the tournament phase.
func (e *Engine) completeAuction(ctx context.Context, s Stores, poolID uuid.UUID, now time.Time) error {
	if err := s.Pools.UpdatePoolStatus(ctx, poolID, models.PoolStatusInProgress); err != nil {
		return err
	}
	if err := s.Pools.ClearClosesAt(ctx, poolID); err != nil {
		return err
	}

	counts, err := s.Items.CountByStatus(ctx, poolID)
	if err != nil {
		return err
	}
	p, err := s.Pools.GetPool(ctx, poolID)
	if err != nil {
		return err
	}

	if err := s.Outbox.InsertPoolEvent(ctx, poolID, events.TypeAuctionCompleted, events.AuctionCompletedPayload{
		PoolID:      poolID.String(),
		CompletedAt: now,
		TotalPot:    p.TotalPot,
		ItemsSold:   counts[models.ItemStatusSold],
		ItemsUnsold: counts[models.ItemStatusUnsold],
	}); err != nil {
		return err
	}

	log.Info().
		Str("pool_id", poolID.String()).
		Str("total_pot", p.TotalPot.String()).
		Int("sold", counts[models.ItemStatusSold]).
		Int("unsold", counts[models.ItemStatusUnsold]).
		Msg("auction completed")

	return nil
}

// capture runs the post-commit payment. The sale stands regardless of the
// outcome; a failed capture flags the charge and alerts the commissioner.
func (e *Engine) capture(ctx context.Context, poolID uuid.UUID, txn *models.Transaction) {
	if err := e.capturer.CaptureCharge(ctx, txn); err != nil {
		commissioner, cerr := e.stores.View().Pools.GetCommissioner(ctx, poolID)
		if cerr != nil {
			log.Error().Err(cerr).
				Str("pool_id", poolID.String()).
				Msg("payment failed and commissioner lookup failed")
			return
		}
		e.notifier.PaymentFailed(ctx, poolID, commissioner.UserID, txn)
	}
}

func (e *Engine) checkCommissioner(ctx context.Context, poolID, actorID uuid.UUID) error {
	member, err := e.stores.View().Pools.GetMember(ctx, poolID, actorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotCommissioner
		}
		return err
	}
	if !member.IsCommissioner {
		return ErrNotCommissioner
	}
	return nil
}

func (e *Engine) requireCommissioner(ctx context.Context, s Stores, poolID, actorID uuid.UUID) error {
	member, err := s.Pools.GetMember(ctx, poolID, actorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotCommissioner
		}
		return err
	}
	if !member.IsCommissioner {
		return ErrNotCommissioner
	}
	return nil
}
