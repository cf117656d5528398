package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/brackethq/calcutta/go/internal/auction/events"
	"github.com/brackethq/calcutta/go/internal/models"
)

type fixture struct {
	mem          *memStores
	eng          *Engine
	clock        *clockwork.FakeClock
	notifier     *spyNotifier
	poolID       uuid.UUID
	commissioner uuid.UUID
	alice        uuid.UUID
	bob          uuid.UUID
	itemIDs      []uuid.UUID
}

func money(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// newFixture builds an OPEN pool with three members and a three-item queue.
// Everyone has a $100 budget.
func newFixture(t *testing.T, capturer ChargeCapturer) *fixture {
	t.Helper()

	f := &fixture{
		mem:          newMemStores(),
		clock:        clockwork.NewFakeClock(),
		notifier:     &spyNotifier{},
		poolID:       uuid.New(),
		commissioner: uuid.New(),
		alice:        uuid.New(),
		bob:          uuid.New(),
	}

	budget := money("100")
	f.mem.pools[f.poolID] = &models.Pool{
		ID:     f.poolID,
		Status: models.PoolStatusOpen,
		Settings: models.PoolSettings{
			BudgetEnabled:   true,
			BudgetPerMember: &budget,
		},
		TotalPot: decimal.Zero,
	}

	for _, u := range []struct {
		id           uuid.UUID
		commissioner bool
	}{
		{f.commissioner, true},
		{f.alice, false},
		{f.bob, false},
	} {
		b := budget
		f.mem.members[f.poolID] = append(f.mem.members[f.poolID], &models.PoolMember{
			ID:              uuid.New(),
			PoolID:          f.poolID,
			UserID:          u.id,
			RemainingBudget: &b,
			IsCommissioner:  u.commissioner,
		})
	}

	for i := 1; i <= 3; i++ {
		id := uuid.New()
		f.itemIDs = append(f.itemIDs, id)
		f.mem.items[id] = &models.AuctionItem{
			ID:          id,
			PoolID:      f.poolID,
			TeamID:      uuid.New(),
			Status:      models.ItemStatusPending,
			Order:       i,
			StartingBid: money("1"),
		}
	}

	f.eng = New(f.mem, capturer, f.notifier, f.clock, Config{
		BidWindow:    30 * time.Second,
		MinIncrement: money("1"),
	})
	return f
}

func (f *fixture) member(userID uuid.UUID) *models.PoolMember {
	for _, m := range f.mem.members[f.poolID] {
		if m.UserID == userID {
			return m
		}
	}
	return nil
}

func TestStartAuction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nopCapturer{})

	_, err := f.eng.StartAuction(ctx, f.poolID, f.alice)
	check.True(t, errors.Is(err, ErrNotCommissioner))

	result, err := f.eng.StartAuction(ctx, f.poolID, f.commissioner)
	assert.Nil(t, err)
	assert.NotNil(t, result.Next)
	check.Equal(t, f.itemIDs[0], result.Next.ID)
	check.Equal(t, models.PoolStatusLive, f.mem.pools[f.poolID].Status)
	check.True(t, f.mem.hasEvent(events.TypeAuctionStarted))
	check.True(t, f.mem.hasEvent(events.TypeItemActivated))

	wantClose := f.clock.Now().Add(30 * time.Second)
	assert.NotNil(t, result.ClosesAt)
	check.True(t, result.ClosesAt.Equal(wantClose))

	// A second start finds the pool LIVE.
	_, err = f.eng.StartAuction(ctx, f.poolID, f.commissioner)
	var invalid *InvalidStateError
	check.True(t, errors.As(err, &invalid))
}

func TestStartAuction_FromDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nopCapturer{})
	f.mem.pools[f.poolID].Status = models.PoolStatusDraft

	result, err := f.eng.StartAuction(ctx, f.poolID, f.commissioner)
	assert.Nil(t, err)
	assert.NotNil(t, result.Next)
	check.Equal(t, models.PoolStatusLive, f.mem.pools[f.poolID].Status)
}

func TestPlaceBid_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nopCapturer{})
	_, err := f.eng.StartAuction(ctx, f.poolID, f.commissioner)
	assert.Nil(t, err)

	// Below the starting bid.
	_, err = f.eng.PlaceBid(ctx, f.poolID, f.alice, money("0.50"))
	var tooLow *BidTooLowError
	assert.True(t, errors.As(err, &tooLow))
	check.True(t, tooLow.Min.Equal(money("1")))

	_, err = f.eng.PlaceBid(ctx, f.poolID, f.alice, money("5"))
	assert.Nil(t, err)

	// Equal to the standing bid: the high bid only moves up.
	_, err = f.eng.PlaceBid(ctx, f.poolID, f.bob, money("5"))
	assert.True(t, errors.As(err, &tooLow))
	check.True(t, tooLow.Min.Equal(money("6")))

	// Non-member.
	_, err = f.eng.PlaceBid(ctx, f.poolID, uuid.New(), money("6"))
	check.NotNil(t, err)

	// Over budget.
	_, err = f.eng.PlaceBid(ctx, f.poolID, f.bob, money("150"))
	check.True(t, errors.Is(err, ErrInsufficientBudget))
}

func TestPlaceBid_ResetsSoftClose(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nopCapturer{})
	_, err := f.eng.StartAuction(ctx, f.poolID, f.commissioner)
	assert.Nil(t, err)

	f.clock.Advance(20 * time.Second)
	result, err := f.eng.PlaceBid(ctx, f.poolID, f.alice, money("5"))
	assert.Nil(t, err)

	wantClose := f.clock.Now().Add(30 * time.Second)
	check.True(t, result.ClosesAt.Equal(wantClose))
	assert.NotNil(t, f.mem.pools[f.poolID].ClosesAt)
	check.True(t, f.mem.pools[f.poolID].ClosesAt.Equal(wantClose))
}

func TestAdvanceAuction_SellsToHighBidder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nopCapturer{})
	_, err := f.eng.StartAuction(ctx, f.poolID, f.commissioner)
	assert.Nil(t, err)

	_, err = f.eng.PlaceBid(ctx, f.poolID, f.alice, money("5"))
	assert.Nil(t, err)
	_, err = f.eng.PlaceBid(ctx, f.poolID, f.bob, money("6"))
	assert.Nil(t, err)

	f.clock.Advance(31 * time.Second)
	result, err := f.eng.AdvanceAuction(ctx, f.poolID)
	assert.Nil(t, err)
	assert.NotNil(t, result.Sold)

	sold := f.mem.items[f.itemIDs[0]]
	check.Equal(t, models.ItemStatusSold, sold.Status)
	check.Equal(t, f.bob, *sold.WinnerID)
	check.True(t, sold.WinningBid.Equal(money("6")))

	// 100% ownership to the winner at the winning price.
	assert.Equal(t, 1, len(f.mem.owners))
	check.Equal(t, f.bob, f.mem.owners[0].UserID)
	check.True(t, f.mem.owners[0].Percentage.Equal(money("100")))
	check.True(t, f.mem.owners[0].PurchasePrice.Equal(money("6")))

	// Pot and budget moved exactly once.
	check.True(t, f.mem.pools[f.poolID].TotalPot.Equal(money("6")))
	bob := f.member(f.bob)
	check.True(t, bob.RemainingBudget.Equal(money("94")))
	check.True(t, bob.TotalSpent.Equal(money("6")))

	// One charge for the sale.
	assert.Equal(t, 1, len(f.mem.txns))
	check.Equal(t, models.TransactionTypeCharge, f.mem.txns[0].Type)
	check.True(t, f.mem.txns[0].Amount.Equal(money("6")))

	// Next item on the block.
	assert.NotNil(t, result.Next)
	check.Equal(t, f.itemIDs[1], result.Next.ID)
	check.True(t, f.mem.hasEvent(events.TypeItemSold))

	// The winning bid record is flagged.
	winning := 0
	for _, b := range f.mem.bids {
		if b.IsWinning {
			winning++
			check.Equal(t, f.bob, b.BidderID)
		}
	}
	check.Equal(t, 1, winning)
}

func TestAdvanceAuction_UnsoldMovesNoMoney(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nopCapturer{})
	_, err := f.eng.StartAuction(ctx, f.poolID, f.commissioner)
	assert.Nil(t, err)

	f.clock.Advance(31 * time.Second)
	result, err := f.eng.AdvanceAuction(ctx, f.poolID)
	assert.Nil(t, err)
	assert.NotNil(t, result.Unsold)

	check.Equal(t, models.ItemStatusUnsold, f.mem.items[f.itemIDs[0]].Status)
	check.Equal(t, 0, len(f.mem.owners))
	check.Equal(t, 0, len(f.mem.txns))
	check.True(t, f.mem.pools[f.poolID].TotalPot.IsZero())
	check.True(t, f.mem.hasEvent(events.TypeItemUnsold))
}

func TestAdvanceAuction_StaleExpiryIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nopCapturer{})
	_, err := f.eng.StartAuction(ctx, f.poolID, f.commissioner)
	assert.Nil(t, err)

	// A bid lands just before the timer it raced fires. The bid won a
	// fresh window, so the expiry must not close the item early.
	f.clock.Advance(29 * time.Second)
	_, err = f.eng.PlaceBid(ctx, f.poolID, f.alice, money("5"))
	assert.Nil(t, err)

	f.clock.Advance(time.Second)
	result, err := f.eng.AdvanceAuction(ctx, f.poolID)
	assert.Nil(t, err)
	check.Nil(t, result.Sold)
	check.Nil(t, result.Unsold)
	check.Equal(t, models.ItemStatusActive, f.mem.items[f.itemIDs[0]].Status)
	check.Equal(t, 0, len(f.mem.owners))

	// Once the extended window actually runs out, the sale goes through.
	f.clock.Advance(30 * time.Second)
	result, err = f.eng.AdvanceAuction(ctx, f.poolID)
	assert.Nil(t, err)
	assert.NotNil(t, result.Sold)
	check.Equal(t, f.alice, *result.Sold.WinnerID)
}

func TestAdvanceAuction_RaceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nopCapturer{})
	_, err := f.eng.StartAuction(ctx, f.poolID, f.commissioner)
	assert.Nil(t, err)
	_, err = f.eng.PlaceBid(ctx, f.poolID, f.alice, money("5"))
	assert.Nil(t, err)

	f.clock.Advance(31 * time.Second)
	first, err := f.eng.AdvanceAuction(ctx, f.poolID)
	assert.Nil(t, err)
	assert.NotNil(t, first.Sold)

	// A duplicate delivery of the same expiry arrives after the next item
	// opened a fresh window. It must leave that item alone.
	second, err := f.eng.AdvanceAuction(ctx, f.poolID)
	assert.Nil(t, err)
	check.Nil(t, second.Sold)
	check.Nil(t, second.Unsold)
	check.Equal(t, models.ItemStatusActive, f.mem.items[f.itemIDs[1]].Status)

	check.Equal(t, 1, len(f.mem.owners))
	check.Equal(t, 1, len(f.mem.txns))
	check.True(t, f.mem.pools[f.poolID].TotalPot.Equal(money("5")))
}

func TestAdvanceAuction_NullBudgetIsUnlimited(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nopCapturer{})

	// Budgets are enforced pool-wide, but this member has none on record.
	f.member(f.alice).RemainingBudget = nil

	_, err := f.eng.StartAuction(ctx, f.poolID, f.commissioner)
	assert.Nil(t, err)
	_, err = f.eng.PlaceBid(ctx, f.poolID, f.alice, money("250"))
	assert.Nil(t, err)

	f.clock.Advance(31 * time.Second)
	result, err := f.eng.AdvanceAuction(ctx, f.poolID)
	assert.Nil(t, err)
	assert.NotNil(t, result.Sold)
	check.Equal(t, f.alice, *result.Sold.WinnerID)
	check.True(t, f.member(f.alice).TotalSpent.Equal(money("250")))
	check.Nil(t, f.member(f.alice).RemainingBudget)
}

func TestAdvanceAuction_QueueExhaustionCompletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nopCapturer{})
	_, err := f.eng.StartAuction(ctx, f.poolID, f.commissioner)
	assert.Nil(t, err)

	// Let every item pass unsold.
	for i := 0; i < 3; i++ {
		f.clock.Advance(31 * time.Second)
		result, err := f.eng.AdvanceAuction(ctx, f.poolID)
		assert.Nil(t, err)
		if i < 2 {
			assert.NotNil(t, result.Next)
		} else {
			check.True(t, result.Completed)
		}
	}

	p := f.mem.pools[f.poolID]
	check.Equal(t, models.PoolStatusInProgress, p.Status)
	check.Nil(t, p.ClosesAt)
	check.True(t, f.mem.hasEvent(events.TypeAuctionCompleted))
}

func TestSellNow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nopCapturer{})
	_, err := f.eng.StartAuction(ctx, f.poolID, f.commissioner)
	assert.Nil(t, err)
	_, err = f.eng.PlaceBid(ctx, f.poolID, f.alice, money("3"))
	assert.Nil(t, err)

	_, err = f.eng.SellNow(ctx, f.poolID, f.alice)
	check.True(t, errors.Is(err, ErrNotCommissioner))

	// No waiting for the countdown.
	result, err := f.eng.SellNow(ctx, f.poolID, f.commissioner)
	assert.Nil(t, err)
	assert.NotNil(t, result.Sold)
	check.Equal(t, f.alice, *f.mem.items[f.itemIDs[0]].WinnerID)
}

func TestPauseAndResume(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nopCapturer{})
	_, err := f.eng.StartAuction(ctx, f.poolID, f.commissioner)
	assert.Nil(t, err)
	_, err = f.eng.PlaceBid(ctx, f.poolID, f.alice, money("2"))
	assert.Nil(t, err)

	f.clock.Advance(10 * time.Second)
	err = f.eng.PauseAuction(ctx, f.poolID, f.commissioner, "dinner break")
	assert.Nil(t, err)

	p := f.mem.pools[f.poolID]
	check.True(t, p.Paused)
	assert.NotNil(t, p.PausedRemaining)
	check.Equal(t, 20*time.Second, *p.PausedRemaining)

	// Bids bounce while paused.
	_, err = f.eng.PlaceBid(ctx, f.poolID, f.bob, money("3"))
	check.True(t, errors.Is(err, ErrAuctionPaused))

	// A late timer expiry during the pause is a no-op.
	f.clock.Advance(time.Minute)
	result, err := f.eng.AdvanceAuction(ctx, f.poolID)
	assert.Nil(t, err)
	check.Nil(t, result.Sold)
	check.Nil(t, result.Unsold)
	check.Equal(t, models.ItemStatusActive, f.mem.items[f.itemIDs[0]].Status)

	// Resume restarts with the banked window, not a fresh one.
	closesAt, err := f.eng.ResumeAuction(ctx, f.poolID, f.commissioner)
	assert.Nil(t, err)
	assert.NotNil(t, closesAt)
	check.True(t, closesAt.Equal(f.clock.Now().Add(20*time.Second)))
	check.True(t, !f.mem.pools[f.poolID].Paused)
}

func TestReorderQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nopCapturer{})
	_, err := f.eng.StartAuction(ctx, f.poolID, f.commissioner)
	assert.Nil(t, err)

	// Swap the two still-pending items.
	err = f.eng.ReorderQueue(ctx, f.poolID, f.commissioner, []uuid.UUID{f.itemIDs[2], f.itemIDs[1]})
	assert.Nil(t, err)

	// The active item cannot be reordered.
	err = f.eng.ReorderQueue(ctx, f.poolID, f.commissioner, []uuid.UUID{f.itemIDs[0]})
	check.NotNil(t, err)

	f.clock.Advance(31 * time.Second)
	result, err := f.eng.AdvanceAuction(ctx, f.poolID)
	assert.Nil(t, err)
	assert.NotNil(t, result.Next)
	check.Equal(t, f.itemIDs[2], result.Next.ID)
}

func TestSnapshot_WindowsTheQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nopCapturer{})

	// Grow the queue well past both snapshot windows.
	for i := 4; i <= 30; i++ {
		id := uuid.New()
		f.itemIDs = append(f.itemIDs, id)
		f.mem.items[id] = &models.AuctionItem{
			ID:          id,
			PoolID:      f.poolID,
			TeamID:      uuid.New(),
			Status:      models.ItemStatusPending,
			Order:       i,
			StartingBid: money("1"),
		}
	}

	_, err := f.eng.StartAuction(ctx, f.poolID, f.commissioner)
	assert.Nil(t, err)

	// Close out the first fifteen items unsold.
	for i := 0; i < 15; i++ {
		f.clock.Advance(31 * time.Second)
		_, err := f.eng.AdvanceAuction(ctx, f.poolID)
		assert.Nil(t, err)
	}

	state, err := f.eng.Snapshot(ctx, f.poolID)
	assert.Nil(t, err)
	assert.NotNil(t, state.Current)
	check.Equal(t, f.itemIDs[15], state.Current.ID)

	// Next ten up, in queue order.
	assert.Equal(t, snapshotPendingLimit, len(state.Pending))
	check.Equal(t, f.itemIDs[16], state.Pending[0].ID)

	// Latest ten results, oldest closures dropped.
	assert.Equal(t, snapshotClosedLimit, len(state.Closed))
	check.Equal(t, f.itemIDs[5], state.Closed[0].ID)
	check.Equal(t, f.itemIDs[14], state.Closed[len(state.Closed)-1].ID)
}

func TestFailedCaptureNotifiesCommissioner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, failCapturer{})
	f.eng = New(f.mem, failCapturer{}, f.notifier, f.clock, Config{
		BidWindow:    30 * time.Second,
		MinIncrement: money("1"),
	})

	_, err := f.eng.StartAuction(ctx, f.poolID, f.commissioner)
	assert.Nil(t, err)
	_, err = f.eng.PlaceBid(ctx, f.poolID, f.alice, money("4"))
	assert.Nil(t, err)

	f.clock.Advance(31 * time.Second)
	result, err := f.eng.AdvanceAuction(ctx, f.poolID)
	assert.Nil(t, err)

	// The sale stands even though the charge bounced.
	assert.NotNil(t, result.Sold)
	check.Equal(t, 1, len(f.mem.owners))
	check.True(t, f.mem.pools[f.poolID].TotalPot.Equal(money("4")))

	assert.Equal(t, 1, len(f.notifier.failed))
	check.Equal(t, f.commissioner, f.notifier.failed[0])
}
