package engine

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brackethq/calcutta/go/internal/auction/pool"
	"github.com/brackethq/calcutta/go/internal/ledger"
	"github.com/brackethq/calcutta/go/internal/models"
	"github.com/brackethq/calcutta/go/internal/store"
)

// recordedEvent captures one outbox insert for assertions.
type recordedEvent struct {
	PoolID    uuid.UUID
	UserID    *uuid.UUID
	EventType string
	Payload   any
}

// memStores is an in-memory TxRunner. Transactions are not rolled back on
// error; tests only drive it down paths they assert on.
type memStores struct {
	pools   map[uuid.UUID]*models.Pool
	members map[uuid.UUID][]*models.PoolMember
	items   map[uuid.UUID]*models.AuctionItem
	bids    []*models.Bid
	owners  []models.Ownership
	txns    []*models.Transaction
	events  []recordedEvent
}

func newMemStores() *memStores {
	return &memStores{
		pools:   make(map[uuid.UUID]*models.Pool),
		members: make(map[uuid.UUID][]*models.PoolMember),
		items:   make(map[uuid.UUID]*models.AuctionItem),
	}
}

func (m *memStores) stores() Stores {
	return Stores{
		Pools:  (*memPools)(m),
		Items:  (*memItems)(m),
		Market: (*memMarket)(m),
		Ledger: (*memLedger)(m),
		Outbox: (*memOutbox)(m),
	}
}

func (m *memStores) InTx(_ context.Context, fn func(s Stores) error) error {
	return fn(m.stores())
}

func (m *memStores) View() Stores {
	return m.stores()
}

func (m *memStores) eventTypes() []string {
	types := make([]string, len(m.events))
	for i, ev := range m.events {
		types[i] = ev.EventType
	}
	return types
}

func (m *memStores) hasEvent(eventType string) bool {
	for _, ev := range m.events {
		if ev.EventType == eventType {
			return true
		}
	}
	return false
}

type memPools memStores

func (m *memPools) GetPool(_ context.Context, id uuid.UUID) (*models.Pool, error) {
	p, ok := m.pools[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPools) GetPoolForUpdate(ctx context.Context, id uuid.UUID) (*models.Pool, error) {
	return m.GetPool(ctx, id)
}

func (m *memPools) UpdatePoolStatus(_ context.Context, id uuid.UUID, status models.PoolStatus) error {
	m.pools[id].Status = status
	return nil
}

func (m *memPools) SetClosesAt(_ context.Context, id uuid.UUID, closesAt time.Time) error {
	p := m.pools[id]
	p.ClosesAt = &closesAt
	p.Paused = false
	p.PausedRemaining = nil
	return nil
}

func (m *memPools) ClearClosesAt(_ context.Context, id uuid.UUID) error {
	p := m.pools[id]
	p.ClosesAt = nil
	p.Paused = false
	p.PausedRemaining = nil
	return nil
}

func (m *memPools) MarkPaused(_ context.Context, id uuid.UUID, remaining time.Duration) error {
	p := m.pools[id]
	p.Paused = true
	p.PausedRemaining = &remaining
	return nil
}

func (m *memPools) AddToPot(_ context.Context, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	p := m.pools[id]
	p.TotalPot = p.TotalPot.Add(amount)
	return p.TotalPot, nil
}

func (m *memPools) GetMember(_ context.Context, poolID, userID uuid.UUID) (*models.PoolMember, error) {
	for _, mem := range m.members[poolID] {
		if mem.UserID == userID {
			cp := *mem
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memPools) ApplyPurchase(_ context.Context, poolID, userID uuid.UUID, price decimal.Decimal, requireBudget bool) error {
	for _, mem := range m.members[poolID] {
		if mem.UserID != userID {
			continue
		}
		if requireBudget && mem.RemainingBudget != nil && mem.RemainingBudget.LessThan(price) {
			return pool.ErrBudgetExceeded
		}
		mem.TotalSpent = mem.TotalSpent.Add(price)
		if mem.RemainingBudget != nil {
			next := mem.RemainingBudget.Sub(price)
			mem.RemainingBudget = &next
		}
		return nil
	}
	return store.ErrNotFound
}

func (m *memPools) GetCommissioner(_ context.Context, poolID uuid.UUID) (*models.PoolMember, error) {
	for _, mem := range m.members[poolID] {
		if mem.IsCommissioner {
			cp := *mem
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

type memItems memStores

func (m *memItems) GetItem(_ context.Context, id uuid.UUID) (*models.AuctionItem, error) {
	it, ok := m.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *memItems) GetActiveItem(_ context.Context, poolID uuid.UUID) (*models.AuctionItem, error) {
	for _, it := range m.items {
		if it.PoolID == poolID && it.Status == models.ItemStatusActive {
			cp := *it
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memItems) ActivateNext(_ context.Context, poolID uuid.UUID, now time.Time) (*models.AuctionItem, error) {
	for _, it := range m.items {
		if it.PoolID == poolID && it.Status == models.ItemStatusActive {
			return nil, store.ErrNotFound
		}
	}
	var next *models.AuctionItem
	for _, it := range m.items {
		if it.PoolID != poolID || it.Status != models.ItemStatusPending {
			continue
		}
		if next == nil || it.Order < next.Order {
			next = it
		}
	}
	if next == nil {
		return nil, store.ErrNotFound
	}
	next.Status = models.ItemStatusActive
	next.ActivatedAt = &now
	cp := *next
	return &cp, nil
}

func (m *memItems) ApplyBid(_ context.Context, itemID, bidderID uuid.UUID, amount decimal.Decimal) (bool, error) {
	it, ok := m.items[itemID]
	if !ok || it.Status != models.ItemStatusActive {
		return false, nil
	}
	if it.CurrentBid != nil && !it.CurrentBid.LessThan(amount) {
		return false, nil
	}
	it.CurrentBid = &amount
	it.CurrentBidderID = &bidderID
	return true, nil
}

func (m *memItems) FinalizeSold(_ context.Context, itemID, winnerID uuid.UUID, winningBid decimal.Decimal, now time.Time) (bool, error) {
	it, ok := m.items[itemID]
	if !ok || it.Status != models.ItemStatusActive {
		return false, nil
	}
	it.Status = models.ItemStatusSold
	it.WinnerID = &winnerID
	it.WinningBid = &winningBid
	it.FinalizedAt = &now
	return true, nil
}

func (m *memItems) FinalizeUnsold(_ context.Context, itemID uuid.UUID, now time.Time) (bool, error) {
	it, ok := m.items[itemID]
	if !ok || it.Status != models.ItemStatusActive {
		return false, nil
	}
	it.Status = models.ItemStatusUnsold
	it.FinalizedAt = &now
	return true, nil
}

func (m *memItems) ListItems(_ context.Context, poolID uuid.UUID) ([]models.AuctionItem, error) {
	var out []models.AuctionItem
	for _, it := range m.items {
		if it.PoolID == poolID {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (m *memItems) CountByStatus(_ context.Context, poolID uuid.UUID) (map[models.ItemStatus]int, error) {
	counts := make(map[models.ItemStatus]int)
	for _, it := range m.items {
		if it.PoolID == poolID {
			counts[it.Status]++
		}
	}
	return counts, nil
}

func (m *memItems) ReorderPending(_ context.Context, poolID uuid.UUID, itemIDs []uuid.UUID) error {
	for order, id := range itemIDs {
		it, ok := m.items[id]
		if !ok || it.PoolID != poolID || it.Status != models.ItemStatusPending {
			return store.ErrNotFound
		}
		it.Order = order + 1
	}
	return nil
}

func (m *memItems) CreateBid(_ context.Context, itemID, bidderID uuid.UUID, amount decimal.Decimal) (*models.Bid, error) {
	bid := &models.Bid{
		ID:       uuid.New(),
		ItemID:   itemID,
		BidderID: bidderID,
		Amount:   amount,
	}
	m.bids = append(m.bids, bid)
	cp := *bid
	return &cp, nil
}

func (m *memItems) MarkWinningBid(_ context.Context, itemID, bidderID uuid.UUID, amount decimal.Decimal) error {
	for i := len(m.bids) - 1; i >= 0; i-- {
		b := m.bids[i]
		if b.ItemID == itemID && b.BidderID == bidderID && b.Amount.Equal(amount) {
			b.IsWinning = true
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memItems) ListBids(_ context.Context, itemID uuid.UUID) ([]models.Bid, error) {
	var out []models.Bid
	for i := len(m.bids) - 1; i >= 0; i-- {
		if m.bids[i].ItemID == itemID {
			out = append(out, *m.bids[i])
		}
	}
	return out, nil
}

type memMarket memStores

func (m *memMarket) CreateOwnership(_ context.Context, o models.Ownership) (*models.Ownership, error) {
	o.ID = uuid.New()
	m.owners = append(m.owners, o)
	return &o, nil
}

type memLedger memStores

func (m *memLedger) CreateTransaction(_ context.Context, req ledger.CreateTransactionRequest, status models.TransactionStatus) (*models.Transaction, error) {
	txn := &models.Transaction{
		ID:     uuid.New(),
		UserID: req.UserID,
		PoolID: req.PoolID,
		ItemID: req.ItemID,
		Type:   req.Type,
		Status: status,
		Amount: req.Amount,
	}
	m.txns = append(m.txns, txn)
	cp := *txn
	return &cp, nil
}

type memOutbox memStores

func (m *memOutbox) InsertPoolEvent(_ context.Context, poolID uuid.UUID, eventType string, payload any) error {
	m.events = append(m.events, recordedEvent{PoolID: poolID, EventType: eventType, Payload: payload})
	return nil
}

func (m *memOutbox) InsertUserEvent(_ context.Context, poolID, userID uuid.UUID, eventType string, payload any) error {
	m.events = append(m.events, recordedEvent{PoolID: poolID, UserID: &userID, EventType: eventType, Payload: payload})
	return nil
}

// nopCapturer approves every charge.
type nopCapturer struct{}

func (nopCapturer) CaptureCharge(context.Context, *models.Transaction) error { return nil }

// failCapturer rejects every charge.
type failCapturer struct{}

func (failCapturer) CaptureCharge(context.Context, *models.Transaction) error {
	return ledger.ErrChargeFailed
}

// spyNotifier records payment-failed alerts.
type spyNotifier struct {
	failed []uuid.UUID
}

func (n *spyNotifier) PaymentFailed(_ context.Context, _ uuid.UUID, commissionerID uuid.UUID, _ *models.Transaction) {
	n.failed = append(n.failed, commissionerID)
}
