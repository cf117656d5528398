package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brackethq/calcutta/go/internal/auction/item"
	"github.com/brackethq/calcutta/go/internal/auction/outbox"
	"github.com/brackethq/calcutta/go/internal/auction/pool"
	"github.com/brackethq/calcutta/go/internal/ledger"
	"github.com/brackethq/calcutta/go/internal/market"
	"github.com/brackethq/calcutta/go/internal/models"
	"github.com/brackethq/calcutta/go/internal/store"
)

// PoolStore defines what the engine needs from the pool repository.
type PoolStore interface {
	GetPool(ctx context.Context, id uuid.UUID) (*models.Pool, error)
	GetPoolForUpdate(ctx context.Context, id uuid.UUID) (*models.Pool, error)
	UpdatePoolStatus(ctx context.Context, id uuid.UUID, status models.PoolStatus) error
	SetClosesAt(ctx context.Context, id uuid.UUID, closesAt time.Time) error
	ClearClosesAt(ctx context.Context, id uuid.UUID) error
	MarkPaused(ctx context.Context, id uuid.UUID, remaining time.Duration) error
	AddToPot(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	GetMember(ctx context.Context, poolID, userID uuid.UUID) (*models.PoolMember, error)
	ApplyPurchase(ctx context.Context, poolID, userID uuid.UUID, price decimal.Decimal, requireBudget bool) error
	GetCommissioner(ctx context.Context, poolID uuid.UUID) (*models.PoolMember, error)
}

// ItemStore defines what the engine needs from the item repository.
type ItemStore interface {
	GetItem(ctx context.Context, id uuid.UUID) (*models.AuctionItem, error)
	GetActiveItem(ctx context.Context, poolID uuid.UUID) (*models.AuctionItem, error)
	ActivateNext(ctx context.Context, poolID uuid.UUID, now time.Time) (*models.AuctionItem, error)
	ApplyBid(ctx context.Context, itemID, bidderID uuid.UUID, amount decimal.Decimal) (bool, error)
	FinalizeSold(ctx context.Context, itemID, winnerID uuid.UUID, winningBid decimal.Decimal, now time.Time) (bool, error)
	FinalizeUnsold(ctx context.Context, itemID uuid.UUID, now time.Time) (bool, error)
	ListItems(ctx context.Context, poolID uuid.UUID) ([]models.AuctionItem, error)
	CountByStatus(ctx context.Context, poolID uuid.UUID) (map[models.ItemStatus]int, error)
	ReorderPending(ctx context.Context, poolID uuid.UUID, itemIDs []uuid.UUID) error
	CreateBid(ctx context.Context, itemID, bidderID uuid.UUID, amount decimal.Decimal) (*models.Bid, error)
	MarkWinningBid(ctx context.Context, itemID, bidderID uuid.UUID, amount decimal.Decimal) error
	ListBids(ctx context.Context, itemID uuid.UUID) ([]models.Bid, error)
}

// MarketStore defines what the engine needs from the ownership repository.
type MarketStore interface {
	CreateOwnership(ctx context.Context, o models.Ownership) (*models.Ownership, error)
}

// LedgerStore defines what the engine needs from the transaction repository.
type LedgerStore interface {
	CreateTransaction(ctx context.Context, req ledger.CreateTransactionRequest, status models.TransactionStatus) (*models.Transaction, error)
}

// OutboxStore defines what the engine needs from the outbox.
type OutboxStore interface {
	InsertPoolEvent(ctx context.Context, poolID uuid.UUID, eventType string, payload any) error
	InsertUserEvent(ctx context.Context, poolID, userID uuid.UUID, eventType string, payload any) error
}

// Stores bundles the repositories bound to one transaction.
type Stores struct {
	Pools  PoolStore
	Items  ItemStore
	Market MarketStore
	Ledger LedgerStore
	Outbox OutboxStore
}

// TxRunner hands the engine a Stores bundle, either bound to a single
// transaction or to the plain connection pool for reads.
type TxRunner interface {
	InTx(ctx context.Context, fn func(s Stores) error) error
	View() Stores
}

// PGStores is the production TxRunner over Postgres.
type PGStores struct {
	runner store.Runner
	pools  *pool.Repository
	items  *item.Repository
	market *market.Repository
	ledger *ledger.Repository
	outbox *outbox.App
}

// NewPGStores creates the production store bundle.
func NewPGStores(runner store.Runner, pools *pool.Repository, items *item.Repository, mkt *market.Repository, led *ledger.Repository, ob *outbox.App) *PGStores {
	return &PGStores{
		runner: runner,
		pools:  pools,
		items:  items,
		market: mkt,
		ledger: led,
		outbox: ob,
	}
}

// InTx runs fn with every repository rebound to one transaction.
func (p *PGStores) InTx(ctx context.Context, fn func(s Stores) error) error {
	return p.runner.RunTx(ctx, func(tx store.Querier) error {
		return fn(Stores{
			Pools:  p.pools.WithTx(tx),
			Items:  p.items.WithTx(tx),
			Market: p.market.WithTx(tx),
			Ledger: p.ledger.WithTx(tx),
			Outbox: p.outbox.WithTx(tx),
		})
	})
}

// View returns the repositories bound to the connection pool.
func (p *PGStores) View() Stores {
	return Stores{
		Pools:  p.pools,
		Items:  p.items,
		Market: p.market,
		Ledger: p.ledger,
		Outbox: p.outbox,
	}
}
