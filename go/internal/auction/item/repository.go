// Package item persists auction items and their bid history.
package item

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/brackethq/calcutta/go/internal/models"
	"github.com/brackethq/calcutta/go/internal/store"
)

// CreateItemRequest carries one team entering a pool's auction queue.
type CreateItemRequest struct {
	PoolID      uuid.UUID       `json:"pool_id"`
	TeamID      uuid.UUID       `json:"team_id"`
	Order       int             `json:"order"`
	StartingBid decimal.Decimal `json:"starting_bid"`
}

// Repository handles auction item and bid persistence.
type Repository struct {
	q store.Querier
}

// NewRepository creates an item Repository over the given querier.
func NewRepository(q store.Querier) *Repository {
	return &Repository{q: q}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *Repository) WithTx(tx store.Querier) *Repository {
	return &Repository{q: tx}
}

const itemColumns = `id, pool_id, team_id, status, queue_order, starting_bid::text,
       current_bid::text, current_bidder_id, winning_bid::text, winner_id,
       activated_at, finalized_at, created_at`

func scanItem(row pgx.Row) (*models.AuctionItem, error) {
	var (
		it       models.AuctionItem
		starting string
		current  *string
		winning  *string
	)
	err := row.Scan(&it.ID, &it.PoolID, &it.TeamID, &it.Status, &it.Order, &starting,
		&current, &it.CurrentBidderID, &winning, &it.WinnerID,
		&it.ActivatedAt, &it.FinalizedAt, &it.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if it.StartingBid, err = store.FromNumeric(starting); err != nil {
		return nil, err
	}
	if it.CurrentBid, err = store.FromNumericPtr(current); err != nil {
		return nil, err
	}
	if it.WinningBid, err = store.FromNumericPtr(winning); err != nil {
		return nil, err
	}
	return &it, nil
}

// CreateItemsBatch inserts the full auction queue for a pool.
func (r *Repository) CreateItemsBatch(ctx context.Context, reqs []CreateItemRequest) error {
	for _, req := range reqs {
		_, err := r.q.Exec(ctx, `
			INSERT INTO auction_items (id, pool_id, team_id, queue_order, starting_bid)
			VALUES ($1, $2, $3, $4, $5::numeric)`,
			uuid.New(), req.PoolID, req.TeamID, req.Order, store.ToNumeric(req.StartingBid))
		if err != nil {
			return fmt.Errorf("item: create items batch: %w", err)
		}
	}
	return nil
}

// GetItem fetches an item by id.
func (r *Repository) GetItem(ctx context.Context, id uuid.UUID) (*models.AuctionItem, error) {
	row := r.q.QueryRow(ctx, `SELECT `+itemColumns+` FROM auction_items WHERE id = $1`, id)
	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("item: get item: %w", err)
	}
	return it, nil
}

// GetItemForUpdate fetches an item with a row lock. All bid and settlement
// mutations take this lock first so they apply one at a time.
func (r *Repository) GetItemForUpdate(ctx context.Context, id uuid.UUID) (*models.AuctionItem, error) {
	row := r.q.QueryRow(ctx, `SELECT `+itemColumns+` FROM auction_items WHERE id = $1 FOR UPDATE`, id)
	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("item: get item for update: %w", err)
	}
	return it, nil
}

// GetActiveItem returns the pool's item currently on the block, if any.
func (r *Repository) GetActiveItem(ctx context.Context, poolID uuid.UUID) (*models.AuctionItem, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+itemColumns+` FROM auction_items
		WHERE pool_id = $1 AND status = $2`, poolID, models.ItemStatusActive)
	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("item: get active item: %w", err)
	}
	return it, nil
}

// ActivateNext promotes the lowest-ordered PENDING item to ACTIVE. The
// NOT EXISTS guard keeps at most one item active per pool; it returns
// store.ErrNotFound when the queue is exhausted.
func (r *Repository) ActivateNext(ctx context.Context, poolID uuid.UUID, now time.Time) (*models.AuctionItem, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE auction_items SET status = $2, activated_at = $3
		WHERE id = (
			SELECT id FROM auction_items
			WHERE pool_id = $1 AND status = $4
			ORDER BY queue_order
			LIMIT 1
		)
		AND NOT EXISTS (
			SELECT 1 FROM auction_items WHERE pool_id = $1 AND status = $2
		)
		RETURNING `+itemColumns,
		poolID, models.ItemStatusActive, now, models.ItemStatusPending)
	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("item: activate next: %w", err)
	}
	return it, nil
}

// ApplyBid records a new high bid on an ACTIVE item. The guard keeps the
// current bid monotonically increasing; zero rows means the item was not
// active or the amount did not beat the standing bid.
func (r *Repository) ApplyBid(ctx context.Context, itemID, bidderID uuid.UUID, amount decimal.Decimal) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE auction_items
		SET current_bid = $3::numeric, current_bidder_id = $2
		WHERE id = $1 AND status = $4
		  AND (current_bid IS NULL OR current_bid < $3::numeric)`,
		itemID, bidderID, store.ToNumeric(amount), models.ItemStatusActive)
	if err != nil {
		return false, fmt.Errorf("item: apply bid: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FinalizeSold transitions an ACTIVE item to SOLD. Zero rows affected means
// another worker already finalized it, which callers treat as a no-op.
func (r *Repository) FinalizeSold(ctx context.Context, itemID, winnerID uuid.UUID, winningBid decimal.Decimal, now time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE auction_items
		SET status = $4, winning_bid = $3::numeric, winner_id = $2, finalized_at = $5
		WHERE id = $1 AND status = $6`,
		itemID, winnerID, store.ToNumeric(winningBid), models.ItemStatusSold,
		now, models.ItemStatusActive)
	if err != nil {
		return false, fmt.Errorf("item: finalize sold: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FinalizeUnsold transitions an ACTIVE item with no bids to UNSOLD.
func (r *Repository) FinalizeUnsold(ctx context.Context, itemID uuid.UUID, now time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE auction_items
		SET status = $2, finalized_at = $3
		WHERE id = $1 AND status = $4 AND current_bid IS NULL`,
		itemID, models.ItemStatusUnsold, now, models.ItemStatusActive)
	if err != nil {
		return false, fmt.Errorf("item: finalize unsold: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListItems returns a pool's full queue in order.
func (r *Repository) ListItems(ctx context.Context, poolID uuid.UUID) ([]models.AuctionItem, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+itemColumns+` FROM auction_items
		WHERE pool_id = $1 ORDER BY queue_order`, poolID)
	if err != nil {
		return nil, fmt.Errorf("item: list items: %w", err)
	}
	defer rows.Close()

	var items []models.AuctionItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("item: list items: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// CountByStatus returns how many of a pool's items are in each status.
func (r *Repository) CountByStatus(ctx context.Context, poolID uuid.UUID) (map[models.ItemStatus]int, error) {
	rows, err := r.q.Query(ctx, `
		SELECT status, COUNT(*) FROM auction_items
		WHERE pool_id = $1 GROUP BY status`, poolID)
	if err != nil {
		return nil, fmt.Errorf("item: count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ItemStatus]int)
	for rows.Next() {
		var (
			status models.ItemStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("item: count by status: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ReorderPending rewrites queue positions for PENDING items. Items already
// finalized or on the block keep their order.
func (r *Repository) ReorderPending(ctx context.Context, poolID uuid.UUID, itemIDs []uuid.UUID) error {
	for i, id := range itemIDs {
		tag, err := r.q.Exec(ctx, `
			UPDATE auction_items SET queue_order = $3
			WHERE id = $1 AND pool_id = $2 AND status = $4`,
			id, poolID, i+1, models.ItemStatusPending)
		if err != nil {
			return fmt.Errorf("item: reorder pending: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("item: reorder pending: item %s is not pending in pool %s", id, poolID)
		}
	}
	return nil
}

// CreateBid appends one bid to the item's immutable history.
func (r *Repository) CreateBid(ctx context.Context, itemID, bidderID uuid.UUID, amount decimal.Decimal) (*models.Bid, error) {
	b := models.Bid{
		ID:       uuid.New(),
		ItemID:   itemID,
		BidderID: bidderID,
		Amount:   amount,
	}
	err := r.q.QueryRow(ctx, `
		INSERT INTO bids (id, item_id, bidder_id, amount)
		VALUES ($1, $2, $3, $4::numeric)
		RETURNING created_at`,
		b.ID, b.ItemID, b.BidderID, store.ToNumeric(amount)).Scan(&b.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("item: create bid: %w", err)
	}
	return &b, nil
}

// MarkWinningBid flags the settled bid in the history.
func (r *Repository) MarkWinningBid(ctx context.Context, itemID, bidderID uuid.UUID, amount decimal.Decimal) error {
	_, err := r.q.Exec(ctx, `
		UPDATE bids SET is_winning = TRUE
		WHERE id = (
			SELECT id FROM bids
			WHERE item_id = $1 AND bidder_id = $2 AND amount = $3::numeric
			ORDER BY created_at DESC
			LIMIT 1
		)`, itemID, bidderID, store.ToNumeric(amount))
	if err != nil {
		return fmt.Errorf("item: mark winning bid: %w", err)
	}
	return nil
}

// ListBids returns an item's bid history, newest first.
func (r *Repository) ListBids(ctx context.Context, itemID uuid.UUID) ([]models.Bid, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, item_id, bidder_id, amount::text, is_winning, created_at
		FROM bids WHERE item_id = $1 ORDER BY created_at DESC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("item: list bids: %w", err)
	}
	defer rows.Close()

	var bids []models.Bid
	for rows.Next() {
		var (
			b      models.Bid
			amount string
		)
		if err := rows.Scan(&b.ID, &b.ItemID, &b.BidderID, &amount, &b.IsWinning, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("item: list bids: %w", err)
		}
		if b.Amount, err = store.FromNumeric(amount); err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}
