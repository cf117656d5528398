// Package market tracks ownership stakes in auction items and transfers
// between members.
package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/brackethq/calcutta/go/internal/models"
	"github.com/brackethq/calcutta/go/internal/store"
)

// Repository handles ownership persistence.
type Repository struct {
	q store.Querier
}

// NewRepository creates a market Repository over the given querier.
func NewRepository(q store.Querier) *Repository {
	return &Repository{q: q}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *Repository) WithTx(tx store.Querier) *Repository {
	return &Repository{q: tx}
}

const ownershipColumns = `id, item_id, user_id, percentage::text, purchase_price::text,
       source, created_at`

func scanOwnership(row pgx.Row) (*models.Ownership, error) {
	var (
		o     models.Ownership
		pct   string
		price string
	)
	err := row.Scan(&o.ID, &o.ItemID, &o.UserID, &pct, &price, &o.Source, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if o.Percentage, err = store.FromNumeric(pct); err != nil {
		return nil, err
	}
	if o.PurchasePrice, err = store.FromNumeric(price); err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateOwnership inserts an ownership stake.
func (r *Repository) CreateOwnership(ctx context.Context, o models.Ownership) (*models.Ownership, error) {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	row := r.q.QueryRow(ctx, `
		INSERT INTO ownerships (id, item_id, user_id, percentage, purchase_price, source)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6)
		RETURNING `+ownershipColumns,
		o.ID, o.ItemID, o.UserID, store.ToNumeric(o.Percentage),
		store.ToNumeric(o.PurchasePrice), o.Source)
	created, err := scanOwnership(row)
	if err != nil {
		return nil, fmt.Errorf("market: create ownership: %w", err)
	}
	return created, nil
}

// ListByItem returns all stakes in one item.
func (r *Repository) ListByItem(ctx context.Context, itemID uuid.UUID) ([]models.Ownership, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+ownershipColumns+` FROM ownerships
		WHERE item_id = $1 ORDER BY created_at`, itemID)
	if err != nil {
		return nil, fmt.Errorf("market: list by item: %w", err)
	}
	defer rows.Close()

	var stakes []models.Ownership
	for rows.Next() {
		o, err := scanOwnership(rows)
		if err != nil {
			return nil, fmt.Errorf("market: list by item: %w", err)
		}
		stakes = append(stakes, *o)
	}
	return stakes, rows.Err()
}

// ListByUser returns one user's stakes across a pool's items.
func (r *Repository) ListByUser(ctx context.Context, poolID, userID uuid.UUID) ([]models.Ownership, error) {
	rows, err := r.q.Query(ctx, `
		SELECT o.id, o.item_id, o.user_id, o.percentage::text, o.purchase_price::text,
		       o.source, o.created_at
		FROM ownerships o
		JOIN auction_items i ON i.id = o.item_id
		WHERE i.pool_id = $1 AND o.user_id = $2
		ORDER BY o.created_at`, poolID, userID)
	if err != nil {
		return nil, fmt.Errorf("market: list by user: %w", err)
	}
	defer rows.Close()

	var stakes []models.Ownership
	for rows.Next() {
		o, err := scanOwnership(rows)
		if err != nil {
			return nil, fmt.Errorf("market: list by user: %w", err)
		}
		stakes = append(stakes, *o)
	}
	return stakes, rows.Err()
}

// GetStakeForUpdate locks one user's stake in an item for transfer.
func (r *Repository) GetStakeForUpdate(ctx context.Context, itemID, userID uuid.UUID) (*models.Ownership, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+ownershipColumns+` FROM ownerships
		WHERE item_id = $1 AND user_id = $2 FOR UPDATE`, itemID, userID)
	o, err := scanOwnership(row)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("market: get stake for update: %w", err)
	}
	return o, nil
}

// UpdatePercentage rewrites a stake's share.
func (r *Repository) UpdatePercentage(ctx context.Context, id uuid.UUID, pct decimal.Decimal) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE ownerships SET percentage = $2::numeric WHERE id = $1`,
		id, store.ToNumeric(pct))
	if err != nil {
		return fmt.Errorf("market: update percentage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteStake removes a fully transferred stake.
func (r *Repository) DeleteStake(ctx context.Context, id uuid.UUID) error {
	_, err := r.q.Exec(ctx, `DELETE FROM ownerships WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("market: delete stake: %w", err)
	}
	return nil
}
