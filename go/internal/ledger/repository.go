// Package ledger records money movement as transaction rows and settles
// charges against a payment gateway.
package ledger

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

// CreateTransactionRequest carries the fields of a new ledger entry.
type CreateTransactionRequest struct {
	UserID uuid.UUID              `json:"user_id"`
	PoolID uuid.UUID              `json:"pool_id"`
	ItemID *uuid.UUID             `json:"item_id,omitempty"`
	Type   models.TransactionType `json:"type"`
	Amount decimal.Decimal        `json:"amount"`
}

// Repository handles transaction persistence.
type Repository struct {
	q store.Querier
}

// NewRepository creates a ledger Repository over the given querier.
func NewRepository(q store.Querier) *Repository {
	return &Repository{q: q}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *Repository) WithTx(tx store.Querier) *Repository {
	return &Repository{q: tx}
}

const txnColumns = `id, user_id, pool_id, item_id, type, status, amount::text,
       reference, created_at, updated_at`

func scanTxn(row pgx.Row) (*models.Transaction, error) {
	var (
		t      models.Transaction
		amount string
	)
	err := row.Scan(&t.ID, &t.UserID, &t.PoolID, &t.ItemID, &t.Type, &t.Status,
		&amount, &t.Reference, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if t.Amount, err = store.FromNumeric(amount); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTransaction inserts a ledger entry with the given status.
func (r *Repository) CreateTransaction(ctx context.Context, req CreateTransactionRequest, status models.TransactionStatus) (*models.Transaction, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO transactions (id, user_id, pool_id, item_id, type, status, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric)
		RETURNING `+txnColumns,
		uuid.New(), req.UserID, req.PoolID, req.ItemID, req.Type, status,
		store.ToNumeric(req.Amount))
	t, err := scanTxn(row)
	if err != nil {
		return nil, fmt.Errorf("ledger: create transaction: %w", err)
	}
	return t, nil
}

// SettleTransaction moves a PENDING entry to COMPLETED or FAILED and stores
// the gateway reference. Zero rows means the entry was already settled.
func (r *Repository) SettleTransaction(ctx context.Context, id uuid.UUID, status models.TransactionStatus, reference string) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE transactions SET status = $2, reference = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4`,
		id, status, reference, models.TransactionStatusPending)
	if err != nil {
		return false, fmt.Errorf("ledger: settle transaction: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListByUser returns one user's ledger entries in a pool, newest first.
func (r *Repository) ListByUser(ctx context.Context, poolID, userID uuid.UUID) ([]models.Transaction, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+txnColumns+` FROM transactions
		WHERE pool_id = $1 AND user_id = $2
		ORDER BY created_at DESC`, poolID, userID)
	if err != nil {
		return nil, fmt.Errorf("ledger: list by user: %w", err)
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: list by user: %w", err)
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}

// ListPendingCharges returns unsettled charges for reconciliation.
func (r *Repository) ListPendingCharges(ctx context.Context, poolID uuid.UUID) ([]models.Transaction, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+txnColumns+` FROM transactions
		WHERE pool_id = $1 AND type = $2 AND status = $3
		ORDER BY created_at`, poolID, models.TransactionTypeCharge, models.TransactionStatusPending)
	if err != nil {
		return nil, fmt.Errorf("ledger: list pending charges: %w", err)
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: list pending charges: %w", err)
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}
