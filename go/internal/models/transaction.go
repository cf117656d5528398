package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType distinguishes money moving in from money moving out.
type TransactionType string

const (
	TransactionTypeCharge TransactionType = "CHARGE" // auction win
	TransactionTypeCredit TransactionType = "CREDIT" // payout
)

// TransactionStatus is the ledger lifecycle of one money movement.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// Transaction is one ledger entry. A charge is created PENDING inside the
// settlement transaction and moved to COMPLETED/FAILED after the payment
// gateway responds; failed charges are kept for manual reconciliation.
type Transaction struct {
	ID        uuid.UUID         `json:"id"`
	UserID    uuid.UUID         `json:"user_id"`
	PoolID    uuid.UUID         `json:"pool_id"`
	ItemID    *uuid.UUID        `json:"item_id,omitempty"`
	Type      TransactionType   `json:"type"`
	Status    TransactionStatus `json:"status"`
	Amount    decimal.Decimal   `json:"amount"`
	Reference string            `json:"reference,omitempty"` // gateway reference
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
