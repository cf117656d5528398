package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OwnershipSource records how an ownership position was created.
type OwnershipSource string

const (
	OwnershipSourceAuction  OwnershipSource = "AUCTION"
	OwnershipSourceTransfer OwnershipSource = "TRANSFER"
)

// Ownership is a (user, auction item, percentage) claim entitling a
// proportional share of that item's payouts. The sum of active percentages
// for one item never exceeds 100.
type Ownership struct {
	ID            uuid.UUID       `json:"id"`
	ItemID        uuid.UUID       `json:"item_id"`
	UserID        uuid.UUID       `json:"user_id"`
	Percentage    decimal.Decimal `json:"percentage"` // (0, 100]
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	Source        OwnershipSource `json:"source"`
	CreatedAt     time.Time       `json:"created_at"`
}
