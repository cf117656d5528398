package ledger

import "context"

// PaymentGateway captures funds for settled charges. Implementations wrap
// an external processor; NoopGateway is used for pools that settle up in
// person.
type PaymentGateway interface {
	// Charge captures the given decimal amount and returns an external
	// reference for reconciliation.
	Charge(ctx context.Context, userID string, amount string) (reference string, err error)
}

// NoopGateway approves every charge without moving money.
type NoopGateway struct{}

func (NoopGateway) Charge(ctx context.Context, userID string, amount string) (string, error) {
	return "noop", nil
}
