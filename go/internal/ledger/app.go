package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/brackethq/calcutta/go/internal/models"
)

// ErrChargeFailed wraps gateway rejections so callers can distinguish a
// declined charge from infrastructure errors.
var ErrChargeFailed = errors.New("ledger: charge failed")

// App settles pending charges against the payment gateway. Charges are
// created inside the sale transaction by the engine; capture happens after
// commit so a slow or failing processor never holds the item row lock.
type App struct {
	repo    *Repository
	gateway PaymentGateway
}

// NewApp creates a new ledger App.
func NewApp(repo *Repository, gateway PaymentGateway) *App {
	return &App{repo: repo, gateway: gateway}
}

// CaptureCharge runs a PENDING charge through the gateway and settles the
// ledger entry. A gateway error marks the entry FAILED and returns the
// error; the sale itself stands either way.
func (a *App) CaptureCharge(ctx context.Context, txn *models.Transaction) error {
	ref, err := a.gateway.Charge(ctx, txn.UserID.String(), txn.Amount.String())
	if err != nil {
		if _, settleErr := a.repo.SettleTransaction(ctx, txn.ID, models.TransactionStatusFailed, ""); settleErr != nil {
			log.Error().Err(settleErr).
				Str("transaction_id", txn.ID.String()).
				Msg("failed to mark charge FAILED")
		}
		log.Warn().Err(err).
			Str("transaction_id", txn.ID.String()).
			Str("user_id", txn.UserID.String()).
			Str("amount", txn.Amount.String()).
			Msg("payment capture failed")
		return fmt.Errorf("%w: %v", ErrChargeFailed, err)
	}

	if _, err := a.repo.SettleTransaction(ctx, txn.ID, models.TransactionStatusCompleted, ref); err != nil {
		return err
	}

	log.Info().
		Str("transaction_id", txn.ID.String()).
		Str("reference", ref).
		Msg("payment captured")

	return nil
}

// GetStatement returns a user's ledger entries in a pool.
func (a *App) GetStatement(ctx context.Context, poolID, userID uuid.UUID) ([]models.Transaction, error) {
	return a.repo.ListByUser(ctx, poolID, userID)
}

// ListPendingCharges returns unsettled charges for commissioner review.
func (a *App) ListPendingCharges(ctx context.Context, poolID uuid.UUID) ([]models.Transaction, error) {
	return a.repo.ListPendingCharges(ctx, poolID)
}
