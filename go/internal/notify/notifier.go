// Package notify delivers operator alerts. The engine raises alerts for
// conditions that need a human, payment capture failures mostly, and the
// dispatcher fans them out to every configured channel.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/brackethq/calcutta/go/internal/models"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Dispatcher fans alerts out to all registered senders. A failing sender does
// not block the others; failures are logged, never returned to the engine.
type Dispatcher struct {
	senders []Sender
}

func NewDispatcher(senders ...Sender) *Dispatcher {
	return &Dispatcher{senders: senders}
}

// PaymentFailed alerts the commissioner that a sale settled but the charge
// did not capture. The sale stands; collecting is the commissioner's problem.
func (d *Dispatcher) PaymentFailed(ctx context.Context, poolID, commissionerID uuid.UUID, txn *models.Transaction) {
	title := "Payment capture failed"
	message := fmt.Sprintf(
		"Pool %s: charge of %s to member %s failed (transaction %s). The sale stands; follow up manually.",
		poolID, txn.Amount.StringFixed(2), txn.UserID, txn.ID)

	d.dispatch(ctx, title, message)
}

func (d *Dispatcher) dispatch(ctx context.Context, title, message string) {
	var failed []string
	for _, s := range d.senders {
		if err := s.Send(ctx, title, message); err != nil {
			log.Error().Err(err).Str("sender", s.Name()).Msg("alert delivery failed")
			failed = append(failed, s.Name())
		}
	}
	if len(failed) > 0 {
		log.Warn().
			Str("title", title).
			Str("senders", strings.Join(failed, ",")).
			Msg("alert not delivered on all channels")
	}
}

// LogSender writes alerts to the application log. Always configured, so an
// alert is never silently lost even with no external channel set up.
type LogSender struct{}

func (LogSender) Send(_ context.Context, title, message string) error {
	log.Warn().Str("alert", title).Msg(message)
	return nil
}

func (LogSender) Name() string { return "log" }
