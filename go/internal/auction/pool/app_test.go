package pool

import (
	"testing"

	"github.com/google/uuid"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/brackethq/calcutta/go/internal/models"
)

func TestValidateStatusTransition(t *testing.T) {
	app := NewApp(nil)

	allowed := []struct{ from, to models.PoolStatus }{
		{models.PoolStatusDraft, models.PoolStatusOpen},
		{models.PoolStatusDraft, models.PoolStatusLive},
		{models.PoolStatusDraft, models.PoolStatusCancelled},
		{models.PoolStatusOpen, models.PoolStatusLive},
		{models.PoolStatusOpen, models.PoolStatusCancelled},
		{models.PoolStatusLive, models.PoolStatusInProgress},
		{models.PoolStatusLive, models.PoolStatusCancelled},
		{models.PoolStatusInProgress, models.PoolStatusCompleted},
		{models.PoolStatusInProgress, models.PoolStatusCancelled},
	}
	for _, tt := range allowed {
		check.Nil(t, app.validateStatusTransition(tt.from, tt.to))
	}

	denied := []struct{ from, to models.PoolStatus }{
		{models.PoolStatusDraft, models.PoolStatusCompleted},
		{models.PoolStatusOpen, models.PoolStatusCompleted},
		{models.PoolStatusLive, models.PoolStatusOpen},
		{models.PoolStatusCompleted, models.PoolStatusLive},
		{models.PoolStatusCancelled, models.PoolStatusOpen},
		{models.PoolStatusInProgress, models.PoolStatusLive},
	}
	for _, tt := range denied {
		check.NotNil(t, app.validateStatusTransition(tt.from, tt.to))
	}
}

func TestValidateCreatePoolRequest(t *testing.T) {
	app := NewApp(nil)
	budget := decimal.NewFromInt(100)
	zero := decimal.Zero

	check.Nil(t, app.validateCreatePoolRequest(CreatePoolRequest{
		TournamentID: uuid.New(),
		Name:         "March Madness 2026",
	}))

	check.Nil(t, app.validateCreatePoolRequest(CreatePoolRequest{
		TournamentID: uuid.New(),
		Name:         "Budget pool",
		Settings: models.PoolSettings{
			BudgetEnabled:   true,
			BudgetPerMember: &budget,
		},
	}))

	check.NotNil(t, app.validateCreatePoolRequest(CreatePoolRequest{
		Name: "no tournament",
	}))

	check.NotNil(t, app.validateCreatePoolRequest(CreatePoolRequest{
		TournamentID: uuid.New(),
		Name:         "   ",
	}))

	// Budgets enabled but no amount.
	check.NotNil(t, app.validateCreatePoolRequest(CreatePoolRequest{
		TournamentID: uuid.New(),
		Name:         "broken budget",
		Settings:     models.PoolSettings{BudgetEnabled: true},
	}))
	check.NotNil(t, app.validateCreatePoolRequest(CreatePoolRequest{
		TournamentID: uuid.New(),
		Name:         "zero budget",
		Settings: models.PoolSettings{
			BudgetEnabled:   true,
			BudgetPerMember: &zero,
		},
	}))
}
