package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/brackethq/calcutta/go/internal/models"
)

// ErrBudgetExceeded is returned when a guarded budget decrement would take
// a member's remaining budget below zero.
var ErrBudgetExceeded = errors.New("pool: remaining budget exceeded")

// validStatusTransitions defines allowed pool status transitions.
var validStatusTransitions = map[models.PoolStatus][]models.PoolStatus{
	models.PoolStatusDraft:      {models.PoolStatusOpen, models.PoolStatusLive, models.PoolStatusCancelled},
	models.PoolStatusOpen:       {models.PoolStatusLive, models.PoolStatusCancelled},
	models.PoolStatusLive:       {models.PoolStatusInProgress, models.PoolStatusCancelled},
	models.PoolStatusInProgress: {models.PoolStatusCompleted, models.PoolStatusCancelled},
	models.PoolStatusCompleted:  {},
	models.PoolStatusCancelled:  {},
}

// App handles pool business logic.
type App struct {
	repo *Repository
}

// NewApp creates a new pool App.
func NewApp(repo *Repository) *App {
	return &App{repo: repo}
}

// CreatePool creates a new pool with validation.
func (a *App) CreatePool(ctx context.Context, req CreatePoolRequest) (*models.Pool, error) {
	if err := a.validateCreatePoolRequest(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	p, err := a.repo.CreatePool(ctx, req)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("pool_id", p.ID.String()).
		Str("name", p.Name).
		Msg("created pool")

	return p, nil
}

// GetPool fetches a pool by id.
func (a *App) GetPool(ctx context.Context, id uuid.UUID) (*models.Pool, error) {
	return a.repo.GetPool(ctx, id)
}

// UpdatePoolStatus validates and applies a status transition.
func (a *App) UpdatePoolStatus(ctx context.Context, id uuid.UUID, to models.PoolStatus) (*models.Pool, error) {
	p, err := a.repo.GetPool(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("pool not found: %w", err)
	}

	if err := a.validateStatusTransition(p.Status, to); err != nil {
		return nil, err
	}

	if err := a.repo.UpdatePoolStatus(ctx, id, to); err != nil {
		return nil, err
	}

	log.Info().
		Str("pool_id", id.String()).
		Str("from", string(p.Status)).
		Str("to", string(to)).
		Msg("updated pool status")

	p.Status = to
	return p, nil
}

// JoinPool adds a user to an OPEN pool, seeding their budget from the pool
// settings when budgets are enabled.
func (a *App) JoinPool(ctx context.Context, req AddMemberRequest) (*models.PoolMember, error) {
	p, err := a.repo.GetPool(ctx, req.PoolID)
	if err != nil {
		return nil, fmt.Errorf("pool not found: %w", err)
	}
	if p.Status != models.PoolStatusOpen && p.Status != models.PoolStatusDraft {
		return nil, fmt.Errorf("cannot join pool in status %s", p.Status)
	}

	var budget = p.Settings.BudgetPerMember
	if !p.Settings.BudgetEnabled {
		budget = nil
	}

	m, err := a.repo.AddMember(ctx, req, budget)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("pool_id", req.PoolID.String()).
		Str("user_id", req.UserID.String()).
		Bool("commissioner", req.IsCommissioner).
		Msg("member joined pool")

	return m, nil
}

// ListMembers returns all members of a pool.
func (a *App) ListMembers(ctx context.Context, poolID uuid.UUID) ([]models.PoolMember, error) {
	return a.repo.ListMembers(ctx, poolID)
}

// GetMember fetches one member by pool and user.
func (a *App) GetMember(ctx context.Context, poolID, userID uuid.UUID) (*models.PoolMember, error) {
	return a.repo.GetMember(ctx, poolID, userID)
}

func (a *App) validateCreatePoolRequest(req CreatePoolRequest) error {
	if req.TournamentID == uuid.Nil {
		return fmt.Errorf("tournament_id is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if req.Settings.BudgetEnabled {
		if req.Settings.BudgetPerMember == nil || req.Settings.BudgetPerMember.Sign() <= 0 {
			return fmt.Errorf("budget_per_member must be positive when budgets are enabled")
		}
	}
	return nil
}

func (a *App) validateStatusTransition(from, to models.PoolStatus) error {
	for _, allowed := range validStatusTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("invalid status transition from %s to %s", from, to)
}
