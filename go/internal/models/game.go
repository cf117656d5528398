package models

import (
	"time"

	"github.com/google/uuid"
)

// Sport identifies the tournament's sport, which selects the round-to-trigger
// mapping for payouts.
type Sport string

const (
	SportFootball   Sport = "FOOTBALL"
	SportBasketball Sport = "BASKETBALL"
)

// GameStatus defines the status of a tournament game.
type GameStatus string

const (
	GameStatusScheduled  GameStatus = "SCHEDULED"
	GameStatusInProgress GameStatus = "IN_PROGRESS"
	GameStatusFinal      GameStatus = "FINAL"
)

// Game is an external tournament fact. A FINAL game with a winner is the
// trigger for the payout waterfall; games are written by the score-ingestion
// collaborator, never by the engine.
type Game struct {
	ID           uuid.UUID  `json:"id"`
	TournamentID uuid.UUID  `json:"tournament_id"`
	Round        int        `json:"round"`
	HomeTeamID   uuid.UUID  `json:"home_team_id"`
	AwayTeamID   uuid.UUID  `json:"away_team_id"`
	Status       GameStatus `json:"status"`
	WinnerID     *uuid.UUID `json:"winner_id,omitempty"`
	PlayedAt     *time.Time `json:"played_at,omitempty"`
}

// Team is one tournament team.
type Team struct {
	ID              uuid.UUID `json:"id"`
	TournamentID    uuid.UUID `json:"tournament_id"`
	Name            string    `json:"name"`
	Seed            int       `json:"seed"`
	IsEliminated    bool      `json:"is_eliminated"`
	EliminatedRound *int      `json:"eliminated_round,omitempty"`
}

// Tournament groups teams and games and carries the sport used for payout
// trigger mapping.
type Tournament struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Sport Sport     `json:"sport"`
	Year  int       `json:"year"`
}
