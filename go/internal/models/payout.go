package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayoutTrigger is a tournament-round milestone mapped to a
// percentage-of-pot rule.
type PayoutTrigger string

const (
	// NFL rounds.
	TriggerWildCardWin   PayoutTrigger = "WILD_CARD_WIN"
	TriggerDivisionalWin PayoutTrigger = "DIVISIONAL_WIN"
	TriggerConferenceWin PayoutTrigger = "CONFERENCE_WIN"
	TriggerSuperBowlWin  PayoutTrigger = "SUPER_BOWL_WIN"

	// Basketball tournament rounds.
	TriggerRoundOf64     PayoutTrigger = "ROUND_OF_64"
	TriggerRoundOf32     PayoutTrigger = "ROUND_OF_32"
	TriggerSweetSixteen  PayoutTrigger = "SWEET_SIXTEEN"
	TriggerEliteEight    PayoutTrigger = "ELITE_EIGHT"
	TriggerFinalFour     PayoutTrigger = "FINAL_FOUR"
	TriggerChampionship  PayoutTrigger = "CHAMPIONSHIP"
)

// PayoutRule maps a trigger to a percentage of the pool's total pot.
// Editable while the pool is in draft/open; fixed once the auction completes.
type PayoutRule struct {
	ID         uuid.UUID       `json:"id"`
	PoolID     uuid.UUID       `json:"pool_id"`
	Trigger    PayoutTrigger   `json:"trigger"`
	Percentage decimal.Decimal `json:"percentage"` // of total pot
	Order      int             `json:"order"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Payout is one credited distribution to one owner.
type Payout struct {
	ID        uuid.UUID       `json:"id"`
	PoolID    uuid.UUID       `json:"pool_id"`
	RuleID    uuid.UUID       `json:"rule_id"`
	ItemID    uuid.UUID       `json:"item_id"`
	UserID    uuid.UUID       `json:"user_id"`
	GameID    uuid.UUID       `json:"game_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// PayoutLog marks a game as processed by the waterfall. One row per game;
// its presence makes re-delivered game-finalized events no-ops.
type PayoutLog struct {
	GameID      uuid.UUID `json:"game_id"`
	ProcessedAt time.Time `json:"processed_at"`
}
