// Package payout distributes the pool's pot to team owners as tournament
// rounds resolve.
package payout

import (
	"github.com/brackethq/calcutta/go/internal/models"
)

// footballTriggers maps playoff round numbers to payout triggers.
var footballTriggers = map[int]models.PayoutTrigger{
	1: models.TriggerWildCardWin,
	2: models.TriggerDivisionalWin,
	3: models.TriggerConferenceWin,
	4: models.TriggerSuperBowlWin,
}

// basketballTriggers maps tournament round numbers to payout triggers.
var basketballTriggers = map[int]models.PayoutTrigger{
	1: models.TriggerRoundOf64,
	2: models.TriggerRoundOf32,
	3: models.TriggerSweetSixteen,
	4: models.TriggerEliteEight,
	5: models.TriggerFinalFour,
	6: models.TriggerChampionship,
}

// TriggerForRound maps a sport and round number to the payout trigger that
// fires when a team wins that round. Unknown rounds return false; games in
// rounds nobody pays out on are simply recorded.
func TriggerForRound(sport models.Sport, round int) (models.PayoutTrigger, bool) {
	switch sport {
	case models.SportFootball:
		t, ok := footballTriggers[round]
		return t, ok
	case models.SportBasketball:
		t, ok := basketballTriggers[round]
		return t, ok
	default:
		return "", false
	}
}
