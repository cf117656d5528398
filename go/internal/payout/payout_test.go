package payout

import (
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/brackethq/calcutta/go/internal/models"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestTriggerForRound(t *testing.T) {
	tests := []struct {
		sport models.Sport
		round int
		want  models.PayoutTrigger
		ok    bool
	}{
		{models.SportFootball, 1, models.TriggerWildCardWin, true},
		{models.SportFootball, 2, models.TriggerDivisionalWin, true},
		{models.SportFootball, 3, models.TriggerConferenceWin, true},
		{models.SportFootball, 4, models.TriggerSuperBowlWin, true},
		{models.SportFootball, 5, "", false},
		{models.SportBasketball, 1, models.TriggerRoundOf64, true},
		{models.SportBasketball, 2, models.TriggerRoundOf32, true},
		{models.SportBasketball, 3, models.TriggerSweetSixteen, true},
		{models.SportBasketball, 4, models.TriggerEliteEight, true},
		{models.SportBasketball, 5, models.TriggerFinalFour, true},
		{models.SportBasketball, 6, models.TriggerChampionship, true},
		{models.SportBasketball, 0, "", false},
		{models.SportBasketball, 7, "", false},
		{models.Sport("CRICKET"), 1, "", false},
	}

	for _, tt := range tests {
		got, ok := TriggerForRound(tt.sport, tt.round)
		check.Equal(t, tt.ok, ok)
		check.Equal(t, tt.want, got)
	}
}

func TestRulePayout(t *testing.T) {
	// 1.25% of a $1000 pot releases $12.50.
	got := rulePayout(dec("1000"), dec("1.25"))
	check.True(t, got.Equal(dec("12.50")))

	// Fractional cents truncate, never round up.
	got = rulePayout(dec("999.99"), dec("1.25"))
	check.True(t, got.Equal(dec("12.49"))) // exact 12.499875

	got = rulePayout(dec("0"), dec("50"))
	check.True(t, got.IsZero())
}

func TestOwnerShare_ProRata(t *testing.T) {
	payout := rulePayout(dec("1000"), dec("1.25"))
	assert.True(t, payout.Equal(dec("12.50")))

	// 60/40 split of $12.50 pays $7.50 and $5.00.
	check.True(t, ownerShare(payout, dec("60")).Equal(dec("7.50")))
	check.True(t, ownerShare(payout, dec("40")).Equal(dec("5.00")))
}

func TestOwnerShare_RoundingNeverOverDistributes(t *testing.T) {
	splits := [][]string{
		{"60", "40"},
		{"33.33", "33.33", "33.34"},
		{"50", "25", "25"},
		{"99.99", "0.01"},
		{"70.5", "29.5"},
	}
	payouts := []string{"12.50", "0.01", "0.03", "100", "33.33", "1234.56"}

	for _, p := range payouts {
		payout := dec(p)
		for _, split := range splits {
			total := decimal.Zero
			for _, pct := range split {
				total = total.Add(ownerShare(payout, dec(pct)))
			}
			check.True(t, total.LessThanOrEqual(payout))
		}
	}
}

func TestOwnerShare_TruncatesToCents(t *testing.T) {
	// A third of $1.00 is 33 cents; the leftover cent stays in the pot.
	share := ownerShare(dec("1.00"), dec("33.333333"))
	check.True(t, share.Equal(dec("0.33")))
	check.True(t, share.Exponent() >= -2)
}
