package market

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

func pct(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestSplitStake(t *testing.T) {
	remaining, err := splitStake(pct("100"), pct("40"))
	assert.Nil(t, err)
	check.True(t, remaining.Equal(pct("60")))

	// Transferring everything empties the stake.
	remaining, err = splitStake(pct("25"), pct("25"))
	assert.Nil(t, err)
	check.True(t, remaining.IsZero())

	// More than held.
	_, err = splitStake(pct("30"), pct("30.01"))
	check.True(t, errors.Is(err, ErrInsufficientStake))

	// Zero and negative transfers.
	_, err = splitStake(pct("50"), decimal.Zero)
	check.NotNil(t, err)
	_, err = splitStake(pct("50"), pct("-10"))
	check.NotNil(t, err)
}

func TestSplitStake_ConservesTotal(t *testing.T) {
	// Whatever the sender gives up, the receiver gains; the item total is
	// unchanged by any sequence of transfers.
	held := pct("100")
	received := decimal.Zero

	for _, transfer := range []string{"12.5", "0.01", "37.49", "50"} {
		amt := pct(transfer)
		remaining, err := splitStake(held, amt)
		assert.Nil(t, err)
		held = remaining
		received = received.Add(amt)
		check.True(t, held.Add(received).Equal(pct("100")))
	}
	check.True(t, held.IsZero())

	// The emptied stake cannot send more.
	_, err := splitStake(held, pct("0.01"))
	check.True(t, errors.Is(err, ErrInsufficientStake))
}

func TestTransfer_RejectsBadRequests(t *testing.T) {
	ctx := context.Background()
	app := NewApp(nil, nil)
	userID := uuid.New()

	err := app.Transfer(ctx, TransferRequest{
		ItemID:     uuid.New(),
		FromUserID: userID,
		ToUserID:   uuid.New(),
		Percentage: decimal.Zero,
	})
	check.NotNil(t, err)

	err = app.Transfer(ctx, TransferRequest{
		ItemID:     uuid.New(),
		FromUserID: userID,
		ToUserID:   userID,
		Percentage: pct("10"),
	})
	check.NotNil(t, err)
}
