package lifecycle

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parasfix/betsol/internal/domain"
)

var testTol = Tolerance{
	Pct: decimal.RequireFromString("0.01"),
	Min: decimal.RequireFromString("0.001"),
}

func openMatch() domain.Match {
	return domain.Match{
		ID:     100,
		TeamA:  "India",
		TeamB:  "Pakistan",
		OddsA:  decimal.RequireFromString("1.9"),
		OddsB:  decimal.RequireFromString("2.1"),
		Status: domain.MatchStatusOpen,
	}
}

func pendingWager(stake string) domain.Wager {
	return domain.Wager{
		ID:      "w-1",
		MatchID: 100,
		Side:    "India",
		Stake:   decimal.RequireFromString(stake),
		Odds:    decimal.RequireFromString("1.9"),
		Status:  domain.WagerStatusPending,
	}
}

func TestResolveMatch(t *testing.T) {
	now := time.Now().UTC()

	m := openMatch()
	require.NoError(t, ResolveMatch(&m, "India", now))
	assert.Equal(t, domain.MatchStatusCompleted, m.Status)
	assert.Equal(t, "India", m.Winner)
	require.NotNil(t, m.CompletedAt)

	// Second resolution is rejected and changes nothing.
	err := ResolveMatch(&m, "Pakistan", now)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, "India", m.Winner)

	m2 := openMatch()
	err = ResolveMatch(&m2, "Australia", now)
	assert.ErrorIs(t, err, domain.ErrUnknownSide)
	assert.Equal(t, domain.MatchStatusOpen, m2.Status)
}

func TestConfirmDeposit(t *testing.T) {
	now := time.Now().UTC()

	w := pendingWager("0.5")
	require.NoError(t, ConfirmDeposit(&w, "sig1", decimal.RequireFromString("0.5"), testTol, now))
	assert.Equal(t, domain.WagerStatusConfirmed, w.Status)
	assert.Equal(t, "sig1", w.DepositRef)
	require.NotNil(t, w.ConfirmedAt)

	// Replaying the same ref is a no-op success.
	require.NoError(t, ConfirmDeposit(&w, "sig1", decimal.RequireFromString("0.5"), testTol, now))
	assert.Equal(t, "sig1", w.DepositRef)

	// A second, different deposit may never attach.
	err := ConfirmDeposit(&w, "sig2", decimal.RequireFromString("0.5"), testTol, now)
	assert.ErrorIs(t, err, domain.ErrAlreadyConfirmed)
	assert.Equal(t, "sig1", w.DepositRef)
}

func TestConfirmDepositTolerance(t *testing.T) {
	now := time.Now().UTC()

	// 1% of 0.5 is 0.005: 0.4951 is inside, 0.49 is outside.
	w := pendingWager("0.5")
	require.NoError(t, ConfirmDeposit(&w, "sig1", decimal.RequireFromString("0.4951"), testTol, now))

	w2 := pendingWager("0.5")
	err := ConfirmDeposit(&w2, "sig1", decimal.RequireFromString("0.49"), testTol, now)
	assert.ErrorIs(t, err, domain.ErrAmountMismatch)
	assert.Equal(t, domain.WagerStatusPending, w2.Status)

	// For tiny stakes the fixed minimum unit dominates the percentage.
	w3 := pendingWager("0.01")
	require.NoError(t, ConfirmDeposit(&w3, "sig1", decimal.RequireFromString("0.0095"), testTol, now))
}

func TestResolveWager(t *testing.T) {
	now := time.Now().UTC()

	w := pendingWager("0.5")
	require.NoError(t, ConfirmDeposit(&w, "sig1", decimal.RequireFromString("0.5"), testTol, now))
	require.NoError(t, ResolveWager(&w, "India", now))
	assert.Equal(t, domain.WagerStatusWon, w.Status)
	assert.True(t, w.Payout.Equal(decimal.RequireFromString("0.95")), "payout = stake × odds, got %s", w.Payout)

	l := pendingWager("0.5")
	require.NoError(t, ConfirmDeposit(&l, "sig2", decimal.RequireFromString("0.5"), testTol, now))
	require.NoError(t, ResolveWager(&l, "Pakistan", now))
	assert.Equal(t, domain.WagerStatusLost, l.Status)
	assert.True(t, l.Payout.IsZero())

	// Pending at resolution forfeits even when it picked the winner.
	p := pendingWager("0.5")
	require.NoError(t, ResolveWager(&p, "India", now))
	assert.Equal(t, domain.WagerStatusLost, p.Status)
	assert.Equal(t, domain.LossReasonUnconfirmed, p.LossReason)

	// Already resolved wagers cannot be resolved again.
	err := ResolveWager(&w, "India", now)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestMarkPaid(t *testing.T) {
	now := time.Now().UTC()

	w := pendingWager("0.5")
	require.NoError(t, ConfirmDeposit(&w, "sig1", decimal.RequireFromString("0.5"), testTol, now))
	require.NoError(t, ResolveWager(&w, "India", now))

	due := w.PayoutDue()

	// Exact amount required, no tolerance.
	err := MarkPaid(&w, "paysig", due.Add(decimal.RequireFromString("0.0001")), now)
	assert.ErrorIs(t, err, domain.ErrPayoutMismatch)
	assert.Equal(t, domain.WagerStatusWon, w.Status)

	require.NoError(t, MarkPaid(&w, "paysig", due, now))
	assert.Equal(t, domain.WagerStatusPaid, w.Status)
	assert.Equal(t, "paysig", w.PayoutRef)

	// Replay of the same payout ref is a no-op.
	require.NoError(t, MarkPaid(&w, "paysig", due, now))

	// A second, different payout may never attach.
	err = MarkPaid(&w, "paysig2", due, now)
	assert.ErrorIs(t, err, domain.ErrAlreadyPaid)
	assert.Equal(t, "paysig", w.PayoutRef)
}

func TestMarkPaidRequiresWin(t *testing.T) {
	now := time.Now().UTC()

	w := pendingWager("0.5")
	err := MarkPaid(&w, "paysig", w.PayoutDue(), now)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}
