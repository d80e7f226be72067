package matcher

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parasfix/betsol/internal/domain"
	"github.com/parasfix/betsol/internal/lifecycle"
)

func newMatcher() *Matcher {
	return New(lifecycle.Tolerance{
		Pct: decimal.RequireFromString("0.01"),
		Min: decimal.RequireFromString("0.001"),
	})
}

func wager(id, stake, wallet string, created time.Time) domain.Wager {
	return domain.Wager{
		ID:           id,
		Stake:        decimal.RequireFromString(stake),
		PayoutWallet: wallet,
		Status:       domain.WagerStatusPending,
		CreatedAt:    created,
	}
}

func transfer(amount, source string) domain.Transfer {
	return domain.Transfer{
		Ref:    "sig",
		Amount: decimal.RequireFromString(amount),
		Source: source,
	}
}

func TestMatchSingleCandidate(t *testing.T) {
	now := time.Now()
	pending := []domain.Wager{
		wager("a", "0.5", "walletA", now),
		wager("b", "0.25", "walletB", now),
	}

	d := newMatcher().Match(transfer("0.25", ""), pending)
	require.NotNil(t, d.Wager)
	assert.Equal(t, "b", d.Wager.ID)
	assert.Equal(t, StrategyAmount, d.Strategy)
	assert.False(t, d.NeedsReview)
}

func TestMatchUnmatched(t *testing.T) {
	pending := []domain.Wager{wager("a", "0.5", "", time.Now())}

	d := newMatcher().Match(transfer("0.3", ""), pending)
	assert.Nil(t, d.Wager)
	assert.Zero(t, d.Candidates)
}

func TestMatchAmbiguityPicksEarliest(t *testing.T) {
	now := time.Now()
	// Store contract: pending is ordered by creation time ascending.
	pending := []domain.Wager{
		wager("early", "0.25", "walletA", now.Add(-time.Minute)),
		wager("late", "0.25", "walletB", now),
	}

	d := newMatcher().Match(transfer("0.25", ""), pending)
	require.NotNil(t, d.Wager)
	assert.Equal(t, "early", d.Wager.ID)
	assert.Equal(t, 2, d.Candidates)
	assert.True(t, d.NeedsReview, "same-amount collision must be surfaced")
}

func TestMatchPrefersDeclaredSource(t *testing.T) {
	now := time.Now()
	pending := []domain.Wager{
		wager("early-amount", "0.25", "walletA", now.Add(-time.Minute)),
		wager("by-source", "0.25", "walletB", now),
	}

	// walletB sent the deposit: source match wins over the earlier
	// amount-only candidate, and nothing needs review.
	d := newMatcher().Match(transfer("0.25", "walletB"), pending)
	require.NotNil(t, d.Wager)
	assert.Equal(t, "by-source", d.Wager.ID)
	assert.Equal(t, StrategySource, d.Strategy)
	assert.False(t, d.NeedsReview)
}

func TestMatchWithinTolerance(t *testing.T) {
	pending := []domain.Wager{wager("a", "0.5", "", time.Now())}

	d := newMatcher().Match(transfer("0.4987", ""), pending)
	require.NotNil(t, d.Wager)
	assert.Equal(t, "a", d.Wager.ID)
}
