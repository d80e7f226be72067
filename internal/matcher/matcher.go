// Package matcher correlates observed deposits with pending wagers. Given
// one transfer it selects at most one wager to confirm; everything else is
// surfaced, never guessed.
package matcher

import (
	"github.com/parasfix/betsol/internal/domain"
	"github.com/parasfix/betsol/internal/lifecycle"
)

// Strategy records which correlation path produced a decision.
type Strategy string

const (
	// StrategySource matched on the wager's declared wallet plus amount.
	StrategySource Strategy = "source"
	// StrategyAmount matched on amount alone.
	StrategyAmount Strategy = "amount"
)

// Decision is the outcome of matching one transfer against the pending set.
type Decision struct {
	// Wager is the wager to confirm, nil when the transfer is unmatched.
	Wager *domain.Wager
	// Strategy is how the match was made. Empty when unmatched.
	Strategy Strategy
	// Candidates is how many pending wagers correlated with the transfer.
	Candidates int
	// NeedsReview is set when more than one candidate had the same claim on
	// the transfer; the earliest-created wager was picked deterministically
	// but an operator has to verify the rest.
	NeedsReview bool
}

// Matcher selects pending wagers for observed transfers.
type Matcher struct {
	tol lifecycle.Tolerance
}

// New creates a Matcher with the given amount tolerance.
func New(tol lifecycle.Tolerance) *Matcher {
	return &Matcher{tol: tol}
}

// Match picks at most one wager for the transfer. Wagers whose declared
// wallet equals the transfer's source address are a stronger signal than
// amount alone, so when any source candidates exist the amount-only ones are
// ignored. Ties within one strategy break on earliest creation time; pending
// must already be sorted by creation time ascending (the store contract).
func (m *Matcher) Match(t domain.Transfer, pending []domain.Wager) Decision {
	var source, amount []domain.Wager
	for _, w := range pending {
		if !m.tol.WithinEpsilon(w.Stake, t.Amount) {
			continue
		}
		if t.Source != "" && w.PayoutWallet == t.Source {
			source = append(source, w)
		} else {
			amount = append(amount, w)
		}
	}

	pick := func(cands []domain.Wager, s Strategy) Decision {
		w := cands[0]
		return Decision{
			Wager:       &w,
			Strategy:    s,
			Candidates:  len(cands),
			NeedsReview: len(cands) > 1,
		}
	}

	if len(source) > 0 {
		return pick(source, StrategySource)
	}
	if len(amount) > 0 {
		return pick(amount, StrategyAmount)
	}
	return Decision{}
}
