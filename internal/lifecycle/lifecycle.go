// Package lifecycle owns every match and wager state transition. Transitions
// are pure functions over a copy of the record: they either mutate the copy
// and return nil, or return a domain error and leave it untouched. Callers
// persist the mutated copy through the store's versioned write.
package lifecycle

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/parasfix/betsol/internal/domain"
)

// Tolerance is the allowed deviation between a wager's stake and an observed
// deposit amount: max(stake × Pct, Min).
type Tolerance struct {
	Pct decimal.Decimal // fraction of the stake, e.g. 0.01
	Min decimal.Decimal // fixed minimum unit, e.g. 0.001 SOL
}

// Epsilon returns the absolute tolerance for the given stake.
func (t Tolerance) Epsilon(stake decimal.Decimal) decimal.Decimal {
	eps := stake.Mul(t.Pct)
	if eps.LessThan(t.Min) {
		return t.Min
	}
	return eps
}

// WithinEpsilon reports whether observed matches stake within the tolerance.
func (t Tolerance) WithinEpsilon(stake, observed decimal.Decimal) bool {
	return stake.Sub(observed).Abs().LessThanOrEqual(t.Epsilon(stake))
}

// ResolveMatch transitions a match from open to completed with the given
// winner. A completed match returns domain.ErrInvalidTransition; a winner
// that is not one of the two team labels returns domain.ErrUnknownSide.
func ResolveMatch(m *domain.Match, winner string, now time.Time) error {
	if m.Status != domain.MatchStatusOpen {
		return domain.ErrInvalidTransition
	}
	if !m.HasSide(winner) {
		return domain.ErrUnknownSide
	}
	m.Status = domain.MatchStatusCompleted
	m.Winner = winner
	m.CompletedAt = &now
	return nil
}

// ConfirmDeposit attaches a deposit transfer to a pending wager and moves it
// to confirmed. Replaying the same transfer ref is a success no-op, so the
// observer can safely retry after a crash. A different ref on a wager that
// already carries one returns domain.ErrAlreadyConfirmed, and an observed
// amount outside the tolerance returns domain.ErrAmountMismatch.
func ConfirmDeposit(w *domain.Wager, transferRef string, observed decimal.Decimal, tol Tolerance, now time.Time) error {
	if w.DepositRef == transferRef && transferRef != "" {
		return nil // idempotent replay
	}
	if w.DepositRef != "" {
		return domain.ErrAlreadyConfirmed
	}
	if w.Status != domain.WagerStatusPending {
		return domain.ErrInvalidTransition
	}
	if !tol.WithinEpsilon(w.Stake, observed) {
		return domain.ErrAmountMismatch
	}
	w.Status = domain.WagerStatusConfirmed
	w.DepositRef = transferRef
	w.ConfirmedAt = &now
	return nil
}

// ResolveWager applies the match outcome to one wager. Confirmed wagers go
// to won or lost by comparing their side against the winner; wagers still
// pending forfeit and go to lost with LossReasonUnconfirmed regardless of
// side. Any other state returns domain.ErrInvalidTransition.
func ResolveWager(w *domain.Wager, winner string, now time.Time) error {
	switch w.Status {
	case domain.WagerStatusConfirmed:
		if w.Side == winner {
			w.Status = domain.WagerStatusWon
			w.Payout = w.PayoutDue()
		} else {
			w.Status = domain.WagerStatusLost
		}
	case domain.WagerStatusPending:
		w.Status = domain.WagerStatusLost
		w.LossReason = domain.LossReasonUnconfirmed
	default:
		return domain.ErrInvalidTransition
	}
	w.ResolvedAt = &now
	return nil
}

// MarkPaid attaches a payout transfer to a won wager and moves it to paid.
// Replaying the same payout ref is a success no-op; a different ref on a
// wager that already carries one returns domain.ErrAlreadyPaid. The amount
// must equal stake × odds exactly. This is an internal computation, not an
// external observation, so there is no tolerance.
func MarkPaid(w *domain.Wager, transferRef string, amount decimal.Decimal, now time.Time) error {
	if w.PayoutRef == transferRef && transferRef != "" {
		return nil // idempotent replay
	}
	if w.PayoutRef != "" {
		return domain.ErrAlreadyPaid
	}
	if w.Status != domain.WagerStatusWon {
		return domain.ErrInvalidTransition
	}
	if !amount.Equal(w.PayoutDue()) {
		return domain.ErrPayoutMismatch
	}
	w.Status = domain.WagerStatusPaid
	w.PayoutRef = transferRef
	w.Payout = amount
	w.PaidAt = &now
	return nil
}
