package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WagerStatus represents the lifecycle state of a wager.
//
// pending -> confirmed -> won -> paid
//
//	\-> lost
//
// A wager still pending when its match resolves goes straight to lost with
// LossReason set to LossReasonUnconfirmed.
type WagerStatus string

const (
	WagerStatusPending   WagerStatus = "pending"
	WagerStatusConfirmed WagerStatus = "confirmed"
	WagerStatusWon       WagerStatus = "won"
	WagerStatusLost      WagerStatus = "lost"
	WagerStatusPaid      WagerStatus = "paid"
)

// LossReasonUnconfirmed marks wagers that forfeited because no deposit was
// matched before the match resolved.
const LossReasonUnconfirmed = "unconfirmed_at_resolution"

// Wager is a single user's stake on one side of a match. Odds are copied
// from the match at creation time so a later odds change can never alter the
// payout owed on an existing wager.
type Wager struct {
	ID           string
	UserHandle   string
	MatchID      int64
	Side         string
	Stake        decimal.Decimal
	Odds         decimal.Decimal
	PayoutWallet string // base58 address winnings are sent to, also the declared deposit source
	Status       WagerStatus
	LossReason   string
	Payout       decimal.Decimal // zero until the wager wins
	DepositRef   string          // settlement-network ref of the matched deposit, at most one
	PayoutRef    string          // settlement-network ref of the payout transfer, at most one
	CreatedAt    time.Time
	ConfirmedAt  *time.Time
	ResolvedAt   *time.Time
	PaidAt       *time.Time

	// Version guards read-modify-write cycles in the store.
	Version int64
}

// PayoutDue returns the exact amount owed if the wager wins: stake × odds.
func (w Wager) PayoutDue() decimal.Decimal {
	return w.Stake.Mul(w.Odds)
}
