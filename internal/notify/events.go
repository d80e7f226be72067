package notify

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Event types the notifier can filter on.
const (
	EventDepositConfirmed = "deposit_confirmed"
	EventDepositUnmatched = "deposit_unmatched"
	EventDepositAmbiguous = "deposit_ambiguous"
	EventMatchSettled     = "match_settled"
	EventPayoutSent       = "payout_sent"
	EventPayoutFailed     = "payout_failed"
)

// DepositConfirmedMessage formats the operator alert for a matched deposit.
func DepositConfirmedMessage(wagerID, user string, amount decimal.Decimal, ref string) (title, message string) {
	return "Deposit confirmed",
		fmt.Sprintf("Wager %s (%s) confirmed with %s SOL\nref: %s", wagerID, user, amount.String(), ref)
}

// DepositUnmatchedMessage formats the alert for a transfer no pending wager
// claims; these need manual reconciliation.
func DepositUnmatchedMessage(ref string, amount decimal.Decimal, source string) (title, message string) {
	return "Unmatched deposit",
		fmt.Sprintf("Transfer of %s SOL from %s matched no pending wager\nref: %s", amount.String(), source, ref)
}

// DepositAmbiguousMessage formats the alert for a transfer that matched more
// than one pending wager. The earliest wager was confirmed but the case is
// flagged for review.
func DepositAmbiguousMessage(ref, wagerID string, candidates int) (title, message string) {
	return "Ambiguous deposit",
		fmt.Sprintf("Transfer %s matched %d pending wagers; earliest wager %s was confirmed", ref, candidates, wagerID)
}

// MatchSettledMessage formats the settlement summary for a resolved match.
func MatchSettledMessage(matchID int64, winner string, winning, losing, forfeited int) (title, message string) {
	return "Match settled",
		fmt.Sprintf("Match %d resolved for %s: %d won, %d lost, %d forfeited", matchID, winner, winning, losing, forfeited)
}

// PayoutSentMessage formats the alert for a completed payout.
func PayoutSentMessage(wagerID string, amount decimal.Decimal, ref string) (title, message string) {
	return "Payout sent",
		fmt.Sprintf("Paid %s SOL for wager %s\nref: %s", amount.String(), wagerID, ref)
}

// PayoutFailedMessage formats the alert for a payout that exhausted retries.
func PayoutFailedMessage(wagerID string, amount decimal.Decimal, err error) (title, message string) {
	return "Payout failed",
		fmt.Sprintf("Could not pay %s SOL for wager %s: %v", amount.String(), wagerID, err)
}
