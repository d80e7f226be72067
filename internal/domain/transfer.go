package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferStatus tracks what the matcher decided about an observed deposit.
type TransferStatus string

const (
	// TransferStatusObserved is the initial state right after dedup.
	TransferStatusObserved TransferStatus = "observed"
	// TransferStatusMatched means the transfer confirmed exactly one wager.
	TransferStatusMatched TransferStatus = "matched"
	// TransferStatusUnmatched means no pending wager correlated; kept for
	// manual reconciliation, never discarded.
	TransferStatusUnmatched TransferStatus = "unmatched"
)

// Transfer is one observed inbound value movement on the settlement network.
// Ref is the network's unique transaction reference and doubles as the
// durable dedup key for the observer.
type Transfer struct {
	Ref        string
	Amount     decimal.Decimal
	Source     string // sending address as reported by the network
	ObservedAt time.Time
	Status     TransferStatus
	WagerID    string // set when Status is matched
}
