package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// ChainReader is the read side of the settlement network: the most recent
// inbound transfers to an address, newest first. Providers return at-least-
// once visibility; callers dedup on Transfer.Ref.
type ChainReader interface {
	ListRecentTransfers(ctx context.Context, receivingAddress string, limit int) ([]Transfer, error)
}

// ChainWriter is the write side of the settlement network. SubmitTransfer
// returns the network's transfer reference on success. Implementations map
// provider failures onto ErrNetworkFailure and ErrInsufficientFunds; a
// broadcast transfer is never retractable.
type ChainWriter interface {
	SubmitTransfer(ctx context.Context, toAddress string, amount decimal.Decimal) (ref string, err error)
}

// TreasuryReader reports the platform wallet balance.
type TreasuryReader interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
}
