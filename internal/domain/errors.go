package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// Intake validation.
	ErrMatchNotOpen    = errors.New("match is not open for wagering")
	ErrInvalidSide     = errors.New("side is not one of the match's teams")
	ErrStakeOutOfRange = errors.New("stake outside configured bounds")
	ErrInvalidWallet   = errors.New("invalid wallet address")
	ErrInvalidOdds     = errors.New("odds must be greater than 1.0")
	ErrRateLimited     = errors.New("rate limited")

	// State-machine conflicts.
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrUnknownSide       = errors.New("winner is not one of the match's teams")
	ErrAmountMismatch    = errors.New("observed amount does not match stake within tolerance")
	ErrAlreadyConfirmed  = errors.New("a deposit is already attached to this wager")
	ErrAlreadyPaid       = errors.New("a payout is already attached to this wager")
	ErrPayoutMismatch    = errors.New("payout amount does not equal stake times odds")

	// Store concurrency.
	ErrVersionConflict = errors.New("record changed since it was read")
	ErrLockHeld        = errors.New("lock already held")

	// Settlement network.
	ErrNetworkFailure    = errors.New("settlement network unavailable")
	ErrInsufficientFunds = errors.New("treasury balance insufficient")
)
