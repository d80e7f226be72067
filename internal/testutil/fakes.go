package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/parasfix/betsol/internal/domain"
)

// LockManager is an in-process domain.LockManager. Acquire fails with
// ErrLockHeld while a key is held, matching the Redis implementation's
// non-blocking contract.
type LockManager struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]bool)}
}

func (lm *LockManager) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.held[key] {
		return nil, domain.ErrLockHeld
	}
	lm.held[key] = true

	released := false
	return func() {
		lm.mu.Lock()
		defer lm.mu.Unlock()
		if released {
			return
		}
		released = true
		delete(lm.held, key)
	}, nil
}

// RateLimiter is a domain.RateLimiter that always answers with Allowed.
type RateLimiter struct {
	Allowed bool
}

// NewRateLimiter returns a limiter that permits everything.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{Allowed: true}
}

func (rl *RateLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return rl.Allowed, nil
}

// SignalBus is an in-memory domain.SignalBus that records published payloads.
type SignalBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

// NewSignalBus creates an empty SignalBus.
func NewSignalBus() *SignalBus {
	return &SignalBus{published: make(map[string][][]byte)}
}

func (sb *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.published[channel] = append(sb.published[channel], payload)
	return nil
}

func (sb *SignalBus) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

// Published returns the payloads published to a channel.
func (sb *SignalBus) Published(channel string) [][]byte {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.published[channel]
}

// ChainReader is a domain.ChainReader serving a fixed transfer list.
type ChainReader struct {
	mu        sync.Mutex
	Transfers []domain.Transfer
	Err       error
	calls     int
}

func (cr *ChainReader) ListRecentTransfers(_ context.Context, _ string, _ int) ([]domain.Transfer, error) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	cr.calls++
	if cr.Err != nil {
		return nil, cr.Err
	}
	out := make([]domain.Transfer, len(cr.Transfers))
	copy(out, cr.Transfers)
	return out, nil
}

// Calls returns how many times ListRecentTransfers ran.
func (cr *ChainReader) Calls() int {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return cr.calls
}

// ChainWriter is a domain.ChainWriter that records submitted transfers and
// returns deterministic refs. Errs, if non-empty, is consumed one entry per
// call before successes resume.
type ChainWriter struct {
	mu        sync.Mutex
	Errs      []error
	submitted []SubmittedTransfer
	seq       int
}

// SubmittedTransfer records one SubmitTransfer call.
type SubmittedTransfer struct {
	Dest   string
	Amount decimal.Decimal
}

func (cw *ChainWriter) SubmitTransfer(_ context.Context, dest string, amount decimal.Decimal) (string, error) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if len(cw.Errs) > 0 {
		err := cw.Errs[0]
		cw.Errs = cw.Errs[1:]
		if err != nil {
			return "", err
		}
	}
	cw.seq++
	cw.submitted = append(cw.submitted, SubmittedTransfer{Dest: dest, Amount: amount})
	return fmt.Sprintf("payout-ref-%d", cw.seq), nil
}

// Submitted returns all recorded transfers.
func (cw *ChainWriter) Submitted() []SubmittedTransfer {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	out := make([]SubmittedTransfer, len(cw.submitted))
	copy(out, cw.submitted)
	return out
}

// TreasuryReader is a domain.TreasuryReader with a fixed balance.
type TreasuryReader struct {
	Bal decimal.Decimal
}

func (tr *TreasuryReader) Balance(context.Context) (decimal.Decimal, error) {
	return tr.Bal, nil
}

// Compile-time interface checks.
var (
	_ domain.LockManager    = (*LockManager)(nil)
	_ domain.RateLimiter    = (*RateLimiter)(nil)
	_ domain.SignalBus      = (*SignalBus)(nil)
	_ domain.ChainReader    = (*ChainReader)(nil)
	_ domain.ChainWriter    = (*ChainWriter)(nil)
	_ domain.TreasuryReader = (*TreasuryReader)(nil)
)
