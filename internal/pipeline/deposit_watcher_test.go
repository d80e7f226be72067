package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parasfix/betsol/internal/domain"
	"github.com/parasfix/betsol/internal/lifecycle"
	"github.com/parasfix/betsol/internal/matcher"
	"github.com/parasfix/betsol/internal/service"
	"github.com/parasfix/betsol/internal/testutil"
)

const receiving = "TreasuryAddr111111111111111111111111111111"

type watcherFixture struct {
	chain     *testutil.ChainReader
	matches   *testutil.MatchStore
	wagers    *testutil.WagerStore
	transfers *testutil.TransferStore
	audit     *testutil.AuditStore
	locks     *testutil.LockManager
	market    *service.MarketService
	wagerSvc  *service.WagerService
	watcher   *DepositWatcher
}

func newWatcherFixture(t *testing.T) *watcherFixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	f := &watcherFixture{
		chain:     &testutil.ChainReader{},
		matches:   testutil.NewMatchStore(),
		wagers:    testutil.NewWagerStore(),
		transfers: testutil.NewTransferStore(),
		audit:     testutil.NewAuditStore(),
		locks:     testutil.NewLockManager(),
	}
	locks := f.locks
	bus := testutil.NewSignalBus()

	tol := lifecycle.Tolerance{
		Pct: decimal.RequireFromString("0.01"),
		Min: decimal.RequireFromString("0.001"),
	}
	bounds := service.StakeBounds{
		Min: decimal.RequireFromString("0.01"),
		Max: decimal.RequireFromString("1.0"),
	}

	f.market = service.NewMarketService(f.matches, f.wagers, locks, f.audit, bus, logger)
	f.wagerSvc = service.NewWagerService(
		f.matches, f.wagers, f.transfers, locks, testutil.NewRateLimiter(), f.audit, bus,
		func(string) error { return nil },
		bounds, tol, 0, 0, logger,
	)
	f.watcher = NewDepositWatcher(f.chain, receiving, 20, f.transfers, f.wagerSvc, matcher.New(tol), f.audit, logger)
	return f
}

func (f *watcherFixture) pendingWager(t *testing.T, user, stake, wallet string) domain.Wager {
	t.Helper()
	ctx := context.Background()
	m, err := f.market.CreateMatch(ctx, "alpha", "bravo",
		decimal.RequireFromString("1.8"), decimal.RequireFromString("2.1"))
	require.NoError(t, err)
	w, err := f.wagerSvc.CreateWager(ctx, user, m.ID, "alpha", decimal.RequireFromString(stake), wallet)
	require.NoError(t, err)
	return w
}

func transfer(ref, amount, source string, at time.Time) domain.Transfer {
	return domain.Transfer{
		Ref:        ref,
		Amount:     decimal.RequireFromString(amount),
		Source:     source,
		ObservedAt: at,
	}
}

func TestWatcherConfirmsMatchingDeposit(t *testing.T) {
	f := newWatcherFixture(t)
	ctx := context.Background()
	w := f.pendingWager(t, "carol", "0.5", "CarolWallet")

	f.chain.Transfers = []domain.Transfer{transfer("sig1", "0.5", "CarolWallet", time.Now())}

	require.NoError(t, f.watcher.Run(ctx))

	got, err := f.wagers.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WagerStatusConfirmed, got.Status)
	assert.Equal(t, "sig1", got.DepositRef)

	tr, ok := f.transfers.Get("sig1")
	require.True(t, ok)
	assert.Equal(t, domain.TransferStatusMatched, tr.Status)
}

func TestWatcherEmitsEachTransferOnce(t *testing.T) {
	f := newWatcherFixture(t)
	ctx := context.Background()
	w := f.pendingWager(t, "carol", "0.5", "CarolWallet")

	f.chain.Transfers = []domain.Transfer{transfer("sig1", "0.5", "CarolWallet", time.Now())}

	// The provider keeps returning the same transfer on every poll.
	require.NoError(t, f.watcher.Run(ctx))
	require.NoError(t, f.watcher.Run(ctx))
	require.NoError(t, f.watcher.Run(ctx))

	got, err := f.wagers.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "sig1", got.DepositRef)

	// Exactly one confirmation was audited.
	var confirmed int
	for _, e := range f.audit.Events() {
		if e == "deposit_confirmed" {
			confirmed++
		}
	}
	assert.Equal(t, 1, confirmed)
}

func TestWatcherKeepsUnmatchedTransfers(t *testing.T) {
	f := newWatcherFixture(t)
	ctx := context.Background()
	f.pendingWager(t, "carol", "0.5", "CarolWallet")

	f.chain.Transfers = []domain.Transfer{transfer("sig-odd", "0.77", "Stranger", time.Now())}

	require.NoError(t, f.watcher.Run(ctx))

	unmatched, err := f.transfers.ListUnmatched(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, unmatched, 1)
	assert.Equal(t, "sig-odd", unmatched[0].Ref)
	assert.Contains(t, f.audit.Events(), "deposit_unmatched")
}

func TestWatcherAmbiguityConfirmsEarliest(t *testing.T) {
	f := newWatcherFixture(t)
	ctx := context.Background()

	m, err := f.market.CreateMatch(ctx, "alpha", "bravo",
		decimal.RequireFromString("1.8"), decimal.RequireFromString("2.1"))
	require.NoError(t, err)

	first, err := f.wagerSvc.CreateWager(ctx, "carol", m.ID, "alpha", decimal.RequireFromString("0.25"), "W1")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := f.wagerSvc.CreateWager(ctx, "dave", m.ID, "bravo", decimal.RequireFromString("0.25"), "W2")
	require.NoError(t, err)

	f.chain.Transfers = []domain.Transfer{transfer("sig1", "0.25", "Stranger", time.Now())}

	require.NoError(t, f.watcher.Run(ctx))

	got, err := f.wagers.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WagerStatusConfirmed, got.Status)

	got, err = f.wagers.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WagerStatusPending, got.Status)

	assert.Contains(t, f.audit.Events(), "deposit_ambiguous")
}

func TestWatcherSourceMatchBeatsEarlierAmountMatch(t *testing.T) {
	f := newWatcherFixture(t)
	ctx := context.Background()

	m, err := f.market.CreateMatch(ctx, "alpha", "bravo",
		decimal.RequireFromString("1.8"), decimal.RequireFromString("2.1"))
	require.NoError(t, err)

	earlier, err := f.wagerSvc.CreateWager(ctx, "carol", m.ID, "alpha", decimal.RequireFromString("0.25"), "W1")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	declared, err := f.wagerSvc.CreateWager(ctx, "dave", m.ID, "bravo", decimal.RequireFromString("0.25"), "DaveWallet")
	require.NoError(t, err)

	f.chain.Transfers = []domain.Transfer{transfer("sig1", "0.25", "DaveWallet", time.Now())}

	require.NoError(t, f.watcher.Run(ctx))

	got, err := f.wagers.GetByID(ctx, declared.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WagerStatusConfirmed, got.Status)

	got, err = f.wagers.GetByID(ctx, earlier.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WagerStatusPending, got.Status)
}

func TestWatcherRetriesWhileSettlementHoldsMatch(t *testing.T) {
	f := newWatcherFixture(t)
	ctx := context.Background()
	w := f.pendingWager(t, "carol", "0.5", "CarolWallet")

	// Settlement is mid-resolve on this match, so the confirm cannot
	// take the lock.
	unlock, err := f.locks.Acquire(ctx, fmt.Sprintf("match:%d", w.MatchID), time.Minute)
	require.NoError(t, err)

	f.chain.Transfers = []domain.Transfer{transfer("sig1", "0.5", "CarolWallet", time.Now())}
	require.NoError(t, f.watcher.Run(ctx))

	// Deferred, not parked for manual review.
	got, err := f.wagers.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WagerStatusPending, got.Status)

	tr, ok := f.transfers.Get("sig1")
	require.True(t, ok)
	assert.Equal(t, domain.TransferStatusObserved, tr.Status)

	unmatched, err := f.transfers.ListUnmatched(ctx, domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, unmatched)

	// Lock released: the next cycle confirms without re-observing.
	unlock()
	require.NoError(t, f.watcher.Run(ctx))

	got, err = f.wagers.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WagerStatusConfirmed, got.Status)
	assert.Equal(t, "sig1", got.DepositRef)

	tr, ok = f.transfers.Get("sig1")
	require.True(t, ok)
	assert.Equal(t, domain.TransferStatusMatched, tr.Status)
}

func TestWatcherSkipsCycleOnPollFailure(t *testing.T) {
	f := newWatcherFixture(t)
	ctx := context.Background()
	w := f.pendingWager(t, "carol", "0.5", "CarolWallet")

	f.chain.Err = domain.ErrNetworkFailure
	assert.Error(t, f.watcher.Run(ctx))

	// Provider recovers; the transfer is still in its history.
	f.chain.Err = nil
	f.chain.Transfers = []domain.Transfer{transfer("sig1", "0.5", "CarolWallet", time.Now())}
	require.NoError(t, f.watcher.Run(ctx))

	got, err := f.wagers.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WagerStatusConfirmed, got.Status)
}
