package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parasfix/betsol/internal/domain"
	"github.com/parasfix/betsol/internal/lifecycle"
	"github.com/parasfix/betsol/internal/retry"
	"github.com/parasfix/betsol/internal/testutil"
)

type fixture struct {
	matches    *testutil.MatchStore
	wagers     *testutil.WagerStore
	transfers  *testutil.TransferStore
	audit      *testutil.AuditStore
	locks      *testutil.LockManager
	limiter    *testutil.RateLimiter
	bus        *testutil.SignalBus
	chain      *testutil.ChainWriter
	market     *MarketService
	wagerSvc   *WagerService
	settlement *SettlementService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	f := &fixture{
		matches:   testutil.NewMatchStore(),
		wagers:    testutil.NewWagerStore(),
		transfers: testutil.NewTransferStore(),
		audit:     testutil.NewAuditStore(),
		locks:     testutil.NewLockManager(),
		limiter:   testutil.NewRateLimiter(),
		bus:       testutil.NewSignalBus(),
		chain:     &testutil.ChainWriter{},
	}

	bounds := StakeBounds{
		Min: decimal.RequireFromString("0.01"),
		Max: decimal.RequireFromString("1.0"),
	}
	tol := lifecycle.Tolerance{
		Pct: decimal.RequireFromString("0.01"),
		Min: decimal.RequireFromString("0.001"),
	}

	f.market = NewMarketService(f.matches, f.wagers, f.locks, f.audit, f.bus, logger)
	f.wagerSvc = NewWagerService(
		f.matches, f.wagers, f.transfers, f.locks, f.limiter, f.audit, f.bus,
		func(string) error { return nil },
		bounds, tol, 10, time.Minute, logger,
	)
	f.settlement = NewSettlementService(
		f.wagers, f.locks, f.chain, &testutil.TreasuryReader{Bal: decimal.NewFromInt(100)},
		f.audit, retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}, logger,
	)
	return f
}

func (f *fixture) openMatch(t *testing.T) domain.Match {
	t.Helper()
	m, err := f.market.CreateMatch(context.Background(), "alpha", "bravo",
		decimal.RequireFromString("1.8"), decimal.RequireFromString("2.1"))
	require.NoError(t, err)
	return m
}

func TestCreateMatchValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.market.CreateMatch(ctx, "alpha", "alpha", decimal.RequireFromString("1.5"), decimal.RequireFromString("1.5"))
	assert.ErrorIs(t, err, domain.ErrInvalidSide)

	_, err = f.market.CreateMatch(ctx, "alpha", "bravo", decimal.NewFromInt(1), decimal.RequireFromString("1.5"))
	assert.ErrorIs(t, err, domain.ErrInvalidOdds)
}

func TestCreateWagerValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMatch(t)

	_, err := f.wagerSvc.CreateWager(ctx, "carol", m.ID, "charlie", decimal.RequireFromString("0.5"), "wallet")
	assert.ErrorIs(t, err, domain.ErrInvalidSide)

	_, err = f.wagerSvc.CreateWager(ctx, "carol", m.ID+99, "alpha", decimal.RequireFromString("0.5"), "wallet")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Bounds are inclusive on both ends.
	for _, stake := range []string{"0.01", "1.0"} {
		_, err = f.wagerSvc.CreateWager(ctx, "carol", m.ID, "alpha", decimal.RequireFromString(stake), "wallet")
		assert.NoError(t, err, "stake %s", stake)
	}
	for _, stake := range []string{"0.009999", "1.00001"} {
		_, err = f.wagerSvc.CreateWager(ctx, "carol", m.ID, "alpha", decimal.RequireFromString(stake), "wallet")
		assert.ErrorIs(t, err, domain.ErrStakeOutOfRange, "stake %s", stake)
	}
}

func TestCreateWagerClosedMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMatch(t)

	_, err := f.market.ResolveMatch(ctx, m.ID, "alpha")
	require.NoError(t, err)

	_, err = f.wagerSvc.CreateWager(ctx, "carol", m.ID, "alpha", decimal.RequireFromString("0.5"), "wallet")
	assert.ErrorIs(t, err, domain.ErrMatchNotOpen)
}

func TestCreateWagerRateLimited(t *testing.T) {
	f := newFixture(t)
	f.limiter.Allowed = false
	m := f.openMatch(t)

	_, err := f.wagerSvc.CreateWager(context.Background(), "carol", m.ID, "alpha", decimal.RequireFromString("0.5"), "wallet")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestConfirmDepositReplayIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMatch(t)

	w, err := f.wagerSvc.CreateWager(ctx, "carol", m.ID, "alpha", decimal.RequireFromString("0.5"), "wallet")
	require.NoError(t, err)

	_, err = f.transfers.Record(ctx, domain.Transfer{Ref: "sig1", Amount: w.Stake, ObservedAt: time.Now()})
	require.NoError(t, err)

	got, err := f.wagerSvc.ConfirmDeposit(ctx, w.ID, "sig1", w.Stake)
	require.NoError(t, err)
	assert.Equal(t, domain.WagerStatusConfirmed, got.Status)
	assert.Equal(t, "sig1", got.DepositRef)

	tr, ok := f.transfers.Get("sig1")
	require.True(t, ok)
	assert.Equal(t, domain.TransferStatusMatched, tr.Status)
	assert.Equal(t, w.ID, tr.WagerID)

	// Same ref again: success, no second reference.
	got2, err := f.wagerSvc.ConfirmDeposit(ctx, w.ID, "sig1", w.Stake)
	require.NoError(t, err)
	assert.Equal(t, "sig1", got2.DepositRef)

	// Different ref: rejected, state unchanged.
	_, err = f.wagerSvc.ConfirmDeposit(ctx, w.ID, "sig2", w.Stake)
	assert.ErrorIs(t, err, domain.ErrAlreadyConfirmed)
}

func TestResolveMatchTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMatch(t)

	_, err := f.market.ResolveMatch(ctx, m.ID, "alpha")
	require.NoError(t, err)

	_, err = f.market.ResolveMatch(ctx, m.ID, "alpha")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestResolveMatchUnknownWinner(t *testing.T) {
	f := newFixture(t)
	m := f.openMatch(t)

	_, err := f.market.ResolveMatch(context.Background(), m.ID, "charlie")
	assert.ErrorIs(t, err, domain.ErrUnknownSide)
}

func TestResolveMatchSettlesWagers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMatch(t)

	winner, err := f.wagerSvc.CreateWager(ctx, "carol", m.ID, "alpha", decimal.RequireFromString("0.5"), "w1")
	require.NoError(t, err)
	loser, err := f.wagerSvc.CreateWager(ctx, "dave", m.ID, "bravo", decimal.RequireFromString("0.3"), "w2")
	require.NoError(t, err)
	// Never confirmed: forfeits even though it picked the winning side.
	forfeit, err := f.wagerSvc.CreateWager(ctx, "erin", m.ID, "alpha", decimal.RequireFromString("0.2"), "w3")
	require.NoError(t, err)

	for _, w := range []domain.Wager{winner, loser} {
		_, err := f.transfers.Record(ctx, domain.Transfer{Ref: "dep-" + w.ID, Amount: w.Stake, ObservedAt: time.Now()})
		require.NoError(t, err)
		_, err = f.wagerSvc.ConfirmDeposit(ctx, w.ID, "dep-"+w.ID, w.Stake)
		require.NoError(t, err)
	}

	report, err := f.market.ResolveMatch(ctx, m.ID, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Winning)
	assert.Equal(t, 1, report.Losing)
	assert.Equal(t, 1, report.Forfeited)

	got, err := f.wagerSvc.GetWager(ctx, winner.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WagerStatusWon, got.Status)
	assert.True(t, got.Payout.Equal(decimal.RequireFromString("0.9")), "payout = stake × odds, got %s", got.Payout)

	got, err = f.wagerSvc.GetWager(ctx, loser.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WagerStatusLost, got.Status)

	got, err = f.wagerSvc.GetWager(ctx, forfeit.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WagerStatusLost, got.Status)
	assert.Equal(t, domain.LossReasonUnconfirmed, got.LossReason)
}

func TestPayoutBatchPaysWonWagers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMatch(t)

	w, err := f.wagerSvc.CreateWager(ctx, "carol", m.ID, "alpha", decimal.RequireFromString("0.5"), "dest-wallet")
	require.NoError(t, err)
	_, err = f.transfers.Record(ctx, domain.Transfer{Ref: "dep", Amount: w.Stake, ObservedAt: time.Now()})
	require.NoError(t, err)
	_, err = f.wagerSvc.ConfirmDeposit(ctx, w.ID, "dep", w.Stake)
	require.NoError(t, err)
	_, err = f.market.ResolveMatch(ctx, m.ID, "alpha")
	require.NoError(t, err)

	report, err := f.settlement.RunPayoutBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Paid)
	assert.Equal(t, 0, report.Outstanding)

	got, err := f.wagerSvc.GetWager(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WagerStatusPaid, got.Status)
	assert.True(t, got.Payout.Equal(decimal.RequireFromString("0.9")))
	assert.NotEmpty(t, got.PayoutRef)

	submitted := f.chain.Submitted()
	require.Len(t, submitted, 1)
	assert.Equal(t, "dest-wallet", submitted[0].Dest)
	assert.True(t, submitted[0].Amount.Equal(decimal.RequireFromString("0.9")))

	// Re-running the batch finds nothing: the payout never repeats.
	report, err = f.settlement.RunPayoutBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Paid)
	assert.Len(t, f.chain.Submitted(), 1)
}

func TestPayoutRetriesTransientFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMatch(t)
	wonWager(t, f, m, "carol", "0.5")

	f.chain.Errs = []error{domain.ErrNetworkFailure}

	report, err := f.settlement.RunPayoutBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Paid)
	assert.Len(t, f.chain.Submitted(), 1)
}

func TestPayoutInsufficientFundsIsOutstanding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMatch(t)
	w := wonWager(t, f, m, "carol", "0.5")

	// A permanent failure: the batch must not burn all retry attempts.
	f.chain.Errs = []error{domain.ErrInsufficientFunds, domain.ErrInsufficientFunds, domain.ErrInsufficientFunds}

	report, err := f.settlement.RunPayoutBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Paid)
	assert.Equal(t, 1, report.Outstanding)

	got, err := f.wagerSvc.GetWager(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WagerStatusWon, got.Status)
	assert.Empty(t, got.PayoutRef)

	outstanding, err := f.settlement.OutstandingPayouts(ctx)
	require.NoError(t, err)
	require.Len(t, outstanding, 1)
	assert.Equal(t, w.ID, outstanding[0].ID)
}

func TestPayoutBatchResumesAfterRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMatch(t)
	w := wonWager(t, f, m, "carol", "0.5")

	// First run fails every attempt, as if the process died mid-batch.
	f.chain.Errs = []error{domain.ErrNetworkFailure, domain.ErrNetworkFailure, domain.ErrNetworkFailure}
	report, err := f.settlement.RunPayoutBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Outstanding)

	// "Restart": the next run re-scans won wagers lacking a payout ref.
	report, err = f.settlement.RunPayoutBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Paid)

	got, err := f.wagerSvc.GetWager(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WagerStatusPaid, got.Status)
	assert.Len(t, f.chain.Submitted(), 1)
}

// flakyWagerStore fails the first n Updates, as if the database dropped the
// connection mid-settlement.
type flakyWagerStore struct {
	*testutil.WagerStore
	failures int
}

func (s *flakyWagerStore) Update(ctx context.Context, w domain.Wager) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("connection reset")
	}
	return s.WagerStore.Update(ctx, w)
}

func TestResolveMatchResumesAfterPartialSettlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMatch(t)

	for i, spec := range []struct{ user, side string }{{"carol", "alpha"}, {"dave", "bravo"}} {
		w, err := f.wagerSvc.CreateWager(ctx, spec.user, m.ID, spec.side, decimal.RequireFromString("0.5"), "dest-wallet")
		require.NoError(t, err)
		ref := fmt.Sprintf("dep-%d", i)
		_, err = f.transfers.Record(ctx, domain.Transfer{Ref: ref, Amount: w.Stake, ObservedAt: time.Now()})
		require.NoError(t, err)
		_, err = f.wagerSvc.ConfirmDeposit(ctx, w.ID, ref, w.Stake)
		require.NoError(t, err)
	}

	// First attempt marks the match completed, then dies on the first
	// wager write: every wager is left confirmed.
	flaky := &flakyWagerStore{WagerStore: f.wagers, failures: 1}
	broken := NewMarketService(f.matches, flaky, f.locks, f.audit, f.bus, slog.New(slog.DiscardHandler))
	_, err := broken.ResolveMatch(ctx, m.ID, "alpha")
	require.Error(t, err)

	got, err := f.market.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, domain.MatchStatusCompleted, got.Status)

	// A payout batch cannot rescue them: nothing is won yet.
	report, err := f.settlement.RunPayoutBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Paid)

	// Replaying the resolution settles the stranded wagers.
	settled, err := f.market.ResolveMatch(ctx, m.ID, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 1, settled.Winning)
	assert.Equal(t, 1, settled.Losing)

	payout, err := f.settlement.RunPayoutBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, payout.Paid)

	// Once every wager is settled the replay degrades to a plain
	// double resolve again.
	_, err = f.market.ResolveMatch(ctx, m.ID, "alpha")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.market.ResolveMatch(ctx, m.ID, "bravo")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

// wonWager creates, confirms, and resolves a wager on the winning side.
func wonWager(t *testing.T, f *fixture, m domain.Match, user, stake string) domain.Wager {
	t.Helper()
	ctx := context.Background()

	w, err := f.wagerSvc.CreateWager(ctx, user, m.ID, "alpha", decimal.RequireFromString(stake), "dest-wallet")
	require.NoError(t, err)
	_, err = f.transfers.Record(ctx, domain.Transfer{Ref: "dep-" + w.ID, Amount: w.Stake, ObservedAt: time.Now()})
	require.NoError(t, err)
	_, err = f.wagerSvc.ConfirmDeposit(ctx, w.ID, "dep-"+w.ID, w.Stake)
	require.NoError(t, err)
	_, err = f.market.ResolveMatch(ctx, m.ID, "alpha")
	require.NoError(t, err)

	got, err := f.wagerSvc.GetWager(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, domain.WagerStatusWon, got.Status)
	return got
}
