package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/parasfix/betsol/internal/lifecycle"
	"github.com/parasfix/betsol/internal/matcher"
	"github.com/parasfix/betsol/internal/pipeline"
	"github.com/parasfix/betsol/internal/platform/solana"
	"github.com/parasfix/betsol/internal/retry"
	"github.com/parasfix/betsol/internal/server"
	"github.com/parasfix/betsol/internal/server/handler"
	"github.com/parasfix/betsol/internal/server/ws"
	"github.com/parasfix/betsol/internal/service"
)

// services bundles the core service layer shared by all modes.
type services struct {
	market     *service.MarketService
	wager      *service.WagerService
	settlement *service.SettlementService
	tol        lifecycle.Tolerance
}

// ServeMode runs the HTTP + WebSocket API only. Deposit watching and payouts
// are expected to run in a separate watch-mode instance.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	svcs, err := a.buildServices(deps)
	if err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, svcs)
	return g.Wait()
}

// WatchMode runs the background pipeline only: deposit watching, payout
// batches, and archival. No HTTP API is exposed.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode")

	svcs, err := a.buildServices(deps)
	if err != nil {
		return fmt.Errorf("watch mode: %w", err)
	}

	return a.buildPipeline(deps, svcs).Run(ctx)
}

// FullMode runs everything in one process: the HTTP API plus the deposit,
// payout, and archive loops.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	svcs, err := a.buildServices(deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	orch := a.buildPipeline(deps, svcs)
	g.Go(func() error {
		return orch.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svcs)
	}

	return g.Wait()
}

// buildServices constructs the service layer from wired dependencies. It
// parses the decimal limit strings from the configuration; Validate has
// already checked their presence but not their syntax.
func (a *App) buildServices(deps *Dependencies) (*services, error) {
	minStake, err := decimal.NewFromString(a.cfg.Limits.MinStake)
	if err != nil {
		return nil, fmt.Errorf("parse limits.min_stake: %w", err)
	}
	maxStake, err := decimal.NewFromString(a.cfg.Limits.MaxStake)
	if err != nil {
		return nil, fmt.Errorf("parse limits.max_stake: %w", err)
	}
	tolPct, err := decimal.NewFromString(a.cfg.Limits.TolerancePct)
	if err != nil {
		return nil, fmt.Errorf("parse limits.tolerance_pct: %w", err)
	}
	tolMin, err := decimal.NewFromString(a.cfg.Limits.ToleranceMin)
	if err != nil {
		return nil, fmt.Errorf("parse limits.tolerance_min: %w", err)
	}

	tol := lifecycle.Tolerance{Pct: tolPct, Min: tolMin}

	market := service.NewMarketService(
		deps.MatchStore, deps.WagerStore, deps.LockManager,
		deps.AuditStore, deps.SignalBus, a.logger,
	).WithCache(deps.MatchCache).WithNotifier(deps.Notifier)

	wager := service.NewWagerService(
		deps.MatchStore, deps.WagerStore, deps.TransferStore,
		deps.LockManager, deps.RateLimiter, deps.AuditStore, deps.SignalBus,
		solana.ValidateAddress,
		service.StakeBounds{Min: minStake, Max: maxStake},
		tol,
		a.cfg.Limits.RateLimit, a.cfg.Limits.RateWindow.Duration,
		a.logger,
	).WithNotifier(deps.Notifier)

	settlement := service.NewSettlementService(
		deps.WagerStore, deps.LockManager, deps.Chain, deps.Chain,
		deps.AuditStore,
		retry.Policy{
			MaxAttempts:  a.cfg.Payout.MaxAttempts,
			InitialDelay: a.cfg.Payout.InitialDelay.Duration,
			MaxDelay:     a.cfg.Payout.MaxDelay.Duration,
		},
		a.logger,
	).WithNotifier(deps.Notifier)

	return &services{
		market:     market,
		wager:      wager,
		settlement: settlement,
		tol:        tol,
	}, nil
}

// buildPipeline assembles the background loops around the service layer.
func (a *App) buildPipeline(deps *Dependencies, svcs *services) *pipeline.Orchestrator {
	watcher := pipeline.NewDepositWatcher(
		deps.Chain,
		a.cfg.Chain.ReceivingAddress,
		a.cfg.Observer.Lookback,
		deps.TransferStore,
		svcs.wager,
		matcher.New(svcs.tol),
		deps.AuditStore,
		a.logger,
	).WithSeenSet(deps.SeenSet).WithNotifier(deps.Notifier)

	payouts := pipeline.NewPayoutRunner(svcs.settlement, a.logger)

	var archive *pipeline.ArchiveRunner
	if deps.Archiver != nil {
		archive = pipeline.NewArchiveRunner(deps.Archiver, a.cfg.Archive.Retention.Duration, a.logger)
	}

	return pipeline.NewOrchestrator(
		watcher,
		payouts,
		archive,
		a.cfg.Observer.PollInterval.Duration,
		a.cfg.Payout.Interval.Duration,
		a.cfg.Archive.Interval.Duration,
		a.logger,
	)
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	svcs *services,
) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(a.logger),
		Matches:    handler.NewMatchHandler(svcs.market, a.logger),
		Wagers:     handler.NewWagerHandler(svcs.wager, a.cfg.Chain.ReceivingAddress, a.logger),
		Settlement: handler.NewSettlementHandler(svcs.settlement, a.logger),
		Transfers:  handler.NewTransferHandler(deps.TransferStore, a.logger),
	}
	if deps.Archiver != nil {
		handlers.Archive = handler.NewArchiveHandler(deps.Archiver, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.AdminToken,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			a.logger.Warn("http server shutdown", slog.String("error", err.Error()))
		}
		return nil
	})
}
