package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator manages the background goroutines: deposit watching, payout
// batches, and cold-storage archival.
type Orchestrator struct {
	watcher         *DepositWatcher
	payouts         *PayoutRunner
	archive         *ArchiveRunner
	pollInterval    time.Duration
	payoutInterval  time.Duration
	archiveInterval time.Duration
	logger          *slog.Logger
}

// NewOrchestrator creates an Orchestrator. archive may be nil when cold
// storage is not configured.
func NewOrchestrator(
	watcher *DepositWatcher,
	payouts *PayoutRunner,
	archive *ArchiveRunner,
	pollInterval time.Duration,
	payoutInterval time.Duration,
	archiveInterval time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		watcher:         watcher,
		payouts:         payouts,
		archive:         archive,
		pollInterval:    pollInterval,
		payoutInterval:  payoutInterval,
		archiveInterval: archiveInterval,
		logger:          logger,
	}
}

// Run starts all loops as concurrent goroutines using an errgroup. Each loop
// respects ctx cancellation; a context-driven stop is a clean shutdown, any
// other return cancels the shared context and Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Duration("poll_interval", o.pollInterval),
		slog.Duration("payout_interval", o.payoutInterval),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		o.logger.Info("starting deposit watcher loop")
		err := o.watcher.RunLoop(ctx, o.pollInterval)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("deposit watcher: %w", err)
	})

	g.Go(func() error {
		o.logger.Info("starting payout runner loop")
		err := o.payouts.RunLoop(ctx, o.payoutInterval)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("payout runner: %w", err)
	})

	if o.archive != nil {
		g.Go(func() error {
			o.logger.Info("starting archive runner loop")
			err := o.archive.RunLoop(ctx, o.archiveInterval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archive runner: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
