package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/parasfix/betsol/internal/domain"
)

// PayoutBatcher is the slice of the settlement service the runner needs.
type PayoutBatcher interface {
	RunPayoutBatch(ctx context.Context) (domain.PayoutReport, error)
}

// PayoutRunner periodically re-scans won wagers without a payout reference
// and pays them. Because the batch is re-entrant, running it on a timer also
// doubles as crash recovery: anything a previous process left half-done is
// picked up on the next tick.
type PayoutRunner struct {
	settlement PayoutBatcher
	logger     *slog.Logger
}

// NewPayoutRunner creates a PayoutRunner.
func NewPayoutRunner(settlement PayoutBatcher, logger *slog.Logger) *PayoutRunner {
	return &PayoutRunner{
		settlement: settlement,
		logger:     logger.With(slog.String("component", "payout_runner")),
	}
}

// Run executes a single payout batch.
func (r *PayoutRunner) Run(ctx context.Context) error {
	report, err := r.settlement.RunPayoutBatch(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: payout batch: %w", err)
	}
	if report.Outstanding > 0 {
		r.logger.WarnContext(ctx, "payouts outstanding after batch",
			slog.Int("outstanding", report.Outstanding),
		)
	}
	return nil
}

// RunLoop runs payout batches on a repeating interval until the context is
// cancelled.
func (r *PayoutRunner) RunLoop(ctx context.Context, interval time.Duration) error {
	// Run immediately on start; this is the crash-recovery scan.
	if err := r.Run(ctx); err != nil {
		r.logger.ErrorContext(ctx, "payout batch failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "payout runner stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Run(ctx); err != nil {
				r.logger.ErrorContext(ctx, "payout batch failed", slog.String("error", err.Error()))
			}
		}
	}
}
