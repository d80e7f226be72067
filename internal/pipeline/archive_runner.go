package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SettledArchiver exports settled matches older than a cutoff.
type SettledArchiver interface {
	ArchiveSettled(ctx context.Context, before time.Time) (int64, error)
}

// ArchiveRunner periodically exports old settled matches to cold storage.
type ArchiveRunner struct {
	archiver  SettledArchiver
	retention time.Duration
	logger    *slog.Logger
}

// NewArchiveRunner creates an ArchiveRunner. Matches completed longer than
// retention ago are exported on each run.
func NewArchiveRunner(archiver SettledArchiver, retention time.Duration, logger *slog.Logger) *ArchiveRunner {
	return &ArchiveRunner{
		archiver:  archiver,
		retention: retention,
		logger:    logger.With(slog.String("component", "archive_runner")),
	}
}

// Run executes a single archive pass.
func (r *ArchiveRunner) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-r.retention)
	count, err := r.archiver.ArchiveSettled(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: archive settled: %w", err)
	}
	if count > 0 {
		r.logger.InfoContext(ctx, "settled matches archived",
			slog.Int64("count", count),
			slog.Time("before", cutoff),
		)
	}
	return nil
}

// RunLoop runs archive passes on a repeating interval until the context is
// cancelled.
func (r *ArchiveRunner) RunLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "archive runner stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Run(ctx); err != nil {
				r.logger.ErrorContext(ctx, "archive pass failed", slog.String("error", err.Error()))
			}
		}
	}
}
