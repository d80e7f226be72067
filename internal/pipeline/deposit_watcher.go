// Package pipeline runs the background loops: the deposit watcher polling
// the settlement network, the payout runner, and the cold-storage archiver,
// coordinated by the Orchestrator.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/parasfix/betsol/internal/domain"
	"github.com/parasfix/betsol/internal/matcher"
	"github.com/parasfix/betsol/internal/notify"
)

// WagerConfirmer is the slice of the wager service the watcher needs.
type WagerConfirmer interface {
	ListPendingWagers(ctx context.Context) ([]domain.Wager, error)
	ConfirmDeposit(ctx context.Context, wagerID, transferRef string, observed decimal.Decimal) (domain.Wager, error)
}

// SeenSet is an optional fast path in front of the durable transfer dedup
// gate. A nil SeenSet is valid; every ref then goes straight to the store.
type SeenSet interface {
	Seen(ctx context.Context, ref string) (bool, error)
	Mark(ctx context.Context, ref string) error
}

// Notifier is the best-effort operator alert channel.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// DepositWatcher polls the settlement network for inbound transfers and
// feeds them through the matcher. Each transfer is emitted downstream at
// most once: the transfers table is the durable dedup set, with an optional
// Redis fast path in front of it.
type DepositWatcher struct {
	chain     domain.ChainReader
	address   string
	lookback  int
	transfers domain.TransferStore
	wagers    WagerConfirmer
	match     *matcher.Matcher
	seen      SeenSet
	audit     domain.AuditStore
	notifier  Notifier
	logger    *slog.Logger
}

// NewDepositWatcher creates a DepositWatcher polling the given receiving
// address. lookback is how many recent transfers each poll requests; it must
// cover the burst traffic between two polls.
func NewDepositWatcher(
	chain domain.ChainReader,
	address string,
	lookback int,
	transfers domain.TransferStore,
	wagers WagerConfirmer,
	match *matcher.Matcher,
	audit domain.AuditStore,
	logger *slog.Logger,
) *DepositWatcher {
	return &DepositWatcher{
		chain:     chain,
		address:   address,
		lookback:  lookback,
		transfers: transfers,
		wagers:    wagers,
		match:     match,
		audit:     audit,
		logger:    logger.With(slog.String("component", "deposit_watcher")),
	}
}

// WithSeenSet attaches the Redis fast path.
func (w *DepositWatcher) WithSeenSet(s SeenSet) *DepositWatcher {
	w.seen = s
	return w
}

// WithNotifier attaches an operator alert channel.
func (w *DepositWatcher) WithNotifier(n Notifier) *DepositWatcher {
	w.notifier = n
	return w
}

// Run executes one poll cycle. A provider failure skips the whole cycle; the
// transfers stay in the provider's history and are picked up when a later
// poll succeeds.
func (w *DepositWatcher) Run(ctx context.Context) error {
	observed, err := w.chain.ListRecentTransfers(ctx, w.address, w.lookback)
	if err != nil {
		return fmt.Errorf("pipeline: poll transfers: %w", err)
	}

	w.retryDeferred(ctx)

	for _, t := range observed {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.handleTransfer(ctx, t); err != nil {
			// One bad transfer must not starve the rest of the batch.
			w.logger.ErrorContext(ctx, "transfer handling failed",
				slog.String("ref", t.Ref),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// handleTransfer runs the dedup gate and the matching policy for one
// observed transfer.
func (w *DepositWatcher) handleTransfer(ctx context.Context, t domain.Transfer) error {
	if w.seen != nil {
		seen, err := w.seen.Seen(ctx, t.Ref)
		if err != nil {
			// Fast path down; the durable gate below still dedups.
			w.logger.WarnContext(ctx, "seen-set read failed", slog.String("error", err.Error()))
		} else if seen {
			return nil
		}
	}

	inserted, err := w.transfers.Record(ctx, t)
	if err != nil {
		return fmt.Errorf("record transfer %s: %w", t.Ref, err)
	}
	if w.seen != nil {
		if err := w.seen.Mark(ctx, t.Ref); err != nil {
			w.logger.WarnContext(ctx, "seen-set write failed", slog.String("error", err.Error()))
		}
	}
	if !inserted {
		return nil
	}

	w.logger.InfoContext(ctx, "transfer observed",
		slog.String("ref", t.Ref),
		slog.String("amount", t.Amount.String()),
		slog.String("source", t.Source),
	)

	return w.correlate(ctx, t)
}

// retryDeferred re-runs matching for transfers a previous cycle recorded but
// could not confirm, typically because settlement held the match lock at the
// time. Failures here are logged and retried next cycle.
func (w *DepositWatcher) retryDeferred(ctx context.Context) {
	stale, err := w.transfers.ListObserved(ctx, domain.ListOpts{Limit: w.lookback})
	if err != nil {
		w.logger.WarnContext(ctx, "list observed transfers failed", slog.String("error", err.Error()))
		return
	}
	for _, t := range stale {
		if ctx.Err() != nil {
			return
		}
		if err := w.correlate(ctx, t); err != nil {
			w.logger.ErrorContext(ctx, "transfer handling failed",
				slog.String("ref", t.Ref),
				slog.String("error", err.Error()),
			)
		}
	}
}

// correlate matches one recorded transfer against the pending wagers and
// applies the decision.
func (w *DepositWatcher) correlate(ctx context.Context, t domain.Transfer) error {
	pending, err := w.wagers.ListPendingWagers(ctx)
	if err != nil {
		return fmt.Errorf("list pending wagers: %w", err)
	}

	decision := w.match.Match(t, pending)
	if decision.Wager == nil {
		return w.recordUnmatched(ctx, t)
	}

	if _, err := w.wagers.ConfirmDeposit(ctx, decision.Wager.ID, t.Ref, t.Amount); err != nil {
		if errors.Is(err, domain.ErrLockHeld) || errors.Is(err, domain.ErrVersionConflict) {
			// Settlement holds the match right now. The transfer stays
			// observed and the next cycle retries it.
			w.logger.WarnContext(ctx, "confirm deferred",
				slog.String("ref", t.Ref),
				slog.String("wager_id", decision.Wager.ID),
				slog.String("error", err.Error()),
			)
			return nil
		}
		// The wager moved between the match and the confirm (resolved,
		// confirmed by hand). Keep the transfer for reconciliation.
		w.logger.WarnContext(ctx, "confirm failed, keeping transfer unmatched",
			slog.String("ref", t.Ref),
			slog.String("wager_id", decision.Wager.ID),
			slog.String("error", err.Error()),
		)
		return w.recordUnmatched(ctx, t)
	}

	if decision.NeedsReview {
		if err := w.audit.Log(ctx, "deposit_ambiguous", map[string]any{
			"ref":        t.Ref,
			"wager_id":   decision.Wager.ID,
			"candidates": decision.Candidates,
			"strategy":   string(decision.Strategy),
		}); err != nil {
			w.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
		if w.notifier != nil {
			title, msg := notify.DepositAmbiguousMessage(t.Ref, decision.Wager.ID, decision.Candidates)
			if err := w.notifier.Notify(ctx, notify.EventDepositAmbiguous, title, msg); err != nil {
				w.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
			}
		}
	}
	return nil
}

// recordUnmatched flags the transfer for manual reconciliation.
func (w *DepositWatcher) recordUnmatched(ctx context.Context, t domain.Transfer) error {
	if err := w.transfers.MarkUnmatched(ctx, t.Ref); err != nil {
		return fmt.Errorf("mark unmatched %s: %w", t.Ref, err)
	}
	if err := w.audit.Log(ctx, "deposit_unmatched", map[string]any{
		"ref":    t.Ref,
		"amount": t.Amount.String(),
		"source": t.Source,
	}); err != nil {
		w.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}
	if w.notifier != nil {
		title, msg := notify.DepositUnmatchedMessage(t.Ref, t.Amount, t.Source)
		if err := w.notifier.Notify(ctx, notify.EventDepositUnmatched, title, msg); err != nil {
			w.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// RunLoop polls on a repeating interval until the context is cancelled. Poll
// failures are logged, never fatal.
func (w *DepositWatcher) RunLoop(ctx context.Context, interval time.Duration) error {
	// Run immediately on start.
	if err := w.Run(ctx); err != nil {
		w.logger.ErrorContext(ctx, "poll cycle failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "deposit watcher stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := w.Run(ctx); err != nil {
				w.logger.ErrorContext(ctx, "poll cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}
