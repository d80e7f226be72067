package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/parasfix/betsol/internal/domain"
	"github.com/parasfix/betsol/internal/lifecycle"
	"github.com/parasfix/betsol/internal/notify"
	"github.com/parasfix/betsol/internal/retry"
)

// SettlementService is the payout engine: it scans won wagers that carry no
// payout reference and drives outbound transfers for them. The scan is
// re-entrant; a crash between the transfer broadcast and the paid write is
// healed on restart via the payout_attempt audit trail and the on-chain
// record.
type SettlementService struct {
	wagers   domain.WagerStore
	locks    domain.LockManager
	chain    domain.ChainWriter
	treasury domain.TreasuryReader
	audit    domain.AuditStore
	policy   retry.Policy
	notifier Notifier
	logger   *slog.Logger
}

// NewSettlementService creates a SettlementService.
func NewSettlementService(
	wagers domain.WagerStore,
	locks domain.LockManager,
	chain domain.ChainWriter,
	treasury domain.TreasuryReader,
	audit domain.AuditStore,
	policy retry.Policy,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		wagers:   wagers,
		locks:    locks,
		chain:    chain,
		treasury: treasury,
		audit:    audit,
		policy:   policy,
		logger:   logger.With(slog.String("component", "settlement_service")),
	}
}

// WithNotifier attaches an operator alert channel.
func (s *SettlementService) WithNotifier(n Notifier) *SettlementService {
	s.notifier = n
	return s
}

// RunPayoutBatch pays every won wager that has no payout reference yet.
// Failures on one wager never fail the batch: after bounded retries the
// wager stays won and is counted as outstanding for manual intervention.
func (s *SettlementService) RunPayoutBatch(ctx context.Context) (domain.PayoutReport, error) {
	pending, err := s.wagers.ListWonUnpaid(ctx)
	if err != nil {
		return domain.PayoutReport{}, fmt.Errorf("settlement_service: payout batch: %w", err)
	}

	var report domain.PayoutReport
	for _, w := range pending {
		if ctx.Err() != nil {
			report.Outstanding += len(pending) - report.Paid - report.Outstanding
			return report, ctx.Err()
		}

		if err := s.payWager(ctx, w.ID); err != nil {
			report.Outstanding++
			s.logger.ErrorContext(ctx, "payout failed",
				slog.String("wager_id", w.ID),
				slog.String("amount", w.PayoutDue().String()),
				slog.String("error", err.Error()),
			)
			if s.notifier != nil {
				title, msg := notify.PayoutFailedMessage(w.ID, w.PayoutDue(), err)
				if nerr := s.notifier.Notify(ctx, notify.EventPayoutFailed, title, msg); nerr != nil {
					s.logger.WarnContext(ctx, "notify failed", slog.String("error", nerr.Error()))
				}
			}
			continue
		}
		report.Paid++
	}

	if report.Paid > 0 || report.Outstanding > 0 {
		s.logger.InfoContext(ctx, "payout batch finished",
			slog.Int("paid", report.Paid),
			slog.Int("outstanding", report.Outstanding),
		)
	}
	return report, nil
}

// payWager drives one wager from won to paid with bounded backoff. The
// per-match lock is acquired inside each attempt so retries never hold it
// across a backoff sleep.
func (s *SettlementService) payWager(ctx context.Context, wagerID string) error {
	return s.policy.Do(ctx, func(ctx context.Context) error {
		w, err := s.wagers.GetByID(ctx, wagerID)
		if err != nil {
			return retry.Permanent(err)
		}

		unlock, err := s.locks.Acquire(ctx, matchLockKey(w.MatchID), matchLockTTL)
		if err != nil {
			return err
		}
		defer unlock()

		// Reload under the lock.
		w, err = s.wagers.GetByID(ctx, wagerID)
		if err != nil {
			return retry.Permanent(err)
		}
		if w.PayoutRef != "" {
			// A previous attempt (or a previous process) already paid.
			return nil
		}
		if w.Status != domain.WagerStatusWon {
			return retry.Permanent(fmt.Errorf("wager %s is %s: %w", w.ID, w.Status, domain.ErrInvalidTransition))
		}

		amount := w.PayoutDue()

		// Record the attempt before broadcasting. If the process dies in the
		// window between broadcast and the paid write, this entry plus the
		// chain's own record let an operator reconcile the wager.
		if err := s.audit.Log(ctx, "payout_attempt", map[string]any{
			"wager_id": w.ID,
			"wallet":   w.PayoutWallet,
			"amount":   amount.String(),
		}); err != nil {
			return fmt.Errorf("settlement_service: payout attempt audit: %w", err)
		}

		ref, err := s.chain.SubmitTransfer(ctx, w.PayoutWallet, amount)
		if err != nil {
			if errors.Is(err, domain.ErrInsufficientFunds) {
				// Retrying cannot create funds; surface immediately.
				return retry.Permanent(err)
			}
			return err
		}

		if err := lifecycle.MarkPaid(&w, ref, amount, time.Now().UTC()); err != nil {
			return retry.Permanent(fmt.Errorf("settlement_service: mark paid %s: %w", w.ID, err))
		}
		if err := s.wagers.Update(ctx, w); err != nil {
			// The transfer is on chain; never rebroadcast. Leave the wager
			// for reconciliation against the payout_attempt audit entry.
			return retry.Permanent(fmt.Errorf("settlement_service: persist paid %s (transfer %s broadcast): %w", w.ID, ref, err))
		}

		if err := s.audit.Log(ctx, "payout_sent", map[string]any{
			"wager_id": w.ID,
			"ref":      ref,
			"amount":   amount.String(),
		}); err != nil {
			s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}

		if s.notifier != nil {
			title, msg := notify.PayoutSentMessage(w.ID, amount, ref)
			if err := s.notifier.Notify(ctx, notify.EventPayoutSent, title, msg); err != nil {
				s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
			}
		}

		s.logger.InfoContext(ctx, "payout sent",
			slog.String("wager_id", w.ID),
			slog.String("ref", ref),
			slog.String("amount", amount.String()),
		)
		return nil
	})
}

// OutstandingPayouts returns won wagers still awaiting a payout transfer.
func (s *SettlementService) OutstandingPayouts(ctx context.Context) ([]domain.Wager, error) {
	wagers, err := s.wagers.ListWonUnpaid(ctx)
	if err != nil {
		return nil, fmt.Errorf("settlement_service: outstanding payouts: %w", err)
	}
	return wagers, nil
}

// TreasuryBalance reports the platform wallet balance in SOL.
func (s *SettlementService) TreasuryBalance(ctx context.Context) (decimal.Decimal, error) {
	bal, err := s.treasury.Balance(ctx)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("settlement_service: treasury balance: %w", err)
	}
	return bal, nil
}
