package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/parasfix/betsol/internal/domain"
	"github.com/parasfix/betsol/internal/lifecycle"
	"github.com/parasfix/betsol/internal/notify"
)

// StakeBounds is the configured inclusive [Min, Max] range for stakes.
type StakeBounds struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// Contains reports whether stake lies within the bounds, inclusive on both
// ends.
func (b StakeBounds) Contains(stake decimal.Decimal) bool {
	return stake.GreaterThanOrEqual(b.Min) && stake.LessThanOrEqual(b.Max)
}

// AddressValidator checks a payout wallet address for the settlement
// network's format. It returns domain.ErrInvalidWallet (possibly wrapped) on
// failure.
type AddressValidator func(address string) error

// WagerService owns wager intake and deposit confirmation.
type WagerService struct {
	matches      domain.MatchStore
	wagers       domain.WagerStore
	transfers    domain.TransferStore
	locks        domain.LockManager
	limiter      domain.RateLimiter
	audit        domain.AuditStore
	bus          domain.SignalBus
	validateAddr AddressValidator
	bounds       StakeBounds
	tol          lifecycle.Tolerance
	rateLimit    int
	rateWindow   time.Duration
	notifier     Notifier
	logger       *slog.Logger
}

// NewWagerService creates a WagerService.
func NewWagerService(
	matches domain.MatchStore,
	wagers domain.WagerStore,
	transfers domain.TransferStore,
	locks domain.LockManager,
	limiter domain.RateLimiter,
	audit domain.AuditStore,
	bus domain.SignalBus,
	validateAddr AddressValidator,
	bounds StakeBounds,
	tol lifecycle.Tolerance,
	rateLimit int,
	rateWindow time.Duration,
	logger *slog.Logger,
) *WagerService {
	return &WagerService{
		matches:      matches,
		wagers:       wagers,
		transfers:    transfers,
		locks:        locks,
		limiter:      limiter,
		audit:        audit,
		bus:          bus,
		validateAddr: validateAddr,
		bounds:       bounds,
		tol:          tol,
		rateLimit:    rateLimit,
		rateWindow:   rateWindow,
		notifier:     nil,
		logger:       logger.With(slog.String("component", "wager_service")),
	}
}

// WithNotifier attaches an operator alert channel.
func (s *WagerService) WithNotifier(n Notifier) *WagerService {
	s.notifier = n
	return s
}

// Tolerance exposes the configured deposit-matching tolerance; the deposit
// watcher must use the same ε as the confirmation path.
func (s *WagerService) Tolerance() lifecycle.Tolerance {
	return s.tol
}

// CreateWager validates and persists a new pending wager. Validation errors
// are rejected synchronously and nothing is persisted: the match must exist
// and be open, the side must be one of the match's team labels, the stake
// must lie within the configured bounds (inclusive), and the payout wallet
// must be a well-formed address.
func (s *WagerService) CreateWager(ctx context.Context, userHandle string, matchID int64, side string, stake decimal.Decimal, payoutWallet string) (domain.Wager, error) {
	if s.rateLimit > 0 {
		allowed, err := s.limiter.Allow(ctx, "wagers:"+userHandle, s.rateLimit, s.rateWindow)
		if err != nil {
			return domain.Wager{}, fmt.Errorf("wager_service: rate limiter: %w", err)
		}
		if !allowed {
			return domain.Wager{}, domain.ErrRateLimited
		}
	}

	m, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		return domain.Wager{}, fmt.Errorf("wager_service: create wager: %w", err)
	}
	if m.Status != domain.MatchStatusOpen {
		return domain.Wager{}, domain.ErrMatchNotOpen
	}

	odds, ok := m.OddsFor(side)
	if !ok {
		return domain.Wager{}, domain.ErrInvalidSide
	}
	if !s.bounds.Contains(stake) {
		return domain.Wager{}, fmt.Errorf("wager_service: stake %s outside [%s, %s]: %w",
			stake.String(), s.bounds.Min.String(), s.bounds.Max.String(), domain.ErrStakeOutOfRange)
	}
	if err := s.validateAddr(payoutWallet); err != nil {
		return domain.Wager{}, fmt.Errorf("wager_service: payout wallet: %w", err)
	}

	w := domain.Wager{
		ID:           uuid.NewString(),
		UserHandle:   userHandle,
		MatchID:      matchID,
		Side:         side,
		Stake:        stake,
		Odds:         odds,
		PayoutWallet: payoutWallet,
		Status:       domain.WagerStatusPending,
		CreatedAt:    time.Now().UTC(),
		Version:      1,
	}
	if err := s.wagers.Create(ctx, w); err != nil {
		return domain.Wager{}, fmt.Errorf("wager_service: create wager: %w", err)
	}

	if err := s.audit.Log(ctx, "wager_created", map[string]any{
		"wager_id": w.ID,
		"user":     w.UserHandle,
		"match_id": w.MatchID,
		"side":     w.Side,
		"stake":    w.Stake.String(),
	}); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}

	s.logger.InfoContext(ctx, "wager created",
		slog.String("wager_id", w.ID),
		slog.String("user", w.UserHandle),
		slog.Int64("match_id", w.MatchID),
		slog.String("stake", w.Stake.String()),
	)
	return w, nil
}

// GetWager returns one wager.
func (s *WagerService) GetWager(ctx context.Context, id string) (domain.Wager, error) {
	w, err := s.wagers.GetByID(ctx, id)
	if err != nil {
		return domain.Wager{}, fmt.Errorf("wager_service: get wager %s: %w", id, err)
	}
	return w, nil
}

// ListUserWagers returns a user's wagers, newest first.
func (s *WagerService) ListUserWagers(ctx context.Context, userHandle string, opts domain.ListOpts) ([]domain.Wager, error) {
	wagers, err := s.wagers.ListByUser(ctx, userHandle, opts)
	if err != nil {
		return nil, fmt.Errorf("wager_service: list wagers for %s: %w", userHandle, err)
	}
	return wagers, nil
}

// ListPendingWagers returns all pending wagers in the matcher's tie-break
// order (earliest created first).
func (s *WagerService) ListPendingWagers(ctx context.Context) ([]domain.Wager, error) {
	wagers, err := s.wagers.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("wager_service: list pending wagers: %w", err)
	}
	return wagers, nil
}

// ConfirmDeposit attaches an observed transfer to a wager and moves it to
// confirmed, under the wager's match lock. Replaying the same transfer ref is
// a success no-op. The transfer is linked in the reconciliation log on
// success.
func (s *WagerService) ConfirmDeposit(ctx context.Context, wagerID, transferRef string, observed decimal.Decimal) (domain.Wager, error) {
	w, err := s.wagers.GetByID(ctx, wagerID)
	if err != nil {
		return domain.Wager{}, fmt.Errorf("wager_service: confirm deposit: %w", err)
	}

	unlock, err := s.locks.Acquire(ctx, matchLockKey(w.MatchID), matchLockTTL)
	if err != nil {
		return domain.Wager{}, fmt.Errorf("wager_service: confirm deposit %s: %w", wagerID, err)
	}
	defer unlock()

	// Reload under the lock; the settlement pass may have moved it.
	w, err = s.wagers.GetByID(ctx, wagerID)
	if err != nil {
		return domain.Wager{}, fmt.Errorf("wager_service: confirm deposit: %w", err)
	}

	alreadyConfirmed := w.DepositRef == transferRef && transferRef != ""

	if err := lifecycle.ConfirmDeposit(&w, transferRef, observed, s.tol, time.Now().UTC()); err != nil {
		return domain.Wager{}, fmt.Errorf("wager_service: confirm deposit %s: %w", wagerID, err)
	}
	if alreadyConfirmed {
		// Idempotent replay; nothing to persist.
		return w, nil
	}

	if err := s.wagers.Update(ctx, w); err != nil {
		return domain.Wager{}, fmt.Errorf("wager_service: confirm deposit %s: %w", wagerID, err)
	}
	if err := s.transfers.MarkMatched(ctx, transferRef, w.ID); err != nil {
		s.logger.WarnContext(ctx, "transfer link failed",
			slog.String("ref", transferRef),
			slog.String("error", err.Error()),
		)
	}

	if err := s.audit.Log(ctx, "deposit_confirmed", map[string]any{
		"wager_id": w.ID,
		"ref":      transferRef,
		"amount":   observed.String(),
	}); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}

	s.publishWagerEvent(ctx, "deposit_confirmed", w)

	if s.notifier != nil {
		title, msg := notify.DepositConfirmedMessage(w.ID, w.UserHandle, observed, transferRef)
		if err := s.notifier.Notify(ctx, notify.EventDepositConfirmed, title, msg); err != nil {
			s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}

	s.logger.InfoContext(ctx, "deposit confirmed",
		slog.String("wager_id", w.ID),
		slog.String("ref", transferRef),
		slog.String("amount", observed.String()),
	)
	return w, nil
}

func (s *WagerService) publishWagerEvent(ctx context.Context, event string, w domain.Wager) {
	data, err := marshalEvent(map[string]any{
		"type":     event,
		"wager_id": w.ID,
		"match_id": w.MatchID,
		"status":   string(w.Status),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "event marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, "events:wagers", data); err != nil {
		s.logger.WarnContext(ctx, "event publish failed", slog.String("error", err.Error()))
	}
}

// marshalEvent serialises a bus event payload.
func marshalEvent(payload map[string]any) ([]byte, error) {
	return json.Marshal(payload)
}
