// Package service implements the application's use cases on top of the
// domain stores: match administration, wager intake and confirmation, and
// the payout engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/parasfix/betsol/internal/domain"
	"github.com/parasfix/betsol/internal/lifecycle"
	"github.com/parasfix/betsol/internal/notify"
)

// matchLockTTL bounds how long a crashed holder can block a match.
const matchLockTTL = 30 * time.Second

// matchLockKey is the per-match serialization key shared by every component
// that mutates a match or its wagers.
func matchLockKey(id int64) string {
	return "match:" + strconv.FormatInt(id, 10)
}

// MatchCache is the optional read-through cache in front of MatchStore.
type MatchCache interface {
	Get(ctx context.Context, id int64) (domain.Match, error)
	Set(ctx context.Context, m domain.Match) error
	Invalidate(ctx context.Context, id int64) error
}

// Notifier is the best-effort operator alert channel. Failures are logged,
// never returned.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// MarketService owns match administration: creation, lookup, and resolution
// with settlement of every wager on the match.
type MarketService struct {
	matches  domain.MatchStore
	wagers   domain.WagerStore
	locks    domain.LockManager
	audit    domain.AuditStore
	bus      domain.SignalBus
	cache    MatchCache
	notifier Notifier
	logger   *slog.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(
	matches domain.MatchStore,
	wagers domain.WagerStore,
	locks domain.LockManager,
	audit domain.AuditStore,
	bus domain.SignalBus,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		matches: matches,
		wagers:  wagers,
		locks:   locks,
		audit:   audit,
		bus:     bus,
		logger:  logger.With(slog.String("component", "market_service")),
	}
}

// WithCache attaches a read-through match cache.
func (s *MarketService) WithCache(cache MatchCache) *MarketService {
	s.cache = cache
	return s
}

// WithNotifier attaches an operator alert channel.
func (s *MarketService) WithNotifier(n Notifier) *MarketService {
	s.notifier = n
	return s
}

// CreateMatch opens a new match. Both team labels must be non-empty and
// distinct, and both odds must exceed 1.0 since the payout is stake × odds
// and must never pay below the stake.
func (s *MarketService) CreateMatch(ctx context.Context, teamA, teamB string, oddsA, oddsB decimal.Decimal) (domain.Match, error) {
	teamA = strings.TrimSpace(teamA)
	teamB = strings.TrimSpace(teamB)
	if teamA == "" || teamB == "" || teamA == teamB {
		return domain.Match{}, fmt.Errorf("market_service: team labels must be non-empty and distinct: %w", domain.ErrInvalidSide)
	}
	one := decimal.NewFromInt(1)
	if !oddsA.GreaterThan(one) || !oddsB.GreaterThan(one) {
		return domain.Match{}, fmt.Errorf("market_service: odds must exceed 1.0: %w", domain.ErrInvalidOdds)
	}

	m, err := s.matches.Create(ctx, domain.Match{
		TeamA:     teamA,
		TeamB:     teamB,
		OddsA:     oddsA,
		OddsB:     oddsB,
		Status:    domain.MatchStatusOpen,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Match{}, fmt.Errorf("market_service: create match: %w", err)
	}

	if err := s.audit.Log(ctx, "match_created", map[string]any{
		"match_id": m.ID,
		"team_a":   m.TeamA,
		"team_b":   m.TeamB,
		"odds_a":   m.OddsA.String(),
		"odds_b":   m.OddsB.String(),
	}); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}

	s.logger.InfoContext(ctx, "match created",
		slog.Int64("match_id", m.ID),
		slog.String("team_a", m.TeamA),
		slog.String("team_b", m.TeamB),
	)
	return m, nil
}

// GetMatch returns one match, consulting the cache first when configured.
func (s *MarketService) GetMatch(ctx context.Context, id int64) (domain.Match, error) {
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, id); err == nil {
			return m, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "match cache read failed", slog.String("error", err.Error()))
		}
	}

	m, err := s.matches.GetByID(ctx, id)
	if err != nil {
		return domain.Match{}, fmt.Errorf("market_service: get match %d: %w", id, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, m); err != nil {
			s.logger.WarnContext(ctx, "match cache write failed", slog.String("error", err.Error()))
		}
	}
	return m, nil
}

// ListOpenMatches returns matches still accepting wagers.
func (s *MarketService) ListOpenMatches(ctx context.Context, opts domain.ListOpts) ([]domain.Match, error) {
	matches, err := s.matches.ListOpen(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list open matches: %w", err)
	}
	return matches, nil
}

// ResolveMatch completes a match with the given winner and settles every
// wager on it: confirmed wagers go to won or lost by side, wagers still
// pending forfeit. All of it happens under the per-match lock so the deposit
// watcher cannot confirm a wager mid-settlement. Payouts for the winners are
// not sent here; the payout engine picks up won wagers on its own schedule.
//
// Calling ResolveMatch on an already-completed match is the crash-recovery
// path: the settlement loop re-runs from persisted state and picks up any
// wager a previous attempt left unsettled. ErrInvalidTransition is returned
// only when no wager needed work, so a clean double resolve still fails.
func (s *MarketService) ResolveMatch(ctx context.Context, id int64, winner string) (domain.SettlementReport, error) {
	unlock, err := s.locks.Acquire(ctx, matchLockKey(id), matchLockTTL)
	if err != nil {
		return domain.SettlementReport{}, fmt.Errorf("market_service: resolve match %d: %w", id, err)
	}
	defer unlock()

	m, err := s.matches.GetByID(ctx, id)
	if err != nil {
		return domain.SettlementReport{}, fmt.Errorf("market_service: resolve match %d: %w", id, err)
	}

	now := time.Now().UTC()
	resumed := m.Status == domain.MatchStatusCompleted
	if resumed {
		// The match record already carries the outcome; only the recorded
		// winner may be replayed.
		if !m.HasSide(winner) {
			return domain.SettlementReport{}, fmt.Errorf("market_service: resolve match %d: %w", id, domain.ErrUnknownSide)
		}
		if winner != m.Winner {
			return domain.SettlementReport{}, fmt.Errorf("market_service: resolve match %d: winner already recorded as %s: %w", id, m.Winner, domain.ErrInvalidTransition)
		}
	} else {
		if err := lifecycle.ResolveMatch(&m, winner, now); err != nil {
			return domain.SettlementReport{}, fmt.Errorf("market_service: resolve match %d: %w", id, err)
		}

		// Conditional write: only one resolution can ever land.
		if err := s.matches.Resolve(ctx, id, winner, now); err != nil {
			return domain.SettlementReport{}, fmt.Errorf("market_service: resolve match %d: %w", id, err)
		}
	}

	wagers, err := s.wagers.ListByMatch(ctx, id)
	if err != nil {
		return domain.SettlementReport{}, fmt.Errorf("market_service: resolve match %d: list wagers: %w", id, err)
	}

	report := domain.SettlementReport{MatchID: id, Winner: winner}
	for _, w := range wagers {
		wasPending := w.Status == domain.WagerStatusPending

		if err := lifecycle.ResolveWager(&w, winner, now); err != nil {
			// Already settled or paid; nothing to re-process.
			if errors.Is(err, domain.ErrInvalidTransition) {
				continue
			}
			return report, fmt.Errorf("market_service: resolve wager %s: %w", w.ID, err)
		}
		if err := s.wagers.Update(ctx, w); err != nil {
			return report, fmt.Errorf("market_service: resolve wager %s: %w", w.ID, err)
		}

		switch {
		case wasPending:
			report.Forfeited++
		case w.Status == domain.WagerStatusWon:
			report.Winning++
		default:
			report.Losing++
		}
	}

	if resumed && report.Winning+report.Losing+report.Forfeited == 0 {
		return domain.SettlementReport{}, fmt.Errorf("market_service: resolve match %d: %w", id, domain.ErrInvalidTransition)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, id); err != nil {
			s.logger.WarnContext(ctx, "match cache invalidate failed", slog.String("error", err.Error()))
		}
	}

	if err := s.audit.Log(ctx, "match_settled", map[string]any{
		"match_id":  id,
		"winner":    winner,
		"winning":   report.Winning,
		"losing":    report.Losing,
		"forfeited": report.Forfeited,
	}); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}

	s.publishEvent(ctx, "events:matches", map[string]any{
		"type":     "match_settled",
		"match_id": id,
		"winner":   winner,
	})

	if s.notifier != nil {
		title, msg := notify.MatchSettledMessage(id, winner, report.Winning, report.Losing, report.Forfeited)
		if err := s.notifier.Notify(ctx, notify.EventMatchSettled, title, msg); err != nil {
			s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}

	s.logger.InfoContext(ctx, "match settled",
		slog.Int64("match_id", id),
		slog.String("winner", winner),
		slog.Int("winning", report.Winning),
		slog.Int("losing", report.Losing),
		slog.Int("forfeited", report.Forfeited),
	)
	return report, nil
}

func (s *MarketService) publishEvent(ctx context.Context, channel string, payload map[string]any) {
	data, err := marshalEvent(payload)
	if err != nil {
		s.logger.WarnContext(ctx, "event marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, channel, data); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
