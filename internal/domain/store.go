package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MatchStore persists matches. Resolve is the only mutating call after
// creation and must be conditional on the match still being open, so two
// concurrent resolutions cannot both succeed.
type MatchStore interface {
	Create(ctx context.Context, m Match) (Match, error)
	GetByID(ctx context.Context, id int64) (Match, error)
	ListOpen(ctx context.Context, opts ListOpts) ([]Match, error)
	ListCompletedBefore(ctx context.Context, cutoff time.Time, opts ListOpts) ([]Match, error)
	// Resolve flips the match to completed with the given winner. It returns
	// ErrInvalidTransition when the match is no longer open.
	Resolve(ctx context.Context, id int64, winner string, completedAt time.Time) error
}

// WagerStore persists wagers with versioned writes: Update only succeeds when
// the stored version equals w.Version and bumps it by one, otherwise it
// returns ErrVersionConflict. This closes the lost-update window between a
// load and a save.
type WagerStore interface {
	Create(ctx context.Context, w Wager) error
	GetByID(ctx context.Context, id string) (Wager, error)
	Update(ctx context.Context, w Wager) error
	ListByUser(ctx context.Context, userHandle string, opts ListOpts) ([]Wager, error)
	ListByMatch(ctx context.Context, matchID int64) ([]Wager, error)
	// ListPending returns all pending wagers ordered by creation time
	// ascending, which is the matcher's deterministic tie-break order.
	ListPending(ctx context.Context) ([]Wager, error)
	// ListWonUnpaid returns won wagers with no payout reference attached;
	// this is the re-entrant payout scan after a crash or restart.
	ListWonUnpaid(ctx context.Context) ([]Wager, error)
}

// TransferStore is the durable dedup set and reconciliation log for observed
// deposits. Record is the at-most-once gate: it returns false when the ref
// was seen before, without error.
type TransferStore interface {
	Record(ctx context.Context, t Transfer) (inserted bool, err error)
	MarkMatched(ctx context.Context, ref, wagerID string) error
	MarkUnmatched(ctx context.Context, ref string) error
	ListUnmatched(ctx context.Context, opts ListOpts) ([]Transfer, error)
	// ListObserved returns transfers recorded but not yet matched or
	// flagged, oldest first. The watcher retries these each cycle.
	ListObserved(ctx context.Context, opts ListOpts) ([]Transfer, error)
}

// AuditEntry is a single append-only audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// LockManager provides mutual exclusion keyed by string. All transitions
// touching one match serialize on the key "match:<id>".
type LockManager interface {
	// Acquire obtains the lock or returns ErrLockHeld. On success the
	// returned function releases the lock and is safe to call twice.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter bounds the rate of wager creation per user handle.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus is a lightweight pub/sub channel used to push wager and match
// events to the websocket hub. Delivery is best-effort.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
