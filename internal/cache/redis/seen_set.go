package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// seenTTL bounds how long an observed transfer ref stays in the fast path.
// Postgres holds the durable dedup set; this set only saves a round trip for
// refs seen within the polling lookback window.
const seenTTL = 24 * time.Hour

// SeenSet is a best-effort fast path in front of the durable transfer dedup
// set. A positive answer from Seen is trusted; a negative answer still goes
// through the Postgres insert gate.
type SeenSet struct {
	rdb *redis.Client
}

// NewSeenSet creates a SeenSet backed by the given Client.
func NewSeenSet(c *Client) *SeenSet {
	return &SeenSet{rdb: c.Underlying()}
}

func seenKey(ref string) string {
	return "seen:" + ref
}

// Seen reports whether the transfer ref was marked recently. Errors are
// returned so the caller can decide to fall through to the durable path.
func (ss *SeenSet) Seen(ctx context.Context, ref string) (bool, error) {
	n, err := ss.rdb.Exists(ctx, seenKey(ref)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: seen %s: %w", ref, err)
	}
	return n > 0, nil
}

// Mark records the transfer ref with a TTL. Failures are non-fatal for the
// caller since Postgres remains the source of truth.
func (ss *SeenSet) Mark(ctx context.Context, ref string) error {
	if err := ss.rdb.Set(ctx, seenKey(ref), "1", seenTTL).Err(); err != nil {
		return fmt.Errorf("redis: mark seen %s: %w", ref, err)
	}
	return nil
}
