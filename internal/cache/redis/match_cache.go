package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parasfix/betsol/internal/domain"
)

const matchTTL = 5 * time.Minute

// MatchCache is a read-through cache of matches keyed by ID, with
// JSON-serialized values and a short TTL. The deposit watcher reads the
// owning match on every confirmed deposit, so hot matches stay cached.
//
// Key schema:
//
//	betmatch:{id} - string value containing JSON
type MatchCache struct {
	rdb *redis.Client
}

// NewMatchCache creates a MatchCache backed by the given Client.
func NewMatchCache(c *Client) *MatchCache {
	return &MatchCache{rdb: c.Underlying()}
}

func matchKey(id int64) string {
	return "betmatch:" + strconv.FormatInt(id, 10)
}

// Set stores a Match in the cache with a 5-minute TTL.
func (mc *MatchCache) Set(ctx context.Context, m domain.Match) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("redis: marshal match %d: %w", m.ID, err)
	}
	if err := mc.rdb.Set(ctx, matchKey(m.ID), data, matchTTL).Err(); err != nil {
		return fmt.Errorf("redis: set match %d: %w", m.ID, err)
	}
	return nil
}

// Get retrieves a Match by its ID from the cache.
// It returns domain.ErrNotFound when the key does not exist.
func (mc *MatchCache) Get(ctx context.Context, id int64) (domain.Match, error) {
	data, err := mc.rdb.Get(ctx, matchKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Match{}, domain.ErrNotFound
		}
		return domain.Match{}, fmt.Errorf("redis: get match %d: %w", id, err)
	}

	var m domain.Match
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.Match{}, fmt.Errorf("redis: unmarshal match %d: %w", id, err)
	}
	return m, nil
}

// Invalidate drops a match from the cache. Called after resolution so stale
// open state is never served.
func (mc *MatchCache) Invalidate(ctx context.Context, id int64) error {
	if err := mc.rdb.Del(ctx, matchKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate match %d: %w", id, err)
	}
	return nil
}
