package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"nftstats/internal/domain"
)

// CursorCache implements domain.CursorCache using plain Redis strings. Each
// (collection, marketplace) pair stores its last-synced sale timestamp at
// "cursor:{slug}:{marketplace}". The cache is advisory; on a miss the runner
// falls back to the store's most recent stored sale.
type CursorCache struct {
	rdb *redis.Client
}

// NewCursorCache creates a CursorCache backed by the given Client.
func NewCursorCache(c *Client) *CursorCache {
	return &CursorCache{rdb: c.rdb}
}

func cursorKey(slug string, m domain.Marketplace) string {
	return "cursor:" + slug + ":" + string(m)
}

// Get returns the cached cursor, or domain.ErrNotFound.
func (cc *CursorCache) Get(ctx context.Context, slug string, m domain.Marketplace) (int64, error) {
	val, err := cc.rdb.Get(ctx, cursorKey(slug, m)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("redis: get cursor %s/%s: %w", slug, m, err)
	}

	ts, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: parse cursor %s/%s: %w", slug, m, err)
	}
	return ts, nil
}

// Set stores the cursor. Cursors only move forward; a stale write is ignored
// by the next Get/fallback comparison rather than rejected here.
func (cc *CursorCache) Set(ctx context.Context, slug string, m domain.Marketplace, ts int64) error {
	if err := cc.rdb.Set(ctx, cursorKey(slug, m), strconv.FormatInt(ts, 10), 0).Err(); err != nil {
		return fmt.Errorf("redis: set cursor %s/%s: %w", slug, m, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.CursorCache = (*CursorCache)(nil)
