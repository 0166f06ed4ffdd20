package domain

import (
	"context"
	"io"
	"time"
)

// PriceSource returns historical daily price series for tokens. Series for a
// chain's base token are denominated in USD; series for arbitrary tokens are
// denominated in the chain's base currency.
type PriceSource interface {
	BaseSeries(ctx context.Context, chain Chain) (TokenPriceSeries, error)
	TokenSeries(ctx context.Context, chain Chain, tokenAddress string) (TokenPriceSeries, error)
	CurrentPrice(ctx context.Context, assetID string) (float64, error)
}

// Adapter is one marketplace's polling client. Adapters produce raw sale and
// collection records; all normalization and aggregation happens downstream.
type Adapter interface {
	Marketplace() Marketplace
	Chains() []Chain
	GetAllCollections(ctx context.Context) ([]Collection, error)
	// GetSales returns sales for the collection at or after since (epoch
	// seconds). Overlapping windows are fine; the sale key is idempotent.
	GetSales(ctx context.Context, c Collection, since int64) ([]RawSale, error)
}

// LockManager provides distributed locks keyed by string.
type LockManager interface {
	// Acquire returns an unlock function, or ErrLockHeld.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter limits outbound calls to external APIs.
type RateLimiter interface {
	// Allow admits and counts one call for key if the window has room.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Wait blocks until one call for key is admitted or ctx is done.
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// CursorCache remembers the last-synced sale timestamp per collection and
// marketplace. It is an advisory fast path over the cursor persisted in the
// store; on a miss the runner falls back to the persisted cursor.
type CursorCache interface {
	Get(ctx context.Context, slug string, m Marketplace) (int64, error)
	Set(ctx context.Context, slug string, m Marketplace, ts int64) error
}

// BlobWriter uploads cold-export objects.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
