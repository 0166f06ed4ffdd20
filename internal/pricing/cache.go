// Package pricing resolves raw sale prices into base-currency and USD values
// using historical daily price series.
package pricing

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"nftstats/internal/domain"
)

// SeriesCache memoizes token price series for the lifetime of a run. Each
// distinct (chain, token address) pair is fetched from the price source at
// most once; fetch failures are recorded so lookups yield "no match" instead
// of re-fetching, except rate limits, which stay retryable so a later cycle
// can fill the gap.
type SeriesCache struct {
	source domain.PriceSource
	logger *slog.Logger

	mu     sync.Mutex
	series map[string]domain.TokenPriceSeries
	failed map[string]bool
}

// NewSeriesCache creates an empty cache over the given price source. The
// cache is created per run and discarded at process exit.
func NewSeriesCache(source domain.PriceSource, logger *slog.Logger) *SeriesCache {
	return &SeriesCache{
		source: source,
		logger: logger.With(slog.String("component", "series_cache")),
		series: make(map[string]domain.TokenPriceSeries),
		failed: make(map[string]bool),
	}
}

func seriesKey(chain domain.Chain, addr string) string {
	return string(chain) + "|" + chain.NormalizeAddress(addr)
}

// Warm pre-fetches the base token series for every given chain. Base series
// must be resident before sale-specific lookups because every non-base-token
// conversion is expressed relative to the chain's base token. Fetch failures
// are logged and non-fatal.
func (c *SeriesCache) Warm(ctx context.Context, chains []domain.Chain) {
	for _, chain := range chains {
		if err := c.Ensure(ctx, chain, chain.BaseTokenAddress()); err != nil {
			c.logger.WarnContext(ctx, "base series fetch failed",
				slog.String("chain", string(chain)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Ensure fetches and caches the series for (chain, tokenAddress) unless it is
// already cached or marked failed. It returns the fetch error for logging;
// callers treat the token as unpriced rather than aborting.
func (c *SeriesCache) Ensure(ctx context.Context, chain domain.Chain, tokenAddress string) error {
	key := seriesKey(chain, tokenAddress)

	c.mu.Lock()
	if _, ok := c.series[key]; ok {
		c.mu.Unlock()
		return nil
	}
	if c.failed[key] {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	var (
		series domain.TokenPriceSeries
		err    error
	)
	if chain.IsBaseToken(tokenAddress) {
		series, err = c.source.BaseSeries(ctx, chain)
	} else {
		series, err = c.source.TokenSeries(ctx, chain, tokenAddress)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		// Rate limits are not negative-cached: the next cycle retries.
		if !errors.Is(err, domain.ErrRateLimited) {
			c.failed[key] = true
		}
		return err
	}

	c.series[key] = series
	return nil
}

// Get returns the cached series for (chain, tokenAddress), if any.
func (c *SeriesCache) Get(chain domain.Chain, tokenAddress string) (domain.TokenPriceSeries, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	series, ok := c.series[seriesKey(chain, tokenAddress)]
	return series, ok
}
