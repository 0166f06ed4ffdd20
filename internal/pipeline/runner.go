// Package pipeline coordinates the ingest loops: per-marketplace polling
// runners, the live sale feed, and the cold-storage exporter.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nftstats/internal/domain"
	"nftstats/internal/ingest"
	"nftstats/internal/pricing"
)

const (
	// rateLimitBackoff is how long a runner sleeps after the upstream API
	// returns 429 before retrying the cycle.
	rateLimitBackoff = 60 * time.Second
)

// Runner drives one marketplace through a full ingest cycle: sync collection
// metadata, then for each collection fetch new sales since the cursor, price
// them, persist them, and fold them into the statistics projections.
type Runner struct {
	adapter   domain.Adapter
	syncer    *ingest.CollectionSyncer
	series    *pricing.SeriesCache
	converter *pricing.Converter
	sales     *ingest.SaleStore
	agg       *ingest.Aggregator
	cursors   domain.CursorCache
	limiter   domain.RateLimiter
	exporter  *Exporter
	logger    *slog.Logger

	rateLimit  int
	rateWindow time.Duration
}

// NewRunner creates a runner for the adapter's marketplace. cursors, limiter,
// and exporter may be nil; the runner then falls back to store cursors, runs
// unthrottled, and skips export respectively.
func NewRunner(
	adapter domain.Adapter,
	syncer *ingest.CollectionSyncer,
	series *pricing.SeriesCache,
	converter *pricing.Converter,
	sales *ingest.SaleStore,
	agg *ingest.Aggregator,
	cursors domain.CursorCache,
	limiter domain.RateLimiter,
	exporter *Exporter,
	rateLimit int,
	rateWindow time.Duration,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		adapter:    adapter,
		syncer:     syncer,
		series:     series,
		converter:  converter,
		sales:      sales,
		agg:        agg,
		cursors:    cursors,
		limiter:    limiter,
		exporter:   exporter,
		rateLimit:  rateLimit,
		rateWindow: rateWindow,
		logger: logger.With(
			slog.String("component", "runner"),
			slog.String("marketplace", string(adapter.Marketplace())),
		),
	}
}

// RunLoop runs ingest cycles on a repeating interval until the context is
// cancelled. A rate-limited cycle triggers an extra backoff sleep so the next
// attempt does not immediately hit the same 429.
func (r *Runner) RunLoop(ctx context.Context, interval time.Duration) error {
	// Run immediately on start.
	if err := r.Run(ctx); err != nil {
		r.logCycleError(ctx, err)
		if errors.Is(err, domain.ErrRateLimited) {
			if err := sleepCtx(ctx, rateLimitBackoff); err != nil {
				return err
			}
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("runner loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Run(ctx); err != nil {
				r.logCycleError(ctx, err)
				if errors.Is(err, domain.ErrRateLimited) {
					if err := sleepCtx(ctx, rateLimitBackoff); err != nil {
						return err
					}
				}
			}
		}
	}
}

// Run executes a single ingest cycle.
func (r *Runner) Run(ctx context.Context) error {
	m := r.adapter.Marketplace()

	r.series.Warm(ctx, r.adapter.Chains())

	if err := r.throttle(ctx); err != nil {
		return err
	}
	cols, err := r.adapter.GetAllCollections(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: collections for %s: %w", m, err)
	}

	if err := r.syncer.Sync(ctx, cols); err != nil {
		// Metadata sync failures do not block sale ingestion.
		r.logger.WarnContext(ctx, "collection metadata sync incomplete",
			slog.String("error", err.Error()),
		)
	}

	var synced, ingested int
	for _, col := range cols {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.syncSales(ctx, col)
		if err != nil {
			if errors.Is(err, domain.ErrRateLimited) {
				return fmt.Errorf("pipeline: sales for %s: %w", m, err)
			}
			// A single bad collection does not abort the cycle.
			r.logger.WarnContext(ctx, "collection sale sync failed",
				slog.String("slug", col.Slug),
				slog.String("error", err.Error()),
			)
			continue
		}
		synced++
		ingested += n
	}

	r.logger.InfoContext(ctx, "ingest cycle complete",
		slog.Int("collections", len(cols)),
		slog.Int("collections_synced", synced),
		slog.Int("sales_ingested", ingested),
	)
	return nil
}

// syncSales fetches, prices, persists, and aggregates new sales for one
// collection. It returns how many sales were ingested.
func (r *Runner) syncSales(ctx context.Context, col domain.Collection) (int, error) {
	m := r.adapter.Marketplace()

	since, err := r.cursor(ctx, col.Slug, m)
	if err != nil {
		return 0, err
	}
	if since > 0 {
		// The cursor is the last ingested sale's timestamp; poll strictly
		// after it so consecutive windows never overlap.
		since++
	}

	if err := r.throttle(ctx); err != nil {
		return 0, err
	}
	raw, err := r.adapter.GetSales(ctx, col, since)
	if err != nil {
		return 0, err
	}
	if len(raw) == 0 {
		return 0, nil
	}

	priced := r.converter.ConvertSales(ctx, raw)

	// Sales the live feed already ingested were aggregated on arrival; fold in
	// only the rest. A batch stored by a cycle that crashed before aggregating
	// is not tagged live and stays in, where the aggregation marker resolves it.
	fresh := make([]domain.PricedSale, 0, len(priced))
	for _, sale := range priced {
		if stored, live := r.sales.Lookup(ctx, col.Slug, m, sale.Timestamp, sale.TxnHash); stored && live {
			continue
		}
		fresh = append(fresh, sale)
	}
	if len(fresh) == 0 {
		r.advanceCursor(ctx, col.Slug, m, priced)
		return 0, nil
	}

	if ok := r.sales.Insert(ctx, col.Slug, m, fresh, false); !ok {
		// The store write did not commit; aggregating now would count sales
		// that may never be durable. The next cycle re-fetches the window.
		return 0, nil
	}

	if err := r.agg.UpdateStatistics(ctx, col.Slug, col.Chain, m, fresh); err != nil {
		return 0, err
	}

	if r.exporter != nil {
		r.exporter.Record(col.Slug, fresh)
	}

	r.advanceCursor(ctx, col.Slug, m, priced)
	return len(fresh), nil
}

// IngestLive prices and persists a single sale pushed by a live feed. Sales
// already stored by either path are dropped; new ones are tagged live so the
// polling path knows they were aggregated on arrival. A sale seen on both
// paths is stored and counted once.
func (r *Runner) IngestLive(ctx context.Context, slug string, sale domain.RawSale) {
	if stored, _ := r.sales.Lookup(ctx, slug, sale.Marketplace, sale.Timestamp, sale.TxnHash); stored {
		return
	}

	priced := r.converter.ConvertSales(ctx, []domain.RawSale{sale})

	if ok := r.sales.Insert(ctx, slug, sale.Marketplace, priced, true); !ok {
		return
	}
	if err := r.agg.UpdateStatistics(ctx, slug, sale.Chain, sale.Marketplace, priced); err != nil {
		r.logger.WarnContext(ctx, "live sale aggregation failed",
			slog.String("slug", slug),
			slog.String("txn_hash", sale.TxnHash),
			slog.String("error", err.Error()),
		)
		return
	}
	if r.exporter != nil {
		r.exporter.Record(slug, priced)
	}
}

// cursor returns the timestamp to poll from. The cursor persisted in the
// store is authoritative: it only advances after a window is stored and
// aggregated, so sales stranded by a failed cycle stay above it and are
// re-fetched. The cache is just a fast path over it.
func (r *Runner) cursor(ctx context.Context, slug string, m domain.Marketplace) (int64, error) {
	if r.cursors != nil {
		ts, err := r.cursors.Get(ctx, slug, m)
		if err == nil {
			return ts, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.WarnContext(ctx, "cursor read failed, falling back to store",
				slog.String("slug", slug),
				slog.String("error", err.Error()),
			)
		}
	}
	return r.sales.Cursor(ctx, slug, m)
}

// advanceCursor persists the window's newest sale timestamp. A failed write
// only costs a re-fetch of the window; the idempotent sale keys and the
// aggregation markers absorb the replay.
func (r *Runner) advanceCursor(ctx context.Context, slug string, m domain.Marketplace, sales []domain.PricedSale) {
	var latest int64
	for _, sale := range sales {
		if sale.Timestamp > latest {
			latest = sale.Timestamp
		}
	}
	if latest == 0 {
		return
	}
	if err := r.sales.SetCursor(ctx, slug, m, latest); err != nil {
		r.logger.WarnContext(ctx, "cursor write failed",
			slog.String("slug", slug),
			slog.String("error", err.Error()),
		)
	}
	if r.cursors != nil {
		if err := r.cursors.Set(ctx, slug, m, latest); err != nil {
			r.logger.WarnContext(ctx, "cursor cache write failed",
				slog.String("slug", slug),
				slog.String("error", err.Error()),
			)
		}
	}
}

// throttle blocks until the marketplace's rate budget admits one more call.
func (r *Runner) throttle(ctx context.Context) error {
	if r.limiter == nil || r.rateLimit <= 0 {
		return nil
	}
	key := string(r.adapter.Marketplace())
	if err := r.limiter.Wait(ctx, key, r.rateLimit, r.rateWindow); err != nil {
		if ctx.Err() != nil {
			return err
		}
		// A broken limiter backend should not halt ingestion.
		r.logger.WarnContext(ctx, "rate limiter unavailable, proceeding",
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (r *Runner) logCycleError(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	r.logger.ErrorContext(ctx, "ingest cycle failed", slog.String("error", err.Error()))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
