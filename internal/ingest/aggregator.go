package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"nftstats/internal/domain"
)

// switchoverLockTTL bounds how long the per-collection switchover lock is
// held; the recompute is a single partition query plus one transaction.
const switchoverLockTTL = 30 * time.Second

// markerRetentionDays is how long aggregation markers are kept before the
// table's TTL prunes them. Markers only need to outlive crash recovery and
// replayed poll windows, which span minutes, not months.
const markerRetentionDays = 90

// Aggregator folds batches of priced sales into per-day volume deltas and
// applies them to five denormalized projections: the global per-day bucket,
// the collection overview, per-chain and per-marketplace views, and the
// collection's per-day time series.
//
// Each UTC day of the batch is issued as its own atomic transaction together
// with an aggregation marker for that day's sales, so a replayed batch (crash
// between insert and aggregate, overlapping poll windows) skips the days it
// already applied instead of double-counting them. Per-day transactions also
// keep every transaction at a fixed six items, far under the store's
// transaction cap, no matter how many days a backfill batch spans.
type Aggregator struct {
	store  domain.Store
	locks  domain.LockManager
	logger *slog.Logger

	// now is epoch seconds; injectable for tests.
	now func() int64

	// onSwitchover, when set, is called after a collection's totals flip to
	// sale-derived.
	onSwitchover func(ctx context.Context, slug string, m domain.Marketplace, volume, volumeUSD float64)
}

// NewAggregator creates an Aggregator. locks may be nil, in which case the
// one-shot switchover relies on the store's conditional write alone.
func NewAggregator(store domain.Store, locks domain.LockManager, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:  store,
		locks:  locks,
		logger: logger.With(slog.String("component", "aggregator")),
		now:    func() int64 { return time.Now().Unix() },
	}
}

// UpdateStatistics folds one batch of priced sales into the projections for
// the given collection, chain, and marketplace. Callers must only pass
// batches whose SaleStore insert was accepted. Days are applied in order and
// independently; a failure leaves the failed day and everything after it
// unapplied, and a retry of the same batch skips the days already marked.
func (a *Aggregator) UpdateStatistics(ctx context.Context, slug string, chain domain.Chain, m domain.Marketplace, sales []domain.PricedSale) error {
	counted := make([]domain.PricedSale, 0, len(sales))
	for _, sale := range sales {
		if sale.CountsTowardVolume() {
			counted = append(counted, sale)
		}
	}
	if len(counted) == 0 {
		return nil
	}

	if err := a.maybeSwitchover(ctx, slug, chain, m); err != nil {
		return fmt.Errorf("ingest: switchover %s/%s: %w", slug, m, err)
	}

	now := a.now()
	overviewSet := map[string]any{domain.FieldUpdatedAt: float64(now)}
	a.foldBuyers(ctx, slug, counted, overviewSet)

	var applied, skipped int
	for _, g := range groupByDay(counted) {
		err := a.applyDay(ctx, slug, chain, m, g, overviewSet, now)
		if errors.Is(err, domain.ErrConditionFailed) {
			// Marker already present: this day's sales were aggregated before.
			skipped++
			continue
		}
		if err != nil {
			return fmt.Errorf("ingest: apply day %s for %s/%s: %w", domain.DaySK(g.Day), slug, m, err)
		}
		applied++
	}

	a.logger.InfoContext(ctx, "statistics updated",
		slog.String("slug", slug),
		slog.String("chain", string(chain)),
		slog.String("marketplace", string(m)),
		slog.Int("sales", len(counted)),
		slog.Int("days", applied),
		slog.Int("days_replayed", skipped),
	)
	return nil
}

// dayGroup is the slice of a batch falling on one UTC day.
type dayGroup struct {
	domain.DailyVolumeDelta
	sales []domain.PricedSale
}

// groupByDay splits the batch into per-day groups with their accumulated
// volume deltas, ordered by day.
func groupByDay(sales []domain.PricedSale) []dayGroup {
	byDay := make(map[int64]*dayGroup)
	for _, sale := range sales {
		day := domain.DayBucket(sale.Timestamp)
		g, ok := byDay[day]
		if !ok {
			g = &dayGroup{DailyVolumeDelta: domain.DailyVolumeDelta{Day: day}}
			byDay[day] = g
		}
		g.Volume += sale.PriceBase
		g.VolumeUSD += sale.PriceUSD
		g.sales = append(g.sales, sale)
	}

	groups := make([]dayGroup, 0, len(byDay))
	for _, g := range byDay {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Day < groups[j].Day })
	return groups
}

// maybeSwitchover performs the one-time replacement of marketplace-estimated
// totals with sale-derived totals for this collection+marketplace. The first
// aggregation that finds fromSales unset recomputes the authoritative total
// by summing the stored per-day series and overwrites the overview, chain,
// and marketplace views. The flip is guarded by a conditional write on the
// per-marketplace fromSales flag, and by the distributed lock when one is
// configured, so concurrent aggregations cannot double-apply it. Once
// fromSales is true all later updates are purely additive.
func (a *Aggregator) maybeSwitchover(ctx context.Context, slug string, chain domain.Chain, m domain.Marketplace) error {
	mpKey := domain.Key{PK: domain.CollectionPK(slug), SK: domain.MarketplaceSK(m)}

	item, err := a.store.GetItem(ctx, mpKey)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// No view yet: first ever sale-derived update for this pair.
	case err != nil:
		return err
	case item.Bool(domain.FieldFromSales):
		return nil
	}

	if a.locks != nil {
		unlock, err := a.locks.Acquire(ctx, "switchover:"+slug+":"+string(m), switchoverLockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			// Another worker is mid-switchover; the conditional write below
			// would lose anyway. Let additive deltas proceed.
			return nil
		}
		if err != nil {
			return err
		}
		defer unlock()
	}

	var volume, volumeUSD float64
	buckets, err := a.store.Query(ctx, domain.CollectionStatsPK(slug), domain.QueryOpts{})
	if err != nil {
		return err
	}
	for _, bucket := range buckets {
		volume += bucket.Float(domain.MarketplaceVolumeField(m))
		volumeUSD += bucket.Float(domain.MarketplaceVolumeUSDField(m))
	}

	now := a.now()
	totals := func() map[string]any {
		return map[string]any{
			domain.FieldTotalVolume:    volume,
			domain.FieldTotalVolumeUSD: volumeUSD,
			domain.FieldFromSales:      true,
			domain.FieldUpdatedAt:      float64(now),
		}
	}

	err = a.store.TransactUpdate(ctx, []domain.Update{
		{Key: mpKey, Set: totals(), NotTrue: domain.FieldFromSales},
		{Key: domain.Key{PK: domain.CollectionPK(slug), SK: domain.SKOverview}, Set: totals()},
		{Key: domain.Key{PK: domain.CollectionPK(slug), SK: domain.ChainSK(chain)}, Set: totals()},
	})
	if errors.Is(err, domain.ErrConditionFailed) {
		// Lost the race to another worker; the flip already happened.
		return nil
	}
	if err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "switched collection to sale-derived totals",
		slog.String("slug", slug),
		slog.String("marketplace", string(m)),
		slog.Float64("total_volume", volume),
		slog.Float64("total_volume_usd", volumeUSD),
	)
	if a.onSwitchover != nil {
		a.onSwitchover(ctx, slug, m, volume, volumeUSD)
	}
	return nil
}

// OnSwitchover registers a callback invoked after each successful switchover.
func (a *Aggregator) OnSwitchover(fn func(ctx context.Context, slug string, m domain.Marketplace, volume, volumeUSD float64)) {
	a.onSwitchover = fn
}

// applyDay issues one day's projection updates as a single atomic
// transaction: the day's marker, the three collection views, the global
// bucket, and the collection time-series bucket. Either every target
// reflects the day or none does.
func (a *Aggregator) applyDay(ctx context.Context, slug string, chain domain.Chain, m domain.Marketplace, g dayGroup, overviewSet map[string]any, now int64) error {
	add := map[string]float64{
		domain.FieldTotalVolume:    g.Volume,
		domain.FieldTotalVolumeUSD: float64(g.VolumeUSD),
	}
	if g.Day == domain.DayBucket(now) {
		add[domain.FieldDailyVolume] = g.Volume
		add[domain.FieldDailyVolumeUSD] = float64(g.VolumeUSD)
	}
	stamp := map[string]any{domain.FieldUpdatedAt: float64(now)}

	return a.store.TransactUpdate(ctx, []domain.Update{
		a.markerUpdate(slug, m, g.sales, now),
		{Key: domain.Key{PK: domain.CollectionPK(slug), SK: domain.SKOverview}, Add: add, Set: overviewSet},
		{Key: domain.Key{PK: domain.CollectionPK(slug), SK: domain.ChainSK(chain)}, Add: add, Set: stamp},
		{Key: domain.Key{PK: domain.CollectionPK(slug), SK: domain.MarketplaceSK(m)}, Add: add, Set: stamp},
		{
			Key: domain.Key{PK: domain.GlobalStatsPK, SK: domain.DaySK(g.Day)},
			Add: map[string]float64{
				domain.ChainVolumeField(chain):      g.Volume,
				domain.ChainVolumeUSDField(chain):   float64(g.VolumeUSD),
				domain.MarketplaceVolumeField(m):    g.Volume,
				domain.MarketplaceVolumeUSDField(m): float64(g.VolumeUSD),
			},
		},
		{
			Key: domain.Key{PK: domain.CollectionStatsPK(slug), SK: domain.DaySK(g.Day)},
			Add: map[string]float64{
				domain.FieldVolume:                  g.Volume,
				domain.FieldVolumeUSD:               float64(g.VolumeUSD),
				domain.ChainVolumeField(chain):      g.Volume,
				domain.ChainVolumeUSDField(chain):   float64(g.VolumeUSD),
				domain.MarketplaceVolumeField(m):    g.Volume,
				domain.MarketplaceVolumeUSDField(m): float64(g.VolumeUSD),
			},
		},
	})
}

// markerUpdate builds the conditional aggregation-marker write. The marker
// keys on a digest of the day slice's sale keys; if it already exists the
// day's transaction is cancelled and the slice is known to be aggregated.
// Markers expire via the table TTL on FieldExpiresAt.
func (a *Aggregator) markerUpdate(slug string, m domain.Marketplace, sales []domain.PricedSale, now int64) domain.Update {
	key := domain.AggMarkerKey(slug, m, batchDigest(sales))
	return domain.Update{
		Key: key,
		Set: map[string]any{
			domain.FieldSlug:        slug,
			domain.FieldMarketplace: string(m),
			"sales":                 float64(len(sales)),
			domain.FieldUpdatedAt:   float64(now),
			domain.FieldExpiresAt:   float64(now + markerRetentionDays*domain.SecondsPerDay),
		},
		NotExists: true,
	}
}

// batchDigest hashes the batch's sale keys in sorted order so the digest is
// stable under re-fetch ordering.
func batchDigest(sales []domain.PricedSale) string {
	keys := make([]string, 0, len(sales))
	for _, sale := range sales {
		keys = append(keys, domain.SaleSK(sale.Timestamp, sale.TxnHash))
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// foldBuyers restores the collection's buyer sketch from the overview record,
// folds in this batch's buyers, and stages the updated sketch and estimate.
// The sketch read-modify-write is not transactional across workers; the
// estimate tolerates that.
func (a *Aggregator) foldBuyers(ctx context.Context, slug string, sales []domain.PricedSale, overviewSet map[string]any) {
	overviewKey := domain.Key{PK: domain.CollectionPK(slug), SK: domain.SKOverview}

	var sketch *BuyerSketch
	item, err := a.store.GetItem(ctx, overviewKey)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		sketch = NewBuyerSketch()
	case err != nil:
		a.logger.WarnContext(ctx, "buyer sketch read failed, skipping owners update",
			slog.String("slug", slug),
			slog.String("error", err.Error()),
		)
		return
	default:
		sketch = BuyerSketchFrom(item.Bytes(domain.FieldBuyersSketch))
	}

	for _, sale := range sales {
		sketch.Insert(sale.Chain, sale.Buyer)
	}

	if data := sketch.Bytes(); data != nil {
		overviewSet[domain.FieldBuyersSketch] = data
		overviewSet[domain.FieldUniqueBuyers] = float64(sketch.Estimate())
	}
}
