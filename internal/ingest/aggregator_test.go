package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"nftstats/internal/domain"
	"nftstats/internal/store/memory"
)

func newTestAggregator(store domain.Store) *Aggregator {
	agg := NewAggregator(store, nil, testLogger())
	agg.now = func() int64 { return testTS }
	return agg
}

func overviewItem(t *testing.T, st *memory.Store, slug string) domain.Item {
	t.Helper()
	item, err := st.GetItem(context.Background(), domain.Key{PK: domain.CollectionPK(slug), SK: domain.SKOverview})
	if err != nil {
		t.Fatalf("overview read failed: %v", err)
	}
	return item
}

func TestUpdateStatisticsFoldsBatchIntoProjections(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	agg := newTestAggregator(st)

	prevDay := testDay - domain.SecondsPerDay
	batch := []domain.PricedSale{
		pricedSale("0xaaa", testTS, 10, 20000),
		pricedSale("0xbbb", testTS+60, 5, 10000),
		pricedSale("0xccc", prevDay+100, 2, 4000),
	}
	if err := agg.UpdateStatistics(ctx, testSlug, domain.ChainEthereum, domain.MarketplaceOpenSea, batch); err != nil {
		t.Fatalf("UpdateStatistics failed: %v", err)
	}

	overview := overviewItem(t, st, testSlug)
	if got := overview.Float(domain.FieldTotalVolume); got != 17 {
		t.Errorf("overview totalVolume = %v, want 17", got)
	}
	if got := overview.Float(domain.FieldTotalVolumeUSD); got != 34000 {
		t.Errorf("overview totalVolumeUSD = %v, want 34000", got)
	}
	// Only the two sales on today's bucket contribute to the daily counters.
	if got := overview.Float(domain.FieldDailyVolume); got != 15 {
		t.Errorf("overview dailyVolume = %v, want 15", got)
	}
	if got := overview.Float(domain.FieldDailyVolumeUSD); got != 30000 {
		t.Errorf("overview dailyVolumeUSD = %v, want 30000", got)
	}
	if got := overview.Float(domain.FieldUniqueBuyers); got != 3 {
		t.Errorf("overview uniqueBuyers = %v, want 3", got)
	}
	if len(overview.Bytes(domain.FieldBuyersSketch)) == 0 {
		t.Error("overview is missing the buyers sketch")
	}

	for _, sk := range []string{domain.ChainSK(domain.ChainEthereum), domain.MarketplaceSK(domain.MarketplaceOpenSea)} {
		view, err := st.GetItem(ctx, domain.Key{PK: domain.CollectionPK(testSlug), SK: sk})
		if err != nil {
			t.Fatalf("view %q read failed: %v", sk, err)
		}
		if got := view.Float(domain.FieldTotalVolume); got != 17 {
			t.Errorf("view %q totalVolume = %v, want 17", sk, got)
		}
	}

	global, err := st.GetItem(ctx, domain.Key{PK: domain.GlobalStatsPK, SK: domain.DaySK(testDay)})
	if err != nil {
		t.Fatalf("global bucket read failed: %v", err)
	}
	if got := global.Float(domain.ChainVolumeField(domain.ChainEthereum)); got != 15 {
		t.Errorf("global chain volume = %v, want 15", got)
	}
	if got := global.Float(domain.MarketplaceVolumeUSDField(domain.MarketplaceOpenSea)); got != 30000 {
		t.Errorf("global marketplace volumeUSD = %v, want 30000", got)
	}

	prevGlobal, err := st.GetItem(ctx, domain.Key{PK: domain.GlobalStatsPK, SK: domain.DaySK(prevDay)})
	if err != nil {
		t.Fatalf("previous-day global bucket read failed: %v", err)
	}
	if got := prevGlobal.Float(domain.ChainVolumeField(domain.ChainEthereum)); got != 2 {
		t.Errorf("previous-day global chain volume = %v, want 2", got)
	}

	series, err := st.GetItem(ctx, domain.Key{PK: domain.CollectionStatsPK(testSlug), SK: domain.DaySK(testDay)})
	if err != nil {
		t.Fatalf("time-series bucket read failed: %v", err)
	}
	if got := series.Float(domain.FieldVolume); got != 15 {
		t.Errorf("time-series volume = %v, want 15", got)
	}
	if got := series.Float(domain.MarketplaceVolumeField(domain.MarketplaceOpenSea)); got != 15 {
		t.Errorf("time-series marketplace volume = %v, want 15", got)
	}
}

func TestUpdateStatisticsSkipsReplayedBatch(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	agg := newTestAggregator(st)

	batch := []domain.PricedSale{
		pricedSale("0xaaa", testTS, 10, 20000),
		pricedSale("0xbbb", testTS+60, 5, 10000),
	}
	if err := agg.UpdateStatistics(ctx, testSlug, domain.ChainEthereum, domain.MarketplaceOpenSea, batch); err != nil {
		t.Fatalf("first aggregation failed: %v", err)
	}

	// Replaying the identical batch must be detected and skipped, even with
	// the sales re-fetched in a different order.
	replay := []domain.PricedSale{batch[1], batch[0]}
	if err := agg.UpdateStatistics(ctx, testSlug, domain.ChainEthereum, domain.MarketplaceOpenSea, replay); err != nil {
		t.Fatalf("replayed aggregation failed: %v", err)
	}

	overview := overviewItem(t, st, testSlug)
	if got := overview.Float(domain.FieldTotalVolume); got != 15 {
		t.Errorf("replay double-counted: totalVolume = %v, want 15", got)
	}
}

func TestUpdateStatisticsIgnoresNonCountingSales(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	agg := newTestAggregator(st)

	excluded := pricedSale("0xaaa", testTS, 10, 20000)
	excluded.Excluded = true
	unresolved := pricedSale("0xbbb", testTS, 10, 20000)
	unresolved.PriceBase = domain.PriceUnresolved
	unresolved.PriceUSD = domain.PriceUnresolved
	free := pricedSale("0xccc", testTS, 0, 0)

	batch := []domain.PricedSale{excluded, unresolved, free}
	if err := agg.UpdateStatistics(ctx, testSlug, domain.ChainEthereum, domain.MarketplaceOpenSea, batch); err != nil {
		t.Fatalf("UpdateStatistics failed: %v", err)
	}
	if st.Len() != 0 {
		t.Errorf("batch with no counting sales wrote %d items", st.Len())
	}
}

func TestSwitchoverReplacesEstimatedTotals(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	agg := newTestAggregator(st)

	var switchovers int
	var switchVolume, switchVolumeUSD float64
	agg.OnSwitchover(func(_ context.Context, slug string, m domain.Marketplace, volume, volumeUSD float64) {
		switchovers++
		switchVolume, switchVolumeUSD = volume, volumeUSD
	})

	// Marketplace-estimated totals from collection sync, not yet sale-derived.
	mpKey := domain.Key{PK: domain.CollectionPK(testSlug), SK: domain.MarketplaceSK(domain.MarketplaceOpenSea)}
	if err := st.PutItem(ctx, domain.Item{
		domain.AttrPK:              mpKey.PK,
		domain.AttrSK:              mpKey.SK,
		domain.FieldTotalVolume:    999.0,
		domain.FieldTotalVolumeUSD: 1_999_000.0,
		domain.FieldFromSales:      false,
	}); err != nil {
		t.Fatalf("seed marketplace view failed: %v", err)
	}

	// Historical per-day buckets carrying this marketplace's sale-derived
	// volume: 5 + 7 base, 10000 + 14000 USD.
	prevDay := testDay - domain.SecondsPerDay
	for _, bucket := range []struct {
		day    int64
		vol    float64
		volUSD float64
	}{{prevDay, 5, 10000}, {testDay, 7, 14000}} {
		if err := st.PutItem(ctx, domain.Item{
			domain.AttrPK: domain.CollectionStatsPK(testSlug),
			domain.AttrSK: domain.DaySK(bucket.day),
			domain.MarketplaceVolumeField(domain.MarketplaceOpenSea):    bucket.vol,
			domain.MarketplaceVolumeUSDField(domain.MarketplaceOpenSea): bucket.volUSD,
		}); err != nil {
			t.Fatalf("seed day bucket failed: %v", err)
		}
	}

	batch := []domain.PricedSale{pricedSale("0xaaa", testTS, 10, 20000)}
	if err := agg.UpdateStatistics(ctx, testSlug, domain.ChainEthereum, domain.MarketplaceOpenSea, batch); err != nil {
		t.Fatalf("UpdateStatistics failed: %v", err)
	}

	if switchovers != 1 {
		t.Fatalf("expected 1 switchover, got %d", switchovers)
	}
	if switchVolume != 12 || switchVolumeUSD != 24000 {
		t.Errorf("switchover totals = (%v, %v), want (12, 24000)", switchVolume, switchVolumeUSD)
	}

	// Recomputed total (12) plus the new batch (10); the estimate (999) is gone.
	mpView, err := st.GetItem(ctx, mpKey)
	if err != nil {
		t.Fatalf("marketplace view read failed: %v", err)
	}
	if !mpView.Bool(domain.FieldFromSales) {
		t.Error("marketplace view is not flagged sale-derived")
	}
	if got := mpView.Float(domain.FieldTotalVolume); got != 22 {
		t.Errorf("marketplace view totalVolume = %v, want 22", got)
	}
	if got := mpView.Float(domain.FieldTotalVolumeUSD); got != 44000 {
		t.Errorf("marketplace view totalVolumeUSD = %v, want 44000", got)
	}

	// Once flipped, later batches are purely additive and never re-switch.
	second := []domain.PricedSale{pricedSale("0xbbb", testTS+120, 5, 10000)}
	if err := agg.UpdateStatistics(ctx, testSlug, domain.ChainEthereum, domain.MarketplaceOpenSea, second); err != nil {
		t.Fatalf("second aggregation failed: %v", err)
	}
	if switchovers != 1 {
		t.Errorf("switchover ran again: %d", switchovers)
	}
	mpView, err = st.GetItem(ctx, mpKey)
	if err != nil {
		t.Fatalf("marketplace view read failed: %v", err)
	}
	if got := mpView.Float(domain.FieldTotalVolume); got != 27 {
		t.Errorf("marketplace view totalVolume = %v, want 27", got)
	}
}

// txnSizeStore records the size of every transaction passing through it.
type txnSizeStore struct {
	*memory.Store
	calls    int
	maxItems int
}

func (s *txnSizeStore) TransactUpdate(ctx context.Context, updates []domain.Update) error {
	s.calls++
	if len(updates) > s.maxItems {
		s.maxItems = len(updates)
	}
	return s.Store.TransactUpdate(ctx, updates)
}

func TestUpdateStatisticsSplitsBackfillIntoPerDayTransactions(t *testing.T) {
	ctx := context.Background()
	st := &txnSizeStore{Store: memory.New()}
	agg := newTestAggregator(st)

	// A first backfill can span months of history in one batch.
	const days = 60
	batch := make([]domain.PricedSale, 0, days)
	for i := 0; i < days; i++ {
		day := testDay - int64(i)*domain.SecondsPerDay
		batch = append(batch, pricedSale(fmt.Sprintf("0x%03d", i), day+100, 1, 2000))
	}

	if err := agg.UpdateStatistics(ctx, testSlug, domain.ChainEthereum, domain.MarketplaceOpenSea, batch); err != nil {
		t.Fatalf("backfill aggregation failed: %v", err)
	}
	if st.maxItems > domain.TransactItemLimit {
		t.Errorf("a transaction carried %d items, limit is %d", st.maxItems, domain.TransactItemLimit)
	}

	overview := overviewItem(t, st.Store, testSlug)
	if got := overview.Float(domain.FieldTotalVolume); got != days {
		t.Errorf("overview totalVolume = %v, want %d", got, days)
	}
	if got := overview.Float(domain.FieldTotalVolumeUSD); got != days*2000 {
		t.Errorf("overview totalVolumeUSD = %v, want %d", got, days*2000)
	}

	buckets, err := st.Query(ctx, domain.CollectionStatsPK(testSlug), domain.QueryOpts{})
	if err != nil {
		t.Fatalf("time-series query failed: %v", err)
	}
	if len(buckets) != days {
		t.Errorf("expected %d day buckets, got %d", days, len(buckets))
	}
}

// flakyTransactStore lets failAfter transactions through, fails the next one
// once, then recovers.
type flakyTransactStore struct {
	*memory.Store
	failAfter int
	tripped   bool
}

func (s *flakyTransactStore) TransactUpdate(ctx context.Context, updates []domain.Update) error {
	if !s.tripped {
		if s.failAfter == 0 {
			s.tripped = true
			return errors.New("throughput exceeded")
		}
		s.failAfter--
	}
	return s.Store.TransactUpdate(ctx, updates)
}

func TestUpdateStatisticsResumesPartiallyAppliedBatch(t *testing.T) {
	ctx := context.Background()
	// The switchover and the first day land, the second day's transaction
	// fails once.
	st := &flakyTransactStore{Store: memory.New(), failAfter: 2}
	agg := newTestAggregator(st)

	prevDay := testDay - domain.SecondsPerDay
	batch := []domain.PricedSale{
		pricedSale("0xaaa", prevDay+100, 5, 10000),
		pricedSale("0xbbb", testTS, 10, 20000),
	}

	err := agg.UpdateStatistics(ctx, testSlug, domain.ChainEthereum, domain.MarketplaceOpenSea, batch)
	if err == nil {
		t.Fatal("expected partial aggregation to report an error")
	}
	overview := overviewItem(t, st.Store, testSlug)
	if got := overview.Float(domain.FieldTotalVolume); got != 5 {
		t.Fatalf("after partial apply totalVolume = %v, want 5", got)
	}

	// Retrying the identical batch must apply only the missing day.
	if err := agg.UpdateStatistics(ctx, testSlug, domain.ChainEthereum, domain.MarketplaceOpenSea, batch); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	overview = overviewItem(t, st.Store, testSlug)
	if got := overview.Float(domain.FieldTotalVolume); got != 15 {
		t.Errorf("after retry totalVolume = %v, want 15", got)
	}
	if got := overview.Float(domain.FieldDailyVolume); got != 10 {
		t.Errorf("after retry dailyVolume = %v, want 10", got)
	}

	bucket, err := st.GetItem(ctx, domain.Key{PK: domain.CollectionStatsPK(testSlug), SK: domain.DaySK(prevDay)})
	if err != nil {
		t.Fatalf("day bucket read failed: %v", err)
	}
	if got := bucket.Float(domain.FieldVolume); got != 5 {
		t.Errorf("retry double-counted the applied day: volume = %v, want 5", got)
	}
}

func TestAggregationMarkersCarryExpiry(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	agg := newTestAggregator(st)

	batch := []domain.PricedSale{pricedSale("0xaaa", testTS, 10, 20000)}
	if err := agg.UpdateStatistics(ctx, testSlug, domain.ChainEthereum, domain.MarketplaceOpenSea, batch); err != nil {
		t.Fatalf("UpdateStatistics failed: %v", err)
	}

	markers, err := st.Query(ctx, "aggregated#"+testSlug+"#"+string(domain.MarketplaceOpenSea), domain.QueryOpts{})
	if err != nil {
		t.Fatalf("marker query failed: %v", err)
	}
	if len(markers) != 1 {
		t.Fatalf("expected 1 marker, got %d", len(markers))
	}
	want := float64(testTS + 90*domain.SecondsPerDay)
	if got := markers[0].Float(domain.FieldExpiresAt); got != want {
		t.Errorf("marker expiresAt = %v, want %v", got, want)
	}
}

func TestUpdateStatisticsTransactionFailureLeavesNoPartialState(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	st := &failStore{Store: mem, transactErr: errors.New("throughput exceeded")}
	agg := newTestAggregator(st)

	batch := []domain.PricedSale{pricedSale("0xaaa", testTS, 10, 20000)}
	err := agg.UpdateStatistics(ctx, testSlug, domain.ChainEthereum, domain.MarketplaceOpenSea, batch)
	if err == nil {
		t.Fatal("expected aggregation error")
	}
	if mem.Len() != 0 {
		t.Errorf("failed aggregation wrote %d items", mem.Len())
	}
}

func TestBatchDigestStableUnderOrdering(t *testing.T) {
	a := pricedSale("0xaaa", testTS, 10, 20000)
	b := pricedSale("0xbbb", testTS+60, 5, 10000)

	if batchDigest([]domain.PricedSale{a, b}) != batchDigest([]domain.PricedSale{b, a}) {
		t.Error("digest differs under re-ordering")
	}
	if batchDigest([]domain.PricedSale{a}) == batchDigest([]domain.PricedSale{a, b}) {
		t.Error("different batches share a digest")
	}
}
