package app

import (
	"context"
	"fmt"

	"nftstats/internal/domain"
	"nftstats/internal/feed"
	"nftstats/internal/ingest"
	"nftstats/internal/marketplace/magiceden"
	"nftstats/internal/marketplace/opensea"
	"nftstats/internal/notify"
	"nftstats/internal/pipeline"
	"nftstats/internal/pricing"
)

// IngestMode runs the polling runners only: collection sync, sale ingestion,
// and statistics aggregation, without the live feed or exports.
func (a *App) IngestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting ingest mode")

	orch, err := a.buildPipeline(deps, false, false)
	if err != nil {
		return fmt.Errorf("ingest mode: %w", err)
	}
	return orch.Run(ctx)
}

// ExportMode runs the polling runners together with the cold-storage export
// cron. The live feed stays off.
func (a *App) ExportMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting export mode")

	orch, err := a.buildPipeline(deps, false, true)
	if err != nil {
		return fmt.Errorf("export mode: %w", err)
	}
	return orch.Run(ctx)
}

// FullMode runs every subsystem: polling runners, the live feed when
// configured, and the export cron when enabled.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	orch, err := a.buildPipeline(deps, a.cfg.OpenSea.Stream, a.cfg.Pipeline.ExportEnabled)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	return orch.Run(ctx)
}

// buildPipeline assembles the ingest components shared by every mode: the
// series cache and converter, the sale store and aggregator, one runner per
// enabled marketplace, and optionally the live feed and exporter.
func (a *App) buildPipeline(deps *Dependencies, withFeed, withExport bool) (*pipeline.Orchestrator, error) {
	seriesCache := pricing.NewSeriesCache(deps.PriceSource, a.logger)
	converter := pricing.NewConverter(seriesCache, a.logger)
	saleStore := ingest.NewSaleStore(deps.Store, a.logger)
	syncer := ingest.NewCollectionSyncer(deps.Store, a.logger)

	agg := ingest.NewAggregator(deps.Store, deps.LockManager, a.logger)
	notifier := deps.Notifier
	agg.OnSwitchover(func(ctx context.Context, slug string, m domain.Marketplace, volume, volumeUSD float64) {
		_ = notifier.Notify(ctx, notify.EventSwitchover,
			"Collection switched to sale-derived totals",
			fmt.Sprintf("%s on %s: volume %.4f (%.0f USD)", slug, m, volume, volumeUSD),
		)
	})

	var exporter *pipeline.Exporter
	if withExport {
		if deps.BlobWriter == nil {
			return nil, fmt.Errorf("export requires blob storage")
		}
		exporter = pipeline.NewExporter(deps.BlobWriter, a.cfg.Pipeline.ExportPrefix, a.logger)
	}

	var runners []*pipeline.Runner
	var openseaRunner *pipeline.Runner

	if a.cfg.OpenSea.Enabled {
		adapter := opensea.NewClient(a.cfg.OpenSea.BaseURL, a.cfg.OpenSea.ApiKey, a.cfg.OpenSeaChains())
		openseaRunner = pipeline.NewRunner(
			adapter, syncer, seriesCache, converter, saleStore, agg,
			deps.CursorCache, deps.RateLimiter, exporter,
			a.cfg.OpenSea.RateLimit, a.cfg.OpenSea.RateWindow.Duration,
			a.logger,
		)
		runners = append(runners, openseaRunner)
	}

	if a.cfg.MagicEden.Enabled {
		adapter := magiceden.NewClient(a.cfg.MagicEden.BaseURL, a.cfg.MagicEden.ApiKey)
		runners = append(runners, pipeline.NewRunner(
			adapter, syncer, seriesCache, converter, saleStore, agg,
			deps.CursorCache, deps.RateLimiter, exporter,
			a.cfg.MagicEden.RateLimit, a.cfg.MagicEden.RateWindow.Duration,
			a.logger,
		))
	}

	if len(runners) == 0 {
		return nil, fmt.Errorf("no marketplaces enabled")
	}

	var liveFeed pipeline.Feed
	if withFeed && openseaRunner != nil {
		liveFeed = feed.NewOpenSeaStreamFeed(
			a.cfg.OpenSea.StreamURL,
			a.cfg.OpenSea.ApiKey,
			openseaRunner.IngestLive,
			a.logger,
		)
	}

	return pipeline.NewOrchestrator(
		runners, liveFeed, exporter, notifier,
		a.cfg.Pipeline.SyncInterval.Duration,
		a.cfg.Pipeline.ExportCron,
		a.logger,
	), nil
}
