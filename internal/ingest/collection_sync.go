package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nftstats/internal/domain"
)

// CollectionSyncer upserts marketplace-reported collection metadata into the
// three statistics views. Floor, market cap, and owner counts always come
// from the marketplace; the marketplace's self-reported volume totals are
// only written while the view's fromSales flag is unset, so sale-derived
// totals are never clobbered by estimates after the switchover.
type CollectionSyncer struct {
	store  domain.Store
	logger *slog.Logger

	now func() int64
}

// NewCollectionSyncer creates a CollectionSyncer.
func NewCollectionSyncer(store domain.Store, logger *slog.Logger) *CollectionSyncer {
	return &CollectionSyncer{
		store:  store,
		logger: logger.With(slog.String("component", "collection_syncer")),
		now:    func() int64 { return time.Now().Unix() },
	}
}

// Sync upserts a batch of collections. Per-collection failures are collected;
// one bad collection does not abort the batch.
func (s *CollectionSyncer) Sync(ctx context.Context, cols []domain.Collection) error {
	var failed int
	for _, col := range cols {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("ingest: collection sync cancelled: %w", err)
		}
		if err := s.syncOne(ctx, col); err != nil {
			failed++
			s.logger.WarnContext(ctx, "collection sync failed",
				slog.String("slug", col.Slug),
				slog.String("marketplace", string(col.Marketplace)),
				slog.String("error", err.Error()),
			)
		}
	}
	if failed > 0 {
		return fmt.Errorf("ingest: collection sync: %d of %d collections failed", failed, len(cols))
	}
	return nil
}

func (s *CollectionSyncer) syncOne(ctx context.Context, col domain.Collection) error {
	pk := domain.CollectionPK(col.Slug)
	views := []domain.Key{
		{PK: pk, SK: domain.SKOverview},
		{PK: pk, SK: domain.ChainSK(col.Chain)},
		{PK: pk, SK: domain.MarketplaceSK(col.Marketplace)},
	}

	for _, key := range views {
		if err := s.upsertView(ctx, key, col); err != nil {
			return err
		}
	}
	return nil
}

// upsertView first attempts a full write including the volume estimates,
// conditional on fromSales not being true. When the condition fails the view
// has already switched to sale-derived totals, and only the metadata fields
// are refreshed.
func (s *CollectionSyncer) upsertView(ctx context.Context, key domain.Key, col domain.Collection) error {
	meta := s.metadataFields(col)

	full := make(map[string]any, len(meta)+2)
	for f, v := range meta {
		full[f] = v
	}
	full[domain.FieldTotalVolume] = col.TotalVolume
	full[domain.FieldTotalVolumeUSD] = float64(col.TotalVolumeUSD)

	err := s.store.TransactUpdate(ctx, []domain.Update{
		{Key: key, Set: full, NotTrue: domain.FieldFromSales},
	})
	if errors.Is(err, domain.ErrConditionFailed) {
		return s.store.TransactUpdate(ctx, []domain.Update{
			{Key: key, Set: meta},
		})
	}
	return err
}

func (s *CollectionSyncer) metadataFields(col domain.Collection) map[string]any {
	return map[string]any{
		domain.FieldSlug:         col.Slug,
		domain.FieldName:         col.Name,
		domain.FieldChain:        string(col.Chain),
		domain.FieldContract:     col.ContractAddress,
		domain.FieldImage:        col.ImageURL,
		domain.FieldFloor:        col.Floor,
		domain.FieldFloorUSD:     float64(col.FloorUSD),
		domain.FieldMarketCap:    col.MarketCap,
		domain.FieldMarketCapUSD: float64(col.MarketCapUSD),
		domain.FieldOwners:       float64(col.Owners),
		domain.FieldUpdatedAt:    float64(s.now()),
	}
}
