// Package ingest turns priced sales into durable records and denormalized
// statistics projections.
package ingest

import (
	"context"
	"errors"
	"log/slog"

	"nftstats/internal/domain"
)

// SaleStore idempotently persists priced sales. The deterministic key
// (slug, marketplace, timestamp, txnHash) makes re-insertion of the same
// trade an overwrite, never a duplicate, so replayed and overlapping polling
// windows are safe.
type SaleStore struct {
	store  domain.Store
	logger *slog.Logger
}

// NewSaleStore creates a SaleStore over the given store.
func NewSaleStore(store domain.Store, logger *slog.Logger) *SaleStore {
	return &SaleStore{
		store:  store,
		logger: logger.With(slog.String("component", "sale_store")),
	}
}

// Insert persists a batch of priced sales for one collection and marketplace.
// Sales colliding on the idempotent key within the batch are deduplicated
// (last wins) before writing. Writes go through the store's chunked batch put;
// a chunk failure does not roll back earlier chunks, which is safe to re-run.
// live tags the records as fed by the live stream, which the polling path uses
// to recognize sales that were already aggregated on arrival.
//
// It returns false when the store write failed; callers must not aggregate a
// batch whose insert did not durably commit.
func (s *SaleStore) Insert(ctx context.Context, slug string, m domain.Marketplace, sales []domain.PricedSale, live bool) bool {
	if len(sales) == 0 {
		return true
	}

	byKey := make(map[domain.Key]domain.Item, len(sales))
	order := make([]domain.Key, 0, len(sales))
	for _, sale := range sales {
		key := domain.SaleKey(slug, m, sale.Timestamp, sale.TxnHash)
		if _, exists := byKey[key]; !exists {
			order = append(order, key)
		}
		byKey[key] = saleItem(slug, m, sale, live)
	}

	items := make([]domain.Item, 0, len(byKey))
	for _, key := range order {
		items = append(items, byKey[key])
	}

	if err := s.store.BatchPutItems(ctx, items); err != nil {
		s.logger.ErrorContext(ctx, "sale batch write failed",
			slog.String("slug", slug),
			slog.String("marketplace", string(m)),
			slog.Int("sales", len(items)),
			slog.String("error", err.Error()),
		)
		return false
	}

	s.logger.DebugContext(ctx, "sales stored",
		slog.String("slug", slug),
		slog.String("marketplace", string(m)),
		slog.Int("sales", len(items)),
	)
	return true
}

// Cursor returns the persisted poll cursor for the collection and
// marketplace, or 0 when none exists yet. The cursor deliberately trails the
// newest stored sale whenever that sale's window has not finished
// aggregating: resuming from the last stored sale instead would skip sales
// that were written durably but whose statistics never landed.
func (s *SaleStore) Cursor(ctx context.Context, slug string, m domain.Marketplace) (int64, error) {
	item, err := s.store.GetItem(ctx, domain.CursorKey(slug, m))
	if errors.Is(err, domain.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int64(item.Float("timestamp")), nil
}

// SetCursor persists the poll cursor. Callers advance it only after the
// window's sales are stored and aggregated; a crash in between re-fetches
// the window, where the idempotent sale keys and the aggregation markers
// absorb the replay.
func (s *SaleStore) SetCursor(ctx context.Context, slug string, m domain.Marketplace, ts int64) error {
	key := domain.CursorKey(slug, m)
	return s.store.PutItem(ctx, domain.Item{
		domain.AttrPK:           key.PK,
		domain.AttrSK:           key.SK,
		domain.FieldSlug:        slug,
		domain.FieldMarketplace: string(m),
		"timestamp":             float64(ts),
	})
}

// Lookup reports whether the sale is already stored and whether it arrived
// through the live feed. Store errors other than not-found are reported as
// not stored.
func (s *SaleStore) Lookup(ctx context.Context, slug string, m domain.Marketplace, ts int64, txnHash string) (stored, live bool) {
	item, err := s.store.GetItem(ctx, domain.SaleKey(slug, m, ts, txnHash))
	if err != nil {
		return false, false
	}
	return true, item.Bool(FieldLive)
}

// FieldLive tags sale records ingested through the live feed.
const FieldLive = "live"

// saleItem renders a priced sale as a stored record. The derived price fields
// are immutable once stored; they are never re-derived.
func saleItem(slug string, m domain.Marketplace, sale domain.PricedSale, live bool) domain.Item {
	key := domain.SaleKey(slug, m, sale.Timestamp, sale.TxnHash)
	return domain.Item{
		domain.AttrPK:           key.PK,
		domain.AttrSK:           key.SK,
		domain.FieldSlug:        slug,
		domain.FieldMarketplace: string(m),
		domain.FieldChain:       string(sale.Chain),
		"txnHash":               sale.TxnHash,
		"timestamp":             float64(sale.Timestamp),
		"tokenAddress":          sale.TokenAddress,
		"price":                 sale.Price,
		"priceBase":             sale.PriceBase,
		"priceUSD":              float64(sale.PriceUSD),
		"buyer":                 sale.Buyer,
		"seller":                sale.Seller,
		"excluded":              sale.Excluded,
		FieldLive:               live,
	}
}

// SaleFromItem decodes a stored sale record.
func SaleFromItem(it domain.Item) domain.PricedSale {
	return domain.PricedSale{
		RawSale: domain.RawSale{
			TxnHash:      it.String("txnHash"),
			Timestamp:    int64(it.Float("timestamp")),
			TokenAddress: it.String("tokenAddress"),
			Chain:        domain.Chain(it.String(domain.FieldChain)),
			Marketplace:  domain.Marketplace(it.String(domain.FieldMarketplace)),
			Price:        it.Float("price"),
			Buyer:        it.String("buyer"),
			Seller:       it.String("seller"),
			Excluded:     it.Bool("excluded"),
		},
		PriceBase: it.Float("priceBase"),
		PriceUSD:  int64(it.Float("priceUSD")),
	}
}
