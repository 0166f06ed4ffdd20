package pricing

import (
	"context"
	"log/slog"
	"math"

	"nftstats/internal/domain"
)

// Converter resolves each raw sale's price into (priceBase, priceUSD) using
// the per-run SeriesCache. Sales whose price cannot be resolved carry the
// domain.PriceUnresolved sentinel in both derived fields.
type Converter struct {
	cache  *SeriesCache
	logger *slog.Logger
}

// NewConverter creates a Converter over the given cache.
func NewConverter(cache *SeriesCache, logger *slog.Logger) *Converter {
	return &Converter{
		cache:  cache,
		logger: logger.With(slog.String("component", "converter")),
	}
}

// ConvertSales prices a batch of raw sales. It first ensures every distinct
// non-base payment token in the batch has its series cached (one fetch per
// distinct address per run), then resolves each sale against the sample for
// its UTC calendar day. A fetch failure for one token leaves that token
// unpriced for the batch; it never aborts the batch.
func (cv *Converter) ConvertSales(ctx context.Context, sales []domain.RawSale) []domain.PricedSale {
	cv.ensureTokenSeries(ctx, sales)

	priced := make([]domain.PricedSale, 0, len(sales))
	for _, sale := range sales {
		priceBase, priceUSD := cv.resolve(sale)
		priced = append(priced, domain.PricedSale{
			RawSale:   sale,
			PriceBase: priceBase,
			PriceUSD:  priceUSD,
		})
	}
	return priced
}

// ensureTokenSeries fetches series for the batch's distinct non-base payment
// tokens. Base tokens are expected to have been warmed already; Ensure
// memoizes either way.
func (cv *Converter) ensureTokenSeries(ctx context.Context, sales []domain.RawSale) {
	seen := make(map[string]bool)
	for _, sale := range sales {
		if sale.Chain.IsBaseToken(sale.TokenAddress) {
			continue
		}
		key := seriesKey(sale.Chain, sale.TokenAddress)
		if seen[key] {
			continue
		}
		seen[key] = true

		if err := cv.cache.Ensure(ctx, sale.Chain, sale.TokenAddress); err != nil {
			cv.logger.WarnContext(ctx, "token series fetch failed",
				slog.String("chain", string(sale.Chain)),
				slog.String("token", sale.TokenAddress),
				slog.String("error", err.Error()),
			)
		}
	}
}

// resolve prices a single sale. Both return values are the sentinel when no
// same-day sample exists for the payment token, or, for non-base tokens, when
// the chain's base token has no same-day USD sample to convert through.
func (cv *Converter) resolve(sale domain.RawSale) (float64, int64) {
	day := domain.DayBucket(sale.Timestamp)

	if sale.Chain.IsBaseToken(sale.TokenAddress) {
		baseSeries, ok := cv.cache.Get(sale.Chain, sale.Chain.BaseTokenAddress())
		if !ok {
			return domain.PriceUnresolved, domain.PriceUnresolved
		}
		usdPrice, ok := baseSeries.PriceOn(day)
		if !ok {
			return domain.PriceUnresolved, domain.PriceUnresolved
		}
		return sale.Price, roundUSD(sale.Price * usdPrice)
	}

	tokenSeries, ok := cv.cache.Get(sale.Chain, sale.TokenAddress)
	if !ok {
		return domain.PriceUnresolved, domain.PriceUnresolved
	}
	basePrice, ok := tokenSeries.PriceOn(day)
	if !ok {
		return domain.PriceUnresolved, domain.PriceUnresolved
	}

	baseSeries, ok := cv.cache.Get(sale.Chain, sale.Chain.BaseTokenAddress())
	if !ok {
		return domain.PriceUnresolved, domain.PriceUnresolved
	}
	usdPrice, ok := baseSeries.PriceOn(day)
	if !ok {
		return domain.PriceUnresolved, domain.PriceUnresolved
	}

	priceBase := sale.Price * basePrice
	return priceBase, roundUSD(priceBase * usdPrice)
}

// roundUSD rounds half away from zero to an integer dollar amount.
func roundUSD(v float64) int64 {
	return int64(math.Round(v))
}
