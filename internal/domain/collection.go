package domain

// Collection is marketplace-reported metadata for one NFT collection,
// produced by adapters. The volume fields are the marketplace's own
// self-reported estimates; they seed the statistics views only until the
// first sale-derived update replaces them.
type Collection struct {
	Slug            string
	Name            string
	Chain           Chain
	Marketplace     Marketplace
	ContractAddress string
	ImageURL        string
	Floor           float64
	FloorUSD        int64
	MarketCap       float64
	MarketCapUSD    int64
	Owners          int64
	TotalVolume     float64
	TotalVolumeUSD  int64
}

// CollectionStats is one denormalized statistics view of a collection: the
// overview, a per-chain view, or a per-marketplace view. FromSales is
// monotonic; once true the view's totals are derived purely from stored sales
// and never replaced by marketplace estimates again.
type CollectionStats struct {
	Slug           string
	TotalVolume    float64
	TotalVolumeUSD float64
	DailyVolume    float64
	DailyVolumeUSD float64
	Floor          float64
	FloorUSD       float64
	MarketCap      float64
	MarketCapUSD   float64
	Owners         float64
	FromSales      bool
	UpdatedAt      int64
}

// StatsFromItem decodes a statistics view from a stored item.
func StatsFromItem(it Item) CollectionStats {
	return CollectionStats{
		Slug:           it.String(FieldSlug),
		TotalVolume:    it.Float(FieldTotalVolume),
		TotalVolumeUSD: it.Float(FieldTotalVolumeUSD),
		DailyVolume:    it.Float(FieldDailyVolume),
		DailyVolumeUSD: it.Float(FieldDailyVolumeUSD),
		Floor:          it.Float(FieldFloor),
		FloorUSD:       it.Float(FieldFloorUSD),
		MarketCap:      it.Float(FieldMarketCap),
		MarketCapUSD:   it.Float(FieldMarketCapUSD),
		Owners:         it.Float(FieldOwners),
		FromSales:      it.Bool(FieldFromSales),
		UpdatedAt:      int64(it.Float(FieldUpdatedAt)),
	}
}
