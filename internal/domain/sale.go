package domain

// PriceUnresolved marks a sale whose price could not be resolved against the
// historical series for its day. It is distinct from a legitimately
// zero-priced sale.
const PriceUnresolved = -1

// SecondsPerDay is the size of one aggregation day bucket. All timestamps in
// the engine are epoch seconds; adapters normalize millisecond feeds at the
// boundary.
const SecondsPerDay int64 = 86_400

// DayBucket floors ts (epoch seconds) to UTC midnight.
func DayBucket(ts int64) int64 {
	return ts - ts%SecondsPerDay
}

// RawSale is a trade event as emitted by a marketplace adapter. Immutable
// once emitted; Price is denominated in the payment token's native unit.
type RawSale struct {
	TxnHash      string
	Timestamp    int64 // epoch seconds
	TokenAddress string
	Chain        Chain
	Marketplace  Marketplace
	Price        float64
	Buyer        string
	Seller       string
	// Excluded flags wash trades and other sales that must be stored but
	// never counted toward volume.
	Excluded bool
}

// PricedSale is a RawSale with its price resolved into the chain's base
// currency and USD. Both derived fields hold PriceUnresolved when no matching
// historical price point exists for the sale's day; they are never re-derived
// after storage.
type PricedSale struct {
	RawSale
	PriceBase float64
	PriceUSD  int64
}

// CountsTowardVolume reports whether the sale contributes to volume
// statistics. Sentinel- and zero-priced sales remain stored as historical
// records but are excluded here.
func (s PricedSale) CountsTowardVolume() bool {
	return !s.Excluded && s.Price > 0 && s.PriceBase > 0 && s.PriceUSD > 0
}

// DailyVolumeDelta is the incremental contribution of one aggregation batch
// to a single calendar day.
type DailyVolumeDelta struct {
	Day       int64
	Volume    float64
	VolumeUSD int64
}
