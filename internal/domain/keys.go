package domain

import (
	"fmt"
	"strconv"
)

// Partition and sort keys are composite strings, "<entityType>#<id>" for the
// partition and a type-qualified value for the sort key.
const (
	AttrPK = "pk"
	AttrSK = "sk"

	// SKOverview is the sort key of a collection's overview statistics view.
	SKOverview = "overview"

	// GlobalStatsPK is the partition holding the global per-day buckets.
	GlobalStatsPK = "globalStats"
)

// Statistics field names shared by every view and bucket.
const (
	FieldSlug           = "slug"
	FieldName           = "name"
	FieldChain          = "chain"
	FieldMarketplace    = "marketplace"
	FieldContract       = "contractAddress"
	FieldImage          = "image"
	FieldVolume         = "volume"
	FieldVolumeUSD      = "volumeUSD"
	FieldTotalVolume    = "totalVolume"
	FieldTotalVolumeUSD = "totalVolumeUSD"
	FieldDailyVolume    = "dailyVolume"
	FieldDailyVolumeUSD = "dailyVolumeUSD"
	FieldFloor          = "floor"
	FieldFloorUSD       = "floorUSD"
	FieldMarketCap      = "marketCap"
	FieldMarketCapUSD   = "marketCapUSD"
	FieldOwners         = "owners"
	FieldUniqueBuyers   = "uniqueBuyers"
	FieldBuyersSketch   = "buyersSketch"
	FieldFromSales      = "fromSales"
	FieldUpdatedAt      = "updatedAt"

	// FieldExpiresAt is the epoch-seconds attribute DynamoDB table TTL is
	// configured on; items carrying it are pruned after that time.
	FieldExpiresAt = "expiresAt"
)

// Key addresses one stored item.
type Key struct {
	PK string
	SK string
}

// SalePK returns the partition key for all sales of one collection on one
// marketplace.
func SalePK(slug string, m Marketplace) string {
	return "sale#" + slug + "#" + string(m)
}

// SaleSK returns the sort key of a single sale. Timestamp ordering first
// makes range scans by time natural; the transaction hash makes the key
// deterministic so re-insertion of the same trade is an overwrite.
func SaleSK(ts int64, txnHash string) string {
	return fmt.Sprintf("%d#txnHash#%s", ts, txnHash)
}

// SaleKey returns the idempotent key of one sale record.
func SaleKey(slug string, m Marketplace, ts int64, txnHash string) Key {
	return Key{PK: SalePK(slug, m), SK: SaleSK(ts, txnHash)}
}

// CursorKey returns the key of the persisted poll cursor for one collection
// and marketplace. The cursor only advances after a window's sales are both
// stored and aggregated, so it is safe to resume from.
func CursorKey(slug string, m Marketplace) Key {
	return Key{PK: "cursor#" + slug + "#" + string(m), SK: "cursor"}
}

// CollectionPK returns the partition key of a collection's statistics views.
func CollectionPK(slug string) string {
	return "collection#" + slug
}

// ChainSK returns the sort key of a collection's per-chain view.
func ChainSK(c Chain) string {
	return "chain#" + string(c)
}

// MarketplaceSK returns the sort key of a collection's per-marketplace view.
func MarketplaceSK(m Marketplace) string {
	return "marketplace#" + string(m)
}

// CollectionStatsPK returns the partition key of a collection's per-day time
// series buckets.
func CollectionStatsPK(slug string) string {
	return "collectionStats#" + slug
}

// DaySK returns the sort key of one day bucket.
func DaySK(day int64) string {
	return strconv.FormatInt(day, 10)
}

// AggMarkerKey returns the key of the aggregation marker written alongside a
// batch's deltas. Its presence means the batch has already been folded into
// the projections.
func AggMarkerKey(slug string, m Marketplace, digest string) Key {
	return Key{PK: "aggregated#" + slug + "#" + string(m), SK: digest}
}

// ChainVolumeField returns the per-chain volume counter name inside a bucket.
func ChainVolumeField(c Chain) string {
	return "chain_" + string(c) + "_volume"
}

// ChainVolumeUSDField returns the per-chain USD volume counter name.
func ChainVolumeUSDField(c Chain) string {
	return "chain_" + string(c) + "_volumeUSD"
}

// MarketplaceVolumeField returns the per-marketplace volume counter name.
func MarketplaceVolumeField(m Marketplace) string {
	return "marketplace_" + string(m) + "_volume"
}

// MarketplaceVolumeUSDField returns the per-marketplace USD volume counter name.
func MarketplaceVolumeUSDField(m Marketplace) string {
	return "marketplace_" + string(m) + "_volumeUSD"
}
