package domain

import "testing"

func TestSaleKey(t *testing.T) {
	key := SaleKey("cryptopunks", MarketplaceOpenSea, 1700000000, "0xabc")

	if key.PK != "sale#cryptopunks#opensea" {
		t.Errorf("unexpected partition key %q", key.PK)
	}
	if key.SK != "1700000000#txnHash#0xabc" {
		t.Errorf("unexpected sort key %q", key.SK)
	}

	// Same trade always yields the same key.
	if again := SaleKey("cryptopunks", MarketplaceOpenSea, 1700000000, "0xabc"); again != key {
		t.Errorf("expected deterministic key, got %v and %v", key, again)
	}
}

func TestCollectionKeys(t *testing.T) {
	if got := CollectionPK("degods"); got != "collection#degods" {
		t.Errorf("CollectionPK = %q", got)
	}
	if got := ChainSK(ChainSolana); got != "chain#solana" {
		t.Errorf("ChainSK = %q", got)
	}
	if got := MarketplaceSK(MarketplaceMagicEden); got != "marketplace#magiceden" {
		t.Errorf("MarketplaceSK = %q", got)
	}
	if got := CollectionStatsPK("degods"); got != "collectionStats#degods" {
		t.Errorf("CollectionStatsPK = %q", got)
	}
	if got := DaySK(1700006400); got != "1700006400" {
		t.Errorf("DaySK = %q", got)
	}
}

func TestCursorKey(t *testing.T) {
	key := CursorKey("cryptopunks", MarketplaceOpenSea)
	if key.PK != "cursor#cryptopunks#opensea" {
		t.Errorf("unexpected partition key %q", key.PK)
	}
	if key.SK != "cursor" {
		t.Errorf("unexpected sort key %q", key.SK)
	}
}

func TestAggMarkerKey(t *testing.T) {
	key := AggMarkerKey("degods", MarketplaceMagicEden, "deadbeef")
	if key.PK != "aggregated#degods#magiceden" {
		t.Errorf("unexpected partition key %q", key.PK)
	}
	if key.SK != "deadbeef" {
		t.Errorf("unexpected sort key %q", key.SK)
	}
}

func TestCounterFieldNames(t *testing.T) {
	if got := ChainVolumeField(ChainEthereum); got != "chain_ethereum_volume" {
		t.Errorf("ChainVolumeField = %q", got)
	}
	if got := ChainVolumeUSDField(ChainEthereum); got != "chain_ethereum_volumeUSD" {
		t.Errorf("ChainVolumeUSDField = %q", got)
	}
	if got := MarketplaceVolumeField(MarketplaceOpenSea); got != "marketplace_opensea_volume" {
		t.Errorf("MarketplaceVolumeField = %q", got)
	}
	if got := MarketplaceVolumeUSDField(MarketplaceOpenSea); got != "marketplace_opensea_volumeUSD" {
		t.Errorf("MarketplaceVolumeUSDField = %q", got)
	}
}

func TestItemAccessors(t *testing.T) {
	it := Item{
		AttrPK:    "collection#x",
		AttrSK:    SKOverview,
		"volume":  12.5,
		"count":   int64(3),
		"flag":    true,
		"sketch":  []byte{0x01, 0x02},
		"missing": nil,
	}

	if got := it.Key(); got.PK != "collection#x" || got.SK != SKOverview {
		t.Errorf("unexpected key %v", got)
	}
	if got := it.Float("volume"); got != 12.5 {
		t.Errorf("Float(volume) = %v", got)
	}
	if got := it.Float("count"); got != 3 {
		t.Errorf("Float(count) = %v", got)
	}
	if got := it.Float("absent"); got != 0 {
		t.Errorf("Float(absent) = %v, want 0", got)
	}
	if !it.Bool("flag") {
		t.Error("Bool(flag) = false, want true")
	}
	if it.Bool("volume") {
		t.Error("Bool on a number should be false")
	}
	if got := it.Bytes("sketch"); len(got) != 2 {
		t.Errorf("Bytes(sketch) = %v", got)
	}
	if got := it.String("absent"); got != "" {
		t.Errorf("String(absent) = %q, want empty", got)
	}
}
