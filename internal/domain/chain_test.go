package domain

import "testing"

func TestChainValid(t *testing.T) {
	for _, c := range AllChains() {
		if !c.Valid() {
			t.Errorf("expected %q to be valid", c)
		}
	}
	if Chain("bitcoin").Valid() {
		t.Error("expected unknown chain to be invalid")
	}
	if Chain("").Valid() {
		t.Error("expected empty chain to be invalid")
	}
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name  string
		chain Chain
		addr  string
		want  string
	}{
		{
			"evm checksum address lowered",
			ChainEthereum,
			"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
			"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2",
		},
		{
			"evm address with whitespace",
			ChainPolygon,
			"  0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2 ",
			"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2",
		},
		{
			"non-hex evm input lowered as-is",
			ChainEthereum,
			"Native",
			"native",
		},
		{
			"solana base58 is case sensitive",
			ChainSolana,
			"So11111111111111111111111111111111111111112",
			"So11111111111111111111111111111111111111112",
		},
	}
	for _, tt := range tests {
		if got := tt.chain.NormalizeAddress(tt.addr); got != tt.want {
			t.Errorf("%s: NormalizeAddress(%q) = %q, want %q", tt.name, tt.addr, got, tt.want)
		}
	}
}

func TestIsBaseToken(t *testing.T) {
	if !ChainEthereum.IsBaseToken("0x0000000000000000000000000000000000000000") {
		t.Error("zero address should be ethereum's base token")
	}
	if !ChainSolana.IsBaseToken("So11111111111111111111111111111111111111112") {
		t.Error("wrapped SOL should be solana's base token")
	}
	if ChainEthereum.IsBaseToken("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2") {
		t.Error("WETH is not the base token")
	}
}

func TestChainMappingsCoverAllChains(t *testing.T) {
	for _, c := range AllChains() {
		if c.BaseTokenAddress() == "" {
			t.Errorf("%q has no base token address", c)
		}
		if c.BaseTokenSymbol() == "" {
			t.Errorf("%q has no base token symbol", c)
		}
		if c.CoingeckoAssetID() == "" {
			t.Errorf("%q has no coingecko asset id", c)
		}
		if c.CoingeckoPlatformID() == "" {
			t.Errorf("%q has no coingecko platform id", c)
		}
	}
}
