package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Chain identifies a blockchain whose marketplaces the engine ingests.
type Chain string

const (
	ChainEthereum  Chain = "ethereum"
	ChainPolygon   Chain = "polygon"
	ChainSolana    Chain = "solana"
	ChainAvalanche Chain = "avalanche"
)

// AllChains returns every supported chain. Adding a chain means adding it
// here and to every mapping table below; Valid and the table lookups keep the
// set closed.
func AllChains() []Chain {
	return []Chain{ChainEthereum, ChainPolygon, ChainSolana, ChainAvalanche}
}

// Valid reports whether c is a known chain.
func (c Chain) Valid() bool {
	switch c {
	case ChainEthereum, ChainPolygon, ChainSolana, ChainAvalanche:
		return true
	}
	return false
}

// evmZeroAddress is the conventional native-asset address on EVM chains.
const evmZeroAddress = "0x0000000000000000000000000000000000000000"

// wrappedSolAddress is the wrapped-SOL mint, used as Solana's base token.
const wrappedSolAddress = "So11111111111111111111111111111111111111112"

var baseTokenAddresses = map[Chain]string{
	ChainEthereum:  evmZeroAddress,
	ChainPolygon:   evmZeroAddress,
	ChainSolana:    wrappedSolAddress,
	ChainAvalanche: evmZeroAddress,
}

var baseTokenSymbols = map[Chain]string{
	ChainEthereum:  "eth",
	ChainPolygon:   "matic",
	ChainSolana:    "sol",
	ChainAvalanche: "avax",
}

// coingeckoAssetIDs maps a chain to the CoinGecko coin ID of its base token.
var coingeckoAssetIDs = map[Chain]string{
	ChainEthereum:  "ethereum",
	ChainPolygon:   "matic-network",
	ChainSolana:    "solana",
	ChainAvalanche: "avalanche-2",
}

// coingeckoPlatformIDs maps a chain to the CoinGecko asset-platform ID used
// for contract-address price lookups.
var coingeckoPlatformIDs = map[Chain]string{
	ChainEthereum:  "ethereum",
	ChainPolygon:   "polygon-pos",
	ChainSolana:    "solana",
	ChainAvalanche: "avalanche",
}

// BaseTokenAddress returns the canonical native-asset payment token address
// for the chain. Every non-base-token price conversion is expressed relative
// to this token.
func (c Chain) BaseTokenAddress() string {
	return baseTokenAddresses[c]
}

// BaseTokenSymbol returns the base token's ticker in lower case (the
// vs_currency used for contract price lookups).
func (c Chain) BaseTokenSymbol() string {
	return baseTokenSymbols[c]
}

// CoingeckoAssetID returns the CoinGecko coin ID of the chain's base token.
func (c Chain) CoingeckoAssetID() string {
	return coingeckoAssetIDs[c]
}

// CoingeckoPlatformID returns the CoinGecko asset-platform ID for
// contract-address lookups on this chain.
func (c Chain) CoingeckoPlatformID() string {
	return coingeckoPlatformIDs[c]
}

// IsBaseToken reports whether addr is the chain's base token after
// normalization.
func (c Chain) IsBaseToken(addr string) bool {
	return c.NormalizeAddress(addr) == c.NormalizeAddress(c.BaseTokenAddress())
}

// NormalizeAddress canonicalizes a token or wallet address for use in cache
// and store keys. EVM addresses arrive from marketplace APIs in mixed case;
// they are parsed and lowered so the same address always yields the same key.
// Non-EVM addresses (Solana base58) are case sensitive and pass through.
func (c Chain) NormalizeAddress(addr string) string {
	if c == ChainSolana {
		return strings.TrimSpace(addr)
	}
	addr = strings.TrimSpace(addr)
	if common.IsHexAddress(addr) {
		return strings.ToLower(common.HexToAddress(addr).Hex())
	}
	return strings.ToLower(addr)
}
