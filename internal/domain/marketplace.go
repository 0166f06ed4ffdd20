package domain

// Marketplace identifies an NFT marketplace whose sales the engine ingests.
type Marketplace string

const (
	MarketplaceOpenSea   Marketplace = "opensea"
	MarketplaceLooksRare Marketplace = "looksrare"
	MarketplaceX2Y2      Marketplace = "x2y2"
	MarketplaceRarible   Marketplace = "rarible"
	MarketplaceMagicEden Marketplace = "magiceden"
	MarketplaceSudoswap  Marketplace = "sudoswap"
)

// AllMarketplaces returns every known marketplace identifier.
func AllMarketplaces() []Marketplace {
	return []Marketplace{
		MarketplaceOpenSea,
		MarketplaceLooksRare,
		MarketplaceX2Y2,
		MarketplaceRarible,
		MarketplaceMagicEden,
		MarketplaceSudoswap,
	}
}

// Valid reports whether m is a known marketplace.
func (m Marketplace) Valid() bool {
	switch m {
	case MarketplaceOpenSea, MarketplaceLooksRare, MarketplaceX2Y2,
		MarketplaceRarible, MarketplaceMagicEden, MarketplaceSudoswap:
		return true
	}
	return false
}
