package opensea

import (
	"strconv"

	"nftstats/internal/domain"
)

// APICollection is the OpenSea v2 collection envelope.
type APICollection struct {
	Collection string `json:"collection"`
	Name       string `json:"name"`
	ImageURL   string `json:"image_url"`
	Chain      string `json:"chain"`
	Contracts  []struct {
		Address string `json:"address"`
		Chain   string `json:"chain"`
	} `json:"contracts"`
}

// APIStats is the OpenSea v2 collection stats envelope. Volume and floor are
// denominated in the chain's base currency; OpenSea reports them as its own
// aggregate estimate.
type APIStats struct {
	Total struct {
		Volume     float64 `json:"volume"`
		FloorPrice float64 `json:"floor_price"`
		MarketCap  float64 `json:"market_cap"`
		NumOwners  int64   `json:"num_owners"`
	} `json:"total"`
}

// APIEvent is one OpenSea v2 sale event.
type APIEvent struct {
	EventType      string `json:"event_type"`
	EventTimestamp int64  `json:"event_timestamp"`
	Transaction    string `json:"transaction"`
	Buyer          string `json:"buyer"`
	Seller         string `json:"seller"`
	Payment        struct {
		Quantity     string `json:"quantity"`
		TokenAddress string `json:"token_address"`
		Decimals     int    `json:"decimals"`
		Symbol       string `json:"symbol"`
	} `json:"payment"`
}

// ToDomainCollection converts an API collection plus its stats to the domain
// shape for the given chain.
func (c APICollection) ToDomainCollection(chain domain.Chain, stats APIStats) domain.Collection {
	contract := ""
	for _, ct := range c.Contracts {
		if ct.Chain == string(chain) {
			contract = chain.NormalizeAddress(ct.Address)
			break
		}
	}

	return domain.Collection{
		Slug:            c.Collection,
		Name:            c.Name,
		Chain:           chain,
		Marketplace:     domain.MarketplaceOpenSea,
		ContractAddress: contract,
		ImageURL:        c.ImageURL,
		Floor:           stats.Total.FloorPrice,
		MarketCap:       stats.Total.MarketCap,
		Owners:          stats.Total.NumOwners,
		TotalVolume:     stats.Total.Volume,
	}
}

// ToDomainSale converts a sale event to a RawSale, or ok=false for events
// that are not usable sales (zero price strings, missing transaction).
func (e APIEvent) ToDomainSale(chain domain.Chain) (domain.RawSale, bool) {
	if e.EventType != "sale" || e.Transaction == "" {
		return domain.RawSale{}, false
	}

	quantity, err := strconv.ParseFloat(e.Payment.Quantity, 64)
	if err != nil {
		return domain.RawSale{}, false
	}
	price := quantity
	for i := 0; i < e.Payment.Decimals; i++ {
		price /= 10
	}

	tokenAddress := e.Payment.TokenAddress
	if tokenAddress == "" {
		tokenAddress = chain.BaseTokenAddress()
	}

	return domain.RawSale{
		TxnHash:      e.Transaction,
		Timestamp:    e.EventTimestamp,
		TokenAddress: chain.NormalizeAddress(tokenAddress),
		Chain:        chain,
		Marketplace:  domain.MarketplaceOpenSea,
		Price:        price,
		Buyer:        e.Buyer,
		Seller:       e.Seller,
	}, true
}
