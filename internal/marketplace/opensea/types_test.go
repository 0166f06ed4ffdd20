package opensea

import (
	"testing"

	"nftstats/internal/domain"
)

func saleEvent() APIEvent {
	ev := APIEvent{
		EventType:      "sale",
		EventTimestamp: 1700010000,
		Transaction:    "0xabc",
		Buyer:          "0xBuyer",
		Seller:         "0xSeller",
	}
	ev.Payment.Quantity = "1500000000000000000"
	ev.Payment.Decimals = 18
	ev.Payment.Symbol = "ETH"
	return ev
}

func TestToDomainSale(t *testing.T) {
	sale, ok := saleEvent().ToDomainSale(domain.ChainEthereum)
	if !ok {
		t.Fatal("expected usable sale")
	}
	if sale.Price != 1.5 {
		t.Errorf("price = %v, want 1.5 after 18-decimal scaling", sale.Price)
	}
	if sale.TxnHash != "0xabc" || sale.Timestamp != 1700010000 {
		t.Errorf("sale identity = %q/%d", sale.TxnHash, sale.Timestamp)
	}
	// Empty payment token means native currency.
	if sale.TokenAddress != domain.ChainEthereum.BaseTokenAddress() {
		t.Errorf("token address = %q", sale.TokenAddress)
	}
	if sale.Marketplace != domain.MarketplaceOpenSea || sale.Chain != domain.ChainEthereum {
		t.Errorf("marketplace/chain = %q/%q", sale.Marketplace, sale.Chain)
	}
}

func TestToDomainSaleRejectsUnusableEvents(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*APIEvent)
	}{
		{"transfer event", func(e *APIEvent) { e.EventType = "transfer" }},
		{"missing transaction", func(e *APIEvent) { e.Transaction = "" }},
		{"unparseable quantity", func(e *APIEvent) { e.Payment.Quantity = "n/a" }},
	}
	for _, tt := range tests {
		ev := saleEvent()
		tt.mutate(&ev)
		if _, ok := ev.ToDomainSale(domain.ChainEthereum); ok {
			t.Errorf("%s: expected event to be rejected", tt.name)
		}
	}
}

func TestToDomainCollection(t *testing.T) {
	col := APICollection{
		Collection: "cryptopunks",
		Name:       "CryptoPunks",
		ImageURL:   "https://img.example/punks.png",
		Chain:      "ethereum",
		Contracts: []struct {
			Address string `json:"address"`
			Chain   string `json:"chain"`
		}{
			{Address: "0xB47E3CD837DDF8E4C57F05D70AB865DE6E193BBB", Chain: "ethereum"},
			{Address: "0xother", Chain: "polygon"},
		},
	}
	var stats APIStats
	stats.Total.Volume = 1234.5
	stats.Total.FloorPrice = 45.5
	stats.Total.NumOwners = 3500

	got := col.ToDomainCollection(domain.ChainEthereum, stats)
	if got.Slug != "cryptopunks" || got.Name != "CryptoPunks" {
		t.Errorf("identity = %q/%q", got.Slug, got.Name)
	}
	// The matching chain's contract is picked and normalized.
	if got.ContractAddress != "0xb47e3cd837ddf8e4c57f05d70ab865de6e193bbb" {
		t.Errorf("contract = %q", got.ContractAddress)
	}
	if got.TotalVolume != 1234.5 || got.Floor != 45.5 || got.Owners != 3500 {
		t.Errorf("stats = %v/%v/%d", got.TotalVolume, got.Floor, got.Owners)
	}
}
