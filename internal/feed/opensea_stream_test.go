package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"nftstats/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func soldPayload(chain, hash, price string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"payload": {
			"chain": %q,
			"collection_slug": "cryptopunks",
			"event_timestamp": "2023-11-15T01:00:00Z",
			"transaction": {"hash": %q},
			"maker": {"address": "0xSellerAddress"},
			"taker": {"address": "0xBuyerAddress"},
			"payment_token": {"address": "", "decimals": 18},
			"sale_price": %q,
			"quantity": 1
		}
	}`, chain, hash, price))
}

func TestHandleItemSoldDecodesSale(t *testing.T) {
	var gotSlug string
	var gotSale domain.RawSale
	var calls int

	f := NewOpenSeaStreamFeed("", "key", func(_ context.Context, slug string, sale domain.RawSale) {
		calls++
		gotSlug, gotSale = slug, sale
	}, testLogger())

	f.handleItemSold(context.Background(), soldPayload("ethereum", "0xabc", "1500000000000000000"))

	if calls != 1 {
		t.Fatalf("expected 1 handler call, got %d", calls)
	}
	if gotSlug != "cryptopunks" {
		t.Errorf("slug = %q", gotSlug)
	}
	if gotSale.TxnHash != "0xabc" {
		t.Errorf("txn hash = %q", gotSale.TxnHash)
	}
	if gotSale.Chain != domain.ChainEthereum {
		t.Errorf("chain = %q", gotSale.Chain)
	}
	if gotSale.Marketplace != domain.MarketplaceOpenSea {
		t.Errorf("marketplace = %q", gotSale.Marketplace)
	}
	if gotSale.Price != 1.5 {
		t.Errorf("price = %v, want 1.5 after 18-decimal scaling", gotSale.Price)
	}
	if gotSale.Timestamp != 1700010000 {
		t.Errorf("timestamp = %d, want 1700010000", gotSale.Timestamp)
	}
	// Empty payment token falls back to the chain's base token.
	if gotSale.TokenAddress != domain.ChainEthereum.BaseTokenAddress() {
		t.Errorf("token address = %q", gotSale.TokenAddress)
	}
	if gotSale.Buyer != "0xBuyerAddress" || gotSale.Seller != "0xSellerAddress" {
		t.Errorf("buyer/seller = %q/%q", gotSale.Buyer, gotSale.Seller)
	}
}

func TestHandleItemSoldDropsMalformedEvents(t *testing.T) {
	var calls int
	f := NewOpenSeaStreamFeed("", "key", func(_ context.Context, _ string, _ domain.RawSale) {
		calls++
	}, testLogger())

	ctx := context.Background()
	for name, raw := range map[string]json.RawMessage{
		"unknown chain":    soldPayload("bitcoin", "0xabc", "1000"),
		"missing txn hash": soldPayload("ethereum", "", "1000"),
		"bad price":        soldPayload("ethereum", "0xabc", "one-point-five"),
		"invalid json":     json.RawMessage(`{"payload": `),
	} {
		f.handleItemSold(ctx, raw)
		if calls != 0 {
			t.Errorf("%s: handler called", name)
			calls = 0
		}
	}
}
