package magiceden

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"nftstats/internal/domain"
)

func TestGetSalesFiltersAndStopsAtSince(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/degods/activities" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("offset") != "0" {
			// Paging must stop after the first entry older than since.
			fmt.Fprint(w, `[]`)
			return
		}
		fmt.Fprint(w, `[
			{"signature": "sig1", "type": "buyNow", "blockTime": 1700010000, "buyer": "b1", "seller": "s1", "price": 12.5},
			{"signature": "sig2", "type": "list",   "blockTime": 1700009000, "buyer": "",   "seller": "s2", "price": 10},
			{"signature": "",     "type": "buyNow", "blockTime": 1700008000, "buyer": "b3", "seller": "s3", "price": 9},
			{"signature": "sig4", "type": "buyNow", "blockTime": 1700007000, "buyer": "b4", "seller": "s4", "price": 8},
			{"signature": "sig5", "type": "buyNow", "blockTime": 1600000000, "buyer": "b5", "seller": "s5", "price": 7}
		]`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	sales, err := client.GetSales(context.Background(), domain.Collection{Slug: "degods"}, 1700000000)
	if err != nil {
		t.Fatalf("GetSales failed: %v", err)
	}

	// The list event and the unsigned entry are skipped; sig5 predates since.
	if len(sales) != 2 {
		t.Fatalf("expected 2 sales, got %d", len(sales))
	}
	if sales[0].TxnHash != "sig1" || sales[1].TxnHash != "sig4" {
		t.Errorf("unexpected sales %q, %q", sales[0].TxnHash, sales[1].TxnHash)
	}
	if sales[0].Price != 12.5 {
		t.Errorf("price = %v, want 12.5", sales[0].Price)
	}
	if sales[0].Chain != domain.ChainSolana || sales[0].Marketplace != domain.MarketplaceMagicEden {
		t.Errorf("chain/marketplace = %q/%q", sales[0].Chain, sales[0].Marketplace)
	}
	if sales[0].TokenAddress != domain.ChainSolana.BaseTokenAddress() {
		t.Errorf("token address = %q", sales[0].TokenAddress)
	}
}

func TestGetAllCollectionsEnrichesStats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections":
			if r.URL.Query().Get("offset") == "0" {
				fmt.Fprint(w, `[{"symbol": "degods", "name": "DeGods", "image": "https://img.example/degods.png"}]`)
			} else {
				fmt.Fprint(w, `[]`)
			}
		case "/collections/degods/stats":
			// floorPrice is lamports, volumeAll is SOL.
			fmt.Fprint(w, `{"symbol": "degods", "floorPrice": 45500000000, "volumeAll": 123456.7}`)
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	cols, err := client.GetAllCollections(context.Background())
	if err != nil {
		t.Fatalf("GetAllCollections failed: %v", err)
	}
	if len(cols) != 1 {
		t.Fatalf("expected 1 collection, got %d", len(cols))
	}

	col := cols[0]
	if col.Slug != "degods" || col.Name != "DeGods" {
		t.Errorf("identity = %q/%q", col.Slug, col.Name)
	}
	if col.Chain != domain.ChainSolana || col.Marketplace != domain.MarketplaceMagicEden {
		t.Errorf("chain/marketplace = %q/%q", col.Chain, col.Marketplace)
	}
	if col.Floor != 45.5 {
		t.Errorf("floor = %v SOL, want 45.5", col.Floor)
	}
	if col.TotalVolume != 123456.7 {
		t.Errorf("totalVolume = %v", col.TotalVolume)
	}
}

func TestDoGetMapsStatusErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusBadGateway, domain.ErrUpstream},
	}
	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
		}))
		client := NewClient(server.URL, "")
		_, err := client.GetSales(context.Background(), domain.Collection{Slug: "degods"}, 0)
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: got %v, want %v", tt.status, err, tt.want)
		}
		server.Close()
	}
}

func TestAuthorizationHeader(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key")
	if _, err := client.GetSales(context.Background(), domain.Collection{Slug: "degods"}, 0); err != nil {
		t.Fatalf("GetSales failed: %v", err)
	}
	if gotAuth != "Bearer secret-key" {
		t.Errorf("authorization header = %q", gotAuth)
	}
}
