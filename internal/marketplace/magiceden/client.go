// Package magiceden is the Magic Eden REST adapter for Solana collections.
package magiceden

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"nftstats/internal/domain"
)

// DefaultBaseURL is the Magic Eden v2 API root.
const DefaultBaseURL = "https://api-mainnet.magiceden.dev/v2"

const (
	collectionsPageSize = 200
	activitiesPageSize  = 100
	maxActivityPages    = 10
)

// Client is a Magic Eden v2 REST adapter.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a Magic Eden adapter. apiKey may be empty for the public
// tier.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Marketplace returns the adapter's marketplace identifier.
func (c *Client) Marketplace() domain.Marketplace {
	return domain.MarketplaceMagicEden
}

// Chains returns the chains this adapter ingests.
func (c *Client) Chains() []domain.Chain {
	return []domain.Chain{domain.ChainSolana}
}

// apiCollection is the Magic Eden collection envelope.
type apiCollection struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Image  string `json:"image"`
}

// apiStats is the Magic Eden collection stats envelope. floorPrice is in
// lamports; volumeAll is in SOL.
type apiStats struct {
	Symbol      string  `json:"symbol"`
	FloorPrice  float64 `json:"floorPrice"`
	ListedCount int64   `json:"listedCount"`
	VolumeAll   float64 `json:"volumeAll"`
}

// apiActivity is one Magic Eden collection activity entry.
type apiActivity struct {
	Signature string  `json:"signature"`
	Type      string  `json:"type"`
	TokenMint string  `json:"tokenMint"`
	BlockTime int64   `json:"blockTime"`
	Buyer     string  `json:"buyer"`
	Seller    string  `json:"seller"`
	Price     float64 `json:"price"` // SOL
}

const lamportsPerSol = 1_000_000_000

// GetAllCollections pages through the collection list and enriches each with
// its stats.
func (c *Client) GetAllCollections(ctx context.Context) ([]domain.Collection, error) {
	var out []domain.Collection
	offset := 0

	for {
		params := url.Values{}
		params.Set("offset", strconv.Itoa(offset))
		params.Set("limit", strconv.Itoa(collectionsPageSize))

		body, err := c.doGet(ctx, "/collections?"+params.Encode())
		if err != nil {
			return nil, fmt.Errorf("magiceden: collections at offset %d: %w", offset, err)
		}

		var page []apiCollection
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("magiceden: decode collections: %w", err)
		}
		if len(page) == 0 {
			return out, nil
		}

		for _, apiCol := range page {
			col := domain.Collection{
				Slug:        apiCol.Symbol,
				Name:        apiCol.Name,
				Chain:       domain.ChainSolana,
				Marketplace: domain.MarketplaceMagicEden,
				ImageURL:    apiCol.Image,
			}
			if stats, err := c.collectionStats(ctx, apiCol.Symbol); err == nil {
				col.Floor = stats.FloorPrice / lamportsPerSol
				col.TotalVolume = stats.VolumeAll
			}
			out = append(out, col)
		}

		if len(page) < collectionsPageSize {
			return out, nil
		}
		offset += collectionsPageSize
	}
}

func (c *Client) collectionStats(ctx context.Context, symbol string) (apiStats, error) {
	body, err := c.doGet(ctx, fmt.Sprintf("/collections/%s/stats", url.PathEscape(symbol)))
	if err != nil {
		return apiStats{}, fmt.Errorf("magiceden: stats %s: %w", symbol, err)
	}

	var stats apiStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return apiStats{}, fmt.Errorf("magiceden: decode stats %s: %w", symbol, err)
	}
	return stats, nil
}

// GetSales returns buyNow activities for the collection at or after since.
// Magic Eden serves activities newest first; paging stops at the first entry
// older than since.
func (c *Client) GetSales(ctx context.Context, col domain.Collection, since int64) ([]domain.RawSale, error) {
	var sales []domain.RawSale
	offset := 0

	for page := 0; page < maxActivityPages; page++ {
		params := url.Values{}
		params.Set("offset", strconv.Itoa(offset))
		params.Set("limit", strconv.Itoa(activitiesPageSize))

		path := fmt.Sprintf("/collections/%s/activities?%s", url.PathEscape(col.Slug), params.Encode())
		body, err := c.doGet(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("magiceden: sales %s: %w", col.Slug, err)
		}

		var activities []apiActivity
		if err := json.Unmarshal(body, &activities); err != nil {
			return nil, fmt.Errorf("magiceden: decode sales %s: %w", col.Slug, err)
		}
		if len(activities) == 0 {
			break
		}

		done := false
		for _, act := range activities {
			if act.BlockTime < since {
				done = true
				break
			}
			if act.Type != "buyNow" || act.Signature == "" {
				continue
			}
			sales = append(sales, domain.RawSale{
				TxnHash:      act.Signature,
				Timestamp:    act.BlockTime,
				TokenAddress: domain.ChainSolana.BaseTokenAddress(),
				Chain:        domain.ChainSolana,
				Marketplace:  domain.MarketplaceMagicEden,
				Price:        act.Price,
				Buyer:        act.Buyer,
				Seller:       act.Seller,
			})
		}
		if done || len(activities) < activitiesPageSize {
			break
		}
		offset += activitiesPageSize
	}

	return sales, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.ErrRateLimited
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrNotFound
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, domain.ErrUpstream)
	case resp.StatusCode != http.StatusOK:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return io.ReadAll(resp.Body)
}

// Compile-time interface check.
var _ domain.Adapter = (*Client)(nil)
