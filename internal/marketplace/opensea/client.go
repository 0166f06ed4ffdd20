// Package opensea is the OpenSea v2 REST adapter. It covers the EVM chains
// OpenSea trades on and produces raw sales and collection metadata for the
// ingest pipeline.
package opensea

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

// DefaultBaseURL is the OpenSea v2 API root.
const DefaultBaseURL = "https://api.opensea.io/api/v2"

const (
	collectionsPageSize = 100
	eventsPageSize      = 50
	// maxEventPages bounds one poll so a cold collection cannot pin the
	// runner; the next cycle continues from the advanced cursor.
	maxEventPages = 20
)

// Client is an OpenSea v2 REST adapter.
type Client struct {
	baseURL    string
	apiKey     string
	chains     []domain.Chain
	httpClient *http.Client
}

// NewClient creates an OpenSea adapter for the given chains.
func NewClient(baseURL, apiKey string, chains []domain.Chain) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		chains:  chains,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Marketplace returns the adapter's marketplace identifier.
func (c *Client) Marketplace() domain.Marketplace {
	return domain.MarketplaceOpenSea
}

// Chains returns the chains this adapter ingests.
func (c *Client) Chains() []domain.Chain {
	return c.chains
}

// GetAllCollections pages through OpenSea's collection list for every
// configured chain and enriches each collection with its stats.
func (c *Client) GetAllCollections(ctx context.Context) ([]domain.Collection, error) {
	var out []domain.Collection
	for _, chain := range c.chains {
		cols, err := c.collectionsForChain(ctx, chain)
		if err != nil {
			return nil, fmt.Errorf("opensea: collections for %s: %w", chain, err)
		}
		out = append(out, cols...)
	}
	return out, nil
}

func (c *Client) collectionsForChain(ctx context.Context, chain domain.Chain) ([]domain.Collection, error) {
	var out []domain.Collection
	next := ""

	for {
		params := url.Values{}
		params.Set("chain", string(chain))
		params.Set("limit", strconv.Itoa(collectionsPageSize))
		if next != "" {
			params.Set("next", next)
		}

		body, err := c.doGet(ctx, "/collections?"+params.Encode())
		if err != nil {
			return nil, err
		}

		var page struct {
			Collections []APICollection `json:"collections"`
			Next        string          `json:"next"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decode collections: %w", err)
		}

		for _, apiCol := range page.Collections {
			stats, err := c.collectionStats(ctx, apiCol.Collection)
			if err != nil {
				// Stats are an enrichment; the collection is still usable.
				stats = APIStats{}
			}
			out = append(out, apiCol.ToDomainCollection(chain, stats))
		}

		if page.Next == "" || len(page.Collections) < collectionsPageSize {
			return out, nil
		}
		next = page.Next
	}
}

func (c *Client) collectionStats(ctx context.Context, slug string) (APIStats, error) {
	body, err := c.doGet(ctx, fmt.Sprintf("/collections/%s/stats", url.PathEscape(slug)))
	if err != nil {
		return APIStats{}, fmt.Errorf("opensea: stats %s: %w", slug, err)
	}

	var stats APIStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return APIStats{}, fmt.Errorf("opensea: decode stats %s: %w", slug, err)
	}
	return stats, nil
}

// GetSales returns sale events for the collection at or after since (epoch
// seconds), oldest first.
func (c *Client) GetSales(ctx context.Context, col domain.Collection, since int64) ([]domain.RawSale, error) {
	var sales []domain.RawSale
	next := ""

	for page := 0; page < maxEventPages; page++ {
		params := url.Values{}
		params.Set("event_type", "sale")
		params.Set("limit", strconv.Itoa(eventsPageSize))
		if since > 0 {
			params.Set("after", strconv.FormatInt(since, 10))
		}
		if next != "" {
			params.Set("next", next)
		}

		path := fmt.Sprintf("/events/collection/%s?%s", url.PathEscape(col.Slug), params.Encode())
		body, err := c.doGet(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("opensea: sales %s: %w", col.Slug, err)
		}

		var result struct {
			AssetEvents []APIEvent `json:"asset_events"`
			Next        string     `json:"next"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("opensea: decode sales %s: %w", col.Slug, err)
		}

		for _, event := range result.AssetEvents {
			if sale, ok := event.ToDomainSale(col.Chain); ok {
				sales = append(sales, sale)
			}
		}

		if result.Next == "" || len(result.AssetEvents) < eventsPageSize {
			break
		}
		next = result.Next
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
		req.Header.Set("X-API-KEY", c.apiKey)
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
