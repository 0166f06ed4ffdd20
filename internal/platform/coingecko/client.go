// Package coingecko is the REST client for the CoinGecko API, the engine's
// historical price source. Base-token series are fetched in USD; arbitrary
// token series are fetched in the owning chain's base currency.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"nftstats/internal/domain"
)

// DefaultBaseURL is the public CoinGecko API root.
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// Client is a CoinGecko REST client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new CoinGecko client. apiKey may be empty for the
// public tier.
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

// marketChart is the response envelope of the market_chart endpoints.
// Each entry is [millisecond timestamp, price].
type marketChart struct {
	Prices [][2]float64 `json:"prices"`
}

// BaseSeries returns the full daily USD price series of the chain's base
// token.
func (c *Client) BaseSeries(ctx context.Context, chain domain.Chain) (domain.TokenPriceSeries, error) {
	path := fmt.Sprintf("/coins/%s/market_chart?vs_currency=usd&days=max&interval=daily",
		url.PathEscape(chain.CoingeckoAssetID()))

	body, err := c.doGet(ctx, path)
	if err != nil {
		return domain.TokenPriceSeries{}, fmt.Errorf("coingecko: base series %s: %w", chain, err)
	}

	var chart marketChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return domain.TokenPriceSeries{}, fmt.Errorf("coingecko: decode base series %s: %w", chain, err)
	}
	return toSeries(chart), nil
}

// TokenSeries returns the full daily price series of an arbitrary token,
// denominated in the chain's base currency.
func (c *Client) TokenSeries(ctx context.Context, chain domain.Chain, tokenAddress string) (domain.TokenPriceSeries, error) {
	path := fmt.Sprintf("/coins/%s/contract/%s/market_chart?vs_currency=%s&days=max",
		url.PathEscape(chain.CoingeckoPlatformID()),
		url.PathEscape(tokenAddress),
		url.QueryEscape(chain.BaseTokenSymbol()))

	body, err := c.doGet(ctx, path)
	if err != nil {
		return domain.TokenPriceSeries{}, fmt.Errorf("coingecko: token series %s/%s: %w", chain, tokenAddress, err)
	}

	var chart marketChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return domain.TokenPriceSeries{}, fmt.Errorf("coingecko: decode token series %s/%s: %w", chain, tokenAddress, err)
	}
	return toSeries(chart), nil
}

// CurrentPrice returns the current USD price of a CoinGecko asset ID.
func (c *Client) CurrentPrice(ctx context.Context, assetID string) (float64, error) {
	path := fmt.Sprintf("/simple/price?ids=%s&vs_currencies=usd", url.QueryEscape(assetID))

	body, err := c.doGet(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("coingecko: current price %s: %w", assetID, err)
	}

	var result map[string]map[string]float64
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("coingecko: decode current price %s: %w", assetID, err)
	}

	price, ok := result[assetID]["usd"]
	if !ok {
		return 0, fmt.Errorf("coingecko: current price %s: %w", assetID, domain.ErrNotFound)
	}
	return price, nil
}

// toSeries converts a market chart into a one-sample-per-day series. Sample
// timestamps arrive in milliseconds; they are floored to UTC midnight in
// seconds, keeping the last sample seen for each day.
func toSeries(chart marketChart) domain.TokenPriceSeries {
	byDay := make(map[int64]float64, len(chart.Prices))
	for _, p := range chart.Prices {
		day := domain.DayBucket(int64(p[0]) / 1000)
		byDay[day] = p[1]
	}

	points := make([]domain.PricePoint, 0, len(byDay))
	for day, price := range byDay {
		points = append(points, domain.PricePoint{Day: day, Price: price})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Day < points[j].Day })

	return domain.TokenPriceSeries{Points: points}
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
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

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// Compile-time interface check.
var _ domain.PriceSource = (*Client)(nil)
