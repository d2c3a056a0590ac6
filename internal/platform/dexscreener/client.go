// Package dexscreener is the REST client for the DexScreener pairs API,
// which provides trending pairs, newly listed pairs, and per-token lookups.
package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/gembot/internal/domain"
)

// DefaultBaseURL is the public DexScreener API root.
const DefaultBaseURL = "https://api.dexscreener.com"

// Client is the REST client for the DexScreener API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a DexScreener client. An empty baseURL selects the
// public API; timeout bounds every request.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// TrendingPairs returns the pairs DexScreener currently ranks as trending
// on the given chain.
func (c *Client) TrendingPairs(ctx context.Context, chainKey string) ([]Pair, error) {
	body, err := c.doGet(ctx, "/latest/dex/trending/"+chainKey)
	if err != nil {
		return nil, fmt.Errorf("dexscreener: trending pairs: %w", err)
	}
	return decodePairs(body)
}

// LatestPairs returns the most recently listed pairs on the given chain.
func (c *Client) LatestPairs(ctx context.Context, chainKey string) ([]Pair, error) {
	body, err := c.doGet(ctx, "/latest/dex/pairs/"+chainKey)
	if err != nil {
		return nil, fmt.Errorf("dexscreener: latest pairs: %w", err)
	}
	return decodePairs(body)
}

// TokenPairs returns every pair DexScreener indexes for a token contract,
// across all chains. Callers filter by ChainID.
func (c *Client) TokenPairs(ctx context.Context, token common.Address) ([]Pair, error) {
	body, err := c.doGet(ctx, "/latest/dex/tokens/"+token.Hex())
	if err != nil {
		return nil, fmt.Errorf("dexscreener: token pairs %s: %w", token.Hex(), err)
	}
	return decodePairs(body)
}

func decodePairs(body []byte) ([]Pair, error) {
	var resp PairsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("dexscreener: decode pairs: %w", err)
	}
	return resp.Pairs, nil
}

// doGet sends an unauthenticated GET request to the DexScreener API.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
