// Package defillama is the REST client for the DefiLlama coins API, used
// to price base assets (WETH and friends) in USD.
package defillama

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/gembot/internal/domain"
)

// DefaultBaseURL is the public DefiLlama coins API root.
const DefaultBaseURL = "https://coins.llama.fi"

// Client is the REST client for the DefiLlama coins API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	chainKey   string
}

// NewClient creates a DefiLlama client scoped to one chain. An empty
// baseURL selects the public API; timeout bounds every request.
func NewClient(baseURL, chainKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:  baseURL,
		chainKey: chainKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type priceResponse struct {
	Coins map[string]priceEntry `json:"coins"`
}

type priceEntry struct {
	Price      float64 `json:"price"`
	Symbol     string  `json:"symbol"`
	Timestamp  int64   `json:"timestamp"`
	Confidence float64 `json:"confidence"`
}

// BasePriceUSD returns the current USD price of a token on the client's
// chain. Returns domain.ErrNoPrice when DefiLlama does not track the asset.
func (c *Client) BasePriceUSD(ctx context.Context, base common.Address) (float64, error) {
	key := fmt.Sprintf("%s:%s", c.chainKey, strings.ToLower(base.Hex()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/prices/current/"+key, nil)
	if err != nil {
		return 0, fmt.Errorf("defillama: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("defillama: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("defillama: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("defillama: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var decoded priceResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return 0, fmt.Errorf("defillama: decode response: %w", err)
	}

	entry, ok := decoded.Coins[key]
	if !ok {
		return 0, fmt.Errorf("defillama: %w: %s", domain.ErrNoPrice, key)
	}
	return entry.Price, nil
}

var _ domain.BasePricer = (*Client)(nil)
