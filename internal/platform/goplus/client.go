// Package goplus is the REST client for the GoPlus Labs token-security API.
// It answers contract-level safety questions: honeypot status, transfer
// taxes, ownership traps, and holder concentration.
package goplus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/gembot/internal/domain"
)

// DefaultBaseURL is the public GoPlus API root.
const DefaultBaseURL = "https://api.gopluslabs.io"

// Client is the REST client for the GoPlus token-security API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a GoPlus client. An empty baseURL selects the public
// API; timeout bounds every request.
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

// response is the GoPlus envelope. code 1 means success; results are keyed
// by lowercased contract address.
type response struct {
	Code    int64                    `json:"code"`
	Message string                   `json:"message"`
	Result  map[string]TokenSecurity `json:"result"`
}

// TokenSecurity is the per-contract security report. GoPlus serves nearly
// every field as a string: "1"/"0" for booleans and decimal strings for
// numbers, so typed accessors do the parsing.
type TokenSecurity struct {
	IsHoneypot           string     `json:"is_honeypot"`
	SellTax              string     `json:"sell_tax"`
	BuyTax               string     `json:"buy_tax"`
	CannotSellAll        string     `json:"cannot_sell_all"`
	OwnerAddress         string     `json:"owner_address"`
	CanTakeBackOwnership string     `json:"can_take_back_ownership"`
	IsProxy              string     `json:"is_proxy"`
	IsOpenSource         string     `json:"is_open_source"`
	HiddenOwner          string     `json:"hidden_owner"`
	IsBlacklisted        string     `json:"is_blacklisted"`
	TradingDisabled      string     `json:"trading_disabled"`
	HolderCount          string     `json:"holder_count"`
	TotalSupply          string     `json:"total_supply"`
	Dex                  string     `json:"dex"`
	CreatorAddress       string     `json:"creator_address"`
	LPHolders            []LPHolder `json:"lp_holders"`
	TopHolders           []Holder   `json:"holders"`
}

// Holder is one entry in the top-holders list.
type Holder struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
	Percent string `json:"percent"`
}

// LPHolder is one entry in the LP-token holders list.
type LPHolder struct {
	Address string `json:"address"`
	Percent string `json:"percent"`
}

// TokenSecurity fetches the security report for one token contract.
// Returns (nil, nil) when GoPlus has no data for the contract; callers
// must treat missing data as unsafe.
func (c *Client) TokenSecurity(ctx context.Context, chainID int64, token common.Address) (*TokenSecurity, error) {
	path := fmt.Sprintf("/api/v1/token_security/%d?contract_addresses=%s",
		chainID, strings.ToLower(token.Hex()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("goplus: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("goplus: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("goplus: read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("goplus: %w: %s", domain.ErrNotFound, token.Hex())
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("goplus: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var envelope response
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("goplus: decode response: %w", err)
	}
	if envelope.Code != 1 {
		return nil, fmt.Errorf("goplus: api error code %d: %s", envelope.Code, envelope.Message)
	}

	sec, ok := envelope.Result[strings.ToLower(token.Hex())]
	if !ok {
		return nil, nil
	}
	return &sec, nil
}

// ── Typed accessors over GoPlus's stringly-typed fields ──

// Honeypot reports whether GoPlus flags the contract as a honeypot.
func (s *TokenSecurity) Honeypot() bool { return s.IsHoneypot == "1" }

// TradingHalted reports whether trading is currently disabled.
func (s *TokenSecurity) TradingHalted() bool { return s.TradingDisabled == "1" }

// OwnershipReclaimable reports whether a renounced owner can take control
// back.
func (s *TokenSecurity) OwnershipReclaimable() bool { return s.CanTakeBackOwnership == "1" }

// Proxy reports whether the contract sits behind an upgradeable proxy.
func (s *TokenSecurity) Proxy() bool { return s.IsProxy == "1" }

// BuyTaxPercent parses the buy tax, returning false when unknown.
func (s *TokenSecurity) BuyTaxPercent() (float64, bool) { return parsePercent(s.BuyTax) }

// SellTaxPercent parses the sell tax, returning false when unknown.
func (s *TokenSecurity) SellTaxPercent() (float64, bool) { return parsePercent(s.SellTax) }

// Top10HolderPercent sums the supply share of the ten largest holders.
// Returns false when GoPlus provides no usable holder data.
func (s *TokenSecurity) Top10HolderPercent() (float64, bool) {
	if len(s.TopHolders) == 0 {
		return 0, false
	}
	var sum float64
	holders := s.TopHolders
	if len(holders) > 10 {
		holders = holders[:10]
	}
	for _, h := range holders {
		if pct, err := strconv.ParseFloat(h.Percent, 64); err == nil {
			sum += pct
		}
	}
	if sum <= 0 {
		return 0, false
	}
	return sum, true
}

func parsePercent(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
