package dexscreener

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePairJSON = `{
	"schemaVersion": "1.0.0",
	"pairs": [
		{
			"chainId": "base",
			"dexId": "uniswap",
			"pairAddress": "0x1111111111111111111111111111111111111111",
			"baseToken": {"address": "0x2222222222222222222222222222222222222222", "name": "Gem", "symbol": "GEM"},
			"quoteToken": {"address": "0x4200000000000000000000000000000000000006", "name": "Wrapped Ether", "symbol": "WETH"},
			"priceUsd": "0.0042",
			"priceNative": "0.0000011",
			"priceChange": {"m5": 2.5, "m15": 6.1, "h1": 14.0},
			"liquidity": {"usd": 250000, "locked": 85.5},
			"volume": {"h24": 900000},
			"txns": {"m5": {"buys": 40, "sells": 12}, "m15": {"buys": 90, "sells": 40}, "h1": {"buys": 300, "sells": 150}, "h6": {"buys": 800, "sells": 500}, "h24": {"buys": 2000, "sells": 1500}},
			"pairCreatedAt": 1756300000000,
			"fdv": 4100000,
			"info": {"holders": 1200, "renounced": 0.9}
		}
	]
}`

func TestTrendingPairsDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/dex/trending/base", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(samplePairJSON))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	pairs, err := client.TrendingPairs(context.Background(), "base")
	require.NoError(t, err)
	require.Len(t, pairs, 1)

	p := pairs[0]
	assert.Equal(t, "base", p.ChainID)
	assert.Equal(t, "GEM", p.BaseToken.Symbol)
	assert.InDelta(t, 0.0042, float64(p.PriceUSD), 1e-12)
	assert.InDelta(t, 0.0000011, float64(p.PriceNative), 1e-12)
	assert.Equal(t, int64(40), p.Txns.M5.Buys)
	require.NotNil(t, p.Liquidity.Locked)
	assert.InDelta(t, 85.5, *p.Liquidity.Locked, 1e-9)
	require.NotNil(t, p.Info)
	require.NotNil(t, p.Info.Holders)
	assert.Equal(t, int64(1200), *p.Info.Holders)
}

func TestTokenPairsHitsTokenEndpoint(t *testing.T) {
	token := common.HexToAddress("0x2222222222222222222222222222222222222222")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/dex/tokens/"+token.Hex(), r.URL.Path)
		_, _ = w.Write([]byte(`{"pairs": []}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	pairs, err := client.TokenPairs(context.Background(), token)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestTrendingPairsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	_, err := client.TrendingPairs(context.Background(), "base")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
}

func TestFlexFloatAcceptsNumberStringAndNull(t *testing.T) {
	var got struct {
		A FlexFloat `json:"a"`
		B FlexFloat `json:"b"`
		C FlexFloat `json:"c"`
		D FlexFloat `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 1.5, "b": "2.25", "c": null, "d": ""}`), &got))
	assert.Equal(t, FlexFloat(1.5), got.A)
	assert.Equal(t, FlexFloat(2.25), got.B)
	assert.Equal(t, FlexFloat(0), got.C)
	assert.Equal(t, FlexFloat(0), got.D)
}
