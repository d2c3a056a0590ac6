package goplus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testToken = common.HexToAddress("0x2222222222222222222222222222222222222222")

func securityServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/api/v1/token_security/8453"))
		assert.Equal(t, strings.ToLower(testToken.Hex()), r.URL.Query().Get("contract_addresses"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func TestTokenSecurityParsesStringFields(t *testing.T) {
	body := `{
		"code": 1,
		"message": "OK",
		"result": {
			"` + strings.ToLower(testToken.Hex()) + `": {
				"is_honeypot": "0",
				"trading_disabled": "0",
				"can_take_back_ownership": "1",
				"is_proxy": "0",
				"buy_tax": "0.02",
				"sell_tax": "5",
				"holder_count": "1500",
				"holders": [
					{"address": "0xaa", "amount": "1000", "percent": "6.5"},
					{"address": "0xbb", "amount": "800", "percent": "4.5"}
				]
			}
		}
	}`
	srv := securityServer(t, body)
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	sec, err := client.TokenSecurity(context.Background(), 8453, testToken)
	require.NoError(t, err)
	require.NotNil(t, sec)

	assert.False(t, sec.Honeypot())
	assert.False(t, sec.TradingHalted())
	assert.True(t, sec.OwnershipReclaimable())
	assert.False(t, sec.Proxy())

	buy, ok := sec.BuyTaxPercent()
	require.True(t, ok)
	assert.InDelta(t, 0.02, buy, 1e-9)

	sell, ok := sec.SellTaxPercent()
	require.True(t, ok)
	assert.InDelta(t, 5.0, sell, 1e-9)

	top10, ok := sec.Top10HolderPercent()
	require.True(t, ok)
	assert.InDelta(t, 11.0, top10, 1e-9)
}

func TestTokenSecurityMissingContract(t *testing.T) {
	srv := securityServer(t, `{"code": 1, "message": "OK", "result": {}}`)
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	sec, err := client.TokenSecurity(context.Background(), 8453, testToken)
	require.NoError(t, err)
	assert.Nil(t, sec)
}

func TestTokenSecurityAPIErrorCode(t *testing.T) {
	srv := securityServer(t, `{"code": 2004, "message": "rate limited", "result": {}}`)
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	_, err := client.TokenSecurity(context.Background(), 8453, testToken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2004")
}

func TestTop10HolderPercentTruncatesToTen(t *testing.T) {
	holders := make([]Holder, 12)
	for i := range holders {
		holders[i] = Holder{Percent: "1.0"}
	}
	sec := &TokenSecurity{TopHolders: holders}
	sum, ok := sec.Top10HolderPercent()
	require.True(t, ok)
	assert.InDelta(t, 10.0, sum, 1e-9)
}

func TestTop10HolderPercentNoData(t *testing.T) {
	sec := &TokenSecurity{}
	_, ok := sec.Top10HolderPercent()
	assert.False(t, ok)

	sec = &TokenSecurity{TopHolders: []Holder{{Percent: "not-a-number"}}}
	_, ok = sec.Top10HolderPercent()
	assert.False(t, ok)
}
