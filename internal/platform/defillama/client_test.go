package defillama

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/gembot/internal/domain"
)

var weth = common.HexToAddress("0x4200000000000000000000000000000000000006")

func TestBasePriceUSD(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prices/current/base:0x4200000000000000000000000000000000000006", r.URL.Path)
		_, _ = w.Write([]byte(`{"coins": {"base:0x4200000000000000000000000000000000000006": {"price": 3150.42, "symbol": "WETH", "confidence": 0.99}}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "base", 5*time.Second)
	price, err := client.BasePriceUSD(context.Background(), weth)
	require.NoError(t, err)
	assert.InDelta(t, 3150.42, price, 1e-9)
}

func TestBasePriceUSDMissingAsset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"coins": {}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "base", 5*time.Second)
	_, err := client.BasePriceUSD(context.Background(), weth)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoPrice)
}
