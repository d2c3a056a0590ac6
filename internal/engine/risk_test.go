package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/gembot/internal/domain"
	"github.com/alanyoungcy/gembot/internal/platform/goplus"
)

func cleanSecurityJSON() string {
	return `{
		"is_honeypot": "0",
		"trading_disabled": "0",
		"can_take_back_ownership": "0",
		"is_proxy": "0",
		"buy_tax": "1",
		"sell_tax": "2",
		"holders": [{"address": "0xaa", "amount": "1", "percent": "5.0"}, {"address": "0xbb", "amount": "1", "percent": "4.0"}]
	}`
}

func securityFeed(t *testing.T, perToken map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := r.URL.Query().Get("contract_addresses")
		body, ok := perToken[addr]
		if !ok {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, `{"code": 1, "message": "OK", "result": {"%s": %s}}`, addr, body)
	}))
}

func strongCandidate(token common.Address) domain.Candidate {
	holders := int64(1200)
	locked := 85.0
	renounced := 0.9
	return domain.Candidate{
		TokenAddress:         token,
		BaseToken:            wbase,
		TokenSymbol:          "GEM",
		LiquidityUSD:         500_000,
		Volume24hUSD:         900_000,
		HolderCount:          &holders,
		LockedLiquidityRatio: &locked,
		RenouncedScore:       &renounced,
	}
}

func TestEvaluateCandidateSafeToken(t *testing.T) {
	key := strings.ToLower(tokenA.Hex())
	srv := securityFeed(t, map[string]string{key: cleanSecurityJSON()})
	defer srv.Close()

	analyzer := NewRiskAnalyzer(goplus.NewClient(srv.URL, 5*time.Second), scannerConfig(), testLogger())
	cand := strongCandidate(tokenA)

	report, err := analyzer.EvaluateCandidate(context.Background(), &cand)
	require.NoError(t, err)
	// 1.0 liq + 0.8 vol + 1.2 lock + 0.7 holders + 1.0 honeypot + 0.4
	// ownership + 0.3 proxy + 0.4 tax + 0.5 top10 + 0.2 renounce.
	assert.InDelta(t, 6.5, report.Score, 1e-9)
	assert.True(t, report.Safe)
	assert.Empty(t, report.Flags)
	assert.NotEmpty(t, report.RawSecurity)
}

func TestCriticalFlagVetoesHighScore(t *testing.T) {
	honeypot := strings.Replace(cleanSecurityJSON(), `"is_honeypot": "0"`, `"is_honeypot": "1"`, 1)
	key := strings.ToLower(tokenA.Hex())
	srv := securityFeed(t, map[string]string{key: honeypot})
	defer srv.Close()

	analyzer := NewRiskAnalyzer(goplus.NewClient(srv.URL, 5*time.Second), scannerConfig(), testLogger())
	cand := strongCandidate(tokenA)

	report, err := analyzer.EvaluateCandidate(context.Background(), &cand)
	require.NoError(t, err)
	assert.Greater(t, report.Score, minSafeScore, "score alone would pass")
	assert.False(t, report.Safe, "a critical flag is an absolute veto")
	assert.True(t, report.HasCriticalFlag())
}

func TestMissingSecurityProfileIsCritical(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code": 1, "message": "OK", "result": {}}`))
	}))
	defer srv.Close()

	analyzer := NewRiskAnalyzer(goplus.NewClient(srv.URL, 5*time.Second), scannerConfig(), testLogger())
	cand := strongCandidate(tokenA)

	report, err := analyzer.EvaluateCandidate(context.Background(), &cand)
	require.NoError(t, err)
	assert.False(t, report.Safe)
	require.Len(t, report.Flags, 1)
	assert.Equal(t, domain.FlagSecurityDataMissing, report.Flags[0].Kind)
	// Market-structure score still accrues; the security side awards zero.
	assert.InDelta(t, 3.7, report.Score, 1e-9)
}

func TestExcessiveTaxCarriesValue(t *testing.T) {
	taxed := strings.Replace(cleanSecurityJSON(), `"sell_tax": "2"`, `"sell_tax": "35"`, 1)
	key := strings.ToLower(tokenA.Hex())
	srv := securityFeed(t, map[string]string{key: taxed})
	defer srv.Close()

	analyzer := NewRiskAnalyzer(goplus.NewClient(srv.URL, 5*time.Second), scannerConfig(), testLogger())
	cand := strongCandidate(tokenA)

	report, err := analyzer.EvaluateCandidate(context.Background(), &cand)
	require.NoError(t, err)
	assert.False(t, report.Safe)

	var found bool
	for _, f := range report.Flags {
		if f.Kind == domain.FlagExcessiveTax {
			found = true
			require.NotNil(t, f.Value)
			assert.InDelta(t, 35.0, *f.Value, 1e-9)
		}
	}
	assert.True(t, found)
}

func TestUnknownHolderCountPasses(t *testing.T) {
	key := strings.ToLower(tokenA.Hex())
	srv := securityFeed(t, map[string]string{key: cleanSecurityJSON()})
	defer srv.Close()

	analyzer := NewRiskAnalyzer(goplus.NewClient(srv.URL, 5*time.Second), scannerConfig(), testLogger())
	cand := strongCandidate(tokenA)
	cand.HolderCount = nil

	report, err := analyzer.EvaluateCandidate(context.Background(), &cand)
	require.NoError(t, err)
	assert.True(t, report.Safe)
	assert.InDelta(t, 6.5, report.Score, 1e-9)
}

func TestEvaluateCandidatesIsolatesFailures(t *testing.T) {
	// tokenA resolves; tokenB's lookup blows up with a 500.
	key := strings.ToLower(tokenA.Hex())
	srv := securityFeed(t, map[string]string{key: cleanSecurityJSON()})
	defer srv.Close()

	analyzer := NewRiskAnalyzer(goplus.NewClient(srv.URL, 5*time.Second), scannerConfig(), testLogger())
	candidates := []domain.Candidate{strongCandidate(tokenB), strongCandidate(tokenA)}

	safe := analyzer.EvaluateCandidates(context.Background(), candidates)
	require.Len(t, safe, 1, "one failed lookup must not drag siblings down")
	assert.Equal(t, tokenA, safe[0].Candidate.TokenAddress)
	assert.True(t, safe[0].Report.Safe)
}
