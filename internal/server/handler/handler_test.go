package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/gembot/internal/domain"
)

type stubChecker struct {
	status string
	err    error
}

func (s *stubChecker) HealthCheck(context.Context) (string, error) {
	return s.status, s.err
}

type stubBook struct {
	snap domain.BookSnapshot
}

func (s *stubBook) Snapshot() domain.BookSnapshot { return s.snap }

func TestHealthCheckOK(t *testing.T) {
	h := NewHealthHandler(&stubChecker{status: "ok:123"})

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok:123", body["status"])
}

func TestHealthCheckDegraded(t *testing.T) {
	h := NewHealthHandler(&stubChecker{err: errors.New("node unreachable")})

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	assert.Contains(t, body["error"], "node unreachable")
}

func TestGetPortfolio(t *testing.T) {
	book := &stubBook{snap: domain.BookSnapshot{
		TotalPositions: 2,
		PendingEntries: 1,
		TotalValueUSD:  1800,
	}}
	h := NewPortfolioHandler(book)

	rec := httptest.NewRecorder()
	h.GetPortfolio(rec, httptest.NewRequest(http.MethodGet, "/api/portfolio", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var snap domain.BookSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 2, snap.TotalPositions)
	assert.Equal(t, 1, snap.PendingEntries)
	assert.InDelta(t, 1800.0, snap.TotalValueUSD, 1e-9)
}
