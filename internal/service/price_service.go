// Package service composes platform clients into the higher-level
// facilities the engine consumes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/gembot/internal/domain"
)

// PriceService resolves base-asset USD prices through an optional cache
// in front of the oracle. Every position valuation needs the base price,
// so caching keeps one oracle round-trip per cycle instead of one per
// position.
type PriceService struct {
	oracle   domain.BasePricer
	cache    domain.PriceCache
	chainKey string
	maxAge   time.Duration
	logger   *slog.Logger
}

// NewPriceService creates a PriceService. cache may be nil, in which case
// every lookup goes straight to the oracle.
func NewPriceService(oracle domain.BasePricer, cache domain.PriceCache, chainKey string, maxAge time.Duration, logger *slog.Logger) *PriceService {
	return &PriceService{
		oracle:   oracle,
		cache:    cache,
		chainKey: chainKey,
		maxAge:   maxAge,
		logger:   logger.With("component", "price_service"),
	}
}

// BasePriceUSD returns the USD price of the base asset, preferring a
// fresh cached value. Cache failures never fail the lookup; a failed
// oracle lookup does, because stale prices must not drive valuations.
func (s *PriceService) BasePriceUSD(ctx context.Context, base common.Address) (float64, error) {
	key := s.assetKey(base)

	if s.cache != nil {
		price, ts, err := s.cache.GetPrice(ctx, key)
		switch {
		case err == nil && time.Since(ts) <= s.maxAge:
			return price, nil
		case err != nil && err != domain.ErrNotFound:
			s.logger.Warn("price cache read failed", "asset", key, "error", err)
		}
	}

	price, err := s.oracle.BasePriceUSD(ctx, base)
	if err != nil {
		return 0, fmt.Errorf("price_service: oracle lookup %s: %w", key, err)
	}

	if s.cache != nil {
		if err := s.cache.SetPrice(ctx, key, price, time.Now().UTC()); err != nil {
			s.logger.Warn("price cache write failed", "asset", key, "error", err)
		}
	}
	return price, nil
}

func (s *PriceService) assetKey(base common.Address) string {
	return s.chainKey + ":" + strings.ToLower(base.Hex())
}

// Compile-time interface check.
var _ domain.BasePricer = (*PriceService)(nil)
