// Package engine implements the trading core: candidate discovery and
// scoring, risk evaluation, the position book, and the decision loop that
// ties them to the chain executor.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/gembot/internal/config"
	"github.com/alanyoungcy/gembot/internal/domain"
	"github.com/alanyoungcy/gembot/internal/platform/dexscreener"
)

// maxCandidates bounds the per-cycle candidate list after confidence
// ranking.
const maxCandidates = 12

// Momentum test parameters.
const (
	momentumThreshold = 8.0
	minBuyPressure    = 0.55
	minMomentumWindow = 5 // minutes
	weightChangeM5    = 0.40
	weightChangeM15   = 0.35
	weightChangeH1    = 0.25
)

// Scanner discovers candidate pairs from the market-data feed and scores
// them for confidence and momentum.
type Scanner struct {
	feed   *dexscreener.Client
	cfg    *config.Config
	logger *slog.Logger

	blacklistedTokens  map[common.Address]bool
	blacklistedSymbols map[string]bool
}

// NewScanner creates a scanner over the given feed client.
func NewScanner(feed *dexscreener.Client, cfg *config.Config, logger *slog.Logger) *Scanner {
	symbols := make(map[string]bool, len(cfg.Strategy.BlacklistedSymbols))
	for _, s := range cfg.Strategy.BlacklistedSymbols {
		symbols[strings.ToUpper(s)] = true
	}
	return &Scanner{
		feed:               feed,
		cfg:                cfg,
		logger:             logger.With("component", "scanner"),
		blacklistedTokens:  cfg.BlacklistedTokens(),
		blacklistedSymbols: symbols,
	}
}

// DiscoverCandidates unions the trending and latest feeds for the
// configured chain, filters by liquidity, volume, age, and blacklist, and
// returns at most maxCandidates pairs sorted by descending confidence.
// Both feeds failing is a discovery error; one failing is tolerated.
func (s *Scanner) DiscoverCandidates(ctx context.Context) ([]domain.Candidate, error) {
	chainKey := s.cfg.ChainKey()

	trending, trendErr := s.feed.TrendingPairs(ctx, chainKey)
	latest, latestErr := s.feed.LatestPairs(ctx, chainKey)
	if trendErr != nil && latestErr != nil {
		return nil, fmt.Errorf("engine: %w: trending: %v, latest: %v",
			domain.ErrAllFeedsDown, trendErr, latestErr)
	}
	if trendErr != nil {
		s.logger.Warn("trending feed unavailable, using latest only", "error", trendErr)
	}
	if latestErr != nil {
		s.logger.Warn("latest feed unavailable, using trending only", "error", latestErr)
	}

	pairs := append(trending, latest...)

	candidates := make([]domain.Candidate, 0, len(pairs))
	now := time.Now().UTC()
	minAge := time.Duration(s.cfg.Strategy.MinAgeMinutes) * time.Minute
	for i := range pairs {
		cand, ok := s.toCandidate(&pairs[i])
		if !ok {
			continue
		}
		if cand.LiquidityUSD < s.cfg.Strategy.MinLiquidityUSD {
			continue
		}
		if cand.Volume24hUSD < s.cfg.Strategy.MinDailyVolumeUSD {
			continue
		}
		if now.Sub(cand.PairCreatedAt) < minAge {
			continue
		}
		candidates = append(candidates, cand)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	return candidates, nil
}

// TokenCandidates returns the candidates for one specific token contract,
// restricted to the configured chain. Used by evaluate mode, which must
// inspect a token regardless of discovery filters.
func (s *Scanner) TokenCandidates(ctx context.Context, token common.Address) ([]domain.Candidate, error) {
	pairs, err := s.feed.TokenPairs(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("engine: token candidates: %w", err)
	}

	chainKey := s.cfg.ChainKey()
	candidates := make([]domain.Candidate, 0, len(pairs))
	for i := range pairs {
		if pairs[i].ChainID != chainKey {
			continue
		}
		if cand, ok := s.toCandidate(&pairs[i]); ok {
			candidates = append(candidates, cand)
		}
	}
	return candidates, nil
}

// HasMomentum applies the weighted price-change test. True iff the
// weighted sum of the 5m/15m/1h changes reaches the threshold, the buy
// pressure holds up, and the configured momentum window is long enough to
// be meaningful.
func (s *Scanner) HasMomentum(cand *domain.Candidate) bool {
	score := cand.PriceChangeM5*weightChangeM5 +
		cand.PriceChangeM15*weightChangeM15 +
		cand.PriceChangeH1*weightChangeH1
	return score >= momentumThreshold &&
		cand.BuyPressureRatio >= minBuyPressure &&
		s.cfg.Strategy.MomentumWindowMinutes >= minMomentumWindow
}

// toCandidate converts one feed pair into a Candidate, applying the
// blacklist. Returns false for blacklisted or unparseable pairs.
func (s *Scanner) toCandidate(pair *dexscreener.Pair) (domain.Candidate, bool) {
	if !common.IsHexAddress(pair.BaseToken.Address) ||
		!common.IsHexAddress(pair.QuoteToken.Address) ||
		!common.IsHexAddress(pair.PairAddress) {
		return domain.Candidate{}, false
	}

	token := common.HexToAddress(pair.BaseToken.Address)
	if s.blacklistedTokens[token] {
		return domain.Candidate{}, false
	}
	if s.blacklistedSymbols[strings.ToUpper(pair.BaseToken.Symbol)] {
		return domain.Candidate{}, false
	}

	createdAt := time.Now().UTC().Add(-time.Hour)
	if pair.PairCreatedAt > 0 {
		createdAt = time.UnixMilli(pair.PairCreatedAt).UTC()
	}

	var usdPerBase float64
	if pair.PriceNative > 0 && pair.PriceUSD > 0 {
		usdPerBase = float64(pair.PriceUSD) / float64(pair.PriceNative)
	}

	cand := domain.Candidate{
		PairAddress:          common.HexToAddress(pair.PairAddress),
		TokenAddress:         token,
		BaseToken:            common.HexToAddress(pair.QuoteToken.Address),
		TokenSymbol:          pair.BaseToken.Symbol,
		TokenName:            pair.BaseToken.Name,
		PriceUSD:             float64(pair.PriceUSD),
		LiquidityUSD:         pair.Liquidity.USD,
		Volume24hUSD:         pair.Volume.H24,
		FDVUSD:               pair.FDV,
		PriceChangeM5:        pair.PriceChange.M5,
		PriceChangeM15:       pair.PriceChange.M15,
		PriceChangeH1:        pair.PriceChange.H1,
		BuyPressureRatio:     buyPressure(pair.Txns.M5),
		LockedLiquidityRatio: pair.Liquidity.Locked,
		PairCreatedAt:        createdAt,
		DexID:                pair.DexID,
		USDPerBase:           usdPerBase,
	}
	if pair.Info != nil {
		cand.HolderCount = pair.Info.Holders
		cand.RenouncedScore = pair.Info.Renounced
	}
	cand.Confidence = confidenceScore(cand.LiquidityUSD, cand.Volume24hUSD, cand.PriceChangeH1, lockedOrZero(cand.LockedLiquidityRatio))
	cand.SafetyFlags = advisoryFlags(&cand)
	return cand, true
}

// confidenceScore weighs pool depth and momentum into a single ranking
// figure. Log damping keeps whale pools from drowning out everything else.
func confidenceScore(liquidityUSD, volume24hUSD, changeH1, lockedRatio float64) float64 {
	return 0.25*math.Log1p(liquidityUSD) +
		0.30*math.Log1p(volume24hUSD) +
		0.30*math.Max(0, changeH1) +
		0.15*(lockedRatio/100.0)
}

// advisoryFlags marks scanner-level concerns that inform but do not veto.
func advisoryFlags(cand *domain.Candidate) []domain.RiskFlag {
	var flags []domain.RiskFlag
	if cand.LiquidityUSD < 60_000 {
		flags = append(flags, domain.Flag(domain.FlagLowLiquidity))
	}
	if cand.RenouncedScore != nil && *cand.RenouncedScore < 0.4 {
		flags = append(flags, domain.Flag(domain.FlagOwnerNotRenounced))
	}
	if cand.LockedLiquidityRatio != nil && *cand.LockedLiquidityRatio < 50.0 {
		flags = append(flags, domain.Flag(domain.FlagLowLock))
	}
	return flags
}

// buyPressure is buys/(buys+sells) over the window, each side floored at 1
// to avoid division by zero on dead pairs.
func buyPressure(w dexscreener.TxnWindow) float64 {
	buys := float64(max(w.Buys, 1))
	sells := float64(max(w.Sells, 1))
	return buys / (buys + sells)
}

func lockedOrZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
