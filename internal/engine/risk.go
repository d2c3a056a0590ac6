package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/gembot/internal/config"
	"github.com/alanyoungcy/gembot/internal/domain"
	"github.com/alanyoungcy/gembot/internal/platform/goplus"
)

const (
	// minSafeScore is the accumulated score a candidate must reach to be
	// considered safe, absent any critical flag.
	minSafeScore = 2.8
	// maxTaxPercent is the highest tolerated buy or sell tax.
	maxTaxPercent = 15.0
)

// RiskAnalyzer combines the token-security feed with candidate metrics
// into a safety score and flag list.
type RiskAnalyzer struct {
	security *goplus.Client
	cfg      *config.Config
	logger   *slog.Logger
}

// NewRiskAnalyzer creates an analyzer over the given security feed client.
func NewRiskAnalyzer(security *goplus.Client, cfg *config.Config, logger *slog.Logger) *RiskAnalyzer {
	return &RiskAnalyzer{
		security: security,
		cfg:      cfg,
		logger:   logger.With("component", "risk"),
	}
}

// ScoredCandidate pairs a candidate with its risk report.
type ScoredCandidate struct {
	Candidate domain.Candidate
	Report    domain.RiskReport
}

// EvaluateCandidate fetches the token's security profile and scores the
// candidate against it. A missing profile is itself a critical flag. The
// error return covers only feed failures; an unsafe verdict is a valid
// report, not an error.
func (r *RiskAnalyzer) EvaluateCandidate(ctx context.Context, cand *domain.Candidate) (domain.RiskReport, error) {
	sec, err := r.security.TokenSecurity(ctx, r.cfg.Chain.ID, cand.TokenAddress)
	if err != nil {
		return domain.RiskReport{}, fmt.Errorf("engine: security lookup for %s: %w", cand.TokenAddress.Hex(), err)
	}

	var (
		score float64
		flags []domain.RiskFlag
	)

	// Market-structure checks are independent of the security profile.
	if cand.LiquidityUSD >= r.cfg.Strategy.MinLiquidityUSD {
		score += 1.0
	} else {
		flags = append(flags, domain.Flag(domain.FlagLowLiquidity))
	}

	if cand.Volume24hUSD >= r.cfg.Strategy.MinDailyVolumeUSD {
		score += 0.8
	} else {
		flags = append(flags, domain.Flag(domain.FlagLowVolume))
	}

	if lockedOrZero(cand.LockedLiquidityRatio) >= r.cfg.Risk.MinLockRatio {
		score += 1.2
	} else {
		flags = append(flags, domain.Flag(domain.FlagLowLockRatio))
	}

	// Unknown holder count passes; only a known-low count is penalized.
	if cand.HolderCount == nil || *cand.HolderCount >= r.cfg.Risk.MinHolderCount {
		score += 0.7
	} else {
		flags = append(flags, domain.Flag(domain.FlagLowHolderCount))
	}

	secScore, secFlags := r.securityPolicy(sec, cand)
	score += secScore
	flags = append(flags, secFlags...)

	report := domain.RiskReport{
		Score:       score,
		Flags:       flags,
		EvaluatedAt: time.Now().UTC(),
	}
	report.Safe = score >= minSafeScore && !report.HasCriticalFlag()
	if sec != nil {
		if raw, err := json.Marshal(sec); err == nil {
			report.RawSecurity = raw
		}
	}
	return report, nil
}

// securityPolicy scores the contract-level signals. A nil profile awards
// nothing and raises the missing-data critical flag.
func (r *RiskAnalyzer) securityPolicy(sec *goplus.TokenSecurity, cand *domain.Candidate) (float64, []domain.RiskFlag) {
	var (
		score float64
		flags []domain.RiskFlag
	)

	if sec == nil {
		return 0, []domain.RiskFlag{domain.Flag(domain.FlagSecurityDataMissing)}
	}

	if sec.Honeypot() {
		flags = append(flags, domain.Flag(domain.FlagHoneypot))
	} else {
		score += 1.0
	}

	if sec.TradingHalted() {
		flags = append(flags, domain.Flag(domain.FlagTradingDisabled))
	}

	if sec.OwnershipReclaimable() {
		flags = append(flags, domain.Flag(domain.FlagOwnerCanReclaim))
	} else {
		score += 0.4
	}

	if sec.Proxy() {
		flags = append(flags, domain.Flag(domain.FlagProxyContract))
	} else {
		score += 0.3
	}

	buyTax, _ := sec.BuyTaxPercent()
	sellTax, _ := sec.SellTaxPercent()
	if tax := math.Max(buyTax, sellTax); tax <= maxTaxPercent {
		score += 0.4
	} else {
		flags = append(flags, domain.FlagValue(domain.FlagExcessiveTax, tax))
	}

	if top10, ok := sec.Top10HolderPercent(); ok {
		if top10 <= r.cfg.Risk.MaxTopHolderPercent {
			score += 0.5
		} else {
			flags = append(flags, domain.FlagValue(domain.FlagTopHolders, top10))
		}
	}

	if cand.RenouncedScore != nil {
		if *cand.RenouncedScore >= r.cfg.Risk.MinRenouncedScore {
			score += 0.2
		} else {
			flags = append(flags, domain.FlagValue(domain.FlagLowRenounceScore, *cand.RenouncedScore))
		}
	}

	return score, flags
}

// EvaluateCandidates fans the security lookups out across a bounded worker
// group and returns only the candidates that came back safe. A failed
// lookup skips that candidate alone; siblings are unaffected.
func (r *RiskAnalyzer) EvaluateCandidates(ctx context.Context, candidates []domain.Candidate) []ScoredCandidate {
	results := make([]*ScoredCandidate, len(candidates))

	var g errgroup.Group
	g.SetLimit(r.cfg.Risk.EvalConcurrency)
	for i := range candidates {
		g.Go(func() error {
			cand := candidates[i]
			report, err := r.EvaluateCandidate(ctx, &cand)
			if err != nil {
				r.logger.Warn("risk evaluation failed, skipping candidate",
					"token", cand.TokenAddress.Hex(), "error", err)
				return nil
			}
			if !report.Safe {
				r.logger.Info("rejected candidate",
					"token", cand.TokenAddress.Hex(),
					"symbol", cand.TokenSymbol,
					"score", report.Score,
					"flags", report.FlagStrings())
				return nil
			}
			results[i] = &ScoredCandidate{Candidate: cand, Report: report}
			return nil
		})
	}
	_ = g.Wait()

	safe := make([]ScoredCandidate, 0, len(candidates))
	for _, res := range results {
		if res != nil {
			safe = append(safe, *res)
		}
	}
	return safe
}
