package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// RiskFlagKind identifies one safety concern raised during candidate
// evaluation. The set is closed: whether a kind vetoes safety is decided
// by Critical(), not by naming conventions.
type RiskFlagKind string

const (
	// Critical kinds. Any one of these forces an unsafe verdict
	// regardless of the accumulated score.
	FlagSecurityDataMissing RiskFlagKind = "security-data-missing"
	FlagHoneypot            RiskFlagKind = "honeypot-detected"
	FlagTradingDisabled     RiskFlagKind = "trading-disabled"
	FlagOwnerCanReclaim     RiskFlagKind = "owner-can-reclaim"
	FlagProxyContract       RiskFlagKind = "proxy-contract"
	FlagExcessiveTax        RiskFlagKind = "excessive-tax"
	FlagTopHolders          RiskFlagKind = "top-holder-concentration"

	// Advisory kinds. These reduce the score a candidate can earn but do
	// not veto it on their own.
	FlagLowLiquidity      RiskFlagKind = "liquidity-below-threshold"
	FlagLowVolume         RiskFlagKind = "volume-24h-low"
	FlagLowLockRatio      RiskFlagKind = "insufficient-liquidity-lock"
	FlagLowHolderCount    RiskFlagKind = "holder-count-low"
	FlagLowRenounceScore  RiskFlagKind = "renounce-score-low"
	FlagOwnerNotRenounced RiskFlagKind = "owner-not-renounced"
	FlagLowLock           RiskFlagKind = "low-lock"
)

// Critical reports whether the kind unconditionally vetoes safety.
func (k RiskFlagKind) Critical() bool {
	switch k {
	case FlagSecurityDataMissing, FlagHoneypot, FlagTradingDisabled,
		FlagOwnerCanReclaim, FlagProxyContract, FlagExcessiveTax, FlagTopHolders:
		return true
	}
	return false
}

// RiskFlag is one safety concern, optionally carrying a numeric detail
// (e.g. the offending tax percentage).
type RiskFlag struct {
	Kind  RiskFlagKind `json:"kind"`
	Value *float64     `json:"value,omitempty"`
}

// Flag returns a flag without a numeric payload.
func Flag(kind RiskFlagKind) RiskFlag {
	return RiskFlag{Kind: kind}
}

// FlagValue returns a flag carrying a numeric payload.
func FlagValue(kind RiskFlagKind, v float64) RiskFlag {
	return RiskFlag{Kind: kind, Value: &v}
}

func (f RiskFlag) String() string {
	if f.Value != nil {
		return fmt.Sprintf("%s:%.2f", f.Kind, *f.Value)
	}
	return string(f.Kind)
}

// RiskReport is the outcome of evaluating one candidate. One report is
// produced per candidate per decision cycle; reports are not persisted.
type RiskReport struct {
	Score       float64
	Safe        bool
	Flags       []RiskFlag
	RawSecurity json.RawMessage
	EvaluatedAt time.Time
}

// HasCriticalFlag reports whether any flag in the report vetoes safety.
func (r RiskReport) HasCriticalFlag() bool {
	for _, f := range r.Flags {
		if f.Kind.Critical() {
			return true
		}
	}
	return false
}

// FlagStrings renders the flags for logging.
func (r RiskReport) FlagStrings() []string {
	out := make([]string, 0, len(r.Flags))
	for _, f := range r.Flags {
		out = append(out, f.String())
	}
	return out
}
