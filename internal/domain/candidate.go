// Package domain holds the core data model of the gembot trading engine:
// scanner candidates, risk reports, positions, exit orders, and the
// interfaces that stores, caches, and chain clients implement.
package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Candidate is a scanner-discovered token/base pair eligible for risk
// evaluation and potential entry. A Candidate is immutable once produced
// for a decision cycle.
type Candidate struct {
	PairAddress  common.Address
	TokenAddress common.Address
	BaseToken    common.Address
	TokenSymbol  string
	TokenName    string

	PriceUSD     float64
	LiquidityUSD float64
	Volume24hUSD float64
	FDVUSD       float64

	PriceChangeM5  float64
	PriceChangeM15 float64
	PriceChangeH1  float64

	// BuyPressureRatio is buys/(buys+sells) over the 5-minute window,
	// each side floored at 1.
	BuyPressureRatio float64

	HolderCount          *int64
	LockedLiquidityRatio *float64
	RenouncedScore       *float64

	PairCreatedAt time.Time
	DexID         string

	Confidence  float64
	SafetyFlags []RiskFlag

	// USDPerBase is the implied USD price of one base-asset unit, derived
	// from the feed's USD and native quotes.
	USDPerBase float64
}
