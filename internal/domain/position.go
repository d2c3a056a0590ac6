package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Position is one open token exposure. The book enforces exactly one
// Position per token; candidates for a held token are skipped. Positions
// are created on successful entry execution, mutated only by the book's
// refresh step, and removed exactly once on successful exit.
type Position struct {
	ID                 uuid.UUID      `json:"id"`
	Token              common.Address `json:"token"`
	BaseToken          common.Address `json:"base_token"`
	TokenSymbol        string         `json:"token_symbol"`
	BaseSpent          *big.Int       `json:"base_spent"`
	TokenAmount        *big.Int       `json:"token_amount"`
	EntryTokenPriceUSD float64        `json:"entry_token_price_usd"`
	EntryBasePriceUSD  float64        `json:"entry_base_price_usd"`
	BaseTokenDecimals  uint8          `json:"base_token_decimals"`
	EntryTimestamp     time.Time      `json:"entry_timestamp"`
	LastValueUSD       float64        `json:"last_value_usd"`
	LastUpdatedAt      time.Time      `json:"last_updated_at"`
	RiskScore          float64        `json:"risk_score"`
	TakeProfitBps      uint32         `json:"take_profit_bps"`
	StopLossBps        uint32         `json:"stop_loss_bps"`
	EntryTx            string         `json:"entry_tx"`
}

// EntryValueUSD is the USD value of the base asset spent at entry.
func (p *Position) EntryValueUSD() float64 {
	return AmountToFloat(p.BaseSpent, p.BaseTokenDecimals) * p.EntryBasePriceUSD
}

// PnLBps converts an entry/current value pair into profit-and-loss in
// basis points. Entry value must be positive.
func PnLBps(entryValue, currentValue float64) float64 {
	return (currentValue/entryValue - 1.0) * 10_000.0
}

// AmountToFloat scales a raw token amount down by the token's decimal
// precision. Precision loss past float64 is acceptable for valuation.
func AmountToFloat(amount *big.Int, decimals uint8) float64 {
	if amount == nil {
		return 0
	}
	f := new(big.Float).SetInt(amount)
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	out, _ := new(big.Float).Quo(f, scale).Float64()
	return out
}

// PendingEntry records an entry swap that was broadcast but not confirmed
// before the client-side timeout. The engine reconciles pending entries at
// the start of each cycle: a late-mined transaction is promoted into a
// Position, a reverted or expired one is dropped.
type PendingEntry struct {
	TxHash        common.Hash    `json:"tx_hash"`
	Token         common.Address `json:"token"`
	BaseToken     common.Address `json:"base_token"`
	TokenSymbol   string         `json:"token_symbol"`
	BaseAmount    *big.Int       `json:"base_amount"`
	EntryPriceUSD float64        `json:"entry_price_usd"`
	RiskScore     float64        `json:"risk_score"`
	SubmittedAt   time.Time      `json:"submitted_at"`
}

// BookState is the durable form of the position book: the full position
// set plus the pending-entry journal, rewritten after every successful
// cycle.
type BookState struct {
	Positions []Position     `json:"positions"`
	Pending   []PendingEntry `json:"pending_entries"`
}

// PositionSnapshot is a read-only view of one position for the monitoring
// surface.
type PositionSnapshot struct {
	ID              uuid.UUID      `json:"id"`
	Token           common.Address `json:"token"`
	BaseToken       common.Address `json:"base_token"`
	TokenSymbol     string         `json:"token_symbol"`
	EntryValueUSD   float64        `json:"entry_value_usd"`
	CurrentValueUSD float64        `json:"current_value_usd"`
	PnLBps          float64        `json:"pnl_bps"`
	RiskScore       float64        `json:"risk_score"`
	EntryTimestamp  time.Time      `json:"entry_timestamp"`
	LastUpdatedAt   time.Time      `json:"last_updated_at"`
	EntryTx         string         `json:"entry_tx"`
}

// BookSnapshot is the full portfolio view served by the monitoring API.
type BookSnapshot struct {
	TotalPositions int                `json:"total_positions"`
	PendingEntries int                `json:"pending_entries"`
	TotalValueUSD  float64            `json:"total_value_usd"`
	Positions      []PositionSnapshot `json:"positions"`
}
