package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ExitReason tags why an exit order was generated.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "take-profit"
	ExitStopLoss   ExitReason = "stop-loss"
	ExitRiskAlert  ExitReason = "risk-alert"
	ExitManual     ExitReason = "manual"
)

// ExitOrder instructs the executor to sell a position's full token amount.
// Orders are produced and consumed within one decision cycle.
type ExitOrder struct {
	PositionID  uuid.UUID      `json:"position_id"`
	Token       common.Address `json:"token"`
	BaseToken   common.Address `json:"base_token"`
	TokenAmount *big.Int       `json:"token_amount"`
	// MinOutput is the slippage-adjusted floor on the base-asset amount
	// the swap may return.
	MinOutput *big.Int   `json:"min_output"`
	Reason    ExitReason `json:"reason"`
}

// ExecutionResult describes a confirmed swap. Amounts are always derived
// from on-chain balance deltas, never from the router's advertised return
// value: fee-on-transfer tokens make the advertised amount unreliable.
type ExecutionResult struct {
	TxHash    common.Hash    `json:"tx_hash"`
	Token     common.Address `json:"token"`
	BaseToken common.Address `json:"base_token"`
	// BaseAmount is the base asset spent on an entry or redeemed on an exit.
	BaseAmount *big.Int `json:"base_amount"`
	// TokenAmount is the token amount acquired on an entry or sold on an exit.
	TokenAmount *big.Int  `json:"token_amount"`
	BlockNumber uint64    `json:"block_number"`
	Timestamp   time.Time `json:"timestamp"`
}
