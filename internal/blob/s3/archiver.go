package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/gembot/internal/domain"
)

// closedTrade is the archived record for one completed round trip.
type closedTrade struct {
	PositionID         string    `json:"position_id"`
	Token              string    `json:"token"`
	BaseToken          string    `json:"base_token"`
	TokenSymbol        string    `json:"token_symbol"`
	BaseSpent          string    `json:"base_spent"`
	BaseRedeemed       string    `json:"base_redeemed"`
	TokenAmount        string    `json:"token_amount"`
	EntryTokenPriceUSD float64   `json:"entry_token_price_usd"`
	EntryValueUSD      float64   `json:"entry_value_usd"`
	LastValueUSD       float64   `json:"last_value_usd"`
	RiskScore          float64   `json:"risk_score"`
	ExitReason         string    `json:"exit_reason"`
	EntryTx            string    `json:"entry_tx"`
	ExitTx             string    `json:"exit_tx"`
	EntryTimestamp     time.Time `json:"entry_timestamp"`
	ClosedAt           time.Time `json:"closed_at"`
}

// Archiver uploads closed trades as JSON documents, partitioned by close
// month. Records are write-once; nothing in the hot path ever reads them
// back.
type Archiver struct {
	writer domain.BlobWriter
	prefix string
}

// NewArchiver creates an Archiver writing under the given key prefix.
func NewArchiver(writer domain.BlobWriter, prefix string) *Archiver {
	return &Archiver{writer: writer, prefix: strings.Trim(prefix, "/")}
}

// ArchiveClosedTrade serialises one completed round trip and uploads it to
// {prefix}/YYYY-MM/{closedAt}-{positionID}.json.
func (a *Archiver) ArchiveClosedTrade(ctx context.Context, p domain.Position, res *domain.ExecutionResult, reason domain.ExitReason) error {
	closedAt := res.Timestamp
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	record := closedTrade{
		PositionID:         p.ID.String(),
		Token:              p.Token.Hex(),
		BaseToken:          p.BaseToken.Hex(),
		TokenSymbol:        p.TokenSymbol,
		BaseSpent:          p.BaseSpent.String(),
		BaseRedeemed:       res.BaseAmount.String(),
		TokenAmount:        p.TokenAmount.String(),
		EntryTokenPriceUSD: p.EntryTokenPriceUSD,
		EntryValueUSD:      p.EntryValueUSD(),
		LastValueUSD:       p.LastValueUSD,
		RiskScore:          p.RiskScore,
		ExitReason:         string(reason),
		EntryTx:            p.EntryTx,
		ExitTx:             res.TxHash.Hex(),
		EntryTimestamp:     p.EntryTimestamp,
		ClosedAt:           closedAt,
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal closed trade %s: %w", p.ID, err)
	}

	path := a.tradePath(closedAt, record.PositionID)
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive closed trade %s: %w", p.ID, err)
	}
	return nil
}

func (a *Archiver) tradePath(closedAt time.Time, positionID string) string {
	return fmt.Sprintf("%s/%s/%d-%s.json",
		a.prefix, closedAt.Format("2006-01"), closedAt.Unix(), positionID)
}
