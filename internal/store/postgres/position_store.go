package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/gembot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. The book
// is persisted as a full-set replace inside one transaction, matching the
// write-the-whole-book-per-cycle model of the engine.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Load reads the full book state.
func (s *PositionStore) Load(ctx context.Context) (domain.BookState, error) {
	var state domain.BookState

	rows, err := s.pool.Query(ctx, `
		SELECT id, token, base_token, token_symbol, base_spent, token_amount,
		       entry_token_price_usd, entry_base_price_usd, base_token_decimals,
		       entry_timestamp, last_value_usd, last_updated_at, risk_score,
		       take_profit_bps, stop_loss_bps, entry_tx
		FROM positions ORDER BY entry_timestamp`)
	if err != nil {
		return domain.BookState{}, fmt.Errorf("postgres: load positions: %w", err)
	}
	state.Positions, err = scanPositions(rows)
	if err != nil {
		return domain.BookState{}, fmt.Errorf("postgres: scan positions: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT tx_hash, token, base_token, token_symbol, base_amount,
		       entry_price_usd, risk_score, submitted_at
		FROM pending_entries ORDER BY submitted_at`)
	if err != nil {
		return domain.BookState{}, fmt.Errorf("postgres: load pending entries: %w", err)
	}
	state.Pending, err = scanPending(rows)
	if err != nil {
		return domain.BookState{}, fmt.Errorf("postgres: scan pending entries: %w", err)
	}
	return state, nil
}

// Save replaces the stored book with the given state atomically.
func (s *PositionStore) Save(ctx context.Context, state domain.BookState) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin save: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("postgres: clear positions: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM pending_entries`); err != nil {
		return fmt.Errorf("postgres: clear pending entries: %w", err)
	}

	for _, p := range state.Positions {
		if _, err := tx.Exec(ctx, `
			INSERT INTO positions (
				id, token, base_token, token_symbol, base_spent, token_amount,
				entry_token_price_usd, entry_base_price_usd, base_token_decimals,
				entry_timestamp, last_value_usd, last_updated_at, risk_score,
				take_profit_bps, stop_loss_bps, entry_tx, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,NOW())`,
			p.ID, addrText(p.Token), addrText(p.BaseToken), p.TokenSymbol,
			amountText(p.BaseSpent), amountText(p.TokenAmount),
			p.EntryTokenPriceUSD, p.EntryBasePriceUSD, int16(p.BaseTokenDecimals),
			p.EntryTimestamp, p.LastValueUSD, p.LastUpdatedAt, p.RiskScore,
			int32(p.TakeProfitBps), int32(p.StopLossBps), p.EntryTx,
		); err != nil {
			return fmt.Errorf("postgres: insert position %s: %w", p.ID, err)
		}
	}

	for _, pe := range state.Pending {
		if _, err := tx.Exec(ctx, `
			INSERT INTO pending_entries (
				tx_hash, token, base_token, token_symbol, base_amount,
				entry_price_usd, risk_score, submitted_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())`,
			pe.TxHash.Hex(), addrText(pe.Token), addrText(pe.BaseToken),
			pe.TokenSymbol, amountText(pe.BaseAmount),
			pe.EntryPriceUSD, pe.RiskScore, pe.SubmittedAt,
		); err != nil {
			return fmt.Errorf("postgres: insert pending entry %s: %w", pe.TxHash.Hex(), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit save: %w", err)
	}
	return nil
}

func scanPositions(rows pgx.Rows) ([]domain.Position, error) {
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var token, base, spent, amount string
		var decimals int16
		var takeProfit, stopLoss int32
		if err := rows.Scan(
			&p.ID, &token, &base, &p.TokenSymbol, &spent, &amount,
			&p.EntryTokenPriceUSD, &p.EntryBasePriceUSD, &decimals,
			&p.EntryTimestamp, &p.LastValueUSD, &p.LastUpdatedAt, &p.RiskScore,
			&takeProfit, &stopLoss, &p.EntryTx,
		); err != nil {
			return nil, err
		}
		p.Token = common.HexToAddress(token)
		p.BaseToken = common.HexToAddress(base)
		p.BaseTokenDecimals = uint8(decimals)
		p.TakeProfitBps = uint32(takeProfit)
		p.StopLossBps = uint32(stopLoss)

		var err error
		if p.BaseSpent, err = parseAmount(spent); err != nil {
			return nil, fmt.Errorf("position %s base_spent: %w", p.ID, err)
		}
		if p.TokenAmount, err = parseAmount(amount); err != nil {
			return nil, fmt.Errorf("position %s token_amount: %w", p.ID, err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func scanPending(rows pgx.Rows) ([]domain.PendingEntry, error) {
	defer rows.Close()

	var pending []domain.PendingEntry
	for rows.Next() {
		var pe domain.PendingEntry
		var hash, token, base, amount string
		if err := rows.Scan(
			&hash, &token, &base, &pe.TokenSymbol, &amount,
			&pe.EntryPriceUSD, &pe.RiskScore, &pe.SubmittedAt,
		); err != nil {
			return nil, err
		}
		pe.TxHash = common.HexToHash(hash)
		pe.Token = common.HexToAddress(token)
		pe.BaseToken = common.HexToAddress(base)

		var err error
		if pe.BaseAmount, err = parseAmount(amount); err != nil {
			return nil, fmt.Errorf("pending entry %s base_amount: %w", hash, err)
		}
		pending = append(pending, pe)
	}
	return pending, rows.Err()
}

func addrText(a common.Address) string {
	return a.Hex()
}

func amountText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
