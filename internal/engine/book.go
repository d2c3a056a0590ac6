package engine

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/gembot/internal/domain"
)

// Book owns the position lifecycle. The decision cycle holds the write
// lock for its full duration; the monitoring snapshot takes the read lock
// and therefore observes only fully-settled state. The unexported methods
// assume the caller already holds mu.
type Book struct {
	mu        sync.RWMutex
	positions map[uuid.UUID]domain.Position
	pending   []domain.PendingEntry
}

// NewBook returns an empty book.
func NewBook() *Book {
	return &Book{positions: make(map[uuid.UUID]domain.Position)}
}

// Load replaces the book contents with the stored state. Called once at
// startup before the decision loop begins.
func (b *Book) Load(ctx context.Context, store domain.PositionStore) error {
	state, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("engine: loading position book: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions = make(map[uuid.UUID]domain.Position, len(state.Positions))
	for _, p := range state.Positions {
		b.positions[p.ID] = p
	}
	b.pending = state.Pending
	return nil
}

// Snapshot renders the monitoring view. Blocks while a cycle holds the
// write lock.
func (b *Book) Snapshot() domain.BookSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap := domain.BookSnapshot{
		TotalPositions: len(b.positions),
		PendingEntries: len(b.pending),
		Positions:      make([]domain.PositionSnapshot, 0, len(b.positions)),
	}
	for _, p := range b.positions {
		entryValue := p.EntryValueUSD()
		var pnl float64
		if entryValue > 0 {
			pnl = domain.PnLBps(entryValue, p.LastValueUSD)
		}
		snap.TotalValueUSD += p.LastValueUSD
		snap.Positions = append(snap.Positions, domain.PositionSnapshot{
			ID:              p.ID,
			Token:           p.Token,
			BaseToken:       p.BaseToken,
			TokenSymbol:     p.TokenSymbol,
			EntryValueUSD:   entryValue,
			CurrentValueUSD: p.LastValueUSD,
			PnLBps:          pnl,
			RiskScore:       p.RiskScore,
			EntryTimestamp:  p.EntryTimestamp,
			LastUpdatedAt:   p.LastUpdatedAt,
			EntryTx:         p.EntryTx,
		})
	}
	sort.Slice(snap.Positions, func(i, j int) bool {
		return snap.Positions[i].EntryTimestamp.Before(snap.Positions[j].EntryTimestamp)
	})
	return snap
}

// ── Cycle-internal operations; caller holds mu ──

// refresh revalues every open position through the router, using per-base
// caches so each distinct base asset costs one price and one decimals
// lookup. Any valuation failure aborts the whole refresh: trading on a
// stale book is worse than skipping a tick.
func (b *Book) refresh(ctx context.Context, quoter domain.Quoter, pricer domain.BasePricer) error {
	v := newValuer(quoter, pricer)
	now := time.Now().UTC()
	for id, p := range b.positions {
		value, _, err := v.currentValueUSD(ctx, &p)
		if err != nil {
			return fmt.Errorf("engine: revaluing %s: %w", p.TokenSymbol, err)
		}
		p.LastValueUSD = value
		p.LastUpdatedAt = now
		b.positions[id] = p
	}
	return nil
}

// generateExitOrders emits at most one order per position. Take-profit is
// checked first; both thresholds are inclusive. Positions with degenerate
// entry value are skipped since their P&L is undefined.
func (b *Book) generateExitOrders(ctx context.Context, quoter domain.Quoter, pricer domain.BasePricer, slippageBps int64) ([]domain.ExitOrder, error) {
	v := newValuer(quoter, pricer)
	var orders []domain.ExitOrder
	for _, p := range b.sortedPositions() {
		entryValue := p.EntryValueUSD()
		if entryValue <= 0 {
			continue
		}

		currentValue, quotedOut, err := v.currentValueUSD(ctx, &p)
		if err != nil {
			return nil, fmt.Errorf("engine: valuing %s for exit: %w", p.TokenSymbol, err)
		}

		pnlBps := domain.PnLBps(entryValue, currentValue)

		// minOutput floors the sale at the quoted output less slippage,
		// in base-asset units, never in USD.
		minOutput := new(big.Int).Mul(quotedOut, big.NewInt(10_000-slippageBps))
		minOutput.Div(minOutput, big.NewInt(10_000))

		switch {
		case pnlBps >= float64(p.TakeProfitBps):
			orders = append(orders, exitOrder(&p, minOutput, domain.ExitTakeProfit))
		case pnlBps <= -float64(p.StopLossBps):
			orders = append(orders, exitOrder(&p, minOutput, domain.ExitStopLoss))
		}
	}
	return orders, nil
}

func exitOrder(p *domain.Position, minOutput *big.Int, reason domain.ExitReason) domain.ExitOrder {
	return domain.ExitOrder{
		PositionID:  p.ID,
		Token:       p.Token,
		BaseToken:   p.BaseToken,
		TokenAmount: new(big.Int).Set(p.TokenAmount),
		MinOutput:   minOutput,
		Reason:      reason,
	}
}

func (b *Book) addPosition(p domain.Position) {
	b.positions[p.ID] = p
}

// closePosition removes the position. Callers must only close positions
// they just successfully exited.
func (b *Book) closePosition(id uuid.UUID) (domain.Position, error) {
	p, ok := b.positions[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("engine: closing position %s: %w", id, domain.ErrNotFound)
	}
	delete(b.positions, id)
	return p, nil
}

func (b *Book) isHolding(token common.Address) bool {
	for _, p := range b.positions {
		if p.Token == token {
			return true
		}
	}
	return false
}

func (b *Book) openPositions() int {
	return len(b.positions)
}

// isPendingToken reports whether a journaled entry for token is still in
// flight. Entry decisions must treat such tokens as held: the swap may
// already have filled on chain.
func (b *Book) isPendingToken(token common.Address) bool {
	for _, pe := range b.pending {
		if pe.Token == token {
			return true
		}
	}
	return false
}

func (b *Book) addPending(pe domain.PendingEntry) {
	b.pending = append(b.pending, pe)
}

func (b *Book) pendingEntries() []domain.PendingEntry {
	out := make([]domain.PendingEntry, len(b.pending))
	copy(out, b.pending)
	return out
}

func (b *Book) removePending(txHash common.Hash) {
	kept := b.pending[:0]
	for _, pe := range b.pending {
		if pe.TxHash != txHash {
			kept = append(kept, pe)
		}
	}
	b.pending = kept
}

// state renders the durable form, positions ordered by entry time for
// stable on-disk diffs.
func (b *Book) state() domain.BookState {
	return domain.BookState{
		Positions: b.sortedPositions(),
		Pending:   b.pendingEntries(),
	}
}

func (b *Book) sortedPositions() []domain.Position {
	out := make([]domain.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EntryTimestamp.Equal(out[j].EntryTimestamp) {
			return out[i].EntryTimestamp.Before(out[j].EntryTimestamp)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// persist writes the full book through the store. Failure is surfaced: a
// tick must not claim success while new state is unsaved.
func (b *Book) persist(ctx context.Context, store domain.PositionStore) error {
	if err := store.Save(ctx, b.state()); err != nil {
		return fmt.Errorf("engine: persisting position book: %w", err)
	}
	return nil
}

// valuer caches base-asset price and decimals lookups for the duration of
// one pass over the book, bounding external calls to one pair per distinct
// base asset.
type valuer struct {
	quoter   domain.Quoter
	pricer   domain.BasePricer
	prices   map[common.Address]float64
	decimals map[common.Address]uint8
}

func newValuer(quoter domain.Quoter, pricer domain.BasePricer) *valuer {
	return &valuer{
		quoter:   quoter,
		pricer:   pricer,
		prices:   make(map[common.Address]float64),
		decimals: make(map[common.Address]uint8),
	}
}

// currentValueUSD quotes the position's full token amount into the base
// asset and converts to USD. Returns the USD value and the raw quoted
// base-asset output (needed for slippage floors).
func (v *valuer) currentValueUSD(ctx context.Context, p *domain.Position) (float64, *big.Int, error) {
	price, err := v.basePrice(ctx, p.BaseToken)
	if err != nil {
		return 0, nil, err
	}
	decimals := v.baseDecimals(ctx, p.BaseToken, p.BaseTokenDecimals)

	quotedOut, err := v.quoter.QuoteSell(ctx, p.Token, p.TokenAmount, p.BaseToken)
	if err != nil {
		return 0, nil, err
	}
	return domain.AmountToFloat(quotedOut, decimals) * price, quotedOut, nil
}

func (v *valuer) basePrice(ctx context.Context, base common.Address) (float64, error) {
	if price, ok := v.prices[base]; ok {
		return price, nil
	}
	price, err := v.pricer.BasePriceUSD(ctx, base)
	if err != nil {
		return 0, err
	}
	v.prices[base] = price
	return price, nil
}

// baseDecimals falls back to the position's recorded precision when the
// chain lookup fails; decimals are immutable on chain so the stored value
// is safe.
func (v *valuer) baseDecimals(ctx context.Context, base common.Address, fallback uint8) uint8 {
	if d, ok := v.decimals[base]; ok {
		return d
	}
	d, err := v.quoter.TokenDecimals(ctx, base)
	if err != nil {
		d = fallback
	}
	v.decimals[base] = d
	return d
}
