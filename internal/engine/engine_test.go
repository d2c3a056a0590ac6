package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/gembot/internal/config"
	"github.com/alanyoungcy/gembot/internal/domain"
	"github.com/alanyoungcy/gembot/internal/platform/dexscreener"
	"github.com/alanyoungcy/gembot/internal/platform/goplus"
)

// fakeExecutor is an in-memory TradeExecutor.
type fakeExecutor struct {
	quotes   map[common.Address]*big.Int
	balances map[common.Address]*big.Int
	decimals uint8

	entryErr error
	entries  []common.Address
	exits    []domain.ExitOrder
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		quotes:   make(map[common.Address]*big.Int),
		balances: make(map[common.Address]*big.Int),
		decimals: 18,
	}
}

func (f *fakeExecutor) QuoteSell(_ context.Context, token common.Address, _ *big.Int, _ common.Address) (*big.Int, error) {
	q, ok := f.quotes[token]
	if !ok {
		return nil, domain.ErrEmptyRoute
	}
	return new(big.Int).Set(q), nil
}

func (f *fakeExecutor) TokenDecimals(context.Context, common.Address) (uint8, error) {
	return f.decimals, nil
}

func (f *fakeExecutor) TokenBalance(_ context.Context, token common.Address) (*big.Int, error) {
	bal, ok := f.balances[token]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(bal), nil
}

func (f *fakeExecutor) ExecuteEntry(_ context.Context, token, base common.Address, amountIn *big.Int) (*domain.ExecutionResult, error) {
	if f.entryErr != nil {
		if f.entryErr == domain.ErrTxTimeout {
			return &domain.ExecutionResult{
				TxHash:     common.HexToHash("0xfeed"),
				Token:      token,
				BaseToken:  base,
				BaseAmount: new(big.Int).Set(amountIn),
			}, f.entryErr
		}
		return nil, f.entryErr
	}
	f.entries = append(f.entries, token)
	return &domain.ExecutionResult{
		TxHash:      common.HexToHash("0xabc1"),
		Token:       token,
		BaseToken:   base,
		BaseAmount:  new(big.Int).Set(amountIn),
		TokenAmount: eth(1000),
		BlockNumber: 100,
		Timestamp:   time.Now().UTC(),
	}, nil
}

func (f *fakeExecutor) ExecuteExit(_ context.Context, order *domain.ExitOrder) (*domain.ExecutionResult, error) {
	f.exits = append(f.exits, *order)
	return &domain.ExecutionResult{
		TxHash:      common.HexToHash("0xabc2"),
		Token:       order.Token,
		BaseToken:   order.BaseToken,
		BaseAmount:  new(big.Int).Set(order.MinOutput),
		TokenAmount: new(big.Int).Set(order.TokenAmount),
		BlockNumber: 101,
		Timestamp:   time.Now().UTC(),
	}, nil
}

// fakeNode serves canned receipts.
type fakeNode struct {
	receipts map[common.Hash]*types.Receipt
}

func (f *fakeNode) Receipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	r, ok := f.receipts[txHash]
	if !ok {
		return nil, domain.ErrMissingReceipt
	}
	return r, nil
}

func (f *fakeNode) LatestBlock(context.Context) (uint64, error) { return 123, nil }

// memStore is an in-memory PositionStore.
type memStore struct {
	state   domain.BookState
	saves   int
	saveErr error
}

func (m *memStore) Load(context.Context) (domain.BookState, error) { return m.state, nil }

func (m *memStore) Save(_ context.Context, state domain.BookState) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.state = state
	m.saves++
	return nil
}

// momentumPair renders a feed pair that passes every discovery filter and
// the momentum test (weighted sum 8.75, buy pressure 0.6).
func momentumPair(addrSeed int, symbol string) string {
	created := time.Now().Add(-2 * time.Hour).UnixMilli()
	return fmt.Sprintf(`{
		"chainId": "base",
		"dexId": "uniswap",
		"pairAddress": "0x%040d",
		"baseToken": {"address": "0x%040d", "name": "%s coin", "symbol": "%s"},
		"quoteToken": {"address": "0x4200000000000000000000000000000000000006", "name": "WETH", "symbol": "WETH"},
		"priceUsd": "0.001",
		"priceNative": "0.00000033",
		"priceChange": {"m5": 10, "m15": 10, "h1": 5},
		"liquidity": {"usd": 500000, "locked": 85},
		"volume": {"h24": 900000},
		"txns": {"m5": {"buys": 60, "sells": 40}, "m15": {"buys": 90, "sells": 40}, "h1": {"buys": 300, "sells": 150}, "h6": {"buys": 1, "sells": 1}, "h24": {"buys": 1, "sells": 1}},
		"pairCreatedAt": %d,
		"info": {"holders": 1200, "renounced": 0.9}
	}`, addrSeed, addrSeed+1000, symbol, symbol, created)
}

type engineHarness struct {
	engine   *Engine
	executor *fakeExecutor
	node     *fakeNode
	store    *memStore
	pricer   *fakePricer
	cfg      *config.Config
}

// newHarness wires an engine against httptest feeds and in-memory fakes.
func newHarness(t *testing.T, trendingBody string, securityByToken map[string]string, seed domain.BookState) *engineHarness {
	t.Helper()

	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/latest/dex/trending/base" {
			_, _ = w.Write([]byte(trendingBody))
			return
		}
		_, _ = w.Write([]byte(`{"pairs": []}`))
	}))
	t.Cleanup(feedSrv.Close)

	secSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := r.URL.Query().Get("contract_addresses")
		body, ok := securityByToken[addr]
		if !ok {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, `{"code": 1, "message": "OK", "result": {"%s": %s}}`, addr, body)
	}))
	t.Cleanup(secSrv.Close)

	cfg := scannerConfig()
	executor := newFakeExecutor()
	node := &fakeNode{receipts: make(map[common.Hash]*types.Receipt)}
	store := &memStore{state: seed}
	pricer := &fakePricer{price: 3000}
	logger := testLogger()

	eng, err := New(context.Background(), Deps{
		Config:   cfg,
		Scanner:  NewScanner(dexscreener.NewClient(feedSrv.URL, 5*time.Second), cfg, logger),
		Risk:     NewRiskAnalyzer(goplus.NewClient(secSrv.URL, 5*time.Second), cfg, logger),
		Executor: executor,
		Node:     node,
		Pricer:   pricer,
		Store:    store,
		Logger:   logger,
	})
	require.NoError(t, err)

	return &engineHarness{engine: eng, executor: executor, node: node, store: store, pricer: pricer, cfg: cfg}
}

func gemToken(addrSeed int) common.Address {
	return common.HexToAddress(fmt.Sprintf("0x%040d", addrSeed+1000))
}

func TestTickEntersAndNeverReenters(t *testing.T) {
	token := gemToken(1)
	trending := `{"pairs": [` + momentumPair(1, "GEM") + `]}`
	security := map[string]string{strings.ToLower(token.Hex()): cleanSecurityJSON()}

	h := newHarness(t, trending, security, domain.BookState{})
	// Hold the position flat so no exit fires on later ticks.
	h.executor.quotes[token] = h.cfg.PositionSizeWei()

	require.NoError(t, h.engine.Tick(context.Background()))

	require.Len(t, h.executor.entries, 1)
	assert.Equal(t, token, h.executor.entries[0])
	assert.Equal(t, 1, h.store.saves)

	snap := h.engine.Snapshot()
	require.Equal(t, 1, snap.TotalPositions)
	assert.Equal(t, "GEM", snap.Positions[0].TokenSymbol)

	// The same candidate reappears with the same confidence; the held
	// token must not be entered again.
	require.NoError(t, h.engine.Tick(context.Background()))
	assert.Len(t, h.executor.entries, 1)
	assert.Equal(t, 1, h.engine.Snapshot().TotalPositions)
}

func TestTickCapacityGatesEntriesOnly(t *testing.T) {
	held := testPosition(tokenA, eth(1), 100)
	token := gemToken(1)
	trending := `{"pairs": [` + momentumPair(1, "GEM") + `]}`
	security := map[string]string{strings.ToLower(token.Hex()): cleanSecurityJSON()}

	h := newHarness(t, trending, security, domain.BookState{Positions: []domain.Position{held}})
	h.cfg.Strategy.MaxPositions = 1
	h.pricer.price = 100
	// Deep take-profit: quoted sale doubles the entry value.
	h.executor.quotes[tokenA] = eth(2)

	require.NoError(t, h.engine.Tick(context.Background()))

	assert.Empty(t, h.executor.entries, "capacity must block the entry phase")
	require.Len(t, h.executor.exits, 1, "exits must still run at capacity")
	assert.Equal(t, domain.ExitTakeProfit, h.executor.exits[0].Reason)
	assert.Equal(t, 0, h.engine.Snapshot().TotalPositions)
	assert.Equal(t, 1, h.store.saves)
}

func TestTickDiscoveryFailureStillRunsExits(t *testing.T) {
	held := testPosition(tokenA, eth(1), 100)

	h := newHarness(t, "", nil, domain.BookState{Positions: []domain.Position{held}})
	h.pricer.price = 100
	h.executor.quotes[tokenA] = eth(0.5) // -5000 bps, stop-loss territory

	// Feed returns an empty (invalid JSON) body for trending and an empty
	// list for everything else; discovery degrades but the cycle holds.
	require.NoError(t, h.engine.Tick(context.Background()))

	require.Len(t, h.executor.exits, 1)
	assert.Equal(t, domain.ExitStopLoss, h.executor.exits[0].Reason)
}

func TestTimedOutEntryIsJournaled(t *testing.T) {
	token := gemToken(1)
	trending := `{"pairs": [` + momentumPair(1, "GEM") + `]}`
	security := map[string]string{strings.ToLower(token.Hex()): cleanSecurityJSON()}

	h := newHarness(t, trending, security, domain.BookState{})
	h.executor.entryErr = domain.ErrTxTimeout

	require.NoError(t, h.engine.Tick(context.Background()))

	snap := h.engine.Snapshot()
	assert.Equal(t, 0, snap.TotalPositions)
	assert.Equal(t, 1, snap.PendingEntries, "unconfirmed entry must be journaled, not dropped")
	require.Len(t, h.store.state.Pending, 1)
	assert.Equal(t, token, h.store.state.Pending[0].Token)
}

func TestReconcilePromotesLateMinedEntry(t *testing.T) {
	token := gemToken(1)
	hash := common.HexToHash("0xfeed")
	seed := domain.BookState{Pending: []domain.PendingEntry{{
		TxHash:        hash,
		Token:         token,
		BaseToken:     wbase,
		TokenSymbol:   "GEM",
		BaseAmount:    eth(0.3),
		EntryPriceUSD: 0.001,
		RiskScore:     5.0,
		SubmittedAt:   time.Now().Add(-time.Minute),
	}}}

	h := newHarness(t, `{"pairs": []}`, nil, seed)
	h.node.receipts[hash] = &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(100),
	}
	h.executor.balances[token] = eth(1000)
	h.executor.quotes[token] = eth(0.3) // flat, no exit

	require.NoError(t, h.engine.Tick(context.Background()))

	snap := h.engine.Snapshot()
	assert.Equal(t, 1, snap.TotalPositions)
	assert.Equal(t, 0, snap.PendingEntries)
	assert.Equal(t, "GEM", snap.Positions[0].TokenSymbol)
	assert.Equal(t, hash.Hex(), snap.Positions[0].EntryTx)
}

func TestReconcileDropsRevertedEntry(t *testing.T) {
	hash := common.HexToHash("0xfeed")
	seed := domain.BookState{Pending: []domain.PendingEntry{{
		TxHash:      hash,
		Token:       gemToken(1),
		BaseToken:   wbase,
		BaseAmount:  eth(0.3),
		SubmittedAt: time.Now().Add(-time.Minute),
	}}}

	h := newHarness(t, `{"pairs": []}`, nil, seed)
	h.node.receipts[hash] = &types.Receipt{
		Status:      types.ReceiptStatusFailed,
		BlockNumber: big.NewInt(100),
	}

	require.NoError(t, h.engine.Tick(context.Background()))

	snap := h.engine.Snapshot()
	assert.Equal(t, 0, snap.TotalPositions)
	assert.Equal(t, 0, snap.PendingEntries)
}

func TestReconcileExpiresStalePending(t *testing.T) {
	seed := domain.BookState{Pending: []domain.PendingEntry{{
		TxHash:      common.HexToHash("0xfeed"),
		Token:       gemToken(1),
		BaseToken:   wbase,
		BaseAmount:  eth(0.3),
		SubmittedAt: time.Now().Add(-30 * time.Minute),
	}}}

	h := newHarness(t, `{"pairs": []}`, nil, seed)
	// No receipt ever appears.

	require.NoError(t, h.engine.Tick(context.Background()))
	assert.Equal(t, 0, h.engine.Snapshot().PendingEntries)
}

func TestPendingTokenIsNotReentered(t *testing.T) {
	token := gemToken(1)
	hash := common.HexToHash("0xfeed")
	trending := `{"pairs": [` + momentumPair(1, "GEM") + `]}`
	security := map[string]string{strings.ToLower(token.Hex()): cleanSecurityJSON()}
	seed := domain.BookState{Pending: []domain.PendingEntry{{
		TxHash:        hash,
		Token:         token,
		BaseToken:     wbase,
		TokenSymbol:   "GEM",
		BaseAmount:    eth(0.3),
		EntryPriceUSD: 0.001,
		RiskScore:     5.0,
		SubmittedAt:   time.Now().Add(-time.Minute),
	}}}

	h := newHarness(t, trending, security, seed)

	// The swap is still in flight: the same token trending again must not
	// be bought a second time.
	require.NoError(t, h.engine.Tick(context.Background()))
	assert.Empty(t, h.executor.entries, "token with an in-flight entry must not be re-entered")
	assert.Equal(t, 1, h.engine.Snapshot().PendingEntries)

	// The transaction mines; the journal entry becomes the one and only
	// position and the still-trending candidate stays blocked.
	h.node.receipts[hash] = &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(100),
	}
	h.executor.balances[token] = eth(1000)
	h.executor.quotes[token] = eth(0.3) // flat, no exit

	require.NoError(t, h.engine.Tick(context.Background()))
	assert.Empty(t, h.executor.entries)
	snap := h.engine.Snapshot()
	assert.Equal(t, 1, snap.TotalPositions)
	assert.Equal(t, 0, snap.PendingEntries)
}

func TestReconcileDropsPendingForHeldToken(t *testing.T) {
	held := testPosition(tokenA, eth(1), 100)
	hash := common.HexToHash("0xfeed")
	seed := domain.BookState{
		Positions: []domain.Position{held},
		Pending: []domain.PendingEntry{{
			TxHash:      hash,
			Token:       tokenA,
			BaseToken:   wbase,
			BaseAmount:  eth(0.3),
			SubmittedAt: time.Now().Add(-time.Minute),
		}},
	}

	h := newHarness(t, `{"pairs": []}`, nil, seed)
	h.pricer.price = 100
	h.node.receipts[hash] = &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(100),
	}
	h.executor.balances[tokenA] = eth(2000)
	h.executor.quotes[tokenA] = eth(1) // flat, no exit

	require.NoError(t, h.engine.Tick(context.Background()))

	snap := h.engine.Snapshot()
	require.Equal(t, 1, snap.TotalPositions, "held token must keep exactly one position")
	assert.Equal(t, held.ID, snap.Positions[0].ID)
	assert.Equal(t, 0, snap.PendingEntries)
}

func TestReconcileKeepsRecentUnminedPending(t *testing.T) {
	seed := domain.BookState{Pending: []domain.PendingEntry{{
		TxHash:      common.HexToHash("0xfeed"),
		Token:       gemToken(1),
		BaseToken:   wbase,
		BaseAmount:  eth(0.3),
		SubmittedAt: time.Now().Add(-time.Minute),
	}}}

	h := newHarness(t, `{"pairs": []}`, nil, seed)

	require.NoError(t, h.engine.Tick(context.Background()))
	assert.Equal(t, 1, h.engine.Snapshot().PendingEntries)
}

func TestTickSurfacesPersistFailure(t *testing.T) {
	token := gemToken(1)
	trending := `{"pairs": [` + momentumPair(1, "GEM") + `]}`
	security := map[string]string{strings.ToLower(token.Hex()): cleanSecurityJSON()}

	h := newHarness(t, trending, security, domain.BookState{})
	h.executor.quotes[token] = h.cfg.PositionSizeWei()
	saveErr := errors.New("disk full")
	h.store.saveErr = saveErr

	err := h.engine.Tick(context.Background())
	require.ErrorIs(t, err, saveErr, "a tick must not claim success while new state is unsaved")
	assert.Len(t, h.executor.entries, 1, "the trade itself executed before the save failed")
	assert.Equal(t, 0, h.store.saves)
}

func TestTickValuationFailureAbortsCycle(t *testing.T) {
	held := testPosition(tokenA, eth(1), 100)

	h := newHarness(t, `{"pairs": []}`, nil, domain.BookState{Positions: []domain.Position{held}})
	// No quote registered for the held token: refresh cannot value it.

	err := h.engine.Tick(context.Background())
	require.ErrorIs(t, err, domain.ErrEmptyRoute)
	assert.Empty(t, h.executor.exits)
	assert.Equal(t, 0, h.store.saves, "a cycle that cannot value the book persists nothing")
}

func TestHealthCheck(t *testing.T) {
	h := newHarness(t, `{"pairs": []}`, nil, domain.BookState{})
	status, err := h.engine.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok:123", status)
}
