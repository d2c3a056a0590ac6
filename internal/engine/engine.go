package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/alanyoungcy/gembot/internal/config"
	"github.com/alanyoungcy/gembot/internal/domain"
)

// pendingExpiry is how long a journaled entry transaction may stay
// unmined before it is written off as dropped.
const pendingExpiry = 15 * time.Minute

// Notification event names.
const (
	EventEntryExecuted  = "entry_executed"
	EventPositionClosed = "position_closed"
	EventCycleError     = "cycle_error"
)

// TradeExecutor is the swap-execution surface the engine drives. The
// chain package provides the production implementation.
type TradeExecutor interface {
	domain.Quoter
	ExecuteEntry(ctx context.Context, token, base common.Address, amountIn *big.Int) (*domain.ExecutionResult, error)
	ExecuteExit(ctx context.Context, order *domain.ExitOrder) (*domain.ExecutionResult, error)
	TokenBalance(ctx context.Context, token common.Address) (*big.Int, error)
}

// NodeReader exposes the node reads the engine needs outside of swaps:
// receipt lookups for reconciliation and head-block checks for liveness.
type NodeReader interface {
	Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	LatestBlock(ctx context.Context) (uint64, error)
}

// Notifier delivers operational events to external channels. Delivery is
// best-effort; the engine never blocks on it.
type Notifier interface {
	Notify(ctx context.Context, event, message string)
}

// TradeArchiver records closed trades in long-term storage.
type TradeArchiver interface {
	ArchiveClosedTrade(ctx context.Context, p domain.Position, res *domain.ExecutionResult, reason domain.ExitReason) error
}

// Deps bundles the engine's collaborators. Notifier and Archiver are
// optional.
type Deps struct {
	Config   *config.Config
	Scanner  *Scanner
	Risk     *RiskAnalyzer
	Executor TradeExecutor
	Node     NodeReader
	Pricer   domain.BasePricer
	Store    domain.PositionStore
	Notifier Notifier
	Archiver TradeArchiver
	Logger   *slog.Logger
}

// Engine is the decision orchestrator. Each tick runs one strictly
// sequential cycle: reconcile pending entries, refresh valuations, enter
// new positions while capacity allows, evaluate exits, persist.
type Engine struct {
	cfg      *config.Config
	scanner  *Scanner
	risk     *RiskAnalyzer
	executor TradeExecutor
	node     NodeReader
	pricer   domain.BasePricer
	store    domain.PositionStore
	notifier Notifier
	archiver TradeArchiver
	book     *Book
	logger   *slog.Logger
}

// New creates an engine and loads the persisted book.
func New(ctx context.Context, deps Deps) (*Engine, error) {
	e := &Engine{
		cfg:      deps.Config,
		scanner:  deps.Scanner,
		risk:     deps.Risk,
		executor: deps.Executor,
		node:     deps.Node,
		pricer:   deps.Pricer,
		store:    deps.Store,
		notifier: deps.Notifier,
		archiver: deps.Archiver,
		book:     NewBook(),
		logger:   deps.Logger.With("component", "engine"),
	}
	if err := e.book.Load(ctx, e.store); err != nil {
		return nil, err
	}
	return e, nil
}

// Run executes the decision loop until the context is cancelled. Cycles
// never overlap; a slow cycle delays the next tick.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("starting trading loop",
		"interval", e.cfg.Engine.LoopInterval.Duration,
		"chain", e.cfg.ChainKey())

	ticker := time.NewTicker(e.cfg.Engine.LoopInterval.Duration)
	defer ticker.Stop()

	for {
		if err := e.Tick(ctx); err != nil {
			e.logger.Error("tick failed", "error", err)
			e.notify(ctx, EventCycleError, fmt.Sprintf("cycle failed: %v", err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one full decision cycle under the book's write lock, so
// monitoring snapshots observe either the pre-cycle or post-cycle state,
// never a partial update.
func (e *Engine) Tick(ctx context.Context) error {
	e.book.mu.Lock()
	defer e.book.mu.Unlock()

	e.reconcilePending(ctx)

	if err := e.book.refresh(ctx, e.executor, e.pricer); err != nil {
		// Stale valuations must not drive trades; nothing is persisted
		// and the next scheduled tick is the retry.
		return err
	}

	if err := e.entryPhase(ctx); err != nil {
		// Discovery trouble blocks new entries only; open positions
		// still need their exit checks.
		e.logger.Warn("entry phase aborted", "error", err)
	}

	if err := e.exitPhase(ctx); err != nil {
		return err
	}

	return e.book.persist(ctx, e.store)
}

// entryPhase discovers, risk-filters, and enters candidates while the
// book has capacity.
func (e *Engine) entryPhase(ctx context.Context) error {
	if e.book.openPositions() >= e.cfg.Strategy.MaxPositions {
		e.logger.Info("max positions reached, skipping new entries",
			"open", e.book.openPositions())
		return nil
	}

	candidates, err := e.scanner.DiscoverCandidates(ctx)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		e.logger.Info("no candidate pairs discovered")
		return nil
	}

	for _, scored := range e.risk.EvaluateCandidates(ctx, candidates) {
		if e.book.openPositions() >= e.cfg.Strategy.MaxPositions {
			break
		}
		cand := scored.Candidate
		if e.book.isHolding(cand.TokenAddress) || e.book.isPendingToken(cand.TokenAddress) {
			continue
		}
		if !e.scanner.HasMomentum(&cand) {
			e.logger.Info("insufficient momentum, skipping",
				"token", cand.TokenAddress.Hex(), "symbol", cand.TokenSymbol)
			continue
		}
		if err := e.enterPosition(ctx, &cand, scored.Report.Score); err != nil {
			e.logger.Error("entry failed",
				"token", cand.TokenAddress.Hex(), "symbol", cand.TokenSymbol, "error", err)
		}
	}
	return nil
}

// enterPosition sizes and executes one entry swap. A confirmation timeout
// journals the transaction instead of discarding it, so a late-mined swap
// is absorbed next cycle rather than orphaned on chain.
func (e *Engine) enterPosition(ctx context.Context, cand *domain.Candidate, riskScore float64) error {
	size := e.cfg.PositionSizeWei()

	basePrice, err := e.pricer.BasePriceUSD(ctx, cand.BaseToken)
	if err != nil {
		return fmt.Errorf("engine: pricing base asset: %w", err)
	}
	baseDecimals, err := e.executor.TokenDecimals(ctx, cand.BaseToken)
	if err != nil {
		baseDecimals = 18
	}

	exec, err := e.executor.ExecuteEntry(ctx, cand.TokenAddress, cand.BaseToken, size)
	if err != nil {
		if errors.Is(err, domain.ErrTxTimeout) && exec != nil {
			e.book.addPending(domain.PendingEntry{
				TxHash:        exec.TxHash,
				Token:         cand.TokenAddress,
				BaseToken:     cand.BaseToken,
				TokenSymbol:   cand.TokenSymbol,
				BaseAmount:    exec.BaseAmount,
				EntryPriceUSD: cand.PriceUSD,
				RiskScore:     riskScore,
				SubmittedAt:   time.Now().UTC(),
			})
			e.logger.Warn("entry unconfirmed, journaled for reconciliation",
				"token", cand.TokenAddress.Hex(), "tx", exec.TxHash.Hex())
		}
		return err
	}

	pos := newPosition(cand, exec, riskScore, e.cfg.Strategy.TakeProfitBps, e.cfg.Strategy.StopLossBps, basePrice, baseDecimals)
	e.book.addPosition(pos)

	e.logger.Info("entry executed",
		"token", cand.TokenAddress.Hex(),
		"symbol", cand.TokenSymbol,
		"tx", exec.TxHash.Hex(),
		"tokens", exec.TokenAmount.String())
	e.notify(ctx, EventEntryExecuted,
		fmt.Sprintf("entered %s (%s), spent %s wei, tx %s",
			cand.TokenSymbol, cand.TokenAddress.Hex(), exec.BaseAmount, exec.TxHash.Hex()))
	return nil
}

// exitPhase generates and executes exit orders. One order failing leaves
// its position untouched for the next cycle; successes close immediately.
func (e *Engine) exitPhase(ctx context.Context) error {
	if e.book.openPositions() == 0 {
		return nil
	}

	orders, err := e.book.generateExitOrders(ctx, e.executor, e.pricer, int64(e.cfg.Exchange.MaxSlippageBps))
	if err != nil {
		return err
	}

	for i := range orders {
		order := orders[i]
		res, err := e.executor.ExecuteExit(ctx, &order)
		if err != nil {
			e.logger.Error("exit failed",
				"position", order.PositionID, "reason", order.Reason, "error", err)
			continue
		}
		closed, err := e.book.closePosition(order.PositionID)
		if err != nil {
			return err
		}
		e.logger.Info("position closed",
			"position", order.PositionID,
			"symbol", closed.TokenSymbol,
			"reason", order.Reason,
			"redeemed", res.BaseAmount.String(),
			"tx", res.TxHash.Hex())
		e.notify(ctx, EventPositionClosed,
			fmt.Sprintf("closed %s (%s), redeemed %s wei, tx %s",
				closed.TokenSymbol, order.Reason, res.BaseAmount, res.TxHash.Hex()))
		e.archive(ctx, closed, res, order.Reason)
	}
	return nil
}

// reconcilePending resolves journaled entry transactions. Mined entries
// are promoted into positions; reverted or expired ones are dropped.
// Nodes that cannot answer yet leave the journal entry in place.
func (e *Engine) reconcilePending(ctx context.Context) {
	for _, pe := range e.book.pendingEntries() {
		receipt, err := e.node.Receipt(ctx, pe.TxHash)
		switch {
		case errors.Is(err, domain.ErrMissingReceipt):
			if time.Since(pe.SubmittedAt) > pendingExpiry {
				e.logger.Warn("pending entry expired without receipt, dropping",
					"token", pe.Token.Hex(), "tx", pe.TxHash.Hex())
				e.book.removePending(pe.TxHash)
			}
		case err != nil:
			e.logger.Warn("receipt lookup failed, keeping pending entry",
				"tx", pe.TxHash.Hex(), "error", err)
		case receipt.Status == types.ReceiptStatusFailed:
			e.logger.Warn("pending entry reverted, dropping",
				"token", pe.Token.Hex(), "tx", pe.TxHash.Hex())
			e.book.removePending(pe.TxHash)
		default:
			e.promotePending(ctx, pe, receipt)
		}
	}
}

// promotePending turns a late-mined entry into a position. The book holds
// at most one position per token, so the wallet's entire token balance is
// attributable to this fill.
func (e *Engine) promotePending(ctx context.Context, pe domain.PendingEntry, receipt *types.Receipt) {
	if e.book.isHolding(pe.Token) {
		// Can only happen with a journal from older persisted state; the
		// balance is no longer attributable to this fill alone, so keep
		// the existing position and retire the journal entry.
		e.logger.Warn("token already held, dropping duplicate pending entry",
			"token", pe.Token.Hex(), "tx", pe.TxHash.Hex())
		e.book.removePending(pe.TxHash)
		return
	}

	tokenBalance, err := e.executor.TokenBalance(ctx, pe.Token)
	if err != nil || tokenBalance.Sign() <= 0 {
		e.logger.Warn("cannot size late-mined entry yet, keeping pending",
			"token", pe.Token.Hex(), "tx", pe.TxHash.Hex(), "error", err)
		return
	}
	basePrice, err := e.pricer.BasePriceUSD(ctx, pe.BaseToken)
	if err != nil {
		e.logger.Warn("cannot price late-mined entry yet, keeping pending",
			"token", pe.Token.Hex(), "error", err)
		return
	}
	baseDecimals, err := e.executor.TokenDecimals(ctx, pe.BaseToken)
	if err != nil {
		baseDecimals = 18
	}

	pos := domain.Position{
		ID:                 uuid.New(),
		Token:              pe.Token,
		BaseToken:          pe.BaseToken,
		TokenSymbol:        pe.TokenSymbol,
		BaseSpent:          pe.BaseAmount,
		TokenAmount:        tokenBalance,
		EntryTokenPriceUSD: pe.EntryPriceUSD,
		EntryBasePriceUSD:  basePrice,
		BaseTokenDecimals:  baseDecimals,
		EntryTimestamp:     pe.SubmittedAt,
		LastValueUSD:       domain.AmountToFloat(pe.BaseAmount, baseDecimals) * basePrice,
		LastUpdatedAt:      time.Now().UTC(),
		RiskScore:          pe.RiskScore,
		TakeProfitBps:      e.cfg.Strategy.TakeProfitBps,
		StopLossBps:        e.cfg.Strategy.StopLossBps,
		EntryTx:            pe.TxHash.Hex(),
	}
	e.book.removePending(pe.TxHash)
	e.book.addPosition(pos)
	e.logger.Info("late-mined entry reconciled into position",
		"token", pe.Token.Hex(), "tx", pe.TxHash.Hex(), "block", receipt.BlockNumber)
}

// newPosition builds a position from a confirmed entry execution.
func newPosition(cand *domain.Candidate, exec *domain.ExecutionResult, riskScore float64, takeProfitBps, stopLossBps uint32, basePrice float64, baseDecimals uint8) domain.Position {
	entryValue := domain.AmountToFloat(exec.BaseAmount, baseDecimals) * basePrice
	return domain.Position{
		ID:                 uuid.New(),
		Token:              cand.TokenAddress,
		BaseToken:          cand.BaseToken,
		TokenSymbol:        cand.TokenSymbol,
		BaseSpent:          exec.BaseAmount,
		TokenAmount:        exec.TokenAmount,
		EntryTokenPriceUSD: cand.PriceUSD,
		EntryBasePriceUSD:  basePrice,
		BaseTokenDecimals:  baseDecimals,
		EntryTimestamp:     exec.Timestamp,
		LastValueUSD:       entryValue,
		LastUpdatedAt:      exec.Timestamp,
		RiskScore:          riskScore,
		TakeProfitBps:      takeProfitBps,
		StopLossBps:        stopLossBps,
		EntryTx:            exec.TxHash.Hex(),
	}
}

// Snapshot serves the monitoring portfolio view.
func (e *Engine) Snapshot() domain.BookSnapshot {
	return e.book.Snapshot()
}

// HealthCheck probes node liveness without touching the book lock.
func (e *Engine) HealthCheck(ctx context.Context) (string, error) {
	block, err := e.node.LatestBlock(ctx)
	if err != nil {
		return "", fmt.Errorf("engine: health check: %w", err)
	}
	return fmt.Sprintf("ok:%d", block), nil
}

// ScanOnce runs discovery alone and returns the ranked candidates.
func (e *Engine) ScanOnce(ctx context.Context) ([]domain.Candidate, error) {
	return e.scanner.DiscoverCandidates(ctx)
}

// EvaluateToken inspects one token contract: it resolves the token's best
// pair on the configured chain and runs a full risk evaluation against it.
func (e *Engine) EvaluateToken(ctx context.Context, token common.Address) (domain.Candidate, domain.RiskReport, error) {
	candidates, err := e.scanner.TokenCandidates(ctx, token)
	if err != nil {
		return domain.Candidate{}, domain.RiskReport{}, err
	}
	if len(candidates) == 0 {
		return domain.Candidate{}, domain.RiskReport{},
			fmt.Errorf("engine: no pairs for token %s: %w", token.Hex(), domain.ErrNotFound)
	}

	best := candidates[0]
	for _, cand := range candidates[1:] {
		if cand.Confidence > best.Confidence {
			best = cand
		}
	}

	report, err := e.risk.EvaluateCandidate(ctx, &best)
	if err != nil {
		return domain.Candidate{}, domain.RiskReport{}, err
	}
	return best, report, nil
}

func (e *Engine) notify(ctx context.Context, event, message string) {
	if e.notifier != nil {
		e.notifier.Notify(ctx, event, message)
	}
}

func (e *Engine) archive(ctx context.Context, p domain.Position, res *domain.ExecutionResult, reason domain.ExitReason) {
	if e.archiver == nil {
		return
	}
	if err := e.archiver.ArchiveClosedTrade(ctx, p, res, reason); err != nil {
		e.logger.Warn("trade archive failed", "position", p.ID, "error", err)
	}
}
