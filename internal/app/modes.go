package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// TradeMode runs the autonomous decision loop, with the monitoring server
// alongside it when enabled.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	eng, err := a.buildEngine(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return eng.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		srv := a.buildServer(eng)
		g.Go(func() error {
			return srv.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// OnceMode runs exactly one decision cycle and reports the resulting book.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "running single cycle")

	eng, err := a.buildEngine(ctx, deps)
	if err != nil {
		return err
	}
	if err := eng.Tick(ctx); err != nil {
		return fmt.Errorf("app: cycle: %w", err)
	}

	snap := eng.Snapshot()
	a.logger.InfoContext(ctx, "cycle complete",
		slog.Int("positions", snap.TotalPositions),
		slog.Int("pending", snap.PendingEntries),
		slog.Float64("total_value_usd", snap.TotalValueUSD))
	return printJSON(snap)
}

// ScanMode runs discovery once and prints the ranked candidates.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "running discovery scan")

	eng, err := a.buildEngine(ctx, deps)
	if err != nil {
		return err
	}
	candidates, err := eng.ScanOnce(ctx)
	if err != nil {
		return fmt.Errorf("app: scan: %w", err)
	}

	a.logger.InfoContext(ctx, "scan complete", slog.Int("candidates", len(candidates)))
	return printJSON(candidates)
}

// EvaluateMode runs a full risk evaluation of one token contract and
// prints the verdict.
func (a *App) EvaluateMode(ctx context.Context, deps *Dependencies) error {
	if !common.IsHexAddress(a.cfg.Engine.EvaluateToken) {
		return fmt.Errorf("app: invalid evaluate token %q", a.cfg.Engine.EvaluateToken)
	}
	token := common.HexToAddress(a.cfg.Engine.EvaluateToken)
	a.logger.InfoContext(ctx, "evaluating token", slog.String("token", token.Hex()))

	eng, err := a.buildEngine(ctx, deps)
	if err != nil {
		return err
	}
	cand, report, err := eng.EvaluateToken(ctx, token)
	if err != nil {
		return fmt.Errorf("app: evaluate: %w", err)
	}

	a.logger.InfoContext(ctx, "evaluation complete",
		slog.String("symbol", cand.TokenSymbol),
		slog.Float64("score", report.Score),
		slog.Bool("safe", report.Safe))
	return printJSON(map[string]any{
		"candidate": cand,
		"report":    report,
	})
}

// HealthMode probes the RPC node and exits.
func (a *App) HealthMode(ctx context.Context, deps *Dependencies) error {
	eng, err := a.buildEngine(ctx, deps)
	if err != nil {
		return err
	}
	status, err := eng.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("app: health: %w", err)
	}
	a.logger.InfoContext(ctx, "health check passed", slog.String("status", status))
	fmt.Println(status)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
