package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/gembot/internal/blob/s3"
	"github.com/alanyoungcy/gembot/internal/cache/redis"
	"github.com/alanyoungcy/gembot/internal/chain"
	"github.com/alanyoungcy/gembot/internal/config"
	"github.com/alanyoungcy/gembot/internal/crypto"
	"github.com/alanyoungcy/gembot/internal/domain"
	"github.com/alanyoungcy/gembot/internal/engine"
	"github.com/alanyoungcy/gembot/internal/notify"
	"github.com/alanyoungcy/gembot/internal/platform/defillama"
	"github.com/alanyoungcy/gembot/internal/platform/dexscreener"
	"github.com/alanyoungcy/gembot/internal/platform/goplus"
	"github.com/alanyoungcy/gembot/internal/server"
	"github.com/alanyoungcy/gembot/internal/server/handler"
	"github.com/alanyoungcy/gembot/internal/service"
	"github.com/alanyoungcy/gembot/internal/store/file"
	"github.com/alanyoungcy/gembot/internal/store/postgres"
)

// Dependencies bundles the concrete collaborators the operating modes
// need. Optional pieces (cache, archive, notifications, chain access) stay
// nil when not configured or not needed by the mode.
type Dependencies struct {
	Store    domain.PositionStore
	Pricer   domain.BasePricer
	Scanner  *engine.Scanner
	Risk     *engine.RiskAnalyzer
	Chain    *chain.Client
	Executor *chain.Executor
	Notifier *notify.Notifier
	Archiver *s3blob.Archiver
}

// needsChain reports whether the mode talks to an RPC node.
func needsChain(mode string) bool {
	switch mode {
	case "trade", "once", "health":
		return true
	default:
		return false
	}
}

// needsWallet reports whether the mode signs transactions.
func needsWallet(mode string) bool {
	switch mode {
	case "trade", "once":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependencies from the configuration and
// returns them with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// Position store.
	switch cfg.Store.Backend {
	case "postgres":
		pgClient, err := postgres.New(ctx, cfg.Store)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
		deps.Store = postgres.NewPositionStore(pgClient.Pool())
	default:
		fileStore, err := file.NewPositionStore(cfg.Store.Path)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: file store: %w", err)
		}
		deps.Store = fileStore
	}

	// Optional price cache.
	var priceCache domain.PriceCache
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		priceCache = redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
	}

	// Market data, security feed, and pricing.
	feedTimeout := cfg.Engine.FeedTimeout.Duration
	deps.Scanner = engine.NewScanner(dexscreener.NewClient(dexscreener.DefaultBaseURL, feedTimeout), cfg, logger)
	deps.Risk = engine.NewRiskAnalyzer(goplus.NewClient(goplus.DefaultBaseURL, feedTimeout), cfg, logger)

	oracle := defillama.NewClient(defillama.DefaultBaseURL, cfg.ChainKey(), feedTimeout)
	deps.Pricer = service.NewPriceService(oracle, priceCache, cfg.ChainKey(), cfg.Redis.PriceTTL.Duration, logger)

	// Chain access for modes that need it; the wallet only for modes
	// that sign.
	if needsChain(cfg.Mode) {
		var wallet *crypto.Wallet
		if needsWallet(cfg.Mode) {
			var err error
			wallet, err = crypto.LoadKey(crypto.KeyConfig{
				RawPrivateKey:    cfg.Wallet.PrivateKey,
				EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
				KeyPassword:      cfg.Wallet.KeyPassword,
			})
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: wallet: %w", err)
			}
		}

		chainClient, err := chain.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.ID, wallet)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain: %w", err)
		}
		closers = append(closers, chainClient.Close)
		deps.Chain = chainClient

		deps.Executor = chain.NewExecutor(chainClient, chain.ExecutorConfig{
			Router:         cfg.RouterAddress(),
			MaxSlippageBps: int64(cfg.Exchange.MaxSlippageBps),
			Deadline:       cfg.SwapDeadline(),
			GasPriceWei:    cfg.GasPriceWei(),
		})
	}

	// Optional closed-trade archive.
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, cfg.Archive)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), cfg.Archive.Prefix)
	}

	// Notifications.
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	return deps, cleanup, nil
}

// buildEngine assembles the decision engine from wired dependencies,
// loading the persisted book. Chain-dependent collaborators may be nil for
// modes that never tick.
func (a *App) buildEngine(ctx context.Context, deps *Dependencies) (*engine.Engine, error) {
	engineDeps := engine.Deps{
		Config:  a.cfg,
		Scanner: deps.Scanner,
		Risk:    deps.Risk,
		Pricer:  deps.Pricer,
		Store:   deps.Store,
		Logger:  a.logger,
	}
	if deps.Executor != nil {
		engineDeps.Executor = deps.Executor
	}
	if deps.Chain != nil {
		engineDeps.Node = deps.Chain
	}
	if deps.Notifier != nil {
		engineDeps.Notifier = deps.Notifier
	}
	if deps.Archiver != nil {
		engineDeps.Archiver = deps.Archiver
	}

	eng, err := engine.New(ctx, engineDeps)
	if err != nil {
		return nil, fmt.Errorf("app: build engine: %w", err)
	}
	return eng, nil
}

// buildServer assembles the monitoring HTTP server over the engine.
func (a *App) buildServer(eng *engine.Engine) *server.Server {
	return server.NewServer(a.cfg.Server.Port, server.Handlers{
		Health:    handler.NewHealthHandler(eng),
		Portfolio: handler.NewPortfolioHandler(eng),
	}, a.logger)
}
