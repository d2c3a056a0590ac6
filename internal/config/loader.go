package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies GEMBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known GEMBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setInt64(&cfg.Chain.ID, "GEMBOT_CHAIN_ID")
	setStr(&cfg.Chain.RPCURL, "GEMBOT_CHAIN_RPC_URL")
	setInt(&cfg.Chain.PollIntervalMs, "GEMBOT_CHAIN_POLL_INTERVAL_MS")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "GEMBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "GEMBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "GEMBOT_WALLET_KEY_PASSWORD")

	// ── Exchange ──
	setStr(&cfg.Exchange.RouterAddress, "GEMBOT_EXCHANGE_ROUTER_ADDRESS")
	setInt(&cfg.Exchange.MaxSlippageBps, "GEMBOT_EXCHANGE_MAX_SLIPPAGE_BPS")
	setInt(&cfg.Exchange.DeadlineSecs, "GEMBOT_EXCHANGE_DEADLINE_SECS")
	setInt64(&cfg.Exchange.MaxGasPriceGwei, "GEMBOT_EXCHANGE_MAX_GAS_PRICE_GWEI")

	// ── Strategy ──
	setInt(&cfg.Strategy.MaxPositions, "GEMBOT_STRATEGY_MAX_POSITIONS")
	setFloat64(&cfg.Strategy.PositionSizeEth, "GEMBOT_STRATEGY_POSITION_SIZE_ETH")
	setStringSlice(&cfg.Strategy.BlacklistedTokens, "GEMBOT_STRATEGY_BLACKLISTED_TOKENS")
	setStringSlice(&cfg.Strategy.BlacklistedSymbols, "GEMBOT_STRATEGY_BLACKLISTED_SYMBOLS")
	setUint32(&cfg.Strategy.TakeProfitBps, "GEMBOT_STRATEGY_TAKE_PROFIT_BPS")
	setUint32(&cfg.Strategy.StopLossBps, "GEMBOT_STRATEGY_STOP_LOSS_BPS")
	setInt(&cfg.Strategy.MomentumWindowMinutes, "GEMBOT_STRATEGY_MOMENTUM_WINDOW_MINUTES")
	setFloat64(&cfg.Strategy.MinLiquidityUSD, "GEMBOT_STRATEGY_MIN_LIQUIDITY_USD")
	setFloat64(&cfg.Strategy.MinDailyVolumeUSD, "GEMBOT_STRATEGY_MIN_DAILY_VOLUME_USD")
	setInt(&cfg.Strategy.MinAgeMinutes, "GEMBOT_STRATEGY_MIN_AGE_MINUTES")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxTopHolderPercent, "GEMBOT_RISK_MAX_TOP_HOLDER_PERCENT")
	setFloat64(&cfg.Risk.MinLockRatio, "GEMBOT_RISK_MIN_LOCK_RATIO")
	setInt64(&cfg.Risk.MinHolderCount, "GEMBOT_RISK_MIN_HOLDER_COUNT")
	setFloat64(&cfg.Risk.MinRenouncedScore, "GEMBOT_RISK_MIN_RENOUNCED_SCORE")
	setInt(&cfg.Risk.EvalConcurrency, "GEMBOT_RISK_EVAL_CONCURRENCY")

	// ── Engine ──
	setDuration(&cfg.Engine.LoopInterval, "GEMBOT_ENGINE_LOOP_INTERVAL")
	setDuration(&cfg.Engine.FeedTimeout, "GEMBOT_ENGINE_FEED_TIMEOUT")
	setStr(&cfg.Engine.EvaluateToken, "GEMBOT_ENGINE_EVALUATE_TOKEN")

	// ── Store ──
	setStr(&cfg.Store.Backend, "GEMBOT_STORE_BACKEND")
	setStr(&cfg.Store.Path, "GEMBOT_STORE_PATH")
	setStr(&cfg.Store.DSN, "GEMBOT_STORE_DSN")
	setStr(&cfg.Store.Host, "GEMBOT_STORE_HOST")
	setInt(&cfg.Store.Port, "GEMBOT_STORE_PORT")
	setStr(&cfg.Store.Database, "GEMBOT_STORE_DATABASE")
	setStr(&cfg.Store.User, "GEMBOT_STORE_USER")
	setStr(&cfg.Store.Password, "GEMBOT_STORE_PASSWORD")
	setStr(&cfg.Store.SSLMode, "GEMBOT_STORE_SSLMODE")
	setInt(&cfg.Store.MaxConns, "GEMBOT_STORE_POOL_MAX_CONNS")
	setInt(&cfg.Store.MinConns, "GEMBOT_STORE_POOL_MIN_CONNS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "GEMBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "GEMBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "GEMBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "GEMBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "GEMBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "GEMBOT_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.PriceTTL, "GEMBOT_REDIS_PRICE_TTL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "GEMBOT_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Endpoint, "GEMBOT_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "GEMBOT_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "GEMBOT_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "GEMBOT_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "GEMBOT_ARCHIVE_SECRET_KEY")
	setBool(&cfg.Archive.UseSSL, "GEMBOT_ARCHIVE_USE_SSL")
	setBool(&cfg.Archive.ForcePathStyle, "GEMBOT_ARCHIVE_FORCE_PATH_STYLE")
	setStr(&cfg.Archive.Prefix, "GEMBOT_ARCHIVE_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "GEMBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "GEMBOT_SERVER_PORT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "GEMBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "GEMBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "GEMBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "GEMBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "GEMBOT_MODE")
	setStr(&cfg.LogLevel, "GEMBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint32(dst *uint32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			*dst = uint32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
