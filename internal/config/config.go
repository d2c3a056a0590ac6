// Package config defines the top-level configuration for the gembot
// trading engine and provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by GEMBOT_* environment
// variables.
type Config struct {
	Chain    ChainConfig    `toml:"chain"`
	Wallet   WalletConfig   `toml:"wallet"`
	Exchange ExchangeConfig `toml:"exchange"`
	Strategy StrategyConfig `toml:"strategy"`
	Risk     RiskConfig     `toml:"risk"`
	Engine   EngineConfig   `toml:"engine"`
	Store    StoreConfig    `toml:"store"`
	Redis    RedisConfig    `toml:"redis"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ChainConfig holds network and RPC parameters.
type ChainConfig struct {
	ID             int64  `toml:"id"`
	RPCURL         string `toml:"rpc_url"`
	PollIntervalMs int    `toml:"poll_interval_ms"`
}

// WalletConfig holds the trading wallet credentials. Either a raw hex key
// or an encrypted key file plus password must be provided.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ExchangeConfig holds AMM router parameters and execution bounds.
type ExchangeConfig struct {
	RouterAddress   string `toml:"router_address"`
	MaxSlippageBps  int    `toml:"max_slippage_bps"`
	DeadlineSecs    int    `toml:"deadline_secs"`
	MaxGasPriceGwei int64  `toml:"max_gas_price_gwei"`
}

// StrategyConfig holds discovery and position-sizing parameters.
type StrategyConfig struct {
	MaxPositions          int      `toml:"max_positions"`
	PositionSizeEth       float64  `toml:"position_size_eth"`
	BlacklistedTokens     []string `toml:"blacklisted_tokens"`
	BlacklistedSymbols    []string `toml:"blacklisted_symbols"`
	TakeProfitBps         uint32   `toml:"take_profit_bps"`
	StopLossBps           uint32   `toml:"stop_loss_bps"`
	MomentumWindowMinutes int      `toml:"momentum_window_minutes"`
	MinLiquidityUSD       float64  `toml:"min_liquidity_usd"`
	MinDailyVolumeUSD     float64  `toml:"min_daily_volume_usd"`
	MinAgeMinutes         int      `toml:"min_age_minutes"`
}

// RiskConfig holds the token-safety heuristics thresholds.
type RiskConfig struct {
	MaxTopHolderPercent float64 `toml:"max_top_holder_percent"`
	MinLockRatio        float64 `toml:"min_lock_ratio"`
	MinHolderCount      int64   `toml:"min_holder_count"`
	MinRenouncedScore   float64 `toml:"min_renounced_score"`
	// EvalConcurrency caps the parallel security-feed lookups per cycle.
	EvalConcurrency int `toml:"eval_concurrency"`
}

// EngineConfig holds decision-loop timing parameters.
type EngineConfig struct {
	LoopInterval duration `toml:"loop_interval"`
	FeedTimeout  duration `toml:"feed_timeout"`
	// EvaluateToken is the contract address inspected in "evaluate" mode.
	EvaluateToken string `toml:"evaluate_token"`
}

// StoreConfig selects and configures the durable position store.
type StoreConfig struct {
	// Backend is "file" or "postgres".
	Backend string `toml:"backend"`
	// Path is the JSON document path for the file backend.
	Path string `toml:"path"`

	DSN      string `toml:"dsn"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	SSLMode  string `toml:"ssl_mode"`
	MaxConns int    `toml:"pool_max_conns"`
	MinConns int    `toml:"pool_min_conns"`
}

// RedisConfig holds the optional price-cache connection parameters. The
// cache is disabled when Addr is empty.
type RedisConfig struct {
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	PriceTTL   duration `toml:"price_ttl"`
}

// ArchiveConfig holds the optional S3-compatible closed-trade archive.
type ArchiveConfig struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// ServerConfig holds the monitoring HTTP server parameters.
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "30s", "5m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder
// can parse duration strings like "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			ID:             8453, // Base
			PollIntervalMs: 2000,
		},
		Exchange: ExchangeConfig{
			MaxSlippageBps:  300,
			DeadlineSecs:    120,
			MaxGasPriceGwei: 200,
		},
		Strategy: StrategyConfig{
			MaxPositions:          4,
			PositionSizeEth:       0.3,
			TakeProfitBps:         2500,
			StopLossBps:           1200,
			MomentumWindowMinutes: 15,
			MinLiquidityUSD:       120_000,
			MinDailyVolumeUSD:     250_000,
			MinAgeMinutes:         45,
		},
		Risk: RiskConfig{
			MaxTopHolderPercent: 18.0,
			MinLockRatio:        60.0,
			MinHolderCount:      500,
			MinRenouncedScore:   0.5,
			EvalConcurrency:     4,
		},
		Engine: EngineConfig{
			LoopInterval: duration{30 * time.Second},
			FeedTimeout:  duration{10 * time.Second},
		},
		Store: StoreConfig{
			Backend:  "file",
			Path:     "portfolio_state.json",
			Host:     "localhost",
			Port:     5432,
			Database: "gembot",
			User:     "postgres",
			SSLMode:  "disable",
			MaxConns: 10,
			MinConns: 2,
		},
		Redis: RedisConfig{
			PoolSize:   10,
			MaxRetries: 3,
			PriceTTL:   duration{30 * time.Second},
		},
		Archive: ArchiveConfig{
			Region: "us-east-1",
			Prefix: "closed",
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8787,
		},
		Notify: NotifyConfig{
			Events: []string{"entry_executed", "position_closed", "cycle_error"},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// chainKeys maps supported chain IDs to the slug used by the market-data
// and price-oracle feeds.
var chainKeys = map[int64]string{
	1:     "ethereum",
	10:    "optimism",
	56:    "bsc",
	137:   "polygon",
	8453:  "base",
	42161: "arbitrum",
}

// ChainKey returns the feed slug for the configured chain, or "" when the
// chain is not supported by the market-data feeds.
func (c *Config) ChainKey() string {
	return chainKeys[c.Chain.ID]
}

// PositionSizeWei converts the configured position size from whole native
// units to wei, preserving six decimal places.
func (c *Config) PositionSizeWei() *big.Int {
	micro := int64(c.Strategy.PositionSizeEth * 1e6)
	wei := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	wei.Mul(wei, big.NewInt(micro))
	return wei.Div(wei, big.NewInt(1_000_000))
}

// GasPriceWei returns the configured gas price ceiling in wei.
func (c *Config) GasPriceWei() *big.Int {
	gwei := big.NewInt(c.Exchange.MaxGasPriceGwei)
	return gwei.Mul(gwei, big.NewInt(1_000_000_000))
}

// SwapDeadline returns the swap deadline window.
func (c *Config) SwapDeadline() time.Duration {
	return time.Duration(c.Exchange.DeadlineSecs) * time.Second
}

// RouterAddress parses the configured router contract address.
func (c *Config) RouterAddress() common.Address {
	return common.HexToAddress(c.Exchange.RouterAddress)
}

// BlacklistedTokens parses the configured token blacklist.
func (c *Config) BlacklistedTokens() map[common.Address]bool {
	out := make(map[common.Address]bool, len(c.Strategy.BlacklistedTokens))
	for _, raw := range c.Strategy.BlacklistedTokens {
		if common.IsHexAddress(raw) {
			out[common.HexToAddress(raw)] = true
		}
	}
	return out
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":    true,
	"once":     true,
	"scan":     true,
	"evaluate": true,
	"health":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, once, scan, evaluate, health)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.ChainKey() == "" {
		errs = append(errs, fmt.Sprintf("chain: id %d is not supported by the market-data feeds", c.Chain.ID))
	}

	// Trading modes need a signing key and a router.
	needsWallet := c.Mode == "trade" || c.Mode == "once"
	if needsWallet {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
		if !common.IsHexAddress(c.Exchange.RouterAddress) {
			errs = append(errs, fmt.Sprintf("exchange: router_address %q is not a valid address", c.Exchange.RouterAddress))
		}
	}

	if c.Exchange.MaxSlippageBps <= 0 || c.Exchange.MaxSlippageBps >= 10_000 {
		errs = append(errs, fmt.Sprintf("exchange: max_slippage_bps must be in (0, 10000), got %d", c.Exchange.MaxSlippageBps))
	}
	if c.Exchange.DeadlineSecs <= 0 {
		errs = append(errs, "exchange: deadline_secs must be > 0")
	}
	if c.Exchange.MaxGasPriceGwei <= 0 {
		errs = append(errs, "exchange: max_gas_price_gwei must be > 0")
	}

	if c.Strategy.MaxPositions < 1 {
		errs = append(errs, "strategy: max_positions must be >= 1")
	}
	if c.Strategy.PositionSizeEth <= 0 {
		errs = append(errs, "strategy: position_size_eth must be > 0")
	}
	if c.Strategy.TakeProfitBps == 0 {
		errs = append(errs, "strategy: take_profit_bps must be > 0")
	}
	if c.Strategy.StopLossBps == 0 {
		errs = append(errs, "strategy: stop_loss_bps must be > 0")
	}
	for _, raw := range c.Strategy.BlacklistedTokens {
		if !common.IsHexAddress(raw) {
			errs = append(errs, fmt.Sprintf("strategy: blacklisted token %q is not a valid address", raw))
		}
	}

	if c.Risk.EvalConcurrency < 1 {
		errs = append(errs, "risk: eval_concurrency must be >= 1")
	}

	if c.Engine.LoopInterval.Duration <= 0 {
		errs = append(errs, "engine: loop_interval must be > 0")
	}
	if c.Engine.FeedTimeout.Duration <= 0 {
		errs = append(errs, "engine: feed_timeout must be > 0")
	}
	if c.Mode == "evaluate" && !common.IsHexAddress(c.Engine.EvaluateToken) {
		errs = append(errs, "engine: evaluate_token must be a contract address in evaluate mode")
	}

	switch c.Store.Backend {
	case "file":
		if c.Store.Path == "" {
			errs = append(errs, "store: path must not be empty for the file backend")
		}
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			if c.Store.Host == "" {
				errs = append(errs, "store: host must not be empty (or set store.dsn)")
			}
			if c.Store.Port <= 0 || c.Store.Port > 65535 {
				errs = append(errs, fmt.Sprintf("store: port must be 1-65535, got %d", c.Store.Port))
			}
			if c.Store.Database == "" {
				errs = append(errs, "store: database must not be empty")
			}
		}
		if c.Store.MaxConns < 1 {
			errs = append(errs, "store: pool_max_conns must be >= 1")
		}
		if c.Store.MinConns < 0 || c.Store.MinConns > c.Store.MaxConns {
			errs = append(errs, "store: pool_min_conns must be in [0, pool_max_conns]")
		}
	default:
		errs = append(errs, fmt.Sprintf("store: unknown backend %q (valid: file, postgres)", c.Store.Backend))
	}

	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.Archive.Enabled {
		if c.Archive.Bucket == "" {
			errs = append(errs, "archive: bucket must not be empty when enabled")
		}
		if c.Archive.Region == "" {
			errs = append(errs, "archive: region must not be empty when enabled")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
