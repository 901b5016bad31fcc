// Package config defines the top-level configuration for x-bot and provides
// validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Trading modes accepted in exchange.trading_mode.
const (
	TradingModeTestnet = "TESTNET"
	TradingModeLive    = "LIVE"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by XBOT_* environment variables.
type Config struct {
	Exchange ExchangeConfig `toml:"exchange"`
	Engine   EngineConfig   `toml:"engine"`
	Scanner  ScannerConfig  `toml:"scanner"`
	Strategy StrategyConfig `toml:"strategy"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ExchangeConfig holds Binance USDⓈ-M futures credentials and transport
// tuning.
type ExchangeConfig struct {
	TradingMode    string   `toml:"trading_mode"`
	APIKey         string   `toml:"api_key"`
	APISecret      string   `toml:"api_secret"`
	BaseURL        string   `toml:"base_url"`
	RecvWindow     int64    `toml:"recv_window"`
	RetryAttempts  int      `toml:"retry_attempts"`
	RetryBaseDelay duration `toml:"retry_base_delay"`
}

// EngineConfig holds position sizing, state storage and loop pacing.
type EngineConfig struct {
	StateBackend           string   `toml:"state_backend"`
	StateFile              string   `toml:"state_file"`
	MaxConcurrentPositions int      `toml:"max_concurrent_positions"`
	PositionSizeUSDT       float64  `toml:"position_size_usdt"`
	Leverage               int      `toml:"leverage"`
	LoopInterval           duration `toml:"loop_interval"`
	ErrorCooldown          duration `toml:"error_cooldown"`
	OrderQueryPacing       duration `toml:"order_query_pacing"`
	SymbolPacing           duration `toml:"symbol_pacing"`
	CandidatePacing        duration `toml:"candidate_pacing"`
}

// ScannerConfig controls how entry candidates are ranked.
type ScannerConfig struct {
	SymbolsToScan     int      `toml:"symbols_to_scan"`
	MinQuoteVolume24h float64  `toml:"min_24h_quote_volume"`
	QuoteAsset        string   `toml:"quote_asset"`
	StaticSymbols     []string `toml:"static_symbols"`
}

// StrategyConfig selects the signal source and its candle inputs.
type StrategyConfig struct {
	Name             string             `toml:"name"`
	KlineInterval    string             `toml:"kline_interval"`
	KlineLimit       int                `toml:"kline_limit"`
	HTFKlineInterval string             `toml:"htf_kline_interval"`
	HTFKlineLimit    int                `toml:"htf_kline_limit"`
	Params           map[string]float64 `toml:"params"`
}

// LedgerConfig holds the trade ledger location.
type LedgerConfig struct {
	CSVPath string `toml:"csv_path"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	InstanceLock bool     `toml:"instance_lock"`
	LockTTL      duration `toml:"lock_ttl"`
	StreamMaxLen int64    `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled         bool     `toml:"enabled"`
	Endpoint        string   `toml:"endpoint"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	AccessKey       string   `toml:"access_key"`
	SecretKey       string   `toml:"secret_key"`
	UseSSL          bool     `toml:"use_ssl"`
	ForcePathStyle  bool     `toml:"force_path_style"`
	Prefix          string   `toml:"prefix"`
	ArchiveInterval duration `toml:"archive_interval"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			TradingMode:    TradingModeTestnet,
			RecvWindow:     5000,
			RetryAttempts:  3,
			RetryBaseDelay: duration{500 * time.Millisecond},
		},
		Engine: EngineConfig{
			StateBackend:           "json",
			StateFile:              "open_positions.json",
			MaxConcurrentPositions: 1,
			PositionSizeUSDT:       100,
			Leverage:               10,
			LoopInterval:           duration{60 * time.Second},
			ErrorCooldown:          duration{60 * time.Second},
			OrderQueryPacing:       duration{200 * time.Millisecond},
			SymbolPacing:           duration{time.Second},
			CandidatePacing:        duration{2 * time.Second},
		},
		Scanner: ScannerConfig{
			SymbolsToScan:     20,
			MinQuoteVolume24h: 50_000_000,
			QuoteAsset:        "USDT",
		},
		Strategy: StrategyConfig{
			Name:             "simple_ema_crossover",
			KlineInterval:    "15m",
			KlineLimit:       250,
			HTFKlineInterval: "4h",
			HTFKlineLimit:    250,
			Params:           map[string]float64{},
		},
		Ledger: LedgerConfig{
			CSVPath: "trade_history.csv",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "xbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     10,
			MaxRetries:   3,
			InstanceLock: true,
			LockTTL:      duration{30 * time.Second},
			StreamMaxLen: 10_000,
		},
		S3: S3Config{
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			Bucket:          "xbot-data",
			ForcePathStyle:  true,
			Prefix:          "trades",
			ArchiveInterval: duration{time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"position_opened", "position_closed", "engine_error"},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validStateBackends = map[string]bool{
	"json": true,
	"bolt": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchange
	switch strings.ToUpper(c.Exchange.TradingMode) {
	case TradingModeTestnet, TradingModeLive:
	default:
		errs = append(errs, fmt.Sprintf("exchange: trading_mode must be TESTNET or LIVE, got %q", c.Exchange.TradingMode))
	}
	if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
		errs = append(errs, "exchange: api_key and api_secret are required")
	}
	if c.Exchange.RetryAttempts < 1 {
		errs = append(errs, "exchange: retry_attempts must be >= 1")
	}
	if c.Exchange.RecvWindow < 0 {
		errs = append(errs, "exchange: recv_window must be >= 0")
	}

	// Engine
	if !validStateBackends[strings.ToLower(c.Engine.StateBackend)] {
		errs = append(errs, fmt.Sprintf("engine: state_backend must be json or bolt, got %q", c.Engine.StateBackend))
	}
	if strings.TrimSpace(c.Engine.StateFile) == "" {
		errs = append(errs, "engine: state_file must not be empty")
	}
	if c.Engine.MaxConcurrentPositions < 1 {
		errs = append(errs, "engine: max_concurrent_positions must be >= 1")
	}
	if c.Engine.PositionSizeUSDT <= 0 {
		errs = append(errs, "engine: position_size_usdt must be > 0")
	}
	if c.Engine.Leverage < 1 || c.Engine.Leverage > 125 {
		errs = append(errs, fmt.Sprintf("engine: leverage must be 1-125, got %d", c.Engine.Leverage))
	}
	if c.Engine.LoopInterval.Duration <= 0 {
		errs = append(errs, "engine: loop_interval must be > 0")
	}
	if c.Engine.ErrorCooldown.Duration <= 0 {
		errs = append(errs, "engine: error_cooldown must be > 0")
	}

	// Scanner
	if len(c.Scanner.StaticSymbols) == 0 {
		if c.Scanner.SymbolsToScan < 1 {
			errs = append(errs, "scanner: symbols_to_scan must be >= 1")
		}
		if c.Scanner.QuoteAsset == "" {
			errs = append(errs, "scanner: quote_asset must not be empty")
		}
	}

	// Strategy
	if c.Strategy.Name == "" {
		errs = append(errs, "strategy: name must not be empty")
	}
	if c.Strategy.KlineInterval == "" {
		errs = append(errs, "strategy: kline_interval must not be empty")
	}
	if c.Strategy.KlineLimit < 1 || c.Strategy.KlineLimit > 1500 {
		errs = append(errs, fmt.Sprintf("strategy: kline_limit must be 1-1500, got %d", c.Strategy.KlineLimit))
	}

	// Ledger
	if strings.TrimSpace(c.Ledger.CSVPath) == "" {
		errs = append(errs, "ledger: csv_path must not be empty")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.InstanceLock && c.Redis.LockTTL.Duration < time.Second {
			errs = append(errs, "redis: lock_ttl must be >= 1s")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.ArchiveInterval.Duration <= 0 {
			errs = append(errs, "s3: archive_interval must be > 0")
		}
	}

	// Server
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
