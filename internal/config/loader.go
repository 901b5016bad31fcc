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
// built-in defaults, applies XBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known XBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.TradingMode, "XBOT_EXCHANGE_TRADING_MODE")
	setStr(&cfg.Exchange.TradingMode, "TRADING_MODE") // compatibility alias
	setStr(&cfg.Exchange.APIKey, "XBOT_EXCHANGE_API_KEY")
	setStr(&cfg.Exchange.APISecret, "XBOT_EXCHANGE_API_SECRET")
	setStr(&cfg.Exchange.BaseURL, "XBOT_EXCHANGE_BASE_URL")
	setInt64(&cfg.Exchange.RecvWindow, "XBOT_EXCHANGE_RECV_WINDOW")
	setInt(&cfg.Exchange.RetryAttempts, "XBOT_EXCHANGE_RETRY_ATTEMPTS")
	setDuration(&cfg.Exchange.RetryBaseDelay, "XBOT_EXCHANGE_RETRY_BASE_DELAY")

	// ── Engine ──
	setStr(&cfg.Engine.StateBackend, "XBOT_ENGINE_STATE_BACKEND")
	setStr(&cfg.Engine.StateFile, "XBOT_ENGINE_STATE_FILE")
	setInt(&cfg.Engine.MaxConcurrentPositions, "XBOT_ENGINE_MAX_CONCURRENT_POSITIONS")
	setFloat64(&cfg.Engine.PositionSizeUSDT, "XBOT_ENGINE_POSITION_SIZE_USDT")
	setInt(&cfg.Engine.Leverage, "XBOT_ENGINE_LEVERAGE")
	setDuration(&cfg.Engine.LoopInterval, "XBOT_ENGINE_LOOP_INTERVAL")
	setDuration(&cfg.Engine.ErrorCooldown, "XBOT_ENGINE_ERROR_COOLDOWN")
	setDuration(&cfg.Engine.OrderQueryPacing, "XBOT_ENGINE_ORDER_QUERY_PACING")
	setDuration(&cfg.Engine.SymbolPacing, "XBOT_ENGINE_SYMBOL_PACING")
	setDuration(&cfg.Engine.CandidatePacing, "XBOT_ENGINE_CANDIDATE_PACING")

	// ── Scanner ──
	setInt(&cfg.Scanner.SymbolsToScan, "XBOT_SCANNER_SYMBOLS_TO_SCAN")
	setFloat64(&cfg.Scanner.MinQuoteVolume24h, "XBOT_SCANNER_MIN_24H_QUOTE_VOLUME")
	setStr(&cfg.Scanner.QuoteAsset, "XBOT_SCANNER_QUOTE_ASSET")
	setStringSlice(&cfg.Scanner.StaticSymbols, "XBOT_SCANNER_STATIC_SYMBOLS")

	// ── Strategy ──
	setStr(&cfg.Strategy.Name, "XBOT_STRATEGY_NAME")
	setStr(&cfg.Strategy.KlineInterval, "XBOT_STRATEGY_KLINE_INTERVAL")
	setInt(&cfg.Strategy.KlineLimit, "XBOT_STRATEGY_KLINE_LIMIT")
	setStr(&cfg.Strategy.HTFKlineInterval, "XBOT_STRATEGY_HTF_KLINE_INTERVAL")
	setInt(&cfg.Strategy.HTFKlineLimit, "XBOT_STRATEGY_HTF_KLINE_LIMIT")

	// ── Ledger ──
	setStr(&cfg.Ledger.CSVPath, "XBOT_LEDGER_CSV_PATH")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "XBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "XBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "XBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "XBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "XBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "XBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "XBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "XBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "XBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "XBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "XBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "XBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "XBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "XBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "XBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "XBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "XBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "XBOT_REDIS_TLS_ENABLED")
	setBool(&cfg.Redis.InstanceLock, "XBOT_REDIS_INSTANCE_LOCK")
	setDuration(&cfg.Redis.LockTTL, "XBOT_REDIS_LOCK_TTL")
	setInt64(&cfg.Redis.StreamMaxLen, "XBOT_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "XBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "XBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "XBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "XBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "XBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "XBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "XBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "XBOT_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "XBOT_S3_PREFIX")
	setDuration(&cfg.S3.ArchiveInterval, "XBOT_S3_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "XBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "XBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "XBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "XBOT_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "XBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "XBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "XBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "XBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "XBOT_MODE")
	setStr(&cfg.LogLevel, "XBOT_LOG_LEVEL")
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
