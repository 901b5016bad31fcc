package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	s3blob "github.com/brhmrsln/x-bot/internal/blob/s3"
	"github.com/brhmrsln/x-bot/internal/cache/memory"
	"github.com/brhmrsln/x-bot/internal/cache/redis"
	"github.com/brhmrsln/x-bot/internal/config"
	"github.com/brhmrsln/x-bot/internal/domain"
	"github.com/brhmrsln/x-bot/internal/engine"
	"github.com/brhmrsln/x-bot/internal/exchange"
	"github.com/brhmrsln/x-bot/internal/exchange/binance"
	"github.com/brhmrsln/x-bot/internal/ledger"
	"github.com/brhmrsln/x-bot/internal/notify"
	"github.com/brhmrsln/x-bot/internal/server/handler"
	"github.com/brhmrsln/x-bot/internal/state"
	"github.com/brhmrsln/x-bot/internal/store/postgres"
	"github.com/brhmrsln/x-bot/internal/strategy"
)

// Dependencies bundles everything the run modes need. It is constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Gateway  domain.ExchangeGateway
	Scanner  domain.MarketScanner
	Strategy strategy.Strategy

	State  domain.StateStore
	Ledger domain.TradeLedger

	// Optional; nil when the backing service is disabled.
	TradeStore domain.TradeStore
	AuditStore domain.AuditStore
	Lock       domain.LockManager
	Archiver   *s3blob.TradeArchiver

	// Events is Redis-backed when Redis is enabled and in-process otherwise.
	Events domain.EventBus

	Notifier *notify.Notifier
	Registry *prometheus.Registry
	Metrics  *engine.Metrics

	// Checks are the dependencies reported by the health endpoint.
	Checks map[string]handler.Pinger
}

// Wire constructs the concrete dependencies described by cfg and returns
// them together with a cleanup function to call on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{
		Registry: prometheus.NewRegistry(),
		Checks:   make(map[string]handler.Pinger),
	}
	deps.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	deps.Metrics = engine.NewMetrics(deps.Registry)

	// --- Exchange ---
	baseURL := cfg.Exchange.BaseURL
	if baseURL == "" {
		baseURL = binance.BaseURLFor(cfg.Exchange.TradingMode)
	}
	client := binance.New(binance.Config{
		APIKey:     cfg.Exchange.APIKey,
		APISecret:  cfg.Exchange.APISecret,
		BaseURL:    baseURL,
		RecvWindow: time.Duration(cfg.Exchange.RecvWindow) * time.Millisecond,
	}, logger)
	deps.Gateway = exchange.NewRetrying(client, exchange.RetryPolicy{
		Attempts:  cfg.Exchange.RetryAttempts,
		BaseDelay: cfg.Exchange.RetryBaseDelay.Duration,
	}, logger)
	deps.Scanner = binance.NewScanner(client, binance.ScannerConfig{
		TopN:           cfg.Scanner.SymbolsToScan,
		MinQuoteVolume: cfg.Scanner.MinQuoteVolume24h,
		QuoteAsset:     cfg.Scanner.QuoteAsset,
		StaticSymbols:  cfg.Scanner.StaticSymbols,
	}, logger)
	logger.InfoContext(ctx, "exchange configured",
		slog.String("trading_mode", cfg.Exchange.TradingMode),
		slog.String("base_url", baseURL),
	)

	// --- Strategy ---
	strat, err := strategy.DefaultRegistry().New(cfg.Strategy.Name, strategy.Params(cfg.Strategy.Params), logger)
	if err != nil {
		return fail(fmt.Errorf("wire: strategy: %w", err))
	}
	deps.Strategy = strat

	// --- Position state ---
	switch strings.ToLower(cfg.Engine.StateBackend) {
	case "bolt":
		bs, err := state.NewBoltStore(cfg.Engine.StateFile, logger)
		if err != nil {
			return fail(fmt.Errorf("wire: state: %w", err))
		}
		closers = append(closers, func() { _ = bs.Close() })
		deps.State = bs
	default:
		deps.State = state.NewJSONStore(cfg.Engine.StateFile, logger)
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		deps.TradeStore = postgres.NewTradeStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Checks["postgres"] = pgClient
	}

	// The CSV file stays the ledger of record; the database copy is
	// best effort.
	csvLedger := ledger.NewCSVLedger(cfg.Ledger.CSVPath, logger)
	if deps.TradeStore != nil {
		deps.Ledger = ledger.NewFanout(csvLedger, logger, deps.TradeStore)
	} else {
		deps.Ledger = csvLedger
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Events = redis.NewEventBus(redisClient, cfg.Redis.StreamMaxLen)
		if cfg.Redis.InstanceLock {
			deps.Lock = redis.NewLockManager(redisClient, logger)
		}
		deps.Checks["redis"] = redisClient
	} else {
		deps.Events = memory.NewEventBus(int(cfg.Redis.StreamMaxLen))
	}

	// --- S3 trade archive ---
	if cfg.S3.Enabled {
		if deps.TradeStore == nil {
			logger.WarnContext(ctx, "s3 archive disabled: it reads trades from postgres, which is not enabled")
		} else {
			s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
				Endpoint:       cfg.S3.Endpoint,
				Region:         cfg.S3.Region,
				Bucket:         cfg.S3.Bucket,
				AccessKey:      cfg.S3.AccessKey,
				SecretKey:      cfg.S3.SecretKey,
				UseSSL:         cfg.S3.UseSSL,
				ForcePathStyle: cfg.S3.ForcePathStyle,
			})
			if err != nil {
				return fail(fmt.Errorf("wire: s3: %w", err))
			}
			deps.Archiver = s3blob.NewTradeArchiver(s3blob.NewWriter(s3Client), deps.TradeStore, cfg.S3.Prefix, logger)
			deps.Checks["s3"] = s3Client
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	closers = append(closers, deps.Notifier.Wait)

	return deps, cleanup, nil
}

// EngineConfig maps the file configuration onto engine tunables.
func EngineConfig(cfg *config.Config, monitorOnly bool) engine.Config {
	return engine.Config{
		MaxConcurrentPositions: cfg.Engine.MaxConcurrentPositions,
		PositionSizeUSDT:       cfg.Engine.PositionSizeUSDT,
		Leverage:               cfg.Engine.Leverage,
		LoopInterval:           cfg.Engine.LoopInterval.Duration,
		ErrorCooldown:          cfg.Engine.ErrorCooldown.Duration,
		OrderQueryPacing:       cfg.Engine.OrderQueryPacing.Duration,
		SymbolPacing:           cfg.Engine.SymbolPacing.Duration,
		CandidatePacing:        cfg.Engine.CandidatePacing.Duration,
		KlineInterval:          cfg.Strategy.KlineInterval,
		KlineLimit:             cfg.Strategy.KlineLimit,
		HTFKlineInterval:       cfg.Strategy.HTFKlineInterval,
		HTFKlineLimit:          cfg.Strategy.HTFKlineLimit,
		MonitorOnly:            monitorOnly,
	}
}
