// Command xbot runs the Binance USDT-M futures bot: it loads and validates
// configuration, then runs the configured mode until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/brhmrsln/x-bot/internal/app"
	"github.com/brhmrsln/x-bot/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "TOML configuration file; empty uses defaults and XBOT_* variables only")
	flag.Parse()
	os.Exit(run(*configPath))
}

func run(configPath string) int {
	logger := newLogger("info")

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("load config", slog.String("path", configPath), slog.String("error", err.Error()))
		return 1
	}
	logger = newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return 1
	}
	logger.Info("x-bot starting",
		slog.String("config", configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)
	defer application.Close()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("x-bot failed", slog.String("error", err.Error()))
		return 1
	}
	logger.Info("x-bot stopped")
	return 0
}

// newLogger returns a JSON logger at level ("debug", "info", "warn",
// "error"); unknown levels fall back to info.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
