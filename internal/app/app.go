// Package app assembles the bot from configuration and runs one of its
// modes until the context ends.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brhmrsln/x-bot/internal/config"
)

// App owns the configuration and the cleanup of everything Wire opened.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	cleanup []func()
}

func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger.With(slog.String("component", "app"))}
}

// Run wires the dependencies and blocks in the configured mode.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting",
		slog.String("mode", a.cfg.Mode),
		slog.String("trading_mode", a.cfg.Exchange.TradingMode),
		slog.String("strategy", a.cfg.Strategy.Name),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.cleanup = append(a.cleanup, cleanup)

	switch mode := strings.ToLower(a.cfg.Mode); mode {
	case "trade":
		return a.TradeMode(ctx, deps)
	case "monitor":
		return a.MonitorMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", mode)
	}
}

// Close releases resources in reverse order of acquisition. Calling it
// again is a no-op.
func (a *App) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
	a.logger.Info("stopped")
}
