package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brhmrsln/x-bot/internal/engine"
	"github.com/brhmrsln/x-bot/internal/server"
	"github.com/brhmrsln/x-bot/internal/server/handler"
	"github.com/brhmrsln/x-bot/internal/server/ws"
)

// instanceLockKey guards against two processes trading the same account.
const instanceLockKey = "engine"

// TradeMode reconciles open positions and scans for new entries.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")
	return a.runEngine(ctx, deps, false)
}

// MonitorMode only reconciles and closes the positions already open; no new
// entries are taken.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	return a.runEngine(ctx, deps, true)
}

func (a *App) runEngine(ctx context.Context, deps *Dependencies, monitorOnly bool) error {
	if deps.Lock != nil {
		unlock, err := deps.Lock.Acquire(ctx, instanceLockKey, a.cfg.Redis.LockTTL.Duration)
		if err != nil {
			return fmt.Errorf("app: instance lock: %w", err)
		}
		defer unlock()
		a.logger.InfoContext(ctx, "instance lock acquired")
	}

	eng, err := engine.New(EngineConfig(a.cfg, monitorOnly), engine.Deps{
		Gateway:  deps.Gateway,
		State:    deps.State,
		Ledger:   deps.Ledger,
		Signals:  deps.Strategy,
		Scanner:  deps.Scanner,
		Notifier: deps.Notifier,
		Events:   deps.Events,
		Audit:    deps.AuditStore,
		Metrics:  deps.Metrics,
		Logger:   a.logger,
	})
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	eng.Load(ctx)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return eng.Run(ctx)
	})

	if deps.Archiver != nil {
		interval := a.cfg.S3.ArchiveInterval.Duration
		g.Go(func() error {
			return deps.Archiver.Run(ctx, interval)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, eng)
	}

	return g.Wait()
}

// startHTTPServer serves the status API and the WebSocket event feed until
// ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, eng *engine.Engine) {
	hub := ws.NewHub(deps.Events, eng, a.logger, ws.Config{
		Mode:         a.cfg.Mode,
		StrategyName: a.cfg.Strategy.Name,
		StartedAt:    time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, server.Handlers{
		Health:    handler.NewHealthHandler(a.cfg.Mode, deps.Checks, a.logger),
		Positions: handler.NewPositionHandler(eng, a.logger),
		Trades:    handler.NewTradeHandler(deps.TradeStore, deps.AuditStore, a.logger),
	}, hub, deps.Registry, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			a.logger.Warn("http server shutdown", slog.String("error", err.Error()))
		}
		return nil
	})
}
