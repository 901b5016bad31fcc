package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/brhmrsln/x-bot/internal/domain"
	"github.com/brhmrsln/x-bot/internal/notify"
)

// Run loops reconcile, scan, sleep until ctx is canceled. An iteration that
// fails or panics is logged, alerted, and followed by the error cooldown
// instead of the normal interval. Run always returns nil once ctx ends.
func (e *Engine) Run(ctx context.Context) error {
	e.log.InfoContext(ctx, "engine started",
		slog.Int("max_positions", e.cfg.MaxConcurrentPositions),
		slog.Float64("position_size_usdt", e.cfg.PositionSizeUSDT),
		slog.Bool("monitor_only", e.cfg.MonitorOnly),
		slog.Duration("interval", e.cfg.LoopInterval),
	)
	defer e.log.Info("engine stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		wait := e.cfg.LoopInterval
		if err := e.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.deps.Metrics.LoopErrors.Inc()
			e.log.ErrorContext(ctx, "engine iteration failed, cooling down",
				slog.String("error", err.Error()),
				slog.Duration("cooldown", e.cfg.ErrorCooldown),
			)
			title, msg := notify.EngineError(err)
			e.notify(ctx, domain.EventEngineError, title, msg)
			e.publish(ctx, domain.PositionEvent{
				Type:    domain.EventEngineError,
				Message: err.Error(),
				At:      e.deps.Now().UTC(),
			})
			wait = e.cfg.ErrorCooldown
		}
		if err := e.pace(ctx, wait); err != nil {
			return nil
		}
	}
}

// RunOnce performs a single iteration: reconcile every position, then scan
// for an entry when below capacity. A panic is converted into an error.
func (e *Engine) RunOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.ErrorContext(ctx, "engine iteration panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("engine: panic: %v", r)
		}
	}()

	start := time.Now()
	if err := e.Reconcile(ctx); err != nil {
		return err
	}
	if !e.cfg.MonitorOnly && e.OpenCount() < e.cfg.MaxConcurrentPositions {
		if _, err := e.Scan(ctx); err != nil {
			return err
		}
	}
	e.log.DebugContext(ctx, "iteration complete",
		slog.Int("open", e.OpenCount()),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}
