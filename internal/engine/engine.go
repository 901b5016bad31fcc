// Package engine runs the position lifecycle: it opens protected positions
// from strategy signals, reconciles them against the exchange, and records
// every closure in the trade ledger before forgetting the position.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/brhmrsln/x-bot/internal/domain"
)

// Config holds the engine's tunables.
type Config struct {
	MaxConcurrentPositions int
	PositionSizeUSDT       float64
	Leverage               int

	LoopInterval     time.Duration
	ErrorCooldown    time.Duration
	OrderQueryPacing time.Duration
	SymbolPacing     time.Duration
	CandidatePacing  time.Duration

	KlineInterval    string
	KlineLimit       int
	HTFKlineInterval string
	HTFKlineLimit    int

	// MonitorOnly disables the entry scan; open positions are still
	// reconciled and closed.
	MonitorOnly bool
}

// DefaultConfig returns the standard pacing and sizing.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentPositions: 1,
		PositionSizeUSDT:       100,
		Leverage:               10,
		LoopInterval:           60 * time.Second,
		ErrorCooldown:          60 * time.Second,
		OrderQueryPacing:       200 * time.Millisecond,
		SymbolPacing:           time.Second,
		CandidatePacing:        2 * time.Second,
		KlineInterval:          "15m",
		KlineLimit:             250,
		HTFKlineInterval:       "4h",
		HTFKlineLimit:          250,
	}
}

// Notifier receives human-readable alerts. Delivery is fire and forget.
type Notifier interface {
	NotifyAsync(ctx context.Context, event, title, message string)
}

// Deps are the engine's collaborators. Gateway, State, Ledger, Signals and
// Scanner are required.
type Deps struct {
	Gateway  domain.ExchangeGateway
	State    domain.StateStore
	Ledger   domain.TradeLedger
	Signals  domain.SignalSource
	Scanner  domain.MarketScanner
	Notifier Notifier
	Events   domain.EventBus
	Audit    domain.AuditStore
	Metrics  *Metrics
	Logger   *slog.Logger
	Now      func() time.Time
}

// Engine owns the open-position map. Only the goroutine running Run (or the
// exported operations) mutates it; other goroutines read through Snapshot.
type Engine struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	mu        sync.RWMutex
	positions map[string]domain.Position

	sleep func(ctx context.Context, d time.Duration) error
}

// New validates deps and returns an engine with an empty position map.
// Call Load before Run to restore persisted positions.
func New(cfg Config, deps Deps) (*Engine, error) {
	switch {
	case deps.Gateway == nil:
		return nil, errors.New("engine: gateway is required")
	case deps.State == nil:
		return nil, errors.New("engine: state store is required")
	case deps.Ledger == nil:
		return nil, errors.New("engine: trade ledger is required")
	case deps.Signals == nil && !cfg.MonitorOnly:
		return nil, errors.New("engine: signal source is required")
	case deps.Scanner == nil && !cfg.MonitorOnly:
		return nil, errors.New("engine: market scanner is required")
	}
	if cfg.MaxConcurrentPositions <= 0 {
		return nil, fmt.Errorf("engine: max concurrent positions must be > 0, got %d", cfg.MaxConcurrentPositions)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Engine{
		cfg:       cfg,
		deps:      deps,
		log:       deps.Logger.With(slog.String("component", "engine")),
		positions: make(map[string]domain.Position),
		sleep:     sleepCtx,
	}, nil
}

// Load replaces the in-memory map with the persisted one. A load failure is
// logged and the engine continues with an empty map.
func (e *Engine) Load(ctx context.Context) {
	loaded, err := e.deps.State.Load(ctx)
	if err != nil {
		e.log.ErrorContext(ctx, "state load failed, starting with no tracked positions",
			slog.String("error", err.Error()),
		)
	}
	if loaded == nil {
		loaded = map[string]domain.Position{}
	}
	e.mu.Lock()
	e.positions = loaded
	e.mu.Unlock()
	e.deps.Metrics.OpenPositions.Set(float64(len(loaded)))

	e.log.InfoContext(ctx, "state loaded", slog.Int("positions", len(loaded)))
	e.audit(ctx, "state_loaded", map[string]any{"positions": len(loaded)})
}

// Snapshot returns the tracked positions sorted by symbol.
func (e *Engine) Snapshot() []domain.Position {
	e.mu.RLock()
	out := make([]domain.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, p)
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// OpenCount returns the number of tracked positions.
func (e *Engine) OpenCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.positions)
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) position(symbol string) (domain.Position, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.positions[symbol]
	return p, ok
}

func (e *Engine) symbols() []string {
	e.mu.RLock()
	out := make([]string, 0, len(e.positions))
	for s := range e.positions {
		out = append(out, s)
	}
	e.mu.RUnlock()
	sort.Strings(out)
	return out
}

// track adds p and persists the map.
func (e *Engine) track(ctx context.Context, p domain.Position) {
	e.mu.Lock()
	e.positions[p.Symbol] = p
	snap := domain.ClonePositions(e.positions)
	e.mu.Unlock()
	e.persist(ctx, snap)
}

// forget removes symbol and persists the map.
func (e *Engine) forget(ctx context.Context, symbol string) {
	e.mu.Lock()
	delete(e.positions, symbol)
	snap := domain.ClonePositions(e.positions)
	e.mu.Unlock()
	e.persist(ctx, snap)
}

// persist saves snap. The in-memory map stays authoritative when the save
// fails.
func (e *Engine) persist(ctx context.Context, snap map[string]domain.Position) {
	e.deps.Metrics.OpenPositions.Set(float64(len(snap)))
	if err := e.deps.State.Save(ctx, snap); err != nil {
		e.deps.Metrics.PersistenceFailures.Inc()
		e.log.ErrorContext(ctx, "persistence failure",
			slog.Int("positions", len(snap)),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) notify(ctx context.Context, event domain.EventType, title, message string) {
	if e.deps.Notifier == nil {
		return
	}
	e.deps.Notifier.NotifyAsync(ctx, string(event), title, message)
}

// publish pushes ev to live subscribers and, for closures, to the durable
// trade stream. Failures are logged only.
func (e *Engine) publish(ctx context.Context, ev domain.PositionEvent) {
	if e.deps.Events == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		e.log.WarnContext(ctx, "encode event failed", slog.String("error", err.Error()))
		return
	}
	if err := e.deps.Events.Publish(ctx, domain.ChannelPositions, payload); err != nil {
		e.log.WarnContext(ctx, "publish event failed",
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}
	if ev.Type == domain.EventPositionClosed {
		if err := e.deps.Events.StreamAppend(ctx, domain.StreamTrades, payload); err != nil {
			e.log.WarnContext(ctx, "append trade stream failed", slog.String("error", err.Error()))
		}
	}
}

func (e *Engine) audit(ctx context.Context, event string, detail map[string]any) {
	if e.deps.Audit == nil {
		return
	}
	if err := e.deps.Audit.Log(ctx, event, detail); err != nil {
		e.log.DebugContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) pace(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return e.sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
