package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brhmrsln/x-bot/internal/domain"
)

// timeframeAware is implemented by signal sources that need candles beyond
// the primary interval.
type timeframeAware interface {
	NeedsHigherTimeframe() bool
	MinCandles() int
}

// outcome is what evaluating one candidate did to the scan.
type outcome int

const (
	outcomeNext   outcome = iota // keep scanning
	outcomeBusy                  // open on the exchange but untracked; scan ends
	outcomeOpened                // position opened; scan ends
)

// Scan walks the ranked candidates and opens at most one position. It
// returns whether a position was opened. Tracked candidates are skipped. A
// candidate already open on the exchange ends the pass, as does an entry.
func (e *Engine) Scan(ctx context.Context) (bool, error) {
	capacity := e.cfg.MaxConcurrentPositions
	if e.OpenCount() >= capacity {
		e.log.DebugContext(ctx, "at capacity, scan skipped", slog.Int("max", capacity))
		return false, nil
	}
	candidates, err := e.deps.Scanner.TopSymbols(ctx)
	if err != nil {
		return false, fmt.Errorf("engine: scan candidates: %w", err)
	}
	e.log.InfoContext(ctx, "scanning for entries", slog.Int("candidates", len(candidates)))

	for i, symbol := range candidates {
		if ctx.Err() != nil {
			return false, nil
		}
		if e.OpenCount() >= capacity {
			e.log.InfoContext(ctx, "max concurrent positions reached, scan stopped")
			return false, nil
		}
		if i > 0 {
			if err := e.pace(ctx, e.cfg.CandidatePacing); err != nil {
				return false, nil
			}
		}
		res, err := e.evaluate(ctx, symbol)
		if err != nil {
			e.logCandidateError(ctx, symbol, err)
			continue
		}
		switch res {
		case outcomeOpened:
			return true, nil
		case outcomeBusy:
			return false, nil
		}
	}
	return false, nil
}

// evaluate runs the signal source for one candidate and executes an
// actionable signal.
func (e *Engine) evaluate(ctx context.Context, symbol string) (outcome, error) {
	if _, ok := e.position(symbol); ok {
		return outcomeNext, nil
	}
	amt, err := e.deps.Gateway.PositionAmount(ctx, symbol)
	if err != nil {
		return outcomeNext, fmt.Errorf("check exchange position: %w", err)
	}
	if amt != 0 {
		e.log.WarnContext(ctx, "untracked exchange position, scan ended for this cycle",
			slog.String("symbol", symbol),
			slog.Float64("amount", amt),
		)
		return outcomeBusy, nil
	}

	data, err := e.marketData(ctx, symbol)
	if err != nil {
		return outcomeNext, err
	}
	sig, err := e.deps.Signals.GenerateSignal(ctx, symbol, data)
	if err != nil {
		return outcomeNext, fmt.Errorf("signal: %w", err)
	}
	if !sig.Actionable() {
		e.log.DebugContext(ctx, "no entry",
			slog.String("symbol", symbol),
			slog.String("action", string(sig.Action)),
			slog.String("reason", sig.Reason),
		)
		return outcomeNext, nil
	}

	e.log.InfoContext(ctx, "actionable signal",
		slog.String("symbol", symbol),
		slog.String("action", string(sig.Action)),
		slog.Float64("stop", sig.StopPrice),
		slog.Float64("take_profit", sig.TakeProfitPrice),
		slog.String("reason", sig.Reason),
	)
	if _, err := e.Execute(ctx, symbol, sig); err != nil {
		return outcomeNext, err
	}
	return outcomeOpened, nil
}

func (e *Engine) marketData(ctx context.Context, symbol string) (domain.MarketData, error) {
	limit := e.cfg.KlineLimit
	needHTF := false
	if ta, ok := e.deps.Signals.(timeframeAware); ok {
		if n := ta.MinCandles(); n > limit {
			limit = n
		}
		needHTF = ta.NeedsHigherTimeframe()
	}

	var data domain.MarketData
	candles, err := e.deps.Gateway.Klines(ctx, symbol, e.cfg.KlineInterval, limit)
	if err != nil {
		return data, fmt.Errorf("klines %s: %w", e.cfg.KlineInterval, err)
	}
	data.Candles = candles

	if needHTF && e.cfg.HTFKlineInterval != "" {
		if err := e.pace(ctx, e.cfg.OrderQueryPacing); err != nil {
			return data, err
		}
		htf, err := e.deps.Gateway.Klines(ctx, symbol, e.cfg.HTFKlineInterval, e.cfg.HTFKlineLimit)
		if err != nil {
			return data, fmt.Errorf("klines %s: %w", e.cfg.HTFKlineInterval, err)
		}
		data.HigherTimeframe = htf
	}
	return data, nil
}

func (e *Engine) logCandidateError(ctx context.Context, symbol string, err error) {
	switch {
	case ctx.Err() != nil:
	case errors.Is(err, domain.ErrDuplicatePosition), errors.Is(err, domain.ErrInvalidQuantity):
		e.log.InfoContext(ctx, "candidate skipped",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	case isTransient(err):
		e.log.WarnContext(ctx, "candidate skipped after transient error",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	default:
		e.log.ErrorContext(ctx, "candidate failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	}
}
