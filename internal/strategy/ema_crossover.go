package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brhmrsln/x-bot/internal/domain"
)

// NameEMACrossover is the registry name of EMACrossover.
const NameEMACrossover = "simple_ema_crossover"

// EMACrossover buys when the fast EMA crosses above the slow EMA on the last
// closed candle and sells on the opposite cross. Stops and targets sit ATR
// multiples away from the current price.
type EMACrossover struct {
	fast, slow, atr int
	slMult, tpMult  float64
	logger          *slog.Logger
}

// NewEMACrossover reads fast_ema_period (9), slow_ema_period (21),
// atr_period (14), atr_sl_multiplier (1.5) and atr_tp_multiplier (3.0).
func NewEMACrossover(p Params, logger *slog.Logger) (Strategy, error) {
	s := &EMACrossover{
		fast:   p.Int("fast_ema_period", 9),
		slow:   p.Int("slow_ema_period", 21),
		atr:    p.Int("atr_period", 14),
		slMult: p.Float("atr_sl_multiplier", 1.5),
		tpMult: p.Float("atr_tp_multiplier", 3.0),
		logger: logger.With(slog.String("strategy", NameEMACrossover)),
	}
	if err := requirePositive(NameEMACrossover, s.fast, s.slow, s.atr); err != nil {
		return nil, err
	}
	if s.fast >= s.slow {
		return nil, fmt.Errorf("strategy %s: fast period %d must be below slow period %d", NameEMACrossover, s.fast, s.slow)
	}
	return s, nil
}

func (s *EMACrossover) Name() string               { return NameEMACrossover }
func (s *EMACrossover) NeedsHigherTimeframe() bool { return false }
func (s *EMACrossover) MinCandles() int            { return max(s.slow, s.atr+1) + 3 }

func (s *EMACrossover) GenerateSignal(ctx context.Context, symbol string, data domain.MarketData) (domain.Signal, error) {
	c := data.Candles
	if len(c) < s.MinCandles() {
		return hold("not enough candles"), nil
	}
	cl := closes(c)
	fast := EMA(cl, s.fast)
	slow := EMA(cl, s.slow)
	atr := ATR(c, s.atr)

	last, prev := len(c)-2, len(c)-3
	price := cl[len(cl)-1]
	if !valid(fast[prev], slow[prev], fast[last], slow[last], atr[last]) {
		return hold("indicators warming up"), nil
	}

	var side domain.Side
	switch {
	case fast[prev] < slow[prev] && fast[last] > slow[last]:
		side = domain.SideLong
	case fast[prev] > slow[prev] && fast[last] < slow[last]:
		side = domain.SideShort
	default:
		return hold("no crossover"), nil
	}

	stop, tp := atrTargets(side, price, atr[last], s.slMult, s.tpMult)
	action := domain.ActionBuy
	if side == domain.SideShort {
		action = domain.ActionSell
	}
	s.logger.DebugContext(ctx, "crossover signal",
		slog.String("symbol", symbol),
		slog.String("action", string(action)),
		slog.Float64("price", price),
		slog.Float64("atr", atr[last]),
	)
	return domain.Signal{
		Action:          action,
		StopPrice:       stop,
		TakeProfitPrice: tp,
		Reason:          fmt.Sprintf("EMA%d/EMA%d cross", s.fast, s.slow),
	}, nil
}
