package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brhmrsln/x-bot/internal/domain"
)

// NameMomentumScalping is the registry name of MomentumScalping.
const NameMomentumScalping = "momentum_scalping"

// rsiPullbackWidth is the width of the RSI pullback window above the long
// level and below the short level.
const rsiPullbackWidth = 5.0

// MomentumScalping enters in the direction of the EMA trend when RSI has
// pulled back into a narrow band and volume is above its average.
type MomentumScalping struct {
	fast, slow, rsi, volMA, atr int
	rsiLong, rsiShort           float64
	slMult, tpMult              float64
	logger                      *slog.Logger
}

// NewMomentumScalping builds the scalper from its parameters.
func NewMomentumScalping(p Params, logger *slog.Logger) (Strategy, error) {
	s := &MomentumScalping{
		fast:     p.Int("fast_ema_period", 9),
		slow:     p.Int("slow_ema_period", 21),
		rsi:      p.Int("rsi_period", 14),
		volMA:    p.Int("volume_ma_period", 20),
		atr:      p.Int("atr_period", 14),
		rsiLong:  p.Float("rsi_pullback_level_long", 40),
		rsiShort: p.Float("rsi_pullback_level_short", 60),
		slMult:   p.Float("atr_multiplier_sl", 1.0),
		tpMult:   p.Float("atr_multiplier_tp", 1.5),
		logger:   logger.With(slog.String("strategy", NameMomentumScalping)),
	}
	if err := requirePositive(NameMomentumScalping, s.fast, s.slow, s.rsi, s.volMA, s.atr); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MomentumScalping) Name() string               { return NameMomentumScalping }
func (s *MomentumScalping) NeedsHigherTimeframe() bool { return false }
func (s *MomentumScalping) MinCandles() int {
	return max(s.slow, s.rsi+1, s.volMA, s.atr+1) + 2
}

func (s *MomentumScalping) GenerateSignal(ctx context.Context, symbol string, data domain.MarketData) (domain.Signal, error) {
	c := data.Candles
	if len(c) < s.MinCandles() {
		return hold("not enough candles"), nil
	}
	cl := closes(c)
	vol := volumes(c)
	fast := EMA(cl, s.fast)
	slow := EMA(cl, s.slow)
	rsi := RSI(cl, s.rsi)
	volSMA := SMA(vol, s.volMA)
	atr := ATR(c, s.atr)

	i := len(c) - 2
	price := cl[len(cl)-1]
	if !valid(fast[i], slow[i], rsi[i], volSMA[i], atr[i]) {
		return hold("indicators warming up"), nil
	}
	if vol[i] <= volSMA[i] {
		return hold("volume below average"), nil
	}

	r := rsi[i]
	var side domain.Side
	switch {
	case fast[i] > slow[i] && r >= s.rsiLong && r < s.rsiLong+rsiPullbackWidth:
		side = domain.SideLong
	case fast[i] < slow[i] && r > s.rsiShort-rsiPullbackWidth && r <= s.rsiShort:
		side = domain.SideShort
	default:
		return hold("no pullback entry"), nil
	}

	stop, tp := atrTargets(side, price, atr[i], s.slMult, s.tpMult)
	action := domain.ActionBuy
	if side == domain.SideShort {
		action = domain.ActionSell
	}
	s.logger.DebugContext(ctx, "momentum signal",
		slog.String("symbol", symbol),
		slog.String("action", string(action)),
		slog.Float64("rsi", r),
	)
	return domain.Signal{
		Action:          action,
		StopPrice:       stop,
		TakeProfitPrice: tp,
		Reason:          fmt.Sprintf("trend pullback RSI %.1f", r),
	}, nil
}
