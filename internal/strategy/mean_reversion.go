package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brhmrsln/x-bot/internal/domain"
)

// NameMeanReversion is the registry name of MeanReversion.
const NameMeanReversion = "mean_reversion"

// MeanReversion trades with the higher-timeframe EMA trend, entering when the
// lower-timeframe StochRSI crosses out of an extreme on the far side of the
// Bollinger middle band.
type MeanReversion struct {
	htfShort, htfLong        int
	stochLen, stochK, stochD int
	oversold, overbought     float64
	bbLen                    int
	bbStd                    float64
	atr                      int
	slMult, tpMult           float64
	logger                   *slog.Logger
}

// NewMeanReversion reads the following keys:
//
//   - htf_short_ema_period (50), htf_long_ema_period (200): trend filter on
//     the higher timeframe.
//   - stoch_rsi_period (14), stoch_rsi_k (3), stoch_rsi_d (3),
//     stoch_rsi_oversold (20), stoch_rsi_overbought (80).
//   - bollinger_period (20), bollinger_std_dev (2).
//   - atr_period (14), atr_sl_multiplier (1.5), atr_tp_multiplier (2.0).
func NewMeanReversion(p Params, logger *slog.Logger) (Strategy, error) {
	s := &MeanReversion{
		htfShort:   p.Int("htf_short_ema_period", 50),
		htfLong:    p.Int("htf_long_ema_period", 200),
		stochLen:   p.Int("stoch_rsi_period", 14),
		stochK:     p.Int("stoch_rsi_k", 3),
		stochD:     p.Int("stoch_rsi_d", 3),
		oversold:   p.Float("stoch_rsi_oversold", 20),
		overbought: p.Float("stoch_rsi_overbought", 80),
		bbLen:      p.Int("bollinger_period", 20),
		bbStd:      p.Float("bollinger_std_dev", 2),
		atr:        p.Int("atr_period", 14),
		slMult:     p.Float("atr_sl_multiplier", 1.5),
		tpMult:     p.Float("atr_tp_multiplier", 2.0),
		logger:     logger.With(slog.String("strategy", NameMeanReversion)),
	}
	if err := requirePositive(NameMeanReversion, s.htfShort, s.htfLong, s.stochLen, s.stochK, s.stochD, s.bbLen, s.atr); err != nil {
		return nil, err
	}
	if s.oversold >= s.overbought {
		return nil, fmt.Errorf("strategy %s: oversold %.0f must be below overbought %.0f", NameMeanReversion, s.oversold, s.overbought)
	}
	return s, nil
}

func (s *MeanReversion) Name() string               { return NameMeanReversion }
func (s *MeanReversion) NeedsHigherTimeframe() bool { return true }
func (s *MeanReversion) MinCandles() int {
	return max(2*s.stochLen+s.stochK+s.stochD, s.bbLen, s.atr+1) + 3
}

func (s *MeanReversion) GenerateSignal(ctx context.Context, symbol string, data domain.MarketData) (domain.Signal, error) {
	trend, ok := s.trend(data.HigherTimeframe)
	if !ok {
		return hold("no higher-timeframe trend"), nil
	}

	c := data.Candles
	if len(c) < s.MinCandles() {
		return hold("not enough candles"), nil
	}
	cl := closes(c)
	k, d := StochRSI(cl, s.stochLen, s.stochLen, s.stochK, s.stochD)
	_, mid, _ := Bollinger(cl, s.bbLen, s.bbStd)
	atr := ATR(c, s.atr)

	last, prev := len(c)-2, len(c)-3
	price := cl[len(cl)-1]
	if !valid(k[prev], d[prev], k[last], d[last], mid[last], atr[last]) {
		return hold("indicators warming up"), nil
	}

	var side domain.Side
	switch trend {
	case domain.SideLong:
		oversold := k[last] < s.oversold
		cross := k[prev] < d[prev] && k[last] > d[last]
		if !(oversold && cross && cl[last] < mid[last]) {
			return hold("no oversold cross"), nil
		}
		side = domain.SideLong
	case domain.SideShort:
		overbought := k[last] > s.overbought
		cross := k[prev] > d[prev] && k[last] < d[last]
		if !(overbought && cross && cl[last] > mid[last]) {
			return hold("no overbought cross"), nil
		}
		side = domain.SideShort
	}

	stop, tp := atrTargets(side, price, atr[last], s.slMult, s.tpMult)
	action := domain.ActionBuy
	if side == domain.SideShort {
		action = domain.ActionSell
	}
	s.logger.DebugContext(ctx, "mean reversion signal",
		slog.String("symbol", symbol),
		slog.String("action", string(action)),
		slog.Float64("stoch_k", k[last]),
	)
	return domain.Signal{
		Action:          action,
		StopPrice:       stop,
		TakeProfitPrice: tp,
		Reason:          fmt.Sprintf("StochRSI %.1f reversal in %s trend", k[last], trend),
	}, nil
}

// trend compares the short and long EMA on the newest higher-timeframe candle.
func (s *MeanReversion) trend(htf []domain.Candle) (domain.Side, bool) {
	if len(htf) < s.htfLong {
		return "", false
	}
	cl := closes(htf)
	short := EMA(cl, s.htfShort)
	long := EMA(cl, s.htfLong)
	i := len(cl) - 1
	switch {
	case !valid(short[i], long[i]):
		return "", false
	case short[i] > long[i]:
		return domain.SideLong, true
	case short[i] < long[i]:
		return domain.SideShort, true
	}
	return "", false
}
