// Package strategy holds the candle-based signal sources the scanner can
// run: an EMA crossover, a momentum scalper and a multi-timeframe mean
// reversion.
package strategy

import (
	"fmt"
	"math"

	"github.com/brhmrsln/x-bot/internal/domain"
)

// Strategy is a domain.SignalSource that also declares its data needs.
type Strategy interface {
	domain.SignalSource
	// NeedsHigherTimeframe reports whether MarketData.HigherTimeframe must be
	// populated.
	NeedsHigherTimeframe() bool
	// MinCandles is the shortest primary series that can yield a signal.
	MinCandles() int
}

// Params are numeric strategy settings keyed by name, as read from the
// [strategy.params] config table.
type Params map[string]float64

// Float returns p[key] or def when absent.
func (p Params) Float(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Int returns p[key] truncated to int or def when absent.
func (p Params) Int(key string, def int) int {
	if v, ok := p[key]; ok {
		return int(v)
	}
	return def
}

func hold(reason string) domain.Signal {
	return domain.Signal{Action: domain.ActionHold, Reason: reason}
}

// atrTargets returns the stop and take-profit prices placed ATR multiples
// away from price on the losing and winning side of a position.
func atrTargets(side domain.Side, price, atr, slMult, tpMult float64) (stop, takeProfit float64) {
	if side == domain.SideShort {
		return price + atr*slMult, price - atr*tpMult
	}
	return price - atr*slMult, price + atr*tpMult
}

func requirePositive(name string, vals ...int) error {
	for _, v := range vals {
		if v <= 0 {
			return fmt.Errorf("strategy %s: periods must be positive", name)
		}
	}
	return nil
}

func valid(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
