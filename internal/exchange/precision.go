package exchange

import (
	"github.com/shopspring/decimal"

	"github.com/brhmrsln/x-bot/internal/domain"
)

// FloorToStep rounds v down to a multiple of step. A non-positive step
// returns v unchanged.
func FloorToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	d := decimal.NewFromFloat(v)
	s := decimal.NewFromFloat(step)
	out, _ := d.Div(s).Floor().Mul(s).Float64()
	return out
}

// RoundToTick rounds v to the nearest multiple of tick.
func RoundToTick(v, tick float64) float64 {
	if tick <= 0 {
		return v
	}
	d := decimal.NewFromFloat(v)
	t := decimal.NewFromFloat(tick)
	out, _ := d.Div(t).Round(0).Mul(t).Float64()
	return out
}

// CeilToTick rounds v up to a multiple of tick.
func CeilToTick(v, tick float64) float64 {
	if tick <= 0 {
		return v
	}
	t := decimal.NewFromFloat(tick)
	out, _ := decimal.NewFromFloat(v).Div(t).Ceil().Mul(t).Float64()
	return out
}

// FloorToTick rounds v down to a multiple of tick.
func FloorToTick(v, tick float64) float64 {
	if tick <= 0 {
		return v
	}
	t := decimal.NewFromFloat(tick)
	out, _ := decimal.NewFromFloat(v).Div(t).Floor().Mul(t).Float64()
	return out
}

// FormatQuantity renders a step-floored quantity without exponent notation.
func FormatQuantity(v, step float64) string {
	return decimal.NewFromFloat(FloorToStep(v, step)).String()
}

// FormatPrice renders a tick-rounded price without exponent notation.
func FormatPrice(v, tick float64) string {
	return decimal.NewFromFloat(RoundToTick(v, tick)).String()
}

// PriceBand returns the lowest and highest tick-aligned price the exchange
// accepts around mark. Edges round inward so both stay inside the band. ok
// is false when the symbol has no band.
func PriceBand(mark float64, rules domain.SymbolRules) (low, high float64, ok bool) {
	if rules.PercentBandUp <= 0 || rules.PercentBandDown <= 0 || mark <= 0 {
		return 0, 0, false
	}
	m := decimal.NewFromFloat(mark)
	lowEdge, _ := m.Mul(decimal.NewFromFloat(rules.PercentBandDown)).Float64()
	highEdge, _ := m.Mul(decimal.NewFromFloat(rules.PercentBandUp)).Float64()
	low = CeilToTick(lowEdge, rules.PriceTick)
	high = FloorToTick(highEdge, rules.PriceTick)
	return low, high, true
}

// ClampToBand forces price into [low, high].
func ClampToBand(price, low, high float64) float64 {
	if price > high {
		return high
	}
	if price < low {
		return low
	}
	return price
}
