package domain

import "time"

// SignalAction is the decision a signal source makes for a symbol.
type SignalAction string

const (
	ActionBuy  SignalAction = "BUY"
	ActionSell SignalAction = "SELL"
	ActionHold SignalAction = "HOLD"
)

// Signal is the output of a SignalSource.
type Signal struct {
	Action          SignalAction
	StopPrice       float64
	TakeProfitPrice float64
	Reason          string
}

// Actionable reports whether the signal asks for an entry and carries both
// protective prices.
func (s Signal) Actionable() bool {
	if s.Action != ActionBuy && s.Action != ActionSell {
		return false
	}
	return s.StopPrice > 0 && s.TakeProfitPrice > 0
}

// Side maps BUY to LONG and SELL to SHORT.
func (s Signal) Side() Side {
	if s.Action == ActionSell {
		return SideShort
	}
	return SideLong
}

// Candle is one OHLCV bar.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// MarketData is the input handed to a signal source. HigherTimeframe is only
// populated for strategies that ask for it.
type MarketData struct {
	Candles         []Candle
	HigherTimeframe []Candle
}
