package domain

import "time"

// CloseReason explains why a position was closed.
type CloseReason string

const (
	CloseReasonStopLoss    CloseReason = "STOP_LOSS"
	CloseReasonTakeProfit  CloseReason = "TAKE_PROFIT"
	CloseReasonCompromised CloseReason = "COMPROMISED"
	CloseReasonExternal    CloseReason = "EXTERNAL"
)

// TradeRecord is the immutable accounting entry written once per closed
// position.
type TradeRecord struct {
	ID              string      `json:"id"`
	Symbol          string      `json:"symbol"`
	Side            Side        `json:"side"`
	Quantity        float64     `json:"quantity"`
	EntryPrice      float64     `json:"entry_price"`
	ExitPrice       float64     `json:"exit_price"`
	ExitPriceKnown  bool        `json:"exit_price_known"`
	GrossPnL        float64     `json:"gross_pnl"`
	NetPnL          float64     `json:"net_pnl"`
	PnLPercentage   float64     `json:"pnl_percentage"`
	EntryCommission float64     `json:"entry_commission"`
	ExitCommission  float64     `json:"exit_commission"`
	TotalCommission float64     `json:"total_commission"`
	EntryReason     string      `json:"entry_reason"`
	ExitReason      CloseReason `json:"exit_reason"`
	ClosingOrderID  string      `json:"closing_order_id,omitempty"`
	OpenedAt        time.Time   `json:"opened_at"`
	ClosedAt        time.Time   `json:"closed_at"`
}
