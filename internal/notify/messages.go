package notify

import (
	"fmt"
	"strings"

	"github.com/brhmrsln/x-bot/internal/domain"
)

// Event names accepted in the notify.events filter.
const (
	EventPositionOpened = string(domain.EventPositionOpened)
	EventPositionClosed = string(domain.EventPositionClosed)
	EventEngineError    = string(domain.EventEngineError)
)

// PositionOpened renders the alert for a freshly protected position.
func PositionOpened(p domain.Position) (title, message string) {
	title = "🚀 NEW POSITION OPENED"
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s\n", p.Symbol)
	fmt.Fprintf(&b, "Side: %s\n", p.Side)
	fmt.Fprintf(&b, "Entry: %s\n", price(p.EntryPrice))
	fmt.Fprintf(&b, "Quantity: %s\n", price(p.Quantity))
	fmt.Fprintf(&b, "Stop Loss: %s\n", protective(p.StopPrice, p.EntryPrice, p.HasStop()))
	fmt.Fprintf(&b, "Take Profit: %s", protective(p.TakeProfitPrice, p.EntryPrice, p.HasTakeProfit()))
	if p.EntryReason != "" {
		fmt.Fprintf(&b, "\nReason: %s", p.EntryReason)
	}
	return title, b.String()
}

// PositionClosed renders the alert for a recorded trade.
func PositionClosed(rec domain.TradeRecord) (title, message string) {
	icon := "✅"
	if rec.NetPnL < 0 {
		icon = "🔻"
	}
	title = fmt.Sprintf("%s POSITION CLOSED: %s", icon, rec.Symbol)

	exit := "unavailable"
	if rec.ExitPriceKnown {
		exit = price(rec.ExitPrice)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Side: %s\n", rec.Side)
	fmt.Fprintf(&b, "Exit Reason: %s\n", rec.ExitReason)
	fmt.Fprintf(&b, "Entry: %s\n", price(rec.EntryPrice))
	fmt.Fprintf(&b, "Exit: %s\n", exit)
	fmt.Fprintf(&b, "Net PnL: %+.4f USDT (%+.2f%%)\n", rec.NetPnL, rec.PnLPercentage*100)
	fmt.Fprintf(&b, "Fees: %.4f USDT", rec.TotalCommission)
	return title, b.String()
}

// EngineError renders the alert for a failed engine iteration.
func EngineError(err error) (title, message string) {
	return "⚠️ ENGINE ERROR", err.Error()
}

func protective(p, entry float64, placed bool) string {
	if !placed || p <= 0 {
		return "not placed"
	}
	if entry <= 0 {
		return price(p)
	}
	return fmt.Sprintf("%s (%+.2f%%)", price(p), (p-entry)/entry*100)
}

func price(v float64) string {
	s := fmt.Sprintf("%.8f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
