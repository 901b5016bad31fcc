package domain

import (
	"fmt"
	"strings"
	"time"
)

// Side is the direction of a futures position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// Direction returns +1 for LONG and -1 for SHORT.
func (s Side) Direction() int {
	if s == SideShort {
		return -1
	}
	return 1
}

// EntryOrderSide is the exchange order side that opens a position of this side.
func (s Side) EntryOrderSide() OrderSide {
	if s == SideShort {
		return OrderSideSell
	}
	return OrderSideBuy
}

// ClosingOrderSide is the exchange order side that reduces a position of this side.
func (s Side) ClosingOrderSide() OrderSide {
	if s == SideShort {
		return OrderSideBuy
	}
	return OrderSideSell
}

// ParseSide converts "LONG"/"SHORT" (case-insensitive) into a Side.
func ParseSide(raw string) (Side, error) {
	s := Side(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("domain: unknown side %q", raw)
	}
	return s, nil
}

// SideFromAmount maps a signed exchange position amount to a Side.
func SideFromAmount(amount float64) Side {
	if amount < 0 {
		return SideShort
	}
	return SideLong
}

// Position is one open futures position managed by the engine. There is at
// most one per symbol.
type Position struct {
	Symbol            string    `json:"symbol"`
	Side              Side      `json:"side"`
	Quantity          float64   `json:"quantity"`
	EntryPrice        float64   `json:"entry_price"`
	EntryCommission   float64   `json:"entry_commission"`
	EntryOrderID      string    `json:"entry_order_id,omitempty"`
	StopOrderID       string    `json:"stop_order_ref,omitempty"`
	TakeProfitOrderID string    `json:"take_profit_order_ref,omitempty"`
	StopPrice         float64   `json:"stop_price,omitempty"`
	TakeProfitPrice   float64   `json:"take_profit_price,omitempty"`
	Leverage          int       `json:"leverage,omitempty"`
	EntryReason       string    `json:"entry_reason"`
	CreatedAt         time.Time `json:"created_at"`
}

// Validate checks the fields every persisted position must carry.
func (p Position) Validate() error {
	switch {
	case strings.TrimSpace(p.Symbol) == "":
		return fmt.Errorf("domain: position: empty symbol")
	case !p.Side.Valid():
		return fmt.Errorf("domain: position %s: invalid side %q", p.Symbol, p.Side)
	case p.Quantity <= 0:
		return fmt.Errorf("domain: position %s: quantity must be > 0, got %v", p.Symbol, p.Quantity)
	case p.EntryPrice <= 0:
		return fmt.Errorf("domain: position %s: entry_price must be > 0, got %v", p.Symbol, p.EntryPrice)
	}
	return nil
}

// Notional returns entry price times quantity.
func (p Position) Notional() float64 {
	return p.EntryPrice * p.Quantity
}

// HasStop reports whether a stop order was placed for the position.
func (p Position) HasStop() bool { return p.StopOrderID != "" }

// HasTakeProfit reports whether a take-profit order was placed.
func (p Position) HasTakeProfit() bool { return p.TakeProfitOrderID != "" }

// ClonePositions returns a shallow copy of the map so readers on other
// goroutines never observe later mutations.
func ClonePositions(in map[string]Position) map[string]Position {
	out := make(map[string]Position, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
