package domain

import "strings"

// OrderSide is the exchange order side.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderStatus is the engine's closed view of an exchange order state.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "PENDING"
	OrderStatusActive   OrderStatus = "ACTIVE"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusInactive OrderStatus = "INACTIVE"
	OrderStatusUnknown  OrderStatus = "UNKNOWN"
)

// ParseOrderStatus maps a raw exchange status string into the closed set.
// Strings that are not recognised resolve to OrderStatusUnknown.
func ParseOrderStatus(raw string) OrderStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "NEW", "PARTIALLY_FILLED":
		return OrderStatusActive
	case "PENDING_NEW", "PENDING":
		return OrderStatusPending
	case "FILLED":
		return OrderStatusFilled
	case "CANCELED", "CANCELLED", "EXPIRED", "REJECTED", "EXPIRED_IN_MATCH":
		return OrderStatusInactive
	default:
		return OrderStatusUnknown
	}
}

// Live reports whether the order may still execute.
func (s OrderStatus) Live() bool {
	return s == OrderStatusActive || s == OrderStatusPending
}

// Terminal reports whether the order is gone without a fill. Unknown is
// treated as terminal so an unreadable order never counts as protection.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusInactive || s == OrderStatusUnknown
}

// OrderAck is the exchange response to an order submission.
type OrderAck struct {
	OrderID     string
	Status      OrderStatus
	RawStatus   string
	ExecutedQty float64
	AvgPrice    float64
}

// Filled reports whether the order is confirmed filled with a non-zero amount.
func (a OrderAck) Filled() bool {
	return a.Status == OrderStatusFilled && a.ExecutedQty > 0
}

// OrderInfo is the result of an order status query.
type OrderInfo struct {
	OrderID     string
	Status      OrderStatus
	RawStatus   string
	AvgPrice    float64
	ExecutedQty float64
}

// ProtectiveOrder describes a stop-loss or take-profit trigger order.
type ProtectiveOrder struct {
	Symbol       string
	Side         OrderSide
	Quantity     float64
	TriggerPrice float64
	ReduceOnly   bool
}

// FillDetail aggregates the fills of one order.
type FillDetail struct {
	OrderID     string
	Commission  float64
	RealizedPnL float64
	AvgPrice    float64
	Quantity    float64
}
