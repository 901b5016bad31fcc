package domain

import "time"

// Event channel and stream names shared by the publisher and the WebSocket hub.
const (
	ChannelPositions = "positions"
	StreamTrades     = "trades"
)

// EventType identifies a position lifecycle event.
type EventType string

const (
	EventPositionOpened EventType = "position_opened"
	EventPositionClosed EventType = "position_closed"
	EventEngineError    EventType = "engine_error"
)

// PositionEvent is the payload published on ChannelPositions.
type PositionEvent struct {
	Type     EventType    `json:"type"`
	Symbol   string       `json:"symbol"`
	Position *Position    `json:"position,omitempty"`
	Trade    *TradeRecord `json:"trade,omitempty"`
	Message  string       `json:"message,omitempty"`
	At       time.Time    `json:"at"`
}
