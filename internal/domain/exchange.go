package domain

import (
	"context"
	"time"
)

// SymbolRules holds the precision and price-band filters for a symbol.
// PercentBandUp and PercentBandDown are multipliers of the current price
// (for example 1.05 and 0.95); zero means the exchange sets no band.
type SymbolRules struct {
	Symbol          string
	QuantityStep    float64
	MinQuantity     float64
	PriceTick       float64
	PercentBandUp   float64
	PercentBandDown float64
}

// ExchangeGateway is everything the engine needs from a futures exchange.
// Implementations must return errors wrapping ErrTransient for failures
// where the exchange could not be asked, so callers never mistake them for
// an answer.
type ExchangeGateway interface {
	MarkPrice(ctx context.Context, symbol string) (float64, error)
	SymbolRules(ctx context.Context, symbol string) (SymbolRules, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	OpenMarketEntry(ctx context.Context, symbol string, side OrderSide, quantity float64) (OrderAck, error)
	PlaceStopOrder(ctx context.Context, order ProtectiveOrder) (OrderAck, error)
	PlaceTakeProfitOrder(ctx context.Context, order ProtectiveOrder) (OrderAck, error)
	ClosePositionMarket(ctx context.Context, symbol string, side OrderSide, quantity float64) (OrderAck, error)

	QueryOrder(ctx context.Context, symbol, orderID string) (OrderInfo, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetOrderFillDetail(ctx context.Context, symbol, orderID string) (FillDetail, error)
	LastClosingFill(ctx context.Context, symbol string, side OrderSide, since time.Time) (FillDetail, error)

	ListOpenPositions(ctx context.Context) (map[string]float64, error)
	PositionAmount(ctx context.Context, symbol string) (float64, error)

	Klines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
}

// SignalSource turns market data for a symbol into a trading decision.
type SignalSource interface {
	Name() string
	GenerateSignal(ctx context.Context, symbol string, data MarketData) (Signal, error)
}

// MarketScanner produces the ranked candidate list for entry scans.
type MarketScanner interface {
	TopSymbols(ctx context.Context) ([]string, error)
}
