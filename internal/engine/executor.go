package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brhmrsln/x-bot/internal/domain"
	"github.com/brhmrsln/x-bot/internal/exchange"
	"github.com/brhmrsln/x-bot/internal/notify"
)

// Execute turns an actionable signal into a filled, protected position.
//
// Nothing is tracked unless the market entry is confirmed FILLED with a
// non-zero quantity. Protective orders are sized to the executed quantity;
// a failure to place one is logged and left for reconciliation, because a
// filled entry cannot be undone.
func (e *Engine) Execute(ctx context.Context, symbol string, sig domain.Signal) (domain.Position, error) {
	if !sig.Actionable() {
		return domain.Position{}, fmt.Errorf("engine: execute %s: signal %s is not actionable", symbol, sig.Action)
	}
	side := sig.Side()
	gw := e.deps.Gateway
	log := e.log.With(slog.String("symbol", symbol), slog.String("side", string(side)))

	if _, ok := e.position(symbol); ok {
		return domain.Position{}, fmt.Errorf("engine: execute %s: %w", symbol, domain.ErrDuplicatePosition)
	}
	amt, err := gw.PositionAmount(ctx, symbol)
	if err != nil {
		return domain.Position{}, fmt.Errorf("engine: execute %s: check exchange position: %w", symbol, err)
	}
	if amt != 0 {
		return domain.Position{}, fmt.Errorf("engine: execute %s: exchange holds %v: %w", symbol, amt, domain.ErrDuplicatePosition)
	}

	if e.cfg.Leverage > 0 {
		if err := gw.SetLeverage(ctx, symbol, e.cfg.Leverage); err != nil {
			return domain.Position{}, fmt.Errorf("engine: execute %s: set leverage: %w", symbol, err)
		}
	}

	rules, err := gw.SymbolRules(ctx, symbol)
	if err != nil {
		return domain.Position{}, fmt.Errorf("engine: execute %s: symbol rules: %w", symbol, err)
	}
	mark, err := gw.MarkPrice(ctx, symbol)
	if err != nil {
		return domain.Position{}, fmt.Errorf("engine: execute %s: mark price: %w", symbol, err)
	}
	qty := exchange.FloorToStep(e.cfg.PositionSizeUSDT/mark, rules.QuantityStep)
	if qty <= 0 || qty < rules.MinQuantity {
		return domain.Position{}, fmt.Errorf("engine: execute %s: %v USDT at %v gives %v: %w",
			symbol, e.cfg.PositionSizeUSDT, mark, qty, domain.ErrInvalidQuantity)
	}

	stop := e.clamp(ctx, log, "stop", sig.StopPrice, mark, rules)
	takeProfit := e.clamp(ctx, log, "take_profit", sig.TakeProfitPrice, mark, rules)

	ack, err := gw.OpenMarketEntry(ctx, symbol, side.EntryOrderSide(), qty)
	if err != nil {
		return domain.Position{}, fmt.Errorf("engine: execute %s: market entry: %w", symbol, err)
	}
	if !ack.Filled() {
		log.ErrorContext(ctx, "entry not confirmed filled, nothing tracked",
			slog.String("order_id", ack.OrderID),
			slog.String("status", ack.RawStatus),
			slog.Float64("executed_qty", ack.ExecutedQty),
		)
		return domain.Position{}, fmt.Errorf("engine: execute %s: order %s status %s: %w",
			symbol, ack.OrderID, ack.RawStatus, domain.ErrEntryNotFilled)
	}

	entryPrice := ack.AvgPrice
	if entryPrice <= 0 {
		log.WarnContext(ctx, "entry fill reported no average price, using mark price",
			slog.String("order_id", ack.OrderID),
			slog.Float64("mark", mark),
		)
		entryPrice = mark
	}

	var entryCommission float64
	if fill, err := gw.GetOrderFillDetail(ctx, symbol, ack.OrderID); err != nil {
		log.WarnContext(ctx, "entry commission unavailable, recording 0",
			slog.String("order_id", ack.OrderID),
			slog.String("error", err.Error()),
		)
	} else {
		entryCommission = fill.Commission
	}

	pos := domain.Position{
		Symbol:          symbol,
		Side:            side,
		Quantity:        ack.ExecutedQty,
		EntryPrice:      entryPrice,
		EntryCommission: entryCommission,
		EntryOrderID:    ack.OrderID,
		Leverage:        e.cfg.Leverage,
		EntryReason:     sig.Reason,
		CreatedAt:       e.deps.Now().UTC(),
	}
	if pos.EntryReason == "" {
		pos.EntryReason = e.signalName()
	}

	protect := domain.ProtectiveOrder{
		Symbol:     symbol,
		Side:       side.ClosingOrderSide(),
		Quantity:   ack.ExecutedQty,
		ReduceOnly: true,
	}
	protect.TriggerPrice = stop
	if id, ok := e.placeProtective(ctx, log, "stop", gw.PlaceStopOrder, protect); ok {
		pos.StopOrderID = id
		pos.StopPrice = stop
	}
	protect.TriggerPrice = takeProfit
	if id, ok := e.placeProtective(ctx, log, "take_profit", gw.PlaceTakeProfitOrder, protect); ok {
		pos.TakeProfitOrderID = id
		pos.TakeProfitPrice = takeProfit
	}

	e.track(ctx, pos)
	e.deps.Metrics.Opened.WithLabelValues(string(side)).Inc()
	log.InfoContext(ctx, "position opened",
		slog.Float64("quantity", pos.Quantity),
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Float64("entry_commission", pos.EntryCommission),
		slog.String("stop_order", pos.StopOrderID),
		slog.String("take_profit_order", pos.TakeProfitOrderID),
	)

	title, msg := notify.PositionOpened(pos)
	e.notify(ctx, domain.EventPositionOpened, title, msg)
	p := pos
	e.publish(ctx, domain.PositionEvent{
		Type:     domain.EventPositionOpened,
		Symbol:   symbol,
		Position: &p,
		At:       pos.CreatedAt,
	})
	e.audit(ctx, "position_opened", map[string]any{
		"symbol": symbol, "side": string(side), "quantity": pos.Quantity, "entry_price": pos.EntryPrice,
	})
	return pos, nil
}

// clamp moves price into the exchange percent-price band around mark. The
// price is tick-rounded first so rounding cannot push it back out. A change
// is logged and counted.
func (e *Engine) clamp(ctx context.Context, log *slog.Logger, kind string, price, mark float64, rules domain.SymbolRules) float64 {
	low, high, ok := exchange.PriceBand(mark, rules)
	if !ok {
		return price
	}
	rounded := exchange.RoundToTick(price, rules.PriceTick)
	clamped := exchange.ClampToBand(rounded, low, high)
	if clamped != rounded {
		e.deps.Metrics.PriceClamps.WithLabelValues(kind).Inc()
		log.WarnContext(ctx, "protective price clamped to percent-price band",
			slog.String("kind", kind),
			slog.Float64("requested", price),
			slog.Float64("clamped", clamped),
			slog.Float64("band_low", low),
			slog.Float64("band_high", high),
		)
	}
	return clamped
}

type placeFunc func(ctx context.Context, order domain.ProtectiveOrder) (domain.OrderAck, error)

func (e *Engine) placeProtective(ctx context.Context, log *slog.Logger, kind string, place placeFunc, order domain.ProtectiveOrder) (string, bool) {
	ack, err := place(ctx, order)
	if err == nil && ack.OrderID != "" && ack.Status != domain.OrderStatusInactive {
		return ack.OrderID, true
	}
	if err == nil {
		err = fmt.Errorf("order %q returned status %s", ack.OrderID, ack.RawStatus)
	}
	e.deps.Metrics.ProtectiveFailures.WithLabelValues(kind).Inc()
	log.WarnContext(ctx, "protective order placement failed, position is under-protected",
		slog.String("kind", kind),
		slog.Float64("trigger_price", order.TriggerPrice),
		slog.Float64("quantity", order.Quantity),
		slog.String("error", err.Error()),
	)
	return "", false
}

func (e *Engine) signalName() string {
	if e.deps.Signals == nil {
		return ""
	}
	return e.deps.Signals.Name()
}

// isTransient reports whether err means the exchange could not be asked.
func isTransient(err error) bool {
	return errors.Is(err, domain.ErrTransient)
}
