package exchange

import (
	"context"
	"log/slog"
	"time"

	"github.com/brhmrsln/x-bot/internal/domain"
)

// Retrying wraps an ExchangeGateway and retries transient failures of
// idempotent calls. Order submissions go through exactly once: a timeout on
// a market order leaves its outcome unknown and resubmitting could double
// the position, so those errors are returned to the caller unchanged.
type Retrying struct {
	next   domain.ExchangeGateway
	policy RetryPolicy
	logger *slog.Logger
}

// NewRetrying decorates next with policy.
func NewRetrying(next domain.ExchangeGateway, policy RetryPolicy, logger *slog.Logger) *Retrying {
	return &Retrying{
		next:   next,
		policy: policy,
		logger: logger.With(slog.String("component", "exchange_retry")),
	}
}

func (r *Retrying) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err != nil {
			r.logger.DebugContext(ctx, "exchange call failed",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		}
		return err
	})
	if err != nil && attempt > 1 {
		r.logger.WarnContext(ctx, "exchange call gave up after retries",
			slog.String("op", op),
			slog.Int("attempts", attempt),
			slog.String("error", err.Error()),
		)
	}
	return err
}

func (r *Retrying) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	var out float64
	err := r.do(ctx, "mark_price", func(ctx context.Context) (err error) {
		out, err = r.next.MarkPrice(ctx, symbol)
		return err
	})
	return out, err
}

func (r *Retrying) SymbolRules(ctx context.Context, symbol string) (domain.SymbolRules, error) {
	var out domain.SymbolRules
	err := r.do(ctx, "symbol_rules", func(ctx context.Context) (err error) {
		out, err = r.next.SymbolRules(ctx, symbol)
		return err
	})
	return out, err
}

func (r *Retrying) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return r.do(ctx, "set_leverage", func(ctx context.Context) error {
		return r.next.SetLeverage(ctx, symbol, leverage)
	})
}

func (r *Retrying) OpenMarketEntry(ctx context.Context, symbol string, side domain.OrderSide, quantity float64) (domain.OrderAck, error) {
	return r.next.OpenMarketEntry(ctx, symbol, side, quantity)
}

func (r *Retrying) PlaceStopOrder(ctx context.Context, order domain.ProtectiveOrder) (domain.OrderAck, error) {
	return r.next.PlaceStopOrder(ctx, order)
}

func (r *Retrying) PlaceTakeProfitOrder(ctx context.Context, order domain.ProtectiveOrder) (domain.OrderAck, error) {
	return r.next.PlaceTakeProfitOrder(ctx, order)
}

func (r *Retrying) ClosePositionMarket(ctx context.Context, symbol string, side domain.OrderSide, quantity float64) (domain.OrderAck, error) {
	return r.next.ClosePositionMarket(ctx, symbol, side, quantity)
}

func (r *Retrying) QueryOrder(ctx context.Context, symbol, orderID string) (domain.OrderInfo, error) {
	var out domain.OrderInfo
	err := r.do(ctx, "query_order", func(ctx context.Context) (err error) {
		out, err = r.next.QueryOrder(ctx, symbol, orderID)
		return err
	})
	return out, err
}

func (r *Retrying) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return r.do(ctx, "cancel_order", func(ctx context.Context) error {
		return r.next.CancelOrder(ctx, symbol, orderID)
	})
}

func (r *Retrying) GetOrderFillDetail(ctx context.Context, symbol, orderID string) (domain.FillDetail, error) {
	var out domain.FillDetail
	err := r.do(ctx, "order_fill_detail", func(ctx context.Context) (err error) {
		out, err = r.next.GetOrderFillDetail(ctx, symbol, orderID)
		return err
	})
	return out, err
}

func (r *Retrying) LastClosingFill(ctx context.Context, symbol string, side domain.OrderSide, since time.Time) (domain.FillDetail, error) {
	var out domain.FillDetail
	err := r.do(ctx, "last_closing_fill", func(ctx context.Context) (err error) {
		out, err = r.next.LastClosingFill(ctx, symbol, side, since)
		return err
	})
	return out, err
}

func (r *Retrying) ListOpenPositions(ctx context.Context) (map[string]float64, error) {
	return retryValue(ctx, r.policy, r.next.ListOpenPositions)
}

func (r *Retrying) PositionAmount(ctx context.Context, symbol string) (float64, error) {
	var out float64
	err := r.do(ctx, "position_amount", func(ctx context.Context) (err error) {
		out, err = r.next.PositionAmount(ctx, symbol)
		return err
	})
	return out, err
}

func (r *Retrying) Klines(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	return retryValue(ctx, r.policy, func(ctx context.Context) ([]domain.Candle, error) {
		return r.next.Klines(ctx, symbol, interval, limit)
	})
}

var _ domain.ExchangeGateway = (*Retrying)(nil)
