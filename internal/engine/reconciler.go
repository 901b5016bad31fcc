package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/brhmrsln/x-bot/internal/domain"
)

// orderState is the polled state of one protective order.
type orderState struct {
	id     string
	info   domain.OrderInfo
	polled bool
}

func (o orderState) filled() bool   { return o.polled && o.info.Status == domain.OrderStatusFilled }
func (o orderState) live() bool     { return o.polled && o.info.Status.Live() }
func (o orderState) terminal() bool { return o.polled && o.info.Status.Terminal() }

// Reconcile runs one pass over every tracked position, then a full-listing
// pass that closes positions the exchange no longer holds. Transient
// exchange errors leave the affected position untouched until the next
// pass. Only context cancellation is returned.
func (e *Engine) Reconcile(ctx context.Context) error {
	for i, symbol := range e.symbols() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			if err := e.pace(ctx, e.cfg.SymbolPacing); err != nil {
				return err
			}
		}
		p, ok := e.position(symbol)
		if !ok {
			continue
		}
		if err := e.reconcilePosition(ctx, p, false); err != nil {
			e.logReconcileError(ctx, symbol, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e.reconcileListing(ctx)
	return ctx.Err()
}

// reconcileListing closes tracked symbols absent from the exchange listing.
// A failed listing call skips the pass; it is never read as "no positions".
func (e *Engine) reconcileListing(ctx context.Context) {
	tracked := e.symbols()
	if len(tracked) == 0 {
		return
	}
	open, err := e.deps.Gateway.ListOpenPositions(ctx)
	if err != nil {
		e.log.WarnContext(ctx, "open position listing failed, skipping external-close check",
			slog.String("error", err.Error()),
		)
		return
	}
	for _, symbol := range tracked {
		if ctx.Err() != nil {
			return
		}
		if amt, ok := open[symbol]; ok && amt != 0 {
			continue
		}
		p, ok := e.position(symbol)
		if !ok {
			continue
		}
		e.log.InfoContext(ctx, "tracked position missing from exchange listing",
			slog.String("symbol", symbol),
		)
		if err := e.reconcilePosition(ctx, p, true); err != nil {
			e.logReconcileError(ctx, symbol, err)
		}
	}
}

// reconcilePosition polls the protective orders of p and closes it when one
// filled, when protection is gone, or (absent) when the exchange no longer
// lists it. A stop fill wins over the take-profit whatever the take-profit's
// state, including a failed query for it.
func (e *Engine) reconcilePosition(ctx context.Context, p domain.Position, absent bool) error {
	log := e.log.With(slog.String("symbol", p.Symbol))

	stop, stopErr := e.poll(ctx, p.Symbol, p.StopOrderID)
	if p.StopOrderID != "" && p.HasTakeProfit() {
		if err := e.pace(ctx, e.cfg.OrderQueryPacing); err != nil {
			return err
		}
	}
	tp, tpErr := e.poll(ctx, p.Symbol, p.TakeProfitOrderID)

	switch {
	case stopErr == nil && stop.filled():
		if tpErr != nil {
			log.WarnContext(ctx, "take-profit status unknown, leaving it to the dust sweep",
				slog.String("order_id", p.TakeProfitOrderID),
				slog.String("error", tpErr.Error()),
			)
		}
		log.InfoContext(ctx, "stop order filled",
			slog.String("order_id", stop.id),
			slog.Bool("take_profit_also_filled", tp.filled()),
		)
		e.cancelLive(ctx, p.Symbol, tp)
		return e.closePosition(ctx, p, closing{
			reason:    domain.CloseReasonStopLoss,
			orderID:   stop.id,
			exitPrice: stop.info.AvgPrice,
			exitKnown: stop.info.AvgPrice > 0,
		})

	case tpErr == nil && tp.filled():
		if stopErr != nil {
			log.WarnContext(ctx, "stop status unknown, closing on take-profit fill",
				slog.String("order_id", p.StopOrderID),
				slog.String("error", stopErr.Error()),
			)
		}
		log.InfoContext(ctx, "take-profit order filled", slog.String("order_id", tp.id))
		e.cancelLive(ctx, p.Symbol, stop)
		return e.closePosition(ctx, p, closing{
			reason:    domain.CloseReasonTakeProfit,
			orderID:   tp.id,
			exitPrice: tp.info.AvgPrice,
			exitKnown: tp.info.AvgPrice > 0,
		})

	case stopErr != nil:
		return stopErr
	case tpErr != nil:
		return tpErr

	case absent:
		e.cancelLive(ctx, p.Symbol, stop)
		e.cancelLive(ctx, p.Symbol, tp)
		return e.closePosition(ctx, p, closing{reason: domain.CloseReasonExternal})

	case stop.terminal() || tp.terminal() || (!stop.live() && !tp.live()):
		log.WarnContext(ctx, "protection compromised",
			slog.String("stop_order", stop.id),
			slog.String("stop_status", stop.info.RawStatus),
			slog.String("take_profit_order", tp.id),
			slog.String("take_profit_status", tp.info.RawStatus),
		)
		e.cancelLive(ctx, p.Symbol, stop)
		e.cancelLive(ctx, p.Symbol, tp)
		return e.closePosition(ctx, p, e.backfillExit(ctx, p))
	}

	if !stop.polled || !tp.polled {
		log.DebugContext(ctx, "position partly protected",
			slog.Bool("stop", stop.polled),
			slog.Bool("take_profit", tp.polled),
		)
	}
	return nil
}

// poll queries order id. An empty id yields an unpolled state.
func (e *Engine) poll(ctx context.Context, symbol, id string) (orderState, error) {
	if id == "" {
		return orderState{}, nil
	}
	info, err := e.deps.Gateway.QueryOrder(ctx, symbol, id)
	if err != nil {
		return orderState{}, err
	}
	return orderState{id: id, info: info, polled: true}, nil
}

// cancelLive cancels o when it is still working. Failures are logged; the
// sweep after closure covers a sibling that fills in the meantime.
func (e *Engine) cancelLive(ctx context.Context, symbol string, o orderState) {
	if !o.live() {
		return
	}
	if err := e.deps.Gateway.CancelOrder(ctx, symbol, o.id); err != nil {
		e.log.WarnContext(ctx, "cancel sibling order failed",
			slog.String("symbol", symbol),
			slog.String("order_id", o.id),
			slog.String("error", err.Error()),
		)
		return
	}
	e.log.InfoContext(ctx, "sibling order canceled",
		slog.String("symbol", symbol),
		slog.String("order_id", o.id),
	)
}

// backfillExit looks up the latest closing-side fill since the position
// opened. The mark price is never used in its place.
func (e *Engine) backfillExit(ctx context.Context, p domain.Position) closing {
	c := closing{reason: domain.CloseReasonCompromised}
	fill, err := e.deps.Gateway.LastClosingFill(ctx, p.Symbol, p.Side.ClosingOrderSide(), p.CreatedAt)
	if err != nil {
		if !errors.Is(err, domain.ErrNoFillDetail) {
			e.log.WarnContext(ctx, "exit backfill failed, exit price unavailable",
				slog.String("symbol", p.Symbol),
				slog.String("error", err.Error()),
			)
		}
		return c
	}
	if fill.AvgPrice > 0 {
		c.exitPrice = fill.AvgPrice
		c.exitKnown = true
	}
	c.orderID = fill.OrderID
	commission := fill.Commission
	c.exitCommission = &commission
	return c
}

func (e *Engine) logReconcileError(ctx context.Context, symbol string, err error) {
	switch {
	case ctx.Err() != nil:
	case isTransient(err):
		e.log.WarnContext(ctx, "transient error, position left untouched this pass",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	default:
		e.log.ErrorContext(ctx, "reconcile failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	}
}
