package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brhmrsln/x-bot/internal/domain"
	"github.com/brhmrsln/x-bot/internal/notify"
)

// closing describes how a position ended.
type closing struct {
	reason    domain.CloseReason
	orderID   string // closing order, empty when unknown
	exitPrice float64
	exitKnown bool
	// exitCommission is used when the commission came with the exit fill
	// itself and orderID cannot be looked up.
	exitCommission *float64
}

// pnl holds the accounting figures of one closed trade.
type pnl struct {
	gross, net, pct float64
}

// computePnL applies gross = (exit - entry) * qty * dir and
// net = gross - entry commission - exit commission in decimal arithmetic.
// gross is 0 when the exit price is unknown; pct is 0 when notional is 0.
func computePnL(p domain.Position, exit float64, exitKnown bool, exitCommission float64) pnl {
	entry := decimal.NewFromFloat(p.EntryPrice)
	qty := decimal.NewFromFloat(p.Quantity)
	dir := decimal.NewFromInt(int64(p.Side.Direction()))

	gross := decimal.Zero
	if exitKnown {
		gross = decimal.NewFromFloat(exit).Sub(entry).Mul(qty).Mul(dir).Round(8)
	}
	net := gross.
		Sub(decimal.NewFromFloat(p.EntryCommission)).
		Sub(decimal.NewFromFloat(exitCommission)).
		Round(8)

	pct := decimal.Zero
	if notional := entry.Mul(qty); !notional.IsZero() {
		pct = net.Div(notional).Round(8)
	}
	g, _ := gross.Float64()
	n, _ := net.Float64()
	r, _ := pct.Float64()
	return pnl{gross: g, net: n, pct: r}
}

// closePosition records the trade for p and stops tracking it.
//
// The ledger append must succeed first: on failure the position stays
// tracked so the next pass retries the closure. After that come the alert
// and event, a dust sweep of any residual exchange amount, and finally
// removal from state.
func (e *Engine) closePosition(ctx context.Context, p domain.Position, c closing) error {
	log := e.log.With(
		slog.String("symbol", p.Symbol),
		slog.String("reason", string(c.reason)),
	)

	exitCommission := 0.0
	switch {
	case c.exitCommission != nil:
		exitCommission = *c.exitCommission
	case c.orderID != "":
		fill, err := e.deps.Gateway.GetOrderFillDetail(ctx, p.Symbol, c.orderID)
		if err != nil {
			log.WarnContext(ctx, "exit commission unavailable, recording 0",
				slog.String("order_id", c.orderID),
				slog.String("error", err.Error()),
			)
		} else {
			exitCommission = fill.Commission
		}
	default:
		log.WarnContext(ctx, "no closing order known, exit commission recorded as 0")
	}

	res := computePnL(p, c.exitPrice, c.exitKnown, exitCommission)
	total, _ := decimal.NewFromFloat(p.EntryCommission).Add(decimal.NewFromFloat(exitCommission)).Round(8).Float64()
	rec := domain.TradeRecord{
		ID:              uuid.NewString(),
		Symbol:          p.Symbol,
		Side:            p.Side,
		Quantity:        p.Quantity,
		EntryPrice:      p.EntryPrice,
		GrossPnL:        res.gross,
		NetPnL:          res.net,
		PnLPercentage:   res.pct,
		EntryCommission: p.EntryCommission,
		ExitCommission:  exitCommission,
		TotalCommission: total,
		EntryReason:     p.EntryReason,
		ExitReason:      c.reason,
		ClosingOrderID:  c.orderID,
		OpenedAt:        p.CreatedAt,
		ClosedAt:        e.deps.Now().UTC(),
	}
	if c.exitKnown {
		rec.ExitPrice = c.exitPrice
		rec.ExitPriceKnown = true
	}

	if err := e.deps.Ledger.Append(ctx, rec); err != nil {
		log.ErrorContext(ctx, "trade ledger append failed, position stays tracked",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("engine: close %s: ledger: %w", p.Symbol, err)
	}

	e.deps.Metrics.Closed.WithLabelValues(string(c.reason), string(p.Side)).Inc()
	e.deps.Metrics.RealizedPnL.Add(rec.NetPnL)
	log.InfoContext(ctx, "position closed",
		slog.Bool("exit_known", rec.ExitPriceKnown),
		slog.Float64("exit_price", rec.ExitPrice),
		slog.Float64("gross_pnl", rec.GrossPnL),
		slog.Float64("net_pnl", rec.NetPnL),
		slog.Float64("total_commission", rec.TotalCommission),
	)

	title, msg := notify.PositionClosed(rec)
	e.notify(ctx, domain.EventPositionClosed, title, msg)
	e.publish(ctx, domain.PositionEvent{
		Type:   domain.EventPositionClosed,
		Symbol: p.Symbol,
		Trade:  &rec,
		At:     rec.ClosedAt,
	})
	e.audit(ctx, "position_closed", map[string]any{
		"symbol": p.Symbol, "reason": string(c.reason), "net_pnl": rec.NetPnL,
	})

	e.sweepDust(ctx, p)
	e.forget(ctx, p.Symbol)
	return nil
}

// sweepDust closes whatever amount the exchange still reports for the
// symbol with a reduce-only market order.
func (e *Engine) sweepDust(ctx context.Context, p domain.Position) {
	gw := e.deps.Gateway
	log := e.log.With(slog.String("symbol", p.Symbol))

	amt, err := gw.PositionAmount(ctx, p.Symbol)
	if err != nil {
		log.WarnContext(ctx, "dust check failed", slog.String("error", err.Error()))
		return
	}
	if amt == 0 {
		return
	}
	side := domain.SideFromAmount(amt)
	qty := amt
	if qty < 0 {
		qty = -qty
	}
	log.WarnContext(ctx, "residual position found after closure, sweeping",
		slog.Float64("amount", amt),
	)
	ack, err := gw.ClosePositionMarket(ctx, p.Symbol, side.ClosingOrderSide(), qty)
	if err != nil {
		if errors.Is(err, domain.ErrTransient) {
			log.WarnContext(ctx, "dust sweep failed", slog.String("error", err.Error()))
		} else {
			log.ErrorContext(ctx, "dust sweep rejected", slog.String("error", err.Error()))
		}
		return
	}
	log.InfoContext(ctx, "dust swept",
		slog.String("order_id", ack.OrderID),
		slog.String("status", ack.RawStatus),
	)
}
