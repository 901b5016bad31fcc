package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the engine's Prometheus collectors:
//
//	xbot_open_positions                      gauge
//	xbot_positions_opened_total{side}        counter
//	xbot_positions_closed_total{reason,side} counter
//	xbot_realized_pnl_usdt                   gauge, running sum of net PnL
//	xbot_price_clamps_total{kind}            counter, kind: stop|take_profit
//	xbot_protective_order_failures_total{kind}
//	xbot_persistence_failures_total
//	xbot_loop_errors_total
type Metrics struct {
	OpenPositions       prometheus.Gauge
	Opened              *prometheus.CounterVec
	Closed              *prometheus.CounterVec
	RealizedPnL         prometheus.Gauge
	PriceClamps         *prometheus.CounterVec
	ProtectiveFailures  *prometheus.CounterVec
	PersistenceFailures prometheus.Counter
	LoopErrors          prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "xbot_open_positions",
			Help: "Positions currently tracked by the engine",
		}),
		Opened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xbot_positions_opened_total",
			Help: "Positions opened",
		}, []string{"side"}),
		Closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xbot_positions_closed_total",
			Help: "Positions closed, split by exit reason and side",
		}, []string{"reason", "side"}),
		RealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "xbot_realized_pnl_usdt",
			Help: "Net realized PnL since process start",
		}),
		PriceClamps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xbot_price_clamps_total",
			Help: "Protective prices moved into the exchange percent-price band",
		}, []string{"kind"}),
		ProtectiveFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xbot_protective_order_failures_total",
			Help: "Protective order placements that failed after a filled entry",
		}, []string{"kind"}),
		PersistenceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xbot_persistence_failures_total",
			Help: "State saves that failed",
		}),
		LoopErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xbot_loop_errors_total",
			Help: "Engine iterations that ended in an error or panic",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.OpenPositions, m.Opened, m.Closed, m.RealizedPnL,
			m.PriceClamps, m.ProtectiveFailures, m.PersistenceFailures, m.LoopErrors)
	}
	return m
}
