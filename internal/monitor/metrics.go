package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dca-core/internal/events"
)

// Metrics exports bot activity to Prometheus. It is an events.Sink, so
// components only publish events and never touch collectors directly.
type Metrics struct {
	reg *prometheus.Registry

	CandlesTotal     prometheus.Counter
	WSReconnects     prometheus.Counter
	WindowLen        prometheus.Gauge
	SignalsTotal     *prometheus.CounterVec // labels: action
	DecisionsTotal   *prometheus.CounterVec // labels: action
	SizingRejections *prometheus.CounterVec // labels: reason
	OrderAttempts    *prometheus.CounterVec // labels: side, result
	OrdersTotal      *prometheus.CounterVec // labels: side, status
	LadderLegs       prometheus.Gauge
	LaddersClosed    prometheus.Counter
	LastProfitPct    prometheus.Gauge
	CycleDuration    prometheus.Histogram
}

// NewMetrics registers every collector on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dca_candles_total",
			Help: "Closed candles accepted into the window",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dca_ws_reconnects_total",
			Help: "Stream reconnection attempts",
		}),
		WindowLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dca_window_candles",
			Help: "Candles currently held in the window",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dca_signals_total",
			Help: "Signal evaluations by gated action",
		}, []string{"action"}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dca_decisions_total",
			Help: "Final decisions by action",
		}, []string{"action"}),
		SizingRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dca_sizing_rejections_total",
			Help: "Candidate buys rejected by the ladder policy",
		}, []string{"reason"}),
		OrderAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dca_order_attempts_total",
			Help: "Order placement attempts",
		}, []string{"side", "result"}),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dca_orders_total",
			Help: "Terminal order outcomes",
		}, []string{"side", "status"}),
		LadderLegs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dca_ladder_legs",
			Help: "Open ladder legs",
		}),
		LaddersClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dca_ladders_closed_total",
			Help: "Ladders closed by a sell",
		}),
		LastProfitPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dca_last_profit_pct",
			Help: "Realised profit of the most recent ladder close, percent",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dca_cycle_seconds",
			Help:    "Time from candle receipt to decision completion, orders included",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 2.5, 5, 10},
		}),
	}
	m.reg.MustRegister(
		m.CandlesTotal, m.WSReconnects, m.WindowLen,
		m.SignalsTotal, m.DecisionsTotal, m.SizingRejections,
		m.OrderAttempts, m.OrdersTotal,
		m.LadderLegs, m.LaddersClosed, m.LastProfitPct,
		m.CycleDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCycle(d time.Duration) {
	m.CycleDuration.Observe(d.Seconds())
}

// Handle updates collectors from one bus envelope.
func (m *Metrics) Handle(env events.Envelope) {
	switch p := env.Payload.(type) {
	case events.CandleAccepted:
		m.CandlesTotal.Inc()
		m.WindowLen.Set(float64(p.WindowLen))
	case events.Reconnect:
		m.WSReconnects.Inc()
	case events.SignalEvaluated:
		m.SignalsTotal.WithLabelValues(p.Action).Inc()
	case events.Decision:
		m.DecisionsTotal.WithLabelValues(p.Action).Inc()
	case events.SizingRejected:
		m.SizingRejections.WithLabelValues(p.Reason).Inc()
	case events.OrderAttempt:
		result := "ok"
		if p.Error != "" {
			result = "error"
		}
		m.OrderAttempts.WithLabelValues(p.Side, result).Inc()
	case events.OrderResult:
		m.OrdersTotal.WithLabelValues(p.Side, p.Status).Inc()
	case events.LegOpened:
		m.LadderLegs.Set(float64(p.Leg))
	case events.LedgerClosed:
		m.LadderLegs.Set(0)
		m.LaddersClosed.Inc()
		m.LastProfitPct.Set(p.ProfitPct)
	}
}
