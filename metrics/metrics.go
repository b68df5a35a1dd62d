// Package metrics exposes engine activity as Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rustyeddy/scalper/execution"
	"github.com/rustyeddy/scalper/indicators"
	"github.com/rustyeddy/scalper/risk"
	"github.com/rustyeddy/scalper/signal"
)

const namespace = "scalper"

// Metrics holds the collectors. Register them on an explicit registry so
// several engines (or tests) don't collide on the default one.
type Metrics struct {
	reg prometheus.Gatherer

	Decisions    *prometheus.CounterVec
	Signals      *prometheus.CounterVec
	RiskBlocks   *prometheus.CounterVec
	Dropped      *prometheus.CounterVec
	ShadowOrders *prometheus.CounterVec
	Orders       *prometheus.CounterVec
	OrderRetries *prometheus.CounterVec
	Indicator    *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg. A nil reg gets a
// fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		reg: reg,
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "decisions_total", Help: "M1 bar evaluations by reason"},
			[]string{"symbol", "reason"},
		),
		Signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "signals_total", Help: "Confirmed entry signals"},
			[]string{"symbol", "side"},
		),
		RiskBlocks: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "risk_blocks_total", Help: "Signals denied by the risk gate"},
			[]string{"symbol", "reason"},
		),
		Dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "signals_dropped_total", Help: "Signals dropped by sizing or stop validation"},
			[]string{"symbol"},
		),
		ShadowOrders: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "shadow_orders_total", Help: "Orders withheld in shadow mode"},
			[]string{"symbol", "side"},
		),
		Orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "orders_total", Help: "Order executions by final state"},
			[]string{"symbol", "side", "state"},
		),
		OrderRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "order_retries_total", Help: "Resubmissions after requote or price-off"},
			[]string{"symbol"},
		),
		Indicator: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "indicator_value", Help: "Latest ready indicator values"},
			[]string{"symbol", "timeframe", "name"},
		),
	}
	reg.MustRegister(m.Decisions, m.Signals, m.RiskBlocks, m.Dropped, m.ShadowOrders, m.Orders, m.OrderRetries, m.Indicator)
	return m
}

func (m *Metrics) Gatherer() prometheus.Gatherer { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Serve starts a /metrics endpoint on addr in the background.
func (m *Metrics) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

func (m *Metrics) OnIndicatorUpdate(s indicators.Snapshot) {
	v, ok := s.Get()
	if !ok {
		return
	}
	tf := s.Timeframe.String()
	m.Indicator.WithLabelValues(s.Symbol, tf, "ema_fast").Set(v.EMAFast)
	m.Indicator.WithLabelValues(s.Symbol, tf, "ema_medium").Set(v.EMAMedium)
	m.Indicator.WithLabelValues(s.Symbol, tf, "ema_slow").Set(v.EMASlow)
	m.Indicator.WithLabelValues(s.Symbol, tf, "rsi").Set(v.RSI)
	m.Indicator.WithLabelValues(s.Symbol, tf, "atr").Set(v.ATR)
}

func (m *Metrics) OnDecision(e signal.Evaluation) {
	m.Decisions.WithLabelValues(e.Symbol, e.Reason).Inc()
}

func (m *Metrics) OnSignal(s signal.Signal) {
	m.Signals.WithLabelValues(s.Symbol, s.Side.String()).Inc()
}

func (m *Metrics) OnRiskBlock(s signal.Signal, d risk.Decision) {
	m.RiskBlocks.WithLabelValues(s.Symbol, d.Reason()).Inc()
}

func (m *Metrics) OnSignalDropped(s signal.Signal, _ error) {
	m.Dropped.WithLabelValues(s.Symbol).Inc()
}

func (m *Metrics) OnShadowOrder(p execution.Plan) {
	m.ShadowOrders.WithLabelValues(p.Signal.Symbol, p.Signal.Side.String()).Inc()
}

func (m *Metrics) OnExecutionResult(ex execution.Execution) {
	m.Orders.WithLabelValues(ex.Symbol, ex.Request.Side.String(), string(ex.Final())).Inc()
	if ex.Retries > 0 {
		m.OrderRetries.WithLabelValues(ex.Symbol).Add(float64(ex.Retries))
	}
}
