package engine

import (
	"github.com/rustyeddy/scalper/execution"
	"github.com/rustyeddy/scalper/indicators"
	"github.com/rustyeddy/scalper/risk"
	"github.com/rustyeddy/scalper/signal"
)

// Listener observes the engine. Callbacks run on the symbol's worker
// goroutine and must not block for long; a panic in a listener is recovered
// and logged.
type Listener interface {
	OnIndicatorUpdate(indicators.Snapshot)
	// OnDecision is called for every evaluated M1 bar, signal or not.
	OnDecision(signal.Evaluation)
	// OnSignal is called in shadow and live mode before the risk gate.
	OnSignal(signal.Signal)
	OnRiskBlock(signal.Signal, risk.Decision)
	// OnSignalDropped reports a signal that passed the gate but could not
	// be turned into an order (stops, lot size, account data).
	OnSignalDropped(signal.Signal, error)
	// OnShadowOrder reports the order that would have been sent.
	OnShadowOrder(execution.Plan)
	OnExecutionResult(execution.Execution)
}

// NopListener ignores everything. Embed it to implement a subset.
type NopListener struct{}

func (NopListener) OnIndicatorUpdate(indicators.Snapshot)    {}
func (NopListener) OnDecision(signal.Evaluation)             {}
func (NopListener) OnSignal(signal.Signal)                   {}
func (NopListener) OnRiskBlock(signal.Signal, risk.Decision) {}
func (NopListener) OnSignalDropped(signal.Signal, error)     {}
func (NopListener) OnShadowOrder(execution.Plan)             {}
func (NopListener) OnExecutionResult(execution.Execution)    {}

// MultiListener fans every callback out in order.
type MultiListener []Listener

func (m MultiListener) OnIndicatorUpdate(s indicators.Snapshot) {
	for _, l := range m {
		l.OnIndicatorUpdate(s)
	}
}

func (m MultiListener) OnDecision(e signal.Evaluation) {
	for _, l := range m {
		l.OnDecision(e)
	}
}

func (m MultiListener) OnSignal(s signal.Signal) {
	for _, l := range m {
		l.OnSignal(s)
	}
}

func (m MultiListener) OnRiskBlock(s signal.Signal, d risk.Decision) {
	for _, l := range m {
		l.OnRiskBlock(s, d)
	}
}

func (m MultiListener) OnSignalDropped(s signal.Signal, err error) {
	for _, l := range m {
		l.OnSignalDropped(s, err)
	}
}

func (m MultiListener) OnShadowOrder(p execution.Plan) {
	for _, l := range m {
		l.OnShadowOrder(p)
	}
}

func (m MultiListener) OnExecutionResult(ex execution.Execution) {
	for _, l := range m {
		l.OnExecutionResult(ex)
	}
}
