// Package journal keeps an append-only record of decisions and orders.
package journal

import "time"

// Decision kinds.
const (
	KindEvaluation = "evaluation"
	KindRiskBlock  = "risk_block"
	KindDropped    = "dropped"
)

// Order results.
const (
	ResultExecuted = "EXECUTED"
	ResultFailed   = "FAILED"
	ResultAborted  = "ABORTED"
	ResultShadow   = "SHADOW"
)

// DecisionRecord is one evaluation outcome, risk denial or dropped signal.
type DecisionRecord struct {
	ID           string
	Time         time.Time
	Symbol       string
	BarTime      time.Time
	Kind         string
	Side         string
	Reason       string
	Entry        float64
	ATRPoints    float64
	SpreadPoints float64
}

// OrderRecord is one live execution or shadow order.
type OrderRecord struct {
	ID        string
	Time      time.Time
	Symbol    string
	Side      string
	Volume    float64
	Price     float64
	SL        float64
	TP        float64
	Deviation int
	Attempts  int
	Retries   int
	Retcode   string
	Ticket    int64
	Result    string
	Error     string
}

type Journal interface {
	RecordDecision(DecisionRecord) error
	RecordOrder(OrderRecord) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordDecision(DecisionRecord) error { return nil }
func (Nop) RecordOrder(OrderRecord) error       { return nil }
func (Nop) Close() error                        { return nil }
