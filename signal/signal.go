// Package signal turns closed M1 bars into entry signals using an M5 trend
// filter and an M1 pullback-continuation pattern.
package signal

import (
	"fmt"
	"time"

	"github.com/rustyeddy/scalper/market"
)

// Reason codes reported for every evaluation.
const (
	ReasonConfirmed          = "confirmed"
	ReasonSpreadTooWide      = "spread_too_wide"
	ReasonOutsideSession     = "outside_session"
	ReasonAvoidPeriod        = "avoid_period"
	ReasonIndicatorsNotReady = "indicators_not_ready"
	ReasonNoTrend            = "no_trend"
	ReasonDojiCandle         = "doji_candle"
	ReasonNoPullback         = "no_pullback_signal"
	ReasonRSIFilter          = "rsi_filter"
)

// ReasonManual marks a signal injected by hand rather than produced by an
// evaluation.
const ReasonManual = "manual"

// Signal is an entry decision for one closed M1 bar.
type Signal struct {
	Symbol        string
	Side          market.Side
	EntryPrice    float64
	Reason        string
	ATRPoints     float64
	SpreadPoints  float64
	GeneratedAt   time.Time
	SourceBarTime time.Time
}

func (s Signal) String() string {
	return fmt.Sprintf("%s %s @ %g atr=%.1fpt spread=%.0fpt bar=%s",
		s.Symbol, s.Side, s.EntryPrice, s.ATRPoints, s.SpreadPoints, s.SourceBarTime.Format(time.RFC3339))
}

// State of the per-symbol evaluator.
type State int

const (
	Idle State = iota
	Evaluating
	SignalEmitted
	NoSignal
)

func (s State) String() string {
	switch s {
	case Evaluating:
		return "evaluating"
	case SignalEmitted:
		return "signal_emitted"
	case NoSignal:
		return "no_signal"
	default:
		return "idle"
	}
}

// Check is the outcome of one filter step.
type Check struct {
	Name   string
	Passed bool
}

// Evaluation is the observable result of evaluating one M1 bar. Signal is
// only set when State is SignalEmitted.
type Evaluation struct {
	Symbol  string
	BarTime time.Time
	State   State
	Reason  string
	Trend   market.Side
	Checks  []Check
	Signal  *Signal
}

func (e Evaluation) Emitted() bool { return e.State == SignalEmitted && e.Signal != nil }
