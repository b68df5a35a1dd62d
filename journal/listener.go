package journal

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/scalper/execution"
	"github.com/rustyeddy/scalper/id"
	"github.com/rustyeddy/scalper/indicators"
	"github.com/rustyeddy/scalper/risk"
	"github.com/rustyeddy/scalper/signal"
)

// Listener turns engine events into journal rows. Write errors are logged
// and never interrupt trading.
type Listener struct {
	j   Journal
	log zerolog.Logger
	now func() time.Time
	ids *id.Generator
}

// NewListener wraps j. A nil now uses time.Now and nil ids uses the
// process-wide generator.
func NewListener(j Journal, log zerolog.Logger, now func() time.Time, ids *id.Generator) *Listener {
	if now == nil {
		now = time.Now
	}
	return &Listener{j: j, log: log, now: now, ids: ids}
}

func (l *Listener) newID() string {
	if l.ids != nil {
		return l.ids.New()
	}
	return id.New()
}

func (l *Listener) OnIndicatorUpdate(indicators.Snapshot) {}

func (l *Listener) OnSignal(signal.Signal) {}

func (l *Listener) OnDecision(ev signal.Evaluation) {
	rec := DecisionRecord{
		ID:      l.newID(),
		Time:    l.now(),
		Symbol:  ev.Symbol,
		BarTime: ev.BarTime,
		Kind:    KindEvaluation,
		Side:    ev.Trend.String(),
		Reason:  ev.Reason,
	}
	if ev.Signal != nil {
		rec.Side = ev.Signal.Side.String()
		rec.Entry = ev.Signal.EntryPrice
		rec.ATRPoints = ev.Signal.ATRPoints
		rec.SpreadPoints = ev.Signal.SpreadPoints
	}
	l.decision(rec)
}

func (l *Listener) OnRiskBlock(sig signal.Signal, d risk.Decision) {
	rec := signalRecord(sig, KindRiskBlock, d.Reason())
	rec.ID = l.newID()
	rec.Time = l.now()
	l.decision(rec)
}

func (l *Listener) OnSignalDropped(sig signal.Signal, err error) {
	rec := signalRecord(sig, KindDropped, err.Error())
	rec.ID = l.newID()
	rec.Time = l.now()
	l.decision(rec)
}

func (l *Listener) OnShadowOrder(p execution.Plan) {
	sig := p.Signal
	l.order(OrderRecord{
		ID:     l.newID(),
		Time:   l.now(),
		Symbol: sig.Symbol,
		Side:   sig.Side.String(),
		Volume: p.Volume,
		Price:  sig.EntryPrice,
		SL:     p.Stops.SL,
		TP:     p.Stops.TP,
		Result: ResultShadow,
	})
}

func (l *Listener) OnExecutionResult(ex execution.Execution) {
	rec := OrderRecord{
		ID:        ex.Request.Tag,
		Time:      l.now(),
		Symbol:    ex.Symbol,
		Side:      ex.Request.Side.String(),
		Volume:    ex.Request.Volume,
		Price:     ex.Request.Price,
		SL:        ex.Request.SL,
		TP:        ex.Request.TP,
		Deviation: ex.Request.Deviation,
		Attempts:  ex.Attempts,
		Retries:   ex.Retries,
		Ticket:    ex.Result.Ticket,
		Result:    ResultExecuted,
	}
	if ex.Result.Retcode != 0 {
		rec.Retcode = ex.Result.Retcode.String()
	}
	switch {
	case ex.Final() == execution.StateAborted:
		rec.Result = ResultAborted
	case !ex.Accepted():
		rec.Result = ResultFailed
	}
	if ex.Err != nil {
		rec.Error = ex.Err.Error()
	}
	if rec.ID == "" {
		rec.ID = l.newID()
	}
	l.order(rec)
}

func signalRecord(sig signal.Signal, kind, reason string) DecisionRecord {
	return DecisionRecord{
		Symbol:       sig.Symbol,
		BarTime:      sig.SourceBarTime,
		Kind:         kind,
		Side:         sig.Side.String(),
		Reason:       reason,
		Entry:        sig.EntryPrice,
		ATRPoints:    sig.ATRPoints,
		SpreadPoints: sig.SpreadPoints,
	}
}

func (l *Listener) decision(rec DecisionRecord) {
	if err := l.j.RecordDecision(rec); err != nil {
		l.log.Error().Err(err).Str("symbol", rec.Symbol).Msg("journal decision")
	}
}

func (l *Listener) order(rec OrderRecord) {
	if err := l.j.RecordOrder(rec); err != nil {
		l.log.Error().Err(err).Str("symbol", rec.Symbol).Msg("journal order")
	}
}
