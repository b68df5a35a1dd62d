package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/scalper/broker"
	"github.com/rustyeddy/scalper/execution"
	"github.com/rustyeddy/scalper/market"
	"github.com/rustyeddy/scalper/risk"
	"github.com/rustyeddy/scalper/signal"
)

type eventKind int

const (
	evBar eventKind = iota
	evBars
	evFlush
	evSignal
)

func (k eventKind) String() string {
	switch k {
	case evBar:
		return "bar"
	case evBars:
		return "bars"
	case evFlush:
		return "flush"
	case evSignal:
		return "signal"
	}
	return "unknown"
}

type event struct {
	kind   eventKind
	symbol string
	tf     market.Timeframe
	bar    market.Bar
	bars   []market.Bar
	sig    signal.Signal
	done   chan struct{}
}

// worker owns everything that is per symbol. Only its goroutine touches
// the fields below.
type worker struct {
	symbol string
	events chan event
	quit   chan struct{}
	log    zerolog.Logger

	eval    *signal.Evaluator
	sets    map[market.Timeframe]*market.BarSet
	m5Fed   bool
	spec    *market.InstrumentSpec
	version uint64
	window  int
}

func (w *worker) set(tf market.Timeframe) *market.BarSet {
	s, ok := w.sets[tf]
	if !ok {
		s = market.NewBarSet(tf, w.limit(tf))
		w.sets[tf] = s
	}
	return s
}

func (w *worker) limit(tf market.Timeframe) int {
	if tf == market.M1 {
		return w.window * m1PerM5
	}
	return w.window
}

func (e *Engine) run(w *worker) {
	defer e.wg.Done()
	for {
		// quit wins over queued events once Close has been called.
		select {
		case <-w.quit:
			e.drain(w)
			return
		default:
		}
		select {
		case <-w.quit:
			e.drain(w)
			return
		case ev := <-w.events:
			e.handle(w, ev)
		}
	}
}

func (e *Engine) drain(w *worker) {
	dropped := 0
	for {
		select {
		case ev := <-w.events:
			if ev.done != nil {
				close(ev.done)
				continue
			}
			dropped++
		default:
			if dropped > 0 {
				w.log.Warn().Int("events", dropped).Msg("dropped queued events on shutdown")
			}
			return
		}
	}
}

func (e *Engine) handle(w *worker, ev event) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Interface("panic", r).Stringer("event", ev.kind).Msg("recovered from panic in event handler")
		}
		if ev.done != nil {
			close(ev.done)
		}
	}()

	if ev.kind == evFlush {
		return
	}
	e.sync(w)

	spec, err := e.instrument(w)
	if err != nil {
		w.log.Warn().Err(err).Stringer("event", ev.kind).Msg("skipping event without instrument spec")
		return
	}
	if ev.kind == evSignal {
		e.inject(w, spec, ev.sig)
		return
	}

	switch ev.kind {
	case evBars:
		w.set(ev.tf).Replace(ev.bars)
	case evBar:
		if err := w.set(ev.tf).Append(ev.bar); err != nil {
			w.log.Debug().Err(err).Stringer("tf", ev.tf).Time("bar", ev.bar.Time).Msg("bar ignored")
			return
		}
	}
	if ev.tf == market.M5 {
		w.m5Fed = true
	}
	e.update(w, ev.tf)

	if ev.tf != market.M1 {
		return
	}
	if !w.m5Fed {
		m5 := market.Aggregate(w.set(market.M1).Bars(), market.M1, market.M5, true)
		w.set(market.M5).Replace(m5)
		e.update(w, market.M5)
	}
	e.evaluate(w, spec)
}

// sync applies a config swapped in by Reconfigure.
func (e *Engine) sync(w *worker) {
	st := e.st.Load()
	if st.version == w.version {
		return
	}
	w.eval.SetSettings(st.signal)
	if st.window != w.window {
		w.window = st.window
		for tf, old := range w.sets {
			s := market.NewBarSet(tf, w.limit(tf))
			s.Replace(old.Bars())
			w.sets[tf] = s
		}
	}
	w.version = st.version
}

func (e *Engine) update(w *worker, tf market.Timeframe) {
	e.listener.OnIndicatorUpdate(e.ind.Update(w.symbol, tf, w.set(tf).Bars()))
}

// instrument asks the gateway once per symbol and falls back to the
// built-in table.
func (e *Engine) instrument(w *worker) (market.InstrumentSpec, error) {
	if w.spec != nil {
		return *w.spec, nil
	}
	spec, err := e.gw.InstrumentSpec(e.ctx, w.symbol)
	if err == nil {
		err = spec.Validate()
	}
	if err != nil {
		fallback, ok := market.LookupInstrument(w.symbol)
		if !ok {
			return market.InstrumentSpec{}, fmt.Errorf("instrument %s: %w: %w", w.symbol, broker.ErrDataUnavailable, err)
		}
		w.log.Warn().Err(err).Msg("using built-in instrument spec")
		spec = fallback
	}
	w.spec = &spec
	e.ind.SetFloor(w.symbol, spec.Tick())
	return spec, nil
}

// tick prefers a pushed quote taken at or after barClose and otherwise asks
// the gateway. An older pushed quote belongs to an earlier bar.
func (e *Engine) tick(symbol string, barClose time.Time) (market.Tick, error) {
	if t, err := e.ticks.Get(symbol); err == nil && !t.Time.Before(barClose) {
		return t, nil
	}
	t, err := e.gw.FetchTick(e.ctx, symbol)
	if err != nil {
		return market.Tick{}, fmt.Errorf("tick %s: %w: %w", symbol, broker.ErrDataUnavailable, err)
	}
	return t, nil
}

func (e *Engine) evaluate(w *worker, spec market.InstrumentSpec) {
	m1, _ := e.ind.Snapshot(w.symbol, market.M1)
	m5, _ := e.ind.Snapshot(w.symbol, market.M5)
	tick, err := e.tick(w.symbol, m1.BarTime.Add(market.M1.Duration()))
	if err != nil {
		w.log.Warn().Err(err).Msg("skipping evaluation")
		return
	}

	ev, err := w.eval.Evaluate(signal.Input{Tick: tick, Point: spec.Point, M1: m1, M5: m5})
	if errors.Is(err, signal.ErrAlreadyEvaluated) {
		w.log.Debug().Time("bar", m1.BarTime).Msg("bar already evaluated")
		return
	}
	if err != nil {
		w.log.Warn().Err(err).Msg("evaluation failed")
		return
	}
	e.listener.OnDecision(ev)
	if !ev.Emitted() {
		return
	}
	sig := *ev.Signal
	e.listener.OnSignal(sig)
	e.act(w, spec, sig)
}

// inject completes a hand-made signal from the latest quote and M1 ATR
// where it left them empty, then acts on it like a confirmed one.
func (e *Engine) inject(w *worker, spec market.InstrumentSpec, sig signal.Signal) {
	if sig.EntryPrice == 0 {
		t, err := e.tick(w.symbol, time.Time{})
		if err != nil {
			e.listener.OnSignalDropped(sig, err)
			return
		}
		sig.EntryPrice = t.PriceFor(sig.Side)
		sig.SpreadPoints = t.SpreadPoints(spec.Point)
	}
	if sig.ATRPoints == 0 && spec.Point > 0 {
		if m1, ok := e.ind.Snapshot(w.symbol, market.M1); ok {
			if v, ok := m1.Get(); ok {
				sig.ATRPoints = v.ATR / spec.Point
			}
		}
	}
	w.log.Info().Stringer("signal", sig).Msg("manual signal")
	e.listener.OnSignal(sig)
	e.act(w, spec, sig)
}

// act runs gate, sizing and submission for one signal. It runs on the
// worker goroutine, so the next bar waits until the order is settled.
func (e *Engine) act(w *worker, spec market.InstrumentSpec, sig signal.Signal) {
	st := e.st.Load()

	acct, err := e.gw.AccountSnapshot(e.ctx)
	if err != nil {
		e.listener.OnSignalDropped(sig, fmt.Errorf("account: %w: %w", broker.ErrDataUnavailable, err))
		return
	}

	d := e.risk.Gate(sig, acct)
	if !d.Allowed {
		e.listener.OnRiskBlock(sig, d)
		return
	}

	plan, err := Plan(sig, acct, spec, st.stops, st.riskPercent)
	if err != nil {
		e.listener.OnSignalDropped(sig, err)
		return
	}
	if st.shadow {
		e.listener.OnShadowOrder(plan)
		return
	}

	ex, err := e.exec.Execute(e.ctx, plan)
	if errors.Is(err, execution.ErrCoordinatorClosed) && ex.Attempts == 0 {
		e.listener.OnSignalDropped(sig, err)
		return
	}
	e.listener.OnExecutionResult(ex)
}

// Plan turns an approved signal into an order plan: stops from the
// configured mode, a risk-based lot and the broker's stop-level check.
func Plan(sig signal.Signal, acct broker.Account, spec market.InstrumentSpec, sp risk.StopParams, riskPercent float64) (execution.Plan, error) {
	stops, err := risk.CalcStops(sig.Side, sig.EntryPrice, sig.ATRPoints, sp, spec, acct.Balance)
	if err != nil {
		return execution.Plan{}, err
	}
	if err := risk.ValidateStops(sig.EntryPrice, stops.SL, stops.TP, spec.Point, spec.StopsLevel); err != nil {
		return execution.Plan{}, err
	}
	lot := risk.CalcLotSize(riskPercent, stops.SLPoints, acct.Balance, spec.TickValue, spec.VolumeMin, spec.VolumeStep, spec.VolumeMax)
	if err := risk.CheckLot(lot, spec.VolumeMin); err != nil {
		return execution.Plan{}, err
	}
	return execution.Plan{Signal: sig, Volume: lot, Stops: stops}, nil
}
