package logging

import (
	"github.com/rs/zerolog"

	"github.com/rustyeddy/scalper/execution"
	"github.com/rustyeddy/scalper/indicators"
	"github.com/rustyeddy/scalper/risk"
	"github.com/rustyeddy/scalper/signal"
)

// Listener logs engine events.
type Listener struct {
	log zerolog.Logger
}

func NewListener(log zerolog.Logger) *Listener {
	return &Listener{log: log}
}

func (l *Listener) OnIndicatorUpdate(s indicators.Snapshot) {
	ev := l.log.Trace().Str("symbol", s.Symbol).Stringer("tf", s.Timeframe).Time("bar", s.BarTime)
	if v, ok := s.Get(); ok {
		ev = ev.Float64("ema_fast", v.EMAFast).Float64("ema_slow", v.EMASlow).Float64("rsi", v.RSI).Float64("atr", v.ATR)
	} else {
		ev = ev.Int("bars", s.Bars).Bool("ready", false)
	}
	ev.Msg("indicators")
}

func (l *Listener) OnDecision(e signal.Evaluation) {
	l.log.Debug().
		Str("symbol", e.Symbol).
		Time("bar", e.BarTime).
		Stringer("state", e.State).
		Str("reason", e.Reason).
		Msg("evaluated")
}

func (l *Listener) OnSignal(s signal.Signal) {
	l.log.Info().
		Str("symbol", s.Symbol).
		Stringer("side", s.Side).
		Float64("entry", s.EntryPrice).
		Float64("atr_points", s.ATRPoints).
		Float64("spread_points", s.SpreadPoints).
		Msg("signal")
}

func (l *Listener) OnRiskBlock(s signal.Signal, d risk.Decision) {
	l.log.Warn().
		Str("symbol", s.Symbol).
		Stringer("side", s.Side).
		Str("reason", d.Reason()).
		Str("detail", d.String()).
		Msg("risk blocked")
}

func (l *Listener) OnSignalDropped(s signal.Signal, err error) {
	l.log.Warn().Err(err).Str("symbol", s.Symbol).Stringer("side", s.Side).Msg("signal dropped")
}

func (l *Listener) OnShadowOrder(p execution.Plan) {
	l.log.Info().
		Str("symbol", p.Signal.Symbol).
		Stringer("side", p.Signal.Side).
		Float64("entry", p.Signal.EntryPrice).
		Float64("sl", p.Stops.SL).
		Float64("tp", p.Stops.TP).
		Float64("volume", p.Volume).
		Msg("shadow order")
}

func (l *Listener) OnExecutionResult(ex execution.Execution) {
	ev := l.log.Info()
	if !ex.Accepted() {
		ev = l.log.Error().Err(ex.Err)
	}
	ev.Str("symbol", ex.Symbol).
		Str("tag", ex.Request.Tag).
		Stringer("retcode", ex.Result.Retcode).
		Int64("ticket", ex.Result.Ticket).
		Int("attempts", ex.Attempts).
		Int("retries", ex.Retries).
		Msg("execution")
}
