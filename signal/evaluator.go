package signal

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rustyeddy/scalper/indicators"
	"github.com/rustyeddy/scalper/market"
)

var (
	// ErrAlreadyEvaluated is returned for a bar at or before the last
	// evaluated M1 bar. Redelivery is a no-op.
	ErrAlreadyEvaluated = errors.New("bar already evaluated")
	ErrNoBar            = errors.New("no closed M1 bar")
)

// Settings tune the filter pipeline.
type Settings struct {
	MaxSpreadPoints float64
	Sessions        Sessions
	UseRSIFilter    bool
	// DojiRatio is the minimum body/range of the trigger bar.
	DojiRatio float64
	// PullbackATR bounds |close-ema_fast| in multiples of ATR.
	PullbackATR float64
}

func DefaultSettings() Settings {
	return Settings{
		MaxSpreadPoints: 30,
		Sessions:        DefaultSessions(),
		DojiRatio:       0.3,
		PullbackATR:     0.5,
	}
}

// Input is everything needed to evaluate the newest closed M1 bar.
type Input struct {
	Tick  market.Tick
	Point float64
	M1    indicators.Snapshot
	M5    indicators.Snapshot
}

// Evaluator runs the filter pipeline for one symbol. It emits at most one
// signal per M1 bar time and only moves forward in time.
type Evaluator struct {
	mu       sync.Mutex
	symbol   string
	settings Settings
	state    State
	lastBar  time.Time
	now      func() time.Time
}

// NewEvaluator creates an evaluator. A nil now uses time.Now.
func NewEvaluator(symbol string, s Settings, now func() time.Time) *Evaluator {
	if now == nil {
		now = time.Now
	}
	return &Evaluator{symbol: symbol, settings: s, now: now}
}

func (e *Evaluator) Symbol() string { return e.symbol }

func (e *Evaluator) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Evaluator) LastBarTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastBar
}

// SetSettings applies new filter settings from the next evaluation on.
func (e *Evaluator) SetSettings(s Settings) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings = s
}

// Evaluate runs the pipeline once for in.M1.BarTime. The first failing
// filter becomes the reason.
func (e *Evaluator) Evaluate(in Input) (Evaluation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	barTime := in.M1.BarTime
	if barTime.IsZero() {
		return Evaluation{}, ErrNoBar
	}
	if !e.lastBar.IsZero() && !barTime.After(e.lastBar) {
		return Evaluation{}, ErrAlreadyEvaluated
	}
	e.lastBar = barTime
	e.state = Evaluating

	ev := e.run(in)
	ev.Symbol = e.symbol
	ev.BarTime = barTime
	if ev.Signal != nil {
		ev.State = SignalEmitted
	} else {
		ev.State = NoSignal
	}
	e.state = Idle
	return ev, nil
}

func (e *Evaluator) run(in Input) Evaluation {
	s := e.settings
	var ev Evaluation
	fail := func(name, reason string) Evaluation {
		ev.Checks = append(ev.Checks, Check{Name: name, Passed: false})
		ev.Reason = reason
		return ev
	}
	pass := func(name string) {
		ev.Checks = append(ev.Checks, Check{Name: name, Passed: true})
	}

	spread := in.Tick.SpreadPoints(in.Point)
	if spread > s.MaxSpreadPoints {
		return fail("spread", ReasonSpreadTooWide)
	}
	pass("spread")

	at := in.Tick.Time
	if at.IsZero() {
		at = e.now()
	}
	if reason := s.Sessions.Check(at); reason != "" {
		return fail("session", reason)
	}
	pass("session")

	m1, ok1 := in.M1.Get()
	m5, ok5 := in.M5.Get()
	if !ok1 || !ok5 {
		return fail("warmup", ReasonIndicatorsNotReady)
	}
	pass("warmup")

	ev.Trend = Trend(m5)
	if ev.Trend == market.None {
		return fail("trend", ReasonNoTrend)
	}
	pass("trend")

	if IsDoji(m1.Bar, s.DojiRatio) {
		return fail("candle", ReasonDojiCandle)
	}
	pass("candle")

	if !Pullback(ev.Trend, m1, s.PullbackATR) {
		return fail("pullback", ReasonNoPullback)
	}
	pass("pullback")

	if s.UseRSIFilter {
		if (ev.Trend == market.Buy && m1.RSI < 50) || (ev.Trend == market.Sell && m1.RSI > 50) {
			return fail("rsi", ReasonRSIFilter)
		}
		pass("rsi")
	}

	atrPoints := 0.0
	if in.Point > 0 {
		atrPoints = m1.ATR / in.Point
	}
	ev.Reason = ReasonConfirmed
	ev.Signal = &Signal{
		Symbol:        e.symbol,
		Side:          ev.Trend,
		EntryPrice:    in.Tick.PriceFor(ev.Trend),
		Reason:        ReasonConfirmed,
		ATRPoints:     atrPoints,
		SpreadPoints:  spread,
		GeneratedAt:   e.now(),
		SourceBarTime: in.M1.BarTime,
	}
	return ev
}

// Trend classifies M5 values: Buy when fast > medium and close > slow,
// Sell when fully mirrored, None otherwise.
func Trend(v indicators.Values) market.Side {
	switch {
	case v.EMAFast > v.EMAMedium && v.Close > v.EMASlow:
		return market.Buy
	case v.EMAFast < v.EMAMedium && v.Close < v.EMASlow:
		return market.Sell
	}
	return market.None
}

// IsDoji reports body/range below ratio. A bar without range is a doji.
func IsDoji(b market.Bar, ratio float64) bool {
	r := b.Range()
	if r <= 0 {
		return true
	}
	return b.Body()/r < ratio
}

// Pullback reports whether the M1 close sits just beyond the fast EMA in
// the direction of trend, within k*ATR of it.
func Pullback(trend market.Side, m1 indicators.Values, k float64) bool {
	dist := math.Abs(m1.Close - m1.EMAFast)
	if dist >= k*m1.ATR {
		return false
	}
	switch trend {
	case market.Buy:
		return m1.Close > m1.EMAFast
	case market.Sell:
		return m1.Close < m1.EMAFast
	}
	return false
}
