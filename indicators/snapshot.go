package indicators

import (
	"fmt"
	"time"

	"github.com/rustyeddy/scalper/market"
)

// Params selects the indicator periods used to build a Snapshot.
type Params struct {
	EMAFast   int
	EMAMedium int
	EMASlow   int
	RSIPeriod int
	ATRPeriod int
	// ATRFloor is the smallest ATR reported, usually one instrument tick.
	ATRFloor float64
}

func DefaultParams() Params {
	return Params{
		EMAFast:   9,
		EMAMedium: 21,
		EMASlow:   50,
		RSIPeriod: 14,
		ATRPeriod: 14,
		ATRFloor:  DefaultATRFloor,
	}
}

func (p Params) Validate() error {
	if p.EMAFast <= 0 || p.EMAMedium <= 0 || p.EMASlow <= 0 {
		return fmt.Errorf("ema periods must be positive: %d/%d/%d", p.EMAFast, p.EMAMedium, p.EMASlow)
	}
	if !(p.EMAFast < p.EMAMedium && p.EMAMedium < p.EMASlow) {
		return fmt.Errorf("ema periods must be increasing: %d/%d/%d", p.EMAFast, p.EMAMedium, p.EMASlow)
	}
	if p.RSIPeriod <= 0 || p.ATRPeriod <= 0 {
		return fmt.Errorf("rsi and atr periods must be positive: %d/%d", p.RSIPeriod, p.ATRPeriod)
	}
	return nil
}

// Warmup is the number of bars needed before a snapshot is Ready.
func (p Params) Warmup() int {
	n := p.EMASlow
	if p.EMAMedium > n {
		n = p.EMAMedium
	}
	if p.EMAFast > n {
		n = p.EMAFast
	}
	if p.RSIPeriod+1 > n {
		n = p.RSIPeriod + 1
	}
	if p.ATRPeriod+1 > n {
		n = p.ATRPeriod + 1
	}
	return n
}

// Values are the indicator readings of one ready snapshot.
type Values struct {
	EMAFast   float64
	EMAMedium float64
	EMASlow   float64
	RSI       float64
	ATR       float64
	Close     float64
	Bar       market.Bar
}

// Snapshot is the indicator state for one (symbol, timeframe) after a bar
// closed. A snapshot is either Ready, carrying Values, or NotReady, in which
// case Get reports false and no values are exposed.
type Snapshot struct {
	Symbol    string
	Timeframe market.Timeframe
	BarTime   time.Time
	Bars      int

	ready  bool
	values Values
}

// NotReady builds a snapshot for a window that is too short.
func NotReady(symbol string, tf market.Timeframe, barTime time.Time, bars int) Snapshot {
	return Snapshot{Symbol: symbol, Timeframe: tf, BarTime: barTime, Bars: bars}
}

// NewReady builds a ready snapshot from already computed values.
func NewReady(symbol string, tf market.Timeframe, bars int, v Values) Snapshot {
	return Snapshot{
		Symbol:    symbol,
		Timeframe: tf,
		BarTime:   v.Bar.Time,
		Bars:      bars,
		ready:     true,
		values:    v,
	}
}

func (s Snapshot) Ready() bool { return s.ready }

func (s Snapshot) Get() (Values, bool) {
	if !s.ready {
		return Values{}, false
	}
	return s.values, true
}

func (s Snapshot) String() string {
	if !s.ready {
		return fmt.Sprintf("%s %s NotReady(%d bars)", s.Symbol, s.Timeframe, s.Bars)
	}
	v := s.values
	return fmt.Sprintf("%s %s ema=%.5f/%.5f/%.5f rsi=%.2f atr=%.5f close=%.5f",
		s.Symbol, s.Timeframe, v.EMAFast, v.EMAMedium, v.EMASlow, v.RSI, v.ATR, v.Close)
}

// Compute derives a snapshot from a closed-bar window, oldest first. The
// result depends only on bars and p.
func Compute(symbol string, tf market.Timeframe, bars []market.Bar, p Params) Snapshot {
	var barTime time.Time
	if n := len(bars); n > 0 {
		barTime = bars[n-1].Time
	}
	if len(bars) == 0 || len(bars) < p.Warmup() {
		return NotReady(symbol, tf, barTime, len(bars))
	}

	closes := market.Closes(bars)
	fast, ok1 := EMA(closes, p.EMAFast)
	med, ok2 := EMA(closes, p.EMAMedium)
	slow, ok3 := EMA(closes, p.EMASlow)
	if !ok1 || !ok2 || !ok3 {
		return NotReady(symbol, tf, barTime, len(bars))
	}

	last := bars[len(bars)-1]
	return NewReady(symbol, tf, len(bars), Values{
		EMAFast:   fast,
		EMAMedium: med,
		EMASlow:   slow,
		RSI:       RSI(closes, p.RSIPeriod),
		ATR:       ATR(bars, p.ATRPeriod, p.ATRFloor),
		Close:     last.Close,
		Bar:       last,
	})
}
