// Package indicators computes EMA, RSI and ATR from closed bars, both as
// streaming state and as pure functions over a bar window.
package indicators

import "github.com/rustyeddy/scalper/market"

// Indicator computes a single streaming value from closed bars.
// It is deterministic: feeding the same bars always yields the same value.
type Indicator interface {
	// Name returns a stable identifier like "EMA(20)" or "RSI(14)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	Reset()

	// Update consumes the next closed bar.
	Update(b market.Bar)

	// Ready reports whether Value() is meaningful.
	Ready() bool

	// Value returns the current value. Callers check Ready() first; each
	// indicator documents what it returns before warm-up.
	Value() float64
}

// Run feeds bars into ind in order and returns its final value.
func Run(ind Indicator, bars []market.Bar) float64 {
	ind.Reset()
	for _, b := range bars {
		ind.Update(b)
	}
	return ind.Value()
}
