package indicators

import (
	"fmt"

	"github.com/rustyeddy/scalper/market"
)

// ExponentialMA is a streaming EMA over closes. The first value is the
// simple average of the first period closes; after that each close moves
// the average by alpha = 2/(period+1).
type ExponentialMA struct {
	period int
	alpha  float64
	count  int
	first  float64
	sum    float64
	ema    float64
}

func NewExponentialMA(period int) *ExponentialMA {
	return &ExponentialMA{
		period: period,
		alpha:  2.0 / float64(period+1),
	}
}

func (e *ExponentialMA) Name() string { return fmt.Sprintf("EMA(%d)", e.period) }
func (e *ExponentialMA) Warmup() int  { return e.period }

func (e *ExponentialMA) Reset() {
	e.count = 0
	e.first = 0
	e.sum = 0
	e.ema = 0
}

func (e *ExponentialMA) Update(b market.Bar) {
	e.Add(b.Close)
}

// Add consumes one price.
func (e *ExponentialMA) Add(price float64) {
	if e.period <= 0 {
		return
	}
	if e.count < e.period {
		// Seed as an offset from the first price so a flat series
		// averages to exactly that price.
		if e.count == 0 {
			e.first = price
		}
		e.sum += price - e.first
		e.count++
		if e.count == e.period {
			e.ema = e.first + e.sum/float64(e.period)
		}
		return
	}
	e.ema += e.alpha * (price - e.ema)
	e.count++
}

func (e *ExponentialMA) Ready() bool { return e.period > 0 && e.count >= e.period }

// Value is 0 until the average is seeded.
func (e *ExponentialMA) Value() float64 {
	if !e.Ready() {
		return 0
	}
	return e.ema
}

// EMA returns the exponential moving average of closes. ok is false when
// there are fewer than period closes.
func EMA(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period {
		return 0, false
	}
	e := NewExponentialMA(period)
	for _, c := range closes {
		e.Add(c)
	}
	return e.Value(), true
}
