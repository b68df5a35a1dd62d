package indicators

import (
	"fmt"

	"github.com/rustyeddy/scalper/market"
)

// NeutralRSI is reported before the oscillator has warmed up.
const NeutralRSI = 50.0

// WilderRSI is a streaming RSI with Wilder smoothing (alpha = 1/period).
type WilderRSI struct {
	period  int
	count   int // deltas seen
	prev    float64
	hasPrev bool
	avgGain float64
	avgLoss float64
}

func NewWilderRSI(period int) *WilderRSI {
	return &WilderRSI{period: period}
}

func (r *WilderRSI) Name() string { return fmt.Sprintf("RSI(%d)", r.period) }
func (r *WilderRSI) Warmup() int  { return r.period + 1 }

func (r *WilderRSI) Reset() {
	r.count = 0
	r.prev = 0
	r.hasPrev = false
	r.avgGain = 0
	r.avgLoss = 0
}

func (r *WilderRSI) Update(b market.Bar) {
	r.Add(b.Close)
}

func (r *WilderRSI) Add(price float64) {
	if !r.hasPrev {
		r.prev = price
		r.hasPrev = true
		return
	}
	delta := price - r.prev
	r.prev = price

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	p := float64(r.period)
	if r.count < r.period {
		r.avgGain += gain
		r.avgLoss += loss
		r.count++
		if r.count == r.period {
			r.avgGain /= p
			r.avgLoss /= p
		}
		return
	}
	alpha := 1 / p
	r.avgGain = alpha*gain + (1-alpha)*r.avgGain
	r.avgLoss = alpha*loss + (1-alpha)*r.avgLoss
	r.count++
}

func (r *WilderRSI) Ready() bool { return r.period > 0 && r.count >= r.period }

// Value is NeutralRSI before warm-up and 100 when there were no losses.
func (r *WilderRSI) Value() float64 {
	if !r.Ready() {
		return NeutralRSI
	}
	if r.avgLoss == 0 {
		return 100
	}
	rs := r.avgGain / r.avgLoss
	return 100 - 100/(1+rs)
}

// RSI returns the Wilder RSI of closes, or NeutralRSI when there are not
// more than period closes.
func RSI(closes []float64, period int) float64 {
	if period <= 0 {
		return NeutralRSI
	}
	r := NewWilderRSI(period)
	for _, c := range closes {
		r.Add(c)
	}
	return r.Value()
}
