package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/scalper/market"
)

// DefaultATRFloor is used when the instrument tick size is unknown.
const DefaultATRFloor = 0.001

// AverageTrueRange is a streaming ATR. The first bar contributes
// high-low; later bars use the true range against the previous close.
// The average is seeded with the mean of the first period ranges and then
// Wilder-smoothed.
type AverageTrueRange struct {
	period    int
	floor     float64
	count     int
	warmupSum float64
	atr       float64
	prevClose float64
	hasPrev   bool
}

// NewAverageTrueRange creates an ATR that never reports less than floor.
// A non-positive floor falls back to DefaultATRFloor.
func NewAverageTrueRange(period int, floor float64) *AverageTrueRange {
	if floor <= 0 {
		floor = DefaultATRFloor
	}
	return &AverageTrueRange{period: period, floor: floor}
}

func (a *AverageTrueRange) Name() string { return fmt.Sprintf("ATR(%d)", a.period) }
func (a *AverageTrueRange) Warmup() int  { return a.period }

func (a *AverageTrueRange) Reset() {
	a.count = 0
	a.warmupSum = 0
	a.atr = 0
	a.prevClose = 0
	a.hasPrev = false
}

func (a *AverageTrueRange) Update(b market.Bar) {
	tr := b.High - b.Low
	if a.hasPrev {
		tr = trueRange(b, a.prevClose)
	}
	a.prevClose = b.Close
	a.hasPrev = true

	if a.count < a.period {
		a.warmupSum += tr
		a.count++
		if a.count == a.period {
			a.atr = a.warmupSum / float64(a.period)
		}
		return
	}
	alpha := 1 / float64(a.period)
	a.atr = alpha*tr + (1-alpha)*a.atr
	a.count++
}

func (a *AverageTrueRange) Ready() bool { return a.period > 0 && a.count >= a.period }

// Value is never below the floor, including before warm-up.
func (a *AverageTrueRange) Value() float64 {
	if !a.Ready() || math.IsNaN(a.atr) || a.atr <= a.floor {
		return a.floor
	}
	return a.atr
}

// ATR returns the Wilder ATR of bars, floored at floor.
func ATR(bars []market.Bar, period int, floor float64) float64 {
	a := NewAverageTrueRange(period, floor)
	if period <= 0 {
		return a.floor
	}
	for _, b := range bars {
		a.Update(b)
	}
	return a.Value()
}

func trueRange(b market.Bar, prevClose float64) float64 {
	hl := b.High - b.Low
	hc := math.Abs(b.High - prevClose)
	lc := math.Abs(b.Low - prevClose)
	return math.Max(hl, math.Max(hc, lc))
}
