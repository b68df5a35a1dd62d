package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var ErrLotTooSmall = errors.New("lot below volume minimum")

// Deviation bounds in points.
const (
	MinDeviation = 10
	MaxDeviation = 50
)

// CalcLotSize sizes a position so that hitting the stop loses riskPercent of
// balance. The lot is rounded to volumeStep and clamped to
// [volumeMin, volumeMax]. A non-positive stop distance yields volumeMin.
func CalcLotSize(riskPercent, slPoints, balance, tickValue, volumeMin, volumeStep, volumeMax float64) float64 {
	if slPoints <= 0 || tickValue <= 0 {
		return volumeMin
	}
	lot := (balance * riskPercent / 100) / (slPoints * tickValue)
	if math.IsNaN(lot) || math.IsInf(lot, 0) {
		return volumeMin
	}
	lot = RoundToStep(lot, volumeStep)
	return clamp(lot, volumeMin, volumeMax)
}

// CheckLot rejects a lot that can't be sent, e.g. when the instrument
// reports no minimum volume.
func CheckLot(lot, volumeMin float64) error {
	if lot <= 0 || lot < volumeMin {
		return fmt.Errorf("%w: %g < %g", ErrLotTooSmall, lot, volumeMin)
	}
	return nil
}

// RoundToStep rounds v to the nearest multiple of step.
func RoundToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	s := decimal.NewFromFloat(step)
	return decimal.NewFromFloat(v).Div(s).Round(0).Mul(s).InexactFloat64()
}

// Deviation is the allowed slippage in points. The dynamic value is about
// 10% of the stop distance; either way the result stays within
// [MinDeviation, MaxDeviation].
func Deviation(slPoints float64, configured int, dynamic bool) int {
	d := configured
	if dynamic {
		d = int(math.Round(slPoints * 0.1))
	}
	if d < MinDeviation {
		return MinDeviation
	}
	if d > MaxDeviation {
		return MaxDeviation
	}
	return d
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}
