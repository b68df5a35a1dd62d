package risk

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/scalper/market"
)

var (
	ErrUnknownMode    = errors.New("unknown tp/sl mode")
	ErrStopValidation = errors.New("stops inside broker minimum distance")
	ErrNoSide         = errors.New("signal has no side")
)

// Mode selects how SL and TP distances are derived.
type Mode string

const (
	ModeATR            Mode = "ATR"
	ModePoints         Mode = "Points"
	ModePips           Mode = "Pips"
	ModeBalancePercent Mode = "BalancePercent"
)

// ParseMode accepts the mode names case-insensitively, plus "Balance%".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "atr":
		return ModeATR, nil
	case "points":
		return ModePoints, nil
	case "pips":
		return ModePips, nil
	case "balancepercent", "balance%", "balance_percent":
		return ModeBalancePercent, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// StopParams hold the per-mode distance settings.
type StopParams struct {
	Mode          Mode
	MinSLPoints   float64
	ATRMultiplier float64
	RiskMultiple  float64
	SLPoints      float64
	TPPoints      float64
	SLPips        float64
	TPPips        float64
	SLPercent     float64
	TPPercent     float64
}

func DefaultStopParams() StopParams {
	return StopParams{
		Mode:          ModeATR,
		MinSLPoints:   150,
		ATRMultiplier: 2.0,
		RiskMultiple:  2.0,
		SLPoints:      100,
		TPPoints:      200,
		SLPips:        10,
		TPPips:        20,
		SLPercent:     0.5,
		TPPercent:     1.0,
	}
}

// Stops are absolute SL/TP prices plus the distances they came from.
type Stops struct {
	SL         float64
	TP         float64
	SLDistance float64
	TPDistance float64
	SLPoints   float64
	TPPoints   float64
}

// CalcStops prices SL and TP for an entry. Prices are rounded to the
// instrument tick.
//
// In BalancePercent mode the money amount is turned into points using the
// minimum volume as reference lot, so the distance does not depend on the
// lot size computed afterwards.
func CalcStops(side market.Side, entry, atrPoints float64, p StopParams, spec market.InstrumentSpec, balance float64) (Stops, error) {
	if side == market.None {
		return Stops{}, ErrNoSide
	}
	point := spec.Point
	if point <= 0 {
		return Stops{}, fmt.Errorf("instrument %s: point must be positive", spec.Symbol)
	}

	var slPts, tpPts float64
	switch p.Mode {
	case ModeATR:
		slPts = math.Max(p.MinSLPoints, atrPoints*p.ATRMultiplier)
		tpPts = slPts * p.RiskMultiple
	case ModePoints:
		slPts, tpPts = p.SLPoints, p.TPPoints
	case ModePips:
		f := spec.PipToPoint()
		slPts, tpPts = p.SLPips*f, p.TPPips*f
	case ModeBalancePercent:
		perPoint := spec.TickValue * spec.VolumeMin
		if perPoint <= 0 {
			return Stops{}, fmt.Errorf("instrument %s: tick_value and volume_min required for %s", spec.Symbol, p.Mode)
		}
		slPts = balance * p.SLPercent / 100 / perPoint
		tpPts = balance * p.TPPercent / 100 / perPoint
	default:
		return Stops{}, fmt.Errorf("%w: %q", ErrUnknownMode, p.Mode)
	}

	st := Stops{
		SLDistance: slPts * point,
		TPDistance: tpPts * point,
		SLPoints:   slPts,
		TPPoints:   tpPts,
	}
	tick := spec.Tick()
	if side == market.Buy {
		st.SL = RoundToTick(entry-st.SLDistance, tick)
		st.TP = RoundToTick(entry+st.TPDistance, tick)
	} else {
		st.SL = RoundToTick(entry+st.SLDistance, tick)
		st.TP = RoundToTick(entry-st.TPDistance, tick)
	}
	return st, nil
}

// RoundToTick rounds price to the nearest multiple of tick.
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	t := decimal.NewFromFloat(tick)
	return decimal.NewFromFloat(price).Div(t).Round(0).Mul(t).InexactFloat64()
}

// ValidateStops rejects SL or TP closer to entry than stopsLevel points.
func ValidateStops(entry, sl, tp, point float64, stopsLevel int) error {
	if point <= 0 {
		return fmt.Errorf("%w: point must be positive", ErrStopValidation)
	}
	minPts := float64(stopsLevel)
	slPts := math.Round(math.Abs(entry-sl) / point)
	tpPts := math.Round(math.Abs(tp-entry) / point)
	if slPts < minPts {
		return fmt.Errorf("%w: sl %.0f points < %d", ErrStopValidation, slPts, stopsLevel)
	}
	if tpPts < minPts {
		return fmt.Errorf("%w: tp %.0f points < %d", ErrStopValidation, tpPts, stopsLevel)
	}
	return nil
}
