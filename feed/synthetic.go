package feed

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/rustyeddy/scalper/market"
)

// SyntheticParams shape a generated M1 series.
type SyntheticParams struct {
	Start time.Time
	Bars  int
	Price float64
	// Drift is the mean close-to-close move per bar; the sign flips every
	// Leg bars so the series alternates between up and down trends.
	Drift float64
	Leg   int
	// Noise is the standard deviation of the random part of each move.
	Noise float64
	// Range is the typical high-low span of a bar.
	Range float64
	Seed  uint64
	Tick  float64
}

func DefaultSyntheticParams() SyntheticParams {
	return SyntheticParams{
		Start: time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC),
		Bars:  600,
		Price: 2000,
		Drift: 0.06,
		Leg:   180,
		Noise: 0.05,
		Range: 0.6,
		Seed:  42,
		Tick:  0.01,
	}
}

// Synthetic generates a deterministic M1 series for p.Seed. Bars are one
// minute apart, rounded to p.Tick and always internally consistent.
func Synthetic(p SyntheticParams) []market.Bar {
	if p.Bars <= 0 {
		return nil
	}
	if p.Leg <= 0 {
		p.Leg = p.Bars
	}
	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))

	bars := make([]market.Bar, p.Bars)
	prev := p.Price
	for i := range bars {
		drift := p.Drift
		if (i/p.Leg)%2 == 1 {
			drift = -drift
		}
		move := drift + rng.NormFloat64()*p.Noise
		cl := prev + move

		// The open sits against the move so bodies stay well above doji
		// size while closes trend slowly.
		open := cl - math.Copysign(p.Range*0.7, move)
		hi := math.Max(open, cl) + p.Range*0.1*rng.Float64()
		lo := math.Min(open, cl) - p.Range*0.1*rng.Float64()

		bars[i] = market.Bar{
			Open:   round(open, p.Tick),
			High:   round(hi, p.Tick),
			Low:    round(lo, p.Tick),
			Close:  round(cl, p.Tick),
			Volume: float64(50 + rng.IntN(100)),
			Time:   p.Start.Add(time.Duration(i) * time.Minute),
		}
		prev = cl
	}
	return bars
}

func round(v, tick float64) float64 {
	if tick <= 0 {
		return v
	}
	return math.Round(v/tick) * tick
}
