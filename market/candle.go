package market

import "time"

// Bar represents one closed OHLCV candle for a fixed timeframe. Time is the
// candle open time. Bars are immutable once closed.
type Bar struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Time   time.Time
}

// Range is High-Low.
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// Body is the absolute distance between open and close.
func (b Bar) Body() float64 {
	if b.Close >= b.Open {
		return b.Close - b.Open
	}
	return b.Open - b.Close
}

// Closes extracts the close series from bars, oldest first.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
