// market/instruments.go
package market

import "fmt"

// InstrumentSpec carries the broker metadata needed for pricing, sizing and
// stop validation.
type InstrumentSpec struct {
	Symbol     string  `json:"symbol" yaml:"symbol"`
	Point      float64 `json:"point" yaml:"point"`
	Digits     int     `json:"digits" yaml:"digits"`
	TickValue  float64 `json:"tick_value" yaml:"tick_value"`
	TickSize   float64 `json:"tick_size" yaml:"tick_size"`
	VolumeMin  float64 `json:"volume_min" yaml:"volume_min"`
	VolumeStep float64 `json:"volume_step" yaml:"volume_step"`
	VolumeMax  float64 `json:"volume_max" yaml:"volume_max"`
	StopsLevel int     `json:"stops_level" yaml:"stops_level"`
}

// PipToPoint is 10 for fractional-pip quotes (3 or 5 digits), otherwise 1.
func (s InstrumentSpec) PipToPoint() float64 {
	if s.Digits == 3 || s.Digits == 5 {
		return 10
	}
	return 1
}

// Tick returns the smallest price increment, falling back to Point.
func (s InstrumentSpec) Tick() float64 {
	if s.TickSize > 0 {
		return s.TickSize
	}
	return s.Point
}

func (s InstrumentSpec) Validate() error {
	switch {
	case s.Point <= 0:
		return fmt.Errorf("instrument %s: point must be positive", s.Symbol)
	case s.TickValue <= 0:
		return fmt.Errorf("instrument %s: tick_value must be positive", s.Symbol)
	case s.VolumeMin <= 0 || s.VolumeStep <= 0:
		return fmt.Errorf("instrument %s: volume_min and volume_step must be positive", s.Symbol)
	case s.VolumeMax < s.VolumeMin:
		return fmt.Errorf("instrument %s: volume_max below volume_min", s.Symbol)
	case s.StopsLevel < 0:
		return fmt.Errorf("instrument %s: stops_level must not be negative", s.Symbol)
	}
	return nil
}

// Instruments holds fallback specs for the symbols the bot is usually
// pointed at. Live specs from the gateway take precedence.
var Instruments = map[string]InstrumentSpec{
	"XAUUSD": {
		Symbol:     "XAUUSD",
		Point:      0.01,
		Digits:     2,
		TickValue:  1.0,
		TickSize:   0.01,
		VolumeMin:  0.01,
		VolumeStep: 0.01,
		VolumeMax:  100,
		StopsLevel: 10,
	},
	"EURUSD": {
		Symbol:     "EURUSD",
		Point:      0.00001,
		Digits:     5,
		TickValue:  1.0,
		TickSize:   0.00001,
		VolumeMin:  0.01,
		VolumeStep: 0.01,
		VolumeMax:  100,
		StopsLevel: 10,
	},
	"USDJPY": {
		Symbol:     "USDJPY",
		Point:      0.001,
		Digits:     3,
		TickValue:  0.67,
		TickSize:   0.001,
		VolumeMin:  0.01,
		VolumeStep: 0.01,
		VolumeMax:  100,
		StopsLevel: 10,
	},
}

// LookupInstrument returns the built-in spec for symbol.
func LookupInstrument(symbol string) (InstrumentSpec, bool) {
	s, ok := Instruments[symbol]
	return s, ok
}
