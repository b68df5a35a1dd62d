package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/scalper/market"
)

var (
	gold   = market.Instruments["XAUUSD"]
	eurusd = market.Instruments["EURUSD"]
)

func TestScenarioDPoints(t *testing.T) {
	t.Parallel()
	p := DefaultStopParams()
	p.Mode = ModePoints

	st, err := CalcStops(market.Buy, 2000.00, 0, p, gold, 10000)
	require.NoError(t, err)
	assert.InDelta(t, 1999.00, st.SL, 1e-9)
	assert.InDelta(t, 2002.00, st.TP, 1e-9)
	assert.Equal(t, 100.0, st.SLPoints)
}

func TestCalcStopsModes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mode   Mode
		side   market.Side
		spec   market.InstrumentSpec
		entry  float64
		atrPts float64
		sl, tp float64
	}{
		{"atr uses min sl", ModeATR, market.Buy, gold, 2000, 50, 1998.50, 2003.00},
		{"atr scales", ModeATR, market.Buy, gold, 2000, 100, 1998.00, 2004.00},
		{"atr sell", ModeATR, market.Sell, gold, 2000, 100, 2002.00, 1996.00},
		{"points sell", ModePoints, market.Sell, gold, 2000, 0, 2001.00, 1998.00},
		{"pips 5 digit", ModePips, market.Buy, eurusd, 1.10000, 0, 1.09900, 1.10200},
		{"pips 2 digit", ModePips, market.Buy, gold, 2000, 0, 1999.90, 2000.20},
		{"balance percent", ModeBalancePercent, market.Buy, gold, 2000, 0, 1950.00, 2100.00},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultStopParams()
			p.Mode = tt.mode
			st, err := CalcStops(tt.side, tt.entry, tt.atrPts, p, tt.spec, 10000)
			require.NoError(t, err)
			assert.InDelta(t, tt.sl, st.SL, 1e-9)
			assert.InDelta(t, tt.tp, st.TP, 1e-9)
		})
	}
}

func TestCalcStopsErrors(t *testing.T) {
	t.Parallel()
	p := DefaultStopParams()

	_, err := CalcStops(market.None, 2000, 0, p, gold, 10000)
	assert.ErrorIs(t, err, ErrNoSide)

	p.Mode = "Fib"
	_, err = CalcStops(market.Buy, 2000, 0, p, gold, 10000)
	assert.ErrorIs(t, err, ErrUnknownMode)

	p.Mode = ModeBalancePercent
	bad := gold
	bad.TickValue = 0
	_, err = CalcStops(market.Buy, 2000, 0, p, bad, 10000)
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	t.Parallel()
	tests := map[string]Mode{
		"ATR":            ModeATR,
		"points":         ModePoints,
		"Pips":           ModePips,
		"Balance%":       ModeBalancePercent,
		"BalancePercent": ModeBalancePercent,
	}
	for in, want := range tests {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("martingale")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestRoundToTick(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1.10001, RoundToTick(1.100014, 0.00001))
	assert.Equal(t, 2000.13, RoundToTick(2000.1251, 0.01))
	assert.Equal(t, 5.5, RoundToTick(5.5, 0))
}

func TestValidateStops(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateStops(2000, 1999, 2002, 0.01, 10))

	err := ValidateStops(2000, 1999.95, 2002, 0.01, 10)
	assert.ErrorIs(t, err, ErrStopValidation)

	err = ValidateStops(2000, 1999, 2000.05, 0.01, 10)
	assert.ErrorIs(t, err, ErrStopValidation)

	assert.ErrorIs(t, ValidateStops(2000, 1999, 2002, 0, 10), ErrStopValidation)
}

func TestCalcLotSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		risk, sl float64
		want     float64
	}{
		{"normal", 1, 150, 0.67},
		{"zero sl", 1, 0, 0.01},
		{"negative sl", 1, -5, 0.01},
		{"tiny", 0.1, 100000, 0.01},
		{"huge", 10, 0.01, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalcLotSize(tt.risk, tt.sl, 10000, 1, 0.01, 0.01, 100)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCalcLotSizeBounds(t *testing.T) {
	t.Parallel()

	const vmin, step, vmax = 0.01, 0.01, 50.0
	for _, risk := range []float64{0.05, 0.1, 0.5, 1, 2.5, 7.3, 10} {
		for _, sl := range []float64{0.5, 3, 17, 150, 999, 25000} {
			for _, bal := range []float64{100, 3217.45, 10000, 1e6} {
				lot := CalcLotSize(risk, sl, bal, 0.67, vmin, step, vmax)
				assert.GreaterOrEqual(t, lot, vmin)
				assert.LessOrEqual(t, lot, vmax)
				steps := lot / step
				assert.InDelta(t, math.Round(steps), steps, 1e-6, "lot %g not a step multiple", lot)
			}
		}
	}
}

func TestCheckLot(t *testing.T) {
	t.Parallel()
	assert.NoError(t, CheckLot(0.1, 0.01))
	assert.ErrorIs(t, CheckLot(0, 0), ErrLotTooSmall)
	assert.ErrorIs(t, CheckLot(0.005, 0.01), ErrLotTooSmall)
}

func TestDeviation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		slPoints   float64
		configured int
		dynamic    bool
		want       int
	}{
		{"dynamic 10pct", 150, 0, true, 15},
		{"dynamic floor", 50, 0, true, MinDeviation},
		{"dynamic cap", 1000, 0, true, MaxDeviation},
		{"static", 150, 20, false, 20},
		{"static floor", 150, 5, false, MinDeviation},
		{"static cap", 150, 80, false, MaxDeviation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Deviation(tt.slPoints, tt.configured, tt.dynamic))
		})
	}
}
