package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/scalper/market"
)

func TestRetcode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code      Retcode
		name      string
		done      bool
		transient bool
	}{
		{RetcodeDone, "DONE", true, false},
		{RetcodeRequote, "REQUOTE", false, true},
		{RetcodePriceOff, "PRICE_OFF", false, true},
		{RetcodeNoMoney, "NO_MONEY", false, false},
		{RetcodeInvalidStops, "INVALID_STOPS", false, false},
		{Retcode(1), "RETCODE_1", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.code.String())
			assert.Equal(t, tt.done, tt.code.Done())
			assert.Equal(t, tt.transient, tt.code.Transient())
		})
	}
}

func TestOrderRequestString(t *testing.T) {
	t.Parallel()
	r := OrderRequest{Symbol: "XAUUSD", Side: market.Buy, Volume: 0.1, Price: 2000.5, SL: 1998.5, TP: 2004.5, Deviation: 20, Tag: "x"}
	assert.Equal(t, "BUY XAUUSD 0.10 @ 2000.5 sl=1998.5 tp=2004.5 dev=20 tag=x", r.String())
}
