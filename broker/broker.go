// Package broker defines the contract between the engine and a trading
// terminal. Implementations fetch market data, report account state and
// submit market orders.
package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/rustyeddy/scalper/market"
)

// ErrDataUnavailable is returned when bars, ticks or account data can't be
// fetched. Callers skip the cycle rather than act on stale data.
var ErrDataUnavailable = errors.New("data unavailable")

// Gateway is the broker terminal as seen by the engine.
//
// FetchBars returns closed bars only, oldest first. The bar that is still
// forming must not be included.
type Gateway interface {
	FetchBars(ctx context.Context, symbol string, tf market.Timeframe, count int) ([]market.Bar, error)
	FetchTick(ctx context.Context, symbol string) (market.Tick, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	AccountSnapshot(ctx context.Context) (Account, error)
	InstrumentSpec(ctx context.Context, symbol string) (market.InstrumentSpec, error)
}

type Account struct {
	ID       string
	Currency string
	Balance  float64
	Equity   float64
}

// OrderRequest is a market entry order. SL and TP are absolute prices.
type OrderRequest struct {
	Symbol    string
	Side      market.Side
	Volume    float64
	Price     float64
	SL        float64
	TP        float64
	Deviation int
	Tag       string
}

func (r OrderRequest) String() string {
	return fmt.Sprintf("%s %s %.2f @ %g sl=%g tp=%g dev=%d tag=%s",
		r.Side, r.Symbol, r.Volume, r.Price, r.SL, r.TP, r.Deviation, r.Tag)
}

// OrderResult is the terminal answer of the broker to one submission.
type OrderResult struct {
	Accepted bool
	Ticket   int64
	Retcode  Retcode
	Comment  string
}
