package market

import (
	"errors"
	"math"
	"sync"
	"time"
)

var ErrNoTick = errors.New("tick not found")

// Tick is a single bid/ask quote update.
type Tick struct {
	Symbol string
	Bid    float64
	Ask    float64
	Time   time.Time
}

func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

func (t Tick) Spread() float64 {
	return t.Ask - t.Bid
}

// SpreadPoints returns the spread expressed in instrument points, rounded to
// the nearest whole point.
func (t Tick) SpreadPoints(point float64) float64 {
	if point <= 0 {
		return 0
	}
	return math.Round(t.Spread() / point)
}

// PriceFor returns the price a market order on side would fill at:
// ask for buys, bid for sells.
func (t Tick) PriceFor(side Side) float64 {
	if side == Sell {
		return t.Bid
	}
	return t.Ask
}

// TickStore keeps the latest tick per symbol.
type TickStore struct {
	mu    sync.RWMutex
	ticks map[string]Tick
}

func NewTickStore() *TickStore {
	return &TickStore{ticks: make(map[string]Tick)}
}

func (ts *TickStore) Set(t Tick) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.ticks[t.Symbol] = t
}

func (ts *TickStore) Get(symbol string) (Tick, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	t, ok := ts.ticks[symbol]
	if !ok {
		return Tick{}, ErrNoTick
	}
	return t, nil
}
