package indicators

import (
	"sync"
	"sync/atomic"

	"github.com/rustyeddy/scalper/market"
)

// DefaultWindow is the number of most recent bars each snapshot is
// recomputed from.
const DefaultWindow = 200

type seriesKey struct {
	symbol string
	tf     market.Timeframe
}

// Engine holds the latest snapshot per (symbol, timeframe). Snapshots are
// swapped in whole, so readers never observe a partial update.
type Engine struct {
	mu     sync.RWMutex
	params Params
	window int
	snaps  map[seriesKey]*atomic.Pointer[Snapshot]
	floors map[string]float64
}

func NewEngine(p Params, window int) *Engine {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Engine{
		params: p,
		window: window,
		snaps:  make(map[seriesKey]*atomic.Pointer[Snapshot]),
		floors: make(map[string]float64),
	}
}

// SetParams changes the periods used from the next Update on.
func (e *Engine) SetParams(p Params, window int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params = p
	if window > 0 {
		e.window = window
	}
}

// SetFloor overrides the ATR floor for one symbol, normally its tick size.
func (e *Engine) SetFloor(symbol string, floor float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if floor > 0 {
		e.floors[symbol] = floor
	} else {
		delete(e.floors, symbol)
	}
}

func (e *Engine) Params() Params {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.params
}

// Update recomputes the snapshot for (symbol, tf) from the newest window of
// bars and publishes it.
func (e *Engine) Update(symbol string, tf market.Timeframe, bars []market.Bar) Snapshot {
	e.mu.RLock()
	p, window := e.params, e.window
	if f, ok := e.floors[symbol]; ok {
		p.ATRFloor = f
	}
	e.mu.RUnlock()

	if over := len(bars) - window; over > 0 {
		bars = bars[over:]
	}
	snap := Compute(symbol, tf, bars, p)
	e.slot(symbol, tf).Store(&snap)
	return snap
}

// Snapshot returns the latest published snapshot for (symbol, tf).
func (e *Engine) Snapshot(symbol string, tf market.Timeframe) (Snapshot, bool) {
	e.mu.RLock()
	ptr, ok := e.snaps[seriesKey{symbol, tf}]
	e.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	s := ptr.Load()
	if s == nil {
		return Snapshot{}, false
	}
	return *s, true
}

func (e *Engine) slot(symbol string, tf market.Timeframe) *atomic.Pointer[Snapshot] {
	k := seriesKey{symbol, tf}
	e.mu.RLock()
	ptr, ok := e.snaps[k]
	e.mu.RUnlock()
	if ok {
		return ptr
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if ptr, ok = e.snaps[k]; !ok {
		ptr = new(atomic.Pointer[Snapshot])
		e.snaps[k] = ptr
	}
	return ptr
}
