// Package sim is an in-memory broker gateway for tests, replay and demos.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rustyeddy/scalper/broker"
	"github.com/rustyeddy/scalper/market"
)

var (
	ErrUnknownInstrument = errors.New("unknown instrument")
	ErrNoPrice           = errors.New("no price for symbol")
)

type seriesKey struct {
	symbol string
	tf     market.Timeframe
}

// response is one scripted answer to SubmitOrder.
type response struct {
	code broker.Retcode
	err  error
}

// Gateway keeps closed bars, the latest tick and an account in memory.
// Order answers default to DONE and can be scripted with QueueRetcodes and
// QueueError.
type Gateway struct {
	mu       sync.Mutex
	acct     broker.Account
	specs    map[string]market.InstrumentSpec
	bars     map[seriesKey][]market.Bar
	ticks    *market.TickStore
	tickQ    map[string][]market.Tick
	script   []response
	orders   []broker.OrderRequest
	results  []broker.OrderResult
	nextID   int64
	barFetch int
}

func NewGateway(acct broker.Account) *Gateway {
	return &Gateway{
		acct:   acct,
		specs:  make(map[string]market.InstrumentSpec),
		bars:   make(map[seriesKey][]market.Bar),
		ticks:  market.NewTickStore(),
		tickQ:  make(map[string][]market.Tick),
		nextID: 1000,
	}
}

func (g *Gateway) SetAccount(acct broker.Account) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.acct = acct
}

func (g *Gateway) SetInstrument(spec market.InstrumentSpec) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.specs[spec.Symbol] = spec
}

// SetBars replaces the closed bars of one series.
func (g *Gateway) SetBars(symbol string, tf market.Timeframe, bars []market.Bar) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bars[seriesKey{symbol, tf}] = append([]market.Bar(nil), bars...)
}

// AppendBar closes one more bar on a series.
func (g *Gateway) AppendBar(symbol string, tf market.Timeframe, b market.Bar) {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := seriesKey{symbol, tf}
	g.bars[k] = append(g.bars[k], b)
}

func (g *Gateway) SetTick(t market.Tick) {
	g.ticks.Set(t)
}

// QueueTicks makes FetchTick return ticks in order before falling back to
// the last tick set with SetTick.
func (g *Gateway) QueueTicks(ticks ...market.Tick) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range ticks {
		g.tickQ[t.Symbol] = append(g.tickQ[t.Symbol], t)
	}
}

// QueueRetcodes scripts the answers of the next submissions.
func (g *Gateway) QueueRetcodes(codes ...broker.Retcode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range codes {
		g.script = append(g.script, response{code: c})
	}
}

// QueueError makes the next submission fail at the transport level.
func (g *Gateway) QueueError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.script = append(g.script, response{err: err})
}

func (g *Gateway) FetchBars(ctx context.Context, symbol string, tf market.Timeframe, count int) ([]market.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.barFetch++

	bars := g.bars[seriesKey{symbol, tf}]
	if len(bars) == 0 {
		return nil, fmt.Errorf("fetch %s %s bars: %w", symbol, tf, broker.ErrDataUnavailable)
	}
	if count > 0 && len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	return append([]market.Bar(nil), bars...), nil
}

func (g *Gateway) FetchTick(ctx context.Context, symbol string) (market.Tick, error) {
	if err := ctx.Err(); err != nil {
		return market.Tick{}, err
	}
	g.mu.Lock()
	if q := g.tickQ[symbol]; len(q) > 0 {
		t := q[0]
		g.tickQ[symbol] = q[1:]
		g.mu.Unlock()
		g.ticks.Set(t)
		return t, nil
	}
	g.mu.Unlock()

	t, err := g.ticks.Get(symbol)
	if err != nil {
		return market.Tick{}, fmt.Errorf("fetch %s tick: %w", symbol, broker.ErrDataUnavailable)
	}
	return t, nil
}

func (g *Gateway) AccountSnapshot(ctx context.Context) (broker.Account, error) {
	if err := ctx.Err(); err != nil {
		return broker.Account{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.acct, nil
}

// InstrumentSpec returns a registered spec, or the built-in one.
func (g *Gateway) InstrumentSpec(ctx context.Context, symbol string) (market.InstrumentSpec, error) {
	if err := ctx.Err(); err != nil {
		return market.InstrumentSpec{}, err
	}
	g.mu.Lock()
	spec, ok := g.specs[symbol]
	g.mu.Unlock()
	if ok {
		return spec, nil
	}
	if spec, ok = market.LookupInstrument(symbol); ok {
		return spec, nil
	}
	return market.InstrumentSpec{}, fmt.Errorf("%s: %w", symbol, ErrUnknownInstrument)
}

func (g *Gateway) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return broker.OrderResult{}, err
	}
	if _, err := g.ticks.Get(req.Symbol); err != nil {
		return broker.OrderResult{}, fmt.Errorf("submit %s: %w", req.Symbol, ErrNoPrice)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders = append(g.orders, req)

	resp := response{code: broker.RetcodeDone}
	if len(g.script) > 0 {
		resp = g.script[0]
		g.script = g.script[1:]
	}
	if resp.err != nil {
		return broker.OrderResult{}, resp.err
	}

	res := broker.OrderResult{Retcode: resp.code, Comment: resp.code.String()}
	if resp.code.Done() {
		g.nextID++
		res.Accepted = true
		res.Ticket = g.nextID
	}
	g.results = append(g.results, res)
	return res, nil
}

// Orders returns every submitted request, including rejected ones.
func (g *Gateway) Orders() []broker.OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]broker.OrderRequest(nil), g.orders...)
}

// Filled returns the results of accepted submissions.
func (g *Gateway) Filled() []broker.OrderResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []broker.OrderResult
	for _, r := range g.results {
		if r.Accepted {
			out = append(out, r)
		}
	}
	return out
}

// BarFetches counts FetchBars calls, including the ones that found no
// bars.
func (g *Gateway) BarFetches() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.barFetch
}

var _ broker.Gateway = (*Gateway)(nil)
