package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/scalper/broker"
	"github.com/rustyeddy/scalper/broker/sim"
	"github.com/rustyeddy/scalper/config"
	"github.com/rustyeddy/scalper/execution"
	"github.com/rustyeddy/scalper/indicators"
	"github.com/rustyeddy/scalper/market"
	"github.com/rustyeddy/scalper/risk"
	"github.com/rustyeddy/scalper/signal"
)

const symbol = "XAUUSD"

var start = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

// trendBars is a steady M1 uptrend whose close sits just above the fast
// EMA: each bar gains 0.05 with a 0.5 body and a 0.6 range.
func trendBars(n int) []market.Bar {
	bars := make([]market.Bar, n)
	for i := range bars {
		bars[i] = trendBar(i)
	}
	return bars
}

func trendBar(i int) market.Bar {
	c := 2000 + 0.05*float64(i)
	return market.Bar{
		Open:   c - 0.5,
		High:   c + 0.05,
		Low:    c - 0.55,
		Close:  c,
		Volume: 10,
		Time:   start.Add(time.Duration(i) * time.Minute),
	}
}

func tickAfter(b market.Bar, spread float64) market.Tick {
	return market.Tick{Symbol: symbol, Bid: b.Close, Ask: b.Close + spread, Time: b.Time.Add(time.Minute)}
}

type recorder struct {
	mu        sync.Mutex
	decisions []signal.Evaluation
	signals   []signal.Signal
	blocks    []risk.Decision
	dropped   []error
	shadow    []execution.Plan
	results   []execution.Execution
	updates   int
}

func (r *recorder) OnIndicatorUpdate(indicators.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
}

func (r *recorder) OnDecision(e signal.Evaluation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, e)
}

func (r *recorder) OnSignal(s signal.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, s)
}

func (r *recorder) OnRiskBlock(_ signal.Signal, d risk.Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks = append(r.blocks, d)
}

func (r *recorder) OnSignalDropped(_ signal.Signal, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped = append(r.dropped, err)
}

func (r *recorder) OnShadowOrder(p execution.Plan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shadow = append(r.shadow, p)
}

func (r *recorder) OnExecutionResult(ex execution.Execution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, ex)
}

type fixture struct {
	eng *Engine
	gw  *sim.Gateway
	rec *recorder
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Journal = config.JournalConfig{Type: "none"}
	if mutate != nil {
		mutate(cfg)
	}

	gw := sim.NewGateway(broker.Account{ID: "T-1", Currency: "USD", Balance: 10000, Equity: 10000})
	rec := &recorder{}
	now := func() time.Time { return start.Add(5 * time.Hour) }
	noSleep := func(context.Context, time.Duration) error { return nil }

	eng, err := New(cfg, gw, WithClock(now), WithListener(rec), WithSleep(noSleep))
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return &fixture{eng: eng, gw: gw, rec: rec}
}

func (f *fixture) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.eng.Flush(ctx))
}

func (f *fixture) warm(t *testing.T, n int) []market.Bar {
	t.Helper()
	bars := trendBars(n)
	f.gw.SetTick(tickAfter(bars[n-1], 0.10))
	require.NoError(t, f.eng.OnNewBars(symbol, market.M1, bars))
	f.flush(t)
	return bars
}

func TestShadowModeReportsPlan(t *testing.T) {
	f := newFixture(t, nil)
	bars := f.warm(t, 300)

	require.Len(t, f.rec.decisions, 1)
	ev := f.rec.decisions[0]
	assert.Equal(t, signal.ReasonConfirmed, ev.Reason, "checks: %+v", ev.Checks)
	assert.Equal(t, market.Buy, ev.Trend)
	assert.Equal(t, bars[299].Time, ev.BarTime)

	require.Len(t, f.rec.signals, 1)
	require.Len(t, f.rec.shadow, 1)
	plan := f.rec.shadow[0]
	assert.InDelta(t, 2015.05, plan.Signal.EntryPrice, 1e-9)
	assert.InDelta(t, 150.0, plan.Stops.SLPoints, 1e-9, "min SL applies over 2x ATR")
	assert.InDelta(t, 2013.55, plan.Stops.SL, 1e-9)
	assert.InDelta(t, 2018.05, plan.Stops.TP, 1e-9)
	assert.InDelta(t, 0.33, plan.Volume, 1e-9)

	assert.Empty(t, f.gw.Orders(), "shadow mode never submits")
	assert.Empty(t, f.rec.results)
	assert.Equal(t, 0, f.eng.Risk().Ledger().DailyTradeCount)

	m5, ok := f.eng.Indicators().Snapshot(symbol, market.M5)
	require.True(t, ok)
	assert.True(t, m5.Ready(), "M5 is derived from M1 when not fed")
}

func TestLiveModeExecutes(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Engine.ShadowMode = false })
	f.warm(t, 300)

	require.Len(t, f.rec.results, 1)
	ex := f.rec.results[0]
	assert.True(t, ex.Accepted())
	assert.Equal(t, 1, ex.Attempts)
	assert.Equal(t, execution.StateDone, ex.Final())

	orders := f.gw.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, market.Buy, orders[0].Side)
	assert.InDelta(t, 0.33, orders[0].Volume, 1e-9)
	assert.Equal(t, 15, orders[0].Deviation, "10% of 150 points")
	assert.NotEmpty(t, orders[0].Tag)

	assert.Equal(t, 1, f.eng.Risk().Ledger().DailyTradeCount)
	assert.Empty(t, f.rec.shadow)
}

func TestRequoteRetriedWithOriginalStops(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Engine.ShadowMode = false })
	f.gw.QueueRetcodes(broker.RetcodeRequote)
	f.warm(t, 300)

	require.Len(t, f.rec.results, 1)
	ex := f.rec.results[0]
	assert.True(t, ex.Accepted())
	assert.Equal(t, 2, ex.Attempts)
	assert.Equal(t, 1, ex.Retries)

	orders := f.gw.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, orders[0].SL, orders[1].SL)
	assert.Equal(t, orders[0].TP, orders[1].TP)
	assert.Equal(t, 1, f.eng.Risk().Ledger().DailyTradeCount)
}

func TestRedeliveredBarsAreNotReevaluated(t *testing.T) {
	f := newFixture(t, nil)
	bars := f.warm(t, 300)

	require.NoError(t, f.eng.OnNewBars(symbol, market.M1, bars))
	require.NoError(t, f.eng.OnNewBar(symbol, market.M1, bars[299]))
	f.flush(t)
	assert.Len(t, f.rec.decisions, 1)
	assert.Len(t, f.rec.signals, 1)

	next := trendBar(300)
	f.gw.SetTick(tickAfter(next, 0.10))
	require.NoError(t, f.eng.OnNewBar(symbol, market.M1, next))
	f.flush(t)
	require.Len(t, f.rec.decisions, 2)
	assert.Equal(t, next.Time, f.rec.decisions[1].BarTime)
}

func TestRiskBlockAfterMaxTrades(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.Engine.ShadowMode = false
		c.Risk.MaxTradesPerDay = 1
	})
	f.warm(t, 300)
	require.Len(t, f.rec.results, 1)

	next := trendBar(300)
	f.gw.SetTick(tickAfter(next, 0.10))
	require.NoError(t, f.eng.OnNewBar(symbol, market.M1, next))
	f.flush(t)

	require.Len(t, f.rec.signals, 2)
	require.Len(t, f.rec.blocks, 1)
	assert.Equal(t, risk.CodeMaxTrades, f.rec.blocks[0].Reason())
	assert.Len(t, f.gw.Orders(), 1, "a blocked signal is never submitted")
}

func TestSpreadTooWideNoSignal(t *testing.T) {
	f := newFixture(t, nil)
	bars := trendBars(300)
	f.gw.SetTick(tickAfter(bars[299], 0.50))
	require.NoError(t, f.eng.OnNewBars(symbol, market.M1, bars))
	f.flush(t)

	require.Len(t, f.rec.decisions, 1)
	assert.Equal(t, signal.ReasonSpreadTooWide, f.rec.decisions[0].Reason)
	assert.Empty(t, f.rec.signals)
}

func TestNotReadyBeforeWarmup(t *testing.T) {
	f := newFixture(t, nil)
	f.warm(t, 100)

	require.Len(t, f.rec.decisions, 1)
	assert.Equal(t, signal.ReasonIndicatorsNotReady, f.rec.decisions[0].Reason)
	assert.Empty(t, f.rec.signals)
}

func TestMissingTickSkipsCycle(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.eng.OnNewBars(symbol, market.M1, trendBars(300)))
	f.flush(t)

	assert.Empty(t, f.rec.decisions)
	assert.Positive(t, f.rec.updates, "indicators still update")
}

func TestStalePushedTickFallsBackToGateway(t *testing.T) {
	f := newFixture(t, nil)
	bars := trendBars(300)

	stale := market.Tick{Symbol: symbol, Bid: 1990, Ask: 1995, Time: start.Add(-7 * time.Hour)}
	require.NoError(t, f.eng.OnNewTick(stale))
	f.gw.SetTick(tickAfter(bars[299], 0.10))
	require.NoError(t, f.eng.OnNewBars(symbol, market.M1, bars))
	f.flush(t)

	require.Len(t, f.rec.decisions, 1)
	assert.Equal(t, signal.ReasonConfirmed, f.rec.decisions[0].Reason)
	require.Len(t, f.rec.signals, 1)
	assert.InDelta(t, bars[299].Close+0.10, f.rec.signals[0].EntryPrice, 1e-9, "entry comes from the fresh quote")
}

func TestFreshPushedTickWins(t *testing.T) {
	f := newFixture(t, nil)
	bars := trendBars(300)

	require.NoError(t, f.eng.OnNewTick(tickAfter(bars[299], 0.10)))
	f.gw.SetTick(tickAfter(bars[299], 0.50))
	require.NoError(t, f.eng.OnNewBars(symbol, market.M1, bars))
	f.flush(t)

	require.Len(t, f.rec.decisions, 1)
	assert.Equal(t, signal.ReasonConfirmed, f.rec.decisions[0].Reason, "the wide gateway quote is never read")
}

func TestManualSignalInShadowMode(t *testing.T) {
	f := newFixture(t, nil)
	bars := f.warm(t, 300)
	require.Len(t, f.rec.shadow, 1)

	ctx := context.Background()
	require.NoError(t, f.eng.TestSignal(ctx, signal.Signal{Symbol: symbol, Side: market.Sell}))

	require.Len(t, f.rec.signals, 2)
	require.Len(t, f.rec.shadow, 2)
	plan := f.rec.shadow[1]
	assert.Equal(t, market.Sell, plan.Signal.Side)
	assert.Equal(t, signal.ReasonManual, plan.Signal.Reason)
	assert.InDelta(t, bars[299].Close, plan.Signal.EntryPrice, 1e-9, "sells enter on the bid")
	assert.InDelta(t, 10.0, plan.Signal.SpreadPoints, 1e-9)
	assert.Positive(t, plan.Signal.ATRPoints, "ATR comes from the M1 snapshot")
	assert.Greater(t, plan.Stops.SL, plan.Signal.EntryPrice)
	assert.Positive(t, plan.Volume)

	assert.Empty(t, f.gw.Orders())
	assert.Len(t, f.rec.decisions, 1, "a manual signal is not an evaluation")
	assert.Equal(t, 0, f.eng.Risk().Ledger().DailyTradeCount)
}

func TestManualSignalLiveGoesThroughGate(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.Engine.ShadowMode = false
		c.Risk.MaxTradesPerDay = 1
	})
	f.gw.SetTick(market.Tick{Symbol: symbol, Bid: 2000.00, Ask: 2000.10, Time: start})
	sig := signal.Signal{Symbol: symbol, Side: market.Buy, EntryPrice: 2000.10, ATRPoints: 100}

	ctx := context.Background()
	require.NoError(t, f.eng.TestSignal(ctx, sig))
	require.Len(t, f.rec.results, 1)
	assert.True(t, f.rec.results[0].Accepted())
	require.Len(t, f.gw.Orders(), 1)
	assert.Equal(t, market.Buy, f.gw.Orders()[0].Side)
	assert.Equal(t, 1, f.eng.Risk().Ledger().DailyTradeCount)

	require.NoError(t, f.eng.TestSignal(ctx, sig))
	require.Len(t, f.rec.blocks, 1)
	assert.Equal(t, risk.CodeMaxTrades, f.rec.blocks[0].Reason())
	assert.Len(t, f.gw.Orders(), 1)
}

func TestManualSignalRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	assert.Error(t, f.eng.TestSignal(ctx, signal.Signal{Side: market.Buy}))
	assert.ErrorIs(t, f.eng.TestSignal(ctx, signal.Signal{Symbol: symbol}), risk.ErrNoSide)

	require.NoError(t, f.eng.TestSignal(ctx, signal.Signal{Symbol: symbol, Side: market.Buy}))
	require.Len(t, f.rec.dropped, 1, "no quote to price the entry")
	assert.ErrorIs(t, f.rec.dropped[0], broker.ErrDataUnavailable)

	require.NoError(t, f.eng.Close())
	assert.ErrorIs(t, f.eng.TestSignal(ctx, signal.Signal{Symbol: symbol, Side: market.Buy}), ErrClosed)
}

func TestStopValidationDropsSignal(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.Stops.Mode = "Points"
		c.Stops.SLPoints = 5
		c.Stops.TPPoints = 10
	})
	f.warm(t, 300)

	require.Len(t, f.rec.signals, 1)
	require.Len(t, f.rec.dropped, 1)
	assert.ErrorIs(t, f.rec.dropped[0], risk.ErrStopValidation)
	assert.Empty(t, f.rec.shadow)
}

func TestReconfigure(t *testing.T) {
	f := newFixture(t, nil)
	f.warm(t, 300)
	require.Len(t, f.rec.shadow, 1)

	bad := *f.eng.Config()
	bad.Risk.RiskPercent = 50
	err := f.eng.Reconfigure(&bad)
	require.ErrorIs(t, err, config.ErrInvalid)
	assert.True(t, f.eng.ShadowMode(), "failed reconfigure keeps the running config")

	require.NoError(t, f.eng.SetShadowMode(false))
	assert.False(t, f.eng.ShadowMode())

	next := trendBar(300)
	f.gw.SetTick(tickAfter(next, 0.10))
	require.NoError(t, f.eng.OnNewBar(symbol, market.M1, next))
	f.flush(t)
	assert.Len(t, f.rec.results, 1)
	assert.Len(t, f.gw.Orders(), 1)
}

func TestCloseStopsAcceptingEvents(t *testing.T) {
	f := newFixture(t, nil)
	f.warm(t, 300)

	require.NoError(t, f.eng.Close())
	require.NoError(t, f.eng.Close())

	assert.ErrorIs(t, f.eng.OnNewBar(symbol, market.M1, trendBar(300)), ErrClosed)
	assert.ErrorIs(t, f.eng.OnNewTick(tickAfter(trendBar(300), 0.1)), ErrClosed)
	assert.ErrorIs(t, f.eng.Flush(context.Background()), ErrClosed)
	assert.ErrorIs(t, f.eng.SetShadowMode(false), ErrClosed)
}

type panicky struct{ NopListener }

func (panicky) OnDecision(signal.Evaluation) { panic("listener bug") }

func TestListenerPanicIsRecovered(t *testing.T) {
	cfg := config.Default()
	cfg.Journal = config.JournalConfig{Type: "none"}
	gw := sim.NewGateway(broker.Account{Currency: "USD", Balance: 10000, Equity: 10000})
	rec := &recorder{}
	eng, err := New(cfg, gw, WithListener(panicky{}, rec), WithClock(func() time.Time { return start.Add(5 * time.Hour) }))
	require.NoError(t, err)
	defer eng.Close()

	bars := trendBars(301)
	gw.SetTick(tickAfter(bars[299], 0.10))
	require.NoError(t, eng.OnNewBars(symbol, market.M1, bars[:300]))
	require.NoError(t, eng.OnNewBar(symbol, market.M1, bars[300]))
	require.NoError(t, eng.Flush(context.Background()))

	assert.Positive(t, rec.updates)
	assert.Empty(t, rec.decisions, "the panic stops the fan-out for that event")
	_, ok := eng.Indicators().Snapshot(symbol, market.M1)
	assert.True(t, ok)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	gw := sim.NewGateway(broker.Account{Balance: 1})

	cfg := config.Default()
	cfg.Symbol = ""
	_, err := New(cfg, gw)
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = New(nil, gw)
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = New(config.Default(), nil)
	assert.ErrorIs(t, err, ErrNilGateway)
}

func TestPlanLotAndStops(t *testing.T) {
	t.Parallel()
	spec, _ := market.LookupInstrument(symbol)
	sig := signal.Signal{Symbol: symbol, Side: market.Sell, EntryPrice: 2000.00, ATRPoints: 100}
	acct := broker.Account{Balance: 20000, Equity: 20000}

	plan, err := Plan(sig, acct, spec, risk.DefaultStopParams(), 1.0)
	require.NoError(t, err)
	assert.InDelta(t, 200.0, plan.Stops.SLPoints, 1e-9)
	assert.InDelta(t, 2002.00, plan.Stops.SL, 1e-9)
	assert.InDelta(t, 1996.00, plan.Stops.TP, 1e-9)
	assert.InDelta(t, 1.0, plan.Volume, 1e-9)

	sig.Side = market.None
	_, err = Plan(sig, acct, spec, risk.DefaultStopParams(), 1.0)
	assert.ErrorIs(t, err, risk.ErrNoSide)
}
