// Package engine wires the indicator, signal, risk and execution stages into
// one context object. Each symbol gets its own worker goroutine that handles
// bar events strictly in arrival order, so a symbol never has two signals in
// flight.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/scalper/broker"
	"github.com/rustyeddy/scalper/config"
	"github.com/rustyeddy/scalper/execution"
	"github.com/rustyeddy/scalper/id"
	"github.com/rustyeddy/scalper/indicators"
	"github.com/rustyeddy/scalper/market"
	"github.com/rustyeddy/scalper/risk"
	"github.com/rustyeddy/scalper/signal"
)

var (
	ErrClosed     = errors.New("engine closed")
	ErrNilGateway = errors.New("nil gateway")
)

const defaultQueueSize = 64

// m1PerM5 sizes the M1 window so that a derived M5 series can still reach
// the full bar window.
const m1PerM5 = int(market.M5 / market.M1)

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithListener adds listeners. Several calls accumulate.
func WithListener(ls ...Listener) Option {
	return func(e *Engine) { e.listeners = append(e.listeners, ls...) }
}

// WithLedgerStore persists the risk ledger. The stored ledger is restored
// on New if it belongs to the current day.
func WithLedgerStore(s risk.LedgerStore) Option {
	return func(e *Engine) { e.store = s }
}

func WithIDs(g *id.Generator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithSleep replaces the retry backoff sleep, mostly for tests.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(e *Engine) { e.sleep = fn }
}

// settings is the per-version view of the config the workers read.
type settings struct {
	version     uint64
	cfg         *config.Config
	signal      signal.Settings
	stops       risk.StopParams
	riskPercent float64
	shadow      bool
	window      int
}

// Engine is the explicit context object that owns all trading state.
type Engine struct {
	gw        broker.Gateway
	log       zerolog.Logger
	now       func() time.Time
	listeners []Listener
	listener  Listener
	store     risk.LedgerStore
	ids       *id.Generator
	sleep     func(context.Context, time.Duration) error

	st     atomic.Pointer[settings]
	ind    *indicators.Engine
	risk   *risk.Manager
	exec   *execution.Coordinator
	ticks  *market.TickStore
	queue  int
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	workers map[string]*worker
}

// New validates cfg and builds an engine talking to gw.
func New(cfg *config.Config, gw broker.Gateway, opts ...Option) (*Engine, error) {
	if gw == nil {
		return nil, ErrNilGateway
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalid)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	st, err := derive(cfg, 1)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	ecfg, err := cfg.ExecutionConfig()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		gw:      gw,
		log:     zerolog.Nop(),
		now:     time.Now,
		ticks:   market.NewTickStore(),
		queue:   cfg.Engine.QueueSize,
		workers: make(map[string]*worker),
	}
	for _, o := range opts {
		o(e)
	}
	if e.queue <= 0 {
		e.queue = defaultQueueSize
	}
	switch len(e.listeners) {
	case 0:
		e.listener = NopListener{}
	case 1:
		e.listener = e.listeners[0]
	default:
		e.listener = MultiListener(e.listeners)
	}
	e.st.Store(st)

	e.ind = indicators.NewEngine(cfg.IndicatorParams(), st.window)

	ropts := []risk.Option{
		risk.WithClock(e.now),
		risk.WithLocation(loc),
		risk.WithLogger(e.log.With().Str("component", "risk").Logger()),
	}
	if e.store != nil {
		ropts = append(ropts, risk.WithStore(e.store))
	}
	e.risk = risk.NewManager(cfg.Limits(), ropts...)
	if err := e.risk.Restore(); err != nil {
		e.log.Warn().Err(err).Msg("starting with an empty risk ledger")
	}

	xopts := []execution.Option{execution.WithLogger(e.log.With().Str("component", "execution").Logger())}
	if e.ids != nil {
		xopts = append(xopts, execution.WithIDs(e.ids))
	}
	if e.sleep != nil {
		xopts = append(xopts, execution.WithSleep(e.sleep))
	}
	e.exec = execution.NewCoordinator(gw, e.risk, ecfg, xopts...)

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.log.Info().Str("symbol", cfg.Symbol).Bool("shadow", st.shadow).Msg("engine ready")
	return e, nil
}

func derive(cfg *config.Config, version uint64) (*settings, error) {
	sig, err := cfg.SignalSettings()
	if err != nil {
		return nil, err
	}
	stops, err := cfg.StopParams()
	if err != nil {
		return nil, err
	}
	window := cfg.Indicators.BarWindow
	if window <= 0 {
		window = indicators.DefaultWindow
	}
	return &settings{
		version:     version,
		cfg:         cfg,
		signal:      sig,
		stops:       stops,
		riskPercent: cfg.Risk.RiskPercent,
		shadow:      cfg.Engine.ShadowMode,
		window:      window,
	}, nil
}

// Reconfigure validates cfg and swaps it in. Workers pick the new settings
// up before their next event; an event already being handled finishes with
// the old ones. On error the running config is unchanged.
func (e *Engine) Reconfigure(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil config", config.ErrInvalid)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	ecfg, err := cfg.ExecutionConfig()
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	st, err := derive(cfg, e.st.Load().version+1)
	if err != nil {
		return err
	}
	e.ind.SetParams(cfg.IndicatorParams(), st.window)
	e.risk.SetLimits(cfg.Limits())
	e.exec.SetConfig(ecfg)
	e.st.Store(st)
	e.log.Info().Uint64("version", st.version).Bool("shadow", st.shadow).Msg("engine reconfigured")
	return nil
}

// SetShadowMode switches between shadow and live trading.
func (e *Engine) SetShadowMode(shadow bool) error {
	cfg := *e.Config()
	cfg.Engine.ShadowMode = shadow
	return e.Reconfigure(&cfg)
}

func (e *Engine) Config() *config.Config { return e.st.Load().cfg }

func (e *Engine) ShadowMode() bool { return e.st.Load().shadow }

func (e *Engine) Risk() *risk.Manager { return e.risk }

func (e *Engine) Indicators() *indicators.Engine { return e.ind }

func (e *Engine) Ticks() *market.TickStore { return e.ticks }

// OnNewTick records the latest quote. Ticks don't trigger an evaluation;
// the next closed M1 bar reads them.
func (e *Engine) OnNewTick(t market.Tick) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}
	e.ticks.Set(t)
	return nil
}

// OnNewBar queues one closed bar. A closed M1 bar triggers an evaluation.
func (e *Engine) OnNewBar(symbol string, tf market.Timeframe, b market.Bar) error {
	return e.enqueue(event{kind: evBar, symbol: symbol, tf: tf, bar: b})
}

// OnNewBars queues a full window of closed bars, replacing what the engine
// holds for (symbol, tf).
func (e *Engine) OnNewBars(symbol string, tf market.Timeframe, bars []market.Bar) error {
	cp := append([]market.Bar(nil), bars...)
	return e.enqueue(event{kind: evBars, symbol: symbol, tf: tf, bars: cp})
}

// Flush blocks until every event queued before the call has been handled.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	ws := make([]*worker, 0, len(e.workers))
	for _, w := range e.workers {
		ws = append(ws, w)
	}
	e.mu.Unlock()

	for _, w := range ws {
		done := make(chan struct{})
		if err := e.send(ctx, w, event{kind: evFlush, symbol: w.symbol, done: done}); err != nil {
			return err
		}
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		case <-w.quit:
			return ErrClosed
		}
	}
	return nil
}

// TestSignal pushes a hand-made signal through the risk gate, sizing and
// the shadow or live path of its symbol, as if the evaluator had confirmed
// it. A zero EntryPrice is taken from the latest quote and a zero ATRPoints
// from the M1 ATR. It returns once the worker has handled the signal; the
// outcome reaches the listeners.
func (e *Engine) TestSignal(ctx context.Context, sig signal.Signal) error {
	if sig.Symbol == "" {
		return errors.New("test signal: empty symbol")
	}
	if sig.Side != market.Buy && sig.Side != market.Sell {
		return fmt.Errorf("test signal: %w", risk.ErrNoSide)
	}
	if sig.GeneratedAt.IsZero() {
		sig.GeneratedAt = e.now()
	}
	if sig.Reason == "" {
		sig.Reason = signal.ReasonManual
	}

	w, err := e.worker(sig.Symbol)
	if err != nil {
		return err
	}
	done := make(chan struct{})
	if err := e.send(ctx, w, event{kind: evSignal, symbol: sig.Symbol, sig: sig, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.quit:
		return ErrClosed
	}
}

// Close stops accepting events, lets the event in progress finish and waits
// for the workers. An order attempt already sent to the broker completes;
// no retry follows it.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	ws := make([]*worker, 0, len(e.workers))
	for _, w := range e.workers {
		ws = append(ws, w)
	}
	e.mu.Unlock()

	e.exec.Close()
	for _, w := range ws {
		close(w.quit)
	}
	e.wg.Wait()
	e.cancel()
	e.log.Info().Int("workers", len(ws)).Msg("engine stopped")
	return nil
}

func (e *Engine) enqueue(ev event) error {
	if ev.symbol == "" {
		return fmt.Errorf("enqueue %s event: empty symbol", ev.kind)
	}
	w, err := e.worker(ev.symbol)
	if err != nil {
		return err
	}
	return e.send(e.ctx, w, ev)
}

func (e *Engine) send(ctx context.Context, w *worker, ev event) error {
	select {
	case w.events <- ev:
		return nil
	case <-w.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) worker(symbol string) (*worker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if w, ok := e.workers[symbol]; ok {
		return w, nil
	}
	st := e.st.Load()
	w := &worker{
		symbol:  symbol,
		events:  make(chan event, e.queue),
		quit:    make(chan struct{}),
		eval:    signal.NewEvaluator(symbol, st.signal, e.now),
		sets:    make(map[market.Timeframe]*market.BarSet),
		version: st.version,
		window:  st.window,
		log:     e.log.With().Str("symbol", symbol).Logger(),
	}
	e.workers[symbol] = w
	e.wg.Add(1)
	go e.run(w)
	return w, nil
}
