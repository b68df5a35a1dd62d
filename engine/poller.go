package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/rustyeddy/scalper/broker"
	"github.com/rustyeddy/scalper/market"
)

const (
	defaultPollInterval = time.Second
	defaultPollRate     = rate.Limit(20)
	defaultPollBurst    = 5
)

// Poller pulls ticks and closed bars from a gateway and feeds them to the
// engine. Gateway calls share one rate limiter so a tight interval can't
// flood the terminal.
type Poller struct {
	eng      *Engine
	gw       broker.Gateway
	symbol   string
	count    int
	interval time.Duration
	limiter  *rate.Limiter
	log      zerolog.Logger
	last     map[market.Timeframe]time.Time
}

type PollerOption func(*Poller)

func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithRateLimit caps gateway calls at r per second with the given burst.
func WithRateLimit(r rate.Limit, burst int) PollerOption {
	return func(p *Poller) { p.limiter = rate.NewLimiter(r, burst) }
}

func WithPollerLogger(l zerolog.Logger) PollerOption {
	return func(p *Poller) { p.log = l }
}

// WithBarCount sets how many M5 bars each fetch asks for. It defaults to
// the engine's bar window; M1 fetches ask for five times as many so M5 can
// be derived when the gateway has no M5 series.
func WithBarCount(n int) PollerOption {
	return func(p *Poller) {
		if n > 0 {
			p.count = n
		}
	}
}

func NewPoller(eng *Engine, gw broker.Gateway, symbol string, opts ...PollerOption) *Poller {
	p := &Poller{
		eng:      eng,
		gw:       gw,
		symbol:   symbol,
		count:    eng.st.Load().window,
		interval: defaultPollInterval,
		limiter:  rate.NewLimiter(defaultPollRate, defaultPollBurst),
		log:      zerolog.Nop(),
		last:     make(map[market.Timeframe]time.Time),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// PollOnce fetches the tick, then M5 and M1 bars, and queues whatever is
// new. M5 goes first so the M1 evaluation sees the fresh higher timeframe.
// A missing M5 series is not an error; the engine derives it from M1.
func (p *Poller) PollOnce(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	tick, err := p.gw.FetchTick(ctx, p.symbol)
	if err != nil {
		return fmt.Errorf("poll %s tick: %w", p.symbol, err)
	}
	if err := p.eng.OnNewTick(tick); err != nil {
		return err
	}
	p.log.Debug().Str("symbol", p.symbol).Float64("mid", tick.Mid()).Float64("spread", tick.Spread()).Time("at", tick.Time).Msg("tick")

	for _, tf := range []market.Timeframe{market.M5, market.M1} {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
		n := p.count
		if tf == market.M1 {
			n *= m1PerM5
		}
		bars, err := p.gw.FetchBars(ctx, p.symbol, tf, n)
		if err != nil {
			if tf == market.M5 && errors.Is(err, broker.ErrDataUnavailable) {
				continue
			}
			return fmt.Errorf("poll %s %s bars: %w", p.symbol, tf, err)
		}
		if len(bars) == 0 {
			continue
		}
		newest := bars[len(bars)-1].Time
		if newest.Equal(p.last[tf]) {
			continue
		}
		if err := p.eng.OnNewBars(p.symbol, tf, bars); err != nil {
			return err
		}
		p.last[tf] = newest
	}
	return nil
}

// Run polls on a ticker until ctx is done or the engine closes. Fetch
// errors are logged and the next tick tries again.
func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.interval)
	defer t.Stop()

	for {
		if err := p.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrClosed) {
				return err
			}
			p.log.Warn().Err(err).Str("symbol", p.symbol).Msg("poll failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
