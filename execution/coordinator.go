// Package execution submits entry orders to the broker with a bounded retry
// on stale prices, and reports each final outcome to the risk ledger.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/scalper/broker"
	"github.com/rustyeddy/scalper/id"
	"github.com/rustyeddy/scalper/risk"
	"github.com/rustyeddy/scalper/signal"
)

var (
	// ErrBrokerRejected is a terminal failure: a non-retryable retcode, a
	// transport error or retries exhausted.
	ErrBrokerRejected = errors.New("broker rejected order")
	// ErrBrokerTransient marks requote/price-off answers. It is wrapped
	// together with ErrBrokerRejected once retries run out.
	ErrBrokerTransient   = errors.New("broker requoted")
	ErrCoordinatorClosed = errors.New("execution coordinator closed")
)

// AttemptState is a step of the order state machine.
type AttemptState string

const (
	StatePending   AttemptState = "pending"
	StateSubmitted AttemptState = "submitted"
	StateDone      AttemptState = "done"
	StateRequoted  AttemptState = "requoted"
	StateRejected  AttemptState = "rejected"
	StateAborted   AttemptState = "aborted"
)

// Reporter receives the outcome of every execution exactly once.
type Reporter interface {
	Update(risk.Outcome)
}

type Config struct {
	// MaxRetries is the number of resubmissions after the first attempt.
	MaxRetries       int
	Backoff          time.Duration
	DeviationPoints  int
	DynamicDeviation bool
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:       3,
		Backoff:          100 * time.Millisecond,
		DeviationPoints:  10,
		DynamicDeviation: true,
	}
}

// Plan is a gated, sized entry ready to submit.
type Plan struct {
	Signal signal.Signal
	Volume float64
	Stops  risk.Stops
}

// Execution records what happened to one Plan.
type Execution struct {
	Symbol   string
	Request  broker.OrderRequest
	Result   broker.OrderResult
	Attempts int
	Retries  int
	States   []AttemptState
	Err      error
}

// Accepted reports a fill. The retcode decides, whatever the gateway put
// in OrderResult.Accepted.
func (e Execution) Accepted() bool { return e.Err == nil && e.Result.Retcode.Done() }

func (e Execution) Final() AttemptState {
	if len(e.States) == 0 {
		return StatePending
	}
	return e.States[len(e.States)-1]
}

type Option func(*Coordinator)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithIDs sets the generator used for order tags.
func WithIDs(g *id.Generator) Option {
	return func(c *Coordinator) { c.ids = g }
}

// WithSleep replaces the backoff wait. Tests use it to skip real delays.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(c *Coordinator) { c.sleep = fn }
}

// Coordinator builds and submits orders.
type Coordinator struct {
	gw       broker.Gateway
	reporter Reporter
	cfg      atomic.Pointer[Config]
	ids      *id.Generator
	log      zerolog.Logger
	sleep    func(context.Context, time.Duration) error
	closed   atomic.Bool
}

func NewCoordinator(gw broker.Gateway, reporter Reporter, cfg Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		gw:       gw,
		reporter: reporter,
		log:      zerolog.Nop(),
		sleep:    sleepCtx,
	}
	c.cfg.Store(&cfg)
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Coordinator) SetConfig(cfg Config) { c.cfg.Store(&cfg) }

func (c *Coordinator) Config() Config { return *c.cfg.Load() }

// Close stops further submissions. An attempt already sent to the broker
// completes; its retry loop then ends.
func (c *Coordinator) Close() { c.closed.Store(true) }

func (c *Coordinator) Closed() bool { return c.closed.Load() }

// Execute submits p. Requote and price-off answers are retried with a fresh
// ask/bid up to MaxRetries times; SL and TP keep their computed prices. The
// outcome goes to the reporter exactly once, unless Execute refuses to
// start because the coordinator is closed.
func (c *Coordinator) Execute(ctx context.Context, p Plan) (Execution, error) {
	if c.closed.Load() {
		return Execution{Symbol: p.Signal.Symbol}, ErrCoordinatorClosed
	}
	cfg := c.Config()

	sig := p.Signal
	req := broker.OrderRequest{
		Symbol:    sig.Symbol,
		Side:      sig.Side,
		Volume:    p.Volume,
		Price:     sig.EntryPrice,
		SL:        p.Stops.SL,
		TP:        p.Stops.TP,
		Deviation: risk.Deviation(p.Stops.SLPoints, cfg.DeviationPoints, cfg.DynamicDeviation),
		Tag:       c.newTag(),
	}
	ex := Execution{Symbol: sig.Symbol, States: []AttemptState{StatePending}}
	log := c.log.With().Str("symbol", sig.Symbol).Str("tag", req.Tag).Logger()

	aborted := false
	maxAttempts := 1 + cfg.MaxRetries
	for attempt := 1; ; attempt++ {
		ex.Attempts = attempt
		ex.States = append(ex.States, StateSubmitted)
		ex.Request = req

		res, err := c.gw.SubmitOrder(ctx, req)
		if err != nil {
			ex.States = append(ex.States, StateRejected)
			if ctx.Err() != nil {
				aborted = true
				ex.States[len(ex.States)-1] = StateAborted
			}
			ex.Err = fmt.Errorf("%w: %w", ErrBrokerRejected, err)
			log.Error().Err(err).Int("attempt", attempt).Msg("order submit failed")
			break
		}
		ex.Result = res

		if res.Retcode.Done() {
			ex.Result.Accepted = true
			ex.States = append(ex.States, StateDone)
			log.Info().Int64("ticket", res.Ticket).Int("attempt", attempt).Float64("price", req.Price).Msg("order filled")
			break
		}
		if !res.Retcode.Transient() {
			ex.States = append(ex.States, StateRejected)
			ex.Err = fmt.Errorf("%w: %s %s", ErrBrokerRejected, res.Retcode, res.Comment)
			log.Warn().Stringer("retcode", res.Retcode).Int("attempt", attempt).Msg("order rejected")
			break
		}

		ex.States = append(ex.States, StateRequoted)
		if attempt >= maxAttempts {
			ex.States = append(ex.States, StateRejected)
			ex.Err = fmt.Errorf("%w after %d attempts: %w", ErrBrokerRejected, attempt, ErrBrokerTransient)
			log.Warn().Stringer("retcode", res.Retcode).Int("attempts", attempt).Msg("order retries exhausted")
			break
		}
		if c.closed.Load() {
			aborted = true
			ex.States = append(ex.States, StateAborted)
			ex.Err = ErrCoordinatorClosed
			break
		}
		if err := c.sleep(ctx, cfg.Backoff); err != nil {
			aborted = true
			ex.States = append(ex.States, StateAborted)
			ex.Err = err
			break
		}
		if c.closed.Load() {
			aborted = true
			ex.States = append(ex.States, StateAborted)
			ex.Err = ErrCoordinatorClosed
			break
		}

		if tick, err := c.gw.FetchTick(ctx, sig.Symbol); err == nil {
			req.Price = tick.PriceFor(sig.Side)
		} else {
			log.Warn().Err(err).Msg("requote without fresh tick, resubmitting last price")
		}
		ex.Retries++
		log.Debug().Stringer("retcode", res.Retcode).Int("attempt", attempt).Float64("price", req.Price).Msg("retrying order")
	}

	c.report(ex, aborted)
	return ex, ex.Err
}

func (c *Coordinator) report(ex Execution, aborted bool) {
	if c.reporter == nil {
		return
	}
	reason := string(ex.Final())
	if ex.Result.Retcode != 0 && !ex.Accepted() {
		reason = ex.Result.Retcode.String()
	}
	c.reporter.Update(risk.Outcome{
		Symbol:   ex.Symbol,
		Accepted: ex.Accepted(),
		Aborted:  aborted,
		Reason:   reason,
	})
}

func (c *Coordinator) newTag() string {
	if c.ids != nil {
		return c.ids.New()
	}
	return id.New()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
