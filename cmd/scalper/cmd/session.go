package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/rustyeddy/scalper/broker"
	"github.com/rustyeddy/scalper/broker/sim"
	"github.com/rustyeddy/scalper/config"
	"github.com/rustyeddy/scalper/engine"
	"github.com/rustyeddy/scalper/execution"
	"github.com/rustyeddy/scalper/id"
	"github.com/rustyeddy/scalper/journal"
	"github.com/rustyeddy/scalper/logging"
	"github.com/rustyeddy/scalper/market"
	"github.com/rustyeddy/scalper/metrics"
	"github.com/rustyeddy/scalper/risk"
	"github.com/rustyeddy/scalper/signal"
)

// replayClock follows the bar being replayed so daily limits and
// cooldowns run on market time.
type replayClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *replayClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *replayClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// tally counts what the engine reported during a session.
type tally struct {
	engine.NopListener

	mu        sync.Mutex
	decisions int
	reasons   map[string]int
	signals   int
	blocked   map[string]int
	dropped   int
	shadow    int
	filled    int
	failed    int
	volume    float64
}

func newTally() *tally {
	return &tally{reasons: make(map[string]int), blocked: make(map[string]int)}
}

func (t *tally) OnDecision(ev signal.Evaluation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.decisions++
	t.reasons[ev.Reason]++
}

func (t *tally) OnSignal(signal.Signal) {
	t.mu.Lock()
	t.signals++
	t.mu.Unlock()
}

func (t *tally) OnRiskBlock(_ signal.Signal, d risk.Decision) {
	t.mu.Lock()
	t.blocked[d.Reason()]++
	t.mu.Unlock()
}

func (t *tally) OnSignalDropped(signal.Signal, error) {
	t.mu.Lock()
	t.dropped++
	t.mu.Unlock()
}

func (t *tally) OnShadowOrder(p execution.Plan) {
	t.mu.Lock()
	t.shadow++
	t.volume += p.Volume
	t.mu.Unlock()
}

func (t *tally) OnExecutionResult(ex execution.Execution) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ex.Accepted() {
		t.filled++
		t.volume += ex.Request.Volume
		return
	}
	t.failed++
}

// session wires one engine to the simulated gateway and every output the
// config asks for.
type session struct {
	cfg     *config.Config
	log     zerolog.Logger
	clock   *replayClock
	gw      *sim.Gateway
	eng     *engine.Engine
	poller  *engine.Poller
	journal journal.Journal
	metrics *metrics.Metrics
	server  *http.Server
	tally   *tally
	spec    market.InstrumentSpec
}

func newSession(cfg *config.Config, log zerolog.Logger) (*session, error) {
	s := &session{
		cfg:   cfg,
		log:   log,
		clock: &replayClock{},
		tally: newTally(),
	}

	spec, ok := cfg.Instrument()
	if !ok {
		return nil, fmt.Errorf("%s: %w", cfg.Symbol, sim.ErrUnknownInstrument)
	}
	s.spec = spec

	var store risk.LedgerStore
	switch cfg.Journal.Type {
	case "csv":
		j, err := journal.NewCSV(cfg.Journal.DecisionsFile, cfg.Journal.OrdersFile)
		if err != nil {
			return nil, fmt.Errorf("open csv journal: %w", err)
		}
		s.journal = j
	case "sqlite":
		j, err := journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite journal: %w", err)
		}
		s.journal = j
		if cfg.Risk.PersistLedger {
			store = j
		}
	default:
		s.journal = journal.Nop{}
	}

	s.metrics = metrics.New(nil)
	if cfg.Metrics.Addr != "" {
		s.server = s.metrics.Serve(cfg.Metrics.Addr)
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics listening")
	}

	s.gw = sim.NewGateway(broker.Account{
		ID:       cfg.Account.ID,
		Currency: cfg.Account.Currency,
		Balance:  cfg.Account.Balance,
		Equity:   cfg.Account.Balance,
	})
	s.gw.SetInstrument(spec)

	// One seeded generator on market time, so a replay tags orders and
	// journal rows the same way every run.
	ids := id.NewGenerator(1, s.clock.Now)
	opts := []engine.Option{
		engine.WithClock(s.clock.Now),
		engine.WithLogger(log),
		engine.WithIDs(ids),
		engine.WithListener(
			logging.NewListener(log),
			journal.NewListener(s.journal, log, s.clock.Now, ids),
			s.metrics,
			s.tally,
		),
		// Replay runs faster than the broker would answer; retries don't wait.
		engine.WithSleep(func(context.Context, time.Duration) error { return nil }),
	}
	if store != nil {
		opts = append(opts, engine.WithLedgerStore(store))
	}

	eng, err := engine.New(cfg, s.gw, opts...)
	if err != nil {
		if jerr := s.journal.Close(); jerr != nil {
			log.Warn().Err(jerr).Msg("close journal")
		}
		if serr := s.shutdownServer(); serr != nil {
			log.Warn().Err(serr).Msg("stop metrics server")
		}
		return nil, err
	}
	s.eng = eng
	s.poller = engine.NewPoller(eng, s.gw, cfg.Symbol,
		engine.WithRateLimit(rate.Inf, 1),
		engine.WithPollerLogger(log),
	)
	return s, nil
}

// replay feeds bars one by one as if each had just closed. The quote is
// the bar close on the bid with spreadPoints added on the ask.
func (s *session) replay(ctx context.Context, bars []market.Bar, spreadPoints float64) error {
	spread := spreadPoints * s.spec.Point
	for _, b := range bars {
		if err := ctx.Err(); err != nil {
			return err
		}
		closed := b.Time.Add(market.M1.Duration())
		s.clock.Set(closed)
		s.gw.AppendBar(s.cfg.Symbol, market.M1, b)
		s.gw.SetTick(market.Tick{
			Symbol: s.cfg.Symbol,
			Bid:    b.Close,
			Ask:    b.Close + spread,
			Time:   closed,
		})
		if err := s.poller.PollOnce(ctx); err != nil {
			return err
		}
		if err := s.eng.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) Close() error {
	err := s.eng.Close()
	if jerr := s.journal.Close(); jerr != nil && err == nil {
		err = jerr
	}
	if serr := s.shutdownServer(); serr != nil {
		s.log.Warn().Err(serr).Msg("stop metrics server")
		if err == nil {
			err = serr
		}
	}
	return err
}

// shutdownServer stops the metrics listener, if one was started.
func (s *session) shutdownServer() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *session) summary(w io.Writer, title string) {
	t := s.tally
	t.mu.Lock()
	defer t.mu.Unlock()

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle(title)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Metric", "Value"})
	tw.AppendRows([]table.Row{
		{"Symbol", s.cfg.Symbol},
		{"Mode", modeName(s.eng.ShadowMode())},
		{"Decisions", t.decisions},
		{"Signals", t.signals},
		{"Shadow orders", t.shadow},
		{"Filled", t.filled},
		{"Failed", t.failed},
		{"Dropped", t.dropped},
		{"Volume", fmt.Sprintf("%.2f", t.volume)},
	})
	tw.AppendSeparator()
	for _, r := range sortedKeys(t.reasons) {
		tw.AppendRow(table.Row{"reason: " + r, t.reasons[r]})
	}
	for _, r := range sortedKeys(t.blocked) {
		tw.AppendRow(table.Row{"blocked: " + r, t.blocked[r]})
	}

	l := s.eng.Risk().Ledger()
	tw.AppendSeparator()
	tw.AppendRows([]table.Row{
		{"Ledger date", l.Date},
		{"Trades today", l.DailyTradeCount},
		{"Consecutive losses", l.ConsecutiveLosses},
	})
	tw.Render()
}

func modeName(shadow bool) string {
	if shadow {
		return "shadow"
	}
	return "live"
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
