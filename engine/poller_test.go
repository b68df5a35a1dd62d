package engine

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/rustyeddy/scalper/journal"
	"github.com/rustyeddy/scalper/logging"
	"github.com/rustyeddy/scalper/market"
	"github.com/rustyeddy/scalper/metrics"
	"github.com/rustyeddy/scalper/signal"
)

var (
	_ Listener = (*journal.Listener)(nil)
	_ Listener = (*logging.Listener)(nil)
	_ Listener = (*metrics.Metrics)(nil)
	_ Listener = MultiListener(nil)
	_ Listener = NopListener{}
)

func TestPollerFeedsOnlyNewBars(t *testing.T) {
	f := newFixture(t, nil)
	bars := trendBars(300)
	f.gw.SetBars(symbol, market.M1, bars)
	f.gw.SetTick(tickAfter(bars[299], 0.10))

	p := NewPoller(f.eng, f.gw, symbol, WithRateLimit(rate.Inf, 1))
	ctx := context.Background()

	require.NoError(t, p.PollOnce(ctx), "missing M5 series is not an error")
	f.flush(t)
	require.Len(t, f.rec.decisions, 1)
	assert.Equal(t, signal.ReasonConfirmed, firstReason(f))

	tick, err := f.eng.Ticks().Get(symbol)
	require.NoError(t, err)
	assert.Equal(t, bars[299].Close, tick.Bid)

	require.NoError(t, p.PollOnce(ctx))
	f.flush(t)
	assert.Len(t, f.rec.decisions, 1, "unchanged bars are not requeued")
	assert.Equal(t, 4, f.gw.BarFetches())

	next := trendBar(300)
	f.gw.AppendBar(symbol, market.M1, next)
	f.gw.SetTick(tickAfter(next, 0.10))
	require.NoError(t, p.PollOnce(ctx))
	f.flush(t)
	require.Len(t, f.rec.decisions, 2)
	assert.Equal(t, next.Time, f.rec.decisions[1].BarTime)
}

func TestPollerLogsTickMid(t *testing.T) {
	f := newFixture(t, nil)
	bars := trendBars(300)
	f.gw.SetBars(symbol, market.M1, bars)
	f.gw.SetTick(tickAfter(bars[299], 0.10))

	var buf bytes.Buffer
	p := NewPoller(f.eng, f.gw, symbol, WithRateLimit(rate.Inf, 1), WithPollerLogger(logging.New("debug", &buf)))
	require.NoError(t, p.PollOnce(context.Background()))

	assert.Contains(t, buf.String(), `"message":"tick"`)
	assert.Contains(t, buf.String(), `"mid":2015`)
}

func firstReason(f *fixture) string {
	f.rec.mu.Lock()
	defer f.rec.mu.Unlock()
	return f.rec.decisions[0].Reason
}

func TestPollerTickError(t *testing.T) {
	f := newFixture(t, nil)
	p := NewPoller(f.eng, f.gw, symbol)
	err := p.PollOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tick")
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, nil)
	bars := trendBars(60)
	f.gw.SetBars(symbol, market.M1, bars)
	f.gw.SetTick(tickAfter(bars[59], 0.10))

	p := NewPoller(f.eng, f.gw, symbol, WithPollInterval(5*time.Millisecond), WithRateLimit(rate.Inf, 1))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := p.Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.GreaterOrEqual(t, f.gw.BarFetches(), 2)
}

func TestPollerStopsWhenEngineClosed(t *testing.T) {
	f := newFixture(t, nil)
	bars := trendBars(60)
	f.gw.SetBars(symbol, market.M1, bars)
	f.gw.SetTick(tickAfter(bars[59], 0.10))
	require.NoError(t, f.eng.Close())

	p := NewPoller(f.eng, f.gw, symbol, WithPollInterval(time.Millisecond))
	err := p.Run(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
