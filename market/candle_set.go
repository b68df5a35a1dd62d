package market

import (
	"errors"
	"sync"
	"time"
)

var ErrOutOfOrder = errors.New("bar older than window tail")

// BarSet is a bounded, time-ordered window of closed bars for one symbol
// and timeframe. A bar with the same open time as the last bar replaces it.
type BarSet struct {
	mu    sync.RWMutex
	tf    Timeframe
	limit int
	bars  []Bar
}

func NewBarSet(tf Timeframe, limit int) *BarSet {
	if limit <= 0 {
		limit = 200
	}
	return &BarSet{tf: tf, limit: limit}
}

func (s *BarSet) Timeframe() Timeframe { return s.tf }

// Append adds a closed bar. Older bars are rejected with ErrOutOfOrder.
func (s *BarSet) Append(b Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.bars); n > 0 {
		last := s.bars[n-1].Time
		switch {
		case b.Time.Equal(last):
			s.bars[n-1] = b
			return nil
		case b.Time.Before(last):
			return ErrOutOfOrder
		}
	}
	s.bars = append(s.bars, b)
	if over := len(s.bars) - s.limit; over > 0 {
		s.bars = append(s.bars[:0:0], s.bars[over:]...)
	}
	return nil
}

// Replace swaps the whole window, keeping the newest limit bars.
func (s *BarSet) Replace(bars []Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if over := len(bars) - s.limit; over > 0 {
		bars = bars[over:]
	}
	s.bars = append([]Bar(nil), bars...)
}

// Bars returns a copy of the window, oldest first.
func (s *BarSet) Bars() []Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Bar(nil), s.bars...)
}

func (s *BarSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bars)
}

func (s *BarSet) Last() (Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.bars) == 0 {
		return Bar{}, false
	}
	return s.bars[len(s.bars)-1], true
}

// Aggregate folds bars into buckets of tf. Each bucket takes the first open,
// max high, min low, last close and summed volume. Input must be sorted.
// A trailing bucket is only emitted if complete is false or the bucket is
// covered up to its last sub-bar.
func Aggregate(bars []Bar, src, dst Timeframe, complete bool) []Bar {
	if len(bars) == 0 || dst <= src {
		return append([]Bar(nil), bars...)
	}

	var (
		out     []Bar
		cur     Bar
		started bool
		last    time.Time
	)
	lastSub := dst.Duration() - src.Duration()

	flush := func() {
		if started {
			out = append(out, cur)
		}
	}

	for _, b := range bars {
		bucket := dst.Truncate(b.Time)
		if !started || !bucket.Equal(cur.Time) {
			flush()
			cur = Bar{Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume, Time: bucket}
			started = true
			last = b.Time
			continue
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
		last = b.Time
	}

	if started && (!complete || last.Sub(cur.Time) >= lastSub) {
		flush()
	}
	return out
}
