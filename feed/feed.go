// Package feed reads closed bars from CSV files and generates synthetic
// series for demos.
package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/scalper/market"
)

// timeLayouts are tried in order for the time column. MetaTrader exports
// use dots in the date.
var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006.01.02 15:04:05",
	"2006.01.02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// CSVBarsFeed reads bar rows:
//
//	time,open,high,low,close[,volume]
//
// time is one of timeLayouts (read in UTC) or unix seconds. A header row
// starting with "time" or "date" is allowed, empty rows are skipped and
// bars outside [From, To) are filtered out.
type CSVBarsFeed struct {
	c    io.Closer
	r    *csv.Reader
	from time.Time
	to   time.Time
	line int

	sawFirst bool
}

func NewCSVBarsFeed(path string, from, to time.Time) (*CSVBarsFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	feed := NewCSVBarsReader(f, from, to)
	feed.c = f
	return feed, nil
}

// NewCSVBarsReader reads from r. Close is a no-op.
func NewCSVBarsReader(r io.Reader, from, to time.Time) *CSVBarsFeed {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return &CSVBarsFeed{r: cr, from: from, to: to}
}

func (f *CSVBarsFeed) Close() error {
	if f.c != nil {
		return f.c.Close()
	}
	return nil
}

// Next returns the next bar in range. ok is false at end of input.
func (f *CSVBarsFeed) Next() (market.Bar, bool, error) {
	for {
		row, err := f.r.Read()
		if err == io.EOF {
			return market.Bar{}, false, nil
		}
		if err != nil {
			return market.Bar{}, false, err
		}
		f.line++
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}

		if !f.sawFirst {
			f.sawFirst = true
			h := strings.ToLower(strings.TrimSpace(row[0]))
			if h == "time" || h == "date" || h == "timestamp" {
				continue
			}
		}

		b, err := ParseBarRow(row)
		if err != nil {
			return market.Bar{}, false, fmt.Errorf("line %d: %w", f.line, err)
		}
		if !inRange(b.Time, f.from, f.to) {
			continue
		}
		return b, true, nil
	}
}

// ReadAll drains the feed.
func (f *CSVBarsFeed) ReadAll() ([]market.Bar, error) {
	var out []market.Bar
	for {
		b, ok, err := f.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, b)
	}
}

// LoadBars reads a whole bar file.
func LoadBars(path string, from, to time.Time) ([]market.Bar, error) {
	f, err := NewCSVBarsFeed(path, from, to)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.ReadAll()
}

func ParseBarRow(row []string) (market.Bar, error) {
	if len(row) < 5 {
		return market.Bar{}, fmt.Errorf("bad row (need time,open,high,low,close): %v", row)
	}
	t, err := parseTime(strings.TrimSpace(row[0]))
	if err != nil {
		return market.Bar{}, err
	}

	var v [5]float64
	names := [...]string{"open", "high", "low", "close", "volume"}
	n := 4
	if len(row) > 5 && strings.TrimSpace(row[5]) != "" {
		n = 5
	}
	for i := 0; i < n; i++ {
		s := strings.TrimSpace(row[i+1])
		v[i], err = strconv.ParseFloat(s, 64)
		if err != nil {
			return market.Bar{}, fmt.Errorf("bad %s %q: %w", names[i], s, err)
		}
	}

	b := market.Bar{Time: t, Open: v[0], High: v[1], Low: v[2], Close: v[3], Volume: v[4]}
	if b.High < b.Low || b.High < b.Open || b.High < b.Close || b.Low > b.Open || b.Low > b.Close {
		return market.Bar{}, fmt.Errorf("inconsistent bar at %s: o=%g h=%g l=%g c=%g", t.Format(time.RFC3339), b.Open, b.High, b.Low, b.Close)
	}
	return b, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

// WriteBars writes bars in the format Next reads, with a header.
func WriteBars(w io.Writer, bars []market.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, b := range bars {
		row := []string{
			b.Time.UTC().Format(time.RFC3339),
			ff(b.Open), ff(b.High), ff(b.Low), ff(b.Close), ff(b.Volume),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func ff(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
