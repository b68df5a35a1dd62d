package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"
)

var (
	decisionHeader = []string{"id", "time", "symbol", "bar_time", "kind", "side", "reason", "entry", "atr_points", "spread_points"}
	orderHeader    = []string{"id", "time", "symbol", "side", "volume", "price", "sl", "tp", "deviation", "attempts", "retries", "retcode", "ticket", "result", "error"}
)

// CSV writes decisions and orders to two files. Each row is flushed as it
// is written so the files can be tailed.
type CSV struct {
	mu        sync.Mutex
	decisions *csv.Writer
	orders    *csv.Writer
	df, of    *os.File
}

func NewCSV(decisionsPath, ordersPath string) (*CSV, error) {
	df, err := os.Create(decisionsPath)
	if err != nil {
		return nil, err
	}
	of, err := os.Create(ordersPath)
	if err != nil {
		_ = df.Close()
		return nil, err
	}

	j := &CSV{decisions: csv.NewWriter(df), orders: csv.NewWriter(of), df: df, of: of}
	if err := j.write(j.decisions, decisionHeader); err != nil {
		_ = j.Close()
		return nil, err
	}
	if err := j.write(j.orders, orderHeader); err != nil {
		_ = j.Close()
		return nil, err
	}
	return j, nil
}

func (j *CSV) RecordDecision(d DecisionRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.write(j.decisions, []string{
		d.ID,
		d.Time.UTC().Format(time.RFC3339),
		d.Symbol,
		d.BarTime.UTC().Format(time.RFC3339),
		d.Kind,
		d.Side,
		d.Reason,
		f(d.Entry),
		f(d.ATRPoints),
		f(d.SpreadPoints),
	})
}

func (j *CSV) RecordOrder(o OrderRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.write(j.orders, []string{
		o.ID,
		o.Time.UTC().Format(time.RFC3339),
		o.Symbol,
		o.Side,
		f(o.Volume),
		f(o.Price),
		f(o.SL),
		f(o.TP),
		strconv.Itoa(o.Deviation),
		strconv.Itoa(o.Attempts),
		strconv.Itoa(o.Retries),
		o.Retcode,
		strconv.FormatInt(o.Ticket, 10),
		o.Result,
		o.Error,
	})
}

func (j *CSV) write(w *csv.Writer, row []string) error {
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (j *CSV) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.decisions.Flush()
	j.orders.Flush()
	if err := j.decisions.Error(); err != nil {
		return err
	}
	if err := j.orders.Error(); err != nil {
		return err
	}
	if err := j.df.Close(); err != nil {
		return err
	}
	return j.of.Close()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
