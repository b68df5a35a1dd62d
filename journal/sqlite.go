package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/scalper/risk"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordDecision(d DecisionRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO decisions
		(id, time, symbol, bar_time, kind, side, reason, entry, atr_points, spread_points)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Time.UTC(), d.Symbol, d.BarTime.UTC(), d.Kind, d.Side, d.Reason,
		d.Entry, d.ATRPoints, d.SpreadPoints,
	)
	return err
}

func (j *SQLite) RecordOrder(o OrderRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO orders
		(id, time, symbol, side, volume, price, sl, tp, deviation, attempts, retries, retcode, ticket, result, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Time.UTC(), o.Symbol, o.Side, o.Volume, o.Price, o.SL, o.TP,
		o.Deviation, o.Attempts, o.Retries, o.Retcode, o.Ticket, o.Result, o.Error,
	)
	return err
}

// LoadLedger returns the persisted risk ledger, if any.
func (j *SQLite) LoadLedger() (risk.Ledger, bool, error) {
	var (
		l        risk.Ledger
		cooldown sql.NullTime
	)
	err := j.db.QueryRow(`
		SELECT date, daily_trade_count, daily_pnl, consecutive_losses, cooldown_until, day_start_balance
		FROM risk_ledger WHERE id = 1`).Scan(
		&l.Date, &l.DailyTradeCount, &l.DailyPnL, &l.ConsecutiveLosses, &cooldown, &l.DayStartBalance,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return risk.Ledger{}, false, nil
	}
	if err != nil {
		return risk.Ledger{}, false, err
	}
	if cooldown.Valid {
		l.CooldownUntil = cooldown.Time
	}
	return l, true, nil
}

// SaveLedger overwrites the persisted risk ledger.
func (j *SQLite) SaveLedger(l risk.Ledger) error {
	var cooldown any
	if !l.CooldownUntil.IsZero() {
		cooldown = l.CooldownUntil.UTC()
	}
	_, err := j.db.Exec(`
		INSERT INTO risk_ledger
		(id, date, daily_trade_count, daily_pnl, consecutive_losses, cooldown_until, day_start_balance)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			daily_trade_count = excluded.daily_trade_count,
			daily_pnl = excluded.daily_pnl,
			consecutive_losses = excluded.consecutive_losses,
			cooldown_until = excluded.cooldown_until,
			day_start_balance = excluded.day_start_balance`,
		l.Date, l.DailyTradeCount, l.DailyPnL, l.ConsecutiveLosses, cooldown, l.DayStartBalance,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

var _ risk.LedgerStore = (*SQLite)(nil)

// timeRange is used by the list queries; zero bounds are open.
func timeRange(start, end time.Time) (time.Time, time.Time) {
	if end.IsZero() {
		end = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return start.UTC(), end.UTC()
}
