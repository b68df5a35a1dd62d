package journal

import (
	"time"
)

// ListDecisions returns decisions for symbol with bar time in [start, end),
// oldest first. An empty symbol matches all symbols.
func (j *SQLite) ListDecisions(symbol string, start, end time.Time) ([]DecisionRecord, error) {
	start, end = timeRange(start, end)
	rows, err := j.db.Query(`
		SELECT id, time, symbol, bar_time, kind, side, reason, entry, atr_points, spread_points
		FROM decisions
		WHERE (? = '' OR symbol = ?) AND bar_time >= ? AND bar_time < ?
		ORDER BY bar_time ASC, id ASC`, symbol, symbol, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var d DecisionRecord
		if err := rows.Scan(
			&d.ID, &d.Time, &d.Symbol, &d.BarTime, &d.Kind, &d.Side,
			&d.Reason, &d.Entry, &d.ATRPoints, &d.SpreadPoints,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListOrders returns orders recorded in [start, end), oldest first.
func (j *SQLite) ListOrders(start, end time.Time) ([]OrderRecord, error) {
	start, end = timeRange(start, end)
	rows, err := j.db.Query(`
		SELECT id, time, symbol, side, volume, price, sl, tp, deviation, attempts, retries, retcode, ticket, result, error
		FROM orders
		WHERE time >= ? AND time < ?
		ORDER BY time ASC, id ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderRecord
	for rows.Next() {
		var o OrderRecord
		if err := rows.Scan(
			&o.ID, &o.Time, &o.Symbol, &o.Side, &o.Volume, &o.Price, &o.SL, &o.TP,
			&o.Deviation, &o.Attempts, &o.Retries, &o.Retcode, &o.Ticket, &o.Result, &o.Error,
		); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CountByReason tallies decisions per reason code.
func (j *SQLite) CountByReason() (map[string]int, error) {
	rows, err := j.db.Query(`SELECT reason, COUNT(*) FROM decisions GROUP BY reason`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			reason string
			n      int
		)
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		out[reason] = n
	}
	return out, rows.Err()
}
