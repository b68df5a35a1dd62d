package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	rows, err := csv.NewReader(fh).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVJournal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dp := filepath.Join(dir, "decisions.csv")
	op := filepath.Join(dir, "orders.csv")

	j, err := NewCSV(dp, op)
	require.NoError(t, err)

	at := time.Date(2025, 3, 3, 10, 1, 0, 0, time.UTC)
	require.NoError(t, j.RecordDecision(DecisionRecord{
		ID: "D1", Time: at, Symbol: "XAUUSD", BarTime: at.Add(-time.Minute),
		Kind: KindEvaluation, Side: "BUY", Reason: "confirmed", Entry: 2000.2, ATRPoints: 50, SpreadPoints: 10,
	}))
	require.NoError(t, j.RecordOrder(OrderRecord{
		ID: "O1", Time: at, Symbol: "XAUUSD", Side: "BUY", Volume: 0.67, Price: 2000.2,
		SL: 1998.7, TP: 2003.2, Deviation: 15, Attempts: 3, Retries: 2, Retcode: "DONE",
		Ticket: 1001, Result: ResultExecuted,
	}))
	require.NoError(t, j.Close())

	decisions := readCSV(t, dp)
	require.Len(t, decisions, 2)
	assert.Equal(t, decisionHeader, decisions[0])
	assert.Equal(t, []string{"D1", "2025-03-03T10:01:00Z", "XAUUSD", "2025-03-03T10:00:00Z", "evaluation", "BUY", "confirmed", "2000.2", "50", "10"}, decisions[1])

	orders := readCSV(t, op)
	require.Len(t, orders, 2)
	assert.Equal(t, orderHeader, orders[0])
	assert.Equal(t, "1001", orders[1][12])
	assert.Equal(t, ResultExecuted, orders[1][13])
}

func TestCSVJournalBadPath(t *testing.T) {
	t.Parallel()
	_, err := NewCSV(filepath.Join(t.TempDir(), "missing", "d.csv"), "o.csv")
	assert.Error(t, err)
}
