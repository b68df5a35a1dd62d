package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/scalper/risk"
	"github.com/rustyeddy/scalper/signal"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, "XAUUSD", cfg.Symbol)
	assert.Equal(t, 0.5, cfg.Risk.RiskPercent)
	assert.True(t, cfg.Engine.ShadowMode)
	assert.NoError(t, cfg.Validate())

	_, ok := cfg.Instrument()
	assert.True(t, ok)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing symbol",
			mutate:  func(c *Config) { c.Symbol = "" },
			wantErr: true,
			errMsg:  "symbol is required",
		},
		{
			name:    "negative balance",
			mutate:  func(c *Config) { c.Account.Balance = -1000 },
			wantErr: true,
			errMsg:  "account.balance must be positive",
		},
		{
			name:    "risk percent too small",
			mutate:  func(c *Config) { c.Risk.RiskPercent = 0.05 },
			wantErr: true,
			errMsg:  "risk.risk_percent must be between 0.1 and 10",
		},
		{
			name:    "risk percent too large",
			mutate:  func(c *Config) { c.Risk.RiskPercent = 12 },
			wantErr: true,
			errMsg:  "risk.risk_percent",
		},
		{
			name:    "zero trades per day",
			mutate:  func(c *Config) { c.Risk.MaxTradesPerDay = 0 },
			wantErr: true,
			errMsg:  "max_trades_per_day",
		},
		{
			name:    "ema periods not increasing",
			mutate:  func(c *Config) { c.Indicators.EMAPeriods = EMAPeriods{Fast: 21, Medium: 9, Slow: 50} },
			wantErr: true,
			errMsg:  "increasing",
		},
		{
			name:    "window shorter than warm-up",
			mutate:  func(c *Config) { c.Indicators.BarWindow = 20 },
			wantErr: true,
			errMsg:  "bar_window",
		},
		{
			name:    "unknown timezone",
			mutate:  func(c *Config) { c.Signal.Sessions.Timezone = "Mars/Olympus" },
			wantErr: true,
			errMsg:  "timezone",
		},
		{
			name:    "bad session window",
			mutate:  func(c *Config) { c.Signal.Sessions.Windows = []string{"8-17"} },
			wantErr: true,
			errMsg:  "windows",
		},
		{
			name:    "unknown stop mode",
			mutate:  func(c *Config) { c.Stops.Mode = "Fibonacci" },
			wantErr: true,
			errMsg:  "tp_sl_mode",
		},
		{
			name: "points mode needs distances",
			mutate: func(c *Config) {
				c.Stops.Mode = "Points"
				c.Stops.TPPoints = 0
			},
			wantErr: true,
			errMsg:  "sl_points and tp_points",
		},
		{
			name: "balance percent alias",
			mutate: func(c *Config) {
				c.Stops.Mode = "Balance%"
			},
		},
		{
			name:    "bad retry backoff",
			mutate:  func(c *Config) { c.Execution.RetryBackoff = "soon" },
			wantErr: true,
			errMsg:  "retry_backoff",
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Execution.MaxRetries = -1 },
			wantErr: true,
			errMsg:  "max_retries",
		},
		{
			name:    "unknown journal",
			mutate:  func(c *Config) { c.Journal.Type = "org" },
			wantErr: true,
			errMsg:  "journal.type",
		},
		{
			name: "sqlite without path",
			mutate: func(c *Config) {
				c.Journal = JournalConfig{Type: "sqlite"}
			},
			wantErr: true,
			errMsg:  "db_path",
		},
		{
			name:    "persisted ledger needs sqlite",
			mutate:  func(c *Config) { c.Risk.PersistLedger = true },
			wantErr: true,
			errMsg:  "persist_ledger",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalid)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		ext  string
	}{
		{"json format", ".json"},
		{"yaml format", ".yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Symbol = "EURUSD"
			cfg.Signal.UseRSIFilter = true
			path := filepath.Join(tmpDir, "test"+tt.ext)

			require.NoError(t, cfg.SaveToFile(path))
			_, err := os.Stat(path)
			require.NoError(t, err)

			loaded, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestParsePartialKeepsDefaults(t *testing.T) {
	data := []byte(`
symbol: EURUSD
risk:
  risk_percent: 1
engine:
  shadow_mode: false
`)
	cfg, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", cfg.Symbol)
	assert.Equal(t, 1.0, cfg.Risk.RiskPercent)
	assert.Equal(t, 15, cfg.Risk.MaxTradesPerDay)
	assert.False(t, cfg.Engine.ShadowMode)
	assert.Equal(t, 9, cfg.Indicators.EMAPeriods.Fast)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse([]byte("risk:\n  risk_percent: 50\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Parse([]byte("{not yaml: [ nor json"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestDerivedSettings(t *testing.T) {
	cfg := Default()
	cfg.Signal.Sessions.Timezone = "Europe/London"
	cfg.Risk.CooldownMinutes = 45
	cfg.Execution.RetryBackoff = "250ms"
	cfg.Stops.Mode = "pips"

	s, err := cfg.SignalSettings()
	require.NoError(t, err)
	assert.Equal(t, "Europe/London", s.Sessions.Location.String())
	assert.Equal(t, []signal.Window{signal.MustWindow("08:00-17:00"), signal.MustWindow("13:00-22:00")}, s.Sessions.Windows)
	assert.Len(t, s.Sessions.Avoid, 2)
	assert.Equal(t, 30.0, s.MaxSpreadPoints)

	assert.Equal(t, 45*time.Minute, cfg.Limits().Cooldown)

	ec, err := cfg.ExecutionConfig()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, ec.Backoff)
	assert.Equal(t, 3, ec.MaxRetries)

	sp, err := cfg.StopParams()
	require.NoError(t, err)
	assert.Equal(t, risk.ModePips, sp.Mode)
	assert.Equal(t, 150.0, sp.MinSLPoints)

	p := cfg.IndicatorParams()
	assert.Equal(t, 50, p.EMASlow)

	d, err := cfg.PollInterval()
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)
}

func TestNoWindowsMeansAlwaysOpen(t *testing.T) {
	cfg := Default()
	cfg.Signal.Sessions.Windows = nil
	cfg.Signal.Sessions.Avoid = nil
	s, err := cfg.SignalSettings()
	require.NoError(t, err)
	assert.Empty(t, s.Sessions.Check(time.Date(2025, 1, 1, 3, 0, 0, 0, time.UTC)))
}
