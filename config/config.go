package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/scalper/execution"
	"github.com/rustyeddy/scalper/indicators"
	"github.com/rustyeddy/scalper/market"
	"github.com/rustyeddy/scalper/risk"
	"github.com/rustyeddy/scalper/signal"
)

// ErrInvalid wraps every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Config is the complete engine configuration. A loaded Config is treated
// as immutable; changes go through Engine.Reconfigure with a new value.
type Config struct {
	Symbol     string           `json:"symbol" yaml:"symbol"`
	Account    AccountConfig    `json:"account" yaml:"account"`
	Risk       RiskConfig       `json:"risk" yaml:"risk"`
	Indicators IndicatorConfig  `json:"indicators" yaml:"indicators"`
	Signal     SignalConfig     `json:"signal" yaml:"signal"`
	Stops      StopsConfig      `json:"stops" yaml:"stops"`
	Execution  ExecutionConfig  `json:"execution" yaml:"execution"`
	Engine     EngineConfig     `json:"engine" yaml:"engine"`
	Journal    JournalConfig    `json:"journal" yaml:"journal"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics"`
	Log        LogConfig        `json:"log" yaml:"log"`
}

// AccountConfig seeds the simulated account used by replay and demo runs.
type AccountConfig struct {
	ID       string  `json:"id" yaml:"id"`
	Currency string  `json:"currency" yaml:"currency"`
	Balance  float64 `json:"balance" yaml:"balance"`
}

type RiskConfig struct {
	RiskPercent          float64 `json:"risk_percent" yaml:"risk_percent"`
	MaxDailyLossPercent  float64 `json:"max_daily_loss_percent" yaml:"max_daily_loss_percent"`
	MaxTradesPerDay      int     `json:"max_trades_per_day" yaml:"max_trades_per_day"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses" yaml:"max_consecutive_losses"`
	CooldownMinutes      int     `json:"cooldown_minutes" yaml:"cooldown_minutes"`
	// PersistLedger keeps the daily ledger in the sqlite journal so a
	// restart mid-day does not reset the counters.
	PersistLedger bool `json:"persist_ledger,omitempty" yaml:"persist_ledger,omitempty"`
}

type EMAPeriods struct {
	Fast   int `json:"fast" yaml:"fast"`
	Medium int `json:"medium" yaml:"medium"`
	Slow   int `json:"slow" yaml:"slow"`
}

type IndicatorConfig struct {
	EMAPeriods EMAPeriods `json:"ema_periods" yaml:"ema_periods"`
	RSIPeriod  int        `json:"rsi_period" yaml:"rsi_period"`
	ATRPeriod  int        `json:"atr_period" yaml:"atr_period"`
	BarWindow  int        `json:"bar_window" yaml:"bar_window"`
}

type SessionConfig struct {
	Timezone string   `json:"timezone" yaml:"timezone"`
	Windows  []string `json:"windows" yaml:"windows"` // "HH:MM-HH:MM"
	Avoid    []string `json:"avoid,omitempty" yaml:"avoid,omitempty"`
}

type SignalConfig struct {
	MaxSpreadPoints float64       `json:"max_spread_points" yaml:"max_spread_points"`
	UseRSIFilter    bool          `json:"use_rsi_filter" yaml:"use_rsi_filter"`
	Sessions        SessionConfig `json:"trading_sessions" yaml:"trading_sessions"`
}

type StopsConfig struct {
	Mode          string  `json:"tp_sl_mode" yaml:"tp_sl_mode"`
	MinSLPoints   float64 `json:"min_sl_points" yaml:"min_sl_points"`
	RiskMultiple  float64 `json:"risk_multiple" yaml:"risk_multiple"`
	ATRMultiplier float64 `json:"atr_multiplier" yaml:"atr_multiplier"`
	SLPoints      float64 `json:"sl_points" yaml:"sl_points"`
	TPPoints      float64 `json:"tp_points" yaml:"tp_points"`
	SLPips        float64 `json:"sl_pips" yaml:"sl_pips"`
	TPPips        float64 `json:"tp_pips" yaml:"tp_pips"`
	SLPercent     float64 `json:"sl_percent" yaml:"sl_percent"`
	TPPercent     float64 `json:"tp_percent" yaml:"tp_percent"`
}

type ExecutionConfig struct {
	DeviationPoints  int    `json:"deviation_points" yaml:"deviation_points"`
	DynamicDeviation bool   `json:"dynamic_deviation" yaml:"dynamic_deviation"`
	MaxRetries       int    `json:"max_retries" yaml:"max_retries"`
	RetryBackoff     string `json:"retry_backoff" yaml:"retry_backoff"` // e.g. "100ms"
}

type EngineConfig struct {
	ShadowMode   bool   `json:"shadow_mode" yaml:"shadow_mode"`
	QueueSize    int    `json:"queue_size,omitempty" yaml:"queue_size,omitempty"`
	PollInterval string `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type          string `json:"type" yaml:"type"` // "csv", "sqlite" or "none"
	DecisionsFile string `json:"decisions_file,omitempty" yaml:"decisions_file,omitempty"`
	OrdersFile    string `json:"orders_file,omitempty" yaml:"orders_file,omitempty"`
	DBPath        string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type MetricsConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

type LogConfig struct {
	Level   string `json:"level" yaml:"level"`
	Console bool   `json:"console,omitempty" yaml:"console,omitempty"`
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON)
// on top of Default, so omitted keys keep their default values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML or JSON bytes over the defaults and validates them.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", jerr)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks if the configuration is valid. Every failure wraps
// ErrInvalid.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return invalid("symbol is required")
	}
	if c.Account.Currency == "" {
		return invalid("account.currency is required")
	}
	if c.Account.Balance <= 0 {
		return invalid("account.balance must be positive")
	}

	if c.Risk.RiskPercent < 0.1 || c.Risk.RiskPercent > 10 {
		return invalid("risk.risk_percent must be between 0.1 and 10, got %g", c.Risk.RiskPercent)
	}
	if c.Risk.CooldownMinutes < 0 {
		return invalid("risk.cooldown_minutes must not be negative")
	}
	if err := c.Limits().Validate(); err != nil {
		return invalid("risk: %v", err)
	}
	if c.Risk.PersistLedger && c.Journal.Type != "sqlite" {
		return invalid("risk.persist_ledger requires journal.type sqlite")
	}

	p := c.IndicatorParams()
	if err := p.Validate(); err != nil {
		return invalid("indicators: %v", err)
	}
	if c.Indicators.BarWindow < p.Warmup() {
		return invalid("indicators.bar_window %d is shorter than the warm-up of %d bars",
			c.Indicators.BarWindow, p.Warmup())
	}

	if c.Signal.MaxSpreadPoints <= 0 {
		return invalid("signal.max_spread_points must be positive")
	}
	if _, err := c.SignalSettings(); err != nil {
		return err
	}

	sp, err := c.StopParams()
	if err != nil {
		return err
	}
	if sp.MinSLPoints < 0 {
		return invalid("stops.min_sl_points must not be negative")
	}
	if sp.RiskMultiple <= 0 {
		return invalid("stops.risk_multiple must be positive")
	}
	switch sp.Mode {
	case risk.ModeATR:
		if sp.ATRMultiplier <= 0 {
			return invalid("stops.atr_multiplier must be positive")
		}
	case risk.ModePoints:
		if sp.SLPoints <= 0 || sp.TPPoints <= 0 {
			return invalid("stops.sl_points and tp_points must be positive")
		}
	case risk.ModePips:
		if sp.SLPips <= 0 || sp.TPPips <= 0 {
			return invalid("stops.sl_pips and tp_pips must be positive")
		}
	case risk.ModeBalancePercent:
		if sp.SLPercent <= 0 || sp.TPPercent <= 0 {
			return invalid("stops.sl_percent and tp_percent must be positive")
		}
	}

	if c.Execution.MaxRetries < 0 {
		return invalid("execution.max_retries must not be negative")
	}
	if c.Execution.DeviationPoints < 0 {
		return invalid("execution.deviation_points must not be negative")
	}
	if _, err := c.ExecutionConfig(); err != nil {
		return err
	}

	if c.Engine.QueueSize < 0 {
		return invalid("engine.queue_size must not be negative")
	}
	if _, err := c.PollInterval(); err != nil {
		return err
	}

	switch c.Journal.Type {
	case "none", "":
	case "csv":
		if c.Journal.DecisionsFile == "" || c.Journal.OrdersFile == "" {
			return invalid("journal decisions_file and orders_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return invalid("journal db_path required for SQLite type")
		}
	default:
		return invalid("journal.type must be 'csv', 'sqlite' or 'none'")
	}
	return nil
}

// Location loads the trading session timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := c.Signal.Sessions.Timezone
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, invalid("signal.trading_sessions.timezone %q: %v", tz, err)
	}
	return loc, nil
}

// IndicatorParams maps the indicator section. The ATR floor is left at its
// default; the engine sets it per symbol from the instrument tick size.
func (c *Config) IndicatorParams() indicators.Params {
	return indicators.Params{
		EMAFast:   c.Indicators.EMAPeriods.Fast,
		EMAMedium: c.Indicators.EMAPeriods.Medium,
		EMASlow:   c.Indicators.EMAPeriods.Slow,
		RSIPeriod: c.Indicators.RSIPeriod,
		ATRPeriod: c.Indicators.ATRPeriod,
		ATRFloor:  indicators.DefaultATRFloor,
	}
}

func (c *Config) SignalSettings() (signal.Settings, error) {
	s := signal.DefaultSettings()
	s.MaxSpreadPoints = c.Signal.MaxSpreadPoints
	s.UseRSIFilter = c.Signal.UseRSIFilter

	loc, err := c.Location()
	if err != nil {
		return s, err
	}
	s.Sessions = signal.Sessions{Location: loc}
	for _, w := range c.Signal.Sessions.Windows {
		win, err := signal.ParseWindow(w)
		if err != nil {
			return s, invalid("signal.trading_sessions.windows: %v", err)
		}
		s.Sessions.Windows = append(s.Sessions.Windows, win)
	}
	for _, w := range c.Signal.Sessions.Avoid {
		win, err := signal.ParseWindow(w)
		if err != nil {
			return s, invalid("signal.trading_sessions.avoid: %v", err)
		}
		s.Sessions.Avoid = append(s.Sessions.Avoid, win)
	}
	return s, nil
}

func (c *Config) StopParams() (risk.StopParams, error) {
	mode, err := risk.ParseMode(c.Stops.Mode)
	if err != nil {
		return risk.StopParams{}, invalid("stops.tp_sl_mode: %v", err)
	}
	return risk.StopParams{
		Mode:          mode,
		MinSLPoints:   c.Stops.MinSLPoints,
		ATRMultiplier: c.Stops.ATRMultiplier,
		RiskMultiple:  c.Stops.RiskMultiple,
		SLPoints:      c.Stops.SLPoints,
		TPPoints:      c.Stops.TPPoints,
		SLPips:        c.Stops.SLPips,
		TPPips:        c.Stops.TPPips,
		SLPercent:     c.Stops.SLPercent,
		TPPercent:     c.Stops.TPPercent,
	}, nil
}

func (c *Config) Limits() risk.Limits {
	return risk.Limits{
		MaxTradesPerDay:      c.Risk.MaxTradesPerDay,
		MaxDailyLossPercent:  c.Risk.MaxDailyLossPercent,
		MaxConsecutiveLosses: c.Risk.MaxConsecutiveLosses,
		Cooldown:             time.Duration(c.Risk.CooldownMinutes) * time.Minute,
	}
}

func (c *Config) ExecutionConfig() (execution.Config, error) {
	backoff, err := parseDuration(c.Execution.RetryBackoff)
	if err != nil {
		return execution.Config{}, invalid("execution.retry_backoff: %v", err)
	}
	return execution.Config{
		MaxRetries:       c.Execution.MaxRetries,
		Backoff:          backoff,
		DeviationPoints:  c.Execution.DeviationPoints,
		DynamicDeviation: c.Execution.DynamicDeviation,
	}, nil
}

// PollInterval is how often the poller asks the gateway for fresh data.
// It defaults to one second.
func (c *Config) PollInterval() (time.Duration, error) {
	if c.Engine.PollInterval == "" {
		return time.Second, nil
	}
	d, err := parseDuration(c.Engine.PollInterval)
	if err != nil {
		return 0, invalid("engine.poll_interval: %v", err)
	}
	if d <= 0 {
		return 0, invalid("engine.poll_interval must be positive")
	}
	return d, nil
}

// Instrument returns the built-in spec for the configured symbol, if any.
func (c *Config) Instrument() (market.InstrumentSpec, bool) {
	return market.LookupInstrument(c.Symbol)
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

// Default returns a configuration with sensible defaults. It starts in
// shadow mode.
func Default() *Config {
	return &Config{
		Symbol: "XAUUSD",
		Account: AccountConfig{
			ID:       "SIM-001",
			Currency: "USD",
			Balance:  10000,
		},
		Risk: RiskConfig{
			RiskPercent:          0.5,
			MaxDailyLossPercent:  2.0,
			MaxTradesPerDay:      15,
			MaxConsecutiveLosses: 3,
			CooldownMinutes:      30,
		},
		Indicators: IndicatorConfig{
			EMAPeriods: EMAPeriods{Fast: 9, Medium: 21, Slow: 50},
			RSIPeriod:  14,
			ATRPeriod:  14,
			BarWindow:  indicators.DefaultWindow,
		},
		Signal: SignalConfig{
			MaxSpreadPoints: 30,
			Sessions: SessionConfig{
				Timezone: "UTC",
				Windows:  []string{"08:00-17:00", "13:00-22:00"},
				Avoid:    []string{"22:00-01:00", "17:00-18:00"},
			},
		},
		Stops: StopsConfig{
			Mode:          string(risk.ModeATR),
			MinSLPoints:   150,
			RiskMultiple:  2.0,
			ATRMultiplier: 2.0,
			SLPoints:      100,
			TPPoints:      200,
			SLPips:        10,
			TPPips:        20,
			SLPercent:     0.5,
			TPPercent:     1.0,
		},
		Execution: ExecutionConfig{
			DeviationPoints:  10,
			DynamicDeviation: true,
			MaxRetries:       3,
			RetryBackoff:     "100ms",
		},
		Engine: EngineConfig{
			ShadowMode:   true,
			QueueSize:    64,
			PollInterval: "1s",
		},
		Journal: JournalConfig{
			Type:          "csv",
			DecisionsFile: "./decisions.csv",
			OrdersFile:    "./orders.csv",
		},
		Log: LogConfig{Level: "info"},
	}
}
