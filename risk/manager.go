package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/scalper/broker"
	"github.com/rustyeddy/scalper/signal"
)

const dateLayout = "2006-01-02"

// Ledger is the daily risk state. Only Manager mutates it.
type Ledger struct {
	Date              string    `json:"date"`
	DailyTradeCount   int       `json:"daily_trade_count"`
	DailyPnL          float64   `json:"daily_pnl"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
	CooldownUntil     time.Time `json:"cooldown_until"`
	DayStartBalance   float64   `json:"day_start_balance"`
}

// Outcome is the terminal result of one execution, reported once.
type Outcome struct {
	Symbol   string
	Accepted bool
	// Aborted executions were cut short by shutdown before the broker
	// answered. They are neither a success nor a loss.
	Aborted bool
	Reason  string
}

// LedgerStore persists the ledger between restarts.
type LedgerStore interface {
	LoadLedger() (Ledger, bool, error)
	SaveLedger(Ledger) error
}

type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLocation sets the timezone whose calendar day bounds the ledger.
func WithLocation(loc *time.Location) Option {
	return func(m *Manager) {
		if loc != nil {
			m.loc = loc
		}
	}
}

func WithStore(s LedgerStore) Option {
	return func(m *Manager) { m.store = s }
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// Manager owns the ledger. Every read-modify-write happens under one mutex
// so concurrent symbols share the limits without races.
type Manager struct {
	mu     sync.Mutex
	limits Limits
	ledger Ledger
	loc    *time.Location
	now    func() time.Time
	store  LedgerStore
	log    zerolog.Logger
}

func NewManager(limits Limits, opts ...Option) *Manager {
	m := &Manager{
		limits: limits,
		loc:    time.UTC,
		now:    time.Now,
		log:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Restore loads the stored ledger if it belongs to today.
func (m *Manager) Restore() error {
	if m.store == nil {
		return nil
	}
	l, ok, err := m.store.LoadLedger()
	if err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ok && l.Date == m.today() {
		m.ledger = l
		m.log.Info().Str("date", l.Date).Int("trades", l.DailyTradeCount).Msg("risk ledger restored")
	}
	return nil
}

func (m *Manager) SetLimits(l Limits) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits = l
}

// Ledger returns a copy of the current ledger after applying any pending
// daily reset.
func (m *Manager) Ledger() Ledger {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rollover() {
		m.persist()
	}
	return m.ledger
}

// Gate decides whether sig may be executed given the account state.
func (m *Manager) Gate(sig signal.Signal, acct broker.Account) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := m.rollover()
	if m.ledger.DayStartBalance <= 0 && acct.Balance > 0 {
		m.ledger.DayStartBalance = acct.Balance
		changed = true
	}
	if changed {
		m.persist()
	}

	now := m.now()
	l := m.ledger
	d := Decision{Allowed: true, DailyTrades: l.DailyTradeCount}

	if l.DailyTradeCount >= m.limits.MaxTradesPerDay {
		d.add(CodeMaxTrades, fmt.Sprintf("daily trades %d >= max %d", l.DailyTradeCount, m.limits.MaxTradesPerDay))
	}

	if l.DayStartBalance > 0 {
		d.DailyLossPct = (l.DayStartBalance - acct.Equity) / l.DayStartBalance * 100
		if d.DailyLossPct >= m.limits.MaxDailyLossPercent {
			d.add(CodeDailyLoss, fmt.Sprintf("daily loss %.2f%% >= max %.2f%%", d.DailyLossPct, m.limits.MaxDailyLossPercent))
		}
	}

	if now.Before(l.CooldownUntil) {
		d.add(CodeCooldown, fmt.Sprintf("cooling down until %s", l.CooldownUntil.Format(time.RFC3339)))
	}

	if !d.Allowed {
		m.log.Debug().Str("symbol", sig.Symbol).Str("reason", d.Reason()).Msg("risk gate denied")
	}
	return d
}

// Update applies the outcome of one execution.
func (m *Manager) Update(o Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := m.rollover()
	switch {
	case o.Aborted:
	case o.Accepted:
		m.ledger.DailyTradeCount++
		m.ledger.ConsecutiveLosses = 0
		changed = true
	default:
		m.ledger.ConsecutiveLosses++
		if m.ledger.ConsecutiveLosses >= m.limits.MaxConsecutiveLosses {
			m.ledger.CooldownUntil = m.now().Add(m.limits.Cooldown)
			m.log.Warn().
				Str("symbol", o.Symbol).
				Int("losses", m.ledger.ConsecutiveLosses).
				Time("until", m.ledger.CooldownUntil).
				Msg("consecutive loss limit hit, cooling down")
		}
		changed = true
	}
	if changed {
		m.persist()
	}
}

// RecordPnL adds realized profit or loss to the day.
func (m *Manager) RecordPnL(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()
	m.ledger.DailyPnL += pnl
	m.persist()
}

func (m *Manager) today() string {
	return m.now().In(m.loc).Format(dateLayout)
}

// rollover resets the ledger on the first call of a new local day.
func (m *Manager) rollover() bool {
	today := m.today()
	if m.ledger.Date == today {
		return false
	}
	if m.ledger.Date != "" {
		m.log.Info().Str("from", m.ledger.Date).Str("to", today).Msg("daily risk counters reset")
	}
	m.ledger = Ledger{Date: today}
	return true
}

func (m *Manager) persist() {
	if m.store == nil {
		return
	}
	if err := m.store.SaveLedger(m.ledger); err != nil {
		m.log.Error().Err(err).Msg("save risk ledger")
	}
}
