package risk

import (
	"fmt"
	"time"
)

// Limits are the account-wide circuit breakers enforced by Manager.
type Limits struct {
	MaxTradesPerDay      int
	MaxDailyLossPercent  float64
	MaxConsecutiveLosses int
	Cooldown             time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		MaxTradesPerDay:      15,
		MaxDailyLossPercent:  2.0,
		MaxConsecutiveLosses: 3,
		Cooldown:             30 * time.Minute,
	}
}

func (l Limits) Validate() error {
	if l.MaxTradesPerDay <= 0 {
		return fmt.Errorf("max_trades_per_day must be positive, got %d", l.MaxTradesPerDay)
	}
	if l.MaxDailyLossPercent <= 0 || l.MaxDailyLossPercent > 100 {
		return fmt.Errorf("max_daily_loss_percent must be in (0,100], got %g", l.MaxDailyLossPercent)
	}
	if l.MaxConsecutiveLosses <= 0 {
		return fmt.Errorf("max_consecutive_losses must be positive, got %d", l.MaxConsecutiveLosses)
	}
	if l.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative, got %s", l.Cooldown)
	}
	return nil
}
