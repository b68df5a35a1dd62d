package risk

import "fmt"

// Violation codes reported by Gate.
const (
	CodeMaxTrades = "max_trades_per_day"
	CodeDailyLoss = "max_daily_loss"
	CodeCooldown  = "cooldown"
)

type Violation struct {
	Code string
	Msg  string
}

// Decision is the answer of Gate. A denied decision carries at least one
// violation.
type Decision struct {
	Allowed    bool
	Violations []Violation

	DailyTrades  int
	DailyLossPct float64
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Reason is the code of the first violation, or "" when allowed.
func (d Decision) Reason() string {
	if len(d.Violations) == 0 {
		return ""
	}
	return d.Violations[0].Code
}

func (d Decision) String() string {
	if d.Allowed {
		return "allowed"
	}
	s := "denied:"
	for _, v := range d.Violations {
		s += fmt.Sprintf(" [%s] %s", v.Code, v.Msg)
	}
	return s
}
