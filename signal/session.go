package signal

import (
	"fmt"
	"strings"
	"time"
)

// Window is a daily time-of-day range, inclusive at both ends. A window
// whose end is before its start wraps past midnight.
type Window struct {
	Start time.Duration
	End   time.Duration
}

// ParseWindow parses "HH:MM-HH:MM".
func ParseWindow(s string) (Window, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return Window{}, fmt.Errorf("invalid session window %q", s)
	}
	start, err := parseClock(parts[0])
	if err != nil {
		return Window{}, fmt.Errorf("invalid session window %q: %w", s, err)
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return Window{}, fmt.Errorf("invalid session window %q: %w", s, err)
	}
	return Window{Start: start, End: end}, nil
}

func MustWindow(s string) Window {
	w, err := ParseWindow(s)
	if err != nil {
		panic(err)
	}
	return w
}

func parseClock(s string) (time.Duration, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock out of range: %02d:%02d", h, m)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

func (w Window) String() string {
	return fmt.Sprintf("%s-%s", clock(w.Start), clock(w.End))
}

func clock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}

// Contains reports whether the time of day tod falls inside w.
func (w Window) Contains(tod time.Duration) bool {
	if w.Start <= w.End {
		return tod >= w.Start && tod <= w.End
	}
	return tod >= w.Start || tod <= w.End
}

// Sessions decides when trading is allowed. Times are read in Location.
// No windows means the market is always in session.
type Sessions struct {
	Location *time.Location
	Windows  []Window
	Avoid    []Window
}

// DefaultSessions is London 08:00-17:00 and New York 13:00-22:00 GMT with
// the Asian open and the London close treated as low-liquidity periods.
func DefaultSessions() Sessions {
	return Sessions{
		Location: time.UTC,
		Windows:  []Window{MustWindow("08:00-17:00"), MustWindow("13:00-22:00")},
		Avoid:    []Window{MustWindow("22:00-01:00"), MustWindow("17:00-18:00")},
	}
}

// Check returns "" when t is tradeable, otherwise the reason code.
func (s Sessions) Check(t time.Time) string {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	tod := time.Duration(lt.Hour())*time.Hour + time.Duration(lt.Minute())*time.Minute

	if len(s.Windows) > 0 {
		in := false
		for _, w := range s.Windows {
			if w.Contains(tod) {
				in = true
				break
			}
		}
		if !in {
			return ReasonOutsideSession
		}
	}
	for _, w := range s.Avoid {
		if w.Contains(tod) {
			return ReasonAvoidPeriod
		}
	}
	return ""
}
