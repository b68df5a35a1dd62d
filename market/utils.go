package market

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is a bar period in seconds.
type Timeframe int32

const (
	M1 Timeframe = 60
	M5 Timeframe = 300
)

func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf) * time.Second
}

func (tf Timeframe) String() string {
	s, err := SecondsToTFString(int32(tf))
	if err != nil {
		return fmt.Sprintf("TF(%d)", int32(tf))
	}
	return s
}

// Truncate floors t to the start of the bar containing it.
func (tf Timeframe) Truncate(t time.Time) time.Time {
	return t.Truncate(tf.Duration())
}

// ParseTimeframe accepts M1, M5, M15, H1 and similar.
func ParseTimeframe(s string) (Timeframe, error) {
	sec, err := TFStringToSeconds(s)
	if err != nil {
		return 0, err
	}
	return Timeframe(sec), nil
}

func SecondsToTFString(sec int32) (string, error) {
	if sec <= 0 {
		return "", fmt.Errorf("invalid timeframe seconds: %d", sec)
	}
	if sec < 3600 && sec%60 == 0 {
		return fmt.Sprintf("M%d", sec/60), nil
	}
	if sec%3600 == 0 && sec < 86400 {
		return fmt.Sprintf("H%d", sec/3600), nil
	}
	if sec == 86400 {
		return "D1", nil
	}
	return "", fmt.Errorf("unsupported timeframe seconds: %d", sec)
}

func TFStringToSeconds(tf string) (int32, error) {
	tf = strings.ToUpper(strings.TrimSpace(tf))
	if len(tf) < 2 {
		return 0, fmt.Errorf("invalid timeframe: %q", tf)
	}
	var n int32
	if _, err := fmt.Sscanf(tf[1:], "%d", &n); err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid timeframe: %q", tf)
	}
	switch tf[0] {
	case 'M':
		return n * 60, nil
	case 'H':
		return n * 3600, nil
	case 'D':
		return n * 86400, nil
	}
	return 0, fmt.Errorf("invalid timeframe: %q", tf)
}
