package market

import "fmt"

type Side int

const (
	None Side = iota
	Buy
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "NONE"
	}
}

// Opposite returns the mirrored side. None stays None.
func (s Side) Opposite() Side {
	switch s {
	case Buy:
		return Sell
	case Sell:
		return Buy
	default:
		return None
	}
}

func ParseSide(s string) (Side, error) {
	switch s {
	case "BUY", "buy", "Buy":
		return Buy, nil
	case "SELL", "sell", "Sell":
		return Sell, nil
	case "", "NONE", "none":
		return None, nil
	}
	return None, fmt.Errorf("unknown side %q", s)
}
