package domain

// Side indicates whether an order buys or sells.
type Side int8

const (
	Buy Side = iota
	Sell
)

// Sign is +1 for buys and -1 for sells. Holdings change by Sign × quantity
// and cash by -Sign × price × quantity.
func (s Side) Sign() int {
	if s == Buy {
		return 1
	}
	return -1
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// MarshalText lets sides appear as "BUY"/"SELL" in JSON and YAML.
func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
