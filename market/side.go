package market

import "fmt"

// Side is the direction of a position. The string values match the wire
// protocol of the terminal bridge ("BUY"/"SELL").
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ParseSide accepts the bridge's order-type strings, case-insensitively.
func ParseSide(s string) (Side, error) {
	switch s {
	case "BUY", "buy", "Buy":
		return Buy, nil
	case "SELL", "sell", "Sell":
		return Sell, nil
	}
	return "", fmt.Errorf("invalid order side %q", s)
}

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}
