package market

import "strings"

// SymbolParams are the tick economics of an instrument, as reported by the
// terminal: the minimum price increment, the monetary value of one such
// increment per lot, and the contract size used by the fallback P&L formula.
type SymbolParams struct {
	TickSize     float64
	TickValue    float64
	ContractSize float64
}

// Tickable reports whether the exact tick-based P&L formula can be used.
// When false, callers fall back to the contract-size approximation and must
// flag the result as degraded.
func (p SymbolParams) Tickable() bool {
	return p.TickSize > 0 && p.TickValue > 0
}

// venueSuffixes are broker-specific decorations seen on symbol names
// (e.g. "US30.cash", "EURUSD.r"). Stripping one is the last lookup attempt
// before giving up on terminal metadata.
var venueSuffixes = []string{
	".cash", ".spot", ".pro", ".ecn", ".raw", ".r", ".m", ".i", "_i",
}

// StripVenueSuffix removes a recognized venue suffix, if present.
func StripVenueSuffix(symbol string) (string, bool) {
	lower := strings.ToLower(symbol)
	for _, suf := range venueSuffixes {
		if strings.HasSuffix(lower, suf) && len(symbol) > len(suf) {
			return symbol[:len(symbol)-len(suf)], true
		}
	}
	return symbol, false
}

// Candidates returns the lookup sequence for terminal symbol metadata:
// the exact name, the uppercased name, then the name with a recognized
// venue suffix stripped. Duplicates are elided, order is preserved.
func Candidates(symbol string) []string {
	out := make([]string, 0, 4)
	seen := make(map[string]bool, 4)
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	add(symbol)
	add(strings.ToUpper(symbol))
	if stripped, ok := StripVenueSuffix(symbol); ok {
		add(stripped)
		add(strings.ToUpper(stripped))
	}
	return out
}

// indexSymbols are cash-index instruments commonly quoted with whole-point
// ticks. Terminal metadata is preferred; these defaults only classify the
// symbol when every lookup failed.
var indexSymbols = map[string]bool{
	"US30": true, "DJ30": true, "US500": true, "SPX500": true,
	"NAS100": true, "USTEC": true, "US100": true,
	"GER40": true, "DAX40": true, "DE40": true,
	"UK100": true, "FRA40": true, "EU50": true,
	"JPN225": true, "JP225": true, "AUS200": true, "HK50": true,
}

// DefaultParams returns instrument-class defaults for a symbol whose
// metadata the provider could not supply. Forex pairs get standard-lot tick
// economics; metals get their conventional contract; indices deliberately
// return no tick parameters so that P&L takes the degraded contract-size
// path instead of pretending to exact accuracy.
func DefaultParams(symbol string) SymbolParams {
	base, _ := StripVenueSuffix(symbol)
	base = strings.ToUpper(base)

	switch {
	case indexSymbols[base]:
		return SymbolParams{ContractSize: 1}
	case strings.HasPrefix(base, "XAU"), strings.HasPrefix(base, "XAG"):
		return SymbolParams{TickSize: 0.01, TickValue: 1, ContractSize: 100}
	case strings.HasSuffix(base, "JPY"):
		return SymbolParams{TickSize: 0.001, TickValue: 1, ContractSize: 100_000}
	default:
		// Standard forex lot.
		return SymbolParams{TickSize: 0.00001, TickValue: 1, ContractSize: 100_000}
	}
}
