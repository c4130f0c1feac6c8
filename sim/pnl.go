package sim

import (
	"errors"

	"mtsim/market"
)

var ErrInvalidVolume = errors.New("volume must be positive")

// standardLot is the last-resort contract size when the provider could not
// supply any metadata for a symbol. Correct for standard forex lots, wrong
// for most indices, which is why the result is flagged degraded.
const standardLot = 100_000

// PLResult is a computed profit. Degraded is set when the contract-size
// approximation was used instead of tick economics; callers surface it so a
// mispriced instrument is visible rather than silently wrong.
type PLResult struct {
	Amount   float64
	Degraded bool
}

// PL computes the signed profit of a position leg.
//
// With valid tick parameters: (diff / tickSize) * volume * tickValue, where
// diff is current-open for a buy and open-current for a sell. This holds
// across forex (tickSize ~ 0.00001) and cash indices (tickSize = 1) alike.
// Without them it degrades to diff * volume * contractSize.
func PL(side market.Side, openPrice, currentPrice, volume float64, params market.SymbolParams) (PLResult, error) {
	if volume <= 0 {
		return PLResult{}, ErrInvalidVolume
	}

	diff := currentPrice - openPrice
	if side == market.Sell {
		diff = openPrice - currentPrice
	}

	if params.Tickable() {
		return PLResult{Amount: (diff / params.TickSize) * volume * params.TickValue}, nil
	}

	contract := params.ContractSize
	if contract <= 0 {
		contract = standardLot
	}
	return PLResult{Amount: diff * volume * contract, Degraded: true}, nil
}
