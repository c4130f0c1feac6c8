package sim

import (
	"time"

	"mtsim/market"
)

// Position is one simulated position across its whole lifetime. A position
// lives in the ledger's open map until Close moves it, exactly once, into
// the closed history; after that it is never mutated again.
type Position struct {
	Ticket       int64
	Symbol       string
	Side         market.Side
	Volume       float64
	OpenPrice    float64
	CurrentPrice float64

	// StopLoss and TakeProfit of 0 mean "not set".
	StopLoss   float64
	TakeProfit float64

	// Profit is derived; recomputed on every price update. Degraded marks a
	// profit computed via the contract-size fallback rather than tick
	// economics.
	Profit   float64
	Degraded bool

	Comment  string
	OpenTime time.Time

	// Set by Close.
	ClosePrice float64
	CloseTime  time.Time
}

func (p Position) IsClosed() bool {
	return !p.CloseTime.IsZero()
}

// Duration is the time the position was held. Zero until closed.
func (p Position) Duration() time.Duration {
	if !p.IsClosed() {
		return 0
	}
	return p.CloseTime.Sub(p.OpenTime)
}
