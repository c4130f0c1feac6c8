// Package alert delivers fire-and-forget notifications when the monitor
// closes a position. Delivery failures are logged by callers and never
// affect ledger state.
package alert

import (
	"context"

	"mtsim/sim"
)

// Event is one monitor-triggered close.
type Event struct {
	Position sim.Position
	Reason   sim.CloseReason
}

type Alerter interface {
	PositionClosed(ctx context.Context, ev Event) error
}

// Noop is used when no alert channel is configured.
type Noop struct{}

func (Noop) PositionClosed(context.Context, Event) error { return nil }
