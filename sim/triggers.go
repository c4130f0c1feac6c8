package sim

import "mtsim/market"

// CloseReason explains why a position left the open set.
type CloseReason string

const (
	ReasonManual     CloseReason = "Manual"
	ReasonTakeProfit CloseReason = "TakeProfit"
	ReasonStopLoss   CloseReason = "StopLoss"
)

func hitTakeProfit(p *Position) bool {
	if p.TakeProfit <= 0 {
		return false
	}
	if p.Side == market.Buy {
		return p.CurrentPrice >= p.TakeProfit
	}
	return p.CurrentPrice <= p.TakeProfit
}

func hitStopLoss(p *Position) bool {
	if p.StopLoss <= 0 {
		return false
	}
	if p.Side == market.Buy {
		return p.CurrentPrice <= p.StopLoss
	}
	return p.CurrentPrice >= p.StopLoss
}

// autoCloseReason evaluates the threshold state machine for one position at
// its current price. Take-profit is checked first: when inconsistent SL/TP
// levels make both fire in the same scan, the close is reported as a
// take-profit. That tie-break is deliberate and tested, not incidental.
func autoCloseReason(p *Position) (CloseReason, bool) {
	switch {
	case hitTakeProfit(p):
		return ReasonTakeProfit, true
	case hitStopLoss(p):
		return ReasonStopLoss, true
	}
	return "", false
}
