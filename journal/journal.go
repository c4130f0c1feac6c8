// Package journal records close events and equity snapshots for later
// review. It is a pure observer of the ledger: nothing is ever read back
// into live state.
package journal

import "time"

// CloseRecord is one position close, manual or automatic.
type CloseRecord struct {
	EventID    string
	Ticket     int64
	Symbol     string
	Side       string
	Volume     float64
	OpenPrice  float64
	ClosePrice float64
	OpenTime   time.Time
	CloseTime  time.Time
	Profit     float64
	Reason     string
	Degraded   bool
}

// EquitySnapshot captures the account at the moment of a close.
type EquitySnapshot struct {
	Time    time.Time
	Balance float64
	Equity  float64
	Profit  float64
}

type Journal interface {
	RecordClose(CloseRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Nop is the journal used when journaling is disabled.
type Nop struct{}

func (Nop) RecordClose(CloseRecord) error     { return nil }
func (Nop) RecordEquity(EquitySnapshot) error { return nil }
func (Nop) Close() error                      { return nil }
