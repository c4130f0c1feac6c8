// Package broker defines the boundary with the Market Data & Execution
// Provider: the types exchanged with a real terminal and the interface the
// facade and monitor consume. The simulated ledger and the live client both
// answer through these shapes.
package broker

import (
	"context"
	"errors"
	"time"

	"mtsim/market"
)

var (
	ErrSymbolNotFound   = errors.New("symbol not found")
	ErrPositionNotFound = errors.New("position not found")
)

// OrderRequest opens a market position. StopLoss/TakeProfit of 0 mean unset.
type OrderRequest struct {
	Symbol     string
	Side       market.Side
	Volume     float64
	StopLoss   float64
	TakeProfit float64
}

// OrderResult reports the fill of an accepted order.
type OrderResult struct {
	Ticket int64   `json:"ticket"`
	Price  float64 `json:"price"`
}

// Position is the outward view of a position, live or simulated. Closed
// positions carry ClosePrice/CloseTime/DurationMinutes.
type Position struct {
	Ticket          int64     `json:"ticket"`
	Symbol          string    `json:"symbol"`
	Side            string    `json:"type"`
	Volume          float64   `json:"volume"`
	OpenPrice       float64   `json:"open_price"`
	CurrentPrice    float64   `json:"current_price"`
	StopLoss        float64   `json:"stop_loss"`
	TakeProfit      float64   `json:"take_profit"`
	Profit          float64   `json:"profit"`
	Degraded        bool      `json:"degraded,omitempty"`
	Comment         string    `json:"comment,omitempty"`
	OpenTime        time.Time `json:"open_time"`
	ClosePrice      float64   `json:"close_price,omitempty"`
	CloseTime       time.Time `json:"close_time,omitzero"`
	DurationMinutes float64   `json:"duration_minutes,omitempty"`
}

// Account is the derived account summary.
type Account struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Profit     float64 `json:"profit"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"free_margin"`
	Leverage   int     `json:"leverage"`
	Currency   string  `json:"currency"`
}

// Provider is the external market-data and execution endpoint. In simulated
// mode only the read-only half (CurrentTick, SymbolParams) is consulted; in
// live mode every call is forwarded verbatim.
type Provider interface {
	CurrentTick(ctx context.Context, symbol string) (market.Tick, error)
	SymbolParams(ctx context.Context, symbol string) (market.SymbolParams, error)

	ExecuteOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	ClosePosition(ctx context.Context, ticket int64) error
	ModifyPosition(ctx context.Context, ticket int64, sl, tp *float64) error
	Positions(ctx context.Context) ([]Position, error)
	ClosedPositions(ctx context.Context, daysBack int) ([]Position, error)
	AccountInfo(ctx context.Context) (Account, error)
}
