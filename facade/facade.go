// Package facade is the single entry point for trading requests. Every
// operation routes to the live bridge or to the in-process ledger based on
// the current mode; callers never see which side handled it.
package facade

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"mtsim/broker"
	"mtsim/market"
	"mtsim/sim"
)

const hoursPerDay = 24

// ModeStore persists the live/simulated flag across restarts.
type ModeStore interface {
	SaveLiveMode(live bool) error
}

// Facade routes every trading operation by mode. Market data always comes
// from the provider; only execution and account state switch sides.
type Facade struct {
	mu   sync.RWMutex
	live bool

	ledger   *sim.Ledger
	provider broker.Provider
	modes    ModeStore
	log      *zap.SugaredLogger
}

func New(ledger *sim.Ledger, provider broker.Provider, modes ModeStore, live bool, log *zap.SugaredLogger) *Facade {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Facade{
		live:     live,
		ledger:   ledger,
		provider: provider,
		modes:    modes,
		log:      log.With("component", "facade"),
	}
}

// LiveMode reports whether orders currently route to the bridge.
func (f *Facade) LiveMode() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.live
}

// SetLiveMode switches routing and persists the choice so a restart comes
// back in the same mode.
func (f *Facade) SetLiveMode(live bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.live == live {
		return nil
	}
	f.live = live

	if f.modes != nil {
		if err := f.modes.SaveLiveMode(live); err != nil {
			return fmt.Errorf("persist live mode: %w", err)
		}
	}
	f.log.Infow("execution mode changed", "live", live)
	return nil
}

// Open places an order. Simulated fills use the live quote: BUY at ask,
// SELL at bid, same as the terminal would fill.
func (f *Facade) Open(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	if f.LiveMode() {
		return f.provider.ExecuteOrder(ctx, req)
	}

	tick, err := f.provider.CurrentTick(ctx, req.Symbol)
	if err != nil {
		return broker.OrderResult{}, fmt.Errorf("open %s: %w", req.Symbol, err)
	}

	price := tick.Ask
	if req.Side == market.Sell {
		price = tick.Bid
	}

	ticket, err := f.ledger.Open(req.Symbol, req.Side, req.Volume, price, req.StopLoss, req.TakeProfit)
	if err != nil {
		return broker.OrderResult{}, err
	}
	return broker.OrderResult{Ticket: ticket, Price: price}, nil
}

// Close closes one position. Simulated closes fill at the opposite side of
// the spread from the open: BUY closes at bid, SELL at ask.
func (f *Facade) Close(ctx context.Context, ticket int64) error {
	if f.LiveMode() {
		return f.provider.ClosePosition(ctx, ticket)
	}

	pos, err := f.ledger.Position(ticket)
	if err != nil {
		return err
	}

	tick, err := f.provider.CurrentTick(ctx, pos.Symbol)
	if err != nil {
		return fmt.Errorf("close #%d: %w", ticket, err)
	}
	params, err := f.provider.SymbolParams(ctx, pos.Symbol)
	if err != nil {
		return fmt.Errorf("close #%d: %w", ticket, err)
	}

	price := tick.Bid
	if pos.Side == market.Sell {
		price = tick.Ask
	}

	_, err = f.ledger.Close(ticket, price, params)
	return err
}

// Modify updates SL/TP on one position. A nil pointer keeps the current
// value; a pointer to zero clears the threshold.
func (f *Facade) Modify(ctx context.Context, ticket int64, sl, tp *float64) error {
	if f.LiveMode() {
		return f.provider.ModifyPosition(ctx, ticket, sl, tp)
	}
	return f.ledger.Modify(ticket, sl, tp)
}

// Positions lists currently open positions for the active mode.
func (f *Facade) Positions(ctx context.Context) ([]broker.Position, error) {
	if f.LiveMode() {
		return f.provider.Positions(ctx)
	}

	open := f.ledger.Positions()
	out := make([]broker.Position, 0, len(open))
	for _, p := range open {
		out = append(out, fromSimPosition(p))
	}
	return out, nil
}

// History lists positions closed within the last daysBack days, newest
// first.
func (f *Facade) History(ctx context.Context, daysBack int) ([]broker.Position, error) {
	if f.LiveMode() {
		return f.provider.ClosedPositions(ctx, daysBack)
	}

	closed := f.ledger.History(time.Duration(daysBack) * hoursPerDay * time.Hour)
	out := make([]broker.Position, 0, len(closed))
	for _, p := range closed {
		out = append(out, fromSimPosition(p))
	}
	return out, nil
}

// Account returns the account summary for the active mode.
func (f *Facade) Account(ctx context.Context) (broker.Account, error) {
	if f.LiveMode() {
		return f.provider.AccountInfo(ctx)
	}
	return f.ledger.Summary(), nil
}

// Reset reinitializes the simulated ledger. It always targets the ledger;
// live broker state is never touched.
func (f *Facade) Reset(balance float64) (broker.Account, error) {
	if err := f.ledger.Reset(balance); err != nil {
		return broker.Account{}, err
	}
	return f.ledger.Summary(), nil
}

// MarketData passes the live quote through regardless of mode.
func (f *Facade) MarketData(ctx context.Context, symbol string) (market.Tick, error) {
	return f.provider.CurrentTick(ctx, symbol)
}

// fromSimPosition converts a ledger position to the wire shape.
func fromSimPosition(p sim.Position) broker.Position {
	bp := broker.Position{
		Ticket:       p.Ticket,
		Symbol:       p.Symbol,
		Side:         string(p.Side),
		Volume:       p.Volume,
		OpenPrice:    p.OpenPrice,
		CurrentPrice: p.CurrentPrice,
		StopLoss:     p.StopLoss,
		TakeProfit:   p.TakeProfit,
		Profit:       p.Profit,
		Degraded:     p.Degraded,
		Comment:      p.Comment,
		OpenTime:     p.OpenTime,
		ClosePrice:   p.ClosePrice,
		CloseTime:    p.CloseTime,
	}
	if p.IsClosed() {
		bp.DurationMinutes = p.Duration().Minutes()
	}
	return bp
}
