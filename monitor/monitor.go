// Package monitor runs the periodic auto-close scan: refresh prices for
// every symbol with open positions, let the ledger evaluate TP/SL
// thresholds, and emit one alert per close. Scan failures never reach
// facade callers; the loop logs, backs off, and tries again.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mtsim/alert"
	"mtsim/market"
	"mtsim/sim"
)

const (
	// DefaultInterval matches the desktop app's 5-second position scan.
	DefaultInterval = 5 * time.Second

	// backoffCap limits how far the interval stretches after repeated
	// scan failures: base, 2x, 4x, 8x.
	backoffCap = 8
)

// TickSource is the read-only slice of the provider the monitor needs.
type TickSource interface {
	CurrentTick(ctx context.Context, symbol string) (market.Tick, error)
	SymbolParams(ctx context.Context, symbol string) (market.SymbolParams, error)
}

// Monitor owns the scan loop. It mutates the ledger only through its public
// operations, so client requests and scans serialize on the ledger's lock.
type Monitor struct {
	ledger   *sim.Ledger
	ticks    TickSource
	alerter  alert.Alerter
	interval time.Duration

	// last-good quotes; lets a scan proceed on a cached price when the
	// provider hiccups for one symbol.
	prices *market.TickStore

	log *zap.SugaredLogger
}

func New(ledger *sim.Ledger, ticks TickSource, alerter alert.Alerter, interval time.Duration, log *zap.SugaredLogger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if alerter == nil {
		alerter = alert.Noop{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Monitor{
		ledger:   ledger,
		ticks:    ticks,
		alerter:  alerter,
		interval: interval,
		prices:   market.NewTickStore(),
		log:      log.With("component", "monitor"),
	}
}

// Run scans on a fixed interval until ctx is cancelled. After a failed scan
// the interval doubles (capped at 8x) instead of busy-looping on a
// persistent failure; one clean scan restores it.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Infow("monitor started", "interval", m.interval)

	interval := m.interval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("monitor stopped")
			return ctx.Err()

		case <-timer.C:
			if err := m.Scan(ctx); err != nil {
				interval = NextInterval(interval, m.interval)
				m.log.Warnw("scan failed, backing off", "error", err, "next_interval", interval)
			} else {
				interval = m.interval
			}
			timer.Reset(interval)
		}
	}
}

// NextInterval doubles the current interval up to backoffCap times the base.
func NextInterval(current, base time.Duration) time.Duration {
	next := current * 2
	if max := base * backoffCap; next > max {
		next = max
	}
	return next
}

// Scan performs one pass: update prices for every open symbol, evaluate
// thresholds, alert on each auto-close. A symbol whose quote cannot be
// resolved at all is skipped and reported in the returned error; the rest
// of the scan still runs.
func (m *Monitor) Scan(ctx context.Context) error {
	symbols := m.ledger.OpenSymbols()
	if len(symbols) == 0 {
		return nil
	}

	var errs []error
	params := make(map[string]market.SymbolParams, len(symbols))

	for _, symbol := range symbols {
		tick, err := m.ticks.CurrentTick(ctx, symbol)
		if err != nil {
			cached, cacheErr := m.prices.Get(symbol)
			if cacheErr != nil {
				errs = append(errs, fmt.Errorf("tick %s: %w", symbol, err))
				continue
			}
			m.log.Debugw("using cached tick", "symbol", symbol, "error", err)
			tick = cached
		} else {
			m.prices.Set(tick)
		}

		sp, err := m.ticks.SymbolParams(ctx, symbol)
		if err != nil {
			errs = append(errs, fmt.Errorf("params %s: %w", symbol, err))
			continue
		}
		params[symbol] = sp

		if err := m.ledger.UpdatePrice(symbol, tick.Bid, sp); err != nil {
			errs = append(errs, fmt.Errorf("update %s: %w", symbol, err))
		}
	}

	for _, hit := range m.ledger.CheckAutoClose(params) {
		ev := alert.Event{Position: hit.Position, Reason: hit.Reason}
		if err := m.alerter.PositionClosed(ctx, ev); err != nil {
			m.log.Warnw("alert delivery failed",
				"ticket", hit.Position.Ticket, "reason", hit.Reason, "error", err)
		}
	}

	return errors.Join(errs...)
}
