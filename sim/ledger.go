// Package sim owns the simulated position ledger: lifecycle state for open
// and closed positions, ticket allocation, P&L recomputation from ticks,
// TP/SL auto-close evaluation, and account-summary derivation. All mutation
// goes through one mutex over the whole aggregate; the persistence adapter
// is written before any mutating call returns.
package sim

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"mtsim/broker"
	"mtsim/journal"
	"mtsim/market"
	"mtsim/pkg/id"
	"mtsim/store"
)

var ErrPositionNotFound = errors.New("position not found")

// Ticket numbers start high so simulated tickets are never confused with
// tickets issued by a real terminal.
const (
	DefaultTicketBase     = 1_000_000
	DefaultInitialBalance = 10_000
	DefaultLeverage       = 100
	DefaultCurrency       = "USD"
)

const positionComment = "SIMULATOR"

// Config are the ledger's fixed display/allocation parameters. Zero fields
// take the defaults above.
type Config struct {
	TicketBase     int64
	InitialBalance float64
	Leverage       int
	Currency       string
}

func (c Config) withDefaults() Config {
	if c.TicketBase <= 0 {
		c.TicketBase = DefaultTicketBase
	}
	if c.InitialBalance <= 0 {
		c.InitialBalance = DefaultInitialBalance
	}
	if c.Leverage <= 0 {
		c.Leverage = DefaultLeverage
	}
	if c.Currency == "" {
		c.Currency = DefaultCurrency
	}
	return c
}

// Persister receives the whole ledger aggregate after every mutation.
type Persister interface {
	SaveLedger(store.LedgerState) error
}

// AutoClosed reports one position closed by CheckAutoClose.
type AutoClosed struct {
	Position Position
	Reason   CloseReason
}

// Ledger is the single owner of simulated position state.
type Ledger struct {
	mu             sync.Mutex
	open           map[int64]*Position
	closed         []Position
	nextTicket     int64
	initialBalance float64

	cfg     Config
	store   Persister
	journal journal.Journal
	log     *zap.SugaredLogger
}

func NewLedger(p Persister, j journal.Journal, log *zap.SugaredLogger, cfg Config) *Ledger {
	cfg = cfg.withDefaults()
	if j == nil {
		j = journal.Nop{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Ledger{
		open:           make(map[int64]*Position),
		nextTicket:     cfg.TicketBase,
		initialBalance: cfg.InitialBalance,
		cfg:            cfg,
		store:          p,
		journal:        j,
		log:            log.With("component", "ledger"),
	}
}

// Restore loads a previously persisted aggregate. Called once at startup,
// before any concurrent access.
func (l *Ledger) Restore(st store.LedgerState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	open := make(map[int64]*Position, len(st.Positions))
	for _, sp := range st.Positions {
		p, err := fromStored(sp)
		if err != nil {
			return fmt.Errorf("restore open position %d: %w", sp.Ticket, err)
		}
		open[p.Ticket] = &p
	}

	closed := make([]Position, 0, len(st.ClosedPositions))
	for _, sp := range st.ClosedPositions {
		p, err := fromStored(sp)
		if err != nil {
			return fmt.Errorf("restore closed position %d: %w", sp.Ticket, err)
		}
		closed = append(closed, p)
	}

	l.open = open
	l.closed = closed
	if st.NextTicket > 0 {
		l.nextTicket = st.NextTicket
	}
	if st.InitialBalance > 0 {
		l.initialBalance = st.InitialBalance
	}

	l.log.Infow("ledger restored",
		"open", len(l.open), "closed", len(l.closed), "next_ticket", l.nextTicket)
	return nil
}

// Open creates a new position and returns its ticket. Tickets are strictly
// increasing and never reused within a ledger lifetime. The ticket is valid
// even when persistence fails; the error is still surfaced.
func (l *Ledger) Open(symbol string, side market.Side, volume, openPrice, sl, tp float64) (int64, error) {
	if volume <= 0 {
		return 0, ErrInvalidVolume
	}
	if !side.Valid() {
		return 0, fmt.Errorf("invalid order side %q", side)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ticket := l.nextTicket
	l.nextTicket++

	l.open[ticket] = &Position{
		Ticket:       ticket,
		Symbol:       symbol,
		Side:         side,
		Volume:       volume,
		OpenPrice:    openPrice,
		CurrentPrice: openPrice,
		StopLoss:     sl,
		TakeProfit:   tp,
		Comment:      positionComment,
		OpenTime:     time.Now().UTC(),
	}

	l.log.Infow("position opened",
		"ticket", ticket, "symbol", symbol, "side", side, "volume", volume, "price", openPrice)
	return ticket, l.persistLocked()
}

// Modify updates stop-loss and/or take-profit. A nil field keeps the
// current value; a pointer to 0 explicitly clears the level.
func (l *Ledger) Modify(ticket int64, sl, tp *float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.open[ticket]
	if !ok {
		return ErrPositionNotFound
	}

	if sl != nil {
		p.StopLoss = *sl
	}
	if tp != nil {
		p.TakeProfit = *tp
	}

	l.log.Infow("position modified", "ticket", ticket, "sl", p.StopLoss, "tp", p.TakeProfit)
	return l.persistLocked()
}

// UpdatePrice applies a new price to every open position on the symbol and
// recomputes profit. Calling it twice with the same arguments is a no-op
// for the resulting state.
func (l *Ledger) UpdatePrice(symbol string, price float64, params market.SymbolParams) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	touched := false
	for _, p := range l.open {
		if p.Symbol != symbol {
			continue
		}
		p.CurrentPrice = price
		touched = true
		res, err := PL(p.Side, p.OpenPrice, price, p.Volume, params)
		if err != nil {
			// Volume was validated at open, so this should be unreachable;
			// if it ever fires, skip the profit update rather than leave
			// the symbol's other positions half-applied.
			l.log.Errorw("profit recompute failed", "ticket", p.Ticket, "error", err)
			continue
		}
		p.Profit = res.Amount
		p.Degraded = res.Degraded
	}

	if !touched {
		return nil
	}
	return l.persistLocked()
}

// Close terminates a position at closePrice. Final profit prefers the
// supplied params: market data, not the position, defines current tick
// economics. Closing an unknown or already-closed ticket is an error.
func (l *Ledger) Close(ticket int64, closePrice float64, params market.SymbolParams) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.open[ticket]
	if !ok {
		return Position{}, ErrPositionNotFound
	}

	closed := l.closeLocked(p, closePrice, params, ReasonManual)
	return closed, l.persistLocked()
}

// CheckAutoClose runs one scan of the TP/SL state machine over every open
// position at its current price and closes the ones that crossed a
// threshold. params supplies per-symbol tick economics for the final P&L;
// missing entries degrade to the fallback formula.
func (l *Ledger) CheckAutoClose(params map[string]market.SymbolParams) []AutoClosed {
	l.mu.Lock()
	defer l.mu.Unlock()

	type hit struct {
		p      *Position
		reason CloseReason
	}
	var hits []hit
	for _, p := range l.open {
		if reason, ok := autoCloseReason(p); ok {
			hits = append(hits, hit{p, reason})
		}
	}
	if len(hits) == 0 {
		return nil
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].p.Ticket < hits[j].p.Ticket })

	out := make([]AutoClosed, 0, len(hits))
	for _, h := range hits {
		closed := l.closeLocked(h.p, h.p.CurrentPrice, params[h.p.Symbol], h.reason)
		out = append(out, AutoClosed{Position: closed, Reason: h.reason})
	}

	if err := l.persistLocked(); err != nil {
		// The in-memory ledger remains the source of truth; the next
		// mutation retries the write.
		l.log.Errorw("persist after auto-close failed", "error", err)
	}
	return out
}

// closeLocked moves p from the open map to the closed history. Journal
// failures are logged, not returned: the journal is an observer, the state
// file is the durability boundary.
func (l *Ledger) closeLocked(p *Position, closePrice float64, params market.SymbolParams, reason CloseReason) Position {
	now := time.Now().UTC()

	p.CurrentPrice = closePrice
	p.ClosePrice = closePrice
	p.CloseTime = now
	if res, err := PL(p.Side, p.OpenPrice, closePrice, p.Volume, params); err == nil {
		p.Profit = res.Amount
		p.Degraded = res.Degraded
	}

	closed := *p
	delete(l.open, p.Ticket)
	l.closed = append(l.closed, closed)

	if err := l.journal.RecordClose(journal.CloseRecord{
		EventID:    id.New(),
		Ticket:     closed.Ticket,
		Symbol:     closed.Symbol,
		Side:       string(closed.Side),
		Volume:     closed.Volume,
		OpenPrice:  closed.OpenPrice,
		ClosePrice: closed.ClosePrice,
		OpenTime:   closed.OpenTime,
		CloseTime:  closed.CloseTime,
		Profit:     closed.Profit,
		Reason:     string(reason),
		Degraded:   closed.Degraded,
	}); err != nil {
		l.log.Warnw("journal close failed", "ticket", closed.Ticket, "error", err)
	}

	acct := l.summaryLocked()
	if err := l.journal.RecordEquity(journal.EquitySnapshot{
		Time:    now,
		Balance: acct.Balance,
		Equity:  acct.Equity,
		Profit:  acct.Profit,
	}); err != nil {
		l.log.Warnw("journal equity failed", "error", err)
	}

	l.log.Infow("position closed",
		"ticket", closed.Ticket, "symbol", closed.Symbol, "reason", reason,
		"price", closePrice, "profit", closed.Profit, "degraded", closed.Degraded)
	return closed
}

// Summary derives the account view from current state. Never cached.
func (l *Ledger) Summary() broker.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.summaryLocked()
}

func (l *Ledger) summaryLocked() broker.Account {
	var openPL, closedPL float64
	for _, p := range l.open {
		openPL += p.Profit
	}
	for _, p := range l.closed {
		closedPL += p.Profit
	}

	balance := l.initialBalance + closedPL
	equity := balance + openPL

	return broker.Account{
		Balance:    round2(balance),
		Equity:     round2(equity),
		Profit:     round2(openPL),
		Margin:     0,
		FreeMargin: round2(equity),
		Leverage:   l.cfg.Leverage,
		Currency:   l.cfg.Currency,
	}
}

// Reset clears both position sets and the ticket counter. Irreversible.
// A balance of 0 selects the default starting balance.
func (l *Ledger) Reset(balance float64) error {
	if balance < 0 {
		return fmt.Errorf("initial balance must not be negative: %f", balance)
	}
	if balance == 0 {
		balance = l.cfg.InitialBalance
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.open = make(map[int64]*Position)
	l.closed = nil
	l.nextTicket = l.cfg.TicketBase
	l.initialBalance = balance

	l.log.Infow("ledger reset", "balance", balance)
	return l.persistLocked()
}

// Position returns a copy of one open position.
func (l *Ledger) Position(ticket int64) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.open[ticket]
	if !ok {
		return Position{}, ErrPositionNotFound
	}
	return *p, nil
}

// Positions returns copies of all open positions, ordered by ticket.
func (l *Ledger) Positions() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Position, 0, len(l.open))
	for _, p := range l.open {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out
}

// History returns closed positions with close_time >= now-since, newest
// first. A since of 0 returns the whole history.
func (l *Ledger) History(since time.Duration) []Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Time{}
	if since > 0 {
		cutoff = time.Now().UTC().Add(-since)
	}

	out := make([]Position, 0, len(l.closed))
	for _, p := range l.closed {
		if p.CloseTime.Before(cutoff) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CloseTime.After(out[j].CloseTime) })
	return out
}

// OpenSymbols returns the distinct symbols with at least one open position.
func (l *Ledger) OpenSymbols() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[string]bool, len(l.open))
	var out []string
	for _, p := range l.open {
		if !seen[p.Symbol] {
			seen[p.Symbol] = true
			out = append(out, p.Symbol)
		}
	}
	sort.Strings(out)
	return out
}

func (l *Ledger) persistLocked() error {
	if l.store == nil {
		return nil
	}

	st := store.LedgerState{
		NextTicket:     l.nextTicket,
		InitialBalance: l.initialBalance,
	}
	for _, p := range l.open {
		st.Positions = append(st.Positions, toStored(*p))
	}
	sort.Slice(st.Positions, func(i, j int) bool { return st.Positions[i].Ticket < st.Positions[j].Ticket })
	for _, p := range l.closed {
		st.ClosedPositions = append(st.ClosedPositions, toStored(p))
	}

	if err := l.store.SaveLedger(st); err != nil {
		return fmt.Errorf("persist ledger: %w", err)
	}
	return nil
}

func toStored(p Position) store.Position {
	return store.Position{
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
}

func fromStored(sp store.Position) (Position, error) {
	side, err := market.ParseSide(sp.Side)
	if err != nil {
		return Position{}, err
	}
	return Position{
		Ticket:       sp.Ticket,
		Symbol:       sp.Symbol,
		Side:         side,
		Volume:       sp.Volume,
		OpenPrice:    sp.OpenPrice,
		CurrentPrice: sp.CurrentPrice,
		StopLoss:     sp.StopLoss,
		TakeProfit:   sp.TakeProfit,
		Profit:       sp.Profit,
		Degraded:     sp.Degraded,
		Comment:      sp.Comment,
		OpenTime:     sp.OpenTime,
		ClosePrice:   sp.ClosePrice,
		CloseTime:    sp.CloseTime,
	}, nil
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
