package facade

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtsim/broker"
	"mtsim/market"
	"mtsim/sim"
)

var eurusd = market.SymbolParams{TickSize: 0.00001, TickValue: 1, ContractSize: 100_000}

type fakeProvider struct {
	mu    sync.Mutex
	ticks map[string]market.Tick

	orders  []broker.OrderRequest
	closes  []int64
	mods    []int64
	account broker.Account
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{ticks: make(map[string]market.Tick)}
}

func (f *fakeProvider) set(symbol string, bid, ask float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks[symbol] = market.Tick{Symbol: symbol, Bid: bid, Ask: ask, Time: time.Now()}
}

func (f *fakeProvider) CurrentTick(_ context.Context, symbol string) (market.Tick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.ticks[symbol]
	if !ok {
		return market.Tick{}, broker.ErrSymbolNotFound
	}
	return t, nil
}

func (f *fakeProvider) SymbolParams(context.Context, string) (market.SymbolParams, error) {
	return eurusd, nil
}

func (f *fakeProvider) ExecuteOrder(_ context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, req)
	return broker.OrderResult{Ticket: 555, Price: 1.2345}, nil
}

func (f *fakeProvider) ClosePosition(_ context.Context, ticket int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, ticket)
	return nil
}

func (f *fakeProvider) ModifyPosition(_ context.Context, ticket int64, sl, tp *float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mods = append(f.mods, ticket)
	return nil
}

func (f *fakeProvider) Positions(context.Context) ([]broker.Position, error) {
	return []broker.Position{{Ticket: 555, Symbol: "EURUSD"}}, nil
}

func (f *fakeProvider) ClosedPositions(context.Context, int) ([]broker.Position, error) {
	return []broker.Position{{Ticket: 554, Symbol: "EURUSD"}}, nil
}

func (f *fakeProvider) AccountInfo(context.Context) (broker.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.account, nil
}

type fakeModeStore struct {
	mu    sync.Mutex
	saved []bool
}

func (f *fakeModeStore) SaveLiveMode(live bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, live)
	return nil
}

func newTestFacade(t *testing.T, live bool) (*Facade, *sim.Ledger, *fakeProvider, *fakeModeStore) {
	t.Helper()
	ledger := sim.NewLedger(nil, nil, nil, sim.Config{})
	provider := newFakeProvider()
	modes := &fakeModeStore{}
	return New(ledger, provider, modes, live, nil), ledger, provider, modes
}

func TestOpenSimulated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("buy fills at ask", func(t *testing.T) {
		t.Parallel()
		f, ledger, provider, _ := newTestFacade(t, false)
		provider.set("EURUSD", 1.1000, 1.1002)

		res, err := f.Open(ctx, broker.OrderRequest{Symbol: "EURUSD", Side: market.Buy, Volume: 0.5})
		require.NoError(t, err)
		assert.Equal(t, 1.1002, res.Price)
		assert.Empty(t, provider.orders, "simulated orders must not reach the bridge")

		p, err := ledger.Position(res.Ticket)
		require.NoError(t, err)
		assert.Equal(t, 1.1002, p.OpenPrice)
	})

	t.Run("sell fills at bid", func(t *testing.T) {
		t.Parallel()
		f, _, provider, _ := newTestFacade(t, false)
		provider.set("EURUSD", 1.1000, 1.1002)

		res, err := f.Open(ctx, broker.OrderRequest{Symbol: "EURUSD", Side: market.Sell, Volume: 0.5})
		require.NoError(t, err)
		assert.Equal(t, 1.1000, res.Price)
	})

	t.Run("unknown symbol fails", func(t *testing.T) {
		t.Parallel()
		f, _, _, _ := newTestFacade(t, false)

		_, err := f.Open(ctx, broker.OrderRequest{Symbol: "XXXYYY", Side: market.Buy, Volume: 0.5})
		assert.ErrorIs(t, err, broker.ErrSymbolNotFound)
	})
}

func TestOpenLiveForwards(t *testing.T) {
	t.Parallel()

	f, ledger, provider, _ := newTestFacade(t, true)
	req := broker.OrderRequest{Symbol: "EURUSD", Side: market.Buy, Volume: 0.5}

	res, err := f.Open(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(555), res.Ticket)
	require.Len(t, provider.orders, 1)
	assert.Equal(t, req, provider.orders[0])
	assert.Empty(t, ledger.Positions(), "live orders must not touch the ledger")
}

func TestCloseSimulated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f, ledger, provider, _ := newTestFacade(t, false)
	provider.set("EURUSD", 1.1000, 1.1002)

	res, err := f.Open(ctx, broker.OrderRequest{Symbol: "EURUSD", Side: market.Buy, Volume: 1.0})
	require.NoError(t, err)

	// Buy closes at bid.
	provider.set("EURUSD", 1.1052, 1.1054)
	require.NoError(t, f.Close(ctx, res.Ticket))

	hist := ledger.History(0)
	require.Len(t, hist, 1)
	assert.Equal(t, 1.1052, hist[0].ClosePrice)
	assert.InDelta(t, 500.0, hist[0].Profit, 1e-9)
	assert.Empty(t, provider.closes)
}

func TestCloseLiveForwards(t *testing.T) {
	t.Parallel()

	f, _, provider, _ := newTestFacade(t, true)
	require.NoError(t, f.Close(context.Background(), 777))
	assert.Equal(t, []int64{777}, provider.closes)
}

func TestModifyRoutesByMode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f, ledger, provider, _ := newTestFacade(t, false)
	provider.set("EURUSD", 1.1000, 1.1002)
	res, err := f.Open(ctx, broker.OrderRequest{Symbol: "EURUSD", Side: market.Buy, Volume: 1.0})
	require.NoError(t, err)

	sl := 1.0950
	require.NoError(t, f.Modify(ctx, res.Ticket, &sl, nil))
	p, err := ledger.Position(res.Ticket)
	require.NoError(t, err)
	assert.Equal(t, 1.0950, p.StopLoss)
	assert.Empty(t, provider.mods)

	require.NoError(t, f.SetLiveMode(true))
	require.NoError(t, f.Modify(ctx, 888, &sl, nil))
	assert.Equal(t, []int64{888}, provider.mods)
}

func TestPositionsAndHistoryByMode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f, _, provider, _ := newTestFacade(t, false)
	provider.set("EURUSD", 1.1000, 1.1002)
	res, err := f.Open(ctx, broker.OrderRequest{Symbol: "EURUSD", Side: market.Buy, Volume: 1.0})
	require.NoError(t, err)

	open, err := f.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, res.Ticket, open[0].Ticket)
	assert.Equal(t, "BUY", open[0].Side)

	require.NoError(t, f.Close(ctx, res.Ticket))
	hist, err := f.History(ctx, 30)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, res.Ticket, hist[0].Ticket)
	assert.False(t, hist[0].CloseTime.IsZero())

	require.NoError(t, f.SetLiveMode(true))
	open, err = f.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, int64(555), open[0].Ticket)

	hist, err = f.History(ctx, 30)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, int64(554), hist[0].Ticket)
}

func TestAccountByMode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f, _, provider, _ := newTestFacade(t, false)
	provider.account = broker.Account{Balance: 99_999, Currency: "EUR"}

	acct, err := f.Account(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(sim.DefaultInitialBalance), acct.Balance)

	require.NoError(t, f.SetLiveMode(true))
	acct, err = f.Account(ctx)
	require.NoError(t, err)
	assert.Equal(t, 99_999.0, acct.Balance)
	assert.Equal(t, "EUR", acct.Currency)
}

func TestSetLiveModePersists(t *testing.T) {
	t.Parallel()

	f, _, _, modes := newTestFacade(t, false)

	require.NoError(t, f.SetLiveMode(true))
	assert.True(t, f.LiveMode())
	assert.Equal(t, []bool{true}, modes.saved)

	// Setting the same mode again is a no-op.
	require.NoError(t, f.SetLiveMode(true))
	assert.Equal(t, []bool{true}, modes.saved)

	require.NoError(t, f.SetLiveMode(false))
	assert.Equal(t, []bool{true, false}, modes.saved)
}

func TestResetAlwaysTargetsLedger(t *testing.T) {
	t.Parallel()

	f, ledger, _, _ := newTestFacade(t, true)

	acct, err := f.Reset(5000)
	require.NoError(t, err)
	assert.Equal(t, 5000.0, acct.Balance)
	assert.Equal(t, 5000.0, ledger.Summary().Balance)
}
