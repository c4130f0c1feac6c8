package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtsim/broker"
	"mtsim/facade"
	"mtsim/market"
	"mtsim/sim"
)

var eurusd = market.SymbolParams{TickSize: 0.00001, TickValue: 1, ContractSize: 100_000}

type fakeProvider struct {
	tick market.Tick
}

func (f *fakeProvider) CurrentTick(_ context.Context, symbol string) (market.Tick, error) {
	if symbol != f.tick.Symbol {
		return market.Tick{}, broker.ErrSymbolNotFound
	}
	return f.tick, nil
}

func (f *fakeProvider) SymbolParams(context.Context, string) (market.SymbolParams, error) {
	return eurusd, nil
}

func (f *fakeProvider) ExecuteOrder(context.Context, broker.OrderRequest) (broker.OrderResult, error) {
	return broker.OrderResult{}, nil
}

func (f *fakeProvider) ClosePosition(context.Context, int64) error { return nil }

func (f *fakeProvider) ModifyPosition(context.Context, int64, *float64, *float64) error { return nil }

func (f *fakeProvider) Positions(context.Context) ([]broker.Position, error) { return nil, nil }

func (f *fakeProvider) ClosedPositions(context.Context, int) ([]broker.Position, error) {
	return nil, nil
}

func (f *fakeProvider) AccountInfo(context.Context) (broker.Account, error) {
	return broker.Account{}, nil
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialTestBridge(t *testing.T) *wsClient {
	t.Helper()

	ledger := sim.NewLedger(nil, nil, nil, sim.Config{})
	provider := &fakeProvider{
		tick: market.Tick{Symbol: "EURUSD", Bid: 1.1000, Ask: 1.1002, Time: time.Now()},
	}
	f := facade.New(ledger, provider, nil, false, nil)
	b := New(":0", f, nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.handleWS(r.Context(), w, r)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) call(frame map[string]any) response {
	c.t.Helper()

	require.NoError(c.t, c.conn.WriteJSON(frame))

	var resp struct {
		Action    string          `json:"action"`
		MessageID string          `json:"messageId"`
		Data      json.RawMessage `json:"data"`
		Error     string          `json:"error"`
	}
	require.NoError(c.t, c.conn.ReadJSON(&resp))
	return response{Action: resp.Action, MessageID: resp.MessageID, Data: resp.Data, Error: resp.Error}
}

func TestBridgeOrderLifecycle(t *testing.T) {
	t.Parallel()
	c := dialTestBridge(t)

	resp := c.call(map[string]any{
		"action": "executeOrder", "messageId": "m1",
		"symbol": "EURUSD", "type": "BUY", "volume": 0.5,
		"stopLoss": 1.0950, "takeProfit": 1.1100,
	})
	require.Empty(t, resp.Error)
	assert.Equal(t, "executeOrder", resp.Action)
	assert.Equal(t, "m1", resp.MessageID)

	var order broker.OrderResult
	require.NoError(t, json.Unmarshal(resp.Data.(json.RawMessage), &order))
	assert.Equal(t, 1.1002, order.Price, "buy fills at ask")

	resp = c.call(map[string]any{"action": "getPositions", "messageId": "m2"})
	require.Empty(t, resp.Error)
	var open []broker.Position
	require.NoError(t, json.Unmarshal(resp.Data.(json.RawMessage), &open))
	require.Len(t, open, 1)
	assert.Equal(t, order.Ticket, open[0].Ticket)
	assert.Equal(t, 1.0950, open[0].StopLoss)

	resp = c.call(map[string]any{"action": "closePosition", "messageId": "m3", "ticket": order.Ticket})
	require.Empty(t, resp.Error)

	resp = c.call(map[string]any{"action": "getClosedPositions", "messageId": "m4", "daysBack": 7})
	require.Empty(t, resp.Error)
	var closed []broker.Position
	require.NoError(t, json.Unmarshal(resp.Data.(json.RawMessage), &closed))
	require.Len(t, closed, 1)
	assert.Equal(t, order.Ticket, closed[0].Ticket)
}

func TestBridgeModifyKeepsAbsentFields(t *testing.T) {
	t.Parallel()
	c := dialTestBridge(t)

	resp := c.call(map[string]any{
		"action": "executeOrder", "messageId": "m1",
		"symbol": "EURUSD", "type": "BUY", "volume": 0.5,
		"stopLoss": 1.0950, "takeProfit": 1.1100,
	})
	require.Empty(t, resp.Error)
	var order broker.OrderResult
	require.NoError(t, json.Unmarshal(resp.Data.(json.RawMessage), &order))

	// Only stopLoss in the frame: takeProfit must survive.
	resp = c.call(map[string]any{
		"action": "modifyPosition", "messageId": "m2",
		"ticket": order.Ticket, "stopLoss": 1.0900,
	})
	require.Empty(t, resp.Error)

	resp = c.call(map[string]any{"action": "getPositions", "messageId": "m3"})
	var open []broker.Position
	require.NoError(t, json.Unmarshal(resp.Data.(json.RawMessage), &open))
	require.Len(t, open, 1)
	assert.Equal(t, 1.0900, open[0].StopLoss)
	assert.Equal(t, 1.1100, open[0].TakeProfit)
}

func TestBridgeAccountAndReset(t *testing.T) {
	t.Parallel()
	c := dialTestBridge(t)

	resp := c.call(map[string]any{"action": "getAccountInfo", "messageId": "m1"})
	require.Empty(t, resp.Error)
	var acct broker.Account
	require.NoError(t, json.Unmarshal(resp.Data.(json.RawMessage), &acct))
	assert.Equal(t, float64(sim.DefaultInitialBalance), acct.Balance)

	resp = c.call(map[string]any{"action": "resetSimulator", "messageId": "m2", "balance": 5000})
	require.Empty(t, resp.Error)
	require.NoError(t, json.Unmarshal(resp.Data.(json.RawMessage), &acct))
	assert.Equal(t, 5000.0, acct.Balance)
}

func TestBridgeMarketData(t *testing.T) {
	t.Parallel()
	c := dialTestBridge(t)

	resp := c.call(map[string]any{"action": "getMarketData", "messageId": "m1", "symbol": "EURUSD"})
	require.Empty(t, resp.Error)

	resp = c.call(map[string]any{"action": "getMarketData", "messageId": "m2"})
	assert.Contains(t, resp.Error, "symbol is required")
}

func TestBridgeMalformedFrameKeepsConnection(t *testing.T) {
	t.Parallel()
	c := dialTestBridge(t)

	// A frame that is not JSON gets an error frame, not a disconnect.
	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	var errResp response
	require.NoError(t, c.conn.ReadJSON(&errResp))
	assert.Contains(t, errResp.Error, "malformed request")

	// The connection still serves requests afterwards.
	resp := c.call(map[string]any{"action": "getAccountInfo", "messageId": "m1"})
	require.Empty(t, resp.Error)
	assert.Equal(t, "m1", resp.MessageID)
}

func TestBridgeHistoryDefaultWindow(t *testing.T) {
	t.Parallel()
	c := dialTestBridge(t)

	resp := c.call(map[string]any{
		"action": "executeOrder", "messageId": "m1",
		"symbol": "EURUSD", "type": "BUY", "volume": 0.5,
	})
	require.Empty(t, resp.Error)
	var order broker.OrderResult
	require.NoError(t, json.Unmarshal(resp.Data.(json.RawMessage), &order))

	resp = c.call(map[string]any{"action": "closePosition", "messageId": "m2", "ticket": order.Ticket})
	require.Empty(t, resp.Error)

	// Omitted daysBack falls back to the one-week window, which includes a
	// close from just now.
	resp = c.call(map[string]any{"action": "getClosedPositions", "messageId": "m3"})
	require.Empty(t, resp.Error)
	var closed []broker.Position
	require.NoError(t, json.Unmarshal(resp.Data.(json.RawMessage), &closed))
	require.Len(t, closed, 1)
	assert.Equal(t, order.Ticket, closed[0].Ticket)
}

func TestBridgeErrors(t *testing.T) {
	t.Parallel()
	c := dialTestBridge(t)

	resp := c.call(map[string]any{"action": "explodePosition", "messageId": "m1"})
	assert.Contains(t, resp.Error, "unknown action")
	assert.Equal(t, "m1", resp.MessageID, "errors must echo the request id")

	resp = c.call(map[string]any{"action": "closePosition", "messageId": "m2", "ticket": 42})
	assert.NotEmpty(t, resp.Error)

	resp = c.call(map[string]any{"action": "setLiveMode", "messageId": "m3"})
	assert.Contains(t, resp.Error, "live is required")
}
