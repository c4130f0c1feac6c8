// Package server exposes the facade over the same WebSocket protocol the
// terminal bridge speaks, so existing clients can point at this process
// instead of the terminal and keep working unchanged.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mtsim/broker"
	"mtsim/facade"
	"mtsim/market"
)

const (
	shutdownTimeout = 5 * time.Second

	// defaultDaysBack is the history window when the client omits daysBack,
	// matching the desktop app's one-week default.
	defaultDaysBack = 7
)

// request is the superset of fields across all actions; each handler reads
// the ones its action defines.
type request struct {
	Action     string   `json:"action"`
	MessageID  string   `json:"messageId"`
	Symbol     string   `json:"symbol"`
	Type       string   `json:"type"`
	Volume     float64  `json:"volume"`
	Ticket     int64    `json:"ticket"`
	StopLoss   *float64 `json:"stopLoss"`
	TakeProfit *float64 `json:"takeProfit"`
	DaysBack   int      `json:"daysBack"`
	Live       *bool    `json:"live"`
	Balance    float64  `json:"balance"`
}

// response echoes the request's action and messageId so clients can
// correlate concurrent calls.
type response struct {
	Action    string `json:"action"`
	MessageID string `json:"messageId"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Bridge serves the protocol on /ws.
type Bridge struct {
	addr   string
	facade *facade.Facade
	log    *zap.SugaredLogger

	upgrader websocket.Upgrader
}

func New(addr string, f *facade.Facade, log *zap.SugaredLogger) *Bridge {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Bridge{
		addr:   addr,
		facade: f,
		log:    log.With("component", "server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Clients are local tooling, not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Run serves until ctx is cancelled, then drains with a short timeout.
func (b *Bridge) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		b.handleWS(ctx, w, r)
	})

	srv := &http.Server{Addr: b.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		b.log.Infow("server listening", "addr", b.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	}
}

func (b *Bridge) handleWS(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warnw("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	b.log.Infow("client connected", "remote", r.RemoteAddr)

	write := func(resp response) {
		if err := conn.WriteJSON(resp); err != nil {
			b.log.Debugw("write failed", "remote", r.RemoteAddr, "error", err)
		}
	}

	for {
		// Read the raw frame first: a decode failure is the client's
		// mistake and gets an error frame, only a transport failure ends
		// the connection.
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.log.Debugw("client read failed", "remote", r.RemoteAddr, "error", err)
			}
			return
		}

		var req request
		if err := json.Unmarshal(raw, &req); err != nil {
			b.log.Debugw("malformed frame", "remote", r.RemoteAddr, "error", err)
			write(response{Error: fmt.Sprintf("malformed request: %v", err)})
			continue
		}

		data, err := b.dispatch(ctx, req)
		resp := response{Action: req.Action, MessageID: req.MessageID}
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Data = data
		}
		write(resp)
	}
}

// dispatch runs one action against the facade.
func (b *Bridge) dispatch(ctx context.Context, req request) (any, error) {
	switch req.Action {
	case "executeOrder":
		side, err := market.ParseSide(req.Type)
		if err != nil {
			return nil, err
		}
		order := broker.OrderRequest{
			Symbol: req.Symbol,
			Side:   side,
			Volume: req.Volume,
		}
		if req.StopLoss != nil {
			order.StopLoss = *req.StopLoss
		}
		if req.TakeProfit != nil {
			order.TakeProfit = *req.TakeProfit
		}
		return b.facade.Open(ctx, order)

	case "closePosition":
		if err := b.facade.Close(ctx, req.Ticket); err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "ticket": req.Ticket}, nil

	case "modifyPosition":
		if err := b.facade.Modify(ctx, req.Ticket, req.StopLoss, req.TakeProfit); err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "ticket": req.Ticket}, nil

	case "getPositions":
		return b.facade.Positions(ctx)

	case "getClosedPositions":
		daysBack := req.DaysBack
		if daysBack <= 0 {
			daysBack = defaultDaysBack
		}
		return b.facade.History(ctx, daysBack)

	case "getAccountInfo":
		return b.facade.Account(ctx)

	case "getMarketData":
		if req.Symbol == "" {
			return nil, errors.New("symbol is required")
		}
		return b.facade.MarketData(ctx, req.Symbol)

	case "setLiveMode":
		if req.Live == nil {
			return nil, errors.New("live is required")
		}
		if err := b.facade.SetLiveMode(*req.Live); err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "live": *req.Live}, nil

	case "resetSimulator":
		acct, err := b.facade.Reset(req.Balance)
		if err != nil {
			return nil, err
		}
		return acct, nil

	default:
		return nil, fmt.Errorf("unknown action %q", req.Action)
	}
}
