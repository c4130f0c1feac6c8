package mtapi

import (
	"context"
	"errors"
	"time"

	"mtsim/broker"
	"mtsim/market"
)

// Wire payloads mirror the bridge's JSON field names.

type tickPayload struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Time   string  `json:"time"`
	Error  string  `json:"error,omitempty"`
}

type symbolInfoPayload struct {
	Name         string  `json:"name"`
	TickSize     float64 `json:"trade_tick_size"`
	TickValue    float64 `json:"trade_tick_value"`
	ContractSize float64 `json:"trade_contract_size"`
	Error        string  `json:"error,omitempty"`
}

type orderPayload struct {
	Success bool    `json:"success"`
	Ticket  int64   `json:"ticket"`
	Price   float64 `json:"price"`
	Error   string  `json:"error,omitempty"`
	Message string  `json:"message,omitempty"`
}

type resultPayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

type positionPayload struct {
	Ticket       int64   `json:"ticket"`
	Symbol       string  `json:"symbol"`
	Side         string  `json:"type"`
	Volume       float64 `json:"volume"`
	OpenPrice    float64 `json:"open_price"`
	CurrentPrice float64 `json:"current_price"`
	StopLoss     float64 `json:"stop_loss"`
	TakeProfit   float64 `json:"take_profit"`
	Profit       float64 `json:"profit"`
	OpenTime     string  `json:"open_time,omitempty"`
	ClosePrice   float64 `json:"close_price,omitempty"`
	CloseTime    string  `json:"close_time,omitempty"`
	Comment      string  `json:"comment,omitempty"`
}

type accountPayload struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"free_margin"`
	Profit     float64 `json:"profit"`
	Leverage   int     `json:"leverage"`
	Currency   string  `json:"currency"`
	Error      string  `json:"error,omitempty"`
}

// CurrentTick implements broker.Provider.
func (c *Client) CurrentTick(ctx context.Context, symbol string) (market.Tick, error) {
	var p tickPayload
	if err := c.call(ctx, "getMarketData", map[string]any{"symbol": symbol}, &p); err != nil {
		return market.Tick{}, err
	}
	if p.Error != "" {
		return market.Tick{}, bridgeError("getMarketData", p.Error)
	}

	return market.Tick{
		Symbol: symbol,
		Bid:    p.Bid,
		Ask:    p.Ask,
		Time:   parseBridgeTime(p.Time),
	}, nil
}

// SymbolParams implements broker.Provider. It walks the normalization
// sequence (exact, uppercase, venue suffix stripped) and, when the bridge
// knows none of the variants, falls back to instrument-class defaults. The
// defaults for index symbols carry no tick parameters, so downstream P&L is
// flagged degraded rather than silently mispriced.
func (c *Client) SymbolParams(ctx context.Context, symbol string) (market.SymbolParams, error) {
	for _, candidate := range market.Candidates(symbol) {
		var p symbolInfoPayload
		err := c.call(ctx, "getSymbolInfo", map[string]any{"symbol": candidate}, &p)
		if err != nil {
			if errors.Is(err, broker.ErrSymbolNotFound) {
				continue
			}
			return market.SymbolParams{}, err
		}
		if p.Error != "" {
			continue
		}
		return market.SymbolParams{
			TickSize:     p.TickSize,
			TickValue:    p.TickValue,
			ContractSize: p.ContractSize,
		}, nil
	}

	c.log.Warnw("symbol metadata unavailable, using class defaults", "symbol", symbol)
	return market.DefaultParams(symbol), nil
}

// ExecuteOrder implements broker.Provider.
func (c *Client) ExecuteOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	var p orderPayload
	err := c.call(ctx, "executeOrder", map[string]any{
		"symbol":     req.Symbol,
		"type":       string(req.Side),
		"volume":     req.Volume,
		"stopLoss":   req.StopLoss,
		"takeProfit": req.TakeProfit,
	}, &p)
	if err != nil {
		return broker.OrderResult{}, err
	}
	if !p.Success {
		return broker.OrderResult{}, bridgeError("executeOrder", p.Error)
	}
	return broker.OrderResult{Ticket: p.Ticket, Price: p.Price}, nil
}

// ClosePosition implements broker.Provider.
func (c *Client) ClosePosition(ctx context.Context, ticket int64) error {
	var p resultPayload
	if err := c.call(ctx, "closePosition", map[string]any{"ticket": ticket}, &p); err != nil {
		return err
	}
	if !p.Success {
		return bridgeError("closePosition", p.Error)
	}
	return nil
}

// ModifyPosition implements broker.Provider. Absent fields are omitted from
// the frame entirely; the bridge keeps the current values for them.
func (c *Client) ModifyPosition(ctx context.Context, ticket int64, sl, tp *float64) error {
	params := map[string]any{"ticket": ticket}
	if sl != nil {
		params["stopLoss"] = *sl
	}
	if tp != nil {
		params["takeProfit"] = *tp
	}

	var p resultPayload
	if err := c.call(ctx, "modifyPosition", params, &p); err != nil {
		return err
	}
	if !p.Success {
		return bridgeError("modifyPosition", p.Error)
	}
	return nil
}

// Positions implements broker.Provider.
func (c *Client) Positions(ctx context.Context) ([]broker.Position, error) {
	var payload []positionPayload
	if err := c.call(ctx, "getPositions", nil, &payload); err != nil {
		return nil, err
	}

	out := make([]broker.Position, 0, len(payload))
	for _, p := range payload {
		out = append(out, toBrokerPosition(p))
	}
	return out, nil
}

// ClosedPositions implements broker.Provider.
func (c *Client) ClosedPositions(ctx context.Context, daysBack int) ([]broker.Position, error) {
	var payload []positionPayload
	if err := c.call(ctx, "getClosedPositions", map[string]any{"daysBack": daysBack}, &payload); err != nil {
		return nil, err
	}

	out := make([]broker.Position, 0, len(payload))
	for _, p := range payload {
		out = append(out, toBrokerPosition(p))
	}
	return out, nil
}

// AccountInfo implements broker.Provider.
func (c *Client) AccountInfo(ctx context.Context) (broker.Account, error) {
	var p accountPayload
	if err := c.call(ctx, "getAccountInfo", nil, &p); err != nil {
		return broker.Account{}, err
	}
	if p.Error != "" {
		return broker.Account{}, bridgeError("getAccountInfo", p.Error)
	}

	return broker.Account{
		Balance:    p.Balance,
		Equity:     p.Equity,
		Profit:     p.Profit,
		Margin:     p.Margin,
		FreeMargin: p.FreeMargin,
		Leverage:   p.Leverage,
		Currency:   p.Currency,
	}, nil
}

func toBrokerPosition(p positionPayload) broker.Position {
	bp := broker.Position{
		Ticket:       p.Ticket,
		Symbol:       p.Symbol,
		Side:         p.Side,
		Volume:       p.Volume,
		OpenPrice:    p.OpenPrice,
		CurrentPrice: p.CurrentPrice,
		StopLoss:     p.StopLoss,
		TakeProfit:   p.TakeProfit,
		Profit:       p.Profit,
		Comment:      p.Comment,
		OpenTime:     parseBridgeTime(p.OpenTime),
		ClosePrice:   p.ClosePrice,
		CloseTime:    parseBridgeTime(p.CloseTime),
	}
	if !bp.CloseTime.IsZero() && !bp.OpenTime.IsZero() {
		bp.DurationMinutes = bp.CloseTime.Sub(bp.OpenTime).Minutes()
	}
	return bp
}

// parseBridgeTime accepts the bridge's ISO-8601 variants. A missing or
// unparseable value is a zero time, never an error; quotes are usable even
// when the terminal omits timestamps.
func parseBridgeTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
