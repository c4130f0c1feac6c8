// Package mtapi is the WebSocket client for the terminal bridge, the live
// Market Data & Execution Provider. Requests and responses are JSON frames
// correlated by messageId; the bridge answers every request exactly once.
package mtapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mtsim/broker"
	"mtsim/pkg/id"
)

const (
	handshakeTimeout = 15 * time.Second
	writeWait        = 10 * time.Second
)

var ErrConnectionClosed = errors.New("bridge connection closed")

// envelope is the common frame shape in both directions.
type envelope struct {
	Action    string          `json:"action"`
	MessageID string          `json:"messageId"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Client implements broker.Provider over one bridge connection.
type Client struct {
	url string
	log *zap.SugaredLogger

	writeMu sync.Mutex
	conn    *websocket.Conn

	pmu     sync.Mutex
	pending map[string]chan envelope

	closeOnce sync.Once
	quit      chan struct{}
}

// Dial connects to the bridge and starts the read loop.
func Dial(ctx context.Context, url string, log *zap.SugaredLogger) (*Client, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("mtapi: connect %s: %w", url, err)
	}

	c := &Client{
		url:     url,
		log:     log.With("component", "mtapi"),
		conn:    conn,
		pending: make(map[string]chan envelope),
		quit:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.quit)
		c.conn.Close()
	})
	return nil
}

func (c *Client) readLoop() {
	for {
		var env envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			select {
			case <-c.quit:
			default:
				c.log.Warnw("bridge read failed", "error", err)
			}
			c.failPending()
			return
		}

		c.pmu.Lock()
		ch, ok := c.pending[env.MessageID]
		if ok {
			delete(c.pending, env.MessageID)
		}
		c.pmu.Unlock()

		if !ok {
			c.log.Debugw("unmatched bridge frame", "action", env.Action, "messageId", env.MessageID)
			continue
		}
		ch <- env
	}
}

// failPending closes every waiting call's channel; callers translate the
// closed channel into ErrConnectionClosed.
func (c *Client) failPending() {
	c.pmu.Lock()
	defer c.pmu.Unlock()
	for msgID, ch := range c.pending {
		close(ch)
		delete(c.pending, msgID)
	}
}

// call sends one request and decodes the matching response's data into out.
func (c *Client) call(ctx context.Context, action string, params map[string]any, out any) error {
	msgID := id.New()

	ch := make(chan envelope, 1)
	c.pmu.Lock()
	c.pending[msgID] = ch
	c.pmu.Unlock()
	defer func() {
		c.pmu.Lock()
		delete(c.pending, msgID)
		c.pmu.Unlock()
	}()

	frame := map[string]any{"action": action, "messageId": msgID}
	for k, v := range params {
		frame[k] = v
	}

	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteJSON(frame)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("mtapi: %s: write: %w", action, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.quit:
		return ErrConnectionClosed
	case env, ok := <-ch:
		if !ok {
			return ErrConnectionClosed
		}
		if env.Error != "" {
			return bridgeError(action, env.Error)
		}
		if out != nil && len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, out); err != nil {
				return fmt.Errorf("mtapi: %s: decode response: %w", action, err)
			}
		}
		return nil
	}
}

// bridgeError maps the bridge's error strings onto the boundary's sentinel
// errors while keeping the original text.
func bridgeError(action, msg string) error {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "not found") {
		switch action {
		case "closePosition", "modifyPosition":
			return fmt.Errorf("%w: %s", broker.ErrPositionNotFound, msg)
		default:
			return fmt.Errorf("%w: %s", broker.ErrSymbolNotFound, msg)
		}
	}
	return fmt.Errorf("mtapi: %s: %s", action, msg)
}
