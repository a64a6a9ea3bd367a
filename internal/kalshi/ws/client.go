// Package ws streams real-time market data from the exchange. Incoming
// messages are decoded into events and pushed onto a bounded channel consumed
// by a single task; when the buffer is full the oldest data is dropped rather
// than blocking the read loop.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"pm-trade-bot/internal/kalshi"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const wsSignPath = "/trade-api/ws/v2"

type TickerEvent struct {
	Ticker   string `json:"market_ticker"`
	Price    int    `json:"price"`
	YesBid   int    `json:"yes_bid"`
	YesAsk   int    `json:"yes_ask"`
	Volume   int    `json:"volume"`
	Received time.Time
}

type subscription struct {
	ID     int       `json:"id"`
	Cmd    string    `json:"cmd"`
	Params subParams `json:"params"`
}

type subParams struct {
	Channels      []string `json:"channels"`
	MarketTickers []string `json:"market_tickers,omitempty"`
}

type Client struct {
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	signer         *kalshi.Signer
	log            *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	subs   []subscription
	cmdID  int
	events chan TickerEvent
	drops  int
}

func New(url string, reconnectDelay, pingInterval time.Duration, buffer int, signer *kalshi.Signer, log *zap.Logger) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		url:            url,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		signer:         signer,
		log:            log,
		events:         make(chan TickerEvent, buffer),
	}
}

// Events is the bounded channel the single consumer task reads from.
func (c *Client) Events() <-chan TickerEvent {
	return c.events
}

func (c *Client) Subscribe(ctx context.Context, channels, tickers []string) error {
	c.mu.Lock()
	c.cmdID++
	sub := subscription{
		ID:     c.cmdID,
		Cmd:    "subscribe",
		Params: subParams{Channels: channels, MarketTickers: tickers},
	}
	c.subs = append(c.subs, sub)
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return writeJSON(ctx, conn, sub)
}

// Run maintains the connection until ctx is canceled, reconnecting and
// replaying subscriptions after any read failure.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.ensureConnected(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("ws connect failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.reconnectDelay):
			}
			continue
		}
		pingCtx, cancel := context.WithCancel(ctx)
		pingDone := make(chan struct{})
		go func() {
			defer close(pingDone)
			c.pingLoop(pingCtx)
		}()
		err := c.readLoop(ctx)
		cancel()
		<-pingDone
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("ws read loop ended", zap.Error(err))
		c.resetConn()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	opts := &websocket.DialOptions{}
	if c.signer != nil {
		timestampMS := strconv.FormatInt(time.Now().UnixMilli(), 10)
		sig, err := c.signer.Sign(timestampMS, http.MethodGet, wsSignPath)
		if err != nil {
			return err
		}
		header := http.Header{}
		header.Set("KALSHI-ACCESS-KEY", c.signer.KeyID())
		header.Set("KALSHI-ACCESS-TIMESTAMP", timestampMS)
		header.Set("KALSHI-ACCESS-SIGNATURE", sig)
		opts.HTTPHeader = header
	}
	conn, _, err := websocket.Dial(ctx, c.url, opts)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	subs := append([]subscription(nil), c.subs...)
	c.mu.Unlock()

	for _, sub := range subs {
		if err := writeJSON(ctx, conn, sub); err != nil {
			c.resetConn()
			return err
		}
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("ws not connected")
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var envelope struct {
		Type string          `json:"type"`
		Msg  json.RawMessage `json:"msg"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Type != "ticker" {
		return
	}
	var event TickerEvent
	if err := json.Unmarshal(envelope.Msg, &event); err != nil {
		c.log.Debug("ticker decode failed", zap.Error(err))
		return
	}
	event.Received = time.Now().UTC()
	select {
	case c.events <- event:
	default:
		c.mu.Lock()
		c.drops++
		drops := c.drops
		c.mu.Unlock()
		if drops == 1 {
			c.log.Warn("ticker event buffer full, dropping")
		}
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	interval := c.pingInterval
	c.mu.Unlock()
	if conn == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		}
	}
}

func (c *Client) resetConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "reset")
		c.conn = nil
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
