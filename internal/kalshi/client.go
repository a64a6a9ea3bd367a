package kalshi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrNotFound marks a distinguished transport outcome: the resource does not
// exist (for example a market without an order book). Callers treat it as a
// benign skip rather than a failure.
var ErrNotFound = errors.New("resource not found")

type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

const signPathPrefix = "/trade-api/v2"

// Client is the transport collaborator: a signed REST client with a token
// bucket rate limiter and bounded retries. Retries and throttling stay
// internal; callers only see eventual success, ErrNotFound, or failure.
type Client struct {
	baseURL    string
	http       *http.Client
	signer     *Signer
	limiter    *rate.Limiter
	maxRetries int
	log        *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, rps float64, maxRetries int, signer *Signer, log *zap.Logger) *Client {
	if rps <= 0 {
		rps = 8
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Client{
		baseURL:    baseURL,
		http:       &http.Client{Timeout: timeout},
		signer:     signer,
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)),
		maxRetries: maxRetries,
		log:        log,
	}
}

type MarketsPage struct {
	Markets []Market `json:"markets"`
	Cursor  string   `json:"cursor"`
}

func (c *Client) GetMarkets(ctx context.Context, limit int, cursor, status string) (MarketsPage, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	if status != "" {
		params.Set("status", status)
	}
	var page MarketsPage
	err := c.get(ctx, "/markets", params, &page)
	return page, err
}

func (c *Client) GetOrderBook(ctx context.Context, ticker string, depth int) (OrderBook, error) {
	params := url.Values{}
	if depth > 0 {
		params.Set("depth", strconv.Itoa(depth))
	}
	var resp struct {
		OrderBook OrderBook `json:"orderbook"`
	}
	err := c.get(ctx, "/markets/"+url.PathEscape(ticker)+"/orderbook", params, &resp)
	return resp.OrderBook, err
}

func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	var resp struct {
		Order Order `json:"order"`
	}
	err := c.post(ctx, "/portfolio/orders", req, &resp)
	return resp.Order, err
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.do(ctx, http.MethodDelete, "/portfolio/orders/"+url.PathEscape(orderID), nil, nil, nil)
}

type OrdersPage struct {
	Orders []Order `json:"orders"`
	Cursor string  `json:"cursor"`
}

func (c *Client) GetOrders(ctx context.Context, status, ticker string) ([]Order, error) {
	var all []Order
	cursor := ""
	for {
		params := url.Values{}
		if status != "" {
			params.Set("status", status)
		}
		if ticker != "" {
			params.Set("ticker", ticker)
		}
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		var page OrdersPage
		if err := c.get(ctx, "/portfolio/orders", params, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Orders...)
		if page.Cursor == "" {
			return all, nil
		}
		cursor = page.Cursor
	}
}

type PositionsPage struct {
	MarketPositions []Position `json:"market_positions"`
	Cursor          string     `json:"cursor"`
}

func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	var all []Position
	cursor := ""
	for {
		params := url.Values{}
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		var page PositionsPage
		if err := c.get(ctx, "/portfolio/positions", params, &page); err != nil {
			return nil, err
		}
		all = append(all, page.MarketPositions...)
		if page.Cursor == "" {
			return all, nil
		}
		cursor = page.Cursor
	}
}

func (c *Client) GetBalance(ctx context.Context) (Balance, error) {
	var bal Balance
	err := c.get(ctx, "/portfolio/balance", nil, &bal)
	return bal, err
}

type FillsPage struct {
	Fills  []Fill `json:"fills"`
	Cursor string `json:"cursor"`
}

func (c *Client) GetFills(ctx context.Context) ([]Fill, error) {
	var all []Fill
	cursor := ""
	for {
		params := url.Values{}
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		var page FillsPage
		if err := c.get(ctx, "/portfolio/fills", params, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Fills...)
		if page.Cursor == "" {
			return all, nil
		}
		cursor = page.Cursor
	}
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, params, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = data
	}
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		retryable, delay, err := c.once(ctx, method, path, params, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable || attempt == c.maxRetries-1 {
			return err
		}
		if delay <= 0 {
			delay = time.Duration(1<<attempt) * 500 * time.Millisecond
		}
		if c.log != nil {
			c.log.Debug("retrying request", zap.String("path", path), zap.Duration("delay", delay), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

// once performs a single signed request. It reports whether the failure is
// retryable and any server-provided retry delay.
func (c *Client) once(ctx context.Context, method, path string, params url.Values, payload []byte, out any) (bool, time.Duration, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return false, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.signer != nil {
		timestampMS := strconv.FormatInt(time.Now().UnixMilli(), 10)
		sig, err := c.signer.Sign(timestampMS, method, signPathPrefix+path)
		if err != nil {
			return false, 0, err
		}
		req.Header.Set("KALSHI-ACCESS-KEY", c.signer.KeyID())
		req.Header.Set("KALSHI-ACCESS-TIMESTAMP", timestampMS)
		req.Header.Set("KALSHI-ACCESS-SIGNATURE", sig)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return true, 0, err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, 0, fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return true, retryAfter(resp), &APIError{StatusCode: resp.StatusCode, Body: readBody(resp)}
	case resp.StatusCode >= 500:
		return true, 0, &APIError{StatusCode: resp.StatusCode, Body: readBody(resp)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return false, 0, &APIError{StatusCode: resp.StatusCode, Body: readBody(resp)}
	}
	if out == nil {
		return false, 0, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, 0, err
	}
	return false, 0, nil
}

func retryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func readBody(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return string(data)
}
