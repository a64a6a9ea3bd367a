package kalshi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second, 100, 2, nil, zap.NewNop())
}

func TestGetMarketsPassesPagingParams(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("limit") != "200" || q.Get("cursor") != "abc" || q.Get("status") != "open" {
			t.Errorf("query = %v", q)
		}
		json.NewEncoder(w).Encode(MarketsPage{
			Markets: []Market{{Ticker: "CPI-24"}},
			Cursor:  "next",
		})
	}))

	page, err := client.GetMarkets(context.Background(), 200, "abc", "open")
	if err != nil {
		t.Fatalf("GetMarkets: %v", err)
	}
	if len(page.Markets) != 1 || page.Markets[0].Ticker != "CPI-24" {
		t.Fatalf("markets = %+v", page.Markets)
	}
	if page.Cursor != "next" {
		t.Fatalf("cursor = %q", page.Cursor)
	}
}

func TestGetOrderBookNotFound(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	_, err := client.GetOrderBook(context.Background(), "GONE-MARKET", 10)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestServerErrorRetriedThenSucceeds(t *testing.T) {
	var calls int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "upstream sad", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(Balance{Balance: 12_345})
	}))

	bal, err := client.GetBalance(context.Background())
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if bal.Balance != 12_345 {
		t.Fatalf("balance = %d", bal.Balance)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("calls = %d, want 2", n)
	}
}

func TestRateLimitHonorsRetryAfter(t *testing.T) {
	var calls int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(Balance{Balance: 100})
	}))

	if _, err := client.GetBalance(context.Background()); err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("calls = %d, want 2", n)
	}
}

func TestClientErrorNotRetried(t *testing.T) {
	var calls int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad order", http.StatusBadRequest)
	}))

	_, err := client.CreateOrder(context.Background(), OrderRequest{Ticker: "CPI-24"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", apiErr.StatusCode)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}
}

func TestCreateOrderPostsBody(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/portfolio/orders" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var req OrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if req.Ticker != "CPI-24" || req.Action != "buy" || req.Count != 5 {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(struct {
			Order Order `json:"order"`
		}{Order: Order{OrderID: "ord-1", Ticker: req.Ticker}})
	}))

	order, err := client.CreateOrder(context.Background(), OrderRequest{
		Ticker: "CPI-24",
		Action: "buy",
		Count:  5,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.OrderID != "ord-1" {
		t.Fatalf("order id = %q", order.OrderID)
	}
}

func TestCancelOrderDeletesByID(t *testing.T) {
	var gotMethod, gotPath string
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))

	if err := client.CancelOrder(context.Background(), "ord-9"); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/portfolio/orders/ord-9" {
		t.Fatalf("%s %s", gotMethod, gotPath)
	}
}

func TestGetOrdersFollowsCursor(t *testing.T) {
	var calls int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			if r.URL.Query().Get("status") != "resting" {
				t.Errorf("status = %q", r.URL.Query().Get("status"))
			}
			json.NewEncoder(w).Encode(OrdersPage{
				Orders: []Order{{OrderID: "a"}},
				Cursor: "page2",
			})
			return
		}
		if r.URL.Query().Get("cursor") != "page2" {
			t.Errorf("cursor = %q", r.URL.Query().Get("cursor"))
		}
		json.NewEncoder(w).Encode(OrdersPage{Orders: []Order{{OrderID: "b"}}})
	}))

	orders, err := client.GetOrders(context.Background(), "resting", "")
	if err != nil {
		t.Fatalf("GetOrders: %v", err)
	}
	if len(orders) != 2 || orders[0].OrderID != "a" || orders[1].OrderID != "b" {
		t.Fatalf("orders = %+v", orders)
	}
}

func TestSignedRequestCarriesAuthHeaders(t *testing.T) {
	signer, _ := testSigner(t)
	var gotKey, gotTimestamp, gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("KALSHI-ACCESS-KEY")
		gotTimestamp = r.Header.Get("KALSHI-ACCESS-TIMESTAMP")
		gotSig = r.Header.Get("KALSHI-ACCESS-SIGNATURE")
		json.NewEncoder(w).Encode(Balance{})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, 100, 2, signer, zap.NewNop())
	if _, err := client.GetBalance(context.Background()); err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if gotKey != "key-id-1" {
		t.Fatalf("access key = %q", gotKey)
	}
	if gotTimestamp == "" || gotSig == "" {
		t.Fatalf("missing timestamp or signature header")
	}
}
