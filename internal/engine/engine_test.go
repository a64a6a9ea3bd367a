package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"pm-trade-bot/internal/kalshi"
	"pm-trade-bot/internal/orders"
	"pm-trade-bot/internal/risk"
	"pm-trade-bot/internal/strategy"

	"go.uber.org/zap"
)

type fakeBooks struct {
	books map[string]kalshi.OrderBook
	errs  map[string]error
	calls int
}

func (f *fakeBooks) GetOrderBook(ctx context.Context, ticker string, depth int) (kalshi.OrderBook, error) {
	f.calls++
	if err := f.errs[ticker]; err != nil {
		return kalshi.OrderBook{}, err
	}
	return f.books[ticker], nil
}

type fakeExchange struct {
	created []kalshi.OrderRequest
}

func (f *fakeExchange) CreateOrder(ctx context.Context, req kalshi.OrderRequest) (kalshi.Order, error) {
	f.created = append(f.created, req)
	return kalshi.Order{OrderID: fmt.Sprintf("ord-%d", len(f.created)), Ticker: req.Ticker}, nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, orderID string) error { return nil }

func (f *fakeExchange) GetOrders(ctx context.Context, status, ticker string) ([]kalshi.Order, error) {
	return nil, nil
}

type flatPortfolio struct{}

func (flatPortfolio) PositionQuantity(string) int { return 0 }
func (flatPortfolio) TotalQuantity() int          { return 0 }
func (flatPortfolio) DailyPnL() float64           { return 0 }

// stubStrategy emits a fixed set of signals, or an error.
type stubStrategy struct {
	name    string
	trade   bool
	signals []strategy.Signal
	err     error
	evals   int
}

func (s *stubStrategy) Name() string                        { return s.name }
func (s *stubStrategy) ShouldTrade(m kalshi.Market) bool    { return s.trade }
func (s *stubStrategy) OnMarketUpdate(ctx context.Context, m kalshi.Market, book kalshi.OrderBook) ([]strategy.Signal, error) {
	s.evals++
	return s.signals, s.err
}

func permissiveRisk() *risk.Manager {
	limits := risk.Limits{MaxPositionPerMarket: 1000, MaxTotalExposure: 10000, MaxDailyLoss: 1e9}
	return risk.NewManager(flatPortfolio{}, limits, zap.NewNop())
}

func testSignal(ticker string) strategy.Signal {
	return strategy.Signal{
		Ticker:   ticker,
		Action:   kalshi.ActionBuy,
		Side:     kalshi.SideYes,
		Price:    50,
		Quantity: 1,
		Strategy: "stub",
	}
}

func newTestEngine(books *fakeBooks, ex *fakeExchange, strategies ...strategy.Strategy) *StrategyEngine {
	om := orders.NewManager(ex, nil, zap.NewNop(), nil)
	return NewStrategyEngine(books, strategies, permissiveRisk(), om, nil, 10, zap.NewNop(), nil)
}

func TestEvaluateMarketPlacesAcceptedSignals(t *testing.T) {
	books := &fakeBooks{books: map[string]kalshi.OrderBook{"T-1": {}}}
	ex := &fakeExchange{}
	stub := &stubStrategy{name: "stub", trade: true, signals: []strategy.Signal{testSignal("T-1")}}
	eng := newTestEngine(books, ex, stub)

	placed := eng.EvaluateMarket(context.Background(), kalshi.Market{Ticker: "T-1"})
	if placed != 1 {
		t.Fatalf("placed %d orders, want 1", placed)
	}
	if len(ex.created) != 1 || ex.created[0].Ticker != "T-1" {
		t.Fatalf("unexpected exchange calls: %+v", ex.created)
	}
}

func TestEvaluateMarketSkipsUninterested(t *testing.T) {
	books := &fakeBooks{books: map[string]kalshi.OrderBook{}}
	stub := &stubStrategy{name: "stub", trade: false}
	eng := newTestEngine(books, &fakeExchange{}, stub)

	eng.EvaluateMarket(context.Background(), kalshi.Market{Ticker: "T-1"})
	if books.calls != 0 {
		t.Fatalf("book fetched despite no interested strategy")
	}
	if stub.evals != 0 {
		t.Fatalf("strategy evaluated despite ShouldTrade=false")
	}
}

func TestEvaluateMarketVanishedMarket(t *testing.T) {
	books := &fakeBooks{errs: map[string]error{
		"GONE": fmt.Errorf("GET /markets: %w", kalshi.ErrNotFound),
	}}
	stub := &stubStrategy{name: "stub", trade: true, signals: []strategy.Signal{testSignal("GONE")}}
	eng := newTestEngine(books, &fakeExchange{}, stub)

	placed := eng.EvaluateMarket(context.Background(), kalshi.Market{Ticker: "GONE"})
	if placed != 0 {
		t.Fatalf("vanished market should be skipped, placed %d", placed)
	}
	if stub.evals != 0 {
		t.Fatalf("strategy must not run without a book")
	}
}

func TestEvaluateMarketStrategyErrorIsolated(t *testing.T) {
	books := &fakeBooks{books: map[string]kalshi.OrderBook{"T-1": {}}}
	ex := &fakeExchange{}
	broken := &stubStrategy{name: "broken", trade: true, err: errors.New("divide by zero")}
	healthy := &stubStrategy{name: "healthy", trade: true, signals: []strategy.Signal{testSignal("T-1")}}
	eng := newTestEngine(books, ex, broken, healthy)

	placed := eng.EvaluateMarket(context.Background(), kalshi.Market{Ticker: "T-1"})
	if placed != 1 {
		t.Fatalf("healthy strategy should still place, got %d", placed)
	}
	if healthy.evals != 1 {
		t.Fatalf("healthy strategy was not evaluated")
	}
}

func TestEvaluateMarketsRejectedSignalNotPlaced(t *testing.T) {
	books := &fakeBooks{books: map[string]kalshi.OrderBook{"T-1": {}}}
	ex := &fakeExchange{}
	big := testSignal("T-1")
	big.Quantity = 5000 // beyond the per-market cap
	stub := &stubStrategy{name: "stub", trade: true, signals: []strategy.Signal{big}}
	eng := newTestEngine(books, ex, stub)

	placed := eng.EvaluateMarkets(context.Background(), []kalshi.Market{{Ticker: "T-1"}})
	if placed != 0 {
		t.Fatalf("rejected signal must not place an order, got %d", placed)
	}
	if len(ex.created) != 0 {
		t.Fatalf("exchange should not have been called")
	}
}
