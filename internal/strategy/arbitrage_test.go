package strategy

import (
	"context"
	"testing"

	"pm-trade-bot/internal/config"
	"pm-trade-bot/internal/kalshi"

	"go.uber.org/zap"
)

func arbForTest() *CrossMarketArb {
	return NewCrossMarketArb(config.ArbitrageConfig{MinEdgeCents: 3, Quantity: 1}, zap.NewNop())
}

func TestExtractThreshold(t *testing.T) {
	cases := []struct {
		title string
		want  float64
		ok    bool
	}{
		{"GDP growth above 3.0%", 3.0, true},
		{"Inflation below 2.5", 2.5, true},
		{"Temperature over 90", 90, true},
		{"Rate >= 5.25", 5.25, true},
		{"Who wins the election?", 0, false},
	}
	for _, tc := range cases {
		got, ok := extractThreshold(tc.title)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("extractThreshold(%q) = (%v, %v), want (%v, %v)", tc.title, got, ok, tc.want, tc.ok)
		}
	}
}

func TestArbitrageMonotonicityViolation(t *testing.T) {
	s := arbForTest()
	markets := []kalshi.Market{
		{Ticker: "GDP-HIGH", Title: "GDP above 4.0", EventTicker: "GDP", LastPrice: 40},
		{Ticker: "GDP-LOW", Title: "GDP above 2.0", EventTicker: "GDP", LastPrice: 30},
	}
	s.RegisterMarkets(markets)

	signals, err := s.OnMarketUpdate(context.Background(), markets[0], kalshi.OrderBook{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Higher threshold trading above lower threshold: sell the upper, buy
	// the lower. Prices sum to 70 which also trips the underround check.
	var sell, buy *Signal
	for i := range signals {
		sig := signals[i]
		switch {
		case sig.Ticker == "GDP-HIGH" && sig.Action == kalshi.ActionSell:
			sell = &signals[i]
		case sig.Ticker == "GDP-LOW" && sig.Action == kalshi.ActionBuy:
			buy = &signals[i]
		}
	}
	if sell == nil || sell.Price != 39 {
		t.Fatalf("expected sell GDP-HIGH@39, got %+v", sell)
	}
	if buy == nil || buy.Price != 31 {
		t.Fatalf("expected buy GDP-LOW@31, got %+v", buy)
	}
}

func TestArbitrageOverround(t *testing.T) {
	s := arbForTest()
	// Mutually exclusive outcomes summing to 105 with min_edge 3: sell the
	// most expensive one.
	markets := []kalshi.Market{
		{Ticker: "WIN-A", Title: "Candidate A wins", EventTicker: "RACE", LastPrice: 40},
		{Ticker: "WIN-B", Title: "Candidate B wins", EventTicker: "RACE", LastPrice: 35},
		{Ticker: "WIN-C", Title: "Candidate C wins", EventTicker: "RACE", LastPrice: 30},
	}
	s.RegisterMarkets(markets)

	signals, err := s.OnMarketUpdate(context.Background(), markets[0], kalshi.OrderBook{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("got %d signals, want 1", len(signals))
	}
	sig := signals[0]
	if sig.Ticker != "WIN-A" || sig.Action != kalshi.ActionSell || sig.Price != 39 {
		t.Fatalf("got %s %s@%d, want sell WIN-A@39", sig.Action, sig.Ticker, sig.Price)
	}
}

func TestArbitrageUnderround(t *testing.T) {
	s := arbForTest()
	markets := []kalshi.Market{
		{Ticker: "WIN-A", Title: "Candidate A wins", EventTicker: "RACE", LastPrice: 50},
		{Ticker: "WIN-B", Title: "Candidate B wins", EventTicker: "RACE", LastPrice: 40},
	}
	s.RegisterMarkets(markets)

	signals, err := s.OnMarketUpdate(context.Background(), markets[0], kalshi.OrderBook{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("got %d signals, want 1", len(signals))
	}
	sig := signals[0]
	if sig.Ticker != "WIN-B" || sig.Action != kalshi.ActionBuy || sig.Price != 41 {
		t.Fatalf("got %s %s@%d, want buy WIN-B@41", sig.Action, sig.Ticker, sig.Price)
	}
}

func TestArbitrageNoSignalWithinEdge(t *testing.T) {
	s := arbForTest()
	markets := []kalshi.Market{
		{Ticker: "WIN-A", Title: "Candidate A wins", EventTicker: "RACE", LastPrice: 51},
		{Ticker: "WIN-B", Title: "Candidate B wins", EventTicker: "RACE", LastPrice: 50},
	}
	s.RegisterMarkets(markets)

	signals, err := s.OnMarketUpdate(context.Background(), markets[0], kalshi.OrderBook{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(signals) != 0 {
		t.Fatalf("sum 101 within edge 3 should not signal, got %d", len(signals))
	}
}

func TestArbitrageSingleMarketGroup(t *testing.T) {
	s := arbForTest()
	m := kalshi.Market{Ticker: "SOLO", EventTicker: "SOLO-EVT", LastPrice: 50}
	s.RegisterMarkets([]kalshi.Market{m})

	signals, err := s.OnMarketUpdate(context.Background(), m, kalshi.OrderBook{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(signals) != 0 {
		t.Fatalf("single-market group should not signal, got %d", len(signals))
	}
}

func TestArbitrageRegisterReplacesGroups(t *testing.T) {
	s := arbForTest()
	stale := []kalshi.Market{
		{Ticker: "OLD-A", EventTicker: "OLD", LastPrice: 80},
		{Ticker: "OLD-B", EventTicker: "OLD", LastPrice: 70},
	}
	s.RegisterMarkets(stale)
	s.RegisterMarkets([]kalshi.Market{{Ticker: "NEW-A", EventTicker: "NEW", LastPrice: 50}})

	signals, err := s.OnMarketUpdate(context.Background(), stale[0], kalshi.OrderBook{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(signals) != 0 {
		t.Fatalf("stale group should be gone after re-registration, got %d signals", len(signals))
	}
}
