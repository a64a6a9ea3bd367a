package strategy

import (
	"context"
	"testing"

	"pm-trade-bot/internal/config"
	"pm-trade-bot/internal/kalshi"

	"go.uber.org/zap"
)

func testBook(yesBid, yesAsk int) kalshi.OrderBook {
	return kalshi.OrderBook{
		Yes: []kalshi.OrderBookLevel{{Price: yesBid, Quantity: 100}},
		No:  []kalshi.OrderBookLevel{{Price: 100 - yesAsk, Quantity: 100}},
	}
}

func naiveForTest() *NaiveValue {
	return NewNaiveValue(config.NaiveValueConfig{
		ThresholdCents: 5,
		Quantity:       1,
		MinSpread:      2,
		MaxSpread:      30,
		MinVolume:      10,
	}, zap.NewNop())
}

func TestNaiveValueBuysUnderpriced(t *testing.T) {
	s := naiveForTest()
	m := kalshi.Market{Ticker: "CPI-24", LastPrice: 40, Volume: 100}
	book := testBook(48, 52) // mid 50, last 40, deviation -10

	signals, err := s.OnMarketUpdate(context.Background(), m, book)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("got %d signals, want 1", len(signals))
	}
	sig := signals[0]
	if sig.Action != kalshi.ActionBuy {
		t.Fatalf("action %s, want buy", sig.Action)
	}
	if sig.Price != 49 {
		t.Fatalf("price %d, want 49 (best bid + 1)", sig.Price)
	}
	if sig.Confidence != 0.5 {
		t.Fatalf("confidence %.2f, want 0.50", sig.Confidence)
	}
}

func TestNaiveValueSellsOverpriced(t *testing.T) {
	s := naiveForTest()
	m := kalshi.Market{Ticker: "CPI-24", LastPrice: 60, Volume: 100}
	book := testBook(48, 52)

	signals, err := s.OnMarketUpdate(context.Background(), m, book)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(signals) != 1 || signals[0].Action != kalshi.ActionSell {
		t.Fatalf("want one sell signal, got %v", signals)
	}
	if signals[0].Price != 51 {
		t.Fatalf("price %d, want 51 (best ask - 1)", signals[0].Price)
	}
}

func TestNaiveValueNoSignalWithinThreshold(t *testing.T) {
	s := naiveForTest()
	m := kalshi.Market{Ticker: "CPI-24", LastPrice: 47, Volume: 100}
	signals, err := s.OnMarketUpdate(context.Background(), m, testBook(48, 52))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(signals) != 0 {
		t.Fatalf("deviation 3c under threshold 5c should produce no signals, got %d", len(signals))
	}
}

func TestNaiveValueSpreadGate(t *testing.T) {
	s := naiveForTest()
	m := kalshi.Market{Ticker: "CPI-24", LastPrice: 20, Volume: 100}

	// Spread 1 is below min_spread 2.
	if signals, _ := s.OnMarketUpdate(context.Background(), m, testBook(49, 50)); len(signals) != 0 {
		t.Fatalf("tight spread should be skipped, got %d signals", len(signals))
	}
	// Spread 40 is above max_spread 30.
	if signals, _ := s.OnMarketUpdate(context.Background(), m, testBook(30, 70)); len(signals) != 0 {
		t.Fatalf("wide spread should be skipped, got %d signals", len(signals))
	}
}

func TestNaiveValueEmptyBook(t *testing.T) {
	s := naiveForTest()
	m := kalshi.Market{Ticker: "CPI-24", LastPrice: 40, Volume: 100}
	signals, err := s.OnMarketUpdate(context.Background(), m, kalshi.OrderBook{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(signals) != 0 {
		t.Fatalf("empty book should produce no signals, got %d", len(signals))
	}
}

func TestNaiveValueShouldTrade(t *testing.T) {
	s := naiveForTest()
	if s.ShouldTrade(kalshi.Market{Volume: 5, YesBid: 48, YesAsk: 52}) {
		t.Fatalf("volume below minimum should not trade")
	}
	if s.ShouldTrade(kalshi.Market{Volume: 100, YesBid: 0, YesAsk: 52}) {
		t.Fatalf("one-sided quote should not trade")
	}
	if !s.ShouldTrade(kalshi.Market{Volume: 100, YesBid: 48, YesAsk: 52}) {
		t.Fatalf("liquid two-sided market should trade")
	}
}
