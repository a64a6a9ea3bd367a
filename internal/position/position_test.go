package position

import (
	"math"
	"testing"

	"pm-trade-bot/internal/kalshi"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestApplyFillOpensAndAverages(t *testing.T) {
	p := &Position{Ticker: "TEST-24"}

	if pnl := p.ApplyFill(kalshi.ActionBuy, 40, 10); pnl != 0 {
		t.Fatalf("opening fill realized %.4f, want 0", pnl)
	}
	if p.Quantity != 10 || !almostEqual(p.AvgCost, 0.40) {
		t.Fatalf("got qty=%d avg=%.4f, want 10 @ 0.40", p.Quantity, p.AvgCost)
	}

	if pnl := p.ApplyFill(kalshi.ActionBuy, 60, 10); pnl != 0 {
		t.Fatalf("extending fill realized %.4f, want 0", pnl)
	}
	if p.Quantity != 20 || !almostEqual(p.AvgCost, 0.50) {
		t.Fatalf("got qty=%d avg=%.4f, want 20 @ 0.50", p.Quantity, p.AvgCost)
	}
}

func TestApplyFillRealizesOnReduce(t *testing.T) {
	p := &Position{Ticker: "TEST-24"}
	p.ApplyFill(kalshi.ActionBuy, 40, 10)

	pnl := p.ApplyFill(kalshi.ActionSell, 55, 4)
	if !almostEqual(pnl, 4*0.15) {
		t.Fatalf("realized %.4f, want %.4f", pnl, 4*0.15)
	}
	if p.Quantity != 6 || !almostEqual(p.AvgCost, 0.40) {
		t.Fatalf("got qty=%d avg=%.4f, want 6 @ 0.40", p.Quantity, p.AvgCost)
	}
	if !almostEqual(p.RealizedPnL, 0.60) {
		t.Fatalf("cumulative pnl %.4f, want 0.60", p.RealizedPnL)
	}
}

func TestApplyFillFullCloseResetsAvgCost(t *testing.T) {
	p := &Position{Ticker: "TEST-24"}
	p.ApplyFill(kalshi.ActionBuy, 40, 10)

	pnl := p.ApplyFill(kalshi.ActionSell, 30, 10)
	if !almostEqual(pnl, -1.00) {
		t.Fatalf("realized %.4f, want -1.00", pnl)
	}
	if p.Quantity != 0 {
		t.Fatalf("quantity %d, want 0", p.Quantity)
	}
	if p.AvgCost != 0 {
		t.Fatalf("avg cost %.4f after full close, want 0", p.AvgCost)
	}
}

func TestApplyFillCrossesZero(t *testing.T) {
	p := &Position{Ticker: "TEST-24"}
	p.ApplyFill(kalshi.ActionBuy, 40, 10)

	// Sell 15: close 10 at a gain, open 5 short at the fill price.
	pnl := p.ApplyFill(kalshi.ActionSell, 50, 15)
	if !almostEqual(pnl, 1.00) {
		t.Fatalf("realized %.4f, want 1.00", pnl)
	}
	if p.Quantity != -5 {
		t.Fatalf("quantity %d, want -5", p.Quantity)
	}
	if !almostEqual(p.AvgCost, 0.50) {
		t.Fatalf("avg cost %.4f, want 0.50 (reset to fill price)", p.AvgCost)
	}
}

func TestApplyFillShortSide(t *testing.T) {
	p := &Position{Ticker: "TEST-24"}
	p.ApplyFill(kalshi.ActionSell, 60, 10)
	if p.Quantity != -10 || !almostEqual(p.AvgCost, 0.60) {
		t.Fatalf("got qty=%d avg=%.4f, want -10 @ 0.60", p.Quantity, p.AvgCost)
	}

	// Buying back below the short entry realizes a profit.
	pnl := p.ApplyFill(kalshi.ActionBuy, 45, 10)
	if !almostEqual(pnl, 1.50) {
		t.Fatalf("realized %.4f, want 1.50", pnl)
	}
	if p.Quantity != 0 || p.AvgCost != 0 {
		t.Fatalf("got qty=%d avg=%.4f after close, want flat", p.Quantity, p.AvgCost)
	}
}

func TestApplyFillAccumulatesRealized(t *testing.T) {
	p := &Position{Ticker: "TEST-24"}
	p.ApplyFill(kalshi.ActionBuy, 40, 10)
	p.ApplyFill(kalshi.ActionSell, 50, 5)
	p.ApplyFill(kalshi.ActionSell, 30, 5)
	want := 5*0.10 - 5*0.10
	if !almostEqual(p.RealizedPnL, want) {
		t.Fatalf("cumulative pnl %.4f, want %.4f", p.RealizedPnL, want)
	}
}
