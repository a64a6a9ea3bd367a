package backtest

import (
	"context"
	"math"
	"sort"
	"time"

	"pm-trade-bot/internal/config"
	"pm-trade-bot/internal/kalshi"
	"pm-trade-bot/internal/position"
	"pm-trade-bot/internal/store"
	"pm-trade-bot/internal/strategy"

	"go.uber.org/zap"
)

// SimulatedFill is one executed signal during replay. PnL is the realized
// profit in dollars, zero for fills that open or extend a position.
type SimulatedFill struct {
	Ticker   string
	Action   kalshi.Action
	Side     kalshi.Side
	Price    int
	Quantity int
	Strategy string
	Reason   string
	PnL      float64
	At       time.Time
}

type EquityPoint struct {
	At     time.Time
	Equity float64
}

type Result struct {
	StartingBalance float64
	FinalBalance    float64
	Fills           []SimulatedFill
	Equity          []EquityPoint
	Positions       map[string]*position.Position
}

// Engine replays persisted market records through the configured strategies
// against a simulated fill model. Replay is deterministic: records are
// processed in fetch order and every accepted signal fills at the signal
// price adjusted by fixed slippage.
type Engine struct {
	cfg        config.BacktestConfig
	strategies []strategy.Strategy
	log        *zap.Logger
}

func NewEngine(cfg config.BacktestConfig, strategies []strategy.Strategy, log *zap.Logger) *Engine {
	return &Engine{cfg: cfg, strategies: strategies, log: log}
}

// Run replays records oldest-first. Each record is paired with the order-book
// snapshot closest in time for its ticker; tickers with no snapshot replay
// against an empty book.
func (e *Engine) Run(ctx context.Context, records []store.MarketRecord, snapshots []store.BookSnapshot) (*Result, error) {
	ordered := make([]store.MarketRecord, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].FetchedAt.Before(ordered[j].FetchedAt)
	})

	booksByTicker := make(map[string][]store.BookSnapshot)
	for _, snap := range snapshots {
		booksByTicker[snap.Ticker] = append(booksByTicker[snap.Ticker], snap)
	}

	res := &Result{
		StartingBalance: e.cfg.StartingBalance,
		FinalBalance:    e.cfg.StartingBalance,
		Positions:       make(map[string]*position.Position),
	}

	for _, rec := range ordered {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		m := rec.Market()
		book := closestBook(booksByTicker[m.Ticker], rec.FetchedAt)

		for _, s := range e.strategies {
			if !s.ShouldTrade(m) {
				continue
			}
			signals, err := s.OnMarketUpdate(ctx, m, book)
			if err != nil {
				e.log.Warn("strategy failed during replay",
					zap.String("strategy", s.Name()),
					zap.String("ticker", m.Ticker),
					zap.Error(err))
				continue
			}
			for _, sig := range signals {
				e.execute(res, sig, rec.FetchedAt)
			}
		}

		// Each equity point is the post-record cash balance; open positions
		// are not marked to market.
		res.Equity = append(res.Equity, EquityPoint{
			At:     rec.FetchedAt,
			Equity: res.FinalBalance,
		})
	}
	return res, nil
}

// execute applies one signal to the simulated book. Buys that the balance
// cannot cover are skipped. The balance moves by the buy cost or sell
// proceeds, then by the realized PnL delta of the fill.
func (e *Engine) execute(res *Result, sig strategy.Signal, at time.Time) {
	price := sig.Price
	if sig.Action == kalshi.ActionBuy {
		price += e.cfg.SlippageCents
	} else {
		price -= e.cfg.SlippageCents
	}
	price = clampPrice(price)

	notional := float64(price) / 100 * float64(sig.Quantity)
	if sig.Action == kalshi.ActionBuy {
		if res.FinalBalance < notional {
			return
		}
		res.FinalBalance -= notional
	} else {
		res.FinalBalance += notional
	}

	pos, ok := res.Positions[sig.Ticker]
	if !ok {
		pos = &position.Position{Ticker: sig.Ticker}
		res.Positions[sig.Ticker] = pos
	}
	pnl := pos.ApplyFill(sig.Action, price, sig.Quantity)
	res.FinalBalance += pnl

	res.Fills = append(res.Fills, SimulatedFill{
		Ticker:   sig.Ticker,
		Action:   sig.Action,
		Side:     sig.Side,
		Price:    price,
		Quantity: sig.Quantity,
		Strategy: sig.Strategy,
		Reason:   sig.Reason,
		PnL:      pnl,
		At:       at,
	})
}

// closestBook picks the snapshot nearest the record time by absolute
// distance; the earliest-stored snapshot wins ties.
func closestBook(snaps []store.BookSnapshot, at time.Time) kalshi.OrderBook {
	if len(snaps) == 0 {
		return kalshi.OrderBook{}
	}
	best := 0
	bestDist := absDuration(snaps[0].CapturedAt.Sub(at))
	for i := 1; i < len(snaps); i++ {
		d := absDuration(snaps[i].CapturedAt.Sub(at))
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	return snaps[best].Book
}

func clampPrice(p int) int {
	if p < 1 {
		return 1
	}
	if p > 99 {
		return 99
	}
	return p
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// TotalReturn is the percentage change of the ending balance over the
// starting balance.
func (r *Result) TotalReturn() float64 {
	if r.StartingBalance <= 0 {
		return 0
	}
	return (r.FinalBalance - r.StartingBalance) / r.StartingBalance * 100
}

// WinRate is the share of closing fills with positive realized PnL, over
// fills that realized anything at all.
func (r *Result) WinRate() float64 {
	wins, closed := 0, 0
	for _, f := range r.Fills {
		if f.PnL == 0 {
			continue
		}
		closed++
		if f.PnL > 0 {
			wins++
		}
	}
	if closed == 0 {
		return 0
	}
	return float64(wins) / float64(closed)
}

// SharpeRatio is the annualized mean/stdev of realized PnL over closing
// fills. Opening fills carry no PnL and are excluded; zero with fewer than
// two closing fills or zero variance.
func (r *Result) SharpeRatio() float64 {
	pnls := make([]float64, 0, len(r.Fills))
	for _, f := range r.Fills {
		if f.PnL != 0 {
			pnls = append(pnls, f.PnL)
		}
	}
	if len(pnls) < 2 {
		return 0
	}
	mean := 0.0
	for _, p := range pnls {
		mean += p
	}
	mean /= float64(len(pnls))

	variance := 0.0
	for _, p := range pnls {
		d := p - mean
		variance += d * d
	}
	variance /= float64(len(pnls) - 1)
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance) * math.Sqrt(252)
}

// MaxDrawdown is the largest peak-to-trough balance decline in dollars.
// The peak seeds from the first equity point.
func (r *Result) MaxDrawdown() float64 {
	if len(r.Equity) == 0 {
		return 0
	}
	peak := r.Equity[0].Equity
	worst := 0.0
	for _, p := range r.Equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if dd := peak - p.Equity; dd > worst {
			worst = dd
		}
	}
	return worst
}
