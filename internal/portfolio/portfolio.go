// Package portfolio tracks the account's balance and positions by
// reconciling with the exchange.
package portfolio

import (
	"context"
	"sync"

	"pm-trade-bot/internal/kalshi"

	"go.uber.org/zap"
)

type Client interface {
	GetBalance(ctx context.Context) (kalshi.Balance, error)
	GetPositions(ctx context.Context) ([]kalshi.Position, error)
}

type Snapshot struct {
	BalanceCents int
	Positions    []kalshi.Position
}

func (s Snapshot) BalanceDollars() float64 {
	return float64(s.BalanceCents) / 100
}

func (s Snapshot) TotalRealizedPnLDollars() float64 {
	total := 0.0
	for _, p := range s.Positions {
		total += p.RealizedPnLDollars()
	}
	return total
}

// TotalQuantity is the aggregate exposure: the sum of absolute position
// sizes across markets.
func (s Snapshot) TotalQuantity() int {
	total := 0
	for _, p := range s.Positions {
		if p.Quantity < 0 {
			total -= p.Quantity
		} else {
			total += p.Quantity
		}
	}
	return total
}

func (s Snapshot) OpenPositions() int {
	count := 0
	for _, p := range s.Positions {
		if p.Quantity != 0 {
			count++
		}
	}
	return count
}

type Tracker struct {
	client Client
	log    *zap.Logger

	mu          sync.Mutex
	snapshot    Snapshot
	baseline    float64
	hasBaseline bool
}

func NewTracker(client Client, log *zap.Logger) *Tracker {
	return &Tracker{client: client, log: log}
}

// Sync replaces the in-memory snapshot with the exchange's view. The first
// successful sync captures the daily PnL baseline.
func (t *Tracker) Sync(ctx context.Context) (Snapshot, error) {
	balance, err := t.client.GetBalance(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	positions, err := t.client.GetPositions(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	snapshot := Snapshot{BalanceCents: balance.Balance, Positions: positions}
	t.mu.Lock()
	t.snapshot = snapshot
	if !t.hasBaseline {
		t.baseline = snapshot.TotalRealizedPnLDollars()
		t.hasBaseline = true
	}
	t.mu.Unlock()

	t.log.Info("portfolio synced",
		zap.Float64("balance", snapshot.BalanceDollars()),
		zap.Int("positions", snapshot.OpenPositions()),
		zap.Int("total_quantity", snapshot.TotalQuantity()),
		zap.Float64("realized_pnl", snapshot.TotalRealizedPnLDollars()),
	)
	return snapshot, nil
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot
}

// DailyPnL is realized PnL accumulated since the baseline; zero before the
// first sync.
func (t *Tracker) DailyPnL() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.hasBaseline {
		return 0
	}
	return t.snapshot.TotalRealizedPnLDollars() - t.baseline
}

// ResetDailyPnL re-captures the baseline at the current value. Manual
// operation; there is no scheduled end-of-day reset.
func (t *Tracker) ResetDailyPnL() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.baseline = t.snapshot.TotalRealizedPnLDollars()
	t.hasBaseline = true
}

func (t *Tracker) PositionQuantity(ticker string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.snapshot.Positions {
		if p.MarketTicker == ticker {
			return p.Quantity
		}
	}
	return 0
}

func (t *Tracker) TotalQuantity() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot.TotalQuantity()
}
