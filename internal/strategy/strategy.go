// Package strategy defines the signal-producing strategy contract and its
// four implementations.
package strategy

import (
	"context"
	"fmt"
	"time"

	"pm-trade-bot/internal/kalshi"
)

// Signal is an immutable proposed trade.
type Signal struct {
	Ticker     string
	Action     kalshi.Action
	Side       kalshi.Side
	Price      int // cents, 1..99
	Quantity   int
	Confidence float64 // 0..1
	Reason     string
	Strategy   string
	CreatedAt  time.Time
}

type Strategy interface {
	// ShouldTrade is a cheap synchronous gate used to skip book fetches.
	ShouldTrade(market kalshi.Market) bool
	// OnMarketUpdate evaluates a market against its order book. It may
	// perform I/O (external estimate sources).
	OnMarketUpdate(ctx context.Context, market kalshi.Market, book kalshi.OrderBook) ([]Signal, error)
	Name() string
}

// Registry is an explicit strategy registry constructed at startup and passed
// by value, so tests can build isolated registries.
type Registry struct {
	factories map[string]func() Strategy
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]func() Strategy)}
}

func (r *Registry) Register(name string, factory func() Strategy) {
	r.factories[name] = factory
}

func (r *Registry) Build(names []string) ([]Strategy, error) {
	strategies := make([]Strategy, 0, len(names))
	for _, name := range names {
		factory, ok := r.factories[name]
		if !ok {
			return nil, fmt.Errorf("unknown strategy %q", name)
		}
		strategies = append(strategies, factory())
	}
	return strategies, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

func clampConfidence(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

func newSignal(name, ticker string, action kalshi.Action, price, quantity int, confidence float64, reason string) Signal {
	return Signal{
		Ticker:     ticker,
		Action:     action,
		Side:       kalshi.SideYes,
		Price:      price,
		Quantity:   quantity,
		Confidence: clampConfidence(confidence),
		Reason:     reason,
		Strategy:   name,
		CreatedAt:  time.Now().UTC(),
	}
}
