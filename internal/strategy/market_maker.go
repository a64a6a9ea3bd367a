package strategy

import (
	"context"
	"fmt"
	"sync"

	"pm-trade-bot/internal/config"
	"pm-trade-bot/internal/kalshi"

	"go.uber.org/zap"
)

// MarketMaker quotes both sides around the mid-price, skewing quotes away
// from the side it already over-holds.
type MarketMaker struct {
	halfSpread      int
	quantity        int
	minSpread       int
	maxInventory    int
	minVolume       int
	skewPerContract float64
	log             *zap.Logger

	mu        sync.Mutex
	inventory map[string]int // signed contracts per ticker
}

func NewMarketMaker(cfg config.MarketMakerConfig, log *zap.Logger) *MarketMaker {
	return &MarketMaker{
		halfSpread:      cfg.HalfSpread,
		quantity:        cfg.Quantity,
		minSpread:       cfg.MinSpread,
		maxInventory:    cfg.MaxInventory,
		minVolume:       cfg.MinVolume,
		skewPerContract: cfg.SkewPerContract,
		log:             log,
		inventory:       make(map[string]int),
	}
}

func (s *MarketMaker) Name() string { return "market_maker" }

func (s *MarketMaker) ShouldTrade(m kalshi.Market) bool {
	return m.Volume >= s.minVolume
}

// UpdateInventory records a fill against the maker's own inventory book.
func (s *MarketMaker) UpdateInventory(ticker string, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventory[ticker] += delta
}

func (s *MarketMaker) Inventory(ticker string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inventory[ticker]
}

func (s *MarketMaker) OnMarketUpdate(ctx context.Context, m kalshi.Market, book kalshi.OrderBook) ([]Signal, error) {
	_ = ctx
	mid, okMid := book.MidPrice()
	spread, okSpread := book.Spread()
	if !okMid || !okSpread {
		return nil, nil
	}
	if spread < s.minSpread {
		return nil, nil
	}

	inventory := s.Inventory(m.Ticker)
	if abs(inventory) >= s.maxInventory {
		s.log.Info("inventory limit reached", zap.String("ticker", m.Ticker), zap.Int("inventory", inventory))
		return nil, nil
	}

	skew := int(float64(inventory) * s.skewPerContract)
	bidPrice := int(mid) - s.halfSpread - skew
	askPrice := int(mid) + s.halfSpread - skew
	if bidPrice < 1 {
		bidPrice = 1
	}
	if askPrice > 99 {
		askPrice = 99
	}
	if bidPrice >= askPrice {
		return nil, nil
	}

	bidReason := fmt.Sprintf("mm bid at %dc (mid=%.1f, inv=%d)", bidPrice, mid, inventory)
	askReason := fmt.Sprintf("mm ask at %dc (mid=%.1f, inv=%d)", askPrice, mid, inventory)
	return []Signal{
		newSignal(s.Name(), m.Ticker, kalshi.ActionBuy, bidPrice, s.quantity, 0.5, bidReason),
		newSignal(s.Name(), m.Ticker, kalshi.ActionSell, askPrice, s.quantity, 0.5, askReason),
	}, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
