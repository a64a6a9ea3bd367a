package strategy

import (
	"context"
	"fmt"
	"math"
	"sync"

	"pm-trade-bot/internal/config"
	"pm-trade-bot/internal/kalshi"

	"go.uber.org/zap"
)

// Estimate is an external probability estimate for a market.
type Estimate struct {
	Source      string
	Probability float64 // 0..1
	Confidence  float64 // how much the source trusts itself, 0..1
}

// DataSource is the narrow plugin contract for external forecast providers.
// Returning (nil, nil) means the source has no opinion on this market.
type DataSource interface {
	Name() string
	GetEstimate(ctx context.Context, market kalshi.Market) (*Estimate, error)
}

// StaticSource returns fixed estimates; useful for tests and manual views.
type StaticSource struct {
	mu        sync.Mutex
	estimates map[string]float64
}

func NewStaticSource(estimates map[string]float64) *StaticSource {
	if estimates == nil {
		estimates = make(map[string]float64)
	}
	return &StaticSource{estimates: estimates}
}

func (s *StaticSource) Name() string { return "static" }

func (s *StaticSource) SetEstimate(ticker string, probability float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.estimates[ticker] = probability
}

func (s *StaticSource) GetEstimate(ctx context.Context, m kalshi.Market) (*Estimate, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	prob, ok := s.estimates[m.Ticker]
	if !ok {
		return nil, nil
	}
	return &Estimate{Source: s.Name(), Probability: prob, Confidence: 0.6}, nil
}

// SignalBased trades when external data sources disagree with the market
// price by a threshold. The limit price is bounded so it never crosses the
// computed fair value.
type SignalBased struct {
	sources       []DataSource
	threshold     int
	quantity      int
	minConfidence float64
	log           *zap.Logger
}

func NewSignalBased(cfg config.SignalBasedConfig, sources []DataSource, log *zap.Logger) *SignalBased {
	return &SignalBased{
		sources:       sources,
		threshold:     cfg.ThresholdCents,
		quantity:      cfg.Quantity,
		minConfidence: cfg.MinConfidence,
		log:           log,
	}
}

func (s *SignalBased) Name() string { return "signal_based" }

func (s *SignalBased) AddSource(source DataSource) {
	s.sources = append(s.sources, source)
}

func (s *SignalBased) ShouldTrade(m kalshi.Market) bool {
	return m.LastPrice > 0
}

func (s *SignalBased) OnMarketUpdate(ctx context.Context, m kalshi.Market, book kalshi.OrderBook) ([]Signal, error) {
	if len(s.sources) == 0 {
		return nil, nil
	}

	var estimates []Estimate
	for _, source := range s.sources {
		est, err := source.GetEstimate(ctx, m)
		if err != nil {
			s.log.Warn("estimate source failed",
				zap.String("source", source.Name()),
				zap.String("ticker", m.Ticker),
				zap.Error(err),
			)
			continue
		}
		if est != nil {
			estimates = append(estimates, *est)
		}
	}
	if len(estimates) == 0 {
		return nil, nil
	}

	weightedSum := 0.0
	weightTotal := 0.0
	for _, est := range estimates {
		weightedSum += est.Probability * est.Confidence
		weightTotal += est.Confidence
	}
	if weightTotal <= 0 {
		return nil, nil
	}

	fairValue := int(weightedSum / weightTotal * 100)
	edge := fairValue - m.LastPrice
	if abs(edge) < s.threshold {
		return nil, nil
	}
	if weightTotal/float64(len(estimates)) < s.minConfidence {
		return nil, nil
	}

	confidence := math.Abs(float64(edge)) / 20
	reason := fmt.Sprintf("external fair value %dc vs market %dc (edge=%dc, sources=%d)",
		fairValue, m.LastPrice, edge, len(estimates))

	if edge > 0 {
		price := m.LastPrice
		if bid, ok := book.BestYesBid(); ok {
			price = bid + 1
		}
		if price > fairValue-1 {
			price = fairValue - 1
		}
		return []Signal{newSignal(s.Name(), m.Ticker, kalshi.ActionBuy, price, s.quantity, confidence, reason)}, nil
	}
	price := m.LastPrice
	if ask, ok := book.BestYesAsk(); ok {
		price = ask - 1
	}
	if price < fairValue+1 {
		price = fairValue + 1
	}
	return []Signal{newSignal(s.Name(), m.Ticker, kalshi.ActionSell, price, s.quantity, confidence, reason)}, nil
}
