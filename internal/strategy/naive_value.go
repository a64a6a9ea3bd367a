package strategy

import (
	"context"
	"fmt"
	"math"

	"pm-trade-bot/internal/config"
	"pm-trade-bot/internal/kalshi"

	"go.uber.org/zap"
)

// NaiveValue trades when the last traded price diverges from the book
// mid-price by more than a threshold: buy when underpriced, sell when
// overpriced, always toward the mid.
type NaiveValue struct {
	threshold int
	quantity  int
	minSpread int
	maxSpread int
	minVolume int
	log       *zap.Logger
}

func NewNaiveValue(cfg config.NaiveValueConfig, log *zap.Logger) *NaiveValue {
	return &NaiveValue{
		threshold: cfg.ThresholdCents,
		quantity:  cfg.Quantity,
		minSpread: cfg.MinSpread,
		maxSpread: cfg.MaxSpread,
		minVolume: cfg.MinVolume,
		log:       log,
	}
}

func (s *NaiveValue) Name() string { return "naive_value" }

func (s *NaiveValue) ShouldTrade(m kalshi.Market) bool {
	return m.Volume >= s.minVolume && m.YesBid > 0 && m.YesAsk > 0
}

func (s *NaiveValue) OnMarketUpdate(ctx context.Context, m kalshi.Market, book kalshi.OrderBook) ([]Signal, error) {
	_ = ctx
	mid, okMid := book.MidPrice()
	spread, okSpread := book.Spread()
	if !okMid || !okSpread {
		return nil, nil
	}
	if spread < s.minSpread || spread > s.maxSpread {
		return nil, nil
	}
	if m.LastPrice <= 0 {
		return nil, nil
	}

	deviation := float64(m.LastPrice) - mid
	confidence := math.Abs(deviation) / 20

	var signals []Signal
	switch {
	case deviation < -float64(s.threshold):
		bid, ok := book.BestYesBid()
		if !ok {
			return nil, nil
		}
		reason := fmt.Sprintf("underpriced by %.1fc vs mid %.1f", math.Abs(deviation), mid)
		signals = append(signals, newSignal(s.Name(), m.Ticker, kalshi.ActionBuy, bid+1, s.quantity, confidence, reason))
	case deviation > float64(s.threshold):
		ask, ok := book.BestYesAsk()
		if !ok {
			return nil, nil
		}
		reason := fmt.Sprintf("overpriced by %.1fc vs mid %.1f", deviation, mid)
		signals = append(signals, newSignal(s.Name(), m.Ticker, kalshi.ActionSell, ask-1, s.quantity, confidence, reason))
	}

	for _, sig := range signals {
		s.log.Info("signal generated",
			zap.String("strategy", s.Name()),
			zap.String("ticker", sig.Ticker),
			zap.String("action", string(sig.Action)),
			zap.Int("price", sig.Price),
			zap.Float64("confidence", sig.Confidence),
			zap.String("reason", sig.Reason),
		)
	}
	return signals, nil
}
