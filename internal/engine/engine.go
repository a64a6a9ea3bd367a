package engine

import (
	"context"
	"errors"
	"time"

	"pm-trade-bot/internal/kalshi"
	"pm-trade-bot/internal/metrics"
	"pm-trade-bot/internal/orders"
	"pm-trade-bot/internal/risk"
	"pm-trade-bot/internal/store"
	"pm-trade-bot/internal/strategy"

	"go.uber.org/zap"
)

// BookClient fetches order books for evaluation.
type BookClient interface {
	GetOrderBook(ctx context.Context, ticker string, depth int) (kalshi.OrderBook, error)
}

// StrategyEngine fans a market update out to every configured strategy,
// gates the resulting signals through risk, and routes accepted ones to the
// order manager. A strategy failing on one market never stops the others.
type StrategyEngine struct {
	client     BookClient
	strategies []strategy.Strategy
	risk       *risk.Manager
	orders     *orders.Manager
	sink       store.Sink
	mm         *strategy.MarketMaker
	bookDepth  int
	log        *zap.Logger
	m          *metrics.Metrics
}

func NewStrategyEngine(client BookClient, strategies []strategy.Strategy, rm *risk.Manager,
	om *orders.Manager, sink store.Sink, bookDepth int, log *zap.Logger, m *metrics.Metrics) *StrategyEngine {
	if m == nil {
		m = metrics.NewNoop()
	}
	eng := &StrategyEngine{
		client:     client,
		strategies: strategies,
		risk:       rm,
		orders:     om,
		sink:       sink,
		bookDepth:  bookDepth,
		log:        log,
		m:          m,
	}
	for _, s := range strategies {
		if mm, ok := s.(*strategy.MarketMaker); ok {
			eng.mm = mm
		}
	}
	return eng
}

// EvaluateMarket runs every strategy against one market. The book is fetched
// once and shared. A vanished market (404) is skipped silently; any other
// book fetch failure is logged and skips the market.
func (e *StrategyEngine) EvaluateMarket(ctx context.Context, market kalshi.Market) int {
	interested := make([]strategy.Strategy, 0, len(e.strategies))
	for _, s := range e.strategies {
		if s.ShouldTrade(market) {
			interested = append(interested, s)
		}
	}
	if len(interested) == 0 {
		return 0
	}

	book, err := e.client.GetOrderBook(ctx, market.Ticker, e.bookDepth)
	if err != nil {
		if errors.Is(err, kalshi.ErrNotFound) {
			e.log.Debug("market gone, skipping", zap.String("ticker", market.Ticker))
			return 0
		}
		e.log.Warn("orderbook fetch failed", zap.String("ticker", market.Ticker), zap.Error(err))
		return 0
	}
	if e.sink != nil {
		if err := e.sink.SaveOrderBook(ctx, market.Ticker, book, time.Now().UTC()); err != nil {
			e.log.Warn("orderbook snapshot write failed", zap.String("ticker", market.Ticker), zap.Error(err))
		}
	}

	placed := 0
	for _, s := range interested {
		signals, err := s.OnMarketUpdate(ctx, market, book)
		if err != nil {
			e.log.Warn("strategy evaluation failed",
				zap.String("strategy", s.Name()),
				zap.String("ticker", market.Ticker),
				zap.Error(err))
			continue
		}
		for _, sig := range signals {
			if e.processSignal(ctx, sig) {
				placed++
			}
		}
	}
	return placed
}

// EvaluateMarkets runs one full pass over the scanned markets and returns
// the number of orders placed.
func (e *StrategyEngine) EvaluateMarkets(ctx context.Context, markets []kalshi.Market) int {
	placed := 0
	for _, m := range markets {
		if ctx.Err() != nil {
			return placed
		}
		placed += e.EvaluateMarket(ctx, m)
	}
	return placed
}

// processSignal validates one signal against risk limits and places the
// order if accepted. Every signal is recorded with its outcome; the record
// write is best-effort.
func (e *StrategyEngine) processSignal(ctx context.Context, sig strategy.Signal) bool {
	e.m.SignalsGenerated.Inc()

	ok, reason := e.risk.ValidateOrder(sig.Ticker, sig.Quantity, sig.Action)
	e.recordSignal(ctx, sig, ok)
	if !ok {
		e.m.SignalsRejected.Inc()
		e.log.Info("signal rejected",
			zap.String("strategy", sig.Strategy),
			zap.String("ticker", sig.Ticker),
			zap.String("reason", reason))
		return false
	}

	if _, err := e.orders.PlaceOrder(ctx, sig); err != nil {
		e.log.Error("order placement failed",
			zap.String("strategy", sig.Strategy),
			zap.String("ticker", sig.Ticker),
			zap.Error(err))
		return false
	}

	if e.mm != nil && sig.Strategy == e.mm.Name() {
		delta := sig.Quantity
		if sig.Action == kalshi.ActionSell {
			delta = -delta
		}
		e.mm.UpdateInventory(sig.Ticker, delta)
	}
	return true
}

func (e *StrategyEngine) recordSignal(ctx context.Context, sig strategy.Signal, executed bool) {
	if e.sink == nil {
		return
	}
	rec := store.SignalRecord{
		Strategy:   sig.Strategy,
		Ticker:     sig.Ticker,
		Action:     string(sig.Action),
		Side:       string(sig.Side),
		Price:      sig.Price,
		Quantity:   sig.Quantity,
		Confidence: sig.Confidence,
		Reason:     sig.Reason,
		Executed:   executed,
	}
	if err := e.sink.SaveSignal(ctx, rec); err != nil {
		e.log.Warn("signal record write failed", zap.String("ticker", sig.Ticker), zap.Error(err))
	}
}
