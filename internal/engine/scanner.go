package engine

import (
	"context"
	"fmt"
	"time"

	"pm-trade-bot/internal/kalshi"
	"pm-trade-bot/internal/store"

	"go.uber.org/zap"
)

const scanPageSize = 200

// MarketClient lists markets for scanning.
type MarketClient interface {
	GetMarkets(ctx context.Context, limit int, cursor, status string) (kalshi.MarketsPage, error)
}

// MarketFilter decides whether a scanned market is worth evaluating.
type MarketFilter func(kalshi.Market) bool

func MinVolume(n int) MarketFilter {
	return func(m kalshi.Market) bool { return m.Volume >= n }
}

// HasLiquidity keeps markets with a two-sided yes quote.
func HasLiquidity() MarketFilter {
	return func(m kalshi.Market) bool { return m.YesBid > 0 && m.YesAsk > 0 }
}

// MarketScanner pages through open markets and applies the configured
// filters. Results are persisted best-effort for later backtest replay.
type MarketScanner struct {
	client  MarketClient
	sink    store.Sink
	filters []MarketFilter
	log     *zap.Logger
}

func NewMarketScanner(client MarketClient, sink store.Sink, log *zap.Logger, filters ...MarketFilter) *MarketScanner {
	return &MarketScanner{client: client, sink: sink, filters: filters, log: log}
}

// Scan returns all open markets passing the filters.
func (s *MarketScanner) Scan(ctx context.Context) ([]kalshi.Market, error) {
	var kept []kalshi.Market
	scanned := 0
	cursor := ""
	for {
		page, err := s.client.GetMarkets(ctx, scanPageSize, cursor, "open")
		if err != nil {
			return nil, fmt.Errorf("scan markets: %w", err)
		}
		scanned += len(page.Markets)
		for _, m := range page.Markets {
			if s.accept(m) {
				kept = append(kept, m)
			}
		}
		if page.Cursor == "" || len(page.Markets) == 0 {
			break
		}
		cursor = page.Cursor
	}

	if s.sink != nil && len(kept) > 0 {
		if err := s.sink.SaveMarkets(ctx, kept, time.Now().UTC()); err != nil {
			s.log.Warn("market snapshot write failed", zap.Error(err))
		}
	}
	s.log.Debug("market scan complete", zap.Int("scanned", scanned), zap.Int("kept", len(kept)))
	return kept, nil
}

func (s *MarketScanner) accept(m kalshi.Market) bool {
	for _, f := range s.filters {
		if !f(m) {
			return false
		}
	}
	return true
}
