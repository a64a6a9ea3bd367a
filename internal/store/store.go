// Package store persists market data, order lifecycle events, and strategy
// signal decisions. All writes are best-effort: callers log failures and
// continue, and nothing here participates in trading decisions. The same
// tables are the backtest engine's input.
package store

import (
	"context"
	"time"

	"pm-trade-bot/internal/kalshi"
)

type MarketRecord struct {
	Ticker       string
	Title        string
	Status       string
	EventTicker  string
	Category     string
	YesBid       int
	YesAsk       int
	NoBid        int
	NoAsk        int
	LastPrice    int
	Volume       int
	OpenInterest int
	FetchedAt    time.Time
}

func MarketRecordFrom(m kalshi.Market, at time.Time) MarketRecord {
	return MarketRecord{
		Ticker:       m.Ticker,
		Title:        m.Title,
		Status:       m.Status,
		EventTicker:  m.EventTicker,
		Category:     m.Category,
		YesBid:       m.YesBid,
		YesAsk:       m.YesAsk,
		NoBid:        m.NoBid,
		NoAsk:        m.NoAsk,
		LastPrice:    m.LastPrice,
		Volume:       m.Volume,
		OpenInterest: m.OpenInterest,
		FetchedAt:    at,
	}
}

func (r MarketRecord) Market() kalshi.Market {
	return kalshi.Market{
		Ticker:       r.Ticker,
		Title:        r.Title,
		Status:       r.Status,
		EventTicker:  r.EventTicker,
		Category:     r.Category,
		YesBid:       r.YesBid,
		YesAsk:       r.YesAsk,
		NoBid:        r.NoBid,
		NoAsk:        r.NoAsk,
		LastPrice:    r.LastPrice,
		Volume:       r.Volume,
		OpenInterest: r.OpenInterest,
	}
}

type BookSnapshot struct {
	Ticker     string
	Book       kalshi.OrderBook
	CapturedAt time.Time
}

type OrderLogRecord struct {
	OrderID        string
	ClientOrderID  string
	Ticker         string
	Action         string
	Side           string
	OrderType      string
	YesPrice       int
	NoPrice        int
	Count          int
	RemainingCount int
	Status         string
	Strategy       string
	Reason         string
}

type SignalRecord struct {
	Strategy   string
	Ticker     string
	Action     string
	Side       string
	Price      int
	Quantity   int
	Confidence float64
	Reason     string
	Executed   bool
}

type PriceTick struct {
	Ticker     string
	YesPrice   int
	Volume     int
	Source     string
	CapturedAt time.Time
}

// Sink is the fire-and-forget persistence contract the trading core writes
// through.
type Sink interface {
	SaveMarkets(ctx context.Context, markets []kalshi.Market, at time.Time) error
	SaveOrderBook(ctx context.Context, ticker string, book kalshi.OrderBook, at time.Time) error
	SaveOrderLog(ctx context.Context, rec OrderLogRecord) error
	SaveSignal(ctx context.Context, rec SignalRecord) error
	SavePriceTick(ctx context.Context, tick PriceTick) error
}
