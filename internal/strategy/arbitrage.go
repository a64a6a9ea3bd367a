package strategy

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"pm-trade-bot/internal/config"
	"pm-trade-bot/internal/kalshi"

	"go.uber.org/zap"
)

var thresholdPattern = regexp.MustCompile(`(?i)(above|below|over|under|>=?|<=?)\s*([\d.]+)`)

// extractThreshold pulls a numeric threshold out of a market title like
// "GDP growth above 3.0%".
func extractThreshold(title string) (float64, bool) {
	match := thresholdPattern.FindStringSubmatch(title)
	if match == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(match[2], 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// CrossMarketArb exploits price inconsistencies across markets in the same
// event group: monotonicity violations between threshold-ordered markets, and
// mutually exclusive outcomes whose prices sum away from 100.
type CrossMarketArb struct {
	minEdge  int
	quantity int
	log      *zap.Logger

	mu           sync.Mutex
	eventMarkets map[string][]kalshi.Market
}

func NewCrossMarketArb(cfg config.ArbitrageConfig, log *zap.Logger) *CrossMarketArb {
	return &CrossMarketArb{
		minEdge:      cfg.MinEdgeCents,
		quantity:     cfg.Quantity,
		log:          log,
		eventMarkets: make(map[string][]kalshi.Market),
	}
}

func (s *CrossMarketArb) Name() string { return "arbitrage" }

func (s *CrossMarketArb) ShouldTrade(m kalshi.Market) bool {
	return m.EventTicker != ""
}

// RegisterMarkets rebuilds the event grouping from a fresh scan.
func (s *CrossMarketArb) RegisterMarkets(markets []kalshi.Market) {
	grouped := make(map[string][]kalshi.Market)
	for _, m := range markets {
		if m.EventTicker != "" {
			grouped[m.EventTicker] = append(grouped[m.EventTicker], m)
		}
	}
	s.mu.Lock()
	s.eventMarkets = grouped
	s.mu.Unlock()
}

func (s *CrossMarketArb) OnMarketUpdate(ctx context.Context, m kalshi.Market, book kalshi.OrderBook) ([]Signal, error) {
	_, _ = ctx, book
	s.mu.Lock()
	related := append([]kalshi.Market(nil), s.eventMarkets[m.EventTicker]...)
	s.mu.Unlock()
	if len(related) < 2 {
		return nil, nil
	}

	signals := s.checkMonotonicity(related)
	signals = append(signals, s.checkOverround(related)...)
	return signals, nil
}

// checkMonotonicity: with thresholds sorted ascending, a higher-threshold
// market can never be worth more than a lower-threshold one.
func (s *CrossMarketArb) checkMonotonicity(markets []kalshi.Market) []Signal {
	type priced struct {
		threshold float64
		market    kalshi.Market
	}
	var ordered []priced
	for _, m := range markets {
		threshold, ok := extractThreshold(m.Title)
		if ok && m.LastPrice > 0 {
			ordered = append(ordered, priced{threshold, m})
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].threshold < ordered[j].threshold })

	var signals []Signal
	for i := 0; i+1 < len(ordered); i++ {
		lower := ordered[i].market
		upper := ordered[i+1].market
		if upper.LastPrice <= lower.LastPrice+s.minEdge {
			continue
		}
		edge := upper.LastPrice - lower.LastPrice
		confidence := float64(edge) / 15
		sellReason := fmt.Sprintf("monotonicity violation: %s@%dc > %s@%dc (edge=%dc)",
			upper.Ticker, upper.LastPrice, lower.Ticker, lower.LastPrice, edge)
		buyReason := fmt.Sprintf("monotonicity arb counterpart: buy %s@%dc", lower.Ticker, lower.LastPrice)
		signals = append(signals,
			newSignal(s.Name(), upper.Ticker, kalshi.ActionSell, upper.LastPrice-1, s.quantity, confidence, sellReason),
			newSignal(s.Name(), lower.Ticker, kalshi.ActionBuy, lower.LastPrice+1, s.quantity, confidence, buyReason),
		)
	}
	return signals
}

// checkOverround: mutually exclusive outcomes should sum to 100.
func (s *CrossMarketArb) checkOverround(markets []kalshi.Market) []Signal {
	total := 0
	for _, m := range markets {
		if m.LastPrice > 0 {
			total += m.LastPrice
		}
	}
	if total <= 0 {
		return nil
	}

	switch {
	case total > 100+s.minEdge:
		overround := total - 100
		expensive := markets[0]
		for _, m := range markets[1:] {
			if m.LastPrice > expensive.LastPrice {
				expensive = m
			}
		}
		reason := fmt.Sprintf("overround=%dc (sum=%dc), sell most expensive", overround, total)
		return []Signal{newSignal(s.Name(), expensive.Ticker, kalshi.ActionSell,
			expensive.LastPrice-1, s.quantity, float64(overround)/20, reason)}
	case total < 100-s.minEdge:
		underround := 100 - total
		cheapest := kalshi.Market{LastPrice: 1000}
		for _, m := range markets {
			if m.LastPrice > 0 && m.LastPrice < cheapest.LastPrice {
				cheapest = m
			}
		}
		reason := fmt.Sprintf("underround=%dc (sum=%dc), buy cheapest", underround, total)
		return []Signal{newSignal(s.Name(), cheapest.Ticker, kalshi.ActionBuy,
			cheapest.LastPrice+1, s.quantity, float64(underround)/20, reason)}
	}
	return nil
}
