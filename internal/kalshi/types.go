// Package kalshi implements the typed client for the exchange REST API and
// the value types shared across the bot. All prices are integer cents in
// [1,99]; account balances are whole cents and position PnL fields are
// centi-cents, converted to dollars only at presentation boundaries.
package kalshi

import "time"

type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusResting  OrderStatus = "resting"
	OrderStatusExecuted OrderStatus = "executed"
	OrderStatusCanceled OrderStatus = "canceled"
)

type Market struct {
	Ticker       string    `json:"ticker"`
	Title        string    `json:"title"`
	Subtitle     string    `json:"subtitle"`
	Status       string    `json:"status"`
	YesBid       int       `json:"yes_bid"`
	YesAsk       int       `json:"yes_ask"`
	NoBid        int       `json:"no_bid"`
	NoAsk        int       `json:"no_ask"`
	LastPrice    int       `json:"last_price"`
	Volume       int       `json:"volume"`
	OpenInterest int       `json:"open_interest"`
	EventTicker  string    `json:"event_ticker"`
	Category     string    `json:"category"`
	CloseTime    time.Time `json:"close_time"`
}

type OrderBookLevel struct {
	Price    int `json:"price"`
	Quantity int `json:"quantity"`
}

// OrderBook holds both sides best-first. The exchange quotes each side as
// bids only; the yes ask is implied by the best no bid (100 − no_bid).
type OrderBook struct {
	Yes []OrderBookLevel `json:"yes"`
	No  []OrderBookLevel `json:"no"`
}

func (b OrderBook) BestYesBid() (int, bool) {
	if len(b.Yes) == 0 {
		return 0, false
	}
	return b.Yes[0].Price, true
}

func (b OrderBook) BestYesAsk() (int, bool) {
	if len(b.No) == 0 {
		return 0, false
	}
	return 100 - b.No[0].Price, true
}

func (b OrderBook) MidPrice() (float64, bool) {
	bid, okBid := b.BestYesBid()
	ask, okAsk := b.BestYesAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return float64(bid+ask) / 2, true
}

func (b OrderBook) Spread() (int, bool) {
	bid, okBid := b.BestYesBid()
	ask, okAsk := b.BestYesAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return ask - bid, true
}

type OrderRequest struct {
	Ticker        string    `json:"ticker"`
	Action        Action    `json:"action"`
	Side          Side      `json:"side"`
	Count         int       `json:"count"`
	Type          OrderType `json:"type"`
	YesPrice      int       `json:"yes_price,omitempty"`
	NoPrice       int       `json:"no_price,omitempty"`
	ClientOrderID string    `json:"client_order_id"`
}

type Order struct {
	OrderID        string      `json:"order_id"`
	ClientOrderID  string      `json:"client_order_id"`
	Ticker         string      `json:"ticker"`
	Action         Action      `json:"action"`
	Side           Side        `json:"side"`
	Type           OrderType   `json:"type"`
	Status         OrderStatus `json:"status"`
	YesPrice       int         `json:"yes_price"`
	NoPrice        int         `json:"no_price"`
	RemainingCount int         `json:"remaining_count"`
	CreatedTime    time.Time   `json:"created_time"`
}

// Position is the exchange's view of a market position. Quantity is signed:
// positive is net long YES, negative net long NO. Cost and PnL fields are in
// centi-cents (1/10000 dollar), as the API reports them.
type Position struct {
	MarketTicker string `json:"market_ticker"`
	PositionCost int    `json:"position_cost"`
	RealizedPnL  int    `json:"realized_pnl"`
	FeesPaid     int    `json:"fees_paid"`
	Quantity     int    `json:"quantity"`
}

const centiCentsPerDollar = 10_000

func (p Position) RealizedPnLDollars() float64 {
	return float64(p.RealizedPnL) / centiCentsPerDollar
}

func (p Position) PositionCostDollars() float64 {
	return float64(p.PositionCost) / centiCentsPerDollar
}

type Fill struct {
	TradeID     string    `json:"trade_id"`
	OrderID     string    `json:"order_id"`
	Ticker      string    `json:"ticker"`
	Action      Action    `json:"action"`
	Side        Side      `json:"side"`
	Count       int       `json:"count"`
	YesPrice    int       `json:"yes_price"`
	NoPrice     int       `json:"no_price"`
	CreatedTime time.Time `json:"created_time"`
}

// Balance is the available cash balance in whole cents.
type Balance struct {
	Balance int `json:"balance"`
}

func (b Balance) Dollars() float64 {
	return float64(b.Balance) / 100
}
