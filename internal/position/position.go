// Package position implements the shared average-cost position ledger. The
// live portfolio reconciliation and the backtest both apply fills through
// this one routine; any divergence between the two would silently invalidate
// backtest results.
package position

import "pm-trade-bot/internal/kalshi"

// Position tracks one market's exposure. Quantity is signed: positive is net
// long YES, negative net long NO. AvgCost and RealizedPnL are in dollars.
type Position struct {
	Ticker      string
	Quantity    int
	AvgCost     float64
	RealizedPnL float64
}

// ApplyFill mutates the position with a fill at price (cents) and returns the
// realized PnL delta in dollars.
//
// A fill extending the current exposure reopens the weighted average cost
// over the combined size and realizes nothing. A fill against the current
// exposure realizes PnL on the closed portion; if it crosses zero, the
// remainder is a fresh position opened at the fill price.
func (p *Position) ApplyFill(action kalshi.Action, priceCents, quantity int) float64 {
	priceDollars := float64(priceCents) / 100

	if action == kalshi.ActionBuy {
		newQty := p.Quantity + quantity
		if p.Quantity >= 0 {
			totalCost := p.AvgCost*float64(p.Quantity) + priceDollars*float64(quantity)
			if newQty > 0 {
				p.AvgCost = totalCost / float64(newQty)
			} else {
				p.AvgCost = 0
			}
			p.Quantity = newQty
			return 0
		}
		closed := min(quantity, -p.Quantity)
		pnl := float64(closed) * (p.AvgCost - priceDollars)
		p.RealizedPnL += pnl
		p.Quantity = newQty
		if p.Quantity > 0 {
			p.AvgCost = priceDollars
		} else if p.Quantity == 0 {
			p.AvgCost = 0
		}
		return pnl
	}

	newQty := p.Quantity - quantity
	if p.Quantity <= 0 {
		totalCost := p.AvgCost*float64(-p.Quantity) + priceDollars*float64(quantity)
		if newQty != 0 {
			p.AvgCost = totalCost / float64(-newQty)
		} else {
			p.AvgCost = 0
		}
		p.Quantity = newQty
		return 0
	}
	closed := min(quantity, p.Quantity)
	pnl := float64(closed) * (priceDollars - p.AvgCost)
	p.RealizedPnL += pnl
	p.Quantity = newQty
	if p.Quantity < 0 {
		p.AvgCost = priceDollars
	} else if p.Quantity == 0 {
		p.AvgCost = 0
	}
	return pnl
}
