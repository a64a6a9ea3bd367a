// Package risk validates proposed trades against configured limits and owns
// the daily-loss kill switch.
package risk

import (
	"fmt"
	"sync"

	"pm-trade-bot/internal/config"
	"pm-trade-bot/internal/kalshi"

	"go.uber.org/zap"
)

type Limits struct {
	MaxPositionPerMarket int
	MaxTotalExposure     int
	MaxDailyLoss         float64 // dollars
}

func LimitsFromConfig(cfg config.RiskConfig) Limits {
	return Limits{
		MaxPositionPerMarket: cfg.MaxPositionPerMarket,
		MaxTotalExposure:     cfg.MaxTotalExposure,
		MaxDailyLoss:         cfg.MaxDailyLoss,
	}
}

// PortfolioView is the slice of portfolio state the risk manager reads.
type PortfolioView interface {
	PositionQuantity(ticker string) int
	TotalQuantity() int
	DailyPnL() float64
}

type Manager struct {
	portfolio PortfolioView
	limits    Limits
	log       *zap.Logger

	mu         sync.Mutex
	killSwitch bool
}

func NewManager(portfolio PortfolioView, limits Limits, log *zap.Logger) *Manager {
	return &Manager{portfolio: portfolio, limits: limits, log: log}
}

func (m *Manager) KillSwitchActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.killSwitch
}

// CheckKillSwitch latches the kill switch when daily realized PnL breaches
// the loss cap. It reports whether the breach condition holds right now; the
// latch itself clears only through ResetKillSwitch, never by PnL recovery.
func (m *Manager) CheckKillSwitch() bool {
	dailyPnL := m.portfolio.DailyPnL()
	if dailyPnL < -m.limits.MaxDailyLoss {
		m.mu.Lock()
		m.killSwitch = true
		m.mu.Unlock()
		m.log.Warn("kill switch triggered",
			zap.Float64("daily_pnl", dailyPnL),
			zap.Float64("limit", -m.limits.MaxDailyLoss),
		)
		return true
	}
	return false
}

func (m *Manager) ResetKillSwitch() {
	m.mu.Lock()
	m.killSwitch = false
	m.mu.Unlock()
	m.log.Info("kill switch reset")
}

// ValidateOrder reports whether the proposed trade is allowed and, when not,
// why. The kill-switch condition is re-checked here even though the loop
// checks it per cycle; both checks firing is the intended behavior.
func (m *Manager) ValidateOrder(ticker string, quantity int, action kalshi.Action) (bool, string) {
	if m.KillSwitchActive() {
		return false, "kill switch is active"
	}
	if m.CheckKillSwitch() {
		return false, "daily loss limit exceeded"
	}

	currentQty := m.portfolio.PositionQuantity(ticker)
	totalQty := m.portfolio.TotalQuantity()

	var newPosition, newTotal int
	if action == kalshi.ActionBuy {
		newPosition = currentQty + quantity
		newTotal = totalQty + quantity
	} else {
		newPosition = currentQty - quantity
		newTotal = totalQty - quantity
	}

	if abs(newPosition) > m.limits.MaxPositionPerMarket {
		return false, fmt.Sprintf("position limit: %d > %d", abs(newPosition), m.limits.MaxPositionPerMarket)
	}
	if newTotal > m.limits.MaxTotalExposure {
		return false, fmt.Sprintf("total exposure limit: %d > %d", newTotal, m.limits.MaxTotalExposure)
	}
	return true, "ok"
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
