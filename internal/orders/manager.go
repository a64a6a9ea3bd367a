package orders

import (
	"context"
	"fmt"
	"sync"

	"pm-trade-bot/internal/kalshi"
	"pm-trade-bot/internal/metrics"
	"pm-trade-bot/internal/store"
	"pm-trade-bot/internal/strategy"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Client is the slice of the exchange API the manager needs.
type Client interface {
	CreateOrder(ctx context.Context, req kalshi.OrderRequest) (kalshi.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrders(ctx context.Context, status, ticker string) ([]kalshi.Order, error)
}

// Manager places and cancels orders and keeps a local cache of resting
// orders keyed by order id. Every outgoing order carries a fresh UUID
// client_order_id so the exchange can deduplicate retries.
type Manager struct {
	client Client
	sink   store.Sink
	log    *zap.Logger
	m      *metrics.Metrics

	mu     sync.Mutex
	active map[string]kalshi.Order
}

func NewManager(client Client, sink store.Sink, log *zap.Logger, m *metrics.Metrics) *Manager {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Manager{
		client: client,
		sink:   sink,
		log:    log,
		m:      m,
		active: make(map[string]kalshi.Order),
	}
}

// PlaceOrder submits a limit order derived from a strategy signal. The
// returned order is cached as active. Persistence of the order log is
// best-effort: a storage failure is logged, never propagated.
func (mgr *Manager) PlaceOrder(ctx context.Context, sig strategy.Signal) (*kalshi.Order, error) {
	req := kalshi.OrderRequest{
		Ticker:        sig.Ticker,
		Action:        sig.Action,
		Side:          sig.Side,
		Count:         sig.Quantity,
		Type:          kalshi.OrderTypeLimit,
		ClientOrderID: uuid.NewString(),
	}
	if sig.Side == kalshi.SideYes {
		req.YesPrice = sig.Price
	} else {
		req.NoPrice = sig.Price
	}

	order, err := mgr.client.CreateOrder(ctx, req)
	if err != nil {
		mgr.m.OrdersFailed.Inc()
		return nil, fmt.Errorf("place order %s: %w", sig.Ticker, err)
	}
	mgr.m.OrdersPlaced.Inc()

	mgr.mu.Lock()
	mgr.active[order.OrderID] = order
	mgr.mu.Unlock()

	mgr.log.Info("order placed",
		zap.String("ticker", sig.Ticker),
		zap.String("action", string(sig.Action)),
		zap.Int("price", sig.Price),
		zap.Int("quantity", sig.Quantity),
		zap.String("strategy", sig.Strategy),
		zap.String("order_id", order.OrderID))

	if mgr.sink != nil {
		rec := store.OrderLogRecord{
			OrderID:        order.OrderID,
			ClientOrderID:  req.ClientOrderID,
			Ticker:         sig.Ticker,
			Action:         string(sig.Action),
			Side:           string(sig.Side),
			OrderType:      string(req.Type),
			YesPrice:       req.YesPrice,
			NoPrice:        req.NoPrice,
			Count:          req.Count,
			RemainingCount: order.RemainingCount,
			Status:         string(order.Status),
			Strategy:       sig.Strategy,
			Reason:         sig.Reason,
		}
		if err := mgr.sink.SaveOrderLog(ctx, rec); err != nil {
			mgr.log.Warn("order log write failed", zap.String("order_id", order.OrderID), zap.Error(err))
		}
	}
	return &order, nil
}

// CancelOrder cancels a single resting order, drops it from the cache, and
// writes a canceled record to the order log, best-effort.
func (mgr *Manager) CancelOrder(ctx context.Context, orderID string) error {
	if err := mgr.client.CancelOrder(ctx, orderID); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	mgr.m.OrdersCanceled.Inc()
	mgr.mu.Lock()
	delete(mgr.active, orderID)
	mgr.mu.Unlock()
	mgr.log.Info("order canceled", zap.String("order_id", orderID))

	if mgr.sink != nil {
		rec := store.OrderLogRecord{
			OrderID: orderID,
			Status:  string(kalshi.OrderStatusCanceled),
		}
		if err := mgr.sink.SaveOrderLog(ctx, rec); err != nil {
			mgr.log.Warn("cancel log write failed", zap.String("order_id", orderID), zap.Error(err))
		}
	}
	return nil
}

// CancelAll cancels every order the exchange reports as resting, optionally
// filtered to one ticker. The exchange view is authoritative: orders the
// local cache missed are still canceled. If the lookup fails, the cached
// view is canceled instead. Each cancellation is attempted independently;
// the count of successful cancels is returned.
func (mgr *Manager) CancelAll(ctx context.Context, ticker string) int {
	resting, err := mgr.client.GetOrders(ctx, string(kalshi.OrderStatusResting), ticker)
	if err != nil {
		mgr.log.Warn("resting order lookup failed, canceling cached orders", zap.Error(err))
		mgr.mu.Lock()
		resting = make([]kalshi.Order, 0, len(mgr.active))
		for _, ord := range mgr.active {
			if ticker == "" || ord.Ticker == ticker {
				resting = append(resting, ord)
			}
		}
		mgr.mu.Unlock()
	}

	canceled := 0
	for _, ord := range resting {
		if err := mgr.CancelOrder(ctx, ord.OrderID); err != nil {
			mgr.log.Warn("cancel failed", zap.String("order_id", ord.OrderID), zap.Error(err))
			continue
		}
		canceled++
	}
	return canceled
}

// SyncOrders replaces the local cache with the exchange's view of resting
// orders.
func (mgr *Manager) SyncOrders(ctx context.Context) error {
	open, err := mgr.client.GetOrders(ctx, string(kalshi.OrderStatusResting), "")
	if err != nil {
		return fmt.Errorf("sync orders: %w", err)
	}
	fresh := make(map[string]kalshi.Order, len(open))
	for _, ord := range open {
		fresh[ord.OrderID] = ord
	}
	mgr.mu.Lock()
	mgr.active = fresh
	mgr.mu.Unlock()
	mgr.log.Debug("orders synced", zap.Int("resting", len(open)))
	return nil
}

// ActiveOrders returns a snapshot of the cached resting orders.
func (mgr *Manager) ActiveOrders() []kalshi.Order {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	out := make([]kalshi.Order, 0, len(mgr.active))
	for _, ord := range mgr.active {
		out = append(out, ord)
	}
	return out
}

// ActiveCount returns the number of cached resting orders.
func (mgr *Manager) ActiveCount() int {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return len(mgr.active)
}
