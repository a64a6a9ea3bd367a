package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pm-trade-bot/internal/alerts"
	"pm-trade-bot/internal/config"
	"pm-trade-bot/internal/engine"
	"pm-trade-bot/internal/kalshi"
	"pm-trade-bot/internal/kalshi/ws"
	"pm-trade-bot/internal/metrics"
	"pm-trade-bot/internal/orders"
	"pm-trade-bot/internal/portfolio"
	"pm-trade-bot/internal/risk"
	"pm-trade-bot/internal/store"
	"pm-trade-bot/internal/strategy"
	"pm-trade-bot/internal/timescale"

	"go.uber.org/zap"
)

const (
	bookDepth       = 10
	shutdownTimeout = 10 * time.Second
)

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     *store.SQLite
	client    *kalshi.Client
	ws        *ws.Client
	portfolio *portfolio.Tracker
	risk      *risk.Manager
	orders    *orders.Manager
	engine    *engine.StrategyEngine
	scanner   *engine.MarketScanner
	arb       *strategy.CrossMarketArb
	metrics   *metrics.Metrics
	prom      *metrics.Prometheus
	alerts    *alerts.Telegram
	tsdb      *timescale.Writer

	killAlerted bool
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Store.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	db, err := store.NewSQLite(cfg.Store.SQLitePath)
	if err != nil {
		return nil, err
	}

	signer, err := signerFromEnv()
	if err != nil {
		return nil, err
	}
	client := kalshi.NewClient(cfg.REST.BaseURL, cfg.REST.Timeout, cfg.REST.RequestsPerSecond, cfg.REST.MaxRetries, signer, log)
	wsClient := ws.New(cfg.WS.URL, cfg.WS.ReconnectDelay, cfg.WS.PingInterval, cfg.WS.EventBuffer, signer, log)

	var m *metrics.Metrics
	var prom *metrics.Prometheus
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	} else {
		m = metrics.NewNoop()
	}

	tracker := portfolio.NewTracker(client, log)
	riskManager := risk.NewManager(tracker, risk.LimitsFromConfig(cfg.Risk), log)
	orderManager := orders.NewManager(client, db, log, m)

	strategies, err := buildStrategies(cfg, log)
	if err != nil {
		return nil, err
	}
	var arb *strategy.CrossMarketArb
	for _, s := range strategies {
		if a, ok := s.(*strategy.CrossMarketArb); ok {
			arb = a
		}
	}

	filters := []engine.MarketFilter{}
	if cfg.Engine.MinScanVolume > 0 {
		filters = append(filters, engine.MinVolume(cfg.Engine.MinScanVolume))
	}
	if cfg.Engine.RequireLiquidity {
		filters = append(filters, engine.HasLiquidity())
	}
	scanner := engine.NewMarketScanner(client, db, log, filters...)
	eng := engine.NewStrategyEngine(client, strategies, riskManager, orderManager, db, bookDepth, log, m)

	tsdb, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:       cfg,
		log:       log,
		store:     db,
		client:    client,
		ws:        wsClient,
		portfolio: tracker,
		risk:      riskManager,
		orders:    orderManager,
		engine:    eng,
		scanner:   scanner,
		arb:       arb,
		metrics:   m,
		prom:      prom,
		alerts:    alerts.NewTelegram(cfg.Telegram, log),
		tsdb:      tsdb,
	}, nil
}

func signerFromEnv() (*kalshi.Signer, error) {
	keyID := strings.TrimSpace(os.Getenv("KALSHI_API_KEY_ID"))
	if keyID == "" {
		return nil, errors.New("KALSHI_API_KEY_ID is required")
	}
	if path := strings.TrimSpace(os.Getenv("KALSHI_PRIVATE_KEY_PATH")); path != "" {
		return kalshi.NewSignerFromFile(keyID, path)
	}
	if pem := os.Getenv("KALSHI_PRIVATE_KEY"); strings.TrimSpace(pem) != "" {
		return kalshi.NewSigner(keyID, []byte(pem))
	}
	return nil, errors.New("KALSHI_PRIVATE_KEY_PATH or KALSHI_PRIVATE_KEY is required")
}

func buildStrategies(cfg *config.Config, log *zap.Logger) ([]strategy.Strategy, error) {
	registry := strategy.NewRegistry()
	registry.Register("naive_value", func() strategy.Strategy {
		return strategy.NewNaiveValue(cfg.Strategies.NaiveValue, log)
	})
	registry.Register("market_maker", func() strategy.Strategy {
		return strategy.NewMarketMaker(cfg.Strategies.MarketMaker, log)
	})
	registry.Register("arbitrage", func() strategy.Strategy {
		return strategy.NewCrossMarketArb(cfg.Strategies.Arbitrage, log)
	})
	registry.Register("signal_based", func() strategy.Strategy {
		return strategy.NewSignalBased(cfg.Strategies.SignalBased, nil, log)
	})
	return registry.Build(cfg.Engine.Strategies)
}

func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	defer a.tsdb.Close()
	a.tsdb.Start(ctx)

	if a.prom != nil {
		go a.serveMetrics(ctx)
	}

	// Reconcile before trading: adopt the exchange's view of resting orders
	// and cancel them so every cycle starts from known state. The first sync
	// also captures the daily PnL baseline.
	if err := a.orders.SyncOrders(ctx); err != nil {
		return err
	}
	if n := a.orders.ActiveCount(); n > 0 {
		a.log.Info("canceling stale resting orders", zap.Int("count", n))
		a.orders.CancelAll(ctx, "")
	}
	if _, err := a.portfolio.Sync(ctx); err != nil {
		return err
	}

	go func() {
		if err := a.ws.Run(ctx); err != nil && ctx.Err() == nil {
			a.log.Warn("ws feed stopped", zap.Error(err))
		}
	}()
	if err := a.ws.Subscribe(ctx, []string{"ticker"}, nil); err != nil {
		a.log.Warn("ticker subscribe failed", zap.Error(err))
	}
	go a.consumeTicks(ctx)

	ticker := time.NewTicker(a.cfg.Engine.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.shutdown()
			return ctx.Err()
		case <-ticker.C:
			if err := a.cycle(ctx); err != nil {
				if ctx.Err() != nil {
					a.shutdown()
					return ctx.Err()
				}
				a.metrics.CycleErrors.Inc()
				a.log.Warn("trading cycle failed", zap.Error(err))
			}
		}
	}
}

// shutdown cancels resting orders before the process exits. Orders left on
// the book after the loop stops would float unmanaged.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.orders.SyncOrders(ctx); err != nil {
		a.log.Warn("shutdown order sync failed", zap.Error(err))
	}
	canceled := a.orders.CancelAll(ctx, "")
	a.log.Info("shutdown complete", zap.Int("orders_canceled", canceled))
}

func (a *App) cycle(ctx context.Context) error {
	start := time.Now()

	if _, err := a.portfolio.Sync(ctx); err != nil {
		return err
	}

	if a.risk.KillSwitchActive() || a.risk.CheckKillSwitch() {
		a.handleKillSwitch(ctx)
		return nil
	}
	a.killAlerted = false

	markets, err := a.scanner.Scan(ctx)
	if err != nil {
		return err
	}
	if a.arb != nil {
		a.arb.RegisterMarkets(markets)
	}

	placed := a.engine.EvaluateMarkets(ctx, markets)
	a.metrics.CyclesCompleted.Inc()

	snap := a.portfolio.Snapshot()
	a.tsdb.EnqueuePortfolio(timescale.PortfolioSnapshot{
		Time:           time.Now().UTC(),
		BalanceDollars: snap.BalanceDollars(),
		RealizedPnL:    snap.TotalRealizedPnLDollars(),
		DailyPnL:       a.portfolio.DailyPnL(),
		TotalQuantity:  snap.TotalQuantity(),
		OpenPositions:  snap.OpenPositions(),
		KillSwitch:     a.risk.KillSwitchActive(),
	})

	a.log.Info("cycle complete",
		zap.Int("markets", len(markets)),
		zap.Int("orders_placed", placed),
		zap.Float64("daily_pnl", a.portfolio.DailyPnL()),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// handleKillSwitch flattens open order flow and backs off. The switch stays
// latched until an operator resets it; trading does not resume on PnL
// recovery.
func (a *App) handleKillSwitch(ctx context.Context) {
	if !a.killAlerted {
		a.killAlerted = true
		a.metrics.KillSwitchEngaged.Inc()
		a.alerts.KillSwitch(ctx, a.portfolio.DailyPnL(), a.cfg.Risk.MaxDailyLoss)
	}
	canceled := a.orders.CancelAll(ctx, "")
	a.log.Warn("kill switch active, trading paused",
		zap.Int("orders_canceled", canceled),
		zap.Duration("cooldown", a.cfg.Engine.KillSwitchCooldown))
	select {
	case <-ctx.Done():
	case <-time.After(a.cfg.Engine.KillSwitchCooldown):
	}
}

func (a *App) consumeTicks(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.ws.Events():
			tick := store.PriceTick{
				Ticker:     ev.Ticker,
				YesPrice:   ev.Price,
				Volume:     ev.Volume,
				Source:     "ws",
				CapturedAt: ev.Received,
			}
			if err := a.store.SavePriceTick(ctx, tick); err != nil {
				a.log.Debug("price tick write failed", zap.String("ticker", ev.Ticker), zap.Error(err))
			}
			a.tsdb.EnqueueTick(timescale.Tick{
				Time:     ev.Received,
				Ticker:   ev.Ticker,
				YesPrice: ev.Price,
				Volume:   ev.Volume,
				Source:   "ws",
			})
		}
	}
}

func (a *App) serveMetrics(ctx context.Context) {
	server := &http.Server{
		Addr:    a.cfg.Metrics.ListenAddr,
		Handler: metricsMux(a.prom),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	a.log.Info("metrics server listening", zap.String("addr", a.cfg.Metrics.ListenAddr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.log.Warn("metrics server failed", zap.Error(err))
	}
}

func metricsMux(prom *metrics.Prometheus) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", prom.Handler())
	return mux
}
