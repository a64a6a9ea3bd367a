package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"pm-trade-bot/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// Tick is one yes-price observation for a market, from the websocket feed
// or a REST poll.
type Tick struct {
	Time     time.Time
	Ticker   string
	YesPrice int
	Volume   int
	Source   string
}

// PortfolioSnapshot is one point-in-time view of the account.
type PortfolioSnapshot struct {
	Time           time.Time
	BalanceDollars float64
	RealizedPnL    float64
	DailyPnL       float64
	TotalQuantity  int
	OpenPositions  int
	KillSwitch     bool
}

type Writer struct {
	db         *sql.DB
	log        *zap.Logger
	schema     string
	ticks      chan Tick
	portfolios chan PortfolioSnapshot
	started    atomic.Bool
	dropTick   atomic.Uint64
	dropPort   atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:         db,
		log:        log,
		schema:     schema,
		ticks:      make(chan Tick, queueSize),
		portfolios: make(chan PortfolioSnapshot, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueTick(tick Tick) {
	if w == nil {
		return
	}
	select {
	case w.ticks <- tick:
		return
	default:
		if w.dropTick.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale tick queue full")
		}
	}
}

func (w *Writer) EnqueuePortfolio(snap PortfolioSnapshot) {
	if w == nil {
		return
	}
	select {
	case w.portfolios <- snap:
		return
	default:
		if w.dropPort.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale portfolio queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-w.ticks:
			w.writeTick(ctx, tick)
		case snap := <-w.portfolios:
			w.writePortfolio(ctx, snap)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		ticker TEXT NOT NULL,
		yes_price INTEGER NOT NULL,
		volume INTEGER NOT NULL DEFAULT 0,
		source TEXT NOT NULL DEFAULT 'ticker'
	)`, w.table("market_ticks"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		balance_dollars DOUBLE PRECISION NOT NULL,
		realized_pnl DOUBLE PRECISION NOT NULL,
		daily_pnl DOUBLE PRECISION NOT NULL,
		total_quantity INTEGER NOT NULL,
		open_positions INTEGER NOT NULL,
		kill_switch BOOLEAN NOT NULL
	)`, w.table("portfolio_snapshots"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("market_ticks"))); err != nil && w.log != nil {
		w.log.Warn("timescale market_ticks hypertable create failed", zap.Error(err))
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("portfolio_snapshots"))); err != nil && w.log != nil {
		w.log.Warn("timescale portfolio_snapshots hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeTick(ctx context.Context, tick Tick) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (ts, ticker, yes_price, volume, source)
		VALUES ($1,$2,$3,$4,$5)`, w.table("market_ticks"))
	if _, err := w.db.ExecContext(ctx, query,
		tick.Time, tick.Ticker, tick.YesPrice, tick.Volume, tick.Source,
	); err != nil && w.log != nil {
		w.log.Warn("timescale tick insert failed", zap.Error(err))
	}
}

func (w *Writer) writePortfolio(ctx context.Context, snap PortfolioSnapshot) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, balance_dollars, realized_pnl, daily_pnl, total_quantity, open_positions, kill_switch
	) VALUES ($1,$2,$3,$4,$5,$6,$7)`, w.table("portfolio_snapshots"))
	if _, err := w.db.ExecContext(ctx, query,
		snap.Time,
		snap.BalanceDollars,
		snap.RealizedPnL,
		snap.DailyPnL,
		snap.TotalQuantity,
		snap.OpenPositions,
		snap.KillSwitch,
	); err != nil && w.log != nil {
		w.log.Warn("timescale portfolio insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
