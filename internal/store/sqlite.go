package store

import (
	"context"
	"database/sql"
	"time"

	"pm-trade-bot/internal/kalshi"

	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func initSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS markets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			event_ticker TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			yes_bid INTEGER NOT NULL DEFAULT 0,
			yes_ask INTEGER NOT NULL DEFAULT 0,
			no_bid INTEGER NOT NULL DEFAULT 0,
			no_ask INTEGER NOT NULL DEFAULT 0,
			last_price INTEGER NOT NULL DEFAULT 0,
			volume INTEGER NOT NULL DEFAULT 0,
			open_interest INTEGER NOT NULL DEFAULT 0,
			fetched_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_markets_ticker ON markets(ticker)`,
		`CREATE TABLE IF NOT EXISTS orderbook_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker TEXT NOT NULL,
			yes_levels BLOB NOT NULL,
			no_levels BLOB NOT NULL,
			captured_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orderbook_ticker ON orderbook_snapshots(ticker)`,
		`CREATE TABLE IF NOT EXISTS order_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT NOT NULL DEFAULT '',
			client_order_id TEXT NOT NULL DEFAULT '',
			ticker TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL DEFAULT '',
			side TEXT NOT NULL DEFAULT '',
			order_type TEXT NOT NULL DEFAULT '',
			yes_price INTEGER NOT NULL DEFAULT 0,
			no_price INTEGER NOT NULL DEFAULT 0,
			count INTEGER NOT NULL DEFAULT 0,
			remaining_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT '',
			strategy TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS strategy_signals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			strategy TEXT NOT NULL DEFAULT '',
			ticker TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL DEFAULT '',
			side TEXT NOT NULL DEFAULT '',
			price INTEGER NOT NULL DEFAULT 0,
			quantity INTEGER NOT NULL DEFAULT 0,
			confidence REAL NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT '',
			executed INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS prices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker TEXT NOT NULL,
			yes_price INTEGER NOT NULL DEFAULT 0,
			volume INTEGER NOT NULL DEFAULT 0,
			source TEXT NOT NULL DEFAULT 'ticker',
			captured_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) SaveMarkets(ctx context.Context, markets []kalshi.Market, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO markets
		(ticker, title, status, event_ticker, category, yes_bid, yes_ask, no_bid, no_ask, last_price, volume, open_interest, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, m := range markets {
		if _, err := stmt.ExecContext(ctx, m.Ticker, m.Title, m.Status, m.EventTicker, m.Category,
			m.YesBid, m.YesAsk, m.NoBid, m.NoAsk, m.LastPrice, m.Volume, m.OpenInterest, at.UTC()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Order-book levels are stored as msgpack blobs: compact, and round-trips
// level order exactly.
func (s *SQLite) SaveOrderBook(ctx context.Context, ticker string, book kalshi.OrderBook, at time.Time) error {
	yesBlob, err := msgpack.Marshal(book.Yes)
	if err != nil {
		return err
	}
	noBlob, err := msgpack.Marshal(book.No)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO orderbook_snapshots (ticker, yes_levels, no_levels, captured_at)
		VALUES (?, ?, ?, ?)`, ticker, yesBlob, noBlob, at.UTC())
	return err
}

func (s *SQLite) SaveOrderLog(ctx context.Context, rec OrderLogRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO order_log
		(order_id, client_order_id, ticker, action, side, order_type, yes_price, no_price, count, remaining_count, status, strategy, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.OrderID, rec.ClientOrderID, rec.Ticker, rec.Action, rec.Side, rec.OrderType,
		rec.YesPrice, rec.NoPrice, rec.Count, rec.RemainingCount, rec.Status, rec.Strategy, rec.Reason, time.Now().UTC())
	return err
}

func (s *SQLite) SaveSignal(ctx context.Context, rec SignalRecord) error {
	executed := 0
	if rec.Executed {
		executed = 1
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO strategy_signals
		(strategy, ticker, action, side, price, quantity, confidence, reason, executed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Strategy, rec.Ticker, rec.Action, rec.Side, rec.Price, rec.Quantity, rec.Confidence, rec.Reason, executed, time.Now().UTC())
	return err
}

func (s *SQLite) SavePriceTick(ctx context.Context, tick PriceTick) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO prices (ticker, yes_price, volume, source, captured_at)
		VALUES (?, ?, ?, ?, ?)`, tick.Ticker, tick.YesPrice, tick.Volume, tick.Source, tick.CapturedAt.UTC())
	return err
}

// LoadMarketRecords returns persisted market rows for backtest replay.
func (s *SQLite) LoadMarketRecords(ctx context.Context) ([]MarketRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ticker, title, status, event_ticker, category,
		yes_bid, yes_ask, no_bid, no_ask, last_price, volume, open_interest, fetched_at FROM markets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []MarketRecord
	for rows.Next() {
		var r MarketRecord
		if err := rows.Scan(&r.Ticker, &r.Title, &r.Status, &r.EventTicker, &r.Category,
			&r.YesBid, &r.YesAsk, &r.NoBid, &r.NoAsk, &r.LastPrice, &r.Volume, &r.OpenInterest, &r.FetchedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// LoadBookSnapshots returns persisted order-book snapshots for backtest
// replay.
func (s *SQLite) LoadBookSnapshots(ctx context.Context) ([]BookSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ticker, yes_levels, no_levels, captured_at FROM orderbook_snapshots ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var snapshots []BookSnapshot
	for rows.Next() {
		var snap BookSnapshot
		var yesBlob, noBlob []byte
		if err := rows.Scan(&snap.Ticker, &yesBlob, &noBlob, &snap.CapturedAt); err != nil {
			return nil, err
		}
		if err := msgpack.Unmarshal(yesBlob, &snap.Book.Yes); err != nil {
			return nil, err
		}
		if err := msgpack.Unmarshal(noBlob, &snap.Book.No); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
