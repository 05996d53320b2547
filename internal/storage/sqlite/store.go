// Package sqlite persists the trade journal so executed orders survive restarts.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/dyike/BreakoutGo/internal/journal"
)

// timeLayout is fixed width so executed_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const (
	RunStatusRunning = "running"
	RunStatusStopped = "stopped"
)

type Store struct {
	db *sql.DB
}

// RunRecord is one process lifetime of the trading loop.
type RunRecord struct {
	ID       string
	Mode     string
	Exchange string
	Status   string
}

type RunWithMeta struct {
	RunRecord
	StartedAt string
	UpdatedAt string
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    mode TEXT NOT NULL,
    exchange TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS trades (
    id TEXT PRIMARY KEY,
    run_id TEXT REFERENCES runs(id) ON DELETE SET NULL,
    seq INTEGER NOT NULL,
    executed_at TEXT NOT NULL,
    side TEXT NOT NULL,
    ticker TEXT NOT NULL,
    price TEXT NOT NULL,
    amount TEXT NOT NULL,
    volume TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    mode TEXT NOT NULL DEFAULT '',
    order_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_trades_executed ON trades(executed_at);
`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *Store) StartRun(ctx context.Context, run RunRecord) error {
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("run id is required")
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs (id, mode, exchange, status)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    mode=excluded.mode,
    exchange=excluded.exchange,
    status=excluded.status,
    updated_at=CURRENT_TIMESTAMP
`, run.ID, run.Mode, run.Exchange, run.Status)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *Store) FinishRun(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE runs SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
`, RunStatusStopped, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// InsertTrade stores rec under runID. Re-inserting the same record id is a no-op.
func (s *Store) InsertTrade(ctx context.Context, runID string, rec journal.TradeRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("trade id is required")
	}
	var run any
	if runID != "" {
		run = runID
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO trades (id, run_id, seq, executed_at, side, ticker, price, amount, volume, reason, mode, order_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING
`, rec.ID, run, rec.Seq, rec.Time.UTC().Format(timeLayout), string(rec.Side), rec.Ticker,
		rec.Price.String(), rec.Amount.String(), rec.Volume.String(), rec.Reason, rec.Mode, rec.OrderID)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// ListTrades returns trades executed at or after since, oldest first.
func (s *Store) ListTrades(ctx context.Context, since time.Time, limit int) ([]journal.TradeRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, seq, executed_at, side, ticker, price, amount, volume, reason, mode, order_id
FROM trades
WHERE executed_at >= ?
ORDER BY executed_at ASC, seq ASC
LIMIT ?
`, since.UTC().Format(timeLayout), limit)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var trades []journal.TradeRecord
	for rows.Next() {
		var (
			rec                   journal.TradeRecord
			executedAt, side      string
			price, amount, volume string
		)
		if err := rows.Scan(&rec.ID, &rec.Seq, &executedAt, &side, &rec.Ticker, &price, &amount, &volume, &rec.Reason, &rec.Mode, &rec.OrderID); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		if rec.Time, err = time.Parse(timeLayout, executedAt); err != nil {
			return nil, fmt.Errorf("parse trade time %q: %w", executedAt, err)
		}
		rec.Side = journal.Side(side)
		if rec.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse trade price: %w", err)
		}
		if rec.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse trade amount: %w", err)
		}
		if rec.Volume, err = decimal.NewFromString(volume); err != nil {
			return nil, fmt.Errorf("parse trade volume: %w", err)
		}
		trades = append(trades, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list trades rows: %w", err)
	}
	return trades, nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunWithMeta, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, mode, exchange, status, started_at, updated_at
FROM runs
ORDER BY started_at DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunWithMeta
	for rows.Next() {
		var rec RunWithMeta
		if err := rows.Scan(&rec.ID, &rec.Mode, &rec.Exchange, &rec.Status, &rec.StartedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs rows: %w", err)
	}
	return runs, nil
}

// Sink binds the store to a run so it can subscribe to a journal.
func (s *Store) Sink(runID string) journal.Sink {
	return &runSink{store: s, runID: runID}
}

type runSink struct {
	store *Store
	runID string
}

func (r *runSink) Record(ctx context.Context, rec journal.TradeRecord) error {
	return r.store.InsertTrade(ctx, r.runID, rec)
}
