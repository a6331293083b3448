package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3" // SQLite driver

	"hybridBacktester/internal/domain"
	"hybridBacktester/internal/ports"
)

// Repository implements ports.CandleRepository, ports.ResultRepository and
// ports.ResultCache using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
	now    func() time.Time
}

var (
	_ ports.CandleRepository = (*Repository)(nil)
	_ ports.ResultRepository = (*Repository)(nil)
	_ ports.ResultCache      = (*Repository)(nil)
)

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/backtests.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// A single connection serialises writers; concurrent sweeps share this handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger, now: time.Now}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist. Times are stored as Unix milliseconds.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS candles (
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		open_time INTEGER NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		PRIMARY KEY (symbol, interval, open_time)
	);

	CREATE TABLE IF NOT EXISTS backtest_runs (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		params TEXT NOT NULL,
		success INTEGER NOT NULL,
		error_message TEXT NULL,
		total_trades INTEGER NOT NULL,
		total_pnl REAL NOT NULL,
		win_rate REAL NOT NULL,
		max_drawdown REAL NOT NULL,
		sharpe_ratio REAL NOT NULL,
		final_capital REAL NOT NULL,
		data_start INTEGER NOT NULL,
		data_end INTEGER NOT NULL,
		execution_ns INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS backtest_trades (
		run_id TEXT NOT NULL,
		trade_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		entry_time INTEGER NOT NULL,
		entry_price REAL NOT NULL,
		size REAL NOT NULL,
		stop_loss REAL NOT NULL,
		take_profit REAL NOT NULL,
		quality REAL NOT NULL,
		exit_time INTEGER NULL,
		exit_price REAL NULL,
		exit_reason TEXT NULL,
		pnl REAL NOT NULL,
		duration_ns INTEGER NOT NULL,
		status TEXT NOT NULL,
		PRIMARY KEY (run_id, trade_id)
	);

	CREATE TABLE IF NOT EXISTS result_cache (
		cache_key TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		expires_at INTEGER NOT NULL
	);
	-- Add indexes for common lookups
	CREATE INDEX IF NOT EXISTS idx_backtest_runs_symbol_created ON backtest_runs (symbol, created_at);
	CREATE INDEX IF NOT EXISTS idx_result_cache_expires ON result_cache (expires_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- CandleRepository Implementation ---

// SaveCandles upserts candles in one transaction and returns how many were written.
func (r *Repository) SaveCandles(ctx context.Context, candles []domain.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	const query = `
	INSERT OR REPLACE INTO candles (symbol, interval, open_time, open, high, low, close, volume)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin candle transaction: %w: %w", ports.ErrQueryFailed, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare candle insert: %w: %w", ports.ErrQueryFailed, err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if c.Symbol == "" || c.Interval == "" {
			return 0, fmt.Errorf("candle at %s has no symbol or interval: %w", c.Timestamp.Format(time.RFC3339), ports.ErrInvalidCandle)
		}
		if _, err := stmt.ExecContext(ctx, c.Symbol, c.Interval, c.Timestamp.UnixMilli(),
			c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return 0, fmt.Errorf("failed to insert candle %s %s at %s: %w: %w",
				c.Symbol, c.Interval, c.Timestamp.Format(time.RFC3339), ports.ErrQueryFailed, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit candles: %w: %w", ports.ErrQueryFailed, err)
	}
	r.logger.Debug(ctx, "Candles saved", map[string]interface{}{
		"symbol":   candles[0].Symbol,
		"interval": candles[0].Interval,
		"count":    len(candles),
	})
	return len(candles), nil
}

// FindCandles returns stored candles opened in [start, end], oldest first.
func (r *Repository) FindCandles(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]domain.Candle, error) {
	const query = `
	SELECT open_time, open, high, low, close, volume
	FROM candles
	WHERE symbol = ? AND interval = ? AND open_time >= ? AND open_time <= ?
	ORDER BY open_time DESC
	LIMIT ?`

	from, to := int64(0), int64(1<<62)
	if !start.IsZero() {
		from = start.UnixMilli()
	}
	if !end.IsZero() {
		to = end.UnixMilli()
	}
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := r.db.QueryContext(ctx, query, symbol, interval, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles for %s %s: %w: %w", symbol, interval, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	candles := make([]domain.Candle, 0)
	for rows.Next() {
		c := domain.Candle{Symbol: symbol, Interval: interval}
		var openTime int64
		if err := rows.Scan(&openTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle row: %w", err)
		}
		c.Timestamp = fromMillis(openTime)
		candles = append(candles, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candle rows: %w", err)
	}

	// Rows come newest first so LIMIT keeps the latest bars
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

// CountCandles counts stored candles for symbol/interval.
func (r *Repository) CountCandles(ctx context.Context, symbol, interval string) (int, error) {
	const query = `SELECT COUNT(*) FROM candles WHERE symbol = ? AND interval = ?`
	var count int
	if err := r.db.QueryRowContext(ctx, query, symbol, interval).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count candles for %s %s: %w", symbol, interval, err)
	}
	return count, nil
}

// --- ResultRepository Implementation ---

// SaveRun stores the run summary and its trades in one transaction.
func (r *Repository) SaveRun(ctx context.Context, run *ports.BacktestRun, trades []*domain.Trade) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("failed to encode params of run %s: %w", run.ID, err)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = r.now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin run transaction: %w: %w", ports.ErrQueryFailed, err)
	}
	defer tx.Rollback()

	const runQuery = `
	INSERT INTO backtest_runs (id, symbol, interval, params, success, error_message, total_trades,
	                           total_pnl, win_rate, max_drawdown, sharpe_ratio, final_capital,
	                           data_start, data_end, execution_ns, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var errMsg sql.NullString
	if run.ErrorMessage != "" {
		errMsg = sql.NullString{String: run.ErrorMessage, Valid: true}
	}
	_, err = tx.ExecContext(ctx, runQuery,
		run.ID, run.Symbol, run.Interval, string(params), run.Success, errMsg, run.TotalTrades,
		run.TotalPNL, run.WinRate, run.MaxDrawdown, run.SharpeRatio, run.FinalCapital,
		run.DataStart.UnixMilli(), run.DataEnd.UnixMilli(), int64(run.ExecutionTime), run.CreatedAt.UnixMilli())
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("run %s: %w", run.ID, ports.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to insert run %s: %w: %w", run.ID, ports.ErrQueryFailed, err)
	}

	const tradeQuery = `
	INSERT INTO backtest_trades (run_id, trade_id, symbol, direction, entry_time, entry_price, size,
	                             stop_loss, take_profit, quality, exit_time, exit_price, exit_reason,
	                             pnl, duration_ns, status)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, t := range trades {
		var exitTime sql.NullInt64
		var exitPrice sql.NullFloat64
		var exitReason sql.NullString
		if !t.ExitTime.IsZero() {
			exitTime = sql.NullInt64{Int64: t.ExitTime.UnixMilli(), Valid: true}
			exitPrice = sql.NullFloat64{Float64: t.ExitPrice, Valid: true}
		}
		if t.ExitReason != "" {
			exitReason = sql.NullString{String: string(t.ExitReason), Valid: true}
		}
		_, err := tx.ExecContext(ctx, tradeQuery,
			run.ID, t.ID, t.Symbol, string(t.Direction), t.EntryTime.UnixMilli(), t.EntryPrice, t.Size,
			t.StopLoss, t.TakeProfit, t.Quality, exitTime, exitPrice, exitReason,
			t.PNL, int64(t.Duration), string(t.Status))
		if err != nil {
			if isConstraintError(err) {
				return fmt.Errorf("trade %s of run %s: %w", t.ID, run.ID, ports.ErrDuplicateEntry)
			}
			return fmt.Errorf("failed to insert trade %s of run %s: %w: %w", t.ID, run.ID, ports.ErrQueryFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w: %w", run.ID, ports.ErrQueryFailed, err)
	}
	r.logger.Debug(ctx, "Backtest run saved", map[string]interface{}{"runID": run.ID, "symbol": run.Symbol, "trades": len(trades)})
	return nil
}

// FindRuns returns the latest runs for symbol, newest first. An empty symbol matches all.
func (r *Repository) FindRuns(ctx context.Context, symbol string, limit int) ([]*ports.BacktestRun, error) {
	const query = `
	SELECT id, symbol, interval, params, success, COALESCE(error_message, ''), total_trades,
	       total_pnl, win_rate, max_drawdown, sharpe_ratio, final_capital,
	       data_start, data_end, execution_ns, created_at
	FROM backtest_runs
	WHERE (? = '' OR symbol = ?)
	ORDER BY created_at DESC, id DESC
	LIMIT ?`

	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, query, symbol, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs for symbol %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	runs := make([]*ports.BacktestRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run during FindRuns: %w", err)
		}
		runs = append(runs, run)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return runs, nil
}

// FindTrades returns the trades of a run ordered by entry time.
func (r *Repository) FindTrades(ctx context.Context, runID string) ([]*domain.Trade, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM backtest_runs WHERE id = ?`, runID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", runID, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to look up run %s: %w: %w", runID, ports.ErrQueryFailed, err)
	}

	const query = `
	SELECT trade_id, symbol, direction, entry_time, entry_price, size, stop_loss, take_profit,
	       quality, exit_time, exit_price, exit_reason, pnl, duration_ns, status
	FROM backtest_trades
	WHERE run_id = ?
	ORDER BY entry_time ASC`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades of run %s: %w: %w", runID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade during FindTrades: %w", err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// --- ResultCache Implementation ---

// Get returns the cached payload for key, or ports.ErrCacheMiss if absent or expired.
func (r *Repository) Get(ctx context.Context, key string) ([]byte, error) {
	const query = `SELECT payload, expires_at FROM result_cache WHERE cache_key = ?`
	var payload []byte
	var expiresAt int64
	err := r.db.QueryRowContext(ctx, query, key).Scan(&payload, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to read cache key %s: %w: %w", key, ports.ErrQueryFailed, err)
	}
	if r.now().UnixMilli() >= expiresAt {
		r.logger.Debug(ctx, "Cache entry expired", map[string]interface{}{"key": key})
		return nil, ports.ErrCacheMiss
	}
	return payload, nil
}

// Set stores payload under key until now+ttl, replacing any previous entry.
func (r *Repository) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	const query = `INSERT OR REPLACE INTO result_cache (cache_key, payload, expires_at) VALUES (?, ?, ?)`
	expiresAt := r.now().Add(ttl).UnixMilli()
	if _, err := r.db.ExecContext(ctx, query, key, payload, expiresAt); err != nil {
		return fmt.Errorf("failed to write cache key %s: %w: %w", key, ports.ErrQueryFailed, err)
	}
	return nil
}

// Purge deletes expired cache entries.
func (r *Repository) Purge(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM result_cache WHERE expires_at <= ?`, r.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w: %w", ports.ErrQueryFailed, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for cache purge: %w", err)
	}
	if n > 0 {
		r.logger.Info(ctx, "Expired cache entries purged", map[string]interface{}{"count": n})
	}
	return int(n), nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func isConstraintError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}

// scanRun scans a row into a ports.BacktestRun struct.
func scanRun(s scanner) (*ports.BacktestRun, error) {
	run := &ports.BacktestRun{}
	var params string
	var dataStart, dataEnd, execNs, createdAt int64
	err := s.Scan(
		&run.ID, &run.Symbol, &run.Interval, &params, &run.Success, &run.ErrorMessage, &run.TotalTrades,
		&run.TotalPNL, &run.WinRate, &run.MaxDrawdown, &run.SharpeRatio, &run.FinalCapital,
		&dataStart, &dataEnd, &execNs, &createdAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
		return nil, fmt.Errorf("failed to decode params of run %s: %w", run.ID, err)
	}
	run.DataStart = fromMillis(dataStart)
	run.DataEnd = fromMillis(dataEnd)
	run.ExecutionTime = time.Duration(execNs)
	run.CreatedAt = fromMillis(createdAt)
	return run, nil
}

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var direction, status string
	var entryTime, durationNs int64
	var exitTime sql.NullInt64
	var exitPrice sql.NullFloat64
	var exitReason sql.NullString
	err := s.Scan(
		&t.ID, &t.Symbol, &direction, &entryTime, &t.EntryPrice, &t.Size, &t.StopLoss, &t.TakeProfit,
		&t.Quality, &exitTime, &exitPrice, &exitReason, &t.PNL, &durationNs, &status)
	if err != nil {
		return nil, err
	}
	t.Direction = domain.Direction(direction)
	t.Status = domain.TradeStatus(status)
	t.EntryTime = fromMillis(entryTime)
	t.Duration = time.Duration(durationNs)
	if exitTime.Valid {
		t.ExitTime = fromMillis(exitTime.Int64)
	}
	if exitPrice.Valid {
		t.ExitPrice = exitPrice.Float64
	}
	if exitReason.Valid {
		t.ExitReason = domain.ExitReason(exitReason.String)
	} else if t.Status == domain.StatusClosed {
		t.ExitReason = domain.ExitReasonUnknown
	}
	return t, nil
}
