package ports

import (
	"context"
	"time"

	"hybridBacktester/internal/domain"
)

// CandleRepository stores historical candles per symbol and interval.
type CandleRepository interface {
	// SaveCandles upserts candles; existing bars with the same key are replaced.
	SaveCandles(ctx context.Context, candles []domain.Candle) (int, error)
	// FindCandles returns stored candles opened in [start, end], oldest first.
	// A zero start or end leaves that side unbounded. limit <= 0 means no limit;
	// otherwise the most recent limit candles in range are returned.
	FindCandles(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]domain.Candle, error)
	// CountCandles counts stored candles for symbol/interval.
	CountCandles(ctx context.Context, symbol, interval string) (int, error)
}

// BacktestRun is the persisted summary of one backtest.
type BacktestRun struct {
	ID            string
	Symbol        string
	Interval      string
	Params        domain.Params
	Success       bool
	ErrorMessage  string
	TotalTrades   int
	TotalPNL      float64
	WinRate       float64
	MaxDrawdown   float64
	SharpeRatio   float64
	FinalCapital  float64
	DataStart     time.Time
	DataEnd       time.Time
	ExecutionTime time.Duration
	CreatedAt     time.Time
}

// ResultRepository persists finished backtests and their trades.
type ResultRepository interface {
	// SaveRun stores the run summary together with its trades.
	SaveRun(ctx context.Context, run *BacktestRun, trades []*domain.Trade) error
	// FindRuns returns the latest runs for a symbol, newest first.
	FindRuns(ctx context.Context, symbol string, limit int) ([]*BacktestRun, error)
	// FindTrades returns the trades of a run ordered by entry time.
	// Returns ErrNotFound if the run does not exist.
	FindTrades(ctx context.Context, runID string) ([]*domain.Trade, error)
}

// ResultCache is an explicit key/value cache for serialized backtest results.
type ResultCache interface {
	// Get returns the payload stored under key, or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores payload under key for ttl.
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	// Purge removes expired entries and returns how many were deleted.
	Purge(ctx context.Context) (int, error)
}
