// Package app orchestrates data acquisition, caching and persistence around a backtest run.
package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"hybridBacktester/internal/domain"
	"hybridBacktester/internal/ports"
	"hybridBacktester/internal/strategy"
)

const (
	DefaultLimit = 500
	MaxLimit     = 1000
)

// Runner executes one backtest over a candle series.
type Runner interface {
	Run(ctx context.Context, candles []domain.Candle, params domain.Params) (*strategy.Result, error)
}

// Config bundles the dependencies of a BacktestService.
// Source, Results and Cache are optional.
type Config struct {
	Logger   ports.Logger
	Candles  ports.CandleRepository
	Source   ports.CandleSource
	Results  ports.ResultRepository
	Cache    ports.ResultCache
	Runner   Runner
	CacheTTL time.Duration
}

// BacktestService loads candles, runs the pipeline and records the outcome.
type BacktestService struct {
	logger   ports.Logger
	candles  ports.CandleRepository
	source   ports.CandleSource
	results  ports.ResultRepository
	cache    ports.ResultCache
	runner   Runner
	cacheTTL time.Duration
}

// Request describes one backtest. Zero Start/End leave that side of the window open.
type Request struct {
	Symbol   string        `json:"symbol"`
	Interval string        `json:"interval"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Limit    int           `json:"limit"`
	Params   domain.Params `json:"params"`
}

// Response is the outcome of BacktestService.Run.
type Response struct {
	RunID  string           `json:"run_id,omitempty"`
	Result *strategy.Result `json:"result"`
	Cached bool             `json:"-"`
}

// NewBacktestService creates a new service instance.
func NewBacktestService(cfg Config) (*BacktestService, error) {
	if cfg.Logger == nil || cfg.Candles == nil || cfg.Runner == nil {
		return nil, fmt.Errorf("missing required dependencies for BacktestService")
	}
	if cfg.CacheTTL < 0 {
		return nil, fmt.Errorf("cache TTL cannot be negative")
	}
	return &BacktestService{
		logger:   cfg.Logger,
		candles:  cfg.Candles,
		source:   cfg.Source,
		results:  cfg.Results,
		cache:    cfg.Cache,
		runner:   cfg.Runner,
		cacheTTL: cfg.CacheTTL,
	}, nil
}

// NormalizeSymbol upper-cases a symbol and drops a pair separator ("btc/usdt" -> "BTCUSDT").
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.ReplaceAll(s, "/", "")
	if len(s) < 5 || len(s) > 20 {
		return "", fmt.Errorf("invalid symbol %q", symbol)
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("invalid symbol %q", symbol)
		}
	}
	return s, nil
}

// Validate normalizes the request and reports every problem at once,
// wrapped in ports.ErrInvalidRequest.
func (r Request) Validate() (Request, error) {
	var errs []string

	symbol, err := NormalizeSymbol(r.Symbol)
	if err != nil {
		errs = append(errs, err.Error())
	}
	r.Symbol = symbol

	if !domain.IsSupportedInterval(r.Interval) {
		errs = append(errs, fmt.Sprintf("invalid interval %q", r.Interval))
	}
	if r.Limit == 0 {
		r.Limit = DefaultLimit
	}
	if r.Limit < 1 || r.Limit > MaxLimit {
		errs = append(errs, fmt.Sprintf("limit must be between 1 and %d, got %d", MaxLimit, r.Limit))
	}
	if !r.Start.IsZero() && !r.End.IsZero() && !r.Start.Before(r.End) {
		errs = append(errs, "start must be before end")
	}
	r.Start, r.End = r.Start.UTC(), r.End.UTC()

	if len(errs) > 0 {
		return r, fmt.Errorf("%w: %s", ports.ErrInvalidRequest, strings.Join(errs, "; "))
	}
	return r, nil
}

// CacheKey hashes the canonical JSON of a normalized request.
func CacheKey(req Request) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Run validates the request, serves a cached result when one exists and otherwise
// loads candles, runs the pipeline, persists a successful run and caches it.
func (s *BacktestService) Run(ctx context.Context, req Request) (*Response, error) {
	req, err := req.Validate()
	if err != nil {
		return nil, err
	}
	if err := req.Params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrInvalidParams, err)
	}

	key, err := CacheKey(req)
	if err != nil {
		return nil, err
	}
	if resp := s.fromCache(ctx, key); resp != nil {
		return resp, nil
	}

	candles, err := s.LoadCandles(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := s.runner.Run(ctx, candles, req.Params)
	if err != nil {
		return nil, err
	}
	if result.Symbol == "" {
		result.Symbol, result.Interval = req.Symbol, req.Interval
	}

	resp := &Response{Result: result}
	if !result.Success {
		s.logger.Warn(ctx, "Backtest did not complete", map[string]interface{}{
			"symbol":   req.Symbol,
			"interval": req.Interval,
			"reason":   result.ErrorMessage,
		})
		return resp, nil
	}

	if s.results != nil {
		resp.RunID = domain.NewRunID()
		if err := s.results.SaveRun(ctx, toRun(resp.RunID, req, result), result.Trades); err != nil {
			s.logger.Error(ctx, err, "Failed to persist backtest run", map[string]interface{}{"runID": resp.RunID})
			return nil, fmt.Errorf("failed to persist run: %w", err)
		}
	}
	s.toCache(ctx, key, resp)

	s.logger.Info(ctx, "Backtest completed", map[string]interface{}{
		"runID":    resp.RunID,
		"symbol":   req.Symbol,
		"interval": req.Interval,
		"trades":   len(result.Trades),
		"pnl":      result.Statistics.TotalPNL,
	})
	return resp, nil
}

// LoadCandles reads the requested window from the repository and falls back to the
// candle source when the repository cannot cover a run. Fetched candles are stored.
func (s *BacktestService) LoadCandles(ctx context.Context, req Request) ([]domain.Candle, error) {
	stored, err := s.candles.FindCandles(ctx, req.Symbol, req.Interval, req.Start, req.End, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored candles: %w", err)
	}
	if len(stored) >= req.Params.MinCandles() || s.source == nil {
		return stored, nil
	}

	s.logger.Info(ctx, "Fetching candles from source", map[string]interface{}{
		"symbol":   req.Symbol,
		"interval": req.Interval,
		"stored":   len(stored),
	})

	var fetched []domain.Candle
	if req.Start.IsZero() {
		fetched, err = s.source.GetRecentCandles(ctx, req.Symbol, req.Interval, req.Limit)
		fetched = beforeOrAt(fetched, req.End)
	} else {
		end := req.End
		if end.IsZero() {
			end = time.Now().UTC()
		}
		fetched, err = s.source.GetCandles(ctx, req.Symbol, req.Interval, req.Start, end)
	}
	if err != nil {
		if len(stored) > 0 {
			s.logger.Warn(ctx, "Candle source failed, using stored candles", map[string]interface{}{
				"error":  err.Error(),
				"stored": len(stored),
			})
			return stored, nil
		}
		return nil, fmt.Errorf("failed to fetch candles: %w", err)
	}

	if len(fetched) > req.Limit {
		fetched = fetched[len(fetched)-req.Limit:]
	}
	if n, err := s.candles.SaveCandles(ctx, fetched); err != nil {
		s.logger.Warn(ctx, "Failed to store fetched candles", map[string]interface{}{"error": err.Error()})
	} else {
		s.logger.Debug(ctx, "Stored fetched candles", map[string]interface{}{"count": n})
	}
	return fetched, nil
}

// RecentRuns lists persisted runs, newest first.
func (s *BacktestService) RecentRuns(ctx context.Context, symbol string, limit int) ([]*ports.BacktestRun, error) {
	if s.results == nil {
		return nil, fmt.Errorf("%w: no result repository configured", ports.ErrConfigurationError)
	}
	if symbol != "" {
		normalized, err := NormalizeSymbol(symbol)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ports.ErrInvalidRequest, err)
		}
		symbol = normalized
	}
	return s.results.FindRuns(ctx, symbol, limit)
}

// RunTrades returns the trades of a persisted run.
func (s *BacktestService) RunTrades(ctx context.Context, runID string) ([]*domain.Trade, error) {
	if s.results == nil {
		return nil, fmt.Errorf("%w: no result repository configured", ports.ErrConfigurationError)
	}
	return s.results.FindTrades(ctx, runID)
}

func (s *BacktestService) fromCache(ctx context.Context, key string) *Response {
	if s.cache == nil || s.cacheTTL == 0 {
		return nil
	}
	payload, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ports.ErrCacheMiss) {
			s.logger.Warn(ctx, "Result cache read failed", map[string]interface{}{"error": err.Error()})
		}
		return nil
	}
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil || resp.Result == nil {
		s.logger.Warn(ctx, "Discarding unreadable cache entry", map[string]interface{}{"key": key})
		return nil
	}
	resp.Cached = true
	s.logger.Debug(ctx, "Result served from cache", map[string]interface{}{"key": key, "runID": resp.RunID})
	return &resp
}

func (s *BacktestService) toCache(ctx context.Context, key string, resp *Response) {
	if s.cache == nil || s.cacheTTL == 0 {
		return
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		s.logger.Warn(ctx, "Failed to encode result for cache", map[string]interface{}{"error": err.Error()})
		return
	}
	if n, err := s.cache.Purge(ctx); err != nil {
		s.logger.Warn(ctx, "Result cache purge failed", map[string]interface{}{"error": err.Error()})
	} else if n > 0 {
		s.logger.Debug(ctx, "Expired results dropped from cache", map[string]interface{}{"count": n})
	}
	if err := s.cache.Set(ctx, key, payload, s.cacheTTL); err != nil {
		s.logger.Warn(ctx, "Result cache write failed", map[string]interface{}{"error": err.Error()})
	}
}

func beforeOrAt(candles []domain.Candle, end time.Time) []domain.Candle {
	if end.IsZero() {
		return candles
	}
	out := candles[:0:0]
	for _, c := range candles {
		if !c.Timestamp.After(end) {
			out = append(out, c)
		}
	}
	return out
}

func toRun(id string, req Request, result *strategy.Result) *ports.BacktestRun {
	run := &ports.BacktestRun{
		ID:            id,
		Symbol:        req.Symbol,
		Interval:      req.Interval,
		Params:        req.Params,
		Success:       result.Success,
		ErrorMessage:  result.ErrorMessage,
		TotalTrades:   len(result.Trades),
		FinalCapital:  result.FinalCapital,
		DataStart:     result.DataStart,
		DataEnd:       result.DataEnd,
		ExecutionTime: result.ExecutionTime,
		CreatedAt:     time.Now().UTC(),
	}
	if st := result.Statistics; st != nil {
		run.TotalPNL = st.TotalPNL
		run.WinRate = st.WinRate
		run.MaxDrawdown = st.MaxDrawdown
		run.SharpeRatio = st.SharpeRatio
	}
	return run
}
