package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybridBacktester/internal/domain"
	"hybridBacktester/internal/ports"
	"hybridBacktester/internal/strategy"
	"hybridBacktester/internal/strategy/analytics"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

type mockCandleRepo struct {
	stored  []domain.Candle
	saved   []domain.Candle
	findErr error
	lastReq struct {
		symbol, interval string
		start, end       time.Time
		limit            int
	}
}

func (m *mockCandleRepo) SaveCandles(ctx context.Context, candles []domain.Candle) (int, error) {
	m.saved = append(m.saved, candles...)
	return len(candles), nil
}

func (m *mockCandleRepo) FindCandles(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]domain.Candle, error) {
	m.lastReq.symbol, m.lastReq.interval = symbol, interval
	m.lastReq.start, m.lastReq.end, m.lastReq.limit = start, end, limit
	if m.findErr != nil {
		return nil, m.findErr
	}
	return append([]domain.Candle(nil), m.stored...), nil
}

func (m *mockCandleRepo) CountCandles(ctx context.Context, symbol, interval string) (int, error) {
	return len(m.stored), nil
}

type mockSource struct {
	candles     []domain.Candle
	err         error
	recentCalls int
	rangeCalls  int
}

func (m *mockSource) GetCandles(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Candle, error) {
	m.rangeCalls++
	return m.candles, m.err
}

func (m *mockSource) GetRecentCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	m.recentCalls++
	return m.candles, m.err
}

func (m *mockSource) Ping(ctx context.Context) error { return m.err }

type mockResults struct {
	runs   []*ports.BacktestRun
	trades map[string][]*domain.Trade
	symbol string
}

func (m *mockResults) SaveRun(ctx context.Context, run *ports.BacktestRun, trades []*domain.Trade) error {
	if m.trades == nil {
		m.trades = make(map[string][]*domain.Trade)
	}
	m.runs = append(m.runs, run)
	m.trades[run.ID] = trades
	return nil
}

func (m *mockResults) FindRuns(ctx context.Context, symbol string, limit int) ([]*ports.BacktestRun, error) {
	m.symbol = symbol
	return m.runs, nil
}

func (m *mockResults) FindTrades(ctx context.Context, runID string) ([]*domain.Trade, error) {
	trades, ok := m.trades[runID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return trades, nil
}

type mockCache struct {
	entries  map[string][]byte
	sets     int
	purges   int
	purgeErr error
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	payload, ok := m.entries[key]
	if !ok {
		return nil, ports.ErrCacheMiss
	}
	return payload, nil
}

func (m *mockCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	m.entries[key] = payload
	m.sets++
	return nil
}

func (m *mockCache) Purge(ctx context.Context) (int, error) {
	m.purges++
	return 0, m.purgeErr
}

type mockRunner struct {
	fail     bool
	calls    int
	received int
}

func (m *mockRunner) Run(ctx context.Context, candles []domain.Candle, params domain.Params) (*strategy.Result, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrInvalidParams, err)
	}
	m.calls++
	m.received = len(candles)

	if m.fail {
		return &strategy.Result{
			InitialCapital: params.InitialCapital,
			FinalCapital:   params.InitialCapital,
			Statistics:     analytics.AnalyzePerformance(nil, params.InitialCapital),
			ErrorMessage:   "insufficient data",
		}, nil
	}

	entry := candles[0].Timestamp
	trades := []*domain.Trade{{
		ID:         domain.NewTradeID(entry),
		Symbol:     candles[0].Symbol,
		Direction:  domain.DirectionLong,
		EntryTime:  entry,
		EntryPrice: 100,
		Size:       500,
		ExitTime:   entry.Add(time.Hour),
		ExitPrice:  102,
		ExitReason: domain.ExitReasonTakeProfit,
		PNL:        10,
		Duration:   time.Hour,
		Status:     domain.StatusClosed,
	}}
	return &strategy.Result{
		Symbol:         candles[0].Symbol,
		Interval:       candles[0].Interval,
		Params:         params,
		Trades:         trades,
		Statistics:     analytics.AnalyzePerformance(trades, params.InitialCapital),
		InitialCapital: params.InitialCapital,
		FinalCapital:   params.InitialCapital + 10,
		CandleCount:    len(candles),
		DataStart:      candles[0].Timestamp,
		DataEnd:        candles[len(candles)-1].Timestamp,
		Success:        true,
	}, nil
}

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func hourly(n int) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		out[i] = domain.Candle{
			Timestamp: t0.Add(time.Duration(i) * time.Hour),
			Open:      100, High: 101, Low: 99, Close: 100, Volume: 1000,
			Symbol: "BTCUSDT", Interval: "1h",
		}
	}
	return out
}

type fixture struct {
	logger  *mockLogger
	repo    *mockCandleRepo
	source  *mockSource
	results *mockResults
	cache   *mockCache
	runner  *mockRunner
	svc     *BacktestService
}

func newFixture(t *testing.T, stored, fetched []domain.Candle) *fixture {
	t.Helper()
	f := &fixture{
		logger:  &mockLogger{},
		repo:    &mockCandleRepo{stored: stored},
		source:  &mockSource{candles: fetched},
		results: &mockResults{},
		cache:   &mockCache{},
		runner:  &mockRunner{},
	}
	svc, err := NewBacktestService(Config{
		Logger:   f.logger,
		Candles:  f.repo,
		Source:   f.source,
		Results:  f.results,
		Cache:    f.cache,
		Runner:   f.runner,
		CacheTTL: 5 * time.Minute,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func request() Request {
	return Request{Symbol: "BTCUSDT", Interval: "1h", Params: domain.DefaultParams()}
}

func TestNewBacktestService(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "minimal dependencies",
			cfg:     Config{Logger: &mockLogger{}, Candles: &mockCandleRepo{}, Runner: &mockRunner{}},
			wantErr: false,
		},
		{
			name:    "missing logger",
			cfg:     Config{Candles: &mockCandleRepo{}, Runner: &mockRunner{}},
			wantErr: true,
		},
		{
			name:    "missing runner",
			cfg:     Config{Logger: &mockLogger{}, Candles: &mockCandleRepo{}},
			wantErr: true,
		},
		{
			name:    "negative ttl",
			cfg:     Config{Logger: &mockLogger{}, Candles: &mockCandleRepo{}, Runner: &mockRunner{}, CacheTTL: -time.Second},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewBacktestService(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name       string
		req        Request
		wantSymbol string
		wantLimit  int
		wantErr    string
	}{
		{
			name:       "pair notation is normalized",
			req:        Request{Symbol: " btc/usdt ", Interval: "15m"},
			wantSymbol: "BTCUSDT",
			wantLimit:  DefaultLimit,
		},
		{
			name:       "explicit limit kept",
			req:        Request{Symbol: "ETHUSDT", Interval: "1d", Limit: 1000},
			wantSymbol: "ETHUSDT",
			wantLimit:  1000,
		},
		{
			name:    "unsupported interval",
			req:     Request{Symbol: "BTCUSDT", Interval: "3m"},
			wantErr: `invalid interval "3m"`,
		},
		{
			name:    "limit too large",
			req:     Request{Symbol: "BTCUSDT", Interval: "1h", Limit: 1001},
			wantErr: "limit must be between 1 and 1000",
		},
		{
			name:    "symbol too short",
			req:     Request{Symbol: "BTC", Interval: "1h"},
			wantErr: `invalid symbol "BTC"`,
		},
		{
			name:    "symbol with punctuation",
			req:     Request{Symbol: "BTC-USDT", Interval: "1h"},
			wantErr: `invalid symbol "BTC-USDT"`,
		},
		{
			name:    "inverted window",
			req:     Request{Symbol: "BTCUSDT", Interval: "1h", Start: t0.Add(time.Hour), End: t0},
			wantErr: "start must be before end",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.req.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, ports.ErrInvalidRequest)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSymbol, got.Symbol)
			assert.Equal(t, tt.wantLimit, got.Limit)
		})
	}
}

func TestCacheKey(t *testing.T) {
	a, err := CacheKey(request())
	require.NoError(t, err)
	b, err := CacheKey(request())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	other := request()
	other.Params.TakeProfit = 0.03
	c, err := CacheKey(other)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestRun_UsesStoredCandles(t *testing.T) {
	f := newFixture(t, hourly(30), nil)

	resp, err := f.svc.Run(context.Background(), request())
	require.NoError(t, err)

	assert.False(t, resp.Cached)
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, 30, f.runner.received)
	assert.Zero(t, f.source.recentCalls+f.source.rangeCalls)
	assert.Equal(t, DefaultLimit, f.repo.lastReq.limit)

	require.Len(t, f.results.runs, 1)
	run := f.results.runs[0]
	assert.Equal(t, resp.RunID, run.ID)
	assert.Equal(t, "BTCUSDT", run.Symbol)
	assert.Equal(t, 1, run.TotalTrades)
	assert.InDelta(t, 10, run.TotalPNL, 1e-9)
	assert.InDelta(t, 10010, run.FinalCapital, 1e-9)
	assert.Len(t, f.results.trades[run.ID], 1)
	assert.Equal(t, 1, f.cache.sets)
}

func TestRun_FallsBackToSource(t *testing.T) {
	t.Run("recent candles without a window", func(t *testing.T) {
		f := newFixture(t, hourly(5), hourly(40))
		req := request()
		req.Limit = 30

		_, err := f.svc.Run(context.Background(), req)
		require.NoError(t, err)

		assert.Equal(t, 1, f.source.recentCalls)
		assert.Equal(t, 30, f.runner.received)
		assert.Len(t, f.repo.saved, 30)
		assert.Equal(t, hourly(40)[10].Timestamp, f.repo.saved[0].Timestamp)
	})

	t.Run("range fetch with a window", func(t *testing.T) {
		f := newFixture(t, nil, hourly(25))
		req := request()
		req.Start = t0
		req.End = t0.Add(24 * time.Hour)

		_, err := f.svc.Run(context.Background(), req)
		require.NoError(t, err)

		assert.Equal(t, 1, f.source.rangeCalls)
		assert.Zero(t, f.source.recentCalls)
		assert.Equal(t, 25, f.runner.received)
	})

	t.Run("recent candles trimmed to end", func(t *testing.T) {
		f := newFixture(t, nil, hourly(40))
		req := request()
		req.End = t0.Add(29 * time.Hour)

		_, err := f.svc.Run(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 30, f.runner.received)
	})
}

func TestRun_SourceFailure(t *testing.T) {
	t.Run("no stored candles", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		f.source.err = fmt.Errorf("klines failed: %w", ports.ErrConnectionFailed)

		resp, err := f.svc.Run(context.Background(), request())
		require.Error(t, err)
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, ports.ErrConnectionFailed)
		assert.Zero(t, f.runner.calls)
	})

	t.Run("falls back to stored candles", func(t *testing.T) {
		f := newFixture(t, hourly(10), nil)
		f.source.err = ports.ErrRateLimited

		_, err := f.svc.Run(context.Background(), request())
		require.NoError(t, err)
		assert.Equal(t, 10, f.runner.received)
		assert.Contains(t, f.logger.warnMsgs, "Candle source failed, using stored candles")
	})
}

func TestRun_ServesFromCache(t *testing.T) {
	f := newFixture(t, hourly(30), nil)
	ctx := context.Background()

	first, err := f.svc.Run(ctx, request())
	require.NoError(t, err)

	second, err := f.svc.Run(ctx, request())
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, 1, f.runner.calls)
	assert.Len(t, f.results.runs, 1)
	assert.Equal(t, first.RunID, second.RunID)
	assert.InDelta(t, first.Result.FinalCapital, second.Result.FinalCapital, 1e-9)
	require.Len(t, second.Result.Trades, 1)
	assert.Equal(t, first.Result.Trades[0].ID, second.Result.Trades[0].ID)
	assert.True(t, first.Result.Trades[0].EntryTime.Equal(second.Result.Trades[0].EntryTime))
}

func TestRun_PurgesExpiredEntriesBeforeCaching(t *testing.T) {
	f := newFixture(t, hourly(30), nil)
	ctx := context.Background()

	_, err := f.svc.Run(ctx, request())
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.purges)
	assert.Equal(t, 1, f.cache.sets)

	// a failing purge must not keep the fresh result out of the cache
	f.cache.purgeErr = fmt.Errorf("disk I/O error")
	req := request()
	req.Params.TakeProfit = 0.03
	_, err = f.svc.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, f.cache.purges)
	assert.Equal(t, 2, f.cache.sets)
	assert.Contains(t, f.logger.warnMsgs, "Result cache purge failed")

	f.svc.cacheTTL = 0
	req.Params.TakeProfit = 0.04
	_, err = f.svc.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, f.cache.purges)
}

func TestRun_CacheDisabled(t *testing.T) {
	f := newFixture(t, hourly(30), nil)
	f.svc.cacheTTL = 0

	for i := 0; i < 2; i++ {
		_, err := f.svc.Run(context.Background(), request())
		require.NoError(t, err)
	}
	assert.Equal(t, 2, f.runner.calls)
	assert.Zero(t, f.cache.sets)
}

func TestRun_FailedResultNotPersisted(t *testing.T) {
	f := newFixture(t, hourly(30), nil)
	f.runner.fail = true

	resp, err := f.svc.Run(context.Background(), request())
	require.NoError(t, err)

	assert.False(t, resp.Result.Success)
	assert.Empty(t, resp.RunID)
	assert.Empty(t, f.results.runs)
	assert.Zero(t, f.cache.sets)
	assert.Equal(t, "BTCUSDT", resp.Result.Symbol)
	assert.Contains(t, f.logger.warnMsgs, "Backtest did not complete")
}

func TestRun_InvalidInput(t *testing.T) {
	f := newFixture(t, hourly(30), nil)

	req := request()
	req.Params.LookbackPeriod = 1
	_, err := f.svc.Run(context.Background(), req)
	assert.ErrorIs(t, err, ports.ErrInvalidParams)

	req = request()
	req.Interval = "7m"
	_, err = f.svc.Run(context.Background(), req)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)

	assert.Zero(t, f.runner.calls)
}

func TestRecentRunsAndTrades(t *testing.T) {
	f := newFixture(t, hourly(30), nil)
	ctx := context.Background()

	resp, err := f.svc.Run(ctx, request())
	require.NoError(t, err)

	runs, err := f.svc.RecentRuns(ctx, "btc/usdt", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.Equal(t, "BTCUSDT", f.results.symbol)

	trades, err := f.svc.RunTrades(ctx, resp.RunID)
	require.NoError(t, err)
	assert.Len(t, trades, 1)

	_, err = f.svc.RunTrades(ctx, "missing")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	bare, err := NewBacktestService(Config{Logger: &mockLogger{}, Candles: &mockCandleRepo{}, Runner: &mockRunner{}})
	require.NoError(t, err)
	_, err = bare.RunTrades(ctx, resp.RunID)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}
