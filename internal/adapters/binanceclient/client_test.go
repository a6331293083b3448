package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybridBacktester/internal/adapters/logger"
	"hybridBacktester/internal/ports"
)

var baseTime = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func kline(i int) *binance.Kline {
	open := baseTime.Add(time.Duration(i) * time.Minute)
	return &binance.Kline{
		OpenTime:  open.UnixMilli(),
		Open:      "100.10",
		High:      "101.25",
		Low:       "99.50",
		Close:     "100.75",
		Volume:    "12.5",
		CloseTime: open.Add(time.Minute).UnixMilli() - 1,
	}
}

// fakeFetch serves klines from a fixed series and records each request.
type fakeFetch struct {
	mu       sync.Mutex
	total    int
	failures []error // returned in order before serving data
	starts   []int64
}

func (f *fakeFetch) fetch(ctx context.Context, symbol, interval string, start, end int64, limit int) ([]*binance.Kline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, start)
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return nil, err
	}
	out := make([]*binance.Kline, 0, limit)
	for i := 0; i < f.total && len(out) < limit; i++ {
		k := kline(i)
		if start > 0 && k.OpenTime < start {
			continue
		}
		if end > 0 && k.OpenTime > end {
			break
		}
		out = append(out, k)
	}
	return out, nil
}

func newTestClient(t *testing.T, f *fakeFetch) *Client {
	t.Helper()
	c, err := New(Config{
		RequestsPerSecond: 1000,
		MaxRetries:        2,
		RetryInterval:     time.Millisecond,
		Logger:            logger.Nop(),
	})
	require.NoError(t, err)
	c.fetch = f.fetch
	return c
}

func TestNew_RequiresLogger(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	c, err := New(Config{UseTestnet: true, Logger: logger.Nop()})
	require.NoError(t, err)
	assert.Equal(t, baseURLTestnet, c.spotClient.BaseURL)

	c, err = New(Config{BaseURL: "http://localhost:9999", UseTestnet: true, Logger: logger.Nop()})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999", c.spotClient.BaseURL)
}

func TestTranslateBinanceKline(t *testing.T) {
	c, err := translateBinanceKline(kline(3), "BTCUSDT", "1m")
	require.NoError(t, err)
	assert.Equal(t, baseTime.Add(3*time.Minute), c.Timestamp)
	assert.Equal(t, "BTCUSDT", c.Symbol)
	assert.Equal(t, 100.10, c.Open)
	assert.Equal(t, 101.25, c.High)
	assert.Equal(t, 99.50, c.Low)
	assert.Equal(t, 100.75, c.Close)
	assert.Equal(t, 12.5, c.Volume)

	bad := kline(0)
	bad.Close = "abc"
	_, err = translateBinanceKline(bad, "BTCUSDT", "1m")
	assert.ErrorContains(t, err, "parsing close")

	inverted := kline(0)
	inverted.High = "90"
	_, err = translateBinanceKline(inverted, "BTCUSDT", "1m")
	assert.ErrorIs(t, err, ports.ErrInvalidCandle)

	_, err = translateBinanceKline(nil, "BTCUSDT", "1m")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"rate limit", &common.APIError{Code: -1003}, ports.ErrRateLimited},
		{"recv window", &common.APIError{Code: -1021}, ports.ErrTimeout},
		{"bad key", &common.APIError{Code: -2015}, ports.ErrAuthenticationFailed},
		{"invalid symbol", &common.APIError{Code: -1121}, ports.ErrUnsupportedSymbol},
		{"bad parameter", &common.APIError{Code: -1102}, ports.ErrInvalidRequest},
		{"unmapped code", &common.APIError{Code: -9999}, ports.ErrUnknown},
		{"deadline", fmt.Errorf("do: %w", context.DeadlineExceeded), ports.ErrTimeout},
		{"canceled", context.Canceled, ports.ErrContextCanceled},
		{"refused", errors.New("dial tcp: connection refused"), ports.ErrConnectionFailed},
		{"other", errors.New("boom"), ports.ErrUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestGetCandles_Paginates(t *testing.T) {
	f := &fakeFetch{total: 1200}
	c := newTestClient(t, f)

	end := baseTime.Add(2000 * time.Minute)
	candles, err := c.GetCandles(context.Background(), "BTCUSDT", "1m", baseTime, end)
	require.NoError(t, err)

	require.Len(t, candles, 1200)
	assert.Equal(t, baseTime, candles[0].Timestamp)
	assert.Equal(t, baseTime.Add(1199*time.Minute), candles[1199].Timestamp)
	require.Len(t, f.starts, 2)
	assert.Equal(t, kline(999).CloseTime, f.starts[1])
}

func TestGetCandles_DropsBarsAfterEnd(t *testing.T) {
	f := &fakeFetch{total: 10}
	c := newTestClient(t, f)

	candles, err := c.GetCandles(context.Background(), "BTCUSDT", "1m", baseTime, baseTime.Add(4*time.Minute))
	require.NoError(t, err)
	assert.Len(t, candles, 5)
}

func TestGetCandles_InvalidWindow(t *testing.T) {
	c := newTestClient(t, &fakeFetch{})
	_, err := c.GetCandles(context.Background(), "BTCUSDT", "1m", baseTime, baseTime)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestGetRecentCandles_RetriesTransientErrors(t *testing.T) {
	f := &fakeFetch{
		total:    5,
		failures: []error{&common.APIError{Code: -1003, Message: "too many requests"}, errors.New("connection reset by peer")},
	}
	c := newTestClient(t, f)

	candles, err := c.GetRecentCandles(context.Background(), "BTCUSDT", "1m", 5)
	require.NoError(t, err)
	assert.Len(t, candles, 5)
	assert.Len(t, f.starts, 3)
}

func TestGetRecentCandles_PermanentError(t *testing.T) {
	f := &fakeFetch{failures: []error{&common.APIError{Code: -1121, Message: "Invalid symbol."}}}
	c := newTestClient(t, f)

	_, err := c.GetRecentCandles(context.Background(), "NOPE", "1m", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrUnsupportedSymbol)
	assert.Len(t, f.starts, 1, "permanent errors are not retried")
}

func TestGetRecentCandles_GivesUpAfterRetries(t *testing.T) {
	rateLimited := &common.APIError{Code: -1003}
	f := &fakeFetch{failures: []error{rateLimited, rateLimited, rateLimited, rateLimited}}
	c := newTestClient(t, f)

	_, err := c.GetRecentCandles(context.Background(), "BTCUSDT", "1m", 5)
	assert.ErrorIs(t, err, ports.ErrRateLimited)
	assert.Len(t, f.starts, 3)
}

func TestGetRecentCandles_LimitBounds(t *testing.T) {
	c := newTestClient(t, &fakeFetch{})
	for _, limit := range []int{0, 1001} {
		_, err := c.GetRecentCandles(context.Background(), "BTCUSDT", "1m", limit)
		assert.ErrorIs(t, err, ports.ErrInvalidRequest)
	}
}

func TestPing(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "reachable", status: http.StatusOK, body: `{}`},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"code":-1003,"msg":"Too many requests"}`, wantErr: ports.ErrRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v3/ping", r.URL.Path)
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			c, err := New(Config{BaseURL: srv.URL, Logger: logger.Nop()})
			require.NoError(t, err)

			err = c.Ping(context.Background())
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), "Ping failed")
		})
	}
}
