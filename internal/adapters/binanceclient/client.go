package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"hybridBacktester/internal/domain"
	"hybridBacktester/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"

	// Spot kline endpoint page size limit
	maxKlinesPerRequest = 1000
)

// klineFetcher performs one klines request. start/end are Unix milliseconds; 0 leaves them unset.
type klineFetcher func(ctx context.Context, symbol, interval string, start, end int64, limit int) ([]*binance.Kline, error)

// Client implements ports.CandleSource using the go-binance spot REST API.
// It only reads public historical market data.
type Client struct {
	spotClient    *binance.Client
	fetch         klineFetcher
	limiter       *rate.Limiter
	logger        ports.Logger
	maxRetries    uint64
	retryInterval time.Duration
}

var _ ports.CandleSource = (*Client)(nil)

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey            string // Optional; klines are public
	SecretKey         string
	BaseURL           string // Overrides the production/testnet URL when set
	UseTestnet        bool
	RequestsPerSecond int           // Request pacing (default 5)
	MaxRetries        int           // Retries per request for transient failures (default 3)
	RetryInterval     time.Duration // Initial backoff interval (default 500ms)
	Logger            ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL})

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	} else if retries == 0 {
		retries = 3
	}
	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	c := &Client{
		spotClient:    client,
		limiter:       rate.NewLimiter(rate.Limit(rps), rps),
		logger:        cfg.Logger,
		maxRetries:    uint64(retries),
		retryInterval: interval,
	}
	c.fetch = c.fetchKlines
	return c, nil
}

func (c *Client) fetchKlines(ctx context.Context, symbol, interval string, start, end int64, limit int) ([]*binance.Kline, error) {
	svc := c.spotClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit)
	if start > 0 {
		svc = svc.StartTime(start)
	}
	if end > 0 {
		svc = svc.EndTime(end)
	}
	return svc.Do(ctx)
}

// classify translates Binance API and transport errors into ports errors.
func classify(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case -1003: // Too many requests
			return ports.ErrRateLimited
		case -1021: // Timestamp for this request is outside of the recvWindow
			return ports.ErrTimeout
		case -1022, -2014, -2015: // Signature or API-key problems
			return ports.ErrAuthenticationFailed
		case -1121: // Invalid symbol
			return ports.ErrUnsupportedSymbol
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1125, -1127, -1128, -1130: // Parameter/Request format errors
			return ports.ErrInvalidRequest
		default:
			return ports.ErrUnknown
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ports.ErrTimeout
	case errors.Is(err, context.Canceled):
		return ports.ErrContextCanceled
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"),
		strings.Contains(err.Error(), "no such host"):
		return ports.ErrConnectionFailed
	default:
		return ports.ErrUnknown
	}
}

// retryable reports whether a classified error is worth another attempt.
func retryable(mapped error) bool {
	switch mapped {
	case ports.ErrRateLimited, ports.ErrTimeout, ports.ErrConnectionFailed, ports.ErrUnknown:
		return true
	default:
		return false
	}
}

// handleError wraps err with its classification and logs it.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message
	}
	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return fmt.Errorf("%s failed: %w: %w", operation, classify(err), err)
}

// call runs one paced request, retrying transient failures with exponential backoff.
func (c *Client) call(ctx context.Context, op, symbol, interval string, start, end int64, limit int) ([]*binance.Kline, error) {
	var klines []*binance.Kline
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		var err error
		klines, err = c.fetch(ctx, symbol, interval, start, end, limit)
		if err != nil && !retryable(classify(err)) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	policy.MaxElapsedTime = 30 * time.Second
	notify := func(err error, wait time.Duration) {
		c.logger.Warn(ctx, op+": retrying after transient error", map[string]interface{}{
			"symbol": symbol,
			"error":  err.Error(),
			"wait":   wait.String(),
		})
	}
	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx), notify)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return klines, nil
}

// Ping checks connectivity with the Binance API.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.spotClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, "Ping")
	}
	return nil
}

// GetRecentCandles retrieves the latest limit candles (1..1000) for symbol/interval.
func (c *Client) GetRecentCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	op := "GetRecentCandles"
	if limit <= 0 || limit > maxKlinesPerRequest {
		return nil, fmt.Errorf("%s failed: %w: limit %d outside 1..%d", op, ports.ErrInvalidRequest, limit, maxKlinesPerRequest)
	}
	klines, err := c.call(ctx, op, symbol, interval, 0, 0, limit)
	if err != nil {
		return nil, err
	}
	return translateKlines(klines, symbol, interval, time.Time{})
}

// GetCandles fetches all candles for symbol/interval opened between start and end,
// paging forward from start.
func (c *Client) GetCandles(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Candle, error) {
	op := "GetCandles"
	if !end.After(start) {
		return nil, fmt.Errorf("%s failed: %w: end %s not after start %s", op, ports.ErrInvalidRequest,
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	all := make([]domain.Candle, 0)
	from := start
	for {
		klines, err := c.call(ctx, op, symbol, interval, from.UnixMilli(), end.UnixMilli(), maxKlinesPerRequest)
		if err != nil {
			return nil, err
		}
		if len(klines) == 0 {
			break
		}
		page, err := translateKlines(klines, symbol, interval, end)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		all = append(all, page...)

		last := klines[len(klines)-1]
		from = time.UnixMilli(last.CloseTime)
		if from.After(end) || len(klines) < maxKlinesPerRequest {
			break
		}
	}

	c.logger.Info(ctx, "Historical candles fetched", map[string]interface{}{
		"symbol":   symbol,
		"interval": interval,
		"count":    len(all),
	})
	return all, nil
}

// translateKlines converts a page of klines, dropping bars opened after end when end is set.
func translateKlines(klines []*binance.Kline, symbol, interval string, end time.Time) ([]domain.Candle, error) {
	out := make([]domain.Candle, 0, len(klines))
	for _, bk := range klines {
		c, err := translateBinanceKline(bk, symbol, interval)
		if err != nil {
			return nil, fmt.Errorf("failed to translate historical kline: %w", err)
		}
		if !end.IsZero() && c.Timestamp.After(end) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func translateBinanceKline(bk *binance.Kline, symbol, interval string) (domain.Candle, error) {
	if bk == nil {
		return domain.Candle{}, errors.New("received nil historical kline")
	}
	fields := []struct {
		name string
		raw  string
	}{
		{"open", bk.Open},
		{"high", bk.High},
		{"low", bk.Low},
		{"close", bk.Close},
		{"volume", bk.Volume},
	}
	values := make([]float64, len(fields))
	for i, f := range fields {
		d, err := decimal.NewFromString(strings.TrimSpace(f.raw))
		if err != nil {
			return domain.Candle{}, fmt.Errorf("parsing %s '%s': %w", f.name, f.raw, err)
		}
		values[i] = d.InexactFloat64()
	}

	c := domain.Candle{
		Timestamp: time.UnixMilli(bk.OpenTime).UTC(),
		Symbol:    symbol,
		Interval:  interval,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}
	if err := c.Validate(); err != nil {
		return domain.Candle{}, fmt.Errorf("%w: %w", ports.ErrInvalidCandle, err)
	}
	return c, nil
}
