package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Backtest Errors
	ErrInvalidParams     = errors.New("invalid backtest parameters")
	ErrNoCandles         = errors.New("no candle data available")
	ErrInsufficientData  = errors.New("insufficient candle data")
	ErrInvalidCandle     = errors.New("invalid candle data")
	ErrUnsupportedSymbol = errors.New("unsupported symbol")

	// Data Source Errors
	ErrSourceUnavailable    = errors.New("candle source is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the candle source")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("data source authentication failed (check API keys)")

	// Storage Errors
	ErrCacheMiss      = errors.New("cache entry missing or expired")
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrQueryFailed    = errors.New("database query failed")
)
