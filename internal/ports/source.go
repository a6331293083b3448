package ports

import (
	"context"
	"time"

	"hybridBacktester/internal/domain"
)

// CandleSource retrieves historical candles from an external market data provider.
type CandleSource interface {
	// GetCandles returns the candles of symbol/interval opened in [start, end], oldest first.
	GetCandles(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Candle, error)

	// GetRecentCandles returns the latest limit candles, oldest first.
	GetRecentCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error)

	// Ping checks connectivity to the provider.
	Ping(ctx context.Context) error
}
