package ports

import (
	"context"

	"hybridBacktester/internal/domain"
)

// SignalDetector scans a candle series and emits the signals it finds.
// Implementations must be pure functions of their input so they can run concurrently.
type SignalDetector interface {
	// Name identifies the detector in logs.
	Name() string

	// RequiredDataPoints returns the minimum series length the detector needs.
	RequiredDataPoints() int

	// Detect returns the detected signals in chronological order.
	// A series shorter than RequiredDataPoints yields an empty slice.
	Detect(ctx context.Context, candles []domain.Candle) []domain.Signal
}
