// Package signals turns a candle series into scored trading signals: a volume spike
// detector, a price movement detector and the combiner that fuses them.
package signals

import (
	"math"

	"hybridBacktester/internal/domain"
	"hybridBacktester/internal/strategy/indicators"
)

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(v, 1))
}

// setValid stores v under key unless it is NaN or infinite.
func setValid(m domain.Metadata, key string, v float64) {
	if indicators.Valid(v) {
		m[key] = v
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func bodyDirection(c domain.Candle) domain.Direction {
	switch {
	case c.Close > c.Open:
		return domain.DirectionLong
	case c.Close < c.Open:
		return domain.DirectionShort
	default:
		return domain.DirectionUnknown
	}
}
