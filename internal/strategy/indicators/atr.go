package indicators

import (
	"context"
	"fmt"
	"math"

	"hybridBacktester/internal/domain"
)

// ATRConfig holds configuration for the Average True Range indicator
type ATRConfig struct {
	IndicatorConfig
	// Wilder selects Wilder's smoothing instead of a plain rolling mean of true range.
	Wilder bool
}

// ATR implements the Average True Range indicator
type ATR struct {
	BaseIndicator
	config ATRConfig
}

// NewATR creates a new Average True Range indicator instance
func NewATR(config ATRConfig) *ATR {
	return &ATR{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// Name returns the name of the indicator
func (a *ATR) Name() string {
	return "ATR"
}

// Calculate computes the Average True Range at the last candle
func (a *ATR) Calculate(ctx context.Context, candles []domain.Candle) (float64, error) {
	period := a.config.Period
	if len(candles) < period+1 {
		return 0, fmt.Errorf("not enough data points for ATR calculation: need %d, got %d", period+1, len(candles))
	}
	return Last(a.Series(candles)), nil
}

// Series computes the ATR for every candle.
func (a *ATR) Series(candles []domain.Candle) []float64 {
	tr := TrueRange(candles)
	if !a.config.Wilder {
		return RollingMean(tr, a.config.Period)
	}

	period := a.config.Period
	out := nanSeries(len(candles))
	if period <= 0 || len(tr) < period {
		return out
	}
	atr := 0.0
	for i := 0; i < period; i++ {
		atr += tr[i]
	}
	atr /= float64(period)
	out[period-1] = atr
	for i := period; i < len(tr); i++ {
		atr = (atr*float64(period-1) + tr[i]) / float64(period)
		out[i] = atr
	}
	return out
}

// TrueRange returns the greatest of high-low, |high-prevClose| and |low-prevClose|
// per candle. The first candle uses its high-low range.
func TrueRange(candles []domain.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		if i == 0 {
			out[i] = c.High - c.Low
			continue
		}
		prevClose := candles[i-1].Close
		out[i] = math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
	}
	return out
}
