package indicators

import (
	"context"
	"fmt"

	"hybridBacktester/internal/domain"
)

// MovingAverageType defines the type of moving average
type MovingAverageType string

const (
	// SimpleMovingAverage represents a simple moving average
	SimpleMovingAverage MovingAverageType = "SMA"
	// ExponentialMovingAverage represents an exponential moving average
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// MovingAverageConfig holds configuration for moving average indicators
type MovingAverageConfig struct {
	IndicatorConfig
	Type MovingAverageType
}

// MovingAverage implements both SMA and EMA indicators over close prices
type MovingAverage struct {
	BaseIndicator
	config MovingAverageConfig
}

// NewMovingAverage creates a new moving average indicator instance
func NewMovingAverage(config MovingAverageConfig) *MovingAverage {
	return &MovingAverage{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// Name returns the name of the indicator
func (m *MovingAverage) Name() string {
	return string(m.config.Type)
}

// Calculate computes the moving average at the last candle
func (m *MovingAverage) Calculate(ctx context.Context, candles []domain.Candle) (float64, error) {
	if len(candles) < m.Config.Period {
		return 0, fmt.Errorf("not enough data (%d) to calculate %s for period %d", len(candles), m.config.Type, m.Config.Period)
	}
	series, err := m.Series(Closes(candles))
	if err != nil {
		return 0, err
	}
	return Last(series), nil
}

// Series computes the moving average for every position of values.
func (m *MovingAverage) Series(values []float64) ([]float64, error) {
	switch m.config.Type {
	case SimpleMovingAverage:
		return RollingMean(values, m.Config.Period), nil
	case ExponentialMovingAverage:
		return EMASeries(values, m.Config.Period), nil
	default:
		return nil, fmt.Errorf("unsupported moving average type: %s", m.config.Type)
	}
}

// EMASeries seeds the average with the SMA of the first period values and applies
// the 2/(period+1) multiplier from there on.
func EMASeries(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	multiplier := 2.0 / float64(period+1)

	ema := 0.0
	for _, v := range values[:period] {
		ema += v
	}
	ema /= float64(period)
	out[period-1] = ema

	for i := period; i < len(values); i++ {
		ema = (values[i]-ema)*multiplier + ema
		out[i] = ema
	}
	return out
}
