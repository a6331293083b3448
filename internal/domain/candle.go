package domain

import (
	"fmt"
	"math"
	"time"
)

// Candle represents a single OHLCV bar.
type Candle struct {
	Timestamp time.Time // Open time of the bar
	Symbol    string    // Trading symbol (optional for the core)
	Interval  string    // Bar interval, e.g. "1h" (optional for the core)
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Range returns the high-low span of the bar.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// ChangePct returns the open to close change as a fraction of the open.
func (c Candle) ChangePct() float64 {
	if c.Open == 0 {
		return 0
	}
	return (c.Close - c.Open) / c.Open
}

// Validate checks the price and volume constraints of a single bar.
func (c Candle) Validate() error {
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("candle %s: prices must be positive", c.Timestamp.Format(time.RFC3339))
	}
	if c.High < math.Max(c.Open, c.Close) {
		return fmt.Errorf("candle %s: high %.8f below open/close", c.Timestamp.Format(time.RFC3339), c.High)
	}
	if c.Low > math.Min(c.Open, c.Close) {
		return fmt.Errorf("candle %s: low %.8f above open/close", c.Timestamp.Format(time.RFC3339), c.Low)
	}
	if c.Volume < 0 {
		return fmt.Errorf("candle %s: volume cannot be negative", c.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// ValidateSeries validates every bar and checks that timestamps strictly increase.
func ValidateSeries(candles []Candle) error {
	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return err
		}
		if i > 0 && !c.Timestamp.After(candles[i-1].Timestamp) {
			return fmt.Errorf("candle %d: timestamp %s is not after %s", i,
				c.Timestamp.Format(time.RFC3339), candles[i-1].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}
