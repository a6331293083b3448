package domain

import (
	"fmt"
	"strings"
)

// MinPositionSize is the smallest position a trade may take, as a fraction of
// available capital. MaxPositionSize may not go below it.
const MinPositionSize = 0.01

// Params is the parameter bundle of a single backtest run.
type Params struct {
	// Signal detection
	LookbackPeriod  int     `yaml:"lookback_period" json:"lookback_period"`
	VolumeThreshold float64 `yaml:"volume_threshold" json:"volume_threshold"`
	MinPriceChange  float64 `yaml:"min_price_change" json:"min_price_change"`
	ShortPeriod     int     `yaml:"short_period" json:"short_period"`
	LongPeriod      int     `yaml:"long_period" json:"long_period"`
	MomentumPeriod  int     `yaml:"momentum_period" json:"momentum_period"`

	// Signal fusion
	VolumeWeight        float64 `yaml:"volume_weight" json:"volume_weight"`
	PriceWeight         float64 `yaml:"price_weight" json:"price_weight"`
	MomentumWeight      float64 `yaml:"momentum_weight" json:"momentum_weight"`
	MinCombinedScore    float64 `yaml:"min_combined_score" json:"min_combined_score"`
	SignalWindowSeconds int     `yaml:"signal_window_seconds" json:"signal_window_seconds"`

	// Risk
	TakeProfit      float64 `yaml:"take_profit" json:"take_profit"`
	StopLoss        float64 `yaml:"stop_loss" json:"stop_loss"`
	MaxPositionSize float64 `yaml:"max_position_size" json:"max_position_size"`
	RiskPerTrade    float64 `yaml:"risk_per_trade" json:"risk_per_trade"`

	// Simulation
	MaxTrades      int     `yaml:"max_trades" json:"max_trades"`
	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital"`
}

// DefaultParams returns the stock parameter bundle.
func DefaultParams() Params {
	return Params{
		LookbackPeriod:      20,
		VolumeThreshold:     1.5,
		MinPriceChange:      0.005,
		ShortPeriod:         5,
		LongPeriod:          20,
		MomentumPeriod:      10,
		VolumeWeight:        0.4,
		PriceWeight:         0.4,
		MomentumWeight:      0.2,
		MinCombinedScore:    0.5,
		SignalWindowSeconds: 300,
		TakeProfit:          0.02,
		StopLoss:            0.01,
		MaxPositionSize:     0.1,
		RiskPerTrade:        0.02,
		MaxTrades:           100,
		InitialCapital:      10000,
	}
}

// MinCandles returns the shortest series a run accepts.
func (p Params) MinCandles() int {
	return p.LookbackPeriod + 1
}

// Validate checks every constraint and reports all violations at once.
func (p Params) Validate() error {
	var errs []string

	if p.LookbackPeriod < 5 || p.LookbackPeriod > 100 {
		errs = append(errs, fmt.Sprintf("lookback_period must be between 5 and 100, got %d", p.LookbackPeriod))
	}
	if p.VolumeThreshold <= 1.0 || p.VolumeThreshold > 5.0 {
		errs = append(errs, fmt.Sprintf("volume_threshold must be in (1.0, 5.0], got %g", p.VolumeThreshold))
	}
	if p.MinPriceChange <= 0 || p.MinPriceChange > 0.1 {
		errs = append(errs, fmt.Sprintf("min_price_change must be in (0, 0.1], got %g", p.MinPriceChange))
	}
	if p.ShortPeriod < 1 || p.LongPeriod < 2 || p.MomentumPeriod < 1 {
		errs = append(errs, "short_period, long_period and momentum_period must be positive")
	} else if p.ShortPeriod >= p.LongPeriod {
		errs = append(errs, "short_period must be less than long_period")
	}

	if p.VolumeWeight < 0 || p.PriceWeight < 0 || p.MomentumWeight < 0 {
		errs = append(errs, "signal weights cannot be negative")
	} else if p.VolumeWeight+p.PriceWeight+p.MomentumWeight == 0 {
		errs = append(errs, "at least one signal weight must be positive")
	}
	if p.MinCombinedScore < 0 || p.MinCombinedScore > 1 {
		errs = append(errs, fmt.Sprintf("min_combined_score must be in [0, 1], got %g", p.MinCombinedScore))
	}
	if p.SignalWindowSeconds < 0 {
		errs = append(errs, "signal_window_seconds cannot be negative")
	}

	if p.TakeProfit <= 0 || p.TakeProfit > 0.5 {
		errs = append(errs, fmt.Sprintf("take_profit must be in (0, 0.5], got %g", p.TakeProfit))
	}
	if p.StopLoss <= 0 || p.StopLoss > 0.5 {
		errs = append(errs, fmt.Sprintf("stop_loss must be in (0, 0.5], got %g", p.StopLoss))
	}
	if p.StopLoss >= p.TakeProfit {
		errs = append(errs, "stop_loss must be smaller than take_profit")
	}
	if p.MaxPositionSize < MinPositionSize || p.MaxPositionSize > 1 {
		errs = append(errs, fmt.Sprintf("max_position_size must be in [%g, 1], got %g", MinPositionSize, p.MaxPositionSize))
	}
	if p.RiskPerTrade <= 0 || p.RiskPerTrade > 1 {
		errs = append(errs, fmt.Sprintf("risk_per_trade must be in (0, 1], got %g", p.RiskPerTrade))
	}

	if p.MaxTrades < 1 || p.MaxTrades > 1000 {
		errs = append(errs, fmt.Sprintf("max_trades must be between 1 and 1000, got %d", p.MaxTrades))
	}
	if p.InitialCapital <= 0 {
		errs = append(errs, "initial_capital must be positive")
	}

	if len(errs) > 0 {
		return &ValidationError{Problems: errs}
	}
	return nil
}

// ValidationError aggregates every parameter violation found by Validate.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "parameter validation failed: " + strings.Join(e.Problems, "; ")
}
