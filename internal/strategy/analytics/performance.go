package analytics

import (
	"math"
	"sort"
	"time"

	"hybridBacktester/internal/domain"
)

// PerformanceMetrics holds comprehensive performance metrics for a strategy
type PerformanceMetrics struct {
	// Basic Metrics
	TotalTrades    int
	WinningTrades  int
	LosingTrades   int
	FlatTrades     int
	WinRate        float64
	TotalPNL       float64
	TotalReturn    float64 // TotalPNL / initial capital
	InitialCapital float64
	FinalCapital   float64
	AverageWin     float64
	AverageLoss    float64 // Negative or zero
	GrossProfit    float64
	GrossLoss      float64 // Positive magnitude of losses
	ProfitFactor   float64 // 0 when there are no losses
	LargestWin     float64
	LargestLoss    float64 // Most negative PnL, 0 when there are no losses

	// Drawdown on cumulative realized PnL
	MaxDrawdown    float64 // Absolute peak-to-trough decline
	MaxDrawdownPct float64 // Same decline as a fraction of peak equity

	// Risk-adjusted, per-trade return = PnL / initial capital
	SharpeRatio  float64
	SortinoRatio float64

	// Durations in minutes
	MinDurationMinutes   float64
	AvgDurationMinutes   float64
	MaxDurationMinutes   float64
	AverageTradeDuration time.Duration

	// Advanced Metrics
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	RecoveryFactor       float64
	Expectancy           float64
	RiskRewardRatio      float64
	MonthlyReturns       map[string]float64
	Drawdowns            []Drawdown
	EquityCurve          []EquityPoint
}

// Drawdown represents a drawdown period
type Drawdown struct {
	StartTime  time.Time
	EndTime    time.Time
	StartValue float64
	EndValue   float64
	Depth      float64
	Duration   time.Duration
}

// EquityPoint represents a point on the equity curve
type EquityPoint struct {
	Time     time.Time
	Value    float64
	Drawdown float64
}

// AnalyzePerformance calculates comprehensive performance metrics from closed trades.
// The input slice is not reordered.
func AnalyzePerformance(trades []*domain.Trade, initialCapital float64) *PerformanceMetrics {
	metrics := &PerformanceMetrics{
		InitialCapital: initialCapital,
		FinalCapital:   initialCapital,
		MonthlyReturns: make(map[string]float64),
		Drawdowns:      make([]Drawdown, 0),
		EquityCurve:    make([]EquityPoint, 0),
	}

	if len(trades) == 0 {
		return metrics
	}

	ordered := make([]*domain.Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].EntryTime.Before(ordered[j].EntryTime)
	})

	var cumulative, peakPNL float64
	var consecutiveWins, consecutiveLosses int
	var currentDrawdown *Drawdown
	var totalDuration time.Duration
	returns := make([]float64, 0, len(ordered))
	metrics.MinDurationMinutes = math.Inf(1)

	for _, trade := range ordered {
		metrics.TotalTrades++
		switch {
		case trade.PNL > 0:
			metrics.WinningTrades++
			metrics.GrossProfit += trade.PNL
			metrics.LargestWin = math.Max(metrics.LargestWin, trade.PNL)
			consecutiveWins++
			consecutiveLosses = 0
		case trade.PNL < 0:
			metrics.LosingTrades++
			metrics.GrossLoss -= trade.PNL
			metrics.LargestLoss = math.Min(metrics.LargestLoss, trade.PNL)
			consecutiveLosses++
			consecutiveWins = 0
		default:
			metrics.FlatTrades++
		}
		if consecutiveWins > metrics.MaxConsecutiveWins {
			metrics.MaxConsecutiveWins = consecutiveWins
		}
		if consecutiveLosses > metrics.MaxConsecutiveLosses {
			metrics.MaxConsecutiveLosses = consecutiveLosses
		}

		if initialCapital > 0 {
			returns = append(returns, trade.PNL/initialCapital)
		}

		minutes := trade.DurationMinutes()
		totalDuration += trade.Duration
		metrics.MinDurationMinutes = math.Min(metrics.MinDurationMinutes, minutes)
		metrics.MaxDurationMinutes = math.Max(metrics.MaxDurationMinutes, minutes)

		cumulative += trade.PNL
		metrics.MonthlyReturns[trade.ExitTime.Format("2006-01")] += trade.PNL

		equity := initialCapital + cumulative
		peakEquity := initialCapital + peakPNL
		if cumulative > peakPNL {
			peakPNL = cumulative
			peakEquity = equity
			if currentDrawdown != nil {
				currentDrawdown.EndTime = trade.ExitTime
				currentDrawdown.EndValue = equity
				currentDrawdown.Duration = currentDrawdown.EndTime.Sub(currentDrawdown.StartTime)
				metrics.Drawdowns = append(metrics.Drawdowns, *currentDrawdown)
				currentDrawdown = nil
			}
		} else if cumulative < peakPNL {
			decline := peakPNL - cumulative
			depth := fraction(decline, peakEquity)
			if currentDrawdown == nil {
				currentDrawdown = &Drawdown{
					StartTime:  trade.ExitTime,
					StartValue: peakEquity,
					Depth:      depth,
				}
			} else {
				currentDrawdown.Depth = math.Max(currentDrawdown.Depth, depth)
			}
			metrics.MaxDrawdown = math.Max(metrics.MaxDrawdown, decline)
			metrics.MaxDrawdownPct = math.Max(metrics.MaxDrawdownPct, depth)
		}

		metrics.EquityCurve = append(metrics.EquityCurve, EquityPoint{
			Time:     trade.ExitTime,
			Value:    equity,
			Drawdown: fraction(peakPNL-cumulative, peakEquity),
		})
	}

	// Close any open drawdown
	if currentDrawdown != nil {
		last := ordered[len(ordered)-1]
		currentDrawdown.EndTime = last.ExitTime
		currentDrawdown.EndValue = initialCapital + cumulative
		currentDrawdown.Duration = currentDrawdown.EndTime.Sub(currentDrawdown.StartTime)
		metrics.Drawdowns = append(metrics.Drawdowns, *currentDrawdown)
	}

	n := float64(metrics.TotalTrades)
	metrics.TotalPNL = cumulative
	metrics.FinalCapital = initialCapital + cumulative
	metrics.TotalReturn = fraction(cumulative, initialCapital)
	metrics.WinRate = float64(metrics.WinningTrades) / n
	metrics.AverageTradeDuration = totalDuration / time.Duration(metrics.TotalTrades)
	metrics.AvgDurationMinutes = metrics.AverageTradeDuration.Minutes()

	if metrics.WinningTrades > 0 {
		metrics.AverageWin = metrics.GrossProfit / float64(metrics.WinningTrades)
	}
	if metrics.LosingTrades > 0 {
		metrics.AverageLoss = -metrics.GrossLoss / float64(metrics.LosingTrades)
	}
	if metrics.GrossLoss > 0 {
		metrics.ProfitFactor = metrics.GrossProfit / metrics.GrossLoss
	}
	if metrics.MaxDrawdown > 0 {
		metrics.RecoveryFactor = metrics.TotalPNL / metrics.MaxDrawdown
	}

	// Calculate expectancy
	lossRate := float64(metrics.LosingTrades) / n
	metrics.Expectancy = metrics.WinRate*metrics.AverageWin + lossRate*metrics.AverageLoss

	// Calculate risk-reward ratio
	if metrics.AverageLoss != 0 {
		metrics.RiskRewardRatio = metrics.AverageWin / -metrics.AverageLoss
	}

	metrics.SharpeRatio = sharpeRatio(returns)
	metrics.SortinoRatio = sortinoRatio(returns)
	return metrics
}

func fraction(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den
}

// sharpeRatio is mean over population standard deviation, with no risk-free rate.
func sharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := meanOf(returns)
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(len(returns)))
	if std == 0 {
		return 0
	}
	return mean / std
}

// sortinoRatio divides the mean return by the downside deviation.
func sortinoRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var downside float64
	for _, r := range returns {
		if r < 0 {
			downside += r * r
		}
	}
	dd := math.Sqrt(downside / float64(len(returns)))
	if dd == 0 {
		return 0
	}
	return meanOf(returns) / dd
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// GetMonthlyReturns returns the monthly returns as a sorted slice
func (m *PerformanceMetrics) GetMonthlyReturns() []MonthlyReturn {
	returns := make([]MonthlyReturn, 0, len(m.MonthlyReturns))
	for month, profit := range m.MonthlyReturns {
		date, _ := time.Parse("2006-01", month)
		returns = append(returns, MonthlyReturn{
			Month:  date,
			Return: profit,
		})
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}

// MonthlyReturn represents a monthly return value
type MonthlyReturn struct {
	Month  time.Time
	Return float64
}
