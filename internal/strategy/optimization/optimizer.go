package optimization

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"hybridBacktester/internal/domain"
	"hybridBacktester/internal/ports"
	"hybridBacktester/internal/strategy"
	"hybridBacktester/internal/strategy/analytics"
)

// Runner executes one backtest. *strategy.Strategy satisfies it.
type Runner interface {
	Run(ctx context.Context, candles []domain.Candle, params domain.Params) (*strategy.Result, error)
}

// ParameterRange defines a range for a parameter to optimize
type ParameterRange struct {
	Name  string // Params yaml key, e.g. "take_profit"
	Min   float64
	Max   float64
	Step  float64
	IsInt bool
}

// OptimizationResult holds the results of a parameter optimization
type OptimizationResult struct {
	Parameters   map[string]float64
	Params       domain.Params
	Metrics      *analytics.PerformanceMetrics
	FinalCapital float64
	Score        float64
}

// OptimizerConfig holds configuration for the optimizer
type OptimizerConfig struct {
	ParameterRanges []ParameterRange
	BaseParams      domain.Params // Values for parameters outside the ranges
	Workers         int           // Concurrent runs; <= 0 uses GOMAXPROCS
	ScoreFunction   func(*analytics.PerformanceMetrics) float64
	Logger          ports.Logger
}

// Optimizer sweeps a parameter grid with independent concurrent runs.
type Optimizer struct {
	config OptimizerConfig
}

// NewOptimizer creates a new optimizer instance
func NewOptimizer(config OptimizerConfig) (*Optimizer, error) {
	if config.Logger == nil {
		return nil, fmt.Errorf("logger is required for optimizer")
	}
	for _, r := range config.ParameterRanges {
		if _, ok := setters[r.Name]; !ok {
			return nil, fmt.Errorf("%w: unknown parameter %q", ports.ErrInvalidRequest, r.Name)
		}
		if r.Step <= 0 || r.Max < r.Min {
			return nil, fmt.Errorf("%w: parameter %q needs step > 0 and max >= min", ports.ErrInvalidRequest, r.Name)
		}
	}
	if config.Workers <= 0 {
		config.Workers = runtime.GOMAXPROCS(0)
	}
	if config.ScoreFunction == nil {
		config.ScoreFunction = DefaultScoreFunction
	}
	return &Optimizer{config: config}, nil
}

// Combinations returns the number of grid points, valid or not.
func (o *Optimizer) Combinations() int {
	return len(o.generateParameterCombinations())
}

// Optimize runs every valid grid point over candles and returns the successful runs
// sorted by score, best first. Combinations failing parameter validation are skipped.
func (o *Optimizer) Optimize(ctx context.Context, runner Runner, candles []domain.Candle) ([]OptimizationResult, error) {
	combinations := o.generateParameterCombinations()

	type job struct {
		values map[string]float64
		params domain.Params
	}
	jobs := make([]job, 0, len(combinations))
	for _, values := range combinations {
		params := o.config.BaseParams
		for name, v := range values {
			setters[name](&params, v)
		}
		if err := params.Validate(); err != nil {
			o.config.Logger.Debug(ctx, "Skipping invalid parameter combination", map[string]interface{}{
				"parameters": values,
				"error":      err.Error(),
			})
			continue
		}
		jobs = append(jobs, job{values: values, params: params})
	}

	slots := make([]*OptimizationResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Workers)
	for i, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := runner.Run(gctx, candles, j.params)
			if err != nil {
				return fmt.Errorf("run %v: %w", j.values, err)
			}
			if !res.Success {
				return nil
			}
			slots[i] = &OptimizationResult{
				Parameters:   j.values,
				Params:       j.params,
				Metrics:      res.Statistics,
				FinalCapital: res.FinalCapital,
				Score:        o.config.ScoreFunction(res.Statistics),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]OptimizationResult, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	sortResultsByScore(results)

	o.config.Logger.Info(ctx, "Parameter sweep completed", map[string]interface{}{
		"combinations": len(combinations),
		"valid":        len(jobs),
		"successful":   len(results),
		"workers":      o.config.Workers,
	})
	return results, nil
}

// generateParameterCombinations generates all possible parameter combinations
func (o *Optimizer) generateParameterCombinations() []map[string]float64 {
	var combinations []map[string]float64
	currentCombination := make(map[string]float64)

	var generate func(int)
	generate = func(paramIndex int) {
		if paramIndex == len(o.config.ParameterRanges) {
			combination := make(map[string]float64, len(currentCombination))
			for k, v := range currentCombination {
				combination[k] = v
			}
			combinations = append(combinations, combination)
			return
		}

		param := o.config.ParameterRanges[paramIndex]
		steps := int(math.Floor((param.Max-param.Min)/param.Step + 1e-9))
		for k := 0; k <= steps; k++ {
			value := param.Min + float64(k)*param.Step
			if param.IsInt {
				value = math.Round(value)
			} else {
				value = math.Round(value*1e10) / 1e10
			}
			currentCombination[param.Name] = value
			generate(paramIndex + 1)
		}
	}

	generate(0)
	return combinations
}

// setters maps sweepable parameter names to their Params fields.
var setters = map[string]func(*domain.Params, float64){
	"lookback_period":       func(p *domain.Params, v float64) { p.LookbackPeriod = int(v) },
	"volume_threshold":      func(p *domain.Params, v float64) { p.VolumeThreshold = v },
	"min_price_change":      func(p *domain.Params, v float64) { p.MinPriceChange = v },
	"short_period":          func(p *domain.Params, v float64) { p.ShortPeriod = int(v) },
	"long_period":           func(p *domain.Params, v float64) { p.LongPeriod = int(v) },
	"momentum_period":       func(p *domain.Params, v float64) { p.MomentumPeriod = int(v) },
	"volume_weight":         func(p *domain.Params, v float64) { p.VolumeWeight = v },
	"price_weight":          func(p *domain.Params, v float64) { p.PriceWeight = v },
	"momentum_weight":       func(p *domain.Params, v float64) { p.MomentumWeight = v },
	"min_combined_score":    func(p *domain.Params, v float64) { p.MinCombinedScore = v },
	"signal_window_seconds": func(p *domain.Params, v float64) { p.SignalWindowSeconds = int(v) },
	"take_profit":           func(p *domain.Params, v float64) { p.TakeProfit = v },
	"stop_loss":             func(p *domain.Params, v float64) { p.StopLoss = v },
	"max_position_size":     func(p *domain.Params, v float64) { p.MaxPositionSize = v },
	"risk_per_trade":        func(p *domain.Params, v float64) { p.RiskPerTrade = v },
	"max_trades":            func(p *domain.Params, v float64) { p.MaxTrades = int(v) },
}

// intParameters are the sweepable parameters that only take whole values.
var intParameters = map[string]bool{
	"lookback_period":       true,
	"short_period":          true,
	"long_period":           true,
	"momentum_period":       true,
	"signal_window_seconds": true,
	"max_trades":            true,
}

// ParseParameterRange parses "name=min:max:step", e.g. "take_profit=0.01:0.03:0.005".
// A single value ("stop_loss=0.01") sweeps just that value.
func ParseParameterRange(spec string) (ParameterRange, error) {
	name, values, ok := strings.Cut(spec, "=")
	name = strings.ToLower(strings.TrimSpace(name))
	if !ok || name == "" {
		return ParameterRange{}, fmt.Errorf("%w: range %q must look like name=min:max:step", ports.ErrInvalidRequest, spec)
	}
	if _, known := setters[name]; !known {
		return ParameterRange{}, fmt.Errorf("%w: unknown parameter %q", ports.ErrInvalidRequest, name)
	}

	parts := strings.Split(values, ":")
	if len(parts) != 1 && len(parts) != 3 {
		return ParameterRange{}, fmt.Errorf("%w: range %q must look like name=min:max:step", ports.ErrInvalidRequest, spec)
	}
	nums := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return ParameterRange{}, fmt.Errorf("%w: range %q: %v", ports.ErrInvalidRequest, spec, err)
		}
		nums[i] = v
	}

	r := ParameterRange{Name: name, Min: nums[0], Max: nums[0], Step: 1, IsInt: intParameters[name]}
	if len(nums) == 3 {
		r.Max, r.Step = nums[1], nums[2]
	}
	if r.Step <= 0 || r.Max < r.Min {
		return ParameterRange{}, fmt.Errorf("%w: parameter %q needs step > 0 and max >= min", ports.ErrInvalidRequest, name)
	}
	return r, nil
}

// sortResultsByScore sorts optimization results by score in descending order
func sortResultsByScore(results []OptimizationResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

// DefaultScoreFunction provides a default scoring function for optimization
func DefaultScoreFunction(metrics *analytics.PerformanceMetrics) float64 {
	score := 0.0

	// Weight different metrics
	score += metrics.WinRate * 0.3
	score += metrics.ProfitFactor * 0.2
	score += (1 - metrics.MaxDrawdownPct) * 0.2
	score += metrics.TotalReturn * 0.2
	score += metrics.RiskRewardRatio * 0.1

	return score
}
