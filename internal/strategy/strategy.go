// Package strategy wires the signal detectors, the combiner, the risk manager,
// the simulator and the statistics into a single backtest run.
package strategy

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"hybridBacktester/internal/domain"
	"hybridBacktester/internal/ports"
	"hybridBacktester/internal/risk"
	"hybridBacktester/internal/strategy/analytics"
	"hybridBacktester/internal/strategy/backtesting"
	"hybridBacktester/internal/strategy/signals"
)

// Config holds indicator settings that are not part of a run's parameter bundle.
type Config struct {
	ATRPeriod int // e.g., 14
	RSIPeriod int // e.g., 14
}

// DefaultConfig returns the stock indicator settings.
func DefaultConfig() Config {
	return Config{ATRPeriod: 14, RSIPeriod: 14}
}

// Strategy runs the hybrid volume/price backtest pipeline.
// It is stateless between runs and safe for concurrent use.
type Strategy struct {
	cfg    Config
	logger ports.Logger
}

// SignalCounts records how many signals survived each stage of a run.
type SignalCounts struct {
	Volume   int `json:"volume"`
	Price    int `json:"price"`
	Combined int `json:"combined"`
	Filtered int `json:"filtered"`
	Matched  int `json:"matched"`
}

// Result is the outcome of a single run. A failed run carries Success=false,
// an ErrorMessage, zeroed statistics and FinalCapital equal to the initial capital.
type Result struct {
	Symbol         string
	Interval       string
	Params         domain.Params
	Trades         []*domain.Trade
	Statistics     *analytics.PerformanceMetrics
	Risk           risk.RiskStats
	Signals        SignalCounts
	VolumeStats    signals.VolumeStats
	PriceStats     signals.PriceStats
	SignalStats    signals.SignalStats // over the combined signals
	InitialCapital float64
	FinalCapital   float64
	CandleCount    int
	DataStart      time.Time
	DataEnd        time.Time
	ExecutionTime  time.Duration
	Success        bool
	ErrorMessage   string
}

func (r *Result) fail(msg string) {
	r.Success = false
	r.ErrorMessage = msg
	r.Trades = []*domain.Trade{}
	r.Statistics = analytics.AnalyzePerformance(nil, r.InitialCapital)
	r.Risk = risk.RiskStats{}
	r.VolumeStats = signals.VolumeStats{}
	r.PriceStats = signals.PriceStats{}
	r.SignalStats = signals.SignalStats{}
	r.FinalCapital = r.InitialCapital
}

// New creates a new Strategy instance.
func New(cfg Config, logger ports.Logger) (*Strategy, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy")
	}
	if cfg.ATRPeriod < 0 || cfg.RSIPeriod < 0 {
		return nil, fmt.Errorf("indicator periods must not be negative")
	}
	return &Strategy{cfg: cfg, logger: logger}, nil
}

// Run executes one backtest over candles with params. An invalid parameter bundle
// is the only error returned; every other failure is reported through the Result.
func (s *Strategy) Run(ctx context.Context, candles []domain.Candle, params domain.Params) (result *Result, err error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrInvalidParams, err)
	}

	started := time.Now()
	result = &Result{
		Params:         params,
		Trades:         []*domain.Trade{},
		InitialCapital: params.InitialCapital,
		FinalCapital:   params.InitialCapital,
		CandleCount:    len(candles),
		Success:        true,
	}
	if len(candles) > 0 {
		first, last := candles[0], candles[len(candles)-1]
		result.Symbol = first.Symbol
		result.Interval = first.Interval
		result.DataStart = first.Timestamp
		result.DataEnd = last.Timestamp
	}

	defer func() {
		if r := recover(); r != nil {
			result.fail(fmt.Sprintf("internal error: %v", r))
			s.logger.Error(ctx, fmt.Errorf("%w: %v", ports.ErrUnknown, r), "Backtest run panicked")
		}
		result.ExecutionTime = time.Since(started)
	}()

	// An empty or short series is a failed run, never a successful run without trades.
	if msg := checkInput(candles, params); msg != "" {
		result.fail(msg)
		s.logger.Warn(ctx, "Backtest run rejected input", map[string]interface{}{
			"candles": len(candles),
			"reason":  msg,
		})
		return result, nil
	}

	volumeDetector, priceDetector := s.detectors(params)
	volume, price, err := s.detect(ctx, candles, volumeDetector, priceDetector)
	if err != nil {
		result.fail(err.Error())
		s.logger.Error(ctx, err, "Signal detection failed")
		return result, nil
	}
	result.Signals.Volume = len(volume)
	result.Signals.Price = len(price)

	combiner := signals.NewCombiner(signals.CombinerConfig{
		VolumeWeight:     params.VolumeWeight,
		PriceWeight:      params.PriceWeight,
		MomentumWeight:   params.MomentumWeight,
		MinCombinedScore: params.MinCombinedScore,
		Window:           time.Duration(params.SignalWindowSeconds) * time.Second,
	}, s.logger)
	combined := combiner.Combine(ctx, volume, price, candles)
	result.Signals.Combined = len(combined)
	result.VolumeStats = volumeDetector.Statistics(candles)
	result.PriceStats = priceDetector.Statistics(ctx, candles)
	result.SignalStats = signals.Statistics(combined)

	rm := risk.NewRiskManager(risk.RiskConfig{
		TakeProfitPercent: params.TakeProfit,
		StopLossPercent:   params.StopLoss,
		MaxPositionSize:   params.MaxPositionSize,
		RiskPerTrade:      params.RiskPerTrade,
	}, s.logger)
	filtered := rm.FilterSignals(ctx, combined)
	result.Signals.Filtered = len(filtered)

	sim := backtesting.Simulate(ctx, candles, filtered, rm, backtesting.BacktestConfig{
		InitialCapital: params.InitialCapital,
		MaxTrades:      params.MaxTrades,
		Logger:         s.logger,
	})
	result.Signals.Matched = sim.SignalsMatched
	if sim.Trades != nil {
		result.Trades = sim.Trades
	}
	result.FinalCapital = sim.FinalCapital
	result.Statistics = analytics.AnalyzePerformance(result.Trades, params.InitialCapital)
	result.Risk = rm.RiskMetrics(result.Trades)

	s.logger.Info(ctx, "Backtest run completed", map[string]interface{}{
		"symbol":       result.Symbol,
		"candles":      len(candles),
		"combined":     result.Signals.Combined,
		"filtered":     result.Signals.Filtered,
		"trades":       len(result.Trades),
		"totalPnl":     result.Statistics.TotalPNL,
		"finalCapital": result.FinalCapital,
	})
	return result, nil
}

// checkInput returns a message describing why the series cannot be run, or "".
func checkInput(candles []domain.Candle, params domain.Params) string {
	if len(candles) == 0 {
		return ports.ErrNoCandles.Error()
	}
	if need := params.MinCandles(); len(candles) < need {
		return fmt.Sprintf("%s: got %d candles, need at least %d", ports.ErrInsufficientData, len(candles), need)
	}
	if err := domain.ValidateSeries(candles); err != nil {
		return fmt.Sprintf("%s: %s", ports.ErrInvalidCandle, err)
	}
	return ""
}

func (s *Strategy) detectors(params domain.Params) (*signals.VolumeDetector, *signals.PriceDetector) {
	volumeDetector := signals.NewVolumeDetector(signals.VolumeConfig{
		LookbackPeriod: params.LookbackPeriod,
		Threshold:      params.VolumeThreshold,
	}, s.logger)
	priceDetector := signals.NewPriceDetector(signals.PriceConfig{
		MinPriceChange: params.MinPriceChange,
		ShortPeriod:    params.ShortPeriod,
		LongPeriod:     params.LongPeriod,
		MomentumPeriod: params.MomentumPeriod,
		ATRPeriod:      s.cfg.ATRPeriod,
		RSIPeriod:      s.cfg.RSIPeriod,
	}, s.logger)
	return volumeDetector, priceDetector
}

// detect runs the volume and price detectors concurrently over the same series.
func (s *Strategy) detect(ctx context.Context, candles []domain.Candle, volumeDetector, priceDetector ports.SignalDetector) ([]domain.Signal, []domain.Signal, error) {
	var volume, price []domain.Signal
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		volume, err = safeDetect(gctx, volumeDetector, candles)
		return err
	})
	g.Go(func() error {
		var err error
		price, err = safeDetect(gctx, priceDetector, candles)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return volume, price, nil
}

// safeDetect converts a detector panic into an error.
func safeDetect(ctx context.Context, d ports.SignalDetector, candles []domain.Candle) (out []domain.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s detector failed: %w: %v", d.Name(), ports.ErrUnknown, r)
		}
	}()
	return d.Detect(ctx, candles), nil
}
