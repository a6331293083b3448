package signals

import (
	"context"
	"math"

	"hybridBacktester/internal/domain"
	"hybridBacktester/internal/ports"
	"hybridBacktester/internal/strategy/indicators"
)

// PriceConfig holds configuration for the price movement detector.
type PriceConfig struct {
	MinPriceChange float64 // Minimum |open->close| change fraction, inclusive
	ShortPeriod    int
	LongPeriod     int
	MomentumPeriod int
	ATRPeriod      int
	RSIPeriod      int
}

// PriceDetector flags directional bars confirmed by trend, momentum and range context.
type PriceDetector struct {
	config PriceConfig
	logger ports.Logger

	smaShort, smaLong *indicators.MovingAverage
	emaShort, emaLong *indicators.MovingAverage
	atr               *indicators.ATR
	rsi               *indicators.RSI
}

// NewPriceDetector creates a new price movement detector. Zero ATR/RSI periods default to 14.
func NewPriceDetector(config PriceConfig, logger ports.Logger) *PriceDetector {
	if config.ATRPeriod <= 0 {
		config.ATRPeriod = 14
	}
	if config.RSIPeriod <= 0 {
		config.RSIPeriod = 14
	}
	ma := func(period int, typ indicators.MovingAverageType) *indicators.MovingAverage {
		return indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: period},
			Type:            typ,
		})
	}
	return &PriceDetector{
		config:   config,
		logger:   logger,
		smaShort: ma(config.ShortPeriod, indicators.SimpleMovingAverage),
		smaLong:  ma(config.LongPeriod, indicators.SimpleMovingAverage),
		emaShort: ma(config.ShortPeriod, indicators.ExponentialMovingAverage),
		emaLong:  ma(config.LongPeriod, indicators.ExponentialMovingAverage),
		atr:      indicators.NewATR(indicators.ATRConfig{IndicatorConfig: indicators.IndicatorConfig{Period: config.ATRPeriod}}),
		rsi: indicators.NewRSI(indicators.RSIConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: config.RSIPeriod},
			Overbought:      70,
			Oversold:        30,
		}),
	}
}

// Name returns the detector name.
func (d *PriceDetector) Name() string {
	return "price"
}

// RequiredDataPoints returns long+1.
func (d *PriceDetector) RequiredDataPoints() int {
	return d.config.LongPeriod + 1
}

type priceMetrics struct {
	change       []float64
	smaShort     []float64
	smaLong      []float64
	emaShort     []float64
	emaLong      []float64
	trendShort   []float64
	trendLong    []float64
	momentum     []float64
	volatility   []float64
	atr          []float64
	rsi          []float64
	resistance   []float64
	support      []float64
	position     []float64
	breakoutUp   []bool
	breakoutDown []bool
	doji         []bool
	hammer       []bool
	shootingStar []bool
}

func (d *PriceDetector) computeMetrics(candles []domain.Candle) priceMetrics {
	closes := indicators.Closes(candles)
	n := len(candles)
	long := d.config.LongPeriod

	// MA errors are impossible here: the types are fixed at construction
	smaShort, _ := d.smaShort.Series(closes)
	smaLong, _ := d.smaLong.Series(closes)
	emaShort, _ := d.emaShort.Series(closes)
	emaLong, _ := d.emaLong.Series(closes)

	m := priceMetrics{
		change:       make([]float64, n),
		smaShort:     smaShort,
		smaLong:      smaLong,
		emaShort:     emaShort,
		emaLong:      emaLong,
		trendShort:   make([]float64, n),
		trendLong:    make([]float64, n),
		momentum:     make([]float64, n),
		volatility:   indicators.RollingStd(indicators.PctChange(closes), long),
		atr:          d.atr.Series(candles),
		rsi:          d.rsi.Series(closes),
		resistance:   indicators.RollingMax(indicators.Highs(candles), long),
		support:      indicators.RollingMin(indicators.Lows(candles), long),
		position:     make([]float64, n),
		breakoutUp:   make([]bool, n),
		breakoutDown: make([]bool, n),
		doji:         make([]bool, n),
		hammer:       make([]bool, n),
		shootingStar: make([]bool, n),
	}

	lagged := indicators.Shift(closes, d.config.MomentumPeriod)
	for i, c := range candles {
		m.change[i] = c.ChangePct()
		m.trendShort[i] = c.Close - smaShort[i]
		m.trendLong[i] = c.Close - smaLong[i]
		m.momentum[i] = math.NaN()
		if indicators.Valid(lagged[i]) && lagged[i] != 0 {
			m.momentum[i] = c.Close/lagged[i] - 1
		}

		m.position[i] = math.NaN()
		if span := m.resistance[i] - m.support[i]; indicators.Valid(span) && span > 0 {
			m.position[i] = (c.Close - m.support[i]) / span
		}
		if i > 0 {
			m.breakoutUp[i] = c.Close > m.resistance[i-1]
			m.breakoutDown[i] = c.Close < m.support[i-1]
		}

		body := math.Abs(c.Close - c.Open)
		lowerShadow := math.Min(c.Open, c.Close) - c.Low
		upperShadow := c.High - math.Max(c.Open, c.Close)
		rng := c.Range()
		m.doji[i] = body < rng*0.1
		m.hammer[i] = body < rng*0.3 && lowerShadow > body*2 && upperShadow < body*0.5
		m.shootingStar[i] = body < rng*0.3 && upperShadow > body*2 && lowerShadow < body*0.5
	}
	return m
}

// Detect scans the series and returns one signal per qualifying bar.
func (d *PriceDetector) Detect(ctx context.Context, candles []domain.Candle) []domain.Signal {
	signals := make([]domain.Signal, 0)
	if d.config.ShortPeriod < 1 || d.config.LongPeriod < 2 || len(candles) < d.RequiredDataPoints() {
		d.logger.Debug(ctx, "Not enough candles for price analysis", map[string]interface{}{
			"candles":  len(candles),
			"required": d.RequiredDataPoints(),
		})
		return signals
	}

	m := d.computeMetrics(candles)
	for i := d.config.LongPeriod; i < len(candles); i++ {
		if math.Abs(m.change[i]) < d.config.MinPriceChange {
			continue
		}
		direction, strength, confidence, ok := d.scoreMovement(m, i)
		if !ok {
			continue
		}

		c := candles[i]
		meta := domain.Metadata{
			"close":            c.Close,
			"price_change_pct": m.change[i],
			"doji":             boolValue(m.doji[i]),
			"hammer":           boolValue(m.hammer[i]),
			"shooting_star":    boolValue(m.shootingStar[i]),
		}
		setValid(meta, "momentum", m.momentum[i])
		setValid(meta, "trend_short", m.trendShort[i])
		setValid(meta, "trend_long", m.trendLong[i])
		setValid(meta, "sma_short", m.smaShort[i])
		setValid(meta, "sma_long", m.smaLong[i])
		setValid(meta, "ema_short", m.emaShort[i])
		setValid(meta, "ema_long", m.emaLong[i])
		setValid(meta, "volatility", m.volatility[i])
		setValid(meta, "atr", m.atr[i])
		if rsi := m.rsi[i]; indicators.Valid(rsi) {
			meta["rsi"] = rsi
			meta["rsi_overbought"] = boolValue(d.rsi.IsOverbought(rsi))
			meta["rsi_oversold"] = boolValue(d.rsi.IsOversold(rsi))
		}
		setValid(meta, "price_position", m.position[i])
		setValid(meta, "resistance", m.resistance[i])
		setValid(meta, "support", m.support[i])

		signals = append(signals, domain.Signal{
			Timestamp:  c.Timestamp,
			Source:     domain.SourcePrice,
			Direction:  direction,
			Strength:   strength,
			Confidence: confidence,
			Metadata:   meta,
		})
	}

	d.logger.Info(ctx, "Price analysis finished", map[string]interface{}{
		"candles": len(candles),
		"signals": len(signals),
	})
	return signals
}

// scoreMovement accumulates strength and confidence separately; confidence only
// counts trend and breakout confirmations.
func (d *PriceDetector) scoreMovement(m priceMetrics, i int) (domain.Direction, float64, float64, bool) {
	direction := domain.DirectionShort
	if m.change[i] > 0 {
		direction = domain.DirectionLong
	}
	long := direction.IsLong()

	strength, confidence := 0.0, 0.0

	switch change := math.Abs(m.change[i]); {
	case change > 0.02:
		strength += 0.4
	case change > 0.01:
		strength += 0.3
	case change > 0.005:
		strength += 0.2
	}

	if (long && m.trendShort[i] > 0) || (!long && m.trendShort[i] < 0) {
		strength += 0.2
		confidence += 0.2
	}
	if (long && m.trendLong[i] > 0) || (!long && m.trendLong[i] < 0) {
		strength += 0.1
		confidence += 0.1
	}
	if (long && m.momentum[i] > 0) || (!long && m.momentum[i] < 0) {
		strength += 0.1
	}
	if (long && m.breakoutUp[i]) || (!long && m.breakoutDown[i]) {
		strength += 0.2
		confidence += 0.2
	}
	if (long && m.position[i] > 0.8) || (!long && m.position[i] < 0.2) {
		strength += 0.1
	}

	// Returns barely moving over the long window: the bar is noise, not a trend.
	if m.volatility[i] < 0.01 {
		strength -= 0.2
	}

	return direction, clamp01(strength), clamp01(confidence), strength > 0.3
}

// PriceStats summarises the price profile of a series.
type PriceStats struct {
	AvgPrice          float64
	MaxPrice          float64
	MinPrice          float64
	PriceVolatility   float64
	AvgPriceChangePct float64
	MaxPriceChangePct float64
	MinPriceChangePct float64
	AvgMomentum       float64
	TrendDirection    int // +1 above the short SMA at the last bar, -1 otherwise
	LastRSI           float64
	// Indicators holds the last-bar value of every indicator with enough history,
	// keyed sma_short, sma_long, ema_short, ema_long, atr and rsi.
	Indicators map[string]float64
}

// Statistics computes PriceStats for the series.
func (d *PriceDetector) Statistics(ctx context.Context, candles []domain.Candle) PriceStats {
	if len(candles) == 0 {
		return PriceStats{}
	}
	closes := indicators.Closes(candles)
	m := d.computeMetrics(candles)

	stats := PriceStats{
		AvgPrice:          indicators.Mean(closes),
		MaxPrice:          closes[0],
		MinPrice:          closes[0],
		PriceVolatility:   indicators.StdDev(indicators.PctChange(closes)),
		AvgPriceChangePct: indicators.Mean(m.change),
		MaxPriceChangePct: m.change[0],
		MinPriceChangePct: m.change[0],
		AvgMomentum:       indicators.Mean(m.momentum),
		TrendDirection:    -1,
	}
	for i, c := range closes {
		stats.MaxPrice = math.Max(stats.MaxPrice, c)
		stats.MinPrice = math.Min(stats.MinPrice, c)
		stats.MaxPriceChangePct = math.Max(stats.MaxPriceChangePct, m.change[i])
		stats.MinPriceChangePct = math.Min(stats.MinPriceChangePct, m.change[i])
	}
	if m.trendShort[len(candles)-1] > 0 {
		stats.TrendDirection = 1
	}
	stats.Indicators = d.snapshot(ctx, candles)
	stats.LastRSI = stats.Indicators["rsi"]
	return stats
}

// snapshot evaluates each indicator at the last candle, skipping those still warming up.
func (d *PriceDetector) snapshot(ctx context.Context, candles []domain.Candle) map[string]float64 {
	out := make(map[string]float64)
	for _, e := range []struct {
		key string
		ind indicators.Indicator
	}{
		{"sma_short", d.smaShort},
		{"sma_long", d.smaLong},
		{"ema_short", d.emaShort},
		{"ema_long", d.emaLong},
		{"atr", d.atr},
		{"rsi", d.rsi},
	} {
		if len(candles) < e.ind.RequiredDataPoints() {
			continue
		}
		v, err := e.ind.Calculate(ctx, candles)
		if err != nil || !indicators.Valid(v) {
			d.logger.Debug(ctx, "Indicator unavailable", map[string]interface{}{
				"indicator": e.ind.Name(),
				"key":       e.key,
			})
			continue
		}
		out[e.key] = v
	}
	return out
}
