package signals

import (
	"context"
	"math"

	"hybridBacktester/internal/domain"
	"hybridBacktester/internal/ports"
	"hybridBacktester/internal/strategy/indicators"
)

const (
	volumeTrendWindow    = 5
	maxConsecutiveSpikes = 5
)

// VolumeConfig holds configuration for the volume spike detector.
type VolumeConfig struct {
	LookbackPeriod int     // Bars in the rolling baseline, current bar included
	Threshold      float64 // Base multiplier of the adaptive threshold
}

// VolumeDetector flags bars whose volume exceeds an adaptive multiple of the rolling mean.
type VolumeDetector struct {
	config VolumeConfig
	logger ports.Logger
}

// NewVolumeDetector creates a new volume spike detector.
func NewVolumeDetector(config VolumeConfig, logger ports.Logger) *VolumeDetector {
	return &VolumeDetector{config: config, logger: logger}
}

// Name returns the detector name.
func (d *VolumeDetector) Name() string {
	return "volume"
}

// RequiredDataPoints returns lookback+1.
func (d *VolumeDetector) RequiredDataPoints() int {
	return d.config.LookbackPeriod + 1
}

type volumeMetrics struct {
	sma       []float64
	std       []float64
	ratio     []float64
	change    []float64
	trend     []float64
	threshold []float64
	spike     []bool
}

func (d *VolumeDetector) computeMetrics(candles []domain.Candle) volumeMetrics {
	volumes := indicators.Volumes(candles)
	n := len(volumes)
	m := volumeMetrics{
		sma:       indicators.RollingMean(volumes, d.config.LookbackPeriod),
		std:       indicators.RollingStd(volumes, d.config.LookbackPeriod),
		change:    indicators.PctChange(volumes),
		ratio:     make([]float64, n),
		trend:     make([]float64, n),
		threshold: make([]float64, n),
		spike:     make([]bool, n),
	}

	for i := 0; i < n; i++ {
		m.ratio[i] = math.NaN()
		m.threshold[i] = math.NaN()
		if i >= volumeTrendWindow-1 {
			if volumes[i] > volumes[i-volumeTrendWindow+1] {
				m.trend[i] = 1
			} else {
				m.trend[i] = -1
			}
		}
		if !indicators.Valid(m.sma[i]) || m.sma[i] == 0 {
			continue
		}
		m.ratio[i] = volumes[i] / m.sma[i]
		if indicators.Valid(m.std[i]) {
			// the bar needed to call a spike rises with the relative dispersion of volume
			m.threshold[i] = d.config.Threshold * (1 + m.std[i]/m.sma[i])
			m.spike[i] = m.ratio[i] > m.threshold[i]
		}
	}
	return m
}

// Detect scans the series and returns one signal per confirmed spike.
func (d *VolumeDetector) Detect(ctx context.Context, candles []domain.Candle) []domain.Signal {
	signals := make([]domain.Signal, 0)
	if d.config.LookbackPeriod < 2 || len(candles) < d.RequiredDataPoints() {
		d.logger.Debug(ctx, "Not enough candles for volume analysis", map[string]interface{}{
			"candles":  len(candles),
			"required": d.RequiredDataPoints(),
		})
		return signals
	}

	m := d.computeMetrics(candles)
	for i := d.config.LookbackPeriod; i < len(candles); i++ {
		if !m.spike[i] {
			continue
		}
		strength, confirmed, consecutive := d.scoreSpike(m, i)
		if !confirmed {
			continue
		}

		meta := domain.Metadata{}
		meta["volume"] = candles[i].Volume
		setValid(meta, "volume_sma", m.sma[i])
		setValid(meta, "volume_volatility", m.std[i])
		setValid(meta, "adaptive_threshold", m.threshold[i])
		setValid(meta, "volume_ratio", m.ratio[i])
		setValid(meta, "volume_change_pct", m.change[i])
		meta["volume_trend"] = m.trend[i]
		meta["consecutive_spikes"] = float64(consecutive)

		signals = append(signals, domain.Signal{
			Timestamp:  candles[i].Timestamp,
			Source:     domain.SourceVolume,
			Direction:  bodyDirection(candles[i]),
			Strength:   strength,
			Confidence: strength,
			Metadata:   meta,
		})
	}

	d.logger.Info(ctx, "Volume analysis finished", map[string]interface{}{
		"candles": len(candles),
		"signals": len(signals),
	})
	return signals
}

func (d *VolumeDetector) scoreSpike(m volumeMetrics, i int) (float64, bool, int) {
	confirmed := true
	strength := 0.5

	switch ratio := m.ratio[i]; {
	case ratio > 2.0:
		strength += 0.3
	case ratio > 1.5:
		strength += 0.2
	case ratio > 1.2:
		strength += 0.1
	}

	if m.trend[i] > 0 {
		strength += 0.1
	}

	// NaN compares false here; +Inf from a zero predecessor lands in the top band
	switch change := math.Abs(m.change[i]); {
	case change > 0.5:
		strength += 0.2
	case change > 0.2:
		strength += 0.1
	}

	consecutive := 0
	for j := i; j > i-maxConsecutiveSpikes && j >= 0; j-- {
		if !m.spike[j] {
			break
		}
		consecutive++
	}
	if consecutive > 1 {
		strength += 0.1 * float64(consecutive)
	}

	if m.std[i] < m.sma[i]*0.1 {
		strength -= 0.2
		confirmed = false
	}

	return clamp01(strength), confirmed && strength > 0.3, consecutive
}

// VolumeStats summarises the volume profile of a series.
type VolumeStats struct {
	AvgVolume        float64
	MaxVolume        float64
	MinVolume        float64
	VolumeVolatility float64
	Spikes           int
	AvgVolumeRatio   float64
	MaxVolumeRatio   float64
}

// Statistics computes VolumeStats for the series.
func (d *VolumeDetector) Statistics(candles []domain.Candle) VolumeStats {
	if len(candles) == 0 {
		return VolumeStats{}
	}
	volumes := indicators.Volumes(candles)
	m := d.computeMetrics(candles)

	stats := VolumeStats{
		AvgVolume:        indicators.Mean(volumes),
		MaxVolume:        volumes[0],
		MinVolume:        volumes[0],
		VolumeVolatility: indicators.StdDev(volumes),
		AvgVolumeRatio:   indicators.Mean(m.ratio),
	}
	for i, v := range volumes {
		stats.MaxVolume = math.Max(stats.MaxVolume, v)
		stats.MinVolume = math.Min(stats.MinVolume, v)
		if m.spike[i] {
			stats.Spikes++
		}
		if indicators.Valid(m.ratio[i]) {
			stats.MaxVolumeRatio = math.Max(stats.MaxVolumeRatio, m.ratio[i])
		}
	}
	return stats
}
