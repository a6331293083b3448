package signals

import (
	"context"
	"math"
	"sort"
	"time"

	"hybridBacktester/internal/domain"
	"hybridBacktester/internal/ports"
)

// CombinerConfig holds the fusion weights and window.
type CombinerConfig struct {
	VolumeWeight     float64
	PriceWeight      float64
	MomentumWeight   float64
	MinCombinedScore float64
	Window           time.Duration // Signals within +/- Window of a timestamp are fused
}

// Combiner fuses volume and price signals that fall in a shared time window.
type Combiner struct {
	config CombinerConfig
	logger ports.Logger
}

// NewCombiner creates a new signal combiner.
func NewCombiner(config CombinerConfig, logger ports.Logger) *Combiner {
	return &Combiner{config: config, logger: logger}
}

// Combine emits at most one combined signal per distinct input timestamp, drops those
// scoring under MinCombinedScore and returns the rest ordered by quality, best first.
func (c *Combiner) Combine(ctx context.Context, volume, price []domain.Signal, candles []domain.Candle) []domain.Signal {
	combined := make([]domain.Signal, 0)
	if len(volume) == 0 && len(price) == 0 {
		return combined
	}

	for _, ts := range uniqueTimestamps(volume, price) {
		vs := c.within(volume, ts)
		ps := c.within(price, ts)
		if len(vs) == 0 && len(ps) == 0 {
			continue
		}
		sig := c.fuse(ts, vs, ps, candles)
		if sig.Strength < c.config.MinCombinedScore {
			continue
		}
		sig.Quality = combinedQuality(sig)
		sig.Metadata["combined_quality"] = sig.Quality
		combined = append(combined, sig)
	}

	sort.SliceStable(combined, func(i, j int) bool {
		if combined[i].Quality != combined[j].Quality {
			return combined[i].Quality > combined[j].Quality
		}
		return combined[i].Timestamp.Before(combined[j].Timestamp)
	})

	c.logger.Info(ctx, "Signals combined", map[string]interface{}{
		"volumeSignals":   len(volume),
		"priceSignals":    len(price),
		"combinedSignals": len(combined),
	})
	return combined
}

func uniqueTimestamps(lists ...[]domain.Signal) []time.Time {
	seen := make(map[int64]time.Time)
	for _, list := range lists {
		for _, s := range list {
			seen[s.Timestamp.UnixNano()] = s.Timestamp
		}
	}
	out := make([]time.Time, 0, len(seen))
	for _, ts := range seen {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (c *Combiner) within(signals []domain.Signal, ts time.Time) []domain.Signal {
	var out []domain.Signal
	for _, s := range signals {
		d := s.Timestamp.Sub(ts)
		if d < 0 {
			d = -d
		}
		if d <= c.config.Window {
			out = append(out, s)
		}
	}
	return out
}

func (c *Combiner) fuse(ts time.Time, vs, ps []domain.Signal, candles []domain.Candle) domain.Signal {
	volumeScore := groupScore(vs)
	priceScore := groupScore(ps)

	momentumScore, changePct := 0.0, 0.0
	if candle, ok := nearestCandle(candles, ts); ok {
		changePct = candle.ChangePct()
		momentumScore = math.Min(math.Abs(changePct)*10, 1)
	}

	strength := c.config.VolumeWeight*volumeScore +
		c.config.PriceWeight*priceScore +
		c.config.MomentumWeight*momentumScore

	all := make([]domain.Signal, 0, len(vs)+len(ps))
	all = append(all, vs...)
	all = append(all, ps...)

	confidence := 0.0
	for _, s := range all {
		confidence += s.Confidence
	}
	confidence = confidence/float64(len(all)) + 0.05*float64(len(all))

	meta := domain.Metadata{
		"volume_score":     volumeScore,
		"price_score":      priceScore,
		"momentum_score":   momentumScore,
		"volume_signals":   float64(len(vs)),
		"price_signals":    float64(len(ps)),
		"price_change_pct": changePct,
	}
	for _, s := range vs {
		if r, ok := s.Metadata["volume_ratio"]; ok && r > meta["volume_ratio"] {
			meta["volume_ratio"] = r
		}
	}
	if len(ps) > 0 {
		if mom, ok := strongest(ps).Metadata["momentum"]; ok {
			meta["momentum"] = mom
		}
	}

	return domain.Signal{
		Timestamp:  ts,
		Source:     domain.SourceCombined,
		Direction:  majorityDirection(all),
		Strength:   clamp01(strength),
		Confidence: clamp01(confidence),
		Metadata:   meta,
	}
}

// groupScore is the mean strength plus 0.1 per signal, capped at 1.
func groupScore(signals []domain.Signal) float64 {
	if len(signals) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range signals {
		sum += s.Strength
	}
	return math.Min(sum/float64(len(signals))+0.1*float64(len(signals)), 1)
}

func strongest(signals []domain.Signal) domain.Signal {
	best := signals[0]
	for _, s := range signals[1:] {
		if s.Strength > best.Strength {
			best = s
		}
	}
	return best
}

// majorityDirection votes across constituents; a tie goes to the strongest one.
func majorityDirection(signals []domain.Signal) domain.Direction {
	if len(signals) == 0 {
		return domain.DirectionUnknown
	}
	longs, shorts := 0, 0
	for _, s := range signals {
		switch s.Direction {
		case domain.DirectionLong:
			longs++
		case domain.DirectionShort:
			shorts++
		}
	}
	switch {
	case longs > shorts:
		return domain.DirectionLong
	case shorts > longs:
		return domain.DirectionShort
	default:
		return strongest(signals).Direction
	}
}

// nearestCandle finds the candle closest in time to ts; ties go to the earlier bar.
// candles must be in chronological order.
func nearestCandle(candles []domain.Candle, ts time.Time) (domain.Candle, bool) {
	if len(candles) == 0 {
		return domain.Candle{}, false
	}
	i := sort.Search(len(candles), func(i int) bool { return !candles[i].Timestamp.Before(ts) })
	switch {
	case i == 0:
		return candles[0], true
	case i == len(candles):
		return candles[len(candles)-1], true
	}
	before, after := candles[i-1], candles[i]
	if after.Timestamp.Sub(ts) < ts.Sub(before.Timestamp) {
		return after, true
	}
	return before, true
}

func combinedQuality(s domain.Signal) float64 {
	q := 0.4*s.Strength + 0.3*s.Confidence

	vs, ps := s.Metadata.Get("volume_score"), s.Metadata.Get("price_score")
	switch {
	case vs > 0.5 && ps > 0.5:
		q += 0.2
	case vs > 0.3 && ps > 0.3:
		q += 0.1
	}
	if s.Metadata.Get("momentum_score") > 0.5 {
		q += 0.1
	}
	return math.Min(q, 1)
}

// SignalStats summarises a signal list.
type SignalStats struct {
	Total         int
	BySource      map[domain.SignalSource]int
	ByDirection   map[domain.Direction]int
	AvgStrength   float64
	AvgConfidence float64
	AvgQuality    float64
	MaxStrength   float64
}

// Statistics computes SignalStats for any signal list.
func Statistics(signals []domain.Signal) SignalStats {
	stats := SignalStats{
		Total:       len(signals),
		BySource:    make(map[domain.SignalSource]int),
		ByDirection: make(map[domain.Direction]int),
	}
	if len(signals) == 0 {
		return stats
	}
	for _, s := range signals {
		stats.BySource[s.Source]++
		stats.ByDirection[s.Direction]++
		stats.AvgStrength += s.Strength
		stats.AvgConfidence += s.Confidence
		stats.AvgQuality += s.Quality
		stats.MaxStrength = math.Max(stats.MaxStrength, s.Strength)
	}
	n := float64(len(signals))
	stats.AvgStrength /= n
	stats.AvgConfidence /= n
	stats.AvgQuality /= n
	return stats
}
