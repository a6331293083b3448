package risk

import (
	"context"
	"math"
	"time"

	"hybridBacktester/internal/domain"
	"hybridBacktester/internal/ports"
)

// Filter thresholds applied to every candidate signal.
const (
	MinQuality    = 0.3
	MinStrength   = 0.3
	MinConfidence = 0.2
)

// RiskConfig holds configuration for risk management
type RiskConfig struct {
	TakeProfitPercent float64 // e.g. 0.02 for +2%
	StopLossPercent   float64 // e.g. 0.01 for -1%
	MaxPositionSize   float64 // Fraction of available capital per trade
	RiskPerTrade      float64 // Fraction of capital at risk per trade (reported only)
}

// RiskManager scores signals, sizes positions and decides exits.
// It holds no mutable state, so one instance can serve concurrent runs.
type RiskManager struct {
	config RiskConfig
	logger ports.Logger
}

// ExitDecision describes how an open trade should be closed.
type ExitDecision struct {
	Price  float64
	Reason domain.ExitReason
}

// NewRiskManager creates a new risk manager instance
func NewRiskManager(config RiskConfig, logger ports.Logger) *RiskManager {
	return &RiskManager{config: config, logger: logger}
}

// Config returns the risk configuration.
func (r *RiskManager) Config() RiskConfig {
	return r.config
}

// SignalQuality scores a signal from its strength, confidence and confirmations.
func (r *RiskManager) SignalQuality(s domain.Signal) float64 {
	q := 0.4*s.Strength + 0.3*s.Confidence

	switch ratio := s.Metadata.Get("volume_ratio"); {
	case ratio > 2.0:
		q += 0.2
	case ratio > 1.5:
		q += 0.1
	}
	if math.Abs(s.Metadata.Get("momentum")) > 0.01 {
		q += 0.1
	}
	return math.Min(q, 1)
}

// FilterSignals attaches risk parameters and a quality score to each signal and
// keeps those passing the quality, strength and confidence floors. Order is preserved.
func (r *RiskManager) FilterSignals(ctx context.Context, signals []domain.Signal) []domain.Signal {
	out := make([]domain.Signal, 0, len(signals))
	for _, s := range signals {
		s.Metadata = s.Metadata.Clone()
		s.Metadata["take_profit_pct"] = r.config.TakeProfitPercent
		s.Metadata["stop_loss_pct"] = r.config.StopLossPercent
		s.Metadata["max_position_size"] = r.config.MaxPositionSize
		s.Metadata["risk_per_trade"] = r.config.RiskPerTrade
		s.Quality = r.SignalQuality(s)
		s.Metadata["quality_score"] = s.Quality

		if s.Quality < MinQuality || s.Strength < MinStrength || s.Confidence < MinConfidence {
			r.logger.Debug(ctx, "Signal rejected by risk filter", map[string]interface{}{
				"timestamp":  s.Timestamp,
				"quality":    s.Quality,
				"strength":   s.Strength,
				"confidence": s.Confidence,
			})
			continue
		}
		out = append(out, s)
	}

	r.logger.Info(ctx, "Signals filtered", map[string]interface{}{
		"candidates": len(signals),
		"accepted":   len(out),
	})
	return out
}

// volatilityAdjustment shrinks positions on wide-range bars.
func volatilityAdjustment(c domain.Candle) float64 {
	if c.Close <= 0 {
		return 1
	}
	switch rng := c.Range() / c.Close; {
	case rng > 0.05:
		return 0.5
	case rng > 0.03:
		return 0.7
	case rng > 0.02:
		return 0.8
	default:
		return 1
	}
}

// GetPositionSize sizes a trade: capital x max fraction x quality x volatility
// adjustment, clamped to [1%, max fraction] of capital. The max fraction wins when
// it is below 1%.
func (r *RiskManager) GetPositionSize(ctx context.Context, s domain.Signal, c domain.Candle, capital float64) float64 {
	quality := s.Quality
	if quality <= 0 {
		quality = r.SignalQuality(s)
	}
	size := capital * r.config.MaxPositionSize * quality * volatilityAdjustment(c)

	hi := capital * r.config.MaxPositionSize
	lo := math.Min(capital*domain.MinPositionSize, hi)
	return math.Max(lo, math.Min(size, hi))
}

// GetStopLoss calculates the stop loss price for a position
func (r *RiskManager) GetStopLoss(ctx context.Context, entryPrice float64, isLong bool) float64 {
	if isLong {
		return entryPrice * (1 - r.config.StopLossPercent)
	}
	return entryPrice * (1 + r.config.StopLossPercent)
}

// GetTakeProfit calculates the take profit price for a position
func (r *RiskManager) GetTakeProfit(ctx context.Context, entryPrice float64, isLong bool) float64 {
	if isLong {
		return entryPrice * (1 + r.config.TakeProfitPercent)
	}
	return entryPrice * (1 - r.config.TakeProfitPercent)
}

// CreateTrade opens a trade at the candle close. It returns nil when the signal has
// no direction or the computed size is not positive.
func (r *RiskManager) CreateTrade(ctx context.Context, s domain.Signal, c domain.Candle, capital float64) *domain.Trade {
	if s.Direction != domain.DirectionLong && s.Direction != domain.DirectionShort {
		return nil
	}
	size := r.GetPositionSize(ctx, s, c, capital)
	if size <= 0 || math.IsNaN(size) {
		return nil
	}

	isLong := s.Direction.IsLong()
	entry := c.Close
	trade := &domain.Trade{
		ID:         domain.NewTradeID(c.Timestamp),
		Symbol:     c.Symbol,
		Direction:  s.Direction,
		EntryTime:  c.Timestamp,
		EntryPrice: entry,
		Size:       size,
		StopLoss:   r.GetStopLoss(ctx, entry, isLong),
		TakeProfit: r.GetTakeProfit(ctx, entry, isLong),
		Quality:    s.Quality,
		Status:     domain.StatusOpen,
	}
	r.logger.Debug(ctx, "Trade created", map[string]interface{}{
		"tradeID":    trade.ID,
		"direction":  trade.Direction,
		"entryPrice": trade.EntryPrice,
		"size":       trade.Size,
		"stopLoss":   trade.StopLoss,
		"takeProfit": trade.TakeProfit,
	})
	return trade
}

// CheckExitConditions evaluates the candle close against the trade levels.
// Take profit is checked before stop loss; the exit fills at the level price.
func (r *RiskManager) CheckExitConditions(ctx context.Context, t *domain.Trade, c domain.Candle) (ExitDecision, bool) {
	if t == nil || !t.IsOpen() {
		return ExitDecision{}, false
	}
	if t.Direction.IsLong() {
		if c.Close >= t.TakeProfit {
			return ExitDecision{Price: t.TakeProfit, Reason: domain.ExitReasonTakeProfit}, true
		}
		if c.Close <= t.StopLoss {
			return ExitDecision{Price: t.StopLoss, Reason: domain.ExitReasonStopLoss}, true
		}
		return ExitDecision{}, false
	}

	if c.Close <= t.TakeProfit {
		return ExitDecision{Price: t.TakeProfit, Reason: domain.ExitReasonTakeProfit}, true
	}
	if c.Close >= t.StopLoss {
		return ExitDecision{Price: t.StopLoss, Reason: domain.ExitReasonStopLoss}, true
	}
	return ExitDecision{}, false
}

// CalculatePNL returns size x (exit-entry)/entry for longs and the mirror for shorts.
func (r *RiskManager) CalculatePNL(t *domain.Trade, exitPrice float64) float64 {
	if t.EntryPrice == 0 {
		return 0
	}
	if t.Direction.IsLong() {
		return t.Size * (exitPrice - t.EntryPrice) / t.EntryPrice
	}
	return t.Size * (t.EntryPrice - exitPrice) / t.EntryPrice
}

// CloseTrade records the exit on the trade and returns the realized PnL.
func (r *RiskManager) CloseTrade(ctx context.Context, t *domain.Trade, exitTime time.Time, d ExitDecision) float64 {
	t.ExitTime = exitTime
	t.ExitPrice = d.Price
	t.ExitReason = d.Reason
	t.PNL = r.CalculatePNL(t, d.Price)
	t.Duration = exitTime.Sub(t.EntryTime)
	t.Status = domain.StatusClosed

	r.logger.Debug(ctx, "Trade closed", map[string]interface{}{
		"tradeID":   t.ID,
		"exitPrice": t.ExitPrice,
		"reason":    t.ExitReason,
		"pnl":       t.PNL,
	})
	return t.PNL
}

// RiskStats summarises the exposure taken by a list of trades.
type RiskStats struct {
	TotalExposure   float64
	AvgPositionSize float64
	MaxPositionSize float64
	AvgRiskAmount   float64 // Size x stop loss fraction
	MaxRiskAmount   float64
	AvgQuality      float64
	TakeProfitExits int
	StopLossExits   int
	EndOfDataExits  int
}

// RiskMetrics computes RiskStats over closed or open trades.
func (r *RiskManager) RiskMetrics(trades []*domain.Trade) RiskStats {
	var stats RiskStats
	if len(trades) == 0 {
		return stats
	}
	for _, t := range trades {
		risk := t.Size * r.config.StopLossPercent
		stats.TotalExposure += t.Size
		stats.MaxPositionSize = math.Max(stats.MaxPositionSize, t.Size)
		stats.AvgRiskAmount += risk
		stats.MaxRiskAmount = math.Max(stats.MaxRiskAmount, risk)
		stats.AvgQuality += t.Quality

		switch t.ExitReason {
		case domain.ExitReasonTakeProfit:
			stats.TakeProfitExits++
		case domain.ExitReasonStopLoss:
			stats.StopLossExits++
		case domain.ExitReasonEndOfData:
			stats.EndOfDataExits++
		}
	}
	n := float64(len(trades))
	stats.AvgPositionSize = stats.TotalExposure / n
	stats.AvgRiskAmount /= n
	stats.AvgQuality /= n
	return stats
}
