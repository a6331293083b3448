package backtesting

import (
	"context"
	"time"

	"hybridBacktester/internal/domain"
	"hybridBacktester/internal/ports"
	"hybridBacktester/internal/risk"
)

// TradeManager is the part of the risk manager the simulator drives.
type TradeManager interface {
	CreateTrade(ctx context.Context, s domain.Signal, c domain.Candle, capital float64) *domain.Trade
	CheckExitConditions(ctx context.Context, t *domain.Trade, c domain.Candle) (risk.ExitDecision, bool)
	CloseTrade(ctx context.Context, t *domain.Trade, exitTime time.Time, d risk.ExitDecision) float64
}

// BacktestConfig holds configuration for backtesting
type BacktestConfig struct {
	InitialCapital float64
	MaxTrades      int // Cap on closed trades; 0 means no cap
	Logger         ports.Logger
}

// SimulationResult holds the outcome of one pass over a candle series.
type SimulationResult struct {
	Trades         []*domain.Trade // Closed trades in entry order
	InitialCapital float64
	FinalCapital   float64
	PeakCapital    float64
	SignalsMatched int // Signals whose timestamp matched a candle
	SignalsSkipped int // Matched signals that did not open a trade
}

// TotalPNL sums the realized PnL of all trades.
func (r *SimulationResult) TotalPNL() float64 {
	var sum float64
	for _, t := range r.Trades {
		sum += t.PNL
	}
	return sum
}

// indexSignals maps candle timestamps to the best signal at that instant.
// When several signals share a timestamp the highest quality one wins.
func indexSignals(signals []domain.Signal) map[int64]domain.Signal {
	idx := make(map[int64]domain.Signal, len(signals))
	for _, s := range signals {
		key := s.Timestamp.UnixNano()
		if prev, ok := idx[key]; ok && prev.Quality >= s.Quality {
			continue
		}
		idx[key] = s
	}
	return idx
}

// Simulate replays candles in order, holding at most one open trade. On every bar
// an open trade is checked for exit before a new entry is considered. Capital is
// reserved when a trade opens and released with its PnL when it closes. A trade
// still open after the last bar is closed at that bar's close.
func Simulate(ctx context.Context, candles []domain.Candle, signals []domain.Signal, rm TradeManager, cfg BacktestConfig) *SimulationResult {
	result := &SimulationResult{
		InitialCapital: cfg.InitialCapital,
		FinalCapital:   cfg.InitialCapital,
		PeakCapital:    cfg.InitialCapital,
	}
	if len(candles) == 0 {
		return result
	}

	bySignal := indexSignals(signals)
	available := cfg.InitialCapital
	var open *domain.Trade

	closeOpen := func(c domain.Candle, d risk.ExitDecision) {
		pnl := rm.CloseTrade(ctx, open, c.Timestamp, d)
		available += open.Size + pnl
		if available > result.PeakCapital {
			result.PeakCapital = available
		}
		result.Trades = append(result.Trades, open)
		open = nil
	}

	for _, c := range candles {
		if open != nil {
			if d, ok := rm.CheckExitConditions(ctx, open, c); ok {
				closeOpen(c, d)
			}
		}

		s, ok := bySignal[c.Timestamp.UnixNano()]
		if !ok {
			continue
		}
		result.SignalsMatched++

		if open != nil || (cfg.MaxTrades > 0 && len(result.Trades) >= cfg.MaxTrades) {
			result.SignalsSkipped++
			continue
		}
		trade := rm.CreateTrade(ctx, s, c, available)
		if trade == nil {
			result.SignalsSkipped++
			continue
		}
		available -= trade.Size
		open = trade
	}

	if open != nil {
		last := candles[len(candles)-1]
		closeOpen(last, risk.ExitDecision{Price: last.Close, Reason: domain.ExitReasonEndOfData})
	}

	result.FinalCapital = available
	if cfg.Logger != nil {
		cfg.Logger.Info(ctx, "Simulation completed", map[string]interface{}{
			"candles":        len(candles),
			"signalsMatched": result.SignalsMatched,
			"signalsSkipped": result.SignalsSkipped,
			"trades":         len(result.Trades),
			"finalCapital":   result.FinalCapital,
		})
	}
	return result
}
