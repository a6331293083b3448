package cli

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"hybridBacktester/internal/domain"
	"hybridBacktester/internal/ports"
	"hybridBacktester/internal/strategy"
	"hybridBacktester/internal/strategy/analytics"
	"hybridBacktester/internal/strategy/optimization"
)

func printResult(out io.Writer, r *strategy.Result) {
	fmt.Fprintf(out, "Backtest %s %s: %d candles", r.Symbol, r.Interval, r.CandleCount)
	if !r.DataStart.IsZero() {
		fmt.Fprintf(out, " from %s to %s", r.DataStart.Format(time.RFC3339), r.DataEnd.Format(time.RFC3339))
	}
	fmt.Fprintln(out)

	if !r.Success {
		fmt.Fprintf(out, "Run failed: %s\n", r.ErrorMessage)
		return
	}

	fmt.Fprintf(out, "Signals: volume=%d price=%d combined=%d filtered=%d traded=%d\n",
		r.Signals.Volume, r.Signals.Price, r.Signals.Combined, r.Signals.Filtered, r.Signals.Matched)
	fmt.Fprintf(out, "Capital: %.2f -> %.2f (executed in %s)\n", r.InitialCapital, r.FinalCapital, r.ExecutionTime.Round(time.Microsecond))
	printSeriesSummary(out, r)
	fmt.Fprintln(out)

	printStatistics(out, r.Statistics)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nExits\tTake profit\tStop loss\tEnd of data\t")
	fmt.Fprintf(w, "\t%d\t%d\t%d\t\n", r.Risk.TakeProfitExits, r.Risk.StopLossExits, r.Risk.EndOfDataExits)
	w.Flush()
}

func printSeriesSummary(out io.Writer, r *strategy.Result) {
	v, p, sig := r.VolumeStats, r.PriceStats, r.SignalStats
	fmt.Fprintf(out, "Volume: avg=%.2f max=%.2f spikes=%d max_ratio=%.2f\n",
		v.AvgVolume, v.MaxVolume, v.Spikes, v.MaxVolumeRatio)
	fmt.Fprintf(out, "Price: avg=%.2f low=%.2f high=%.2f volatility=%.4f trend=%+d rsi=%.1f\n",
		p.AvgPrice, p.MinPrice, p.MaxPrice, p.PriceVolatility, p.TrendDirection, p.LastRSI)
	fmt.Fprintf(out, "Combined: long=%d short=%d avg_strength=%.2f avg_quality=%.2f\n",
		sig.ByDirection[domain.DirectionLong], sig.ByDirection[domain.DirectionShort], sig.AvgStrength, sig.AvgQuality)
}

func printStatistics(out io.Writer, m *analytics.PerformanceMetrics) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	rows := []struct {
		label string
		value string
	}{
		{"Trades", fmt.Sprintf("%d (%d won, %d lost, %d flat)", m.TotalTrades, m.WinningTrades, m.LosingTrades, m.FlatTrades)},
		{"Win rate", fmt.Sprintf("%.2f%%", m.WinRate*100)},
		{"Total PnL", fmt.Sprintf("%.2f (%.2f%%)", m.TotalPNL, m.TotalReturn*100)},
		{"Average win / loss", fmt.Sprintf("%.2f / %.2f", m.AverageWin, m.AverageLoss)},
		{"Largest win / loss", fmt.Sprintf("%.2f / %.2f", m.LargestWin, m.LargestLoss)},
		{"Profit factor", fmt.Sprintf("%.2f", m.ProfitFactor)},
		{"Max drawdown", fmt.Sprintf("%.2f (%.2f%%)", m.MaxDrawdown, m.MaxDrawdownPct*100)},
		{"Sharpe / Sortino", fmt.Sprintf("%.3f / %.3f", m.SharpeRatio, m.SortinoRatio)},
		{"Expectancy", fmt.Sprintf("%.2f", m.Expectancy)},
		{"Duration min / avg / max", fmt.Sprintf("%.0fm / %.0fm / %.0fm", m.MinDurationMinutes, m.AvgDurationMinutes, m.MaxDurationMinutes)},
		{"Streaks (wins / losses)", fmt.Sprintf("%d / %d", m.MaxConsecutiveWins, m.MaxConsecutiveLosses)},
	}
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t\n", row.label, row.value)
	}
	w.Flush()

	if monthly := m.GetMonthlyReturns(); len(monthly) > 1 {
		fmt.Fprintln(out, "\nMonthly PnL")
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
		for _, mr := range monthly {
			fmt.Fprintf(w, "%s\t%.2f\t\n", mr.Month.Format("2006-01"), mr.Return)
		}
		w.Flush()
	}
}

// printExitBreakdown groups trades by exit reason.
func printExitBreakdown(out io.Writer, trades []*domain.Trade) {
	counts := make(map[domain.ExitReason]int)
	pnl := make(map[domain.ExitReason]float64)
	for _, t := range trades {
		counts[t.ExitReason]++
		pnl[t.ExitReason] += t.PNL
	}

	reasons := make([]domain.ExitReason, 0, len(counts))
	for reason := range counts {
		reasons = append(reasons, reason)
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Exit reason\tCount\tTotal PnL\tAvg PnL\t")
	for _, reason := range reasons {
		label := string(reason)
		if label == "" {
			label = "open"
		}
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t\n", label, counts[reason], pnl[reason], pnl[reason]/float64(counts[reason]))
	}
	w.Flush()
}

func printRuns(out io.Writer, runs []*ports.BacktestRun) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No stored runs.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Run\tSymbol\tInterval\tTrades\tWinRate\tPnL\tMaxDD\tSharpe\tCreated\t")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f%%\t%.2f\t%.2f\t%.3f\t%s\t\n",
			r.ID, r.Symbol, r.Interval, r.TotalTrades, r.WinRate*100, r.TotalPNL,
			r.MaxDrawdown, r.SharpeRatio, r.CreatedAt.Format(time.RFC3339))
	}
	w.Flush()
}

func printSweep(out io.Writer, ranges []optimization.ParameterRange, results []optimization.OptimizationResult, top int) {
	if len(results) == 0 {
		fmt.Fprintln(out, "No successful runs.")
		return
	}
	if top > 0 && len(results) > top {
		results = results[:top]
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprint(w, "Rank\t")
	for _, r := range ranges {
		fmt.Fprintf(w, "%s\t", r.Name)
	}
	fmt.Fprintln(w, "Trades\tWinRate\tPnL\tMaxDD%\tScore\t")

	for i, res := range results {
		fmt.Fprintf(w, "%d\t", i+1)
		for _, r := range ranges {
			fmt.Fprintf(w, "%g\t", res.Parameters[r.Name])
		}
		fmt.Fprintf(w, "%d\t%.2f%%\t%.2f\t%.2f\t%.4f\t\n",
			res.Metrics.TotalTrades, res.Metrics.WinRate*100, res.Metrics.TotalPNL,
			res.Metrics.MaxDrawdownPct*100, res.Score)
	}
	w.Flush()
}
