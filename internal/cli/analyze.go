package cli

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"hybridBacktester/internal/app"
	"hybridBacktester/internal/domain"
	"hybridBacktester/internal/strategy/analytics"
	"hybridBacktester/internal/utils"
)

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var (
		capital float64
		runID   string
		symbol  string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "analyze [TRADES.csv...]",
		Short: "Summarize trade files or stored runs",
		Long: `With trade CSV files as arguments, analyze prints a statistics table per file and a
breakdown by exit reason. Without arguments it lists the stored runs, or the statistics
of one stored run with --run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if capital <= 0 {
				capital = opts.params.InitialCapital
			}

			if len(args) > 0 {
				type loaded struct {
					name   string
					trades []*domain.Trade
				}
				files := make([]loaded, 0, len(args))

				w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
				fmt.Fprintln(w, "File\tTrades\tWinRate\tAvgWin\tAvgLoss\tTotalPnL\tMaxDD%\tPF\tSharpe\t")
				for _, file := range args {
					trades, err := utils.ReadTradesFromCSV(file)
					if err != nil {
						opts.logger.Error(cmd.Context(), err, "Error reading trades", map[string]interface{}{"file": file})
						continue
					}
					files = append(files, loaded{name: filepath.Base(file), trades: trades})

					m := analytics.AnalyzePerformance(trades, capital)
					fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.3f\t\n",
						filepath.Base(file), m.TotalTrades, m.WinRate*100, m.AverageWin, m.AverageLoss,
						m.TotalPNL, m.MaxDrawdownPct*100, m.ProfitFactor, m.SharpeRatio)
				}
				w.Flush()

				for _, f := range files {
					fmt.Fprintf(out, "\n%s\n", f.name)
					printExitBreakdown(out, f.trades)
				}
				if len(files) == 0 {
					return fmt.Errorf("no readable trade files")
				}
				return nil
			}

			repo, err := opts.openRepository()
			if err != nil {
				return err
			}
			defer opts.closeRepository(cmd.Context(), repo)

			strat, err := opts.newStrategy()
			if err != nil {
				return err
			}
			svc, err := app.NewBacktestService(app.Config{
				Logger:  opts.logger,
				Candles: repo,
				Results: repo,
				Runner:  strat,
			})
			if err != nil {
				return err
			}

			if runID != "" {
				trades, err := svc.RunTrades(cmd.Context(), runID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Run %s\n\n", runID)
				printStatistics(out, analytics.AnalyzePerformance(trades, capital))
				fmt.Fprintln(out)
				printExitBreakdown(out, trades)
				return nil
			}

			runs, err := svc.RecentRuns(cmd.Context(), symbol, limit)
			if err != nil {
				return err
			}
			printRuns(out, runs)
			return nil
		},
	}

	cmd.Flags().Float64Var(&capital, "capital", 0, "initial capital for return and drawdown figures (default INITIAL_CAPITAL)")
	cmd.Flags().StringVar(&runID, "run", "", "show one stored run")
	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "only list runs of this symbol")
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "number of stored runs to list")
	return cmd
}
