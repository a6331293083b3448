package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"hybridBacktester/internal/app"
	"hybridBacktester/internal/domain"
	"hybridBacktester/internal/strategy/optimization"
	"hybridBacktester/internal/utils"
)

var defaultSweep = []string{
	"take_profit=0.01:0.03:0.005",
	"stop_loss=0.005:0.015:0.005",
	"volume_threshold=1.5:2.5:0.5",
}

func newSweepCmd(opts *rootOptions) *cobra.Command {
	var (
		market  marketFlags
		csvPath string
		specs   []string
		workers int
		top     int
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a parameter grid and rank the results",
		Long: `Sweep runs one independent backtest per grid point and ranks the successful runs.
Each --range is name=min:max:step (or name=value); combinations that fail parameter
validation are skipped. Parameters outside the ranges come from the environment and --params.

Example:
  hybridbt sweep --csv data/btc_1h.csv --range take_profit=0.01:0.04:0.01 --range lookback_period=10:30:10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if len(specs) == 0 {
				specs = defaultSweep
			}
			ranges := make([]optimization.ParameterRange, 0, len(specs))
			for _, spec := range specs {
				r, err := optimization.ParseParameterRange(spec)
				if err != nil {
					return err
				}
				ranges = append(ranges, r)
			}
			if workers <= 0 {
				workers = opts.cfg.SweepWorkers
			}

			req, err := market.request(opts)
			if err != nil {
				return err
			}
			candles, err := sweepCandles(cmd, opts, req, csvPath)
			if err != nil {
				return err
			}

			strat, err := opts.newStrategy()
			if err != nil {
				return err
			}
			optimizer, err := optimization.NewOptimizer(optimization.OptimizerConfig{
				ParameterRanges: ranges,
				BaseParams:      opts.params,
				Workers:         workers,
				Logger:          opts.logger,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Sweeping %d combinations over %d candles with %d workers\n\n",
				optimizer.Combinations(), len(candles), workers)
			results, err := optimizer.Optimize(ctx, strat, candles)
			if err != nil {
				return err
			}
			printSweep(cmd.OutOrStdout(), ranges, results, top)
			return nil
		},
	}

	market.bind(cmd)
	cmd.Flags().StringVar(&csvPath, "csv", "", "read candles from this CSV file instead of the database")
	cmd.Flags().StringArrayVarP(&specs, "range", "r", nil, "parameter range name=min:max:step (repeatable)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "concurrent runs (default SWEEP_WORKERS)")
	cmd.Flags().IntVar(&top, "top", 10, "show the best N results (0 shows all)")
	return cmd
}

// sweepCandles loads the series once so every grid point replays the same data.
func sweepCandles(cmd *cobra.Command, opts *rootOptions, req app.Request, csvPath string) ([]domain.Candle, error) {
	if csvPath != "" {
		return utils.ReadCandlesFromCSV(csvPath, req.Symbol, req.Interval)
	}

	repo, err := opts.openRepository()
	if err != nil {
		return nil, err
	}
	defer opts.closeRepository(cmd.Context(), repo)

	source, err := opts.newSource()
	if err != nil {
		return nil, err
	}
	strat, err := opts.newStrategy()
	if err != nil {
		return nil, err
	}
	svc, err := app.NewBacktestService(app.Config{
		Logger:  opts.logger,
		Candles: repo,
		Source:  source,
		Runner:  strat,
	})
	if err != nil {
		return nil, err
	}
	return svc.LoadCandles(cmd.Context(), req)
}
