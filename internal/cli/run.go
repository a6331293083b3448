package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"hybridBacktester/internal/app"
	"hybridBacktester/internal/strategy"
	"hybridBacktester/internal/utils"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		market    marketFlags
		csvPath   string
		tradesOut string
		offline   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one backtest",
		Long: `Run a backtest over a CSV file (--csv) or over stored candles. Stored candles are
topped up from Binance when the store cannot cover a run, unless --offline is set.
Results of stored-candle runs are cached and persisted in the database.

Example:
  hybridbt run --symbol BTCUSDT --interval 1h --start 2024-01-01 --end 2024-03-01
  hybridbt run --csv data/BTCUSDT_1h.csv --params params.yaml --trades-out trades.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			req, err := market.request(opts)
			if err != nil {
				return err
			}

			var result *strategy.Result
			if csvPath != "" {
				candles, err := utils.ReadCandlesFromCSV(csvPath, req.Symbol, req.Interval)
				if err != nil {
					return err
				}
				strat, err := opts.newStrategy()
				if err != nil {
					return err
				}
				if result, err = strat.Run(ctx, candles, opts.params); err != nil {
					return err
				}
			} else {
				repo, err := opts.openRepository()
				if err != nil {
					return err
				}
				defer opts.closeRepository(ctx, repo)

				strat, err := opts.newStrategy()
				if err != nil {
					return err
				}
				svcCfg := app.Config{
					Logger:   opts.logger,
					Candles:  repo,
					Results:  repo,
					Cache:    repo,
					Runner:   strat,
					CacheTTL: opts.cfg.CacheTTL,
				}
				if !offline {
					source, err := opts.newSource()
					if err != nil {
						return err
					}
					svcCfg.Source = source
				}
				svc, err := app.NewBacktestService(svcCfg)
				if err != nil {
					return err
				}

				resp, err := svc.Run(ctx, req)
				if err != nil {
					return err
				}
				result = resp.Result
				switch {
				case resp.Cached:
					fmt.Fprintf(out, "Cached result of run %s\n", resp.RunID)
				case resp.RunID != "":
					fmt.Fprintf(out, "Stored as run %s\n", resp.RunID)
				}
			}

			printResult(out, result)

			if tradesOut != "" && result.Success {
				if err := utils.WriteTradesToCSV(result.Trades, tradesOut); err != nil {
					return err
				}
				fmt.Fprintf(out, "\nWrote %d trades to %s\n", len(result.Trades), tradesOut)
			}
			if !result.Success {
				return fmt.Errorf("backtest failed: %s", result.ErrorMessage)
			}
			return nil
		},
	}

	market.bind(cmd)
	cmd.Flags().StringVar(&csvPath, "csv", "", "read candles from this CSV file instead of the database")
	cmd.Flags().StringVarP(&tradesOut, "trades-out", "o", "", "write the simulated trades to this CSV file")
	cmd.Flags().BoolVar(&offline, "offline", false, "never fetch missing candles from Binance")
	return cmd
}
