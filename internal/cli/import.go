package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"hybridBacktester/internal/app"
	"hybridBacktester/internal/domain"
	"hybridBacktester/internal/utils"
)

func newImportCmd(opts *rootOptions) *cobra.Command {
	var symbol, interval string

	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Load candle CSV files into the database",
		Long: `Import candle CSV files (timestamp, open, high, low, close, volume and optional
symbol/interval columns) into the local database. Rows without symbol or interval
take the --symbol and --interval values.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if symbol == "" {
				symbol = opts.cfg.Symbol
			}
			normalized, err := app.NormalizeSymbol(symbol)
			if err != nil {
				return err
			}
			if interval == "" {
				interval = opts.cfg.Interval
			}
			if !domain.IsSupportedInterval(interval) {
				return fmt.Errorf("unsupported interval %q", interval)
			}

			repo, err := opts.openRepository()
			if err != nil {
				return err
			}
			defer opts.closeRepository(ctx, repo)

			for _, file := range args {
				candles, err := utils.ReadCandlesFromCSV(file, normalized, interval)
				if err != nil {
					return err
				}
				n, err := repo.SaveCandles(ctx, candles)
				if err != nil {
					return fmt.Errorf("%s: %w", file, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: imported %d candles\n", file, n)
			}

			total, err := repo.CountCandles(ctx, normalized, interval)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s now has %d stored candles\n", normalized, interval, total)
			return nil
		},
	}

	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "symbol for rows without one (default SYMBOL)")
	cmd.Flags().StringVarP(&interval, "interval", "i", "", "interval for rows without one (default INTERVAL)")
	return cmd
}
