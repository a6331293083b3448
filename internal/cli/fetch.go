package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"hybridBacktester/internal/app"
	"hybridBacktester/internal/domain"
	"hybridBacktester/internal/ports"
	"hybridBacktester/internal/utils"
)

func newFetchCmd(opts *rootOptions) *cobra.Command {
	var (
		market  marketFlags
		out     string
		noStore bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download historical candles from Binance",
		Long: `Fetch historical klines from Binance into the local database and optionally a CSV file.
Without --start the latest --limit candles are fetched.

Example:
  hybridbt fetch --symbol ETHUSDT --interval 15m --start 2024-01-01 --end 2024-02-01 --out data/eth_15m.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			req, err := market.request(opts)
			if err != nil {
				return err
			}

			source, err := opts.newSource()
			if err != nil {
				return err
			}

			candles, err := fetchCandles(ctx, source, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fetched %d %s %s candles\n", len(candles), req.Symbol, req.Interval)

			if !noStore {
				repo, err := opts.openRepository()
				if err != nil {
					return err
				}
				defer opts.closeRepository(ctx, repo)

				n, err := repo.SaveCandles(ctx, candles)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored %d candles in %s\n", n, opts.cfg.DBPath)
			}

			if out != "" {
				if err := utils.WriteCandlesToCSV(candles, out); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", out)
			}
			return nil
		},
	}

	market.bind(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "also write the candles to this CSV file")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "do not write the candles to the database")
	return cmd
}

// fetchCandles checks the source is reachable before paging through the request window.
// Without a start it returns the latest req.Limit candles.
func fetchCandles(ctx context.Context, source ports.CandleSource, req app.Request) ([]domain.Candle, error) {
	if err := source.Ping(ctx); err != nil {
		return nil, fmt.Errorf("candle source unreachable: %w", err)
	}
	if req.Start.IsZero() {
		return source.GetRecentCandles(ctx, req.Symbol, req.Interval, req.Limit)
	}
	end := req.End
	if end.IsZero() {
		end = time.Now().UTC()
	}
	return source.GetCandles(ctx, req.Symbol, req.Interval, req.Start, end)
}
