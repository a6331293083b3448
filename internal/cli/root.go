// Package cli holds the cobra commands of the backtester.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hybridBacktester/config"
	"hybridBacktester/internal/adapters/binanceclient"
	"hybridBacktester/internal/adapters/logger"
	"hybridBacktester/internal/adapters/sqlite"
	"hybridBacktester/internal/domain"
	"hybridBacktester/internal/strategy"
)

// rootOptions carries what every subcommand shares: configuration, logger and
// the parameter bundle after the optional YAML overlay.
type rootOptions struct {
	paramsFile string
	logLevel   string

	cfg    *config.Config
	logger *logger.ZeroLogger
	params domain.Params
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "hybridbt",
		Short: "Hybrid volume/price signal backtester",
		Long: `hybridbt detects volume spikes and price moves on historical candles, fuses them
into combined signals and simulates long/short trades with take-profit and stop-loss exits.

Candles come from CSV files, the local SQLite store or Binance historical klines.
Defaults are read from the environment (.env); --params overlays a YAML parameter file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.paramsFile, "params", "", "YAML parameter file overlaid on the environment defaults")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	cmd.AddCommand(
		newRunCmd(opts),
		newFetchCmd(opts),
		newImportCmd(opts),
		newSweepCmd(opts),
		newAnalyzeCmd(opts),
	)
	return cmd
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

func (o *rootOptions) load() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.LogLevel = logger.ParseLevel(o.logLevel)
	}
	o.cfg = cfg
	o.logger = logger.New(cfg.LogLevel, cfg.LogFormat)

	o.params = cfg.Params
	if o.paramsFile != "" {
		if o.params, err = config.LoadParamsFile(o.paramsFile, cfg.Params); err != nil {
			return err
		}
	}
	return nil
}

func (o *rootOptions) openRepository() (*sqlite.Repository, error) {
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: o.cfg.DBPath, Logger: o.logger})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return repo, nil
}

func (o *rootOptions) newSource() (*binanceclient.Client, error) {
	return binanceclient.New(binanceclient.Config{
		APIKey:            o.cfg.APIKey,
		SecretKey:         o.cfg.SecretKey,
		BaseURL:           o.cfg.BaseURL,
		UseTestnet:        o.cfg.IsTestnet,
		RequestsPerSecond: o.cfg.RequestsPerSecond,
		MaxRetries:        o.cfg.FetchMaxRetries,
		Logger:            o.logger,
	})
}

func (o *rootOptions) newStrategy() (*strategy.Strategy, error) {
	return strategy.New(strategy.DefaultConfig(), o.logger)
}

func (o *rootOptions) closeRepository(ctx context.Context, repo *sqlite.Repository) {
	if err := repo.Close(); err != nil {
		o.logger.Error(ctx, err, "Error closing database repository")
	}
}
