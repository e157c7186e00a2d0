// Command ivcrush analyzes earnings calendar spreads and tracks the
// resulting positions.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/eddiefleurent/ivcrush/internal/analyzer"
	"github.com/eddiefleurent/ivcrush/internal/api"
	"github.com/eddiefleurent/ivcrush/internal/config"
	"github.com/eddiefleurent/ivcrush/internal/decision"
	"github.com/eddiefleurent/ivcrush/internal/logging"
	"github.com/eddiefleurent/ivcrush/internal/metrics"
	"github.com/eddiefleurent/ivcrush/internal/provider"
	"github.com/eddiefleurent/ivcrush/internal/risk"
	"github.com/eddiefleurent/ivcrush/internal/storage"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
	framework  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "ivcrush",
		Short: "Earnings IV-crush calendar spread analyzer",
		Long: `ivcrush evaluates the pre-earnings term structure of a symbol, builds
the calendar spread that sells the inflated front month, simulates the
post-earnings IV crush, sizes it with fractional Kelly and checks it against
portfolio limits before recommending a trade.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath, "Path to configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override logging.level")
	root.PersistentFlags().StringVar(&opts.framework, "framework", "", "Decision framework: original, enhanced or hybrid")

	root.AddCommand(newAnalyzeCmd(opts), newServeCmd(opts), newPositionsCmd(opts))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is everything one command invocation needs.
type app struct {
	cfg     *config.Config
	log     *logging.Logger
	metrics *metrics.Registry
	store   storage.Interface
	stack   *provider.Stack
	service *api.Service
}

func newApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	cfg, warnings := config.Load(opts.configPath)
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.framework != "" {
		f, err := decision.ParseFramework(opts.framework)
		if err != nil {
			return nil, err
		}
		cfg.Decision.Framework = string(f)
	}
	warnings = append(warnings, cfg.Normalize()...)

	logger, err := logging.New(cfg.LogOptions(), cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		logger.WithField("config", opts.configPath).Warn(w)
	}

	a := &app{cfg: cfg, log: logger, metrics: metrics.New()}
	if err := a.wire(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	logger := a.log.Logger

	store, err := storage.NewStorage(a.cfg.Storage.Backend, a.cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening position store: %w", err)
	}
	a.store = store

	engine, err := risk.NewEngine(a.cfg.RiskLimits(), store, logger)
	if err != nil {
		return fmt.Errorf("loading ledger: %w", err)
	}

	stack, err := provider.New(a.cfg.ProviderSettings(), a.metrics, logger)
	if err != nil {
		return err
	}
	a.stack = stack

	pipeline, err := analyzer.New(a.cfg.AnalyzerConfig(), engine, a.metrics, logger)
	if err != nil {
		return err
	}

	snapshots := provider.SnapshotBuilder{
		MarketData:     stack.MarketData,
		Earnings:       stack.Earnings,
		Logger:         logger,
		MaxExpirations: a.cfg.Analysis.MaxExpirations,
	}
	a.service, err = api.NewService(snapshots, pipeline, engine, a.metrics, logger)
	return err
}

// Close releases the cache connection, the store and the log file.
func (a *app) Close() error {
	var errs []error
	if a.stack != nil {
		errs = append(errs, a.stack.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	errs = append(errs, a.log.Close())
	return errors.Join(errs...)
}
