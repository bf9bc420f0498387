package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"linkchaser/internal/config"
	"linkchaser/internal/crawler"
	"linkchaser/internal/report"
	"linkchaser/pkg/types"
)

type rootOptions struct {
	configPath  string
	target      string
	wholePage   bool
	delay       time.Duration
	logLevel    string
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "linkchaser [start-url]",
		Short: "Follow first links until Philosophy",
		Long: `linkchaser follows the first link of each article, skipping links in
parentheses and italics, until it reaches the target article, revisits an
article or runs out of links.

Without a start URL a random article is used. The start may also be given
as a plain article title.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			start := ""
			if len(args) == 1 {
				start = args[0]
			}
			return run(ctx, *cfg, start, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML configuration file")
	flags.StringVarP(&opts.target, "target", "t", "", "article that ends the chain (default from config, Philosophy)")
	flags.BoolVarP(&opts.wholePage, "whole-page", "w", false, "search the whole article instead of the lead section")
	flags.DurationVar(&opts.delay, "delay", 0, "pause before every fetch (default from config, 500ms)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("target") {
		cfg.Trace.Target = opts.target
	}
	if flags.Changed("whole-page") {
		cfg.Trace.WholeDocument = opts.wholePage
	}
	if flags.Changed("delay") {
		cfg.Trace.FetchDelay = config.DurationFrom(opts.delay)
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config, start string, stdout, stderr io.Writer) error {
	engine, err := crawler.NewEngine(cfg, crawler.WithLogOutput(stderr))
	if err != nil {
		return fmt.Errorf("failed to initialise engine: %w", err)
	}
	logger := engine.Logger()

	if cfg.Metrics.Addr != "" {
		stop := serveMetrics(engine, cfg.Metrics)
		defer stop()
	}

	printer := report.NewPrinter(stdout, cfg.Wiki.ArticleBaseURL)
	if start == "" {
		printer.Start(cfg.Wiki.RandomURL)
	}

	startID, err := engine.ResolveStart(ctx, start)
	if err != nil {
		return err
	}
	logger.Debug("start page resolved", "page", startID.String())

	traversal := engine.Trace(startID)
	for traversal.Next(ctx) {
		printer.Page(traversal.ID())
	}
	outcome := traversal.Outcome()
	printer.Outcome(outcome, traversal.Hops())
	if err := printer.Err(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if outcome.Kind == types.OutcomeFailed {
		return outcome.Err()
	}
	return nil
}

func serveMetrics(engine *crawler.Engine, cfg config.MetricsConfig) func() {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, engine.MetricsHandler())
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger := engine.Logger()
	go func() {
		logger.Info("metrics server listening", "addr", cfg.Addr, "path", cfg.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}
}
