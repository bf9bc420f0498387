package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"linkchaser/internal/config"
	"linkchaser/internal/fetcher"
	"linkchaser/internal/processor"
	robotsclient "linkchaser/internal/robots"
	"linkchaser/pkg/types"
)

// Engine wires the fetch client, pacer, metrics and logger from configuration
// and starts traversals.
type Engine struct {
	cfg      config.Config
	client   *fetcher.WikiClient
	fetcher  Fetcher
	pacer    *Pacer
	registry *prometheus.Registry
	metrics  *Metrics
	logger   *slog.Logger
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithLogOutput redirects log output, stderr by default.
func WithLogOutput(w io.Writer) EngineOption {
	return func(e *Engine) {
		if logger, err := buildLogger(e.cfg.Logging, w); err == nil {
			e.logger = logger
		}
	}
}

// WithFetcher replaces the MediaWiki client used for traversals.
func WithFetcher(f Fetcher) EngineOption {
	return func(e *Engine) {
		e.fetcher = f
	}
}

// NewEngine builds an engine from configuration.
func NewEngine(cfg config.Config, opts ...EngineOption) (*Engine, error) {
	logger, err := buildLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return nil, err
	}

	client, err := fetcher.NewWikiClient(fetcher.Options{
		APIURL:       cfg.Wiki.APIURL,
		RandomURL:    cfg.Wiki.RandomURL,
		UserAgent:    cfg.Wiki.UserAgent,
		Headers:      cfg.Wiki.Headers,
		Timeout:      cfg.Wiki.RequestTimeout.Duration,
		MaxBodyBytes: cfg.Wiki.MaxBodyBytes,
		ProxyURL:     cfg.Wiki.ProxyURL,
		Preparer:     processor.NewHTMLProcessor(cfg.Preprocess),
	})
	if err != nil {
		return nil, fmt.Errorf("wiki client: %w", err)
	}
	if cfg.Robots.Respect {
		client.UseRobots(robotsclient.NewAgent(cfg.Robots, client.Client()))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	e := &Engine{
		cfg:     cfg,
		client:  client,
		fetcher: client,
		pacer: NewPacer(cfg.Trace.FetchDelay.Duration, RateLimiterSettings{
			Requests: cfg.Trace.RateLimit.Requests,
			Window:   cfg.Trace.RateLimit.Window.Duration,
		}),
		registry: registry,
		metrics:  NewMetrics(registry),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ResolveStart turns a URL, a title or nothing (random article) into the
// starting document.
func (e *Engine) ResolveStart(ctx context.Context, raw string) (types.DocumentID, error) {
	id, err := e.client.ResolveStart(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("resolve start page: %w", err)
	}
	return id, nil
}

// Trace starts a traversal from start towards the configured target. Every
// traversal owns a fresh history and a new trail id.
func (e *Engine) Trace(start types.DocumentID) *Traversal {
	trailID := uuid.NewString()
	e.logger.Info("starting traversal", "trail_id", trailID, "start", start.String(), "whole_document", e.cfg.Trace.WholeDocument)
	return NewTraversal(e.fetcher, start, Options{
		Target:        types.NewDocumentID(e.cfg.Trace.Target),
		WholeDocument: e.cfg.Trace.WholeDocument,
		Pacer:         e.pacer,
		Logger:        e.logger,
		Metrics:       e.metrics,
		TrailID:       trailID,
	})
}

// MetricsHandler serves the engine's Prometheus registry.
func (e *Engine) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() config.Config {
	return e.cfg
}

func buildLogger(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unsupported log level %q", cfg.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Structured {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), nil
}
