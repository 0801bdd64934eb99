// Package app wires configuration into a running analysis engine with its
// optional event bus and audit store.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BV-BRC/sheet-analyst/internal/admission"
	"github.com/BV-BRC/sheet-analyst/internal/analysis"
	"github.com/BV-BRC/sheet-analyst/internal/audit"
	"github.com/BV-BRC/sheet-analyst/internal/chart"
	"github.com/BV-BRC/sheet-analyst/internal/config"
	"github.com/BV-BRC/sheet-analyst/internal/events"
	"github.com/BV-BRC/sheet-analyst/internal/generator"
	"github.com/BV-BRC/sheet-analyst/internal/metrics"
	"github.com/BV-BRC/sheet-analyst/internal/sandbox"
)

// App holds the process-wide collaborators built once at startup.
type App struct {
	Config  *config.Config
	Engine  *analysis.Engine
	Charts  *chart.Store
	Metrics *metrics.Collector
	Audit   *audit.Store

	redis  *redis.Client
	logger *zap.Logger
}

// Option customizes New.
type Option func(*options)

type options struct {
	generator generator.Generator
	reporting bool
	metrics   bool
}

// WithGenerator replaces the configured model, e.g. for direct execution.
func WithGenerator(g generator.Generator) Option {
	return func(o *options) { o.generator = g }
}

// WithoutReporting skips the Redis and MongoDB connections.
func WithoutReporting() Option {
	return func(o *options) { o.reporting = false }
}

// WithoutMetrics skips the Prometheus collector.
func WithoutMetrics() Option {
	return func(o *options) { o.metrics = false }
}

// New builds the engine from configuration. Redis and MongoDB are
// connected only when configured.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	o := options{reporting: true, metrics: true}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, logger: logger}

	policy, err := admission.Load(cfg.Policy.Path)
	if err != nil {
		return nil, err
	}

	charts, err := chart.NewStore(cfg.Plots.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create plot directory: %w", err)
	}
	a.Charts = charts

	gen := o.generator
	if gen == nil {
		if gen, err = generator.FromConfig(cfg.Model, logger); err != nil {
			return nil, err
		}
	}

	var engineOpts []analysis.Option
	if o.metrics {
		a.Metrics = metrics.New("sheet_analyst", logger)
		engineOpts = append(engineOpts, analysis.WithMetrics(a.Metrics))
	}

	if o.reporting && cfg.Redis.Addr != "" {
		client, err := events.ConnectRedis(&cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.redis = client
		engineOpts = append(engineOpts, analysis.WithPublisher(events.NewPublisher(client, cfg.Redis.Channel)))
		logger.Info("publishing analysis events", zap.String("addr", cfg.Redis.Addr), zap.String("channel", cfg.Redis.Channel))
	}

	if o.reporting && cfg.MongoDB.URI != "" {
		store, err := audit.NewStore(cfg.MongoDB.URI, cfg.MongoDB.Database)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Audit = store
		engineOpts = append(engineOpts, analysis.WithRecorder(store))
		logger.Info("recording audit trail", zap.String("database", cfg.MongoDB.Database))
	}

	a.Engine = analysis.New(policy, gen, sandbox.NewRunner(cfg.Sandbox.MaxConcurrent, logger),
		SandboxOptions(cfg.Sandbox, charts), logger, engineOpts...)
	return a, nil
}

// SandboxOptions converts configuration into execution limits, falling
// back to the defaults for unset values.
func SandboxOptions(cfg config.SandboxConfig, charts *chart.Store) sandbox.Options {
	opts := sandbox.DefaultOptions()
	if cfg.Timeout > 0 {
		opts.Timeout = cfg.Timeout
	}
	if cfg.MaxCallStack > 0 {
		opts.MaxCallStack = cfg.MaxCallStack
	}
	if cfg.MaxOutputBytes > 0 {
		opts.MaxOutputBytes = cfg.MaxOutputBytes
	}
	if cfg.RowLimit > 0 {
		opts.RowLimit = cfg.RowLimit
	}
	opts.Charts = charts
	return opts
}

// Close releases external connections.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if a.Audit != nil {
		errs = append(errs, a.Audit.Close(ctx))
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
