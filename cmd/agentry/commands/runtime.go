package commands

import (
	"context"
	"fmt"

	"github.com/agentry/agentry/pkg/agents"
	"github.com/agentry/agentry/pkg/config"
	"github.com/agentry/agentry/pkg/engine"
	"github.com/agentry/agentry/pkg/stores"
	"github.com/agentry/agentry/pkg/telemetry"
)

// runtime bundles the wired components a command needs: the dispatcher, the
// store behind it, and the telemetry that must be flushed on exit.
type runtime struct {
	cfg        *config.Config
	logger     *telemetry.Logger
	metrics    *telemetry.Metrics
	tracer     *telemetry.Tracer
	store      *stores.SQLiteStore
	dispatcher *engine.Dispatcher
}

// setupRuntime loads configuration and wires the full dispatch stack.
func setupRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	tcfg := cfg.Telemetry(buildVersion, "production")

	logger, err := telemetry.NewLogger(tcfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	metrics, err := telemetry.NewMetrics(tcfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	if err := metrics.StartMetricsServer(); err != nil {
		return nil, fmt.Errorf("failed to start metrics server: %w", err)
	}

	tracer, err := telemetry.NewTracer(tcfg.Tracing, tcfg.ServiceName, tcfg.ServiceVersion, tcfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	store, err := stores.NewSQLiteStore(stores.Config{
		Path:            cfg.Store.Path,
		MaxOpenConns:    cfg.Store.MaxOpenConns,
		MaxIdleConns:    cfg.Store.MaxIdleConns,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}

	registry := engine.NewRegistry()
	if err := agents.RegisterAll(registry, agents.Deps{
		Records: store,
		Logger:  logger.NewComponentLogger("agents").Zerolog(),
		Policy: agents.ReviewPolicy{
			MinConfidence:    cfg.Review.MinConfidence,
			CriticalSeverity: cfg.Review.CriticalSeverity,
		},
	}); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to register agents: %w", err)
	}

	dispatcher := engine.NewDispatcher(registry, store, engine.Options{
		Logger:       logger.NewComponentLogger("dispatcher").Zerolog(),
		Observer:     metrics,
		Tracer:       tracer.Tracer(),
		MaxParallel:  cfg.Dispatch.MaxParallel,
		Timeout:      cfg.Dispatch.Timeout,
		HistoryLimit: cfg.Dispatch.HistoryLimit,
	})

	return &runtime{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		tracer:     tracer,
		store:      store,
		dispatcher: dispatcher,
	}, nil
}

// close flushes telemetry and releases the store.
func (r *runtime) close(ctx context.Context) {
	if err := r.tracer.Shutdown(ctx); err != nil {
		r.logger.WithError(err).Warn("tracer shutdown failed")
	}
	if err := r.store.Close(); err != nil {
		r.logger.WithError(err).Warn("store close failed")
	}
}
