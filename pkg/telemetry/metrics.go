package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentry/agentry/pkg/engine"
)

// Metrics provides Prometheus metrics for the dispatch engine. It implements
// engine.Observer so a Dispatcher can report into it without importing this
// package.
type Metrics struct {
	config MetricsConfig

	// Dispatch metrics
	dispatchesStarted   *prometheus.CounterVec
	dispatchesCompleted *prometheus.CounterVec
	dispatchesRejected  *prometheus.CounterVec
	dispatchDuration    *prometheus.HistogramVec

	// Token accounting
	tokensUsed *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec

	// System metrics
	activeDispatches prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DurationBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		dispatchesStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatches_started_total",
				Help:      "Total number of dispatches that created an execution record",
			},
			[]string{"category"},
		),
		dispatchesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatches_completed_total",
				Help:      "Total number of dispatches that reached a terminal status",
			},
			[]string{"category", "status"},
		),
		dispatchesRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatches_rejected_total",
				Help:      "Total number of requests rejected before any record was written",
			},
			[]string{"category", "class"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Duration of agent execution in seconds",
				Buckets:   buckets,
			},
			[]string{"category", "status"},
		),

		tokensUsed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_used_total",
				Help:      "Total tokens consumed by agent executions",
			},
			[]string{"category"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of dispatch errors by error class",
			},
			[]string{"class"},
		),

		activeDispatches: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_dispatches",
				Help:      "Current number of in-flight dispatches",
			},
		),
	}

	registry.MustRegister(
		m.dispatchesStarted,
		m.dispatchesCompleted,
		m.dispatchesRejected,
		m.dispatchDuration,
		m.tokensUsed,
		m.errorsByClass,
		m.activeDispatches,
	)

	return m, nil
}

// DispatchStarted implements engine.Observer.
func (m *Metrics) DispatchStarted(cat engine.Category) {
	if m.dispatchesStarted == nil {
		return
	}
	m.dispatchesStarted.WithLabelValues(string(cat)).Inc()
	m.activeDispatches.Inc()
}

// DispatchCompleted implements engine.Observer.
func (m *Metrics) DispatchCompleted(cat engine.Category, status engine.Status, duration time.Duration, tokens int) {
	if m.dispatchesCompleted == nil {
		return
	}
	m.dispatchesCompleted.WithLabelValues(string(cat), string(status)).Inc()
	m.dispatchDuration.WithLabelValues(string(cat), string(status)).Observe(duration.Seconds())
	if tokens > 0 {
		m.tokensUsed.WithLabelValues(string(cat)).Add(float64(tokens))
	}
	m.activeDispatches.Dec()
}

// DispatchRejected implements engine.Observer.
func (m *Metrics) DispatchRejected(cat engine.Category, class engine.ErrorClass) {
	if m.dispatchesRejected == nil {
		return
	}
	m.dispatchesRejected.WithLabelValues(string(cat), string(class)).Inc()
	m.errorsByClass.WithLabelValues(string(class)).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
