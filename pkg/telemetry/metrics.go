package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for Enact.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Step metrics
	stepsExecuted *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec

	// Backend metrics
	backendCalls        *prometheus.CounterVec
	backendCallDuration *prometheus.HistogramVec
	backendErrors       *prometheus.CounterVec

	// Discovery metrics
	backendsAvailable prometheus.Gauge
	backendExclusions *prometheus.CounterVec

	// Resolution metrics
	resolutionErrors *prometheus.CounterVec

	// Policy metrics
	policyDenials *prometheus.CounterVec

	// System metrics
	activeRuns prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		// Run metrics
		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of runs started",
			},
			[]string{"failure_mode"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of run execution in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		// Step metrics
		stepsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_executed_total",
				Help:      "Total number of plan steps executed",
			},
			[]string{"kind", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of step execution in seconds",
				Buckets:   buckets,
			},
			[]string{"kind", "backend"},
		),

		// Backend metrics
		backendCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_calls_total",
				Help:      "Total number of backend protocol calls",
			},
			[]string{"backend", "operation"},
		),
		backendCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_call_duration_seconds",
				Help:      "Duration of backend protocol calls in seconds",
				Buckets:   buckets,
			},
			[]string{"backend", "operation"},
		),
		backendErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_errors_total",
				Help:      "Total number of backend call failures",
			},
			[]string{"backend", "operation"},
		),

		// Discovery metrics
		backendsAvailable: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backends_available",
				Help:      "Number of backends that passed discovery",
			},
		),
		backendExclusions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_exclusions_total",
				Help:      "Total number of backends excluded during discovery",
			},
			[]string{"reason"},
		),

		// Resolution metrics
		resolutionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolution_errors_total",
				Help:      "Total number of plan resolution failures",
			},
			[]string{"class"},
		),

		// Policy metrics
		policyDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_denials_total",
				Help:      "Total number of plans denied by policy",
			},
			[]string{"policy"},
		),

		// System metrics
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of active runs",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.stepsExecuted,
		m.stepDuration,
		m.backendCalls,
		m.backendCallDuration,
		m.backendErrors,
		m.backendsAvailable,
		m.backendExclusions,
		m.resolutionErrors,
		m.policyDenials,
		m.activeRuns,
	)

	return m, nil
}

// Run Metrics

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted(failureMode string) {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.WithLabelValues(failureMode).Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted records a completed run with its status and duration.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// Step Metrics

// RecordStepExecution records the outcome of a single plan step.
func (m *Metrics) RecordStepExecution(kind, status, backend string, duration time.Duration) {
	if m.stepsExecuted == nil {
		return
	}
	m.stepsExecuted.WithLabelValues(kind, status).Inc()
	m.stepDuration.WithLabelValues(kind, backend).Observe(duration.Seconds())
}

// Backend Metrics

// RecordBackendCall records a backend protocol call with its duration.
func (m *Metrics) RecordBackendCall(backend, operation string, duration time.Duration) {
	if m.backendCalls == nil {
		return
	}
	m.backendCalls.WithLabelValues(backend, operation).Inc()
	m.backendCallDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordBackendError records a backend call failure.
func (m *Metrics) RecordBackendError(backend, operation string) {
	if m.backendErrors == nil {
		return
	}
	m.backendErrors.WithLabelValues(backend, operation).Inc()
}

// Discovery Metrics

// SetBackendsAvailable sets the number of backends that passed discovery.
func (m *Metrics) SetBackendsAvailable(count float64) {
	if m.backendsAvailable == nil {
		return
	}
	m.backendsAvailable.Set(count)
}

// RecordBackendExclusion records a backend excluded during discovery.
func (m *Metrics) RecordBackendExclusion(reason string) {
	if m.backendExclusions == nil {
		return
	}
	m.backendExclusions.WithLabelValues(reason).Inc()
}

// Resolution Metrics

// RecordResolutionError records a plan resolution failure by error class.
func (m *Metrics) RecordResolutionError(class string) {
	if m.resolutionErrors == nil {
		return
	}
	m.resolutionErrors.WithLabelValues(class).Inc()
}

// Policy Metrics

// RecordPolicyDenial records a plan denied by a policy rule.
func (m *Metrics) RecordPolicyDenial(policy string) {
	if m.policyDenials == nil {
		return
	}
	m.policyDenials.WithLabelValues(policy).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
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
