// Package telemetry provides observability instrumentation for Enact.
//
// The telemetry package integrates structured logging (zerolog), distributed
// tracing (OpenTelemetry), metrics (Prometheus), and event publishing into a
// unified system for monitoring and debugging engine runs.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//  4. Event Publishing - Event bus for run/step lifecycle notifications
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "enact"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context
// propagation:
//
//	logger := tel.Logger.NewComponentLogger("resolver")
//	logger = logger.WithRunID("run-123").WithIntent("package", "nginx")
//	logger.Info("Selecting backend")
//	logger.WithError(err).Error("Resolution failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into run flow and performance:
//
//	ctx, span := tel.Tracer.StartRunSpan(ctx, runID, len(plan.Steps), "halt")
//	defer span.End()
//
//	ctx, stepSpan := tel.Tracer.StartStepSpan(ctx, 0, "package", "nginx", "apk")
//	defer stepSpan.End()
//
//	if err != nil {
//	    telemetry.RecordError(stepSpan, err)
//	}
//
// Supported exporters: OTLP (production), Stdout (development), none (testing)
//
// # Metrics
//
// Prometheus metrics track engine behavior and performance:
//
//	tel.Metrics.RecordRunStarted("halt")
//	tel.Metrics.RecordRunCompleted("success", duration)
//	tel.Metrics.RecordStepExecution("package", "applied", "apk", duration)
//	tel.Metrics.RecordBackendCall("apk", "apply", duration)
//	tel.Metrics.RecordBackendExclusion("handshake timeout")
//
// Metrics are exposed via HTTP at /metrics (default: :9477/metrics)
//
// # Event Publishing
//
// The event bus streams run and step lifecycle events to subscribers such as
// the CLI progress renderer:
//
//	tel.Events.PublishRunStarted(runID, len(plan.Steps), "halt")
//	tel.Events.PublishStepApplied(runID, 0, "package", "nginx", true, duration)
//
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("%s %s\n", event.Type, event.Message)
//	}, telemetry.FilterByRunID(runID))
//
// Event filters: FilterByLevel, FilterByType, FilterByRunID, FilterByKind
//
// # Configuration
//
// The package provides pre-configured setups for different environments:
//
//	cfg := telemetry.DevelopmentConfig() // verbose logging, stdout traces
//	cfg := telemetry.ProductionConfig()  // JSON logs, OTLP traces, sampling
//
// # Graceful Shutdown
//
// Always shut down telemetry gracefully to flush pending data:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("Telemetry shutdown error: %v", err)
//	}
//
// # Common Metrics
//
// Key metrics exposed:
//
//   - enact_runs_started_total{failure_mode}
//   - enact_runs_completed_total{status}
//   - enact_run_duration_seconds{status}
//   - enact_steps_executed_total{kind,status}
//   - enact_step_duration_seconds{kind,backend}
//   - enact_backend_calls_total{backend,operation}
//   - enact_backend_errors_total{backend,operation}
//   - enact_backends_available
//   - enact_backend_exclusions_total{reason}
//   - enact_resolution_errors_total{class}
//   - enact_policy_denials_total{policy}
//   - enact_active_runs
package telemetry
