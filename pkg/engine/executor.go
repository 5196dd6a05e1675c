package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/enactproject/enact/pkg/protocol"
	"github.com/enactproject/enact/pkg/telemetry"
)

// Executor applies execution plans. Steps run strictly in plan order, one
// at a time, each under a bounded timeout; a misbehaving backend fails
// its step, never the Executor. The run report is owned by the Executor
// while the run is live and immutable once Execute returns.
type Executor struct {
	// applier routes apply calls to backends.
	applier Applier

	// Instrumentation; every field may be nil.
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	events  *telemetry.EventPublisher
}

// NewExecutor creates an executor over the given applier. The telemetry
// aggregate is optional; nil disables instrumentation.
func NewExecutor(applier Applier, tel *telemetry.Telemetry) *Executor {
	e := &Executor{applier: applier}
	if tel != nil {
		if tel.Logger != nil {
			e.logger = tel.Logger.NewComponentLogger("executor")
		}
		e.metrics = tel.Metrics
		e.tracer = tel.Tracer
		e.events = tel.Events
	}
	return e
}

// Execute runs the plan and returns its report. The report is always
// complete and always returned, even when the run aborts: one outcome per
// plan step plus one per intent excluded during resolution.
//
// The context is checked between steps; cancellation skips the remaining
// steps and aborts the run. Cancellation mid-step fails that step first.
func (e *Executor) Execute(ctx context.Context, plan *Plan, opts ExecuteOptions) *RunReport {
	mode := opts.FailureMode
	if mode == "" {
		mode = FailureModeHalt
	}
	timeout := opts.StepTimeout
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}

	report := &RunReport{
		RunID:         uuid.New().String(),
		Document:      opts.Document,
		SchemaVersion: plan.SchemaVersion,
		FailureMode:   mode,
		StartedAt:     time.Now().UTC(),
		Outcomes:      make([]StepOutcome, 0, len(plan.Steps)+len(plan.Skipped)),
	}

	logger := e.logger
	if logger != nil {
		logger = logger.WithRunID(report.RunID)
	}

	var runSpan trace.Span
	if e.tracer != nil {
		ctx, runSpan = e.tracer.StartRunSpan(ctx, report.RunID, len(plan.Steps), string(mode))
		defer runSpan.End()
	}
	if e.metrics != nil {
		e.metrics.RecordRunStarted(string(mode))
	}
	if e.events != nil {
		_ = e.events.PublishRunStarted(report.RunID, len(plan.Steps), string(mode))
	}
	if logger != nil {
		logger.Infof("run started: %d steps, %d pre-skipped, mode %s",
			len(plan.Steps), len(plan.Skipped), mode)
	}

	// Intents excluded during resolution lead the report.
	for _, sk := range plan.Skipped {
		outcome := StepOutcome{
			Index:  -1,
			Kind:   sk.Intent.Kind,
			Target: sk.Intent.Target,
			Status: StepStatusSkipped,
			Detail: sk.Reason,
		}
		report.Outcomes = append(report.Outcomes, outcome)
		e.recordSkip(logger, report.RunID, outcome)
	}

	state := make([]StepStatus, len(plan.Steps))
	halted := false
	haltReason := ""

	for i := range plan.Steps {
		step := &plan.Steps[i]

		if !halted && ctx.Err() != nil {
			halted = true
			haltReason = "run cancelled"
		}

		if halted {
			e.skipStep(report, state, step, haltReason, logger)
			continue
		}

		if reason, blocked := blockedBy(step, plan, state); blocked {
			e.skipStep(report, state, step, reason, logger)
			continue
		}

		outcome := e.applyStep(ctx, report.RunID, step, timeout, logger)
		state[step.Index] = outcome.Status
		report.Outcomes = append(report.Outcomes, outcome)

		if outcome.Status == StepStatusFailed && step.OnFailure.Resolve(mode) == FailureModeHalt {
			halted = true
			haltReason = fmt.Sprintf("run halted after %s failed", step.Ref())
		}
	}

	report.CompletedAt = time.Now().UTC()
	report.Duration = report.CompletedAt.Sub(report.StartedAt)
	report.Status = finalStatus(report.Summary(), halted)

	if runSpan != nil {
		telemetry.SetAttributes(runSpan, attribute.String("run.status", string(report.Status)))
		if report.Status == RunStatusSuccess {
			telemetry.RecordSuccess(runSpan)
		} else {
			telemetry.RecordError(runSpan, fmt.Errorf("run finished %s", report.Status))
		}
	}
	if e.metrics != nil {
		e.metrics.RecordRunCompleted(string(report.Status), report.Duration)
	}
	if e.events != nil {
		_ = e.events.PublishRunCompleted(report.RunID, string(report.Status), report.Duration)
	}
	if logger != nil {
		s := report.Summary()
		logger.Infof("run %s: %d applied, %d failed, %d skipped",
			report.Status, s.Applied, s.Failed, s.Skipped)
	}

	return report
}

// finalStatus derives the overall run status. A halted or cancelled run
// is aborted; a run that finished with failed or skipped outcomes is
// partial; a clean sweep is success.
func finalStatus(s RunSummary, halted bool) RunStatus {
	if halted {
		return RunStatusAborted
	}
	if s.Failed > 0 || s.Skipped > 0 {
		return RunStatusPartial
	}
	return RunStatusSuccess
}

// blockedBy reports whether an ordering dependency of the step failed or
// was skipped. Dependencies always point at earlier steps, so their state
// is settled by the time the step is considered; skips propagate
// transitively through this check.
func blockedBy(step *Step, plan *Plan, state []StepStatus) (string, bool) {
	for _, dep := range step.DependsOn {
		switch state[dep] {
		case StepStatusFailed:
			return fmt.Sprintf("ordering dependency %s failed", plan.Steps[dep].Ref()), true
		case StepStatusSkipped:
			return fmt.Sprintf("ordering dependency %s was skipped", plan.Steps[dep].Ref()), true
		}
	}
	return "", false
}

// skipStep records a plan step that never ran.
func (e *Executor) skipStep(report *RunReport, state []StepStatus, step *Step, reason string, logger *telemetry.Logger) {
	state[step.Index] = StepStatusSkipped
	outcome := StepOutcome{
		Index:   step.Index,
		Kind:    step.Intent.Kind,
		Target:  step.Intent.Target,
		Backend: step.Backend,
		Status:  StepStatusSkipped,
		Detail:  reason,
	}
	report.Outcomes = append(report.Outcomes, outcome)
	e.recordSkip(logger, report.RunID, outcome)
}

// recordSkip emits the telemetry for one skipped outcome.
func (e *Executor) recordSkip(logger *telemetry.Logger, runID string, outcome StepOutcome) {
	if e.metrics != nil {
		e.metrics.RecordStepExecution(outcome.Kind, string(StepStatusSkipped), outcome.Backend, 0)
	}
	if e.events != nil {
		_ = e.events.PublishStepSkipped(runID, outcome.Index, outcome.Kind, outcome.Target, outcome.Detail)
	}
	if logger != nil {
		logger.WithStep(outcome.Index).WithIntent(outcome.Kind, outcome.Target).
			Warn("step skipped: " + outcome.Detail)
	}
}

// applyStep sends one apply call and records the result. Backend crashes,
// timeouts, and protocol garbage fail the step with the captured
// diagnostic; they never propagate out of the run.
func (e *Executor) applyStep(ctx context.Context, runID string, step *Step, timeout time.Duration, logger *telemetry.Logger) StepOutcome {
	outcome := StepOutcome{
		Index:     step.Index,
		Kind:      step.Intent.Kind,
		Target:    step.Intent.Target,
		Backend:   step.Backend,
		StartedAt: time.Now().UTC(),
	}

	var span trace.Span
	if e.tracer != nil {
		ctx, span = e.tracer.StartStepSpan(ctx, step.Index, outcome.Kind, outcome.Target, step.Backend)
		defer span.End()
	}
	if e.events != nil {
		_ = e.events.PublishStepStarted(runID, step.Index, outcome.Kind, outcome.Target, step.Backend)
	}
	if logger != nil {
		logger.WithStep(step.Index).WithIntent(outcome.Kind, outcome.Target).
			WithBackend(step.Backend, step.BackendVersion).Info("step started")
	}

	resp, err := e.callApply(ctx, step, timeout)

	outcome.CompletedAt = time.Now().UTC()
	outcome.Duration = outcome.CompletedAt.Sub(outcome.StartedAt)

	switch {
	case err != nil:
		outcome.Status = StepStatusFailed
		outcome.Detail = err.Error()
	case resp.Status == protocol.ApplyStatusFailed:
		outcome.Status = StepStatusFailed
		outcome.Detail = resp.Detail
		if outcome.Detail == "" {
			outcome.Detail = "backend reported failure"
		}
	default:
		outcome.Status = StepStatusApplied
		outcome.Detail = resp.Detail
		outcome.Changed = resp.Changed
	}

	if span != nil {
		if outcome.Status == StepStatusApplied {
			telemetry.SetAttributes(span, attribute.Bool("step.changed", outcome.Changed))
			telemetry.RecordSuccess(span)
		} else {
			telemetry.RecordError(span, errors.New(outcome.Detail))
		}
	}
	if e.metrics != nil {
		e.metrics.RecordStepExecution(outcome.Kind, string(outcome.Status), step.Backend, outcome.Duration)
	}
	if e.events != nil {
		if outcome.Status == StepStatusApplied {
			_ = e.events.PublishStepApplied(runID, step.Index, outcome.Kind, outcome.Target, outcome.Changed, outcome.Duration)
		} else {
			_ = e.events.PublishStepFailed(runID, step.Index, outcome.Kind, outcome.Target, outcome.Detail)
		}
	}
	if logger != nil {
		l := logger.WithStep(step.Index).WithIntent(outcome.Kind, outcome.Target)
		if outcome.Status == StepStatusApplied {
			l.Infof("step applied (changed=%t, took %s)", outcome.Changed, outcome.Duration)
		} else {
			l.Error("step failed: " + outcome.Detail)
		}
	}

	return outcome
}

// callApply marshals the resolved parameters and performs the protocol
// call under the per-step timeout.
func (e *Executor) callApply(ctx context.Context, step *Step, timeout time.Duration) (*protocol.ApplyResponse, error) {
	params, err := json.Marshal(step.Parameters)
	if err != nil {
		return nil, NewStepError("encode parameters", err).WithIntent(step.Ref())
	}

	seconds := int(timeout / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	req := protocol.ApplyRequest{
		ID:             uuid.New().String(),
		Kind:           step.Intent.Kind,
		Target:         step.Intent.Target,
		Parameters:     params,
		TimeoutSeconds: seconds,
	}

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := e.applier.Apply(stepCtx, step.Backend, req)
	if err != nil {
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			return nil, NewStepError(fmt.Sprintf("apply timed out after %s", timeout), err).
				WithCode(ErrCodeApplyTimeout).WithBackend(step.Backend)
		}
		return nil, NewStepError("apply call failed", err).
			WithCode(ErrCodeApplyFailed).WithBackend(step.Backend)
	}
	if resp == nil {
		return nil, NewStepError("backend returned no response", nil).
			WithCode(ErrCodeMalformedResponse).WithBackend(step.Backend)
	}
	if err := resp.Validate(); err != nil {
		return nil, NewStepError("backend returned malformed response", err).
			WithCode(ErrCodeMalformedResponse).WithBackend(step.Backend)
	}

	return resp, nil
}
