package engine

import (
	"encoding/json"
	"fmt"
)

// StepStatus represents the recorded result of a single plan step.
type StepStatus string

const (
	// StepStatusApplied indicates the backend reported the intent achieved.
	StepStatusApplied StepStatus = "applied"

	// StepStatusSkipped indicates the step never ran: its run was halted or
	// cancelled, an ordering dependency did not apply, or the intent was
	// excluded during resolution.
	StepStatusSkipped StepStatus = "skipped"

	// StepStatusFailed indicates the backend failed, timed out, crashed, or
	// returned a malformed response.
	StepStatusFailed StepStatus = "failed"
)

// Validate checks if the step status is valid.
func (s StepStatus) Validate() error {
	switch s {
	case StepStatusApplied, StepStatusSkipped, StepStatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid step status: %s", s)
	}
}

// RunStatus represents the overall status of an executed plan.
type RunStatus string

const (
	// RunStatusSuccess indicates every outcome in the run applied.
	RunStatusSuccess RunStatus = "success"

	// RunStatusPartial indicates the run finished but some steps failed or
	// were skipped.
	RunStatusPartial RunStatus = "partial"

	// RunStatusAborted indicates the run stopped early: halted by the
	// failure policy or cancelled between steps.
	RunStatusAborted RunStatus = "aborted"
)

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusSuccess, RunStatusPartial, RunStatusAborted:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// FailureMode selects what the Executor does with the steps remaining
// after a step fails.
type FailureMode string

const (
	// FailureModeHalt skips every remaining step and aborts the run.
	// This is the default.
	FailureModeHalt FailureMode = "halt"

	// FailureModeContinue keeps attempting independent steps. Steps whose
	// ordering dependencies failed or were skipped are skipped, never run
	// out of order.
	FailureModeContinue FailureMode = "continue"
)

// Validate checks if the failure mode is valid.
func (m FailureMode) Validate() error {
	switch m {
	case FailureModeHalt, FailureModeContinue:
		return nil
	default:
		return fmt.Errorf("invalid failure mode: %s", m)
	}
}

// ParseFailureMode converts a configuration string into a FailureMode.
// The empty string selects the default mode, halt.
func ParseFailureMode(s string) (FailureMode, error) {
	if s == "" {
		return FailureModeHalt, nil
	}
	m := FailureMode(s)
	if err := m.Validate(); err != nil {
		return "", err
	}
	return m, nil
}

// OnFailure is an intent's override of the run failure mode, carried by
// the on_failure parameter. It governs only the failure of that step.
type OnFailure string

const (
	// OnFailureInherit defers to the run's failure mode. This is the
	// default and the behavior of documents predating the parameter.
	OnFailureInherit OnFailure = "inherit"

	// OnFailureHalt halts the run when this step fails, regardless of the
	// run's failure mode.
	OnFailureHalt OnFailure = "halt"

	// OnFailureContinue keeps the run going when this step fails,
	// regardless of the run's failure mode.
	OnFailureContinue OnFailure = "continue"
)

// Validate checks if the on-failure override is valid.
func (o OnFailure) Validate() error {
	switch o {
	case OnFailureInherit, OnFailureHalt, OnFailureContinue:
		return nil
	default:
		return fmt.Errorf("invalid on_failure value: %s", o)
	}
}

// ParseOnFailure converts an on_failure parameter value into an OnFailure.
// The empty string selects inherit.
func ParseOnFailure(s string) (OnFailure, error) {
	if s == "" {
		return OnFailureInherit, nil
	}
	o := OnFailure(s)
	if err := o.Validate(); err != nil {
		return "", err
	}
	return o, nil
}

// Resolve merges the override with the run's failure mode and returns the
// mode governing this step's failure.
func (o OnFailure) Resolve(run FailureMode) FailureMode {
	switch o {
	case OnFailureHalt:
		return FailureModeHalt
	case OnFailureContinue:
		return FailureModeContinue
	default:
		return run
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunStatus(str)
	return s.Validate()
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s StepStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *StepStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = StepStatus(str)
	return s.Validate()
}
