package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/enactproject/enact/pkg/engine"
)

// Severity classifies a policy violation.
type Severity string

const (
	// SeverityInfo is for informational findings.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed but do not
	// block the plan.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that deny the plan.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that deny the plan and demand
	// immediate attention.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation at this severity denies the plan.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// ParseSeverity maps a severity string from a deny entry to a Severity.
// Unknown strings parse as error: a rule that misspells its severity still
// blocks rather than silently passing.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return Severity(s)
	default:
		return SeverityError
	}
}

// Policy is one rego module contributing rules to the enact deny set.
type Policy struct {
	// Name identifies the policy in results and logs. For file-loaded
	// policies it is the file name without the .rego suffix.
	Name string `json:"name"`

	// Description is taken from the module's leading comment block.
	Description string `json:"description,omitempty"`

	// Source is the file path the policy was loaded from, or "builtin".
	Source string `json:"source"`

	// Enabled excludes the policy from evaluation when false.
	Enabled bool `json:"enabled"`

	// Rego is the module source. It must declare `package enact`.
	Rego string `json:"rego"`
}

// Builtin reports whether the policy ships with the engine.
func (p Policy) Builtin() bool {
	return p.Source == SourceBuiltin
}

// SourceBuiltin marks policies compiled into the binary.
const SourceBuiltin = "builtin"

// Violation is one entry of the deny set, attributed and classified.
type Violation struct {
	// Policy names the policy that produced the entry, from the entry's
	// "policy" field. Entries without one are attributed to "enact".
	Policy string `json:"policy"`

	// Step is the affected step as `kind "target"`, when the rule named
	// one.
	Step string `json:"step,omitempty"`

	// Message is the human-readable finding.
	Message string `json:"message"`

	// Severity decides whether the entry blocks the plan.
	Severity Severity `json:"severity"`
}

// String renders the violation for error messages and logs.
func (v Violation) String() string {
	if v.Step != "" {
		return fmt.Sprintf("%s: %s [%s]", v.Policy, v.Message, v.Step)
	}
	return fmt.Sprintf("%s: %s", v.Policy, v.Message)
}

// Result is the outcome of gating one plan.
type Result struct {
	// Allowed is false when any blocking violation was found.
	Allowed bool `json:"allowed"`

	// Violations are the blocking entries (severity error or critical).
	Violations []Violation `json:"violations,omitempty"`

	// Warnings are the non-blocking entries (severity warning or info).
	Warnings []Violation `json:"warnings,omitempty"`

	// Policies lists the enabled policies the plan was evaluated against.
	Policies []string `json:"policies"`

	// EvaluatedAt is when the evaluation started.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Denial renders the blocking violations as a single error, or nil when
// the plan is allowed. Callers abort the run on a non-nil denial.
func (r *Result) Denial() error {
	if r.Allowed {
		return nil
	}
	msgs := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		msgs[i] = v.String()
	}
	return fmt.Errorf("plan denied by policy: %s", strings.Join(msgs, "; "))
}

// Input is the document handed to rego evaluation.
type Input struct {
	// Plan is the resolved execution plan under input.plan.
	Plan *engine.Plan `json:"plan"`

	// Context is the run context under input.context.
	Context *Context `json:"context"`
}

// Context carries run information policies can condition on.
type Context struct {
	// Document is the source document path, when the caller supplied one.
	Document string `json:"document,omitempty"`

	// FailureMode is the partial-failure policy the run will execute
	// under.
	FailureMode engine.FailureMode `json:"failure_mode,omitempty"`

	// BestEffort reports whether the plan was resolved best-effort.
	BestEffort bool `json:"best_effort"`

	// DryRun is true when the plan is being previewed, not executed.
	DryRun bool `json:"dry_run"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`
}
