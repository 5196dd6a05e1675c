package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/enactproject/enact/pkg/intent"
	"github.com/enactproject/enact/pkg/protocol"
)

// DefaultStepTimeout bounds a single backend apply call when the caller
// does not configure one.
const DefaultStepTimeout = 60 * time.Second

// Step is one unit of work in an execution plan: an intent bound to the
// backend selected to apply it.
type Step struct {
	// Index is the step's position in the plan. Steps execute in index
	// order.
	Index int `json:"index"`

	// Intent is the validated intent this step realizes.
	Intent intent.Intent `json:"intent"`

	// Backend is the name of the backend selected for the intent.
	Backend string `json:"backend"`

	// BackendVersion is the version the backend reported during handshake.
	BackendVersion string `json:"backend_version,omitempty"`

	// Fidelity is the fidelity the backend declared for the intent's kind.
	Fidelity protocol.Fidelity `json:"fidelity"`

	// Parameters are the resolved parameters sent to the backend: schema
	// defaults filled in, backend hints for the selected backend merged,
	// engine directives stripped.
	Parameters map[string]intent.Value `json:"parameters,omitempty"`

	// DependsOn lists the indices of steps that must complete before this
	// one, derived from the ordering constraints of the selected backends.
	// Indices always point at earlier steps. The Executor uses them to
	// skip steps whose dependencies failed or were skipped.
	DependsOn []int `json:"depends_on,omitempty"`

	// OnFailure is the intent's override of the run failure mode, lifted
	// out of the on_failure parameter.
	OnFailure OnFailure `json:"on_failure,omitempty"`
}

// Ref renders the step's intent as `kind "target"` for messages and logs.
func (s Step) Ref() string {
	return s.Intent.Ref()
}

// PlanSkip records an intent excluded during resolution. Only best-effort
// resolution produces skips; strict resolution fails instead.
type PlanSkip struct {
	// Intent is the excluded intent.
	Intent intent.Intent `json:"intent"`

	// Reason explains the exclusion, e.g. no capable backend.
	Reason string `json:"reason"`
}

// Plan is an ordered, conflict-checked execution plan. A plan is built for
// one run and discarded afterwards; it carries no engine state.
type Plan struct {
	// SchemaVersion is the schema version of the source document.
	SchemaVersion string `json:"schema_version"`

	// Steps are the plan's steps in execution order.
	Steps []Step `json:"steps"`

	// Skipped are the intents excluded up front in best-effort mode. They
	// surface in the run report so it accounts for every intent.
	Skipped []PlanSkip `json:"skipped,omitempty"`

	// CreatedAt is when resolution produced the plan.
	CreatedAt time.Time `json:"created_at"`
}

// Empty returns true when the plan has no steps to execute.
func (p *Plan) Empty() bool {
	return len(p.Steps) == 0
}

// ToDOT generates a DOT format representation of the plan for
// visualization. The output can be rendered with Graphviz tools.
func (p *Plan) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph ExecutionPlan {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for _, step := range p.Steps {
		label := fmt.Sprintf("%d: %s\\n%s", step.Index, dotEscape(step.Ref()), step.Backend)
		sb.WriteString(fmt.Sprintf("  \"step%d\" [label=\"%s\", fillcolor=\"%s\", style=\"filled,rounded\"];\n",
			step.Index, label, fidelityColor(step.Fidelity)))
	}

	if len(p.Skipped) > 0 {
		sb.WriteString("\n  subgraph cluster_skipped {\n")
		sb.WriteString("    label=\"Skipped\";\n")
		sb.WriteString("    style=dashed;\n")
		for i, sk := range p.Skipped {
			sb.WriteString(fmt.Sprintf("    \"skip%d\" [label=\"%s\", fillcolor=\"lightgray\", style=\"filled,rounded\"];\n",
				i, dotEscape(sk.Intent.Ref())))
		}
		sb.WriteString("  }\n")
	}

	sb.WriteString("\n")
	for _, step := range p.Steps {
		for _, dep := range step.DependsOn {
			sb.WriteString(fmt.Sprintf("  \"step%d\" -> \"step%d\";\n", dep, step.Index))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// dotEscape escapes double quotes for inclusion in a DOT label.
func dotEscape(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

// fidelityColor returns a color for visualizing capability fidelity.
func fidelityColor(f protocol.Fidelity) string {
	switch f {
	case protocol.FidelityFull:
		return "lightgreen"
	case protocol.FidelityPartial:
		return "lightblue"
	case protocol.FidelityAdvisory:
		return "lightyellow"
	default:
		return "white"
	}
}

// StepOutcome is the recorded result of one plan step or one intent
// skipped during resolution.
type StepOutcome struct {
	// Index is the plan index of the step, or -1 for an intent excluded
	// during resolution.
	Index int `json:"index"`

	// Kind is the intent kind of the step.
	Kind string `json:"kind"`

	// Target is the intent target of the step.
	Target string `json:"target"`

	// Backend is the backend that ran the step. Empty for intents skipped
	// before a backend was selected.
	Backend string `json:"backend,omitempty"`

	// Status is the recorded result.
	Status StepStatus `json:"status"`

	// Detail carries the backend's detail text, the failure diagnostic, or
	// the skip reason.
	Detail string `json:"detail,omitempty"`

	// Changed reports whether the backend changed the host. False when the
	// intent was already achieved.
	Changed bool `json:"changed"`

	// StartedAt is when the step began. Zero for skipped steps.
	StartedAt time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the step finished. Zero for skipped steps.
	CompletedAt time.Time `json:"completed_at,omitempty"`

	// Duration is how long the step ran.
	Duration time.Duration `json:"duration"`
}

// Ref renders the outcome's intent as `kind "target"`.
func (o StepOutcome) Ref() string {
	return fmt.Sprintf("%s %q", o.Kind, o.Target)
}

// RunReport is the complete record of one executed plan: one outcome per
// plan step plus one per intent skipped during resolution, nothing
// omitted. It is appended to step by step during the run and immutable
// once Execute returns.
type RunReport struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id"`

	// Document is the source document path, when the caller supplied one.
	Document string `json:"document,omitempty"`

	// SchemaVersion is the schema version of the source document.
	SchemaVersion string `json:"schema_version,omitempty"`

	// FailureMode is the partial-failure policy the run executed under.
	FailureMode FailureMode `json:"failure_mode"`

	// Status is the overall run status.
	Status RunStatus `json:"status"`

	// Outcomes are the recorded step results in report order: resolution
	// skips first, then plan steps in plan order.
	Outcomes []StepOutcome `json:"outcomes"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run finished.
	CompletedAt time.Time `json:"completed_at"`

	// Duration is the total run time.
	Duration time.Duration `json:"duration"`
}

// RunSummary aggregates outcome counts for display and archiving.
type RunSummary struct {
	// Total is the number of recorded outcomes.
	Total int `json:"total"`

	// Applied is the number of outcomes with status applied.
	Applied int `json:"applied"`

	// Failed is the number of outcomes with status failed.
	Failed int `json:"failed"`

	// Skipped is the number of outcomes with status skipped.
	Skipped int `json:"skipped"`

	// Changed is the number of applied outcomes that changed the host.
	Changed int `json:"changed"`
}

// Summary aggregates the report's outcomes.
func (r *RunReport) Summary() RunSummary {
	summary := RunSummary{Total: len(r.Outcomes)}
	for _, o := range r.Outcomes {
		switch o.Status {
		case StepStatusApplied:
			summary.Applied++
			if o.Changed {
				summary.Changed++
			}
		case StepStatusFailed:
			summary.Failed++
		case StepStatusSkipped:
			summary.Skipped++
		}
	}
	return summary
}

// ResolveOptions control plan resolution.
type ResolveOptions struct {
	// BestEffort records intents with no capable backend as skipped
	// instead of failing resolution.
	BestEffort bool

	// Priority is the configured default-backend priority order. When
	// hints and fidelity leave several candidates, the first listed
	// candidate wins.
	Priority []string
}

// ExecuteOptions control plan execution.
type ExecuteOptions struct {
	// FailureMode is the run's partial-failure policy. Empty selects
	// FailureModeHalt.
	FailureMode FailureMode

	// StepTimeout bounds each backend apply call. Zero selects
	// DefaultStepTimeout.
	StepTimeout time.Duration

	// Document is the source document path recorded in the report.
	Document string
}
