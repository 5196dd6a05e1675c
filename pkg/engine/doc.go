// Package engine resolves validated intents into an execution plan and
// applies that plan through negotiated backends.
//
// # Overview
//
// enact turns a declarative configuration document into changes on the host
// through a fixed pipeline. This package owns the two middle phases:
//
//  1. Validate - Schema registry checks the document (pkg/schema)
//  2. Discover - Backend registry negotiates capabilities (pkg/backend)
//  3. Resolve  - Select a backend per intent, detect conflicts, order steps (Resolver)
//  4. Gate     - Policy engine admits or rejects the plan (pkg/policy)
//  5. Execute  - Apply steps in plan order, one at a time (Executor)
//  6. Report   - Capture one outcome per step into a RunReport
//
// # Core Domain Types
//
// The package defines the types that represent the execution model:
//
//   - Step: One intent bound to the backend that will apply it
//   - Plan: Ordered steps plus the intents skipped during resolution
//   - PlanSkip: An intent excluded up front in best-effort mode
//   - StepOutcome: The recorded result of one step (applied/skipped/failed)
//   - RunReport: A complete run record, one outcome per step, never partial
//
// # Resolution
//
// The Resolver walks the intent set in document order. For every intent it
// gathers the backends declaring a capability for the intent's kind and
// selects one: an explicit backend hint wins, then a uniquely highest
// fidelity, then the configured priority order. A tie that survives all
// three rules is reported as ambiguous rather than guessed. Conflict rules
// and ordering constraints declared by the selected backends are then
// applied; ordering uses a topological sort whose ties always break toward
// document order, so the same document and the same capability matrix
// produce the same plan.
//
// # Execution
//
// The Executor runs steps strictly in plan order under a per-step timeout.
// A crashing, hanging, or nonsensical backend fails its step; it never
// kills the run. What happens after a failure is the run's failure mode:
//
//   - FailureModeHalt: remaining steps are skipped, the run is aborted
//   - FailureModeContinue: independent steps still run; steps whose
//     ordering dependencies failed or were skipped are skipped themselves
//
// An intent may override the run's mode for its own failure through the
// on_failure parameter. Cancellation is honored between steps: the context
// is checked before each step and remaining steps are recorded skipped.
//
// # Error Classification
//
// Errors are classified by pipeline phase:
//
//   - schema: the document is invalid
//   - resolution: no plan can be built (unsatisfiable, ambiguous, conflicting, cyclic)
//   - backend: a backend could not be reached or spoke garbage
//   - step: a step failed during execution
//
// Use the helper functions to classify and inspect errors:
//
//	if engine.IsResolutionError(err) {
//	    // The document survives validation but cannot be planned.
//	}
//
// # Example Usage
//
// Basic pipeline for applying a document:
//
//	set, warnings, err := registry.Validate(doc)
//	backends, err := backend.Discover(ctx, candidates)
//	resolver := engine.NewResolver(backends, tel)
//	plan, err := resolver.Resolve(set, engine.ResolveOptions{})
//	executor := engine.NewExecutor(backends, tel)
//	report := executor.Execute(ctx, plan, engine.ExecuteOptions{})
//	if report.Status == engine.RunStatusSuccess {
//	    // Every step applied.
//	}
//
// # Ownership
//
// A Plan is transient: it is built for one run and discarded afterwards.
// The RunReport is owned by the Executor while the run is live and is
// immutable once Execute returns. Nothing in this package persists state;
// the history store is a write-only archive layered on top by the caller.
package engine
