// Package policy gates execution plans with OPA rego rules.
//
// The gate evaluates a resolved plan before the first step executes. Every
// policy module declares `package enact` and contributes rules to one
// shared deny set; the gate queries data.enact.deny with the plan and its
// run context as input and sorts the entries into blocking violations and
// warnings. A plan with at least one blocking violation is denied and the
// run never starts.
//
// # Input
//
// The evaluation input has two top-level documents:
//
//	input.plan      the execution plan as produced by the resolver:
//	                schema_version, steps (index, intent, backend,
//	                fidelity, parameters, depends_on), skipped
//	input.context   document path, failure mode, best-effort flag,
//	                dry-run flag, evaluation timestamp
//
// # Writing policies
//
// Deny entries are either plain strings or objects:
//
//	package enact
//
//	import rego.v1
//
//	deny contains violation if {
//		some step in input.plan.steps
//		step.parameters.state == "absent"
//		violation := {
//			"policy": "no-removals",
//			"severity": "error",
//			"step": sprintf("%s %q", [step.intent.kind, step.intent.target]),
//			"message": "this host never removes configuration",
//		}
//	}
//
// A bare string denies at severity error. Object entries choose their own
// severity: error and critical block the plan, warning and info surface in
// the result without blocking.
//
// # Builtins and user policies
//
// The builtin baseline policies only warn (advisory-fidelity steps,
// unresolved intents); blocking rules come from the operator's own .rego
// files, loaded from the paths given in configuration or on the command
// line. Modules that declare any package other than enact are rejected at
// load time so a misnamed package cannot silently opt out of the gate.
//
// For long-lived callers the Loader can watch the policy paths with
// fsnotify and swap the user policy set on change; builtins are never
// swapped out.
package policy
