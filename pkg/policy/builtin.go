package policy

// Builtins returns the baseline policies compiled into the engine. They
// only warn: blocking rules are the operator's call, loaded from their
// own policy files.
func Builtins() []Policy {
	return []Policy{
		advisoryFidelityPolicy(),
		unresolvedIntentsPolicy(),
	}
}

// advisoryFidelityPolicy warns for each step a backend will only simulate.
func advisoryFidelityPolicy() Policy {
	return Policy{
		Name:        "advisory-fidelity",
		Description: "Warns when a step runs at advisory fidelity: the selected backend only simulates the kind and the host will not actually converge",
		Source:      SourceBuiltin,
		Enabled:     true,
		Rego: `package enact

import rego.v1

# A backend that declared advisory fidelity reports what it would do
# without doing it. Surface every such step so nobody mistakes the run
# for real enforcement.
deny contains violation if {
	some step in input.plan.steps
	step.fidelity == "advisory"
	violation := {
		"policy": "advisory-fidelity",
		"severity": "warning",
		"step": sprintf("%s %q", [step.intent.kind, step.intent.target]),
		"message": sprintf("step %d runs at advisory fidelity: backend %s only simulates kind %s", [step.index, step.backend, step.intent.kind]),
	}
}`,
	}
}

// unresolvedIntentsPolicy warns when best-effort resolution left intents
// without a backend.
func unresolvedIntentsPolicy() Policy {
	return Policy{
		Name:        "unresolved-intents",
		Description: "Warns when the plan leaves intents unresolved because no capable backend was available",
		Source:      SourceBuiltin,
		Enabled:     true,
		Rego: `package enact

import rego.v1

deny contains violation if {
	skipped := count(input.plan.skipped)
	skipped > 0
	violation := {
		"policy": "unresolved-intents",
		"severity": "warning",
		"message": sprintf("plan leaves %d intent(s) without a backend", [skipped]),
	}
}

deny contains violation if {
	some skip in input.plan.skipped
	violation := {
		"policy": "unresolved-intents",
		"severity": "info",
		"step": sprintf("%s %q", [skip.intent.kind, skip.intent.target]),
		"message": skip.reason,
	}
}`,
	}
}
