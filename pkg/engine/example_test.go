package engine_test

import (
	"context"
	"fmt"

	"github.com/enactproject/enact/pkg/engine"
	"github.com/enactproject/enact/pkg/intent"
	"github.com/enactproject/enact/pkg/protocol"
)

// stubDirectory serves a fixed capability table, standing in for the
// registry a real run discovers over the backend protocol.
type stubDirectory struct{}

func (stubDirectory) Candidates(kind string) []engine.Candidate {
	switch kind {
	case "package":
		return []engine.Candidate{{Backend: "apk", Version: "0.3.0", Fidelity: protocol.FidelityFull}}
	case "service":
		return []engine.Candidate{{Backend: "openrc", Version: "0.2.1", Fidelity: protocol.FidelityFull}}
	}
	return nil
}

func (stubDirectory) Rules(backend string) (engine.BackendRules, bool) {
	if backend != "openrc" {
		return engine.BackendRules{}, false
	}
	return engine.BackendRules{
		Ordering: []protocol.OrderingRule{{First: "package", Then: "service"}},
	}, true
}

// stubApplier acknowledges every request, standing in for a backend
// process on the other end of the wire.
type stubApplier struct{}

func (stubApplier) Apply(_ context.Context, _ string, req protocol.ApplyRequest) (*protocol.ApplyResponse, error) {
	return &protocol.ApplyResponse{ID: req.ID, Status: protocol.ApplyStatusApplied, Changed: true}, nil
}

// Example_resolveAndExecute walks the full pipeline: an intent set is
// resolved into an ordered plan, then the plan is executed and reported.
func Example_resolveAndExecute() {
	// 1. The validated document: a service listed before the package
	// it needs. Ordering rules put them right.
	set := &intent.Set{
		SchemaVersion: "1.2",
		Intents: []intent.Intent{
			{
				Kind:   "service",
				Target: "nginx",
				Parameters: map[string]intent.Value{
					"state": intent.StringValue("running"),
				},
				DocIndex: 0,
			},
			{
				Kind:   "package",
				Target: "nginx",
				Parameters: map[string]intent.Value{
					"state": intent.StringValue("present"),
				},
				DocIndex: 1,
			},
		},
	}

	// 2. Resolve the set against the available backends.
	resolver := engine.NewResolver(stubDirectory{}, nil)
	plan, err := resolver.Resolve(set, engine.ResolveOptions{})
	if err != nil {
		fmt.Println("resolve:", err)
		return
	}
	for _, step := range plan.Steps {
		fmt.Printf("step %d: %s via %s\n", step.Index, step.Ref(), step.Backend)
	}

	// 3. Execute the plan and summarise the run.
	executor := engine.NewExecutor(stubApplier{}, nil)
	report := executor.Execute(context.Background(), plan, engine.ExecuteOptions{})
	s := report.Summary()
	fmt.Printf("run %s: %d applied, %d changed\n", report.Status, s.Applied, s.Changed)

	// Output:
	// step 0: package "nginx" via apk
	// step 1: service "nginx" via openrc
	// run success: 2 applied, 2 changed
}

// Example_bestEffortResolution shows how resolution degrades when a kind
// has no backend: strict mode refuses, best-effort plans around it.
func Example_bestEffortResolution() {
	set := &intent.Set{
		SchemaVersion: "1.2",
		Intents: []intent.Intent{
			{Kind: "kernel", Target: "linux-lts", DocIndex: 0},
			{Kind: "package", Target: "nginx", DocIndex: 1},
		},
	}

	resolver := engine.NewResolver(stubDirectory{}, nil)

	if _, err := resolver.Resolve(set, engine.ResolveOptions{}); engine.IsUnsatisfiable(err) {
		fmt.Println("strict: unsatisfiable")
	}

	plan, err := resolver.Resolve(set, engine.ResolveOptions{BestEffort: true})
	if err != nil {
		fmt.Println("resolve:", err)
		return
	}
	fmt.Printf("best effort: %d planned, %d skipped\n", len(plan.Steps), len(plan.Skipped))

	// Output:
	// strict: unsatisfiable
	// best effort: 1 planned, 1 skipped
}
