package engine

import (
	"context"

	"github.com/enactproject/enact/pkg/protocol"
)

// Candidate pairs an available backend with the fidelity it declared for
// one intent kind.
type Candidate struct {
	// Backend is the backend's self-reported name.
	Backend string `json:"backend"`

	// Version is the backend's self-reported version.
	Version string `json:"version,omitempty"`

	// Fidelity is the declared fidelity for the kind: full, partial, or
	// advisory. Any declared fidelity makes the backend a candidate;
	// selection prefers higher fidelity.
	Fidelity protocol.Fidelity `json:"fidelity"`
}

// BackendRules carries the ordering constraints and conflict rules a
// backend declared in its describe response.
type BackendRules struct {
	// Ordering are kind-level precedence constraints.
	Ordering []protocol.OrderingRule `json:"ordering,omitempty"`

	// Conflicts mark intent pairs as mutually exclusive.
	Conflicts []protocol.ConflictRule `json:"conflicts,omitempty"`
}

// Directory is the Resolver's read-only view of the discovered backends.
// The backend registry implements it; the capability matrix it exposes is
// fixed for the registry's lifetime, so every call is safe for concurrent
// use and returns stable results.
type Directory interface {
	// Candidates returns the available backends declaring a capability for
	// the kind, in discovery order. An empty result means no backend can
	// serve the kind.
	Candidates(kind string) []Candidate

	// Rules returns the ordering and conflict rules the named backend
	// declared. The second result is false when the backend is unknown or
	// was excluded during discovery.
	Rules(backend string) (BackendRules, bool)
}

// Applier is the Executor's door to a backend: it routes one apply call to
// the named backend over its negotiated transport. Implementations must
// honor context cancellation and return rather than panic when the backend
// crashes, hangs, or responds with garbage; the Executor records any
// returned error as a step failure.
type Applier interface {
	// Apply sends the apply call for one resolved step and returns the
	// backend's response.
	Apply(ctx context.Context, backend string, req protocol.ApplyRequest) (*protocol.ApplyResponse, error)
}
