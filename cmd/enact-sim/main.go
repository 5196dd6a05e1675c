// Package main implements enact-sim, a simulator backend for exercising
// the engine end to end without touching the host. It speaks the
// negotiation protocol on stdio: handshake, describe, and apply, one
// newline-framed JSON message each way, and exits when stdin closes.
// Applies update nothing but the simulator's own state file (when one is
// configured), so plans resolved onto it are safe to run anywhere. Flags
// inject failures and latency for demonstrating failure policy and step
// timeouts.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/enactproject/enact/pkg/protocol"
)

const (
	backendName    = "sim"
	backendVersion = "0.3.0"
)

// capabilities covers every shipped intent kind. Mount handling is
// approximated and kernels are only reported on, graded down so
// fidelity-based selection prefers a real backend when one is available.
var capabilities = []protocol.Capability{
	{Kind: "package", Fidelity: protocol.FidelityFull},
	{Kind: "repository-source", Fidelity: protocol.FidelityFull},
	{Kind: "service", Fidelity: protocol.FidelityFull},
	{Kind: "file", Fidelity: protocol.FidelityFull},
	{Kind: "user", Fidelity: protocol.FidelityFull},
	{Kind: "group", Fidelity: protocol.FidelityFull},
	{Kind: "mount", Fidelity: protocol.FidelityPartial},
	{Kind: "kernel", Fidelity: protocol.FidelityAdvisory},
}

// ordering mirrors how a real host sequences this work: repositories
// before installs, packages and owners before the files they back,
// configuration and mounts before the services that need them.
var ordering = []protocol.OrderingRule{
	{First: "repository-source", Then: "package"},
	{First: "group", Then: "user"},
	{First: "user", Then: "file"},
	{First: "package", Then: "file"},
	{First: "file", Then: "service"},
	{First: "mount", Then: "service"},
}

var conflicts = []protocol.ConflictRule{
	{
		KindA: "service", ParamA: "state", EqualsA: "running",
		KindB: "package", ParamB: "state", EqualsB: "absent",
		Reason: "a service cannot run from a package that is absent",
	},
	{
		KindA: "user", ParamA: "state", EqualsA: "present",
		KindB: "group", ParamB: "state", EqualsB: "absent",
		Reason: "a user cannot keep a primary group that is absent",
	},
}

// failureList holds kind/target patterns whose applies should fail. A
// target of * fails every intent of the kind.
type failureList []string

func (l *failureList) String() string { return strings.Join(*l, ",") }

func (l *failureList) Set(v string) error {
	kind, target, ok := strings.Cut(v, "/")
	if !ok || kind == "" || target == "" {
		return fmt.Errorf("expected kind/target, got %q", v)
	}
	*l = append(*l, v)
	return nil
}

func (l failureList) match(kind, target string) bool {
	for _, pat := range l {
		pk, pt, _ := strings.Cut(pat, "/")
		if pk == kind && (pt == "*" || pt == target) {
			return true
		}
	}
	return false
}

type server struct {
	state    *simState
	failures failureList
	latency  time.Duration
}

func main() {
	var failures failureList
	statePath := flag.String("state", "", "file recording applied intents, so re-applies report unchanged")
	latency := flag.Duration("latency", 0, "artificial delay before each apply response")
	flag.Var(&failures, "fail", "kind/target whose apply fails (repeatable; target may be *)")
	flag.Parse()

	state, err := openState(*statePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "enact-sim: %v\n", err)
		os.Exit(1)
	}

	s := &server{state: state, failures: failures, latency: *latency}
	if err := protocol.Serve(context.Background(), os.Stdin, os.Stdout, s); err != nil {
		fmt.Fprintf(os.Stderr, "enact-sim: %v\n", err)
		os.Exit(1)
	}
}

func (s *server) Handshake(req *protocol.HandshakeRequest) (*protocol.HandshakeResponse, error) {
	return &protocol.HandshakeResponse{
		ProtocolVersion: protocol.Version,
		BackendName:     backendName,
		BackendVersion:  backendVersion,
	}, nil
}

func (s *server) Describe() (*protocol.DescribeResponse, error) {
	return &protocol.DescribeResponse{
		Capabilities: capabilities,
		Ordering:     ordering,
		Conflicts:    conflicts,
	}, nil
}

func (s *server) Apply(ctx context.Context, req *protocol.ApplyRequest) (*protocol.ApplyResponse, error) {
	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-ctx.Done():
			return &protocol.ApplyResponse{
				ID:     req.ID,
				Status: protocol.ApplyStatusFailed,
				Detail: "apply timed out in backend",
			}, nil
		}
	}

	ref := req.Kind + "/" + req.Target
	if s.failures.match(req.Kind, req.Target) {
		return &protocol.ApplyResponse{
			ID:     req.ID,
			Status: protocol.ApplyStatusFailed,
			Detail: "injected failure for " + ref,
		}, nil
	}

	changed, err := s.state.record(ref, req.Parameters)
	if err != nil {
		return &protocol.ApplyResponse{
			ID:     req.ID,
			Status: protocol.ApplyStatusFailed,
			Detail: err.Error(),
		}, nil
	}

	detail := "simulated " + ref
	if !changed {
		detail = ref + " already satisfied"
	}
	return &protocol.ApplyResponse{
		ID:      req.ID,
		Status:  protocol.ApplyStatusApplied,
		Changed: changed,
		Detail:  detail,
	}, nil
}
