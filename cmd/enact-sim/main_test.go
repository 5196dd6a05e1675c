package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/enactproject/enact/pkg/protocol"
)

func TestFailureListSet(t *testing.T) {
	tests := []struct {
		name        string
		value       string
		expectError bool
	}{
		{name: "kind and target", value: "package/nginx"},
		{name: "wildcard target", value: "service/*"},
		{name: "missing slash", value: "package", expectError: true},
		{name: "empty target", value: "package/", expectError: true},
		{name: "empty kind", value: "/nginx", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l failureList
			err := l.Set(tt.value)
			if (err != nil) != tt.expectError {
				t.Fatalf("Set(%q) error = %v, expectError %v", tt.value, err, tt.expectError)
			}
		})
	}
}

func TestFailureListMatch(t *testing.T) {
	l := failureList{"package/nginx", "service/*"}

	tests := []struct {
		kind   string
		target string
		want   bool
	}{
		{"package", "nginx", true},
		{"package", "curl", false},
		{"service", "nginx", true},
		{"service", "sshd", true},
		{"file", "nginx", false},
	}

	for _, tt := range tests {
		if got := l.match(tt.kind, tt.target); got != tt.want {
			t.Errorf("match(%q, %q) = %v, want %v", tt.kind, tt.target, got, tt.want)
		}
	}
}

func TestStateRecordsRepeatApplies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	state, err := openState(path)
	if err != nil {
		t.Fatalf("openState() error = %v", err)
	}

	params := []byte(`{"state":"present"}`)
	changed, err := state.record("package/nginx", params)
	if err != nil {
		t.Fatalf("record() error = %v", err)
	}
	if !changed {
		t.Error("First apply should report a change")
	}

	changed, err = state.record("package/nginx", params)
	if err != nil {
		t.Fatalf("record() error = %v", err)
	}
	if changed {
		t.Error("Identical re-apply should report no change")
	}

	// Different parameters for the same ref count as a change again.
	changed, err = state.record("package/nginx", []byte(`{"state":"latest"}`))
	if err != nil {
		t.Fatalf("record() error = %v", err)
	}
	if !changed {
		t.Error("Changed parameters should report a change")
	}

	// The file survives a restart: a fresh open sees the fingerprints.
	reopened, err := openState(path)
	if err != nil {
		t.Fatalf("openState() after save error = %v", err)
	}
	changed, err = reopened.record("package/nginx", []byte(`{"state":"latest"}`))
	if err != nil {
		t.Fatalf("record() on reopened state error = %v", err)
	}
	if changed {
		t.Error("Reopened state should remember the last apply")
	}
}

func TestRecordWithoutStateFile(t *testing.T) {
	state, err := openState("")
	if err != nil {
		t.Fatalf("openState() error = %v", err)
	}

	params := []byte(`{"state":"running"}`)
	changed, err := state.record("service/sshd", params)
	if err != nil {
		t.Fatalf("record() error = %v", err)
	}
	if !changed {
		t.Error("First apply should report a change")
	}

	// Memory of the apply lives in the process even with no file backing it.
	changed, err = state.record("service/sshd", params)
	if err != nil {
		t.Fatalf("record() error = %v", err)
	}
	if changed {
		t.Error("Identical re-apply in the same session should report no change")
	}
}

func applyRequest(kind, target, params string) *protocol.ApplyRequest {
	return &protocol.ApplyRequest{
		ID:             "s1",
		Kind:           kind,
		Target:         target,
		Parameters:     json.RawMessage(params),
		TimeoutSeconds: 30,
	}
}

func TestApplyInjectedFailure(t *testing.T) {
	state, _ := openState("")
	s := &server{state: state, failures: failureList{"package/nginx"}}

	resp, err := s.Apply(context.Background(), applyRequest("package", "nginx", `{"state":"present"}`))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if resp.Status != protocol.ApplyStatusFailed {
		t.Errorf("Status = %s, want failed", resp.Status)
	}
	if !strings.Contains(resp.Detail, "package/nginx") {
		t.Errorf("Detail = %q, want it to name the intent", resp.Detail)
	}

	// Other intents keep applying.
	resp, err = s.Apply(context.Background(), applyRequest("package", "curl", `{"state":"present"}`))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if resp.Status != protocol.ApplyStatusApplied || !resp.Changed {
		t.Errorf("Expected applied and changed, got status=%s changed=%v", resp.Status, resp.Changed)
	}
}

func TestDescribeConflictsValidate(t *testing.T) {
	state, _ := openState("")
	s := &server{state: state}

	desc, err := s.Describe()
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	for _, c := range desc.Capabilities {
		if err := c.Validate(); err != nil {
			t.Errorf("Capability %s: %v", c.Kind, err)
		}
	}
	for _, r := range desc.Ordering {
		if err := r.Validate(); err != nil {
			t.Errorf("Ordering %s->%s: %v", r.First, r.Then, err)
		}
	}
	for _, r := range desc.Conflicts {
		if err := r.Validate(); err != nil {
			t.Errorf("Conflict %s/%s: %v", r.KindA, r.KindB, err)
		}
	}
}
