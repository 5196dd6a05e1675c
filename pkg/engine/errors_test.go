package engine

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/enactproject/enact/pkg/intent"
)

func TestEngineError_Error_IncludesContext(t *testing.T) {
	in := intent.Intent{Kind: "package", Target: "nginx"}

	err := NewUnsatisfiableError(in)
	msg := err.Error()

	if !strings.Contains(msg, "[resolution]") {
		t.Errorf("expected class prefix in %q", msg)
	}
	if !strings.Contains(msg, `kind "package"`) {
		t.Errorf("expected kind in %q", msg)
	}
	if !strings.Contains(msg, `intent=package "nginx"`) {
		t.Errorf("expected intent context in %q", msg)
	}
}

func TestEngineError_Error_AppendsCause(t *testing.T) {
	cause := fmt.Errorf("exit status 1")
	err := NewBackendError("handshake failed", cause).WithBackend("apk")

	msg := err.Error()
	if !strings.Contains(msg, "backend=apk") {
		t.Errorf("expected backend context in %q", msg)
	}
	if !strings.HasSuffix(msg, "exit status 1") {
		t.Errorf("expected cause suffix in %q", msg)
	}
}

func TestEngineError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewStepError("apply call failed", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the cause")
	}
}

func TestEngineError_Is_MatchesClassAndCode(t *testing.T) {
	a := NewSchemaInvalidError(errors.New("bad"))
	b := NewSchemaInvalidError(errors.New("other"))

	if !errors.Is(a, b) {
		t.Error("expected same class and code to match")
	}

	c := NewBackendError("x", nil).WithCode(ErrCodeBackendUnavailable)
	if errors.Is(a, c) {
		t.Error("expected different class to not match")
	}
}

func TestEngineError_Classifiers(t *testing.T) {
	in := intent.Intent{Kind: "service", Target: "sshd"}
	other := intent.Intent{Kind: "package", Target: "sshd"}

	tests := []struct {
		name    string
		err     error
		classOK func(error) bool
		codeOK  func(error) bool
	}{
		{"schema", NewSchemaInvalidError(errors.New("bad")), IsSchemaError, nil},
		{"unsatisfiable", NewUnsatisfiableError(in), IsResolutionError, IsUnsatisfiable},
		{"ambiguous", NewAmbiguousBackendError(in, []string{"a", "b"}), IsResolutionError, IsAmbiguousBackend},
		{"conflict", NewConflictingIntentsError(in, other, "mutually exclusive"), IsResolutionError, IsConflictingIntents},
		{"cycle", NewOrderingCycleError([]string{"package", "service", "package"}), IsResolutionError, IsOrderingCycle},
		{"backend", NewBackendError("unreachable", nil), IsBackendError, nil},
		{"step", NewStepError("apply failed", nil), IsStepError, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.classOK(tt.err) {
				t.Errorf("class check failed for %v", tt.err)
			}
			if tt.codeOK != nil && !tt.codeOK(tt.err) {
				t.Errorf("code check failed for %v", tt.err)
			}
		})
	}
}

func TestEngineError_Classifiers_RejectWrapped(t *testing.T) {
	plain := errors.New("plain")
	if IsSchemaError(plain) || IsResolutionError(plain) || IsBackendError(plain) || IsStepError(plain) {
		t.Error("plain errors must not classify")
	}

	// Classification survives wrapping.
	wrapped := fmt.Errorf("resolve: %w", NewUnsatisfiableError(intent.Intent{Kind: "mount", Target: "/data"}))
	if !IsUnsatisfiable(wrapped) {
		t.Error("expected classification through wrapping")
	}
	if IsAmbiguousBackend(wrapped) {
		t.Error("unexpected code match")
	}
}

func TestEngineError_WithBuilders(t *testing.T) {
	err := NewResolutionError("something odd", nil).
		WithCode(ErrCodeInternal).
		WithIntent(`file "/etc/motd"`).
		WithBackend("coreutils").
		WithDetail("phase", "ordering")

	if err.Code != ErrCodeInternal {
		t.Errorf("Code = %q", err.Code)
	}
	if err.Intent != `file "/etc/motd"` {
		t.Errorf("Intent = %q", err.Intent)
	}
	if err.Backend != "coreutils" {
		t.Errorf("Backend = %q", err.Backend)
	}
	if err.Details["phase"] != "ordering" {
		t.Errorf("Details = %v", err.Details)
	}
}

func TestNewAmbiguousBackendError_NamesCandidates(t *testing.T) {
	in := intent.Intent{Kind: "package", Target: "git"}
	err := NewAmbiguousBackendError(in, []string{"apk", "pkgsim"})

	if got := len(err.Candidates); got != 2 {
		t.Fatalf("Candidates count = %d, want 2", got)
	}
	if !strings.Contains(err.Error(), "apk, pkgsim") {
		t.Errorf("expected candidate names in %q", err.Error())
	}
}

func TestNewOrderingCycleError_NamesKinds(t *testing.T) {
	err := NewOrderingCycleError([]string{"repository-source", "package", "repository-source"})

	if !strings.Contains(err.Error(), "repository-source -> package -> repository-source") {
		t.Errorf("expected cycle path in %q", err.Error())
	}
}
