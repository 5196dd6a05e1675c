// Package protocol defines the capability negotiation protocol spoken
// between the engine and its backends: JSON messages, newline-framed,
// over the backend's stdio. A backend answers exactly three requests:
// handshake, describe, and apply.
package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Version is the protocol version the engine speaks. Backends must report
// the same major version during the handshake; the minor may differ.
const Version = "1.0"

// CompatibleVersions reports whether two protocol version strings share a
// major version. Unparsable versions are never compatible.
func CompatibleVersions(a, b string) bool {
	majorA, okA := majorOf(a)
	majorB, okB := majorOf(b)
	return okA && okB && majorA == majorB
}

func majorOf(v string) (int, bool) {
	head, _, found := strings.Cut(v, ".")
	if !found {
		return 0, false
	}
	major, err := strconv.Atoi(head)
	if err != nil || major < 0 {
		return 0, false
	}
	return major, true
}

// MessageType represents the type of message in the protocol.
type MessageType string

const (
	// MessageTypeHandshake is the liveness and version check request.
	MessageTypeHandshake MessageType = "HANDSHAKE"
	// MessageTypeDescribe requests the backend's capability declaration.
	MessageTypeDescribe MessageType = "DESCRIBE"
	// MessageTypeApply requests one intent application.
	MessageTypeApply MessageType = "APPLY"
	// MessageTypeResult carries a successful response payload.
	MessageTypeResult MessageType = "RESULT"
	// MessageTypeError carries a protocol-level failure.
	MessageTypeError MessageType = "ERROR"
)

// Validate checks if the message type is valid.
func (mt MessageType) Validate() error {
	switch mt {
	case MessageTypeHandshake, MessageTypeDescribe, MessageTypeApply,
		MessageTypeResult, MessageTypeError:
		return nil
	default:
		return fmt.Errorf("invalid message type: %s", mt)
	}
}

// Message is the base structure framing every protocol exchange.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Fidelity grades how completely a backend can satisfy an intent kind.
type Fidelity string

const (
	// FidelityFull means the backend satisfies the kind completely.
	FidelityFull Fidelity = "full"
	// FidelityPartial means some parameters may be ignored or approximated.
	FidelityPartial Fidelity = "partial"
	// FidelityAdvisory means the backend cannot change state but can
	// report what would be required.
	FidelityAdvisory Fidelity = "advisory"
)

// Validate checks if the fidelity level is valid.
func (f Fidelity) Validate() error {
	switch f {
	case FidelityFull, FidelityPartial, FidelityAdvisory:
		return nil
	default:
		return fmt.Errorf("invalid fidelity: %s", f)
	}
}

// Rank orders fidelity levels for backend selection: full > partial >
// advisory.
func (f Fidelity) Rank() int {
	switch f {
	case FidelityFull:
		return 3
	case FidelityPartial:
		return 2
	case FidelityAdvisory:
		return 1
	default:
		return 0
	}
}

// Capability declares that a backend can satisfy one intent kind.
type Capability struct {
	Kind     string   `json:"kind"`
	Fidelity Fidelity `json:"fidelity"`
}

// Validate checks if the capability is well-formed.
func (c Capability) Validate() error {
	if c.Kind == "" {
		return fmt.Errorf("capability kind is required")
	}
	return c.Fidelity.Validate()
}

// OrderingRule requires every intent of kind First to run before every
// intent of kind Then within one plan.
type OrderingRule struct {
	First string `json:"first"`
	Then  string `json:"then"`
}

// Validate checks if the ordering rule is well-formed.
func (r OrderingRule) Validate() error {
	if r.First == "" || r.Then == "" {
		return fmt.Errorf("ordering rule requires both kinds")
	}
	if r.First == r.Then {
		return fmt.Errorf("ordering rule cannot order kind %q against itself", r.First)
	}
	return nil
}

// ConflictRule marks two same-target intents as mutually exclusive. The
// optional Param/Equals pairs narrow the match to intents carrying a given
// string parameter value; an empty Param matches any intent of the kind.
// Rules match in both directions.
type ConflictRule struct {
	KindA   string `json:"kind_a"`
	ParamA  string `json:"param_a,omitempty"`
	EqualsA string `json:"equals_a,omitempty"`
	KindB   string `json:"kind_b"`
	ParamB  string `json:"param_b,omitempty"`
	EqualsB string `json:"equals_b,omitempty"`
	Reason  string `json:"reason"`
}

// Validate checks if the conflict rule is well-formed.
func (r ConflictRule) Validate() error {
	if r.KindA == "" || r.KindB == "" {
		return fmt.Errorf("conflict rule requires both kinds")
	}
	if r.Reason == "" {
		return fmt.Errorf("conflict rule requires a reason")
	}
	if (r.ParamA == "") != (r.EqualsA == "") {
		return fmt.Errorf("conflict rule side A must set param and equals together")
	}
	if (r.ParamB == "") != (r.EqualsB == "") {
		return fmt.Errorf("conflict rule side B must set param and equals together")
	}
	return nil
}

// HandshakeRequest opens a session with a backend.
type HandshakeRequest struct {
	ProtocolVersion string `json:"protocol_version"`
	EngineName      string `json:"engine_name"`
	EngineVersion   string `json:"engine_version,omitempty"`
}

// HandshakeResponse identifies the backend and its protocol version.
type HandshakeResponse struct {
	ProtocolVersion string `json:"protocol_version"`
	BackendName     string `json:"backend_name"`
	BackendVersion  string `json:"backend_version,omitempty"`
}

// Validate checks if the handshake response is well-formed.
func (h *HandshakeResponse) Validate() error {
	if h.ProtocolVersion == "" {
		return fmt.Errorf("handshake response protocol_version is required")
	}
	if h.BackendName == "" {
		return fmt.Errorf("handshake response backend_name is required")
	}
	return nil
}

// DescribeResponse is the backend's full capability declaration.
type DescribeResponse struct {
	Capabilities []Capability   `json:"capabilities"`
	Ordering     []OrderingRule `json:"ordering,omitempty"`
	Conflicts    []ConflictRule `json:"conflicts,omitempty"`
}

// Validate checks if the describe response is well-formed. A backend
// declaring no capabilities is useless but not malformed.
func (d *DescribeResponse) Validate() error {
	seen := make(map[string]bool, len(d.Capabilities))
	for _, c := range d.Capabilities {
		if err := c.Validate(); err != nil {
			return err
		}
		if seen[c.Kind] {
			return fmt.Errorf("duplicate capability for kind %q", c.Kind)
		}
		seen[c.Kind] = true
	}
	for _, r := range d.Ordering {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	for _, r := range d.Conflicts {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplyRequest asks the backend to make one intent true.
type ApplyRequest struct {
	ID             string          `json:"id"`
	Kind           string          `json:"kind"`
	Target         string          `json:"target"`
	Parameters     json.RawMessage `json:"parameters"`
	TimeoutSeconds int             `json:"timeout_seconds"`
}

// Validate checks if the apply request is well-formed.
func (a *ApplyRequest) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("apply request ID is required")
	}
	if a.Kind == "" {
		return fmt.Errorf("apply request kind is required")
	}
	if a.Target == "" {
		return fmt.Errorf("apply request target is required")
	}
	if a.TimeoutSeconds <= 0 {
		return fmt.Errorf("apply request timeout must be positive")
	}
	if len(a.Parameters) == 0 {
		return fmt.Errorf("apply request parameters are required")
	}
	return nil
}

// ApplyStatus is the backend's verdict on one apply call.
type ApplyStatus string

const (
	// ApplyStatusApplied means the desired state holds, whether or not
	// anything had to change. Re-applying an already-true intent reports
	// applied with Changed false.
	ApplyStatusApplied ApplyStatus = "applied"
	// ApplyStatusFailed means the desired state could not be reached.
	ApplyStatusFailed ApplyStatus = "failed"
)

// Validate checks if the apply status is valid.
func (s ApplyStatus) Validate() error {
	switch s {
	case ApplyStatusApplied, ApplyStatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid apply status: %s", s)
	}
}

// ApplyResponse reports the outcome of one apply call.
type ApplyResponse struct {
	ID      string      `json:"id"`
	Status  ApplyStatus `json:"status"`
	Detail  string      `json:"detail,omitempty"`
	Changed bool        `json:"changed"`
}

// Validate checks if the apply response is well-formed.
func (a *ApplyResponse) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("apply response ID is required")
	}
	return a.Status.Validate()
}

// ErrorResponse reports a protocol-level failure, such as an unsupported
// request or an undecodable payload. Apply failures use ApplyResponse
// with status failed instead.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("backend error %s: %s", e.Code, e.Message)
}
