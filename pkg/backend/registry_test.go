package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/enactproject/enact/pkg/engine"
	"github.com/enactproject/enact/pkg/protocol"
)

// pipeTransport serves a scripted backend in-process over io.Pipe, one
// serve goroutine per session.
type pipeTransport struct {
	desc   string
	serve  func(dec *protocol.Decoder, enc *protocol.Encoder)
	opens  int
	closed bool
}

func (t *pipeTransport) Open(ctx context.Context) (*Session, error) {
	t.opens++
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	go func() {
		t.serve(protocol.NewDecoder(inR), protocol.NewEncoder(outW))
		_ = outW.Close()
		_ = inR.Close()
	}()

	stop := func() error {
		_ = inW.Close()
		_ = outR.Close()
		return nil
	}
	return NewSession(inW, outR, stop, nil), nil
}

func (t *pipeTransport) Close(ctx context.Context) error {
	t.closed = true
	return nil
}

func (t *pipeTransport) String() string { return t.desc }

// healthyBackend serves the three protocol calls with canned answers.
func healthyBackend(name, version, protoVersion string, desc protocol.DescribeResponse,
	apply func(protocol.ApplyRequest) *protocol.ApplyResponse) func(*protocol.Decoder, *protocol.Encoder) {
	return func(dec *protocol.Decoder, enc *protocol.Encoder) {
		for {
			msg, err := dec.Decode()
			if err != nil {
				return
			}
			switch msg.Type {
			case protocol.MessageTypeHandshake:
				_ = enc.EncodeResult(&protocol.HandshakeResponse{
					ProtocolVersion: protoVersion,
					BackendName:     name,
					BackendVersion:  version,
				})
			case protocol.MessageTypeDescribe:
				_ = enc.EncodeResult(&desc)
			case protocol.MessageTypeApply:
				var req protocol.ApplyRequest
				if err := protocol.ParseData(msg.Data, &req); err != nil {
					_ = enc.EncodeError("BAD_REQUEST", err.Error())
					continue
				}
				if apply == nil {
					_ = enc.EncodeResult(&protocol.ApplyResponse{
						ID: req.ID, Status: protocol.ApplyStatusApplied, Changed: true,
					})
					continue
				}
				_ = enc.EncodeResult(apply(req))
			default:
				_ = enc.EncodeError("UNSUPPORTED", string(msg.Type))
			}
		}
	}
}

func pkgServiceDescribe() protocol.DescribeResponse {
	return protocol.DescribeResponse{
		Capabilities: []protocol.Capability{
			{Kind: "package", Fidelity: protocol.FidelityFull},
			{Kind: "service", Fidelity: protocol.FidelityPartial},
		},
		Ordering: []protocol.OrderingRule{{First: "package", Then: "service"}},
	}
}

func validApply(kind, target string) protocol.ApplyRequest {
	return protocol.ApplyRequest{
		ID:             "req-1",
		Kind:           kind,
		Target:         target,
		Parameters:     []byte(`{"state":"present"}`),
		TimeoutSeconds: 30,
	}
}

func TestDiscover_BuildsRegistryFromHealthyBackend(t *testing.T) {
	tr := &pipeTransport{
		desc:  "test sim",
		serve: healthyBackend("sim", "0.3.0", protocol.Version, pkgServiceDescribe(), nil),
	}

	reg := Discover(context.Background(), []Spec{{Name: "sim", Transport: tr}}, Options{})

	if len(reg.Exclusions()) != 0 {
		t.Fatalf("exclusions = %v", reg.Exclusions())
	}
	handles := reg.Backends()
	if len(handles) != 1 {
		t.Fatalf("backends = %d, want 1", len(handles))
	}
	h := handles[0]
	if h.Name != "sim" || h.ReportedName != "sim" || h.Version != "0.3.0" {
		t.Errorf("handle = %+v", h)
	}
	if fid, ok := h.Fidelity("package"); !ok || fid != protocol.FidelityFull {
		t.Errorf("package fidelity = %s, %t", fid, ok)
	}

	cands := reg.Candidates("package")
	if len(cands) != 1 || cands[0].Backend != "sim" || cands[0].Fidelity != protocol.FidelityFull {
		t.Errorf("candidates = %v", cands)
	}
	rules, ok := reg.Rules("sim")
	if !ok || len(rules.Ordering) != 1 {
		t.Errorf("rules = %+v, %t", rules, ok)
	}
	if got := reg.Kinds(); len(got) != 2 || got[0] != "package" || got[1] != "service" {
		t.Errorf("kinds = %v", got)
	}
}

func TestDiscover_ExcludesProtocolMismatch(t *testing.T) {
	tr := &pipeTransport{
		desc:  "old backend",
		serve: healthyBackend("old", "1.0.0", "2.0", pkgServiceDescribe(), nil),
	}

	reg := Discover(context.Background(), []Spec{{Name: "old", Transport: tr}}, Options{})

	if len(reg.Backends()) != 0 {
		t.Fatal("mismatched backend must not be available")
	}
	excl := reg.Exclusions()
	if len(excl) != 1 {
		t.Fatalf("exclusions = %d, want 1", len(excl))
	}
	if excl[0].Name != "old" || !strings.Contains(excl[0].Reason, "protocol version mismatch") {
		t.Errorf("exclusion = %+v", excl[0])
	}
}

func TestDiscover_ExcludesCrashedBackend(t *testing.T) {
	tr := &pipeTransport{
		desc:  "crasher",
		serve: func(dec *protocol.Decoder, enc *protocol.Encoder) {}, // exits immediately
	}

	reg := Discover(context.Background(), []Spec{{Name: "crash", Transport: tr}}, Options{})

	excl := reg.Exclusions()
	if len(excl) != 1 {
		t.Fatalf("exclusions = %d, want 1", len(excl))
	}
	if !strings.Contains(excl[0].Reason, "handshake failed") {
		t.Errorf("reason = %q", excl[0].Reason)
	}
}

func TestDiscover_ExcludesSilentBackendOnTimeout(t *testing.T) {
	tr := &pipeTransport{
		desc: "silent",
		serve: func(dec *protocol.Decoder, enc *protocol.Encoder) {
			for {
				if _, err := dec.Decode(); err != nil {
					return
				}
			}
		},
	}

	reg := Discover(context.Background(), []Spec{{Name: "mute", Transport: tr}},
		Options{ProbeTimeout: 30 * time.Millisecond})

	excl := reg.Exclusions()
	if len(excl) != 1 {
		t.Fatalf("exclusions = %d, want 1", len(excl))
	}
	if !strings.Contains(excl[0].Reason, "timed out") {
		t.Errorf("reason = %q", excl[0].Reason)
	}
}

func TestDiscover_ExcludesMalformedDescribe(t *testing.T) {
	bad := protocol.DescribeResponse{
		Capabilities: []protocol.Capability{{Kind: "", Fidelity: protocol.FidelityFull}},
	}
	tr := &pipeTransport{
		desc:  "malformed",
		serve: healthyBackend("bad", "0.1.0", protocol.Version, bad, nil),
	}

	reg := Discover(context.Background(), []Spec{{Name: "bad", Transport: tr}}, Options{})

	excl := reg.Exclusions()
	if len(excl) != 1 {
		t.Fatalf("exclusions = %d, want 1", len(excl))
	}
	if !strings.Contains(excl[0].Reason, "malformed describe response") {
		t.Errorf("reason = %q", excl[0].Reason)
	}
}

func TestExclusionReason_Classes(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantClass string
	}{
		{
			name:      "deadline",
			err:       fmt.Errorf("handshake failed: %w", context.DeadlineExceeded),
			wantClass: "timeout",
		},
		{
			name: "backend refused the handshake",
			err: fmt.Errorf("handshake failed: %w", &protocol.ErrorResponse{
				Code:    protocol.CodeIncompatible,
				Message: "engine speaks protocol 2.0, this backend speaks 1.0",
			}),
			wantClass: "version_mismatch",
		},
		{
			name:      "engine rejected the reported version",
			err:       errors.New("protocol version mismatch: engine speaks 1.0, backend speaks 2.0"),
			wantClass: "version_mismatch",
		},
		{
			name:      "malformed response",
			err:       errors.New("malformed describe response: capability kind is required"),
			wantClass: "malformed_response",
		},
		{
			name:      "anything else",
			err:       errors.New("handshake failed: EOF"),
			wantClass: "probe_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, class := exclusionReason(tt.err, time.Second)
			if class != tt.wantClass {
				t.Errorf("class = %q, want %q", class, tt.wantClass)
			}
			if reason == "" {
				t.Error("reason must not be empty")
			}
		})
	}
}

func TestDiscover_ExclusionNeverFatal(t *testing.T) {
	good := &pipeTransport{
		desc:  "good",
		serve: healthyBackend("good", "1.0.0", protocol.Version, pkgServiceDescribe(), nil),
	}
	crash := &pipeTransport{
		desc:  "crasher",
		serve: func(dec *protocol.Decoder, enc *protocol.Encoder) {},
	}

	reg := Discover(context.Background(), []Spec{
		{Name: "crash", Transport: crash},
		{Name: "good", Transport: good},
	}, Options{})

	if len(reg.Backends()) != 1 || reg.Backends()[0].Name != "good" {
		t.Errorf("backends = %v", reg.Backends())
	}
	if len(reg.Exclusions()) != 1 {
		t.Errorf("exclusions = %v", reg.Exclusions())
	}
}

func TestDiscover_DuplicateNameExcluded(t *testing.T) {
	first := &pipeTransport{
		desc:  "first",
		serve: healthyBackend("sim", "1.0.0", protocol.Version, pkgServiceDescribe(), nil),
	}
	second := &pipeTransport{
		desc:  "second",
		serve: healthyBackend("sim", "2.0.0", protocol.Version, pkgServiceDescribe(), nil),
	}

	reg := Discover(context.Background(), []Spec{
		{Name: "sim", Transport: first},
		{Name: "sim", Transport: second},
	}, Options{})

	if len(reg.Backends()) != 1 {
		t.Fatalf("backends = %d, want 1", len(reg.Backends()))
	}
	if got := reg.Backends()[0].Version; got != "1.0.0" {
		t.Errorf("kept version = %s, want the first listed", got)
	}
	excl := reg.Exclusions()
	if len(excl) != 1 || !strings.Contains(excl[0].Reason, "duplicate") {
		t.Errorf("exclusions = %v", excl)
	}
}

func TestRegistry_CandidatesKeepConfigurationOrder(t *testing.T) {
	apk := &pipeTransport{
		desc:  "apk",
		serve: healthyBackend("apk", "0.3.0", protocol.Version, pkgServiceDescribe(), nil),
	}
	sim := &pipeTransport{
		desc:  "sim",
		serve: healthyBackend("sim", "0.1.0", protocol.Version, pkgServiceDescribe(), nil),
	}

	reg := Discover(context.Background(), []Spec{
		{Name: "apk", Transport: apk},
		{Name: "sim", Transport: sim},
	}, Options{})

	cands := reg.Candidates("package")
	if len(cands) != 2 || cands[0].Backend != "apk" || cands[1].Backend != "sim" {
		t.Errorf("candidates = %v", cands)
	}
}

func TestRegistry_ApplyRoundTrip(t *testing.T) {
	var got protocol.ApplyRequest
	tr := &pipeTransport{
		desc: "sim",
		serve: healthyBackend("sim", "0.1.0", protocol.Version, pkgServiceDescribe(),
			func(req protocol.ApplyRequest) *protocol.ApplyResponse {
				got = req
				return &protocol.ApplyResponse{ID: req.ID, Status: protocol.ApplyStatusApplied, Changed: true}
			}),
	}

	reg := Discover(context.Background(), []Spec{{Name: "sim", Transport: tr}}, Options{})

	resp, err := reg.Apply(context.Background(), "sim", validApply("package", "nginx"))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if resp.Status != protocol.ApplyStatusApplied || !resp.Changed {
		t.Errorf("response = %+v", resp)
	}
	if got.Kind != "package" || got.Target != "nginx" || got.TimeoutSeconds != 30 {
		t.Errorf("backend saw %+v", got)
	}
	// Discovery and the apply call each ran their own session.
	if tr.opens != 2 {
		t.Errorf("sessions opened = %d, want 2", tr.opens)
	}
}

func TestRegistry_ApplyUnknownBackend(t *testing.T) {
	reg := Discover(context.Background(), nil, Options{})

	_, err := reg.Apply(context.Background(), "ghost", validApply("package", "nginx"))
	if !engine.IsBackendError(err) {
		t.Fatalf("err = %v, want backend error", err)
	}
	if !strings.Contains(err.Error(), `"ghost"`) {
		t.Errorf("error = %q", err)
	}
}

func TestRegistry_ApplySurfacesProtocolError(t *testing.T) {
	tr := &pipeTransport{
		desc: "grumpy",
		serve: func(dec *protocol.Decoder, enc *protocol.Encoder) {
			for {
				msg, err := dec.Decode()
				if err != nil {
					return
				}
				switch msg.Type {
				case protocol.MessageTypeHandshake:
					_ = enc.EncodeResult(&protocol.HandshakeResponse{
						ProtocolVersion: protocol.Version, BackendName: "grumpy",
					})
				case protocol.MessageTypeDescribe:
					_ = enc.EncodeResult(&protocol.DescribeResponse{
						Capabilities: []protocol.Capability{{Kind: "package", Fidelity: protocol.FidelityFull}},
					})
				case protocol.MessageTypeApply:
					_ = enc.EncodeError("UNSUPPORTED_KIND", "cannot apply that here")
				}
			}
		},
	}

	reg := Discover(context.Background(), []Spec{{Name: "grumpy", Transport: tr}}, Options{})

	_, err := reg.Apply(context.Background(), "grumpy", validApply("package", "nginx"))
	if err == nil {
		t.Fatal("expected error")
	}
	var errResp *protocol.ErrorResponse
	if !errors.As(err, &errResp) {
		t.Fatalf("err = %v, want wrapped ErrorResponse", err)
	}
	if errResp.Code != "UNSUPPORTED_KIND" {
		t.Errorf("code = %s", errResp.Code)
	}
}

func TestRegistry_CloseReleasesAllTransports(t *testing.T) {
	good := &pipeTransport{
		desc:  "good",
		serve: healthyBackend("good", "1.0.0", protocol.Version, pkgServiceDescribe(), nil),
	}
	crash := &pipeTransport{
		desc:  "crasher",
		serve: func(dec *protocol.Decoder, enc *protocol.Encoder) {},
	}

	reg := Discover(context.Background(), []Spec{
		{Name: "good", Transport: good},
		{Name: "crash", Transport: crash},
	}, Options{})

	if err := reg.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !good.closed || !crash.closed {
		t.Errorf("closed = %t, %t; want both", good.closed, crash.closed)
	}
}
