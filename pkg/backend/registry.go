package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/enactproject/enact/pkg/engine"
	"github.com/enactproject/enact/pkg/protocol"
	"github.com/enactproject/enact/pkg/telemetry"
)

// DefaultProbeTimeout bounds the handshake and describe calls of one
// discovery probe together.
const DefaultProbeTimeout = 5 * time.Second

// engineName identifies this engine in handshakes.
const engineName = "enact"

// Spec names one backend candidate and the transport that reaches it.
// The name is the one documents and configuration refer to: backend
// hints, priority order, and reports all use it.
type Spec struct {
	Name      string
	Transport Transport
}

// Exclusion records one candidate that discovery rejected and why.
type Exclusion struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Options tune discovery.
type Options struct {
	// ProbeTimeout bounds each candidate's handshake + describe probe.
	// Zero means DefaultProbeTimeout.
	ProbeTimeout time.Duration

	// EngineVersion is reported to backends during the handshake.
	EngineVersion string

	// Telemetry wires logging, metrics, traces, and events. Nil disables
	// all of them.
	Telemetry *telemetry.Telemetry
}

// Handle is one available backend after discovery: the identity it
// reported, its capability declaration, and the transport that reaches it.
type Handle struct {
	// Name is the configured candidate name.
	Name string
	// ReportedName is what the backend called itself in the handshake.
	ReportedName string
	// Version is the backend's self-reported version.
	Version string
	// ProtocolVersion is the protocol version the backend speaks.
	ProtocolVersion string

	capabilities map[string]protocol.Fidelity
	rules        engine.BackendRules
	transport    Transport
}

// Capabilities lists the backend's declared capabilities sorted by kind.
func (h *Handle) Capabilities() []protocol.Capability {
	caps := make([]protocol.Capability, 0, len(h.capabilities))
	for kind, fid := range h.capabilities {
		caps = append(caps, protocol.Capability{Kind: kind, Fidelity: fid})
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i].Kind < caps[j].Kind })
	return caps
}

// Fidelity reports the backend's fidelity for a kind.
func (h *Handle) Fidelity(kind string) (protocol.Fidelity, bool) {
	fid, ok := h.capabilities[kind]
	return fid, ok
}

// Registry is the discovered backend population: available handles in
// configuration order plus the exclusions. It is read-only after
// discovery and safe for concurrent use. It serves the resolver as
// engine.Directory and the executor as engine.Applier.
type Registry struct {
	handles    map[string]*Handle
	order      []string
	byKind     map[string][]engine.Candidate
	exclusions []Exclusion
	transports []Transport

	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	events  *telemetry.EventPublisher
}

// Discover probes every candidate and assembles the registry. Candidates
// are probed concurrently, each under its own timeout; failures become
// exclusions, never errors. The registry keeps configuration order for
// everything that is order-sensitive downstream, so the same candidate
// list always yields the same resolution behavior.
func Discover(ctx context.Context, specs []Spec, opts Options) *Registry {
	timeout := opts.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	r := &Registry{
		handles: make(map[string]*Handle, len(specs)),
		byKind:  make(map[string][]engine.Candidate),
	}
	if tel := opts.Telemetry; tel != nil {
		if tel.Logger != nil {
			r.logger = tel.Logger.NewComponentLogger("backend")
		}
		r.metrics = tel.Metrics
		r.tracer = tel.Tracer
		r.events = tel.Events
	}

	type result struct {
		handle *Handle
		reason string
		class  string
	}
	results := make([]result, len(specs))

	var wg sync.WaitGroup
	seen := make(map[string]bool, len(specs))
	for i, spec := range specs {
		if spec.Transport != nil {
			r.transports = append(r.transports, spec.Transport)
		}
		switch {
		case spec.Name == "":
			results[i] = result{reason: "candidate has no name", class: "config"}
			continue
		case spec.Transport == nil:
			results[i] = result{reason: "candidate has no transport", class: "config"}
			continue
		case seen[spec.Name]:
			results[i] = result{reason: fmt.Sprintf("duplicate backend name %q", spec.Name), class: "config"}
			continue
		}
		seen[spec.Name] = true

		wg.Add(1)
		go func(i int, spec Spec) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			handle, err := probe(probeCtx, spec, opts.EngineVersion, r.tracer)
			if err != nil {
				reason, class := exclusionReason(err, timeout)
				results[i] = result{reason: reason, class: class}
				return
			}
			results[i] = result{handle: handle}
		}(i, spec)
	}
	wg.Wait()

	for i, spec := range specs {
		res := results[i]
		if res.handle == nil {
			r.exclusions = append(r.exclusions, Exclusion{Name: spec.Name, Reason: res.reason})
			if r.metrics != nil {
				r.metrics.RecordBackendExclusion(res.class)
			}
			if r.events != nil {
				_ = r.events.PublishBackendExcluded(spec.Name, res.reason)
			}
			if r.logger != nil {
				r.logger.WithBackend(spec.Name, "").Warn("backend excluded: " + res.reason)
			}
			continue
		}

		r.order = append(r.order, spec.Name)
		r.handles[spec.Name] = res.handle
		if r.logger != nil {
			r.logger.WithBackend(spec.Name, res.handle.Version).
				Infof("backend available: %d capabilities, protocol %s",
					len(res.handle.capabilities), res.handle.ProtocolVersion)
		}
	}

	for _, name := range r.order {
		h := r.handles[name]
		for kind, fid := range h.capabilities {
			r.byKind[kind] = append(r.byKind[kind], engine.Candidate{
				Backend:  name,
				Version:  h.Version,
				Fidelity: fid,
			})
		}
	}

	if r.metrics != nil {
		r.metrics.SetBackendsAvailable(float64(len(r.order)))
	}
	return r
}

// probe runs one candidate's handshake and describe calls and builds its
// handle.
func probe(ctx context.Context, spec Spec, engineVersion string, tracer *telemetry.Tracer) (*Handle, error) {
	var span trace.Span
	if tracer != nil {
		ctx, span = tracer.StartBackendSpan(ctx, spec.Name, "discover")
		defer span.End()
	}

	sess, err := spec.Transport.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start (%s): %w", spec.Transport, err)
	}
	defer sess.Close()

	var hs protocol.HandshakeResponse
	hsReq := &protocol.HandshakeRequest{
		ProtocolVersion: protocol.Version,
		EngineName:      engineName,
		EngineVersion:   engineVersion,
	}
	if err := call(ctx, sess, protocol.MessageTypeHandshake, hsReq, &hs); err != nil {
		return nil, fmt.Errorf("handshake failed: %w", err)
	}
	if err := hs.Validate(); err != nil {
		return nil, fmt.Errorf("malformed handshake response: %w", err)
	}
	if !protocol.CompatibleVersions(protocol.Version, hs.ProtocolVersion) {
		return nil, fmt.Errorf("protocol version mismatch: engine speaks %s, backend speaks %s",
			protocol.Version, hs.ProtocolVersion)
	}

	var desc protocol.DescribeResponse
	if err := call(ctx, sess, protocol.MessageTypeDescribe, nil, &desc); err != nil {
		return nil, fmt.Errorf("describe failed: %w", err)
	}
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("malformed describe response: %w", err)
	}

	caps := make(map[string]protocol.Fidelity, len(desc.Capabilities))
	for _, c := range desc.Capabilities {
		caps[c.Kind] = c.Fidelity
	}

	return &Handle{
		Name:            spec.Name,
		ReportedName:    hs.BackendName,
		Version:         hs.BackendVersion,
		ProtocolVersion: hs.ProtocolVersion,
		capabilities:    caps,
		rules: engine.BackendRules{
			Ordering:  desc.Ordering,
			Conflicts: desc.Conflicts,
		},
		transport: spec.Transport,
	}, nil
}

// exclusionReason renders a probe failure as an exclusion reason plus a
// low-cardinality class for metrics.
func exclusionReason(err error, timeout time.Duration) (reason, class string) {
	var coded *protocol.ErrorResponse
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("probe timed out after %s", timeout), "timeout"
	case errors.As(err, &coded) && coded.Code == protocol.CodeIncompatible:
		// The backend refused the handshake from its side.
		return err.Error(), "version_mismatch"
	case strings.Contains(err.Error(), "protocol version mismatch"):
		return err.Error(), "version_mismatch"
	case strings.Contains(err.Error(), "malformed"):
		return err.Error(), "malformed_response"
	default:
		return err.Error(), "probe_failed"
	}
}

// call runs one session call under ctx. The session is torn down if ctx
// ends first, which unblocks the pending read.
func call(ctx context.Context, sess *Session, msgType protocol.MessageType, payload, target interface{}) error {
	done := make(chan error, 1)
	go func() { done <- sess.Call(msgType, payload, target) }()

	select {
	case err := <-done:
		if err != nil {
			if diag := sess.Diagnostic(); diag != "" {
				return fmt.Errorf("%w (stderr: %s)", err, diag)
			}
		}
		return err
	case <-ctx.Done():
		_ = sess.Close()
		return ctx.Err()
	}
}

// Candidates implements engine.Directory: every available backend with a
// capability for the kind, in configuration order.
func (r *Registry) Candidates(kind string) []engine.Candidate {
	return r.byKind[kind]
}

// Rules implements engine.Directory.
func (r *Registry) Rules(backend string) (engine.BackendRules, bool) {
	h, ok := r.handles[backend]
	if !ok {
		return engine.BackendRules{}, false
	}
	return h.rules, true
}

// Apply implements engine.Applier: one apply call in a fresh backend
// session, so a crashed backend never poisons the next step.
func (r *Registry) Apply(ctx context.Context, backend string, req protocol.ApplyRequest) (*protocol.ApplyResponse, error) {
	h, ok := r.handles[backend]
	if !ok {
		return nil, engine.NewBackendError(fmt.Sprintf("backend %q is not available", backend), nil).
			WithCode(engine.ErrCodeBackendUnavailable).WithBackend(backend)
	}

	start := time.Now()
	var span trace.Span
	if r.tracer != nil {
		ctx, span = r.tracer.StartBackendSpan(ctx, backend, "apply")
		defer span.End()
	}

	sess, err := h.transport.Open(ctx)
	if err != nil {
		r.recordApplyError(backend, span, err)
		return nil, engine.NewBackendError("backend failed to start", err).WithBackend(backend)
	}
	defer sess.Close()

	var resp protocol.ApplyResponse
	if err := call(ctx, sess, protocol.MessageTypeApply, &req, &resp); err != nil {
		r.recordApplyError(backend, span, err)
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.RecordBackendCall(backend, "apply", time.Since(start))
	}
	if span != nil {
		telemetry.RecordSuccess(span)
	}
	return &resp, nil
}

func (r *Registry) recordApplyError(backend string, span trace.Span, err error) {
	if r.metrics != nil {
		r.metrics.RecordBackendError(backend, "apply")
	}
	if span != nil {
		telemetry.RecordError(span, err)
	}
}

// Backends returns the available handles in configuration order.
func (r *Registry) Backends() []*Handle {
	out := make([]*Handle, len(r.order))
	for i, name := range r.order {
		out[i] = r.handles[name]
	}
	return out
}

// Exclusions returns the candidates discovery rejected, in configuration
// order.
func (r *Registry) Exclusions() []Exclusion {
	return r.exclusions
}

// Kinds returns every kind some available backend can satisfy, sorted.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.byKind))
	for kind := range r.byKind {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Close releases every candidate transport, including excluded ones.
func (r *Registry) Close(ctx context.Context) error {
	var errs []error
	for _, t := range r.transports {
		if err := t.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", t, err))
		}
	}
	return errors.Join(errs...)
}
