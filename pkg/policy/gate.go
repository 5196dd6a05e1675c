package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"

	"github.com/enactproject/enact/pkg/engine"
	"github.com/enactproject/enact/pkg/telemetry"
)

// gateQuery collects the deny set all policy modules contribute to.
const gateQuery = "data.enact.deny"

// gatePackage is the package path every policy module must declare.
const gatePackage = "data.enact"

// Options tune the gate.
type Options struct {
	// Telemetry wires logging, metrics, and events. Nil disables them.
	Telemetry *telemetry.Telemetry
}

// Gate compiles policy modules into one prepared query and evaluates
// plans against it. Builtin policies are always present; user policies
// are swapped wholesale on load and reload. Safe for concurrent use: a
// reload that fails to compile leaves the current policy set serving.
type Gate struct {
	mu       sync.RWMutex
	policies map[string]Policy
	prepared rego.PreparedEvalQuery

	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	events  *telemetry.EventPublisher
}

// NewGate creates a gate with the builtin policies compiled in.
func NewGate(opts Options) (*Gate, error) {
	g := &Gate{policies: make(map[string]Policy)}
	if tel := opts.Telemetry; tel != nil {
		if tel.Logger != nil {
			g.logger = tel.Logger.NewComponentLogger("policy")
		}
		g.metrics = tel.Metrics
		g.events = tel.Events
	}

	for _, p := range Builtins() {
		if err := validateModule(&p); err != nil {
			return nil, fmt.Errorf("builtin policy %s: %w", p.Name, err)
		}
		g.policies[p.Name] = p
	}

	prepared, err := prepare(context.Background(), g.policies)
	if err != nil {
		return nil, err
	}
	g.prepared = prepared
	return g, nil
}

// LoadPaths loads user policy files from the given files or directories
// and swaps them in next to the builtins.
func (g *Gate) LoadPaths(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	policies, err := NewLoader(g.logger).LoadFromPaths(ctx, paths)
	if err != nil {
		return err
	}
	return g.ReplaceUserPolicies(ctx, policies)
}

// ReplaceUserPolicies validates and compiles the given policies and swaps
// them in as the complete user policy set. Builtins are kept. On any
// failure the gate's current set keeps serving.
func (g *Gate) ReplaceUserPolicies(ctx context.Context, policies []Policy) error {
	for i := range policies {
		if err := validateModule(&policies[i]); err != nil {
			return err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	next := make(map[string]Policy, len(g.policies))
	for name, p := range g.policies {
		if p.Builtin() {
			next[name] = p
		}
	}
	for _, p := range policies {
		if existing, ok := next[p.Name]; ok && existing.Builtin() {
			return fmt.Errorf("policy %s from %s collides with a builtin policy", p.Name, p.Source)
		}
		next[p.Name] = p
	}

	prepared, err := prepare(ctx, next)
	if err != nil {
		return err
	}

	g.policies = next
	g.prepared = prepared

	if g.logger != nil {
		g.logger.Infof("policy set replaced: %d user policies active", len(policies))
	}
	return nil
}

// Watch reloads user policies whenever a file under paths changes,
// until ctx is cancelled. A change that fails validation or compilation
// is logged and the previous set keeps serving.
func (g *Gate) Watch(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return NewLoader(g.logger).Watch(ctx, paths, func(policies []Policy) error {
		return g.ReplaceUserPolicies(ctx, policies)
	})
}

// SetEnabled includes or excludes a policy from evaluation and
// recompiles the query.
func (g *Gate) SetEnabled(ctx context.Context, name string, enabled bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.policies[name]
	if !ok {
		return fmt.Errorf("policy not found: %s", name)
	}
	if p.Enabled == enabled {
		return nil
	}

	next := make(map[string]Policy, len(g.policies))
	for n, q := range g.policies {
		next[n] = q
	}
	p.Enabled = enabled
	next[name] = p

	prepared, err := prepare(ctx, next)
	if err != nil {
		return err
	}

	g.policies = next
	g.prepared = prepared

	if g.logger != nil {
		g.logger.Infof("policy %s enabled=%v", name, enabled)
	}
	return nil
}

// Policies lists all policies, builtin and user, sorted by name.
func (g *Gate) Policies() []Policy {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Policy, 0, len(g.policies))
	for _, p := range g.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// EvaluatePlan runs the deny query against the plan and classifies the
// entries. The returned Result reports blocking violations and warnings;
// the caller aborts the run when Result.Denial() is non-nil. A nil pctx
// evaluates with an empty context.
func (g *Gate) EvaluatePlan(ctx context.Context, plan *engine.Plan, pctx *Context) (*Result, error) {
	start := time.Now()

	g.mu.RLock()
	prepared := g.prepared
	names := g.enabledLocked()
	g.mu.RUnlock()

	evalCtx := Context{}
	if pctx != nil {
		evalCtx = *pctx
	}
	if evalCtx.Timestamp.IsZero() {
		evalCtx.Timestamp = start
	}

	rs, err := prepared.Eval(ctx, rego.EvalInput(&Input{Plan: plan, Context: &evalCtx}))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation: %w", err)
	}

	result := &Result{Allowed: true, Policies: names, EvaluatedAt: start}
	for _, res := range rs {
		for _, expr := range res.Expressions {
			entries, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, entry := range entries {
				v := parseViolation(entry)
				if v.Severity.Blocking() {
					result.Allowed = false
					result.Violations = append(result.Violations, v)
				} else {
					result.Warnings = append(result.Warnings, v)
				}
			}
		}
	}
	result.Duration = time.Since(start)

	if result.Allowed {
		if g.logger != nil {
			g.logger.Debugf("plan admitted by %d policies in %s", len(names), result.Duration)
		}
		return result, nil
	}

	for _, v := range result.Violations {
		if g.metrics != nil {
			g.metrics.RecordPolicyDenial(v.Policy)
		}
		if g.events != nil {
			_ = g.events.PublishPolicyDenied(v.Policy, v.Message)
		}
		if g.logger != nil {
			g.logger.Warnf("plan denied: %s", v)
		}
	}
	return result, nil
}

// enabledLocked lists enabled policy names sorted. Callers hold g.mu.
func (g *Gate) enabledLocked() []string {
	names := make([]string, 0, len(g.policies))
	for name, p := range g.policies {
		if p.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// prepare compiles the enabled policies into one prepared deny query.
// Modules are added in name order so compile errors are deterministic.
func prepare(ctx context.Context, policies map[string]Policy) (rego.PreparedEvalQuery, error) {
	names := make([]string, 0, len(policies))
	for name, p := range policies {
		if p.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	opts := make([]func(*rego.Rego), 0, len(names)+1)
	opts = append(opts, rego.Query(gateQuery))
	for _, name := range names {
		opts = append(opts, rego.Module(name+".rego", policies[name].Rego))
	}

	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return rego.PreparedEvalQuery{}, fmt.Errorf("compile policies: %w", err)
	}
	return prepared, nil
}

// validateModule parses the policy source and checks it contributes to
// the enact package. Rejecting other packages at load time keeps a
// misnamed module from silently opting out of the deny query.
func validateModule(p *Policy) error {
	if p.Name == "" {
		return fmt.Errorf("policy from %s has no name", p.Source)
	}
	module, err := ast.ParseModule(p.Name+".rego", p.Rego)
	if err != nil {
		return fmt.Errorf("policy %s: %w", p.Name, err)
	}
	if got := module.Package.Path.String(); got != gatePackage {
		return fmt.Errorf("policy %s declares package %s, want package enact", p.Name, strings.TrimPrefix(got, "data."))
	}
	return nil
}

// parseViolation maps one deny entry to a Violation. Bare strings deny at
// severity error; objects pick their own policy, step, and severity.
func parseViolation(entry interface{}) Violation {
	v := Violation{Policy: "enact", Severity: SeverityError}
	switch val := entry.(type) {
	case string:
		v.Message = val
	case map[string]interface{}:
		if s, ok := val["message"].(string); ok {
			v.Message = s
		}
		if s, ok := val["severity"].(string); ok {
			v.Severity = ParseSeverity(s)
		}
		if s, ok := val["policy"].(string); ok {
			v.Policy = s
		}
		if s, ok := val["step"].(string); ok {
			v.Step = s
		}
	default:
		v.Message = fmt.Sprintf("%v", entry)
	}
	return v
}
