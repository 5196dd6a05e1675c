package engine

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/enactproject/enact/pkg/intent"
	"github.com/enactproject/enact/pkg/protocol"
	"github.com/enactproject/enact/pkg/telemetry"
)

// onFailureParam is the engine directive lifted out of resolved
// parameters; backends never see it.
const onFailureParam = "on_failure"

// Resolver builds execution plans from validated intent sets. It selects
// one backend per intent, rejects conflicting intents, and orders steps
// under the constraints the selected backends declared. Resolution is
// deterministic: the same intent set against the same capability matrix
// produces the same plan.
type Resolver struct {
	// directory is the read-only view of the discovered backends.
	directory Directory

	// logger and metrics instrument resolution; both may be nil.
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
}

// NewResolver creates a resolver over the given backend directory. The
// telemetry aggregate is optional; nil disables instrumentation.
func NewResolver(directory Directory, tel *telemetry.Telemetry) *Resolver {
	r := &Resolver{directory: directory}
	if tel != nil {
		if tel.Logger != nil {
			r.logger = tel.Logger.NewComponentLogger("resolver")
		}
		r.metrics = tel.Metrics
	}
	return r
}

// Resolve builds an execution plan for the intent set.
//
// Intents are processed in document order. Strict resolution fails on the
// first intent no backend can serve; best-effort resolution records such
// intents as skipped and plans the rest. A selection that stays ambiguous
// after hints, fidelity ranking, and the priority order is an error,
// never a guess.
func (r *Resolver) Resolve(set *intent.Set, opts ResolveOptions) (*Plan, error) {
	if set == nil {
		return nil, NewResolutionError("intent set is nil", nil).WithCode(ErrCodeInternal)
	}

	steps, skipped, err := r.selectBackends(set, opts)
	if err != nil {
		r.recordError(err)
		return nil, err
	}

	if err := r.checkConflicts(steps); err != nil {
		r.recordError(err)
		return nil, err
	}

	ordered, err := r.orderSteps(steps)
	if err != nil {
		r.recordError(err)
		return nil, err
	}

	plan := &Plan{
		SchemaVersion: set.SchemaVersion,
		Steps:         ordered,
		Skipped:       skipped,
		CreatedAt:     time.Now().UTC(),
	}

	if r.logger != nil {
		r.logger.WithFields(map[string]interface{}{
			"steps":   len(plan.Steps),
			"skipped": len(plan.Skipped),
		}).Info("plan resolved")
	}

	return plan, nil
}

// selectBackends walks the intents in document order and binds each to a
// backend, producing provisional steps and the best-effort skips.
func (r *Resolver) selectBackends(set *intent.Set, opts ResolveOptions) ([]Step, []PlanSkip, error) {
	steps := make([]Step, 0, set.Len())
	var skipped []PlanSkip

	for _, in := range set.Intents {
		candidates := r.directory.Candidates(in.Kind)
		if len(candidates) == 0 {
			if opts.BestEffort {
				reason := fmt.Sprintf("no available backend declares a capability for kind %q", in.Kind)
				skipped = append(skipped, PlanSkip{Intent: in, Reason: reason})
				if r.logger != nil {
					r.logger.WithIntent(in.Kind, in.Target).Warn("intent skipped: " + reason)
				}
				continue
			}
			return nil, nil, NewUnsatisfiableError(in)
		}

		chosen, err := selectCandidate(in, candidates, opts.Priority)
		if err != nil {
			return nil, nil, err
		}

		params, onFailure, err := resolveParameters(in, chosen.Backend)
		if err != nil {
			return nil, nil, err
		}

		if r.logger != nil {
			r.logger.WithIntent(in.Kind, in.Target).
				WithBackend(chosen.Backend, chosen.Version).
				Debugf("backend selected (fidelity=%s)", chosen.Fidelity)
		}

		steps = append(steps, Step{
			Index:          len(steps),
			Intent:         in,
			Backend:        chosen.Backend,
			BackendVersion: chosen.Version,
			Fidelity:       chosen.Fidelity,
			Parameters:     params,
			OnFailure:      onFailure,
		})
	}

	return steps, skipped, nil
}

// selectCandidate picks one backend for the intent. Each rule narrows the
// pool: backend hints first (a hint naming exactly one available
// candidate decides outright; hints for unavailable backends are
// ignored), then the uniquely highest fidelity, then the configured
// priority order. A pool still holding several candidates after all
// three rules is ambiguous.
func selectCandidate(in intent.Intent, candidates []Candidate, priority []string) (Candidate, error) {
	pool := candidates

	var hinted []Candidate
	for _, c := range pool {
		if in.HintsFor(c.Backend) != nil {
			hinted = append(hinted, c)
		}
	}
	if len(hinted) == 1 {
		return hinted[0], nil
	}
	if len(hinted) > 1 {
		pool = hinted
	}

	best := make([]Candidate, 0, len(pool))
	bestRank := 0
	for _, c := range pool {
		switch rank := c.Fidelity.Rank(); {
		case rank > bestRank:
			bestRank = rank
			best = append(best[:0], c)
		case rank == bestRank:
			best = append(best, c)
		}
	}
	if len(best) == 1 {
		return best[0], nil
	}

	for _, name := range priority {
		for _, c := range best {
			if c.Backend == name {
				return c, nil
			}
		}
	}

	names := make([]string, len(best))
	for i, c := range best {
		names[i] = c.Backend
	}
	return Candidate{}, NewAmbiguousBackendError(in, names)
}

// resolveParameters produces the parameter map sent to the backend: the
// validated parameters overlaid with the hint overrides for the selected
// backend, with the on_failure engine directive lifted out.
func resolveParameters(in intent.Intent, backend string) (map[string]intent.Value, OnFailure, error) {
	params := make(map[string]intent.Value, len(in.Parameters))
	for name, v := range in.Parameters {
		params[name] = v
	}
	for name, v := range in.HintsFor(backend) {
		params[name] = v
	}

	onFailure := OnFailureInherit
	if v, ok := params[onFailureParam]; ok {
		s, _ := v.AsString()
		parsed, err := ParseOnFailure(s)
		if err != nil {
			return nil, "", NewResolutionError("invalid on_failure parameter", err).
				WithIntent(in.Ref())
		}
		onFailure = parsed
		delete(params, onFailureParam)
	}

	return params, onFailure, nil
}

// checkConflicts evaluates the union of the selected backends' conflict
// rules over every step pair. Rules bind same-target intents, match in
// both directions, and see resolved parameter values.
func (r *Resolver) checkConflicts(steps []Step) error {
	rules := r.unionConflictRules(steps)
	if len(rules) == 0 {
		return nil
	}

	for i := 0; i < len(steps); i++ {
		for j := i + 1; j < len(steps); j++ {
			for _, rule := range rules {
				if conflictMatch(steps[i], steps[j], rule) || conflictMatch(steps[j], steps[i], rule) {
					return NewConflictingIntentsError(steps[i].Intent, steps[j].Intent, rule.Reason)
				}
			}
		}
	}

	return nil
}

// unionConflictRules gathers each selected backend's conflict rules once,
// deduplicated. Rules from backends that serve no step never apply.
func (r *Resolver) unionConflictRules(steps []Step) []protocol.ConflictRule {
	var rules []protocol.ConflictRule
	seenBackend := make(map[string]struct{})
	seenRule := make(map[protocol.ConflictRule]struct{})

	for _, s := range steps {
		if _, ok := seenBackend[s.Backend]; ok {
			continue
		}
		seenBackend[s.Backend] = struct{}{}

		br, ok := r.directory.Rules(s.Backend)
		if !ok {
			continue
		}
		for _, rule := range br.Conflicts {
			if _, dup := seenRule[rule]; dup {
				continue
			}
			seenRule[rule] = struct{}{}
			rules = append(rules, rule)
		}
	}

	return rules
}

// conflictMatch reports whether step a fills the rule's A side and step b
// its B side.
func conflictMatch(a, b Step, rule protocol.ConflictRule) bool {
	if a.Intent.Target != b.Intent.Target {
		return false
	}
	if a.Intent.Kind != rule.KindA || b.Intent.Kind != rule.KindB {
		return false
	}
	return paramMatches(a.Parameters, rule.ParamA, rule.EqualsA) &&
		paramMatches(b.Parameters, rule.ParamB, rule.EqualsB)
}

// paramMatches checks one rule side's optional parameter narrowing. An
// empty param matches any intent of the kind.
func paramMatches(params map[string]intent.Value, param, equals string) bool {
	if param == "" {
		return true
	}
	v, ok := params[param]
	if !ok {
		return false
	}
	return valueText(v) == equals
}

// valueText renders a parameter value the way conflict rules spell them:
// bare strings, true/false booleans, decimal integers, constraint source
// text. Lists never match.
func valueText(v intent.Value) string {
	switch v.Type() {
	case intent.TypeString:
		s, _ := v.AsString()
		return s
	case intent.TypeBool:
		b, _ := v.AsBool()
		return strconv.FormatBool(b)
	case intent.TypeInt:
		i, _ := v.AsInt()
		return strconv.FormatInt(i, 10)
	case intent.TypeConstraint:
		s, _ := v.ConstraintText()
		return s
	default:
		return ""
	}
}

// orderSteps applies the union of the selected backends' ordering rules
// and returns the steps in execution order, re-indexed, with dependency
// indices rewritten to final plan positions.
func (r *Resolver) orderSteps(steps []Step) ([]Step, error) {
	rules := r.unionOrderingRules(steps)
	graph := newOrderingGraph(steps, rules)

	if cycle := graph.detectCycle(); cycle != nil {
		return nil, NewOrderingCycleError(cycle)
	}

	order, err := graph.sort()
	if err != nil {
		return nil, err
	}

	finalIndex := make([]int, len(order))
	for newIdx, oldIdx := range order {
		finalIndex[oldIdx] = newIdx
	}

	ordered := make([]Step, len(order))
	for newIdx, oldIdx := range order {
		step := steps[oldIdx]
		step.Index = newIdx
		if deps := graph.dependsOn[oldIdx]; len(deps) > 0 {
			mapped := make([]int, len(deps))
			for k, d := range deps {
				mapped[k] = finalIndex[d]
			}
			sort.Ints(mapped)
			step.DependsOn = mapped
		}
		ordered[newIdx] = step
	}

	return ordered, nil
}

// unionOrderingRules gathers each selected backend's ordering rules once.
// Duplicates collapse when the graph is built.
func (r *Resolver) unionOrderingRules(steps []Step) []protocol.OrderingRule {
	var rules []protocol.OrderingRule
	seen := make(map[string]struct{})

	for _, s := range steps {
		if _, ok := seen[s.Backend]; ok {
			continue
		}
		seen[s.Backend] = struct{}{}

		br, ok := r.directory.Rules(s.Backend)
		if !ok {
			continue
		}
		rules = append(rules, br.Ordering...)
	}

	return rules
}

// recordError counts a failed resolution by error code.
func (r *Resolver) recordError(err error) {
	if r.metrics == nil {
		return
	}
	var e *EngineError
	if errors.As(err, &e) && e.Code != "" {
		r.metrics.RecordResolutionError(strings.ToLower(e.Code))
		return
	}
	r.metrics.RecordResolutionError("internal")
}
