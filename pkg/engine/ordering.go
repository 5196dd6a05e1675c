package engine

import (
	"sort"

	"github.com/enactproject/enact/pkg/protocol"
)

// orderingGraph applies backend-declared kind precedence to plan steps.
// Nodes are provisional step indices in document order; an edge i -> j
// means step i must complete before step j. Rules are kind-level, so one
// rule fans out to every step pair of the two kinds.
type orderingGraph struct {
	// steps are the selected steps in document order.
	steps []Step

	// adjacency maps a step index to the indices that must run after it.
	adjacency [][]int

	// dependsOn maps a step index to the indices it waits for.
	dependsOn [][]int

	// inDegree tracks the number of incoming edges for each step.
	inDegree []int

	// kindEdges is the rule graph restricted to kinds present in the
	// plan, kept for cycle reporting at the kind level.
	kindEdges map[string][]string
}

// newOrderingGraph indexes the steps by kind and expands the ordering
// rules into step-level edges. Duplicate rules from different backends
// collapse to one edge set.
func newOrderingGraph(steps []Step, rules []protocol.OrderingRule) *orderingGraph {
	g := &orderingGraph{
		steps:     steps,
		adjacency: make([][]int, len(steps)),
		dependsOn: make([][]int, len(steps)),
		inDegree:  make([]int, len(steps)),
		kindEdges: make(map[string][]string),
	}

	byKind := make(map[string][]int)
	for i := range steps {
		kind := steps[i].Intent.Kind
		byKind[kind] = append(byKind[kind], i)
	}

	seen := make(map[protocol.OrderingRule]struct{}, len(rules))
	for _, rule := range rules {
		if _, dup := seen[rule]; dup {
			continue
		}
		seen[rule] = struct{}{}

		firsts := byKind[rule.First]
		thens := byKind[rule.Then]
		if len(firsts) == 0 || len(thens) == 0 {
			// Rule concerns a kind absent from this plan.
			continue
		}

		g.kindEdges[rule.First] = append(g.kindEdges[rule.First], rule.Then)
		for _, i := range firsts {
			for _, j := range thens {
				if i == j {
					continue
				}
				g.adjacency[i] = append(g.adjacency[i], j)
				g.dependsOn[j] = append(g.dependsOn[j], i)
				g.inDegree[j]++
			}
		}
	}

	return g
}

// detectCycle searches the kind-level constraint graph for a cycle using
// depth-first search. It returns the cycle in walk order with the entry
// kind repeated at the end, e.g. [package service package], or nil when
// the constraints are acyclic.
func (g *orderingGraph) detectCycle() []string {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	kinds := make([]string, 0, len(g.kindEdges))
	for kind := range g.kindEdges {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	for _, kind := range kinds {
		if !visited[kind] {
			if cycle := g.detectCycleFrom(kind, visited, recStack, nil); cycle != nil {
				return cycle
			}
		}
	}

	return nil
}

// detectCycleFrom performs DFS to detect cycles in the kind graph.
func (g *orderingGraph) detectCycleFrom(kind string, visited, recStack map[string]bool, path []string) []string {
	visited[kind] = true
	recStack[kind] = true
	path = append(path, kind)

	for _, next := range g.kindEdges[kind] {
		if !visited[next] {
			if cycle := g.detectCycleFrom(next, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[next] {
			// Found a cycle - slice the path from the re-entered kind.
			start := -1
			for i, k := range path {
				if k == next {
					start = i
					break
				}
			}
			if start >= 0 {
				return append(path[start:], next)
			}
		}
	}

	recStack[kind] = false
	return nil
}

// sort returns the provisional step indices in execution order using
// Kahn's algorithm. Among the ready steps it always picks the lowest
// index, so ties break toward document order and the result is the same
// for the same input every time. Callers must run detectCycle first; an
// incomplete order here means the graph changed underneath us.
func (g *orderingGraph) sort() ([]int, error) {
	inDegree := make([]int, len(g.inDegree))
	copy(inDegree, g.inDegree)

	// The ready list is kept ascending; the initial fill scans ascending
	// and later insertions go through insertSorted.
	ready := make([]int, 0, len(g.steps))
	for i, d := range inDegree {
		if d == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, len(g.steps))
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		order = append(order, i)

		for _, j := range g.adjacency[i] {
			inDegree[j]--
			if inDegree[j] == 0 {
				ready = insertSorted(ready, j)
			}
		}
	}

	if len(order) != len(g.steps) {
		return nil, NewResolutionError("ordering constraints left steps unplaceable", nil).
			WithCode(ErrCodeInternal)
	}

	return order, nil
}

// insertSorted inserts v into the ascending slice s, keeping it sorted.
func insertSorted(s []int, v int) []int {
	at := sort.SearchInts(s, v)
	s = append(s, 0)
	copy(s[at+1:], s[at:])
	s[at] = v
	return s
}
