package graph

import (
	"github.com/loomery/loom/internal/domain"
)

// Graph holds the dependency view of a workflow: for every node the sources
// of its incoming edges (dependencies) and the targets of its outgoing edges
// (dependents), in declaration order.
type Graph struct {
	order      []string
	nodes      map[string]*domain.WorkflowNode
	deps       map[string][]string
	dependents map[string][]string
	guards     map[string]string
}

// Build constructs the dependency map and verifies structural integrity:
// unique node ids and edges whose endpoints exist. Cycle detection is a
// separate pass so callers can distinguish the two failure classes.
func Build(workflowID string, nodes []domain.WorkflowNode, edges []domain.WorkflowEdge) (*Graph, error) {
	g := &Graph{
		order:      make([]string, 0, len(nodes)),
		nodes:      make(map[string]*domain.WorkflowNode, len(nodes)),
		deps:       make(map[string][]string, len(nodes)),
		dependents: make(map[string][]string, len(nodes)),
		guards:     make(map[string]string),
	}

	for i := range nodes {
		node := &nodes[i]
		if node.ID == "" {
			return nil, domain.NewValidationError(workflowID, "nodes", "node id must not be empty")
		}
		if _, exists := g.nodes[node.ID]; exists {
			return nil, domain.NewValidationError(workflowID, "nodes", "duplicate node id "+node.ID)
		}
		g.nodes[node.ID] = node
		g.order = append(g.order, node.ID)
	}

	for _, edge := range edges {
		if _, ok := g.nodes[edge.Source]; !ok {
			return nil, domain.NewValidationError(workflowID, "edges", "edge "+edge.ID+" references unknown source "+edge.Source)
		}
		if _, ok := g.nodes[edge.Target]; !ok {
			return nil, domain.NewValidationError(workflowID, "edges", "edge "+edge.ID+" references unknown target "+edge.Target)
		}
		g.deps[edge.Target] = append(g.deps[edge.Target], edge.Source)
		g.dependents[edge.Source] = append(g.dependents[edge.Source], edge.Target)
		if edge.Guard != "" {
			g.guards[edge.Source+"->"+edge.Target] = edge.Guard
		}
	}

	return g, nil
}

// DetectCycle runs a depth-first traversal with a recursion stack. Any node
// revisited while still on the stack closes a cycle.
func (g *Graph) DetectCycle(workflowID string) *domain.CycleError {
	visited := make(map[string]bool, len(g.order))
	onStack := make(map[string]bool, len(g.order))
	var stack []string

	var visit func(id string) *domain.CycleError
	visit = func(id string) *domain.CycleError {
		visited[id] = true
		onStack[id] = true
		stack = append(stack, id)

		for _, next := range g.dependents[id] {
			if onStack[next] {
				return &domain.CycleError{
					WorkflowID: workflowID,
					Path:       append(append([]string{}, stack...), next),
				}
			}
			if !visited[next] {
				if ce := visit(next); ce != nil {
					return ce
				}
			}
		}

		onStack[id] = false
		stack = stack[:len(stack)-1]
		return nil
	}

	for _, id := range g.order {
		if !visited[id] {
			if ce := visit(id); ce != nil {
				return ce
			}
		}
	}
	return nil
}

func (g *Graph) Node(id string) *domain.WorkflowNode {
	return g.nodes[id]
}

// Order returns node ids in declaration order.
func (g *Graph) Order() []string {
	return g.order
}

func (g *Graph) Size() int {
	return len(g.order)
}

func (g *Graph) Dependencies(id string) []string {
	return g.deps[id]
}

func (g *Graph) Dependents(id string) []string {
	return g.dependents[id]
}

// Guard returns the guard condition on the source->target edge, if any.
func (g *Graph) Guard(source, target string) (string, bool) {
	guard, ok := g.guards[source+"->"+target]
	return guard, ok
}

// ReadySet returns, in declaration order, every node that has no recorded
// result yet but whose dependencies all do. The declaration-order tie-break
// keeps result ordering reproducible across runs.
func (g *Graph) ReadySet(resolved func(id string) bool) []string {
	var ready []string
	for _, id := range g.order {
		if resolved(id) {
			continue
		}
		ok := true
		for _, dep := range g.deps[id] {
			if !resolved(dep) {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, id)
		}
	}
	return ready
}

// Remaining counts nodes without a recorded result.
func (g *Graph) Remaining(resolved func(id string) bool) int {
	count := 0
	for _, id := range g.order {
		if !resolved(id) {
			count++
		}
	}
	return count
}
