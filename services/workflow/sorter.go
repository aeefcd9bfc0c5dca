package workflow

import (
	"errors"
	"fmt"

	"github.com/dominikbraun/graph"
)

// TopologicalSort orders nodes so that for every connection A->B, A comes
// before B. Every node appears exactly once, including nodes that take part
// in no connection. The order is deterministic: whenever several nodes become
// ready together they are emitted by input position, so an unconstrained node
// can still follow a constrained one (a, b, c with b->a sorts as b, c, a).
// A self-loop (A->A) does not constrain ordering; a real cycle returns an
// error wrapping ErrCycleDetected.
func TopologicalSort(nodes []Node, connections []Connection) ([]Node, error) {
	position := make(map[string]int, len(nodes))
	unique := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if _, dup := position[n.ID]; dup {
			continue
		}
		position[n.ID] = len(unique)
		unique = append(unique, n)
	}

	if len(connections) == 0 {
		return unique, nil
	}

	g := graph.New(graph.StringHash, graph.Directed())
	for _, n := range unique {
		if err := g.AddVertex(n.ID); err != nil {
			return nil, fmt.Errorf("add node %s: %w", n.ID, err)
		}
	}

	for _, c := range connections {
		for _, id := range []string{c.FromNodeID, c.ToNodeID} {
			if _, ok := position[id]; !ok {
				return nil, configError(id, "connection references unknown node")
			}
		}
		if c.FromNodeID == c.ToNodeID {
			continue
		}
		if err := g.AddEdge(c.FromNodeID, c.ToNodeID); err != nil {
			if errors.Is(err, graph.ErrEdgeAlreadyExists) {
				continue
			}
			return nil, fmt.Errorf("add connection %s -> %s: %w", c.FromNodeID, c.ToNodeID, err)
		}
	}

	order, err := graph.StableTopologicalSort(g, func(a, b string) bool {
		return position[a] < position[b]
	})
	if err != nil {
		return nil, &Error{Kind: KindCycleDetected, Message: err.Error(), Err: ErrCycleDetected}
	}

	sorted := make([]Node, 0, len(order))
	for _, id := range order {
		sorted = append(sorted, unique[position[id]])
	}
	return sorted, nil
}
