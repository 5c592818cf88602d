// Package dependency models the service dependency graph used to decide
// start order. The graph is built fresh from the manifest on every
// orchestration run and is read-only afterwards.
package dependency

import (
	"fmt"
	"sort"
	"strings"
)

// NodeID identifies a node in the graph.
type NodeID string

// Node is a single service in the dependency graph.
type Node struct {
	ID           NodeID
	FriendlyName string
	DependsOn    []NodeID
}

// Graph is a directed dependency graph. Not safe for concurrent
// mutation; orchestration builds it once and only reads it afterwards.
type Graph struct {
	nodes map[NodeID]*Node
	order []NodeID // insertion order, for deterministic iteration
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[NodeID]*Node)}
}

// AddNode adds or replaces a node.
func (g *Graph) AddNode(n Node) {
	if _, exists := g.nodes[n.ID]; !exists {
		g.order = append(g.order, n.ID)
	}
	g.nodes[n.ID] = &n
}

// Get returns the node with the given ID, or nil.
func (g *Graph) Get(id NodeID) *Node {
	return g.nodes[id]
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Dependents returns the IDs of nodes that directly depend on id.
func (g *Graph) Dependents(id NodeID) []NodeID {
	var dependents []NodeID
	for _, nodeID := range g.order {
		for _, dep := range g.nodes[nodeID].DependsOn {
			if dep == id {
				dependents = append(dependents, nodeID)
				break
			}
		}
	}
	return dependents
}

// CycleError reports a dependency cycle found during ordering.
type CycleError struct {
	Nodes []NodeID
}

func (e *CycleError) Error() string {
	names := make([]string, len(e.Nodes))
	for i, id := range e.Nodes {
		names[i] = string(id)
	}
	return fmt.Sprintf("dependency cycle involving: %s", strings.Join(names, ", "))
}

// TopologicalOrder returns every node ID ordered so that each node
// appears after all of its dependencies. Ties are broken by insertion
// order so runs are deterministic. A cyclic graph yields a *CycleError
// and no ordering; callers must reject the graph before starting
// anything.
func (g *Graph) TopologicalOrder() ([]NodeID, error) {
	const (
		unvisited = iota
		visiting
		done
	)

	state := make(map[NodeID]int, len(g.nodes))
	var ordered []NodeID

	var visit func(id NodeID) error
	visit = func(id NodeID) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return &CycleError{Nodes: g.collectCycle()}
		}
		state[id] = visiting
		node := g.nodes[id]
		if node != nil {
			for _, dep := range node.DependsOn {
				if g.nodes[dep] == nil {
					return fmt.Errorf("node %s depends on unknown node %s", id, dep)
				}
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		state[id] = done
		ordered = append(ordered, id)
		return nil
	}

	for _, id := range g.order {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

// collectCycle returns the IDs participating in at least one cycle, for
// error reporting.
func (g *Graph) collectCycle() []NodeID {
	// Repeatedly strip nodes with no unresolved dependencies; whatever
	// remains is part of a cycle.
	remaining := make(map[NodeID]map[NodeID]bool, len(g.nodes))
	for id, node := range g.nodes {
		deps := make(map[NodeID]bool)
		for _, dep := range node.DependsOn {
			if g.nodes[dep] != nil {
				deps[dep] = true
			}
		}
		remaining[id] = deps
	}

	for {
		var removable []NodeID
		for id, deps := range remaining {
			if len(deps) == 0 {
				removable = append(removable, id)
			}
		}
		if len(removable) == 0 {
			break
		}
		for _, id := range removable {
			delete(remaining, id)
			for _, deps := range remaining {
				delete(deps, id)
			}
		}
	}

	cycle := make([]NodeID, 0, len(remaining))
	for id := range remaining {
		cycle = append(cycle, id)
	}
	sort.Slice(cycle, func(i, j int) bool { return cycle[i] < cycle[j] })
	return cycle
}
