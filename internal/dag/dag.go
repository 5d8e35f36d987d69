// SPDX-License-Identifier: MPL-2.0

// Package dag orders formulas for installation. Nodes are formula names and an
// edge A -> B means A must finish installing before B may start. The resolver
// builds one Graph per plan and the engine's scheduler walks Predecessors to
// decide when a formula is ready.
package dag

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCycle is the sentinel wrapped by CycleError.
var ErrCycle = errors.New("dependency cycle")

type (
	// CycleError reports the nodes left unordered because they sit on (or
	// behind) a cycle.
	CycleError struct {
		Cycle []string
	}

	// Graph is a directed graph with deterministic, insertion-ordered output.
	// It is not safe for concurrent mutation.
	Graph struct {
		// successors maps a node to the nodes that wait on it.
		successors map[string][]string
		// predecessors maps a node to the nodes it waits on.
		predecessors map[string][]string
		nodes        []string
		nodeSet      map[string]bool
		edgeSet      map[[2]string]bool
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// Unwrap returns ErrCycle for errors.Is.
func (e *CycleError) Unwrap() error { return ErrCycle }

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		successors:   make(map[string][]string),
		predecessors: make(map[string][]string),
		nodeSet:      make(map[string]bool),
		edgeSet:      make(map[[2]string]bool),
	}
}

// AddNode adds a node. Adding an existing node is a no-op.
func (g *Graph) AddNode(name string) {
	if g.nodeSet[name] {
		return
	}
	g.nodeSet[name] = true
	g.nodes = append(g.nodes, name)
}

// AddEdge records that from must complete before to. Missing nodes are added;
// repeated edges are ignored.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	key := [2]string{from, to}
	if g.edgeSet[key] {
		return
	}
	g.edgeSet[key] = true
	g.successors[from] = append(g.successors[from], to)
	g.predecessors[to] = append(g.predecessors[to], from)
}

// Has reports whether name is a node of the graph.
func (g *Graph) Has(name string) bool { return g.nodeSet[name] }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.nodes...)
}

// Predecessors returns the nodes that must complete before name.
func (g *Graph) Predecessors(name string) []string {
	return append([]string(nil), g.predecessors[name]...)
}

// Successors returns the nodes waiting on name.
func (g *Graph) Successors(name string) []string {
	return append([]string(nil), g.successors[name]...)
}

// TopologicalSort returns an order in which every node follows all of its
// predecessors, using Kahn's algorithm. Nodes that become ready together keep
// insertion order, so the result is deterministic. A cycle yields *CycleError.
func (g *Graph) TopologicalSort() ([]string, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	inDegree := make(map[string]int, len(g.nodes))
	for _, node := range g.nodes {
		inDegree[node] = len(g.predecessors[node])
	}

	queue := make([]string, 0, len(g.nodes))
	for _, node := range g.nodes {
		if inDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, next := range g.successors[node] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(result) != len(g.nodes) {
		var stuck []string
		for _, node := range g.nodes {
			if inDegree[node] > 0 {
				stuck = append(stuck, node)
			}
		}
		return nil, &CycleError{Cycle: stuck}
	}

	return result, nil
}
