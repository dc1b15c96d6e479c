// Package validation checks and layers stage dependency graphs.
package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrCyclicDependency is returned when a dependency graph cannot be layered.
var ErrCyclicDependency = errors.New("circular dependency")

// Node is one vertex of a dependency graph.
type Node struct {
	ID        string
	DependsOn []string
}

// LayerResult is the outcome of layering a graph.
type LayerResult struct {
	HasCycle  bool
	CyclePath []string
	// Layers groups node IDs so that every node depends only on nodes in
	// earlier layers. Empty when a cycle exists.
	Layers       [][]string
	ErrorMessage string
}

// Order flattens the layers into a topological order.
func (r LayerResult) Order() []string {
	var out []string
	for _, l := range r.Layers {
		out = append(out, l...)
	}
	return out
}

// Layer runs Kahn's algorithm level by level. Nodes within a layer are
// sorted by rank, then by ID, so identical inputs always give identical
// layers. Self-dependencies and references to absent nodes are ignored:
// a stage left out of a plan imposes no ordering.
func Layer(nodes []Node, rank func(id string) int) LayerResult {
	if len(nodes) == 0 {
		return LayerResult{Layers: [][]string{}}
	}
	if rank == nil {
		rank = func(string) int { return 0 }
	}

	inDegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		inDegree[n.ID] = 0
	}
	for _, n := range nodes {
		seen := make(map[string]bool, len(n.DependsOn))
		for _, dep := range n.DependsOn {
			if dep == n.ID || seen[dep] {
				continue
			}
			if _, known := inDegree[dep]; !known {
				continue
			}
			seen[dep] = true
			dependents[dep] = append(dependents[dep], n.ID)
			inDegree[n.ID]++
		}
	}

	sortLayer := func(ids []string) {
		sort.Slice(ids, func(i, j int) bool {
			ri, rj := rank(ids[i]), rank(ids[j])
			if ri != rj {
				return ri < rj
			}
			return ids[i] < ids[j]
		})
	}

	var current []string
	for id, d := range inDegree {
		if d == 0 {
			current = append(current, id)
		}
	}

	var layers [][]string
	processed := 0
	for len(current) > 0 {
		sortLayer(current)
		layers = append(layers, current)
		processed += len(current)

		var next []string
		for _, id := range current {
			for _, dep := range dependents[id] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		current = next
	}

	if processed == len(inDegree) {
		return LayerResult{Layers: layers}
	}

	var stuck []string
	for id, d := range inDegree {
		if d > 0 {
			stuck = append(stuck, id)
		}
	}
	sortLayer(stuck)
	path := findCyclePath(dependents, stuck)
	return LayerResult{
		HasCycle:     true,
		CyclePath:    path,
		ErrorMessage: fmt.Sprintf("circular dependency detected involving: %s", strings.Join(path, " -> ")),
	}
}

// findCyclePath walks edges among the stuck nodes until one repeats.
func findCyclePath(dependents map[string][]string, stuck []string) []string {
	if len(stuck) == 0 {
		return nil
	}
	inCycle := make(map[string]bool, len(stuck))
	for _, id := range stuck {
		inCycle[id] = true
	}

	for _, start := range stuck {
		pos := map[string]int{}
		var path []string
		node := start
		for inCycle[node] {
			if i, ok := pos[node]; ok {
				return append(path[i:], node)
			}
			pos[node] = len(path)
			path = append(path, node)
			next := ""
			for _, d := range dependents[node] {
				if inCycle[d] {
					next = d
					break
				}
			}
			if next == "" {
				break
			}
			node = next
		}
	}
	return stuck
}

// ValidateDependencies returns ErrCyclicDependency when nodes contain a cycle.
func ValidateDependencies(nodes []Node) error {
	res := Layer(nodes, nil)
	if res.HasCycle {
		return fmt.Errorf("%w: %s", ErrCyclicDependency, strings.Join(res.CyclePath, " -> "))
	}
	return nil
}
