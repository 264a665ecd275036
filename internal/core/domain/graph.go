// Package domain contains the core domain models for units, packages and builds.
package domain

import (
	"iter"
	"slices"
	"strings"
)

// Graph represents the import graph of build units.
type Graph struct {
	root           string
	units          map[InternedString]Unit
	dependents     map[InternedString][]InternedString
	executionOrder []InternedString
}

// NewGraph creates a new empty Graph.
func NewGraph() *Graph {
	return &Graph{
		units:      make(map[InternedString]Unit),
		dependents: make(map[InternedString][]InternedString),
	}
}

// SetRoot sets the project root the unit paths are relative to.
func (g *Graph) SetRoot(root string) {
	g.root = root
}

// Root returns the project root.
func (g *Graph) Root() string {
	return g.root
}

// AddUnit adds a unit to the graph.
// It returns an error if a unit with the same path already exists.
func (g *Graph) AddUnit(u *Unit) error {
	if _, exists := g.units[u.Path]; exists {
		return WithMeta(ErrUnitAlreadyExists, "unit", u.Path.String())
	}
	g.units[u.Path] = *u
	g.executionOrder = nil
	return nil
}

// GetUnit returns the unit with the given path.
func (g *Graph) GetUnit(path InternedString) (Unit, bool) {
	u, ok := g.units[path]
	return u, ok
}

// UnitCount returns the number of units in the graph.
func (g *Graph) UnitCount() int {
	return len(g.units)
}

// Paths returns every unit path in lexical order.
func (g *Graph) Paths() []InternedString {
	paths := make([]InternedString, 0, len(g.units))
	for p := range g.units {
		paths = append(paths, p)
	}
	slices.SortFunc(paths, InternedString.Compare)
	return paths
}

// Validate checks for missing imports and cycles using a depth-first topological sort.
// It populates the execution order and the reverse edges used by Dependents.
func (g *Graph) Validate() error {
	g.executionOrder = make([]InternedString, 0, len(g.units))
	g.dependents = make(map[InternedString][]InternedString, len(g.units))
	visited := make(map[InternedString]int) // 0: unvisited, 1: visiting, 2: visited
	var path []InternedString

	var visit func(u InternedString) error
	visit = func(u InternedString) error {
		visited[u] = 1
		path = append(path, u)

		unit := g.units[u]
		for _, dep := range unit.Imports {
			if _, ok := g.units[dep]; !ok {
				return WithMeta(ErrMissingDependency, "dependency", dep.String(), "unit", u.String())
			}
			if visited[dep] == 1 {
				return g.buildCycleError(path, dep)
			}
			if visited[dep] == 0 {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		visited[u] = 2
		path = path[:len(path)-1]
		g.executionOrder = append(g.executionOrder, u)
		return nil
	}

	// Sorted iteration keeps the execution order stable across runs.
	for _, name := range g.Paths() {
		if visited[name] == 0 {
			if err := visit(name); err != nil {
				g.executionOrder = nil
				return err
			}
		}
	}

	for _, name := range g.executionOrder {
		for _, dep := range g.units[name].Imports {
			g.dependents[dep] = append(g.dependents[dep], name)
		}
	}

	return nil
}

// buildCycleError constructs an error with cycle path metadata.
func (g *Graph) buildCycleError(path []InternedString, dep InternedString) error {
	startIdx := slices.Index(path, dep)
	parts := make([]string, 0, len(path)-startIdx+1)
	for _, node := range path[startIdx:] {
		parts = append(parts, node.String())
	}
	parts = append(parts, dep.String())
	return WithMeta(ErrCycleDetected, "cycle", strings.Join(parts, " -> "))
}

// Walk returns an iterator that yields units in execution order: every unit
// comes after all the units it imports.
// It assumes Validate() has been called and returned nil.
func (g *Graph) Walk() iter.Seq[Unit] {
	return func(yield func(Unit) bool) {
		for _, name := range g.executionOrder {
			if !yield(g.units[name]) {
				return
			}
		}
	}
}

// Dependents returns the units that directly import the given unit.
// It assumes Validate() has been called and returned nil.
func (g *Graph) Dependents(path InternedString) []InternedString {
	return g.dependents[path]
}

// Affected returns the given paths that exist in the graph plus all of their
// transitive dependents, sorted.
// It assumes Validate() has been called and returned nil.
func (g *Graph) Affected(paths []InternedString) []InternedString {
	seen := make(map[InternedString]bool)
	queue := make([]InternedString, 0, len(paths))
	for _, p := range paths {
		if _, ok := g.units[p]; ok && !seen[p] {
			seen[p] = true
			queue = append(queue, p)
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, dep := range g.dependents[current] {
			if !seen[dep] {
				seen[dep] = true
				queue = append(queue, dep)
			}
		}
	}

	out := make([]InternedString, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	slices.SortFunc(out, InternedString.Compare)
	return out
}

// Closure returns the targets plus every unit they transitively import.
// An empty target list selects the whole graph.
func (g *Graph) Closure(targets []InternedString) (map[InternedString]bool, error) {
	out := make(map[InternedString]bool)
	if len(targets) == 0 {
		for p := range g.units {
			out[p] = true
		}
		return out, nil
	}

	var visit func(p InternedString)
	visit = func(p InternedString) {
		if out[p] {
			return
		}
		out[p] = true
		for _, dep := range g.units[p].Imports {
			visit(dep)
		}
	}

	for _, t := range targets {
		if _, ok := g.units[t]; !ok {
			return nil, WithMeta(ErrUnitNotFound, "unit", t.String())
		}
		visit(t)
	}
	return out, nil
}
