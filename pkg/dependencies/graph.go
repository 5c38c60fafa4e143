package dependencies

import (
	"fmt"

	"github.com/platinummonkey/collab/pkg/collab"
)

// DependencyGraph is an in-memory view of the part of the edge set reached
// by one resolution.
type DependencyGraph struct {
	seeds     []collab.EntityID
	nodes     []collab.EntityID
	index     map[collab.EntityID]int
	edges     []collab.DependencyEdge
	seenEdges map[collab.DependencyEdge]struct{}
	dependsOn map[collab.EntityID][]collab.EntityID // dependent -> dependencies
}

// NewDependencyGraph creates a new dependency graph
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		index:     make(map[collab.EntityID]int),
		seenEdges: make(map[collab.DependencyEdge]struct{}),
		dependsOn: make(map[collab.EntityID][]collab.EntityID),
	}
}

// AddNode adds a node to the graph. Re-adding keeps the first position.
func (g *DependencyGraph) AddNode(id collab.EntityID) {
	if _, ok := g.index[id]; ok {
		return
	}
	g.index[id] = len(g.nodes)
	g.nodes = append(g.nodes, id)
}

// AddEdge adds an edge; duplicates are ignored
func (g *DependencyGraph) AddEdge(edge collab.DependencyEdge) {
	if _, ok := g.seenEdges[edge]; ok {
		return
	}
	g.seenEdges[edge] = struct{}{}
	g.edges = append(g.edges, edge)
	g.dependsOn[edge.Dependent] = append(g.dependsOn[edge.Dependent], edge.Dependency)
}

// Seeds returns the seed ids the graph was built from
func (g *DependencyGraph) Seeds() []collab.EntityID {
	return g.seeds
}

// Nodes returns nodes in discovery order
func (g *DependencyGraph) Nodes() []collab.EntityID {
	return g.nodes
}

// Edges returns edges in traversal order
func (g *DependencyGraph) Edges() []collab.DependencyEdge {
	return g.edges
}

// HasNode reports whether id was reached
func (g *DependencyGraph) HasNode(id collab.EntityID) bool {
	_, ok := g.index[id]
	return ok
}

// DetectCycle returns one dependency cycle as a closed path (first id
// repeated at the end), or nil when the graph is acyclic. A self-loop is
// reported as [A, A].
func (g *DependencyGraph) DetectCycle() []collab.EntityID {
	visited := make(map[collab.EntityID]bool)
	recStack := make(map[collab.EntityID]bool)
	path := make([]collab.EntityID, 0)

	var cycle []collab.EntityID
	var hasCycle func(collab.EntityID) bool
	hasCycle = func(id collab.EntityID) bool {
		visited[id] = true
		recStack[id] = true
		path = append(path, id)

		for _, dep := range g.dependsOn[id] {
			if !visited[dep] {
				if hasCycle(dep) {
					return true
				}
			} else if recStack[dep] {
				for i := len(path) - 1; i >= 0; i-- {
					if path[i] == dep {
						cycle = append(append([]collab.EntityID{}, path[i:]...), dep)
						break
					}
				}
				return true
			}
		}

		recStack[id] = false
		path = path[:len(path)-1]
		return false
	}

	for _, id := range g.nodes {
		if !visited[id] && hasCycle(id) {
			return cycle
		}
	}
	return nil
}

// TopologicalOrder lists every node with dependencies before their
// dependents. Ties follow discovery order. It fails on a cycle.
func (g *DependencyGraph) TopologicalOrder() ([]collab.EntityID, error) {
	visited := make(map[collab.EntityID]bool)
	recStack := make(map[collab.EntityID]bool)
	result := make([]collab.EntityID, 0, len(g.nodes))

	var visit func(collab.EntityID) error
	visit = func(id collab.EntityID) error {
		if recStack[id] {
			return fmt.Errorf("circular dependency detected at %s", id)
		}
		if visited[id] {
			return nil
		}

		visited[id] = true
		recStack[id] = true

		for _, dep := range g.dependsOn[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}

		recStack[id] = false
		result = append(result, id)
		return nil
	}

	for _, id := range g.nodes {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// GraphView is the JSON form of a DependencyGraph
type GraphView struct {
	Seeds                 []collab.EntityID       `json:"seeds"`
	Nodes                 []collab.EntityID       `json:"nodes"`
	Edges                 []collab.DependencyEdge `json:"edges"`
	HasCircularDependency bool                    `json:"has_circular_dependency"`
	CircularPath          []collab.EntityID       `json:"circular_path,omitempty"`
	TopologicalOrder      []collab.EntityID       `json:"topological_order,omitempty"`
}

// View summarises the graph for API responses
func (g *DependencyGraph) View() GraphView {
	view := GraphView{
		Seeds: g.seeds,
		Nodes: g.nodes,
		Edges: g.edges,
	}
	if view.Edges == nil {
		view.Edges = []collab.DependencyEdge{}
	}

	if cycle := g.DetectCycle(); cycle != nil {
		view.HasCircularDependency = true
		view.CircularPath = cycle
	} else if order, err := g.TopologicalOrder(); err == nil {
		view.TopologicalOrder = order
	}
	return view
}
