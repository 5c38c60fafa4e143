package dependencies

import "github.com/platinummonkey/collab/pkg/collab"

// CytoscapeNode represents a node in Cytoscape.js format
type CytoscapeNode struct {
	Data CytoscapeNodeData `json:"data"`
}

// CytoscapeNodeData contains node data for Cytoscape.js
type CytoscapeNodeData struct {
	ID   string `json:"id"`
	Type string `json:"type"` // "seed" or "reached"
}

// CytoscapeEdge represents an edge in Cytoscape.js format
type CytoscapeEdge struct {
	Data CytoscapeEdgeData `json:"data"`
}

// CytoscapeEdgeData contains edge data for Cytoscape.js. Edges point from
// the dependent to its dependency.
type CytoscapeEdgeData struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type,omitempty"` // "depends-on" or "self"
}

// CytoscapeGraph represents the complete graph in Cytoscape.js format
type CytoscapeGraph struct {
	Nodes []CytoscapeNode `json:"nodes"`
	Edges []CytoscapeEdge `json:"edges"`
}

// Cytoscape converts the graph to the Cytoscape.js elements format
func (g *DependencyGraph) Cytoscape() CytoscapeGraph {
	cytoGraph := CytoscapeGraph{
		Nodes: make([]CytoscapeNode, 0, len(g.nodes)),
		Edges: make([]CytoscapeEdge, 0, len(g.edges)),
	}

	seeds := make(map[collab.EntityID]bool, len(g.seeds))
	for _, id := range g.seeds {
		seeds[id] = true
	}

	for _, id := range g.nodes {
		nodeType := "reached"
		if seeds[id] {
			nodeType = "seed"
		}
		cytoGraph.Nodes = append(cytoGraph.Nodes, CytoscapeNode{
			Data: CytoscapeNodeData{ID: string(id), Type: nodeType},
		})
	}

	for _, edge := range g.edges {
		edgeType := "depends-on"
		if edge.IsSelfLoop() {
			edgeType = "self"
		}
		cytoGraph.Edges = append(cytoGraph.Edges, CytoscapeEdge{
			Data: CytoscapeEdgeData{
				ID:     string(edge.Dependent) + "->" + string(edge.Dependency),
				Source: string(edge.Dependent),
				Target: string(edge.Dependency),
				Type:   edgeType,
			},
		})
	}

	return cytoGraph
}
