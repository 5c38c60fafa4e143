package dependencies

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/collab/pkg/collab"
	"github.com/platinummonkey/collab/pkg/httputil"
	"github.com/platinummonkey/collab/pkg/storage"
)

// HierarchyEntry is one element of the full hierarchy response
type HierarchyEntry struct {
	ID collab.EntityID `json:"id"`
}

// Handlers provides HTTP handlers for hierarchy resolution
type Handlers struct {
	resolver *Resolver
}

// NewHandlers creates new hierarchy handlers
func NewHandlers(resolver *Resolver) *Handlers {
	return &Handlers{resolver: resolver}
}

// RegisterRoutes registers hierarchy routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/collab/annotations/full_hierarchy/", h.getFullHierarchy).Methods(http.MethodGet)
	router.HandleFunc("/collab/annotations/full_hierarchy/graph/", h.getGraph).Methods(http.MethodGet)
}

// getFullHierarchy handles GET /collab/annotations/full_hierarchy/?ids=A,B
// Query parameters:
//   - ids: comma separated, may be repeated (required)
//   - direction: "dependencies", "dependents" or "both"
func (h *Handlers) getFullHierarchy(w http.ResponseWriter, r *http.Request) {
	seeds, opts, ok := parseHierarchyRequest(w, r)
	if !ok {
		return
	}

	ids, err := h.resolver.FullHierarchy(r.Context(), seeds, opts...)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	entries := make([]HierarchyEntry, len(ids))
	for i, id := range ids {
		entries[i] = HierarchyEntry{ID: id}
	}
	_ = httputil.WriteSuccess(w, entries)
}

// getGraph handles GET /collab/annotations/full_hierarchy/graph/?ids=A
// Query parameters as for the hierarchy, plus format=cytoscape.
func (h *Handlers) getGraph(w http.ResponseWriter, r *http.Request) {
	seeds, opts, ok := parseHierarchyRequest(w, r)
	if !ok {
		return
	}

	graph, err := h.resolver.Graph(r.Context(), seeds, opts...)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	switch format := httputil.QueryParam(r, "format", "view"); format {
	case "view":
		_ = httputil.WriteSuccess(w, graph.View())
	case "cytoscape":
		_ = httputil.WriteSuccess(w, graph.Cytoscape())
	default:
		httputil.WriteError(w, r, collab.E(collab.KindInvalidArgument, "full_hierarchy.graph",
			"unknown format "+format+" (must be view or cytoscape)"))
	}
}

func parseHierarchyRequest(w http.ResponseWriter, r *http.Request) ([]collab.EntityID, []Option, bool) {
	seeds := httputil.QueryEntityIDs(r, "ids")
	if len(seeds) == 0 {
		httputil.WriteError(w, r, collab.E(collab.KindInvalidArgument, "full_hierarchy", "ids query parameter is required"))
		return nil, nil, false
	}

	var opts []Option
	if raw := httputil.QueryParam(r, "direction", ""); raw != "" {
		dir, err := storage.ParseDirection(raw)
		if err != nil {
			httputil.WriteError(w, r, err)
			return nil, nil, false
		}
		opts = append(opts, WithDirection(dir))
	}
	return seeds, opts, true
}
