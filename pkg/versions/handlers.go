package versions

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/collab/pkg/collab"
	"github.com/platinummonkey/collab/pkg/httputil"
)

// VersionResponse is the body of the file_version endpoint
type VersionResponse struct {
	NewlyCreated bool               `json:"newly_created"`
	MD5Hash      collab.ContentHash `json:"md5hash"`
	File         collab.FileID      `json:"file"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Handlers provides HTTP handlers for file versions
type Handlers struct {
	store *Store
}

// NewHandlers creates new version handlers
func NewHandlers(store *Store) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes registers version routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	const path = "/collab/files/{file}/file_version/{hash}/"
	router.HandleFunc(path, h.headVersion).Methods(http.MethodHead)
	router.HandleFunc(path, h.getOrCreateVersion).Methods(http.MethodGet, http.MethodPost)
}

// getOrCreateVersion handles POST and GET /collab/files/{file}/file_version/{hash}/
// 201 when this call created the version, 200 when it already existed.
func (h *Handlers) getOrCreateVersion(w http.ResponseWriter, r *http.Request) {
	file, hash, ok := parseVersionPath(w, r)
	if !ok {
		return
	}

	v, created, err := h.store.GetOrCreateVersion(r.Context(), file, hash)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	resp := VersionResponse{
		NewlyCreated: created,
		MD5Hash:      v.Hash,
		File:         v.File,
		CreatedAt:    v.CreatedAt,
	}
	if created {
		_ = httputil.WriteCreated(w, resp)
		return
	}
	_ = httputil.WriteSuccess(w, resp)
}

// headVersion handles HEAD /collab/files/{file}/file_version/{hash}/
// without creating anything.
func (h *Handlers) headVersion(w http.ResponseWriter, r *http.Request) {
	file, hash, ok := parseVersionPath(w, r)
	if !ok {
		return
	}

	if _, err := h.store.GetVersion(r.Context(), file, hash); err != nil {
		w.WriteHeader(httputil.StatusForError(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func parseVersionPath(w http.ResponseWriter, r *http.Request) (collab.FileID, collab.ContentHash, bool) {
	vals, ok := httputil.PathParams(w, r, "file", "hash")
	if !ok {
		return "", "", false
	}
	return collab.FileID(vals[0]), collab.ContentHash(vals[1]), true
}
