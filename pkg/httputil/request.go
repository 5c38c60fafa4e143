package httputil

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/collab/pkg/collab"
)

// PathParam returns the mux path variable key. A missing or empty value is
// an invalid argument.
func PathParam(r *http.Request, key string) (string, error) {
	val := mux.Vars(r)[key]
	if val == "" {
		return "", collab.E(collab.KindInvalidArgument, "httputil.PathParam", "missing path parameter: "+key)
	}
	return val, nil
}

// PathParams reads keys in order. On the first missing one it writes the
// error response and returns false.
func PathParams(w http.ResponseWriter, r *http.Request, keys ...string) ([]string, bool) {
	vals := make([]string, len(keys))
	for i, key := range keys {
		val, err := PathParam(r, key)
		if err != nil {
			WriteError(w, r, err)
			return nil, false
		}
		vals[i] = val
	}
	return vals, true
}

// QueryParam returns the trimmed query value of key, or def when absent
func QueryParam(r *http.Request, key, def string) string {
	if val := strings.TrimSpace(r.URL.Query().Get(key)); val != "" {
		return val
	}
	return def
}

// QueryEntityIDs collects ids from every occurrence of key, each of which
// may hold a comma separated list. Order is preserved.
func QueryEntityIDs(r *http.Request, key string) []collab.EntityID {
	return collab.ParseEntityIDs(r.URL.Query()[key]...)
}
