package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/collab/pkg/collab"
	"github.com/platinummonkey/collab/pkg/dependencies"
	"github.com/platinummonkey/collab/pkg/httputil"
	"github.com/platinummonkey/collab/pkg/observability"
	"github.com/platinummonkey/collab/pkg/storage/memory"
	"github.com/platinummonkey/collab/pkg/versions"
)

type registrarFunc func(router *mux.Router)

func (f registrarFunc) RegisterRoutes(router *mux.Router) { f(router) }

func newTestServer(t *testing.T) (*Server, *observability.Metrics) {
	t.Helper()
	ctx := context.Background()

	repo := memory.New()
	require.NoError(t, repo.CreateFile(ctx, &collab.File{ID: "f1", Name: "main.go"}))
	_, err := repo.InsertEdgeIfAbsent(ctx, collab.DependencyEdge{Dependency: "P1", Dependent: "P2"})
	require.NoError(t, err)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	logger := observability.NewLogger(observability.ErrorLevel, &bytes.Buffer{})

	server := NewServer(logger, metrics,
		dependencies.NewHandlers(dependencies.NewResolver(repo, metrics)),
		versions.NewHandlers(versions.NewStore(repo, nil, metrics, versions.DefaultConfig())),
	)
	return server, metrics
}

func serve(server http.Handler, method, url string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(method, url, nil))
	return w
}

func TestServerFullHierarchy(t *testing.T) {
	server, _ := newTestServer(t)

	w := serve(server, http.MethodGet, "/collab/annotations/full_hierarchy/?ids=P2")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `[{"id":"P2"},{"id":"P1"}]`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(httputil.RequestIDHeader))
}

func TestServerFileVersion(t *testing.T) {
	server, metrics := newTestServer(t)
	url := "/collab/files/f1/file_version/deadbeefdeadbeefdeadbeefdeadbeef/"

	w := serve(server, http.MethodPost, url)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp versions.VersionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.NewlyCreated)
	assert.Equal(t, collab.ContentHash("deadbeefdeadbeefdeadbeefdeadbeef"), resp.MD5Hash)
	assert.Equal(t, collab.FileID("f1"), resp.File)

	w = serve(server, http.MethodPost, url)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.NewlyCreated)

	route := "/collab/files/{file}/file_version/{hash}/"
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodPost, route, "201")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodPost, route, "200")))
}

func TestServerUnknownFile(t *testing.T) {
	server, _ := newTestServer(t)

	w := serve(server, http.MethodPost, "/collab/files/nope/file_version/abc/")
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Error)
}

func TestServerUnknownRoute(t *testing.T) {
	server, _ := newTestServer(t)

	w := serve(server, http.MethodGet, "/collab/nothing/")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestServerMethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t)

	w := serve(server, http.MethodDelete, "/collab/annotations/full_hierarchy/?ids=A")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Contains(t, w.Body.String(), "DELETE")
}

func TestServerRecoversPanics(t *testing.T) {
	server, _ := newTestServer(t)
	server.RegisterRoutes(registrarFunc(func(router *mux.Router) {
		router.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) {
			panic("boom")
		})
	}))

	w := serve(server, http.MethodGet, "/boom")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Header().Get(httputil.RequestIDHeader))
}

func TestServerKeepsIncomingRequestID(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/collab/annotations/full_hierarchy/?ids=A", nil)
	req.Header.Set(httputil.RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-123", w.Header().Get(httputil.RequestIDHeader))
}

func TestNewServerNilLoggerAndMetrics(t *testing.T) {
	server := NewServer(nil, nil)
	require.NotNil(t, server.Router())

	w := serve(server, http.MethodGet, "/anything")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
