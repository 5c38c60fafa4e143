package swagger

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter() *mux.Router {
	router := mux.NewRouter()
	NewHandlers().RegisterRoutes(router)
	return router
}

func TestRouteIntegration(t *testing.T) {
	router := newRouter()

	tests := []struct {
		name                 string
		path                 string
		expectedContentType  string
		expectedBodyContains []string
	}{
		{
			name:                 "YAML document",
			path:                 "/openapi.yaml",
			expectedContentType:  "application/x-yaml",
			expectedBodyContains: []string{"openapi: 3.0.3", "/collab/annotations/full_hierarchy/"},
		},
		{
			name:                 "JSON document",
			path:                 "/openapi.json",
			expectedContentType:  "application/json",
			expectedBodyContains: []string{`"openapi":"3.0.3"`, "/collab/files/{file}/file_version/{hash}/"},
		},
		{
			name:                 "Swagger UI",
			path:                 "/swagger-ui",
			expectedContentType:  "text/html; charset=utf-8",
			expectedBodyContains: []string{"<!DOCTYPE html>", "collab API - Swagger UI", "SwaggerUIBundle", "openapi.yaml"},
		},
		{
			name:                 "API docs alias",
			path:                 "/api-docs",
			expectedContentType:  "text/html; charset=utf-8",
			expectedBodyContains: []string{"swagger-ui-dist"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.expectedContentType, w.Header().Get("Content-Type"))
			for _, expected := range tt.expectedBodyContains {
				assert.Contains(t, w.Body.String(), expected)
			}
		})
	}
}

func TestCORSHeaders(t *testing.T) {
	router := newRouter()

	for _, path := range []string{"/openapi.yaml", "/openapi.json"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"), path)
	}
}

func TestSpecJSONDocumentsGateway(t *testing.T) {
	raw, err := SpecJSON()
	require.NoError(t, err)

	var doc struct {
		OpenAPI string                                `json:"openapi"`
		Paths   map[string]map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "3.0.3", doc.OpenAPI)

	hierarchy := doc.Paths["/collab/annotations/full_hierarchy/"]
	require.NotNil(t, hierarchy)
	assert.Contains(t, hierarchy, "get")

	version := doc.Paths["/collab/files/{file}/file_version/{hash}/"]
	require.NotNil(t, version)
	for _, method := range []string{"get", "post", "head"} {
		assert.Contains(t, version, method)
	}

	var post struct {
		Responses map[string]json.RawMessage `json:"responses"`
	}
	require.NoError(t, json.Unmarshal(version["post"], &post))
	assert.Contains(t, post.Responses, "201")
	assert.Contains(t, post.Responses, "200")
	assert.Contains(t, post.Responses, "404")
}

func TestJSONCompatible(t *testing.T) {
	in := map[interface{}]interface{}{
		200: "ok",
		"nested": []interface{}{
			map[interface{}]interface{}{true: "yes"},
		},
	}

	out := jsonCompatible(in)
	raw, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"200":"ok","nested":[{"true":"yes"}]}`, string(raw))
}

func TestSpecIsEmbedded(t *testing.T) {
	assert.NotEmpty(t, Spec())
}

func TestMethodNotAllowed(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/openapi.yaml", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
