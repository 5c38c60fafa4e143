package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/collab/pkg/httputil"
	"github.com/platinummonkey/collab/pkg/observability"
)

// RouteRegistrar is implemented by handler groups that mount routes on the
// shared router
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler
}

// NewServer creates the gateway router and mounts every registrar on it.
// metrics may be nil.
func NewServer(logger *observability.Logger, metrics *observability.Metrics, registrars ...RouteRegistrar) *Server {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	s := &Server{router: mux.NewRouter()}
	s.router.NotFoundHandler = http.HandlerFunc(notFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	// request id first so every later layer logs with it
	s.router.Use(httputil.RequestIDMiddleware(logger))
	s.router.Use(httputil.RecoveryMiddleware)
	s.router.Use(httputil.LoggingMiddleware)
	s.router.Use(observability.HTTPMetricsMiddleware(metrics))

	for _, r := range registrars {
		s.RegisterRoutes(r)
	}

	s.handler = otelhttp.NewHandler(s.router, "collab.api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "HTTP " + r.Method
		}),
	)
	return s
}

// Use appends middleware that runs after the built-in chain on matched
// routes
func (s *Server) Use(mw ...mux.MiddlewareFunc) {
	s.router.Use(mw...)
}

// RegisterRoutes mounts an additional handler group
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}

// Router exposes the underlying router
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func notFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteNotFoundError(w, "no route for "+r.URL.Path)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method "+r.Method+" not allowed")
}
