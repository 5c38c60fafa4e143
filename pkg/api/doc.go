// Package api assembles the collab HTTP gateway.
//
// The gateway is a gorilla/mux router shared by handler groups that
// implement RouteRegistrar (dependencies.Handlers and versions.Handlers).
// Matched requests pass through the request id, panic recovery, logging
// and Prometheus middleware, and the whole router is wrapped with otelhttp
// so spans are created when tracing is enabled.
//
//	server := api.NewServer(logger, metrics,
//		dependencies.NewHandlers(resolver),
//		versions.NewHandlers(store),
//	)
//	http.ListenAndServe(":8080", server)
//
// Unknown routes and wrong methods answer with the same JSON error body
// the handlers use.
package api
