// Package app wires configuration, storage, the core components and the
// HTTP servers into a runnable collab process.
//
// New opens the configured repository (memory, sqlite or postgres), the
// optional LRU/Redis version cache and the tracer provider, then builds
// the dependency resolver, the version store and the API router on top,
// with the OpenAPI docs and, when enabled, per-client rate limiting.
// Run adds the health server, the cron driven stats refresh and the
// optional fixture watcher, and blocks until shutdown.
package app
