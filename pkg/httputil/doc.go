// Package httputil provides the JSON response helpers, request parsing and
// middleware shared by the collab HTTP handlers.
//
// Errors returned by the core packages are written with WriteError, which
// maps collab error kinds onto status codes:
//
//	invalid_argument -> 400
//	not_found        -> 404
//	anything else    -> 500 (detail logged, not returned)
package httputil
