// Package cli implements the collab command line.
//
// Commands:
//
//	collab serve [--fixtures f.yaml] [--watch] [--port 8080]
//	collab import <file>
//	collab hierarchy --ids A,B [--direction dependencies|dependents|both] [--graph]
//	collab version <file> <md5hash> [--lookup]
//
// Every command reads the same COLLAB_* configuration as the server, so
// import, hierarchy and version operate directly on the configured
// storage. With the default memory backend they only see what --fixtures
// imports. --format json wraps results and errors in a
// {"status", "data", "error"} envelope; exit codes distinguish usage
// errors (2) and missing records (3) from other failures (1).
package cli
