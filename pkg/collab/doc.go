// Package collab defines the records shared by the collab metadata core:
// entity identifiers, dependency edges, files and their content-addressed
// versions, plus the structured error kinds the core reports.
//
// The package has no behaviour of its own. The dependency hierarchy resolver
// lives in pkg/dependencies and the idempotent version store in pkg/versions;
// both read and write these records through a storage.Repository.
package collab
