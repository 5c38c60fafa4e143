// Package fixtures imports files, dependency edges and versions from a YAML
// document into a storage repository, and can keep re-importing it as the
// file changes. Imports are idempotent.
package fixtures
