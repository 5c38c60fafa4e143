// Package versions records file versions with idempotent get-or-create
// semantics.
//
// Store.GetOrCreateVersion creates the pair (file, hash) the first time it
// is requested and returns the stored record afterwards. Among any number
// of concurrent callers for the same pair exactly one observes
// created=true. Atomicity comes from the repository's conditional insert;
// a per-key in-process lock only keeps callers in one process from racing
// each other into the database.
package versions
