// Package storage defines the repository boundary shared by the dependency
// hierarchy resolver and the file version store.
//
// # Overview
//
// The core never talks to a database directly. It is handed a Repository,
// which bundles four concerns:
//
//   - EdgeReader / EdgeWriter: the directed dependency edge set
//   - FileRepository: file records that versions attach to
//   - VersionRepository: the (file, hash) version set
//
// # Backends
//
//   - memory: maps guarded by a sync.RWMutex (default, tests, single node)
//   - sqlite: database/sql over mattn/go-sqlite3
//   - postgres: database/sql over lib/pq, with optional read replicas
//
// Both SQL backends live in storage/sqlstore and share one set of queries.
//
// # Idempotent inserts
//
// InsertEdgeIfAbsent and InsertVersionIfAbsent are conditional inserts. The
// SQL backends rely on a unique key and INSERT ... ON CONFLICT DO NOTHING,
// reporting the outcome from RowsAffected; the memory backend checks and
// inserts under one write lock. Either way exactly one concurrent caller
// observes inserted=true for a given key.
//
// # Caching
//
// storage/cache wraps a VersionRepository with an LRU (L1) and an optional
// Redis (L2) presence cache. Versions are never deleted, so a cached hit can
// not go stale.
package storage
