package storage

import (
	"context"
	"time"

	"github.com/platinummonkey/collab/pkg/collab"
)

// Direction selects which side of a dependency edge a traversal follows
type Direction int

const (
	// DirectionDependencies follows dependent -> dependency
	DirectionDependencies Direction = iota
	// DirectionDependents follows dependency -> dependent
	DirectionDependents
	// DirectionBoth follows edges regardless of orientation
	DirectionBoth
)

func (d Direction) String() string {
	switch d {
	case DirectionDependents:
		return "dependents"
	case DirectionBoth:
		return "both"
	default:
		return "dependencies"
	}
}

// ParseDirection parses the textual form used by the HTTP and CLI surfaces.
// An empty string selects DirectionDependencies.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "", "dependencies":
		return DirectionDependencies, nil
	case "dependents":
		return DirectionDependents, nil
	case "both":
		return DirectionBoth, nil
	default:
		return DirectionDependencies, collab.E(collab.KindInvalidArgument, "storage.ParseDirection",
			"unknown direction "+s+" (must be dependencies, dependents or both)")
	}
}

// EdgeReader is the read side of the dependency edge set
type EdgeReader interface {
	// EdgesFrom returns edges touching id on the side selected by dir, in
	// insertion order. An unknown id yields no edges and no error.
	EdgesFrom(ctx context.Context, id collab.EntityID, dir Direction) ([]collab.DependencyEdge, error)
}

// EdgeWriter is used by the CRUD path and fixtures, never by the resolver
type EdgeWriter interface {
	// InsertEdgeIfAbsent stores edge unless the same pair already exists.
	// A duplicate is a no-op reported as inserted=false.
	InsertEdgeIfAbsent(ctx context.Context, edge collab.DependencyEdge) (bool, error)
}

// FileRepository stores file records
type FileRepository interface {
	// CreateFile stores f. Creating an existing id is a no-op.
	CreateFile(ctx context.Context, f *collab.File) error
	FileExists(ctx context.Context, id collab.FileID) (bool, error)
}

// VersionRepository stores file versions. There is no update or delete.
type VersionRepository interface {
	// FindVersion returns collab.ErrNotFound when the pair is absent
	FindVersion(ctx context.Context, file collab.FileID, hash collab.ContentHash) (*collab.FileVersion, error)
	// InsertVersionIfAbsent atomically stores v unless (v.File, v.Hash)
	// already exists. inserted is true only for the call that stored it;
	// otherwise v is overwritten with the stored record. A zero CreatedAt
	// is set by the backend. Returns a KindNotFound error for an unknown
	// file and KindConflict when the existing row cannot be read back yet.
	InsertVersionIfAbsent(ctx context.Context, v *collab.FileVersion) (bool, error)
}

// Stats holds record counts for gauges
type Stats struct {
	Files    int64 `json:"files"`
	Versions int64 `json:"versions"`
	Edges    int64 `json:"edges"`
}

// Repository is the storage boundary injected into both core components
type Repository interface {
	EdgeReader
	EdgeWriter
	FileRepository
	VersionRepository

	Stats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error
	Close() error
}

// Config for storage backend
type Config struct {
	Type string // "memory", "sqlite", "postgres"

	// SQLite config
	SQLitePath string

	// PostgreSQL config
	PostgresURL         string
	PostgresReplicaURLs string
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresTimeout     time.Duration

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	// Cache config
	CacheEnabled bool
	CacheTTL     time.Duration
	L1CacheSize  int // entries
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:             "memory",
		SQLitePath:       "collab.db",
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		CacheEnabled:     true,
		CacheTTL:         24 * time.Hour,
		L1CacheSize:      10000,
	}
}
