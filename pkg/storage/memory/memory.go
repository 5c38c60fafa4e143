// Package memory provides an in-process storage.Repository
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/platinummonkey/collab/pkg/collab"
	"github.com/platinummonkey/collab/pkg/storage"
)

// Store keeps all records in maps guarded by a single RWMutex.
// Adjacency slices preserve edge insertion order.
type Store struct {
	mu sync.RWMutex

	edges      map[collab.DependencyEdge]struct{}
	dependsOn  map[collab.EntityID][]collab.DependencyEdge // dependent -> edges
	dependedBy map[collab.EntityID][]collab.DependencyEdge // dependency -> edges
	files      map[collab.FileID]*collab.File
	versions   map[collab.VersionRef]*collab.FileVersion

	now func() time.Time
}

var _ storage.Repository = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		edges:      make(map[collab.DependencyEdge]struct{}),
		dependsOn:  make(map[collab.EntityID][]collab.DependencyEdge),
		dependedBy: make(map[collab.EntityID][]collab.DependencyEdge),
		files:      make(map[collab.FileID]*collab.File),
		versions:   make(map[collab.VersionRef]*collab.FileVersion),
		now:        time.Now,
	}
}

// EdgesFrom returns a copy of the adjacency list so callers can iterate
// while other goroutines insert edges.
func (s *Store) EdgesFrom(ctx context.Context, id collab.EntityID, dir storage.Direction) ([]collab.DependencyEdge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []collab.DependencyEdge
	switch dir {
	case storage.DirectionDependencies:
		out = append(out, s.dependsOn[id]...)
	case storage.DirectionDependents:
		out = append(out, s.dependedBy[id]...)
	default:
		out = append(out, s.dependsOn[id]...)
		for _, e := range s.dependedBy[id] {
			// a self-loop is already in dependsOn
			if e.IsSelfLoop() {
				continue
			}
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) InsertEdgeIfAbsent(ctx context.Context, edge collab.DependencyEdge) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.edges[edge]; ok {
		return false, nil
	}
	s.edges[edge] = struct{}{}
	s.dependsOn[edge.Dependent] = append(s.dependsOn[edge.Dependent], edge)
	s.dependedBy[edge.Dependency] = append(s.dependedBy[edge.Dependency], edge)
	return true, nil
}

func (s *Store) CreateFile(ctx context.Context, f *collab.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.files[f.ID]; ok {
		*f = *existing
		return nil
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now().UTC()
	}
	stored := *f
	s.files[f.ID] = &stored
	return nil
}

func (s *Store) FileExists(ctx context.Context, id collab.FileID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.files[id]
	return ok, nil
}

func (s *Store) FindVersion(ctx context.Context, file collab.FileID, hash collab.ContentHash) (*collab.FileVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ref := collab.VersionRef{File: file, Hash: hash}
	v, ok := s.versions[ref]
	if !ok {
		return nil, collab.E(collab.KindNotFound, "memory.FindVersion", "version "+ref.String()+" not found")
	}
	out := *v
	return &out, nil
}

// InsertVersionIfAbsent checks and inserts under the write lock, which makes
// the pair atomic. The referenced file must exist.
func (s *Store) InsertVersionIfAbsent(ctx context.Context, v *collab.FileVersion) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[v.File]; !ok {
		return false, collab.E(collab.KindNotFound, "memory.InsertVersionIfAbsent", "file "+string(v.File)+" not found")
	}

	key := collab.VersionRef{File: v.File, Hash: v.Hash}
	if existing, ok := s.versions[key]; ok {
		*v = *existing
		return false, nil
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.now().UTC()
	}
	stored := *v
	s.versions[key] = &stored
	return true, nil
}

func (s *Store) Stats(ctx context.Context) (storage.Stats, error) {
	if err := ctx.Err(); err != nil {
		return storage.Stats{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return storage.Stats{
		Files:    int64(len(s.files)),
		Versions: int64(len(s.versions)),
		Edges:    int64(len(s.edges)),
	}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}
