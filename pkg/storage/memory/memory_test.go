package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/collab/pkg/collab"
	"github.com/platinummonkey/collab/pkg/storage"
)

func TestStore_InsertEdgeIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := New()

	edge := collab.DependencyEdge{Dependency: "p1", Dependent: "p2"}

	inserted, err := s.InsertEdgeIfAbsent(ctx, edge)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.InsertEdgeIfAbsent(ctx, edge)
	require.NoError(t, err)
	assert.False(t, inserted, "duplicate edge must be a no-op")

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Edges)
}

func TestStore_EdgesFrom(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, e := range []collab.DependencyEdge{
		{Dependency: "base", Dependent: "common"},
		{Dependency: "common", Dependent: "user"},
		{Dependency: "common", Dependent: "order"},
		{Dependency: "common", Dependent: "common"},
	} {
		_, err := s.InsertEdgeIfAbsent(ctx, e)
		require.NoError(t, err)
	}

	t.Run("dependencies", func(t *testing.T) {
		edges, err := s.EdgesFrom(ctx, "common", storage.DirectionDependencies)
		require.NoError(t, err)
		assert.Equal(t, []collab.DependencyEdge{
			{Dependency: "base", Dependent: "common"},
			{Dependency: "common", Dependent: "common"},
		}, edges)
	})

	t.Run("dependents in insertion order", func(t *testing.T) {
		edges, err := s.EdgesFrom(ctx, "common", storage.DirectionDependents)
		require.NoError(t, err)
		assert.Equal(t, []collab.DependencyEdge{
			{Dependency: "common", Dependent: "user"},
			{Dependency: "common", Dependent: "order"},
			{Dependency: "common", Dependent: "common"},
		}, edges)
	})

	t.Run("both lists self-loop once", func(t *testing.T) {
		edges, err := s.EdgesFrom(ctx, "common", storage.DirectionBoth)
		require.NoError(t, err)
		assert.Len(t, edges, 4)
	})

	t.Run("unknown entity", func(t *testing.T) {
		edges, err := s.EdgesFrom(ctx, "ghost", storage.DirectionBoth)
		require.NoError(t, err)
		assert.Empty(t, edges)
	})
}

func TestStore_Files(t *testing.T) {
	ctx := context.Background()
	s := New()

	exists, err := s.FileExists(ctx, "f1")
	require.NoError(t, err)
	assert.False(t, exists)

	f := &collab.File{ID: "f1", Name: "libc.so"}
	require.NoError(t, s.CreateFile(ctx, f))
	assert.False(t, f.CreatedAt.IsZero())

	again := &collab.File{ID: "f1", Name: "renamed"}
	require.NoError(t, s.CreateFile(ctx, again))
	assert.Equal(t, "libc.so", again.Name, "existing file must be returned unchanged")

	exists, err = s.FileExists(ctx, "f1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStore_InsertVersionIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateFile(ctx, &collab.File{ID: "f1"}))

	_, err := s.FindVersion(ctx, "f1", "aa")
	assert.True(t, errors.Is(err, collab.ErrNotFound))

	v := &collab.FileVersion{File: "f1", Hash: "aa"}
	inserted, err := s.InsertVersionIfAbsent(ctx, v)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := &collab.FileVersion{File: "f1", Hash: "aa"}
	inserted, err = s.InsertVersionIfAbsent(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, v.CreatedAt, dup.CreatedAt, "losing insert must observe the stored record")

	found, err := s.FindVersion(ctx, "f1", "aa")
	require.NoError(t, err)
	assert.Equal(t, *v, *found)
}

func TestStore_InsertVersionUnknownFile(t *testing.T) {
	s := New()

	_, err := s.InsertVersionIfAbsent(context.Background(), &collab.FileVersion{File: "nope", Hash: "aa"})
	assert.True(t, errors.Is(err, collab.ErrNotFound))
}

func TestStore_ConcurrentVersionInsert(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateFile(ctx, &collab.File{ID: "f1"}))

	const workers = 64
	var created int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, err := s.InsertVersionIfAbsent(ctx, &collab.FileVersion{File: "f1", Hash: "deadbeef"})
			assert.NoError(t, err)
			if inserted {
				atomic.AddInt32(&created, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created)
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Versions)
}

func TestStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New()
	_, err := s.EdgesFrom(ctx, "a", storage.DirectionDependencies)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Ping(ctx), context.Canceled)
}
