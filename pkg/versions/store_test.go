package versions

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/collab/pkg/collab"
	"github.com/platinummonkey/collab/pkg/observability"
	"github.com/platinummonkey/collab/pkg/storage"
	"github.com/platinummonkey/collab/pkg/storage/cache"
	"github.com/platinummonkey/collab/pkg/storage/memory"
	"github.com/platinummonkey/collab/pkg/storage/sqlstore"
)

var deadbeef = collab.ContentHash(strings.Repeat("deadbeef", 4))

func newMemoryRepo(t *testing.T, files ...collab.FileID) *memory.Store {
	t.Helper()
	repo := memory.New()
	for _, f := range files {
		require.NoError(t, repo.CreateFile(context.Background(), &collab.File{ID: f}))
	}
	return repo
}

func newSQLiteRepo(t *testing.T, files ...collab.FileID) *sqlstore.Store {
	t.Helper()
	cfg := storage.DefaultConfig()
	cfg.Type = "sqlite"
	cfg.SQLitePath = filepath.Join(t.TempDir(), "collab.db")

	repo, err := sqlstore.Open(context.Background(), cfg, observability.NewLogger(observability.ErrorLevel, nil))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	for _, f := range files {
		require.NoError(t, repo.CreateFile(context.Background(), &collab.File{ID: f}))
	}
	return repo
}

// racingRepo reports a conflict for the first n inserts
type racingRepo struct {
	Repository
	conflicts atomic.Int32
	inserts   atomic.Int32
}

func (r *racingRepo) InsertVersionIfAbsent(ctx context.Context, v *collab.FileVersion) (bool, error) {
	r.inserts.Add(1)
	if r.conflicts.Add(-1) >= 0 {
		return false, collab.E(collab.KindConflict, "test", "not visible yet")
	}
	return r.Repository.InsertVersionIfAbsent(ctx, v)
}

type brokenRepo struct {
	Repository
}

func (brokenRepo) FileExists(ctx context.Context, id collab.FileID) (bool, error) {
	return false, errors.New("connection refused")
}

func TestGetOrCreateVersion_Idempotent(t *testing.T) {
	backends := map[string]func(t *testing.T) Repository{
		"memory": func(t *testing.T) Repository { return newMemoryRepo(t, "f1") },
		"sqlite": func(t *testing.T) Repository { return newSQLiteRepo(t, "f1") },
	}

	for name, newRepo := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := NewStore(newRepo(t), nil, nil, DefaultConfig())

			first, created, err := store.GetOrCreateVersion(ctx, "f1", deadbeef)
			require.NoError(t, err)
			assert.True(t, created)
			assert.Equal(t, collab.FileID("f1"), first.File)
			assert.Equal(t, deadbeef, first.Hash)
			assert.False(t, first.CreatedAt.IsZero())

			second, created, err := store.GetOrCreateVersion(ctx, "f1", deadbeef)
			require.NoError(t, err)
			assert.False(t, created)
			assert.Equal(t, first.File, second.File)
			assert.Equal(t, first.Hash, second.Hash)
			assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

			got, err := store.GetVersion(ctx, "f1", deadbeef)
			require.NoError(t, err)
			assert.Equal(t, deadbeef, got.Hash)
		})
	}
}

func TestGetOrCreateVersion_Concurrent(t *testing.T) {
	backends := map[string]func(t *testing.T) Repository{
		"memory": func(t *testing.T) Repository { return newMemoryRepo(t, "f1") },
		"sqlite": func(t *testing.T) Repository { return newSQLiteRepo(t, "f1") },
	}

	for name, newRepo := range backends {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			// separate stores share only the repository, like separate processes
			stores := []*Store{
				NewStore(repo, nil, nil, DefaultConfig()),
				NewStore(repo, nil, nil, DefaultConfig()),
			}

			const callers = 32
			var createdCount atomic.Int32
			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					_, created, err := stores[i%2].GetOrCreateVersion(context.Background(), "f1", deadbeef)
					assert.NoError(t, err)
					if created {
						createdCount.Add(1)
					}
				}(i)
			}
			close(start)
			wg.Wait()

			assert.Equal(t, int32(1), createdCount.Load())
		})
	}
}

func TestGetOrCreateVersion_UnknownFile(t *testing.T) {
	store := NewStore(newMemoryRepo(t), nil, nil, DefaultConfig())

	_, created, err := store.GetOrCreateVersion(context.Background(), "missing", deadbeef)
	require.Error(t, err)
	assert.False(t, created)
	assert.ErrorIs(t, err, collab.ErrNotFound)

	_, err = store.GetVersion(context.Background(), "missing", deadbeef)
	assert.ErrorIs(t, err, collab.ErrNotFound)
}

func TestGetOrCreateVersion_InvalidArguments(t *testing.T) {
	store := NewStore(newMemoryRepo(t, "f1"), nil, nil, DefaultConfig())

	_, _, err := store.GetOrCreateVersion(context.Background(), "", deadbeef)
	assert.ErrorIs(t, err, collab.ErrInvalidArgument)

	_, _, err = store.GetOrCreateVersion(context.Background(), "f1", "")
	assert.ErrorIs(t, err, collab.ErrInvalidArgument)
}

func TestGetOrCreateVersion_DistinctHashes(t *testing.T) {
	store := NewStore(newMemoryRepo(t, "f1", "f2"), nil, nil, DefaultConfig())
	ctx := context.Background()

	for _, tc := range []struct {
		file collab.FileID
		hash collab.ContentHash
	}{
		{"f1", "aa"}, {"f1", "bb"}, {"f2", "aa"},
	} {
		_, created, err := store.GetOrCreateVersion(ctx, tc.file, tc.hash)
		require.NoError(t, err)
		assert.True(t, created, "%s/%s", tc.file, tc.hash)
	}
}

func TestGetOrCreateVersion_SeparatorInIDs(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		name  string
		repo  Repository
		cache Cache
	}{
		{"memory", newMemoryRepo(t, "a", "a/b"), nil},
		{"memory+l1", newMemoryRepo(t, "a", "a/b"), cache.New(100, time.Hour, nil)},
		{"sqlite", newSQLiteRepo(t, "a", "a/b"), nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			store := NewStore(tc.repo, tc.cache, nil, DefaultConfig())

			_, created, err := store.GetOrCreateVersion(ctx, "a", "b/c")
			require.NoError(t, err)
			require.True(t, created)

			v, created, err := store.GetOrCreateVersion(ctx, "a/b", "c")
			require.NoError(t, err)
			assert.True(t, created)
			assert.Equal(t, collab.FileID("a/b"), v.File)
			assert.Equal(t, collab.ContentHash("c"), v.Hash)

			_, err = store.GetVersion(ctx, "a/b", "c/d")
			assert.True(t, errors.Is(err, collab.ErrNotFound))
		})
	}
}

func TestGetOrCreateVersion_RetriesConflicts(t *testing.T) {
	repo := &racingRepo{Repository: newMemoryRepo(t, "f1")}
	repo.conflicts.Store(2)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	store := NewStore(repo, nil, metrics, Config{MaxAttempts: 5, RetryBackoff: time.Millisecond})

	v, created, err := store.GetOrCreateVersion(context.Background(), "f1", deadbeef)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, deadbeef, v.Hash)
	assert.Equal(t, int32(3), repo.inserts.Load())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.VersionConflictsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.VersionsCreatedTotal))
}

func TestGetOrCreateVersion_ConflictsExhausted(t *testing.T) {
	repo := &racingRepo{Repository: newMemoryRepo(t, "f1")}
	repo.conflicts.Store(100)

	store := NewStore(repo, nil, nil, Config{MaxAttempts: 3, RetryBackoff: time.Millisecond})

	_, _, err := store.GetOrCreateVersion(context.Background(), "f1", deadbeef)
	require.Error(t, err)
	assert.Equal(t, collab.KindInternal, collab.KindOf(err))
	assert.Equal(t, int32(3), repo.inserts.Load())
}

func TestGetOrCreateVersion_StorageError(t *testing.T) {
	store := NewStore(brokenRepo{Repository: newMemoryRepo(t)}, nil, nil, DefaultConfig())

	_, _, err := store.GetOrCreateVersion(context.Background(), "f1", deadbeef)
	require.Error(t, err)
	assert.Equal(t, collab.KindInternal, collab.KindOf(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestGetOrCreateVersion_CacheServesRepeats(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	repo := newMemoryRepo(t, "f1")
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	ctx := context.Background()

	writer := NewStore(repo, cache.New(100, time.Hour, client), metrics, DefaultConfig())
	_, created, err := writer.GetOrCreateVersion(ctx, "f1", deadbeef)
	require.NoError(t, err)
	require.True(t, created)
	assert.True(t, mr.Exists("collab:version:2:f1/"+string(deadbeef)))

	// a fresh process sees the version through redis without touching storage
	reader := NewStore(brokenRepo{Repository: repo}, cache.New(100, time.Hour, client), metrics, DefaultConfig())
	v, created, err := reader.GetOrCreateVersion(ctx, "f1", deadbeef)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, deadbeef, v.Hash)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues("redis")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.VersionsFoundTotal))
}

func TestGetOrCreateVersion_CacheFailureFallsBack(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	store := NewStore(newMemoryRepo(t, "f1"), cache.New(100, time.Hour, client), nil, DefaultConfig())

	_, created, err := store.GetOrCreateVersion(context.Background(), "f1", deadbeef)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestGetOrCreateVersion_BackoffReleasesLock(t *testing.T) {
	repo := &racingRepo{Repository: newMemoryRepo(t, "f1")}
	repo.conflicts.Store(1)
	store := NewStore(repo, nil, nil, Config{MaxAttempts: 3, RetryBackoff: 300 * time.Millisecond})

	type result struct {
		created bool
		err     error
	}
	done := make(chan result, 1)
	go func() {
		_, created, err := store.GetOrCreateVersion(context.Background(), "f1", deadbeef)
		done <- result{created, err}
	}()

	require.Eventually(t, func() bool { return repo.inserts.Load() == 1 }, time.Second, time.Millisecond)

	acquired := make(chan struct{})
	go func() {
		unlock := store.locks.Lock(collab.VersionKey("f1", deadbeef))
		close(acquired)
		unlock()
	}()
	select {
	case <-acquired:
	case <-time.After(150 * time.Millisecond):
		t.Fatal("key lock held during retry backoff")
	}

	res := <-done
	require.NoError(t, res.err)
	assert.True(t, res.created)
	assert.Equal(t, 0, store.locks.held())
}

func TestKeyLock(t *testing.T) {
	locks := newKeyLock()

	var inside atomic.Int32
	var maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("f1/aa")
			defer unlock()
			n := inside.Add(1)
			if n > maxInside.Load() {
				maxInside.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Equal(t, 0, locks.held())
}

func TestKeyLockIndependentKeys(t *testing.T) {
	locks := newKeyLock()
	unlockA := locks.Lock("a")
	defer unlockA()

	acquired := make(chan struct{})
	go func() {
		unlock := locks.Lock("b")
		defer unlock()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock on b waited for a")
	}
	assert.Eventually(t, func() bool { return locks.held() == 1 }, time.Second, time.Millisecond)
}
