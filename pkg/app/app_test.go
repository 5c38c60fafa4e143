package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/collab/pkg/collab"
	"github.com/platinummonkey/collab/pkg/config"
	"github.com/platinummonkey/collab/pkg/middleware"
	"github.com/platinummonkey/collab/pkg/observability"
	"github.com/platinummonkey/collab/pkg/storage"
	"github.com/platinummonkey/collab/pkg/storage/sqlstore"
)

const fixtureYAML = `
files:
  - id: f1
    name: main.go
dependencies:
  - dependency: P1
    dependent: P2
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	st := storage.DefaultConfig()
	st.Type = "memory"
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            "0",
			HealthPort:      "0",
			ReadTimeout:     time.Second,
			WriteTimeout:    time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Storage: st,
		Observability: config.ObservabilityConfig{
			LogLevel:       observability.ErrorLevel,
			MetricsEnabled: true,
		},
		Hierarchy: config.HierarchyConfig{Direction: "dependencies"},
		Versions:  config.VersionsConfig{MaxAttempts: 3, RetryBackoff: time.Millisecond},
		Stats:     config.StatsConfig{Enabled: true, Schedule: "@every 1h"},
	}
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, observability.NewLogger(observability.ErrorLevel, &bytes.Buffer{}))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })
	return a
}

func writeFixtures(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureYAML), 0o644))
	return path
}

func serve(h http.Handler, method, url string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, url, nil))
	return w
}

func TestNewServesBothOperations(t *testing.T) {
	cfg := testConfig(t)
	cfg.Fixtures.Path = writeFixtures(t)
	a := newApp(t, cfg)
	require.NoError(t, a.LoadFixtures(context.Background()))

	w := serve(a.API, http.MethodGet, "/collab/annotations/full_hierarchy/?ids=P2")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `[{"id":"P2"},{"id":"P1"}]`, w.Body.String())

	url := "/collab/files/f1/file_version/deadbeef/"
	assert.Equal(t, http.StatusCreated, serve(a.API, http.MethodPost, url).Code)
	assert.Equal(t, http.StatusOK, serve(a.API, http.MethodPost, url).Code)
	assert.Equal(t, http.StatusNotFound, serve(a.API, http.MethodPost, "/collab/files/f2/file_version/deadbeef/").Code)
}

func TestNewHonoursHierarchyDirection(t *testing.T) {
	cfg := testConfig(t)
	cfg.Hierarchy.Direction = "dependents"
	cfg.Fixtures.Path = writeFixtures(t)
	a := newApp(t, cfg)
	require.NoError(t, a.LoadFixtures(context.Background()))

	got, err := a.Resolver.FullHierarchy(context.Background(), []collab.EntityID{"P1"})
	require.NoError(t, err)
	assert.Equal(t, []collab.EntityID{"P1", "P2"}, got)
}

func TestNewRejectsBadConfig(t *testing.T) {
	logger := observability.NewLogger(observability.ErrorLevel, &bytes.Buffer{})

	cfg := testConfig(t)
	cfg.Storage.Type = "cassandra"
	_, err := New(context.Background(), cfg, logger)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Hierarchy.Direction = "sideways"
	_, err = New(context.Background(), cfg, logger)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Storage.RedisURL = "not a url"
	_, err = New(context.Background(), cfg, logger)
	assert.Error(t, err)
}

func TestNewWithSQLiteAndRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Storage.Type = "sqlite"
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "collab.db")
	cfg.Storage.RedisURL = "redis://" + mr.Addr()
	a := newApp(t, cfg)

	_, ok := a.Repo.(*sqlstore.Store)
	require.True(t, ok)
	require.NotNil(t, a.Cache)
	assert.NotNil(t, a.Cache.Redis())

	ctx := context.Background()
	require.NoError(t, a.Repo.CreateFile(ctx, &collab.File{ID: "f1", Name: "a"}))

	_, created, err := a.Versions.GetOrCreateVersion(ctx, "f1", "abc")
	require.NoError(t, err)
	assert.True(t, created)
	_, created, err = a.Versions.GetOrCreateVersion(ctx, "f1", "abc")
	require.NoError(t, err)
	assert.False(t, created)

	w := serve(a.HealthHandler(), http.MethodGet, "/health/ready")
	require.Equal(t, http.StatusOK, w.Code)
	var status observability.HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, observability.StatusHealthy, status.Status)
	assert.Contains(t, status.Dependencies, "storage")
	assert.Contains(t, status.Dependencies, "redis")

	require.NoError(t, a.RefreshStats(ctx))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.FilesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.FileVersionsTotal))
}

func TestHealthHandlerMetrics(t *testing.T) {
	a := newApp(t, testConfig(t))

	serve(a.API, http.MethodGet, "/collab/annotations/full_hierarchy/?ids=A")

	w := serve(a.HealthHandler(), http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "collab_http_requests_total")
	assert.Contains(t, w.Body.String(), "go_goroutines")

	assert.Equal(t, http.StatusOK, serve(a.HealthHandler(), http.MethodGet, "/health/live").Code)
}

func TestHealthHandlerWithoutMetrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.Observability.MetricsEnabled = false
	a := newApp(t, cfg)

	assert.Nil(t, a.Metrics)
	assert.Equal(t, http.StatusNotFound, serve(a.HealthHandler(), http.MethodGet, "/metrics").Code)
	require.NoError(t, a.StartStats())
	assert.Nil(t, a.scheduler)
}

func TestRefreshStats(t *testing.T) {
	cfg := testConfig(t)
	cfg.Fixtures.Path = writeFixtures(t)
	a := newApp(t, cfg)
	require.NoError(t, a.LoadFixtures(context.Background()))

	require.NoError(t, a.StartStats())
	require.NotNil(t, a.scheduler)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.FilesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.EdgesTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(a.Metrics.FileVersionsTotal))
}

func TestStartStatsRejectsBadSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Stats.Schedule = "whenever"
	a := newApp(t, cfg)

	assert.Error(t, a.StartStats())
}

func TestLoadFixturesMissingFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Fixtures.Path = filepath.Join(t.TempDir(), "missing.yaml")
	a := newApp(t, cfg)

	assert.Error(t, a.LoadFixtures(context.Background()))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Fixtures.Path = writeFixtures(t)
	cfg.Fixtures.Watch = true
	a := newApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	exists, err := a.Repo.FileExists(context.Background(), "f1")
	assert.NoError(t, err)
	assert.True(t, exists)
}

func TestCloseIsIdempotent(t *testing.T) {
	a := newApp(t, testConfig(t))

	assert.NoError(t, a.Close(context.Background()))
	assert.NoError(t, a.Close(context.Background()))
}

func TestRateLimitInMemory(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, Requests: 2, Window: time.Minute}
	a := newApp(t, cfg)

	_, ok := a.Limiter.(*middleware.RateLimiter)
	require.True(t, ok)

	url := "/collab/annotations/full_hierarchy/?ids=A"
	assert.Equal(t, http.StatusOK, serve(a.API, http.MethodGet, url).Code)
	assert.Equal(t, http.StatusOK, serve(a.API, http.MethodGet, url).Code)

	w := serve(a.API, http.MethodGet, url)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.RateLimitedTotal.WithLabelValues("memory")))
}

func TestRateLimitUsesRedisWithoutCache(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Storage.CacheEnabled = false
	cfg.Storage.RedisURL = "redis://" + mr.Addr()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, Requests: 1, Window: time.Minute}
	a := newApp(t, cfg)

	assert.Nil(t, a.Cache)
	_, ok := a.Limiter.(*middleware.DistributedRateLimiter)
	require.True(t, ok)

	url := "/collab/annotations/full_hierarchy/?ids=A"
	assert.Equal(t, http.StatusOK, serve(a.API, http.MethodGet, url).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(a.API, http.MethodGet, url).Code)
	assert.True(t, mr.Exists("collab:ratelimit:ip:192.0.2.1"))
}

func TestRateLimitDisabledByDefault(t *testing.T) {
	a := newApp(t, testConfig(t))
	assert.Nil(t, a.Limiter)

	w := serve(a.API, http.MethodGet, "/collab/annotations/full_hierarchy/?ids=A")
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestAPIServesOpenAPIDocument(t *testing.T) {
	a := newApp(t, testConfig(t))

	w := serve(a.API, http.MethodGet, "/openapi.json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/collab/annotations/full_hierarchy/")

	assert.Equal(t, http.StatusOK, serve(a.API, http.MethodGet, "/swagger-ui").Code)
}
