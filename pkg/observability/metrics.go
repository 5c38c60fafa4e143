package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can be built without a registry in tests.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Hierarchy metrics
	HierarchyRequestsTotal *prometheus.CounterVec
	HierarchySize          *prometheus.HistogramVec

	// Version metrics
	VersionsCreatedTotal  prometheus.Counter
	VersionsFoundTotal    prometheus.Counter
	VersionConflictsTotal prometheus.Counter

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal prometheus.Counter

	// Database metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBConnectionsIdle  prometheus.Gauge
	DBWaitCount        prometheus.Gauge

	// Storage totals, refreshed by the stats job
	FilesTotal              prometheus.Gauge
	FileVersionsTotal       prometheus.Gauge
	EdgesTotal              prometheus.Gauge
	StatsRefreshErrorsTotal prometheus.Counter

	// Rate limiting
	RateLimitedTotal     *prometheus.CounterVec
	RateLimitErrorsTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collab_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "collab_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "collab_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "route"},
		),

		HierarchyRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collab_hierarchy_requests_total",
				Help: "Total number of full hierarchy resolutions",
			},
			[]string{"direction", "status"},
		),
		HierarchySize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "collab_hierarchy_size",
				Help:    "Number of entities returned by a full hierarchy resolution",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{"direction"},
		),

		VersionsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "collab_versions_created_total",
				Help: "Total number of file versions created",
			},
		),
		VersionsFoundTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "collab_versions_found_total",
				Help: "Total number of get-or-create calls that found an existing version",
			},
		),
		VersionConflictsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "collab_version_conflicts_total",
				Help: "Total number of retried version insert races",
			},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collab_cache_hits_total",
				Help: "Total number of version cache hits",
			},
			[]string{"layer"},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "collab_cache_misses_total",
				Help: "Total number of version cache misses",
			},
		),

		DBConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "collab_db_connections_open",
				Help: "Number of open database connections",
			},
		),
		DBConnectionsInUse: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "collab_db_connections_in_use",
				Help: "Number of database connections in use",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "collab_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "collab_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),

		FilesTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "collab_files_total",
				Help: "Total number of files",
			},
		),
		FileVersionsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "collab_file_versions_total",
				Help: "Total number of file versions",
			},
		),
		EdgesTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "collab_dependency_edges_total",
				Help: "Total number of dependency edges",
			},
		),
		StatsRefreshErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "collab_stats_refresh_errors_total",
				Help: "Total number of failed storage stats refreshes",
			},
		),

		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collab_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"limiter"},
		),
		RateLimitErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "collab_rate_limit_errors_total",
				Help: "Total number of rate limiter backend errors (requests were allowed)",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.HierarchyRequestsTotal,
		m.HierarchySize,
		m.VersionsCreatedTotal,
		m.VersionsFoundTotal,
		m.VersionConflictsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.DBConnectionsIdle,
		m.DBWaitCount,
		m.FilesTotal,
		m.FileVersionsTotal,
		m.EdgesTotal,
		m.StatsRefreshErrorsTotal,
		m.RateLimitedTotal,
		m.RateLimitErrorsTotal,
	)

	return m
}

// ObserveHierarchy records one resolution and its result size
func (m *Metrics) ObserveHierarchy(direction string, size int, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.HierarchyRequestsTotal.WithLabelValues(direction, status).Inc()
	if err == nil {
		m.HierarchySize.WithLabelValues(direction).Observe(float64(size))
	}
}

// ObserveVersion records the outcome of a get-or-create call
func (m *Metrics) ObserveVersion(created bool) {
	if m == nil {
		return
	}
	if created {
		m.VersionsCreatedTotal.Inc()
	} else {
		m.VersionsFoundTotal.Inc()
	}
}

// ObserveVersionConflict records a retried insert race
func (m *Metrics) ObserveVersionConflict() {
	if m == nil {
		return
	}
	m.VersionConflictsTotal.Inc()
}

// ObserveCache records a cache lookup; layer is empty on a miss
func (m *Metrics) ObserveCache(layer string) {
	if m == nil {
		return
	}
	if layer == "" {
		m.CacheMissesTotal.Inc()
		return
	}
	m.CacheHitsTotal.WithLabelValues(layer).Inc()
}

// ObserveRateLimit records a rejected request or a limiter backend error
func (m *Metrics) ObserveRateLimit(limiter string, rejected bool, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.RateLimitErrorsTotal.Inc()
	}
	if rejected {
		m.RateLimitedTotal.WithLabelValues(limiter).Inc()
	}
}

// RecordStorageTotals sets the storage total gauges
func (m *Metrics) RecordStorageTotals(files, versions, edges int64) {
	if m == nil {
		return
	}
	m.FilesTotal.Set(float64(files))
	m.FileVersionsTotal.Set(float64(versions))
	m.EdgesTotal.Set(float64(edges))
}

// RecordDBStats copies connection pool statistics into the gauges
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	m.DBConnectionsInUse.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBWaitCount.Set(float64(stats.WaitCount))
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel returns the matched mux path template so label cardinality
// stays bounded by the route table rather than by file ids.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, gatherer prometheus.Gatherer) {
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
