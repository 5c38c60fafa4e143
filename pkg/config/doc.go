// Package config loads and validates collab configuration from environment
// variables, optionally seeded from a .env file.
//
// Server settings:
//
//	COLLAB_HOST="0.0.0.0"
//	COLLAB_PORT="8080"
//	COLLAB_HEALTH_PORT="9090"
//	COLLAB_SHUTDOWN_TIMEOUT="30s"
//
// Storage settings:
//
//	COLLAB_STORAGE_TYPE="postgres"  # memory, sqlite, postgres
//	COLLAB_SQLITE_PATH="collab.db"
//	COLLAB_POSTGRES_URL="postgres://localhost/collab?sslmode=disable"
//	COLLAB_POSTGRES_REPLICA_URLS="postgres://replica1/collab,postgres://replica2/collab"
//
// Cache settings:
//
//	COLLAB_CACHE_ENABLED="true"
//	COLLAB_L1_CACHE_SIZE="10000"
//	COLLAB_REDIS_URL="redis://localhost:6379"
//
// Core settings:
//
//	COLLAB_HIERARCHY_DIRECTION="dependencies"  # dependencies, dependents, both
//	COLLAB_HIERARCHY_MAX_NODES="0"             # 0 = unlimited
//	COLLAB_VERSION_MAX_ATTEMPTS="5"
//
// Rate limiting (per client IP, shared through Redis when COLLAB_REDIS_URL is set):
//
//	COLLAB_RATE_LIMIT_ENABLED="false"
//	COLLAB_RATE_LIMIT_REQUESTS="600"
//	COLLAB_RATE_LIMIT_WINDOW="1m"
//	COLLAB_RATE_LIMIT_BURST="60"
//
// Jobs and observability:
//
//	COLLAB_STATS_SCHEDULE="@every 1m"
//	COLLAB_FIXTURES="fixtures.yaml"
//	COLLAB_LOG_LEVEL="info"
//	COLLAB_OTEL_ENABLED="false"
package config
