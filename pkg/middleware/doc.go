// Package middleware provides per-client rate limiting for the collab
// gateway.
//
// Two Limiter implementations are available:
//
//	limiter := middleware.NewRateLimiter(cfg)                            // in-process token bucket
//	limiter := middleware.NewDistributedRateLimiter(redisClient, cfg, "") // fixed window shared via Redis
//	router.Use(middleware.RateLimit(limiter, metrics))
//
// Clients are keyed by IP (X-Forwarded-For, X-Real-IP, then the remote
// address). Allowed responses carry X-RateLimit-Limit, -Remaining and
// -Reset headers; rejected requests get 429 with Retry-After. A failing
// Redis never blocks traffic.
//
// # Defaults
//
// 600 requests per minute with a burst of 60.
package middleware
