// Package httpapi wires the HTTP transport (Gin) to the session service,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, turn idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-session-store/internal/config"
	"github.com/tbourn/go-session-store/internal/http/handlers"
	"github.com/tbourn/go-session-store/internal/http/middleware"
	"github.com/tbourn/go-session-store/internal/repo"
	"github.com/tbourn/go-session-store/internal/services"
)

// maxBodyBytes caps request bodies. Turns carry two message texts plus JSON
// overhead, so 1 MiB is generous.
const maxBodyBytes = 1 << 20

// Deps are the runtime dependencies RegisterRoutes mounts handlers over.
// Redis is optional: nil selects the in-memory rate limiter and drops the
// redis component from /health/detailed.
type Deps struct {
	DB      *gorm.DB
	Session *services.SessionService
	Redis   *redis.Client
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, CORS and security headers, health, docs and metrics endpoints, and
// then mounts the session API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with thread key and PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Gzip response compression
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay; Redis-backed when configured)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
		MaskParams:  []string{"key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit
	r.Use(limitBody(maxBodyBytes))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Compress JSON responses; /metrics negotiates its own encoding.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 128},
		completedTurnLookup(deps.DB),
	))

	// 9) Rate limiter per user/IP
	r.Use(newLimiter(deps.Redis, cfg).Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", "If-None-Match", middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After", middleware.HeaderIdempotencyReplayed, handlers.HeaderInboundID}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS).
	// Conversation content must not sit in shared caches.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	docsPath := ""
	if cfg.SwaggerEnabled {
		docsPath = "/swagger/index.html"
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(deps.Session, handlers.AppInfo{
		Name:     cfg.AppName,
		Version:  cfg.AppVersion,
		DocsPath: docsPath,
	}, healthChecks(deps)...)

	// Info and health
	r.GET("/", h.Info)
	r.GET("/health", h.Health)
	r.GET("/health/detailed", h.HealthDetailed)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath) // e.g. "/api/v1"
	{
		// Threads
		api.POST("/threads", h.StartThread)
		api.GET("/threads", h.ListThreads)
		api.GET("/threads/:key", h.GetThread)
		api.PATCH("/threads/:key/metadata", h.UpdateThreadMetadata)
		api.DELETE("/threads/:key", h.DeleteThread)
		api.POST("/channels/:channel_id/threads", h.NewChannelThread)

		// Messages
		api.POST("/threads/:key/turns", h.RecordTurn)
		api.POST("/threads/:key/messages", h.AppendMessage)
		api.GET("/threads/:key/messages", h.ListMessages)

		// Audit
		api.POST("/audit", h.RecordAudit)
		api.GET("/audit", h.QueryAudit)
	}
}

// completedTurnLookup reports whether the thread named by threadKey already
// holds a finished turn under key. Unknown threads and lookup errors count
// as misses; the handler re-resolves the turn authoritatively.
func completedTurnLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, threadKey, key string, now time.Time) (bool, error) {
		conv, err := repo.GetConversationByThreadKey(ctx, db, threadKey)
		if err != nil {
			if repo.IsNotFound(err) {
				return false, nil
			}
			return false, err
		}
		t, err := repo.GetTurn(ctx, db, conv.ID, key, now)
		if err != nil {
			if repo.IsNotFound(err) {
				return false, nil
			}
			return false, err
		}
		return t.Complete(), nil
	}
}

// newLimiter picks the shared Redis limiter when a client is configured and
// the process-local token bucket otherwise.
func newLimiter(rdb *redis.Client, cfg config.Config) middleware.Limiter {
	if rdb != nil {
		// RateBurst requests per second-long window matches the token bucket's
		// short-term ceiling.
		return middleware.NewRedisRateLimiter(rdb, cfg.RateBurst, time.Second, middleware.KeyByUserOrIP())
	}
	return middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
}

// healthChecks lists the components /health/detailed probes.
func healthChecks(deps Deps) []handlers.HealthCheck {
	checks := []handlers.HealthCheck{{
		Name:  "database",
		Check: func(ctx context.Context) error { return repo.Ping(ctx, deps.DB) },
	}}
	if deps.Redis != nil {
		checks = append(checks, handlers.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() },
		})
	}
	return checks
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
