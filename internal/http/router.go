// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, compression, idempotency, and rate limiting.
//
// The websocket endpoint is mounted at the root, outside the API group: it
// authenticates from its own handshake and must not be compressed, rate
// limited per request or rejected for a stale token.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/slotboard/docs" // swagger spec registration
	"github.com/tbourn/slotboard/internal/auth"
	"github.com/tbourn/slotboard/internal/config"
	"github.com/tbourn/slotboard/internal/domain"
	"github.com/tbourn/slotboard/internal/http/handlers"
	"github.com/tbourn/slotboard/internal/http/middleware"
	"github.com/tbourn/slotboard/internal/realtime"
	"github.com/tbourn/slotboard/internal/repo"
	"github.com/tbourn/slotboard/internal/services"
)

// App carries the process-wide collaborators the routes are built from.
// Housekeeper is nil when retention is disabled.
type App struct {
	DB          *gorm.DB
	Hub         *realtime.Hub
	Tokens      *auth.Tokens
	Housekeeper handlers.Housekeeper
	Log         zerolog.Logger
}

// idempotencyStore persists keyed-create outcomes for cfg.IdempotencyTTL.
type idempotencyStore struct {
	db  *gorm.DB
	ttl time.Duration
}

func (s idempotencyStore) Remember(ctx context.Context, userID uint, scope, key string, resourceID uint, status int) error {
	_, err := repo.CreateIdempotency(ctx, s.db, userID, scope, key, resourceID, status, s.ttl)
	return err
}

func (s idempotencyStore) lookup(ctx context.Context, userID uint, scope, key string, now time.Time) (*domain.Idempotency, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, userID, scope, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

// RegisterRoutes attaches all middleware and endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII and token scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics (health and scrape requests excluded)
//  7. CORS and security headers
//  8. gzip (never on /ws or /metrics)
//
// The API group then adds, in order: Authenticate, the idempotency
// validator (so a replay can bypass the limiter) and the rate limiter (keyed
// by user once authenticated).
func RegisterRoutes(r *gin.Engine, app App, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))
	r.Use(middleware.Metrics("/metrics", "/health"))
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws", "/metrics"})))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services <- db/hub/tokens
	accounts := services.NewAuthService(app.DB, app.Tokens)
	idem := idempotencyStore{db: app.DB, ttl: cfg.IdempotencyTTL}
	h := handlers.New(handlers.Deps{
		Accounts:    accounts,
		Catalog:     services.NewCatalogService(app.DB),
		Writer:      services.NewCoordinator(app.DB, app.Hub, app.Log),
		Reader:      services.NewQueryService(app.DB),
		Housekeeper: app.Housekeeper,
		Idempotency: idem,
		Fabric:      app.Hub,
		WS: handlers.WSOptions{
			Conn: realtime.ConnOptions{
				SendBuffer:      cfg.Realtime.SendBuffer,
				WriteWait:       cfg.Realtime.WriteWait,
				PingInterval:    cfg.Realtime.PingInterval,
				PongWait:        cfg.Realtime.PongWait,
				MaxMessageBytes: cfg.Realtime.MaxMessageBytes,
			},
			RateRPS:        cfg.Realtime.RateRPS,
			RateBurst:      cfg.Realtime.RateBurst,
			AllowedOrigins: cfg.CORS.AllowedOrigins,
		},
		Log: app.Log,
	})

	r.GET("/ws", h.ServeWS)

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(
		middleware.Authenticate(accounts.Resolve),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idem.lookup),
		rl.Handler(),
	)
	{
		// Accounts
		api.POST("/auth/login", h.Login)
		api.GET("/auth/me", h.Me)
		api.GET("/auth/users", h.ListUsers)
		api.POST("/auth/users", h.CreateUser)
		api.PATCH("/auth/users/:id/role", h.SetRole)

		// Catalog
		api.GET("/episodes", h.ListEpisodes)
		api.POST("/episodes", h.CreateEpisode)
		api.GET("/maps", h.ListMaps)
		api.POST("/maps", h.CreateMap)
		api.GET("/channels", h.ListChannels)

		// Trackers
		api.GET("/trackers", h.ListTrackers)
		api.POST("/trackers", h.CreateTracker)
		api.PATCH("/trackers/:id", h.UpdateTracker)
		api.DELETE("/trackers/:id", h.DeleteTracker)

		// Chat
		api.GET("/chat/history", h.ChatHistory)
		api.GET("/chat/stats", h.ChatStats)
		api.POST("/chat/messages", h.SendChatMessage)
		api.DELETE("/chat/messages/:id", h.DeleteChatMessage)

		// Presence and maintenance
		api.GET("/online", h.Online)
		api.POST("/admin/housekeeping", h.RunHousekeeping)
	}
}

// corsMiddleware allows any origin when allowed is empty (without
// credentials), otherwise only the listed ones.
func corsMiddleware(allowed []string) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After", handlers.HeaderReplayed},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(allowed) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = allowed
	}
	return cors.New(c)
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
