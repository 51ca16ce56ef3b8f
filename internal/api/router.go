// Package api wires together all HTTP routes for the federation admin portal.
//
// Route grouping:
//   - /health, /ready and /version are public probes.
//   - /api/auth/login and /api/auth/logout are public; login is rate limited per
//     client IP. /api/auth/me requires a valid admin session.
//   - Everything under /api/admin/ requires a valid admin session. Session
//     revocation for other users and the activity log are super_admin only.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/sports-federation/federation-portal/internal/api/admin"
	"github.com/sports-federation/federation-portal/internal/audit"
	"github.com/sports-federation/federation-portal/internal/auth"
	"github.com/sports-federation/federation-portal/internal/config"
	"github.com/sports-federation/federation-portal/internal/db/repositories"
	"github.com/sports-federation/federation-portal/internal/jobs"
	"github.com/sports-federation/federation-portal/internal/middleware"
	"github.com/sports-federation/federation-portal/internal/safego"
	"github.com/sports-federation/federation-portal/internal/sessions"
)

// Version is the portal release reported by /version and the CLI.
var Version = "0.1.0"

// Dependencies carries the shared resources created by cmd/server.
type Dependencies struct {
	DB        *sql.DB
	Redis     redis.UniversalClient // nil when redis is not configured
	Sessions  sessions.Store
	Activity  *audit.Logger // nil when activity logging is disabled
	Codec     *auth.TokenCodec
	Passwords *auth.PasswordVerifier
}

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	sessionSweeper *jobs.SessionSweeper
	rateLimiters   []*middleware.RateLimiter
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.sessionSweeper != nil {
		bg.sessionSweeper.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, deps Dependencies) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	bg := &BackgroundServices{}

	// Client IPs feed the login throttle and activity records, so forwarding
	// headers are only honoured from configured proxies.
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		slog.Error("invalid trusted proxies, ignoring forwarding headers", "error", err)
		_ = router.SetTrustedProxies(nil)
	}

	// Repositories
	adminUserRepo := repositories.NewAdminUserRepository(deps.DB)
	activityRepo := repositories.NewActivityLogRepository(sqlx.NewDb(deps.DB, "postgres"))

	// Redis sessions expire by key TTL; the other backends need sweeping.
	if deleter, ok := deps.Sessions.(jobs.ExpiredSessionDeleter); ok {
		bg.sessionSweeper = jobs.NewSessionSweeper(deleter, deps.Codec.TTL(), cfg.Sessions.SweepInterval)
		sweeper := bg.sessionSweeper
		safego.Go("session-sweeper", func() { sweeper.Start(context.Background()) })
	}

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware("/health", "/ready"))
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Auth.DevMode)))

	router.GET("/health", healthCheckHandler(deps.DB))
	router.GET("/ready", readinessHandler(deps.DB, deps.Redis))
	router.GET("/version", versionHandler())

	authn := middleware.NewAuthenticator(deps.Codec, deps.Sessions, deps.Activity, cfg.Auth.Cookie.Name, cfg.Audit.LogAuthFailures)

	authHandlers := admin.NewAuthHandlers(adminUserRepo, deps.Passwords, deps.Codec, deps.Sessions, deps.Activity, admin.CookieSettings{
		Name:   cfg.Auth.Cookie.Name,
		Domain: cfg.Auth.Cookie.Domain,
		Secure: cfg.Auth.Cookie.Secure,
	})
	sessionHandlers := admin.NewSessionHandlers(deps.Sessions, adminUserRepo, deps.Activity, deps.Codec.TTL(), authHandlers)
	activityHandlers := admin.NewActivityHandlers(activityRepo)

	authGroup := router.Group("/api/auth")
	{
		loginChain := []gin.HandlerFunc{}
		if limiter := newLoginLimiter(cfg, deps.Redis, bg); limiter != nil {
			loginChain = append(loginChain, middleware.RateLimitMiddleware(limiter))
		}
		loginChain = append(loginChain, authHandlers.LoginHandler())

		authGroup.POST("/login", loginChain...)
		authGroup.POST("/logout", authHandlers.LogoutHandler())
		authGroup.GET("/me", authn.RequireAuth(), authHandlers.MeHandler())
	}

	adminGroup := router.Group("/api/admin", authn.RequireAuth())
	if cfg.Audit.LogMutations {
		adminGroup.Use(middleware.ActivityMiddleware(deps.Activity))
	}
	{
		adminGroup.GET("/sessions", sessionHandlers.ListMySessionsHandler())
		adminGroup.DELETE("/sessions/:id", sessionHandlers.RevokeSessionHandler())

		superAdmin := adminGroup.Group("", authn.RequireSuperAdmin())
		superAdmin.DELETE("/users/:id/sessions", sessionHandlers.RevokeUserSessionsHandler())
		superAdmin.GET("/activity-logs", activityHandlers.ListActivityLogsHandler())
		superAdmin.GET("/activity-logs/:id", activityHandlers.GetActivityLogHandler())
	}

	return router, bg
}

// newLoginLimiter builds the login throttle selected by
// security.rate_limiting.backend, or nil when rate limiting is disabled.
func newLoginLimiter(cfg *config.Config, client redis.UniversalClient, bg *BackgroundServices) middleware.Limiter {
	rl := cfg.Security.RateLimiting
	if !rl.Enabled {
		return nil
	}
	limitCfg := middleware.LoginRateLimitConfig(rl)
	if rl.Backend == "redis" && client != nil {
		slog.Info("login rate limiting enabled", "backend", "redis", "requests_per_minute", limitCfg.RequestsPerMinute)
		return middleware.NewRedisRateLimiter(client, limitCfg)
	}
	limiter := middleware.NewRateLimiter(limitCfg)
	bg.rateLimiters = append(bg.rateLimiters, limiter)
	slog.Info("login rate limiting enabled", "backend", "memory", "requests_per_minute", limitCfg.RequestsPerMinute)
	return limiter
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// redisPinger is the part of the redis client the readiness probe needs.
type redisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks the database and, when configured, Redis.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks Redis so that the
// readiness gate fails when sessions or rate limiting would error.
func readinessHandler(db *sql.DB, client redisPinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		checks := gin.H{}

		if err := db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if client != nil {
			if err := client.Ping(ctx).Err(); err != nil {
				checks["redis"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "redis not ready",
				})
				return
			}
			checks["redis"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current portal version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version": Version,
			"api":     "admin",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logRequest(c, time.Since(start), path, query)
	}
}

// logRequest emits one slog record per request; the handler installed by
// telemetry.SetupLogger decides between JSON and text output.
func logRequest(c *gin.Context, latency time.Duration, path, query string) {
	requestID, _ := c.Get(middleware.RequestIDKey)
	level := slog.LevelInfo
	if c.Writer.Status() >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.LogAttrs(
		c.Request.Context(),
		level,
		"http request",
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", fmt.Sprintf("%v", requestID)),
		slog.String("user_agent", c.Request.UserAgent()),
	)
}

// CORSMiddleware handles CORS. Explicitly listed origins are echoed back with
// credentials allowed so the admin frontend can send the session cookie; a
// wildcard entry never allows credentials.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	if len(cfg.Security.CORS.AllowedMethods) > 0 {
		methods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		explicit, wildcard := false, false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" {
				wildcard = true
			} else if origin != "" && allowedOrigin == origin {
				explicit = true
				break
			}
		}

		switch {
		case explicit:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		case wildcard:
			c.Header("Access-Control-Allow-Origin", "*")
		}
		if explicit || wildcard {
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-Request-ID, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
