// @title           Federation Admin Portal API
// @version         0.1.0
// @description     Administrator authentication, session management and activity log for the federation portal
// @basePath        /
// @schemes         http https
// @securityDefinitions.apiKey  AdminCookie
// @in                          cookie
// @name                        admin_token
//
// @tag.name         System
// @tag.description  Health, readiness, and version endpoints.
//
// @tag.name         Observability
// @tag.description  Prometheus metrics are served on a dedicated side-channel port (default: 9090) that is separate from the main API server, at GET /metrics. Configure the port with FED_TELEMETRY_METRICS_PROMETHEUS_PORT.

// Package main is the entry point for the federation portal server binary.
// It dispatches three subcommands (serve, migrate and version) via a simple
// switch on os.Args. The serve command runs auto-migration on startup so
// freshly deployed containers never need a separate migration step.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sports-federation/federation-portal/internal/api"
	"github.com/sports-federation/federation-portal/internal/audit"
	"github.com/sports-federation/federation-portal/internal/auth"
	"github.com/sports-federation/federation-portal/internal/config"
	"github.com/sports-federation/federation-portal/internal/db"
	"github.com/sports-federation/federation-portal/internal/db/repositories"
	"github.com/sports-federation/federation-portal/internal/sessions"
	"github.com/sports-federation/federation-portal/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}
	if command == "version" {
		fmt.Printf("Federation Portal v%s\n", api.Version)
		return nil
	}

	if err := config.LoadDotEnv(os.Getenv("DOTENV_PATH")); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

func serve(cfg *config.Config) error {
	// Initialise structured logger as early as possible so all subsequent log output
	// uses the configured format (json / text) and level.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)
	if cfg.OnReload(func(next *config.Config) { telemetry.SetLevel(next.Logging.Level) }) {
		slog.Info("watching config file for log level changes")
	}

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	secret, err := auth.ResolveSecret(cfg.Auth.JWTSecret, cfg.Auth.DevMode)
	if err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}
	passwords, err := auth.NewPasswordVerifier(cfg.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}
	codec := auth.NewTokenCodec(secret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("connecting to database",
		"host", cfg.Database.Host, "port", cfg.Database.Port,
		"user", cfg.Database.User, "dbname", cfg.Database.Name, "sslmode", cfg.Database.SSLMode)

	database, err := db.Connect(ctx, cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	telemetry.StartDBStatsCollector(ctx, database)

	slog.Info("running database migrations")
	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if version, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema ready", "version", version, "dirty", dirty)
	}

	sqlxDB := sqlx.NewDb(database, "postgres")

	var redisClient redis.UniversalClient
	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			client.Close()
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer client.Close()
		redisClient = client
		slog.Info("connected to redis", "addr", cfg.Redis.Addr)
	}

	store, err := sessions.NewStore(sessions.Deps{Config: cfg, DB: sqlxDB, Redis: redisClient})
	if err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}
	slog.Info("session store ready", "backend", cfg.Sessions.Backend)

	activity, err := newActivityLogger(cfg, sqlxDB)
	if err != nil {
		return err
	}

	// Prometheus metrics live on a dedicated port so the scrape path is not
	// reachable through the public API ingress.
	var metricsServer *http.Server
	if cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("starting Prometheus metrics server", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	router, bgServices := api.NewRouter(cfg, api.Dependencies{
		DB:        database,
		Redis:     redisClient,
		Sessions:  store,
		Activity:  activity,
		Codec:     codec,
		Passwords: passwords,
	})

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", cfg.Server.GetAddress(),
			"base_url", cfg.Server.BaseURL,
			"tls", cfg.Security.TLS.Enabled,
			"dev_mode", cfg.Auth.DevMode)

		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		bgServices.Shutdown()
		return fmt.Errorf("failed to start server: %w", err)
	}

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// Stop background jobs and rate limiter goroutines
	bgServices.Shutdown()

	if err := activity.Close(shutdownCtx); err != nil {
		slog.Warn("activity shipping did not drain cleanly", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown", "error", err)
		}
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newActivityLogger returns nil when activity logging is disabled.
func newActivityLogger(cfg *config.Config, sqlxDB *sqlx.DB) (*audit.Logger, error) {
	if !cfg.Audit.Enabled {
		slog.Warn("activity logging disabled")
		return nil, nil
	}

	multi, err := audit.NewMultiShipper(cfg.Audit.Shippers)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audit shippers: %w", err)
	}
	var shipper audit.Shipper
	if multi != nil {
		shipper = multi
	}
	return audit.NewLogger(repositories.NewActivityLogRepository(sqlxDB), shipper), nil
}

func runMigrations(cfg *config.Config, direction string) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	database, err := db.Connect(context.Background(), cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	slog.Info("running migrations", "direction", direction)

	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	slog.Info("migration completed", "version", version, "dirty", dirty)
	return nil
}
