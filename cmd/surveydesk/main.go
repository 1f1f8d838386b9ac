// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/olegiv/surveydesk/internal/auth"
	"github.com/olegiv/surveydesk/internal/cache"
	"github.com/olegiv/surveydesk/internal/config"
	"github.com/olegiv/surveydesk/internal/handler/api"
	"github.com/olegiv/surveydesk/internal/logging"
	"github.com/olegiv/surveydesk/internal/middleware"
	"github.com/olegiv/surveydesk/internal/service"
	"github.com/olegiv/surveydesk/internal/session"
	"github.com/olegiv/surveydesk/internal/store"
	"github.com/olegiv/surveydesk/internal/survey"
	"github.com/olegiv/surveydesk/internal/util"
	"github.com/olegiv/surveydesk/internal/version"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = "dev"
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

// Global API rate limit per client IP.
const (
	apiRateLimit      = 10.0
	apiRateBurst      = 20
	apiLimiterMaxKeys = 10000
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")
	revokeSessions := flag.String("revoke-sessions", "", "Revoke every session of the account with this email and exit")
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "surveydesk - assessment portal API\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  SURVEYDESK_DB_PATH          SQLite database path (default: ./data/surveydesk.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  SURVEYDESK_SERVER_PORT      Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  SURVEYDESK_ENV              Environment: development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  SURVEYDESK_FRONTEND_ORIGIN  Extra allowed CORS origins, comma-separated\n")
		_, _ = fmt.Fprintf(os.Stderr, "  SURVEYDESK_SESSION_BACKEND  Session storage: sql|redis (default: sql)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  SURVEYDESK_REDIS_URL        Redis URL for sessions and login lockout (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  SURVEYDESK_DO_SEED          Create the initial admin account (default: false)\n")
	}
	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	info := version.Info{
		Version:   appVersion,
		GitCommit: appGitCommit,
		BuildTime: appBuildTime,
	}

	if *showVersion {
		_, _ = fmt.Printf("surveydesk %s\n", info.Long())
		os.Exit(0)
	}

	if err := run(info, *revokeSessions); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run(info version.Info, revokeEmail string) error {
	// Load .env file if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := parseLogLevel(cfg.LogLevel)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	// Ensure data directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	slog.Info("initializing database", "path", cfg.DBPath)
	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}(db)

	slog.Info("running database migrations")
	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database ready")

	// Upgrade logger to also write WARN and ERROR logs to the Event Log database
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	eventLogHandler := logging.NewEventLogHandler(textHandler, db).WithRequestPath(middleware.GetRequestPath)
	slog.SetDefault(slog.New(eventLogHandler))
	slog.Info("event log integration enabled", "min_level", "warn")

	ctx := context.Background()
	if err := store.Seed(ctx, db, store.SeedOptions{
		Enabled:       cfg.DoSeed,
		AdminEmail:    cfg.AdminEmail,
		AdminPassword: cfg.AdminPassword,
	}); err != nil {
		return fmt.Errorf("seeding database: %w", err)
	}

	sessionStore, closeSessions, err := newSessionStore(cfg, db)
	if err != nil {
		return err
	}
	defer closeSessions()
	sessions := session.NewManager(sessionStore, cfg.SessionTTL)
	slog.Info("session manager initialized", "ttl", sessions.TTL())

	events := service.NewEventService(db)

	// Login lockout state, shared across instances when Redis is configured
	attempts, isRedis, err := cache.New(cache.Config{
		RedisURL:         cfg.RedisURL,
		Prefix:           cfg.RedisPrefix,
		DefaultTTL:       cfg.LoginLockout,
		CleanupInterval:  time.Minute,
		FallbackToMemory: true,
	})
	if err != nil {
		return fmt.Errorf("initializing login attempt cache: %w", err)
	}
	defer func() { _ = attempts.Close() }()

	loginProtection := middleware.NewLoginProtection(middleware.LoginProtectionConfig{
		IPRateLimit:       cfg.LoginRateLimit,
		IPBurst:           cfg.LoginBurst,
		MaxFailedAttempts: cfg.LoginMaxFailures,
		LockoutDuration:   cfg.LoginLockout,
		AttemptWindow:     cfg.LoginLockout,
	}, attempts)
	defer loginProtection.Stop()
	slog.Info("login protection initialized",
		"ip_rate_limit", cfg.LoginRateLimit,
		"max_failed_attempts", cfg.LoginMaxFailures,
		"lockout_duration", cfg.LoginLockout,
		"redis", isRedis,
	)

	authService := service.NewAuthService(db, sessions, events, loginProtection)

	if revokeEmail != "" {
		return revokeAccountSessions(ctx, db, authService, revokeEmail)
	}

	catalog, err := survey.DefaultCatalog()
	if err != nil {
		return fmt.Errorf("loading survey catalog: %w", err)
	}
	slog.Info("survey catalog loaded", "surveys", catalog.Len())

	corsPolicy := middleware.NewCORSPolicy(middleware.CORSConfig{
		DefaultOrigins: []string{config.DefaultFrontendOrigin},
		ExtraOrigins:   cfg.ExtraOrigins(),
	})
	slog.Info("CORS policy initialized", "origins", corsPolicy.Origins())

	// The key only satisfies the gorilla-compatible API; checks use Fetch metadata
	csrfKey := make([]byte, 32)
	if _, err := rand.Read(csrfKey); err != nil {
		return fmt.Errorf("generating CSRF key: %w", err)
	}
	csrfMiddleware := middleware.CSRF(middleware.NewCSRFConfig(csrfKey, corsPolicy.Origins(), cfg.IsDevelopment()))

	rateLimiter := middleware.NewGlobalRateLimiter(apiRateLimit, apiRateBurst)
	stopPrune := startLimiterPrune(rateLimiter)
	defer stopPrune()

	resolver := session.NewResolver(sessions, store.New(db), auth.SessionCookieName)

	router := api.NewRouter(api.RouterConfig{
		CORS: corsPolicy,
		Gate: middleware.NewAuthGate(resolver, events),
		Auth: api.NewAuthHandler(authService, api.CookieConfig{
			Name:   auth.SessionCookieName,
			Secure: !cfg.IsDevelopment(),
		}),
		Surveys:         api.NewSurveysHandler(catalog, service.NewSubmissionService(db, catalog, events)),
		Health:          api.NewHealthHandler(db, info.String()),
		LoginProtection: loginProtection,
		RateLimiter:     rateLimiter,
		CSRF:            csrfMiddleware,
		SecurityHeaders: middleware.DefaultSecurityHeadersConfig(cfg.IsDevelopment()),
		RequestTimeout:  30 * time.Second,
		LogRequests:     true,
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env, "version", info.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newSessionStore selects the session backend. The returned func releases it.
func newSessionStore(cfg *config.Config, db *sql.DB) (session.Store, func(), error) {
	if cfg.SessionBackend != config.SessionBackendRedis {
		slog.Info("session store initialized", "backend", "sql")
		return session.NewSQLStore(db), func() {}, nil
	}

	client, err := cache.NewRedisClient(cfg.RedisURL, 5*time.Second)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to redis session store: %w", err)
	}
	slog.Info("session store initialized", "backend", "redis", "prefix", cfg.RedisPrefix)
	return session.NewRedisStore(client, cfg.RedisPrefix), func() { _ = client.Close() }, nil
}

// startLimiterPrune periodically drops per-IP limiter state.
func startLimiterPrune(rl *middleware.GlobalRateLimiter) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if rl.Prune(apiLimiterMaxKeys) {
					slog.Info("rate limiter state pruned")
				}
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

func revokeAccountSessions(ctx context.Context, db *sql.DB, authService *service.AuthService, email string) error {
	user, err := store.New(db).GetUserByEmail(ctx, util.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("looking up %s: %w", email, err)
	}
	n, err := authService.RevokeAllSessions(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("revoking sessions: %w", err)
	}
	_, _ = fmt.Printf("revoked %d session(s) for %s\n", n, user.Email)
	return nil
}
