// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the Gatekeep HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Wire security primitives, repositories, caches, and services.
//  7. Start background workers (cache bust listener, audit writer, janitor).
//  8. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taibuivan/gatekeep/internal/api"
	"github.com/taibuivan/gatekeep/internal/audit"
	"github.com/taibuivan/gatekeep/internal/core/authz"
	"github.com/taibuivan/gatekeep/internal/core/org"
	"github.com/taibuivan/gatekeep/internal/janitor"
	"github.com/taibuivan/gatekeep/internal/platform/config"
	"github.com/taibuivan/gatekeep/internal/platform/constants"
	"github.com/taibuivan/gatekeep/internal/platform/email"
	"github.com/taibuivan/gatekeep/internal/platform/migration"
	pgstore "github.com/taibuivan/gatekeep/internal/platform/postgres"
	redisstore "github.com/taibuivan/gatekeep/internal/platform/redis"
	"github.com/taibuivan/gatekeep/internal/platform/sec"
	"github.com/taibuivan/gatekeep/internal/users/auth"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", "gatekeep"))
	slog.SetDefault(log)

	log.Info("[Gatekeep] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", "gatekeep"))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// appCtx outlives startup and is canceled on shutdown: the rate limiter
	// janitor, the cache bust listener, and the background jobs hang off it.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// Startup gets its own 30s deadline so misconfiguration is caught quickly
	// rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(appCtx, 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Security Primitives ────────────────────────────────────────────
	var jwtSvc *sec.TokenService
	if cfg.JWTSecret != "" {
		jwtSvc, err = sec.NewHS256TokenService(cfg.JWTSecret, constants.AuthIssuer)
	} else {
		jwtSvc, err = sec.NewRS256TokenService(cfg.JWTPrivKeyPath, cfg.JWTPubKeyPath, constants.AuthIssuer)
	}
	must(log, err, "initialize jwt service")

	hasher := sec.NewPasswordHasher(sec.Argon2Params{
		MemoryKiB:   cfg.Argon2Memory,
		Iterations:  cfg.Argon2Iterations,
		Parallelism: cfg.Argon2Parallelism,
	})

	secretBox, err := sec.NewSecretBox(cfg.TwoFactorKey)
	must(log, err, "initialize 2fa secret cipher")

	var sender email.Sender
	if cfg.EmailSMTPAddr != "" {
		sender = email.NewSMTPSender(cfg.EmailFrom, cfg.EmailSMTPAddr)
	} else {
		sender = email.NewLogSender(log)
	}

	// ── 7. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// ── 8. Domain Wiring ──────────────────────────────────────────────────
	// Auth: credentials, sessions, 2FA.
	userRepository := auth.NewUserRepository(pool)
	sessionRepository := auth.NewSessionRepository(pool)
	verificationTokens := auth.NewVerificationTokenRepository(rdb)
	resetTokens := auth.NewResetTokenRepository(rdb)
	twoFactorRepository := auth.NewTwoFactorRepository(rdb)

	authService := auth.NewService(
		userRepository,
		sessionRepository,
		verificationTokens,
		resetTokens,
		twoFactorRepository,
		jwtSvc,
		hasher,
		secretBox,
		sender,
		auth.Options{
			AccessTokenTTL:          cfg.AccessTokenTTL,
			RefreshTokenTTL:         cfg.RefreshTokenTTL,
			UnverifiedAccountMaxAge: time.Duration(cfg.UnverifiedAccountMaxAgeDays) * 24 * time.Hour,
		},
	)
	authHandler := auth.NewHandler(authService)

	// Authorization: snapshot cache, audit chain, PDP, group management.
	snapshotCache := authz.NewCache(rdb, cfg.AuthzL2Enabled, log)
	go snapshotCache.StartInvalidationListener(appCtx)

	auditStore := audit.NewPostgresStore(pool)
	auditWriter := audit.NewWriter(auditStore, log)
	auditWriter.Start()
	defer auditWriter.Close()
	auditService := audit.NewService(auditStore, log)

	orgRepository := org.NewPostgresRepository(pool)
	orgService := org.NewService(orgRepository, snapshotCache, log)
	orgHandler := org.NewHandler(orgService)

	authzRepository := authz.NewPostgresRepository(pool)
	scopeRegistry := authz.NewScopeRegistry()
	pdp := authz.NewPDP(authzRepository, orgRepository, snapshotCache, scopeRegistry, auditWriter, log)
	authzService := authz.NewService(authzRepository, orgRepository, snapshotCache, log)
	authzHandler := authz.NewHandler(pdp, authzService)

	// ── 9. Background Jobs ────────────────────────────────────────────────
	keeper := janitor.New(authService, authService, auditService, janitor.Options{
		AuditRetention: time.Duration(cfg.AuditRetentionDays) * 24 * time.Hour,
		VerifySweep:    cfg.AuditVerifySweep,
	}, log)
	keeper.Start(appCtx)

	// ── 10. HTTP Server ───────────────────────────────────────────────────
	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      authHandler,
		Org:       orgHandler,
		Authz:     authzHandler,
	}

	server := api.NewServer(appCtx, cfg, log, jwtSvc, rdb, handlers)

	// ── 11. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete, then stop the
	// background loops and drain the audit queue.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	appCancel()
	keeper.Wait()

	log.Info("server stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
