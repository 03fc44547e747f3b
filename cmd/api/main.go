package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/pharmacy-auth/internal/api/http"
	"github.com/spec-kit/pharmacy-auth/internal/api/http/handlers"
	"github.com/spec-kit/pharmacy-auth/internal/auth"
	"github.com/spec-kit/pharmacy-auth/internal/config"
	"github.com/spec-kit/pharmacy-auth/internal/events"
	"github.com/spec-kit/pharmacy-auth/internal/observability"
	"github.com/spec-kit/pharmacy-auth/internal/persistence"
	"github.com/spec-kit/pharmacy-auth/internal/ratelimit"
	"github.com/spec-kit/pharmacy-auth/internal/repository"
	"github.com/spec-kit/pharmacy-auth/internal/service"
	"github.com/spec-kit/pharmacy-auth/internal/verification"
	"github.com/spec-kit/pharmacy-auth/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("refusing to start: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	if !pg.Configured() {
		logger.Fatal("POSTGRES_DSN is required for account lookups")
	}

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.DefaultMigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	accounts := repository.NewAccountRepository(pg.PoolHandle())

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret)
	if err != nil {
		logger.Fatal("failed to init token manager", zap.Error(err))
	}
	sessions := auth.NewSessionManager(tokens, auth.NewRevocationList(nil), auth.SessionSettingsFromConfig(*cfg))

	var codeStore verification.Store = verification.NewMemoryStore()
	if cfg.Verification.Store == config.VerificationStoreRedis {
		codeStore = verification.NewRedisStore(redis.Client, nil)
	}
	codes := verification.NewManager(codeStore, verification.Settings{
		TTL:         cfg.Verification.CodeTTL,
		DailyCap:    cfg.Verification.DailyCap,
		MaxAttempts: cfg.Verification.MaxAttempts,
	})

	dispatcher := events.NewInMemoryDispatcher()
	service.NewNotificationService(dispatcher, logger, service.NewLogMailer(logger, cfg.Notification)).RegisterHandlers()

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		Accounts:   accounts,
		Sessions:   sessions,
		Codes:      codes,
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	limiter := ratelimit.New()
	sweeper := worker.NewSweeper(worker.SweeperDependencies{
		Codes:       codes,
		Revocations: sessions.Revocations(),
		Counters:    limiter,
		CounterIdle: longestWindow(cfg.RateLimit),
		Logger:      logger,
	})
	if err := sweeper.Start(cfg.Verification.SweepSchedule); err != nil {
		logger.Fatal("failed to schedule sweeper", zap.Error(err))
	}
	defer sweeper.Stop()

	gate := auth.NewGate(auth.DefaultCapabilities())
	operatorGuard := auth.NewOperatorGuard(cfg.Auth.AdminKey, logger)
	if !operatorGuard.Enabled() {
		logger.Warn("AUTH_ADMIN_KEY not set; operator endpoints disabled")
	}
	metrics := observability.NewMetrics()

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
		"postgres": pg,
		"redis":    redis,
	}, metrics, persistence.ErrNotConfigured)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         healthHandler,
		Auth:           handlers.NewAuthHandler(authService, gate, logger),
		Operator:       handlers.NewOperatorHandler(authService),
		AuthMiddleware: auth.NewAuthMiddleware(sessions, accounts, logger),
		Gate:           gate,
		OperatorGuard:  operatorGuard,
		Limiter:        limiter,
		RateLimit:      cfg.RateLimit,
		Logger:         logger,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.ShutdownWithTimeout(10 * time.Second)
}

func longestWindow(cfg config.RateLimitConfig) time.Duration {
	longest := cfg.Login.Window
	for _, w := range []time.Duration{cfg.Verify.Window, cfg.Session.Window, cfg.Operator.Window} {
		if w > longest {
			longest = w
		}
	}
	return longest
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
