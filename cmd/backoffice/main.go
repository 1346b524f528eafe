package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/annotation-backoffice/backoffice/internal/api"
	"github.com/annotation-backoffice/backoffice/internal/app"
	"github.com/annotation-backoffice/backoffice/internal/auth"
	"github.com/annotation-backoffice/backoffice/internal/dashboard"
	"github.com/annotation-backoffice/backoffice/internal/observability"
	"github.com/annotation-backoffice/backoffice/internal/platform/cache"
	"github.com/annotation-backoffice/backoffice/internal/platform/db"
	"github.com/annotation-backoffice/backoffice/internal/rbac"
	"github.com/annotation-backoffice/backoffice/internal/shared"
	"github.com/annotation-backoffice/backoffice/internal/users"
	"github.com/annotation-backoffice/backoffice/internal/view"
)

const usage = "usage: backoffice [serve|provision]"

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	switch command {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "provision":
		err = provision(ctx, cfg, logger)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error(command, slog.Any("error", err))
		os.Exit(1)
	}
}

// provision applies migrations and syncs the role and permission tables.
func provision(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	if err := db.Migrate(ctx, cfg.PGDSN); err != nil {
		return err
	}
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	_, err = newRBACService(pool, redisClient, logger).Provision(ctx)
	return err
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, cfg.PGDSN); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	rbacService := newRBACService(pool, redisClient, logger)
	if cfg.ProvisionOnStart {
		if _, err := rbacService.Provision(ctx); err != nil {
			return err
		}
	}

	metrics := observability.NewMetrics()
	sessionManager := shared.NewSessionManager(redisClient, "backoffice_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	pages := view.NewEngine(csrfManager, cfg.AppVersion)

	guard := rbac.Middleware{Resolver: rbacService, Tokens: tokens, Logger: logger}

	policy := users.NewPolicy(users.PolicyOptions{PreventSelfDelete: cfg.AuthzPreventSelfDelete}, metrics)
	usersService := users.NewService(users.NewRepository(pool), policy, auth.HashPassword, logger)
	pages.Share(users.AuthProps(usersService))

	authService := auth.NewService(auth.NewRepository(pool))

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		RBACMiddleware:   guard,
		AuthHandler:      auth.NewHandler(logger, authService, pages, sessionManager, csrfManager),
		DashboardHandler: dashboard.NewHandler(logger, pages),
		UsersHandler:     users.NewHandler(logger, usersService, pages),
		RolesHandler:     rbac.NewHandler(logger, rbacService),
		APIHandler:       api.NewHandler(logger, usersService, authService, tokens, guard),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// newRBACService shares the binding generation through Redis so provisioning
// from any process reaches every server's cache.
func newRBACService(pool *pgxpool.Pool, redisClient *redis.Client, logger *slog.Logger) *rbac.Service {
	store := rbac.NewPGStore(pool)
	bindings := rbac.NewBindingCache(store, rbac.WithSharedGeneration(rbac.NewRedisGeneration(redisClient)))
	return rbac.NewService(store, bindings, logger)
}
