// Package server initializes and runs the identity server. It opens the
// database and Redis connections, runs migrations, wires the services, and
// starts the HTTP endpoint with graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/carecircle/carecircle/internal/logging"
	"github.com/carecircle/carecircle/internal/server/config"
	"github.com/carecircle/carecircle/internal/server/httpapi"
	"github.com/carecircle/carecircle/internal/server/lockout"
	"github.com/carecircle/carecircle/internal/server/repositories/repomanager"
	"github.com/carecircle/carecircle/internal/server/services"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	redis  *redis.Client
	server *httpapi.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	lc := lockout.NewCounter(redisClient, lockout.Config{
		Threshold:     cfg.LockoutThreshold,
		AttemptWindow: cfg.LockoutAttemptWindow,
		LockDuration:  cfg.LockoutDuration,
	}, logger)
	if !lc.Available(ctx) {
		// The lockout store is optional at startup: logins fail open.
		logger.Warn(ctx, "lockout store unreachable at startup", "addr", cfg.RedisAddr)
	}

	credentials := services.NewCredentialService(db, m, lc, cfg, logger)
	apiKeys := services.NewAPIKeyService(db, m, logger)
	invitations := services.NewInvitationService(db, m, cfg.InvitationTTL, logger)

	srv := httpapi.New(cfg.EndpointAddrHTTP, credentials, apiKeys, invitations,
		[]byte(cfg.AccessTokenSecret), logger)

	return &App{config: cfg, logger: logger, db: db, redis: redisClient, server: srv}, nil
}

// Run serves HTTP until the context is cancelled or an OS signal arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "starting app", "addr", app.config.EndpointAddrHTTP)

	err := app.server.Run(ctx)

	if closeErr := app.redis.Close(); closeErr != nil {
		app.logger.Error(ctx, "error closing redis client", "error", closeErr)
	}
	if closeErr := app.db.Close(); closeErr != nil {
		app.logger.Error(ctx, "error closing db", "error", closeErr)
	}

	return err
}
