// Package server wires configuration, stores, the auth service and the HTTP
// API together and runs them until a shutdown signal arrives.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sonifoy/authsvc/internal/logging"
	"github.com/sonifoy/authsvc/internal/server/auth"
	"github.com/sonifoy/authsvc/internal/server/config"
	"github.com/sonifoy/authsvc/internal/server/events"
	"github.com/sonifoy/authsvc/internal/server/httpapi"
	"github.com/sonifoy/authsvc/internal/server/repositories/repomanager"
	"github.com/sonifoy/authsvc/internal/server/seed"
	"github.com/sonifoy/authsvc/internal/server/services"
	"github.com/sonifoy/authsvc/internal/server/sessionkeys"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	repos       repomanager.RepositoryManager
	redis       redis.UniversalClient
	authService *services.AuthService
	hasher      auth.PasswordHasher
}

// NewApp connects to the configured stores and builds the auth service.
// Anything opened before a failure is closed again.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	return newApp(ctx, c, logging.NewJSONLogger(os.Stdout, slog.LevelInfo))
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger) (_ *App, err error) {
	app := &App{config: c, logger: logger}
	defer func() {
		if err != nil {
			app.close(ctx)
		}
	}()

	app.repos, err = repomanager.New(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if c.DatabaseDSN == "" {
		logger.Warn(ctx, "No database DSN configured, using in-memory stores")
	}

	if err = app.repos.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	var (
		keys     sessionkeys.Store
		notifier events.Notifier = events.NopNotifier{}
	)
	if c.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		store := sessionkeys.NewRedisStore(app.redis, c.SessionKeyPrefix, c.SessionKeyTTL)
		if err = store.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis init error: %w", err)
		}
		keys = store
		notifier = events.NewRedisPublisher(app.redis, c.EventStream, c.EventStreamMaxLen)
	} else {
		logger.Warn(ctx, "No Redis address configured, session keys kept in memory and events dropped")
		keys = sessionkeys.NewMemoryStore(c.SessionKeyTTL, nil)
	}

	app.hasher = auth.NewBcryptHasher(c.BcryptCost)
	minter := auth.NewJWTMinter([]byte(c.SecretKey), c.TokenIssuer, c.AccessTokenValidityDuration)

	app.authService = services.NewAuthService(app.repos, keys, minter, app.hasher,
		services.WithNotifier(notifier),
		services.WithLogger(logger),
		services.WithRefreshTokenValidity(c.RefreshTokenValidityDuration),
	)

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run seeds when asked to, serves HTTP until ctx is canceled or a signal
// arrives, then releases the stores.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.close(ctx)

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	if app.config.Seed {
		s := seed.NewSeeder(app.repos, app.hasher, app.logger, app.config.SeedUsers, app.config.SeedBatchSize)
		if _, err := s.Run(ctx); err != nil {
			app.logger.Error(ctx, "seeding failed", "error", err)
		}
	}

	s := httpapi.NewHTTPServer(app.config.HTTPAddr, app.logger, app.authService, app.config.ShutdownTimeout)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "http server error", "error", err)
		return err
	}

	app.logger.Info(ctx, "App stopped")
	return nil
}

func (app *App) close(ctx context.Context) {
	closers := []io.Closer{}
	if app.redis != nil {
		closers = append(closers, app.redis)
	}
	if app.repos != nil {
		closers = append(closers, app.repos)
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			app.logger.Warn(ctx, "error closing resource", "error", err)
		}
	}
}
