// Package server wires configuration, storage, the token machinery and the
// HTTP transport together and runs them until a shutdown signal arrives.
package server

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/vidaccounts/internal/logging"
	"github.com/dmitrijs2005/vidaccounts/internal/server/auth"
	"github.com/dmitrijs2005/vidaccounts/internal/server/config"
	"github.com/dmitrijs2005/vidaccounts/internal/server/media"
	"github.com/dmitrijs2005/vidaccounts/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/vidaccounts/internal/server/rest"
	"github.com/dmitrijs2005/vidaccounts/internal/server/services"
	"golang.org/x/sync/errgroup"
)

const closeTimeout = 5 * time.Second

type App struct {
	config *config.Config
	logger logging.Logger
	repos  repomanager.RepositoryManager
	http   *rest.HTTPServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, err := logging.New(c.LogBackend, c.Debug)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	repos, err := repomanager.Open(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	app, err := build(ctx, c, logger, repos)
	if err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		return nil, errors.Join(err, repos.Close(closeCtx))
	}
	return app, nil
}

func build(ctx context.Context, c *config.Config, logger logging.Logger, repos repomanager.RepositoryManager) (*App, error) {
	if err := repos.RunMigrations(ctx); err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenIssuer(auth.IssuerConfig{
		AccessSecret:  []byte(c.AccessTokenSecret),
		RefreshSecret: []byte(c.RefreshTokenSecret),
		AccessTTL:     c.AccessTokenValidityDuration,
		RefreshTTL:    c.RefreshTokenValidityDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("token issuer: %w", err)
	}

	passwords, err := auth.NewPasswords(c.PasswordHashAlgorithm, c.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}

	mediaStore, err := media.NewS3Store(ctx, media.S3Config{
		Region:        c.S3Region,
		AccessKey:     c.S3RootUser,
		SecretKey:     c.S3RootPassword,
		Bucket:        c.S3Bucket,
		BaseEndpoint:  c.S3BaseEndpoint,
		PublicBaseURL: c.S3PublicBaseURL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("media store: %w", err)
	}

	accounts := services.NewUserService(repos, tokens, passwords, mediaStore, c, logger)
	channels := services.NewChannelService(repos, c, logger)

	httpServer, err := rest.NewHTTPServer(c, logger, accounts, channels)
	if err != nil {
		return nil, fmt.Errorf("http server: %w", err)
	}

	return &App{config: c, logger: logger, repos: repos, http: httpServer}, nil
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then closes
// the storage.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app.logger.Info(ctx, "Starting app...", "storage", app.config.StorageDriver)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.http.Run(gctx)
	})
	err := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if cerr := app.repos.Close(closeCtx); cerr != nil {
		app.logger.Error(closeCtx, "storage close", "error", cerr)
	}

	app.logger.Info(closeCtx, "App stopped")
	flushLogger(app.logger)
	return err
}

// flushLogger drains buffered entries for backends that buffer (zap).
func flushLogger(l logging.Logger) {
	if s, ok := l.(interface{ Sync() error }); ok {
		_ = s.Sync()
	}
}
