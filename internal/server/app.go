// Package server wires configuration, storage, services and transports
// together and runs the HTTP and gRPC servers until shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/auth"
	"github.com/dmitrijs2005/authcore/internal/server/config"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authcore/internal/server/services"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/authcore/internal/server/grpc"
	hs "github.com/dmitrijs2005/authcore/internal/server/http"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	authService *services.AuthService
	userService *services.UserService
}

// NewApp connects to Postgres, applies migrations and builds the services.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	db, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	return newApp(c, logger, db, rm), nil
}

func newApp(c *config.Config, logger logging.Logger, db *sql.DB, rm repomanager.RepositoryManager) *App {
	refresher := services.NewRefreshTokenManager(db, rm, c.RefreshTokenValidityDuration, logger)
	signer := auth.NewSigner(c.AccessTokenValidityDuration)

	return &App{
		config:      c,
		logger:      logger,
		db:          db,
		authService: services.NewAuthService(db, rm, refresher, signer, c.RefreshRetryAttempts, logger),
		userService: services.NewUserService(db, rm, logger),
	}
}

// Run serves HTTP and gRPC until ctx is cancelled, a termination signal
// arrives or one of the servers fails. The database is closed on return.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()
	defer func() { _ = app.db.Close() }()

	app.logger.Info(ctx, "Starting app...")

	key := app.config.SigningKey()
	httpServer := hs.NewServer(app.config.EndpointAddrHTTP, hs.NewHandler(app.authService, app.userService, key, app.logger), app.logger)
	grpcServer := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.authService, key)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpServer.Run(ctx) })
	g.Go(func() error { return grpcServer.Run(ctx) })

	if err := g.Wait(); err != nil {
		app.logger.Error(ctx, "server stopped with error", "error", err)
		return err
	}

	app.logger.Info(ctx, "App stopped")
	return nil
}
