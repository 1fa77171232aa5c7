// Package runtime assembles the full server process: configuration,
// database, application services, and the HTTP listener.
package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/caffe-ja/observer-platform/internal/api/httpserver"
	app "github.com/caffe-ja/observer-platform/internal/app"
	"github.com/caffe-ja/observer-platform/internal/app/health"
	"github.com/caffe-ja/observer-platform/internal/app/httpapi"
	"github.com/caffe-ja/observer-platform/internal/app/storage/postgres"
	"github.com/caffe-ja/observer-platform/internal/config"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

// Application wires core dependencies and manages the process lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	app        *app.Application
	httpServer *httpserver.Server
	db         *sql.DB
}

// NewApplication constructs a fully wired application from configuration.
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	stores, db, err := buildStores(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("configure stores: %w", err)
	}

	application, err := app.New(stores, log)
	if err != nil {
		closeDB(db, log)
		return nil, fmt.Errorf("build application: %w", err)
	}

	if err := application.Admin.EnsureBootstrapUser(context.Background(), cfg.Auth.BootstrapUsername, cfg.Auth.BootstrapPassword); err != nil {
		closeDB(db, log)
		return nil, fmt.Errorf("bootstrap admin user: %w", err)
	}

	handler, err := httpapi.NewHandler(application, httpapi.Options{
		JWTSecret:     cfg.Auth.JWTSecret,
		APITokens:     cfg.Auth.TokenList(),
		AuditLogPath:  cfg.API.AuditLogPath,
		RatePerSecond: cfg.API.RatePerSecond,
		RateBurst:     cfg.API.RateBurst,
		AllowedOrigin: cfg.API.AllowedOrigin,
		Health:        health.New(db),
	})
	if err != nil {
		closeDB(db, log)
		return nil, fmt.Errorf("build http handler: %w", err)
	}

	return &Application{
		cfg:        cfg,
		log:        log,
		app:        application,
		httpServer: httpserver.New(cfg.Server, log, handler),
		db:         db,
	}, nil
}

// Run starts background services and the HTTP server, blocking until the
// context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.httpServer.Addr())
		if err := a.httpServer.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the HTTP server, background services, and the database.
func (a *Application) Shutdown(ctx context.Context) error {
	timeout := time.Duration(a.cfg.Server.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var firstErr error
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		firstErr = err
	}
	if err := a.app.Stop(shutdownCtx); err != nil && firstErr == nil {
		firstErr = err
	}
	closeDB(a.db, a.log)
	return firstErr
}

func buildStores(cfg *config.Config, log *logger.Logger) (app.Stores, *sql.DB, error) {
	if cfg.Database.DSN == "" {
		log.Warn("database dsn not configured; using in-memory stores")
		return app.Stores{}, nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := postgres.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return app.Stores{}, nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)
	}

	if err := postgres.Migrate(db); err != nil {
		closeDB(db, log)
		return app.Stores{}, nil, fmt.Errorf("run migrations: %w", err)
	}

	store := postgres.New(db)
	return app.Stores{
		Observers:    store,
		Stations:     store,
		Training:     store,
		Certificates: store,
		Alerts:       store,
		Traffic:      store,
		Weather:      store,
		Analysis:     store,
		Settings:     store,
		Admin:        store,
	}, db, nil
}

func closeDB(db *sql.DB, log *logger.Logger) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		log.WithError(err).Warn("error closing database connection")
	}
}
