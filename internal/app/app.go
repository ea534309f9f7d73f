package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/atlas-ingest/internal/data/db"
	httpapi "github.com/yungbote/atlas-ingest/internal/http"
	httpH "github.com/yungbote/atlas-ingest/internal/http/handlers"
	"github.com/yungbote/atlas-ingest/internal/ingestion/access"
	"github.com/yungbote/atlas-ingest/internal/observability"
	"github.com/yungbote/atlas-ingest/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    Repos
	Clients  Clients
	Services Services
	Server   *httpapi.Server

	pg           *db.PostgresService
	otelShutdown func(context.Context) error
}

func New() (*App, error) {
	cfg := LoadConfig()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	metrics := observability.Init(log)

	if _, err := access.Current(); err != nil {
		// Requests fail closed until the allowlist loads.
		log.Warn("Resource allowlist not loaded", "error", err)
	}

	pg, err := db.NewPostgresService(log, db.DSN())
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	reposet := wireRepos(theDB, log)

	clients, err := wireClients(log)
	if err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	serviceset, err := wireServices(theDB, log, cfg, reposet, clients, metrics)
	if err != nil {
		clients.Close()
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	server := httpapi.NewServer(":"+cfg.Port, httpapi.RouterConfig{
		Log:          log,
		Metrics:      metrics,
		ServiceName:  cfg.ServiceName,
		MaxBodyBytes: cfg.MaxBodyBytes,

		HealthHandler:       httpH.NewHealthHandler(pg.Ping),
		NotificationHandler: httpH.NewNotificationHandler(log, serviceset.Notifications),
	})

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clients,
		Services:     serviceset,
		Server:       server,
		pg:           pg,
		otelShutdown: otelShutdown,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then stops accepting requests and waits for
// in-flight validation dispatches.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("Server listening", "port", a.Cfg.Port)
		errCh <- a.Server.Run()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Cfg.ShutdownTimeout)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Log.Warn("HTTP shutdown incomplete", "error", err)
	}
	if err := a.Services.Dispatcher.Drain(shutdownCtx); err != nil {
		a.Log.Warn("Validation dispatches still in flight at shutdown", "error", err)
	}
	return <-errCh
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	if a.pg != nil {
		_ = a.pg.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
