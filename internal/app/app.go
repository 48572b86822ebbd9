package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/godilite/aiticket/internal/api"
	"github.com/godilite/aiticket/internal/config"
	"github.com/godilite/aiticket/internal/workspace"
	statussrv "github.com/godilite/aiticket/pkg/grpc/server"
	"github.com/godilite/aiticket/pkg/tokenstore"

	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     tokenstore.Store
	workspace *workspace.Workspace
}

func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	client, err := api.NewClient(api.ClientConfig{
		BaseURL:    cfg.APIURL,
		HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("api client init failed: %w", err)
	}

	store, err := OpenTokenStore(ctx, cfg, client.BaseURL())
	if err != nil {
		return nil, fmt.Errorf("token store init failed: %w", err)
	}
	logger.Debug("Token store initialized", zap.String("backend", cfg.TokenStore), zap.String("origin", client.BaseURL()))

	return &App{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		workspace: workspace.New(client, store, logger),
	}, nil
}

// OpenTokenStore opens the durable token store selected by cfg, scoped to origin.
func OpenTokenStore(ctx context.Context, cfg *config.Config, origin string) (tokenstore.Store, error) {
	switch cfg.TokenStore {
	case config.StoreMemory:
		return tokenstore.NewMemory(), nil
	case config.StoreRedis:
		store, err := tokenstore.OpenRedis(ctx, origin,
			tokenstore.WithAddress(cfg.RedisAddr),
			tokenstore.WithPassword(cfg.RedisPassword),
			tokenstore.WithDB(cfg.RedisDB),
		)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		store, err := tokenstore.OpenSQLite(ctx, cfg.TokenDBPath, origin)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

func (a *App) Workspace() *workspace.Workspace {
	return a.workspace
}

// Close releases the token store.
func (a *App) Close() error {
	if err := a.store.Close(); err != nil {
		a.logger.Error("token store shutdown error", zap.Error(err))
		return err
	}
	return nil
}

// Run serves backend liveness over gRPC health and blocks until a
// shutdown signal is received.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("monitor starting", zap.String("api_url", a.cfg.APIURL))

	server, err := statussrv.New(
		statussrv.WithPort(a.cfg.StatusPort),
		statussrv.WithLogger(a.logger),
		statussrv.WithLogging(true),
		statussrv.WithReflection(a.cfg.AppEnv != "production"),
		statussrv.WithUnaryInterceptors(statussrv.RecoveryInterceptor(a.logger)),
	)
	if err != nil {
		return fmt.Errorf("failed to create status server: %w", err)
	}
	server.Start()

	if _, ok, err := a.workspace.Start(ctx); err != nil {
		a.logger.Warn("session restore failed", zap.Error(err))
	} else if ok {
		a.logger.Info("session restored for monitor")
	}

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		server.Monitor(monitorCtx, a.cfg.ProbeInterval, a.workspace.Probe)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case <-ctx.Done():
	}

	a.logger.Info("monitor shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	stopMonitor()
	<-monitorDone

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("status server shutdown error", zap.Error(err))
	}
	if err := a.Close(); err != nil {
		return err
	}

	select {
	case <-shutdownCtx.Done():
		if shutdownCtx.Err() == context.DeadlineExceeded {
			a.logger.Warn("shutdown completed but deadline exceeded")
		}
	default:
		a.logger.Info("graceful shutdown completed successfully")
	}
	return nil
}
