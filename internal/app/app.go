package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"detectserver/internal/config"
	"detectserver/internal/logger"
	"detectserver/internal/model"
	"detectserver/internal/repository/sqlite"
	"detectserver/internal/route"
	"detectserver/internal/service"
	"detectserver/internal/service/ai"
	"detectserver/internal/service/auth"
	"detectserver/internal/service/events"
	"detectserver/internal/service/stats"
	"detectserver/internal/service/storage"
	"detectserver/internal/service/websocket"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config    *config.Config
	logger    *logger.Logger
	db        *sqlite.DB
	engine    *ai.Engine
	janitor   *storage.Janitor
	hub       *websocket.HubService
	publisher events.Publisher
	health    *health.Server
	router    http.Handler
}

// NewApp loads configuration and builds every service. Anything opened before
// a failure is released again.
func NewApp() (a *App, err error) {
	cfg := config.Load()
	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.SecretKey == config.DefaultSecretKey {
		log.Warning("SECRET_KEY is not set, tokens are signed with the built-in default")
	}
	a = &App{config: cfg, logger: log}
	defer func() {
		if err != nil {
			err = multierr.Append(err, a.Close())
			a = nil
		}
	}()

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		return a, fmt.Errorf("failed to create database directory: %w", err)
	}
	a.db, err = sqlite.New(context.Background(), cfg.DatabasePath)
	if err != nil {
		return a, err
	}
	users := sqlite.NewUserRepository(a.db)
	records := sqlite.NewDetectionRepository(a.db)

	a.engine, err = ai.NewEngine(cfg.Detector, log)
	if err != nil {
		return a, err
	}

	clk := clock.New()
	store := storage.NewMediaStore(cfg, log, clk)
	pipeline := ai.NewPipeline(a.engine, cfg.Detector,
		store.OutputRoot(model.KindImage), store.OutputRoot(model.KindVideo), log)

	a.janitor, err = storage.NewJanitor(store, cfg.StagingRetention, cfg.CleanupInterval, log)
	if err != nil {
		return a, err
	}
	a.publisher, err = events.New(cfg, log)
	if err != nil {
		return a, err
	}
	a.hub = websocket.NewHubService(log)

	manager := service.NewManager(pipeline, a.engine, store, records, a.publisher, a.hub, clk, log)
	a.router = route.SetupRoutes(route.Services{
		Config:   cfg,
		Logger:   log,
		Users:    users,
		Records:  records,
		Issuer:   auth.NewTokenIssuer(cfg.SecretKey, cfg.TokenTTL, clk),
		Runner:   manager,
		Models:   a.engine,
		Stats:    stats.NewAggregator(records),
		Progress: a.hub,
	})
	a.health = health.NewServer()
	return a, nil
}

// Run serves HTTP and gRPC health until ctx is cancelled or a server fails,
// then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	cfg := a.config
	g, gctx := errgroup.WithContext(ctx)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, a.health)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		return multierr.Append(fmt.Errorf("failed to listen for gRPC: %w", err), a.Close())
	}
	if err := a.janitor.Start(); err != nil {
		lis.Close()
		return multierr.Append(err, a.Close())
	}

	g.Go(func() error {
		a.hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("gRPC server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down")
		a.health.Shutdown()
		grpcServer.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	a.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	a.logger.Info("Detection server listening on :%d (gRPC health on :%d)", cfg.Port, cfg.GRPCPort)
	a.logger.Info("Model %s on %s, outputs in %s", a.engine.ModelName(), a.engine.Device(), cfg.OutputDirectory)

	return multierr.Append(g.Wait(), a.Close())
}

// Close releases everything NewApp opened. It is safe on a partially built App.
func (a *App) Close() error {
	var err error
	if a.janitor != nil {
		err = multierr.Append(err, a.janitor.Shutdown())
	}
	if a.publisher != nil {
		err = multierr.Append(err, a.publisher.Close())
	}
	if a.engine != nil {
		err = multierr.Append(err, a.engine.Close())
	}
	if a.db != nil {
		err = multierr.Append(err, a.db.Close())
	}
	return multierr.Append(err, a.logger.Close())
}
