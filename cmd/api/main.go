package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/leozw/storefront-controlplane/internal/api"
	"github.com/leozw/storefront-controlplane/internal/config"
	"github.com/leozw/storefront-controlplane/internal/controlplane"
	"github.com/leozw/storefront-controlplane/internal/metrics"
	"github.com/leozw/storefront-controlplane/internal/probe"
	"github.com/leozw/storefront-controlplane/internal/provisioning"
)

func main() {
	configPath := flag.String("config", "", "path to the config file")
	flag.Parse()

	// Load configuration
	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Setup logger
	logger, err := newLogger(cfg.Server.Mode)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	metricsCollector := metrics.NewCollector(cfg.Mimir)

	svc, err := controlplane.New(cfg,
		probe.NewClient(cfg.Upstream),
		provisioning.NewClient(cfg.Upstream),
		metricsCollector,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to build control plane", zap.Error(err))
	}

	loader.Watch(func(updated *config.Config, err error) {
		if err != nil {
			logger.Error("Failed to reload config", zap.Error(err))
			return
		}
		_ = svc.ApplyThresholds(updated.Thresholds)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.Start(ctx)
	go metricsCollector.StartRemoteWrite(ctx, logger)

	server := api.NewServer(cfg, svc, logger)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.Router,
		ReadHeaderTimeout: 10 * time.Second,
		// Cancelling ctx ends open event streams so Shutdown can drain.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("API server started",
		zap.String("port", cfg.Server.Port),
		zap.String("upstream", cfg.Upstream.BaseURL),
		zap.String("config", loader.File()),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	svc.Stop()

	logger.Info("Server exited")
}

func newLogger(mode string) (*zap.Logger, error) {
	if mode == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
