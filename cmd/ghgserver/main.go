// Package main implements ghgserver, the GHG emission forecast service.
// It loads the trained model and its lookup tables, then serves predict,
// explain and health over HTTP and gRPC.
package main

import (
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/HatiCode/ghgcast/cmd/ghgserver/config"
	"github.com/HatiCode/ghgcast/cmd/ghgserver/logger"
	"github.com/HatiCode/ghgcast/cmd/ghgserver/metrics"
	"github.com/HatiCode/ghgcast/cmd/ghgserver/router"
	"github.com/HatiCode/ghgcast/cmd/ghgserver/service"
	"github.com/HatiCode/ghgcast/cmd/ghgserver/store"
	"github.com/HatiCode/ghgcast/pkg/assets"
	"github.com/HatiCode/ghgcast/pkg/explain"
	"github.com/HatiCode/ghgcast/pkg/forecast"
	"github.com/HatiCode/ghgcast/pkg/grpcapi"
	"github.com/HatiCode/ghgcast/pkg/httpx"
)

func main() {
	cfg := config.ParseFlags()

	logger := logger.New(cfg)
	slog.SetDefault(logger)

	logger.Info("starting ghgcast server",
		"version", "v0.1.0",
		"listen", cfg.Listen,
		"grpc_listen", cfg.GRPCListen,
	)

	m := metrics.New()

	bundle, err := assets.Load(assets.Paths{
		Model:      cfg.ModelPath,
		Scaler:     cfg.ScalerPath,
		Index:      cfg.IndexPath,
		Subsectors: cfg.SubsectorsPath,
		Centroids:  cfg.CentroidsPath,
		Strict:     cfg.StrictAssets,
	}, logger)
	if err != nil {
		var le *assets.LoadError
		if errors.As(err, &le) {
			logger.Error("failed to load asset", "asset", le.Asset, "path", le.Path, "error", le.Err)
		} else {
			logger.Error("failed to load assets", "error", err)
		}
		os.Exit(1)
	}
	for name, src := range bundle.Sources {
		m.SetAssetLoaded(name, src == assets.SourceFile)
	}

	st := store.New(cfg, logger)
	if closer, ok := st.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	runner := forecast.NewRunner(bundle.Encoder, bundle.Model, cfg.MaxInference, m, logger)
	explainer := explain.NewExplainer(bundle.Encoder, bundle.Model, cfg.IGSteps, logger)
	svc := service.New(runner, explainer, st, m, logger)

	handler := router.SetupRoutes(svc, m, cfg.CORSOrigins, logger)
	httpServer := httpx.NewServer(cfg.Listen, handler, logger)

	serverErr := make(chan error, 2)
	go func() {
		serverErr <- httpServer.Start()
	}()

	grpcServer, healthServer := grpcapi.NewServer(svc, m, logger)
	if cfg.GRPCListen != "" {
		lis, err := net.Listen("tcp", cfg.GRPCListen)
		if err != nil {
			logger.Error("failed to listen", "addr", cfg.GRPCListen, "error", err)
			os.Exit(1)
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCListen)
			serverErr <- grpcServer.Serve(lis)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", "error", err)
		}
	}

	logger.Info("shutting down")
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(grpcapi.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		grpcServer.Stop()
	}

	if err := httpServer.Stop(10 * time.Second); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
