// Package main provides the zone transfer server binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // pprof intentionally exposed for debugging/profiling
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/piwi3910/xfrserver/pkg/api"
	"github.com/piwi3910/xfrserver/pkg/config"
	"github.com/piwi3910/xfrserver/pkg/control"
	"github.com/piwi3910/xfrserver/pkg/logging"
	"github.com/piwi3910/xfrserver/pkg/metrics"
	"github.com/piwi3910/xfrserver/pkg/server"
	"github.com/piwi3910/xfrserver/pkg/zone"
)

const version = "0.1.0-dev"

// Configuration constants for the pprof server.
const (
	pprofReadTimeoutSec       = 15
	pprofReadHeaderTimeoutSec = 10
	pprofWriteTimeoutSec      = 15
	pprofIdleTimeoutSec       = 60
)

type flags struct {
	configPath    string
	listenAddr    string
	initialSerial uint
	pprofAddr     string
}

func parseFlags() *flags {
	f := &flags{}
	flag.StringVar(&f.configPath, "config", "xfrserver.yaml", "Path to the YAML configuration file")
	flag.StringVar(&f.listenAddr, "listen", "", "DNS listen address (overrides config)")
	flag.UintVar(&f.initialSerial, "serial", 0, "Serial to serve at startup (0 serves nothing until moved)")
	flag.StringVar(&f.pprofAddr, "pprof", "", "Address for pprof HTTP server (empty to disable)")
	flag.Parse()

	return f
}

func main() {
	f := parseFlags()

	if err := validateFlags(f); err != nil {
		zap.Must(zap.NewDevelopment()).Fatal("Invalid flags", zap.Error(err))
	}

	cfg, err := loadConfig(f)
	if err != nil {
		// The logger is configured from the file, so fall back to a default one
		zap.Must(zap.NewDevelopment()).Fatal("Failed to load configuration", zap.Error(err))
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		zap.Must(zap.NewDevelopment()).Fatal("Failed to create logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting xfrserver",
		zap.String("version", version),
		zap.String("go_version", runtime.Version()),
		zap.String("config", f.configPath))

	store, err := zone.LoadStoreFiles(cfg.Zone.Origin, cfg.Zone.Serials)
	if err != nil {
		logger.Fatal("Failed to load zone snapshots", zap.Error(err))
	}
	logger.Info("Loaded zone snapshots",
		zap.String("origin", store.Origin()),
		zap.Uint32s("serials", store.Serials()))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv, err := server.New(store, server.FromConfig(cfg), logger, metrics.New(registry))
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	if f.initialSerial > 0 {
		moveToInitialSerial(srv, uint32(f.initialSerial), logger)
	}

	if err := srv.Start(); err != nil {
		logger.Fatal("Failed to bind DNS listeners", zap.String("address", cfg.Server.ListenAddress), zap.Error(err))
	}

	var apiServer *api.Server
	if cfg.API.ListenAddress != "" {
		apiServer = api.NewServer(cfg.API, srv, registry, logger)
		if err := apiServer.Start(); err != nil {
			logger.Fatal("Failed to start API server", zap.Error(err))
		}
	}

	var controlServer *control.Server
	if cfg.Control.ListenAddress != "" {
		controlServer = control.NewServer(srv, logger)
		if err := controlServer.Start(cfg.Control.ListenAddress); err != nil {
			logger.Fatal("Failed to start control server", zap.Error(err))
		}
	}

	startPprofServer(f.pprofAddr, logger)

	waitAndShutdown(cfg, srv, apiServer, controlServer, logger)
}

// validateFlags rejects flag values that cannot be used as given.
func validateFlags(f *flags) error {
	if f.initialSerial > math.MaxUint32 {
		return fmt.Errorf("-serial %d exceeds the largest serial %d", f.initialSerial, uint32(math.MaxUint32))
	}
	return nil
}

// loadConfig reads the file, applies environment and flag overrides, and validates.
func loadConfig(f *flags) (*config.Config, error) {
	cfg, err := config.LoadFromFileOrDefault(f.configPath)
	if err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnv(config.DefaultEnvPrefix); err != nil {
		return nil, err
	}

	if f.listenAddr != "" {
		cfg.Server.ListenAddress = f.listenAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// moveToInitialSerial steps from 0 up to serial so the server starts with a zone.
func moveToInitialSerial(srv *server.Server, serial uint32, logger *zap.Logger) {
	for next := uint32(1); next <= serial; next++ {
		if _, err := srv.MoveToSerial(next); err != nil {
			logger.Fatal("Failed to reach initial serial", zap.Uint32("serial", serial), zap.Error(err))
		}
	}
}

// startPprofServer starts the pprof HTTP server if address is provided.
func startPprofServer(addr string, logger *zap.Logger) {
	if addr == "" {
		return
	}

	go func() {
		logger.Info("Starting pprof HTTP server", zap.String("address", addr))
		pprofServer := &http.Server{
			Addr:              addr,
			Handler:           nil, // Use DefaultServeMux for pprof
			ReadTimeout:       pprofReadTimeoutSec * time.Second,
			ReadHeaderTimeout: pprofReadHeaderTimeoutSec * time.Second,
			WriteTimeout:      pprofWriteTimeoutSec * time.Second,
			IdleTimeout:       pprofIdleTimeoutSec * time.Second,
		}
		if err := pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("pprof HTTP server error", zap.Error(err))
		}
	}()
}

// waitAndShutdown waits for shutdown signal and performs graceful shutdown.
func waitAndShutdown(cfg *config.Config, srv *server.Server, apiServer *api.Server, controlServer *control.Server, logger *zap.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received signal, shutting down", zap.Stringer("signal", sig))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()

	if apiServer != nil {
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error stopping API server", zap.Error(err))
		}
	}

	if controlServer != nil {
		controlServer.Stop()
	}

	if err := srv.Stop(); err != nil {
		logger.Warn("Error stopping DNS listeners", zap.Error(err))
	}

	logger.Info("Server stopped",
		zap.Uint32("current_serial", srv.CurrentSerial()),
		zap.Uint32("served_serial", srv.ServedSerial()),
		zap.Int("transfers", len(srv.Transfers())))
}
