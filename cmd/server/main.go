// Burrow Server
//
// Features:
// - Tenant-scoped storage gateway with symlink-safe path confinement
// - Streaming uploads with atomic publish
// - SSE change events, fed by the API and a filesystem watcher
// - Prometheus metrics & structured logging (zap)
package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/burrowfs/burrow/internal/api"
	"github.com/burrowfs/burrow/internal/config"
	"github.com/burrowfs/burrow/internal/events"
	"github.com/burrowfs/burrow/internal/logging"
	"github.com/burrowfs/burrow/internal/metrics"
	"github.com/burrowfs/burrow/internal/session"
	"github.com/burrowfs/burrow/internal/storage"
	"github.com/burrowfs/burrow/internal/watch"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	// Initialize structured logging
	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("Burrow Server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("storage_root", cfg.StorageRoot))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ensure the storage root exists before the resolver canonicalizes it
	if err := os.MkdirAll(cfg.StorageRoot, 0o750); err != nil {
		logging.Fatal("storage root unavailable", zap.Error(err))
	}

	gateway, err := storage.NewGateway(cfg.StorageRoot)
	if err != nil {
		logging.Fatal("storage gateway init failed", zap.Error(err))
	}

	verifier := session.NewVerifier(cfg.JWTSecret)

	broadcaster := events.NewBroadcaster()
	logging.Info("SSE broadcaster initialized")

	// Filesystem watcher for changes made outside the API
	if cfg.WatchEnabled {
		watcher, err := watch.New(gateway.Resolver(), broadcaster)
		if err != nil {
			logging.Fatal("watcher init failed", zap.Error(err))
		}
		go func() {
			if err := watcher.Start(ctx); err != nil && ctx.Err() == nil {
				logging.Error("watcher stopped", zap.Error(err))
			}
		}()
	}

	srv := api.NewServer(gateway, broadcaster, verifier, cfg.MaxUploadSize)

	// Start metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	// Start HTTP(S) server
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	useTLS := cfg.TLSCertFile != "" && cfg.TLSKeyFile != ""
	if useTLS {
		httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()
		httpServer.Close()
		metricsServer.Close()
	}()

	if useTLS {
		logging.Info("server listening (TLS 1.3)",
			zap.String("addr", cfg.ListenAddr),
			zap.String("cert", cfg.TLSCertFile))
		if err := httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile); err != http.ErrServerClosed {
			logging.Fatal("server error", zap.Error(err))
		}
	} else {
		logging.Info("server listening (HTTP)", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Fatal("server error", zap.Error(err))
		}
	}
}
