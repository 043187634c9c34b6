// Package main is the entrypoint for the ocmbridge server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MahdiBaghbani/ocmbridge/internal/platform/config"

	// Register storage, lock and cache drivers.
	_ "github.com/MahdiBaghbani/ocmbridge/internal/platform/cache/memory"
	_ "github.com/MahdiBaghbani/ocmbridge/internal/platform/cache/valkey"
	_ "github.com/MahdiBaghbani/ocmbridge/internal/platform/lock/memory"
	_ "github.com/MahdiBaghbani/ocmbridge/internal/platform/lock/valkey"
	_ "github.com/MahdiBaghbani/ocmbridge/internal/platform/store/memory"
	_ "github.com/MahdiBaghbani/ocmbridge/internal/platform/store/sqlite"

	// Register HTTP services.
	_ "github.com/MahdiBaghbani/ocmbridge/internal/services/api"
	_ "github.com/MahdiBaghbani/ocmbridge/internal/services/ocm"
	_ "github.com/MahdiBaghbani/ocmbridge/internal/services/wellknown"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	modeFlag := flag.String("mode", "", "Operating mode: strict or dev (overrides config)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	publicOrigin := flag.String("public-origin", "", "Public origin, scheme://host[:port] (overrides config)")
	ssrfMode := flag.String("ssrf-mode", "", "SSRF protection mode: strict or off (overrides config)")
	loggingLevel := flag.String("logging-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	storeDriver := flag.String("store-driver", "", "Store driver: memory or sqlite (overrides config)")
	dataDir := flag.String("data-dir", "", "Directory for the sqlite database (overrides config)")
	lockDriver := flag.String("lock-driver", "", "Lock driver: memory or valkey (overrides config)")
	cacheDriver := flag.String("cache-driver", "", "Cache driver: memory or valkey (overrides config)")
	flag.Parse()

	// Bootstrap logger for config loading errors.
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Precedence: mode preset -> TOML file -> CLI flags.
	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		ModeFlag:   *modeFlag,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:   listenAddr,
			PublicOrigin: publicOrigin,
			SSRFMode:     ssrfMode,
			LoggingLevel: loggingLevel,
			StoreDriver:  storeDriver,
			DataDir:      dataDir,
			LockDriver:   lockDriver,
			CacheDriver:  cacheDriver,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Logging.Level)}))
	slog.SetDefault(logger)
	logger.Info("effective configuration", "config", cfg.Redacted())

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func parseLevel(s string) slog.Level {
	switch s {
	case "trace":
		return slog.LevelDebug - 4 // slog has no trace, use debug-4
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	srv, worker := a.server, a.worker

	workerDone := make(chan error, 1)
	go func() { workerDone <- worker.Run(ctx) }()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	logger.Info("server started, press Ctrl+C to stop")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-serveErr:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("shutdown: %w", err))
	}
	if err := <-workerDone; err != nil && !errors.Is(err, context.Canceled) {
		runErr = errors.Join(runErr, fmt.Errorf("delivery worker: %w", err))
	}
	return runErr
}
