// salesd serves the sales time-series store over TCP.
//
// Usage: salesd [-config configs/salesd.yaml] [-port 7575] [-max-days 30] [-max-in-memory 5]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rickgao/salestore/internal/auth"
	"github.com/rickgao/salestore/internal/checkpoint"
	"github.com/rickgao/salestore/internal/config"
	"github.com/rickgao/salestore/internal/database"
	"github.com/rickgao/salestore/internal/feed"
	"github.com/rickgao/salestore/internal/notify"
	"github.com/rickgao/salestore/internal/series"
	"github.com/rickgao/salestore/internal/server"
	"github.com/rickgao/salestore/internal/session"
	"github.com/rickgao/salestore/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	port := flag.Int("port", config.DefaultPort, "TCP port to listen on")
	maxDays := flag.Int("max-days", config.DefaultMaxDays, "retention horizon in days")
	maxInMemory := flag.Int("max-in-memory", config.DefaultMaxInMemory, "days kept resident in memory")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Flags given explicitly override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = *port
		case "max-days":
			cfg.Series.MaxDays = *maxDays
		case "max-in-memory":
			cfg.Series.MaxInMemory = *maxInMemory
		}
	})
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting salesd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("salesd failed", "error", err)
		os.Exit(1)
	}
	logger.Info("salesd stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadWithDefaults(path)
}

// newLogger builds the slog handler from config. Validate has already
// checked the level and format.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	archive, pinger, closeArchive, err := openArchive(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeArchive()

	users, err := auth.Open(filepath.Join(cfg.Series.DataDir, auth.UsersFile), logger)
	if err != nil {
		return fmt.Errorf("open user directory: %w", err)
	}

	hub := notify.NewHub()
	observers := []series.Observer{hub}

	var broadcaster *feed.Broadcaster
	if cfg.Feed.Enabled {
		broadcaster = feed.NewBroadcaster(feed.Config{BufferSize: cfg.Feed.BufferSize}, logger)
		observers = append(observers, broadcaster)
	}

	registry, err := series.Open(ctx,
		series.Config{MaxDays: cfg.Series.MaxDays, MaxInMemory: cfg.Series.MaxInMemory},
		archive,
		series.WithObservers(observers...),
		series.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("open series: %w", err)
	}

	logger.Info("series ready",
		"current_day", registry.CurrentDay(),
		"max_days", cfg.Series.MaxDays,
		"max_in_memory", cfg.Series.MaxInMemory,
		"archive", cfg.Archive.Backend,
	)

	if cfg.Series.CheckpointInterval > 0 {
		cp := checkpoint.New(checkpoint.Config{
			Interval: cfg.Series.CheckpointInterval,
			Timeout:  cfg.Server.ShutdownTimeout,
		}, registry, logger)
		if err := cp.Start(ctx); err != nil {
			return fmt.Errorf("start checkpointer: %w", err)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer stopCancel()
			cp.Stop(stopCtx)
		}()
	}

	svc := &session.Services{
		Registry:    registry,
		Users:       users,
		Hub:         hub,
		WaitTimeout: cfg.Server.WaitTimeout,
		Logger:      logger,
	}
	srv := server.New(server.Config{
		Addr:    cfg.Server.Addr(),
		Workers: cfg.Server.Workers,
	}, svc, logger)

	// Health is served whether or not the feed is enabled
	httpServer := &http.Server{
		Addr:    cfg.Server.HTTPAddr(),
		Handler: newHTTPHandler(registry, srv, broadcaster, cfg.Feed.Path, pinger),
	}
	go func() {
		logger.Info("starting http server",
			"addr", httpServer.Addr,
			"feed_enabled", broadcaster != nil,
		)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	runErr := srv.Run(ctx)

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if broadcaster != nil {
		broadcaster.Close()
	}
	httpServer.Shutdown(shutdownCtx)

	if err := registry.Flush(shutdownCtx); err != nil {
		logger.Error("failed to flush resident days", "error", err)
		return errors.Join(runErr, err)
	}
	logger.Info("resident days flushed", "current_day", registry.CurrentDay())

	return runErr
}

// openArchive returns the configured archive, a health pinger (nil for the
// file backend) and a close function.
func openArchive(ctx context.Context, cfg *config.Config, logger *slog.Logger) (series.Archive, pinger, func(), error) {
	switch cfg.Archive.Backend {
	case config.BackendPostgres:
		pg := cfg.Archive.Postgres
		logger.Info("connecting to database",
			"host", pg.Host,
			"port", pg.Port,
			"database", pg.Name,
		)

		pool, err := database.Connect(ctx, pg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect archive database: %w", err)
		}
		archive := database.NewArchive(pool, logger)
		if err := archive.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}

		logger.Info("database connected")
		return archive, pool, pool.Close, nil

	default:
		archive, err := series.NewFileArchive(cfg.Series.DataDir)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open file archive: %w", err)
		}
		return archive, nil, func() {}, nil
	}
}
