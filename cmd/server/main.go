package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"gensite/internal/config"
	"gensite/internal/generator"
	"gensite/internal/history"
	"gensite/internal/project"
	"gensite/internal/realtime"
	"gensite/internal/session"
	"gensite/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "gensite-server",
		Usage: "Generate website projects from prompts and stream progress over WebSocket",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultFile,
				Usage:   "TOML config file (optional)",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Value: config.DefaultEnvFile,
				Usage: "dotenv file loaded into the environment (optional)",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "HTTP listen port",
			},
			&cli.StringFlag{
				Name:  "project-dir",
				Usage: "directory generated files are written to",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"), c.String("env-file"))
	if err != nil {
		return err
	}
	flagOverrides(c).Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := project.NewStore(cfg.ProjectDir, logger)
	if err := store.Reset(); err != nil {
		return err
	}

	hist, err := newHistory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer hist.Close()

	backend, err := generator.NewBackend(ctx, cfg.Generator)
	if err != nil {
		return err
	}
	invoker := generator.NewInvoker(backend, cfg.Generator.Timeout, logger.With("component", "generator"))

	registry := session.NewRegistry(logger.With("component", "registry"))
	orch := session.NewOrchestrator(registry, invoker, hist, cfg.Pacing, logger.With("component", "orchestrator"))
	if cfg.PersistGenerated {
		orch.PersistTo(store)
	}

	fileWatch := watcher.New(store.Root(), func(n int) {
		logger.Info("project file count changed", "files", n)
	}, logger.With("component", "watcher"))
	if err := fileWatch.Start(); err != nil {
		return fmt.Errorf("failed to watch project dir: %w", err)
	}
	defer fileWatch.Close()

	rtServer := realtime.New(realtime.Options{
		Registry:       registry,
		Generations:    orch,
		History:        hist,
		Project:        store,
		Files:          fileWatch,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger.With("component", "realtime"),
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           rtServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gensite server running",
			"addr", fmt.Sprintf("http://localhost:%d", cfg.Port),
			"provider", backend.Name(),
			"model", cfg.Generator.Model,
			"project_dir", store.Root())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "err", err)
	}
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Warn("generations cancelled at shutdown", "err", err)
	}
	return nil
}

func flagOverrides(c *cli.Context) config.Overrides {
	var o config.Overrides
	if c.IsSet("port") {
		port := c.Int("port")
		o.Port = &port
	}
	if c.IsSet("project-dir") {
		dir := c.String("project-dir")
		o.ProjectDir = &dir
	}
	return o
}

func newHistory(ctx context.Context, cfg config.Config, logger *slog.Logger) (history.Store, error) {
	if cfg.RedisURL == "" {
		return history.NewMemoryStore(cfg.History.Capacity, cfg.History.TTL), nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	store, err := history.NewRedisStore(connectCtx, cfg.RedisURL, cfg.History.Capacity, cfg.History.TTL)
	if err != nil {
		return nil, err
	}
	logger.Info("event history in redis", "ttl", cfg.History.TTL, "capacity", cfg.History.Capacity)
	return store, nil
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
