package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/efreitasn/marketsim/internal/config"
	"github.com/efreitasn/marketsim/internal/sim"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file (defaults to $CONFIG_FILE)")
	logDir := flag.String("transactions", "", "Directory to write one JSON-lines transaction log per run")
	flag.Parse()

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	spec, err := cfg.Spec()
	if err != nil {
		slog.Error("invalid config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level. Stdout carries the run
	// summaries.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if *logDir != "" {
		if err := os.MkdirAll(*logDir, 0o755); err != nil {
			logger.Error("failed to create transaction directory", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Cancel the sweep on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("sweep starting",
		slog.Uint64("seed", cfg.Seed),
		slog.Int("runs", cfg.Runs),
		slog.Int("workers", cfg.Workers),
	)

	// Each run owns its scheduler, books and random source; nothing is
	// shared between workers.
	results := make([]sim.Result, cfg.Runs)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range cfg.Runs {
		seed := cfg.Seed + uint64(i)
		g.Go(func() error {
			s, err := sim.New(seed, spec, logger)
			if err != nil {
				return err
			}
			res, err := s.Run(ctx)
			if err != nil {
				return err
			}
			if *logDir != "" {
				path := filepath.Join(*logDir, fmt.Sprintf("run-%d.jsonl", seed))
				if err := os.WriteFile(path, res.TransactionLog(), 0o644); err != nil {
					return fmt.Errorf("write transactions: %w", err)
				}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("sweep failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	for _, res := range results {
		if err := enc.Encode(res); err != nil {
			logger.Error("failed to write summary", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
	logger.Info("sweep finished")
}
