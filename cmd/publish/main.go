package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sokbo-hq/sokbo-news-relay/internal/app"
	"github.com/sokbo-hq/sokbo-news-relay/internal/config"
	"github.com/sokbo-hq/sokbo-news-relay/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "publish failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if _, err := logger.Init(cfg.LogLevel); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("publisher starting", "config", map[string]any{
		"notifiers_file":   cfg.NotifiersFile,
		"storage_type":     cfg.StorageType,
		"batch_size":       cfg.BatchSize,
		"publish_interval": cfg.PublishInterval.String(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	publisher, err := app.NewPublisher(ctx, cfg, logger.Std{})
	if err != nil {
		logger.ErrorObj("failed to initialize publisher", "error", err)
		return err
	}

	if err := publisher.Run(ctx); err != nil {
		return fmt.Errorf("publisher run: %w", err)
	}
	return nil
}
