package main

import (
	"context"
	"flag"
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
		fmt.Fprintf(os.Stderr, "crawl failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	noSave := flag.Bool("no-save", false, "fetch and report without writing to storage")
	sourceID := flag.String("source", "", "crawl a single source by id")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if _, err := logger.Init(cfg.LogLevel); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("crawl starting", "config", map[string]any{
		"sources_file": cfg.SourcesFile,
		"storage_type": cfg.StorageType,
		"no_save":      *noSave,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	crawl, err := app.NewCrawl(cfg, app.CrawlOptions{
		NoSave:   *noSave,
		SourceID: *sourceID,
	}, logger.Std{})
	if err != nil {
		logger.ErrorObj("failed to initialize crawl", "error", err)
		return err
	}

	if err := crawl.Run(ctx); err != nil {
		return fmt.Errorf("crawl run: %w", err)
	}
	return nil
}
