package app

import (
	"fmt"

	"github.com/sokbo-hq/sokbo-news-relay/internal/config"
	"github.com/sokbo-hq/sokbo-news-relay/internal/logger"
	"github.com/sokbo-hq/sokbo-news-relay/internal/queue"
	"github.com/sokbo-hq/sokbo-news-relay/internal/storage"
)

// openStores initializes the storage backend from config.
func openStores(cfg *config.Config, log logger.Logger) (*storage.Stores, error) {
	stores, err := storage.Open(cfg.StorageType, cfg.BBoltPath, storage.Options{
		PublishedTTL:    cfg.PublishedTTL,
		CleanupInterval: cfg.PublishedSweepInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                  cfg.StorageType,
		"path":                  cfg.BBoltPath,
		"published_ttl_seconds": int(cfg.PublishedTTL.Seconds()),
	})
	return stores, nil
}

// newEngine builds the queue engine over the opened stores.
func newEngine(stores *storage.Stores, cfg *config.Config, log logger.Logger) *queue.Engine {
	return queue.NewEngine(stores.Queue, cfg.MaxRetries, log)
}

// closeStores closes the storage backend, logging any error.
func closeStores(stores *storage.Stores, log logger.Logger) {
	if stores == nil {
		return
	}
	if err := stores.Close(); err != nil {
		log.ErrorObj("storage close failed", "error", err)
	}
}
