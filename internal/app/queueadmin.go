package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sokbo-hq/sokbo-news-relay/internal/config"
	"github.com/sokbo-hq/sokbo-news-relay/internal/domain"
	"github.com/sokbo-hq/sokbo-news-relay/internal/enqueue"
	"github.com/sokbo-hq/sokbo-news-relay/internal/logger"
	"github.com/sokbo-hq/sokbo-news-relay/internal/queue"
	"github.com/sokbo-hq/sokbo-news-relay/internal/storage"
)

// QueueAdmin exposes the operator commands over the queue: inspect, requeue
// failures, prune, and backfill from the article store.
type QueueAdmin struct {
	cfg      *config.Config
	stores   *storage.Stores
	engine   *queue.Engine
	enqueuer *enqueue.Service
	log      logger.Logger
}

// NewQueueAdmin opens storage and builds the admin surface.
func NewQueueAdmin(cfg *config.Config, log logger.Logger) (*QueueAdmin, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = logger.NopLogger{}
	}

	stores, err := openStores(cfg, log)
	if err != nil {
		return nil, err
	}
	engine := newEngine(stores, cfg, log)

	return &QueueAdmin{
		cfg:      cfg,
		stores:   stores,
		engine:   engine,
		enqueuer: enqueue.NewService(stores.Articles, stores.Published, engine, log),
		log:      log,
	}, nil
}

// Close releases storage.
func (q *QueueAdmin) Close() {
	closeStores(q.stores, q.log)
}

// Status returns per-status counts plus the total.
func (q *QueueAdmin) Status(ctx context.Context) (map[string]int, error) {
	return q.engine.Status(ctx)
}

// Retry requeues retryable failed items.
func (q *QueueAdmin) Retry(ctx context.Context) (int, error) {
	return q.engine.Retry(ctx, q.cfg.MaxRetries)
}

// Clean deletes completed items older than the configured age.
func (q *QueueAdmin) Clean(ctx context.Context) (int, error) {
	return q.engine.Clean(ctx, q.cfg.CleanAge)
}

// Sweep returns abandoned PROCESSING claims to PENDING.
func (q *QueueAdmin) Sweep(ctx context.Context) (int, error) {
	return q.engine.SweepStuck(ctx, q.cfg.StuckThreshold)
}

// Add backfills the queue from recent stored articles using the configured
// filter.
func (q *QueueAdmin) Add(ctx context.Context) (enqueue.Result, error) {
	return q.enqueuer.AddFromStore(ctx, enqueue.Filter{
		Platform: q.cfg.FilterPlatform,
		Category: q.cfg.FilterCategory,
		Lookback: time.Duration(q.cfg.FilterHours) * time.Hour,
		Limit:    q.cfg.FilterLimit,
	})
}

// Show loads one queue item by unique_id.
func (q *QueueAdmin) Show(ctx context.Context, uid string) (*domain.QueueItem, error) {
	return q.engine.Item(ctx, uid)
}
