package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sokbo-hq/sokbo-news-relay/internal/domain"
	"github.com/sokbo-hq/sokbo-news-relay/internal/logger"
	"github.com/sokbo-hq/sokbo-news-relay/internal/storage"
)

// Package queue implements the publication state machine over the queue
// store:
//
//	[new] -> PENDING -> PROCESSING -> COMPLETED
//	                        |
//	                      FAILED -> (retry) -> PENDING
//
// The store's ClaimNext provides the linearizable PENDING->PROCESSING
// transition; everything else here acts on a known owner. Storage failures
// are wrapped as domain.StorageError and never swallowed.

// maxErrorMessageLen bounds the persisted error message.
const maxErrorMessageLen = 1024

// Engine drives queue items through the publication state machine.
type Engine struct {
	store      storage.QueueStore
	maxRetries int
	log        logger.Logger
}

// NewEngine builds an engine over the given queue store. maxRetries is the
// cap used when a permanent failure exhausts an item immediately.
func NewEngine(store storage.QueueStore, maxRetries int, log logger.Logger) *Engine {
	if log == nil {
		log = logger.NopLogger{}
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Engine{store: store, maxRetries: maxRetries, log: log}
}

// Enqueue inserts a new PENDING item. Returns false when an item with the
// same unique_id already exists, in any status.
func (e *Engine) Enqueue(ctx context.Context, item domain.QueueItem) (bool, error) {
	if strings.TrimSpace(item.UniqueID) == "" {
		return false, fmt.Errorf("%w: queue item unique_id is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(item.URL) == "" {
		return false, fmt.Errorf("%w: queue item url is required", domain.ErrInvalidInput)
	}

	now := time.Now().UTC()
	item.Status = domain.StatusPending
	item.RetryCount = 0
	item.ErrorMessage = ""
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = item.CreatedAt

	inserted, err := e.store.Insert(ctx, item)
	if err != nil {
		return false, domain.NewStorageError("enqueue", err)
	}
	if inserted {
		e.log.DebugObj("queue item enqueued", "queue_enqueue", map[string]any{
			"unique_id": item.UniqueID,
			"platform":  item.Platform,
		})
	}
	return inserted, nil
}

// Claim atomically moves up to limit PENDING items to PROCESSING, oldest
// first. The returned slice may be shorter than limit; no two callers ever
// receive the same item.
func (e *Engine) Claim(ctx context.Context, limit int) ([]domain.QueueItem, error) {
	items := make([]domain.QueueItem, 0, limit)
	for len(items) < limit {
		item, err := e.store.ClaimNext(ctx, time.Now().UTC())
		if err != nil {
			return items, domain.NewStorageError("claim", err)
		}
		if item == nil {
			break
		}
		items = append(items, *item)
	}
	if len(items) > 0 {
		e.log.DebugObj("queue items claimed", "queue_claim", map[string]any{
			"count": len(items),
		})
	}
	return items, nil
}

// Complete marks a PROCESSING item COMPLETED, recording its publish time.
// A call for an item not in PROCESSING is a no-op returning false.
func (e *Engine) Complete(ctx context.Context, uid string) (bool, error) {
	ok, err := e.store.Complete(ctx, uid, time.Now().UTC())
	if err != nil {
		return false, domain.NewStorageError("complete", err)
	}
	if !ok {
		e.log.WarnObj("complete skipped; item not processing", "queue_complete_skip", uid)
	}
	return ok, nil
}

// Fail marks a PROCESSING item FAILED with the given message (bounded to
// 1024 characters) and bumps its retry count. Repeated calls for an item
// already FAILED are no-ops returning false.
func (e *Engine) Fail(ctx context.Context, uid, errMsg string) (bool, error) {
	return e.fail(ctx, uid, errMsg, 0)
}

// FailPermanent marks the item FAILED and raises its retry count to the
// engine's retry cap so a later Retry pass will not requeue it.
func (e *Engine) FailPermanent(ctx context.Context, uid, errMsg string) (bool, error) {
	return e.fail(ctx, uid, errMsg, e.maxRetries)
}

func (e *Engine) fail(ctx context.Context, uid, errMsg string, minRetryCount int) (bool, error) {
	errMsg = truncate(errMsg, maxErrorMessageLen)
	if errMsg == "" {
		errMsg = "unknown error"
	}

	ok, err := e.store.Fail(ctx, uid, errMsg, minRetryCount, time.Now().UTC())
	if err != nil {
		return false, domain.NewStorageError("fail", err)
	}
	if ok {
		e.log.InfoObj("queue item failed", "queue_fail", map[string]any{
			"unique_id": uid,
			"error":     errMsg,
			"permanent": minRetryCount > 0,
		})
	}
	return ok, nil
}

// Retry moves every FAILED item with retry_count < maxRetries back to
// PENDING and returns how many moved. Retry counts are never decremented.
func (e *Engine) Retry(ctx context.Context, maxRetries int) (int, error) {
	moved, err := e.store.RetryFailed(ctx, maxRetries, time.Now().UTC())
	if err != nil {
		return 0, domain.NewStorageError("retry", err)
	}
	if moved > 0 {
		e.log.InfoObj("failed items requeued", "queue_retry", moved)
	}
	return moved, nil
}

// SweepStuck returns PROCESSING items claimed more than threshold ago to
// PENDING, treating them as abandoned by a dead worker.
func (e *Engine) SweepStuck(ctx context.Context, threshold time.Duration) (int, error) {
	now := time.Now().UTC()
	moved, err := e.store.SweepStuck(ctx, now.Add(-threshold), now)
	if err != nil {
		return 0, domain.NewStorageError("sweep_stuck", err)
	}
	if moved > 0 {
		e.log.WarnObj("stuck claims swept back to pending", "queue_sweep", moved)
	}
	return moved, nil
}

// Clean deletes COMPLETED items whose last update is older than age.
func (e *Engine) Clean(ctx context.Context, age time.Duration) (int, error) {
	deleted, err := e.store.DeleteCompletedBefore(ctx, time.Now().UTC().Add(-age))
	if err != nil {
		return 0, domain.NewStorageError("clean", err)
	}
	if deleted > 0 {
		e.log.InfoObj("completed items cleaned", "queue_clean", deleted)
	}
	return deleted, nil
}

// Item loads one queue item by unique_id. Returns domain.ErrNotFound when
// no such item exists.
func (e *Engine) Item(ctx context.Context, uid string) (*domain.QueueItem, error) {
	item, err := e.store.Get(ctx, uid)
	if err != nil {
		return nil, domain.NewStorageError("get", err)
	}
	if item == nil {
		return nil, fmt.Errorf("%w: queue item %s", domain.ErrNotFound, uid)
	}
	return item, nil
}

// IsDuplicate reports whether any item with the given unique_id exists, in
// any status.
func (e *Engine) IsDuplicate(ctx context.Context, uid string) (bool, error) {
	exists, err := e.store.Exists(ctx, uid)
	if err != nil {
		return false, domain.NewStorageError("is_duplicate", err)
	}
	return exists, nil
}

// Status returns a snapshot of per-status counts plus a "total" entry.
// Individual counts come from one pass but callers must not assume they
// stay mutually consistent under concurrent writers.
func (e *Engine) Status(ctx context.Context) (map[string]int, error) {
	counts, err := e.store.CountsByStatus(ctx)
	if err != nil {
		return nil, domain.NewStorageError("status", err)
	}

	out := make(map[string]int, 5)
	total := 0
	for _, status := range domain.Statuses() {
		out[string(status)] = counts[status]
		total += counts[status]
	}
	out["total"] = total
	return out, nil
}

// MaxRetries exposes the engine's configured retry cap.
func (e *Engine) MaxRetries() int { return e.maxRetries }

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max]
}
