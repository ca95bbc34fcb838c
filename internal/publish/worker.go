package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sokbo-hq/sokbo-news-relay/internal/domain"
	"github.com/sokbo-hq/sokbo-news-relay/internal/logger"
	"github.com/sokbo-hq/sokbo-news-relay/internal/queue"
	"github.com/sokbo-hq/sokbo-news-relay/internal/storage"
)

// Sender delivers one message to the configured targets. notify.Fanout
// satisfies this.
type Sender interface {
	Send(ctx context.Context, msg domain.Message) (int, error)
}

// Options tunes the worker loop.
type Options struct {
	BatchSize   int
	Interval    time.Duration
	SendTimeout time.Duration
	Concurrency int
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 20
	}
	if o.Interval <= 0 {
		o.Interval = time.Minute
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 10 * time.Second
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	return o
}

// Worker claims pending queue items and pushes them to the chat targets.
// Claimed items always reach a terminal transition: COMPLETED on delivery,
// FAILED otherwise, including on shutdown.
type Worker struct {
	engine    *queue.Engine
	published storage.PublishedSet
	sender    Sender
	opts      Options
	log       logger.Logger
}

// NewWorker builds a publisher worker.
func NewWorker(engine *queue.Engine, published storage.PublishedSet, sender Sender, opts Options, log logger.Logger) *Worker {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Worker{
		engine:    engine,
		published: published,
		sender:    sender,
		opts:      opts.withDefaults(),
		log:       log,
	}
}

// Run loops until ctx is cancelled: claim a batch, dispatch it, sleep when
// the queue is empty. Returns nil on a clean shutdown; storage errors abort
// the loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		processed, err := w.RunOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if processed == 0 {
			timer := time.NewTimer(w.opts.Interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
	}
}

// RunOnce claims and dispatches at most one batch. Returns the number of
// items claimed. Send failures are recorded on the item and do not surface
// as an error; storage failures do.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	items, err := w.engine.Claim(ctx, w.opts.BatchSize)
	if err != nil {
		return len(items), err
	}
	if len(items) == 0 {
		return 0, nil
	}

	var g errgroup.Group
	g.SetLimit(w.opts.Concurrency)
	for _, item := range items {
		item := item
		g.Go(func() error {
			return w.dispatch(ctx, item)
		})
	}
	if err := g.Wait(); err != nil {
		return len(items), err
	}

	return len(items), nil
}

// dispatch sends one claimed item and records the terminal transition.
// Transitions run on a detached context so shutdown cannot leave a claimed
// item without a recorded outcome.
func (w *Worker) dispatch(ctx context.Context, item domain.QueueItem) error {
	storeCtx := context.WithoutCancel(ctx)

	// A cancelled run fails its claimed leftovers instead of abandoning
	// them to the stuck sweeper.
	if ctx.Err() != nil {
		_, err := w.engine.Fail(storeCtx, item.UniqueID, "shutdown")
		return w.storageOnly(err)
	}

	// In-flight sends finish on shutdown; only the timeout bounds them.
	sendCtx, cancel := context.WithTimeout(storeCtx, w.opts.SendTimeout)
	defer cancel()

	delivered, sendErr := w.sender.Send(sendCtx, domain.MessageFromItem(item))
	if sendErr == nil {
		if _, err := w.engine.Complete(storeCtx, item.UniqueID); err != nil {
			return err
		}
		if err := w.published.Add(storeCtx, item.UniqueID); err != nil {
			// The item is already COMPLETED; queue-level dedup still holds.
			w.log.WarnObj("published set update failed", "published_add_error", map[string]any{
				"unique_id": item.UniqueID,
				"error":     err.Error(),
			})
		}
		w.log.InfoObj("queue item published", "publish_success", map[string]any{
			"unique_id": item.UniqueID,
			"platform":  item.Platform,
			"targets":   delivered,
		})
		return nil
	}

	var failErr error
	if domain.IsPermanent(sendErr) {
		_, failErr = w.engine.FailPermanent(storeCtx, item.UniqueID, sendErr.Error())
	} else {
		_, failErr = w.engine.Fail(storeCtx, item.UniqueID, sendErr.Error())
	}
	if failErr != nil {
		return failErr
	}

	w.log.WarnObj("queue item publish failed", "publish_failure", map[string]any{
		"unique_id": item.UniqueID,
		"platform":  item.Platform,
		"permanent": domain.IsPermanent(sendErr),
		"error":     sendErr.Error(),
	})
	return nil
}

// storageOnly keeps storage failures fatal while swallowing everything else.
func (w *Worker) storageOnly(err error) error {
	if err == nil {
		return nil
	}
	if domain.IsStorageError(err) {
		return err
	}
	return fmt.Errorf("record shutdown failure: %w", err)
}
