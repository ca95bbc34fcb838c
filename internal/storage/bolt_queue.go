package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/sokbo-hq/sokbo-news-relay/internal/domain"
)

// boltQueueStore implements QueueStore backed by BoltDB. Items live in the
// queue bucket keyed by unique_id; a pending index keyed by (created_at,
// seq) serves the FIFO claim. Bolt runs one update transaction at a time,
// so ClaimNext observes and transitions an item atomically.
type boltQueueStore struct {
	db *bolt.DB
}

func (s *boltQueueStore) Insert(ctx context.Context, item domain.QueueItem) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	inserted := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		items, pending, err := queueBuckets(tx)
		if err != nil {
			return err
		}
		if items.Get([]byte(item.UniqueID)) != nil {
			return nil
		}

		seq, err := items.NextSequence()
		if err != nil {
			return err
		}
		item.Seq = seq
		item.Status = domain.StatusPending

		if err := putItem(items, item); err != nil {
			return err
		}
		if err := pending.Put(timeKey(item.CreatedAt, item.Seq), []byte(item.UniqueID)); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	return inserted, err
}

func (s *boltQueueStore) Get(ctx context.Context, uid string) (*domain.QueueItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var found *domain.QueueItem
	err := s.db.View(func(tx *bolt.Tx) error {
		items := tx.Bucket([]byte(queueBucket))
		if items == nil {
			return fmt.Errorf("queue bucket missing")
		}
		raw := items.Get([]byte(uid))
		if raw == nil {
			return nil
		}
		item, err := decodeItem(raw)
		if err != nil {
			return err
		}
		found = item
		return nil
	})
	return found, err
}

func (s *boltQueueStore) ClaimNext(ctx context.Context, now time.Time) (*domain.QueueItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var claimed *domain.QueueItem
	err := s.db.Update(func(tx *bolt.Tx) error {
		items, pending, err := queueBuckets(tx)
		if err != nil {
			return err
		}

		cursor := pending.Cursor()
		for k, uid := cursor.First(); k != nil; k, uid = cursor.Next() {
			raw := items.Get(uid)
			if raw == nil {
				// Stale index entry; drop it and keep scanning.
				if err := cursor.Delete(); err != nil {
					return err
				}
				continue
			}
			item, err := decodeItem(raw)
			if err != nil {
				return err
			}
			if item.Status != domain.StatusPending {
				if err := cursor.Delete(); err != nil {
					return err
				}
				continue
			}

			claimedAt := now
			item.Status = domain.StatusProcessing
			item.ClaimedAt = &claimedAt
			item.UpdatedAt = now
			if err := putItem(items, *item); err != nil {
				return err
			}
			if err := cursor.Delete(); err != nil {
				return err
			}
			claimed = item
			return nil
		}
		return nil
	})
	return claimed, err
}

func (s *boltQueueStore) Complete(ctx context.Context, uid string, now time.Time) (bool, error) {
	return s.transition(ctx, uid, domain.StatusProcessing, func(item *domain.QueueItem) {
		publishedAt := now
		item.Status = domain.StatusCompleted
		item.PublishedAt = &publishedAt
		item.UpdatedAt = now
		item.ErrorMessage = ""
	})
}

func (s *boltQueueStore) Fail(ctx context.Context, uid, errMsg string, minRetryCount int, now time.Time) (bool, error) {
	return s.transition(ctx, uid, domain.StatusProcessing, func(item *domain.QueueItem) {
		item.Status = domain.StatusFailed
		item.ErrorMessage = errMsg
		item.RetryCount++
		if item.RetryCount < minRetryCount {
			item.RetryCount = minRetryCount
		}
		item.UpdatedAt = now
	})
}

// transition applies a single-row conditional update: mutate only when the
// persisted row is still in the expected state.
func (s *boltQueueStore) transition(ctx context.Context, uid string, from domain.QueueStatus, apply func(*domain.QueueItem)) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	applied := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		items, _, err := queueBuckets(tx)
		if err != nil {
			return err
		}
		raw := items.Get([]byte(uid))
		if raw == nil {
			return nil
		}
		item, err := decodeItem(raw)
		if err != nil {
			return err
		}
		if item.Status != from {
			return nil
		}
		apply(item)
		if err := putItem(items, *item); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

func (s *boltQueueStore) RetryFailed(ctx context.Context, maxRetries int, now time.Time) (int, error) {
	return s.requeueWhere(ctx, now, false, func(item domain.QueueItem) bool {
		return item.Status == domain.StatusFailed && item.RetryCount < maxRetries
	})
}

func (s *boltQueueStore) SweepStuck(ctx context.Context, cutoff, now time.Time) (int, error) {
	return s.requeueWhere(ctx, now, true, func(item domain.QueueItem) bool {
		return item.Status == domain.StatusProcessing &&
			item.ClaimedAt != nil && item.ClaimedAt.Before(cutoff)
	})
}

// requeueWhere moves every matching item back to PENDING, restoring its
// pending-index entry so FIFO order by original created_at is preserved.
func (s *boltQueueStore) requeueWhere(ctx context.Context, now time.Time, bumpRetry bool, match func(domain.QueueItem) bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	moved := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		items, pending, err := queueBuckets(tx)
		if err != nil {
			return err
		}

		// Collect matches first; writing into a bucket invalidates a
		// cursor iterating it.
		var matched []*domain.QueueItem
		err = items.ForEach(func(_, raw []byte) error {
			item, err := decodeItem(raw)
			if err != nil {
				return err
			}
			if match(*item) {
				matched = append(matched, item)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, item := range matched {
			item.Status = domain.StatusPending
			item.ErrorMessage = ""
			item.ClaimedAt = nil
			item.UpdatedAt = now
			if bumpRetry {
				item.RetryCount++
			}
			if err := putItem(items, *item); err != nil {
				return err
			}
			if err := pending.Put(timeKey(item.CreatedAt, item.Seq), []byte(item.UniqueID)); err != nil {
				return err
			}
			moved++
		}
		return nil
	})
	return moved, err
}

func (s *boltQueueStore) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		items, _, err := queueBuckets(tx)
		if err != nil {
			return err
		}
		cursor := items.Cursor()
		for k, raw := cursor.First(); k != nil; k, raw = cursor.Next() {
			item, err := decodeItem(raw)
			if err != nil {
				return err
			}
			if item.Status != domain.StatusCompleted || !item.UpdatedAt.Before(cutoff) {
				continue
			}
			if err := cursor.Delete(); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

func (s *boltQueueStore) Exists(ctx context.Context, uid string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	exists := false
	err := s.db.View(func(tx *bolt.Tx) error {
		items := tx.Bucket([]byte(queueBucket))
		if items == nil {
			return fmt.Errorf("queue bucket missing")
		}
		exists = items.Get([]byte(uid)) != nil
		return nil
	})
	return exists, err
}

func (s *boltQueueStore) CountsByStatus(ctx context.Context) (map[domain.QueueStatus]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counts := make(map[domain.QueueStatus]int, 4)
	err := s.db.View(func(tx *bolt.Tx) error {
		items := tx.Bucket([]byte(queueBucket))
		if items == nil {
			return fmt.Errorf("queue bucket missing")
		}
		return items.ForEach(func(_, raw []byte) error {
			item, err := decodeItem(raw)
			if err != nil {
				return err
			}
			counts[item.Status]++
			return nil
		})
	})
	return counts, err
}

func queueBuckets(tx *bolt.Tx) (items, pending *bolt.Bucket, err error) {
	items = tx.Bucket([]byte(queueBucket))
	pending = tx.Bucket([]byte(queuePendingBucket))
	if items == nil || pending == nil {
		return nil, nil, fmt.Errorf("queue buckets missing")
	}
	return items, pending, nil
}

func putItem(bucket *bolt.Bucket, item domain.QueueItem) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode queue item %s: %w", item.UniqueID, err)
	}
	return bucket.Put([]byte(item.UniqueID), raw)
}

func decodeItem(raw []byte) (*domain.QueueItem, error) {
	var item domain.QueueItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("decode queue item: %w", err)
	}
	return &item, nil
}
