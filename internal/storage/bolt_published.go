package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

// boltPublishedSet records published ids with a TTL so the bucket cannot
// grow without bound. Expired entries are swept on a fixed cadence.
type boltPublishedSet struct {
	db              *bolt.DB
	cleanupMu       sync.Mutex
	lastCleanup     atomic.Int64
	ttl             time.Duration
	cleanupInterval time.Duration
}

func (b *boltPublishedSet) Contains(ctx context.Context, uid string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := b.maybeCleanupExpired(time.Now()); err != nil {
		return false, err
	}

	var exists bool
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(publishedBucket))
		if bucket == nil {
			return fmt.Errorf("published bucket missing")
		}

		key := []byte(uid)
		value := bucket.Get(key)
		if value == nil {
			exists = false
			return nil
		}

		expiry, ok := decodeExpiry(value)
		if !ok || !expiry.After(time.Now()) {
			exists = false
			return bucket.Delete(key)
		}

		exists = true
		return nil
	})
	return exists, err
}

func (b *boltPublishedSet) Add(ctx context.Context, uid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return err
	}

	// Overwriting an existing entry only refreshes its expiry, so Add is
	// idempotent.
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(publishedBucket))
		if bucket == nil {
			return fmt.Errorf("published bucket missing")
		}
		return bucket.Put([]byte(uid), encodeExpiry(now.Add(b.ttl)))
	})
}

// maybeCleanupExpired removes expired ids on a fixed cadence.
func (b *boltPublishedSet) maybeCleanupExpired(now time.Time) error {
	last := time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	b.cleanupMu.Lock()
	defer b.cleanupMu.Unlock()

	last = time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(publishedBucket))
		if bucket == nil {
			return fmt.Errorf("published bucket missing")
		}

		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			expiry, ok := decodeExpiry(v)
			if !ok || !expiry.After(now) {
				if err := cursor.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err == nil {
		b.lastCleanup.Store(now.Unix())
	}
	return err
}
