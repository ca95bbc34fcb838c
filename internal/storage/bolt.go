package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	articleBucket      = "articles"
	articleURLBucket   = "articles_by_url"
	articleTimeBucket  = "articles_by_time"
	queueBucket        = "queue_items"
	queuePendingBucket = "queue_pending"
	publishedBucket    = "published"

	expiryValueBytes = 8
	timeKeyBytes     = 16
)

var allBuckets = []string{
	articleBucket,
	articleURLBucket,
	articleTimeBucket,
	queueBucket,
	queuePendingBucket,
	publishedBucket,
}

// openBolt initializes a BoltDB file shared by all three stores. Bolt
// serializes update transactions, which is what makes the queue claim
// linearizable.
func openBolt(path string, opts Options) (*Stores, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	published := &boltPublishedSet{
		db:              db,
		ttl:             opts.PublishedTTL,
		cleanupInterval: opts.CleanupInterval,
	}
	published.lastCleanup.Store(time.Now().Unix())

	return &Stores{
		Articles:  &boltArticleStore{db: db},
		Queue:     &boltQueueStore{db: db},
		Published: published,
		closer:    db.Close,
	}, nil
}

// timeKey builds a sortable index key: big-endian unix nanos followed by
// the insertion sequence as the tie-breaker.
func timeKey(t time.Time, seq uint64) []byte {
	buf := make([]byte, timeKeyBytes)
	binary.BigEndian.PutUint64(buf[:8], uint64(t.UnixNano()))
	binary.BigEndian.PutUint64(buf[8:], seq)
	return buf
}

func encodeExpiry(t time.Time) []byte {
	buf := make([]byte, expiryValueBytes)
	binary.BigEndian.PutUint64(buf, uint64(t.Unix()))
	return buf
}

// decodeExpiry decodes the expiry time from the stored byte slice.
func decodeExpiry(value []byte) (time.Time, bool) {
	if len(value) != expiryValueBytes {
		return time.Time{}, false
	}
	unix := int64(binary.BigEndian.Uint64(value))
	if unix <= 0 {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}
