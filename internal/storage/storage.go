package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sokbo-hq/sokbo-news-relay/internal/domain"
)

// Package storage provides the durable store abstraction behind the relay:
// the article store, the publish queue store, and the published set.

// ArticleQuery filters the article store listing. Zero values mean "no
// filter"; results are ordered by collected_at descending.
type ArticleQuery struct {
	Platform string
	Category string
	Since    time.Time
	Limit    int
}

// ArticleStore is the durable collection of crawled articles.
type ArticleStore interface {
	// Insert stores a new article. Returns domain.ErrDuplicate when an
	// article with the same unique_id or url exists, domain.ErrInvalidInput
	// when required fields are missing.
	Insert(ctx context.Context, a domain.Article) error
	FindByUniqueID(ctx context.Context, uid string) (*domain.Article, error)
	FindByURL(ctx context.Context, url string) (*domain.Article, error)
	Find(ctx context.Context, q ArticleQuery) ([]domain.Article, error)
}

// QueueStore is the durable collection of queue items. ClaimNext is the
// only operation required to be linearizable; every other transition acts
// on a known owner and needs only single-row atomicity.
type QueueStore interface {
	// Insert adds a PENDING item. Returns false on a unique_id conflict.
	Insert(ctx context.Context, item domain.QueueItem) (bool, error)
	Get(ctx context.Context, uid string) (*domain.QueueItem, error)
	// ClaimNext atomically moves the oldest PENDING item to PROCESSING
	// and returns it. Returns (nil, nil) when nothing is pending.
	ClaimNext(ctx context.Context, now time.Time) (*domain.QueueItem, error)
	// Complete moves a PROCESSING item to COMPLETED. False when the item
	// is missing or not in PROCESSING.
	Complete(ctx context.Context, uid string, now time.Time) (bool, error)
	// Fail moves a PROCESSING item to FAILED, records errMsg, and bumps
	// retry_count by one (at least to minRetryCount). False when the item
	// is missing or not in PROCESSING.
	Fail(ctx context.Context, uid, errMsg string, minRetryCount int, now time.Time) (bool, error)
	// RetryFailed moves every FAILED item with retry_count < maxRetries
	// back to PENDING, clearing its error message.
	RetryFailed(ctx context.Context, maxRetries int, now time.Time) (int, error)
	// SweepStuck moves PROCESSING items claimed before cutoff back to
	// PENDING, bumping retry_count.
	SweepStuck(ctx context.Context, cutoff, now time.Time) (int, error)
	// DeleteCompletedBefore removes COMPLETED items updated before cutoff.
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int, error)
	Exists(ctx context.Context, uid string) (bool, error)
	CountsByStatus(ctx context.Context) (map[domain.QueueStatus]int, error)
}

// PublishedSet records ids that were delivered to the chat target. Add is
// idempotent.
type PublishedSet interface {
	Contains(ctx context.Context, uid string) (bool, error)
	Add(ctx context.Context, uid string) error
}

// Options controls retention characteristics for concrete store implementations.
type Options struct {
	PublishedTTL    time.Duration
	CleanupInterval time.Duration
}

const (
	defaultPublishedTTL    = 14 * 24 * time.Hour
	defaultCleanupInterval = 12 * time.Hour
)

// Stores bundles the three stores opened over one backend.
type Stores struct {
	Articles  ArticleStore
	Queue     QueueStore
	Published PublishedSet

	closer func() error
}

// Close releases the underlying backend.
func (s *Stores) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer()
}

// Open creates the configured storage backend.
func Open(typ, path string, opts Options) (*Stores, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path, opts)
	case "memory":
		return OpenMemory(opts), nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.PublishedTTL <= 0 {
		opts.PublishedTTL = defaultPublishedTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

// validateArticle enforces the article store's required-field contract.
func validateArticle(a domain.Article, now time.Time) error {
	switch {
	case strings.TrimSpace(a.UniqueID) == "":
		return fmt.Errorf("%w: unique_id is required", domain.ErrInvalidInput)
	case strings.TrimSpace(a.Platform) == "":
		return fmt.Errorf("%w: platform is required", domain.ErrInvalidInput)
	case strings.TrimSpace(a.URL) == "":
		return fmt.Errorf("%w: url is required", domain.ErrInvalidInput)
	case strings.TrimSpace(a.Title) == "":
		return fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	case a.CollectedAt.IsZero():
		return fmt.Errorf("%w: collected_at is required", domain.ErrInvalidInput)
	case a.CollectedAt.After(now):
		return fmt.Errorf("%w: collected_at is in the future", domain.ErrInvalidInput)
	}
	return nil
}
