package enqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/sokbo-hq/sokbo-news-relay/internal/domain"
	"github.com/sokbo-hq/sokbo-news-relay/internal/logger"
	"github.com/sokbo-hq/sokbo-news-relay/internal/queue"
	"github.com/sokbo-hq/sokbo-news-relay/internal/storage"
)

// Service feeds articles from the article store into the publication queue,
// skipping anything already queued or already delivered.
type Service struct {
	articles  storage.ArticleStore
	published storage.PublishedSet
	engine    *queue.Engine
	log       logger.Logger
	now       func() time.Time
}

// NewService wires the enqueue service.
func NewService(articles storage.ArticleStore, published storage.PublishedSet, engine *queue.Engine, log logger.Logger) *Service {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Service{
		articles:  articles,
		published: published,
		engine:    engine,
		log:       log,
		now:       time.Now,
	}
}

// Filter restricts which stored articles are considered for enqueueing.
// Zero values mean "no restriction" except Lookback and Limit, which fall
// back to the service defaults when unset.
type Filter struct {
	Platform string
	Category string
	Lookback time.Duration
	Limit    int
}

const (
	defaultLookback = 12 * time.Hour
	defaultLimit    = 100
)

// Result summarizes one enqueue pass.
type Result struct {
	Scanned   int
	Enqueued  int
	Published int
	Duplicate int
}

// AddFromStore queries recent articles (newest first) and enqueues the ones
// not yet queued and not yet delivered. Returns per-pass counters.
func (s *Service) AddFromStore(ctx context.Context, f Filter) (Result, error) {
	lookback := f.Lookback
	if lookback <= 0 {
		lookback = defaultLookback
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	articles, err := s.articles.Find(ctx, storage.ArticleQuery{
		Platform: f.Platform,
		Category: f.Category,
		Since:    s.now().UTC().Add(-lookback),
		Limit:    limit,
	})
	if err != nil {
		return Result{}, domain.NewStorageError("enqueue_query", err)
	}

	res, err := s.Add(ctx, articles)
	if err != nil {
		return res, err
	}

	s.log.InfoObj("enqueue pass completed", "enqueue_pass", map[string]any{
		"scanned":   res.Scanned,
		"enqueued":  res.Enqueued,
		"published": res.Published,
		"duplicate": res.Duplicate,
		"platform":  f.Platform,
		"category":  f.Category,
	})
	return res, nil
}

// Add enqueues the given articles, skipping delivered and already-queued
// ones. Order is preserved so older entries keep their place in line.
func (s *Service) Add(ctx context.Context, articles []domain.Article) (Result, error) {
	res := Result{Scanned: len(articles)}

	for _, a := range articles {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		delivered, err := s.published.Contains(ctx, a.UniqueID)
		if err != nil {
			return res, domain.NewStorageError("published_lookup", err)
		}
		if delivered {
			res.Published++
			continue
		}

		inserted, err := s.engine.Enqueue(ctx, domain.NewQueueItem(a, s.now().UTC()))
		if err != nil {
			return res, fmt.Errorf("enqueue article %s: %w", a.UniqueID, err)
		}
		if !inserted {
			res.Duplicate++
			continue
		}
		res.Enqueued++
	}

	return res, nil
}
