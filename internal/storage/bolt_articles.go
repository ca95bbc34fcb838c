package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/sokbo-hq/sokbo-news-relay/internal/domain"
)

// boltArticleStore implements ArticleStore backed by BoltDB. Articles are
// stored by unique_id with a url index and a collected_at index serving
// the newest-first listing.
type boltArticleStore struct {
	db *bolt.DB
}

func (s *boltArticleStore) Insert(ctx context.Context, a domain.Article) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateArticle(a, time.Now()); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		articles := tx.Bucket([]byte(articleBucket))
		byURL := tx.Bucket([]byte(articleURLBucket))
		byTime := tx.Bucket([]byte(articleTimeBucket))
		if articles == nil || byURL == nil || byTime == nil {
			return fmt.Errorf("article buckets missing")
		}

		if articles.Get([]byte(a.UniqueID)) != nil {
			return fmt.Errorf("%w: unique_id %s", domain.ErrDuplicate, a.UniqueID)
		}
		if byURL.Get([]byte(a.URL)) != nil {
			return fmt.Errorf("%w: url %s", domain.ErrDuplicate, a.URL)
		}

		raw, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("encode article: %w", err)
		}
		if err := articles.Put([]byte(a.UniqueID), raw); err != nil {
			return err
		}
		if err := byURL.Put([]byte(a.URL), []byte(a.UniqueID)); err != nil {
			return err
		}
		seq, err := byTime.NextSequence()
		if err != nil {
			return err
		}
		return byTime.Put(timeKey(a.CollectedAt, seq), []byte(a.UniqueID))
	})
}

func (s *boltArticleStore) FindByUniqueID(ctx context.Context, uid string) (*domain.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var found *domain.Article
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(articleBucket))
		if bucket == nil {
			return fmt.Errorf("article bucket missing")
		}
		raw := bucket.Get([]byte(uid))
		if raw == nil {
			return nil
		}
		var a domain.Article
		if err := json.Unmarshal(raw, &a); err != nil {
			return fmt.Errorf("decode article %s: %w", uid, err)
		}
		found = &a
		return nil
	})
	return found, err
}

func (s *boltArticleStore) FindByURL(ctx context.Context, url string) (*domain.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var uid string
	err := s.db.View(func(tx *bolt.Tx) error {
		byURL := tx.Bucket([]byte(articleURLBucket))
		if byURL == nil {
			return fmt.Errorf("article url bucket missing")
		}
		if raw := byURL.Get([]byte(url)); raw != nil {
			uid = string(raw)
		}
		return nil
	})
	if err != nil || uid == "" {
		return nil, err
	}
	return s.FindByUniqueID(ctx, uid)
}

func (s *boltArticleStore) Find(ctx context.Context, q ArticleQuery) ([]domain.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []domain.Article
	err := s.db.View(func(tx *bolt.Tx) error {
		articles := tx.Bucket([]byte(articleBucket))
		byTime := tx.Bucket([]byte(articleTimeBucket))
		if articles == nil || byTime == nil {
			return fmt.Errorf("article buckets missing")
		}

		// Reverse scan over the time index yields collected_at descending.
		cursor := byTime.Cursor()
		for k, uid := cursor.Last(); k != nil; k, uid = cursor.Prev() {
			raw := articles.Get(uid)
			if raw == nil {
				continue
			}
			var a domain.Article
			if err := json.Unmarshal(raw, &a); err != nil {
				return fmt.Errorf("decode article %s: %w", uid, err)
			}
			if !q.Since.IsZero() && a.CollectedAt.Before(q.Since) {
				// Keys are time-ordered; everything earlier is older.
				break
			}
			if q.Platform != "" && a.Platform != q.Platform {
				continue
			}
			if q.Category != "" && a.Category != q.Category {
				continue
			}
			out = append(out, a)
			if q.Limit > 0 && len(out) >= q.Limit {
				break
			}
		}
		return nil
	})
	return out, err
}
