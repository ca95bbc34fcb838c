package crawler

import (
	"context"

	"github.com/sokbo-hq/sokbo-news-relay/internal/domain"
	"github.com/sokbo-hq/sokbo-news-relay/pkg/sources"
)

// ArticleScraper enriches crawled articles with page metadata (e.g., OG tags).
type ArticleScraper interface {
	Enrich(ctx context.Context, cfg sources.Source, articles []domain.Article) []domain.Article
}
