package sources

import (
	"context"

	"github.com/sokbo-hq/sokbo-news-relay/internal/domain"
	"github.com/sokbo-hq/sokbo-news-relay/pkg/httpclient"
)

// Fetcher retrieves and extracts article candidates for one source. Fetch
// completes when the source has been fully polled; the returned slice is
// finite. Concrete implementations live in source-specific files (e.g.,
// ytn.go).
type Fetcher interface {
	ID() string
	Fetch(ctx context.Context, cfg Source) ([]domain.Article, error)
}

// FetcherRegistry resolves the fetcher implementation for a given source config.
type FetcherRegistry interface {
	FetcherFor(cfg Source) (Fetcher, error)
}

// HTTPClient aliases the shared httpclient.Client interface for clarity within sources.
type HTTPClient = httpclient.Client
