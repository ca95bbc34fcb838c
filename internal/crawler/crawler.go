package crawler

import (
	"context"
	"fmt"
	"sync"

	"github.com/sokbo-hq/sokbo-news-relay/internal/domain"
	"github.com/sokbo-hq/sokbo-news-relay/internal/logger"
	"github.com/sokbo-hq/sokbo-news-relay/pkg/sources"
)

// Service coordinates one crawl pass across all configured sources.
type Service struct {
	registry sources.FetcherRegistry
	scraper  ArticleScraper
}

// NewService wires a crawler with the source fetcher registry.
func NewService(reg sources.FetcherRegistry) *Service {
	return &Service{
		registry: reg,
		scraper:  NewScraper(nil),
	}
}

// NewServiceWithScraper wires a crawler with an explicit scraper (nil disables enrichment).
func NewServiceWithScraper(reg sources.FetcherRegistry, scraper ArticleScraper) *Service {
	return &Service{registry: reg, scraper: scraper}
}

// SourceResult holds the outcome of one source's crawl.
type SourceResult struct {
	Source   sources.Source
	Articles []domain.Article
	Err      error
}

// Run crawls every source concurrently. One source failing never aborts the
// others; results arrive in the same order as cfgs, failed entries carrying
// their error.
func (s *Service) Run(ctx context.Context, cfgs []sources.Source) ([]SourceResult, error) {
	if s == nil || s.registry == nil {
		return nil, fmt.Errorf("crawler service is not initialized")
	}
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("no sources configured for crawling")
	}

	results := make([]SourceResult, len(cfgs))

	var wg sync.WaitGroup
	for i, cfg := range cfgs {
		wg.Add(1)
		go func(i int, cfg sources.Source) {
			defer wg.Done()
			articles, err := s.runSource(ctx, cfg)
			results[i] = SourceResult{Source: cfg, Articles: articles, Err: err}
		}(i, cfg)
	}
	wg.Wait()

	for _, res := range results {
		if res.Err != nil {
			logger.ErrorObj("source crawl failed", "source_error", map[string]any{
				"source_id": res.Source.ID,
				"error":     res.Err.Error(),
			})
			continue
		}
		logger.InfoObj("source crawl completed", "source_result", map[string]any{
			"source_id":          res.Source.ID,
			"articles_collected": len(res.Articles),
		})
	}

	return results, nil
}

func (s *Service) runSource(ctx context.Context, cfg sources.Source) (articles []domain.Article, err error) {
	defer func() {
		// A panicking fetcher must not take down its siblings.
		if r := recover(); r != nil {
			articles = nil
			err = fmt.Errorf("source %s panicked: %v", cfg.ID, r)
		}
	}()

	fetcher, err := s.registry.FetcherFor(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve fetcher for source %s: %w", cfg.ID, err)
	}

	fetched, err := fetcher.Fetch(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("fetch source %s: %w", cfg.ID, err)
	}
	articles = fetched

	if s.scraper != nil && cfg.Enrich {
		articles = s.scraper.Enrich(ctx, cfg, articles)
	}

	return articles, nil
}
