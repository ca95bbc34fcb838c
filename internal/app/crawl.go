package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sokbo-hq/sokbo-news-relay/internal/config"
	"github.com/sokbo-hq/sokbo-news-relay/internal/crawler"
	"github.com/sokbo-hq/sokbo-news-relay/internal/domain"
	"github.com/sokbo-hq/sokbo-news-relay/internal/enqueue"
	"github.com/sokbo-hq/sokbo-news-relay/internal/logger"
	"github.com/sokbo-hq/sokbo-news-relay/internal/storage"
	"github.com/sokbo-hq/sokbo-news-relay/pkg/sources"
)

// CrawlOptions adjusts a crawl run.
type CrawlOptions struct {
	// NoSave fetches and reports without touching the stores.
	NoSave bool
	// SourceID restricts the run to a single source.
	SourceID string
}

// Crawl is the one-shot collection runtime: fan out over the sources, store
// new articles, feed the queue.
type Crawl struct {
	cfg       *config.Config
	sourceReg *sources.Registry
	service   *crawler.Service
	stores    *storage.Stores
	enqueuer  *enqueue.Service
	log       logger.Logger
	opts      CrawlOptions
}

// NewCrawl builds the crawl runtime from config files.
func NewCrawl(cfg *config.Config, opts CrawlOptions, log logger.Logger) (*Crawl, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = logger.NopLogger{}
	}

	sourceReg, err := sources.LoadRegistry(cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("load sources registry: %w", err)
	}
	sourceList := sourceReg.All()
	sourceIDs := make([]string, 0, len(sourceList))
	for _, s := range sourceList {
		sourceIDs = append(sourceIDs, s.ID)
	}
	log.InfoObj("sources registry loaded", "sources_meta", map[string]any{
		"count": len(sourceIDs),
		"ids":   sourceIDs,
	})

	var stores *storage.Stores
	var enqueuer *enqueue.Service
	if !opts.NoSave {
		stores, err = openStores(cfg, log)
		if err != nil {
			return nil, err
		}
		enqueuer = enqueue.NewService(stores.Articles, stores.Published, newEngine(stores, cfg, log), log)
	}

	return &Crawl{
		cfg:       cfg,
		sourceReg: sourceReg,
		service:   crawler.NewServiceWithScraper(sources.DefaultFetcherRegistry(nil), crawler.NewScraper(nil)),
		stores:    stores,
		enqueuer:  enqueuer,
		log:       log,
		opts:      opts,
	}, nil
}

// Run executes one crawl cycle and releases storage.
func (c *Crawl) Run(ctx context.Context) error {
	defer closeStores(c.stores, c.log)

	cfgs := c.sourceReg.All()
	if c.opts.SourceID != "" {
		src, ok := c.sourceReg.ByID(c.opts.SourceID)
		if !ok {
			return fmt.Errorf("unknown source id %q", c.opts.SourceID)
		}
		cfgs = []sources.Source{src}
	}

	start := time.Now()
	results, err := c.service.Run(ctx, cfgs)
	if err != nil {
		return err
	}

	collected := 0
	var crawlErrs []error
	for _, res := range results {
		collected += len(res.Articles)
		if res.Err != nil {
			crawlErrs = append(crawlErrs, res.Err)
		}
	}

	if c.opts.NoSave {
		c.log.InfoObj("crawl dry run completed", "crawl_meta", map[string]any{
			"sources_count": len(cfgs),
			"collected":     collected,
			"failed":        len(crawlErrs),
			"elapsed_ms":    time.Since(start).Milliseconds(),
		})
		return errors.Join(crawlErrs...)
	}

	stored, enqueued := 0, 0
	for _, res := range results {
		if res.Err != nil {
			continue
		}
		fresh := c.storeNew(ctx, res.Articles)
		stored += len(fresh)

		added, err := c.enqueuer.Add(ctx, fresh)
		if err != nil {
			return fmt.Errorf("enqueue source %s: %w", res.Source.ID, err)
		}
		enqueued += added.Enqueued
	}

	c.log.InfoObj("crawl completed", "crawl_meta", map[string]any{
		"sources_count": len(cfgs),
		"collected":     collected,
		"stored":        stored,
		"enqueued":      enqueued,
		"failed":        len(crawlErrs),
		"elapsed_ms":    time.Since(start).Milliseconds(),
	})

	// Every source failing is an operational error; partial failure is not.
	if len(crawlErrs) == len(cfgs) && len(cfgs) > 0 {
		return errors.Join(crawlErrs...)
	}
	return nil
}

// storeNew inserts articles into the article store and returns the ones not
// seen before. Duplicates are dropped silently; invalid records are logged.
func (c *Crawl) storeNew(ctx context.Context, articles []domain.Article) []domain.Article {
	fresh := make([]domain.Article, 0, len(articles))
	for _, a := range articles {
		err := c.stores.Articles.Insert(ctx, a)
		switch {
		case err == nil:
			fresh = append(fresh, a)
		case errors.Is(err, domain.ErrDuplicate):
			// seen in an earlier run
		default:
			c.log.WarnObj("article insert failed", "article_insert_error", map[string]any{
				"unique_id": a.UniqueID,
				"error":     err.Error(),
			})
		}
	}
	return fresh
}
