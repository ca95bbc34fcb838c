package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/sokbo-hq/sokbo-news-relay/internal/config"
	"github.com/sokbo-hq/sokbo-news-relay/internal/logger"
	"github.com/sokbo-hq/sokbo-news-relay/internal/publish"
	"github.com/sokbo-hq/sokbo-news-relay/internal/storage"
	"github.com/sokbo-hq/sokbo-news-relay/pkg/notify"
)

// Publisher is the long-running delivery runtime: the worker loop plus the
// scheduled queue maintenance.
type Publisher struct {
	cfg         *config.Config
	stores      *storage.Stores
	worker      *publish.Worker
	maintenance *publish.Maintenance
	fanout      *notify.Fanout
	log         logger.Logger
}

// NewPublisher builds the publisher runtime from config files.
func NewPublisher(ctx context.Context, cfg *config.Config, log logger.Logger) (*Publisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	notifierReg, err := notify.LoadRegistry(cfg.NotifiersFile)
	if err != nil {
		return nil, fmt.Errorf("load notifiers registry: %w", err)
	}
	enabled := notifierReg.Enabled()
	if len(enabled) == 0 {
		return nil, fmt.Errorf("no notifiers configured")
	}

	notifiers, err := notify.BuildAll(ctx, notify.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build notifiers: %w", err)
	}
	fanout := notify.NewFanout(notifiers)

	summaries := make([]map[string]string, 0, len(enabled))
	for _, nCfg := range enabled {
		summaries = append(summaries, map[string]string{
			"id":   nCfg.ID,
			"type": nCfg.Type,
		})
	}
	log.InfoObj("notifiers registry loaded", "notifiers_meta", map[string]any{
		"count":     len(summaries),
		"notifiers": summaries,
	})

	stores, err := openStores(cfg, log)
	if err != nil {
		return nil, err
	}
	engine := newEngine(stores, cfg, log)

	worker := publish.NewWorker(engine, stores.Published, fanout, publish.Options{
		BatchSize:   cfg.BatchSize,
		Interval:    cfg.PublishInterval,
		SendTimeout: cfg.SendTimeout,
		Concurrency: cfg.SendConcurrency,
	}, log)

	maintenance := publish.NewMaintenance(engine, publish.MaintenanceOptions{
		Schedule:       cfg.MaintenanceSchedule,
		MaxRetries:     cfg.MaxRetries,
		CleanAge:       cfg.CleanAge,
		StuckThreshold: cfg.StuckThreshold,
	}, log)

	return &Publisher{
		cfg:         cfg,
		stores:      stores,
		worker:      worker,
		maintenance: maintenance,
		fanout:      fanout,
		log:         log,
	}, nil
}

// Run starts the worker loop and the maintenance schedule until the context
// is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	if p == nil || p.worker == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	defer closeStores(p.stores, p.log)

	p.log.InfoObj("publisher loop starting", "publisher_state", map[string]any{
		"targets":          p.fanout.Size(),
		"batch_size":       p.cfg.BatchSize,
		"publish_interval": p.cfg.PublishInterval.String(),
		"schedule":         p.cfg.MaintenanceSchedule,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.worker.Run(ctx) })
	g.Go(func() error { return p.maintenance.Start(ctx) })

	if err := g.Wait(); err != nil {
		return fmt.Errorf("publisher run: %w", err)
	}
	p.log.InfoObj("publisher loop exiting", "publisher_state", "shutdown")
	return nil
}
