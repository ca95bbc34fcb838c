package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sokbo-hq/sokbo-news-relay/internal/logger"
	"github.com/sokbo-hq/sokbo-news-relay/internal/queue"
)

// MaintenanceOptions tunes the periodic queue upkeep.
type MaintenanceOptions struct {
	Schedule       string
	MaxRetries     int
	CleanAge       time.Duration
	StuckThreshold time.Duration
}

func (o MaintenanceOptions) withDefaults() MaintenanceOptions {
	if o.Schedule == "" {
		o.Schedule = "@every 5m"
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.CleanAge <= 0 {
		o.CleanAge = 7 * 24 * time.Hour
	}
	if o.StuckThreshold <= 0 {
		o.StuckThreshold = 10 * time.Minute
	}
	return o
}

// Maintenance runs the recurring queue upkeep on a cron schedule: sweep
// stuck claims, requeue retryable failures, drop old completed items.
type Maintenance struct {
	engine *queue.Engine
	opts   MaintenanceOptions
	log    logger.Logger
}

// NewMaintenance builds the maintenance scheduler.
func NewMaintenance(engine *queue.Engine, opts MaintenanceOptions, log logger.Logger) *Maintenance {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Maintenance{
		engine: engine,
		opts:   opts.withDefaults(),
		log:    log,
	}
}

// Start schedules passes and blocks until ctx is cancelled.
func (m *Maintenance) Start(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(m.opts.Schedule, func() {
		if err := m.RunPass(ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.log.ErrorObj("maintenance pass failed", "maintenance_error", map[string]any{
				"error": err.Error(),
			})
		}
	})
	if err != nil {
		return fmt.Errorf("schedule maintenance %q: %w", m.opts.Schedule, err)
	}

	c.Start()

	<-ctx.Done()
	// Wait for a running pass to finish before returning.
	<-c.Stop().Done()
	return nil
}

// RunPass executes one upkeep pass.
func (m *Maintenance) RunPass(ctx context.Context) error {
	swept, err := m.engine.SweepStuck(ctx, m.opts.StuckThreshold)
	if err != nil {
		return err
	}
	retried, err := m.engine.Retry(ctx, m.opts.MaxRetries)
	if err != nil {
		return err
	}
	cleaned, err := m.engine.Clean(ctx, m.opts.CleanAge)
	if err != nil {
		return err
	}

	m.log.InfoObj("maintenance pass completed", "maintenance_pass", map[string]any{
		"swept":   swept,
		"retried": retried,
		"cleaned": cleaned,
	})
	return nil
}
