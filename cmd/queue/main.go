package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sokbo-hq/sokbo-news-relay/internal/app"
	"github.com/sokbo-hq/sokbo-news-relay/internal/config"
	"github.com/sokbo-hq/sokbo-news-relay/internal/logger"
)

const usage = `usage: queue <command> [args]

commands:
  status        print per-status item counts
  retry         requeue retryable failed items
  clean         delete old completed items
  sweep         return abandoned claims to pending
  add           backfill the queue from recent stored articles
  show <uid>    print one queue item as JSON
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "queue failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		flag.Usage()
		return fmt.Errorf("missing command")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if _, err := logger.Init(cfg.LogLevel); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	admin, err := app.NewQueueAdmin(cfg, logger.Std{})
	if err != nil {
		return err
	}
	defer admin.Close()

	switch command {
	case "status":
		status, err := admin.Status(ctx)
		if err != nil {
			return err
		}
		return printJSON(status)
	case "retry":
		moved, err := admin.Retry(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("requeued %d failed items\n", moved)
	case "clean":
		deleted, err := admin.Clean(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d completed items\n", deleted)
	case "sweep":
		moved, err := admin.Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("swept %d stuck items back to pending\n", moved)
	case "add":
		res, err := admin.Add(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("scanned %d, enqueued %d (skipped: %d published, %d queued)\n",
			res.Scanned, res.Enqueued, res.Published, res.Duplicate)
	case "show":
		uid := flag.Arg(1)
		if uid == "" {
			return fmt.Errorf("show requires a unique_id")
		}
		item, err := admin.Show(ctx, uid)
		if err != nil {
			return err
		}
		return printJSON(item)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
