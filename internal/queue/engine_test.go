package queue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sokbo-hq/sokbo-news-relay/internal/domain"
	"github.com/sokbo-hq/sokbo-news-relay/internal/logger"
	"github.com/sokbo-hq/sokbo-news-relay/internal/storage"
)

const testMaxRetries = 3

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(storage.NewMemoryQueueStore(), testMaxRetries, logger.NopLogger{})
}

func newsItem(uid string) domain.QueueItem {
	return domain.QueueItem{
		UniqueID:  uid,
		ArticleID: uid,
		Platform:  "YTN",
		Title:     "title " + uid,
		URL:       "https://news.example.com/" + uid,
	}
}

func mustEnqueue(t *testing.T, engine *Engine, uids ...string) {
	t.Helper()
	for _, uid := range uids {
		inserted, err := engine.Enqueue(context.Background(), newsItem(uid))
		if err != nil || !inserted {
			t.Fatalf("Enqueue %s: inserted=%v err=%v", uid, inserted, err)
		}
	}
}

func mustClaimOne(t *testing.T, engine *Engine) domain.QueueItem {
	t.Helper()
	items, err := engine.Claim(context.Background(), 1)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one claimed item, got %d", len(items))
	}
	return items[0]
}

func TestEnqueueDeduplicatesByUniqueID(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	mustEnqueue(t, engine, "YTN_1")

	// A second enqueue of the same id is rejected in any status.
	if inserted, err := engine.Enqueue(ctx, newsItem("YTN_1")); err != nil || inserted {
		t.Fatalf("duplicate Enqueue: inserted=%v err=%v", inserted, err)
	}
	mustClaimOne(t, engine)
	if _, err := engine.Complete(ctx, "YTN_1"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if inserted, err := engine.Enqueue(ctx, newsItem("YTN_1")); err != nil || inserted {
		t.Fatalf("Enqueue after completion: inserted=%v err=%v", inserted, err)
	}

	if dup, err := engine.IsDuplicate(ctx, "YTN_1"); err != nil || !dup {
		t.Fatalf("IsDuplicate: dup=%v err=%v", dup, err)
	}
	if dup, err := engine.IsDuplicate(ctx, "YTN_2"); err != nil || dup {
		t.Fatalf("IsDuplicate unknown id: dup=%v err=%v", dup, err)
	}
}

func TestEnqueueValidatesAndNormalizes(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	missing := newsItem("")
	if _, err := engine.Enqueue(ctx, missing); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty unique_id, got %v", err)
	}
	noURL := newsItem("YTN_1")
	noURL.URL = ""
	if _, err := engine.Enqueue(ctx, noURL); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty url, got %v", err)
	}

	// Caller-supplied lifecycle state is ignored on enqueue.
	tainted := newsItem("YTN_2")
	tainted.Status = domain.StatusCompleted
	tainted.RetryCount = 9
	tainted.ErrorMessage = "stale"
	if inserted, err := engine.Enqueue(ctx, tainted); err != nil || !inserted {
		t.Fatalf("Enqueue: inserted=%v err=%v", inserted, err)
	}
	item, err := engine.Item(ctx, "YTN_2")
	if err != nil {
		t.Fatalf("Item: %v", err)
	}
	if item.Status != domain.StatusPending || item.RetryCount != 0 || item.ErrorMessage != "" {
		t.Fatalf("enqueue kept caller lifecycle state: %+v", item)
	}
	if item.CreatedAt.IsZero() || !item.UpdatedAt.Equal(item.CreatedAt) {
		t.Fatalf("timestamps not normalized: %+v", item)
	}
}

func TestClaimHonorsLimitAndOrder(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	mustEnqueue(t, engine, "YTN_1", "YTN_2", "YTN_3")

	items, err := engine.Claim(ctx, 2)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if len(items) != 2 || items[0].UniqueID != "YTN_1" || items[1].UniqueID != "YTN_2" {
		t.Fatalf("unexpected claim batch: %+v", items)
	}
	for _, item := range items {
		if item.Status != domain.StatusProcessing || item.ClaimedAt == nil {
			t.Fatalf("claimed item not processing: %+v", item)
		}
	}

	rest, err := engine.Claim(ctx, 5)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if len(rest) != 1 || rest[0].UniqueID != "YTN_3" {
		t.Fatalf("expected the remaining item, got %+v", rest)
	}

	empty, err := engine.Claim(ctx, 5)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty batch, got %+v err=%v", empty, err)
	}
}

func TestCompleteOnlyAppliesToProcessing(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	mustEnqueue(t, engine, "YTN_1")
	if ok, err := engine.Complete(ctx, "YTN_1"); err != nil || ok {
		t.Fatalf("Complete on pending: ok=%v err=%v", ok, err)
	}

	mustClaimOne(t, engine)
	if ok, err := engine.Complete(ctx, "YTN_1"); err != nil || !ok {
		t.Fatalf("Complete: ok=%v err=%v", ok, err)
	}
	if ok, err := engine.Complete(ctx, "YTN_1"); err != nil || ok {
		t.Fatalf("second Complete: ok=%v err=%v", ok, err)
	}

	item, err := engine.Item(ctx, "YTN_1")
	if err != nil {
		t.Fatalf("Item: %v", err)
	}
	if item.Status != domain.StatusCompleted || item.PublishedAt == nil {
		t.Fatalf("unexpected completed item: %+v", item)
	}
}

func TestFailBoundsErrorMessage(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	mustEnqueue(t, engine, "YTN_1", "YTN_2")
	mustClaimOne(t, engine)
	mustClaimOne(t, engine)

	long := strings.Repeat("x", 4000)
	if ok, err := engine.Fail(ctx, "YTN_1", long); err != nil || !ok {
		t.Fatalf("Fail: ok=%v err=%v", ok, err)
	}
	item, err := engine.Item(ctx, "YTN_1")
	if err != nil {
		t.Fatalf("Item: %v", err)
	}
	if len(item.ErrorMessage) != maxErrorMessageLen {
		t.Fatalf("expected message bounded to %d, got %d", maxErrorMessageLen, len(item.ErrorMessage))
	}

	if ok, err := engine.Fail(ctx, "YTN_2", "   "); err != nil || !ok {
		t.Fatalf("Fail: ok=%v err=%v", ok, err)
	}
	blank, err := engine.Item(ctx, "YTN_2")
	if err != nil {
		t.Fatalf("Item: %v", err)
	}
	if blank.ErrorMessage != "unknown error" {
		t.Fatalf("expected placeholder message, got %q", blank.ErrorMessage)
	}
}

func TestRetryRequeuesUntilExhausted(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	mustEnqueue(t, engine, "YTN_1")

	for attempt := 1; attempt <= testMaxRetries; attempt++ {
		mustClaimOne(t, engine)
		if ok, err := engine.Fail(ctx, "YTN_1", "send failed"); err != nil || !ok {
			t.Fatalf("Fail attempt %d: ok=%v err=%v", attempt, ok, err)
		}

		moved, err := engine.Retry(ctx, testMaxRetries)
		if err != nil {
			t.Fatalf("Retry: %v", err)
		}
		if attempt < testMaxRetries && moved != 1 {
			t.Fatalf("attempt %d: expected requeue, moved=%d", attempt, moved)
		}
		if attempt == testMaxRetries && moved != 0 {
			t.Fatalf("exhausted item requeued, moved=%d", moved)
		}
	}

	item, err := engine.Item(ctx, "YTN_1")
	if err != nil {
		t.Fatalf("Item: %v", err)
	}
	if item.Status != domain.StatusFailed || item.RetryCount != testMaxRetries {
		t.Fatalf("expected exhausted failed item, got %+v", item)
	}
}

func TestFailPermanentSkipsRetries(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	mustEnqueue(t, engine, "YTN_1")
	mustClaimOne(t, engine)
	if ok, err := engine.FailPermanent(ctx, "YTN_1", "webhook returned 401"); err != nil || !ok {
		t.Fatalf("FailPermanent: ok=%v err=%v", ok, err)
	}

	moved, err := engine.Retry(ctx, testMaxRetries)
	if err != nil || moved != 0 {
		t.Fatalf("permanent failure requeued: moved=%d err=%v", moved, err)
	}
	item, err := engine.Item(ctx, "YTN_1")
	if err != nil {
		t.Fatalf("Item: %v", err)
	}
	if item.RetryCount != testMaxRetries {
		t.Fatalf("expected retry_count raised to %d, got %d", testMaxRetries, item.RetryCount)
	}
}

func TestSweepStuckRequeuesAbandonedClaims(t *testing.T) {
	store := storage.NewMemoryQueueStore()
	engine := NewEngine(store, testMaxRetries, logger.NopLogger{})
	ctx := context.Background()

	mustEnqueue(t, engine, "YTN_1")
	// Claim directly with an old timestamp to simulate a dead worker.
	if _, err := store.ClaimNext(ctx, time.Now().UTC().Add(-time.Hour)); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	moved, err := engine.SweepStuck(ctx, 10*time.Minute)
	if err != nil || moved != 1 {
		t.Fatalf("SweepStuck: moved=%d err=%v", moved, err)
	}
	item, err := engine.Item(ctx, "YTN_1")
	if err != nil {
		t.Fatalf("Item: %v", err)
	}
	if item.Status != domain.StatusPending || item.RetryCount != 1 {
		t.Fatalf("swept item not requeued: %+v", item)
	}
}

func TestCleanDeletesOldCompletedOnly(t *testing.T) {
	store := storage.NewMemoryQueueStore()
	engine := NewEngine(store, testMaxRetries, logger.NopLogger{})
	ctx := context.Background()

	mustEnqueue(t, engine, "YTN_old", "YTN_fresh")
	mustClaimOne(t, engine)
	mustClaimOne(t, engine)
	old := time.Now().UTC().Add(-10 * 24 * time.Hour)
	if ok, err := store.Complete(ctx, "YTN_old", old); err != nil || !ok {
		t.Fatalf("Complete old: ok=%v err=%v", ok, err)
	}
	if _, err := engine.Complete(ctx, "YTN_fresh"); err != nil {
		t.Fatalf("Complete fresh: %v", err)
	}

	deleted, err := engine.Clean(ctx, 7*24*time.Hour)
	if err != nil || deleted != 1 {
		t.Fatalf("Clean: deleted=%d err=%v", deleted, err)
	}
	if _, err := engine.Item(ctx, "YTN_old"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for cleaned item, got %v", err)
	}
	if _, err := engine.Item(ctx, "YTN_fresh"); err != nil {
		t.Fatalf("fresh item must survive: %v", err)
	}
}

func TestStatusIncludesTotal(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	mustEnqueue(t, engine, "YTN_1", "YTN_2", "YTN_3")
	mustClaimOne(t, engine)
	mustClaimOne(t, engine)
	if _, err := engine.Complete(ctx, "YTN_1"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := engine.Fail(ctx, "YTN_2", "send failed"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	status, err := engine.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	want := map[string]int{
		"pending":    1,
		"processing": 0,
		"completed":  1,
		"failed":     1,
		"total":      3,
	}
	for key, count := range want {
		if status[key] != count {
			t.Fatalf("status[%s] = %d, want %d (full: %v)", key, status[key], count, status)
		}
	}
}

func TestItemReturnsNotFound(t *testing.T) {
	engine := newTestEngine(t)

	if _, err := engine.Item(context.Background(), "YTN_missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
