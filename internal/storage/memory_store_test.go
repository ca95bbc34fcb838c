package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sokbo-hq/sokbo-news-relay/internal/domain"
)

func TestMemoryQueueClaimsOldestFirst(t *testing.T) {
	queue := NewMemoryQueueStore()
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for _, uid := range []string{"YTN_2", "YTN_1"} {
		created := base
		if uid == "YTN_2" {
			created = base.Add(time.Minute)
		}
		if inserted, err := queue.Insert(ctx, pendingItem(uid, created)); err != nil || !inserted {
			t.Fatalf("Insert %s: inserted=%v err=%v", uid, inserted, err)
		}
	}
	// Same created_at as YTN_2; later insertion loses the tie-break.
	if inserted, err := queue.Insert(ctx, pendingItem("YTN_3", base.Add(time.Minute))); err != nil || !inserted {
		t.Fatalf("Insert YTN_3: inserted=%v err=%v", inserted, err)
	}

	for _, want := range []string{"YTN_1", "YTN_2", "YTN_3"} {
		item, err := queue.ClaimNext(ctx, time.Now())
		if err != nil {
			t.Fatalf("ClaimNext: %v", err)
		}
		if item == nil || item.UniqueID != want {
			t.Fatalf("expected claim %s, got %+v", want, item)
		}
	}
	if item, err := queue.ClaimNext(ctx, time.Now()); err != nil || item != nil {
		t.Fatalf("expected drained queue, got item=%+v err=%v", item, err)
	}
}

func TestMemoryQueueLifecycleTransitions(t *testing.T) {
	queue := NewMemoryQueueStore()
	ctx := context.Background()
	now := time.Now()

	if inserted, err := queue.Insert(ctx, pendingItem("YTN_1", now)); err != nil || !inserted {
		t.Fatalf("Insert: inserted=%v err=%v", inserted, err)
	}
	if inserted, err := queue.Insert(ctx, pendingItem("YTN_1", now)); err != nil || inserted {
		t.Fatalf("duplicate Insert: inserted=%v err=%v", inserted, err)
	}
	if ok, err := queue.Complete(ctx, "YTN_1", now); err != nil || ok {
		t.Fatalf("Complete on pending: ok=%v err=%v", ok, err)
	}

	if _, err := queue.ClaimNext(ctx, now); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if ok, err := queue.Fail(ctx, "YTN_1", "send failed", 0, now); err != nil || !ok {
		t.Fatalf("Fail: ok=%v err=%v", ok, err)
	}

	item, err := queue.Get(ctx, "YTN_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item.Status != domain.StatusFailed || item.RetryCount != 1 || item.ErrorMessage != "send failed" {
		t.Fatalf("unexpected failed item: %+v", item)
	}

	moved, err := queue.RetryFailed(ctx, 3, now)
	if err != nil || moved != 1 {
		t.Fatalf("RetryFailed: moved=%d err=%v", moved, err)
	}
	reclaimed, err := queue.ClaimNext(ctx, now)
	if err != nil || reclaimed == nil || reclaimed.UniqueID != "YTN_1" {
		t.Fatalf("expected to reclaim YTN_1, got item=%+v err=%v", reclaimed, err)
	}
	if ok, err := queue.Complete(ctx, "YTN_1", now); err != nil || !ok {
		t.Fatalf("Complete: ok=%v err=%v", ok, err)
	}

	counts, err := queue.CountsByStatus(ctx)
	if err != nil {
		t.Fatalf("CountsByStatus: %v", err)
	}
	if counts[domain.StatusCompleted] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestMemoryQueueSweepAndClean(t *testing.T) {
	queue := NewMemoryQueueStore()
	ctx := context.Background()
	now := time.Now()

	if _, err := queue.Insert(ctx, pendingItem("YTN_stuck", now.Add(-time.Hour))); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := queue.ClaimNext(ctx, now.Add(-30*time.Minute)); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	moved, err := queue.SweepStuck(ctx, now.Add(-10*time.Minute), now)
	if err != nil || moved != 1 {
		t.Fatalf("SweepStuck: moved=%d err=%v", moved, err)
	}
	item, err := queue.Get(ctx, "YTN_stuck")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item.Status != domain.StatusPending || item.RetryCount != 1 {
		t.Fatalf("swept item not requeued: %+v", item)
	}

	if _, err := queue.ClaimNext(ctx, now); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	old := now.Add(-10 * 24 * time.Hour)
	if ok, err := queue.Complete(ctx, "YTN_stuck", old); err != nil || !ok {
		t.Fatalf("Complete: ok=%v err=%v", ok, err)
	}
	deleted, err := queue.DeleteCompletedBefore(ctx, now.Add(-7*24*time.Hour))
	if err != nil || deleted != 1 {
		t.Fatalf("DeleteCompletedBefore: deleted=%d err=%v", deleted, err)
	}
	if exists, err := queue.Exists(ctx, "YTN_stuck"); err != nil || exists {
		t.Fatalf("cleaned item must be gone: exists=%v err=%v", exists, err)
	}
}

func TestMemoryQueueRejectsCancelledContext(t *testing.T) {
	queue := NewMemoryQueueStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := queue.Insert(ctx, pendingItem("YTN_1", time.Now())); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := queue.ClaimNext(ctx, time.Now()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMemoryArticleStoreDedupAndFind(t *testing.T) {
	articles := NewMemoryArticleStore()
	ctx := context.Background()
	now := time.Now()

	a := testArticle("YTN_1", "https://news.example.com/1", now.Add(-time.Hour))
	if err := articles.Insert(ctx, a); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := articles.Insert(ctx, a); !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate on unique_id, got %v", err)
	}
	dupURL := testArticle("YTN_2", "https://news.example.com/1", now)
	if err := articles.Insert(ctx, dupURL); !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate on url, got %v", err)
	}
	missingTitle := testArticle("YTN_3", "https://news.example.com/3", now)
	missingTitle.Title = ""
	if err := articles.Insert(ctx, missingTitle); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	newer := testArticle("YTN_4", "https://news.example.com/4", now)
	if err := articles.Insert(ctx, newer); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	found, err := articles.Find(ctx, ArticleQuery{})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(found) != 2 || found[0].UniqueID != "YTN_4" {
		t.Fatalf("expected newest-first listing, got %+v", found)
	}

	since, err := articles.Find(ctx, ArticleQuery{Since: now.Add(-30 * time.Minute)})
	if err != nil || len(since) != 1 || since[0].UniqueID != "YTN_4" {
		t.Fatalf("since filter: got %+v err=%v", since, err)
	}

	byUID, err := articles.FindByUniqueID(ctx, "YTN_1")
	if err != nil || byUID == nil || byUID.URL != "https://news.example.com/1" {
		t.Fatalf("FindByUniqueID: got %+v err=%v", byUID, err)
	}
	if miss, err := articles.FindByUniqueID(ctx, "YTN_none"); err != nil || miss != nil {
		t.Fatalf("FindByUniqueID miss: got %+v err=%v", miss, err)
	}
}

func TestMemoryPublishedSetExpiresEntries(t *testing.T) {
	published := NewMemoryPublishedSet(50 * time.Millisecond)
	ctx := context.Background()

	if err := published.Add(ctx, "YTN_1"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if ok, err := published.Contains(ctx, "YTN_1"); err != nil || !ok {
		t.Fatalf("expected membership, ok=%v err=%v", ok, err)
	}

	time.Sleep(60 * time.Millisecond)
	if ok, err := published.Contains(ctx, "YTN_1"); err != nil || ok {
		t.Fatalf("expected expiry, ok=%v err=%v", ok, err)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	stores, err := Open("memory", "", Options{})
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	if err := stores.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := Open("bbolt", "", Options{}); err == nil {
		t.Fatalf("expected error for bbolt without a path")
	}
	if _, err := Open("redis", "x", Options{}); err == nil {
		t.Fatalf("expected error for unsupported backend")
	}
}
