package enqueue

import (
	"context"
	"testing"
	"time"

	"github.com/sokbo-hq/sokbo-news-relay/internal/domain"
	"github.com/sokbo-hq/sokbo-news-relay/internal/queue"
	"github.com/sokbo-hq/sokbo-news-relay/internal/storage"
)

func newFixture(t *testing.T) (*Service, storage.ArticleStore, storage.PublishedSet, *queue.Engine) {
	t.Helper()
	articles := storage.NewMemoryArticleStore()
	published := storage.NewMemoryPublishedSet(time.Hour)
	engine := queue.NewEngine(storage.NewMemoryQueueStore(), 3, nil)
	svc := NewService(articles, published, engine, nil)
	return svc, articles, published, engine
}

func storedArticle(uid string, age time.Duration) domain.Article {
	now := time.Now().UTC()
	return domain.Article{
		UniqueID:    uid,
		Platform:    "YTN",
		ArticleID:   uid,
		URL:         "https://news.example/" + uid,
		Title:       "headline " + uid,
		Category:    "breaking",
		CollectedAt: now.Add(-age),
	}
}

func TestAddFromStoreEnqueuesRecentArticles(t *testing.T) {
	svc, articles, _, engine := newFixture(t)
	ctx := context.Background()

	for _, a := range []domain.Article{
		storedArticle("YTN_1", 10*time.Minute),
		storedArticle("YTN_2", 30*time.Minute),
		storedArticle("YTN_3", 36*time.Hour),
	} {
		if err := articles.Insert(ctx, a); err != nil {
			t.Fatalf("insert article: %v", err)
		}
	}

	res, err := svc.AddFromStore(ctx, Filter{Lookback: 12 * time.Hour})
	if err != nil {
		t.Fatalf("AddFromStore returned error: %v", err)
	}
	if res.Enqueued != 2 {
		t.Fatalf("expected 2 enqueued, got %+v", res)
	}

	status, err := engine.Status(ctx)
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if status["pending"] != 2 || status["total"] != 2 {
		t.Fatalf("unexpected queue status %v", status)
	}
}

func TestAddFromStoreSkipsDeliveredAndQueued(t *testing.T) {
	svc, articles, published, engine := newFixture(t)
	ctx := context.Background()

	delivered := storedArticle("YTN_done", 5*time.Minute)
	queued := storedArticle("YTN_queued", 5*time.Minute)
	fresh := storedArticle("YTN_new", 5*time.Minute)
	for _, a := range []domain.Article{delivered, queued, fresh} {
		if err := articles.Insert(ctx, a); err != nil {
			t.Fatalf("insert article: %v", err)
		}
	}

	if err := published.Add(ctx, delivered.UniqueID); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	if _, err := engine.Enqueue(ctx, domain.NewQueueItem(queued, time.Now().UTC())); err != nil {
		t.Fatalf("pre-enqueue: %v", err)
	}

	res, err := svc.AddFromStore(ctx, Filter{})
	if err != nil {
		t.Fatalf("AddFromStore returned error: %v", err)
	}
	if res.Enqueued != 1 || res.Published != 1 || res.Duplicate != 1 {
		t.Fatalf("unexpected counters %+v", res)
	}
}

func TestAddFromStoreHonorsPlatformFilter(t *testing.T) {
	svc, articles, _, _ := newFixture(t)
	ctx := context.Background()

	ytn := storedArticle("YTN_1", time.Minute)
	jtbc := storedArticle("JTBC_1", time.Minute)
	jtbc.Platform = "JTBC"
	for _, a := range []domain.Article{ytn, jtbc} {
		if err := articles.Insert(ctx, a); err != nil {
			t.Fatalf("insert article: %v", err)
		}
	}

	res, err := svc.AddFromStore(ctx, Filter{Platform: "JTBC"})
	if err != nil {
		t.Fatalf("AddFromStore returned error: %v", err)
	}
	if res.Scanned != 1 || res.Enqueued != 1 {
		t.Fatalf("expected only the JTBC article, got %+v", res)
	}
}

func TestAddFromStoreHonorsLimit(t *testing.T) {
	svc, articles, _, _ := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		a := storedArticle("YTN_"+string(rune('a'+i)), time.Duration(i)*time.Minute)
		if err := articles.Insert(ctx, a); err != nil {
			t.Fatalf("insert article: %v", err)
		}
	}

	res, err := svc.AddFromStore(ctx, Filter{Limit: 3})
	if err != nil {
		t.Fatalf("AddFromStore returned error: %v", err)
	}
	if res.Scanned != 3 {
		t.Fatalf("expected 3 scanned, got %+v", res)
	}
}

func TestAddPreservesOrder(t *testing.T) {
	svc, _, _, engine := newFixture(t)
	ctx := context.Background()

	batch := []domain.Article{
		storedArticle("YTN_first", time.Minute),
		storedArticle("YTN_second", time.Minute),
	}
	if _, err := svc.Add(ctx, batch); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	claimed, err := engine.Claim(ctx, 2)
	if err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claimed, got %d", len(claimed))
	}
	if claimed[0].UniqueID != "YTN_first" || claimed[1].UniqueID != "YTN_second" {
		t.Fatalf("claim order violated: %s, %s", claimed[0].UniqueID, claimed[1].UniqueID)
	}
}
