package sources

import (
	"context"
	"testing"
	"time"
)

const ytnEndpoint = "https://www.ytn.co.kr/ajax/getMoreNews.php"

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestYTNFetcherFetchSuccess(t *testing.T) {
	body := `{"data":[
		{"title":"Breaking headline","join_key":"202508260001","3":"2026-08-26"},
		{"title":"Stale headline","join_key":"202508250002","3":"2026-08-25"},
		{"title":"","join_key":"202508260003","3":"2026-08-26"}
	]}`
	client := &mockHTTPClient{
		t:      t,
		expect: map[string]string{"User-Agent": "UA"},
		responses: map[string]mockResponse{
			ytnEndpoint: {body: []byte(body)},
		},
	}

	fetcher := &ytnFetcher{
		client: client,
		now:    fixedClock(time.Date(2026, time.August, 26, 9, 0, 0, 0, time.UTC)),
	}
	articles, err := fetcher.Fetch(context.Background(), Source{
		ID:        "ytn",
		Platform:  "YTN",
		Type:      SourceTypeYTN,
		SourceURL: ytnEndpoint,
		Config: map[string]any{
			"pages":            1,
			ConfigUserAgentKey: "UA",
		},
	})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("expected 1 article after date and title filtering, got %d", len(articles))
	}

	got := articles[0]
	if got.URL != "https://www.ytn.co.kr/_ln/0101_202508260001" {
		t.Errorf("unexpected article url: %s", got.URL)
	}
	if got.ArticleID != "202508260001" {
		t.Errorf("unexpected article id: %s", got.ArticleID)
	}
	if got.UniqueID != "YTN_202508260001" {
		t.Errorf("unexpected unique id: %s", got.UniqueID)
	}

	if len(client.forms) != 1 {
		t.Fatalf("expected 1 form post, got %d", len(client.forms))
	}
	form := client.forms[0]
	if form.Get("mcd") != "0101" {
		t.Errorf("expected default section 0101, got %q", form.Get("mcd"))
	}
	if form.Get("page") != "1" {
		t.Errorf("expected page 1, got %q", form.Get("page"))
	}
}

func TestYTNFetcherPaginates(t *testing.T) {
	client := &mockHTTPClient{
		t: t,
		responses: map[string]mockResponse{
			ytnEndpoint: {body: []byte(`{"data":[{"title":"T","join_key":"1","3":"2026-08-26"}]}`)},
		},
	}

	fetcher := &ytnFetcher{
		client: client,
		now:    fixedClock(time.Date(2026, time.August, 26, 9, 0, 0, 0, time.UTC)),
	}
	articles, err := fetcher.Fetch(context.Background(), Source{
		ID:        "ytn",
		Platform:  "YTN",
		SourceURL: ytnEndpoint,
	})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(client.forms) != ytnDefaultPages {
		t.Fatalf("expected %d page requests, got %d", ytnDefaultPages, len(client.forms))
	}
	if len(articles) != ytnDefaultPages {
		t.Fatalf("expected %d articles, got %d", ytnDefaultPages, len(articles))
	}
}

func TestYTNFetcherBadStatus(t *testing.T) {
	client := &mockHTTPClient{
		t: t,
		responses: map[string]mockResponse{
			ytnEndpoint: {body: []byte("gateway timeout"), statusCode: 504},
		},
	}

	fetcher := &ytnFetcher{
		client: client,
		now:    fixedClock(time.Date(2026, time.August, 26, 9, 0, 0, 0, time.UTC)),
	}
	_, err := fetcher.Fetch(context.Background(), Source{
		ID:        "ytn",
		Platform:  "YTN",
		SourceURL: ytnEndpoint,
		Config:    map[string]any{"pages": 1},
	})
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestYTNFetcherEmptySourceURL(t *testing.T) {
	fetcher := &ytnFetcher{client: &mockHTTPClient{t: t}, now: time.Now}
	if _, err := fetcher.Fetch(context.Background(), Source{ID: "ytn"}); err == nil {
		t.Fatal("expected error for empty source_url")
	}
}
