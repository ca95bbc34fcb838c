package crawler

import (
	"bytes"
	"context"
	"net/url"
	"testing"

	"github.com/sokbo-hq/sokbo-news-relay/internal/domain"
	"github.com/sokbo-hq/sokbo-news-relay/pkg/httpclient"
	"github.com/sokbo-hq/sokbo-news-relay/pkg/sources"
)

// stubHTTPResponse implements httpclient.Response.
type stubHTTPResponse struct {
	body       []byte
	statusCode int
}

func (s stubHTTPResponse) Body() []byte    { return s.body }
func (s stubHTTPResponse) StatusCode() int { return s.statusCode }

// stubHTTPClient returns a single response.
type stubHTTPClient struct {
	resp httpclient.Response
}

func (s stubHTTPClient) Get(_ context.Context, _ string, _ map[string]string) (httpclient.Response, error) {
	return s.resp, nil
}

func (s stubHTTPClient) PostForm(_ context.Context, _ string, _ url.Values, _ map[string]string) (httpclient.Response, error) {
	return s.resp, nil
}

func TestParseMetaPrefersOGTags(t *testing.T) {
	html := []byte(`
<html>
  <head>
    <title>Fallback</title>
    <meta property="og:title" content="OG Title">
    <meta property="og:description" content="OG Desc">
    <meta property="og:image" content="/img/og.png">
  </head>
</html>`)

	meta, err := parseMeta(html)
	if err != nil {
		t.Fatalf("parseMeta: %v", err)
	}
	if meta.Title != "OG Title" || meta.Description != "OG Desc" || meta.ImageURL != "/img/og.png" {
		t.Fatalf("unexpected meta %#v", meta)
	}
}

func TestScraperEnrichesAndLimitsBody(t *testing.T) {
	body := bytes.Repeat([]byte("a"), maxHTMLBodyBytes+10)
	resp := stubHTTPResponse{body: body, statusCode: 200}

	scraper := NewScraper(stubHTTPClient{resp: resp})
	cfg := sources.Source{ID: "s1", RequestDelayMs: 1}
	articles := []domain.Article{{UniqueID: "A_1", URL: "https://example.com"}}

	enriched := scraper.Enrich(context.Background(), cfg, articles)
	if len(enriched) != 1 {
		t.Fatalf("expected 1 article")
	}
	if len(enriched[0].Title) != 0 {
		t.Fatalf("expected empty title because body had no metadata")
	}
}

func TestScraperKeepsExistingContent(t *testing.T) {
	html := []byte(`<html><head><meta property="og:description" content="OG Desc"></head></html>`)
	scraper := NewScraper(stubHTTPClient{resp: stubHTTPResponse{body: html, statusCode: 200}})

	articles := []domain.Article{{UniqueID: "A_1", URL: "https://example.com", Content: "api summary"}}
	enriched := scraper.Enrich(context.Background(), sources.Source{ID: "s1", RequestDelayMs: 1}, articles)
	if enriched[0].Content != "api summary" {
		t.Fatalf("expected fetched content to win over OG description, got %q", enriched[0].Content)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", " ", "foo", "bar"); got != "foo" {
		t.Fatalf("firstNonEmpty returned %q", got)
	}
}
