package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sokbo-hq/sokbo-news-relay/internal/domain"
)

// articleListFetcher scrapes a headline list page using selectors from the
// source config. It covers outlets without a JSON API: the item selector
// picks list entries, the link selector picks the anchor inside each entry.
type articleListFetcher struct {
	client HTTPClient
	now    func() time.Time
}

// NewArticleListFetcher builds a selector-driven HTML list fetcher.
func NewArticleListFetcher(client HTTPClient) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &articleListFetcher{client: client, now: time.Now}
}

func (f *articleListFetcher) ID() string { return SourceTypeArticleList }

const (
	listDefaultLinkSelector = "a"
	listDefaultMaxItems     = 30
	listMaxBodyBytes        = 1 << 20 // 1 MiB
)

func (f *articleListFetcher) Fetch(ctx context.Context, cfg Source) ([]domain.Article, error) {
	if strings.TrimSpace(cfg.SourceURL) == "" {
		return nil, fmt.Errorf("source %q source_url is empty", cfg.ID)
	}
	itemSelector := ConfigString(cfg, "item_selector", "")
	if itemSelector == "" {
		return nil, fmt.Errorf("source %q item_selector is empty", cfg.ID)
	}
	linkSelector := ConfigString(cfg, "link_selector", listDefaultLinkSelector)
	titleSelector := ConfigString(cfg, "title_selector", "")
	maxItems := ConfigInt(cfg, "max_items", listDefaultMaxItems)

	resp, err := f.client.Get(ctx, cfg.SourceURL, Headers(cfg))
	if err != nil {
		return nil, fmt.Errorf("fetch list page: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("status %d body: %s", resp.StatusCode(), responseSnippet(resp.Body()))
	}

	body := resp.Body()
	if len(body) > listMaxBodyBytes {
		body = body[:listMaxBodyBytes]
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse list page: %w", err)
	}

	base, err := url.Parse(cfg.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("parse source_url: %w", err)
	}

	now := f.now()
	seen := make(map[string]struct{})
	var articles []domain.Article

	doc.Find(itemSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		link := sel.Find(linkSelector).First()
		if linkSelector == listDefaultLinkSelector && goquery.NodeName(sel) == "a" {
			link = sel
		}
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		abs := resolveLink(base, href)
		if abs == "" {
			return true
		}

		title := link.Text()
		if titleSelector != "" {
			title = sel.Find(titleSelector).First().Text()
		}
		title = strings.Join(strings.Fields(title), " ")
		if title == "" {
			return true
		}

		if _, dup := seen[abs]; dup {
			return true
		}
		seen[abs] = struct{}{}

		articles = append(articles, newCandidate(cfg, articleIDFromLink(abs), abs, title, now))
		return len(articles) < maxItems
	})

	if len(articles) == 0 {
		return nil, fmt.Errorf("source %q list page matched no items", cfg.ID)
	}
	return articles, nil
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}

// articleIDFromLink pulls the trailing path segment when it looks like a
// numeric article id. Anything else returns empty and the unique id falls
// back to the URL hash.
func articleIDFromLink(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) == 0 {
		return ""
	}
	last := segments[len(segments)-1]
	last = strings.TrimSuffix(last, ".html")
	for _, r := range last {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return last
}
