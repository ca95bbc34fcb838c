package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sokbo-hq/sokbo-news-relay/internal/domain"
)

// ytnFetcher polls the YTN "more news" JSON endpoint. The endpoint is a
// form POST taking a section code (mcd) and a page number; articles carry
// a join_key that forms the canonical article URL.
type ytnFetcher struct {
	client HTTPClient
	now    func() time.Time
}

// NewYTNFetcher builds a fetcher for the YTN news API.
func NewYTNFetcher(client HTTPClient) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &ytnFetcher{client: client, now: time.Now}
}

func (f *ytnFetcher) ID() string { return SourceTypeYTN }

const (
	ytnDefaultSection  = "0101"
	ytnDefaultPages    = 3
	ytnArticleLinkBase = "https://www.ytn.co.kr/_ln/"
)

type ytnResponse struct {
	Data []map[string]string `json:"data"`
}

func (f *ytnFetcher) Fetch(ctx context.Context, cfg Source) ([]domain.Article, error) {
	if strings.TrimSpace(cfg.SourceURL) == "" {
		return nil, fmt.Errorf("source %q source_url is empty", cfg.ID)
	}

	section := ConfigString(cfg, "section", ytnDefaultSection)
	pages := ConfigInt(cfg, "pages", ytnDefaultPages)
	headers := Headers(cfg)
	today := f.now().Format("2006-01-02")

	var (
		articles []domain.Article
		errs     []error
	)
	for page := 1; page <= pages; page++ {
		batch, err := f.fetchPage(ctx, cfg, section, page, today, headers)
		if err != nil {
			errs = append(errs, fmt.Errorf("page %d: %w", page, err))
			continue
		}
		articles = append(articles, batch...)
	}

	if len(articles) == 0 {
		if len(errs) > 0 {
			return nil, fmt.Errorf("ytn fetch: %w", errors.Join(errs...))
		}
		return nil, nil
	}
	return articles, nil
}

func (f *ytnFetcher) fetchPage(ctx context.Context, cfg Source, section string, page int, today string, headers map[string]string) ([]domain.Article, error) {
	form := url.Values{}
	form.Set("mcd", section)
	form.Set("page", fmt.Sprintf("%d", page))

	resp, err := f.client.PostForm(ctx, cfg.SourceURL, form, headers)
	if err != nil {
		return nil, fmt.Errorf("post: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("status %d body: %s", resp.StatusCode(), responseSnippet(resp.Body()))
	}

	var payload ytnResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("decode ytn payload: %w", err)
	}

	now := f.now()
	articles := make([]domain.Article, 0, len(payload.Data))
	for _, item := range payload.Data {
		title := strings.TrimSpace(item["title"])
		joinKey := strings.TrimSpace(item["join_key"])
		// The list payload keeps the publication date under the "3" key.
		date := strings.TrimSpace(item["3"])
		if title == "" || joinKey == "" || date != today {
			continue
		}

		link := ytnArticleLinkBase + section + "_" + joinKey
		articles = append(articles, newCandidate(cfg, joinKey, link, title, now))
	}
	return articles, nil
}
