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

// jtbcFetcher collects articles from the JTBC section-list JSON API. Each
// configured section code maps to a category; the article URL is derived
// from the article index returned by the API.
type jtbcFetcher struct {
	client HTTPClient
	now    func() time.Time
}

// NewJTBCFetcher builds a fetcher for the JTBC news API.
func NewJTBCFetcher(client HTTPClient) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &jtbcFetcher{client: client, now: time.Now}
}

func (f *jtbcFetcher) ID() string { return SourceTypeJTBC }

const (
	jtbcDefaultPageSize = 10
	jtbcArticleLinkBase = "https://news.jtbc.co.kr/article/"
	jtbcContentMaxLen   = 200
)

var jtbcDefaultSections = []int{10, 20, 30}

var jtbcSectionNames = map[int]string{
	10: "politics",
	20: "economy",
	30: "society",
	40: "world",
	50: "culture",
	60: "entertainment",
	70: "sports",
	80: "weather",
}

type jtbcArticle struct {
	ArticleIdx      string `json:"articleIdx"`
	ArticleTitle    string `json:"articleTitle"`
	InnerText       string `json:"articleInnerTextContent"`
	PublicationDate string `json:"publicationDate"`
	JournalistName  string `json:"journalistName"`
}

type jtbcResponse struct {
	Data struct {
		List []jtbcArticle `json:"list"`
	} `json:"data"`
}

func (f *jtbcFetcher) Fetch(ctx context.Context, cfg Source) ([]domain.Article, error) {
	if strings.TrimSpace(cfg.SourceURL) == "" {
		return nil, fmt.Errorf("source %q source_url is empty", cfg.ID)
	}

	sections := ConfigInts(cfg, "sections", jtbcDefaultSections)
	pageSize := ConfigInt(cfg, "page_size", jtbcDefaultPageSize)
	headers := Headers(cfg)

	var (
		articles []domain.Article
		errs     []error
	)
	for _, section := range sections {
		batch, err := f.fetchSection(ctx, cfg, section, pageSize, headers)
		if err != nil {
			errs = append(errs, fmt.Errorf("section %d: %w", section, err))
			continue
		}
		articles = append(articles, batch...)
	}

	if len(articles) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("jtbc fetch: %w", errors.Join(errs...))
	}
	return articles, nil
}

func (f *jtbcFetcher) fetchSection(ctx context.Context, cfg Source, section, pageSize int, headers map[string]string) ([]domain.Article, error) {
	query := url.Values{}
	query.Set("pageNo", "1")
	query.Set("pageSize", fmt.Sprintf("%d", pageSize))
	query.Set("articleListType", "ARTICLE")
	query.Set("sectionIdx", fmt.Sprintf("%d", section))

	resp, err := f.client.Get(ctx, cfg.SourceURL+"?"+query.Encode(), headers)
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("status %d body: %s", resp.StatusCode(), responseSnippet(resp.Body()))
	}

	var payload jtbcResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("decode jtbc payload: %w", err)
	}

	now := f.now()
	articles := make([]domain.Article, 0, len(payload.Data.List))
	for _, item := range payload.Data.List {
		title := strings.TrimSpace(item.ArticleTitle)
		idx := strings.TrimSpace(item.ArticleIdx)
		if title == "" || idx == "" {
			continue
		}

		a := newCandidate(cfg, idx, jtbcArticleLinkBase+idx, title, now)
		a.Content = jtbcSummary(item.InnerText)
		a.Author = strings.TrimSpace(item.JournalistName)
		if name, ok := jtbcSectionNames[section]; ok && a.Category == "" {
			a.Category = name
		}
		if t, err := time.Parse(time.RFC3339, item.PublicationDate); err == nil {
			a.PublishedAt = &t
		}
		articles = append(articles, a)
	}
	return articles, nil
}

// jtbcSummary trims the full article body down to a short teaser.
func jtbcSummary(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= jtbcContentMaxLen {
		return text
	}
	return string(runes[:jtbcContentMaxLen]) + "..."
}
