package sources

import (
	"strings"
	"time"

	"github.com/sokbo-hq/sokbo-news-relay/internal/domain"
)

// ConfigString returns the trimmed string value for key from source.Config or a fallback.
func ConfigString(cfg Source, key, fallback string) string {
	if cfg.Config != nil {
		if raw, ok := cfg.Config[key]; ok {
			if val, ok := raw.(string); ok {
				if trimmed := strings.TrimSpace(val); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return fallback
}

// ConfigInt returns the int value for key from source.Config or a fallback.
// YAML decodes bare numbers as int, JSON as float64; both are accepted.
func ConfigInt(cfg Source, key string, fallback int) int {
	if cfg.Config != nil {
		if raw, ok := cfg.Config[key]; ok {
			switch v := raw.(type) {
			case int:
				return v
			case int64:
				return int(v)
			case float64:
				return int(v)
			}
		}
	}
	return fallback
}

// ConfigInts returns the int-slice value for key from source.Config or a fallback.
func ConfigInts(cfg Source, key string, fallback []int) []int {
	if cfg.Config == nil {
		return fallback
	}
	raw, ok := cfg.Config[key].([]any)
	if !ok {
		return fallback
	}
	vals := make([]int, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case int:
			vals = append(vals, v)
		case int64:
			vals = append(vals, int(v))
		case float64:
			vals = append(vals, int(v))
		}
	}
	if len(vals) == 0 {
		return fallback
	}
	return vals
}

const (
	ConfigUserAgentKey      = "user_agent"
	ConfigAcceptKey         = "accept"
	ConfigAcceptLanguageKey = "accept_language"
	ConfigRefererKey        = "referer"
)

// Headers builds the common request headers from a source config (skips empty values).
func Headers(cfg Source) map[string]string {
	headers := make(map[string]string, 4)

	if v := ConfigString(cfg, ConfigUserAgentKey, ""); v != "" {
		headers["User-Agent"] = v
	}
	if v := ConfigString(cfg, ConfigAcceptKey, ""); v != "" {
		headers["Accept"] = v
	}
	if v := ConfigString(cfg, ConfigAcceptLanguageKey, ""); v != "" {
		headers["Accept-Language"] = v
	}
	if v := ConfigString(cfg, ConfigRefererKey, ""); v != "" {
		headers["Referer"] = v
	}

	return headers
}

func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}

// newCandidate fills the identity and bookkeeping fields every fetcher
// shares: unique_id derivation, platform tag, collection time.
func newCandidate(cfg Source, articleID, link, title string, now time.Time) domain.Article {
	return domain.Article{
		UniqueID:    domain.UniqueID(cfg.Platform, articleID, link),
		Platform:    cfg.Platform,
		ArticleID:   strings.TrimSpace(articleID),
		URL:         strings.TrimSpace(link),
		Title:       strings.TrimSpace(title),
		Category:    cfg.Category,
		CollectedAt: now,
	}
}
