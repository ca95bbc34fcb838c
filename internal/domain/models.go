package domain

import (
	"crypto/sha1" //nolint:gosec // non-cryptographic id derivation
	"encoding/hex"
	"strings"
	"time"
)

// Domain contains the core models shared across the relay pipeline.

// Article is a normalized news item as stored in the article store.
type Article struct {
	UniqueID    string            `json:"unique_id"`
	Platform    string            `json:"platform"`
	ArticleID   string            `json:"article_id,omitempty"`
	URL         string            `json:"url"`
	Title       string            `json:"title"`
	Content     string            `json:"content,omitempty"`
	Author      string            `json:"author,omitempty"`
	Category    string            `json:"category,omitempty"`
	ImageURL    string            `json:"image_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	PublishedAt *time.Time        `json:"published_at,omitempty"`
	CollectedAt time.Time         `json:"collected_at"`
}

// QueueStatus is the publication lifecycle state of a queue item.
type QueueStatus string

const (
	StatusPending    QueueStatus = "pending"
	StatusProcessing QueueStatus = "processing"
	StatusCompleted  QueueStatus = "completed"
	StatusFailed     QueueStatus = "failed"
)

// Statuses lists every lifecycle state, in transition order.
func Statuses() []QueueStatus {
	return []QueueStatus{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}
}

// Valid reports whether the status is one of the four lifecycle states.
func (s QueueStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// QueueItem is the publication lifecycle record for one article.
type QueueItem struct {
	UniqueID     string      `json:"unique_id"`
	ArticleID    string      `json:"article_id"`
	Platform     string      `json:"platform"`
	Title        string      `json:"title"`
	URL          string      `json:"url"`
	Content      string      `json:"content,omitempty"`
	Category     string      `json:"category,omitempty"`
	ImageURL     string      `json:"image_url,omitempty"`
	Status       QueueStatus `json:"status"`
	RetryCount   int         `json:"retry_count"`
	ErrorMessage string      `json:"error_message,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	ClaimedAt    *time.Time  `json:"claimed_at,omitempty"`
	PublishedAt  *time.Time  `json:"published_at,omitempty"`

	// Seq is the store-assigned insertion id, the FIFO tie-breaker for
	// items sharing the same created_at.
	Seq uint64 `json:"seq,omitempty"`
}

// NewQueueItem builds a PENDING queue item denormalized from an article.
func NewQueueItem(a Article, now time.Time) QueueItem {
	return QueueItem{
		UniqueID:  a.UniqueID,
		ArticleID: a.ArticleID,
		Platform:  a.Platform,
		Title:     a.Title,
		URL:       a.URL,
		Content:   a.Content,
		Category:  a.Category,
		ImageURL:  a.ImageURL,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Message is the payload handed to a chat target.
type Message struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Content  string `json:"content,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Category string `json:"category,omitempty"`
	Platform string `json:"platform"`
}

// MessageFromItem projects a queue item onto the chat target payload.
func MessageFromItem(item QueueItem) Message {
	return Message{
		Title:    item.Title,
		URL:      item.URL,
		Content:  item.Content,
		ImageURL: item.ImageURL,
		Category: item.Category,
		Platform: item.Platform,
	}
}

// UniqueID derives the stable business key for an article:
// "{platform}_{article_id}" when the source assigned an id, otherwise
// "{platform}_{sha1(url)}".
func UniqueID(platform, articleID, url string) string {
	platform = strings.TrimSpace(platform)
	if id := strings.TrimSpace(articleID); id != "" {
		return platform + "_" + id
	}
	return platform + "_" + HashURL(url)
}

// HashURL returns the hex sha1 of a canonical URL.
func HashURL(u string) string {
	sum := sha1.Sum([]byte(strings.TrimSpace(u)))
	return hex.EncodeToString(sum[:])
}
