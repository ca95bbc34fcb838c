package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sokbo-hq/sokbo-news-relay/internal/domain"
	"github.com/sokbo-hq/sokbo-news-relay/pkg/httpclient"
)

const (
	discordDefaultEmbedColor = 0x1E90FF
	discordDefaultFooter     = "sokbo news relay"
	discordDescriptionMax    = 500
)

// discordNotifier posts one embed per message to a Discord webhook.
type discordNotifier struct {
	id         string
	typ        string
	webhookURL string
	username   string
	avatarURL  string
	footerText string
	embedColor int
	client     *resty.Client
	log        Logger
	now        func() time.Time
}

func newDiscordNotifier(_ context.Context, cfg NotifierConfig, log Logger) (Notifier, error) {
	if cfg.Discord == nil {
		return nil, fmt.Errorf("notifier %q missing discord configuration", cfg.ID)
	}

	color := cfg.Discord.EmbedColor
	if color == 0 {
		color = discordDefaultEmbedColor
	}
	footer := cfg.Discord.FooterText
	if footer == "" {
		footer = discordDefaultFooter
	}

	return &discordNotifier{
		id:         cfg.ID,
		typ:        TypeDiscord,
		webhookURL: cfg.Discord.WebhookURL,
		username:   cfg.Discord.Username,
		avatarURL:  cfg.Discord.AvatarURL,
		footerText: footer,
		embedColor: color,
		client:     httpclient.NewRestyHTTPClient(time.Duration(cfg.Discord.TimeoutSeconds) * time.Second),
		log:        ensureLogger(log),
		now:        time.Now,
	}, nil
}

func (d *discordNotifier) ID() string   { return d.id }
func (d *discordNotifier) Type() string { return d.typ }

// discordWebhookPayload is the webhook request body.
type discordWebhookPayload struct {
	Username  string         `json:"username,omitempty"`
	AvatarURL string         `json:"avatar_url,omitempty"`
	Embeds    []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string              `json:"title"`
	URL         string              `json:"url"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color"`
	Timestamp   string              `json:"timestamp"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Thumbnail   *discordEmbedMedia  `json:"thumbnail,omitempty"`
	Footer      *discordEmbedFooter `json:"footer,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbedMedia struct {
	URL string `json:"url"`
}

type discordEmbedFooter struct {
	Text string `json:"text"`
}

// Send posts the message as a webhook embed. Discord rejections that cannot
// succeed on retry (bad request, gone webhook) are wrapped as permanent;
// rate limits and timeouts stay transient.
func (d *discordNotifier) Send(ctx context.Context, msg domain.Message) error {
	payload := discordWebhookPayload{
		Username:  d.username,
		AvatarURL: d.avatarURL,
		Embeds:    []discordEmbed{d.buildEmbed(msg)},
	}

	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(d.webhookURL)
	if err != nil {
		return fmt.Errorf("discord webhook request: %w", err)
	}

	if resp.IsError() {
		sendErr := fmt.Errorf("discord webhook status %d: %s", resp.StatusCode(), bodySnippet(resp.Body()))
		if isPermanentHTTPStatus(resp.StatusCode()) {
			sendErr = domain.Permanent(sendErr)
		}
		d.log.ErrorObj("discord notifier send failed", "notifier_discord_error", map[string]any{
			"notifier_id": d.id,
			"status":      resp.StatusCode(),
		})
		return sendErr
	}

	d.log.DebugObj("discord notifier delivered message", "notifier_discord_delivery", map[string]any{
		"notifier_id": d.id,
		"url":         msg.URL,
	})
	return nil
}

func (d *discordNotifier) buildEmbed(msg domain.Message) discordEmbed {
	embed := discordEmbed{
		Title:       msg.Title,
		URL:         msg.URL,
		Description: formatDescription(msg.Content),
		Color:       d.embedColor,
		Timestamp:   d.now().UTC().Format(time.RFC3339),
		Footer:      &discordEmbedFooter{Text: d.footerText},
	}
	if msg.Category != "" {
		embed.Fields = append(embed.Fields, discordEmbedField{Name: "Category", Value: msg.Category, Inline: true})
	}
	if msg.Platform != "" {
		embed.Fields = append(embed.Fields, discordEmbedField{Name: "Source", Value: msg.Platform, Inline: true})
	}
	if msg.ImageURL != "" {
		embed.Thumbnail = &discordEmbedMedia{URL: msg.ImageURL}
	}
	return embed
}

// formatDescription bounds the embed description so long article bodies do
// not hit Discord's embed limits.
func formatDescription(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	runes := []rune(content)
	if len(runes) <= discordDescriptionMax {
		return content
	}
	return string(runes[:discordDescriptionMax]) + "..."
}

// isPermanentHTTPStatus reports whether a 4xx rejection will keep failing
// on retry. 408 and 429 are retryable by definition.
func isPermanentHTTPStatus(status int) bool {
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return false
	}
	return status >= 400 && status < 500
}

func bodySnippet(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if len(body) > 512 {
		body = body[:512]
	}
	return strings.TrimSpace(string(body))
}
