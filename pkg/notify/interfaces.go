package notify

import (
	"context"

	"github.com/sokbo-hq/sokbo-news-relay/internal/domain"
)

// Notifier delivers a message to one chat or queue target (Discord, HTTP,
// SQS, ...). Send must honor ctx and return domain.Permanent-wrapped errors
// for rejections that a retry cannot fix.
type Notifier interface {
	ID() string
	Type() string
	Send(ctx context.Context, msg domain.Message) error
}
