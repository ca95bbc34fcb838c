package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sokbo-hq/sokbo-news-relay/internal/domain"
)

// Fanout dispatches a message to all configured notifiers.
type Fanout struct {
	notifiers []Notifier
}

// NewFanout builds a dispatcher that fans out messages across notifiers.
func NewFanout(notifiers []Notifier) *Fanout {
	cp := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		cp = append(cp, n)
	}
	return &Fanout{notifiers: cp}
}

// Send forwards the message to every registered notifier and returns the
// number that succeeded. The joined error is permanent only when every
// failing target failed permanently; one retryable target keeps the whole
// send retryable.
func (f *Fanout) Send(ctx context.Context, msg domain.Message) (int, error) {
	if f == nil || len(f.notifiers) == 0 {
		return 0, nil
	}

	var errs []error
	successful := 0
	anyPermanent := false
	allPermanent := true
	for _, n := range f.notifiers {
		if err := n.Send(ctx, msg); err != nil {
			if domain.IsPermanent(err) {
				anyPermanent = true
			} else {
				allPermanent = false
			}
			errs = append(errs, fmt.Errorf("%s notifier[%s]: %w", n.Type(), n.ID(), err))
		} else {
			successful++
		}
	}

	if len(errs) == 0 {
		return successful, nil
	}
	err := errors.Join(errs...)
	switch {
	case allPermanent:
		err = domain.Permanent(err)
	case anyPermanent:
		// Flatten so a permanent failure buried in a mixed batch cannot
		// reclassify the whole send.
		err = errors.New(err.Error())
	}
	return successful, err
}

// Size returns the number of active notifiers.
func (f *Fanout) Size() int {
	if f == nil {
		return 0
	}
	return len(f.notifiers)
}
