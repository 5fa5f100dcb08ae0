package client

import (
	"context"
	"net/http"
	"time"

	"github.com/dailycompanion/companion/internal/sharedplan"
)

// DefaultPollInterval is how often chat views re-fetch messages.
const DefaultPollInterval = 5 * time.Second

// pollPageSize is the page requested per fetch. A full page means more may
// be waiting, so the poller fetches again before sleeping.
const pollPageSize = 200

// PollMessages fetches a plan's discussion every interval and hands each
// page of new messages to fn, starting with the latest page of history. It
// stops when ctx is done, when fn returns an error, or on a 4xx reply such as
// 403 after the caller was removed or 404 after the plan was deleted. Network
// errors, 429 and 5xx replies are retried on the next tick.
func (c *Client) PollMessages(ctx context.Context, planID string, interval time.Duration, fn func([]sharedplan.Message) error) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var since time.Time
	for {
		for {
			msgs, err := c.Messages(ctx, planID, since, pollPageSize)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				if permanent(err) {
					return err
				}
				break
			}
			if len(msgs) > 0 {
				since = msgs[len(msgs)-1].CreatedAt
				if err := fn(msgs); err != nil {
					return err
				}
			}
			if len(msgs) < pollPageSize {
				break
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func permanent(err error) bool {
	status := StatusOf(err)
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests
}
