package api

import (
	"context"
	"time"

	"github.com/totcainc/knowledge-shadows/internal/domain"
)

// DefaultPollInterval matches the detail view's 3-second processing poll.
const DefaultPollInterval = 3 * time.Second

// WaitWhileProcessing polls the shadow until it leaves the capturing and
// processing statuses, calling onPoll (if set) with every observed state.
// Returns the first terminal shadow, or the context error if cancelled.
func (c *Client) WaitWhileProcessing(ctx context.Context, shadowID string, interval time.Duration, onPoll func(domain.Shadow)) (domain.Shadow, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	for {
		shadow, err := c.GetShadow(ctx, shadowID)
		if err != nil {
			return domain.Shadow{}, err
		}
		if onPoll != nil {
			onPoll(shadow)
		}
		if shadow.Status.Terminal() {
			return shadow, nil
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return shadow, ctx.Err()
		}
	}
}
