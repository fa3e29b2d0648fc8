package feed

import (
	"context"

	"github.com/eduardojeem/repairboard/pkg/client"
)

// SSE subscribes through the HTTP API's GET /stream.
func SSE(c *client.Client) Feed {
	return Func(func(ctx context.Context, h Handler) (Subscription, error) {
		sub, err := c.SubscribeToChanges(ctx, h)
		if err != nil {
			return nil, err
		}
		return sub, nil
	})
}
