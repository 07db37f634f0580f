package session

import (
	"context"
	"fmt"

	"github.com/mqerk/notisync/internal/api"
	"github.com/mqerk/notisync/internal/push"
)

// NewPortalDialer returns a Dialer that probes the REST API before opening
// the websocket. A failed probe means the push handshake would only burn a
// connection attempt while offline.
func NewPortalDialer(client *api.Client, wsURL, token string) Dialer {
	return func(ctx context.Context) (push.Stream, error) {
		if err := client.Health(ctx); err != nil {
			return nil, fmt.Errorf("probing portal before push dial: %w", err)
		}
		return push.Dial(ctx, wsURL, token)
	}
}
