package api

import (
	"context"

	"github.com/mqerk/notisync/internal/model"
)

// listResponse mirrors the portal's list envelope.
type listResponse struct {
	Data []model.Notification `json:"data"`
}

// ackResponse mirrors the portal's mutation acknowledgement.
type ackResponse struct {
	OK bool `json:"ok"`
}

// ListNotifications fetches the persisted notifications for the current
// account. Entries are tagged with the poll source and get the same
// content-derived dedup key the push channel builds, so a server-confirmed
// record collapses with the optimistic push entry that preceded it.
func (c *Client) ListNotifications(ctx context.Context) ([]model.Notification, error) {
	var out listResponse
	if err := c.get(ctx, "/notifications", &out); err != nil {
		return nil, err
	}
	for i := range out.Data {
		n := &out.Data[i]
		n.Source = model.SourcePoll
		n.DedupKey = model.BuildDedupKey(
			string(n.Type),
			[]string{n.Metadata["course_id"], n.Metadata["payment_id"]},
			n.Timestamp,
		)
	}
	return out.Data, nil
}

// MarkRead marks a notification as read on the server.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	var out ackResponse
	return c.put(ctx, "/notifications/"+id+"/read", &out)
}

// MarkUnread marks a notification as unread on the server.
func (c *Client) MarkUnread(ctx context.Context, id string) error {
	var out ackResponse
	return c.put(ctx, "/notifications/"+id+"/unread", &out)
}

// MarkAllRead marks every notification as read on the server.
func (c *Client) MarkAllRead(ctx context.Context) error {
	var out ackResponse
	return c.put(ctx, "/notifications/mark-all-read", &out)
}

// Delete removes a notification on the server.
func (c *Client) Delete(ctx context.Context, id string) error {
	var out ackResponse
	return c.delete(ctx, "/notifications/"+id, &out)
}

// DeleteRead removes all read notifications on the server.
func (c *Client) DeleteRead(ctx context.Context) error {
	var out ackResponse
	return c.delete(ctx, "/notifications/delete-read", &out)
}

// Health probes the backend before heavier connections (such as the push
// channel) are attempted.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/health", nil)
}
