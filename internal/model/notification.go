package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Type classifies a notification by the business event that produced it.
type Type string

const (
	TypePayment       Type = "payment"
	TypeClassReminder Type = "class_reminder"
	TypeNewContent    Type = "new_content"
	TypeMessage       Type = "message"
	TypeProgress      Type = "progress"
	TypeSystem        Type = "system"
	TypeAssignment    Type = "assignment"
	TypeGrade         Type = "grade"
)

// Priority indicates how prominently a notification should be surfaced.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Source records which channel produced a notification. It is diagnostic
// only and is never consulted for ordering or dedup.
type Source string

const (
	SourcePoll    Source = "poll"
	SourcePush    Source = "push"
	SourceDerived Source = "derived"
)

// Metadata holds type-specific display data (amounts, dates, names). The
// server stores it as an open JSON object whose values are not always
// strings; decoding keeps every value as its literal text so one numeric
// field cannot fail the whole list.
type Metadata map[string]string

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*m = nil
		return nil
	}

	out := make(Metadata, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		if string(v) == "null" {
			continue
		}
		out[k] = string(v)
	}
	*m = out
	return nil
}

// Notification is the canonical unit held by the notification store.
type Notification struct {
	// ID is the server-issued identifier. It is empty for a real-time
	// event that the server has not yet confirmed.
	ID string `json:"id"`

	// DedupKey is a content-derived identifier used to collapse
	// logically-identical entries arriving via different channels
	// before a server ID is known.
	DedupKey string `json:"-"`

	Type     Type     `json:"type"`
	Priority Priority `json:"priority"`

	Title   string `json:"title"`
	Message string `json:"message"`

	// Timestamp is the creation instant, used for ordering when IDs
	// are not comparable.
	Timestamp time.Time `json:"timestamp"`

	// IsRead is authoritative on the server once persisted; locally it
	// is updated optimistically and reconciled by the next poll.
	IsRead bool `json:"isRead"`

	Source Source `json:"-"`

	// ActionURL is the in-app route the notification links to.
	ActionURL string `json:"actionUrl,omitempty"`

	Metadata Metadata `json:"metadata,omitempty"`
}

// Key returns the identity under which this notification is deduplicated:
// the server ID when present, otherwise the dedup key.
func (n Notification) Key() string {
	if n.ID != "" {
		return "id:" + n.ID
	}
	return "dk:" + n.DedupKey
}

// BuildDedupKey derives a content-based identity for an event from its kind
// and related-entity identifiers. When no entity IDs are available it
// degrades to the kind plus a minute-granularity timestamp bucket, which
// accepts a small duplicate window rather than dropping the event.
func BuildDedupKey(kind string, entityIDs []string, ts time.Time) string {
	ids := make([]string, 0, len(entityIDs))
	for _, id := range entityIDs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) > 0 {
		return kind + ":" + strings.Join(ids, ":")
	}
	return fmt.Sprintf("%s:t%d", kind, ts.Unix()/60)
}

// OrderBefore reports whether a sorts before b in the store's display
// order: descending by ID when both are comparable, falling back to
// timestamp descending.
func OrderBefore(a, b Notification) bool {
	if a.ID != "" && b.ID != "" {
		ai, aerr := strconv.ParseInt(a.ID, 10, 64)
		bi, berr := strconv.ParseInt(b.ID, 10, 64)
		switch {
		case aerr == nil && berr == nil:
			if ai != bi {
				return ai > bi
			}
		case aerr != nil && berr != nil:
			if a.ID != b.ID {
				return a.ID > b.ID
			}
		}
	}
	return a.Timestamp.After(b.Timestamp)
}
