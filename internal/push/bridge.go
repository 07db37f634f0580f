package push

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mqerk/notisync/internal/model"
	"github.com/mqerk/notisync/internal/store"
)

// Stream delivers raw JSON frames from the portal's push channel. Next
// blocks until a frame arrives and returns an error once the stream is
// closed.
type Stream interface {
	Next() ([]byte, error)
	Close() error
}

// frame is the wire shape of a push channel message.
type frame struct {
	Type    string        `json:"type"`
	Payload *eventPayload `json:"payload,omitempty"`
}

// eventPayload carries a business event. Entity identifiers may be absent.
type eventPayload struct {
	NotifID   json.Number       `json:"notif_id"`
	Kind      string            `json:"kind"`
	Priority  string            `json:"priority"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	ActionURL string         `json:"action_url"`
	CourseID  json.Number    `json:"course_id"`
	PaymentID json.Number    `json:"payment_id"`
	Metadata  model.Metadata `json:"metadata"`
}

// Bridge normalizes push channel frames into notifications and feeds them
// to the store's dedup-aware insert path. Frames arriving after
// Unsubscribe are silently dropped.
type Bridge struct {
	notifications *store.Notifications
	logger        zerolog.Logger
	now           func() time.Time

	mu        sync.Mutex
	stream    Stream
	connected bool
	closed    bool

	// inflight tracks frames between the closed-check and their store
	// write; Unsubscribe waits on it so no insert lands after teardown.
	inflight sync.WaitGroup
}

// NewBridge creates a bridge feeding the given store.
func NewBridge(notifications *store.Notifications, logger zerolog.Logger) *Bridge {
	return &Bridge{
		notifications: notifications,
		logger:        logger,
		now:           time.Now,
	}
}

// Subscribe starts consuming the stream in the background. Any previous
// subscription is torn down first.
func (b *Bridge) Subscribe(stream Stream) {
	b.mu.Lock()
	if b.stream != nil {
		b.stream.Close()
	}
	b.stream = stream
	b.closed = false
	b.connected = false
	b.mu.Unlock()

	go b.consume(stream)
}

// Unsubscribe stops consumption and closes the stream. It returns only
// after any frame already past the closed-check has been applied, so a
// store cleared afterwards stays cleared. Idempotent.
func (b *Bridge) Unsubscribe() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.connected = false
	stream := b.stream
	b.stream = nil
	b.mu.Unlock()

	if stream != nil {
		stream.Close()
	}
	b.inflight.Wait()
}

// Connected reports whether the channel has acknowledged the subscription.
// Diagnostic only; correctness does not depend on it.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *Bridge) consume(stream Stream) {
	for {
		data, err := stream.Next()
		if err != nil {
			b.mu.Lock()
			if b.stream == stream {
				b.connected = false
			}
			b.mu.Unlock()
			return
		}
		b.handle(data)
	}
}

// handle processes one frame. Malformed or unknown frames are dropped, not
// errors.
func (b *Bridge) handle(data []byte) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.inflight.Add(1)
	b.mu.Unlock()
	defer b.inflight.Done()

	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		b.logger.Debug().Err(err).Msg("dropping malformed push frame")
		return
	}

	switch f.Type {
	case "welcome":
		b.mu.Lock()
		if !b.closed {
			b.connected = true
		}
		b.mu.Unlock()
	case "notification":
		if f.Payload == nil || f.Payload.Kind == "" {
			return
		}
		b.notifications.Insert(b.normalize(f.Payload))
	}
}

// normalize builds the canonical notification for a push event. The server
// ID is carried over when the payload includes one; the dedup key covers
// the window before confirmation.
func (b *Bridge) normalize(p *eventPayload) model.Notification {
	now := b.now()

	entityIDs := []string{p.CourseID.String(), p.PaymentID.String()}

	priority := model.Priority(p.Priority)
	switch priority {
	case model.PriorityLow, model.PriorityMedium, model.PriorityHigh, model.PriorityUrgent:
	default:
		priority = model.PriorityMedium
	}

	return model.Notification{
		ID:        p.NotifID.String(),
		DedupKey:  model.BuildDedupKey(p.Kind, entityIDs, now),
		Type:      model.Type(p.Kind),
		Priority:  priority,
		Title:     p.Title,
		Message:   p.Message,
		Timestamp: now,
		IsRead:    false,
		Source:    model.SourcePush,
		ActionURL: p.ActionURL,
		Metadata:  p.Metadata,
	}
}
