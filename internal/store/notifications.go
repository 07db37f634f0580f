package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mqerk/notisync/internal/model"
)

// writeTimeout bounds the background server writes triggered by local
// mutations.
const writeTimeout = 10 * time.Second

// Writer performs the server-side counterparts of local notification
// mutations.
type Writer interface {
	MarkRead(ctx context.Context, id string) error
	MarkUnread(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	Delete(ctx context.Context, id string) error
	DeleteRead(ctx context.Context) error
}

// Notifications is the canonical, deduplicated, ordered notification list
// for the current session. All mutations go through its methods; callers
// never modify entries in place.
//
// Local mutations are optimistic: the matching server write runs in the
// background and a failure is logged, never rolled back. A stale read flag
// is cheap and the next poll reconciles it.
type Notifications struct {
	mu          sync.Mutex
	items       []model.Notification
	maxRetained int
	writer      Writer
	observers   []func()
	lastUpdated time.Time
	logger      zerolog.Logger
}

// NewNotifications creates an empty store. writer may be nil, in which case
// mutations are local-only. maxRetained caps the list size; zero falls back
// to 200.
func NewNotifications(writer Writer, maxRetained int, logger zerolog.Logger) *Notifications {
	if maxRetained <= 0 {
		maxRetained = 200
	}
	return &Notifications{
		maxRetained: maxRetained,
		writer:      writer,
		logger:      logger,
	}
}

// OnChange registers a callback invoked after every state change.
func (s *Notifications) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Notifications) notify() {
	s.mu.Lock()
	obs := make([]func(), len(s.observers))
	copy(obs, s.observers)
	s.mu.Unlock()

	for _, fn := range obs {
		fn()
	}
}

// Merge folds a polled batch into the store. Entries are keyed by server ID
// when present, else by dedup key; incoming entries overwrite same-keyed
// existing ones (server state wins over local optimism), and a
// server-confirmed record absorbs an earlier optimistic entry that carries
// the same dedup key. Everything unique to the existing set is retained.
// The operation is idempotent and commutative per key.
func (s *Notifications) Merge(incoming []model.Notification) {
	s.mu.Lock()
	merged := make(map[string]model.Notification, len(s.items)+len(incoming))
	for _, n := range s.items {
		merged[n.Key()] = n
	}
	for _, n := range incoming {
		if n.ID != "" && n.DedupKey != "" {
			delete(merged, "dk:"+n.DedupKey)
		}
		merged[n.Key()] = n
	}

	items := make([]model.Notification, 0, len(merged))
	for _, n := range merged {
		items = append(items, n)
	}
	sortNotifications(items)
	s.items = trim(items, s.maxRetained)
	s.lastUpdated = time.Now()
	s.mu.Unlock()

	s.notify()
}

// Insert adds a single notification from the push or derived path. It
// no-ops when an entry with the same ID or dedup key already exists.
// Returns whether the entry was added.
func (s *Notifications) Insert(n model.Notification) bool {
	s.mu.Lock()
	for _, e := range s.items {
		if n.ID != "" && e.ID == n.ID {
			s.mu.Unlock()
			return false
		}
		if n.DedupKey != "" && e.DedupKey == n.DedupKey {
			s.mu.Unlock()
			return false
		}
	}
	items := append([]model.Notification{n}, s.items...)
	sortNotifications(items)
	s.items = trim(items, s.maxRetained)
	s.mu.Unlock()

	s.notify()
	return true
}

// MarkRead flags a notification as read locally and on the server.
func (s *Notifications) MarkRead(id string) {
	s.setRead(id, true)
	s.write("mark read", func(ctx context.Context, w Writer) error {
		return w.MarkRead(ctx, id)
	})
}

// MarkUnread flags a notification as unread locally and on the server.
func (s *Notifications) MarkUnread(id string) {
	s.setRead(id, false)
	s.write("mark unread", func(ctx context.Context, w Writer) error {
		return w.MarkUnread(ctx, id)
	})
}

// MarkAllRead flags every notification as read locally and on the server.
func (s *Notifications) MarkAllRead() {
	s.mu.Lock()
	for i := range s.items {
		s.items[i].IsRead = true
	}
	s.mu.Unlock()
	s.notify()

	s.write("mark all read", func(ctx context.Context, w Writer) error {
		return w.MarkAllRead(ctx)
	})
}

// Delete removes a notification locally and on the server.
func (s *Notifications) Delete(id string) {
	s.mu.Lock()
	kept := s.items[:0]
	for _, n := range s.items {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	s.items = kept
	s.mu.Unlock()
	s.notify()

	s.write("delete", func(ctx context.Context, w Writer) error {
		return w.Delete(ctx, id)
	})
}

// DeleteRead removes all read notifications locally and on the server.
func (s *Notifications) DeleteRead() {
	s.mu.Lock()
	kept := s.items[:0]
	for _, n := range s.items {
		if !n.IsRead {
			kept = append(kept, n)
		}
	}
	s.items = kept
	s.mu.Unlock()
	s.notify()

	s.write("delete read", func(ctx context.Context, w Writer) error {
		return w.DeleteRead(ctx)
	})
}

// Clear drops every entry. Used on session teardown; no server write.
func (s *Notifications) Clear() {
	s.mu.Lock()
	s.items = nil
	s.lastUpdated = time.Time{}
	s.mu.Unlock()
	s.notify()
}

// All returns a copy of the current list in display order.
func (s *Notifications) All() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Notification, len(s.items))
	copy(out, s.items)
	return out
}

// Unread returns the unread entries in display order.
func (s *Notifications) Unread() []model.Notification {
	return s.filter(func(n model.Notification) bool { return !n.IsRead })
}

// Read returns the read entries in display order.
func (s *Notifications) Read() []model.Notification {
	return s.filter(func(n model.Notification) bool { return n.IsRead })
}

// ByType returns the entries of the given type in display order.
func (s *Notifications) ByType(t model.Type) []model.Notification {
	return s.filter(func(n model.Notification) bool { return n.Type == t })
}

// ByPriority returns the entries of the given priority in display order.
func (s *Notifications) ByPriority(p model.Priority) []model.Notification {
	return s.filter(func(n model.Notification) bool { return n.Priority == p })
}

// UnreadCount returns the number of unread entries.
func (s *Notifications) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, n := range s.items {
		if !n.IsRead {
			count++
		}
	}
	return count
}

// LastUpdated returns when the store last absorbed a merge.
func (s *Notifications) LastUpdated() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUpdated
}

func (s *Notifications) filter(keep func(model.Notification) bool) []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Notification
	for _, n := range s.items {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

func (s *Notifications) setRead(id string, read bool) {
	s.mu.Lock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].IsRead = read
			break
		}
	}
	s.mu.Unlock()
	s.notify()
}

// write fires the server-side counterpart of a local mutation without
// waiting for it. Failures are logged and reconciled by the next poll.
func (s *Notifications) write(op string, fn func(ctx context.Context, w Writer) error) {
	if s.writer == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := fn(ctx, s.writer); err != nil {
			s.logger.Warn().Err(err).Str("op", op).Msg("server write failed; awaiting next poll")
		}
	}()
}

func sortNotifications(items []model.Notification) {
	sort.SliceStable(items, func(i, j int) bool {
		return model.OrderBefore(items[i], items[j])
	})
}

// trim drops the oldest entries beyond max. Items must already be in
// display order (newest first).
func trim(items []model.Notification, max int) []model.Notification {
	if len(items) > max {
		return items[:max]
	}
	return items
}
