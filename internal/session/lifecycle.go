package session

import (
	"context"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mqerk/notisync/internal/model"
	"github.com/mqerk/notisync/internal/push"
	"github.com/mqerk/notisync/internal/reminder"
	"github.com/mqerk/notisync/internal/store"
	"github.com/mqerk/notisync/internal/sync"
)

// RoleStudent is the only role that participates in notification sync.
const RoleStudent = "estudiante"

// dialTimeout bounds the push channel handshake.
const dialTimeout = 10 * time.Second

// AuthState describes the current authentication status of the host
// application.
type AuthState struct {
	LoggedIn   bool
	Role       string
	AccountKey string
}

// Dialer opens the push channel. Injected so the transport is swappable.
type Dialer func(ctx context.Context) (push.Stream, error)

// ScheduleProvider returns the account's current payment schedule.
type ScheduleProvider func() []model.PaymentScheduleEntry

// Controller starts and stops the synchronization engine on auth
// transitions. On logout it cancels all timers and subscriptions before
// clearing the store, so a late-firing tick cannot revive stale data.
type Controller struct {
	scheduler     *sync.Scheduler
	bridge        *push.Bridge
	notifications *store.Notifications
	reminders     *reminder.Generator
	dial          Dialer
	schedule      ScheduleProvider
	logger        zerolog.Logger

	mu         gosync.Mutex
	active     bool
	accountKey string
	sessionID  string
}

// NewController wires the engine together. dial may be nil to disable the
// push channel; schedule may be nil to disable payment reminders.
func NewController(
	scheduler *sync.Scheduler,
	bridge *push.Bridge,
	notifications *store.Notifications,
	reminders *reminder.Generator,
	dial Dialer,
	schedule ScheduleProvider,
	logger zerolog.Logger,
) *Controller {
	c := &Controller{
		scheduler:     scheduler,
		bridge:        bridge,
		notifications: notifications,
		reminders:     reminders,
		dial:          dial,
		schedule:      schedule,
		logger:        logger,
	}

	// Reminders re-evaluate on every store change and on each cadence
	// tick, so a window opening mid-session is still noticed.
	notifications.OnChange(c.evaluateReminders)
	scheduler.OnTick(c.evaluateReminders)

	return c
}

// HandleAuthChange applies an authentication transition. Only a logged-in
// student activates the engine; anything else tears it down. Repeated
// identical states are no-ops.
func (c *Controller) HandleAuthChange(state AuthState) {
	student := state.LoggedIn && state.Role == RoleStudent

	c.mu.Lock()
	if student == c.active && (!student || state.AccountKey == c.accountKey) {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if student {
		c.activate(state)
	} else {
		c.deactivate()
	}
}

// Active reports whether the engine is currently running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Controller) activate(state AuthState) {
	// Switching accounts tears the previous session down first.
	c.deactivate()

	// Session ID correlates this activation's log lines.
	sessionID := uuid.NewString()

	c.mu.Lock()
	c.active = true
	c.accountKey = state.AccountKey
	c.sessionID = sessionID
	c.mu.Unlock()

	c.logger.Info().
		Str("session", sessionID).
		Str("account", state.AccountKey).
		Msg("notification sync started")

	c.scheduler.Start()

	if c.dial != nil {
		go c.connectPush()
	}

	c.evaluateReminders()
}

// deactivate stops timers first, then subscriptions, then clears state.
// The ordering matters: a timer surviving the clear could repopulate the
// store after logout.
func (c *Controller) deactivate() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	c.accountKey = ""
	sessionID := c.sessionID
	c.sessionID = ""
	c.mu.Unlock()

	c.scheduler.Stop()
	c.bridge.Unsubscribe()
	c.notifications.Clear()

	c.logger.Info().Str("session", sessionID).Msg("notification sync stopped")
}

// connectPush dials the push channel and hands the stream to the bridge.
// Failure is tolerated: polling alone keeps the list eventually
// consistent.
func (c *Controller) connectPush() {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	stream, err := c.dial(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("push channel unavailable; relying on polling")
		return
	}

	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if !active {
		stream.Close()
		return
	}

	c.bridge.Subscribe(stream)
}

// evaluateReminders runs one reminder derivation and injects the result.
// Insert dedups on the reminder's stable ID, so the recursion through the
// store's change observer terminates immediately.
func (c *Controller) evaluateReminders() {
	c.mu.Lock()
	active := c.active
	accountKey := c.accountKey
	c.mu.Unlock()
	if !active || c.reminders == nil || c.schedule == nil {
		return
	}

	entries := c.schedule()
	if len(entries) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := c.reminders.Evaluate(ctx, accountKey, entries, time.Now())
	if err != nil {
		c.logger.Warn().Err(err).Msg("payment reminder evaluation failed")
		return
	}
	if n != nil {
		c.notifications.Insert(*n)
	}
}
