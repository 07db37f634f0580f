package sync

import (
	"context"
	gosync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mqerk/notisync/internal/api"
	"github.com/mqerk/notisync/internal/model"
	"github.com/mqerk/notisync/internal/store"
)

// fetchTimeout is the maximum time allowed for a single poll cycle.
const fetchTimeout = 30 * time.Second

// Fetcher performs the notification poll.
type Fetcher interface {
	ListNotifications(ctx context.Context) ([]model.Notification, error)
}

// Surface reports whether the host surface can usefully poll right now.
// A hidden window or an offline device makes every attempt futile, so
// ticks are skipped instead of churning errors.
type Surface interface {
	Visible() bool
	Online() bool
}

// alwaysOn is the Surface used when none is provided.
type alwaysOn struct{}

func (alwaysOn) Visible() bool { return true }
func (alwaysOn) Online() bool  { return true }

// Config holds the scheduler's timing knobs.
type Config struct {
	// PollInterval is the repeating fetch cadence.
	PollInterval time.Duration

	// QuickRetryDelay is the one-shot retry armed after a transient
	// failure, well ahead of the next regular tick.
	QuickRetryDelay time.Duration

	// OnlineSettleDelay is the wait applied after a connectivity-restored
	// signal; the event tends to fire slightly before the network path
	// actually works.
	OnlineSettleDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 60 * time.Second
	}
	if c.QuickRetryDelay <= 0 {
		c.QuickRetryDelay = 2 * time.Second
	}
	if c.OnlineSettleDelay <= 0 {
		c.OnlineSettleDelay = 500 * time.Millisecond
	}
}

// Scheduler polls the portal on a fixed cadence and merges results into
// the notification store. It never replaces the store's contents
// wholesale; overlapping polls are harmless because merge is idempotent
// per key.
type Scheduler struct {
	fetcher       Fetcher
	notifications *store.Notifications
	surface       Surface
	cfg           Config
	logger        zerolog.Logger

	mu         gosync.Mutex
	running    bool
	degraded   bool
	stopCh     chan struct{}
	quickRetry *time.Timer
	settle     *time.Timer
	onTick     []func()
	onDegraded []func(bool)
}

// NewScheduler creates a stopped scheduler. surface may be nil, in which
// case ticks are never suppressed.
func NewScheduler(fetcher Fetcher, notifications *store.Notifications, surface Surface, cfg Config, logger zerolog.Logger) *Scheduler {
	cfg.applyDefaults()
	if surface == nil {
		surface = alwaysOn{}
	}
	return &Scheduler{
		fetcher:       fetcher,
		notifications: notifications,
		surface:       surface,
		cfg:           cfg,
		logger:        logger,
	}
}

// OnTick registers a callback invoked on every cadence tick, including
// suppressed ones. Used to drive periodic re-evaluation that does not
// depend on the network.
func (s *Scheduler) OnTick(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTick = append(s.onTick, fn)
}

// OnDegraded registers a callback invoked whenever the degraded flag
// changes.
func (s *Scheduler) OnDegraded(fn func(bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDegraded = append(s.onDegraded, fn)
}

// Start performs an immediate fetch-and-merge and arms the repeating
// tick. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	stop := make(chan struct{})
	s.stopCh = stop
	s.mu.Unlock()

	go s.run(stop)
}

// Stop cancels the repeating tick, the pending quick-retry, and the
// pending settle delay. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
	if s.quickRetry != nil {
		s.quickRetry.Stop()
		s.quickRetry = nil
	}
	if s.settle != nil {
		s.settle.Stop()
		s.settle = nil
	}
}

// Degraded reports whether the last sync attempt failed for network
// reasons. Not a hard error: the UI shows staleness, not a banner.
func (s *Scheduler) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// NotifyOnline schedules a fetch after the settle delay in response to a
// connectivity-restored signal. Repeated signals reset the delay.
func (s *Scheduler) NotifyOnline() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	if s.settle != nil {
		s.settle.Stop()
	}
	s.settle = time.AfterFunc(s.cfg.OnlineSettleDelay, func() {
		s.mu.Lock()
		s.settle = nil
		running := s.running
		s.mu.Unlock()
		if running && !s.suppressed() {
			s.fetchAndMerge()
		}
	})
}

func (s *Scheduler) run(stop chan struct{}) {
	s.fetchAndMerge()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.fireTick()
			if s.suppressed() {
				continue
			}
			s.fetchAndMerge()
		}
	}
}

// suppressed reports whether polling is pointless right now.
func (s *Scheduler) suppressed() bool {
	return !s.surface.Visible() || !s.surface.Online()
}

// fetchAndMerge performs one poll cycle. A transient failure marks the
// scheduler degraded and arms the quick-retry; a semantic failure is
// logged and the cadence simply continues.
func (s *Scheduler) fetchAndMerge() {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	notifications, err := s.fetcher.ListNotifications(ctx)
	if err != nil {
		if api.IsTransient(err) {
			s.setDegraded(true)
			s.armQuickRetry()
		} else if code, ok := api.StatusCode(err); ok {
			s.logger.Warn().Int("status", code).Msg("notification poll rejected")
		} else {
			s.logger.Warn().Err(err).Msg("notification poll failed")
		}
		return
	}

	s.setDegraded(false)
	s.cancelQuickRetry()
	s.notifications.Merge(notifications)
}

// armQuickRetry schedules a single fast retry unless one is already
// pending.
func (s *Scheduler) armQuickRetry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.quickRetry != nil {
		return
	}
	s.quickRetry = time.AfterFunc(s.cfg.QuickRetryDelay, func() {
		s.mu.Lock()
		s.quickRetry = nil
		running := s.running
		s.mu.Unlock()
		if running && !s.suppressed() {
			s.fetchAndMerge()
		}
	})
}

func (s *Scheduler) cancelQuickRetry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quickRetry != nil {
		s.quickRetry.Stop()
		s.quickRetry = nil
	}
}

func (s *Scheduler) setDegraded(v bool) {
	s.mu.Lock()
	if s.degraded == v {
		s.mu.Unlock()
		return
	}
	s.degraded = v
	obs := make([]func(bool), len(s.onDegraded))
	copy(obs, s.onDegraded)
	s.mu.Unlock()

	for _, fn := range obs {
		fn(v)
	}
}

func (s *Scheduler) fireTick() {
	s.mu.Lock()
	obs := make([]func(), len(s.onTick))
	copy(obs, s.onTick)
	s.mu.Unlock()

	for _, fn := range obs {
		fn()
	}
}
