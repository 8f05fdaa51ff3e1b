// Package reminder decides when to prompt the user to drink and keeps the
// daily rollover armed.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rcliao/hydrosync/internal/model"
	"github.com/rcliao/hydrosync/internal/notify"
	"github.com/rcliao/hydrosync/internal/state"
)

const wakeTimeout = 10 * time.Second

// State is the scheduler's lifecycle state.
type State int

const (
	Idle State = iota
	Scheduled
)

func (s State) String() string {
	if s == Scheduled {
		return "scheduled"
	}
	return "idle"
}

// Outcome records what a wake-up decided.
type Outcome int

const (
	Disabled Outcome = iota
	OutsideWindow
	GoalReached
	Notified
	NotifyFailed
	ConfigUnreadable
)

func (o Outcome) String() string {
	switch o {
	case Disabled:
		return "disabled"
	case OutsideWindow:
		return "outside_window"
	case GoalReached:
		return "goal_reached"
	case Notified:
		return "notified"
	case NotifyFailed:
		return "notify_failed"
	case ConfigUnreadable:
		return "config_unreadable"
	}
	return "unknown"
}

// IntakeReader re-derives today's intake.
type IntakeReader interface {
	Today(ctx context.Context) float64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the real clock.
func WithClock(c Clock) Option { return func(s *Scheduler) { s.clock = c } }

// WithLocation sets the zone whose hour is checked against the window.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// OnWake registers a hook that observes every wake-up's outcome.
func OnWake(fn func(Outcome)) Option { return func(s *Scheduler) { s.onWake = fn } }

// Scheduler arms one wake-up at a time. Every wake-up re-reads the
// reminder configuration and arms the next wake-up before presenting
// anything.
type Scheduler struct {
	state    state.Store
	intake   IntakeReader
	notifier notify.Notifier
	clock    Clock
	loc      *time.Location
	log      *slog.Logger
	onWake   func(Outcome)

	mu       sync.Mutex
	timer    Timer
	gen      uint64
	next     time.Time
	interval time.Duration
	pending  context.CancelFunc
	inflight context.CancelFunc
}

// New returns an idle Scheduler.
func New(st state.Store, intake IntakeReader, n notify.Notifier, opts ...Option) *Scheduler {
	s := &Scheduler{
		state:    st,
		intake:   intake,
		notifier: n,
		clock:    RealClock(),
		loc:      time.Local,
		log:      slog.Default(),
		onWake:   func(Outcome) {},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State reports whether a wake-up is pending.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		return Scheduled
	}
	return Idle
}

// Next returns when the pending wake-up fires, or the zero time when idle.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// StartOrReschedule cancels any pending wake-up and arms exactly one at now
// plus the configured interval.
func (s *Scheduler) StartOrReschedule(ctx context.Context) {
	cfg, err := s.state.Reminder(ctx)
	if err != nil {
		s.log.Warn("read reminder config", "error", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armLocked(cfg.Interval())
}

// Sync brings the scheduler in line with the stored configuration: an
// enabled but idle stream is armed, an armed one whose interval changed is
// rescheduled and a disabled one is stopped. It serves as the boot and
// periodic re-arm hook.
func (s *Scheduler) Sync(ctx context.Context) {
	cfg, err := s.state.Reminder(ctx)
	if err != nil {
		s.log.Warn("read reminder config", "error", err)
		return
	}
	s.mu.Lock()
	armed, interval := s.timer != nil, s.interval
	s.mu.Unlock()

	switch {
	case cfg.Enabled && !armed:
		s.StartOrReschedule(ctx)
	case cfg.Enabled && interval != cfg.Interval():
		s.log.Debug("reminder interval changed", "from", interval, "to", cfg.Interval())
		s.StartOrReschedule(ctx)
	case !cfg.Enabled && armed:
		s.Stop()
	}
}

// Stop cancels any pending wake-up and any wake-up in progress.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelPendingLocked()
	if s.inflight != nil {
		s.inflight()
		s.inflight = nil
	}
	s.gen++
	s.log.Debug("reminders stopped")
}

func (s *Scheduler) cancelPendingLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.pending != nil {
		s.pending()
		s.pending = nil
	}
	s.next = time.Time{}
}

func (s *Scheduler) armLocked(d time.Duration) {
	s.cancelPendingLocked()
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(context.Background())
	s.pending = cancel
	s.interval = d
	s.next = s.clock.Now().Add(d)
	s.timer = s.clock.AfterFunc(d, func() { s.wake(ctx, gen) })
	s.log.Debug("reminder armed", "at", s.next)
}

// rearm arms the next wake-up unless the stream was stopped or rescheduled
// since gen was armed.
func (s *Scheduler) rearm(gen uint64, d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.armLocked(d)
	return true
}

func (s *Scheduler) wake(scope context.Context, gen uint64) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.next = time.Time{}
	release := s.pending
	s.inflight, s.pending = release, nil
	s.mu.Unlock()
	defer release()

	ctx, cancel := context.WithTimeout(scope, wakeTimeout)
	defer cancel()

	outcome := s.evaluate(ctx, gen)
	s.log.Debug("reminder wake-up", "outcome", outcome)
	s.onWake(outcome)
}

func (s *Scheduler) evaluate(ctx context.Context, gen uint64) Outcome {
	cfg, err := s.state.Reminder(ctx)
	if err != nil {
		s.log.Warn("read reminder config", "error", err)
		s.rearm(gen, cfg.Interval())
		return ConfigUnreadable
	}
	if !cfg.Enabled {
		return Disabled
	}
	s.rearm(gen, cfg.Interval())

	if hour := s.clock.Now().In(s.loc).Hour(); !cfg.InWindow(hour) {
		return OutsideWindow
	}

	intake := s.intake.Today(ctx)
	goal, err := s.state.Goal(ctx)
	if err != nil {
		s.log.Warn("read goal", "error", err)
	}
	if model.GoalMet(intake, goal) && !cfg.RemindDespiteGoal {
		return GoalReached
	}

	unit, err := s.state.Unit(ctx)
	if err != nil {
		s.log.Warn("read unit", "error", err)
	}
	r := notify.Reminder{IntakeML: intake, GoalML: goal, Unit: unit, At: s.clock.Now()}
	if err := s.present(ctx, r); err != nil {
		s.log.Error("present reminder", "error", err)
		return NotifyFailed
	}
	return Notified
}

func (s *Scheduler) present(ctx context.Context, r notify.Reminder) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("notifier panic: %v", p)
		}
	}()
	return s.notifier.Notify(ctx, r)
}
