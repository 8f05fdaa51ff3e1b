package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/hydrosync/internal/model"
	"github.com/rcliao/hydrosync/internal/notify"
	"github.com/rcliao/hydrosync/internal/state"
)

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and runs every timer that came due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fixedIntake float64

func (f fixedIntake) Today(context.Context) float64 { return float64(f) }

type recordingNotifier struct {
	err   error
	panic bool
	got   []notify.Reminder
}

func (n *recordingNotifier) Notify(_ context.Context, r notify.Reminder) error {
	n.got = append(n.got, r)
	if n.panic {
		panic("presenter crashed")
	}
	return n.err
}

type fixture struct {
	clock    *fakeClock
	state    *state.Shared
	notifier *recordingNotifier
	sched    *Scheduler
	outcomes []Outcome
}

func newFixture(t *testing.T, hour int, intake float64, cfg model.ReminderConfig) *fixture {
	t.Helper()
	f := &fixture{
		clock:    &fakeClock{now: time.Date(2026, 7, 1, hour, 0, 0, 0, time.UTC)},
		state:    state.New(state.NewMemoryBackend()),
		notifier: &recordingNotifier{},
	}
	require.NoError(t, f.state.SetReminder(context.Background(), cfg))
	f.sched = New(f.state, fixedIntake(intake), f.notifier,
		WithClock(f.clock),
		WithLocation(time.UTC),
		OnWake(func(o Outcome) { f.outcomes = append(f.outcomes, o) }))
	return f
}

func enabled(interval int) model.ReminderConfig {
	cfg := model.DefaultReminderConfig()
	cfg.Enabled = true
	cfg.IntervalMinutes = interval
	return cfg
}

func TestStartOrRescheduleKeepsOnePending(t *testing.T) {
	f := newFixture(t, 9, 0, enabled(30))
	ctx := context.Background()

	assert.Equal(t, Idle, f.sched.State())
	f.sched.StartOrReschedule(ctx)
	f.sched.StartOrReschedule(ctx)
	f.sched.StartOrReschedule(ctx)

	assert.Equal(t, Scheduled, f.sched.State())
	assert.Equal(t, 1, f.clock.Pending())
	assert.Equal(t, f.clock.Now().Add(30*time.Minute), f.sched.Next())

	f.clock.Advance(30 * time.Minute)
	assert.Len(t, f.outcomes, 1, "cancelled wake-ups never fire")
}

func TestWakeOutsideWindowRearms(t *testing.T) {
	f := newFixture(t, 22, 0, enabled(60))
	f.sched.StartOrReschedule(context.Background())

	f.clock.Advance(time.Hour) // 23:00, window is 8..22
	assert.Equal(t, []Outcome{OutsideWindow}, f.outcomes)
	assert.Empty(t, f.notifier.got)
	assert.Equal(t, Scheduled, f.sched.State())
	assert.Equal(t, 1, f.clock.Pending())
}

func TestGoalReachedSkipsUnlessRemindDespiteGoal(t *testing.T) {
	cfg := enabled(60)
	f := newFixture(t, 10, 3.0, cfg)
	ctx := context.Background()
	require.NoError(t, f.state.SetGoal(ctx, 2.0))

	f.sched.StartOrReschedule(ctx)
	f.clock.Advance(time.Hour)
	assert.Equal(t, []Outcome{GoalReached}, f.outcomes)
	assert.Empty(t, f.notifier.got)

	cfg.RemindDespiteGoal = true
	require.NoError(t, f.state.SetReminder(ctx, cfg))
	f.clock.Advance(time.Hour)
	assert.Equal(t, []Outcome{GoalReached, Notified}, f.outcomes)
	require.Len(t, f.notifier.got, 1)
	assert.Equal(t, 3.0, f.notifier.got[0].IntakeML)
	assert.Equal(t, 2.0, f.notifier.got[0].GoalML)
}

func TestNoGoalStillReminds(t *testing.T) {
	f := newFixture(t, 12, 5000, enabled(15))
	f.sched.StartOrReschedule(context.Background())
	f.clock.Advance(15 * time.Minute)
	assert.Equal(t, []Outcome{Notified}, f.outcomes)
}

func TestNotifierFailureStillReschedules(t *testing.T) {
	f := newFixture(t, 12, 0, enabled(20))
	f.notifier.err = errors.New("notification channel closed")
	f.sched.StartOrReschedule(context.Background())

	f.clock.Advance(20 * time.Minute)
	assert.Equal(t, []Outcome{NotifyFailed}, f.outcomes)
	assert.Equal(t, Scheduled, f.sched.State())

	f.notifier.err = nil
	f.notifier.panic = true
	f.clock.Advance(20 * time.Minute)
	assert.Equal(t, []Outcome{NotifyFailed, NotifyFailed}, f.outcomes)
	assert.Equal(t, 1, f.clock.Pending())
}

func TestDisabledWakeIsConsumed(t *testing.T) {
	f := newFixture(t, 12, 0, enabled(30))
	ctx := context.Background()
	f.sched.StartOrReschedule(ctx)

	cfg := enabled(30)
	cfg.Enabled = false
	require.NoError(t, f.state.SetReminder(ctx, cfg))

	f.clock.Advance(30 * time.Minute)
	assert.Equal(t, []Outcome{Disabled}, f.outcomes)
	assert.Equal(t, Idle, f.sched.State())
	assert.Zero(t, f.clock.Pending())

	f.clock.Advance(24 * time.Hour)
	assert.Len(t, f.outcomes, 1)
}

func TestStop(t *testing.T) {
	f := newFixture(t, 12, 0, enabled(30))
	f.sched.StartOrReschedule(context.Background())
	f.sched.Stop()

	assert.Equal(t, Idle, f.sched.State())
	assert.True(t, f.sched.Next().IsZero())
	f.clock.Advance(time.Hour)
	assert.Empty(t, f.outcomes)
}

func TestWindowWrapsPastMidnight(t *testing.T) {
	cfg := enabled(60)
	cfg.WindowStart, cfg.WindowEnd = 22, 6
	f := newFixture(t, 22, 0, cfg)
	f.sched.StartOrReschedule(context.Background())

	f.clock.Advance(time.Hour) // 23:00
	f.clock.Advance(time.Hour) // 00:00
	for range 6 {
		f.clock.Advance(time.Hour) // 01:00 .. 06:00
	}
	assert.Equal(t, Notified, f.outcomes[0])
	assert.Equal(t, Notified, f.outcomes[1])
	assert.Equal(t, OutsideWindow, f.outcomes[len(f.outcomes)-1])
}

type countingReset struct{ n int }

func (c *countingReset) Rollover(context.Context) { c.n++ }

func TestRolloverFiresAtMidnight(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 6, 1, 23, 0, 0, 0, time.UTC)}
	reset := &countingReset{}
	hooks := 0
	r := NewRollover(reset, func(context.Context) { hooks++ }, clock, time.UTC, nil)

	r.Start()
	assert.Equal(t, time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC), r.Next())

	clock.Advance(59 * time.Minute)
	assert.Zero(t, reset.n)
	clock.Advance(time.Minute)
	assert.Equal(t, 1, reset.n)
	assert.Equal(t, 1, hooks)
	assert.Equal(t, time.Date(2026, 6, 3, 0, 0, 0, 0, time.UTC), r.Next(), "re-armed for the next midnight")

	clock.Advance(24 * time.Hour)
	assert.Equal(t, 2, reset.n)

	r.Stop()
	clock.Advance(48 * time.Hour)
	assert.Equal(t, 2, reset.n)
	assert.Zero(t, clock.Pending())
}

func TestSyncFollowsConfig(t *testing.T) {
	f := newFixture(t, 12, 0, model.DefaultReminderConfig())
	ctx := context.Background()

	f.sched.Sync(ctx)
	assert.Equal(t, Idle, f.sched.State())

	require.NoError(t, f.state.SetReminder(ctx, enabled(45)))
	f.sched.Sync(ctx)
	assert.Equal(t, Scheduled, f.sched.State())
	next := f.sched.Next()

	f.clock.Advance(10 * time.Minute)
	f.sched.Sync(ctx)
	assert.Equal(t, next, f.sched.Next(), "an armed stream is left alone")

	require.NoError(t, f.state.SetReminder(ctx, model.DefaultReminderConfig()))
	f.sched.Sync(ctx)
	assert.Equal(t, Idle, f.sched.State())
	assert.Zero(t, f.clock.Pending())
}

func TestSyncPicksUpIntervalChange(t *testing.T) {
	f := newFixture(t, 12, 0, enabled(60))
	ctx := context.Background()
	f.sched.Sync(ctx)
	require.Equal(t, f.clock.Now().Add(time.Hour), f.sched.Next())

	f.clock.Advance(5 * time.Minute)
	require.NoError(t, f.state.SetReminder(ctx, enabled(15)))
	f.sched.Sync(ctx)
	assert.Equal(t, f.clock.Now().Add(15*time.Minute), f.sched.Next())
	assert.Equal(t, 1, f.clock.Pending())

	f.clock.Advance(15 * time.Minute)
	assert.Equal(t, []Outcome{Notified}, f.outcomes)
	assert.Equal(t, f.clock.Now().Add(15*time.Minute), f.sched.Next())
}
