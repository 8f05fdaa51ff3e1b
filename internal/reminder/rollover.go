package reminder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rcliao/hydrosync/internal/model"
)

// DayResetter clears cached per-day values.
type DayResetter interface {
	Rollover(ctx context.Context)
}

// Rollover fires at every local midnight. It re-arms itself for the next
// midnight before doing anything else.
type Rollover struct {
	reset DayResetter
	hook  func(ctx context.Context)
	clock Clock
	loc   *time.Location
	log   *slog.Logger

	mu    sync.Mutex
	timer Timer
	gen   uint64
	next  time.Time
}

// NewRollover returns a stopped Rollover. hook, if non-nil, runs after the
// reset, for example to push the zeroed total to companions.
func NewRollover(reset DayResetter, hook func(ctx context.Context), clock Clock, loc *time.Location, log *slog.Logger) *Rollover {
	if clock == nil {
		clock = RealClock()
	}
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = slog.Default()
	}
	if hook == nil {
		hook = func(context.Context) {}
	}
	return &Rollover{reset: reset, hook: hook, clock: clock, loc: loc, log: log}
}

// Start arms the task for the next local midnight, replacing any pending
// one.
func (r *Rollover) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.armLocked()
}

// Stop cancels the pending firing.
func (r *Rollover) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.next = time.Time{}
	r.gen++
}

// Next returns the pending firing time, or the zero time when stopped.
func (r *Rollover) Next() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}

func (r *Rollover) armLocked() {
	if r.timer != nil {
		r.timer.Stop()
	}
	r.gen++
	gen := r.gen
	now := r.clock.Now()
	r.next = model.StartOfDay(now, r.loc).AddDate(0, 0, 1)
	r.timer = r.clock.AfterFunc(r.next.Sub(now), func() { r.fire(gen) })
}

func (r *Rollover) fire(gen uint64) {
	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		return
	}
	r.armLocked()
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), wakeTimeout)
	defer cancel()
	r.log.Info("day rollover")
	r.reset.Rollover(ctx)
	r.hook(ctx)
}
