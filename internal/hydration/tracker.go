// Package hydration derives intake totals from the health-data store and
// keeps the shared intake cache in step with it.
package hydration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rcliao/hydrosync/internal/model"
	"github.com/rcliao/hydrosync/internal/state"
	"github.com/rcliao/hydrosync/internal/store"
)

// ErrFutureDate is returned when intake is recorded for a day that has not
// started yet.
var ErrFutureDate = errors.New("date is in the future")

// Tracker is the only writer of intake records and of the cached intake.
// The cached value is never trusted on its own: every read and every write
// re-derives the total from the store.
type Tracker struct {
	records store.IntakeStore
	state   state.Store
	loc     *time.Location
	now     func() time.Time
	log     *slog.Logger

	// mu serializes append-then-read so a concurrent writer can only make
	// the re-read observe some valid total.
	mu sync.Mutex
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLocation sets the zone that defines "today".
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) {
		if loc != nil {
			t.loc = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}

// NewTracker returns a Tracker over records and st.
func NewTracker(records store.IntakeStore, st state.Store, opts ...Option) *Tracker {
	t := &Tracker{
		records: records,
		state:   st,
		loc:     time.Local,
		now:     time.Now,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Location returns the zone that defines "today".
func (t *Tracker) Location() *time.Location { return t.loc }

// Now returns the tracker's current time in its location.
func (t *Tracker) Now() time.Time { return t.now().In(t.loc) }

// Today reads today's total, refreshes the cache and returns the total in
// milliliters. A failing store reads as zero.
func (t *Tracker) Today(ctx context.Context) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refreshLocked(ctx)
}

func (t *Tracker) refreshLocked(ctx context.Context) float64 {
	now := t.Now()
	total := t.sum(ctx, model.StartOfDay(now, t.loc), now.Add(time.Millisecond))
	if err := t.state.SetIntake(ctx, total); err != nil {
		t.log.Warn("cache intake", "error", err)
	}
	return total
}

func (t *Tracker) sum(ctx context.Context, start, end time.Time) float64 {
	total, err := t.records.TotalBetween(ctx, start, end)
	if err != nil {
		t.log.Warn("read intake total", "start", start, "end", end, "error", err)
		return 0
	}
	if total < 0 {
		return 0
	}
	return total
}

// Add records ml for now and returns the new total for today.
func (t *Tracker) Add(ctx context.Context, ml float64, source string) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.records.AppendIntake(ctx, store.AppendParams{AmountML: ml, At: t.now(), Source: source}); err != nil {
		return 0, fmt.Errorf("append intake: %w", err)
	}
	return t.refreshLocked(ctx), nil
}

// AddOn records ml on day. Today is recorded at the current time, earlier
// days at local noon. It returns the new total for day.
func (t *Tracker) AddOn(ctx context.Context, day time.Time, ml float64, source string) (float64, error) {
	now := t.Now()
	start := model.StartOfDay(day, t.loc)
	today := model.StartOfDay(now, t.loc)
	switch {
	case start.After(today):
		return 0, fmt.Errorf("%w: %s", ErrFutureDate, start.Format(model.DayLayout))
	case start.Equal(today):
		return t.Add(ctx, ml, source)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	at := start.Add(12 * time.Hour)
	if _, err := t.records.AppendIntake(ctx, store.AppendParams{AmountML: ml, At: at, Source: source}); err != nil {
		return 0, fmt.Errorf("append intake: %w", err)
	}
	return t.sum(ctx, start, start.AddDate(0, 0, 1)), nil
}

// DayTotal returns the total for the local day containing day. Today's
// total also refreshes the cache.
func (t *Tracker) DayTotal(ctx context.Context, day time.Time) float64 {
	start := model.StartOfDay(day, t.loc)
	if start.Equal(model.StartOfDay(t.Now(), t.loc)) {
		return t.Today(ctx)
	}
	return t.sum(ctx, start, start.AddDate(0, 0, 1))
}

// Month returns a total for every day of the month containing day, keyed
// by model.DayLayout.
func (t *Tracker) Month(ctx context.Context, day time.Time) map[string]float64 {
	d := day.In(t.loc)
	first := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, t.loc)
	next := first.AddDate(0, 1, 0)

	totals, err := t.records.DailyTotals(ctx, first, next, t.loc)
	if err != nil {
		t.log.Warn("read monthly totals", "month", first.Format("2006-01"), "error", err)
		totals = nil
	}

	out := make(map[string]float64)
	for cur := first; cur.Before(next); cur = cur.AddDate(0, 0, 1) {
		key := cur.Format(model.DayLayout)
		out[key] = totals[key]
	}
	return out
}

// Streaks counts runs of days on which the goal was met. The current streak
// ends today when today's goal is met, otherwise yesterday.
func (t *Tracker) Streaks(ctx context.Context) (model.Streaks, error) {
	goal, err := t.state.Goal(ctx)
	if err != nil {
		return model.Streaks{}, err
	}
	if goal <= 0 {
		return model.Streaks{}, nil
	}

	first, ok, err := t.records.FirstRecordAt(ctx)
	if err != nil {
		t.log.Warn("read first record", "error", err)
		return model.Streaks{}, nil
	}
	if !ok {
		return model.Streaks{}, nil
	}

	today := model.StartOfDay(t.Now(), t.loc)
	start := model.StartOfDay(first, t.loc)
	end := today.AddDate(0, 0, 1)
	totals, err := t.records.DailyTotals(ctx, start, end, t.loc)
	if err != nil {
		t.log.Warn("read daily totals", "error", err)
		return model.Streaks{}, nil
	}

	return computeStreaks(totals, goal, start, today), nil
}

func computeStreaks(totals map[string]float64, goal float64, start, today time.Time) model.Streaks {
	var s model.Streaks
	run := 0
	for cur := start; !cur.After(today); cur = cur.AddDate(0, 0, 1) {
		if model.GoalMet(totals[cur.Format(model.DayLayout)], goal) {
			run++
			if run > s.Longest {
				s.Longest = run
			}
		} else {
			run = 0
		}
	}

	cur := today
	if !model.GoalMet(totals[cur.Format(model.DayLayout)], goal) {
		cur = cur.AddDate(0, 0, -1)
	}
	for !cur.Before(start) && model.GoalMet(totals[cur.Format(model.DayLayout)], goal) {
		s.Current++
		cur = cur.AddDate(0, 0, -1)
	}
	return s
}

// QuickAdd returns the quick-add amounts for the current unit system.
func (t *Tracker) QuickAdd(ctx context.Context) model.QuickAdd {
	unit, err := t.state.Unit(ctx)
	if err != nil {
		t.log.Warn("read unit", "error", err)
	}
	return model.QuickAddFor(unit)
}

// Rollover clears the cached intake at the start of a new day.
func (t *Tracker) Rollover(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.state.SetIntake(ctx, 0); err != nil {
		t.log.Warn("clear cached intake", "error", err)
	}
}

// ParseDay parses a YYYY-MM-DD day in loc.
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(model.DayLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, use YYYY-MM-DD: %w", s, err)
	}
	return d, nil
}
