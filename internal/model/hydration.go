// Package model defines the core hydration data types.
package model

import (
	"fmt"
	"strconv"
	"time"
)

// MillilitersPerFluidOunce is the size of one US fluid ounce.
const MillilitersPerFluidOunce = 29.5735295625

// DayLayout is the wire format for calendar days.
const DayLayout = "2006-01-02"

// UnitSystem selects how volumes are displayed and how large quick-add
// amounts are.
type UnitSystem int

const (
	Metric UnitSystem = iota
	Imperial
)

// IsMetric reports whether volumes are shown in milliliters.
func (u UnitSystem) IsMetric() bool {
	return u != Imperial
}

// String returns the wire form used by push-unit ("true" for metric).
func (u UnitSystem) String() string {
	return strconv.FormatBool(u.IsMetric())
}

// ParseUnitSystem parses the isMetric wire form.
func ParseUnitSystem(s string) (UnitSystem, error) {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return Metric, fmt.Errorf("invalid unit %q: %w", s, err)
	}
	return UnitFromMetric(b), nil
}

// UnitFromMetric maps an isMetric flag to a UnitSystem.
func UnitFromMetric(isMetric bool) UnitSystem {
	if isMetric {
		return Metric
	}
	return Imperial
}

// ToDisplay converts a canonical milliliter volume into this unit system.
func (u UnitSystem) ToDisplay(ml float64) float64 {
	if u.IsMetric() {
		return ml
	}
	return ml / MillilitersPerFluidOunce
}

// FromDisplay converts a volume expressed in this unit system to milliliters.
func (u UnitSystem) FromDisplay(v float64) float64 {
	if u.IsMetric() {
		return v
	}
	return v * MillilitersPerFluidOunce
}

// Label is the short unit name shown next to volumes.
func (u UnitSystem) Label() string {
	if u.IsMetric() {
		return "mL"
	}
	return "fl oz"
}

// Format renders a milliliter volume in this unit with its label.
func (u UnitSystem) Format(ml float64) string {
	if u.IsMetric() {
		return fmt.Sprintf("%.0f %s", ml, u.Label())
	}
	return fmt.Sprintf("%.1f %s", u.ToDisplay(ml), u.Label())
}

// IntakeRecord is a single recorded drink.
type IntakeRecord struct {
	ID         string    `json:"id"`
	AmountML   float64   `json:"amount_ml"`
	RecordedAt time.Time `json:"recorded_at"`
	Source     string    `json:"source,omitempty"`
}

// Sources of intake records.
const (
	SourceCLI       = "cli"
	SourceHTTP      = "http"
	SourceCompanion = "companion"
	SourceImport    = "import"
)

// ReminderConfig controls the reminder scheduler. Hours are local 0-23.
type ReminderConfig struct {
	Enabled           bool `json:"enabled"`
	IntervalMinutes   int  `json:"interval_minutes"`
	WindowStart       int  `json:"window_start"`
	WindowEnd         int  `json:"window_end"`
	RemindDespiteGoal bool `json:"remind_despite_goal"`
}

// DefaultReminderConfig returns the configuration used before the user
// changes anything.
func DefaultReminderConfig() ReminderConfig {
	return ReminderConfig{
		Enabled:         false,
		IntervalMinutes: 60,
		WindowStart:     8,
		WindowEnd:       22,
	}
}

// Interval returns the wake-up interval, falling back to the default for
// non-positive values.
func (c ReminderConfig) Interval() time.Duration {
	if c.IntervalMinutes <= 0 {
		return time.Duration(DefaultReminderConfig().IntervalMinutes) * time.Minute
	}
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// InWindow reports whether hour falls in [WindowStart, WindowEnd). A window
// whose start is after its end wraps past midnight; equal bounds cover the
// whole day.
func (c ReminderConfig) InWindow(hour int) bool {
	switch {
	case c.WindowStart == c.WindowEnd:
		return true
	case c.WindowStart < c.WindowEnd:
		return hour >= c.WindowStart && hour < c.WindowEnd
	default:
		return hour >= c.WindowStart || hour < c.WindowEnd
	}
}

// Validate checks hour bounds and the interval.
func (c ReminderConfig) Validate() error {
	if c.WindowStart < 0 || c.WindowStart > 23 {
		return fmt.Errorf("window start %d out of range 0-23", c.WindowStart)
	}
	if c.WindowEnd < 0 || c.WindowEnd > 23 {
		return fmt.Errorf("window end %d out of range 0-23", c.WindowEnd)
	}
	if c.IntervalMinutes <= 0 {
		return fmt.Errorf("interval must be positive, got %d", c.IntervalMinutes)
	}
	return nil
}

// QuickAdd holds the small/medium/large add buttons in display units.
type QuickAdd struct {
	Small  float64 `json:"small"`
	Medium float64 `json:"medium"`
	Large  float64 `json:"large"`
}

// QuickAddFor returns the quick-add amounts for a unit system.
func QuickAddFor(u UnitSystem) QuickAdd {
	if u.IsMetric() {
		return QuickAdd{Small: 250, Medium: 500, Large: 750}
	}
	return QuickAdd{Small: 8, Medium: 16, Large: 24}
}

// Streaks counts consecutive days on which the goal was reached.
type Streaks struct {
	Longest int `json:"longestStreak"`
	Current int `json:"currentStreak"`
}

// GoalMet reports whether intake reaches goal. A non-positive goal is
// treated as unconfigured and never met.
func GoalMet(intake, goal float64) bool {
	if goal <= 0 {
		return false
	}
	return intake >= goal
}

// StartOfDay returns local midnight of t's day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// FormatAmount renders a volume in its canonical base-10 text form.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
