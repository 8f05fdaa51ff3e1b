// Package notify presents hydration reminders to the user.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rcliao/hydrosync/internal/model"
)

// Reminder is what a notifier presents.
type Reminder struct {
	IntakeML float64
	GoalML   float64
	Unit     model.UnitSystem
	At       time.Time
}

// Title is the notification title.
func (r Reminder) Title() string { return "Time to hydrate" }

// Body is the notification text.
func (r Reminder) Body() string {
	if r.GoalML <= 0 {
		return fmt.Sprintf("You've had %s today.", r.Unit.Format(r.IntakeML))
	}
	return fmt.Sprintf("You've had %s of %s today.", r.Unit.Format(r.IntakeML), r.Unit.Format(r.GoalML))
}

// Notifier presents a reminder. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}

// LogNotifier writes reminders to the log. It is the default presenter for
// a headless daemon.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, r Reminder) error {
	log := n.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info(r.Title(), "body", r.Body(), "intake_ml", r.IntakeML, "goal_ml", r.GoalML)
	return nil
}

// Multi fans a reminder out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, r Reminder) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
