// Package store provides the health-data storage interface and SQLite implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rcliao/hydrosync/internal/model"
)

// ErrNegativeAmount is returned when an intake record would subtract volume.
var ErrNegativeAmount = errors.New("intake amount must not be negative")

// AppendParams holds parameters for recording a drink.
type AppendParams struct {
	AmountML float64
	At       time.Time // zero means now
	Source   string
}

// IntakeStore is the health-data collaborator: an append-only log of
// intake records answering range queries.
type IntakeStore interface {
	// AppendIntake records a drink. Returns the stored record.
	AppendIntake(ctx context.Context, p AppendParams) (*model.IntakeRecord, error)

	// TotalBetween sums recorded milliliters in [start, end).
	TotalBetween(ctx context.Context, start, end time.Time) (float64, error)

	// DailyTotals sums recorded milliliters in [start, end) per local day
	// in loc, keyed by model.DayLayout. Days without records are absent.
	DailyTotals(ctx context.Context, start, end time.Time, loc *time.Location) (map[string]float64, error)

	// FirstRecordAt returns the time of the oldest record.
	FirstRecordAt(ctx context.Context) (time.Time, bool, error)
}

// SettingsStore is a string key-value table.
type SettingsStore interface {
	// GetSetting returns the value for key and whether it exists.
	GetSetting(ctx context.Context, key string) (string, bool, error)

	// SetSetting writes key, replacing any previous value.
	SetSetting(ctx context.Context, key, value string) error
}
