package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rcliao/hydrosync/internal/model"
)

// ExportAll returns every intake record, oldest first.
func (s *SQLiteStore) ExportAll(ctx context.Context) ([]model.IntakeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, amount_ml, recorded_ms, source FROM intake_records ORDER BY recorded_ms, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.IntakeRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Import stores records from an export. Records whose ID already exists are
// skipped, so importing the same export twice is harmless.
func (s *SQLiteStore) Import(ctx context.Context, records []model.IntakeRecord) (int, error) {
	imported := 0
	for _, r := range records {
		if r.AmountML < 0 {
			return imported, fmt.Errorf("record %s: %w", r.ID, ErrNegativeAmount)
		}
		if r.ID == "" {
			if _, err := s.AppendIntake(ctx, AppendParams{AmountML: r.AmountML, At: r.RecordedAt, Source: model.SourceImport}); err != nil {
				return imported, err
			}
			imported++
			continue
		}
		res, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO intake_records (id, amount_ml, recorded_ms, source, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			r.ID, r.AmountML, r.RecordedAt.UnixMilli(), r.Source, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return imported, fmt.Errorf("import %s: %w", r.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			imported++
		}
	}
	return imported, nil
}
