package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath      string  `json:"db_path"`
	DBSizeBytes int64   `json:"db_size_bytes"`
	Records     int     `json:"records"`
	TotalML     float64 `json:"total_ml"`
	Settings    int     `json:"settings"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(amount_ml), 0) FROM intake_records`).Scan(&st.Records, &st.TotalML)
	if err != nil {
		return st, err
	}
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM settings`).Scan(&st.Settings)

	return st, nil
}
