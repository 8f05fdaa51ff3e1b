package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/hydrosync/internal/model"
)

// SQLiteStore implements IntakeStore and SettingsStore using SQLite.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex // guards entropy
	entropy *rand.Rand
}

var (
	_ IntakeStore   = (*SQLiteStore)(nil)
	_ SettingsStore = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// The HTTP service writes concurrently; one connection keeps SQLite from
	// returning SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID(at time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS intake_records (
		id          TEXT PRIMARY KEY,
		amount_ml   REAL NOT NULL,
		recorded_ms INTEGER NOT NULL,
		source      TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_intake_recorded ON intake_records(recorded_ms);

	CREATE TABLE IF NOT EXISTS settings (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) AppendIntake(ctx context.Context, p AppendParams) (*model.IntakeRecord, error) {
	if p.AmountML < 0 {
		return nil, fmt.Errorf("%w: %v", ErrNegativeAmount, p.AmountML)
	}
	now := time.Now().UTC()
	at := p.At
	if at.IsZero() {
		at = now
	}
	id := s.newID(at)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO intake_records (id, amount_ml, recorded_ms, source, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, p.AmountML, at.UnixMilli(), p.Source, now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("insert intake: %w", err)
	}

	return &model.IntakeRecord{
		ID:         id,
		AmountML:   p.AmountML,
		RecordedAt: time.UnixMilli(at.UnixMilli()).UTC(),
		Source:     p.Source,
	}, nil
}

func (s *SQLiteStore) TotalBetween(ctx context.Context, start, end time.Time) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT SUM(amount_ml) FROM intake_records
		 WHERE recorded_ms >= ? AND recorded_ms < ?`,
		start.UnixMilli(), end.UnixMilli()).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum intake: %w", err)
	}
	return total.Float64, nil
}

func (s *SQLiteStore) DailyTotals(ctx context.Context, start, end time.Time, loc *time.Location) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT amount_ml, recorded_ms FROM intake_records
		 WHERE recorded_ms >= ? AND recorded_ms < ?`,
		start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query intake: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]float64)
	for rows.Next() {
		var amount float64
		var ms int64
		if err := rows.Scan(&amount, &ms); err != nil {
			return nil, err
		}
		day := time.UnixMilli(ms).In(loc).Format(model.DayLayout)
		totals[day] += amount
	}
	return totals, rows.Err()
}

func (s *SQLiteStore) FirstRecordAt(ctx context.Context) (time.Time, bool, error) {
	var ms sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MIN(recorded_ms) FROM intake_records`).Scan(&ms); err != nil {
		return time.Time{}, false, fmt.Errorf("first record: %w", err)
	}
	if !ms.Valid {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms.Int64).UTC(), true, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (model.IntakeRecord, error) {
	var r model.IntakeRecord
	var ms int64
	if err := row.Scan(&r.ID, &r.AmountML, &ms, &r.Source); err != nil {
		return r, err
	}
	r.RecordedAt = time.UnixMilli(ms).UTC()
	return r, nil
}
