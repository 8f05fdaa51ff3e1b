package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/hydrosync/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	require.NoError(t, err, "create store")
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndTotal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

	rec, err := s.AppendIntake(ctx, AppendParams{AmountML: 250, At: base, Source: model.SourceCLI})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, 250.0, rec.AmountML)
	assert.True(t, rec.RecordedAt.Equal(base))

	_, err = s.AppendIntake(ctx, AppendParams{AmountML: 500, At: base.Add(2 * time.Hour)})
	require.NoError(t, err)
	// Outside the queried range.
	_, err = s.AppendIntake(ctx, AppendParams{AmountML: 1000, At: base.Add(24 * time.Hour)})
	require.NoError(t, err)

	total, err := s.TotalBetween(ctx, base, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 750.0, total)
}

func TestTotalBetweenEmpty(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	total, err := s.TotalBetween(context.Background(), now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestAppendRejectsNegative(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AppendIntake(context.Background(), AppendParams{AmountML: -1})
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestAppendIsMonotonic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	start := time.Now().Add(-time.Minute)

	prev := 0.0
	for _, amount := range []float64{0, 100, 0.5, 330, 0} {
		_, err := s.AppendIntake(ctx, AppendParams{AmountML: amount})
		require.NoError(t, err)
		total, err := s.TotalBetween(ctx, start, time.Now().Add(time.Minute))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, total, prev)
		prev = total
	}
}

func TestDailyTotals(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	loc := time.FixedZone("test", -5*3600)

	day1 := time.Date(2026, 2, 1, 10, 0, 0, 0, loc)
	day2 := time.Date(2026, 2, 2, 23, 30, 0, 0, loc)
	for _, p := range []AppendParams{
		{AmountML: 200, At: day1},
		{AmountML: 300, At: day1.Add(time.Hour)},
		{AmountML: 400, At: day2},
	} {
		_, err := s.AppendIntake(ctx, p)
		require.NoError(t, err)
	}

	totals, err := s.DailyTotals(ctx,
		time.Date(2026, 2, 1, 0, 0, 0, 0, loc),
		time.Date(2026, 3, 1, 0, 0, 0, 0, loc), loc)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"2026-02-01": 500, "2026-02-02": 400}, totals)
}

func TestFirstRecordAt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.FirstRecordAt(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.AppendIntake(ctx, AppendParams{AmountML: 1, At: first.Add(time.Hour)})
	s.AppendIntake(ctx, AppendParams{AmountML: 1, At: first})

	got, ok, err := s.FirstRecordAt(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Equal(first))
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.GetSetting(ctx, "goal")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetSetting(ctx, "goal", "2000"))
	require.NoError(t, s.SetSetting(ctx, "goal", "2500"))

	v, ok, err := s.GetSetting(ctx, "goal")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2500", v)
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)
	at := time.Date(2026, 4, 4, 12, 0, 0, 0, time.UTC)
	src.AppendIntake(ctx, AppendParams{AmountML: 250, At: at, Source: model.SourceHTTP})
	src.AppendIntake(ctx, AppendParams{AmountML: 750, At: at.Add(time.Hour), Source: model.SourceCompanion})

	records, err := src.ExportAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 250.0, records[0].AmountML)
	assert.Equal(t, model.SourceCompanion, records[1].Source)

	dst := newTestStore(t)
	n, err := dst.Import(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Second import is a no-op.
	n, err = dst.Import(ctx, records)
	require.NoError(t, err)
	assert.Zero(t, n)

	total, err := dst.TotalBetween(ctx, at, at.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1000.0, total)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "stats.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	s.AppendIntake(ctx, AppendParams{AmountML: 100})
	s.AppendIntake(ctx, AppendParams{AmountML: 150})
	s.SetSetting(ctx, "unit", "true")

	st, err := s.Stats(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Records)
	assert.Equal(t, 250.0, st.TotalML)
	assert.Equal(t, 1, st.Settings)
	assert.Positive(t, st.DBSizeBytes)
}
