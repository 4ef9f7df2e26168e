package fixture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/companion/internal/domain"
)

func TestSourceFiltersByKindAndRange(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	src := New()
	require.NoError(t, src.Add(
		domain.Record{Kind: domain.KindSteps, Steps: &domain.StepRecord{Start: base.Add(10 * time.Hour), End: base.Add(11 * time.Hour), Count: 300, SourceApp: "a"}},
		domain.Record{Kind: domain.KindSteps, Steps: &domain.StepRecord{Start: base.Add(2 * time.Hour), End: base.Add(3 * time.Hour), Count: 100, SourceApp: "a"}},
		domain.Record{Kind: domain.KindSteps, Steps: &domain.StepRecord{Start: base.Add(30 * time.Hour), Count: 999, SourceApp: "a"}},
		domain.Record{Kind: domain.KindTotalCalories, Calories: &domain.CalorieRecord{Start: base.Add(time.Hour), Kilocalories: 50, SourceApp: "a"}},
	))

	records, err := src.ReadRecords(ctx, domain.KindSteps, domain.TimeRange{Start: base, End: base.Add(24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, int64(100), records[0].Steps.Count)
	require.NotEmpty(t, records[0].Steps.ID)

	_, err = src.ReadRecords(ctx, "heart_rate", domain.TimeRange{})
	require.ErrorIs(t, err, domain.ErrUnknownKind)
}

func TestSourceReturnsSessionsOverlappingRange(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	src := New()
	require.NoError(t, src.Add(
		domain.Record{Kind: domain.KindSleep, Sleep: &domain.SleepSession{ID: "night", Start: base.Add(-time.Hour), End: base.Add(7 * time.Hour), SourceApp: "a"}},
		domain.Record{Kind: domain.KindSleep, Sleep: &domain.SleepSession{ID: "before", Start: base.Add(-9 * time.Hour), End: base.Add(-2 * time.Hour), SourceApp: "a"}},
	))

	records, err := src.ReadRecords(ctx, domain.KindSleep, domain.TimeRange{Start: base, End: base.Add(24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "night", records[0].Sleep.ID)
}

func TestSourceAvailabilityAndFailures(t *testing.T) {
	ctx := context.Background()
	src := New()
	require.NoError(t, src.Available(ctx))

	src.SetAvailable(false)
	require.ErrorIs(t, src.Available(ctx), ErrUnavailable)

	boom := errors.New("binder died")
	src.FailReads(boom)
	_, err := src.ReadRecords(ctx, domain.KindSleep, domain.TimeRange{})
	require.ErrorIs(t, err, boom)
}

func TestLoadFixtureFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	content := `[
  {"recordId":"s1","kind":"steps","sourceApp":"com.sec.android.app.shealth","startTime":"2025-03-10T08:00:00Z","endTime":"2025-03-10T09:00:00Z","payload":{"count":4200}},
  {"kind":"exercise_session","sourceApp":"com.strava","startTime":"2025-03-10T07:00:00Z","endTime":"2025-03-10T07:45:00Z","payload":{"exerciseType":56}}
]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	src, err := Load(path)
	require.NoError(t, err)

	snapshot, err := domain.ReadSnapshot(context.Background(), src, domain.TimeRange{
		Start: time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, time.March, 11, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, snapshot.Steps, 1)
	require.Len(t, snapshot.Exercises, 1)
	require.NotEmpty(t, snapshot.Exercises[0].ID)
	require.Equal(t, domain.ExerciseRunning, snapshot.Exercises[0].ExerciseType)
}

func TestLoadRejectsBadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"kind":"weight"}]`), 0o644))

	_, err := Load(path)
	require.ErrorIs(t, err, domain.ErrUnknownKind)
}
