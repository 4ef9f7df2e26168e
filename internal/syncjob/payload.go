package syncjob

import (
	"time"

	"example.com/companion/internal/backend"
	"example.com/companion/internal/domain"
)

// Window is the inclusive range of local days covered by a run.
type Window struct {
	Start domain.Date
	End   domain.Date
}

// Days is the number of calendar days in the window.
func (w Window) Days() int {
	return len(domain.DatesBetween(w.Start, w.End))
}

// PeriodicWindow starts at the local date of the last sync, or yesterday when
// no sync has happened, and ends today. Yesterday is re-sent on purpose so
// late health-store writes are picked up.
func PeriodicWindow(lastSync time.Time, hasLastSync bool, now time.Time, loc *time.Location) Window {
	today := domain.DateOf(now, loc)
	start := today.AddDays(-1)
	if hasLastSync {
		start = domain.DateOf(lastSync, loc)
		if start.After(today) {
			start = today
		}
	}
	return Window{Start: start, End: today}
}

// ImportWindow covers the last ImportDays days through today.
func ImportWindow(now time.Time, loc *time.Location) Window {
	today := domain.DateOf(now, loc)
	return Window{Start: today.AddDays(-ImportDays), End: today}
}

// BuildRequest runs reconciliation, estimation and mapping over a snapshot.
func BuildRequest(snapshot domain.Snapshot, policy domain.SourcePolicy, profile domain.UserProfile, window Window, loc *time.Location, device string, syncedAt time.Time) backend.HealthSyncRequest {
	reconciled := domain.Reconcile(snapshot, policy, loc)
	metrics := domain.BuildDailyMetrics(domain.EstimateInput{
		Steps:            reconciled.Steps,
		Exercises:        reconciled.Exercises,
		ExerciseCalories: reconciled.Calories,
		Profile:          profile,
		Start:            window.Start,
		End:              window.End,
		Location:         loc,
	})
	if metrics == nil {
		metrics = []domain.DailyMetric{}
	}
	return backend.HealthSyncRequest{
		DeviceName:    device,
		SyncedAt:      domain.FormatInstant(syncedAt),
		DailyMetrics:  metrics,
		Activities:    domain.MapExerciseSessions(reconciled.Exercises, loc),
		SleepSessions: domain.MapSleepSessions(reconciled.Sleep, loc),
	}
}
