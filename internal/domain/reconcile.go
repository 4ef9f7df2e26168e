package domain

import (
	"slices"
	"time"
)

// Source application identifiers used by the default policy.
const (
	SourceGoogleFit     = "com.google.android.apps.fitness"
	SourceSamsungHealth = "com.sec.android.app.shealth"
)

// SourcePolicy decides which writers are trusted when several applications
// report the same physical activity.
type SourcePolicy struct {
	// Ignored sources are always dropped (known duplicators).
	Ignored []string
	// PreferredSteps is scanned in order; the first one present on a day
	// becomes the only step source counted for that day.
	PreferredSteps []string
}

// DefaultSourcePolicy drops Google Fit and prefers Samsung Health for steps.
func DefaultSourcePolicy() SourcePolicy {
	return SourcePolicy{
		Ignored:        []string{SourceGoogleFit},
		PreferredSteps: []string{SourceSamsungHealth},
	}
}

func (p SourcePolicy) ignored(source string) bool {
	return slices.Contains(p.Ignored, source)
}

// FilterIgnored drops every record written by an ignored source.
func FilterIgnored[T interface{ Source() string }](records []T, p SourcePolicy) []T {
	out := make([]T, 0, len(records))
	for _, r := range records {
		if !p.ignored(r.Source()) {
			out = append(out, r)
		}
	}
	return out
}

// DeduplicateSteps keeps, for each local day, only the records of the first
// preferred source present that day. Days without any preferred source keep
// all of their records, which can over-count when two non-preferred writers
// both report full-day totals.
func DeduplicateSteps(records []StepRecord, p SourcePolicy, loc *time.Location) []StepRecord {
	byDay := make(map[Date][]StepRecord)
	var order []Date
	for _, r := range records {
		day := DateOf(r.Start, loc)
		if _, seen := byDay[day]; !seen {
			order = append(order, day)
		}
		byDay[day] = append(byDay[day], r)
	}

	out := make([]StepRecord, 0, len(records))
	for _, day := range order {
		dayRecords := byDay[day]
		preferred, ok := firstPreferred(dayRecords, p.PreferredSteps)
		if !ok {
			out = append(out, dayRecords...)
			continue
		}
		for _, r := range dayRecords {
			if r.SourceApp == preferred {
				out = append(out, r)
			}
		}
	}
	return out
}

func firstPreferred(records []StepRecord, preferred []string) (string, bool) {
	for _, source := range preferred {
		for _, r := range records {
			if r.SourceApp == source {
				return source, true
			}
		}
	}
	return "", false
}

// ReconcileSteps filters, deduplicates and sums step records per local day.
func ReconcileSteps(records []StepRecord, p SourcePolicy, loc *time.Location) map[Date]int64 {
	totals := make(map[Date]int64)
	for _, r := range DeduplicateSteps(FilterIgnored(records, p), p, loc) {
		totals[DateOf(r.Start, loc)] += r.Count
	}
	return totals
}

// SumCalories filters calorie records and sums kilocalories per local day.
func SumCalories(records []CalorieRecord, p SourcePolicy, loc *time.Location) map[Date]float64 {
	totals := make(map[Date]float64)
	for _, r := range FilterIgnored(records, p) {
		totals[DateOf(r.Start, loc)] += r.Kilocalories
	}
	return totals
}

// Reconciled is a snapshot after source filtering and step deduplication.
type Reconciled struct {
	Steps     map[Date]int64
	Exercises []ExerciseSession
	Calories  map[Date]float64
	Sleep     []SleepSession
}

// Reconcile applies the policy to every kind in the snapshot. Sessions and
// calories are filtered only; steps are also deduplicated by priority.
func Reconcile(s Snapshot, p SourcePolicy, loc *time.Location) Reconciled {
	return Reconciled{
		Steps:     ReconcileSteps(s.Steps, p, loc),
		Exercises: FilterIgnored(s.Exercises, p),
		Calories:  SumCalories(s.Calories, p, loc),
		Sleep:     FilterIgnored(s.Sleep, p),
	}
}
