// Package domain holds the telemetry model and the pure reconciliation,
// estimation and mapping logic applied to each sync window.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RecordKind identifies one of the raw record families read from the health store.
type RecordKind string

const (
	KindSteps         RecordKind = "steps"
	KindExercise      RecordKind = "exercise_session"
	KindTotalCalories RecordKind = "total_calories"
	KindSleep         RecordKind = "sleep_session"
)

// AllKinds lists every kind read during a sync window, in read order.
var AllKinds = []RecordKind{KindSteps, KindExercise, KindTotalCalories, KindSleep}

// ErrUnknownKind is returned when a record kind is not one of AllKinds.
var ErrUnknownKind = errors.New("unknown record kind")

// Valid reports whether k is a known record kind.
func (k RecordKind) Valid() bool {
	switch k {
	case KindSteps, KindExercise, KindTotalCalories, KindSleep:
		return true
	}
	return false
}

// StepRecord is a step count bucket written by one source application.
type StepRecord struct {
	ID        string
	Start     time.Time
	End       time.Time
	Count     int64
	SourceApp string
}

// Source returns the writing application.
func (r StepRecord) Source() string { return r.SourceApp }

// ExerciseSession is a logged workout.
type ExerciseSession struct {
	ID           string
	Start        time.Time
	End          time.Time
	ExerciseType int
	Title        *string
	SourceApp    string
}

// Source returns the writing application.
func (s ExerciseSession) Source() string { return s.SourceApp }

// CalorieRecord carries total energy burned during exercise, in kilocalories.
type CalorieRecord struct {
	ID           string
	Start        time.Time
	End          time.Time
	Kilocalories float64
	SourceApp    string
}

// Source returns the writing application.
func (r CalorieRecord) Source() string { return r.SourceApp }

// SleepStageSample is one stage interval inside a sleep session.
type SleepStageSample struct {
	Stage int
	Start time.Time
	End   time.Time
}

// SleepSession is a night (or nap) with optional stage breakdown.
type SleepSession struct {
	ID        string
	Start     time.Time
	End       time.Time
	Stages    []SleepStageSample
	SourceApp string
}

// Source returns the writing application.
func (s SleepSession) Source() string { return s.SourceApp }

// Record is a tagged union over the raw record kinds. Exactly the payload
// matching Kind is set.
type Record struct {
	Kind     RecordKind
	Steps    *StepRecord
	Exercise *ExerciseSession
	Calories *CalorieRecord
	Sleep    *SleepSession
}

// Source returns the writing application of whichever payload is set.
func (r Record) Source() string {
	switch r.Kind {
	case KindSteps:
		if r.Steps != nil {
			return r.Steps.SourceApp
		}
	case KindExercise:
		if r.Exercise != nil {
			return r.Exercise.SourceApp
		}
	case KindTotalCalories:
		if r.Calories != nil {
			return r.Calories.SourceApp
		}
	case KindSleep:
		if r.Sleep != nil {
			return r.Sleep.SourceApp
		}
	}
	return ""
}

// TimeRange is the half-open interval [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Overlaps reports whether the interval [start, end) shares any instant with
// the range. A record with no duration matches when its start is inside.
func (r TimeRange) Overlaps(start, end time.Time) bool {
	if r.Contains(start) {
		return true
	}
	return start.Before(r.End) && end.After(r.Start)
}

// DayRange covers start midnight through the midnight following end, in loc.
func DayRange(start, end Date, loc *time.Location) TimeRange {
	return TimeRange{
		Start: start.StartOfDay(loc),
		End:   end.AddDays(1).StartOfDay(loc),
	}
}

// HealthSource is the read side of the platform health store.
type HealthSource interface {
	// Available returns an error when the store cannot be used on this host.
	Available(ctx context.Context) error
	// ReadRecords returns every record of kind whose interval overlaps tr,
	// including sessions that began before tr.Start and end inside it.
	ReadRecords(ctx context.Context, kind RecordKind, tr TimeRange) ([]Record, error)
}

// Snapshot groups the raw records read for one window by kind.
type Snapshot struct {
	Steps     []StepRecord
	Exercises []ExerciseSession
	Calories  []CalorieRecord
	Sleep     []SleepSession
}

// Partition splits a mixed record list into a Snapshot. Records whose payload
// does not match their kind are skipped.
func Partition(records []Record) Snapshot {
	var s Snapshot
	for _, r := range records {
		switch r.Kind {
		case KindSteps:
			if r.Steps != nil {
				s.Steps = append(s.Steps, *r.Steps)
			}
		case KindExercise:
			if r.Exercise != nil {
				s.Exercises = append(s.Exercises, *r.Exercise)
			}
		case KindTotalCalories:
			if r.Calories != nil {
				s.Calories = append(s.Calories, *r.Calories)
			}
		case KindSleep:
			if r.Sleep != nil {
				s.Sleep = append(s.Sleep, *r.Sleep)
			}
		}
	}
	return s
}

// ReadSnapshot reads every kind in AllKinds for tr.
func ReadSnapshot(ctx context.Context, source HealthSource, tr TimeRange) (Snapshot, error) {
	var all []Record
	for _, kind := range AllKinds {
		records, err := source.ReadRecords(ctx, kind, tr)
		if err != nil {
			return Snapshot{}, fmt.Errorf("read %s: %w", kind, err)
		}
		all = append(all, records...)
	}
	return Partition(all), nil
}
