package domain

import (
	"time"
)

// ActivityRecord is the wire shape of an exercise session.
type ActivityRecord struct {
	SourceRecordID  string   `json:"hcRecordId"`
	Date            Date     `json:"date"`
	StartTime       string   `json:"startTime"`
	EndTime         string   `json:"endTime"`
	ActivityType    string   `json:"activityType"`
	Title           *string  `json:"title"`
	DurationMinutes float64  `json:"durationMinutes"`
	Calories        *float64 `json:"calories"`
	Distance        *float64 `json:"distance"`
	HeartRateAvg    *int     `json:"heartRateAvg"`
	SourceApp       string   `json:"sourceApp"`
}

// SleepStage is one mapped stage interval.
type SleepStage struct {
	Stage     string `json:"stage"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// SleepRecord is the wire shape of a sleep session. Stages is nil when the
// session carried no stage data.
type SleepRecord struct {
	Date            Date         `json:"date"`
	StartTime       string       `json:"startTime"`
	EndTime         string       `json:"endTime"`
	DurationMinutes float64      `json:"durationMinutes"`
	Score           *int         `json:"score"`
	Stages          []SleepStage `json:"stages"`
}

// FormatInstant renders an instant the way the server expects it.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// MapExerciseSessions projects sessions into activity records dated by their
// local start day.
func MapExerciseSessions(sessions []ExerciseSession, loc *time.Location) []ActivityRecord {
	out := make([]ActivityRecord, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, ActivityRecord{
			SourceRecordID:  s.ID,
			Date:            DateOf(s.Start, loc),
			StartTime:       FormatInstant(s.Start),
			EndTime:         FormatInstant(s.End),
			ActivityType:    ExerciseTypeName(s.ExerciseType),
			Title:           s.Title,
			DurationMinutes: s.End.Sub(s.Start).Minutes(),
			SourceApp:       s.SourceApp,
		})
	}
	return out
}

// MapSleepSessions projects sessions into sleep records dated by the local
// day they end on, so a night crossing midnight belongs to the morning after.
func MapSleepSessions(sessions []SleepSession, loc *time.Location) []SleepRecord {
	out := make([]SleepRecord, 0, len(sessions))
	for _, s := range sessions {
		var stages []SleepStage
		for _, st := range s.Stages {
			stages = append(stages, SleepStage{
				Stage:     SleepStageName(st.Stage),
				StartTime: FormatInstant(st.Start),
				EndTime:   FormatInstant(st.End),
			})
		}
		out = append(out, SleepRecord{
			Date:            DateOf(s.End, loc),
			StartTime:       FormatInstant(s.Start),
			EndTime:         FormatInstant(s.End),
			DurationMinutes: s.End.Sub(s.Start).Minutes(),
			Stages:          stages,
		})
	}
	return out
}
