package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestMapExerciseSessions(t *testing.T) {
	title := "Morning run"
	sessions := []ExerciseSession{
		{ID: "hc-1", Start: at(10, 23, 30), End: at(11, 0, 15).Add(30 * time.Second), ExerciseType: ExerciseRunning, Title: &title, SourceApp: SourceSamsungHealth},
		{ID: "hc-2", Start: at(11, 8, 0), End: at(11, 8, 10), ExerciseType: 99999, SourceApp: "com.strava"},
	}

	records := MapExerciseSessions(sessions, paris)

	require.Len(t, records, 2)
	require.Equal(t, "hc-1", records[0].SourceRecordID)
	require.Equal(t, Date{2025, time.March, 10}, records[0].Date)
	require.Equal(t, "RUNNING", records[0].ActivityType)
	require.InDelta(t, 45.5, records[0].DurationMinutes, 1e-9)
	require.Equal(t, "2025-03-10T22:30:00Z", records[0].StartTime)
	require.Equal(t, &title, records[0].Title)
	require.Nil(t, records[0].Calories)
	require.Equal(t, OtherWorkout, records[1].ActivityType)
	require.Nil(t, records[1].Title)
}

func TestMapSleepSessionsUsesWakeDate(t *testing.T) {
	sessions := []SleepSession{
		{
			ID:    "night",
			Start: at(9, 23, 10),
			End:   at(10, 6, 40),
			Stages: []SleepStageSample{
				{Stage: StageAwake, Start: at(9, 23, 10), End: at(9, 23, 30)},
				{Stage: StageDeep, Start: at(9, 23, 30), End: at(10, 1, 0)},
				{Stage: StageOutOfBed, Start: at(10, 1, 0), End: at(10, 1, 5)},
				{Stage: 42, Start: at(10, 1, 5), End: at(10, 6, 40)},
			},
		},
		{ID: "nap", Start: at(10, 14, 0), End: at(10, 14, 25)},
	}

	records := MapSleepSessions(sessions, paris)

	require.Len(t, records, 2)
	require.Equal(t, Date{2025, time.March, 10}, records[0].Date)
	require.InDelta(t, 450.0, records[0].DurationMinutes, 1e-9)
	require.Equal(t, []string{"awake", "deep", "sleeping", "sleeping"}, stageNames(records[0].Stages))
	require.Nil(t, records[1].Stages)

	raw, err := json.Marshal(records[1])
	require.NoError(t, err)
	require.Contains(t, string(raw), `"stages":null`)
	require.Contains(t, string(raw), `"date":"2025-03-10"`)
}

func TestFormatInstantKeepsSubSecondPrecision(t *testing.T) {
	ts := time.Date(2025, time.March, 10, 8, 0, 0, 250_000_000, paris)

	formatted := FormatInstant(ts)
	require.Equal(t, "2025-03-10T07:00:00.25Z", formatted)
	parsed, err := time.Parse(time.RFC3339Nano, formatted)
	require.NoError(t, err)
	require.True(t, parsed.Equal(ts))

	require.Equal(t, "2025-03-10T07:00:00Z", FormatInstant(ts.Truncate(time.Second)))
}

func stageNames(stages []SleepStage) []string {
	names := make([]string, 0, len(stages))
	for _, s := range stages {
		names = append(names, s.Stage)
	}
	return names
}

func TestExerciseTaxonomy(t *testing.T) {
	cases := map[int]string{
		ExerciseWalking:           "WALKING",
		ExerciseBiking:            "BIKING",
		ExerciseSwimmingOpenWater: "SWIMMING",
		ExerciseStairClimbing:     "STAIR_CLIMBING",
		-1:                        OtherWorkout,
		0:                         OtherWorkout,
	}
	for code, want := range cases {
		require.Equal(t, want, ExerciseTypeName(code), "code %d", code)
	}
}

func TestExerciseLabels(t *testing.T) {
	require.Equal(t, "Marche", ExerciseTypeLabel(ExerciseWalking, language.French))
	require.Equal(t, "Escaliers", ExerciseTypeLabel(ExerciseStairClimbing, language.French))
	require.Equal(t, "Autre", ExerciseTypeLabel(12345, language.French))
	require.Equal(t, "Autre", ExerciseTypeLabel(12345, language.Und))
	require.Equal(t, "Cycling", ExerciseTypeLabel(ExerciseBiking, language.BritishEnglish))
	require.Equal(t, "Other", ExerciseTypeLabel(12345, language.English))
}

func TestSleepStageNames(t *testing.T) {
	require.Equal(t, "light", SleepStageName(StageLight))
	require.Equal(t, "rem", SleepStageName(StageREM))
	require.Equal(t, "sleeping", SleepStageName(StageSleeping))
	require.Equal(t, "sleeping", SleepStageName(StageUnknown))
}
