package domain

import (
	"math"
	"time"
)

// walkingMET is the metabolic equivalent of casual walking. The full cost
// during movement is used, not the excess over resting.
const walkingMET = 3.0

// UserProfile feeds the passive activity estimate.
type UserProfile struct {
	StepsPerMinute int     `json:"stepsPerMinute"`
	WeightKg       float64 `json:"weightKg"`
	HeightCm       int     `json:"heightCm"`
	Age            int     `json:"age"`
	IsMale         bool    `json:"isMale"`
}

// Profile defaults applied when a value has never been set.
const (
	DefaultStepsPerMinute = 100
	DefaultWeightKg       = 70.0
	DefaultHeightCm       = 170
	DefaultAge            = 30
)

// DefaultProfile returns the profile used before the user edits anything.
func DefaultProfile() UserProfile {
	return UserProfile{
		StepsPerMinute: DefaultStepsPerMinute,
		WeightKg:       DefaultWeightKg,
		HeightCm:       DefaultHeightCm,
		Age:            DefaultAge,
		IsMale:         true,
	}
}

// DailyMetric is the per-day summary pushed to the server.
type DailyMetric struct {
	Date           Date `json:"date"`
	Steps          *int `json:"steps"`
	ActiveCalories *int `json:"activeCalories"`
	ActiveMinutes  *int `json:"activeMinutes"`
}

// EstimateInput is everything BuildDailyMetrics needs for one window.
type EstimateInput struct {
	Steps            map[Date]int64
	Exercises        []ExerciseSession
	ExerciseCalories map[Date]float64
	Profile          UserProfile
	Start            Date
	End              Date
	Location         *time.Location
}

// CaloriesPerMinute is the walking energy rate for a body weight:
// (MET × 3.5 × kg) / 200.
func CaloriesPerMinute(weightKg float64) float64 {
	return (walkingMET * 3.5 * weightKg) / 200.0
}

// SessionMinutes is the whole-minute duration of a session, truncated.
func SessionMinutes(s ExerciseSession) int64 {
	return int64(s.End.Sub(s.Start) / time.Minute)
}

// BuildDailyMetrics produces one metric per day in [Start, End] that has
// either steps or an exercise session, in ascending date order. Exercise
// steps are estimated from session minutes and deducted from the day total;
// the remaining passive steps are converted to minutes and calories with the
// walking MET model and added to the exercise contribution.
func BuildDailyMetrics(in EstimateInput) []DailyMetric {
	stepsPerMinute := in.Profile.StepsPerMinute
	if stepsPerMinute <= 0 {
		stepsPerMinute = DefaultStepsPerMinute
	}
	calPerMin := CaloriesPerMinute(in.Profile.WeightKg)

	minutesByDay := make(map[Date]int64)
	sessionsByDay := make(map[Date]int)
	for _, s := range in.Exercises {
		day := DateOf(s.Start, in.Location)
		minutesByDay[day] += SessionMinutes(s)
		sessionsByDay[day]++
	}

	var out []DailyMetric
	for _, day := range DatesBetween(in.Start, in.End) {
		daySteps := in.Steps[day]
		if daySteps == 0 && sessionsByDay[day] == 0 {
			continue
		}

		exerciseMinutes := minutesByDay[day]
		exerciseKcal := in.ExerciseCalories[day]

		estimatedExerciseSteps := exerciseMinutes * int64(stepsPerMinute)
		passiveSteps := max(0, daySteps-estimatedExerciseSteps)
		passiveMinutes := float64(passiveSteps) / float64(stepsPerMinute)
		passiveCalories := passiveMinutes * calPerMin

		steps := int(daySteps)
		activeCalories := int(math.Round(passiveCalories + exerciseKcal))
		activeMinutes := int(math.Round(passiveMinutes + float64(exerciseMinutes)))

		out = append(out, DailyMetric{
			Date:           day,
			Steps:          &steps,
			ActiveCalories: &activeCalories,
			ActiveMinutes:  &activeMinutes,
		})
	}
	return out
}
