package domain

import "golang.org/x/text/language"

// Health store exercise type codes with a canonical mapping.
const (
	ExerciseBiking            = 8
	ExerciseElliptical        = 25
	ExerciseHiking            = 37
	ExerciseRunning           = 56
	ExerciseStairClimbing     = 68
	ExerciseSwimmingOpenWater = 73
	ExerciseWalking           = 79
	ExerciseWeightlifting     = 81
	ExerciseYoga              = 83
)

// Health store sleep stage codes.
const (
	StageUnknown  = 0
	StageAwake    = 1
	StageSleeping = 2
	StageOutOfBed = 3
	StageLight    = 4
	StageDeep     = 5
	StageREM      = 6
)

// OtherWorkout is the activity type for any unmapped exercise code.
const OtherWorkout = "OTHER_WORKOUT"

type exerciseEntry struct {
	name   string
	labels map[language.Tag]string
}

var exerciseTypes = map[int]exerciseEntry{
	ExerciseWalking:           {"WALKING", labels("Marche", "Walking")},
	ExerciseRunning:           {"RUNNING", labels("Course", "Running")},
	ExerciseBiking:            {"BIKING", labels("Velo", "Cycling")},
	ExerciseSwimmingOpenWater: {"SWIMMING", labels("Natation", "Swimming")},
	ExerciseWeightlifting:     {"WEIGHTLIFTING", labels("Musculation", "Weightlifting")},
	ExerciseYoga:              {"YOGA", labels("Yoga", "Yoga")},
	ExerciseHiking:            {"HIKING", labels("Randonnee", "Hiking")},
	ExerciseElliptical:        {"ELLIPTICAL", labels("Elliptique", "Elliptical")},
	ExerciseStairClimbing:     {"STAIR_CLIMBING", labels("Escaliers", "Stairs")},
}

var otherLabels = labels("Autre", "Other")

func labels(fr, en string) map[language.Tag]string {
	return map[language.Tag]string{language.French: fr, language.English: en}
}

// French is listed first so unmatched requests fall back to it.
var labelMatcher = language.NewMatcher([]language.Tag{language.French, language.English})

// ExerciseTypeName maps a store code to its canonical wire name. Unknown codes
// map to OtherWorkout.
func ExerciseTypeName(code int) string {
	if e, ok := exerciseTypes[code]; ok {
		return e.name
	}
	return OtherWorkout
}

// ExerciseTypeLabel returns the display label of a store code in the closest
// supported language. Unknown codes yield "Autre" (or its translation).
func ExerciseTypeLabel(code int, lang language.Tag) string {
	_, idx, _ := labelMatcher.Match(lang)
	tag := language.French
	if idx == 1 {
		tag = language.English
	}
	if e, ok := exerciseTypes[code]; ok {
		return e.labels[tag]
	}
	return otherLabels[tag]
}

// SleepStageName maps a store stage code to its wire name. Unknown codes,
// including out-of-bed, are reported as "sleeping".
func SleepStageName(code int) string {
	switch code {
	case StageAwake:
		return "awake"
	case StageLight:
		return "light"
	case StageDeep:
		return "deep"
	case StageREM:
		return "rem"
	default:
		return "sleeping"
	}
}
