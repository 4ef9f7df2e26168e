package backend

import "example.com/companion/internal/domain"

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type LoginResponse struct {
	Token     string   `json:"accessToken"`
	User      UserInfo `json:"user"`
	ExpiresAt *string  `json:"expiresAt,omitempty"`
}

// HealthSyncRequest is the payload pushed for one sync window.
type HealthSyncRequest struct {
	DeviceName    string                  `json:"deviceName"`
	SyncedAt      string                  `json:"syncedAt"`
	DailyMetrics  []domain.DailyMetric    `json:"dailyMetrics"`
	Activities    []domain.ActivityRecord `json:"activities"`
	SleepSessions []domain.SleepRecord    `json:"sleepSessions"`
}

type SyncedCounts struct {
	DailyMetrics  int `json:"dailyMetrics"`
	Activities    int `json:"activities"`
	SleepSessions int `json:"sleepSessions"`
}

type DeviceInfo struct {
	ID         string `json:"id"`
	LastSyncAt string `json:"lastSyncAt"`
}

type HealthSyncResponse struct {
	Synced SyncedCounts `json:"synced"`
	Device DeviceInfo   `json:"device"`
}

type TrackableInfo struct {
	ID        string `json:"id"`
	GoalValue *int   `json:"goalValue,omitempty"`
}

type TrackablesStatus struct {
	Steps          *TrackableInfo `json:"steps,omitempty"`
	ActiveCalories *TrackableInfo `json:"activeCalories,omitempty"`
	ActiveMinutes  *TrackableInfo `json:"activeMinutes,omitempty"`
	SleepDuration  *TrackableInfo `json:"sleepDuration,omitempty"`
}

type StatusResponse struct {
	Configured bool              `json:"configured"`
	LastSync   *string           `json:"lastSync,omitempty"`
	Trackables *TrackablesStatus `json:"trackables,omitempty"`
}

// Goals are the daily targets shown next to local progress.
type Goals struct {
	Steps          int `json:"steps"`
	ActiveCalories int `json:"activeCalories"`
	ActiveMinutes  int `json:"activeMinutes"`
}

// DefaultGoals apply when the server has no goal for a trackable.
var DefaultGoals = Goals{Steps: 10000, ActiveCalories: 500, ActiveMinutes: 90}

// Goals extracts the configured goals, falling back to DefaultGoals per field.
func (s StatusResponse) Goals() Goals {
	goals := DefaultGoals
	if s.Trackables == nil {
		return goals
	}
	pick := func(info *TrackableInfo, fallback int) int {
		if info == nil || info.GoalValue == nil {
			return fallback
		}
		return *info.GoalValue
	}
	goals.Steps = pick(s.Trackables.Steps, goals.Steps)
	goals.ActiveCalories = pick(s.Trackables.ActiveCalories, goals.ActiveCalories)
	goals.ActiveMinutes = pick(s.Trackables.ActiveMinutes, goals.ActiveMinutes)
	return goals
}
