// Package healthstore adapts concrete record stores to domain.HealthSource.
package healthstore

import (
	"encoding/json"
	"fmt"
	"time"

	"example.com/companion/internal/domain"
)

// Row is the storage-neutral shape of one raw record: common metadata plus a
// kind-specific JSON payload.
type Row struct {
	RecordID  string            `json:"recordId"`
	Kind      domain.RecordKind `json:"kind"`
	SourceApp string            `json:"sourceApp"`
	Start     time.Time         `json:"startTime"`
	End       time.Time         `json:"endTime"`
	Payload   json.RawMessage   `json:"payload"`
}

type stepsPayload struct {
	Count int64 `json:"count"`
}

type exercisePayload struct {
	ExerciseType int     `json:"exerciseType"`
	Title        *string `json:"title,omitempty"`
}

type caloriesPayload struct {
	Kilocalories float64 `json:"kilocalories"`
}

type stagePayload struct {
	Stage     int       `json:"stage"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

type sleepPayload struct {
	Stages []stagePayload `json:"stages,omitempty"`
}

// Decode converts a Row into a domain.Record.
func Decode(row Row) (domain.Record, error) {
	payload := row.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	rec := domain.Record{Kind: row.Kind}
	switch row.Kind {
	case domain.KindSteps:
		var p stepsPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return domain.Record{}, decodeErr(row, err)
		}
		rec.Steps = &domain.StepRecord{ID: row.RecordID, Start: row.Start, End: row.End, Count: p.Count, SourceApp: row.SourceApp}
	case domain.KindExercise:
		var p exercisePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return domain.Record{}, decodeErr(row, err)
		}
		rec.Exercise = &domain.ExerciseSession{ID: row.RecordID, Start: row.Start, End: row.End, ExerciseType: p.ExerciseType, Title: p.Title, SourceApp: row.SourceApp}
	case domain.KindTotalCalories:
		var p caloriesPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return domain.Record{}, decodeErr(row, err)
		}
		rec.Calories = &domain.CalorieRecord{ID: row.RecordID, Start: row.Start, End: row.End, Kilocalories: p.Kilocalories, SourceApp: row.SourceApp}
	case domain.KindSleep:
		var p sleepPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return domain.Record{}, decodeErr(row, err)
		}
		session := &domain.SleepSession{ID: row.RecordID, Start: row.Start, End: row.End, SourceApp: row.SourceApp}
		for _, st := range p.Stages {
			session.Stages = append(session.Stages, domain.SleepStageSample{Stage: st.Stage, Start: st.StartTime, End: st.EndTime})
		}
		rec.Sleep = session
	default:
		return domain.Record{}, fmt.Errorf("%w: %q", domain.ErrUnknownKind, row.Kind)
	}
	return rec, nil
}

// Encode is the inverse of Decode.
func Encode(rec domain.Record) (Row, error) {
	var (
		row     = Row{Kind: rec.Kind}
		payload any
	)
	switch rec.Kind {
	case domain.KindSteps:
		if rec.Steps == nil {
			return Row{}, fmt.Errorf("steps record without payload")
		}
		r := rec.Steps
		row.RecordID, row.SourceApp, row.Start, row.End = r.ID, r.SourceApp, r.Start, r.End
		payload = stepsPayload{Count: r.Count}
	case domain.KindExercise:
		if rec.Exercise == nil {
			return Row{}, fmt.Errorf("exercise record without payload")
		}
		r := rec.Exercise
		row.RecordID, row.SourceApp, row.Start, row.End = r.ID, r.SourceApp, r.Start, r.End
		payload = exercisePayload{ExerciseType: r.ExerciseType, Title: r.Title}
	case domain.KindTotalCalories:
		if rec.Calories == nil {
			return Row{}, fmt.Errorf("calories record without payload")
		}
		r := rec.Calories
		row.RecordID, row.SourceApp, row.Start, row.End = r.ID, r.SourceApp, r.Start, r.End
		payload = caloriesPayload{Kilocalories: r.Kilocalories}
	case domain.KindSleep:
		if rec.Sleep == nil {
			return Row{}, fmt.Errorf("sleep record without payload")
		}
		r := rec.Sleep
		row.RecordID, row.SourceApp, row.Start, row.End = r.ID, r.SourceApp, r.Start, r.End
		p := sleepPayload{}
		for _, st := range r.Stages {
			p.Stages = append(p.Stages, stagePayload{Stage: st.Stage, StartTime: st.Start, EndTime: st.End})
		}
		payload = p
	default:
		return Row{}, fmt.Errorf("%w: %q", domain.ErrUnknownKind, rec.Kind)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Row{}, err
	}
	row.Payload = raw
	return row, nil
}

func decodeErr(row Row, err error) error {
	return fmt.Errorf("decode %s record %s: %w", row.Kind, row.RecordID, err)
}
