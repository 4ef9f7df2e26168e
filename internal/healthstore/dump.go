package healthstore

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"example.com/companion/internal/domain"
)

// KindDump lists the raw records of one kind read for a day.
type KindDump struct {
	Kind    domain.RecordKind `json:"kind"`
	Count   int               `json:"count"`
	Records []string          `json:"records"`
}

// Dump reads every kind for day and returns a human-readable line per record.
// Each line is also logged at debug level.
func Dump(ctx context.Context, source domain.HealthSource, day domain.Date, loc *time.Location, logger *zap.Logger) ([]KindDump, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	tr := domain.DayRange(day, day, loc)
	out := make([]KindDump, 0, len(domain.AllKinds))
	for _, kind := range domain.AllKinds {
		records, err := source.ReadRecords(ctx, kind, tr)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", kind, err)
		}
		dump := KindDump{Kind: kind, Count: len(records)}
		logger.Debug("raw records", zap.String("kind", string(kind)), zap.Stringer("date", day), zap.Int("count", len(records)))
		for _, rec := range records {
			line := describe(rec, loc)
			dump.Records = append(dump.Records, line)
			logger.Debug("raw record", zap.String("kind", string(kind)), zap.String("record", line))
		}
		out = append(out, dump)
	}
	return out, nil
}

func describe(rec domain.Record, loc *time.Location) string {
	clock := func(t time.Time) string { return t.In(loc).Format("15:04") }
	switch {
	case rec.Steps != nil:
		r := rec.Steps
		return fmt.Sprintf("%s-%s count=%d source=%s", clock(r.Start), clock(r.End), r.Count, r.SourceApp)
	case rec.Exercise != nil:
		r := rec.Exercise
		return fmt.Sprintf("%s-%s type=%s (%d) source=%s", clock(r.Start), clock(r.End), domain.ExerciseTypeName(r.ExerciseType), r.ExerciseType, r.SourceApp)
	case rec.Calories != nil:
		r := rec.Calories
		return fmt.Sprintf("%s-%s kcal=%.1f source=%s", clock(r.Start), clock(r.End), r.Kilocalories, r.SourceApp)
	case rec.Sleep != nil:
		r := rec.Sleep
		return fmt.Sprintf("%s-%s stages=%d source=%s", clock(r.Start), clock(r.End), len(r.Stages), r.SourceApp)
	}
	return string(rec.Kind)
}
