// Package fixture serves health records from memory or a JSON file, for
// development hosts without a record database and for tests.
package fixture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"

	"example.com/companion/internal/domain"
	"example.com/companion/internal/healthstore"
)

// ErrUnavailable is returned by Available when the source was marked offline.
var ErrUnavailable = errors.New("health store not available")

// Source is an in-memory domain.HealthSource.
type Source struct {
	mu          sync.RWMutex
	rows        []healthstore.Row
	unavailable bool
	readErr     error
}

// New returns an empty Source.
func New() *Source {
	return &Source{}
}

// Load reads a JSON array of healthstore.Row from path.
func Load(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var rows []healthstore.Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	s := New()
	for _, row := range rows {
		if _, err := healthstore.Decode(row); err != nil {
			return nil, err
		}
		if row.RecordID == "" {
			row.RecordID = uuid.NewString()
		}
		s.rows = append(s.rows, row)
	}
	return s, nil
}

// Add stores records, assigning IDs to those without one.
func (s *Source) Add(records ...domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		row, err := healthstore.Encode(rec)
		if err != nil {
			return err
		}
		if row.RecordID == "" {
			row.RecordID = uuid.NewString()
		}
		s.rows = append(s.rows, row)
	}
	return nil
}

// SetAvailable toggles the Available result.
func (s *Source) SetAvailable(available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = !available
}

// FailReads makes every ReadRecords call return err (nil restores reads).
func (s *Source) FailReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

func (s *Source) Available(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.unavailable {
		return ErrUnavailable
	}
	return nil
}

// ReadRecords returns rows of kind starting inside tr, ordered by start time.
func (s *Source) ReadRecords(ctx context.Context, kind domain.RecordKind, tr domain.TimeRange) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.readErr != nil {
		return nil, s.readErr
	}

	var matched []healthstore.Row
	for _, row := range s.rows {
		if row.Kind == kind && tr.Overlaps(row.Start, row.End) {
			matched = append(matched, row)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Start.Before(matched[j].Start) })

	out := make([]domain.Record, 0, len(matched))
	for _, row := range matched {
		rec, err := healthstore.Decode(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
