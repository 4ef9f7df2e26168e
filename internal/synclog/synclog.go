// Package synclog persists the bounded, append-only history of sync outcomes
// as newline-delimited JSON.
package synclog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SyncType distinguishes scheduled runs from the one-off historical import.
type SyncType string

const (
	TypePeriodic      SyncType = "PERIODIC"
	TypeInitialImport SyncType = "INITIAL_IMPORT"
)

// Status is the outcome recorded for a run.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusRetry   Status = "RETRY"
	StatusError   Status = "ERROR"
)

const (
	DefaultMaxEntries = 200
	DefaultReadCount  = 50
)

// Entry is one line of the log.
type Entry struct {
	Timestamp int64    `json:"timestamp"`
	Type      SyncType `json:"type"`
	Status    Status   `json:"status"`
	Message   string   `json:"message"`
}

// Time returns the entry timestamp as a time.Time.
func (e Entry) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// NewEntry stamps an entry with at.
func NewEntry(at time.Time, typ SyncType, status Status, message string) Entry {
	return Entry{Timestamp: at.UnixMilli(), Type: typ, Status: status, Message: message}
}

// Log is the append/read contract used by the orchestrator and the control API.
type Log interface {
	Append(entry Entry) error
	Recent(count int) ([]Entry, error)
	Clear() error
}

// FileLog is a Log stored in a single file. Appends past maxEntries rewrite
// the file keeping only the newest entries.
type FileLog struct {
	mu         sync.Mutex
	path       string
	maxEntries int
}

// NewFileLog returns a log at path. A non-positive maxEntries falls back to
// DefaultMaxEntries.
func NewFileLog(path string, maxEntries int) *FileLog {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &FileLog{path: path, maxEntries: maxEntries}
}

// Path returns the backing file location.
func (l *FileLog) Path() string { return l.path }

// Append writes entry as the newest line and trims the oldest lines beyond the cap.
func (l *FileLog) Append(entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("append log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close log: %w", err)
	}

	return l.trimLocked()
}

func (l *FileLog) trimLocked() error {
	lines, err := l.readLinesLocked()
	if err != nil {
		return err
	}
	if len(lines) <= l.maxEntries {
		return nil
	}
	keep := lines[len(lines)-l.maxEntries:]

	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".synclog-*")
	if err != nil {
		return fmt.Errorf("create temp log: %w", err)
	}
	w := bufio.NewWriter(tmp)
	for _, line := range keep {
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp log: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace log: %w", err)
	}
	return nil
}

func (l *FileLog) readLinesLocked() ([][]byte, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	var lines [][]byte
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// Recent returns up to count entries, newest first. Lines that fail to
// decode are skipped. A non-positive count uses DefaultReadCount.
func (l *FileLog) Recent(count int) ([]Entry, error) {
	if count <= 0 {
		count = DefaultReadCount
	}

	l.mu.Lock()
	lines, err := l.readLinesLocked()
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, min(count, len(lines)))
	for i := len(lines) - 1; i >= 0 && len(out) < count; i-- {
		var e Entry
		if err := json.Unmarshal(lines[i], &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Clear removes every entry.
func (l *FileLog) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear log: %w", err)
	}
	return nil
}
