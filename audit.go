package syncdoc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LogSource tags where an audited operation originated.
type LogSource string

const (
	// SourceLocal marks operations submitted by this client.
	SourceLocal LogSource = "Local"
	// SourceRemote marks operations delivered by a remote peer.
	SourceRemote LogSource = "Remote"
)

// LogEntry is one audited operation, optionally with its conflict payload.
type LogEntry struct {
	LogID         string    `json:"logId"`
	DocumentID    string    `json:"documentId"`
	OperationType string    `json:"operationType"`
	Path          string    `json:"path"`
	OldValue      string    `json:"oldValue"`
	NewValue      string    `json:"newValue"`
	Timestamp     time.Time `json:"timestamp"`
	HadConflict   bool      `json:"hadConflict"`
	Conflict      *Conflict `json:"conflict,omitempty"`
	ClientID      string    `json:"clientId"`
	Source        LogSource `json:"source"`
}

// LogFilter selects audit entries. Zero-valued fields match everything;
// Path matches as a substring.
type LogFilter struct {
	DocumentID    string
	StartTime     time.Time
	EndTime       time.Time
	OperationType string
	Path          string
	ClientID      string
	Source        LogSource
	ConflictsOnly bool
}

// Matches reports whether entry passes the filter.
func (f LogFilter) Matches(entry LogEntry) bool {
	if f.DocumentID != "" && entry.DocumentID != f.DocumentID {
		return false
	}
	if !f.StartTime.IsZero() && entry.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && entry.Timestamp.After(f.EndTime) {
		return false
	}
	if f.OperationType != "" && entry.OperationType != f.OperationType {
		return false
	}
	if f.Path != "" && !strings.Contains(entry.Path, f.Path) {
		return false
	}
	if f.ConflictsOnly && !entry.HadConflict {
		return false
	}
	if f.ClientID != "" && entry.ClientID != f.ClientID {
		return false
	}
	if f.Source != "" && entry.Source != f.Source {
		return false
	}
	return true
}

func (f LogFilter) isEmpty() bool {
	return f.DocumentID == "" && f.OperationType == "" && f.Path == "" &&
		f.ClientID == "" && f.Source == "" && !f.ConflictsOnly &&
		f.StartTime.IsZero() && f.EndTime.IsZero()
}

// AuditLogger is the append-only audit sink consumed by documents and the
// sync manager.
type AuditLogger interface {
	// LogOperation appends an entry; disabled loggers drop it.
	LogOperation(entry LogEntry)

	// GetLogs returns entries matching the filter in insertion order.
	GetLogs(filter LogFilter) []LogEntry

	// ExportLogs writes matching entries as a JSON array to path.
	ExportLogs(path string, filter LogFilter) error

	// ClearLogs removes matching entries; an empty filter clears everything.
	ClearLogs(filter LogFilter)

	// SetLoggingEnabled toggles whether LogOperation records anything.
	SetLoggingEnabled(enabled bool)

	// LoggingEnabled reports the current toggle.
	LoggingEnabled() bool
}

// MemoryLogger is the default AuditLogger: a bounded in-memory buffer with
// oldest-first eviction. Safe for use from transport callbacks.
type MemoryLogger struct {
	mu         sync.Mutex
	entries    []LogEntry
	maxEntries int
	enabled    bool
}

// DefaultMaxLogEntries bounds the in-memory audit buffer.
const DefaultMaxLogEntries = 1000

// NewMemoryLogger creates an enabled logger holding at most maxEntries
// entries; zero or negative means DefaultMaxLogEntries.
func NewMemoryLogger(maxEntries int) *MemoryLogger {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxLogEntries
	}
	return &MemoryLogger{
		maxEntries: maxEntries,
		enabled:    true,
	}
}

// LogOperation appends entry, filling in a log id and timestamp when absent
// and evicting the oldest entry past capacity.
func (l *MemoryLogger) LogOperation(entry LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled {
		return
	}
	if entry.LogID == "" {
		entry.LogID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.maxEntries {
		l.entries = l.entries[len(l.entries)-l.maxEntries:]
	}
}

// GetLogs returns matching entries oldest first.
func (l *MemoryLogger) GetLogs(filter LogFilter) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []LogEntry
	for _, e := range l.entries {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// ExportLogs writes matching entries as an indented JSON array, creating
// parent directories as needed.
func (l *MemoryLogger) ExportLogs(path string, filter LogFilter) error {
	logs := l.GetLogs(filter)
	if logs == nil {
		logs = []LogEntry{}
	}
	data, err := json.MarshalIndent(logs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode logs: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write logs: %w", err)
	}
	return nil
}

// ClearLogs drops matching entries; an empty filter drops them all.
func (l *MemoryLogger) ClearLogs(filter LogFilter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if filter.isEmpty() {
		l.entries = nil
		return
	}
	kept := l.entries[:0]
	for _, e := range l.entries {
		if !filter.Matches(e) {
			kept = append(kept, e)
		}
	}
	l.entries = kept
}

// SetLoggingEnabled toggles recording.
func (l *MemoryLogger) SetLoggingEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

// LoggingEnabled reports whether recording is on.
func (l *MemoryLogger) LoggingEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}
