package syncdoc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func auditEntry(docID, opType, path string, ts time.Time) LogEntry {
	return LogEntry{
		DocumentID:    docID,
		OperationType: opType,
		Path:          path,
		Timestamp:     ts,
		ClientID:      "client-a",
		Source:        SourceLocal,
	}
}

func TestMemoryLoggerBasics(t *testing.T) {
	l := NewMemoryLogger(0)
	if !l.LoggingEnabled() {
		t.Fatal("new logger should be enabled")
	}

	now := time.Now().UTC()
	l.LogOperation(auditEntry("doc-1", "Add", "/a", now))
	l.LogOperation(auditEntry("doc-2", "Replace", "/b", now))

	all := l.GetLogs(LogFilter{})
	if len(all) != 2 {
		t.Fatalf("entries = %d, want 2", len(all))
	}
	if all[0].LogID == "" || all[1].LogID == "" {
		t.Error("log ids should be filled in")
	}
	if all[0].LogID == all[1].LogID {
		t.Error("log ids should be unique")
	}
}

func TestMemoryLoggerDisabled(t *testing.T) {
	l := NewMemoryLogger(0)
	l.SetLoggingEnabled(false)
	l.LogOperation(auditEntry("doc-1", "Add", "/a", time.Now()))
	if got := len(l.GetLogs(LogFilter{})); got != 0 {
		t.Errorf("disabled logger recorded %d entries", got)
	}
}

func TestMemoryLoggerEviction(t *testing.T) {
	l := NewMemoryLogger(3)
	now := time.Now().UTC()
	for i, p := range []string{"/1", "/2", "/3", "/4", "/5"} {
		l.LogOperation(auditEntry("doc-1", "Add", p, now.Add(time.Duration(i)*time.Second)))
	}
	got := l.GetLogs(LogFilter{})
	if len(got) != 3 {
		t.Fatalf("entries = %d, want 3", len(got))
	}
	if got[0].Path != "/3" || got[2].Path != "/5" {
		t.Errorf("oldest entries should be evicted first: %v", got)
	}
}

func TestLogFilterMatching(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLogger(0)
	l.LogOperation(auditEntry("doc-1", "Add", "/users/0/name", base))
	l.LogOperation(auditEntry("doc-1", "Replace", "/title", base.Add(time.Hour)))
	l.LogOperation(auditEntry("doc-2", "Remove", "/old", base.Add(2*time.Hour)))

	conflicted := auditEntry("doc-1", "Replace", "/title", base.Add(3*time.Hour))
	conflicted.HadConflict = true
	conflicted.Source = SourceRemote
	conflicted.ClientID = "client-b"
	l.LogOperation(conflicted)

	t.Run("ByDocument", func(t *testing.T) {
		if got := len(l.GetLogs(LogFilter{DocumentID: "doc-1"})); got != 3 {
			t.Errorf("entries = %d, want 3", got)
		}
	})

	t.Run("ByOperationType", func(t *testing.T) {
		if got := len(l.GetLogs(LogFilter{OperationType: "Replace"})); got != 2 {
			t.Errorf("entries = %d, want 2", got)
		}
	})

	t.Run("ByPathSubstring", func(t *testing.T) {
		if got := len(l.GetLogs(LogFilter{Path: "users"})); got != 1 {
			t.Errorf("entries = %d, want 1", got)
		}
	})

	t.Run("ByTimeWindow", func(t *testing.T) {
		got := l.GetLogs(LogFilter{
			StartTime: base.Add(30 * time.Minute),
			EndTime:   base.Add(150 * time.Minute),
		})
		if len(got) != 2 {
			t.Errorf("entries = %d, want 2", len(got))
		}
	})

	t.Run("ConflictsOnly", func(t *testing.T) {
		got := l.GetLogs(LogFilter{ConflictsOnly: true})
		if len(got) != 1 || !got[0].HadConflict {
			t.Errorf("entries = %v", got)
		}
	})

	t.Run("BySource", func(t *testing.T) {
		if got := len(l.GetLogs(LogFilter{Source: SourceRemote})); got != 1 {
			t.Errorf("entries = %d, want 1", got)
		}
	})

	t.Run("ByClientID", func(t *testing.T) {
		if got := len(l.GetLogs(LogFilter{ClientID: "client-b"})); got != 1 {
			t.Errorf("entries = %d, want 1", got)
		}
	})

	t.Run("Combined", func(t *testing.T) {
		got := l.GetLogs(LogFilter{DocumentID: "doc-1", OperationType: "Replace", ConflictsOnly: true})
		if len(got) != 1 {
			t.Errorf("entries = %d, want 1", len(got))
		}
	})
}

func TestMemoryLoggerClearLogs(t *testing.T) {
	l := NewMemoryLogger(0)
	now := time.Now().UTC()
	l.LogOperation(auditEntry("doc-1", "Add", "/a", now))
	l.LogOperation(auditEntry("doc-2", "Add", "/b", now))

	l.ClearLogs(LogFilter{DocumentID: "doc-1"})
	remaining := l.GetLogs(LogFilter{})
	if len(remaining) != 1 || remaining[0].DocumentID != "doc-2" {
		t.Errorf("remaining = %v", remaining)
	}

	l.ClearLogs(LogFilter{})
	if got := len(l.GetLogs(LogFilter{})); got != 0 {
		t.Errorf("entries after full clear = %d", got)
	}
}

func TestMemoryLoggerExport(t *testing.T) {
	l := NewMemoryLogger(0)
	now := time.Now().UTC()
	l.LogOperation(auditEntry("doc-1", "Add", "/a", now))
	l.LogOperation(auditEntry("doc-2", "Add", "/b", now))

	path := filepath.Join(t.TempDir(), "nested", "logs.json")
	if err := l.ExportLogs(path, LogFilter{DocumentID: "doc-1"}); err != nil {
		t.Fatalf("export: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var entries []LogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("parse export: %v", err)
	}
	if len(entries) != 1 || entries[0].DocumentID != "doc-1" {
		t.Errorf("exported = %v", entries)
	}
}

func TestMemoryLoggerExportEmpty(t *testing.T) {
	l := NewMemoryLogger(0)
	path := filepath.Join(t.TempDir(), "empty.json")
	if err := l.ExportLogs(path, LogFilter{}); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, _ := os.ReadFile(path)
	var entries []LogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("empty export should still be a JSON array: %v", err)
	}
}
