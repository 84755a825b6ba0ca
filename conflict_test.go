package syncdoc

import (
	"testing"
	"time"
)

func makeConflict(localTS, remoteTS time.Time) *Conflict {
	return &Conflict{
		Path:            "/title",
		LocalValue:      `"local"`,
		RemoteValue:     `"remote"`,
		LocalOperation:  Operation{Type: OpReplace, Path: "/title", Value: `"local"`, Timestamp: localTS},
		RemoteOperation: Operation{Type: OpReplace, Path: "/title", Value: `"remote"`, Timestamp: remoteTS},
	}
}

func TestDefaultConflictResolver(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("LastWriterWinsLocalNewer", func(t *testing.T) {
		r := NewDefaultConflictResolver(LastWriterWins)
		c := makeConflict(base.Add(time.Second), base)
		if !r.ResolveConflict(c) {
			t.Fatal("expected resolution")
		}
		if c.ResolvedValue != `"local"` || !c.Resolved {
			t.Errorf("got %q, want local value", c.ResolvedValue)
		}
	})

	t.Run("LastWriterWinsRemoteNewer", func(t *testing.T) {
		r := NewDefaultConflictResolver(LastWriterWins)
		c := makeConflict(base, base.Add(time.Second))
		if !r.ResolveConflict(c) {
			t.Fatal("expected resolution")
		}
		if c.ResolvedValue != `"remote"` {
			t.Errorf("got %q, want remote value", c.ResolvedValue)
		}
	})

	t.Run("LastWriterWinsTieGoesRemote", func(t *testing.T) {
		r := NewDefaultConflictResolver(LastWriterWins)
		c := makeConflict(base, base)
		if !r.ResolveConflict(c) {
			t.Fatal("expected resolution")
		}
		if c.ResolvedValue != `"remote"` {
			t.Errorf("tie must award remote, got %q", c.ResolvedValue)
		}
	})

	t.Run("LocalWins", func(t *testing.T) {
		r := NewDefaultConflictResolver(LocalWins)
		c := makeConflict(base, base.Add(time.Hour))
		if !r.ResolveConflict(c) || c.ResolvedValue != `"local"` {
			t.Errorf("got %q, want local regardless of timestamps", c.ResolvedValue)
		}
	})

	t.Run("RemoteWins", func(t *testing.T) {
		r := NewDefaultConflictResolver(RemoteWins)
		c := makeConflict(base.Add(time.Hour), base)
		if !r.ResolveConflict(c) || c.ResolvedValue != `"remote"` {
			t.Errorf("got %q, want remote regardless of timestamps", c.ResolvedValue)
		}
	})

	t.Run("CustomStrategyUnhandled", func(t *testing.T) {
		r := NewDefaultConflictResolver(CustomStrategy)
		c := makeConflict(base, base)
		if r.ResolveConflict(c) {
			t.Error("default resolver must not handle CustomStrategy")
		}
		if c.Resolved {
			t.Error("conflict must stay unresolved")
		}
	})

	t.Run("SetStrategy", func(t *testing.T) {
		r := NewDefaultConflictResolver(LocalWins)
		r.SetStrategy(RemoteWins)
		if r.Strategy() != RemoteWins {
			t.Errorf("got %v", r.Strategy())
		}
		c := makeConflict(base, base)
		r.ResolveConflict(c)
		if c.ResolvedValue != `"remote"` {
			t.Errorf("got %q after strategy switch", c.ResolvedValue)
		}
	})
}

func TestParseConflictStrategy(t *testing.T) {
	cases := []struct {
		name string
		want ConflictStrategy
	}{
		{"", LastWriterWins},
		{"last-writer-wins", LastWriterWins},
		{"local-wins", LocalWins},
		{"remote-wins", RemoteWins},
		{"custom", CustomStrategy},
	}
	for _, tc := range cases {
		got, err := ParseConflictStrategy(tc.name)
		if err != nil || got != tc.want {
			t.Errorf("ParseConflictStrategy(%q) = %v, %v", tc.name, got, err)
		}
	}
	if _, err := ParseConflictStrategy("newest"); err == nil {
		t.Error("expected error for unknown strategy name")
	}
}

func TestStrategyStringRoundTrip(t *testing.T) {
	for _, s := range []ConflictStrategy{LastWriterWins, LocalWins, RemoteWins, CustomStrategy} {
		got, err := ParseConflictStrategy(s.String())
		if err != nil || got != s {
			t.Errorf("round trip %v: got %v, %v", s, got, err)
		}
	}
}
