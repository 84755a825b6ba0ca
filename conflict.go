package syncdoc

import "fmt"

// ConflictStrategy selects how a detected conflict is resolved.
type ConflictStrategy int

const (
	// LastWriterWins keeps whichever side carries the newer operation
	// timestamp; ties go to the remote side.
	LastWriterWins ConflictStrategy = iota
	// LocalWins always keeps the local value.
	LocalWins
	// RemoteWins always keeps the remote value.
	RemoteWins
	// CustomStrategy marks a host-installed resolver; the default resolver
	// does not handle it.
	CustomStrategy
)

// String returns the config/wire name of the strategy.
func (s ConflictStrategy) String() string {
	switch s {
	case LastWriterWins:
		return "last-writer-wins"
	case LocalWins:
		return "local-wins"
	case RemoteWins:
		return "remote-wins"
	case CustomStrategy:
		return "custom"
	default:
		return "unknown"
	}
}

// ParseConflictStrategy maps a config name to a strategy.
func ParseConflictStrategy(name string) (ConflictStrategy, error) {
	switch name {
	case "", "last-writer-wins":
		return LastWriterWins, nil
	case "local-wins":
		return LocalWins, nil
	case "remote-wins":
		return RemoteWins, nil
	case "custom":
		return CustomStrategy, nil
	default:
		return 0, fmt.Errorf("unknown conflict strategy %q", name)
	}
}

// Conflict captures a collision between a locally recorded operation and an
// incoming remote operation at the same path. It exists transiently during
// patch application; the only copy that outlives resolution is the one
// attached to an audit log entry.
type Conflict struct {
	Path            string    `json:"path"`
	LocalValue      string    `json:"localValue"`
	RemoteValue     string    `json:"remoteValue"`
	LocalOperation  Operation `json:"localOperation"`
	RemoteOperation Operation `json:"remoteOperation"`
	ResolvedValue   string    `json:"resolvedValue"`
	Resolved        bool      `json:"resolved"`
}

// ConflictResolver turns a detected conflict into a resolved value. A
// successful resolution fills Conflict.ResolvedValue and sets Resolved.
// Hosts may install any implementation; installing one overrides the
// document's strategy to CustomStrategy unless the resolver reports
// otherwise.
type ConflictResolver interface {
	// ResolveConflict resolves c in place, returning false when the
	// resolver cannot decide.
	ResolveConflict(c *Conflict) bool

	// Strategy reports the strategy this resolver implements.
	Strategy() ConflictStrategy
}

// DefaultConflictResolver implements the three built-in strategies.
// CustomStrategy is not handled and resolves to failure.
type DefaultConflictResolver struct {
	strategy ConflictStrategy
}

// NewDefaultConflictResolver creates a resolver with the given strategy.
func NewDefaultConflictResolver(strategy ConflictStrategy) *DefaultConflictResolver {
	return &DefaultConflictResolver{strategy: strategy}
}

// Strategy returns the resolver's current strategy.
func (r *DefaultConflictResolver) Strategy() ConflictStrategy {
	return r.strategy
}

// SetStrategy switches the resolver's strategy in place.
func (r *DefaultConflictResolver) SetStrategy(strategy ConflictStrategy) {
	r.strategy = strategy
}

// ResolveConflict applies the configured strategy to c.
func (r *DefaultConflictResolver) ResolveConflict(c *Conflict) bool {
	switch r.strategy {
	case LastWriterWins:
		// A strictly newer local timestamp keeps the local value; an equal
		// or newer remote timestamp awards the remote side.
		if c.LocalOperation.Timestamp.After(c.RemoteOperation.Timestamp) {
			c.ResolvedValue = c.LocalValue
		} else {
			c.ResolvedValue = c.RemoteValue
		}
		c.Resolved = true
		return true
	case LocalWins:
		c.ResolvedValue = c.LocalValue
		c.Resolved = true
		return true
	case RemoteWins:
		c.ResolvedValue = c.RemoteValue
		c.Resolved = true
		return true
	default:
		return false
	}
}
