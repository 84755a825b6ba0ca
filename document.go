package syncdoc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// DocumentConfig configures a single document.
type DocumentConfig struct {
	// MaxOperationHistory bounds the operation history FIFO. Default: 100.
	MaxOperationHistory int

	// MaxSnapshotHistory bounds the snapshot history FIFO. Default: 10.
	MaxSnapshotHistory int

	// ConflictStrategy selects the default resolver's behavior.
	ConflictStrategy ConflictStrategy

	// ClientID identifies this client on outgoing operations; patches whose
	// client id matches are audited as Local rather than Remote.
	ClientID string

	// AutoLocalSave persists the document after every successful mutation.
	AutoLocalSave bool

	// Store is the local persistence backend. Optional; SaveLocally fails
	// without one.
	Store DocumentStore

	// Audit receives operation log entries. Defaults to a MemoryLogger.
	Audit AuditLogger

	// Logger is the diagnostic logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultDocumentConfig returns the default document configuration.
func DefaultDocumentConfig() DocumentConfig {
	return DocumentConfig{
		MaxOperationHistory: 100,
		MaxSnapshotHistory:  10,
		ConflictStrategy:    LastWriterWins,
	}
}

// Document owns one JSON tree together with its version, bounded operation
// and snapshot history, conflict resolution and local persistence.
//
// Mutation methods are synchronous and not internally locked: the engine
// assumes a single logical thread drives each document, and hosts with
// concurrent callers (including transport callbacks) must serialize access
// externally. Notification handlers run inline before the triggering call
// returns; re-entering the same document from a handler is unsupported.
type Document struct {
	id       string
	version  int64
	content  map[string]any
	history  []Operation
	snaps    []Snapshot
	maxOps   int
	maxSnaps int

	strategy ConflictStrategy
	resolver ConflictResolver
	audit    AuditLogger
	store    DocumentStore
	manager  *SyncManager
	clientID string
	autoSave bool
	lastErr  error
	logger   *slog.Logger

	changedHandlers   []func(documentID string)
	conflictHandlers  []func(Conflict)
	recoveredHandlers []func(documentID, source string)
}

// NewDocument creates a document with empty-object content at version 1 and
// records the initial snapshot.
func NewDocument(id string, cfg DocumentConfig) *Document {
	if cfg.MaxOperationHistory <= 0 {
		cfg.MaxOperationHistory = 100
	}
	if cfg.MaxSnapshotHistory <= 0 {
		cfg.MaxSnapshotHistory = 10
	}
	if cfg.Audit == nil {
		cfg.Audit = NewMemoryLogger(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	d := &Document{
		id:       id,
		version:  1,
		content:  map[string]any{},
		maxOps:   cfg.MaxOperationHistory,
		maxSnaps: cfg.MaxSnapshotHistory,
		strategy: cfg.ConflictStrategy,
		resolver: NewDefaultConflictResolver(cfg.ConflictStrategy),
		audit:    cfg.Audit,
		store:    cfg.Store,
		clientID: cfg.ClientID,
		autoSave: cfg.AutoLocalSave,
		logger:   cfg.Logger,
	}
	d.createAndAddSnapshot()
	return d
}

// ID returns the immutable document id.
func (d *Document) ID() string { return d.id }

// Version returns the current document version.
func (d *Document) Version() int64 { return d.version }

// Content returns the document's JSON tree. The tree is owned by the
// document; callers must not mutate it outside patch application.
func (d *Document) Content() map[string]any { return d.content }

// ContentString returns the content serialized as compact JSON.
func (d *Document) ContentString() string { return encodeJSONValue(d.content) }

// LastError returns the most recent failure recorded on the document.
func (d *Document) LastError() error { return d.lastErr }

// ClientID returns the client id stamped on this document's operations.
func (d *Document) ClientID() string { return d.clientID }

// OperationHistory returns a copy of the bounded operation history,
// oldest first.
func (d *Document) OperationHistory() []Operation {
	out := make([]Operation, len(d.history))
	copy(out, d.history)
	return out
}

// SnapshotHistory returns a copy of the bounded snapshot history,
// oldest first.
func (d *Document) SnapshotHistory() []Snapshot {
	out := make([]Snapshot, len(d.snaps))
	copy(out, d.snaps)
	return out
}

// OnDocumentChanged registers a handler invoked inline after every
// successful content mutation.
func (d *Document) OnDocumentChanged(fn func(documentID string)) {
	d.changedHandlers = append(d.changedHandlers, fn)
}

// OnConflictDetected registers a handler invoked inline when a conflict
// is resolved during patch application.
func (d *Document) OnConflictDetected(fn func(Conflict)) {
	d.conflictHandlers = append(d.conflictHandlers, fn)
}

// OnDocumentRecovered registers a handler invoked inline after a successful
// recovery; source is "LocalStorage" or "Snapshot".
func (d *Document) OnDocumentRecovered(fn func(documentID, source string)) {
	d.recoveredHandlers = append(d.recoveredHandlers, fn)
}

// SetContent replaces the whole JSON tree, bumps the version, snapshots and
// notifies. It bypasses operation history and conflict detection: history
// never reflects whole-content replacements.
func (d *Document) SetContent(content map[string]any) error {
	if content == nil {
		err := fmt.Errorf("%w: nil content", ErrInvalidOperation)
		d.lastErr = err
		return err
	}
	d.content = content
	d.version++
	d.createAndAddSnapshot()
	d.notifyChanged()
	return nil
}

// SetContentFromString parses raw as a JSON object and installs it via
// SetContent. A parse failure leaves content and version unchanged.
func (d *Document) SetContentFromString(raw string) error {
	var content map[string]any
	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		err = fmt.Errorf("parse content: %w", err)
		d.lastErr = err
		return err
	}
	if content == nil {
		err := fmt.Errorf("parse content: %w: not a JSON object", ErrInvalidOperation)
		d.lastErr = err
		return err
	}
	return d.SetContent(content)
}

// ApplyPatch applies an ordered batch of operations. Replace operations are
// checked against the local operation history for conflicting replaces at
// the same path (newest first; the first match wins); a resolved conflict
// applies the incoming operation with its value swapped for the resolved
// one. A failing operation aborts the patch with the document possibly
// partially mutated — callers recover via RecoverDocument. On success the
// version increases by exactly one and a snapshot is recorded.
func (d *Document) ApplyPatch(p Patch) error {
	if p.DocumentID != d.id {
		err := fmt.Errorf("%w: patch %q applied to %q", ErrDocumentIDMismatch, p.DocumentID, d.id)
		d.lastErr = err
		return err
	}

	source := SourceRemote
	if p.ClientID != "" && p.ClientID == d.clientID {
		source = SourceLocal
	}

	for _, op := range p.Operations {
		var oldValue string
		switch op.Type {
		case OpReplace, OpRemove, OpTest:
			if cur, ok := GetValueAtPath(d.content, op.Path); ok {
				oldValue = encodeJSONValue(cur)
			}
		}

		if op.Type == OpReplace {
			if local, found := d.findConflictingReplace(op); found {
				c := Conflict{
					Path:            op.Path,
					LocalValue:      local.Value,
					RemoteValue:     op.Value,
					LocalOperation:  local,
					RemoteOperation: op,
				}
				if d.resolveConflict(&c) {
					resolved := op
					resolved.Value = c.ResolvedValue
					if err := applyOperation(d.content, resolved); err != nil {
						d.lastErr = err
						return err
					}
					for _, fn := range d.conflictHandlers {
						fn(c)
					}
					d.logOperation(resolved, oldValue, c.ResolvedValue, source, &c)
					d.appendHistory(resolved)
					continue
				}
			}
		}

		if err := applyOperation(d.content, op); err != nil {
			d.lastErr = err
			d.logger.Warn("operation failed",
				"document", d.id, "op", op.Type.String(), "path", op.Path, "error", err)
			return err
		}
		d.logOperation(op, oldValue, op.Value, source, nil)
		d.appendHistory(op)
	}

	d.version++
	d.createAndAddSnapshot()
	d.notifyChanged()
	return nil
}

// ApplyPatchFromString decodes a wire patch frame and applies it.
func (d *Document) ApplyPatchFromString(raw string) error {
	p, err := DecodeWirePatch([]byte(raw))
	if err != nil {
		d.lastErr = err
		return err
	}
	return d.ApplyPatch(p)
}

// findConflictingReplace scans the operation history from most recent to
// oldest for a replace at the same path with a different value. Only
// replace-vs-replace collisions on an identical path string are considered.
func (d *Document) findConflictingReplace(op Operation) (Operation, bool) {
	for i := len(d.history) - 1; i >= 0; i-- {
		local := d.history[i]
		if local.Type == OpReplace && local.Path == op.Path && local.Value != op.Value {
			return local, true
		}
	}
	return Operation{}, false
}

func (d *Document) resolveConflict(c *Conflict) bool {
	if d.resolver == nil {
		d.resolver = NewDefaultConflictResolver(d.strategy)
	}
	return d.resolver.ResolveConflict(c)
}

func (d *Document) appendHistory(op Operation) {
	d.history = append(d.history, op)
	if len(d.history) > d.maxOps {
		d.history = d.history[len(d.history)-d.maxOps:]
	}
}

// CreateSnapshot returns a point-in-time copy of the current content and
// version without recording it in the history.
func (d *Document) CreateSnapshot() Snapshot {
	return Snapshot{
		DocumentID: d.id,
		Version:    d.version,
		Timestamp:  time.Now().UTC(),
		Content:    d.ContentString(),
	}
}

func (d *Document) createAndAddSnapshot() {
	d.snaps = append(d.snaps, d.CreateSnapshot())
	if len(d.snaps) > d.maxSnaps {
		d.snaps = d.snaps[len(d.snaps)-d.maxSnaps:]
	}
}

// RestoreFromSnapshot installs the snapshot's content and adopts its version
// without incrementing. History buffers are left untouched.
func (d *Document) RestoreFromSnapshot(snap Snapshot) error {
	if snap.DocumentID != d.id {
		err := fmt.Errorf("%w: snapshot %q restored into %q", ErrDocumentIDMismatch, snap.DocumentID, d.id)
		d.lastErr = err
		return err
	}
	var content map[string]any
	if err := json.Unmarshal([]byte(snap.Content), &content); err != nil {
		err = fmt.Errorf("parse snapshot content: %w", err)
		d.lastErr = err
		return err
	}
	if content == nil {
		err := fmt.Errorf("parse snapshot content: %w: not a JSON object", ErrInvalidOperation)
		d.lastErr = err
		return err
	}
	d.content = content
	d.version = snap.Version
	d.notifyChanged()
	return nil
}

// SetConflictStrategy switches the document's strategy, updating the
// installed default resolver in place or replacing a custom resolver with a
// fresh default one.
func (d *Document) SetConflictStrategy(strategy ConflictStrategy) {
	d.strategy = strategy
	if def, ok := d.resolver.(*DefaultConflictResolver); ok {
		def.SetStrategy(strategy)
		return
	}
	d.resolver = NewDefaultConflictResolver(strategy)
}

// Strategy returns the document's current conflict strategy.
func (d *Document) Strategy() ConflictStrategy { return d.strategy }

// SetConflictResolver installs a custom resolver; the document's strategy
// follows the resolver's.
func (d *Document) SetConflictResolver(r ConflictResolver) {
	if r == nil {
		return
	}
	d.resolver = r
	d.strategy = r.Strategy()
}

// Resolver returns the installed conflict resolver.
func (d *Document) Resolver() ConflictResolver { return d.resolver }

// SetAuditLogger installs the audit sink.
func (d *Document) SetAuditLogger(l AuditLogger) {
	if l != nil {
		d.audit = l
	}
}

// Audit returns the audit sink.
func (d *Document) Audit() AuditLogger { return d.audit }

// SetLoggingEnabled toggles the audit sink.
func (d *Document) SetLoggingEnabled(enabled bool) {
	if d.audit != nil {
		d.audit.SetLoggingEnabled(enabled)
	}
}

// LoggingEnabled reports whether the audit sink records operations.
func (d *Document) LoggingEnabled() bool {
	return d.audit != nil && d.audit.LoggingEnabled()
}

// ExportLogs writes this document's audit entries to path as JSON.
func (d *Document) ExportLogs(path string) error {
	if d.audit == nil {
		return fmt.Errorf("no audit logger configured")
	}
	return d.audit.ExportLogs(path, LogFilter{DocumentID: d.id})
}

// SetStore installs the local persistence backend.
func (d *Document) SetStore(s DocumentStore) { d.store = s }

// Store returns the local persistence backend.
func (d *Document) Store() DocumentStore { return d.store }

// SetAutoLocalSave toggles persistence after every mutation. Enabling it
// saves the current state immediately.
func (d *Document) SetAutoLocalSave(enabled bool) {
	d.autoSave = enabled
	if enabled {
		if err := d.SaveLocally(); err != nil {
			d.logger.Warn("auto-save on enable failed", "document", d.id, "error", err)
		}
	}
}

// AutoLocalSaveEnabled reports whether auto-save is on.
func (d *Document) AutoLocalSaveEnabled() bool { return d.autoSave }

// SaveLocally persists the document id, version, content and latest
// snapshot as one durable record keyed by document id.
func (d *Document) SaveLocally() error {
	if d.store == nil {
		d.lastErr = ErrNoStore
		return ErrNoStore
	}
	rec := &PersistenceRecord{
		DocumentID: d.id,
		Version:    d.version,
		Timestamp:  time.Now().UTC(),
		Content:    d.content,
	}
	if len(d.snaps) > 0 {
		latest := d.snaps[len(d.snaps)-1]
		rec.LatestSnapshot = &latest
	}
	if err := d.store.Save(context.Background(), rec); err != nil {
		err = fmt.Errorf("save document %s: %w", d.id, err)
		d.lastErr = err
		return err
	}
	return nil
}

// LoadFromLocal restores the document from its persisted record. It fails
// without mutating state when the record is absent, unreadable or keyed to
// a different document id.
func (d *Document) LoadFromLocal() error {
	if d.store == nil {
		d.lastErr = ErrNoStore
		return ErrNoStore
	}
	rec, err := d.store.Load(context.Background(), d.id)
	if err != nil {
		err = fmt.Errorf("load document %s: %w", d.id, err)
		d.lastErr = err
		return err
	}
	if rec.DocumentID != d.id {
		err := fmt.Errorf("%w: record %q loaded for %q", ErrDocumentIDMismatch, rec.DocumentID, d.id)
		d.lastErr = err
		return err
	}
	if rec.Content == nil {
		err := fmt.Errorf("load document %s: record has no content", d.id)
		d.lastErr = err
		return err
	}

	d.content = rec.Content
	d.version = rec.Version
	if rec.LatestSnapshot != nil {
		if rec.LatestSnapshot.DocumentID == d.id {
			d.snaps = append(d.snaps, *rec.LatestSnapshot)
			if len(d.snaps) > d.maxSnaps {
				d.snaps = d.snaps[len(d.snaps)-d.maxSnaps:]
			}
		} else {
			d.logger.Warn("ignoring snapshot with mismatched id",
				"document", d.id, "snapshot", rec.LatestSnapshot.DocumentID)
		}
	}
	d.notifyChanged()
	return nil
}

// RecoverDocument restores the document from local storage, falling back to
// the newest snapshot. Both failing is terminal: ErrRecoveryExhausted is
// recorded and returned.
func (d *Document) RecoverDocument() error {
	if err := d.LoadFromLocal(); err == nil {
		d.notifyRecovered("LocalStorage")
		return nil
	}
	if len(d.snaps) > 0 {
		if err := d.RestoreFromSnapshot(d.snaps[len(d.snaps)-1]); err == nil {
			d.notifyRecovered("Snapshot")
			return nil
		}
	}
	d.lastErr = ErrRecoveryExhausted
	d.logger.Error("document recovery failed", "document", d.id)
	return ErrRecoveryExhausted
}

// Save asks the owning sync manager to persist this document locally and
// remotely.
func (d *Document) Save() error {
	if d.manager == nil {
		return fmt.Errorf("document %s is not managed", d.id)
	}
	return d.manager.SaveDocument(d)
}

// Sync asks the owning sync manager to request pending remote changes.
func (d *Document) Sync() error {
	if d.manager == nil {
		return fmt.Errorf("document %s is not managed", d.id)
	}
	return d.manager.SyncDocument(d)
}

func (d *Document) notifyChanged() {
	for _, fn := range d.changedHandlers {
		fn(d.id)
	}
	if d.autoSave {
		if err := d.SaveLocally(); err != nil {
			d.logger.Warn("auto-save failed", "document", d.id, "error", err)
		}
	}
}

func (d *Document) notifyRecovered(source string) {
	for _, fn := range d.recoveredHandlers {
		fn(d.id, source)
	}
}

func (d *Document) logOperation(op Operation, oldValue, newValue string, source LogSource, c *Conflict) {
	if d.audit == nil || !d.audit.LoggingEnabled() {
		return
	}
	entry := LogEntry{
		DocumentID:    d.id,
		OperationType: op.Type.String(),
		Path:          op.Path,
		OldValue:      oldValue,
		NewValue:      newValue,
		Timestamp:     time.Now().UTC(),
		ClientID:      op.ClientID,
		Source:        source,
	}
	if c != nil {
		entry.HadConflict = true
		cc := *c
		entry.Conflict = &cc
	}
	d.audit.LogOperation(entry)
}
