package syncdoc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// SyncManager owns a registry of documents and drives their persistence and
// network synchronization through a pluggable Transport.
//
// Like Document, the manager is not internally locked: it assumes one
// logical thread drives it, including transport callbacks. Hosts whose
// transport delivers callbacks on other goroutines must serialize them
// before they reach the manager.
type SyncManager struct {
	cfg       Config
	strategy  ConflictStrategy
	documents map[string]*Document
	store     DocumentStore
	transport Transport
	audit     AuditLogger
	logger    *slog.Logger

	syncCompleteHandlers []func(documentID string)
	saveErrorHandlers    []func(documentID string, err error)
}

// NewSyncManager builds a manager from cfg, opening the configured storage
// backend. The caller owns Close.
func NewSyncManager(cfg Config) (*SyncManager, error) {
	if cfg.MaxOperationHistory <= 0 {
		cfg.MaxOperationHistory = 100
	}
	if cfg.MaxSnapshotHistory <= 0 {
		cfg.MaxSnapshotHistory = 10
	}
	strategy, err := ParseConflictStrategy(cfg.DefaultConflictStrategy)
	if err != nil {
		return nil, err
	}
	store, err := OpenStore(context.Background(), cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	audit := NewMemoryLogger(cfg.Audit.MaxEntries)
	audit.SetLoggingEnabled(cfg.Audit.Enabled)
	return &SyncManager{
		cfg:       cfg,
		strategy:  strategy,
		documents: make(map[string]*Document),
		store:     store,
		audit:     audit,
		logger:    slog.Default(),
	}, nil
}

// Close shuts down the transport and the store. Documents remain usable for
// local operations against an already-closed store only insofar as the store
// allows it.
func (m *SyncManager) Close() error {
	var errs []error
	if m.transport != nil {
		errs = append(errs, m.transport.Close())
	}
	if m.store != nil {
		errs = append(errs, m.store.Close())
	}
	return errors.Join(errs...)
}

// SetTransport installs the transport and registers for pushed patches.
func (m *SyncManager) SetTransport(t Transport) {
	m.transport = t
	if t != nil {
		t.RegisterPatchReceived(m.handlePatchReceived)
	}
}

// Transport returns the installed transport, nil when none.
func (m *SyncManager) Transport() Transport { return m.transport }

// Store returns the manager's storage backend.
func (m *SyncManager) Store() DocumentStore { return m.store }

// OnSyncComplete registers a handler fired after a pushed patch has been
// applied and persisted.
func (m *SyncManager) OnSyncComplete(fn func(documentID string)) {
	m.syncCompleteHandlers = append(m.syncCompleteHandlers, fn)
}

// OnSaveError registers a handler fired when a local or remote save fails.
func (m *SyncManager) OnSaveError(fn func(documentID string, err error)) {
	m.saveErrorHandlers = append(m.saveErrorHandlers, fn)
}

// CreateDocument creates and registers a document under the manager's
// configuration. Creating an id twice is an error; use Document to fetch an
// existing one.
func (m *SyncManager) CreateDocument(documentID string) (*Document, error) {
	if documentID == "" {
		return nil, fmt.Errorf("%w: empty document id", ErrInvalidOperation)
	}
	if _, exists := m.documents[documentID]; exists {
		return nil, fmt.Errorf("document %s already exists", documentID)
	}
	d := NewDocument(documentID, DocumentConfig{
		MaxOperationHistory: m.cfg.MaxOperationHistory,
		MaxSnapshotHistory:  m.cfg.MaxSnapshotHistory,
		ConflictStrategy:    m.strategy,
		ClientID:            m.cfg.ClientID,
		AutoLocalSave:       m.cfg.AutoLocalSave,
		Store:               m.store,
		Audit:               m.audit,
		Logger:              m.logger,
	})
	d.manager = m
	m.documents[documentID] = d
	if err := m.SaveDocument(d); err != nil {
		m.logger.Warn("initial save failed", "document", documentID, "error", err)
	}
	return d, nil
}

// Document returns the registered document for an id.
func (m *SyncManager) Document(documentID string) (*Document, bool) {
	d, ok := m.documents[documentID]
	return d, ok
}

// DocumentIDs returns the ids of all registered documents.
func (m *SyncManager) DocumentIDs() []string {
	ids := make([]string, 0, len(m.documents))
	for id := range m.documents {
		ids = append(ids, id)
	}
	return ids
}

// LoadDocument fetches a document from the remote server, registering it
// locally when new. The fetched state arrives through the transport
// callback; an already-registered document adopts the server content and
// version wholesale.
func (m *SyncManager) LoadDocument(documentID string) error {
	if m.transport == nil {
		return ErrNoTransport
	}
	m.transport.LoadDocument(documentID,
		func(data DocumentData) {
			d, ok := m.documents[documentID]
			if !ok {
				var err error
				d, err = m.CreateDocument(documentID)
				if err != nil {
					m.logger.Error("register loaded document failed", "document", documentID, "error", err)
					return
				}
			} else {
				m.logger.Warn("reloading already-registered document", "document", documentID)
			}
			snap := Snapshot{
				DocumentID: documentID,
				Version:    data.Version,
				Timestamp:  time.Now().UTC(),
				Content:    data.Content,
			}
			if err := d.RestoreFromSnapshot(snap); err != nil {
				m.logger.Error("install loaded document failed", "document", documentID, "error", err)
				return
			}
			if err := d.SaveLocally(); err != nil {
				m.notifySaveError(documentID, err)
			}
		},
		func(documentID string, err error) {
			m.logger.Warn("remote load failed", "document", documentID, "error", err)
		})
	return nil
}

// SaveDocument persists a document locally first, then pushes the full
// document to the remote server in the background. A remote failure re-saves
// locally so the durable record reflects the unsynced state, and save-error
// handlers fire.
func (m *SyncManager) SaveDocument(d *Document) error {
	if err := d.SaveLocally(); err != nil {
		m.notifySaveError(d.ID(), err)
		return err
	}
	if m.transport == nil {
		// No transport configured: the local record is the source of truth.
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	m.transport.SaveDocument(DocumentData{
		DocumentID: d.ID(),
		Version:    d.Version(),
		Content:    d.ContentString(),
		UpdatedAt:  now,
	},
		func(documentID string) {
			m.logger.Debug("remote save ok", "document", documentID)
		},
		func(documentID string, err error) {
			m.logger.Warn("remote save failed", "document", documentID, "error", err)
			if doc, ok := m.documents[documentID]; ok {
				if serr := doc.SaveLocally(); serr != nil {
					m.logger.Warn("fallback local save failed", "document", documentID, "error", serr)
				}
			}
			m.notifySaveError(documentID, err)
		})
	return nil
}

// SyncDocument asks the remote server for pending changes by sending an
// empty patch at the document's current version. Responses arrive as pushed
// patches.
func (m *SyncManager) SyncDocument(d *Document) error {
	if m.transport == nil {
		return ErrNoTransport
	}
	p := NewPatch(d.ID(), d.Version(), nil)
	p.ClientID = m.cfg.ClientID
	m.transport.SendPatch(p,
		func(documentID string) {
			m.logger.Debug("sync request sent", "document", documentID)
		},
		func(documentID string, err error) {
			m.logger.Warn("sync request failed", "document", documentID, "error", err)
		})
	return nil
}

// handlePatchReceived routes a pushed patch to its document. Patches for
// unknown ids are dropped with a warning. A failed application triggers
// document recovery; the recovery outcome is logged, not re-raised.
func (m *SyncManager) handlePatchReceived(p Patch) {
	d, ok := m.documents[p.DocumentID]
	if !ok {
		m.logger.Warn("dropping patch for unknown document", "document", p.DocumentID)
		return
	}
	if err := d.ApplyPatch(p); err != nil {
		m.logger.Warn("patch application failed, recovering", "document", p.DocumentID, "error", err)
		if rerr := d.RecoverDocument(); rerr != nil {
			m.logger.Error("recovery after failed patch failed", "document", p.DocumentID, "error", rerr)
		}
		return
	}
	if err := d.SaveLocally(); err != nil {
		m.notifySaveError(p.DocumentID, err)
	}
	for _, fn := range m.syncCompleteHandlers {
		fn(p.DocumentID)
	}
}

// RecoverAllDocuments attempts recovery on every registered document and
// returns the number recovered.
func (m *SyncManager) RecoverAllDocuments() int {
	recovered := 0
	for id, d := range m.documents {
		if err := d.RecoverDocument(); err != nil {
			m.logger.Warn("recovery failed", "document", id, "error", err)
			continue
		}
		recovered++
	}
	return recovered
}

// SaveAllDocumentsLocally persists every registered document, returning the
// joined errors of the ones that failed.
func (m *SyncManager) SaveAllDocumentsLocally() error {
	var errs []error
	for id, d := range m.documents {
		if err := d.SaveLocally(); err != nil {
			m.notifySaveError(id, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetDefaultConflictStrategy switches the strategy for new documents and
// retroactively for every registered one.
func (m *SyncManager) SetDefaultConflictStrategy(strategy ConflictStrategy) {
	m.strategy = strategy
	m.cfg.DefaultConflictStrategy = strategy.String()
	for _, d := range m.documents {
		d.SetConflictStrategy(strategy)
	}
}

// DefaultConflictStrategy returns the strategy applied to new documents.
func (m *SyncManager) DefaultConflictStrategy() ConflictStrategy { return m.strategy }

// SetLogger installs an audit sink on the manager and retrofits it onto
// every registered document.
func (m *SyncManager) SetLogger(l AuditLogger) {
	if l == nil {
		return
	}
	m.audit = l
	for _, d := range m.documents {
		d.SetAuditLogger(l)
	}
}

// Logger returns the manager's audit sink.
func (m *SyncManager) Logger() AuditLogger { return m.audit }

// SetLoggingEnabled toggles audit logging on the shared sink.
func (m *SyncManager) SetLoggingEnabled(enabled bool) {
	m.audit.SetLoggingEnabled(enabled)
}

// LoggingEnabled reports whether the shared audit sink records operations.
func (m *SyncManager) LoggingEnabled() bool { return m.audit.LoggingEnabled() }

// ExportAllLogs writes every audit entry across all documents to path.
func (m *SyncManager) ExportAllLogs(path string) error {
	return m.audit.ExportLogs(path, LogFilter{})
}

func (m *SyncManager) notifySaveError(documentID string, err error) {
	for _, fn := range m.saveErrorHandlers {
		fn(documentID, err)
	}
}
