package syncdoc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	// SQLite driver using pure Go implementation
	_ "modernc.org/sqlite"
)

// SQLiteStoreConfig configures the SQLite document store.
type SQLiteStoreConfig struct {
	// Path to the SQLite database file.
	Path string `yaml:"path"`

	// JournalMode sets the SQLite journal mode (WAL, DELETE, TRUNCATE, ...).
	JournalMode string `yaml:"journal_mode"`

	// Synchronous sets the synchronous pragma (OFF, NORMAL, FULL, EXTRA).
	Synchronous string `yaml:"synchronous"`

	// BusyTimeout is the lock acquisition timeout in milliseconds.
	BusyTimeout int `yaml:"busy_timeout"`

	// MaxConnections bounds the connection pool.
	MaxConnections int `yaml:"max_connections"`

	// Compress enables snappy compression of record payloads.
	Compress bool `yaml:"compress"`

	// Encryption optionally encrypts record payloads at rest.
	Encryption *EncryptionConfig `yaml:"encryption"`
}

// DefaultSQLiteStoreConfig returns default configuration.
func DefaultSQLiteStoreConfig() SQLiteStoreConfig {
	return SQLiteStoreConfig{
		Path:           "syncdoc.db",
		JournalMode:    "WAL",
		Synchronous:    "NORMAL",
		BusyTimeout:    5000,
		MaxConnections: 10,
	}
}

// SQLiteStore persists document records in a single SQLite table, one row
// per document id with last-write-wins upserts. The database remains
// readable with standard SQLite tools.
type SQLiteStore struct {
	db     *sql.DB
	codec  recordCodec
	mu     sync.Mutex
	closed bool

	saveStmt   *sql.Stmt
	loadStmt   *sql.Stmt
	deleteStmt *sql.Stmt
	listStmt   *sql.Stmt
}

// NewSQLiteStore opens (creating if needed) the database at cfg.Path.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		cfg.Path = "syncdoc.db"
	}
	if cfg.JournalMode == "" {
		cfg.JournalMode = "WAL"
	}
	if cfg.Synchronous == "" {
		cfg.Synchronous = "NORMAL"
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5000
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 10
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(%s)&_pragma=synchronous(%s)&_pragma=busy_timeout(%d)",
		cfg.Path, cfg.JournalMode, cfg.Synchronous, cfg.BusyTimeout)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)

	s := &SQLiteStore{db: db}
	if cfg.Compress {
		s.codec.compress = true
	}
	if cfg.Encryption != nil && cfg.Encryption.Enabled {
		enc, err := NewEncryptor(*cfg.Encryption)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
		s.codec.encryptor = enc
	}

	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	const schema = `
CREATE TABLE IF NOT EXISTS documents (
	document_id TEXT PRIMARY KEY,
	version     INTEGER NOT NULL,
	updated_at  TEXT NOT NULL,
	record      BLOB NOT NULL
);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var err error
	s.saveStmt, err = s.db.Prepare(`
INSERT INTO documents (document_id, version, updated_at, record)
VALUES (?, ?, ?, ?)
ON CONFLICT(document_id) DO UPDATE SET
	version = excluded.version,
	updated_at = excluded.updated_at,
	record = excluded.record`)
	if err != nil {
		return fmt.Errorf("prepare save: %w", err)
	}
	s.loadStmt, err = s.db.Prepare(`SELECT record FROM documents WHERE document_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare load: %w", err)
	}
	s.deleteStmt, err = s.db.Prepare(`DELETE FROM documents WHERE document_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	s.listStmt, err = s.db.Prepare(`SELECT document_id FROM documents ORDER BY document_id`)
	if err != nil {
		return fmt.Errorf("prepare list: %w", err)
	}
	return nil
}

// Save upserts the record for rec.DocumentID.
func (s *SQLiteStore) Save(ctx context.Context, rec *PersistenceRecord) error {
	data, err := s.codec.encode(rec)
	if err != nil {
		return err
	}
	_, err = s.saveStmt.ExecContext(ctx, rec.DocumentID, rec.Version,
		rec.Timestamp.Format("2006-01-02T15:04:05.999999999Z07:00"), data)
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

// Load reads the record for documentID.
func (s *SQLiteStore) Load(ctx context.Context, documentID string) (*PersistenceRecord, error) {
	var data []byte
	err := s.loadStmt.QueryRowContext(ctx, documentID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	return s.codec.decode(data)
}

// Delete removes the record for documentID.
func (s *SQLiteStore) Delete(ctx context.Context, documentID string) error {
	if _, err := s.deleteStmt.ExecContext(ctx, documentID); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// List returns persisted document ids in lexical order.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.listStmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list records: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close releases prepared statements and the database handle.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, stmt := range []*sql.Stmt{s.saveStmt, s.loadStmt, s.deleteStmt, s.listStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.db.Close()
}
