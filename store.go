package syncdoc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang/snappy"
)

// PersistenceRecord is the durable per-document record written by
// SaveLocally and read back by LoadFromLocal. The storage layer is
// last-write-wins: the most recent Save for a document id is what Load
// returns.
type PersistenceRecord struct {
	DocumentID     string         `json:"documentId"`
	Version        int64          `json:"version"`
	Timestamp      time.Time      `json:"timestamp"`
	Content        map[string]any `json:"content"`
	LatestSnapshot *Snapshot      `json:"latestSnapshot,omitempty"`
}

// DocumentStore persists document records keyed by document id. Stores may
// be shared across documents and managers; implementations must be safe for
// concurrent use.
type DocumentStore interface {
	// Save writes or overwrites the record for rec.DocumentID.
	Save(ctx context.Context, rec *PersistenceRecord) error

	// Load reads the record for a document id; ErrRecordNotFound when absent.
	Load(ctx context.Context, documentID string) (*PersistenceRecord, error)

	// Delete removes the record for a document id if present.
	Delete(ctx context.Context, documentID string) error

	// List returns the document ids with persisted records.
	List(ctx context.Context) ([]string, error)

	// Close releases any resources.
	Close() error
}

var (
	_ DocumentStore = (*MemoryStore)(nil)
	_ DocumentStore = (*FileStore)(nil)
	_ DocumentStore = (*SQLiteStore)(nil)
	_ DocumentStore = (*S3Store)(nil)
)

// Record encoding: a two-byte magic, one flag byte, then the payload.
// Flags mark snappy compression and AES-GCM encryption; compression is
// applied before encryption.
const (
	recMagic0 = 'S'
	recMagic1 = 'D'

	recFlagCompressed = 1 << 0
	recFlagEncrypted  = 1 << 1
)

// recordCodec serializes persistence records with optional compression and
// encryption. A zero codec is plain JSON.
type recordCodec struct {
	compress  bool
	encryptor *Encryptor
}

func (c recordCodec) encode(rec *PersistenceRecord) ([]byte, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var flags byte
	if c.compress {
		payload = snappy.Encode(nil, payload)
		flags |= recFlagCompressed
	}
	if c.encryptor != nil {
		payload, err = c.encryptor.Encrypt(payload)
		if err != nil {
			return nil, fmt.Errorf("encrypt record: %w", err)
		}
		flags |= recFlagEncrypted
	}
	out := make([]byte, 0, len(payload)+3)
	out = append(out, recMagic0, recMagic1, flags)
	return append(out, payload...), nil
}

func (c recordCodec) decode(data []byte) (*PersistenceRecord, error) {
	if len(data) < 3 || data[0] != recMagic0 || data[1] != recMagic1 {
		return nil, fmt.Errorf("decode record: bad header")
	}
	flags := data[2]
	payload := data[3:]
	var err error
	if flags&recFlagEncrypted != 0 {
		if c.encryptor == nil {
			return nil, fmt.Errorf("decode record: encrypted but no key configured")
		}
		payload, err = c.encryptor.Decrypt(payload)
		if err != nil {
			return nil, fmt.Errorf("decrypt record: %w", err)
		}
	}
	if flags&recFlagCompressed != 0 {
		payload, err = snappy.Decode(nil, payload)
		if err != nil {
			return nil, fmt.Errorf("decompress record: %w", err)
		}
	}
	var rec PersistenceRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}

// MemoryStore keeps encoded records in a map. Useful for tests and as a
// scratch store for unmanaged documents.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
	codec   recordCodec
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

// Save overwrites the record for rec.DocumentID.
func (s *MemoryStore) Save(_ context.Context, rec *PersistenceRecord) error {
	data, err := s.codec.encode(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.DocumentID] = data
	return nil
}

// Load returns the record for documentID.
func (s *MemoryStore) Load(_ context.Context, documentID string) (*PersistenceRecord, error) {
	s.mu.RLock()
	data, ok := s.records[documentID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrRecordNotFound
	}
	return s.codec.decode(data)
}

// Delete removes the record for documentID.
func (s *MemoryStore) Delete(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, documentID)
	return nil
}

// List returns persisted document ids sorted lexically.
func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// FileStoreConfig configures the file-backed document store.
type FileStoreConfig struct {
	// Dir is the directory holding one record file per document.
	Dir string `yaml:"dir"`
	// Compress enables snappy compression of records.
	Compress bool `yaml:"compress"`
	// Encryption optionally encrypts records at rest.
	Encryption *EncryptionConfig `yaml:"encryption"`
}

// FileStore persists one record file per document id under a directory.
// Writes go through a temp file and rename so a crash never leaves a
// half-written record.
type FileStore struct {
	dir   string
	codec recordCodec
	mu    sync.Mutex
}

const recordFileExt = ".sdrec"

// NewFileStore creates the directory if needed and returns a file store.
func NewFileStore(cfg FileStoreConfig) (*FileStore, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("file store: empty directory")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	codec := recordCodec{compress: cfg.Compress}
	if cfg.Encryption != nil && cfg.Encryption.Enabled {
		enc, err := NewEncryptor(*cfg.Encryption)
		if err != nil {
			return nil, fmt.Errorf("file store: %w", err)
		}
		codec.encryptor = enc
	}
	return &FileStore{dir: cfg.Dir, codec: codec}, nil
}

// recordPath maps a document id to its file, escaping path separators.
func (s *FileStore) recordPath(documentID string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(documentID)
	return filepath.Join(s.dir, name+recordFileExt)
}

// Save atomically writes the record for rec.DocumentID.
func (s *FileStore) Save(_ context.Context, rec *PersistenceRecord) error {
	data, err := s.codec.encode(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.recordPath(rec.DocumentID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// Load reads the record for documentID.
func (s *FileStore) Load(_ context.Context, documentID string) (*PersistenceRecord, error) {
	data, err := os.ReadFile(s.recordPath(documentID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("read record: %w", err)
	}
	return s.codec.decode(data)
}

// Delete removes the record file for documentID if present.
func (s *FileStore) Delete(_ context.Context, documentID string) error {
	err := os.Remove(s.recordPath(documentID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// List returns document ids for all record files in the directory. Ids are
// derived from escaped filenames and may differ from the originals when
// those contained path separators.
func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordFileExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), recordFileExt))
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
