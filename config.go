package syncdoc

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StorageConfig selects and configures the local persistence backend.
type StorageConfig struct {
	// Backend is one of "memory", "file", "sqlite" or "s3". Empty means
	// "memory".
	Backend string `yaml:"backend"`

	File   FileStoreConfig   `yaml:"file"`
	SQLite SQLiteStoreConfig `yaml:"sqlite"`
	S3     S3StoreConfig     `yaml:"s3"`
}

// AuditConfig configures the audit sink created for managed documents.
type AuditConfig struct {
	// Enabled toggles audit logging. Default: true.
	Enabled bool `yaml:"enabled"`

	// MaxEntries bounds the in-memory audit buffer. Default: 1000.
	MaxEntries int `yaml:"max_entries"`
}

// Config is the top-level sync engine configuration.
type Config struct {
	// ClientID identifies this client on outgoing patches. Required for
	// last-writer-wins attribution and Local/Remote audit tagging.
	ClientID string `yaml:"client_id"`

	// MaxOperationHistory bounds each document's operation FIFO. Default: 100.
	MaxOperationHistory int `yaml:"max_operation_history"`

	// MaxSnapshotHistory bounds each document's snapshot FIFO. Default: 10.
	MaxSnapshotHistory int `yaml:"max_snapshot_history"`

	// AutoLocalSave persists documents after every successful mutation.
	AutoLocalSave bool `yaml:"auto_local_save"`

	// DefaultConflictStrategy names the strategy applied to new documents:
	// "last-writer-wins", "local-wins" or "remote-wins".
	DefaultConflictStrategy string `yaml:"default_conflict_strategy"`

	Storage   StorageConfig            `yaml:"storage"`
	Transport WebSocketTransportConfig `yaml:"transport"`
	Audit     AuditConfig              `yaml:"audit"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		MaxOperationHistory:     100,
		MaxSnapshotHistory:      10,
		DefaultConflictStrategy: LastWriterWins.String(),
		Storage:                 StorageConfig{Backend: "memory"},
		Audit:                   AuditConfig{Enabled: true, MaxEntries: DefaultMaxLogEntries},
	}
}

// LoadConfigFile reads a YAML config file, layering it over DefaultConfig.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if _, err := ParseConflictStrategy(cfg.DefaultConflictStrategy); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// OpenStore builds the document store named by cfg.Backend.
func OpenStore(ctx context.Context, cfg StorageConfig) (DocumentStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(cfg.File)
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite)
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
