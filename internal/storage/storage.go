// Package storage persists small client-side values under fixed keys.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/yildizm/contractis/internal/config"
)

// ErrNotFound is returned by Get when nothing is stored under the key
var ErrNotFound = errors.New("storage: key not found")

// KV is a minimal key/value store
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open returns the backend selected by the storage configuration
func Open(cfg config.StorageConfig) (KV, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileKV(config.ExpandPath(cfg.Dir))
	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.Dir, "state.db")
		}
		return NewSQLiteKV(config.ExpandPath(path))
	case "memory":
		return NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
