// SPDX-License-Identifier: AGPL-3.0-only
package storage

import (
	"fmt"
	"path/filepath"

	"github.com/jolks/todolist/internal/config"
)

// Open creates the backend selected by cfg.Backend
func Open(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Backend {
	case "json", "":
		return NewJSONStorage(cfg.Dir)
	case "bolt":
		path := cfg.BoltPath
		if path == "" {
			path = filepath.Join(cfg.Dir, "todolist.db")
		}
		return NewBoltStorage(path)
	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.Dir, "todolist.sqlite")
		}
		return NewSQLiteStorage(path)
	case "memory":
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %q", cfg.Backend)
	}
}
