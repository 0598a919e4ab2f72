package store

import (
	"fmt"
	"strings"

	"formless/pkg/formless"
)

const (
	// BackendJSONFile selects the JSON document store.
	BackendJSONFile = "jsonfile"
	// BackendSQLite selects the SQLite store.
	BackendSQLite = "sqlite"
)

// Store is a memory store with an explicit close for held resources.
type Store interface {
	formless.MemoryStore
	Close() error
}

// Open builds the store implementation selected by backend.
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendJSONFile:
		opened, err := NewJSONFileStore(path)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		return opened, nil
	case BackendSQLite:
		opened, err := NewSQLiteStore(path)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		return opened, nil
	default:
		return nil, fmt.Errorf("open store: unsupported backend %q", backend)
	}
}
