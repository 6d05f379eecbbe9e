package store

import (
	"fmt"
)

// NewBackend creates a Backend based on the backend name.
//
// Supported backends:
//
//	"json"   - pretty-printed JSON array at path (default)
//	"sqlite" - SQLite database at path
//	"memory" - In-memory (ephemeral, for testing)
func NewBackend(backend, path string) (Backend, error) {
	switch backend {
	case "json", "":
		return NewJsonFileBackend(path)
	case "sqlite":
		return NewSqliteBackend(path)
	case "memory":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q (supported: json, sqlite, memory)", backend)
	}
}
