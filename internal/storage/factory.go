package storage

import (
	"fmt"

	"stickreach/internal/model"
)

// NewStore opens the named backend. An empty kind selects the in-memory
// store; sqlitePath is only consulted by the SQLite backend.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if sqlitePath == "" {
			return nil, fmt.Errorf("%w: sqlite store requires a database path", model.ErrConfiguration)
		}
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("%w: unsupported store backend %q", model.ErrConfiguration, kind)
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
