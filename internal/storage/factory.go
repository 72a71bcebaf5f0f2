package storage

import (
	"fmt"
	"strings"
)

// Kinds lists the supported store backends.
func Kinds() []string {
	return []string{"memory", "sqlite", "postgres"}
}

// NewStore builds an uninitialised store. dsn is the sqlite file path or the
// postgres connection string; the memory backend ignores it.
func NewStore(kind, dsn string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(dsn), nil
	case "postgres", "postgresql", "pgx":
		return NewPostgresStore(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
