package storage

import "fmt"

// NewStore builds a backend by name. path is the sqlite database file or
// the badger directory; an empty badger path keeps the data in memory.
func NewStore(kind, path string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return newSQLiteStore(path)
	case "badger":
		cfg := DefaultBadgerConfig()
		cfg.Path = path
		cfg.InMemory = path == ""
		return NewBadgerStore(cfg), nil
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
