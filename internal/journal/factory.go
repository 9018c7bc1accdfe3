package journal

import "fmt"

// NewStore returns an uninitialised store for the configured backend.
// The "none" backend returns a nil Store; a Recorder with a nil Store
// records nothing.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if sqlitePath == "" {
			return nil, fmt.Errorf("sqlite journal requires a path")
		}
		return NewSQLiteStore(sqlitePath), nil
	default:
		return nil, fmt.Errorf("unsupported journal backend: %s", kind)
	}
}

// CloseIfSupported closes stores that hold resources.
func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
