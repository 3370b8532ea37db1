package store

import (
	"fmt"
	"strings"
)

// DefaultSQLitePath is where the CLI and server keep run history unless
// configured otherwise.
const DefaultSQLitePath = "data/agent-evals.db"

// Open builds a Store from a backend name. Supported backends are "sqlite"
// (durable, path required) and "memory" (an in-memory SQLite database for
// tests and one-off CLI runs).
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "sqlite":
		if strings.TrimSpace(path) == "" {
			path = DefaultSQLitePath
		}
		return NewSQLiteStore(path)
	case "memory":
		return NewSQLiteStore(":memory:")
	default:
		return nil, fmt.Errorf("store: unknown backend %q", backend)
	}
}
