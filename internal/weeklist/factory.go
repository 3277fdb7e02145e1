package weeklist

import (
	"fmt"
	"strings"
)

// BuildStoreFromDSN picks a Store implementation from a DSN:
// "memory://" (or empty) for the in-memory store, a postgres:// URL for
// the Postgres store.
func BuildStoreFromDSN(dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "" || dsn == "memory" || dsn == "memory://":
		return NewMemoryStore(), nil
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgresStore(dsn)
	default:
		return nil, fmt.Errorf("unsupported store DSN: %s", dsn)
	}
}
