package factory

import (
	"fmt"
	"strings"

	"github.com/opsup/opsup/internal/store"
	pg "github.com/opsup/opsup/internal/store/postgres"
	sq "github.com/opsup/opsup/internal/store/sqlite"
)

// New selects a store implementation from config.
// Supported types: "sqlite" (Path required), "postgresql"/"postgres"
// (DSN required), "memory", and "" which defaults to memory.
func New(cfg store.Config) (store.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", "memory":
		return store.NewMemory(), nil
	case "sqlite":
		return sq.New(cfg.Path)
	case "postgres", "postgresql":
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, fmt.Errorf("postgresql store requires dsn")
		}
		return pg.New(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported store type: %q", cfg.Type)
	}
}
