package store

import (
	"context"
	"fmt"
)

// Config selects and locates a backend.
type Config struct {
	Type string // memory, sqlite or postgres
	Path string // sqlite file
	URL  string // postgres DSN
}

// Open returns a Templates store for cfg.
func Open(ctx context.Context, cfg Config) (*Templates, error) {
	switch cfg.Type {
	case "memory":
		return NewMemory(), nil
	case "sqlite", "":
		return OpenSQLite(cfg.Path)
	case "postgres", "postgresql":
		return OpenPostgres(ctx, cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}
