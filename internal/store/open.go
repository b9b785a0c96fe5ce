package store

import (
	"context"
	"fmt"

	"eventpass/internal/config"
	"eventpass/internal/registry"
)

// Open builds the Store selected by cfg.StoreBackend. Both binaries share
// this so backend selection stays a composition-time decision.
func Open(ctx context.Context, cfg config.App) (registry.Store, error) {
	switch cfg.StoreBackend {
	case "postgres":
		return OpenPostgres(ctx, cfg.DatabaseURL)
	case "sqlite":
		return OpenSQLite(cfg.SQLitePath, 0)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
