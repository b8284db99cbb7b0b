// Package store picks the membership store backend named by configuration.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ghaditya/spotify-group-session/internal/adapters/store/memory"
	"github.com/ghaditya/spotify-group-session/internal/adapters/store/sqlite"
	"github.com/ghaditya/spotify-group-session/internal/config"
	"github.com/ghaditya/spotify-group-session/internal/core"
)

func Open(cfg config.StoreConfig) (core.MembershipStore, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: creating %s: %w", dir, err)
			}
		}
		return sqlite.Open(sqlite.Config{Path: cfg.Path, PoolSize: cfg.PoolSize})
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
