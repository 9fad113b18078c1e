package main

import (
	"fmt"
	"path/filepath"

	"shopping-lists/internal/back4app"
	"shopping-lists/internal/database"
	"shopping-lists/internal/storage"
	"shopping-lists/internal/storage/memory"
	"shopping-lists/internal/storage/remote"
	"shopping-lists/internal/storage/sqlstore"
)

// openStore builds the store selected by STORE_BACKEND.
func (a *app) openStore() (storage.Storage, error) {
	switch a.cfg.Backend {
	case storage.BackendMemory:
		store := memory.New()
		if path := a.cfg.MemorySnapshotPath; path != "" {
			if err := store.LoadSnapshot(path); err != nil {
				return nil, err
			}
			a.logger.Named("memory").Info("snapshot loaded", "path", path)
		}
		return store, nil

	case storage.BackendSQLite:
		db, err := database.NewDB(a.cfg.DatabasePath, a.logger.Named("database"))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return sqlstore.New(db.SQL), nil

	case storage.BackendBack4App:
		return a.openRemote(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", a.cfg.Backend)
}

func (a *app) openRemote() *remote.Store {
	client := back4app.NewClient(a.cfg, a.logger.Named("back4app"))
	return remote.New(client, a.logger.Named("remote"))
}

// dataPath is the local directory the health report measures.
func (a *app) dataPath() string {
	switch a.cfg.Backend {
	case storage.BackendSQLite:
		return filepath.Dir(a.cfg.DatabasePath)
	case storage.BackendMemory:
		if a.cfg.MemorySnapshotPath != "" {
			return filepath.Dir(a.cfg.MemorySnapshotPath)
		}
	}
	return ""
}
