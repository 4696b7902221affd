// internal/storage/factory.go
package storage

import (
	"fmt"
	"log/slog"

	"github.com/mapcrafter/playermarkers/internal/config"
	"github.com/mapcrafter/playermarkers/internal/storage/memory"
	"github.com/mapcrafter/playermarkers/internal/storage/postgres"
	sqlitestorage "github.com/mapcrafter/playermarkers/internal/storage/sqlite"
	"github.com/mapcrafter/playermarkers/internal/storage/websocket"
)

// NewBackend creates a storage backend based on configuration.
// Type "none" (or empty) returns a nil backend: recording is disabled.
func NewBackend(cfg config.StorageConfig, db config.DBConfig, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return memory.New(cfg.Memory), nil
	case "sqlite":
		return sqlitestorage.New(sqlitestorage.Config{
			Path:         cfg.SQLite.Path,
			DumpPath:     cfg.SQLite.DumpPath,
			DumpInterval: cfg.SQLite.DumpInterval,
		}, logger), nil
	case "postgres":
		return postgres.New(db, logger), nil
	case "websocket":
		return websocket.New(websocket.Config{
			URL:    cfg.WebSocket.URL,
			Secret: cfg.WebSocket.Secret,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
