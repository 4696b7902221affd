// Package postgres implements the storage.Backend interface on PostgreSQL/PostGIS.
package postgres

import (
	"fmt"
	"log/slog"

	"github.com/mapcrafter/playermarkers/internal/config"
	"github.com/mapcrafter/playermarkers/internal/database"
	gormstorage "github.com/mapcrafter/playermarkers/internal/storage/gorm"

	"gorm.io/gorm"
)

const maxOpenConns = 10

// Backend wraps the GORM backend with a PostgreSQL connection.
type Backend struct {
	*gormstorage.Backend
	cfg config.DBConfig
	log *slog.Logger
}

// New creates a new PostgreSQL storage backend. The connection is opened by Init.
func New(cfg config.DBConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{Logger: logger}),
		cfg:     cfg,
		log:     logger,
	}
}

// NewWithDB creates a backend on an existing connection.
func NewWithDB(db *gorm.DB, logger *slog.Logger) *Backend {
	b := New(config.DBConfig{}, logger)
	b.SetDB(db)
	return b
}

// Init connects to Postgres (unless a DB was injected), validates the
// connection and initializes the embedded GORM backend.
func (b *Backend) Init() error {
	if b.DB() == nil {
		b.log.Debug("Connecting to Postgres", "host", b.cfg.Host, "port", b.cfg.Port, "database", b.cfg.Database)
		db, err := database.OpenPostgres(b.cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to access sql interface: %w", err)
		}
		if err = sqlDB.Ping(); err != nil {
			return fmt.Errorf("failed to validate connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(maxOpenConns)
		b.SetDB(db)
		b.log.Info("Connected to database", "host", b.cfg.Host, "database", b.cfg.Database)
	}

	return b.Backend.Init()
}
