// Package db provides database connection and migration functionality.
package db

import (
	"fmt"
	stdlog "log"
	"os"

	"influence-monitoring/internal/config"
	"influence-monitoring/internal/models"
	"influence-monitoring/internal/store"
	"influence-monitoring/internal/store/gormdb"
	"influence-monitoring/internal/store/localdb"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open opens a database connection using the provided configuration.
// It returns nil, nil when no database is configured.
func Open(cfg config.Config) (*gorm.DB, error) {
	// Configure GORM logger (Silent to avoid cluttering output; only errors will be logged)
	newLogger := logger.New(
		stdlog.New(os.Stdout, "", stdlog.LstdFlags),
		logger.Config{
			SlowThreshold:             0,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	if cfg.DBDialect == "" || cfg.DBDsn == "" {
		return nil, nil
	}

	switch cfg.DBDialect {
	case config.DatabaseSchemePostgres:
		return gorm.Open(postgres.Open(cfg.DBDsn), &gorm.Config{Logger: newLogger})
	default:
		return nil, fmt.Errorf("unsupported DB_DIALECT: %s", cfg.DBDialect)
	}
}

// AutoMigrate runs database migrations for all models.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	return db.AutoMigrate(
		&models.Proposal{},
		&models.Vote{},
		&models.Finding{},
	)
}

// OpenStore returns the engine store: postgres when a database is
// configured, the leveldb store at cfg.LevelDBPath otherwise. gdb is nil for
// the leveldb store.
func OpenStore(cfg config.Config) (s store.Store, gdb *gorm.DB, err error) {
	gdb, err = Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if gdb == nil {
		l, err := localdb.New(cfg.LevelDBPath)
		if err != nil {
			return nil, nil, err
		}
		return l, nil, nil
	}
	if err := AutoMigrate(gdb); err != nil {
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	return gormdb.New(gdb), gdb, nil
}
