package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/kritsadaskt/ananta-custom-diamond/internal/diamonds"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects the storage backend.
type Config struct {
	Driver string
	Path   string
	DSN    string
}

// Open establishes the configured connection and performs schema migrations.
func Open(cfg Config, logger *zap.Logger) (*gorm.DB, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		return OpenSQLite(cfg.Path, logger)
	case DriverPostgres:
		return OpenPostgres(cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := migrate(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("driver", DriverSQLite), zap.String("path", path))
	}
	return db, nil
}

// OpenPostgres establishes a PostgreSQL connection and performs schema migrations.
func OpenPostgres(dsn string, logger *zap.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrate(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("driver", DriverPostgres))
	}
	return db, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}
}

func migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(&diamonds.Diamond{}, &diamonds.SyncRun{}, &migrationRecord{}); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}
