// Package persistence provides the durable sqlite store for sealed fiscal
// documents.
package persistence

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fiscal/backend/internal/infrastructure/logger"
	"github.com/fiscal/backend/internal/infrastructure/persistence/models"
)

// Database holds the sqlite connection.
type Database struct {
	DB *gorm.DB
}

// NewDatabase opens (or creates) the sqlite document store at path and runs
// schema migration. Queries log through the zap-backed GORM adapter.
func NewDatabase(path string, zapLogger *zap.Logger) (*Database, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	var gormLogger gormlogger.Interface = gormlogger.Default.LogMode(gormlogger.Silent)
	if zapLogger != nil {
		gormLogger = logger.NewGormLogger(zapLogger, gormlogger.Warn)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	if err := db.AutoMigrate(&models.SealedDocumentModel{}); err != nil {
		return nil, fmt.Errorf("migrate document store: %w", err)
	}
	return &Database{DB: db}, nil
}

// Close closes the underlying connection.
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}
