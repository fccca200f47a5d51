// Package repo implements the persistence layer of one backend partition,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver), tracing and schema migrations.
package repo

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-campus-chat/internal/domain"
)

// OpenSQLite opens (or creates) a SQLite database, applies PRAGMAs and
// installs the OpenTelemetry tracing plugin.
func OpenSQLite(path string) (*gorm.DB, error) {
	// sqlite reports a missing directory as "out of memory (14)".
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	// Connection-scoped pragmas go in the DSN so every pooled connection
	// gets them.
	dsn := path + "?" + strings.Join([]string{
		"_pragma=busy_timeout(5000)",
		"_pragma=foreign_keys(1)",
		"_pragma=synchronous(NORMAL)",
	}, "&")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	// WAL is a property of the database file.
	if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
		_ = Close(db)
		return nil, err
	}

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		_ = Close(db)
		return nil, err
	}

	return db, nil
}

// AutoMigrate creates the partition schema, including the composite indexes
// the history and live queries rely on.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.MessageDoc{},
		&domain.AnonIdentity{},
		&domain.NameReservation{},
	)
}

// MissingIndexes returns the names of required message indexes that do not
// exist. A missing table reports both.
func MissingIndexes(db *gorm.DB) []string {
	var missing []string
	m := db.Migrator()
	for _, name := range []string{domain.IndexHistory, domain.IndexLive} {
		if !m.HasIndex(&domain.MessageDoc{}, name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
