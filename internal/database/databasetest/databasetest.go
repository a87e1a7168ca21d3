// Package databasetest provides a migrated in-memory database for tests.
package databasetest

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/fuomag9/camera-sentinel/internal/config"
	"github.com/fuomag9/camera-sentinel/internal/database"
)

// New opens a private in-memory sqlite database with all migrations
// applied. A single connection keeps the database alive for the test and
// serializes concurrent transactions.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := database.Connect(config.DatabaseConfig{
		Type:         "sqlite",
		DSN:          ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, zerolog.New(io.Discard))
	if err != nil {
		t.Fatalf("connect test database: %v", err)
	}

	if err := database.RunMigrations(db, "sqlite"); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return db
}
