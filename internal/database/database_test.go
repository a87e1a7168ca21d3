package database_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/fuomag9/camera-sentinel/internal/config"
	"github.com/fuomag9/camera-sentinel/internal/database"
	"github.com/fuomag9/camera-sentinel/internal/database/databasetest"
	"github.com/fuomag9/camera-sentinel/internal/models"
)

func TestConnect_UnsupportedType(t *testing.T) {
	if _, err := database.Connect(config.DatabaseConfig{Type: "mysql"}, zerolog.New(io.Discard)); err == nil {
		t.Fatal("expected error for unsupported database type")
	}
}

func TestRunMigrations_CreatesTablesAndIsRepeatable(t *testing.T) {
	db := databasetest.New(t)

	for _, table := range []string{"cameras", "users", "alerts"} {
		if !db.Migrator().HasTable(table) {
			t.Errorf("table %s missing after migration", table)
		}
	}

	if err := database.RunMigrations(db, "sqlite"); err != nil {
		t.Fatalf("second run: %v", err)
	}
}

func TestOpenAlertUniqueIndex(t *testing.T) {
	db := databasetest.New(t)

	if err := db.Exec(`INSERT INTO cameras (name, status) VALUES ('lobby', 'offline')`).Error; err != nil {
		t.Fatalf("insert camera: %v", err)
	}
	if err := db.Exec(`INSERT INTO alerts (camera_id) VALUES (1)`).Error; err != nil {
		t.Fatalf("first open alert: %v", err)
	}
	if err := db.Exec(`INSERT INTO alerts (camera_id) VALUES (1)`).Error; err == nil {
		t.Fatal("second open alert for the same camera should violate the unique index")
	}
	if err := db.Exec(`UPDATE alerts SET is_resolved = 1 WHERE camera_id = 1`).Error; err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := db.Exec(`INSERT INTO alerts (camera_id) VALUES (1)`).Error; err != nil {
		t.Fatalf("open alert after resolve: %v", err)
	}
}

func TestConnect_LogsThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	db, err := database.Connect(config.DatabaseConfig{
		Type:         "sqlite",
		DSN:          ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, zerolog.New(&buf))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	if err := database.RunMigrations(db, "sqlite"); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}

	var camera models.Camera
	if err := db.First(&camera, 99).Error; !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("First: got %v", err)
	}
	if strings.Contains(buf.String(), "record not found") {
		t.Errorf("missing rows should not be logged: %s", buf.String())
	}

	db.Exec("SELECT * FROM no_such_table")
	out := buf.String()
	if !strings.Contains(out, "no_such_table") || !strings.Contains(out, `"component":"gorm"`) {
		t.Errorf("failed statement should be logged through zerolog, got %q", out)
	}
}
