package services

import (
	"path/filepath"
	"testing"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-session-store/internal/repo"
)

// newServiceDB opens a migrated SQLite file with the production pragmas.
func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "services_test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Logger = logger.Default.LogMode(logger.Silent)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }
