package repository

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/welldanyogia/infinimail-threads/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB opens an in-memory SQLite database with every table migrated.
// A single connection keeps all goroutines on the same in-memory database.
func openTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(&models.Domain{}, &models.Message{}, &models.Thread{}, &models.ThreadAssignment{})
	require.NoError(t, err)
	return db
}

func closeTestDB(db *gorm.DB) {
	sqlDB, _ := db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

func cleanTables(db *gorm.DB) {
	db.Exec("DELETE FROM thread_assignments")
	db.Exec("DELETE FROM threads")
	db.Exec("DELETE FROM messages")
	db.Exec("DELETE FROM domains")
}
