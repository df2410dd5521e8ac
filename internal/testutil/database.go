package testutil

import (
	"testing"

	"fswatcher/internal/database"
	"fswatcher/internal/mirror"
)

// NewTestDatabase creates a migrated in-memory state database that is closed
// when the test completes.
func NewTestDatabase(t *testing.T, clock mirror.Clock) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(database.MemoryPath, clock)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}
