package repository_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/embermatch/engine/internal/db"
)

// openTestDB spins up an in-memory SQLite DB with the full schema applied.
// Each test gets its own isolated database.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dbName := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gdb))
	return gdb
}

// createUsers inserts n active users with ids 1..n, alternating genders.
func createUsers(t *testing.T, gdb *gorm.DB, n int) {
	t.Helper()

	users := make([]db.User, 0, n)
	for i := 1; i <= n; i++ {
		gender, wants := "male", "female"
		if i%2 == 0 {
			gender, wants = "female", "male"
		}
		users = append(users, db.User{
			ID:               uint64(i),
			Username:         fmt.Sprintf("user%d", i),
			Email:            fmt.Sprintf("u%d@test.com", i),
			PasswordHash:     "x",
			Status:           db.UserStatusActive,
			Gender:           gender,
			LookingFor:       wants,
			CanStartMatching: true,
		})
	}
	require.NoError(t, gdb.Create(&users).Error)
}

// backdateAction rewinds an action's updated_at, bypassing gorm's
// auto-update tracking.
func backdateAction(t *testing.T, gdb *gorm.DB, actorID, targetID uint64, to time.Time) {
	t.Helper()
	require.NoError(t, gdb.Exec(
		"UPDATE actions SET updated_at = ? WHERE actor_id = ? AND target_id = ?",
		to, actorID, targetID,
	).Error)
}
