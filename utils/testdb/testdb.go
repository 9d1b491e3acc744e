// Package testdb builds throwaway SQLite databases for tests.
package testdb

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"widgethub/models"
)

// New returns a migrated in-memory database private to t. The pool is
// limited to one connection, so goroutines sharing it are serialised the way
// row locks would serialise them on Postgres.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

// Project inserts a project with the given timezone.
func Project(t testing.TB, db *gorm.DB, timezone string) *models.Project {
	t.Helper()
	p := &models.Project{Name: "Test project", Timezone: timezone}
	require.NoError(t, db.Create(p).Error)
	return p
}

// User inserts an active user with the given role.
func User(t testing.TB, db *gorm.DB, email string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{Email: email, PasswordHash: "x", Role: role, Plan: models.PlanFree, IsActive: true, TokenVersion: 1}
	require.NoError(t, db.Create(u).Error)
	return u
}
