// Package testhelpers provides shared fixtures for package tests.
package testhelpers

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ttaflutter/game-plus/internal/models"
	"github.com/ttaflutter/game-plus/internal/store"
)

// SetupTestDB opens an in-memory sqlite database keyed by the test name so
// parallel tests do not share state, and migrates the full schema.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err, "failed to open test database")
	require.NoError(t, store.AutoMigrate(db), "failed to migrate test database")
	return db
}

// CreateTestUser inserts a user with a throwaway password hash.
func CreateTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	u := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateTestMatch inserts a waiting Caro match with the default board.
func CreateTestMatch(t *testing.T, db *gorm.DB) *models.Match {
	t.Helper()

	game := &models.Game{}
	require.NoError(t, db.First(game, "name = ?", "Caro").Error)
	m := &models.Match{
		GameID:    game.ID,
		BoardRows: 15,
		BoardCols: 19,
		WinLen:    5,
		Status:    models.MatchWaiting,
	}
	require.NoError(t, db.Create(m).Error)
	return m
}
