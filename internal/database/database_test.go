package database

import (
	"testing"

	"github.com/arnold/kumbara-api/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestOpenAndMigrateSQLite(t *testing.T) {
	db, err := Open("file:database_test?mode=memory&cache=shared", logger.Silent)
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	require.NoError(t, Migrate(db))

	for _, table := range []any{&models.User{}, &models.Account{}, &models.Goal{}, &models.Transaction{}, &models.Notification{}} {
		assert.True(t, db.Migrator().HasTable(table))
	}

	user := models.User{Email: "parent@example.com"}
	require.NoError(t, db.Create(&user).Error)
	assert.Equal(t, models.RoleParent, user.Role)

	goal := models.Goal{
		OwnerID:       user.ID,
		Name:          "Bike",
		TargetAmount:  decimal.RequireFromString("1200.50"),
		CurrentAmount: decimal.Zero,
		Priority:      1,
		Status:        "active",
		IsVisible:     true,
	}
	require.NoError(t, db.Create(&goal).Error)

	var loaded models.Goal
	require.NoError(t, db.First(&loaded, "id = ?", goal.ID).Error)
	assert.True(t, loaded.TargetAmount.Equal(goal.TargetAmount), "got %s", loaded.TargetAmount)
	assert.True(t, loaded.IsVisible)
}
