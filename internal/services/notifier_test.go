package services

import (
	"testing"

	"github.com/arnold/kumbara-api/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierFamilyIncludesParent(t *testing.T) {
	f := defaultFixture(t)
	n := NewNotifier(f.db, f.pub, nil)

	assert.Equal(t, []uuid.UUID{f.child.ID, f.parent.ID}, n.family(bg, f.child.ID))
	assert.Equal(t, []uuid.UUID{f.parent.ID}, n.family(bg, f.parent.ID))
}

func TestCreateNotificationStoresMetadata(t *testing.T) {
	f := defaultFixture(t)
	n := NewNotifier(f.db, nil, nil)

	n.CreateNotification(bg, f.parent.ID, models.NotificationGoalCompleted, "Goal completed", "Bike", map[string]interface{}{"goalId": "g-1"})

	var notes []models.Notification
	require.NoError(t, f.db.Where("user_id = ?", f.parent.ID).Find(&notes).Error)
	require.Len(t, notes, 1)
	require.NotNil(t, notes[0].Metadata)
	assert.JSONEq(t, `{"goalId":"g-1"}`, *notes[0].Metadata)
	assert.False(t, notes[0].Read)
}

func TestNotifyWithoutPublisher(t *testing.T) {
	f := defaultFixture(t)
	n := NewNotifier(f.db, nil, nil)
	g := f.addGoal(t, 1, 1, 100, 100)

	assert.NotPanics(t, func() {
		n.Notify(bg, &effects{goals: []models.Goal{g}, deleted: []models.Goal{g}, accounts: []models.Account{f.savings}})
	})
}
