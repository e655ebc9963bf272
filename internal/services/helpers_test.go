package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arnold/kumbara-api/internal/allocation"
	"github.com/arnold/kumbara-api/internal/config"
	"github.com/arnold/kumbara-api/internal/database"
	"github.com/arnold/kumbara-api/internal/lock"
	"github.com/arnold/kumbara-api/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakePublisher struct {
	mu     sync.Mutex
	events []Event
}

func (f *fakePublisher) Publish(userID uuid.UUID, event Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakePublisher) count(userID uuid.UUID, eventType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.UserID == userID.String() && e.Type == eventType {
			n++
		}
	}
	return n
}

// last returns the most recent event of a type sent to a user.
func (f *fakePublisher) last(userID uuid.UUID, eventType string) (Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		e := f.events[i]
		if e.UserID == userID.String() && e.Type == eventType {
			return e, true
		}
	}
	return Event{}, false
}

type fixture struct {
	db     *gorm.DB
	ledger *LedgerService
	pub    *fakePublisher
	parent models.User
	child  models.User
	// savings is the parent's account linked to child
	savings models.Account
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name), logger.Silent)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.Migrate(db))
	return db
}

func newFixture(t *testing.T, policy string) *fixture {
	t.Helper()
	db := newTestDB(t)
	pub := &fakePublisher{}

	alloc := allocation.New(allocation.WithClock(func() time.Time { return fixedNow }))
	ledger := NewLedgerService(db, lock.NewLocalLocker(), alloc,
		WithNotifier(NewNotifier(db, pub, nil)),
		WithReleasePolicy(policy),
		WithLedgerClock(func() time.Time { return fixedNow }),
	)

	f := &fixture{db: db, ledger: ledger, pub: pub}
	f.parent = models.User{Email: "parent@example.com", Name: "Parent", Role: models.RoleParent}
	require.NoError(t, db.Create(&f.parent).Error)

	f.savings = models.Account{OwnerID: f.parent.ID, Name: "Kumbara", Type: models.AccountPiggy, Balance: decimal.Zero, Currency: "TRY"}
	require.NoError(t, db.Create(&f.savings).Error)

	f.child = models.User{Email: "child@example.com", Name: "Child", Role: models.RoleChild, ParentID: &f.parent.ID, LinkedAccountID: &f.savings.ID}
	require.NoError(t, db.Create(&f.child).Error)

	require.NoError(t, db.Model(&f.savings).Update("linked_user_id", f.child.ID).Error)
	f.savings.LinkedUserID = &f.child.ID
	return f
}

func defaultFixture(t *testing.T) *fixture {
	return newFixture(t, config.ReleasePolicyRefund)
}

// addGoal inserts a goal directly. seq spaces creation times apart.
func (f *fixture) addGoal(t *testing.T, seq, priority int, target, current int64) models.Goal {
	t.Helper()
	created := fixedNow.Add(-time.Hour).Add(time.Duration(seq) * time.Minute)
	g := models.Goal{
		OwnerID:       f.child.ID,
		Name:          fmt.Sprintf("goal-%d", seq),
		TargetAmount:  decimal.NewFromInt(target),
		CurrentAmount: decimal.NewFromInt(current),
		Priority:      priority,
		Status:        allocation.StatusActive,
		IsVisible:     true,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
	require.NoError(t, f.db.Create(&g).Error)
	return g
}

func (f *fixture) reloadGoal(t *testing.T, id uuid.UUID) models.Goal {
	t.Helper()
	var g models.Goal
	require.NoError(t, f.db.Unscoped().First(&g, "id = ?", id).Error)
	return g
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	var a models.Account
	require.NoError(t, f.db.First(&a, "id = ?", id).Error)
	return a.Balance
}

func (f *fixture) setBalance(t *testing.T, id uuid.UUID, v int64) {
	t.Helper()
	require.NoError(t, f.db.Model(&models.Account{}).Where("id = ?", id).Update("balance", decimal.NewFromInt(v)).Error)
}

func (f *fixture) countTx(t *testing.T, txType models.TransactionType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Transaction{}).Where("type = ?", txType).Count(&n).Error)
	return n
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

var bg = context.Background()
