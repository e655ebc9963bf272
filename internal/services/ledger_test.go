package services

import (
	"sync"
	"testing"

	"github.com/arnold/kumbara-api/internal/allocation"
	"github.com/arnold/kumbara-api/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepositDistributesToLinkedUserGoals(t *testing.T) {
	f := defaultFixture(t)
	a := f.addGoal(t, 1, 1, 1000, 500)
	b := f.addGoal(t, 2, 1, 800, 500)

	out, err := f.ledger.Deposit(bg, f.parent.ID, f.savings.ID, dec(700), "")
	require.NoError(t, err)

	assert.True(t, out.Distributed.Equal(dec(699)))
	assert.True(t, out.Leftover.Equal(dec(1)))
	require.Len(t, out.Allocations, 2)
	assert.True(t, out.Account.Balance.Equal(dec(1)))

	assert.True(t, f.reloadGoal(t, a.ID).CurrentAmount.Equal(dec(937)))
	assert.True(t, f.reloadGoal(t, b.ID).CurrentAmount.Equal(dec(762)))
	assert.True(t, f.balance(t, f.savings.ID).Equal(dec(1)))
	assert.Equal(t, 1, f.reloadGoal(t, a.ID).Version)

	assert.EqualValues(t, 1, f.countTx(t, models.TxDeposit))
	assert.EqualValues(t, 2, f.countTx(t, models.TxGoalAllocation))

	assert.Equal(t, 1, f.pub.count(f.parent.ID, EventBalanceChanged))
	assert.Equal(t, 1, f.pub.count(f.child.ID, EventBalanceChanged))
	assert.Equal(t, 2, f.pub.count(f.child.ID, EventGoalProgress))
	assert.Equal(t, 2, f.pub.count(f.parent.ID, EventGoalProgress))
}

func TestDepositCarriesRemainderToNextTier(t *testing.T) {
	f := defaultFixture(t)
	f.addGoal(t, 1, 1, 1000, 500)
	f.addGoal(t, 2, 1, 800, 500)
	c := f.addGoal(t, 3, 2, 1000, 0)

	out, err := f.ledger.Deposit(bg, f.parent.ID, f.savings.ID, dec(700), "Allowance")
	require.NoError(t, err)

	assert.True(t, out.Leftover.IsZero())
	assert.True(t, f.reloadGoal(t, c.ID).CurrentAmount.Equal(dec(1)))
	assert.True(t, f.balance(t, f.savings.ID).IsZero())
}

func TestDepositOnUnlinkedAccountKeepsMoney(t *testing.T) {
	f := defaultFixture(t)
	main, err := f.ledger.CreateAccount(bg, f.parent.ID, models.CreateAccountRequest{Name: "Main", Balance: dec(50)})
	require.NoError(t, err)
	f.addGoal(t, 1, 1, 100, 0)

	out, err := f.ledger.Deposit(bg, f.parent.ID, main.ID, dec(25), "")
	require.NoError(t, err)
	assert.Empty(t, out.Allocations)
	assert.True(t, out.Leftover.Equal(dec(25)))
	assert.True(t, f.balance(t, main.ID).Equal(dec(75)))
	assert.EqualValues(t, 2, f.countTx(t, models.TxDeposit))
}

func TestDepositCompletesGoalAndNotifiesFamily(t *testing.T) {
	f := defaultFixture(t)
	near := f.addGoal(t, 1, 1, 1000, 950)

	out, err := f.ledger.Deposit(bg, f.parent.ID, f.savings.ID, dec(50), "")
	require.NoError(t, err)
	require.Len(t, out.Allocations, 1)
	assert.True(t, out.Allocations[0].Completed)

	done := f.reloadGoal(t, near.ID)
	assert.Equal(t, allocation.StatusCompleted, done.Status)
	assert.True(t, done.CurrentAmount.Equal(dec(1000)))
	require.NotNil(t, done.CompletedAt)

	assert.Equal(t, 1, f.pub.count(f.child.ID, EventGoalCompleted))
	assert.Equal(t, 1, f.pub.count(f.parent.ID, EventGoalCompleted))
	var notes []models.Notification
	require.NoError(t, f.db.Where("type = ?", models.NotificationGoalCompleted).Find(&notes).Error)
	assert.Len(t, notes, 2)

	// a completed goal never receives money again, even at top priority
	other := f.addGoal(t, 2, 9, 500, 0)
	_, err = f.ledger.Deposit(bg, f.parent.ID, f.savings.ID, dec(100), "")
	require.NoError(t, err)
	assert.True(t, f.reloadGoal(t, near.ID).CurrentAmount.Equal(dec(1000)))
	assert.True(t, f.reloadGoal(t, other.ID).CurrentAmount.Equal(dec(100)))
}

func TestDepositRejectsBadInput(t *testing.T) {
	f := defaultFixture(t)

	_, err := f.ledger.Deposit(bg, f.parent.ID, f.savings.ID, dec(-5), "")
	assert.ErrorIs(t, err, allocation.ErrInvalidAmount)

	_, err = f.ledger.Deposit(bg, f.child.ID, f.savings.ID, dec(5), "")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = f.ledger.Deposit(bg, f.parent.ID, uuid.New(), dec(5), "")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestWithdraw(t *testing.T) {
	f := defaultFixture(t)
	f.setBalance(t, f.savings.ID, 40)

	_, err := f.ledger.Withdraw(bg, f.parent.ID, f.savings.ID, dec(41), "")
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.True(t, f.balance(t, f.savings.ID).Equal(dec(40)))

	acct, err := f.ledger.Withdraw(bg, f.parent.ID, f.savings.ID, dec(15), "pocket money")
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(dec(25)))
	assert.EqualValues(t, 1, f.countTx(t, models.TxWithdrawal))
}

func TestTransferDistributesOnDestination(t *testing.T) {
	f := defaultFixture(t)
	main, err := f.ledger.CreateAccount(bg, f.parent.ID, models.CreateAccountRequest{Name: "Main", Balance: dec(500)})
	require.NoError(t, err)
	g := f.addGoal(t, 1, 1, 300, 0)

	out, err := f.ledger.Transfer(bg, f.parent.ID, models.TransferRequest{
		FromAccountID: main.ID,
		ToAccountID:   f.savings.ID,
		Amount:        dec(400),
	})
	require.NoError(t, err)

	assert.True(t, out.From.Balance.Equal(dec(100)))
	assert.True(t, out.To.Distributed.Equal(dec(300)))
	assert.True(t, out.To.Leftover.Equal(dec(100)))
	assert.True(t, f.balance(t, f.savings.ID).Equal(dec(100)))
	assert.Equal(t, allocation.StatusCompleted, f.reloadGoal(t, g.ID).Status)
}

func TestTransferValidation(t *testing.T) {
	f := defaultFixture(t)
	main, err := f.ledger.CreateAccount(bg, f.parent.ID, models.CreateAccountRequest{Name: "Main", Balance: dec(10)})
	require.NoError(t, err)

	_, err = f.ledger.Transfer(bg, f.parent.ID, models.TransferRequest{FromAccountID: main.ID, ToAccountID: main.ID, Amount: dec(1)})
	assert.ErrorIs(t, err, ErrSameAccount)

	_, err = f.ledger.Transfer(bg, f.parent.ID, models.TransferRequest{FromAccountID: main.ID, ToAccountID: f.savings.ID, Amount: dec(11)})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.True(t, f.balance(t, main.ID).Equal(dec(10)))
}

func TestDistributeBalance(t *testing.T) {
	f := defaultFixture(t)
	f.setBalance(t, f.savings.ID, 300)
	g := f.addGoal(t, 1, 1, 1000, 0)

	_, err := f.ledger.DistributeBalance(bg, f.parent.ID, f.savings.ID, dec(301))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	out, err := f.ledger.DistributeBalance(bg, f.parent.ID, f.savings.ID, dec(200))
	require.NoError(t, err)
	assert.True(t, out.Distributed.Equal(dec(200)))
	assert.True(t, f.balance(t, f.savings.ID).Equal(dec(100)))
	assert.True(t, f.reloadGoal(t, g.ID).CurrentAmount.Equal(dec(200)))

	main, err := f.ledger.CreateAccount(bg, f.parent.ID, models.CreateAccountRequest{Name: "Main", Balance: dec(10)})
	require.NoError(t, err)
	_, err = f.ledger.DistributeBalance(bg, f.parent.ID, main.ID, dec(5))
	assert.ErrorIs(t, err, ErrAccountNotLinked)
}

func TestDeleteAccount(t *testing.T) {
	f := defaultFixture(t)
	f.setBalance(t, f.savings.ID, 1)

	assert.ErrorIs(t, f.ledger.DeleteAccount(bg, f.parent.ID, f.savings.ID), ErrAccountNotEmpty)

	f.setBalance(t, f.savings.ID, 0)
	require.NoError(t, f.ledger.DeleteAccount(bg, f.parent.ID, f.savings.ID))

	var child models.User
	require.NoError(t, f.db.First(&child, "id = ?", f.child.ID).Error)
	assert.Nil(t, child.LinkedAccountID)
}

func TestConcurrentDepositsConserveMoney(t *testing.T) {
	f := defaultFixture(t)
	goals := []models.Goal{
		f.addGoal(t, 1, 1, 70, 0),
		f.addGoal(t, 2, 1, 45, 0),
		f.addGoal(t, 3, 2, 60, 0),
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Deposit(bg, f.parent.ID, f.savings.ID, dec(10), "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	total := f.balance(t, f.savings.ID)
	for _, g := range goals {
		got := f.reloadGoal(t, g.ID)
		assert.True(t, got.CurrentAmount.LessThanOrEqual(got.TargetAmount))
		total = total.Add(got.CurrentAmount)
	}
	assert.True(t, total.Equal(dec(200)), "total %s", total)
	assert.EqualValues(t, 20, f.countTx(t, models.TxDeposit))
}

func TestSaveGoalRejectsStaleVersion(t *testing.T) {
	f := defaultFixture(t)
	g := f.addGoal(t, 1, 1, 100, 0)

	stale := g
	require.NoError(t, saveGoal(f.db, &g, fixedNow))
	assert.ErrorIs(t, saveGoal(f.db, &stale, fixedNow), ErrConcurrentUpdate)
}
