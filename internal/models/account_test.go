package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountStatsAdd(t *testing.T) {
	acct := uuid.New()
	stats := AccountStats{
		ByType:    map[TransactionType]decimal.Decimal{},
		ByAccount: map[uuid.UUID]*AccountActivity{},
	}

	for _, tx := range []Transaction{
		{AccountID: &acct, Type: TxDeposit, Amount: decimal.NewFromInt(300)},
		{AccountID: &acct, Type: TxGoalAllocation, Amount: decimal.NewFromInt(120)},
		{AccountID: &acct, Type: TxGoalRefund, Amount: decimal.NewFromInt(20)},
		{AccountID: &acct, Type: TxWithdrawal, Amount: decimal.NewFromInt(50)},
		{Type: TxGoalContribution, Amount: decimal.NewFromInt(10)},
	} {
		stats.Add(tx)
	}

	assert.Equal(t, 5, stats.TransactionCount)
	assert.True(t, stats.TotalDeposits.Equal(decimal.NewFromInt(320)))
	assert.True(t, stats.TotalWithdrawals.Equal(decimal.NewFromInt(170)))
	assert.True(t, stats.NetAmount.Equal(decimal.NewFromInt(150)))
	assert.True(t, stats.ByType[TxGoalContribution].Equal(decimal.NewFromInt(10)))

	require.Contains(t, stats.ByAccount, acct)
	assert.Equal(t, 4, stats.ByAccount[acct].TransactionCount)
	assert.True(t, stats.ByAccount[acct].Deposits.Equal(decimal.NewFromInt(320)))
}

func TestTransactionDirection(t *testing.T) {
	assert.True(t, TxTransferIn.Credits())
	assert.False(t, TxTransferIn.Debits())
	assert.True(t, TxGoalTransfer.Debits())
	assert.False(t, TxGoalRedistribute.Credits())
	assert.False(t, TxGoalRedistribute.Debits())
}
