package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionType string

const (
	TxDeposit          TransactionType = "deposit"
	TxWithdrawal       TransactionType = "withdrawal"
	TxTransferIn       TransactionType = "transfer_in"
	TxTransferOut      TransactionType = "transfer_out"
	TxGoalAllocation   TransactionType = "goal_allocation"   // account -> goal by distribution
	TxGoalTransfer     TransactionType = "goal_transfer"     // account -> goal by explicit request
	TxGoalContribution TransactionType = "goal_contribution" // outside money -> goal
	TxGoalRefund       TransactionType = "goal_refund"       // deleted goal -> account
	TxGoalRedistribute TransactionType = "goal_redistribution"
)

// Credits reports whether the movement adds money to its account.
func (t TransactionType) Credits() bool {
	switch t {
	case TxDeposit, TxTransferIn, TxGoalRefund:
		return true
	}
	return false
}

// Debits reports whether the movement takes money out of its account.
func (t TransactionType) Debits() bool {
	switch t {
	case TxWithdrawal, TxTransferOut, TxGoalAllocation, TxGoalTransfer:
		return true
	}
	return false
}

// Transaction is one ledger movement. Amount is always positive; Type gives
// the direction. Balance is the account balance right after the movement.
type Transaction struct {
	ID          uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID       `json:"userId" gorm:"type:uuid;index;not null"`
	AccountID   *uuid.UUID      `json:"accountId" gorm:"type:uuid;index"`
	GoalID      *uuid.UUID      `json:"goalId" gorm:"type:uuid;index"`
	Type        TransactionType `json:"type" gorm:"not null"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:decimal(20,8);not null"`
	Balance     decimal.Decimal `json:"balance" gorm:"type:decimal(20,8);not null"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	DeletedAt   gorm.DeletedAt  `json:"-" gorm:"index"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
