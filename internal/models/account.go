package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AccountType string

const (
	AccountMain    AccountType = "main"
	AccountSavings AccountType = "savings"
	AccountPiggy   AccountType = "piggy"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountMain, AccountSavings, AccountPiggy:
		return true
	}
	return false
}

// Linkable reports whether a child can be attached to accounts of this type.
func (t AccountType) Linkable() bool {
	return t == AccountSavings || t == AccountPiggy
}

type Account struct {
	ID           uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID      uuid.UUID       `json:"ownerId" gorm:"type:uuid;index;not null"`
	Name         string          `json:"name" gorm:"not null"`
	Type         AccountType     `json:"type" gorm:"not null"`
	Balance      decimal.Decimal `json:"balance" gorm:"type:decimal(20,8);not null"`
	Currency     string          `json:"currency" gorm:"not null;default:TRY"`
	Description  string          `json:"description"`
	Icon         string          `json:"icon"`
	Color        string          `json:"color"`
	LinkedUserID *uuid.UUID      `json:"linkedUserId" gorm:"type:uuid;index"` // child whose goals receive deposits
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	DeletedAt    gorm.DeletedAt  `json:"-" gorm:"index"`
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Account DTOs
type CreateAccountRequest struct {
	Name        string          `json:"name"`
	Type        AccountType     `json:"type"`
	Balance     decimal.Decimal `json:"balance"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	Icon        string          `json:"icon"`
	Color       string          `json:"color"`
}

type UpdateAccountRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Icon        *string `json:"icon"`
	Color       *string `json:"color"`
}

type AmountRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type TransferRequest struct {
	FromAccountID uuid.UUID       `json:"fromAccountId"`
	ToAccountID   uuid.UUID       `json:"toAccountId"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
}

type AccountSummary struct {
	TotalBalance decimal.Decimal                 `json:"totalBalance"`
	AccountCount int                             `json:"accountCount"`
	ByType       map[AccountType]decimal.Decimal `json:"byType"`
}

type AccountActivity struct {
	Deposits         decimal.Decimal `json:"deposits"`
	Withdrawals      decimal.Decimal `json:"withdrawals"`
	TransactionCount int             `json:"transactionCount"`
}

// AccountStats aggregates the ledger movements on a user's own accounts
// since the start of a period. Deposits count every credit and withdrawals
// every debit, goal funding included.
type AccountStats struct {
	Period           string                              `json:"period"`
	Since            time.Time                           `json:"since"`
	TotalDeposits    decimal.Decimal                     `json:"totalDeposits"`
	TotalWithdrawals decimal.Decimal                     `json:"totalWithdrawals"`
	NetAmount        decimal.Decimal                     `json:"netAmount"`
	TransactionCount int                                 `json:"transactionCount"`
	ByType           map[TransactionType]decimal.Decimal `json:"byType"`
	ByAccount        map[uuid.UUID]*AccountActivity      `json:"byAccount"`
}

// Add folds one movement into the totals.
func (s *AccountStats) Add(t Transaction) {
	s.TransactionCount++
	s.ByType[t.Type] = s.ByType[t.Type].Add(t.Amount)

	var acct *AccountActivity
	if t.AccountID != nil {
		acct = s.ByAccount[*t.AccountID]
		if acct == nil {
			acct = &AccountActivity{Deposits: decimal.Zero, Withdrawals: decimal.Zero}
			s.ByAccount[*t.AccountID] = acct
		}
		acct.TransactionCount++
	}

	switch {
	case t.Type.Credits():
		s.TotalDeposits = s.TotalDeposits.Add(t.Amount)
		if acct != nil {
			acct.Deposits = acct.Deposits.Add(t.Amount)
		}
	case t.Type.Debits():
		s.TotalWithdrawals = s.TotalWithdrawals.Add(t.Amount)
		if acct != nil {
			acct.Withdrawals = acct.Withdrawals.Add(t.Amount)
		}
	}
	s.NetAmount = s.TotalDeposits.Sub(s.TotalWithdrawals)
}
