// Package allocation splits a pool of money across a single owner's savings
// goals. Goals are grouped into priority tiers; each tier is funded
// proportionally to unmet need before any money reaches the next tier.
//
// Everything in this package is pure: inputs are never mutated and no
// storage is touched. Persisting a Result is the caller's job.
package allocation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

// Goal is the allocation view of a savings goal.
type Goal struct {
	ID            uuid.UUID       `json:"id"`
	Owner         uuid.UUID       `json:"owner"`
	Name          string          `json:"name,omitempty"`
	TargetAmount  decimal.Decimal `json:"targetAmount"`
	CurrentAmount decimal.Decimal `json:"currentAmount"`
	Priority      int             `json:"priority"`
	Status        Status          `json:"status"`
	IsVisible     bool            `json:"isVisible"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
}

// Eligible reports whether the goal takes part in automatic distribution.
func (g Goal) Eligible() bool {
	return g.Status == StatusActive && g.IsVisible
}

// Need is the amount still missing to reach the target, never negative.
// Goals without a positive target need nothing.
func (g Goal) Need() decimal.Decimal {
	if !g.TargetAmount.IsPositive() {
		return decimal.Zero
	}
	need := g.TargetAmount.Sub(g.CurrentAmount)
	if need.IsNegative() {
		return decimal.Zero
	}
	return need
}
