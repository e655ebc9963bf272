package models

import (
	"time"

	"github.com/arnold/kumbara-api/internal/allocation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Goal struct {
	ID            uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID       uuid.UUID         `json:"ownerId" gorm:"type:uuid;index;not null"`
	Name          string            `json:"name" gorm:"not null"`
	Description   string            `json:"description"`
	Icon          string            `json:"icon"`
	Color         string            `json:"color"`
	Category      string            `json:"category"`
	TargetAmount  decimal.Decimal   `json:"targetAmount" gorm:"type:decimal(20,8);not null"`
	CurrentAmount decimal.Decimal   `json:"currentAmount" gorm:"type:decimal(20,8);not null"`
	Priority      int               `json:"priority" gorm:"not null;index"`
	Status        allocation.Status `json:"status" gorm:"not null;index"` // active, paused, completed
	IsVisible     bool              `json:"isVisible" gorm:"not null"`
	IsParallel    bool              `json:"isParallel" gorm:"not null;default:false;index"`
	TargetDate    *time.Time        `json:"targetDate"`
	Version       int               `json:"version" gorm:"not null"`
	CompletedAt   *time.Time        `json:"completedAt"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	DeletedAt     gorm.DeletedAt    `json:"-" gorm:"index"`
}

func (g *Goal) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

// Snapshot converts the stored goal into its allocation view.
func (g *Goal) Snapshot() allocation.Goal {
	return allocation.Goal{
		ID:            g.ID,
		Owner:         g.OwnerID,
		Name:          g.Name,
		TargetAmount:  g.TargetAmount,
		CurrentAmount: g.CurrentAmount,
		Priority:      g.Priority,
		Status:        g.Status,
		IsVisible:     g.IsVisible,
		CreatedAt:     g.CreatedAt,
		UpdatedAt:     g.UpdatedAt,
		CompletedAt:   g.CompletedAt,
	}
}

// Apply copies the fields an allocation run may change back onto the goal.
func (g *Goal) Apply(s allocation.Goal) {
	g.CurrentAmount = s.CurrentAmount
	g.Status = s.Status
	g.CompletedAt = s.CompletedAt
	g.UpdatedAt = s.UpdatedAt
}

// Progress is the funded share of the target as a percentage.
func (g *Goal) Progress() float64 {
	if !g.TargetAmount.IsPositive() {
		return 0
	}
	pct, _ := g.CurrentAmount.Div(g.TargetAmount).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

func Snapshots(goals []Goal) []allocation.Goal {
	out := make([]allocation.Goal, len(goals))
	for i := range goals {
		out[i] = goals[i].Snapshot()
	}
	return out
}

// Goal DTOs
type CreateGoalRequest struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Icon         string          `json:"icon"`
	Color        string          `json:"color"`
	Category     string          `json:"category"`
	TargetAmount decimal.Decimal `json:"targetAmount"`
	Priority     *int            `json:"priority"`
	IsVisible    *bool           `json:"isVisible"`
	IsParallel   bool            `json:"isParallel"`
	TargetDate   *time.Time      `json:"targetDate"`
}

type UpdateGoalRequest struct {
	Name         *string          `json:"name"`
	Description  *string          `json:"description"`
	Icon         *string          `json:"icon"`
	Color        *string          `json:"color"`
	Category     *string          `json:"category"`
	TargetAmount *decimal.Decimal `json:"targetAmount"`
	Priority     *int             `json:"priority"`
	IsVisible    *bool            `json:"isVisible"`
	IsParallel   *bool            `json:"isParallel"`
	TargetDate   *time.Time       `json:"targetDate"`
}

type UpdateGoalStatusRequest struct {
	Status allocation.Status `json:"status"`
}

type GoalPriority struct {
	ID       uuid.UUID `json:"id"`
	Priority int       `json:"priority"`
}

type ReorderGoalsRequest struct {
	Goals []GoalPriority `json:"goals"`
}

type PreviewRequest struct {
	Amount decimal.Decimal `json:"amount"`
}
