package allocation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Credit adds amount to the goal and runs the completion check.
func Credit(g Goal, amount decimal.Decimal, now time.Time) Goal {
	g.CurrentAmount = g.CurrentAmount.Add(amount)
	g.UpdatedAt = now
	return Evaluate(g, now)
}

// Evaluate marks an active goal completed once its current amount reaches
// the target, clamping the current amount to the target. Paused goals are
// left alone; completed is final.
func Evaluate(g Goal, now time.Time) Goal {
	if g.Status != StatusActive {
		return g
	}
	if !g.TargetAmount.IsPositive() || g.CurrentAmount.LessThan(g.TargetAmount) {
		return g
	}

	g.CurrentAmount = g.TargetAmount
	g.Status = StatusCompleted
	completedAt := now
	g.CompletedAt = &completedAt
	g.UpdatedAt = now
	return g
}

// Contribute applies a manual contribution to an active goal. The applied
// amount never exceeds the goal's need; the unapplied remainder is
// amount minus applied.
func Contribute(g Goal, amount decimal.Decimal, now time.Time) (Goal, decimal.Decimal, error) {
	if !amount.IsPositive() {
		return g, decimal.Zero, fmt.Errorf("%w: contribution must be positive, got %s", ErrInvalidAmount, amount)
	}
	if g.Status != StatusActive {
		return g, decimal.Zero, fmt.Errorf("%w: status is %s", ErrGoalNotActive, g.Status)
	}

	applied := decimal.Min(amount, g.Need())
	if !applied.IsPositive() {
		return g, decimal.Zero, nil
	}
	return Credit(g, applied, now), applied, nil
}
