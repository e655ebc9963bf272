package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/arnold/kumbara-api/internal/allocation"
	"github.com/arnold/kumbara-api/internal/config"
	"github.com/arnold/kumbara-api/internal/lock"
	"github.com/arnold/kumbara-api/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type GoalScope int

const (
	ScopeAll GoalScope = iota
	ScopeVisible
	ScopeCompleted
	ScopeParallel
)

type ContributionOutcome struct {
	Goal      models.Goal     `json:"goal"`
	Applied   decimal.Decimal `json:"applied"`
	Unapplied decimal.Decimal `json:"unapplied"`
	Account   *models.Account `json:"account,omitempty"`
}

type DeleteOutcome struct {
	GoalID        uuid.UUID        `json:"goalId"`
	Released      decimal.Decimal  `json:"released"`
	Redistributed decimal.Decimal  `json:"redistributed"`
	Refunded      decimal.Decimal  `json:"refunded"`
	Forfeited     decimal.Decimal  `json:"forfeited"`
	RefundAccount *uuid.UUID       `json:"refundAccountId,omitempty"`
	Allocations   []GoalAllocation `json:"allocations"`
}

func findGoal(tx *gorm.DB, goalID uuid.UUID) (*models.Goal, error) {
	var g models.Goal
	if err := tx.First(&g, "id = ?", goalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGoalNotFound
		}
		return nil, fmt.Errorf("load goal: %w", err)
	}
	return &g, nil
}

// accessibleGoal loads a goal the actor may act on. Goals outside the
// actor's family are reported as missing.
func accessibleGoal(tx *gorm.DB, actorID, goalID uuid.UUID) (*models.Goal, error) {
	g, err := findGoal(tx, goalID)
	if err != nil {
		return nil, err
	}
	if err := authorize(tx, actorID, g.OwnerID); err != nil {
		if errors.Is(err, ErrForbidden) {
			return nil, ErrGoalNotFound
		}
		return nil, err
	}
	return g, nil
}

// fundingAccount is the account that pays into and receives refunds from a
// user's goals: the account linked to the user, else their own main account,
// else their oldest account.
func fundingAccount(tx *gorm.DB, userID uuid.UUID) (*models.Account, error) {
	var user models.User
	if err := tx.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	var acct models.Account
	if user.LinkedAccountID != nil {
		err := tx.First(&acct, "id = ?", *user.LinkedAccountID).Error
		if err == nil {
			return &acct, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("load linked account: %w", err)
		}
	}

	err := tx.Where("owner_id = ?", userID).
		Order("CASE WHEN type = 'main' THEN 0 ELSE 1 END").
		Order("created_at ASC").
		First(&acct).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	return &acct, nil
}

// Goals lists a user's goals ordered the way distribution visits them.
func (s *LedgerService) Goals(ctx context.Context, actorID, ownerID uuid.UUID, scope GoalScope) ([]models.Goal, error) {
	db := s.db.WithContext(ctx)
	if err := authorize(db, actorID, ownerID); err != nil {
		return nil, err
	}

	q := db.Where("owner_id = ?", ownerID)
	switch scope {
	case ScopeVisible:
		q = q.Where("status = ? AND is_visible = ?", allocation.StatusActive, true)
	case ScopeCompleted:
		q = q.Where("status = ?", allocation.StatusCompleted)
	case ScopeParallel:
		q = q.Where("status = ? AND is_parallel = ?", allocation.StatusActive, true)
	}

	goals := []models.Goal{}
	if err := q.Order("priority ASC").Order("created_at ASC").Order("id ASC").Find(&goals).Error; err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	return goals, nil
}

func (s *LedgerService) Goal(ctx context.Context, actorID, goalID uuid.UUID) (*models.Goal, error) {
	return accessibleGoal(s.db.WithContext(ctx), actorID, goalID)
}

func (s *LedgerService) CreateGoal(ctx context.Context, actorID, ownerID uuid.UUID, req models.CreateGoalRequest) (*models.Goal, error) {
	db := s.db.WithContext(ctx)
	if err := authorize(db, actorID, ownerID); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !req.TargetAmount.IsPositive() {
		return nil, fmt.Errorf("%w: target must be positive", ErrInvalidTarget)
	}
	priority := 1
	if req.Priority != nil {
		priority = *req.Priority
	}
	if priority < 1 {
		return nil, ErrInvalidPriority
	}
	visible := true
	if req.IsVisible != nil {
		visible = *req.IsVisible
	}

	goal := models.Goal{
		OwnerID:       ownerID,
		Name:          name,
		Description:   req.Description,
		Icon:          req.Icon,
		Color:         req.Color,
		Category:      req.Category,
		TargetAmount:  req.TargetAmount,
		CurrentAmount: decimal.Zero,
		Priority:      priority,
		Status:        allocation.StatusActive,
		IsVisible:     visible,
		IsParallel:    req.IsParallel,
		TargetDate:    req.TargetDate,
	}
	if err := db.Create(&goal).Error; err != nil {
		return nil, fmt.Errorf("create goal: %w", err)
	}
	return &goal, nil
}

// UpdateGoal edits a goal. The target can never drop below the amount
// already saved; reaching it exactly completes the goal.
func (s *LedgerService) UpdateGoal(ctx context.Context, actorID, goalID uuid.UUID, req models.UpdateGoalRequest) (*models.Goal, error) {
	before, err := accessibleGoal(s.db.WithContext(ctx), actorID, goalID)
	if err != nil {
		return nil, err
	}

	fx := &effects{}
	var goal *models.Goal
	err = s.locked(ctx, []string{lock.OwnerKey(before.OwnerID)}, func(tx *gorm.DB) error {
		goal, err = accessibleGoal(tx, actorID, goalID)
		if err != nil {
			return err
		}
		completed := false

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return fmt.Errorf("%w: name is required", ErrValidation)
			}
			goal.Name = name
		}
		if req.Description != nil {
			goal.Description = *req.Description
		}
		if req.Icon != nil {
			goal.Icon = *req.Icon
		}
		if req.Color != nil {
			goal.Color = *req.Color
		}
		if req.Category != nil {
			goal.Category = *req.Category
		}
		if req.TargetDate != nil {
			goal.TargetDate = req.TargetDate
		}
		if req.IsVisible != nil {
			goal.IsVisible = *req.IsVisible
		}
		if req.IsParallel != nil {
			goal.IsParallel = *req.IsParallel
		}
		if req.Priority != nil {
			if *req.Priority < 1 {
				return ErrInvalidPriority
			}
			goal.Priority = *req.Priority
		}

		now := s.now()
		if req.TargetAmount != nil && !req.TargetAmount.Equal(goal.TargetAmount) {
			if goal.Status == allocation.StatusCompleted {
				return ErrGoalCompleted
			}
			if !req.TargetAmount.IsPositive() {
				return fmt.Errorf("%w: target must be positive", ErrInvalidTarget)
			}
			if req.TargetAmount.LessThan(goal.CurrentAmount) {
				return fmt.Errorf("%w: target %s is below saved amount %s", ErrInvalidTarget, req.TargetAmount, goal.CurrentAmount)
			}
			goal.TargetAmount = *req.TargetAmount
			goal.Apply(allocation.Evaluate(goal.Snapshot(), now))
			completed = goal.Status == allocation.StatusCompleted
		}

		if err := saveGoal(tx, goal, now); err != nil {
			return err
		}
		fx.goals = append(fx.goals, *goal)
		if completed {
			fx.completed = append(fx.completed, *goal)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, fx)
	return goal, nil
}

// SetGoalStatus toggles a goal between active and paused. Completed goals
// stay completed and cannot be set completed by hand.
func (s *LedgerService) SetGoalStatus(ctx context.Context, actorID, goalID uuid.UUID, status allocation.Status) (*models.Goal, error) {
	if status != allocation.StatusActive && status != allocation.StatusPaused {
		return nil, fmt.Errorf("%w: cannot set status to %q", ErrInvalidStatusTransition, status)
	}
	before, err := accessibleGoal(s.db.WithContext(ctx), actorID, goalID)
	if err != nil {
		return nil, err
	}

	fx := &effects{}
	var goal *models.Goal
	err = s.locked(ctx, []string{lock.OwnerKey(before.OwnerID)}, func(tx *gorm.DB) error {
		goal, err = accessibleGoal(tx, actorID, goalID)
		if err != nil {
			return err
		}
		if goal.Status == allocation.StatusCompleted {
			return fmt.Errorf("%w: goal is completed", ErrInvalidStatusTransition)
		}
		if goal.Status == status {
			return nil
		}
		now := s.now()
		goal.Status = status
		// A goal whose target was met while paused completes on resume.
		goal.Apply(allocation.Evaluate(goal.Snapshot(), now))
		if err := saveGoal(tx, goal, now); err != nil {
			return err
		}
		fx.goals = append(fx.goals, *goal)
		if goal.Status == allocation.StatusCompleted {
			fx.completed = append(fx.completed, *goal)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, fx)
	return goal, nil
}

// ReorderGoals assigns new priorities to several of one owner's goals.
func (s *LedgerService) ReorderGoals(ctx context.Context, actorID, ownerID uuid.UUID, items []models.GoalPriority) ([]models.Goal, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no goals given", ErrValidation)
	}
	for _, it := range items {
		if it.Priority < 1 {
			return nil, ErrInvalidPriority
		}
	}
	if err := authorize(s.db.WithContext(ctx), actorID, ownerID); err != nil {
		return nil, err
	}

	err := s.locked(ctx, []string{lock.OwnerKey(ownerID)}, func(tx *gorm.DB) error {
		now := s.now()
		for _, it := range items {
			g, err := findGoal(tx, it.ID)
			if err != nil {
				return err
			}
			if g.OwnerID != ownerID {
				return ErrGoalNotFound
			}
			if g.Priority == it.Priority {
				continue
			}
			g.Priority = it.Priority
			if err := saveGoal(tx, g, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Goals(ctx, actorID, ownerID, ScopeAll)
}

// Contribute credits money from outside the ledger directly to an active
// goal, never past its target.
func (s *LedgerService) Contribute(ctx context.Context, actorID, goalID uuid.UUID, amount decimal.Decimal, description string) (*ContributionOutcome, error) {
	if err := requirePositive(amount); err != nil {
		return nil, err
	}
	before, err := accessibleGoal(s.db.WithContext(ctx), actorID, goalID)
	if err != nil {
		return nil, err
	}

	fx := &effects{}
	var out ContributionOutcome
	err = s.locked(ctx, []string{lock.OwnerKey(before.OwnerID)}, func(tx *gorm.DB) error {
		goal, err := accessibleGoal(tx, actorID, goalID)
		if err != nil {
			return err
		}
		applied, err := s.credit(tx, goal, amount, fx)
		if err != nil {
			return err
		}
		if applied.IsPositive() {
			if description == "" {
				description = "Contribution to " + goal.Name
			}
			if err := s.record(tx, models.Transaction{
				UserID:      actorID,
				GoalID:      &goal.ID,
				Type:        models.TxGoalContribution,
				Amount:      applied,
				Balance:     goal.CurrentAmount,
				Description: description,
			}); err != nil {
				return err
			}
		}
		out = ContributionOutcome{Goal: *goal, Applied: applied, Unapplied: amount.Sub(applied)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, fx)
	return &out, nil
}

// TransferToGoal moves money from the goal owner's funding account into the
// goal. Only the part the goal still needs leaves the account.
func (s *LedgerService) TransferToGoal(ctx context.Context, actorID, goalID uuid.UUID, amount decimal.Decimal) (*ContributionOutcome, error) {
	if err := requirePositive(amount); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	before, err := accessibleGoal(db, actorID, goalID)
	if err != nil {
		return nil, err
	}
	source, err := fundingAccount(db, before.OwnerID)
	if err != nil {
		return nil, err
	}

	keys := []string{lock.OwnerKey(before.OwnerID), lock.AccountKey(source.ID)}
	fx := &effects{}
	var out ContributionOutcome
	err = s.locked(ctx, keys, func(tx *gorm.DB) error {
		goal, err := accessibleGoal(tx, actorID, goalID)
		if err != nil {
			return err
		}
		acct, err := fundingAccount(tx, goal.OwnerID)
		if err != nil {
			return err
		}
		if acct.ID != source.ID {
			return fmt.Errorf("%w: funding account changed", ErrConcurrentUpdate)
		}
		if acct.Balance.LessThan(amount) {
			return fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientFunds, acct.Balance, amount)
		}

		applied, err := s.credit(tx, goal, amount, fx)
		if err != nil {
			return err
		}
		if applied.IsPositive() {
			acct.Balance = acct.Balance.Sub(applied)
			if err := s.record(tx, models.Transaction{
				UserID:      actorID,
				AccountID:   &acct.ID,
				GoalID:      &goal.ID,
				Type:        models.TxGoalTransfer,
				Amount:      applied,
				Balance:     acct.Balance,
				Description: "Transfer to " + goal.Name,
			}); err != nil {
				return err
			}
			if err := saveBalance(tx, acct); err != nil {
				return err
			}
			fx.accounts = append(fx.accounts, *acct)
		}
		out = ContributionOutcome{Goal: *goal, Applied: applied, Unapplied: amount.Sub(applied), Account: acct}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, fx)
	return &out, nil
}

// DistributeParallel pays amount from the owner's funding account into their
// active parallel goals, each taking a cut proportional to its remaining
// need. Whatever the goals cannot absorb stays in the account.
func (s *LedgerService) DistributeParallel(ctx context.Context, actorID, ownerID uuid.UUID, amount decimal.Decimal) (*DistributionOutcome, error) {
	if err := requirePositive(amount); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	if err := authorize(db, actorID, ownerID); err != nil {
		return nil, err
	}
	source, err := fundingAccount(db, ownerID)
	if err != nil {
		return nil, err
	}

	keys := []string{lock.OwnerKey(ownerID), lock.AccountKey(source.ID)}
	fx := &effects{}
	var out DistributionOutcome
	err = s.locked(ctx, keys, func(tx *gorm.DB) error {
		acct, err := fundingAccount(tx, ownerID)
		if err != nil {
			return err
		}
		if acct.ID != source.ID {
			return fmt.Errorf("%w: funding account changed", ErrConcurrentUpdate)
		}
		if acct.Balance.LessThan(amount) {
			return fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientFunds, acct.Balance, amount)
		}

		var goals []models.Goal
		err = tx.Where("owner_id = ? AND status = ? AND is_parallel = ?", ownerID, allocation.StatusActive, true).
			Find(&goals).Error
		if err != nil {
			return fmt.Errorf("load parallel goals: %w", err)
		}
		snapshots := models.Snapshots(goals)
		if !allocation.FlatTier(snapshots).Need().IsPositive() {
			return ErrNoParallelGoals
		}

		res, err := s.alloc.Share(amount, snapshots)
		if err != nil {
			return err
		}
		views, err := s.applyResult(tx, acct, goals, res, "Parallel distribution to ", fx)
		if err != nil {
			return err
		}
		acct.Balance = acct.Balance.Sub(res.Distributed())
		if err := saveBalance(tx, acct); err != nil {
			return err
		}
		fx.accounts = append(fx.accounts, *acct)

		out = DistributionOutcome{
			Pool:        amount,
			Distributed: res.Distributed(),
			Leftover:    res.Leftover,
			Allocations: views,
			Account:     acct,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("parallel distribution applied",
		"owner_id", ownerID,
		"account_id", source.ID,
		"pool", amount.String(),
		"distributed", out.Distributed.String(),
		"goals", len(out.Allocations),
	)
	s.notify(ctx, fx)
	return &out, nil
}

func (s *LedgerService) credit(tx *gorm.DB, goal *models.Goal, amount decimal.Decimal, fx *effects) (decimal.Decimal, error) {
	now := s.now()
	updated, applied, err := allocation.Contribute(goal.Snapshot(), amount, now)
	if err != nil {
		return decimal.Zero, err
	}
	if !applied.IsPositive() {
		return decimal.Zero, nil
	}
	goal.Apply(updated)
	if err := saveGoal(tx, goal, now); err != nil {
		return decimal.Zero, err
	}
	fx.goals = append(fx.goals, *goal)
	if goal.Status == allocation.StatusCompleted {
		fx.completed = append(fx.completed, *goal)
	}
	return applied, nil
}

// DeleteGoal removes a goal. Its saved balance is first redistributed over
// the owner's remaining eligible goals; what they cannot absorb follows the
// released funds policy.
func (s *LedgerService) DeleteGoal(ctx context.Context, actorID, goalID uuid.UUID) (*DeleteOutcome, error) {
	db := s.db.WithContext(ctx)
	before, err := accessibleGoal(db, actorID, goalID)
	if err != nil {
		return nil, err
	}

	keys := []string{lock.OwnerKey(before.OwnerID)}
	var refundID *uuid.UUID
	if s.policy == config.ReleasePolicyRefund {
		acct, err := fundingAccount(db, before.OwnerID)
		switch {
		case err == nil:
			refundID = &acct.ID
			keys = append(keys, lock.AccountKey(acct.ID))
		case errors.Is(err, ErrAccountNotFound):
		default:
			return nil, err
		}
	}

	fx := &effects{}
	var out DeleteOutcome
	err = s.locked(ctx, keys, func(tx *gorm.DB) error {
		goal, err := accessibleGoal(tx, actorID, goalID)
		if err != nil {
			return err
		}
		released := goal.CurrentAmount
		out = DeleteOutcome{
			GoalID:        goal.ID,
			Released:      released,
			Redistributed: decimal.Zero,
			Refunded:      decimal.Zero,
			Forfeited:     decimal.Zero,
			Allocations:   []GoalAllocation{},
		}

		leftover := decimal.Zero
		if released.IsPositive() {
			leftover, err = s.redistribute(tx, goal, &out, fx)
			if err != nil {
				return err
			}
		}
		if leftover.IsPositive() {
			if err := s.release(tx, goal, leftover, refundID, &out, fx); err != nil {
				return err
			}
		}

		now := s.now()
		goal.CurrentAmount = decimal.Zero
		if err := saveGoal(tx, goal, now); err != nil {
			return err
		}
		if err := tx.Delete(goal).Error; err != nil {
			return fmt.Errorf("delete goal: %w", err)
		}
		fx.deleted = append(fx.deleted, *goal)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, fx)
	return &out, nil
}

func (s *LedgerService) redistribute(tx *gorm.DB, removed *models.Goal, out *DeleteOutcome, fx *effects) (decimal.Decimal, error) {
	var goals []models.Goal
	if err := tx.Where("owner_id = ?", removed.OwnerID).Find(&goals).Error; err != nil {
		return decimal.Zero, fmt.Errorf("load goals: %w", err)
	}
	res, err := s.alloc.Redistribute(removed.CurrentAmount, removed.ID, models.Snapshots(goals))
	if err != nil {
		return decimal.Zero, err
	}

	byID := make(map[uuid.UUID]*models.Goal, len(goals))
	for i := range goals {
		byID[goals[i].ID] = &goals[i]
	}

	now := s.now()
	for i, a := range res.Allocations {
		g := byID[a.GoalID]
		g.Apply(res.Updated[i])
		if err := saveGoal(tx, g, now); err != nil {
			return decimal.Zero, err
		}
		goalID := g.ID
		if err := s.record(tx, models.Transaction{
			UserID:      removed.OwnerID,
			GoalID:      &goalID,
			Type:        models.TxGoalRedistribute,
			Amount:      a.Amount,
			Balance:     g.CurrentAmount,
			Description: "Redistributed from " + removed.Name,
		}); err != nil {
			return decimal.Zero, err
		}
		fx.goals = append(fx.goals, *g)
		if a.Completed {
			fx.completed = append(fx.completed, *g)
		}
		out.Allocations = append(out.Allocations, allocationView(g, a))
	}
	out.Redistributed = res.Distributed()

	s.log.Info("goal balance redistributed",
		"goal_id", removed.ID,
		"owner_id", removed.OwnerID,
		"released", removed.CurrentAmount.String(),
		"redistributed", out.Redistributed.String(),
		"leftover", res.Leftover.String(),
	)
	return res.Leftover, nil
}

// release settles released funds nothing could absorb.
func (s *LedgerService) release(tx *gorm.DB, goal *models.Goal, leftover decimal.Decimal, refundID *uuid.UUID, out *DeleteOutcome, fx *effects) error {
	if s.policy == config.ReleasePolicyRefund && refundID != nil {
		acct, err := findAccount(tx, *refundID)
		if err != nil {
			return err
		}
		acct.Balance = acct.Balance.Add(leftover)
		goalID := goal.ID
		if err := s.record(tx, models.Transaction{
			UserID:      goal.OwnerID,
			AccountID:   &acct.ID,
			GoalID:      &goalID,
			Type:        models.TxGoalRefund,
			Amount:      leftover,
			Balance:     acct.Balance,
			Description: "Refund from deleted goal " + goal.Name,
		}); err != nil {
			return err
		}
		if err := saveBalance(tx, acct); err != nil {
			return err
		}
		out.Refunded = leftover
		out.RefundAccount = &acct.ID
		fx.accounts = append(fx.accounts, *acct)
		return nil
	}

	out.Forfeited = leftover
	s.log.Warn("released goal funds forfeited",
		"goal_id", goal.ID,
		"owner_id", goal.OwnerID,
		"amount", leftover.String(),
		"policy", s.policy,
	)
	return nil
}

// Preview computes the distribution of amount over a user's goals without
// changing anything.
func (s *LedgerService) Preview(ctx context.Context, actorID, ownerID uuid.UUID, amount decimal.Decimal) (*DistributionOutcome, error) {
	goals, err := s.Goals(ctx, actorID, ownerID, ScopeAll)
	if err != nil {
		return nil, err
	}
	res, err := s.alloc.Distribute(amount, models.Snapshots(goals))
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*models.Goal, len(goals))
	for i := range goals {
		byID[goals[i].ID] = &goals[i]
	}
	out := &DistributionOutcome{
		Pool:        amount,
		Distributed: res.Distributed(),
		Leftover:    res.Leftover,
		Allocations: []GoalAllocation{},
	}
	for i, a := range res.Allocations {
		g := *byID[a.GoalID]
		g.Apply(res.Updated[i])
		out.Allocations = append(out.Allocations, allocationView(&g, a))
	}
	return out, nil
}
