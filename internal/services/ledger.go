package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arnold/kumbara-api/internal/allocation"
	"github.com/arnold/kumbara-api/internal/config"
	"github.com/arnold/kumbara-api/internal/lock"
	"github.com/arnold/kumbara-api/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerService owns every operation that moves money between accounts and
// goals. Each such operation runs under the owner and account locks and in
// a single database transaction; observers are told only after commit.
type LedgerService struct {
	db       *gorm.DB
	locker   lock.Locker
	alloc    *allocation.Allocator
	notifier *Notifier
	policy   string
	log      *slog.Logger
	now      func() time.Time
}

// Global ledger instance
var Ledger *LedgerService

type LedgerOption func(*LedgerService)

func WithNotifier(n *Notifier) LedgerOption {
	return func(s *LedgerService) { s.notifier = n }
}

// WithReleasePolicy decides what happens to released goal funds that no
// remaining goal can absorb.
func WithReleasePolicy(policy string) LedgerOption {
	return func(s *LedgerService) { s.policy = policy }
}

func WithLogger(l *slog.Logger) LedgerOption {
	return func(s *LedgerService) { s.log = l }
}

func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(s *LedgerService) { s.now = now }
}

func NewLedgerService(db *gorm.DB, locker lock.Locker, alloc *allocation.Allocator, opts ...LedgerOption) *LedgerService {
	s := &LedgerService{
		db:     db,
		locker: locker,
		alloc:  alloc,
		policy: config.ReleasePolicyRefund,
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GoalAllocation describes what one goal received in a distribution.
type GoalAllocation struct {
	GoalID        uuid.UUID       `json:"goalId"`
	Name          string          `json:"name"`
	Priority      int             `json:"priority"`
	Amount        decimal.Decimal `json:"amount"`
	CurrentAmount decimal.Decimal `json:"currentAmount"`
	TargetAmount  decimal.Decimal `json:"targetAmount"`
	Completed     bool            `json:"completed"`
	Progress      float64         `json:"progress"`
}

// DistributionOutcome reports a deposit, transfer or distribution run.
type DistributionOutcome struct {
	Account     *models.Account  `json:"account,omitempty"`
	Pool        decimal.Decimal  `json:"pool"`
	Distributed decimal.Decimal  `json:"distributed"`
	Leftover    decimal.Decimal  `json:"leftover"`
	Allocations []GoalAllocation `json:"allocations"`
}

type TransferOutcome struct {
	From *models.Account     `json:"from"`
	To   DistributionOutcome `json:"to"`
}

// effects collects what changed inside a transaction so observers can be
// told once it commits.
type effects struct {
	accounts  []models.Account
	goals     []models.Goal
	completed []models.Goal
	deleted   []models.Goal
}

func (s *LedgerService) locked(ctx context.Context, keys []string, fn func(tx *gorm.DB) error) error {
	return lock.WithLocks(ctx, s.locker, keys, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(fn)
	})
}

func (s *LedgerService) notify(ctx context.Context, fx *effects) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, fx)
}

// authorize allows a user to act on their own data and a parent to act on
// their children's data.
func authorize(tx *gorm.DB, actorID, ownerID uuid.UUID) error {
	if actorID == ownerID {
		return nil
	}
	var n int64
	if err := tx.Model(&models.User{}).Where("id = ? AND parent_id = ?", ownerID, actorID).Count(&n).Error; err != nil {
		return fmt.Errorf("check family: %w", err)
	}
	if n == 0 {
		return ErrForbidden
	}
	return nil
}

func findAccount(tx *gorm.DB, accountID uuid.UUID) (*models.Account, error) {
	var acct models.Account
	if err := tx.First(&acct, "id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	return &acct, nil
}

// ownedAccount loads an account the actor owns. Accounts of other users are
// reported as missing.
func ownedAccount(tx *gorm.DB, actorID, accountID uuid.UUID) (*models.Account, error) {
	acct, err := findAccount(tx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.OwnerID != actorID {
		return nil, ErrAccountNotFound
	}
	return acct, nil
}

// accountKeys returns the locks needed to move money through an account:
// the account itself and, when linked, the owner of the goals it feeds.
func accountKeys(acct *models.Account) []string {
	keys := []string{lock.AccountKey(acct.ID)}
	if acct.LinkedUserID != nil {
		keys = append(keys, lock.OwnerKey(*acct.LinkedUserID))
	}
	return keys
}

// sameLink guards against the account being relinked between reading it
// for lock keys and reloading it under the lock.
func sameLink(before, after *models.Account) error {
	switch {
	case before.LinkedUserID == nil && after.LinkedUserID == nil:
		return nil
	case before.LinkedUserID != nil && after.LinkedUserID != nil && *before.LinkedUserID == *after.LinkedUserID:
		return nil
	}
	return fmt.Errorf("%w: account %s was relinked", ErrConcurrentUpdate, after.ID)
}

func (s *LedgerService) record(tx *gorm.DB, t models.Transaction) error {
	if err := tx.Create(&t).Error; err != nil {
		return fmt.Errorf("record %s transaction: %w", t.Type, err)
	}
	return nil
}

func saveBalance(tx *gorm.DB, acct *models.Account) error {
	if acct.Balance.IsNegative() {
		return fmt.Errorf("%w: account %s would go negative", ErrInsufficientFunds, acct.ID)
	}
	if err := tx.Model(acct).Update("balance", acct.Balance).Error; err != nil {
		return fmt.Errorf("save balance: %w", err)
	}
	return nil
}

// saveGoal writes the goal's mutable fields, guarded by its version.
func saveGoal(tx *gorm.DB, g *models.Goal, now time.Time) error {
	res := tx.Model(&models.Goal{}).
		Where("id = ? AND version = ?", g.ID, g.Version).
		Updates(map[string]interface{}{
			"name":           g.Name,
			"description":    g.Description,
			"icon":           g.Icon,
			"color":          g.Color,
			"category":       g.Category,
			"target_amount":  g.TargetAmount,
			"current_amount": g.CurrentAmount,
			"priority":       g.Priority,
			"status":         g.Status,
			"is_visible":     g.IsVisible,
			"is_parallel":    g.IsParallel,
			"target_date":    g.TargetDate,
			"completed_at":   g.CompletedAt,
			"version":        g.Version + 1,
			"updated_at":     now,
		})
	if res.Error != nil {
		return fmt.Errorf("save goal: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: goal %s", ErrConcurrentUpdate, g.ID)
	}
	g.Version++
	g.UpdatedAt = now
	return nil
}

// distribute runs the allocator over the goals of the account's linked user
// with pool reserved from the account balance, persists every credited goal
// and puts the leftover back. acct.Balance must already contain pool.
func (s *LedgerService) distribute(tx *gorm.DB, acct *models.Account, pool decimal.Decimal, fx *effects) (DistributionOutcome, error) {
	out := DistributionOutcome{
		Pool:        pool,
		Distributed: decimal.Zero,
		Leftover:    pool,
		Allocations: []GoalAllocation{},
	}
	if acct.LinkedUserID == nil || !pool.IsPositive() {
		return out, nil
	}
	if pool.GreaterThan(acct.Balance) {
		return out, fmt.Errorf("%w: pool %s exceeds balance %s", ErrInsufficientFunds, pool, acct.Balance)
	}

	var goals []models.Goal
	if err := tx.Where("owner_id = ?", *acct.LinkedUserID).Find(&goals).Error; err != nil {
		return out, fmt.Errorf("load goals: %w", err)
	}
	res, err := s.alloc.Distribute(pool, models.Snapshots(goals))
	if err != nil {
		return out, err
	}

	reserved := acct.Balance.Sub(pool)
	out.Allocations, err = s.applyResult(tx, acct, goals, res, "Automatic distribution to ", fx)
	if err != nil {
		return out, err
	}

	acct.Balance = reserved.Add(res.Leftover)
	out.Distributed = res.Distributed()
	out.Leftover = res.Leftover

	s.log.Info("distribution applied",
		"account_id", acct.ID,
		"owner_id", *acct.LinkedUserID,
		"pool", pool.String(),
		"distributed", out.Distributed.String(),
		"leftover", out.Leftover.String(),
		"goals", len(out.Allocations),
	)
	return out, nil
}

// applyResult persists every goal credited by res and records one allocation
// transaction per goal against acct. Transaction balances count down from
// the current acct.Balance; the caller settles the balance itself.
func (s *LedgerService) applyResult(tx *gorm.DB, acct *models.Account, goals []models.Goal, res allocation.Result, label string, fx *effects) ([]GoalAllocation, error) {
	byID := make(map[uuid.UUID]*models.Goal, len(goals))
	for i := range goals {
		byID[goals[i].ID] = &goals[i]
	}

	views := []GoalAllocation{}
	running := acct.Balance
	now := s.now()
	for i, a := range res.Allocations {
		g := byID[a.GoalID]
		g.Apply(res.Updated[i])
		if err := saveGoal(tx, g, now); err != nil {
			return nil, err
		}

		running = running.Sub(a.Amount)
		goalID := g.ID
		accountID := acct.ID
		if err := s.record(tx, models.Transaction{
			UserID:      g.OwnerID,
			AccountID:   &accountID,
			GoalID:      &goalID,
			Type:        models.TxGoalAllocation,
			Amount:      a.Amount,
			Balance:     running,
			Description: label + g.Name,
		}); err != nil {
			return nil, err
		}

		fx.goals = append(fx.goals, *g)
		if a.Completed {
			fx.completed = append(fx.completed, *g)
		}
		views = append(views, allocationView(g, a))
	}
	return views, nil
}

func allocationView(g *models.Goal, a allocation.Allocation) GoalAllocation {
	return GoalAllocation{
		GoalID:        g.ID,
		Name:          g.Name,
		Priority:      g.Priority,
		Amount:        a.Amount,
		CurrentAmount: g.CurrentAmount,
		TargetAmount:  g.TargetAmount,
		Completed:     a.Completed,
		Progress:      g.Progress(),
	}
}

func requirePositive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", allocation.ErrInvalidAmount, amount)
	}
	return nil
}

// CreateAccount opens an account for the owner. An opening balance is
// recorded as a deposit.
func (s *LedgerService) CreateAccount(ctx context.Context, ownerID uuid.UUID, req models.CreateAccountRequest) (*models.Account, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if req.Type == "" {
		req.Type = models.AccountMain
	}
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown account type %q", ErrValidation, req.Type)
	}
	if req.Balance.IsNegative() {
		return nil, fmt.Errorf("%w: opening balance is negative", allocation.ErrInvalidAmount)
	}
	if req.Currency == "" {
		req.Currency = "TRY"
	}

	acct := models.Account{
		OwnerID:     ownerID,
		Name:        req.Name,
		Type:        req.Type,
		Balance:     req.Balance,
		Currency:    req.Currency,
		Description: req.Description,
		Icon:        req.Icon,
		Color:       req.Color,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&acct).Error; err != nil {
			return fmt.Errorf("create account: %w", err)
		}
		if !acct.Balance.IsPositive() {
			return nil
		}
		accountID := acct.ID
		return s.record(tx, models.Transaction{
			UserID:      ownerID,
			AccountID:   &accountID,
			Type:        models.TxDeposit,
			Amount:      acct.Balance,
			Balance:     acct.Balance,
			Description: "Opening balance",
		})
	})
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// Deposit credits the account and, when it is linked to a user, distributes
// the deposit across that user's goals. Whatever the goals cannot absorb
// stays on the account.
func (s *LedgerService) Deposit(ctx context.Context, actorID, accountID uuid.UUID, amount decimal.Decimal, description string) (*DistributionOutcome, error) {
	if err := requirePositive(amount); err != nil {
		return nil, err
	}
	before, err := ownedAccount(s.db.WithContext(ctx), actorID, accountID)
	if err != nil {
		return nil, err
	}

	fx := &effects{}
	var out DistributionOutcome
	err = s.locked(ctx, accountKeys(before), func(tx *gorm.DB) error {
		acct, err := ownedAccount(tx, actorID, accountID)
		if err != nil {
			return err
		}
		if err := sameLink(before, acct); err != nil {
			return err
		}

		acct.Balance = acct.Balance.Add(amount)
		if description == "" {
			description = "Deposit"
		}
		if err := s.record(tx, models.Transaction{
			UserID:      actorID,
			AccountID:   &acct.ID,
			Type:        models.TxDeposit,
			Amount:      amount,
			Balance:     acct.Balance,
			Description: description,
		}); err != nil {
			return err
		}

		out, err = s.distribute(tx, acct, amount, fx)
		if err != nil {
			return err
		}
		if err := saveBalance(tx, acct); err != nil {
			return err
		}
		out.Account = acct
		fx.accounts = append(fx.accounts, *acct)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, fx)
	return &out, nil
}

func (s *LedgerService) Withdraw(ctx context.Context, actorID, accountID uuid.UUID, amount decimal.Decimal, description string) (*models.Account, error) {
	if err := requirePositive(amount); err != nil {
		return nil, err
	}

	fx := &effects{}
	var acct *models.Account
	err := s.locked(ctx, []string{lock.AccountKey(accountID)}, func(tx *gorm.DB) error {
		var err error
		acct, err = ownedAccount(tx, actorID, accountID)
		if err != nil {
			return err
		}
		if acct.Balance.LessThan(amount) {
			return fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientFunds, acct.Balance, amount)
		}

		acct.Balance = acct.Balance.Sub(amount)
		if description == "" {
			description = "Withdrawal"
		}
		if err := s.record(tx, models.Transaction{
			UserID:      actorID,
			AccountID:   &acct.ID,
			Type:        models.TxWithdrawal,
			Amount:      amount,
			Balance:     acct.Balance,
			Description: description,
		}); err != nil {
			return err
		}
		if err := saveBalance(tx, acct); err != nil {
			return err
		}
		fx.accounts = append(fx.accounts, *acct)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, fx)
	return acct, nil
}

// Transfer moves money between two of the actor's accounts. Money arriving
// on a linked account is distributed like a deposit.
func (s *LedgerService) Transfer(ctx context.Context, actorID uuid.UUID, req models.TransferRequest) (*TransferOutcome, error) {
	if err := requirePositive(req.Amount); err != nil {
		return nil, err
	}
	if req.FromAccountID == req.ToAccountID {
		return nil, ErrSameAccount
	}
	db := s.db.WithContext(ctx)
	if _, err := ownedAccount(db, actorID, req.FromAccountID); err != nil {
		return nil, err
	}
	toBefore, err := ownedAccount(db, actorID, req.ToAccountID)
	if err != nil {
		return nil, err
	}

	keys := append(accountKeys(toBefore), lock.AccountKey(req.FromAccountID))
	fx := &effects{}
	var out TransferOutcome
	err = s.locked(ctx, keys, func(tx *gorm.DB) error {
		from, err := ownedAccount(tx, actorID, req.FromAccountID)
		if err != nil {
			return err
		}
		to, err := ownedAccount(tx, actorID, req.ToAccountID)
		if err != nil {
			return err
		}
		if err := sameLink(toBefore, to); err != nil {
			return err
		}
		if from.Balance.LessThan(req.Amount) {
			return fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientFunds, from.Balance, req.Amount)
		}

		desc := req.Description
		if desc == "" {
			desc = fmt.Sprintf("Transfer %s -> %s", from.Name, to.Name)
		}

		from.Balance = from.Balance.Sub(req.Amount)
		if err := s.record(tx, models.Transaction{
			UserID: actorID, AccountID: &from.ID, Type: models.TxTransferOut,
			Amount: req.Amount, Balance: from.Balance, Description: desc,
		}); err != nil {
			return err
		}
		if err := saveBalance(tx, from); err != nil {
			return err
		}

		to.Balance = to.Balance.Add(req.Amount)
		if err := s.record(tx, models.Transaction{
			UserID: actorID, AccountID: &to.ID, Type: models.TxTransferIn,
			Amount: req.Amount, Balance: to.Balance, Description: desc,
		}); err != nil {
			return err
		}
		dist, err := s.distribute(tx, to, req.Amount, fx)
		if err != nil {
			return err
		}
		if err := saveBalance(tx, to); err != nil {
			return err
		}

		dist.Account = to
		out = TransferOutcome{From: from, To: dist}
		fx.accounts = append(fx.accounts, *from, *to)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, fx)
	return &out, nil
}

// DistributeBalance pushes part of an existing balance into the linked
// user's goals.
func (s *LedgerService) DistributeBalance(ctx context.Context, actorID, accountID uuid.UUID, amount decimal.Decimal) (*DistributionOutcome, error) {
	if err := requirePositive(amount); err != nil {
		return nil, err
	}
	before, err := ownedAccount(s.db.WithContext(ctx), actorID, accountID)
	if err != nil {
		return nil, err
	}
	if before.LinkedUserID == nil {
		return nil, ErrAccountNotLinked
	}

	fx := &effects{}
	var out DistributionOutcome
	err = s.locked(ctx, accountKeys(before), func(tx *gorm.DB) error {
		acct, err := ownedAccount(tx, actorID, accountID)
		if err != nil {
			return err
		}
		if err := sameLink(before, acct); err != nil {
			return err
		}

		out, err = s.distribute(tx, acct, amount, fx)
		if err != nil {
			return err
		}
		if err := saveBalance(tx, acct); err != nil {
			return err
		}
		out.Account = acct
		fx.accounts = append(fx.accounts, *acct)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, fx)
	return &out, nil
}

// DeleteAccount removes an empty account and unlinks any child attached to it.
func (s *LedgerService) DeleteAccount(ctx context.Context, actorID, accountID uuid.UUID) error {
	return s.locked(ctx, []string{lock.AccountKey(accountID)}, func(tx *gorm.DB) error {
		acct, err := ownedAccount(tx, actorID, accountID)
		if err != nil {
			return err
		}
		if !acct.Balance.IsZero() {
			return ErrAccountNotEmpty
		}
		if err := tx.Model(&models.User{}).
			Where("linked_account_id = ?", acct.ID).
			Update("linked_account_id", nil).Error; err != nil {
			return fmt.Errorf("unlink users: %w", err)
		}
		if err := tx.Delete(acct).Error; err != nil {
			return fmt.Errorf("delete account: %w", err)
		}
		return nil
	})
}
