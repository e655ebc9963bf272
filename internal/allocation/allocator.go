package allocation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultPrecision is the number of decimal places shares are floored to.
// Zero means whole currency units.
const DefaultPrecision int32 = 0

// Allocation is the amount one goal received during a run.
type Allocation struct {
	GoalID    uuid.UUID       `json:"goalId"`
	Priority  int             `json:"priority"`
	Amount    decimal.Decimal `json:"amount"`
	Completed bool            `json:"completed"`
}

// Result is the outcome of one distribution run. Allocations are listed in
// the order they were applied; Updated holds the post-run copy of every
// goal that received money.
type Result struct {
	Pool        decimal.Decimal `json:"pool"`
	Allocations []Allocation    `json:"allocations"`
	Updated     []Goal          `json:"-"`
	Leftover    decimal.Decimal `json:"leftover"`
}

// Deltas maps each credited goal to the amount it received.
func (r Result) Deltas() map[uuid.UUID]decimal.Decimal {
	deltas := make(map[uuid.UUID]decimal.Decimal, len(r.Allocations))
	for _, a := range r.Allocations {
		deltas[a.GoalID] = deltas[a.GoalID].Add(a.Amount)
	}
	return deltas
}

// Distributed is the pool minus the leftover.
func (r Result) Distributed() decimal.Decimal {
	total := decimal.Zero
	for _, a := range r.Allocations {
		total = total.Add(a.Amount)
	}
	return total
}

// Completed lists the goals that reached their target during the run. Only
// active goals are credited, so every completed goal in Updated is new.
func (r Result) Completed() []Goal {
	var out []Goal
	for _, g := range r.Updated {
		if g.Status == StatusCompleted {
			out = append(out, g)
		}
	}
	return out
}

// Allocator splits a pool across goals by priority tier. It holds no state
// between calls and is safe for concurrent use.
type Allocator struct {
	places int32
	now    func() time.Time
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithPrecision sets how many decimal places shares are floored to.
func WithPrecision(places int32) Option {
	return func(a *Allocator) {
		if places >= 0 {
			a.places = places
		}
	}
}

// WithClock sets the clock used to stamp updated and completed goals.
func WithClock(now func() time.Time) Option {
	return func(a *Allocator) {
		if now != nil {
			a.now = now
		}
	}
}

// New returns an Allocator flooring shares to DefaultPrecision places.
func New(opts ...Option) *Allocator {
	a := &Allocator{
		places: DefaultPrecision,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Precision reports the decimal places shares are floored to.
func (a *Allocator) Precision() int32 {
	return a.places
}

// ValidatePool rejects negative pools. Zero is a valid no-op pool.
func (a *Allocator) ValidatePool(pool decimal.Decimal) error {
	if pool.IsNegative() {
		return fmt.Errorf("%w: pool %s is negative", ErrInvalidAmount, pool)
	}
	return nil
}

// Distribute allocates pool across the eligible goals of a single owner.
// Ineligible goals are ignored. It never fails for an empty goal set; the
// whole pool is returned as leftover instead.
func (a *Allocator) Distribute(pool decimal.Decimal, goals []Goal) (Result, error) {
	if err := a.ValidatePool(pool); err != nil {
		return Result{}, err
	}
	if err := sameOwner(goals); err != nil {
		return Result{}, err
	}
	return a.Allocate(pool, BuildTiers(Eligible(goals)))
}

// Share allocates pool across the active goals as one tier. Visibility and
// priority are ignored; every goal's cut follows its need alone.
func (a *Allocator) Share(pool decimal.Decimal, goals []Goal) (Result, error) {
	if err := a.ValidatePool(pool); err != nil {
		return Result{}, err
	}
	if err := sameOwner(goals); err != nil {
		return Result{}, err
	}
	active := make([]Goal, 0, len(goals))
	for _, g := range goals {
		if g.Status == StatusActive {
			active = append(active, g)
		}
	}
	if len(active) == 0 {
		return Result{Pool: pool, Leftover: pool}, nil
	}
	return a.Allocate(pool, []Tier{FlatTier(active)})
}

// Allocate walks the tiers in order, threading the remaining pool through
// each tier until it runs out or the tiers are exhausted.
func (a *Allocator) Allocate(pool decimal.Decimal, tiers []Tier) (Result, error) {
	if err := a.ValidatePool(pool); err != nil {
		return Result{}, err
	}

	now := a.now()
	res := Result{Pool: pool}
	remaining := pool
	for _, tier := range tiers {
		if !remaining.IsPositive() {
			break
		}
		var out tierOutcome
		remaining, out = a.allocateTier(remaining, tier, now)
		res.Allocations = append(res.Allocations, out.allocations...)
		res.Updated = append(res.Updated, out.updated...)
	}
	res.Leftover = remaining
	return res, nil
}

type tierOutcome struct {
	allocations []Allocation
	updated     []Goal
}

func (a *Allocator) allocateTier(remaining decimal.Decimal, tier Tier, now time.Time) (decimal.Decimal, tierOutcome) {
	var out tierOutcome

	tierNeed := tier.Need()
	if tierNeed.IsZero() {
		return remaining, out
	}
	tierAllocation := decimal.Min(remaining, tierNeed)

	for _, g := range tier.Goals {
		need := g.Need()
		if need.IsZero() || !remaining.IsPositive() {
			continue
		}

		// QuoRem truncates at the given precision, which is a floor for
		// non-negative operands.
		share, _ := tierAllocation.Mul(need).QuoRem(tierNeed, a.places)
		share = decimal.Min(share, need, remaining)
		if !share.IsPositive() {
			continue
		}

		credited := Credit(g, share, now)
		remaining = remaining.Sub(share)
		out.allocations = append(out.allocations, Allocation{
			GoalID:    g.ID,
			Priority:  g.Priority,
			Amount:    share,
			Completed: credited.Status == StatusCompleted,
		})
		out.updated = append(out.updated, credited)
	}
	return remaining, out
}

func sameOwner(goals []Goal) error {
	for i := 1; i < len(goals); i++ {
		if goals[i].Owner != goals[0].Owner {
			return fmt.Errorf("%w: %s and %s", ErrMixedOwners, goals[0].Owner, goals[i].Owner)
		}
	}
	return nil
}
