package allocation

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testOwner = uuid.MustParse("6f1c2a1e-8d7b-4c1a-9a55-0d3f6b1e2c01")
	testEpoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	testNow   = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// newGoal builds an active, visible goal. seq orders creation time.
func newGoal(seq, priority int, target, current int64) Goal {
	created := testEpoch.Add(time.Duration(seq) * time.Minute)
	return Goal{
		ID:            uuid.New(),
		Owner:         testOwner,
		TargetAmount:  d(target),
		CurrentAmount: d(current),
		Priority:      priority,
		Status:        StatusActive,
		IsVisible:     true,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func newTestAllocator(opts ...Option) *Allocator {
	return New(append([]Option{WithClock(func() time.Time { return testNow })}, opts...)...)
}

func updatedByID(res Result) map[uuid.UUID]Goal {
	out := make(map[uuid.UUID]Goal, len(res.Updated))
	for _, g := range res.Updated {
		out[g.ID] = g
	}
	return out
}

func TestDistributeSplitsTierProportionally(t *testing.T) {
	a := newGoal(1, 1, 1000, 500)
	b := newGoal(2, 1, 800, 500)

	res, err := newTestAllocator().Distribute(d(700), []Goal{a, b})
	require.NoError(t, err)

	deltas := res.Deltas()
	assert.True(t, deltas[a.ID].Equal(d(437)), "a got %s", deltas[a.ID])
	assert.True(t, deltas[b.ID].Equal(d(262)), "b got %s", deltas[b.ID])
	assert.True(t, res.Leftover.Equal(d(1)), "leftover %s", res.Leftover)

	updated := updatedByID(res)
	assert.True(t, updated[a.ID].CurrentAmount.Equal(d(937)))
	assert.True(t, updated[b.ID].CurrentAmount.Equal(d(762)))
	assert.Equal(t, StatusActive, updated[a.ID].Status)
}

func TestDistributeCarriesRoundingRemainderToNextTier(t *testing.T) {
	a := newGoal(1, 1, 1000, 500)
	b := newGoal(2, 1, 800, 500)
	c := newGoal(3, 2, 1000, 0)

	res, err := newTestAllocator().Distribute(d(700), []Goal{c, b, a})
	require.NoError(t, err)

	deltas := res.Deltas()
	assert.True(t, deltas[a.ID].Equal(d(437)))
	assert.True(t, deltas[b.ID].Equal(d(262)))
	assert.True(t, deltas[c.ID].Equal(d(1)))
	assert.True(t, res.Leftover.IsZero())
	assert.True(t, updatedByID(res)[c.ID].CurrentAmount.Equal(d(1)))
}

func TestDistributeZeroPool(t *testing.T) {
	goals := []Goal{newGoal(1, 1, 100, 0), newGoal(2, 2, 50, 10)}

	res, err := newTestAllocator().Distribute(decimal.Zero, goals)
	require.NoError(t, err)
	assert.Empty(t, res.Deltas())
	assert.Empty(t, res.Updated)
	assert.True(t, res.Leftover.IsZero())
}

func TestDistributeSatisfiedGoalGetsNothing(t *testing.T) {
	a := newGoal(1, 1, 500, 500)

	res, err := newTestAllocator().Distribute(d(100), []Goal{a})
	require.NoError(t, err)
	assert.Empty(t, res.Deltas())
	assert.True(t, res.Leftover.Equal(d(100)))
}

func TestDistributeCompletesGoalAndExcludesItLater(t *testing.T) {
	alloc := newTestAllocator()
	near := newGoal(1, 1, 1000, 950)

	first, err := alloc.Distribute(d(50), []Goal{near})
	require.NoError(t, err)
	require.Len(t, first.Updated, 1)

	done := first.Updated[0]
	assert.Equal(t, StatusCompleted, done.Status)
	assert.True(t, done.CurrentAmount.Equal(d(1000)))
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, testNow, *done.CompletedAt)
	assert.Len(t, first.Completed(), 1)
	assert.True(t, first.Allocations[0].Completed)

	other := newGoal(2, 5, 400, 0)
	second, err := alloc.Distribute(d(300), []Goal{done, other})
	require.NoError(t, err)
	deltas := second.Deltas()
	_, touched := deltas[done.ID]
	assert.False(t, touched)
	assert.True(t, deltas[other.ID].Equal(d(300)))
}

func TestRedistributeReleasedBalance(t *testing.T) {
	removed := newGoal(1, 1, 1000, 300)
	small := newGoal(2, 1, 100, 0)
	large := newGoal(3, 2, 500, 0)

	res, err := newTestAllocator().Redistribute(removed.CurrentAmount, removed.ID, []Goal{removed, small, large})
	require.NoError(t, err)

	deltas := res.Deltas()
	_, touched := deltas[removed.ID]
	assert.False(t, touched)
	assert.True(t, deltas[small.ID].Equal(d(100)))
	assert.True(t, deltas[large.ID].Equal(d(200)))
	assert.True(t, res.Leftover.IsZero())
	assert.Equal(t, StatusCompleted, updatedByID(res)[small.ID].Status)
}

func TestRedistributeWithoutRemainingGoals(t *testing.T) {
	removed := newGoal(1, 1, 1000, 300)

	res, err := newTestAllocator().Redistribute(d(300), removed.ID, []Goal{removed})
	require.NoError(t, err)
	assert.Empty(t, res.Allocations)
	assert.True(t, res.Leftover.Equal(d(300)))
}

func TestDistributeRejectsNegativePool(t *testing.T) {
	g := newGoal(1, 1, 100, 0)

	_, err := newTestAllocator().Distribute(d(-1), []Goal{g})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestDistributeRejectsMixedOwners(t *testing.T) {
	a := newGoal(1, 1, 100, 0)
	b := newGoal(2, 1, 100, 0)
	b.Owner = uuid.New()

	_, err := newTestAllocator().Distribute(d(10), []Goal{a, b})
	assert.ErrorIs(t, err, ErrMixedOwners)
}

func TestDistributeSkipsIneligibleAndZeroTargetGoals(t *testing.T) {
	paused := newGoal(1, 1, 100, 0)
	paused.Status = StatusPaused
	hidden := newGoal(2, 1, 100, 0)
	hidden.IsVisible = false
	zero := newGoal(3, 1, 0, 0)
	open := newGoal(4, 2, 100, 0)

	res, err := newTestAllocator().Distribute(d(150), []Goal{paused, hidden, zero, open})
	require.NoError(t, err)

	deltas := res.Deltas()
	require.Len(t, deltas, 1)
	assert.True(t, deltas[open.ID].Equal(d(100)))
	assert.True(t, res.Leftover.Equal(d(50)))
}

func TestShareIgnoresPriority(t *testing.T) {
	first := newGoal(1, 1, 100, 0)
	last := newGoal(2, 5, 200, 0)
	hidden := newGoal(3, 2, 100, 0)
	hidden.IsVisible = false
	paused := newGoal(4, 1, 100, 0)
	paused.Status = StatusPaused

	res, err := newTestAllocator().Share(d(200), []Goal{last, paused, hidden, first})
	require.NoError(t, err)

	deltas := res.Deltas()
	require.Len(t, deltas, 3)
	assert.True(t, deltas[first.ID].Equal(d(50)), "first got %s", deltas[first.ID])
	assert.True(t, deltas[hidden.ID].Equal(d(50)), "hidden got %s", deltas[hidden.ID])
	assert.True(t, deltas[last.ID].Equal(d(100)), "last got %s", deltas[last.ID])
	assert.True(t, res.Leftover.IsZero())
	assert.Equal(t, first.ID, res.Allocations[0].GoalID)
}

func TestShareCompletesAndReturnsSurplus(t *testing.T) {
	a := newGoal(1, 1, 100, 40)
	b := newGoal(2, 3, 100, 90)

	res, err := newTestAllocator().Share(d(100), []Goal{a, b})
	require.NoError(t, err)

	assert.True(t, res.Distributed().Equal(d(70)))
	assert.True(t, res.Leftover.Equal(d(30)))
	assert.Len(t, res.Completed(), 2)
}

func TestShareWithoutActiveGoals(t *testing.T) {
	done := newGoal(1, 1, 100, 100)
	done.Status = StatusCompleted

	res, err := newTestAllocator().Share(d(25), []Goal{done})
	require.NoError(t, err)
	assert.Empty(t, res.Allocations)
	assert.True(t, res.Leftover.Equal(d(25)))

	_, err = newTestAllocator().Share(d(-5), nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestDistributeDoesNotMutateInput(t *testing.T) {
	goals := []Goal{newGoal(1, 1, 100, 10), newGoal(2, 1, 200, 0)}
	before := make([]Goal, len(goals))
	copy(before, goals)

	_, err := newTestAllocator().Distribute(d(500), goals)
	require.NoError(t, err)
	assert.Equal(t, before, goals)
}

func TestDistributeWithPrecision(t *testing.T) {
	goals := []Goal{newGoal(1, 1, 100, 0), newGoal(2, 1, 100, 0), newGoal(3, 1, 100, 0)}

	res, err := newTestAllocator(WithPrecision(2)).Distribute(decimal.RequireFromString("10.00"), goals)
	require.NoError(t, err)
	for _, g := range goals {
		assert.True(t, res.Deltas()[g.ID].Equal(decimal.RequireFromString("3.33")))
	}
	assert.True(t, res.Leftover.Equal(decimal.RequireFromString("0.01")))
}

func randomGoals(r *rand.Rand) []Goal {
	n := r.Intn(8)
	goals := make([]Goal, 0, n)
	for i := 0; i < n; i++ {
		target := int64(r.Intn(2000))
		current := int64(0)
		if target > 0 {
			current = int64(r.Intn(int(target) + 1))
		}
		g := newGoal(r.Intn(5), 1+r.Intn(3), target, current)
		switch r.Intn(8) {
		case 0:
			g.Status = StatusPaused
		case 1:
			g.IsVisible = false
		}
		goals = append(goals, g)
	}
	return goals
}

func TestDistributeProperties(t *testing.T) {
	r := rand.New(rand.NewSource(20240601))
	alloc := newTestAllocator()

	for i := 0; i < 2000; i++ {
		goals := randomGoals(r)
		pool := d(int64(r.Intn(5000)))

		res, err := alloc.Distribute(pool, goals)
		require.NoError(t, err)

		// conservation
		assert.True(t, res.Distributed().Add(res.Leftover).Equal(pool), "run %d: %s + %s != %s", i, res.Distributed(), res.Leftover, pool)
		assert.False(t, res.Leftover.IsNegative())

		updated := updatedByID(res)
		for _, a := range res.Allocations {
			assert.True(t, a.Amount.IsPositive())
			g := updated[a.GoalID]
			// no overshoot
			assert.True(t, g.CurrentAmount.LessThanOrEqual(g.TargetAmount), "run %d: goal over target", i)
		}
		for _, g := range goals {
			if !g.Eligible() {
				_, touched := updated[g.ID]
				assert.False(t, touched, "run %d: ineligible goal credited", i)
			}
		}

		// tier gating: a short tier only passes on its rounding remainder
		tiers := BuildTiers(Eligible(goals))
		deltas := res.Deltas()
		for ti, tier := range tiers {
			before := tier.Need()
			got := decimal.Zero
			for _, g := range tier.Goals {
				got = got.Add(deltas[g.ID])
			}
			if got.Equal(before) {
				continue
			}
			later := decimal.Zero
			for _, next := range tiers[ti+1:] {
				for _, g := range next.Goals {
					later = later.Add(deltas[g.ID])
				}
			}
			assert.True(t, later.LessThan(d(int64(len(tier.Goals)))), "run %d: tier %d unsatisfied but later tiers got %s", i, tier.Priority, later)
		}
	}
}

func TestDistributeProportionalWithinTier(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	alloc := newTestAllocator()

	for i := 0; i < 500; i++ {
		n := 2 + r.Intn(5)
		goals := make([]Goal, n)
		tierNeed := decimal.Zero
		for j := range goals {
			goals[j] = newGoal(j, 1, int64(1+r.Intn(1000)), 0)
			tierNeed = tierNeed.Add(goals[j].Need())
		}
		pool := d(int64(r.Intn(int(tierNeed.IntPart()))))

		res, err := alloc.Distribute(pool, goals)
		require.NoError(t, err)

		deltas := res.Deltas()
		for _, g := range goals {
			exact := pool.Mul(g.Need()).Div(tierNeed)
			got := deltas[g.ID]
			assert.True(t, got.LessThanOrEqual(exact), "run %d: %s > %s", i, got, exact)
			assert.True(t, exact.Sub(got).LessThan(d(1)), "run %d: %s too far from %s", i, got, exact)
		}
	}
}

func TestRedistributeConservation(t *testing.T) {
	r := rand.New(rand.NewSource(99))
	alloc := newTestAllocator()

	for i := 0; i < 500; i++ {
		goals := randomGoals(r)
		removed := newGoal(0, 1, 1000, int64(r.Intn(1000)))
		goals = append(goals, removed)
		released := removed.CurrentAmount

		res, err := alloc.Redistribute(released, removed.ID, goals)
		require.NoError(t, err)

		totalNeed := decimal.Zero
		eligible := 0
		for _, g := range Eligible(goals) {
			if g.ID != removed.ID {
				totalNeed = totalNeed.Add(g.Need())
				eligible++
			}
		}
		floorLeft := decimal.Max(decimal.Zero, released.Sub(totalNeed))

		assert.True(t, res.Distributed().Add(res.Leftover).Equal(released))
		assert.True(t, res.Leftover.GreaterThanOrEqual(floorLeft), "run %d", i)
		assert.True(t, res.Leftover.Sub(floorLeft).LessThanOrEqual(d(int64(eligible))), "run %d", i)
		_, touched := res.Deltas()[removed.ID]
		assert.False(t, touched)
	}
}
