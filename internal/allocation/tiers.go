package allocation

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Tier is the set of goals sharing one priority value.
type Tier struct {
	Priority int
	Goals    []Goal
}

// Need sums the unmet need of every goal in the tier.
func (t Tier) Need() decimal.Decimal {
	total := decimal.Zero
	for _, g := range t.Goals {
		total = total.Add(g.Need())
	}
	return total
}

// Eligible keeps the goals that are active and visible, preserving order.
func Eligible(goals []Goal) []Goal {
	out := make([]Goal, 0, len(goals))
	for _, g := range goals {
		if g.Eligible() {
			out = append(out, g)
		}
	}
	return out
}

// BuildTiers groups goals by priority, lowest value first. Within a tier
// goals are ordered by creation time and then by id, so the same input
// always yields the same order regardless of how it was loaded.
func BuildTiers(goals []Goal) []Tier {
	if len(goals) == 0 {
		return nil
	}

	sorted := make([]Goal, len(goals))
	copy(sorted, goals)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})

	var tiers []Tier
	for _, g := range sorted {
		if n := len(tiers); n > 0 && tiers[n-1].Priority == g.Priority {
			tiers[n-1].Goals = append(tiers[n-1].Goals, g)
			continue
		}
		tiers = append(tiers, Tier{Priority: g.Priority, Goals: []Goal{g}})
	}
	return tiers
}

// FlatTier puts goals into a single tier in BuildTiers order, so a pool is
// shared in proportion to need regardless of priority.
func FlatTier(goals []Goal) Tier {
	var flat Tier
	for _, t := range BuildTiers(goals) {
		flat.Goals = append(flat.Goals, t.Goals...)
	}
	return flat
}
