package allocation

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Redistribute hands the balance of a removed goal to the remaining eligible
// goals of the same owner. The removed goal never receives any of it.
func (a *Allocator) Redistribute(released decimal.Decimal, removedID uuid.UUID, goals []Goal) (Result, error) {
	rest := make([]Goal, 0, len(goals))
	for _, g := range goals {
		if g.ID != removedID {
			rest = append(rest, g)
		}
	}
	return a.Distribute(released, rest)
}
