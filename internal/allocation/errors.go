package allocation

import "errors"

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrGoalNotActive = errors.New("goal is not active")
	ErrMixedOwners   = errors.New("goals belong to more than one owner")
)
