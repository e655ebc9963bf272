package services

import "errors"

var (
	ErrUserNotFound            = errors.New("user not found")
	ErrAccountNotFound         = errors.New("account not found")
	ErrGoalNotFound            = errors.New("goal not found")
	ErrForbidden               = errors.New("not allowed for this user")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrAccountNotLinked        = errors.New("account is not linked to a user")
	ErrAccountNotEmpty         = errors.New("account balance must be zero")
	ErrSameAccount             = errors.New("source and destination accounts are the same")
	ErrInvalidTarget           = errors.New("invalid target amount")
	ErrInvalidPriority         = errors.New("priority must be at least 1")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrGoalCompleted           = errors.New("goal is already completed")
	ErrConcurrentUpdate        = errors.New("record was modified concurrently")
	ErrValidation              = errors.New("validation failed")
	ErrNoParallelGoals         = errors.New("no parallel goal needs funding")
)
