package handlers

import (
	"errors"

	"github.com/arnold/kumbara-api/internal/allocation"
	"github.com/arnold/kumbara-api/internal/lock"
	"github.com/arnold/kumbara-api/internal/logger"
	"github.com/arnold/kumbara-api/internal/services"
	"github.com/gofiber/fiber/v2"
)

// serviceError maps a ledger error onto an HTTP status and JSON body.
func serviceError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrAccountNotFound),
		errors.Is(err, services.ErrGoalNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, services.ErrForbidden):
		status = fiber.StatusForbidden
	case errors.Is(err, allocation.ErrInvalidAmount),
		errors.Is(err, allocation.ErrMixedOwners),
		errors.Is(err, services.ErrInvalidTarget),
		errors.Is(err, services.ErrInvalidPriority),
		errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrSameAccount),
		errors.Is(err, services.ErrAccountNotLinked),
		errors.Is(err, services.ErrNoParallelGoals),
		errors.Is(err, services.ErrInsufficientFunds):
		status = fiber.StatusBadRequest
	case errors.Is(err, services.ErrInvalidStatusTransition),
		errors.Is(err, services.ErrGoalCompleted),
		errors.Is(err, services.ErrConcurrentUpdate),
		errors.Is(err, services.ErrAccountNotEmpty),
		errors.Is(err, allocation.ErrGoalNotActive):
		status = fiber.StatusConflict
	case errors.Is(err, lock.ErrNotAcquired):
		status = fiber.StatusServiceUnavailable
	}

	if status == fiber.StatusInternalServerError {
		logger.Get().Error("request failed", "path", c.Path(), "error", err)
		return c.Status(status).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}
