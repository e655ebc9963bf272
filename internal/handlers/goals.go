package handlers

import (
	"github.com/arnold/kumbara-api/internal/middleware"
	"github.com/arnold/kumbara-api/internal/models"
	"github.com/arnold/kumbara-api/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// goalOwner is the user whose goals a request addresses: ?userId= lets a
// parent work on a child's goals, otherwise the caller's own.
func goalOwner(c *fiber.Ctx) (uuid.UUID, bool) {
	raw := c.Query("userId")
	if raw == "" {
		return middleware.GetUserID(c), true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func listGoals(c *fiber.Ctx, scope services.GoalScope) error {
	ownerID, ok := goalOwner(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid user ID",
		})
	}

	goals, err := services.Ledger.Goals(c.UserContext(), middleware.GetUserID(c), ownerID, scope)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(goals)
}

func GetGoals(c *fiber.Ctx) error {
	return listGoals(c, services.ScopeAll)
}

// GetVisibleGoals returns the goals that take part in distribution.
func GetVisibleGoals(c *fiber.Ctx) error {
	return listGoals(c, services.ScopeVisible)
}

func GetCompletedGoals(c *fiber.Ctx) error {
	return listGoals(c, services.ScopeCompleted)
}

// GetParallelGoals returns the active goals that share parallel distributions.
func GetParallelGoals(c *fiber.Ctx) error {
	return listGoals(c, services.ScopeParallel)
}

func GetGoal(c *fiber.Ctx) error {
	goalID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid goal ID",
		})
	}

	goal, err := services.Ledger.Goal(c.UserContext(), middleware.GetUserID(c), goalID)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(goal)
}

func CreateGoal(c *fiber.Ctx) error {
	ownerID, ok := goalOwner(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid user ID",
		})
	}

	var req models.CreateGoalRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	goal, err := services.Ledger.CreateGoal(c.UserContext(), middleware.GetUserID(c), ownerID, req)
	if err != nil {
		return serviceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(goal)
}

func UpdateGoal(c *fiber.Ctx) error {
	goalID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid goal ID",
		})
	}

	var req models.UpdateGoalRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	goal, err := services.Ledger.UpdateGoal(c.UserContext(), middleware.GetUserID(c), goalID, req)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(goal)
}

// UpdateGoalStatus pauses or resumes a goal.
func UpdateGoalStatus(c *fiber.Ctx) error {
	goalID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid goal ID",
		})
	}

	var req models.UpdateGoalStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if !req.Status.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid status",
		})
	}

	goal, err := services.Ledger.SetGoalStatus(c.UserContext(), middleware.GetUserID(c), goalID, req.Status)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(goal)
}

func ReorderGoals(c *fiber.Ctx) error {
	ownerID, ok := goalOwner(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid user ID",
		})
	}

	var req models.ReorderGoalsRequest
	if err := c.BodyParser(&req); err != nil || len(req.Goals) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Goals are required",
		})
	}

	goals, err := services.Ledger.ReorderGoals(c.UserContext(), middleware.GetUserID(c), ownerID, req.Goals)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(goals)
}

// PreviewDistribution shows how an amount would be split across the
// user's goals without moving money.
func PreviewDistribution(c *fiber.Ctx) error {
	ownerID, ok := goalOwner(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid user ID",
		})
	}

	var req models.PreviewRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	out, err := services.Ledger.Preview(c.UserContext(), middleware.GetUserID(c), ownerID, req.Amount)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(out)
}

// DistributeParallel pays an amount from the funding account into the
// owner's parallel goals in proportion to what each still needs.
func DistributeParallel(c *fiber.Ctx) error {
	ownerID, ok := goalOwner(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid user ID",
		})
	}
	req, ok := parseAmount(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	out, err := services.Ledger.DistributeParallel(c.UserContext(), middleware.GetUserID(c), ownerID, req.Amount)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(out)
}

// ContributeToGoal adds outside money straight to a goal.
func ContributeToGoal(c *fiber.Ctx) error {
	goalID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid goal ID",
		})
	}
	req, ok := parseAmount(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	out, err := services.Ledger.Contribute(c.UserContext(), middleware.GetUserID(c), goalID, req.Amount, req.Description)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(out)
}

// TransferToGoal moves money from the goal owner's funding account into the goal.
func TransferToGoal(c *fiber.Ctx) error {
	goalID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid goal ID",
		})
	}
	req, ok := parseAmount(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	out, err := services.Ledger.TransferToGoal(c.UserContext(), middleware.GetUserID(c), goalID, req.Amount)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(out)
}

// DeleteGoal removes a goal and redistributes what it held.
func DeleteGoal(c *fiber.Ctx) error {
	goalID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid goal ID",
		})
	}

	out, err := services.Ledger.DeleteGoal(c.UserContext(), middleware.GetUserID(c), goalID)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(out)
}
