package handlers

import (
	"github.com/arnold/kumbara-api/internal/middleware"
	"github.com/arnold/kumbara-api/internal/models"
	"github.com/arnold/kumbara-api/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func GetChildren(c *fiber.Ctx) error {
	children, err := services.Ledger.Children(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(children)
}

func CreateChild(c *fiber.Ctx) error {
	var req models.CreateChildRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	child, err := services.Ledger.CreateChild(c.UserContext(), middleware.GetUserID(c), req)
	if err != nil {
		return serviceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(child)
}

func UpdateChild(c *fiber.Ctx) error {
	childID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid child ID",
		})
	}

	var req models.UpdateChildRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	child, err := services.Ledger.UpdateChild(c.UserContext(), middleware.GetUserID(c), childID, req)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(child)
}

func DeleteChild(c *fiber.Ctx) error {
	childID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid child ID",
		})
	}

	if err := services.Ledger.DeleteChild(c.UserContext(), middleware.GetUserID(c), childID); err != nil {
		return serviceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
