package handlers

import (
	"strconv"

	"github.com/arnold/kumbara-api/internal/database"
	"github.com/arnold/kumbara-api/internal/middleware"
	"github.com/arnold/kumbara-api/internal/models"
	"github.com/arnold/kumbara-api/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func pagination(c *fiber.Ctx) (page, limit, offset int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	limit, _ = strconv.Atoi(c.Query("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 50 {
		limit = 20
	}
	return page, limit, (page - 1) * limit
}

// transactionPage answers with one page of the transactions matched by scope,
// newest first.
func transactionPage(c *fiber.Ctx, scope func(*gorm.DB) *gorm.DB) error {
	page, limit, offset := pagination(c)
	if t := c.Query("type"); t != "" {
		base := scope
		scope = func(db *gorm.DB) *gorm.DB {
			return base(db).Where("type = ?", t)
		}
	}

	transactions := []models.Transaction{}
	if err := database.DB.Scopes(scope).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&transactions).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch transactions",
		})
	}

	var total int64
	database.DB.Model(&models.Transaction{}).Scopes(scope).Count(&total)

	return c.JSON(fiber.Map{
		"transactions": transactions,
		"total":        total,
		"page":         page,
		"limit":        limit,
	})
}

// GetTransactions returns the ledger entries the current user made or that
// touched their goals.
func GetTransactions(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	return transactionPage(c, func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ?", userID)
	})
}

func GetAccountTransactions(c *fiber.Ctx) error {
	accountID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid account ID",
		})
	}

	if _, ok := visibleAccount(accountID, middleware.GetUserID(c)); !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Account not found",
		})
	}

	return transactionPage(c, func(db *gorm.DB) *gorm.DB {
		return db.Where("account_id = ?", accountID)
	})
}

func GetGoalTransactions(c *fiber.Ctx) error {
	goalID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid goal ID",
		})
	}

	if _, err := services.Ledger.Goal(c.UserContext(), middleware.GetUserID(c), goalID); err != nil {
		return serviceError(c, err)
	}

	return transactionPage(c, func(db *gorm.DB) *gorm.DB {
		return db.Where("goal_id = ?", goalID)
	})
}

// GetTransaction returns one ledger entry the user made, or one that touched
// an account they can see or a goal in their family.
func GetTransaction(c *fiber.Ctx) error {
	txID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid transaction ID",
		})
	}
	userID := middleware.GetUserID(c)

	var t models.Transaction
	if err := database.DB.First(&t, "id = ?", txID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Transaction not found",
		})
	}

	visible := t.UserID == userID
	if !visible && t.AccountID != nil {
		_, visible = visibleAccount(*t.AccountID, userID)
	}
	if !visible && t.GoalID != nil {
		_, err := services.Ledger.Goal(c.UserContext(), userID, *t.GoalID)
		visible = err == nil
	}
	if !visible {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Transaction not found",
		})
	}

	return c.JSON(t)
}
