package handlers

import (
	"time"

	"github.com/arnold/kumbara-api/internal/database"
	"github.com/arnold/kumbara-api/internal/middleware"
	"github.com/arnold/kumbara-api/internal/models"
	"github.com/arnold/kumbara-api/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// visibleAccount loads an account the user owns or is linked to.
func visibleAccount(accountID, userID uuid.UUID) (*models.Account, bool) {
	var acct models.Account
	err := database.DB.
		Where("id = ? AND (owner_id = ? OR linked_user_id = ?)", accountID, userID, userID).
		First(&acct).Error
	return &acct, err == nil
}

func GetAccounts(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	accounts := []models.Account{}
	if err := database.DB.Where("owner_id = ?", userID).
		Order("created_at ASC").
		Find(&accounts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch accounts",
		})
	}

	return c.JSON(accounts)
}

// GetLinkedAccounts returns the accounts whose deposits feed the user's goals.
func GetLinkedAccounts(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	accounts := []models.Account{}
	if err := database.DB.Where("linked_user_id = ?", userID).
		Order("created_at ASC").
		Find(&accounts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch accounts",
		})
	}

	return c.JSON(accounts)
}

func GetAccountSummary(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var accounts []models.Account
	if err := database.DB.Where("owner_id = ?", userID).Find(&accounts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch accounts",
		})
	}

	summary := models.AccountSummary{
		TotalBalance: decimal.Zero,
		AccountCount: len(accounts),
		ByType:       map[models.AccountType]decimal.Decimal{},
	}
	for _, acct := range accounts {
		summary.TotalBalance = summary.TotalBalance.Add(acct.Balance)
		summary.ByType[acct.Type] = summary.ByType[acct.Type].Add(acct.Balance)
	}

	return c.JSON(summary)
}

// statsSince maps a stats period onto the start of its window. An empty
// period covers the last 30 days.
func statsSince(period string, now time.Time) (time.Time, bool) {
	y, m, d := now.Date()
	switch period {
	case "":
		return now.AddDate(0, 0, -30), true
	case "daily":
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), true
	case "weekly":
		return now.AddDate(0, 0, -7), true
	case "monthly":
		return time.Date(y, m, 1, 0, 0, 0, 0, now.Location()), true
	case "yearly":
		return time.Date(y, time.January, 1, 0, 0, 0, 0, now.Location()), true
	}
	return time.Time{}, false
}

// GetAccountStats totals the movements on the user's accounts for a period.
func GetAccountStats(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	period := c.Query("period")
	since, ok := statsSince(period, time.Now().UTC())
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Period must be daily, weekly, monthly or yearly",
		})
	}

	owned := database.DB.Model(&models.Account{}).Select("id").Where("owner_id = ?", userID)
	var transactions []models.Transaction
	if err := database.DB.Select("account_id", "type", "amount").
		Where("account_id IN (?) AND created_at >= ?", owned, since).
		Find(&transactions).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch transactions",
		})
	}

	stats := models.AccountStats{
		Period:           period,
		Since:            since,
		TotalDeposits:    decimal.Zero,
		TotalWithdrawals: decimal.Zero,
		NetAmount:        decimal.Zero,
		ByType:           map[models.TransactionType]decimal.Decimal{},
		ByAccount:        map[uuid.UUID]*models.AccountActivity{},
	}
	for _, t := range transactions {
		stats.Add(t)
	}

	return c.JSON(stats)
}

func GetAccount(c *fiber.Ctx) error {
	accountID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid account ID",
		})
	}

	acct, ok := visibleAccount(accountID, middleware.GetUserID(c))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Account not found",
		})
	}

	return c.JSON(acct)
}

func CreateAccount(c *fiber.Ctx) error {
	var req models.CreateAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	acct, err := services.Ledger.CreateAccount(c.UserContext(), middleware.GetUserID(c), req)
	if err != nil {
		return serviceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(acct)
}

// UpdateAccount changes display fields only. Balances move through the
// ledger endpoints.
func UpdateAccount(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	accountID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid account ID",
		})
	}

	var req models.UpdateAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	var acct models.Account
	if err := database.DB.Where("id = ? AND owner_id = ?", accountID, userID).First(&acct).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Account not found",
		})
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		if *req.Name == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Name is required",
			})
		}
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Icon != nil {
		updates["icon"] = *req.Icon
	}
	if req.Color != nil {
		updates["color"] = *req.Color
	}

	if len(updates) > 0 {
		if err := database.DB.Model(&acct).Updates(updates).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update account",
			})
		}
	}

	database.DB.First(&acct, "id = ?", accountID)
	return c.JSON(acct)
}

func DeleteAccount(c *fiber.Ctx) error {
	accountID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid account ID",
		})
	}

	if err := services.Ledger.DeleteAccount(c.UserContext(), middleware.GetUserID(c), accountID); err != nil {
		return serviceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func parseAmount(c *fiber.Ctx) (models.AmountRequest, bool) {
	var req models.AmountRequest
	if err := c.BodyParser(&req); err != nil {
		return req, false
	}
	return req, true
}

// Deposit credits an account and distributes the money across the linked
// user's goals.
func Deposit(c *fiber.Ctx) error {
	accountID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid account ID",
		})
	}
	req, ok := parseAmount(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	out, err := services.Ledger.Deposit(c.UserContext(), middleware.GetUserID(c), accountID, req.Amount, req.Description)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(out)
}

func Withdraw(c *fiber.Ctx) error {
	accountID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid account ID",
		})
	}
	req, ok := parseAmount(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	acct, err := services.Ledger.Withdraw(c.UserContext(), middleware.GetUserID(c), accountID, req.Amount, req.Description)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(acct)
}

// DistributeBalance runs the allocator over part of an account's existing
// balance.
func DistributeBalance(c *fiber.Ctx) error {
	accountID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid account ID",
		})
	}
	req, ok := parseAmount(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	out, err := services.Ledger.DistributeBalance(c.UserContext(), middleware.GetUserID(c), accountID, req.Amount)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(out)
}

func Transfer(c *fiber.Ctx) error {
	var req models.TransferRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	out, err := services.Ledger.Transfer(c.UserContext(), middleware.GetUserID(c), req)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(out)
}
