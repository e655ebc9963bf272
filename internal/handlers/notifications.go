package handlers

import (
	"fmt"

	"github.com/arnold/kumbara-api/internal/database"
	"github.com/arnold/kumbara-api/internal/middleware"
	"github.com/arnold/kumbara-api/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// notificationFilter narrows a user's notifications by the query string:
// ?type=, ?unread=true and ?goalId= or ?ownerId= matched against the
// navigation metadata.
func notificationFilter(c *fiber.Ctx, userID uuid.UUID) (func(*gorm.DB) *gorm.DB, bool) {
	conds := []func(*gorm.DB) *gorm.DB{func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ?", userID)
	}}

	if t := c.Query("type"); t != "" {
		conds = append(conds, func(db *gorm.DB) *gorm.DB { return db.Where("type = ?", t) })
	}
	if c.QueryBool("unread") {
		conds = append(conds, func(db *gorm.DB) *gorm.DB { return db.Where("read = ?", false) })
	}
	for _, key := range []string{"goalId", "ownerId"} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, false
		}
		pattern := fmt.Sprintf("%%\"%s\":\"%s\"%%", key, id)
		conds = append(conds, func(db *gorm.DB) *gorm.DB { return db.Where("metadata LIKE ?", pattern) })
	}

	return func(db *gorm.DB) *gorm.DB {
		for _, cond := range conds {
			db = cond(db)
		}
		return db
	}, true
}

// GetNotifications returns paginated notifications for the current user.
// The unread count ignores filters.
func GetNotifications(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	filter, ok := notificationFilter(c, userID)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid goal or owner ID",
		})
	}

	page, limit, offset := pagination(c)

	notifications := []models.Notification{}
	if err := database.DB.Scopes(filter).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&notifications).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch notifications",
		})
	}

	var total int64
	database.DB.Model(&models.Notification{}).Scopes(filter).Count(&total)

	var unread int64
	database.DB.Model(&models.Notification{}).Where("user_id = ? AND read = ?", userID, false).Count(&unread)

	return c.JSON(fiber.Map{
		"notifications": notifications,
		"total":         total,
		"unread":        unread,
		"page":          page,
		"limit":         limit,
	})
}

// MarkNotificationRead marks a single notification as read
func MarkNotificationRead(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	notifID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid notification ID",
		})
	}

	result := database.DB.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notifID, userID).
		Update("read", true)

	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Notification not found",
		})
	}

	return c.JSON(fiber.Map{"success": true})
}

// MarkAllRead marks all notifications as read for the current user
func MarkAllRead(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	database.DB.Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)

	return c.JSON(fiber.Map{"success": true})
}

// RegisterDeviceToken saves the FCM token for push notifications
func RegisterDeviceToken(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var req struct {
		Token string `json:"token"`
	}
	if err := c.BodyParser(&req); err != nil || req.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Token is required",
		})
	}

	database.DB.Model(&models.User{}).Where("id = ?", userID).Update("fcm_token", req.Token)

	return c.JSON(fiber.Map{"success": true})
}
