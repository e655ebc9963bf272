package routes

import (
	"github.com/arnold/kumbara-api/internal/handlers"
	"github.com/arnold/kumbara-api/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

func Setup(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", handlers.Register)
	auth.Post("/login", handlers.Login)
	auth.Post("/google", handlers.GoogleLogin)

	protected := api.Group("/", middleware.Protected())

	protected.Get("/me", handlers.GetMe)
	protected.Put("/me", handlers.UpdateProfile)

	// Family
	children := protected.Group("/children")
	children.Get("/", handlers.GetChildren)
	children.Post("/", handlers.CreateChild)
	children.Put("/:id", handlers.UpdateChild)
	children.Delete("/:id", handlers.DeleteChild)

	accounts := protected.Group("/accounts")
	accounts.Get("/", handlers.GetAccounts)
	accounts.Post("/", handlers.CreateAccount)
	accounts.Get("/summary", handlers.GetAccountSummary)
	accounts.Get("/stats", handlers.GetAccountStats)
	accounts.Get("/linked", handlers.GetLinkedAccounts)
	accounts.Post("/transfer", handlers.Transfer)
	accounts.Get("/:id", handlers.GetAccount)
	accounts.Put("/:id", handlers.UpdateAccount)
	accounts.Delete("/:id", handlers.DeleteAccount)
	accounts.Post("/:id/deposit", handlers.Deposit)
	accounts.Post("/:id/withdraw", handlers.Withdraw)
	accounts.Post("/:id/distribute", handlers.DistributeBalance)
	accounts.Get("/:id/transactions", handlers.GetAccountTransactions)

	protected.Get("/transactions", handlers.GetTransactions)
	protected.Get("/transactions/:id", handlers.GetTransaction)

	goals := protected.Group("/goals")
	goals.Get("/", handlers.GetGoals)
	goals.Post("/", handlers.CreateGoal)
	goals.Get("/visible", handlers.GetVisibleGoals)
	goals.Get("/completed", handlers.GetCompletedGoals)
	goals.Get("/parallel", handlers.GetParallelGoals)
	goals.Post("/distribute", handlers.DistributeParallel)
	goals.Put("/reorder", handlers.ReorderGoals)
	goals.Post("/preview", handlers.PreviewDistribution)
	goals.Get("/:id", handlers.GetGoal)
	goals.Put("/:id", handlers.UpdateGoal)
	goals.Put("/:id/status", handlers.UpdateGoalStatus)
	goals.Post("/:id/contribute", handlers.ContributeToGoal)
	goals.Post("/:id/transfer", handlers.TransferToGoal)
	goals.Delete("/:id", handlers.DeleteGoal)
	goals.Get("/:id/transactions", handlers.GetGoalTransactions)

	// Notifications
	notifications := protected.Group("/notifications")
	notifications.Get("/", handlers.GetNotifications)
	notifications.Put("/:id/read", handlers.MarkNotificationRead)
	notifications.Post("/read-all", handlers.MarkAllRead)

	// Device token for push notifications
	protected.Post("/device-token", handlers.RegisterDeviceToken)

	// WebSocket for live balance and goal updates
	app.Use("/ws", handlers.WebSocketUpgrade())
	app.Get("/ws/users/:id", handlers.AuthorizeWatch, websocket.New(handlers.HandleWebSocket))
}
