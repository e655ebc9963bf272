package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arnold/kumbara-api/internal/allocation"
	"github.com/arnold/kumbara-api/internal/config"
	"github.com/arnold/kumbara-api/internal/database"
	"github.com/arnold/kumbara-api/internal/handlers"
	"github.com/arnold/kumbara-api/internal/lock"
	"github.com/arnold/kumbara-api/internal/middleware"
	"github.com/arnold/kumbara-api/internal/routes"
	"github.com/arnold/kumbara-api/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type App struct {
	Cfg    *config.Config
	DB     *gorm.DB
	Redis  *redis.Client
	Fiber  *fiber.App
	Ledger *services.LedgerService
	Push   *services.PushService
}

// New connects the database, picks a lock backend and wires the ledger,
// notifications and HTTP routes.
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Amounts go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	logLevel := gormlogger.Error
	if cfg.IsDevelopment() {
		logLevel = gormlogger.Warn
	}
	if err := database.Connect(cfg.DatabaseURL, logLevel); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := database.Migrate(database.DB); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a := &App{Cfg: cfg, DB: database.DB}

	locker, err := a.locker()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	alloc := allocation.New(allocation.WithPrecision(cfg.AllocationPrecision))

	a.Push = services.InitPush(a.DB, cfg.FCMServiceAccount)
	notifier := services.NewNotifier(a.DB, handlers.WS, a.Push)

	a.Ledger = services.NewLedgerService(a.DB, locker, alloc,
		services.WithNotifier(notifier),
		services.WithReleasePolicy(cfg.ReleasedFundsPolicy),
		services.WithLogger(slog.Default()),
	)
	services.Ledger = a.Ledger

	middleware.SetJWTSecret(cfg.JWTSecret)
	handlers.GoogleClientIDs = cfg.GoogleClientIDs

	a.Fiber = NewFiber(cfg)
	routes.Setup(a.Fiber)

	slog.Info("app initialized",
		"env", cfg.AppEnv,
		"redis_locks", a.Redis != nil,
		"push", a.Push.Enabled(),
		"precision", alloc.Precision(),
		"release_policy", cfg.ReleasedFundsPolicy,
	)
	return a, nil
}

// locker uses Redis when configured so several API instances share locks,
// and an in-process locker otherwise.
func (a *App) locker() (lock.Locker, error) {
	if a.Cfg.RedisURL == "" {
		return lock.NewLocalLocker(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := lock.NewRedisClient(ctx, a.Cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	a.Redis = client

	return lock.NewRedisLocker(client, lock.RedisOptions{
		Expiry:     a.Cfg.LockExpiry,
		Tries:      a.Cfg.LockTries,
		RetryDelay: a.Cfg.LockRetryDelay,
	}), nil
}

// NewFiber builds the fiber app with the shared error handler and the
// middleware every route runs behind.
func NewFiber(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "kumbara-api",
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	}))
	app.Use(middleware.RequestLogging())
	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}

	msg := "Internal server error"
	if code < fiber.StatusInternalServerError {
		msg = err.Error()
	}
	return c.Status(code).JSON(fiber.Map{
		"error": msg,
	})
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (a *App) Shutdown(ctx context.Context) error {
	if a.Fiber == nil {
		return nil
	}
	return a.Fiber.ShutdownWithContext(ctx)
}

func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, database.Close(a.DB))
	}
	return errors.Join(errs...)
}
