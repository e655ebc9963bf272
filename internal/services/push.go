package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/arnold/kumbara-api/internal/models"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"google.golang.org/api/option"
	"gorm.io/gorm"
)

type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// PushService handles sending push notifications via Firebase Cloud Messaging.
// Sends go through a circuit breaker so an FCM outage does not pile up
// goroutines behind slow requests.
type PushService struct {
	db      *gorm.DB
	client  messageSender
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
}

// Global push service instance
var Push *PushService

// InitPush initializes the Firebase push notification service.
// Push stays disabled if no service account is configured (dev mode).
func InitPush(db *gorm.DB, serviceAccountPath string) *PushService {
	if serviceAccountPath == "" {
		slog.Info("FCM: no service account configured, push notifications disabled")
		Push = newPushService(db, nil)
		return Push
	}

	ctx := context.Background()
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(serviceAccountPath))
	if err != nil {
		slog.Error("FCM: failed to initialize Firebase app", "error", err)
		Push = newPushService(db, nil)
		return Push
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		slog.Error("FCM: failed to get messaging client", "error", err)
		Push = newPushService(db, nil)
		return Push
	}

	Push = newPushService(db, client)
	slog.Info("FCM: push notifications enabled")
	return Push
}

func newPushService(db *gorm.DB, client messageSender) *PushService {
	return &PushService{
		db:      db,
		client:  client,
		timeout: 10 * time.Second,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "fcm",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("FCM: circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

func (p *PushService) Enabled() bool {
	return p != nil && p.client != nil
}

// SendToUser sends a push notification to a user by their ID.
// No-op if push is not configured or user has no FCM token.
func (p *PushService) SendToUser(userID uuid.UUID, title, body string, data map[string]string) {
	if !p.Enabled() {
		return
	}

	var user models.User
	if err := p.db.Select("id", "fcm_token").First(&user, "id = ?", userID).Error; err != nil {
		return
	}
	if user.FCMToken == "" {
		return
	}

	msg := &messaging.Message{
		Token: user.FCMToken,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	}

	_, err := p.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		return p.client.Send(ctx, msg)
	})
	switch {
	case err == nil:
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		slog.Warn("FCM: push skipped, circuit open", "user_id", userID)
	default:
		slog.Error("FCM: failed to send", "user_id", userID, "error", err)
	}
}
