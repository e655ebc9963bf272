package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/arnold/kumbara-api/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Event types sent to connected clients
const (
	EventBalanceChanged = "balance_changed"
	EventGoalProgress   = "goal_progress"
	EventGoalCompleted  = "goal_completed"
	EventGoalDeleted    = "goal_deleted"
)

// Event is the JSON message delivered to a user's live connections.
type Event struct {
	Type   string      `json:"type"`
	UserID string      `json:"userId"`
	Data   interface{} `json:"data,omitempty"`
}

// Publisher delivers events to a user's live connections.
type Publisher interface {
	Publish(userID uuid.UUID, event Event)
}

// Pusher delivers mobile push notifications.
type Pusher interface {
	SendToUser(userID uuid.UUID, title, body string, data map[string]string)
}

// Notifier tells users about committed ledger changes. It never takes part
// in the transaction; failures here are logged and dropped.
type Notifier struct {
	db        *gorm.DB
	publisher Publisher
	pusher    Pusher
}

func NewNotifier(db *gorm.DB, publisher Publisher, pusher Pusher) *Notifier {
	return &Notifier{db: db, publisher: publisher, pusher: pusher}
}

func (n *Notifier) Notify(ctx context.Context, fx *effects) {
	for _, acct := range fx.accounts {
		data := map[string]interface{}{
			"accountId": acct.ID,
			"balance":   acct.Balance,
		}
		n.publish(acct.OwnerID, EventBalanceChanged, data)
		if acct.LinkedUserID != nil {
			n.publish(*acct.LinkedUserID, EventBalanceChanged, data)
		}
	}

	for _, g := range fx.goals {
		n.publishFamily(ctx, g.OwnerID, EventGoalProgress, map[string]interface{}{
			"goalId":        g.ID,
			"currentAmount": g.CurrentAmount,
			"targetAmount":  g.TargetAmount,
			"status":        g.Status,
			"progress":      g.Progress(),
			"version":       g.Version,
		})
	}

	for _, g := range fx.completed {
		n.publishFamily(ctx, g.OwnerID, EventGoalCompleted, map[string]interface{}{
			"goalId":  g.ID,
			"name":    g.Name,
			"version": g.Version,
		})
		for _, userID := range n.family(ctx, g.OwnerID) {
			n.CreateNotification(ctx, userID, models.NotificationGoalCompleted,
				"Goal completed",
				fmt.Sprintf("%s reached its target of %s", g.Name, g.TargetAmount.String()),
				map[string]interface{}{"goalId": g.ID.String(), "ownerId": g.OwnerID.String()},
			)
		}
	}

	for _, g := range fx.deleted {
		n.publishFamily(ctx, g.OwnerID, EventGoalDeleted, map[string]interface{}{"goalId": g.ID})
	}
}

func (n *Notifier) publish(userID uuid.UUID, eventType string, data interface{}) {
	if n.publisher == nil {
		return
	}
	n.publisher.Publish(userID, Event{Type: eventType, UserID: userID.String(), Data: data})
}

func (n *Notifier) publishFamily(ctx context.Context, ownerID uuid.UUID, eventType string, data interface{}) {
	for _, userID := range n.family(ctx, ownerID) {
		n.publish(userID, eventType, data)
	}
}

// family is the user plus their parent, if any.
func (n *Notifier) family(ctx context.Context, userID uuid.UUID) []uuid.UUID {
	ids := []uuid.UUID{userID}
	var user models.User
	if err := n.db.WithContext(ctx).Select("id", "parent_id").First(&user, "id = ?", userID).Error; err != nil {
		return ids
	}
	if user.ParentID != nil {
		ids = append(ids, *user.ParentID)
	}
	return ids
}

// CreateNotification stores a notification and sends it as a push.
func (n *Notifier) CreateNotification(ctx context.Context, userID uuid.UUID, notifType, title, body string, metadata map[string]interface{}) {
	notif := models.Notification{
		UserID: userID,
		Type:   notifType,
		Title:  title,
		Body:   body,
	}

	var pushData map[string]string
	if metadata != nil {
		data, err := json.Marshal(metadata)
		if err == nil {
			s := string(data)
			notif.Metadata = &s
		}
		pushData = make(map[string]string, len(metadata)+1)
		for k, v := range metadata {
			pushData[k] = fmt.Sprintf("%v", v)
		}
		pushData["type"] = notifType
	}

	if err := n.db.WithContext(ctx).Create(&notif).Error; err != nil {
		slog.Error("failed to store notification", "user_id", userID, "type", notifType, "error", err)
	}

	if n.pusher != nil {
		go n.pusher.SendToUser(userID, title, body, pushData)
	}
}
