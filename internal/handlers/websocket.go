package handlers

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/arnold/kumbara-api/internal/database"
	"github.com/arnold/kumbara-api/internal/logger"
	"github.com/arnold/kumbara-api/internal/middleware"
	"github.com/arnold/kumbara-api/internal/models"
	"github.com/arnold/kumbara-api/internal/services"
)

// connection wraps a websocket connection with its user ID
type connection struct {
	conn   *websocket.Conn
	userID uuid.UUID
	mu     sync.Mutex
}

func (c *connection) write(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Hub manages WebSocket connections per watched user. A parent watching a
// child's room sees the child's balance and goal events live.
type Hub struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[*connection]bool // userID -> set of connections
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[uuid.UUID]map[*connection]bool)}
}

// Global hub instance
var WS = NewHub()

var _ services.Publisher = (*Hub)(nil)

// register adds a connection to a user room
func (h *Hub) register(roomID uuid.UUID, conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*connection]bool)
	}
	h.rooms[roomID][conn] = true
	logger.Get().Debug("ws register", "user_id", conn.userID, "room", roomID, "total", len(h.rooms[roomID]))
}

// unregister removes a connection from a user room
func (h *Hub) unregister(roomID uuid.UUID, conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[roomID]; ok {
		delete(conns, conn)
		logger.Get().Debug("ws unregister", "user_id", conn.userID, "room", roomID, "remaining", len(conns))
		if len(conns) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// Connections returns how many clients are watching the user.
func (h *Hub) Connections(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

// Publish sends an event to every connection watching the user.
func (h *Hub) Publish(userID uuid.UUID, event services.Event) {
	h.mu.RLock()
	conns := make([]*connection, 0, len(h.rooms[userID]))
	for c := range h.rooms[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return
	}

	msg, err := json.Marshal(event)
	if err != nil {
		logger.Get().Error("ws publish marshal failed", "type", event.Type, "error", err)
		return
	}

	for _, c := range conns {
		if err := c.write(msg); err != nil {
			logger.Get().Warn("ws write failed", "user_id", c.userID, "error", err)
		}
	}
}

// WebSocketUpgrade is the middleware that checks the upgrade request and validates JWT
func WebSocketUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		// Authenticate via query param: ?token=<jwt>
		tokenString := c.Query("token")
		if tokenString == "" {
			// Also check Authorization header for non-browser clients
			authHeader := c.Get("Authorization")
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				tokenString = ""
			}
		}

		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authentication token",
			})
		}

		claims, err := middleware.ParseToken(tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("userId", claims.UserID)
		return c.Next()
	}
}

// AuthorizeWatch lets a user watch their own room or one of their children.
func AuthorizeWatch(c *fiber.Ctx) error {
	roomID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid user ID",
		})
	}
	userID := middleware.GetUserID(c)
	if roomID == userID {
		return c.Next()
	}

	var child models.User
	if err := database.DB.Where("id = ? AND parent_id = ?", roomID, userID).First(&child).Error; err != nil {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Not allowed to watch this user",
		})
	}
	return c.Next()
}

// HandleWebSocket keeps a connection registered in a user room until the
// client goes away.
func HandleWebSocket(c *websocket.Conn) {
	roomID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		c.Close()
		return
	}

	userID, ok := c.Locals("userId").(uuid.UUID)
	if !ok {
		c.Close()
		return
	}

	conn := &connection{conn: c, userID: userID}
	WS.register(roomID, conn)
	defer WS.unregister(roomID, conn)

	// Keep connection alive, read messages (client sends pings/keepalives)
	for {
		_, _, err := c.ReadMessage()
		if err != nil {
			break
		}
	}
}
