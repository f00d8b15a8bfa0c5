package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"caixinha-backend/internal/middleware"
	"caixinha-backend/internal/service/chat"
	"caixinha-backend/pkg/logger"
	"caixinha-backend/pkg/metrics"
)

// Presence records connection lifecycle in the presence store.
type Presence interface {
	SetUserOnline(ctx context.Context, userID string) error
	SetUserOffline(ctx context.Context, userID string) error
	RefreshPresence(ctx context.Context, userID string) error
}

// ChatHub manages WebSocket connections for chat. Sends happen over
// REST; the socket only fans out events published on the conversation's
// Redis channel, plus locally rebroadcast typing indicators.
type ChatHub struct {
	conversations map[string]map[*Client]bool
	subscriptions map[string]*redis.PubSub
	redisClient   *redis.Client
	chatService   *chat.Service
	presence      Presence
	metrics       *metrics.Metrics

	mu sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Envelope

	clientCount int
}

// Client represents a WebSocket client
type Client struct {
	hub            *ChatHub
	conn           *websocket.Conn
	send           chan []byte
	userID         string
	conversationID string
}

// Envelope wraps a raw event payload with its conversation routing key.
type Envelope struct {
	ConversationID string
	Payload        []byte
}

// typing indicators are the only client-originated socket messages.
const clientEventTyping = "typing"

type clientEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id,omitempty"`
	Typing         bool   `json:"typing,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in dev, restrict in production
	},
}

// NewChatHub creates a new chat hub. presence and m may be nil.
func NewChatHub(redisClient *redis.Client, chatService *chat.Service, presence Presence, m *metrics.Metrics) *ChatHub {
	hub := &ChatHub{
		conversations: make(map[string]map[*Client]bool),
		subscriptions: make(map[string]*redis.PubSub),
		redisClient:   redisClient,
		chatService:   chatService,
		presence:      presence,
		metrics:       m,
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		broadcast:     make(chan *Envelope, 256),
	}

	go hub.run()

	return hub
}

// run handles hub operations
func (h *ChatHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.conversations[client.conversationID] == nil {
				h.conversations[client.conversationID] = make(map[*Client]bool)
			}
			h.conversations[client.conversationID][client] = true
			h.clientCount++
			h.setGauge()
			// One subscription per live room. The relay goroutine exits
			// when the subscription is closed, so a rejoin after the room
			// emptied starts a fresh one instead of stacking relays.
			if h.subscriptions[client.conversationID] == nil {
				pubsub := h.redisClient.Subscribe(context.Background(), chat.ConversationChannel(client.conversationID))
				h.subscriptions[client.conversationID] = pubsub
				go h.relayConversation(client.conversationID, pubsub)
			}
			h.mu.Unlock()

			h.markOnline(client.userID)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.conversations[client.conversationID]; ok {
				if _, exists := clients[client]; exists {
					delete(clients, client)
					close(client.send)
					h.clientCount--
					h.setGauge()

					if len(clients) == 0 {
						delete(h.conversations, client.conversationID)
						if pubsub := h.subscriptions[client.conversationID]; pubsub != nil {
							pubsub.Close()
							delete(h.subscriptions, client.conversationID)
						}
					}
				}
			}
			h.mu.Unlock()

			h.markOffline(client.userID)

		case envelope := <-h.broadcast:
			h.mu.Lock()
			for client := range h.conversations[envelope.ConversationID] {
				select {
				case client.send <- envelope.Payload:
				default:
					close(client.send)
					delete(h.conversations[envelope.ConversationID], client)
					h.clientCount--
					h.setGauge()
				}
			}
			h.mu.Unlock()
		}
	}
}

// setGauge must be called with h.mu held.
func (h *ChatHub) setGauge() {
	if h.metrics != nil {
		h.metrics.SetWebSocketConnections(h.clientCount)
	}
}

func (h *ChatHub) markOnline(userID string) {
	if h.presence == nil {
		return
	}
	if err := h.presence.SetUserOnline(context.Background(), userID); err != nil {
		logger.Warn("presence online update failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (h *ChatHub) markOffline(userID string) {
	if h.presence == nil {
		return
	}
	if err := h.presence.SetUserOffline(context.Background(), userID); err != nil {
		logger.Warn("presence offline update failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// relayConversation relays the conversation's Redis channel into the
// local broadcast loop until the subscription is closed, which happens
// when the last client leaves the room.
func (h *ChatHub) relayConversation(conversationID string, pubsub *redis.PubSub) {
	for msg := range pubsub.Channel() {
		h.broadcast <- &Envelope{
			ConversationID: conversationID,
			Payload:        []byte(msg.Payload),
		}
	}
}

// ServeWS handles WebSocket requests
// GET /v1/ws/chat?conversation_id=...
func (h *ChatHub) ServeWS(c *gin.Context) {
	conversationID := c.Query("conversation_id")
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation_id required"})
		return
	}

	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	member, err := h.chatService.Reader().ResolveParticipantMembership(c.Request.Context(), conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:            h,
		conn:           conn,
		send:           make(chan []byte, 256),
		userID:         userID,
		conversationID: conversationID,
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump reads messages from WebSocket
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		if c.hub.presence != nil {
			if err := c.hub.presence.RefreshPresence(context.Background(), c.userID); err != nil {
				logger.Debug("presence refresh failed", zap.String("user_id", c.userID), zap.Error(err))
			}
		}
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", zap.String("user_id", c.userID), zap.Error(err))
			}
			break
		}

		var event clientEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			logger.Debug("invalid websocket payload", zap.String("user_id", c.userID), zap.Error(err))
			continue
		}

		// Typing indicators never touch the store; they only reach
		// peers currently connected to the same conversation.
		if event.Type != clientEventTyping {
			continue
		}
		event.ConversationID = c.conversationID
		event.UserID = c.userID

		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		c.hub.broadcast <- &Envelope{ConversationID: c.conversationID, Payload: payload}
	}
}

// writePump writes messages to WebSocket
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
