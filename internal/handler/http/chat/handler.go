package chat

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"caixinha-backend/internal/middleware"
	"caixinha-backend/internal/service/agent"
	"caixinha-backend/internal/service/chat"
	"caixinha-backend/pkg/response"
)

// Handler handles chat HTTP requests
type Handler struct {
	chatService  *chat.Service
	agentService *agent.Service
}

// NewHandler creates a new chat handler. agentService may be nil when
// the assistant is disabled.
func NewHandler(chatService *chat.Service, agentService *agent.Service) *Handler {
	return &Handler{
		chatService:  chatService,
		agentService: agentService,
	}
}

// SendMessageRequest represents send message request
type SendMessageRequest struct {
	RecipientID string `json:"recipientId" binding:"required"`
	Content     string `json:"content" binding:"required"`
}

// GetMessagesQuery represents query parameters for listing messages
type GetMessagesQuery struct {
	Limit  int    `form:"limit"`
	Before string `form:"before"` // RFC 3339 timestamp cursor
}

// SendMessage handles sending a new message
// POST /v1/messages
func (h *Handler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	senderID := middleware.UserID(c)
	if senderID == "" {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	output, err := h.chatService.SendMessage(c.Request.Context(), &chat.SendMessageInput{
		SenderID:    senderID,
		RecipientID: req.RecipientID,
		Content:     req.Content,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	// Messages addressed to the assistant get an automated reply
	// through the same message path.
	if h.agentService != nil && h.agentService.IsAgentRecipient(req.RecipientID) {
		if _, err := h.agentService.HandleIncomingMessage(c.Request.Context(), senderID, req.Content); err != nil {
			response.FromError(c, err)
			return
		}
	}

	response.Success(c, http.StatusCreated, output.Message)
}

// GetMessages retrieves conversation messages
// GET /v1/conversations/:id/messages?limit=50&before=2024-06-01T12:00:00Z
func (h *Handler) GetMessages(c *gin.Context) {
	var query GetMessagesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	var before *time.Time
	if query.Before != "" {
		t, err := time.Parse(time.RFC3339, query.Before)
		if err != nil {
			response.ValidationError(c, "before must be an RFC 3339 timestamp")
			return
		}
		before = &t
	}

	messages, err := h.chatService.ListMessages(c.Request.Context(), &chat.ListMessagesInput{
		ConversationID: c.Param("id"),
		UserID:         middleware.UserID(c),
		Limit:          query.Limit,
		Before:         before,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"messages": messages})
}

// GetConversations lists the user's conversations, most recent first
// GET /v1/conversations
func (h *Handler) GetConversations(c *gin.Context) {
	summaries, err := h.chatService.ListConversations(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"conversations": summaries})
}

// MarkConversationRead marks all messages addressed to the user as read
// POST /v1/conversations/:id/read
func (h *Handler) MarkConversationRead(c *gin.Context) {
	result, err := h.chatService.MarkConversationRead(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// DeleteMessage soft-deletes a message the user authored
// DELETE /v1/conversations/:id/messages/:messageId
func (h *Handler) DeleteMessage(c *gin.Context) {
	err := h.chatService.DeleteMessage(c.Request.Context(), c.Param("id"), c.Param("messageId"), middleware.UserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// RegisterRoutes registers chat routes on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/messages", h.SendMessage)
	rg.GET("/conversations", h.GetConversations)
	rg.GET("/conversations/:id/messages", h.GetMessages)
	rg.POST("/conversations/:id/read", h.MarkConversationRead)
	rg.DELETE("/conversations/:id/messages/:messageId", h.DeleteMessage)
}
