package push

import (
	"context"
)

// Provider defines interface for sending push notifications
type Provider interface {
	Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error)
}

// SendResult contains the result of a push notification send operation
type SendResult struct {
	SuccessCount  int
	FailureCount  int
	InvalidTokens []string
}

// Notification represents a push notification
type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound,omitempty"`
}

// NewMessageNotification builds the push payload for an incoming chat
// message. The preview is already truncated by the caller.
func NewMessageNotification(senderName, preview, conversationID string) *Notification {
	if senderName == "" {
		senderName = "Nova mensagem"
	}
	return &Notification{
		Title: senderName,
		Body:  preview,
		Data: map[string]string{
			"type":           "chat_message",
			"conversationId": conversationID,
		},
		Sound: "default",
	}
}
