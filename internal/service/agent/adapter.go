package agent

import (
	"context"

	"caixinha-backend/internal/domain"
	"caixinha-backend/internal/service/chat"
	"caixinha-backend/internal/service/support"
)

// ChatAdapter adapts the chat service to the Conversationalist
// interface.
type ChatAdapter struct {
	Chat *chat.Service
}

func (a *ChatAdapter) SendMessage(ctx context.Context, input *SendInput) (*domain.Message, error) {
	out, err := a.Chat.SendMessage(ctx, &chat.SendMessageInput{
		SenderID:    input.SenderID,
		RecipientID: input.RecipientID,
		Content:     input.Content,
	})
	if err != nil {
		return nil, err
	}
	return out.Message, nil
}

func (a *ChatAdapter) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error) {
	return a.Chat.Reader().ResolveMessages(ctx, conversationID, limit, nil)
}

// SupportAdapter adapts the support service and the pure escalation
// decision to the Escalator interface.
type SupportAdapter struct {
	Support *support.Service
}

func (a *SupportAdapter) ShouldEscalate(messageContent string, userContext *domain.UserContext) bool {
	return support.ShouldEscalate(messageContent, userContext)
}

func (a *SupportAdapter) OpenEscalation(ctx context.Context, userID, conversationID, messageContent string, history []*domain.Message) (string, error) {
	return a.Support.OpenEscalation(ctx, &support.OpenEscalationInput{
		UserID:         userID,
		ConversationID: conversationID,
		MessageContent: messageContent,
		History:        history,
	})
}
