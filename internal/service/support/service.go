package support

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"caixinha-backend/internal/domain"
	"caixinha-backend/pkg/logger"
	"caixinha-backend/pkg/metrics"
)

// TicketRepository is the support-system storage boundary.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.SupportTicket) (string, error)
	FindByConversation(ctx context.Context, conversationID string) ([]*domain.SupportTicket, error)
}

// Service opens chat-originated support tickets.
type Service struct {
	tickets TicketRepository
	metrics *metrics.Metrics

	now func() time.Time
}

// NewService creates a new support service. m may be nil.
func NewService(tickets TicketRepository, m *metrics.Metrics) *Service {
	return &Service{
		tickets: tickets,
		metrics: m,
		now:     time.Now,
	}
}

// OpenEscalationInput describes the chat interaction being escalated.
type OpenEscalationInput struct {
	UserID         string
	ConversationID string
	MessageContent string
	History        []*domain.Message
}

// OpenEscalation converts a chat interaction into a support ticket.
// Idempotent per conversation: while a previous escalation ticket is
// still pending or assigned, its id is returned instead of creating a
// second one.
func (s *Service) OpenEscalation(ctx context.Context, input *OpenEscalationInput) (string, error) {
	existing, err := s.tickets.FindByConversation(ctx, input.ConversationID)
	if err != nil {
		return "", err
	}
	for _, t := range existing {
		if t.IsOpenForEscalation() {
			logger.Info("escalation already open, reusing ticket",
				zap.String("conversation_id", input.ConversationID),
				zap.String("ticket_id", t.TicketID))
			if s.metrics != nil {
				s.metrics.RecordEscalation("duplicate")
			}
			return t.TicketID, nil
		}
	}

	ticket := &domain.SupportTicket{
		UserID:         input.UserID,
		Category:       domain.TicketCategoryChatSupport,
		Module:         domain.TicketModuleChat,
		IssueType:      domain.TicketIssueTypeEscalation,
		Title:          "Escalação de atendimento via chat",
		Description:    fmt.Sprintf("Usuário solicitou atendimento humano. Última mensagem: %q", input.MessageContent),
		Status:         domain.TicketStatusPending,
		Priority:       domain.TicketPriorityMedium,
		ConversationID: input.ConversationID,
		Context:        buildTicketContext(input.History),
		CreatedAt:      s.now().UTC(),
	}

	ticketID, err := s.tickets.Create(ctx, ticket)
	if err != nil {
		return "", err
	}

	logger.Info("support ticket created from chat escalation",
		zap.String("conversation_id", input.ConversationID),
		zap.String("ticket_id", ticketID),
		zap.String("user_id", input.UserID))
	if s.metrics != nil {
		s.metrics.RecordEscalation("created")
	}
	return ticketID, nil
}

// buildTicketContext copies up to the newest ten history messages into
// the transcript handed to the human agent.
func buildTicketContext(history []*domain.Message) *domain.TicketContext {
	if len(history) == 0 {
		return nil
	}
	if len(history) > domain.EscalationHistoryMaxLength {
		history = history[:domain.EscalationHistoryMaxLength]
	}

	entries := make([]domain.TicketHistoryEntry, 0, len(history))
	for _, msg := range history {
		entries = append(entries, domain.TicketHistoryEntry{
			SenderID:  msg.SenderID,
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		})
	}
	return &domain.TicketContext{ConversationHistory: entries}
}
