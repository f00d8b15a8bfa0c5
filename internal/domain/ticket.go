package domain

import "time"

// Ticket status values. The messaging core only ever creates tickets;
// status transitions belong to the support module.
const (
	TicketStatusPending    = "pending"
	TicketStatusAssigned   = "assigned"
	TicketStatusInProgress = "in_progress"
	TicketStatusResolved   = "resolved"
	TicketStatusClosed     = "closed"
)

// Ticket priority values.
const (
	TicketPriorityLow    = "low"
	TicketPriorityMedium = "medium"
	TicketPriorityHigh   = "high"
	TicketPriorityUrgent = "urgent"
)

// Chat-originated tickets carry these fixed classifiers.
const (
	TicketModuleChat           = "chat"
	TicketIssueTypeEscalation  = "escalation_requested"
	TicketCategoryChatSupport  = "suporte_chat"
	EscalationHistoryMaxLength = 10
)

// TicketContext carries the chat transcript handed to the human agent.
type TicketContext struct {
	ConversationHistory []TicketHistoryEntry `json:"conversationHistory,omitempty" firestore:"conversationHistory,omitempty"`
}

// TicketHistoryEntry is one transcript line in the ticket context.
type TicketHistoryEntry struct {
	SenderID  string    `json:"sender" firestore:"sender"`
	Content   string    `json:"content" firestore:"content"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp"`
}

// SupportTicket is the support-system document shape the escalation
// path writes. ConversationID is set only for chat-originated tickets.
type SupportTicket struct {
	TicketID       string         `json:"ticketId" firestore:"-"`
	UserID         string         `json:"userId" firestore:"userId"`
	Category       string         `json:"category" firestore:"category"`
	Module         string         `json:"module" firestore:"module"`
	IssueType      string         `json:"issueType" firestore:"issueType"`
	Title          string         `json:"title" firestore:"title"`
	Description    string         `json:"description" firestore:"description"`
	Status         string         `json:"status" firestore:"status"`
	Priority       string         `json:"priority" firestore:"priority"`
	ConversationID string         `json:"conversationId,omitempty" firestore:"conversationId,omitempty"`
	Context        *TicketContext `json:"context,omitempty" firestore:"context,omitempty"`
	CreatedAt      time.Time      `json:"createdAt" firestore:"createdAt"`
}

// IsOpenForEscalation reports whether this ticket still blocks a new
// escalation for the same conversation.
func (t *SupportTicket) IsOpenForEscalation() bool {
	return t.Status == TicketStatusPending || t.Status == TicketStatusAssigned
}
