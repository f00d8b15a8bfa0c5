package domain

import "time"

// MessageTypeText is the only content type currently carried.
// The field is kept on the wire so media types can be added without a
// schema migration.
const MessageTypeText = "text"

// DeletedPlaceholder replaces the content of soft-deleted messages.
const DeletedPlaceholder = "Mensagem apagada"

// MessageStatus tracks the delivery state of a single message.
// The only transition is unread -> read; there is no way back.
type MessageStatus struct {
	Sent      bool       `json:"sent" firestore:"sent"`
	Delivered bool       `json:"delivered" firestore:"delivered"`
	Read      bool       `json:"read" firestore:"read"`
	ReadAt    *time.Time `json:"readAt,omitempty" firestore:"readAt,omitempty"`
}

// Message is one unit of conversation content, stored in the
// conversations/{id}/messages subcollection. Legacy-schema documents
// are mapped into this shape on read; callers never see which schema
// a message came from.
type Message struct {
	ID              string        `json:"id" firestore:"-"`
	ConversationID  string        `json:"conversationId" firestore:"-"`
	SenderID        string        `json:"sender" firestore:"sender"`
	Content         string        `json:"content" firestore:"content"`
	Type            string        `json:"type" firestore:"type"`
	Status          MessageStatus `json:"status" firestore:"status"`
	Deleted         bool          `json:"deleted,omitempty" firestore:"deleted,omitempty"`
	OriginalContent string        `json:"-" firestore:"originalContent,omitempty"`
	Timestamp       time.Time     `json:"timestamp" firestore:"timestamp"`
}

// NewTextMessage builds a freshly sent message with initial status.
func NewTextMessage(conversationID, senderID, content string, now time.Time) *Message {
	return &Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Type:           MessageTypeText,
		Status:         MessageStatus{Sent: true},
		Timestamp:      now,
	}
}

// MarkRead transitions the message to read. Read implies delivered,
// and ReadAt is set exactly when the transition happens. Marking an
// already-read message is a no-op and reports false.
func (m *Message) MarkRead(at time.Time) bool {
	if m.Status.Read {
		return false
	}
	m.Status.Read = true
	m.Status.Delivered = true
	t := at
	m.Status.ReadAt = &t
	return true
}
