package domain

import (
	"sort"
	"strings"
	"time"

	"caixinha-backend/pkg/errors"
)

// ConversationTypePrivate is the only type currently implemented.
// "grupo" is reserved for group threads.
const (
	ConversationTypePrivate = "privada"
	ConversationTypeGroup   = "grupo"
)

// PreviewMaxLen caps the denormalized last-message preview text.
const PreviewMaxLen = 100

// DeriveConversationID builds the deterministic id for a 1:1 thread:
// the two participant ids sorted lexicographically and joined with "_".
// Symmetric: DeriveConversationID(a, b) == DeriveConversationID(b, a).
func DeriveConversationID(idA, idB string) (string, error) {
	if idA == "" || idB == "" {
		return "", errors.InvalidParticipantsError("participant ids must not be empty")
	}
	if idA == idB {
		return "", errors.InvalidParticipantsError("participants must be distinct users")
	}
	if idA < idB {
		return idA + "_" + idB, nil
	}
	return idB + "_" + idA, nil
}

// SplitConversationID recovers the two participant ids embedded in a
// derived conversation id. Used to lazily recreate a conversation
// record when neither schema has one.
func SplitConversationID(conversationID string) (string, string, error) {
	parts := strings.SplitN(conversationID, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.InvalidParticipantsError("malformed conversation id: " + conversationID)
	}
	return parts[0], parts[1], nil
}

// LastMessagePreview is the denormalized preview stored on the
// conversation document and on each participant's index entry.
type LastMessagePreview struct {
	Text      string    `json:"text" firestore:"text"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp"`
	SenderID  string    `json:"senderId" firestore:"senderId"`
}

// Conversation is the metadata document for a 1:1 thread.
// Stored at conversations/{id}; messages live in the messages
// subcollection underneath it.
type Conversation struct {
	ID           string              `json:"id" firestore:"id"`
	Type         string              `json:"type" firestore:"type"`
	Participants []string            `json:"participants" firestore:"participants"`
	LastMessage  *LastMessagePreview `json:"lastMessage,omitempty" firestore:"lastMessage,omitempty"`
	CreatedAt    time.Time           `json:"createdAt" firestore:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt" firestore:"updatedAt"`
}

// NewConversation builds a fresh conversation document for a pair.
func NewConversation(conversationID string, idA, idB string, now time.Time) *Conversation {
	return &Conversation{
		ID:           conversationID,
		Type:         ConversationTypePrivate,
		Participants: []string{idA, idB},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// OtherParticipant returns the participant that is not userID, or ""
// when userID is not a member.
func (c *Conversation) OtherParticipant(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// HasParticipant reports membership against the participants array.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Preview truncates message content for the denormalized preview.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= PreviewMaxLen {
		return content
	}
	return string(runes[:PreviewMaxLen])
}

// ConversationSummary is a per-user index entry embedded in the user's
// own document under the conversas map, keyed by conversation id. It
// drives conversation-list rendering without touching the conversation
// documents themselves.
type ConversationSummary struct {
	ConversationID string              `json:"conversationId" firestore:"-"`
	With           string              `json:"com" firestore:"com"`
	Name           string              `json:"nome" firestore:"nome"`
	Photo          string              `json:"foto,omitempty" firestore:"foto,omitempty"`
	Unread         int64               `json:"naoLidas" firestore:"naoLidas"`
	LastAccess     time.Time           `json:"ultimoAcesso" firestore:"ultimoAcesso"`
	LastMessage    *LastMessagePreview `json:"lastMessage,omitempty" firestore:"lastMessage,omitempty"`
}

// SortSummaries orders index entries most recent first by last-message
// timestamp. Entries without a resolved timestamp sort as oldest.
func SortSummaries(entries []*ConversationSummary) {
	ts := func(s *ConversationSummary) time.Time {
		if s.LastMessage == nil {
			return time.Time{}
		}
		return s.LastMessage.Timestamp
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return ts(entries[i]).After(ts(entries[j]))
	})
}
