package chat

import (
	"context"
	"time"

	"caixinha-backend/internal/domain"
	"caixinha-backend/pkg/errors"
	"caixinha-backend/pkg/metrics"
)

// SchemaReader serves reads across the post-migration conversation
// documents and the legacy per-pair message trees. Callers never see
// which schema answered; legacy records are mapped to the canonical
// message shape on the way out.
type SchemaReader struct {
	conversations ConversationRepository
	legacy        LegacyMessageRepository
	users         UserRepository
	metrics       *metrics.Metrics
}

// NewSchemaReader creates a reader over both message schemas.
func NewSchemaReader(
	conversations ConversationRepository,
	legacy LegacyMessageRepository,
	users UserRepository,
	m *metrics.Metrics,
) *SchemaReader {
	return &SchemaReader{
		conversations: conversations,
		legacy:        legacy,
		users:         users,
		metrics:       m,
	}
}

// ResolveMessages lists a page of messages, preferring the new schema
// and falling back to the legacy tree. A pair with history in neither
// place yields an empty page, not an error.
func (r *SchemaReader) ResolveMessages(ctx context.Context, conversationID string, limit int, before *time.Time) ([]*domain.Message, error) {
	messages, err := r.conversations.ListMessages(ctx, conversationID, limit, before)
	if err != nil {
		return nil, err
	}
	if len(messages) > 0 {
		return messages, nil
	}

	exists, err := r.legacy.Exists(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return messages, nil
	}

	if r.metrics != nil {
		r.metrics.RecordLegacyRead()
	}
	return r.legacy.ListMessages(ctx, conversationID, limit, before)
}

// ResolveParticipantMembership reports whether userID belongs to the
// conversation. The participant array on the conversation document is
// authoritative; when the document does not exist yet the user's own
// conversas index entry is accepted as evidence, which covers
// legacy-only pairs.
func (r *SchemaReader) ResolveParticipantMembership(ctx context.Context, conversationID, userID string) (bool, error) {
	conv, err := r.conversations.Get(ctx, conversationID)
	if err == nil {
		return conv.HasParticipant(userID), nil
	}
	if !errors.HasCode(err, errors.ErrCodeNotFound) {
		return false, err
	}

	entry, err := r.users.ConversationEntry(ctx, userID, conversationID)
	if err != nil {
		return false, err
	}
	if entry != nil {
		return true, nil
	}

	// Last resort: the id itself encodes the pair.
	idA, idB, err := domain.SplitConversationID(conversationID)
	if err != nil {
		return false, nil
	}
	return userID == idA || userID == idB, nil
}
