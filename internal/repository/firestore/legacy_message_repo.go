package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"caixinha-backend/internal/domain"
	"caixinha-backend/pkg/errors"
)

// Legacy layout: messages for a pair live under mensagens/{pairID},
// keyed by the same sorted-pair id the new schema derives. Old
// conversations were never migrated, so this path stays readable
// forever. New writes only ever go to the new schema.
const (
	legacyMessagesCollection = "mensagens"
	legacyItemsSubcollection = "itens"
)

// legacyMessage mirrors the pre-migration document shape. Field names
// were inferred from production data; see mapLegacyStatus for the
// semantics folded into the canonical status.
type legacyMessage struct {
	Texto        string     `firestore:"texto"`
	UIDRemetente string     `firestore:"uidRemetente"`
	Entregue     bool       `firestore:"entregue"`
	Lido         bool       `firestore:"lido"`
	DataLeitura  *time.Time `firestore:"dataLeitura,omitempty"`
	Timestamp    time.Time  `firestore:"timestamp"`
}

// toDomain maps a legacy document into the canonical message shape.
// Callers cannot tell which schema produced the result.
func (m *legacyMessage) toDomain(id, conversationID string) *domain.Message {
	return &domain.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       m.UIDRemetente,
		Content:        m.Texto,
		Type:           domain.MessageTypeText,
		Status:         m.mapLegacyStatus(),
		Timestamp:      m.Timestamp,
	}
}

// mapLegacyStatus folds entregue/lido/dataLeitura into the canonical
// status struct. lido forces delivered so the read-implies-delivered
// invariant holds even for legacy rows where entregue lagged behind.
func (m *legacyMessage) mapLegacyStatus() domain.MessageStatus {
	s := domain.MessageStatus{
		Sent:      true,
		Delivered: m.Entregue || m.Lido,
		Read:      m.Lido,
	}
	if m.Lido && m.DataLeitura != nil {
		s.ReadAt = m.DataLeitura
	}
	return s
}

// LegacyMessageRepository reads and updates the pre-migration message
// layout. It never creates documents.
type LegacyMessageRepository struct {
	client *firestore.Client
}

// NewLegacyMessageRepository creates a new LegacyMessageRepository
func NewLegacyMessageRepository(client *firestore.Client) *LegacyMessageRepository {
	return &LegacyMessageRepository{client: client}
}

func (r *LegacyMessageRepository) itemsRef(pairID string) *firestore.CollectionRef {
	return r.client.Collection(legacyMessagesCollection).Doc(pairID).Collection(legacyItemsSubcollection)
}

// Exists reports whether the legacy path holds any messages for the
// pair. The parent document is often a pure container with no fields
// of its own, so existence is probed on the subcollection, not the doc.
func (r *LegacyMessageRepository) Exists(ctx context.Context, pairID string) (bool, error) {
	iter := r.itemsRef(pairID).Limit(1).Documents(ctx)
	defer iter.Stop()

	_, err := iter.Next()
	if err == iterator.Done {
		return false, nil
	}
	if err != nil {
		return false, errors.ConversationLookupError(err)
	}
	return true, nil
}

// ListMessages returns a reverse-chronological page in canonical shape.
func (r *LegacyMessageRepository) ListMessages(ctx context.Context, pairID string, limit int, before *time.Time) ([]*domain.Message, error) {
	q := r.itemsRef(pairID).
		OrderBy("timestamp", firestore.Desc).
		Limit(limit)
	if before != nil {
		q = q.Where("timestamp", "<", *before)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var messages []*domain.Message
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.ConversationLookupError(err)
		}

		var legacy legacyMessage
		if err := snap.DataTo(&legacy); err != nil {
			return nil, errors.ConversationLookupError(err)
		}
		messages = append(messages, legacy.toDomain(snap.Ref.ID, pairID))
	}
	return messages, nil
}

// UnreadMessages returns unread legacy messages authored by the other
// participant, in canonical shape.
func (r *LegacyMessageRepository) UnreadMessages(ctx context.Context, pairID, userID string) ([]*domain.Message, error) {
	iter := r.itemsRef(pairID).
		Where("lido", "==", false).
		Documents(ctx)
	defer iter.Stop()

	var messages []*domain.Message
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.ConversationLookupError(err)
		}

		var legacy legacyMessage
		if err := snap.DataTo(&legacy); err != nil {
			return nil, errors.ConversationLookupError(err)
		}
		if legacy.UIDRemetente == userID {
			continue
		}
		messages = append(messages, legacy.toDomain(snap.Ref.ID, pairID))
	}
	return messages, nil
}

// MarkMessagesRead flips legacy messages to read using the legacy
// field names.
func (r *LegacyMessageRepository) MarkMessagesRead(ctx context.Context, pairID string, messageIDs []string, at time.Time) error {
	for start := 0; start < len(messageIDs); start += batchLimit {
		end := start + batchLimit
		if end > len(messageIDs) {
			end = len(messageIDs)
		}

		batch := r.client.Batch()
		for _, id := range messageIDs[start:end] {
			batch.Update(r.itemsRef(pairID).Doc(id), []firestore.Update{
				{Path: "lido", Value: true},
				{Path: "entregue", Value: true},
				{Path: "dataLeitura", Value: at},
			})
		}
		if _, err := batch.Commit(ctx); err != nil {
			return errors.PersistenceError(err)
		}
	}
	return nil
}
