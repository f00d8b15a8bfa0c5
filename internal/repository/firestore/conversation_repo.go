package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"caixinha-backend/internal/domain"
	"caixinha-backend/pkg/errors"
)

// Collection layout. Messages live in a subcollection under their
// conversation; the per-user index entries live inside each user
// document under the conversas map.
const (
	conversationsCollection = "conversations"
	messagesSubcollection   = "messages"
	usersCollection         = "users"
)

// batchLimit is Firestore's hard cap on operations per batched write.
const batchLimit = 500

// ConversationRepository owns the new-schema conversation documents
// and their message subcollections.
type ConversationRepository struct {
	client *firestore.Client
}

// NewConversationRepository creates a new ConversationRepository
func NewConversationRepository(client *firestore.Client) *ConversationRepository {
	return &ConversationRepository{client: client}
}

func (r *ConversationRepository) conversationRef(conversationID string) *firestore.DocumentRef {
	return r.client.Collection(conversationsCollection).Doc(conversationID)
}

func (r *ConversationRepository) messagesRef(conversationID string) *firestore.CollectionRef {
	return r.conversationRef(conversationID).Collection(messagesSubcollection)
}

// Get loads a conversation document. Returns a NOT_FOUND AppError when
// the document does not exist.
func (r *ConversationRepository) Get(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	snap, err := r.conversationRef(conversationID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFoundError("conversation")
		}
		return nil, errors.ConversationLookupError(err)
	}

	var conv domain.Conversation
	if err := snap.DataTo(&conv); err != nil {
		return nil, errors.ConversationLookupError(err)
	}
	conv.ID = snap.Ref.ID
	return &conv, nil
}

// GetOrCreate looks a conversation up by its derived id, creating the
// document on first contact between the pair. Idempotent: subsequent
// calls read the existing document and perform no writes, and a
// concurrent create by the other participant is absorbed by re-reading.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, conversationID string, idA, idB string, now time.Time) (*domain.Conversation, bool, error) {
	conv, err := r.Get(ctx, conversationID)
	if err == nil {
		return conv, false, nil
	}
	if !errors.HasCode(err, errors.ErrCodeNotFound) {
		return nil, false, err
	}

	conv = domain.NewConversation(conversationID, idA, idB, now)
	if _, err := r.conversationRef(conversationID).Create(ctx, conv); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			existing, getErr := r.Get(ctx, conversationID)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, errors.PersistenceError(err)
	}
	return conv, true, nil
}

// AppendMessage durably writes the message document and assigns its
// store-generated id. The denormalized preview/index updates are a
// separate step (UpdateSendIndexes); a failure there must not undo or
// hide an already-persisted message.
func (r *ConversationRepository) AppendMessage(ctx context.Context, msg *domain.Message) error {
	ref := r.messagesRef(msg.ConversationID).NewDoc()
	if _, err := ref.Create(ctx, msg); err != nil {
		return errors.PersistenceError(err)
	}
	msg.ID = ref.ID
	return nil
}

// UpdateSendIndexes applies the denormalized bookkeeping for a sent
// message in one best-effort batched write: conversation preview,
// sender index entry (unread held at 0) and recipient index entry
// (unread incremented). Display fields come from the counterpart's
// profile so conversation lists render without extra lookups.
func (r *ConversationRepository) UpdateSendIndexes(ctx context.Context, msg *domain.Message, sender, recipient *domain.UserProfile) error {
	preview := &domain.LastMessagePreview{
		Text:      domain.Preview(msg.Content),
		Timestamp: msg.Timestamp,
		SenderID:  msg.SenderID,
	}

	batch := r.client.Batch()

	batch.Set(r.conversationRef(msg.ConversationID), map[string]interface{}{
		"lastMessage": preview,
		"updatedAt":   msg.Timestamp,
	}, firestore.MergeAll)

	senderRef := r.client.Collection(usersCollection).Doc(sender.UserID)
	batch.Set(senderRef, map[string]interface{}{
		"conversas": map[string]interface{}{
			msg.ConversationID: map[string]interface{}{
				"com":         recipient.UserID,
				"nome":        recipient.Name,
				"foto":        recipient.Photo,
				"naoLidas":    0,
				"lastMessage": preview,
			},
		},
	}, firestore.MergeAll)

	recipientRef := r.client.Collection(usersCollection).Doc(recipient.UserID)
	batch.Set(recipientRef, map[string]interface{}{
		"conversas": map[string]interface{}{
			msg.ConversationID: map[string]interface{}{
				"com":         sender.UserID,
				"nome":        sender.Name,
				"foto":        sender.Photo,
				"naoLidas":    firestore.Increment(1),
				"lastMessage": preview,
			},
		},
	}, firestore.MergeAll)

	if _, err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("commit send index batch: %w", err)
	}
	return nil
}

// ListMessages returns a reverse-chronological page of at most limit
// messages, optionally only those strictly before the cursor.
func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID string, limit int, before *time.Time) ([]*domain.Message, error) {
	q := r.messagesRef(conversationID).
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

		var msg domain.Message
		if err := snap.DataTo(&msg); err != nil {
			return nil, errors.ConversationLookupError(err)
		}
		msg.ID = snap.Ref.ID
		msg.ConversationID = conversationID
		messages = append(messages, &msg)
	}
	return messages, nil
}

// UnreadMessages returns the messages in a conversation that userID
// has not read yet. Firestore restricts combined inequality filters,
// so the sender check happens client-side.
func (r *ConversationRepository) UnreadMessages(ctx context.Context, conversationID, userID string) ([]*domain.Message, error) {
	iter := r.messagesRef(conversationID).
		Where("status.read", "==", false).
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

		var msg domain.Message
		if err := snap.DataTo(&msg); err != nil {
			return nil, errors.ConversationLookupError(err)
		}
		if msg.SenderID == userID {
			continue
		}
		msg.ID = snap.Ref.ID
		msg.ConversationID = conversationID
		messages = append(messages, &msg)
	}
	return messages, nil
}

// MarkMessagesRead flips the given messages to read in batched writes.
// Read implies delivered; readAt records the transition time.
func (r *ConversationRepository) MarkMessagesRead(ctx context.Context, conversationID string, messageIDs []string, at time.Time) error {
	for start := 0; start < len(messageIDs); start += batchLimit {
		end := start + batchLimit
		if end > len(messageIDs) {
			end = len(messageIDs)
		}

		batch := r.client.Batch()
		for _, id := range messageIDs[start:end] {
			batch.Update(r.messagesRef(conversationID).Doc(id), []firestore.Update{
				{Path: "status.read", Value: true},
				{Path: "status.delivered", Value: true},
				{Path: "status.readAt", Value: at},
			})
		}
		if _, err := batch.Commit(ctx); err != nil {
			return errors.PersistenceError(err)
		}
	}
	return nil
}

// SoftDeleteMessage replaces the content with a placeholder, keeping
// the original under a separate field. Only the sender may delete.
func (r *ConversationRepository) SoftDeleteMessage(ctx context.Context, conversationID, messageID, userID string) error {
	ref := r.messagesRef(conversationID).Doc(messageID)

	snap, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.MessageNotFoundError()
		}
		return errors.ConversationLookupError(err)
	}

	var msg domain.Message
	if err := snap.DataTo(&msg); err != nil {
		return errors.ConversationLookupError(err)
	}
	if msg.SenderID != userID {
		return errors.ForbiddenError("only the sender can delete a message")
	}
	if msg.Deleted {
		return nil
	}

	if _, err := ref.Update(ctx, []firestore.Update{
		{Path: "content", Value: domain.DeletedPlaceholder},
		{Path: "originalContent", Value: msg.Content},
		{Path: "deleted", Value: true},
	}); err != nil {
		return errors.PersistenceError(err)
	}
	return nil
}
