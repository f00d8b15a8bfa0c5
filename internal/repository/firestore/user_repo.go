package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"caixinha-backend/internal/domain"
	"caixinha-backend/pkg/errors"
)

// UserRepository reads user profiles and maintains the embedded
// per-user conversation index (the conversas map).
type UserRepository struct {
	client *firestore.Client
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(client *firestore.Client) *UserRepository {
	return &UserRepository{client: client}
}

func (r *UserRepository) userRef(userID string) *firestore.DocumentRef {
	return r.client.Collection(usersCollection).Doc(userID)
}

// userDoc is the slice of the user document this repository touches.
type userDoc struct {
	domain.UserProfile

	Conversas map[string]*domain.ConversationSummary `firestore:"conversas,omitempty"`
}

func (r *UserRepository) load(ctx context.Context, userID string) (*userDoc, error) {
	snap, err := r.userRef(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.UserNotFoundError()
		}
		return nil, errors.Wrap(errors.ErrCodePersistence, "read user document", err)
	}

	var doc userDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodePersistence, "decode user document", err)
	}
	doc.UserID = snap.Ref.ID
	return &doc, nil
}

// GetProfile returns the display/role/caixinha slice of a user.
func (r *UserRepository) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	doc, err := r.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &doc.UserProfile, nil
}

// ConversationEntries returns the user's conversation index keyed by
// conversation id. A user with no conversations yields an empty map.
func (r *UserRepository) ConversationEntries(ctx context.Context, userID string) (map[string]*domain.ConversationSummary, error) {
	doc, err := r.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	entries := doc.Conversas
	if entries == nil {
		entries = map[string]*domain.ConversationSummary{}
	}
	for id, entry := range entries {
		entry.ConversationID = id
	}
	return entries, nil
}

// ConversationEntry returns a single index entry, or nil when the user
// has no entry for that conversation.
func (r *UserRepository) ConversationEntry(ctx context.Context, userID, conversationID string) (*domain.ConversationSummary, error) {
	entries, err := r.ConversationEntries(ctx, userID)
	if err != nil {
		return nil, err
	}
	return entries[conversationID], nil
}

// ResetUnread zeroes the unread counter for a conversation and stamps
// the user's last access. Exactly the write markConversationRead ends
// with.
func (r *UserRepository) ResetUnread(ctx context.Context, userID, conversationID string, at time.Time) error {
	_, err := r.userRef(userID).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"conversas", conversationID, "naoLidas"}, Value: 0},
		{FieldPath: firestore.FieldPath{"conversas", conversationID, "ultimoAcesso"}, Value: at},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.UserNotFoundError()
		}
		return errors.PersistenceError(err)
	}
	return nil
}
