package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"caixinha-backend/internal/domain"
	"caixinha-backend/pkg/errors"
	"caixinha-backend/pkg/logger"
	"caixinha-backend/pkg/metrics"
	"caixinha-backend/pkg/push"
)

// Default and maximum page sizes for message listing.
const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 100
)

// ConversationRepository is the new-schema storage boundary.
type ConversationRepository interface {
	Get(ctx context.Context, conversationID string) (*domain.Conversation, error)
	GetOrCreate(ctx context.Context, conversationID, idA, idB string, now time.Time) (*domain.Conversation, bool, error)
	AppendMessage(ctx context.Context, msg *domain.Message) error
	UpdateSendIndexes(ctx context.Context, msg *domain.Message, sender, recipient *domain.UserProfile) error
	ListMessages(ctx context.Context, conversationID string, limit int, before *time.Time) ([]*domain.Message, error)
	UnreadMessages(ctx context.Context, conversationID, userID string) ([]*domain.Message, error)
	MarkMessagesRead(ctx context.Context, conversationID string, messageIDs []string, at time.Time) error
	SoftDeleteMessage(ctx context.Context, conversationID, messageID, userID string) error
}

// LegacyMessageRepository is the pre-migration storage boundary.
type LegacyMessageRepository interface {
	Exists(ctx context.Context, pairID string) (bool, error)
	ListMessages(ctx context.Context, pairID string, limit int, before *time.Time) ([]*domain.Message, error)
	UnreadMessages(ctx context.Context, pairID, userID string) ([]*domain.Message, error)
	MarkMessagesRead(ctx context.Context, pairID string, messageIDs []string, at time.Time) error
}

// UserRepository reads profiles and maintains the conversas index.
type UserRepository interface {
	GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error)
	ConversationEntries(ctx context.Context, userID string) (map[string]*domain.ConversationSummary, error)
	ConversationEntry(ctx context.Context, userID, conversationID string) (*domain.ConversationSummary, error)
	ResetUnread(ctx context.Context, userID, conversationID string, at time.Time) error
}

// Publisher fans sent messages out to the real-time channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload interface{}) error
}

// PresenceChecker reports whether a user has an active session.
type PresenceChecker interface {
	IsUserOnline(ctx context.Context, userID string) (bool, error)
}

// Service handles conversation and message business logic.
type Service struct {
	conversationRepo ConversationRepository
	legacyRepo       LegacyMessageRepository
	userRepo         UserRepository
	reader           *SchemaReader
	publisher        Publisher
	presence         PresenceChecker
	pushProvider     push.Provider
	metrics          *metrics.Metrics
	agentID          string

	now func() time.Time
}

// NewService creates a new chat service. publisher, presence,
// pushProvider and m may be nil; the corresponding side effects are
// skipped.
func NewService(
	conversationRepo ConversationRepository,
	legacyRepo LegacyMessageRepository,
	userRepo UserRepository,
	publisher Publisher,
	presence PresenceChecker,
	pushProvider push.Provider,
	m *metrics.Metrics,
	agentID string,
) *Service {
	return &Service{
		conversationRepo: conversationRepo,
		legacyRepo:       legacyRepo,
		userRepo:         userRepo,
		reader:           NewSchemaReader(conversationRepo, legacyRepo, userRepo, m),
		publisher:        publisher,
		presence:         presence,
		pushProvider:     pushProvider,
		metrics:          m,
		agentID:          agentID,
		now:              time.Now,
	}
}

// Reader exposes the dual-schema read facade.
func (s *Service) Reader() *SchemaReader {
	return s.reader
}

// AgentID returns the reserved AI-assistant participant id.
func (s *Service) AgentID() string {
	return s.agentID
}

// GetOrCreateConversation resolves the pair's conversation, creating
// the document lazily on first contact. Idempotent.
func (s *Service) GetOrCreateConversation(ctx context.Context, idA, idB string) (*domain.Conversation, error) {
	conversationID, err := domain.DeriveConversationID(idA, idB)
	if err != nil {
		return nil, err
	}
	conv, created, err := s.conversationRepo.GetOrCreate(ctx, conversationID, idA, idB, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if created {
		logger.Info("conversation created",
			zap.String("conversation_id", conversationID))
	}
	return conv, nil
}

// SendMessageInput contains message data
type SendMessageInput struct {
	SenderID    string
	RecipientID string
	Content     string
}

// SendMessageOutput contains sent message info
type SendMessageOutput struct {
	Message *domain.Message
}

// SendMessage appends a message to the pair's conversation and applies
// the denormalized bookkeeping. The message write is the source of
// truth: if it fails the whole send fails, while a failed index batch
// only degrades previews/counters and is logged instead of propagated.
func (s *Service) SendMessage(ctx context.Context, input *SendMessageInput) (*SendMessageOutput, error) {
	if input.Content == "" {
		return nil, errors.ValidationError("message content must not be empty")
	}

	conv, err := s.GetOrCreateConversation(ctx, input.SenderID, input.RecipientID)
	if err != nil {
		return nil, err
	}

	msg := domain.NewTextMessage(conv.ID, input.SenderID, input.Content, s.now().UTC())
	if err := s.conversationRepo.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}

	sender := s.profileOrStub(ctx, input.SenderID)
	recipient := s.profileOrStub(ctx, input.RecipientID)

	if err := s.conversationRepo.UpdateSendIndexes(ctx, msg, sender, recipient); err != nil {
		// The message is already durable; a stale preview or counter
		// beats a lost message.
		logger.Warn("send index update failed",
			zap.String("conversation_id", conv.ID),
			zap.String("message_id", msg.ID),
			zap.Error(err))
		if s.metrics != nil {
			s.metrics.RecordIndexUpdateFailure()
		}
	}

	if s.metrics != nil {
		s.metrics.RecordMessageSent(s.senderKind(input.SenderID))
	}

	s.publishEvent(ctx, conv.ID, &ChannelEvent{
		Type:           EventTypeMessage,
		ConversationID: conv.ID,
		Message:        msg,
	})

	s.notifyRecipient(ctx, conv.ID, sender, recipient, msg)

	return &SendMessageOutput{Message: msg}, nil
}

// ListMessagesInput contains query parameters
type ListMessagesInput struct {
	ConversationID string
	UserID         string
	Limit          int
	Before         *time.Time
}

// ListMessages returns a reverse-chronological page of the
// conversation, served transparently from whichever schema holds it.
func (s *Service) ListMessages(ctx context.Context, input *ListMessagesInput) ([]*domain.Message, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	if limit > MaxMessageLimit {
		limit = MaxMessageLimit
	}

	member, err := s.reader.ResolveParticipantMembership(ctx, input.ConversationID, input.UserID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, errors.ForbiddenError("not a participant of this conversation")
	}

	return s.reader.ResolveMessages(ctx, input.ConversationID, limit, input.Before)
}

// ListConversations returns the user's conversation index entries,
// most recently active first. Entries with no resolved last-message
// timestamp sort as oldest.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]*domain.ConversationSummary, error) {
	entries, err := s.userRepo.ConversationEntries(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]*domain.ConversationSummary, 0, len(entries))
	for _, entry := range entries {
		summaries = append(summaries, entry)
	}
	domain.SortSummaries(summaries)
	return summaries, nil
}

// DeleteMessage soft-deletes a message the user authored.
func (s *Service) DeleteMessage(ctx context.Context, conversationID, messageID, userID string) error {
	return s.conversationRepo.SoftDeleteMessage(ctx, conversationID, messageID, userID)
}

func (s *Service) senderKind(senderID string) string {
	if senderID == s.agentID {
		return "agent"
	}
	return "user"
}

// profileOrStub loads a profile for index display fields, degrading to
// a bare id when the user document is unreadable. Index updates are
// best-effort and must not fail the send.
func (s *Service) profileOrStub(ctx context.Context, userID string) *domain.UserProfile {
	profile, err := s.userRepo.GetProfile(ctx, userID)
	if err != nil {
		logger.Warn("profile lookup failed, using stub for index update",
			zap.String("user_id", userID),
			zap.Error(err))
		return &domain.UserProfile{UserID: userID}
	}
	return profile
}

func (s *Service) notifyRecipient(ctx context.Context, conversationID string, sender, recipient *domain.UserProfile, msg *domain.Message) {
	if s.pushProvider == nil || recipient.UserID == s.agentID || len(recipient.FCMTokens) == 0 {
		return
	}

	if s.presence != nil {
		online, err := s.presence.IsUserOnline(ctx, recipient.UserID)
		if err != nil {
			logger.Warn("presence check failed, sending push anyway",
				zap.String("user_id", recipient.UserID),
				zap.Error(err))
		} else if online {
			return
		}
	}

	notification := push.NewMessageNotification(sender.Name, domain.Preview(msg.Content), conversationID)
	if _, err := s.pushProvider.Send(ctx, notification, recipient.FCMTokens); err != nil {
		logger.Warn("push notification failed",
			zap.String("user_id", recipient.UserID),
			zap.Error(err))
		if s.metrics != nil {
			s.metrics.RecordPushNotificationFailure("chat_message", "send_error")
		}
		return
	}
	if s.metrics != nil {
		s.metrics.RecordPushNotification("chat_message")
	}
}

// Channel event types published to the real-time channel.
const (
	EventTypeMessage = "message"
	EventTypeRead    = "read"
)

// ChannelEvent is the payload published to chat:{conversationID}.
type ChannelEvent struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id"`
	Message        *domain.Message `json:"message,omitempty"`
	UserID         string          `json:"user_id,omitempty"`
	Count          int             `json:"count,omitempty"`
}

// ConversationChannel names the pub/sub channel for a conversation.
func ConversationChannel(conversationID string) string {
	return fmt.Sprintf("chat:%s", conversationID)
}

func (s *Service) publishEvent(ctx context.Context, conversationID string, event *ChannelEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ConversationChannel(conversationID), event); err != nil {
		// Real-time fanout is best-effort; clients reconcile via REST.
		logger.Warn("channel publish failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
	}
}

// RedisAdapter adapts a redis client to the Publisher interface.
type RedisAdapter struct {
	Client *redis.Client
}

// Publish marshals the payload and publishes it on the channel.
func (a *RedisAdapter) Publish(ctx context.Context, channel string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal channel payload: %w", err)
	}
	return a.Client.Publish(ctx, channel, data).Err()
}
