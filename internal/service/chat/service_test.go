package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"caixinha-backend/internal/domain"
	"caixinha-backend/pkg/errors"
	"caixinha-backend/pkg/push"
)

// Mocks

type MockConversationRepository struct {
	mock.Mock
}

func (m *MockConversationRepository) Get(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockConversationRepository) GetOrCreate(ctx context.Context, conversationID, idA, idB string, now time.Time) (*domain.Conversation, bool, error) {
	args := m.Called(ctx, conversationID, idA, idB, now)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.Conversation), args.Bool(1), args.Error(2)
}

func (m *MockConversationRepository) AppendMessage(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockConversationRepository) UpdateSendIndexes(ctx context.Context, msg *domain.Message, sender, recipient *domain.UserProfile) error {
	args := m.Called(ctx, msg, sender, recipient)
	return args.Error(0)
}

func (m *MockConversationRepository) ListMessages(ctx context.Context, conversationID string, limit int, before *time.Time) ([]*domain.Message, error) {
	args := m.Called(ctx, conversationID, limit, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockConversationRepository) UnreadMessages(ctx context.Context, conversationID, userID string) ([]*domain.Message, error) {
	args := m.Called(ctx, conversationID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockConversationRepository) MarkMessagesRead(ctx context.Context, conversationID string, messageIDs []string, at time.Time) error {
	args := m.Called(ctx, conversationID, messageIDs, at)
	return args.Error(0)
}

func (m *MockConversationRepository) SoftDeleteMessage(ctx context.Context, conversationID, messageID, userID string) error {
	args := m.Called(ctx, conversationID, messageID, userID)
	return args.Error(0)
}

type MockLegacyMessageRepository struct {
	mock.Mock
}

func (m *MockLegacyMessageRepository) Exists(ctx context.Context, pairID string) (bool, error) {
	args := m.Called(ctx, pairID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLegacyMessageRepository) ListMessages(ctx context.Context, pairID string, limit int, before *time.Time) ([]*domain.Message, error) {
	args := m.Called(ctx, pairID, limit, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockLegacyMessageRepository) UnreadMessages(ctx context.Context, pairID, userID string) ([]*domain.Message, error) {
	args := m.Called(ctx, pairID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockLegacyMessageRepository) MarkMessagesRead(ctx context.Context, pairID string, messageIDs []string, at time.Time) error {
	args := m.Called(ctx, pairID, messageIDs, at)
	return args.Error(0)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserProfile), args.Error(1)
}

func (m *MockUserRepository) ConversationEntries(ctx context.Context, userID string) (map[string]*domain.ConversationSummary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*domain.ConversationSummary), args.Error(1)
}

func (m *MockUserRepository) ConversationEntry(ctx context.Context, userID, conversationID string) (*domain.ConversationSummary, error) {
	args := m.Called(ctx, userID, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ConversationSummary), args.Error(1)
}

func (m *MockUserRepository) ResetUnread(ctx context.Context, userID, conversationID string, at time.Time) error {
	args := m.Called(ctx, userID, conversationID, at)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, channel string, payload interface{}) error {
	args := m.Called(ctx, channel, payload)
	return args.Error(0)
}

type MockPresenceChecker struct {
	mock.Mock
}

func (m *MockPresenceChecker) IsUserOnline(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

type MockPushProvider struct {
	mock.Mock
}

func (m *MockPushProvider) Send(ctx context.Context, notification *push.Notification, tokens []string) (*push.SendResult, error) {
	args := m.Called(ctx, notification, tokens)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*push.SendResult), args.Error(1)
}

type fixture struct {
	convRepo   *MockConversationRepository
	legacyRepo *MockLegacyMessageRepository
	userRepo   *MockUserRepository
	publisher  *MockPublisher
	presence   *MockPresenceChecker
	pusher     *MockPushProvider
	service    *Service
}

func newFixture() *fixture {
	f := &fixture{
		convRepo:   new(MockConversationRepository),
		legacyRepo: new(MockLegacyMessageRepository),
		userRepo:   new(MockUserRepository),
		publisher:  new(MockPublisher),
		presence:   new(MockPresenceChecker),
		pusher:     new(MockPushProvider),
	}
	f.service = NewService(f.convRepo, f.legacyRepo, f.userRepo, f.publisher, f.presence, f.pusher, nil, "assistente-ia")
	f.service.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func TestSendMessage(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv := domain.NewConversation("alice_bob", "bob", "alice", time.Now())

	// Expectations
	f.convRepo.On("GetOrCreate", ctx, "alice_bob", "bob", "alice", mock.AnythingOfType("time.Time")).Return(conv, false, nil)
	f.convRepo.On("AppendMessage", ctx, mock.AnythingOfType("*domain.Message")).Run(func(args mock.Arguments) {
		args.Get(1).(*domain.Message).ID = "msg-1"
	}).Return(nil)
	f.userRepo.On("GetProfile", ctx, "bob").Return(&domain.UserProfile{UserID: "bob", Name: "Bob"}, nil)
	f.userRepo.On("GetProfile", ctx, "alice").Return(&domain.UserProfile{UserID: "alice", Name: "Alice", FCMTokens: []string{"token-1"}}, nil)
	f.convRepo.On("UpdateSendIndexes", ctx, mock.AnythingOfType("*domain.Message"), mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("Publish", ctx, "chat:alice_bob", mock.Anything).Return(nil)
	f.presence.On("IsUserOnline", ctx, "alice").Return(false, nil)
	f.pusher.On("Send", ctx, mock.AnythingOfType("*push.Notification"), []string{"token-1"}).Return(&push.SendResult{SuccessCount: 1}, nil)

	// Execute
	output, err := f.service.SendMessage(ctx, &SendMessageInput{
		SenderID:    "bob",
		RecipientID: "alice",
		Content:     "Oi, tudo bem?",
	})

	// Assert
	assert.NoError(t, err)
	assert.NotNil(t, output)
	assert.Equal(t, "msg-1", output.Message.ID)
	assert.Equal(t, "Oi, tudo bem?", output.Message.Content)
	assert.Equal(t, "alice_bob", output.Message.ConversationID)
	assert.True(t, output.Message.Status.Sent)
	assert.False(t, output.Message.Status.Read)

	f.convRepo.AssertExpectations(t)
	f.publisher.AssertExpectations(t)
	f.pusher.AssertExpectations(t)
}

func TestSendMessageEmptyContent(t *testing.T) {
	f := newFixture()

	output, err := f.service.SendMessage(context.Background(), &SendMessageInput{
		SenderID:    "bob",
		RecipientID: "alice",
	})

	assert.Nil(t, output)
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))
	f.convRepo.AssertNotCalled(t, "AppendMessage", mock.Anything, mock.Anything)
}

func TestSendMessageSelfConversation(t *testing.T) {
	f := newFixture()

	output, err := f.service.SendMessage(context.Background(), &SendMessageInput{
		SenderID:    "alice",
		RecipientID: "alice",
		Content:     "note to self",
	})

	assert.Nil(t, output)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidParticipants))
}

func TestSendMessageIndexFailureDoesNotFailSend(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv := domain.NewConversation("alice_bob", "alice", "bob", time.Now())

	f.convRepo.On("GetOrCreate", ctx, "alice_bob", "alice", "bob", mock.AnythingOfType("time.Time")).Return(conv, false, nil)
	f.convRepo.On("AppendMessage", ctx, mock.AnythingOfType("*domain.Message")).Return(nil)
	f.userRepo.On("GetProfile", ctx, mock.AnythingOfType("string")).Return(&domain.UserProfile{}, nil)
	f.convRepo.On("UpdateSendIndexes", ctx, mock.Anything, mock.Anything, mock.Anything).Return(errors.PersistenceError(assert.AnError))
	f.publisher.On("Publish", ctx, "chat:alice_bob", mock.Anything).Return(nil)

	output, err := f.service.SendMessage(ctx, &SendMessageInput{
		SenderID:    "alice",
		RecipientID: "bob",
		Content:     "hello",
	})

	assert.NoError(t, err)
	assert.NotNil(t, output)
	f.publisher.AssertExpectations(t)
}

func TestSendMessageAppendFailureFailsSend(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv := domain.NewConversation("alice_bob", "alice", "bob", time.Now())

	f.convRepo.On("GetOrCreate", ctx, "alice_bob", "alice", "bob", mock.AnythingOfType("time.Time")).Return(conv, false, nil)
	f.convRepo.On("AppendMessage", ctx, mock.Anything).Return(errors.PersistenceError(assert.AnError))

	output, err := f.service.SendMessage(ctx, &SendMessageInput{
		SenderID:    "alice",
		RecipientID: "bob",
		Content:     "hello",
	})

	assert.Nil(t, output)
	assert.True(t, errors.HasCode(err, errors.ErrCodePersistence))
	f.convRepo.AssertNotCalled(t, "UpdateSendIndexes", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageNoPushWhenRecipientOnline(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv := domain.NewConversation("alice_bob", "bob", "alice", time.Now())

	f.convRepo.On("GetOrCreate", ctx, "alice_bob", "bob", "alice", mock.AnythingOfType("time.Time")).Return(conv, false, nil)
	f.convRepo.On("AppendMessage", ctx, mock.Anything).Return(nil)
	f.userRepo.On("GetProfile", ctx, "bob").Return(&domain.UserProfile{UserID: "bob"}, nil)
	f.userRepo.On("GetProfile", ctx, "alice").Return(&domain.UserProfile{UserID: "alice", FCMTokens: []string{"token-1"}}, nil)
	f.convRepo.On("UpdateSendIndexes", ctx, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("Publish", ctx, "chat:alice_bob", mock.Anything).Return(nil)
	f.presence.On("IsUserOnline", ctx, "alice").Return(true, nil)

	_, err := f.service.SendMessage(ctx, &SendMessageInput{
		SenderID:    "bob",
		RecipientID: "alice",
		Content:     "hello",
	})

	assert.NoError(t, err)
	f.pusher.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetOrCreateConversationOrdersParticipants(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv := domain.NewConversation("alice_bob", "bob", "alice", time.Now())
	f.convRepo.On("GetOrCreate", ctx, "alice_bob", "bob", "alice", mock.AnythingOfType("time.Time")).Return(conv, true, nil)

	got, err := f.service.GetOrCreateConversation(ctx, "bob", "alice")

	assert.NoError(t, err)
	assert.Equal(t, "alice_bob", got.ID)
	f.convRepo.AssertExpectations(t)
}

func TestListConversationsSortedByRecency(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	older := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)

	f.userRepo.On("ConversationEntries", ctx, "alice").Return(map[string]*domain.ConversationSummary{
		"alice_bob": {
			ConversationID: "alice_bob",
			With:           "bob",
			LastMessage:    &domain.LastMessagePreview{Text: "old", Timestamp: older},
		},
		"alice_carol": {
			ConversationID: "alice_carol",
			With:           "carol",
			LastMessage:    &domain.LastMessagePreview{Text: "new", Timestamp: newer},
		},
		"alice_dave": {
			ConversationID: "alice_dave",
			With:           "dave",
		},
	}, nil)

	summaries, err := f.service.ListConversations(ctx, "alice")

	assert.NoError(t, err)
	assert.Len(t, summaries, 3)
	assert.Equal(t, "alice_carol", summaries[0].ConversationID)
	assert.Equal(t, "alice_bob", summaries[1].ConversationID)
	assert.Equal(t, "alice_dave", summaries[2].ConversationID)
}

func TestListMessagesRejectsNonParticipant(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv := domain.NewConversation("alice_bob", "alice", "bob", time.Now())
	f.convRepo.On("Get", ctx, "alice_bob").Return(conv, nil)

	messages, err := f.service.ListMessages(ctx, &ListMessagesInput{
		ConversationID: "alice_bob",
		UserID:         "mallory",
	})

	assert.Nil(t, messages)
	assert.True(t, errors.HasCode(err, errors.ErrCodeForbidden))
	f.convRepo.AssertNotCalled(t, "ListMessages", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
