package agent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"caixinha-backend/internal/domain"
	"caixinha-backend/internal/llm"
	"caixinha-backend/pkg/resilience"
)

// Mocks

type MockConversationalist struct {
	mock.Mock
}

func (m *MockConversationalist) SendMessage(ctx context.Context, input *SendInput) (*domain.Message, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockConversationalist) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error) {
	args := m.Called(ctx, conversationID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

type MockProfileReader struct {
	mock.Mock
}

func (m *MockProfileReader) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserProfile), args.Error(1)
}

type MockEscalator struct {
	mock.Mock
}

func (m *MockEscalator) ShouldEscalate(messageContent string, userContext *domain.UserContext) bool {
	args := m.Called(messageContent, userContext)
	return args.Bool(0)
}

func (m *MockEscalator) OpenEscalation(ctx context.Context, userID, conversationID, messageContent string, history []*domain.Message) (string, error) {
	args := m.Called(ctx, userID, conversationID, messageContent, history)
	return args.String(0), args.Error(1)
}

type MockCompletionClient struct {
	mock.Mock
}

func (m *MockCompletionClient) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.CompletionResponse), args.Error(1)
}

func (m *MockCompletionClient) Name() string {
	return "mock"
}

type agentFixture struct {
	chat      *MockConversationalist
	profiles  *MockProfileReader
	escalator *MockEscalator
	llm       *MockCompletionClient
	service   *Service
}

func newAgentFixture() *agentFixture {
	f := &agentFixture{
		chat:      new(MockConversationalist),
		profiles:  new(MockProfileReader),
		escalator: new(MockEscalator),
		llm:       new(MockCompletionClient),
	}
	f.service = NewService(f.chat, f.profiles, f.escalator, f.llm, nil, "assistente-ia", 5, 30*time.Second)
	return f
}

func agentReply(content string) *domain.Message {
	return &domain.Message{
		ID:       "reply-1",
		SenderID: "assistente-ia",
		Content:  content,
	}
}

func TestHandleIncomingMessageProviderReply(t *testing.T) {
	f := newAgentFixture()
	ctx := context.Background()

	f.profiles.On("GetProfile", ctx, "alice").Return(&domain.UserProfile{UserID: "alice", Name: "Alice"}, nil)
	f.chat.On("RecentMessages", ctx, "alice_assistente-ia", 10).Return([]*domain.Message{
		{SenderID: "alice", Content: "oi"},
	}, nil)
	f.escalator.On("ShouldEscalate", "como funciona a caixinha?", mock.Anything).Return(false)
	f.llm.On("Complete", mock.Anything, mock.AnythingOfType("*llm.CompletionRequest")).Return(&llm.CompletionResponse{
		Content: "A caixinha é um grupo de poupança colaborativa!",
	}, nil)
	f.chat.On("SendMessage", ctx, mock.MatchedBy(func(input *SendInput) bool {
		return input.SenderID == "assistente-ia" && input.RecipientID == "alice" && input.Content != ""
	})).Return(agentReply("A caixinha é um grupo de poupança colaborativa!"), nil)

	msg, err := f.service.HandleIncomingMessage(ctx, "alice", "como funciona a caixinha?")

	assert.NoError(t, err)
	assert.Equal(t, "assistente-ia", msg.SenderID)
	f.llm.AssertExpectations(t)
	f.chat.AssertExpectations(t)
}

func TestHandleIncomingMessageProviderFailureFallsBack(t *testing.T) {
	f := newAgentFixture()
	ctx := context.Background()

	f.profiles.On("GetProfile", ctx, "alice").Return(&domain.UserProfile{UserID: "alice"}, nil)
	f.chat.On("RecentMessages", ctx, "alice_assistente-ia", 10).Return([]*domain.Message{}, nil)
	f.escalator.On("ShouldEscalate", mock.Anything, mock.Anything).Return(false)
	f.llm.On("Complete", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	var sent *SendInput
	f.chat.On("SendMessage", ctx, mock.AnythingOfType("*agent.SendInput")).Run(func(args mock.Arguments) {
		sent = args.Get(1).(*SendInput)
	}).Return(agentReply("fallback"), nil)

	msg, err := f.service.HandleIncomingMessage(ctx, "alice", "qual o meu saldo?")

	assert.NoError(t, err)
	assert.NotNil(t, msg)
	assert.NotEmpty(t, sent.Content)
	assert.Equal(t, FallbackReply("qual o meu saldo?"), sent.Content)
	f.chat.AssertNumberOfCalls(t, "SendMessage", 1)
}

func TestHandleIncomingMessageEscalationShortCircuit(t *testing.T) {
	f := newAgentFixture()
	ctx := context.Background()

	history := []*domain.Message{{SenderID: "alice", Content: "oi"}}

	f.profiles.On("GetProfile", ctx, "alice").Return(&domain.UserProfile{UserID: "alice"}, nil)
	f.chat.On("RecentMessages", ctx, "alice_assistente-ia", 10).Return(history, nil)
	f.escalator.On("ShouldEscalate", "meu dinheiro sumiu da caixinha", mock.Anything).Return(true)
	f.escalator.On("OpenEscalation", ctx, "alice", "alice_assistente-ia", "meu dinheiro sumiu da caixinha", history).Return("ticket-1", nil)
	f.chat.On("SendMessage", ctx, mock.MatchedBy(func(input *SendInput) bool {
		return input.Content == TransferMessage
	})).Return(agentReply(TransferMessage), nil)

	msg, err := f.service.HandleIncomingMessage(ctx, "alice", "meu dinheiro sumiu da caixinha")

	assert.NoError(t, err)
	assert.NotNil(t, msg)
	f.llm.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	f.escalator.AssertExpectations(t)
}

func TestHandleIncomingMessageEscalationTicketFailureStillReplies(t *testing.T) {
	f := newAgentFixture()
	ctx := context.Background()

	f.profiles.On("GetProfile", ctx, "alice").Return(&domain.UserProfile{UserID: "alice"}, nil)
	f.chat.On("RecentMessages", ctx, "alice_assistente-ia", 10).Return([]*domain.Message{}, nil)
	f.escalator.On("ShouldEscalate", mock.Anything, mock.Anything).Return(true)
	f.escalator.On("OpenEscalation", ctx, "alice", "alice_assistente-ia", mock.Anything, mock.Anything).Return("", assert.AnError)
	f.chat.On("SendMessage", ctx, mock.MatchedBy(func(input *SendInput) bool {
		return input.Content == TransferMessage
	})).Return(agentReply(TransferMessage), nil)

	msg, err := f.service.HandleIncomingMessage(ctx, "alice", "quero falar com atendente")

	assert.NoError(t, err)
	assert.NotNil(t, msg)
}

func TestHandleIncomingMessagePersistenceFailurePropagates(t *testing.T) {
	f := newAgentFixture()
	ctx := context.Background()

	f.profiles.On("GetProfile", ctx, "alice").Return(&domain.UserProfile{UserID: "alice"}, nil)
	f.chat.On("RecentMessages", ctx, "alice_assistente-ia", 10).Return([]*domain.Message{}, nil)
	f.escalator.On("ShouldEscalate", mock.Anything, mock.Anything).Return(false)
	f.llm.On("Complete", mock.Anything, mock.Anything).Return(&llm.CompletionResponse{Content: "resposta"}, nil)
	f.chat.On("SendMessage", ctx, mock.Anything).Return(nil, assert.AnError)

	msg, err := f.service.HandleIncomingMessage(ctx, "alice", "oi")

	assert.Nil(t, msg)
	assert.Error(t, err)
}

func TestEscalationReceivesFullHistoryWindow(t *testing.T) {
	f := newAgentFixture()
	ctx := context.Background()

	history := make([]*domain.Message, domain.EscalationHistoryMaxLength)
	for i := range history {
		history[i] = &domain.Message{SenderID: "alice", Content: fmt.Sprintf("mensagem %d", i)}
	}

	f.profiles.On("GetProfile", ctx, "alice").Return(&domain.UserProfile{UserID: "alice"}, nil)
	f.chat.On("RecentMessages", ctx, "alice_assistente-ia", domain.EscalationHistoryMaxLength).Return(history, nil)
	f.escalator.On("ShouldEscalate", mock.Anything, mock.Anything).Return(true)
	f.escalator.On("OpenEscalation", ctx, "alice", "alice_assistente-ia", mock.Anything, mock.MatchedBy(func(h []*domain.Message) bool {
		return len(h) == domain.EscalationHistoryMaxLength
	})).Return("ticket-1", nil)
	f.chat.On("SendMessage", ctx, mock.Anything).Return(agentReply(TransferMessage), nil)

	_, err := f.service.HandleIncomingMessage(ctx, "alice", "quero falar com atendente")

	assert.NoError(t, err)
	f.escalator.AssertExpectations(t)
}

func TestProviderHistoryCappedAtConfiguredLimit(t *testing.T) {
	f := newAgentFixture()
	ctx := context.Background()

	history := make([]*domain.Message, domain.EscalationHistoryMaxLength)
	for i := range history {
		history[i] = &domain.Message{SenderID: "alice", Content: fmt.Sprintf("mensagem %d", i)}
	}

	f.profiles.On("GetProfile", ctx, "alice").Return(&domain.UserProfile{UserID: "alice"}, nil)
	f.chat.On("RecentMessages", ctx, "alice_assistente-ia", domain.EscalationHistoryMaxLength).Return(history, nil)
	f.escalator.On("ShouldEscalate", mock.Anything, mock.Anything).Return(false)

	var captured *llm.CompletionRequest
	f.llm.On("Complete", mock.Anything, mock.AnythingOfType("*llm.CompletionRequest")).Run(func(args mock.Arguments) {
		captured = args.Get(1).(*llm.CompletionRequest)
	}).Return(&llm.CompletionResponse{Content: "resposta"}, nil)
	f.chat.On("SendMessage", ctx, mock.Anything).Return(agentReply("resposta"), nil)

	_, err := f.service.HandleIncomingMessage(ctx, "alice", "oi")

	assert.NoError(t, err)
	// 5 history turns plus the incoming message itself.
	assert.Len(t, captured.Messages, 6)
	// History is newest first, so the cap keeps the most recent turns.
	assert.Equal(t, "mensagem 4", captured.Messages[0].Content)
	assert.Equal(t, "oi", captured.Messages[5].Content)
}

func TestFallbackReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"circuit open", resilience.ErrOpen, "circuit_open"},
		{"wrapped deadline", fmt.Errorf("provider: %w", context.DeadlineExceeded), "timeout"},
		{"generic provider error", assert.AnError, "provider_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fallbackReason(tt.err))
		})
	}
}

func TestHistoryTurnsOrdering(t *testing.T) {
	history := []*domain.Message{
		{SenderID: "assistente-ia", Content: "terceira"},
		{SenderID: "alice", Content: "segunda"},
		{SenderID: "alice", Content: "primeira"},
	}

	turns := historyTurns(history, "assistente-ia")

	assert.Len(t, turns, 3)
	assert.Equal(t, "primeira", turns[0].Content)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "terceira", turns[2].Content)
	assert.Equal(t, "assistant", turns[2].Role)
}
