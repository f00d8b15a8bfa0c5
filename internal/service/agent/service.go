package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"caixinha-backend/internal/domain"
	"caixinha-backend/internal/llm"
	"caixinha-backend/pkg/logger"
	"caixinha-backend/pkg/metrics"
	"caixinha-backend/pkg/resilience"
)

// HistoryDefaultLimit is the number of prior messages handed to the
// completion provider when the config does not override it.
const HistoryDefaultLimit = 5

const systemPromptTemplate = `Você é o assistente virtual da Caixinha, um aplicativo de poupança colaborativa e comunidade.
Responda sempre em português brasileiro, de forma curta, amigável e objetiva.
Você ajuda com dúvidas sobre caixinhas (grupos de poupança), pagamentos, marketplace e perfil.
Nunca invente valores de saldo nem confirme transações; oriente o usuário a consultar o aplicativo.
Se não souber responder, sugira falar com um atendente humano.

Contexto do usuário:
%s`

// Conversationalist is the slice of the chat service the relay needs:
// reading history and replying through the normal message path.
type Conversationalist interface {
	SendMessage(ctx context.Context, input *SendInput) (*domain.Message, error)
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error)
}

// SendInput mirrors the chat send contract.
type SendInput struct {
	SenderID    string
	RecipientID string
	Content     string
}

// ProfileReader loads the sender's profile for prompt context and
// escalation heuristics.
type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error)
}

// Escalator decides on and opens human handoffs.
type Escalator interface {
	ShouldEscalate(messageContent string, userContext *domain.UserContext) bool
	OpenEscalation(ctx context.Context, userID, conversationID, messageContent string, history []*domain.Message) (string, error)
}

// Service relays messages addressed to the assistant identity through
// the completion provider and re-injects the reply into the
// conversation.
type Service struct {
	chat            Conversationalist
	profiles        ProfileReader
	escalator       Escalator
	completions     llm.Client
	metrics         *metrics.Metrics
	agentID         string
	model           string
	historyLimit    int
	providerTimeout time.Duration
	breaker         *resilience.CircuitBreaker
}

// NewService creates a new agent relay. completions and m may be nil;
// a nil completion client always answers from the fallback dictionary.
func NewService(
	chat Conversationalist,
	profiles ProfileReader,
	escalator Escalator,
	completions llm.Client,
	m *metrics.Metrics,
	agentID string,
	historyLimit int,
	providerTimeout time.Duration,
) *Service {
	if historyLimit <= 0 {
		historyLimit = HistoryDefaultLimit
	}
	if providerTimeout <= 0 {
		providerTimeout = 30 * time.Second
	}
	return &Service{
		chat:            chat,
		profiles:        profiles,
		escalator:       escalator,
		completions:     completions,
		metrics:         m,
		agentID:         agentID,
		historyLimit:    historyLimit,
		providerTimeout: providerTimeout,
		breaker:         resilience.NewCircuitBreaker("completion-provider", 5, time.Minute),
	}
}

// SetModel pins completion requests to a specific provider model.
// Left unset, each provider falls back to its own default.
func (s *Service) SetModel(model string) {
	s.model = model
}

// historyWindow is the number of messages fetched per incoming turn.
// Escalation tickets carry up to EscalationHistoryMaxLength messages,
// so the fetch covers that even when the provider window is smaller.
// The provider itself only ever sees historyLimit turns.
func (s *Service) historyWindow() int {
	if domain.EscalationHistoryMaxLength > s.historyLimit {
		return domain.EscalationHistoryMaxLength
	}
	return s.historyLimit
}

// IsAgentRecipient reports whether the message targets the assistant.
func (s *Service) IsAgentRecipient(recipientID string) bool {
	return recipientID == s.agentID
}

// HandleIncomingMessage produces and persists exactly one assistant
// reply to a message a human sent to the agent identity. The human's
// message must already be persisted by the caller. Only persistence
// failures propagate; provider trouble degrades to canned responses.
func (s *Service) HandleIncomingMessage(ctx context.Context, senderID, content string) (*domain.Message, error) {
	conversationID, err := domain.DeriveConversationID(senderID, s.agentID)
	if err != nil {
		return nil, err
	}

	profile := s.loadProfile(ctx, senderID)
	history, err := s.chat.RecentMessages(ctx, conversationID, s.historyWindow())
	if err != nil {
		logger.Warn("history fetch for agent reply failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
		history = nil
	}

	reply, source := s.composeReply(ctx, senderID, conversationID, content, profile, history)

	msg, err := s.chat.SendMessage(ctx, &SendInput{
		SenderID:    s.agentID,
		RecipientID: senderID,
		Content:     reply,
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordAgentReply(source)
	}
	return msg, nil
}

// composeReply picks the reply text: escalation transfer, provider
// completion, or canned fallback. Returns the text and its source tag.
func (s *Service) composeReply(ctx context.Context, senderID, conversationID, content string, profile *domain.UserProfile, history []*domain.Message) (string, string) {
	var userContext *domain.UserContext
	if profile != nil {
		userContext = profile.Context()
	}

	if s.escalator != nil && s.escalator.ShouldEscalate(content, userContext) {
		if _, err := s.escalator.OpenEscalation(ctx, senderID, conversationID, content, history); err != nil {
			// The user still gets the transfer message; the ticket is
			// retried on their next escalating message.
			logger.Error("escalation ticket creation failed",
				zap.String("conversation_id", conversationID),
				zap.Error(err))
		}
		return TransferMessage, "escalation"
	}

	if s.completions == nil {
		return FallbackReply(content), "fallback"
	}

	providerHistory := history
	if len(providerHistory) > s.historyLimit {
		providerHistory = providerHistory[:s.historyLimit]
	}
	reply, err := s.complete(ctx, content, profile, providerHistory)
	if err != nil {
		logger.Warn("completion provider failed, using canned response",
			zap.String("provider", s.completions.Name()),
			zap.Error(err))
		if s.metrics != nil {
			s.metrics.RecordProviderFallback(fallbackReason(err))
		}
		return FallbackReply(content), "fallback"
	}
	return reply, "provider"
}

func (s *Service) complete(ctx context.Context, content string, profile *domain.UserProfile, history []*domain.Message) (string, error) {
	if !s.breaker.Allow() {
		return "", resilience.ErrOpen
	}

	ctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	req := &llm.CompletionRequest{
		Model:        s.model,
		SystemPrompt: fmt.Sprintf(systemPromptTemplate, describeUser(profile)),
		Messages:     append(historyTurns(history, s.agentID), llm.ChatMessage{Role: "user", Content: content}),
	}

	resp, err := s.completions.Complete(ctx, req)
	if err != nil {
		s.breaker.RecordFailure()
		return "", err
	}
	if strings.TrimSpace(resp.Content) == "" {
		s.breaker.RecordFailure()
		return "", fmt.Errorf("provider returned empty completion")
	}
	s.breaker.RecordSuccess()

	logger.Debug("agent completion",
		zap.String("provider", s.completions.Name()),
		zap.String("model", resp.Model),
		zap.Int("tokens_in", resp.TokensIn),
		zap.Int("tokens_out", resp.TokensOut),
		zap.Int64("latency_ms", resp.LatencyMs))
	return resp.Content, nil
}

// historyTurns converts recent messages (newest first, as the store
// returns them) into oldest-first provider turns.
func historyTurns(history []*domain.Message, agentID string) []llm.ChatMessage {
	turns := make([]llm.ChatMessage, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		role := "user"
		if msg.SenderID == agentID {
			role = "assistant"
		}
		turns = append(turns, llm.ChatMessage{Role: role, Content: msg.Content})
	}
	return turns
}

// describeUser renders the profile snapshot injected into the system
// prompt. Balances stay at caixinha granularity; the assistant is told
// not to quote them as authoritative.
func describeUser(profile *domain.UserProfile) string {
	if profile == nil {
		return "Usuário sem perfil carregado."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Nome: %s\n", profile.Name)
	if len(profile.Roles) > 0 {
		fmt.Fprintf(&b, "Papéis: %s\n", strings.Join(profile.Roles, ", "))
	}
	active := profile.ActiveCaixinhas()
	fmt.Fprintf(&b, "Caixinhas ativas: %d\n", active)
	for _, c := range profile.Caixinhas {
		if c.Active {
			fmt.Fprintf(&b, "- %s (saldo aproximado: R$ %.2f)\n", c.Name, c.Balance)
		}
	}
	return b.String()
}

func (s *Service) loadProfile(ctx context.Context, userID string) *domain.UserProfile {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		logger.Warn("profile load for agent context failed",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil
	}
	return profile
}

func fallbackReason(err error) string {
	switch {
	case err == nil:
		return "unknown"
	case errors.Is(err, resilience.ErrOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "provider_error"
	}
}
