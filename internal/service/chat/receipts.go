package chat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"caixinha-backend/internal/domain"
	"caixinha-backend/pkg/errors"
	"caixinha-backend/pkg/logger"
)

// MarkReadResult summarizes a mark-as-read pass.
type MarkReadResult struct {
	Count     int       `json:"count"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MarkConversationRead marks every message addressed to the user in
// the conversation as read and zeroes the unread counter. The write
// lands on whichever schema holds the messages; a pair with no history
// anywhere still gets its conversation materialized so the counter
// reset has a home.
func (s *Service) MarkConversationRead(ctx context.Context, conversationID, userID string) (*MarkReadResult, error) {
	member, err := s.reader.ResolveParticipantMembership(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, errors.ForbiddenError("not a participant of this conversation")
	}

	at := s.now().UTC()

	// Subcollection queries on an absent document come back empty, so
	// the schema choice hangs on the conversation document itself.
	if _, err := s.conversationRepo.Get(ctx, conversationID); err != nil {
		if !errors.HasCode(err, errors.ErrCodeNotFound) {
			return nil, err
		}
		return s.markLegacyRead(ctx, conversationID, userID, at)
	}

	unread, err := s.conversationRepo.UnreadMessages(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	count := len(unread)
	if count > 0 {
		ids := make([]string, 0, count)
		for _, msg := range unread {
			ids = append(ids, msg.ID)
		}
		if err := s.conversationRepo.MarkMessagesRead(ctx, conversationID, ids, at); err != nil {
			return nil, err
		}
	}

	s.finishRead(ctx, conversationID, userID, count, at)
	return &MarkReadResult{Count: count, UpdatedAt: at}, nil
}

// markLegacyRead applies the receipt pass to the legacy tree. A pair
// with no legacy history either gets its conversation created on the
// spot, so the zeroed counter is consistent with an empty thread.
func (s *Service) markLegacyRead(ctx context.Context, conversationID, userID string, at time.Time) (*MarkReadResult, error) {
	exists, err := s.legacyRepo.Exists(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if !exists {
		idA, idB, err := domain.SplitConversationID(conversationID)
		if err != nil {
			return nil, err
		}
		if _, _, err := s.conversationRepo.GetOrCreate(ctx, conversationID, idA, idB, at); err != nil {
			return nil, err
		}
		s.finishRead(ctx, conversationID, userID, 0, at)
		return &MarkReadResult{Count: 0, UpdatedAt: at}, nil
	}

	if s.metrics != nil {
		s.metrics.RecordLegacyRead()
	}

	unread, err := s.legacyRepo.UnreadMessages(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	count := len(unread)
	if count > 0 {
		ids := make([]string, 0, count)
		for _, msg := range unread {
			ids = append(ids, msg.ID)
		}
		if err := s.legacyRepo.MarkMessagesRead(ctx, conversationID, ids, at); err != nil {
			return nil, err
		}
	}

	s.finishRead(ctx, conversationID, userID, count, at)
	return &MarkReadResult{Count: count, UpdatedAt: at}, nil
}

// finishRead resets the unread counter, records metrics and publishes
// the read event. All best-effort: the receipt writes already landed.
func (s *Service) finishRead(ctx context.Context, conversationID, userID string, count int, at time.Time) {
	if err := s.userRepo.ResetUnread(ctx, userID, conversationID, at); err != nil {
		logger.Warn("unread counter reset failed",
			zap.String("conversation_id", conversationID),
			zap.String("user_id", userID),
			zap.Error(err))
	}

	if s.metrics != nil && count > 0 {
		s.metrics.RecordMessagesRead(count)
	}

	s.publishEvent(ctx, conversationID, &ChannelEvent{
		Type:           EventTypeRead,
		ConversationID: conversationID,
		UserID:         userID,
		Count:          count,
	})
}
