package push

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"

	"caixinha-backend/pkg/logger"

	"go.uber.org/zap"
)

// FCMProvider implements Provider on top of Firebase Cloud Messaging.
// A nil messaging client puts the provider in disabled mode: sends are
// logged and reported as successes so chat flow never depends on push.
type FCMProvider struct {
	client *messaging.Client
}

// NewFCMProvider creates a new FCM provider. client may be nil when
// Firebase credentials are not configured (local development).
func NewFCMProvider(client *messaging.Client) *FCMProvider {
	if client == nil {
		logger.Warn("FCM messaging client not configured, push notifications disabled")
	}
	return &FCMProvider{client: client}
}

// Send delivers the notification to the given device tokens.
func (f *FCMProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	if len(tokens) == 0 {
		return &SendResult{}, nil
	}

	if f.client == nil {
		logger.Debug("push notification skipped (provider disabled)",
			zap.String("title", notification.Title),
			zap.Int("tokens", len(tokens)))
		return &SendResult{SuccessCount: len(tokens)}, nil
	}

	msg := &messaging.MulticastMessage{
		Notification: &messaging.Notification{
			Title: notification.Title,
			Body:  notification.Body,
		},
		Data:   notification.Data,
		Tokens: tokens,
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: notification.Sound},
			},
		},
	}

	resp, err := f.client.SendEachForMulticast(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("fcm multicast send: %w", err)
	}

	result := &SendResult{
		SuccessCount: resp.SuccessCount,
		FailureCount: resp.FailureCount,
	}

	// Collect tokens FCM reported as unregistered so callers can prune them.
	for i, r := range resp.Responses {
		if r.Error != nil && messaging.IsUnregistered(r.Error) {
			result.InvalidTokens = append(result.InvalidTokens, tokens[i])
		}
	}

	if resp.FailureCount > 0 {
		logger.Warn("some push notifications failed",
			zap.Int("success", resp.SuccessCount),
			zap.Int("failure", resp.FailureCount))
	}

	return result, nil
}
