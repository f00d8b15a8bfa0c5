package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// presenceTTL is how long a user stays online without a heartbeat.
const presenceTTL = 5 * time.Minute

// PresenceRepository handles user online/offline status in Redis.
// Presence feeds the push-notification decision: offline recipients
// get a push, online ones rely on the real-time channel.
type PresenceRepository struct {
	client *redis.Client
}

// NewPresenceRepository creates a new PresenceRepository
func NewPresenceRepository(client *redis.Client) *PresenceRepository {
	return &PresenceRepository{client: client}
}

func presenceKey(userID string) string {
	return fmt.Sprintf("presence:%s", userID)
}

// SetUserOnline marks user as online with an auto-expiring key.
func (r *PresenceRepository) SetUserOnline(ctx context.Context, userID string) error {
	if err := r.client.Set(ctx, presenceKey(userID), "online", presenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to set user online: %w", err)
	}
	return nil
}

// SetUserOffline marks user as offline.
func (r *PresenceRepository) SetUserOffline(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, presenceKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}
	return nil
}

// IsUserOnline checks if user is currently online.
func (r *PresenceRepository) IsUserOnline(ctx context.Context, userID string) (bool, error) {
	exists, err := r.client.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check presence: %w", err)
	}
	return exists > 0, nil
}

// RefreshPresence keeps user online (heartbeat).
func (r *PresenceRepository) RefreshPresence(ctx context.Context, userID string) error {
	if err := r.client.Expire(ctx, presenceKey(userID), presenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}
	return nil
}
