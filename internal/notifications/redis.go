package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisDispatcher publishes events on per-user Redis channels for
// connected front ends.
type RedisDispatcher struct {
	rdb *redis.Client
}

// NewRedisDispatcher creates a dispatcher using the provided Redis client.
func NewRedisDispatcher(rdb *redis.Client) *RedisDispatcher {
	return &RedisDispatcher{rdb: rdb}
}

// Notify publishes ev as JSON to the recipient's channel.
func (d *RedisDispatcher) Notify(ctx context.Context, ev Event) error {
	if d.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(struct {
		Type          string `json:"type"`
		Title         string `json:"title"`
		Message       string `json:"message"`
		ApplicationID string `json:"applicationId,omitempty"`
	}{string(ev.Type), ev.Title, ev.Message, ev.ApplicationID})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return d.rdb.Publish(ctx, UserChannel(ev.UserID), payload).Err()
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID string) string {
	return "notifications:user:" + userID
}
