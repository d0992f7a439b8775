// Package notify delivers "generation completed" signals to the UI layer.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Channel carries completion events. Front ends subscribe to it and refresh
// their idea lists on receipt.
const Channel = "ideas:generation_completed"

// CompletionEvent is published once per true->false pending transition.
type CompletionEvent struct {
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RedisNotifier publishes completion events over Redis pub/sub.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// GenerationCompleted publishes one event for the user.
func (n *RedisNotifier) GenerationCompleted(ctx context.Context, userID string) error {
	body, err := json.Marshal(CompletionEvent{UserID: userID, OccurredAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal completion event: %w", err)
	}
	if err := n.client.Publish(ctx, Channel, body).Err(); err != nil {
		return fmt.Errorf("publish completion event: %w", err)
	}
	return nil
}
