package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher forwards events out of process.
type Publisher interface {
	Forward(ctx context.Context, event Event) error
}

type redisStreamPublisher struct {
	client *redis.Client
	stream string
}

// NewRedisStreamPublisher appends events to a Redis stream.
func NewRedisStreamPublisher(client *redis.Client, stream string) Publisher {
	return &redisStreamPublisher{client: client, stream: stream}
}

func (p *redisStreamPublisher) Forward(ctx context.Context, event Event) error {
	if p.client == nil {
		return fmt.Errorf("forward %s: redis client not configured", event.Type)
	}
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event.Type, err)
	}
	fields := map[string]any{
		"event_id":   event.ID,
		"event_type": string(event.Type),
		"issue_id":   event.IssueID,
		"actor":      event.Actor.Email,
		"role":       string(event.Actor.Role),
		"timestamp":  event.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		"payload":    string(payload),
	}
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("forward %s: %w", event.Type, err)
	}
	return nil
}
