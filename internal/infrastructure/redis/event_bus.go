package redis

import (
	"context"
	"encoding/json"

	"tasktrack/internal/domain"

	"github.com/redis/go-redis/v9"
)

// RunEventBus broadcasts run finalisation over Redis Pub/Sub so embedders
// waiting on a batch learn about terminal statuses without polling Postgres.
type RunEventBus struct {
	client  *redis.Client
	channel string
}

func NewRunEventBus(client *redis.Client) *RunEventBus {
	return &RunEventBus{
		client:  client,
		channel: "tasktrack:runs:finalised",
	}
}

// PublishRunFinalised broadcasts the event to the network
func (b *RunEventBus) PublishRunFinalised(ctx context.Context, event domain.RunFinalisedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return b.client.Publish(ctx, b.channel, payload).Err()
}

// SubscribeToEvents opens a continuous stream of finalisation events
func (b *RunEventBus) SubscribeToEvents(ctx context.Context) (<-chan domain.RunFinalisedEvent, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)

	msgChan := make(chan domain.RunFinalisedEvent)

	// Background goroutine listens to Redis and forwards to our Go channel
	go func() {
		defer close(msgChan)
		for {
			select {
			case <-ctx.Done(): // Handle shutdown gracefully
				pubsub.Close()
				return
			default:
				msg, err := pubsub.ReceiveMessage(ctx)
				if err == nil {
					var event domain.RunFinalisedEvent
					if err := json.Unmarshal([]byte(msg.Payload), &event); err == nil {
						msgChan <- event
					}
				}
			}
		}
	}()

	return msgChan, nil
}
