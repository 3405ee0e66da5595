package realtime

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const channelPrefix = "safedeal:conversation:"

// RedisBroker relays events through Redis pub/sub so that every API instance
// delivers them to its own subscribers.
type RedisBroker struct {
	client *redis.Client
	hub    *Hub
	logger zerolog.Logger
}

func NewRedisBroker(client *redis.Client, hub *Hub, logger zerolog.Logger) *RedisBroker {
	return &RedisBroker{
		client: client,
		hub:    hub,
		logger: logger.With().Str("component", "realtime_redis").Logger(),
	}
}

func channelFor(convID string) string {
	return channelPrefix + convID
}

func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelFor(ev.ConversationID), payload).Err()
}

// Run relays published events to the local hub until ctx is done.
func (b *RedisBroker) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	b.logger.Info().Msg("subscribed to conversation events")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("malformed event")
				continue
			}
			if ev.ConversationID == "" {
				ev.ConversationID = strings.TrimPrefix(msg.Channel, channelPrefix)
			}
			b.hub.Deliver(ev)
		}
	}
}
