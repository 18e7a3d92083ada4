package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/splax/hackhub/internal/domain"
)

// DefaultRelayChannel is the Redis channel live events travel on.
const DefaultRelayChannel = "hackhub:live"

var errMissingTopic = errors.New("live event has no topic")

// RedisRelay shares live events between API replicas over Redis pub/sub.
// Publish sends to Redis; Run delivers every event received on the channel,
// including this replica's own, into the local hub.
type RedisRelay struct {
	client  redis.UniversalClient
	hub     *Hub
	channel string
	log     *slog.Logger
}

// NewRedisRelay constructs a relay bound to hub.
func NewRedisRelay(client redis.UniversalClient, hub *Hub, channel string, logger *slog.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisRelay{client: client, hub: hub, channel: channel, log: logger}
}

// Publish sends event to every replica. If Redis is unreachable the event is
// delivered locally so subscribers on this replica still refresh.
func (r *RedisRelay) Publish(event domain.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		r.log.Error("encode live event", "error", err, "topic", event.Topic)
		return
	}
	if err := r.client.Publish(context.Background(), r.channel, payload).Err(); err != nil {
		r.log.Warn("live relay publish failed", "error", err, "topic", event.Topic)
		r.hub.Broadcast(event.Topic, payload)
	}
}

// Run subscribes to the relay channel and forwards events until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.log.Info("live relay subscribed", "channel", r.channel)
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			topic, payload, err := decodeRelayed(msg.Payload)
			if err != nil {
				r.log.Warn("drop malformed live event", "error", err)
				continue
			}
			r.hub.Broadcast(topic, payload)
		}
	}
}

func decodeRelayed(raw string) (string, []byte, error) {
	var event domain.Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return "", nil, err
	}
	if event.Topic == "" {
		return "", nil, errMissingTopic
	}
	return event.Topic, []byte(raw), nil
}
