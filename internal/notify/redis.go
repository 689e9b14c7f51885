package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/fentz26/tripassist/internal/logging"
	"github.com/fentz26/tripassist/internal/models"
)

// RedisBroker fans results out to every instance sharing a Redis server. Publish
// goes through Redis pub/sub and Run relays received messages into the local hub,
// so a callback handled by one instance wakes streams held by another.
type RedisBroker struct {
	hub    *Hub
	client *redis.Client
	prefix string
	logger *logrus.Entry
}

// NewRedisBroker creates a broker on top of hub.
func NewRedisBroker(hub *Hub, client *redis.Client, prefix string) *RedisBroker {
	if prefix == "" {
		prefix = "tripassist"
	}
	return &RedisBroker{
		hub:    hub,
		client: client,
		prefix: prefix,
		logger: logging.NewLogger("notify"),
	}
}

func (b *RedisBroker) channel(id string) string {
	return b.prefix + ":done:" + id
}

// Subscribe registers a local listener.
func (b *RedisBroker) Subscribe(id string) (<-chan models.Result, func()) {
	return b.hub.Subscribe(id)
}

// Publish broadcasts result to all instances. If Redis is unreachable the result is
// still delivered to local listeners.
func (b *RedisBroker) Publish(ctx context.Context, id string, result models.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(id), data).Err(); err != nil {
		b.hub.Deliver(id, result)
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

// Run relays pub/sub messages into the hub until ctx is cancelled.
func (b *RedisBroker) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, b.prefix+":done:*")
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reporting readiness.
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redis psubscribe failed: %w", err)
	}
	b.logger.WithField("pattern", b.prefix+":done:*").Debug("Relaying session results from redis")

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			b.relay(msg)
		}
	}
}

func (b *RedisBroker) relay(msg *redis.Message) {
	id := strings.TrimPrefix(msg.Channel, b.prefix+":done:")
	var result models.Result
	if err := json.Unmarshal([]byte(msg.Payload), &result); err != nil {
		b.logger.WithError(err).WithField("session_id", id).Warn("Dropping malformed result message")
		return
	}
	n := b.hub.Deliver(id, result)
	b.logger.WithFields(logrus.Fields{"session_id": id, "listeners": n}).Debug("Relayed result")
}
