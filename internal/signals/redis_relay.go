package signals

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisRelay mirrors signals between processes sharing a Redis channel.
// Local publishes go to the local bus and to Redis; messages read back from
// Redis are delivered to the local bus unless this relay sent them.
type RedisRelay struct {
	rdb     *redis.Client
	bus     *Bus
	channel string
	origin  string
	logger  *zap.Logger
}

var _ Publisher = (*RedisRelay)(nil)

type relayMessage struct {
	Origin string `json:"origin"`
	Topic  string `json:"topic"`
}

func NewRedisRelay(rdb *redis.Client, bus *Bus, channel string, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{
		rdb:     rdb,
		bus:     bus,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

func (r *RedisRelay) Origin() string {
	return r.origin
}

// Publish delivers topic locally first, then forwards it. A Redis failure
// is logged and does not affect local delivery.
func (r *RedisRelay) Publish(topic Topic) {
	r.bus.Publish(topic)

	payload, err := encodeRelayMessage(r.origin, topic)
	if err != nil {
		r.logger.Error("encode relay message", zap.Stringer("topic", topic), zap.Error(err))
		return
	}
	if err := r.rdb.Publish(context.Background(), r.channel, payload).Err(); err != nil {
		r.logger.Warn("forward signal to redis",
			zap.Stringer("topic", topic),
			zap.String("channel", r.channel),
			zap.Error(err),
		)
	}
}

// Run consumes the Redis channel until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Wait for the subscription confirmation so that publishes issued after
	// Run returns from Receive are not missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", r.channel, err)
	}
	r.logger.Info("signal relay subscribed", zap.String("channel", r.channel), zap.String("origin", r.origin))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(msg.Payload)
		}
	}
}

func (r *RedisRelay) deliver(payload string) {
	origin, topic, err := decodeRelayMessage(payload)
	if err != nil {
		r.logger.Warn("drop malformed relay message", zap.String("payload", payload), zap.Error(err))
		return
	}
	if origin == r.origin {
		return
	}
	r.logger.Debug("remote signal", zap.Stringer("topic", topic), zap.String("origin", origin))
	r.bus.Publish(topic)
}

func encodeRelayMessage(origin string, topic Topic) (string, error) {
	if !topic.Valid() {
		return "", fmt.Errorf("invalid topic %d", int(topic))
	}
	data, err := json.Marshal(relayMessage{Origin: origin, Topic: topic.String()})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeRelayMessage(payload string) (string, Topic, error) {
	var msg relayMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return "", 0, err
	}
	if msg.Origin == "" {
		return "", 0, fmt.Errorf("relay message without origin")
	}
	topic, err := ParseTopic(msg.Topic)
	if err != nil {
		return "", 0, err
	}
	return msg.Origin, topic, nil
}
