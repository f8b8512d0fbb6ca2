package realtime

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Channel is the Redis pub/sub channel carrying frames from the worker to
// the API instances holding the connections.
const Channel = "portal:notifications"

type envelope struct {
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload"`
}

// RedisPublisher hands frames to whichever API instance holds the user's
// connections.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = Channel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Push publishes payload for userID. payload must be JSON.
func (p *RedisPublisher) Push(ctx context.Context, userID string, payload []byte) error {
	raw, err := json.Marshal(envelope{UserID: userID, Payload: payload})
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, raw).Err()
}

// Relay forwards published frames to a local hub.
type Relay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	log     *zap.Logger
}

func NewRelay(client *redis.Client, channel string, hub *Hub, log *zap.Logger) *Relay {
	if channel == "" {
		channel = Channel
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{client: client, channel: channel, hub: hub, log: log}
}

// Run subscribes until ctx ends.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.log.Info("relay subscribed", zap.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.forward(ctx, msg.Payload)
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *Relay) forward(ctx context.Context, raw string) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		r.log.Warn("relay frame malformed", zap.Error(err))
		return
	}
	if err := r.hub.Push(ctx, env.UserID, env.Payload); err != nil {
		r.log.Warn("relay push failed", zap.String("user_id", env.UserID), zap.Error(err))
	}
}
