package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBridge mirrors notifier events across API replicas. Local publishes go
// to the local notifier and to a Redis channel; Run relays events published
// by other replicas into the local notifier.
type RedisBridge struct {
	client  *redis.Client
	channel string
	local   *Notifier
	origin  string
	logger  zerolog.Logger
}

type envelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// NewRedisBridge wires local to channel on client.
func NewRedisBridge(client *redis.Client, channel string, local *Notifier, logger zerolog.Logger) *RedisBridge {
	return &RedisBridge{
		client:  client,
		channel: channel,
		local:   local,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

// Publish delivers locally first, then forwards to Redis. A Redis failure is
// logged; local subscribers are already notified.
func (b *RedisBridge) Publish(ctx context.Context, ev Event) {
	b.local.Publish(ctx, ev)
	payload, err := encodeEnvelope(b.origin, ev)
	if err != nil {
		b.logger.Error().Err(err).Str("job_id", ev.JobID).Msg("events: encode bridge payload failed")
		return
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.logger.Warn().Err(err).Str("job_id", ev.JobID).Msg("events: redis publish failed")
	}
}

// Run relays remote events until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.logger.Info().Str("channel", b.channel).Msg("events: redis bridge started")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis channel %s closed", b.channel)
			}
			b.relay(ctx, msg.Payload)
		}
	}
}

func (b *RedisBridge) relay(ctx context.Context, payload string) {
	env, err := decodeEnvelope(payload)
	if err != nil {
		b.logger.Warn().Err(err).Msg("events: dropping malformed bridge payload")
		return
	}
	if env.Origin == b.origin {
		return
	}
	b.local.Publish(ctx, env.Event)
}

func encodeEnvelope(origin string, ev Event) (string, error) {
	raw, err := json.Marshal(envelope{Origin: origin, Event: ev})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeEnvelope(payload string) (envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return envelope{}, err
	}
	if env.Event.JobID == "" {
		return envelope{}, fmt.Errorf("event without job id")
	}
	return env, nil
}

var _ Publisher = (*RedisBridge)(nil)
