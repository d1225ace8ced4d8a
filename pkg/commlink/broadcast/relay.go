package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis Pub/Sub channel events travel on.
const DefaultChannel = "commlink:events"

const (
	publishTimeout = 2 * time.Second
	minResubscribe = 500 * time.Millisecond
	maxResubscribe = 30 * time.Second
)

// RedisRelay shares events between server instances. Publish sends an event
// to Redis; Run delivers every event seen on the channel to the local hub,
// including the ones this instance published. While the subscription is not
// live, events go straight to the local hub.
type RedisRelay struct {
	rdb     *goredis.Client
	channel string
	hub     *Hub
	logger  *slog.Logger

	subscribed atomic.Bool
	retryMin   time.Duration
	retryMax   time.Duration
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return goredis.NewClient(opts), nil
}

func NewRedisRelay(rdb *goredis.Client, hub *Hub, logger *slog.Logger) *RedisRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{
		rdb:      rdb,
		channel:  DefaultChannel,
		hub:      hub,
		logger:   logger,
		retryMin: minResubscribe,
		retryMax: maxResubscribe,
	}
}

// Publish implements Publisher. It returns immediately; if Redis is
// unreachable or this instance is not subscribed, the event is delivered to
// local clients only.
func (r *RedisRelay) Publish(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("Failed to marshal broadcast event", "type", event.Type(), "error", err)
		return
	}
	if !r.subscribed.Load() {
		r.hub.broadcastRaw(event.Type(), data)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := r.rdb.Publish(ctx, r.channel, data).Err(); err != nil {
			r.logger.Warn("Redis publish failed, delivering locally", "type", event.Type(), "error", err)
			r.hub.broadcastRaw(event.Type(), data)
		}
	}()
}

// Subscribed reports whether events currently round-trip through Redis.
func (r *RedisRelay) Subscribed() bool {
	return r.subscribed.Load()
}

// Run forwards channel messages to the hub until ctx is cancelled. A failed
// or lost subscription is retried with exponential backoff.
func (r *RedisRelay) Run(ctx context.Context) {
	backoff := r.retryMin
	for {
		established, err := r.subscribe(ctx)
		if ctx.Err() != nil {
			return
		}
		if established {
			backoff = r.retryMin
		}
		r.logger.Warn("Redis relay not subscribed, delivering locally", "error", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, r.retryMax)
	}
}

// subscribe blocks while the subscription is live. established reports
// whether it was ever confirmed.
func (r *RedisRelay) subscribe(ctx context.Context) (established bool, err error) {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer func() { _ = sub.Close() }()

	// Wait for the subscription to be confirmed so early publishes are not lost.
	if _, err := sub.Receive(ctx); err != nil {
		return false, fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	r.subscribed.Store(true)
	defer r.subscribed.Store(false)
	r.logger.Info("Redis relay subscribed", "channel", r.channel)

	msgs := sub.Channel()
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return true, errors.New("subscription channel closed")
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logger.Warn("Dropping malformed relay message", "error", err)
				continue
			}
			r.hub.broadcastRaw(event.Type(), []byte(msg.Payload))
		case <-ctx.Done():
			return true, nil
		}
	}
}
