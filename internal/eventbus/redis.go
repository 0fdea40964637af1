package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"go-agent-fleet/internal/core"
)

// RedisBus implements Bus using Redis Pub/Sub with automatic reconnection.
// Every agent process connects to the same broker; there is no shared memory
// between participants.
type RedisBus struct {
	mu            sync.Mutex
	client        *redis.Client
	options       *redis.Options
	source        string
	subscriptions map[string]*redis.PubSub
	logger        *slog.Logger
}

// NewRedisBus creates a Redis-backed event bus. source identifies the owning
// process and is stamped on events published without one.
func NewRedisBus(opts *redis.Options, source string, logger *slog.Logger) *RedisBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{
		client:        redis.NewClient(opts),
		options:       opts,
		source:        source,
		subscriptions: make(map[string]*redis.PubSub),
		logger:        logger,
	}
}

// ensureConnection pings the server and reconnects if necessary.
func (b *RedisBus) ensureConnection(ctx context.Context) {
	if err := b.client.Ping(ctx).Err(); err != nil {
		b.logger.Warn("eventbus reconnecting to Redis", "error", err)
		b.client = redis.NewClient(b.options)
	}
}

// Publish sends an event to a topic. A missing correlation id is replaced
// with a freshly generated one so every causal chain has a root token; a
// caller forwarding a chain must carry the incoming id through unchanged.
func (b *RedisBus) Publish(ctx context.Context, topic string, event core.Event) error {
	b.ensureConnection(ctx)
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CorrelationID == "" {
		event.CorrelationID = uuid.NewString()
	}
	if event.Source == "" {
		event.Source = b.source
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, topic, data).Err()
}

// subscribeInternal handles subscription logic with given pubsub.
func (b *RedisBus) subscribeInternal(ctx context.Context, pubsub *redis.PubSub) (<-chan core.Event, error) {
	ch := make(chan core.Event)
	go func() {
		defer close(ch)
		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				b.logger.Warn("eventbus receive error", "error", err)
				time.Sleep(time.Second)
				continue
			}
			var ev core.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err == nil {
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// Subscribe listens for events on a topic. The returned channel is closed
// when ctx is cancelled.
func (b *RedisBus) Subscribe(ctx context.Context, topic string) (<-chan core.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ensureConnection(ctx)
	ps := b.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		return nil, err
	}
	b.subscriptions[topic] = ps
	return b.subscribeInternal(ctx, ps)
}

// SubscribePattern listens for events using a glob pattern.
func (b *RedisBus) SubscribePattern(ctx context.Context, pattern string) (<-chan core.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ensureConnection(ctx)
	ps := b.client.PSubscribe(ctx, pattern)
	if _, err := ps.Receive(ctx); err != nil {
		return nil, err
	}
	b.subscriptions[pattern] = ps
	return b.subscribeInternal(ctx, ps)
}

// Unsubscribe stops listening on a topic.
func (b *RedisBus) Unsubscribe(ctx context.Context, topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ps, ok := b.subscriptions[topic]
	if !ok {
		return nil
	}
	delete(b.subscriptions, topic)
	return ps.Close()
}

// Close terminates all subscriptions and closes the client.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ps := range b.subscriptions {
		_ = ps.Close()
	}
	b.subscriptions = make(map[string]*redis.PubSub)
	return b.client.Close()
}

var _ Bus = (*RedisBus)(nil)
