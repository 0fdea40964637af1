// Package metrics tracks per-agent usage counters shared across processes.
package metrics

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Collector records per-agent activity.
type Collector interface {
	IncrActions(ctx context.Context, agentID string) error
	RecordAction(ctx context.Context, agentID, label string) error
}

const (
	actionsKeyPrefix = "metrics:actions:"
	lastActionKey    = "metrics:last_action"
)

// RedisCollector keeps counters in Redis so the management surface can read
// them from a different process.
type RedisCollector struct {
	client *redis.Client
}

// NewRedisCollector creates a collector on the given connection options.
func NewRedisCollector(opts *redis.Options) *RedisCollector {
	return &RedisCollector{client: redis.NewClient(opts)}
}

// IncrActions bumps the agent's action counter.
func (c *RedisCollector) IncrActions(ctx context.Context, agentID string) error {
	return c.client.Incr(ctx, actionsKeyPrefix+agentID).Err()
}

// RecordAction stores the label of the agent's most recent action.
func (c *RedisCollector) RecordAction(ctx context.Context, agentID, label string) error {
	return c.client.HSet(ctx, lastActionKey, agentID, label).Err()
}

// Actions reads the agent's action counter. Absent counters read as zero.
func (c *RedisCollector) Actions(ctx context.Context, agentID string) (int64, error) {
	n, err := c.client.Get(ctx, actionsKeyPrefix+agentID).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// LastAction reads the agent's most recent action label.
func (c *RedisCollector) LastAction(ctx context.Context, agentID string) (string, error) {
	label, err := c.client.HGet(ctx, lastActionKey, agentID).Result()
	if err == redis.Nil {
		return "", nil
	}
	return label, err
}

// Close closes the Redis connection.
func (c *RedisCollector) Close() error {
	return c.client.Close()
}

var _ Collector = (*RedisCollector)(nil)

// Nop discards all metrics.
type Nop struct{}

func (Nop) IncrActions(ctx context.Context, agentID string) error         { return nil }
func (Nop) RecordAction(ctx context.Context, agentID, label string) error { return nil }

var _ Collector = Nop{}
