// Package router maps conversations to their assigned agent. Assignments
// are soft state with a sliding expiry: chat platforms have no session
// concept, so "same thread within the TTL" stands in for one.
package router

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "conversation:"

// DefaultTTL is how long an assignment survives without renewal.
const DefaultTTL = 24 * time.Hour

// Router stores conversation assignments in Redis so every process sees the
// same routing table.
type Router struct {
	client  *redis.Client
	options *redis.Options
	ttl     time.Duration
	logger  *slog.Logger
}

// New creates a Router. A non-positive ttl falls back to DefaultTTL.
func New(opts *redis.Options, ttl time.Duration, logger *slog.Logger) *Router {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		client:  redis.NewClient(opts),
		options: opts,
		ttl:     ttl,
		logger:  logger,
	}
}

// ensureConnection pings Redis and reconnects if needed.
func (r *Router) ensureConnection(ctx context.Context) {
	if err := r.client.Ping(ctx).Err(); err != nil {
		r.logger.Warn("router reconnecting to Redis", "error", err)
		r.client = redis.NewClient(r.options)
	}
}

func key(conversationID string) string {
	return keyPrefix + conversationID
}

// Assign maps a conversation to an agent with a fresh TTL, overwriting any
// prior assignment.
func (r *Router) Assign(ctx context.Context, conversationID, agentID string) error {
	r.ensureConnection(ctx)
	return r.client.Set(ctx, key(conversationID), agentID, r.ttl).Err()
}

// Assigned returns the agent assigned to a conversation. It does not renew
// the TTL. The second return is false when no assignment exists.
func (r *Router) Assigned(ctx context.Context, conversationID string) (string, bool, error) {
	r.ensureConnection(ctx)
	val, err := r.client.Get(ctx, key(conversationID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Renew resets the TTL without changing the assignment. Renewing an absent
// key is a no-op, not an error.
func (r *Router) Renew(ctx context.Context, conversationID string) error {
	r.ensureConnection(ctx)
	return r.client.Expire(ctx, key(conversationID), r.ttl).Err()
}

// Unassign deletes the assignment. Idempotent.
func (r *Router) Unassign(ctx context.Context, conversationID string) error {
	r.ensureConnection(ctx)
	return r.client.Del(ctx, key(conversationID)).Err()
}

// Close closes the Redis connection.
func (r *Router) Close() error {
	return r.client.Close()
}
