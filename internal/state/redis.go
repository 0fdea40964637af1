package state

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxTxnRetries = 5

// RedisStore provides a Redis-backed implementation of Store. Values live
// in a hash with "value" and "version" fields; writes run inside WATCH
// transactions and publish a change notification.
type RedisStore struct {
	client   *redis.Client
	options  *redis.Options
	logger   *slog.Logger
	notifKey string
}

// NewRedisStore returns a new RedisStore with given options.
func NewRedisStore(opts *redis.Options, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{
		client:   redis.NewClient(opts),
		options:  opts,
		logger:   logger,
		notifKey: "state:update:",
	}
}

// ensureConnection pings Redis and reconnects if needed.
func (s *RedisStore) ensureConnection(ctx context.Context) {
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Warn("state store reconnecting to Redis", "error", err)
		s.client = redis.NewClient(s.options)
	}
}

// Put stores a value with optional TTL and returns the new version.
func (s *RedisStore) Put(ctx context.Context, key string, value any, ttl time.Duration) (int64, error) {
	s.ensureConnection(ctx)
	var ver int64
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		prev, _ := tx.HGet(ctx, key, "version").Int64()
		ver = prev + 1
		data, err := json.Marshal(value)
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.HSet(ctx, key, "value", data, "version", ver)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		_, err = pipe.Exec(ctx)
		return err
	}, key)
	if err != nil {
		return 0, err
	}
	s.notify(ctx, key, value)
	return ver, nil
}

// Get decodes the stored value into dest and returns its version.
func (s *RedisStore) Get(ctx context.Context, key string, dest any) (int64, bool, error) {
	s.ensureConnection(ctx)
	res, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return 0, false, err
	}
	raw, ok := res["value"]
	if !ok {
		return 0, false, nil
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return 0, false, err
	}
	ver, _ := strconv.ParseInt(res["version"], 10, 64)
	return ver, true, nil
}

// Update runs fn inside a WATCH transaction on key, retrying on write
// conflicts. fn returning nil deletes the key.
func (s *RedisStore) Update(ctx context.Context, key string, ttl time.Duration, fn func(raw []byte) (any, error)) error {
	s.ensureConnection(ctx)
	var lastErr error
	for i := 0; i < maxTxnRetries; i++ {
		var next any
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.HGet(ctx, key, "value").Result()
			var current []byte
			switch {
			case errors.Is(err, redis.Nil):
				current = nil
			case err != nil:
				return err
			default:
				current = []byte(raw)
			}
			next, err = fn(current)
			if err != nil {
				return err
			}
			prev, _ := tx.HGet(ctx, key, "version").Int64()
			pipe := tx.TxPipeline()
			if next == nil {
				pipe.Del(ctx, key)
			} else {
				data, err := json.Marshal(next)
				if err != nil {
					return err
				}
				pipe.HSet(ctx, key, "value", data, "version", prev+1)
				if ttl > 0 {
					pipe.Expire(ctx, key, ttl)
				}
			}
			_, err = pipe.Exec(ctx)
			return err
		}, key)
		if err == nil {
			s.notify(ctx, key, next)
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// Watch subscribes to updates matching a pattern.
func (s *RedisStore) Watch(ctx context.Context, pattern string) (<-chan Update, error) {
	s.ensureConnection(ctx)
	pubsub := s.client.PSubscribe(ctx, s.notifKey+pattern)
	ch := make(chan Update)
	go func() {
		defer close(ch)
		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("state watch error", "error", err)
				time.Sleep(time.Second)
				continue
			}
			var upd Update
			if err := json.Unmarshal([]byte(msg.Payload), &upd); err == nil {
				select {
				case ch <- upd:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// Delete removes a key from the store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	s.ensureConnection(ctx)
	err := s.client.Del(ctx, key).Err()
	if err == nil {
		s.notify(ctx, key, nil)
	}
	return err
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) notify(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	upd := Update{Key: key, Value: data}
	payload, _ := json.Marshal(upd)
	s.client.Publish(ctx, s.notifKey+key, payload)
}

var _ Store = (*RedisStore)(nil)
