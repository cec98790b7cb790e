package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNilRedisStore is returned when a RedisStore pointer is nil or uninitialized.
var ErrNilRedisStore = errors.New("redis store is nil")

// RedisStore wraps a redis client holding the server-side cookie mirror.
type RedisStore struct {
	Client *redis.Client
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(ctx context.Context, addr string) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
	}

	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

func cookieJarKey(visitorID string) string {
	return fmt.Sprintf("cookiejar:%s", visitorID)
}

func (r *RedisStore) ready() error {
	if r == nil || r.Client == nil {
		return ErrNilRedisStore
	}
	return nil
}

// SaveCookie stores an encoded cookie record in the visitor's jar hash. The
// hash TTL is only ever extended, so a short-lived cookie cannot shorten
// the lifetime of the others.
func (r *RedisStore) SaveCookie(ctx context.Context, visitorID, field string, record []byte, ttl time.Duration) error {
	if err := r.ready(); err != nil {
		return err
	}
	key := cookieJarKey(visitorID)
	if err := r.Client.HSet(ctx, key, field, record).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	if ttl <= 0 {
		return nil
	}
	current, err := r.Client.TTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("ttl %s: %w", key, err)
	}
	if current < ttl {
		if err := r.Client.Expire(ctx, key, ttl).Err(); err != nil {
			return fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return nil
}

// DeleteCookie removes a field from the visitor's jar hash.
func (r *RedisStore) DeleteCookie(ctx context.Context, visitorID, field string) error {
	if err := r.ready(); err != nil {
		return err
	}
	key := cookieJarKey(visitorID)
	if err := r.Client.HDel(ctx, key, field).Err(); err != nil {
		return fmt.Errorf("hdel %s: %w", key, err)
	}
	return nil
}

// LoadCookies returns every encoded record in the visitor's jar hash.
func (r *RedisStore) LoadCookies(ctx context.Context, visitorID string) (map[string]string, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	key := cookieJarKey(visitorID)
	fields, err := r.Client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", key, err)
	}
	return fields, nil
}

// FlushCookieJars deletes every visitor's cookie jar and returns the
// number of jars removed.
func (r *RedisStore) FlushCookieJars(ctx context.Context) (int, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := r.Client.Scan(ctx, cursor, cookieJarKey("*"), 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("scan cookie jars: %w", err)
		}
		if len(keys) > 0 {
			n, err := r.Client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("delete cookie jars: %w", err)
			}
			deleted += int(n)
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

// Ping checks connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.Client.Ping(ctx).Err()
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
