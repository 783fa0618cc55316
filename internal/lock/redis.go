package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX so that several service
// instances share one lock per key
type RedisLocker struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisLocker connects to redisURL and verifies the connection
func NewRedisLocker(redisURL string, logger *slog.Logger) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisLockerWithClient(client, logger), nil
}

// NewRedisLockerWithClient creates a locker from an existing Redis client
func NewRedisLockerWithClient(client *redis.Client, logger *slog.Logger) *RedisLocker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLocker{
		client: client,
		prefix: "lock:",
		logger: logger,
	}
}

func (l *RedisLocker) key(name string) string {
	return l.prefix + name
}

// TryLock sets the key if absent. The returned unlock only deletes the key
// while this holder's token is still stored.
func (l *RedisLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	key := l.key(name)

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn("failed to release lock",
				slog.String("key", key),
				slog.Any("error", err))
		}
	}, true, nil
}

// Ping checks if Redis is reachable
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
