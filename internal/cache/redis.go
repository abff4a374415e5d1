package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// releaseScript удаляет ключ только у владельца блокировки.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore реализует Store поверх Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisClient создаёт клиента и проверяет соединение.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: не удалось подключиться: %w", err)
	}
	return client, nil
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Claim(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: setnx %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, s.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis: release %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis: exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Remember(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}
