package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"CareVault/config"
)

// InitRedis connects to Redis and checks the connection.
func InitRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}
	return client, nil
}

// RedisDocumentStore keeps each document as one string key.
type RedisDocumentStore struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisDocumentStore(rdb redis.Cmdable, prefix string) *RedisDocumentStore {
	return &RedisDocumentStore{rdb: rdb, prefix: prefix}
}

func (s *RedisDocumentStore) key(name string) string {
	return s.prefix + name
}

func (s *RedisDocumentStore) Load(ctx context.Context, name string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, s.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", name, err)
	}
	return data, nil
}

func (s *RedisDocumentStore) Save(ctx context.Context, name string, data []byte) error {
	if err := s.rdb.Set(ctx, s.key(name), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", name, err)
	}
	return nil
}
