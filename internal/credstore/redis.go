package credstore

import (
	"context"
	"errors"
	"fmt"

	"autodl-console/pkg/utils"

	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "autodl:creds:"

// RedisStore keeps credentials under <prefix><profile>:<key> so several
// console profiles can share one Redis.
type RedisStore struct {
	rdb     redis.Cmdable
	prefix  string
	profile string
}

func NewRedisStore(rdb redis.Cmdable, prefix, profile string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if profile == "" {
		profile = "default"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, profile: profile}
}

func (s *RedisStore) key(k string) string { return utils.RedisKey(s.prefix, s.profile, k) }

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := checkKey(key); err != nil {
		return "", false, err
	}
	v, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("credstore: redis get: %w", err)
	}
	return v, true, nil
}

// Set stores without TTL; token expiry is read from the token itself.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("credstore: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("credstore: redis del: %w", err)
	}
	return nil
}
