package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDecisionCacheStore shares interception decisions across
// processes. Data keys are hashed; per-user and all-entry index sets
// support targeted invalidation.
type RedisDecisionCacheStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisDecisionCacheStore(client redis.UniversalClient, prefix string) *RedisDecisionCacheStore {
	if prefix == "" {
		prefix = "flag_decision_cache"
	}
	return &RedisDecisionCacheStore{client: client, prefix: prefix}
}

func (s *RedisDecisionCacheStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.client == nil {
		return nil, false, nil
	}
	val, err := s.client.Get(ctx, s.dataKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *RedisDecisionCacheStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.client == nil || ttl <= 0 {
		return nil
	}
	dataKey := s.dataKey(key)
	allIndex := s.allIndexKey()
	userIndex := s.userIndexKeyFromCacheKey(key)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, dataKey, value, ttl)
	pipe.SAdd(ctx, allIndex, dataKey)
	pipe.Expire(ctx, allIndex, ttl+time.Minute)
	if userIndex != "" {
		pipe.SAdd(ctx, userIndex, dataKey)
		pipe.Expire(ctx, userIndex, ttl+time.Minute)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisDecisionCacheStore) InvalidateUser(ctx context.Context, userID string) error {
	if s.client == nil {
		return nil
	}
	return s.dropIndexed(ctx, s.userIndexKey(userID))
}

func (s *RedisDecisionCacheStore) InvalidateAll(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.dropIndexed(ctx, s.allIndexKey())
}

func (s *RedisDecisionCacheStore) dropIndexed(ctx context.Context, indexKey string) error {
	keys, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	pipe := s.client.TxPipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, indexKey)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisDecisionCacheStore) dataKey(cacheKey string) string {
	sum := sha256.Sum256([]byte(cacheKey))
	return fmt.Sprintf("%s:data:%s", s.prefix, hex.EncodeToString(sum[:]))
}

func (s *RedisDecisionCacheStore) allIndexKey() string {
	return fmt.Sprintf("%s:index:all", s.prefix)
}

func (s *RedisDecisionCacheStore) userIndexKey(userID string) string {
	return fmt.Sprintf("%s:index:user:%s", s.prefix, userID)
}

func (s *RedisDecisionCacheStore) userIndexKeyFromCacheKey(cacheKey string) string {
	const prefix = "u:"
	if !strings.HasPrefix(cacheKey, prefix) {
		return ""
	}
	rest := cacheKey[len(prefix):]
	sep := strings.Index(rest, "|")
	if sep <= 0 {
		return ""
	}
	return s.userIndexKey(rest[:sep])
}
